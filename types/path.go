package types

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Server-side paths consist almost entirely of UUIDs plus a few reserved
// top-level names, with segments separated by single spaces. File names
// embed the creation time, the size in bytes, and a UUID so that the name
// itself conveys nothing about the contents.
var serverPathPattern = regexp.MustCompile(
	`^/( wsp| out| tmp)?` +
		`( [0-9a-fA-F]{8}-?[0-9a-fA-F]{4}-?[0-9a-fA-F]{4}-?[0-9a-fA-F]{4}-?[0-9a-fA-F]{12})*` +
		`( new)?( [0-9]+\.[0-9]+\.` +
		`[0-9a-fA-F]{8}-?[0-9a-fA-F]{4}-?[0-9a-fA-F]{4}-?[0-9a-fA-F]{4}-?[0-9a-fA-F]{12})*$`)

// ValidateServerPath returns true if the string is a valid server-side path.
// A bare slash refers to the workspace root directory and is also valid.
func ValidateServerPath(path string) bool {
	s := strings.TrimSpace(path)
	if s == "/" {
		return true
	}
	return serverPathPattern.MatchString(s)
}

// Basename returns the name of the item specified by a server path,
// regardless of whether it is a folder or file.
func Basename(path string) string {
	parts := strings.Split(strings.TrimSpace(path), " ")
	return parts[len(parts)-1]
}

// Parent returns the path containing the item specified by the given path,
// or an empty string for the root path "/".
func Parent(path string) string {
	parts := strings.Split(strings.TrimSpace(path), " ")
	if len(parts) < 2 {
		return ""
	}
	return strings.Join(parts[:len(parts)-1], " ")
}

// SplitPaths breaks a string containing multiple space-separated server
// paths into a list of individual paths.
func SplitPaths(s string) []string {
	parts := strings.Split(strings.TrimSpace(s), " /")
	if len(parts) > 0 && parts[0] == "" {
		parts = parts[1:]
	}
	if len(parts) == 0 {
		return nil
	}

	// Only the first item kept its leading slash
	out := make([]string, 0, len(parts))
	out = append(out, parts[0])
	for _, item := range parts[1:] {
		out = append(out, "/"+item)
	}
	return out
}

// GenerateFileName creates a unique name for a file using the Mensago
// filename template: the creation time in Unix seconds, the file's size in
// bytes, and a random UUID, joined by periods.
func GenerateFileName(size uint64) string {
	return fmt.Sprintf("%d.%d.%s", time.Now().UTC().Unix(), size, uuid.NewString())
}

// SizeAsString converts a byte count to a human-readable string in SI units.
func SizeAsString(size uint64) string {
	sizeList := []struct {
		value  uint64
		suffix string
	}{
		{1_000_000_000_000_000, "PB"},
		{1_000_000_000_000, "TB"},
		{1_000_000_000, "GB"},
		{1_000_000, "MB"},
		{1_000, "KB"},
	}

	for _, pair := range sizeList {
		if size >= pair.value {
			return fmt.Sprintf("%.2f%s", float64(size)/float64(pair.value), pair.suffix)
		}
	}
	return fmt.Sprintf("%d bytes", size)
}
