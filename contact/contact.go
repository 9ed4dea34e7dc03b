// Package contact implements the transformation of a contact document
// between its nested form and the flattened dot-notation form stored in the
// profile database.
//
// A nested document like
//
//	{"Header": {"Version": "1.0"}, "Nicknames": ["Rick", "Ricky"]}
//
// flattens to a single-level mapping whose keys encode the path and list
// indices joined by periods:
//
//	{"Header.Version": "1.0", "Nicknames.0": "Rick", "Nicknames.1": "Ricky"}
//
// Unflattening is the exact inverse, inferring list versus object
// containers by whether the next path segment parses as an integer.
package contact

import (
	"sort"
	"strconv"
	"strings"

	"github.com/gravitational/trace"
)

// ErrOutOfRange is returned when unflattening encounters a list index which
// is negative or more than one past the current length of its list.
var ErrOutOfRange = trace.BadParameter("list index out of bounds")

// Flatten converts a nested contact document into a single-level
// dot-notated mapping. All values are expected to be strings, maps, or
// lists; anything else is an error.
func Flatten(data map[string]any) (map[string]string, error) {
	flattened := make(map[string]string)

	for k, v := range data {
		if err := flattenField(flattened, k, v); err != nil {
			return nil, err
		}
	}
	return flattened, nil
}

func flattenField(target map[string]string, prefix string, value any) error {
	switch field := value.(type) {
	case string:
		target[prefix] = field
	case map[string]any:
		for k, v := range field {
			if err := flattenField(target, prefix+"."+k, v); err != nil {
				return err
			}
		}
	case []any:
		for i, v := range field {
			if err := flattenField(target, prefix+"."+strconv.Itoa(i), v); err != nil {
				return err
			}
		}
	default:
		return trace.BadParameter("field %s is not a map, list, or string", prefix)
	}
	return nil
}

// Unflatten converts a dot-notated mapping back into the nested document
// form described for Flatten.
//
// List indices must be contiguous from zero: an index is accepted only when
// it already exists in its list or is exactly one past the end. The fields
// are processed in path order so that indices written by Flatten always
// qualify.
func Unflatten(data map[string]string) (map[string]any, error) {
	unflattened := make(map[string]any)

	for _, k := range sortedFieldNames(data) {
		if err := UnflattenField(unflattened, k, data[k]); err != nil {
			return nil, err
		}
	}
	return unflattened, nil
}

// sortedFieldNames orders the field names so that numeric path segments
// compare as numbers. A plain string sort would place index 10 before
// index 2 and break list reassembly.
func sortedFieldNames(data map[string]string) []string {
	names := make([]string, 0, len(data))
	for k := range data {
		names = append(names, k)
	}

	sort.Slice(names, func(i, j int) bool {
		a := strings.Split(names[i], ".")
		b := strings.Split(names[j], ".")
		for level := 0; level < len(a) && level < len(b); level++ {
			if a[level] == b[level] {
				continue
			}
			aNum, aErr := strconv.Atoi(a[level])
			bNum, bErr := strconv.Atoi(b[level])
			if aErr == nil && bErr == nil {
				return aNum < bNum
			}
			return a[level] < b[level]
		}
		return len(a) < len(b)
	})
	return names
}

// UnflattenField unpacks a single dot-notated field into the target
// document.
func UnflattenField(target map[string]any, fieldName string, fieldValue string) error {
	if fieldName == "" {
		return trace.BadParameter("field name may not be empty")
	}

	levels := strings.Split(fieldName, ".")
	_, err := unflattenRecurse(target, levels, 0, fieldValue)
	return err
}

// unflattenRecurse walks one level of the path, creating containers as it
// goes. Because Go lists grow by reassignment, the possibly-updated
// container is returned to the caller for re-storing.
func unflattenRecurse(target any, levels []string, levelIndex int, value string) (any, error) {
	key := levels[levelIndex]
	last := levelIndex == len(levels)-1

	switch container := target.(type) {
	case []any:
		index, err := strconv.Atoi(key)
		if err != nil {
			return nil, trace.BadParameter("non-integer index %s for list field", key)
		}
		if index < 0 || index > len(container) {
			return nil, trace.Wrap(ErrOutOfRange, "list index for %s out of bounds",
				strings.Join(levels, "."))
		}

		if last {
			if index == len(container) {
				return append(container, value), nil
			}
			container[index] = value
			return container, nil
		}

		if index == len(container) {
			container = append(container, newContainer(levels[levelIndex+1]))
		}
		child, err := unflattenRecurse(container[index], levels, levelIndex+1, value)
		if err != nil {
			return nil, err
		}
		container[index] = child
		return container, nil

	case map[string]any:
		if last {
			container[key] = value
			return container, nil
		}

		if _, exists := container[key]; !exists {
			container[key] = newContainer(levels[levelIndex+1])
		}
		child, err := unflattenRecurse(container[key], levels, levelIndex+1, value)
		if err != nil {
			return nil, err
		}
		container[key] = child
		return container, nil
	}

	return nil, trace.BadParameter("field %s conflicts with an existing value",
		strings.Join(levels, "."))
}

// newContainer picks the container type for a path segment: a list when the
// next segment parses as an integer, a map otherwise. Negative indices still
// select a list so that the list bounds check can reject them.
func newContainer(nextKey string) any {
	if _, err := strconv.Atoi(nextKey); err == nil {
		return []any{}
	}
	return map[string]any{}
}
