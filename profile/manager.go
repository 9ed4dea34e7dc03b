package profile

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/gravitational/trace"
)

// Manager handles the collection of profiles under one root directory.
// Exactly one profile is active at a time, and most interaction with the
// package goes through ActiveProfile after an initial LoadProfiles.
type Manager struct {
	profileFolder string
	profiles      []*Profile
	activeIndex   int
}

// NewManager creates an unloaded profile manager. Call LoadProfiles before
// using it.
func NewManager() *Manager {
	return &Manager{activeIndex: -1}
}

// defaultProfileFolder returns the platform-specific default location for
// profile storage.
func defaultProfileFolder() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "mensago")
	}
	return filepath.Join(os.Getenv("HOME"), ".config", "mensago")
}

// LoadProfiles loads all profiles under the specified path, creating and
// activating a profile named primary if none exist. An empty path selects
// the platform default.
func (m *Manager) LoadProfiles(profilePath string) error {
	m.activeIndex = -1

	if profilePath == "" {
		profilePath = defaultProfileFolder()
	}
	m.profileFolder = profilePath

	if err := os.MkdirAll(profilePath, 0o700); err != nil {
		return trace.ConvertSystemError(err)
	}

	items, err := os.ReadDir(profilePath)
	if err != nil {
		return trace.ConvertSystemError(err)
	}

	m.profiles = nil
	defaultFound := false
	for _, item := range items {
		if !item.IsDir() {
			continue
		}

		p, err := NewProfile(filepath.Join(profilePath, item.Name()))
		if err != nil {
			return err
		}
		m.profiles = append(m.profiles, p)

		if p.IsDefault {
			if defaultFound {
				// More than one profile claims to be the default; the first
				// one encountered keeps the status
				if err = p.SetDefault(false); err != nil {
					return err
				}
			} else {
				defaultFound = true
			}
		}
	}

	if len(m.profiles) == 0 {
		if _, err = m.CreateProfile("primary"); err != nil {
			return err
		}
		if err = m.SetDefaultProfile("primary"); err != nil {
			return err
		}
	}

	return m.ActivateProfile(m.DefaultProfile())
}

// indexForProfile returns the position of the named profile or -1.
func (m *Manager) indexForProfile(name string) int {
	squashed := strings.ToLower(name)
	for i, p := range m.profiles {
		if p.Name == squashed {
			return i
		}
	}
	return -1
}

// CreateProfile creates a profile with the specified name. Capital letters
// are squashed, and the name is used directly as a directory name, so
// spaces and special characters deserve care. The name default is reserved.
func (m *Manager) CreateProfile(name string) (*Profile, error) {
	if name == "" {
		return nil, trace.BadParameter("name may not be empty")
	}

	squashed := strings.ToLower(name)
	if squashed == "default" {
		return nil, trace.BadParameter("'default' is reserved")
	}
	if m.indexForProfile(squashed) >= 0 {
		return nil, trace.AlreadyExists("profile %s already exists", name)
	}

	profilePath := filepath.Join(m.profileFolder, squashed)
	if err := os.Mkdir(profilePath, 0o700); err != nil {
		return nil, trace.ConvertSystemError(err)
	}

	p, err := NewProfile(profilePath)
	if err != nil {
		return nil, err
	}
	m.profiles = append(m.profiles, p)

	if len(m.profiles) == 1 {
		if err = p.SetDefault(true); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// DeleteProfile deletes the named profile and all files on disk contained
// in it.
func (m *Manager) DeleteProfile(name string) error {
	if name == "" {
		return trace.BadParameter("name may not be empty")
	}
	if strings.ToLower(name) == "default" {
		return trace.BadParameter("'default' is reserved")
	}

	index := m.indexForProfile(name)
	if index < 0 {
		return trace.NotFound("profile %s doesn't exist", name)
	}

	p := m.profiles[index]
	p.Deactivate()
	if index == m.activeIndex {
		m.activeIndex = -1
	} else if index < m.activeIndex {
		m.activeIndex--
	}
	m.profiles = append(m.profiles[:index], m.profiles[index+1:]...)

	if err := os.RemoveAll(p.Path); err != nil {
		return trace.ConvertSystemError(err)
	}

	if p.IsDefault && len(m.profiles) > 0 {
		return m.profiles[0].SetDefault(true)
	}
	return nil
}

// RenameProfile renames a profile, leaving its contents unchanged. The same
// naming rules as CreateProfile apply.
func (m *Manager) RenameProfile(oldName string, newName string) error {
	if oldName == "" || newName == "" {
		return trace.BadParameter("profile names may not be empty")
	}

	oldSquashed := strings.ToLower(oldName)
	newSquashed := strings.ToLower(newName)
	if oldSquashed == newSquashed {
		return nil
	}
	if newSquashed == "default" {
		return trace.BadParameter("'default' is reserved")
	}

	index := m.indexForProfile(oldSquashed)
	if index < 0 {
		return trace.NotFound("profile %s doesn't exist", oldName)
	}
	if m.indexForProfile(newSquashed) >= 0 {
		return trace.AlreadyExists("profile %s already exists", newName)
	}

	p := m.profiles[index]
	wasActive := index == m.activeIndex
	if wasActive {
		p.Deactivate()
	}

	newPath := filepath.Join(filepath.Dir(p.Path), newSquashed)
	if err := os.Rename(p.Path, newPath); err != nil {
		if wasActive {
			_ = p.Activate()
		}
		return trace.ConvertSystemError(err)
	}

	p.Name = newSquashed
	p.Path = newPath

	if wasActive {
		return p.Activate()
	}
	return nil
}

// Profiles returns the list of loaded profiles.
func (m *Manager) Profiles() []*Profile {
	return m.profiles
}

// DefaultProfile returns the name of the default profile, or an empty
// string if one has not been set.
func (m *Manager) DefaultProfile() string {
	for _, p := range m.profiles {
		if p.IsDefault {
			return p.Name
		}
	}
	return ""
}

// SetDefaultProfile sets the profile loaded on startup. With only one
// profile the call has no effect beyond confirming that profile as the
// default.
func (m *Manager) SetDefaultProfile(name string) error {
	if name == "" {
		return trace.BadParameter("name may not be empty")
	}

	if len(m.profiles) == 1 {
		if m.profiles[0].IsDefault {
			return nil
		}
		return m.profiles[0].SetDefault(true)
	}

	newIndex := m.indexForProfile(name)
	if newIndex < 0 {
		return trace.NotFound("profile %s not found", name)
	}

	for i, p := range m.profiles {
		if p.IsDefault && i != newIndex {
			if err := p.SetDefault(false); err != nil {
				return err
			}
		}
	}

	return m.profiles[newIndex].SetDefault(true)
}

// ActivateProfile deactivates the current profile and makes the named one
// active, loading its identity information in the process.
func (m *Manager) ActivateProfile(name string) error {
	if name == "" {
		return trace.BadParameter("name may not be empty")
	}

	newIndex := m.indexForProfile(name)
	if newIndex < 0 {
		return trace.NotFound("profile %s doesn't exist", name)
	}

	if m.activeIndex >= 0 {
		m.profiles[m.activeIndex].Deactivate()
		m.activeIndex = -1
	}

	p := m.profiles[newIndex]
	if err := p.Activate(); err != nil {
		return err
	}
	m.activeIndex = newIndex

	// Force loading of the basic identity info if the workspace exists
	_, _ = p.Identity()
	return nil
}

// ActiveProfile returns the currently-active profile.
func (m *Manager) ActiveProfile() (*Profile, error) {
	if m.activeIndex < 0 {
		return nil, trace.NotFound("no active profile")
	}
	return m.profiles[m.activeIndex], nil
}
