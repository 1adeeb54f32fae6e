package types

import "sort"

// Profile is a named, independently applicable bundle of tracked files,
// secrets, directories, packages and an optional setup script.
//
// Profiles are owned by configuration and are read-only to the engine for
// the duration of one apply.
type Profile struct {
	Name    string `koanf:"name" yaml:"name"`
	Enabled bool   `koanf:"enabled" yaml:"enabled"`

	// Files and Secrets hold original paths, usually in "~/..." form.
	// The two sets are disjoint.
	Files   []string `koanf:"files" yaml:"files,omitempty"`
	Secrets []string `koanf:"secrets" yaml:"secrets,omitempty"`

	// Directories are linked as whole-directory symlinks.
	Directories []string `koanf:"directories" yaml:"directories,omitempty"`

	// FileMappings maps a hash-id to the original path it was derived from.
	FileMappings map[string]string `koanf:"file_mappings" yaml:"file_mappings,omitempty"`

	HomebrewPackages []string `koanf:"homebrew_packages" yaml:"homebrew_packages,omitempty"`

	// BootstrapScript is relative to the profile directory when not absolute.
	BootstrapScript string `koanf:"bootstrap_script" yaml:"bootstrap_script,omitempty"`

	// Exclude holds glob patterns matched against the original path and
	// its basename.
	Exclude []string `koanf:"exclude" yaml:"exclude,omitempty"`
}

// IsSecret reports whether original is listed in the profile's secrets.
func (p Profile) IsSecret(original string) bool {
	for _, s := range p.Secrets {
		if s == original {
			return true
		}
	}
	return false
}

// HasSecrets reports whether the secrets stage has anything to do
func (p Profile) HasSecrets() bool {
	return len(p.Secrets) > 0
}

// MappingIDs returns the hash-ids of the profile's mappings in sorted order
func (p Profile) MappingIDs() []string {
	ids := make([]string, 0, len(p.FileMappings))
	for id := range p.FileMappings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// MappingEntry pairs an original path with its storage location.
// A path's hash-id never changes once registered.
type MappingEntry struct {
	HashID   string `yaml:"hash_id"`
	Original string `yaml:"original"`
	// StoragePath is relative to the dotfiles root, e.g.
	// "work/files/<hashid>-.zshrc".
	StoragePath string `yaml:"storage_path"`
	Secret      bool   `yaml:"secret,omitempty"`
}
