package config

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/arthur-debert/dotapply/pkg/errors"
	"github.com/arthur-debert/dotapply/pkg/types"
)

// Settings are engine-wide options
type Settings struct {
	// Backups moves conflicting content aside instead of refusing to link
	Backups         bool   `koanf:"backups"`
	BackupSuffix    string `koanf:"backup_suffix"`
	AgeBinary       string `koanf:"age_binary"`
	AgeKeygenBinary string `koanf:"age_keygen_binary"`
	BrewBinary      string `koanf:"brew_binary"`
}

// Config is the fully loaded configuration
type Config struct {
	Settings Settings                 `koanf:"settings"`
	Profiles map[string]types.Profile `koanf:"profiles"`
}

// ProfileNames returns configured profile names in sorted order
func (c *Config) ProfileNames() []string {
	names := make([]string, 0, len(c.Profiles))
	for name := range c.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Profile returns the named profile
func (c *Config) Profile(name string) (types.Profile, error) {
	p, ok := c.Profiles[name]
	if !ok {
		return types.Profile{}, errors.Newf(errors.ErrProfileNotFound, "profile %q is not configured", name).
			WithDetail("available", c.ProfileNames())
	}
	return p, nil
}

// Validate checks every profile for problems the engine cannot work
// around: bad names, overlapping files and secrets, secrets inside a
// linked directory, and malformed exclusion globs
func (c *Config) Validate() error {
	for _, name := range c.ProfileNames() {
		if err := validateProfile(c.Profiles[name]); err != nil {
			return err
		}
	}
	return nil
}

func validateProfile(p types.Profile) error {
	if p.Name == "" || strings.ContainsAny(p.Name, `./\`) {
		return errors.Newf(errors.ErrConfigInvalid, "invalid profile name %q", p.Name)
	}

	files := make(map[string]bool, len(p.Files))
	for _, f := range p.Files {
		files[f] = true
	}
	for _, s := range p.Secrets {
		if files[s] {
			return errors.Newf(errors.ErrConfigInvalid, "profile %s lists %s as both a file and a secret", p.Name, s).
				WithDetail("profile", p.Name).
				WithDetail("path", s)
		}
	}

	for _, s := range p.Secrets {
		if dir, ok := underDirectory(s, p.Directories); ok {
			return errors.Newf(errors.ErrConfigInvalid,
				"profile %s lists secret %s inside tracked directory %s", p.Name, s, dir).
				WithDetail("profile", p.Name).
				WithDetail("path", s)
		}
	}

	for _, pattern := range p.Exclude {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return errors.Wrapf(err, errors.ErrConfigInvalid, "profile %s has invalid exclude pattern %q", p.Name, pattern)
		}
	}
	return nil
}

// underDirectory returns the tracked directory that contains path. A
// linked directory points into storage, so nothing decrypted may live
// under it.
func underDirectory(path string, dirs []string) (string, bool) {
	clean := filepath.Clean(path)
	for _, d := range dirs {
		dir := filepath.Clean(d)
		if clean == dir || strings.HasPrefix(clean, dir+"/") {
			return d, true
		}
	}
	return "", false
}
