// pkg/config/loader_test.go
// TEST TYPE: Unit Test
// DEPENDENCIES: Real filesystem (t.TempDir)
// PURPOSE: Test layered loading of defaults, root config and environment

package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/arthur-debert/dotapply/pkg/config"
	"github.com/arthur-debert/dotapply/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dotapply.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaultsOnly(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)

	assert.True(t, cfg.Settings.Backups)
	assert.Equal(t, "dotapply-backup", cfg.Settings.BackupSuffix)
	assert.Equal(t, "age", cfg.Settings.AgeBinary)
	assert.Equal(t, "age-keygen", cfg.Settings.AgeKeygenBinary)
	assert.Equal(t, "brew", cfg.Settings.BrewBinary)
	assert.Empty(t, cfg.Profiles)
}

func TestLoadProfiles(t *testing.T) {
	path := writeConfig(t, `
[settings]
backups = false

[profiles.work]
files = ["~/.zshrc", "~/.gitconfig"]
secrets = ["~/.ssh/config"]
directories = ["~/.config/nvim"]
homebrew_packages = ["git", "cask:firefox"]
bootstrap_script = "setup.sh"
exclude = ["*.bak"]

[profiles.work.file_mappings]
a1b2 = "~/.zshrc"

[profiles.home]
enabled = false
files = ["~/.zshrc"]
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.False(t, cfg.Settings.Backups)
	assert.Equal(t, "dotapply-backup", cfg.Settings.BackupSuffix, "defaults fill unset keys")
	assert.Equal(t, []string{"home", "work"}, cfg.ProfileNames())

	work, err := cfg.Profile("work")
	require.NoError(t, err)
	assert.Equal(t, "work", work.Name)
	assert.True(t, work.Enabled, "profiles are enabled by default")
	assert.Equal(t, []string{"~/.zshrc", "~/.gitconfig"}, work.Files)
	assert.Equal(t, []string{"~/.ssh/config"}, work.Secrets)
	assert.Equal(t, []string{"~/.config/nvim"}, work.Directories)
	assert.Equal(t, []string{"git", "cask:firefox"}, work.HomebrewPackages)
	assert.Equal(t, "setup.sh", work.BootstrapScript)
	assert.Equal(t, []string{"*.bak"}, work.Exclude)
	assert.Equal(t, map[string]string{"a1b2": "~/.zshrc"}, work.FileMappings)

	home, err := cfg.Profile("home")
	require.NoError(t, err)
	assert.False(t, home.Enabled)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `
[settings]
backups = true
`)
	t.Setenv("DOTAPPLY_SETTINGS__BACKUPS", "false")
	t.Setenv("DOTAPPLY_SETTINGS__BREW_BINARY", "/opt/homebrew/bin/brew")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Settings.Backups)
	assert.Equal(t, "/opt/homebrew/bin/brew", cfg.Settings.BrewBinary)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
		code    errors.ErrorCode
	}{
		{"bad toml", "[profiles.work\nfiles = 1", errors.ErrConfigParse},
		{"file and secret overlap", `
[profiles.work]
files = ["~/.netrc"]
secrets = ["~/.netrc"]
`, errors.ErrConfigInvalid},
		{"secret inside tracked directory", `
[profiles.work]
directories = ["~/.ssh/"]
secrets = ["~/.ssh/config"]
`, errors.ErrConfigInvalid},
		{"bad exclude glob", `
[profiles.work]
exclude = ["[unclosed"]
`, errors.ErrConfigInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.GetErrorCode(err))
		})
	}
}

func TestLoadAllowsSecretBesideTrackedDirectory(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, `
[profiles.work]
directories = ["~/.ssh"]
secrets = ["~/.sshrc"]
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"~/.sshrc"}, cfg.Profiles["work"].Secrets)
}

func TestProfileNotFound(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	_, err = cfg.Profile("nope")
	assert.True(t, errors.IsErrorCode(err, errors.ErrProfileNotFound))
}
