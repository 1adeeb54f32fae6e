// cmd/dotapply/commands_test.go
// TEST TYPE: Integration Test
// DEPENDENCIES: Real filesystem (t.TempDir), environment variables
// PURPOSE: Test the CLI commands against an isolated dotfiles root and home

package dotapply_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/arthur-debert/dotapply/cmd/dotapply"
	"github.com/arthur-debert/dotapply/pkg/errors"
	"github.com/arthur-debert/dotapply/pkg/mapping"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cli struct {
	root string
	home string
}

func newCLI(t *testing.T, config string) *cli {
	t.Helper()
	c := &cli{root: t.TempDir(), home: t.TempDir()}
	t.Setenv("DOTFILES_ROOT", c.root)
	t.Setenv("DOTAPPLY_HOME", c.home)
	t.Setenv("DOTAPPLY_CONFIG_DIR", filepath.Join(c.home, ".config", "dotapply"))
	t.Setenv("DOTAPPLY_STATE_DIR", filepath.Join(c.home, ".local", "state", "dotapply"))
	require.NoError(t, os.WriteFile(filepath.Join(c.root, "dotapply.toml"), []byte(config), 0644))
	return c
}

func (c *cli) run(args ...string) (string, error) {
	var out bytes.Buffer
	cmd := dotapply.NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--output", "text"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

const profilesConfig = `
[profiles.work]
files = ["~/.zshrc"]

[profiles.old]
enabled = false
`

func TestProfilesCmd(t *testing.T) {
	c := newCLI(t, profilesConfig)

	out, err := c.run("profiles")
	require.NoError(t, err)
	assert.Equal(t, "  old (disabled)\n  work\n", out)
}

func TestProfilesCmdYAML(t *testing.T) {
	c := newCLI(t, profilesConfig)

	out, err := c.run("profiles", "--output", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "name: old")
	assert.Contains(t, out, "enabled: false")
	assert.Contains(t, out, "files: 1")
}

func TestClassifyCmd(t *testing.T) {
	c := newCLI(t, "")
	safe := filepath.Join(c.root, "safe.sh")
	risky := filepath.Join(c.root, "risky.sh")
	require.NoError(t, os.WriteFile(safe, []byte("brew install git\n"), 0644))
	require.NoError(t, os.WriteFile(risky, []byte("echo hi\nsudo reboot\n"), 0644))

	out, err := c.run("classify", safe)
	require.NoError(t, err)
	assert.Contains(t, out, "safe")

	out, err = c.run("classify", risky)
	var exit *dotapply.ExitError
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 1, exit.Code)
	assert.Contains(t, out, "dangerous")
	assert.Contains(t, out, "line 2: sudo reboot")
}

func TestApplyCmdLinksFiles(t *testing.T) {
	id := mapping.HashID("~/.zshrc")
	c := newCLI(t, `
[profiles.work]
files = ["~/.zshrc"]
homebrew_packages = ["git"]

[profiles.work.file_mappings]
"`+id+`" = "~/.zshrc"
`)
	storage := filepath.Join(c.root, "work", "files", id+"-.zshrc")
	require.NoError(t, os.MkdirAll(filepath.Dir(storage), 0755))
	require.NoError(t, os.WriteFile(storage, []byte("export EDITOR=vim\n"), 0644))

	out, err := c.run("apply", "work", "--skip-packages", "--skip-bootstrap")
	require.NoError(t, err)
	assert.Contains(t, out, "succeeded ~/.zshrc : create")

	dest, err := os.Readlink(filepath.Join(c.home, ".zshrc"))
	require.NoError(t, err)
	assert.Equal(t, storage, dest)

	out, err = c.run("unlink", "work")
	require.NoError(t, err)
	assert.Contains(t, out, "Unlink work")
	_, err = os.Lstat(filepath.Join(c.home, ".zshrc"))
	assert.True(t, os.IsNotExist(err))
}

func TestApplyCmdDryRunLeavesHomeAlone(t *testing.T) {
	id := mapping.HashID("~/.zshrc")
	c := newCLI(t, `
[profiles.work]
files = ["~/.zshrc"]

[profiles.work.file_mappings]
"`+id+`" = "~/.zshrc"
`)
	storage := filepath.Join(c.root, "work", "files", id+"-.zshrc")
	require.NoError(t, os.MkdirAll(filepath.Dir(storage), 0755))
	require.NoError(t, os.WriteFile(storage, []byte("export EDITOR=vim\n"), 0644))

	out, err := c.run("apply", "work", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Apply work (dry run)")
	assert.Contains(t, out, "planned   ~/.zshrc : create")

	_, err = os.Lstat(filepath.Join(c.home, ".zshrc"))
	assert.True(t, os.IsNotExist(err))
}

func TestApplyCmdFailuresSetExitCode(t *testing.T) {
	c := newCLI(t, `
[profiles.work]
files = ["~/.vimrc"]
`)

	out, err := c.run("apply", "work")
	var exit *dotapply.ExitError
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 1, exit.Code)
	assert.Contains(t, out, "MAPPING_NOT_FOUND")
}

func TestApplyCmdUnknownProfile(t *testing.T) {
	c := newCLI(t, profilesConfig)

	_, err := c.run("apply", "home")
	assert.True(t, errors.IsErrorCode(err, errors.ErrProfileNotFound))
}

func TestApplyCmdDisabledProfile(t *testing.T) {
	c := newCLI(t, profilesConfig)

	_, err := c.run("apply", "old")
	assert.True(t, errors.IsErrorCode(err, errors.ErrInvalidInput))
}

func TestVersionCmd(t *testing.T) {
	c := newCLI(t, "")

	out, err := c.run("version")
	require.NoError(t, err)
	assert.Contains(t, out, "dotapply version dev")
}
