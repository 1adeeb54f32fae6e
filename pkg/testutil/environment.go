// pkg/testutil/environment.go
// DEPENDENCIES: None (base test utilities)
// PURPOSE: Orchestrate test environments with an explicit home and dotfiles root

package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/arthur-debert/dotapply/pkg/filesystem"
	"github.com/arthur-debert/dotapply/pkg/mapping"
	"github.com/arthur-debert/dotapply/pkg/paths"
	"github.com/arthur-debert/dotapply/pkg/types"
	"github.com/stretchr/testify/require"
)

// EnvType defines the type of test environment
type EnvType int

const (
	EnvMemoryOnly EnvType = iota // Pure in-memory, no real filesystem
	EnvIsolated                  // Real filesystem in temp directory
)

// TestEnvironment provides a home directory, a dotfiles root and XDG
// directories on either a MemoryFS or a real temp directory
type TestEnvironment struct {
	DotfilesRoot string
	HomeDir      string
	ConfigDir    string
	StateDir     string

	FS     types.FS
	Memory *MemoryFS // nil for EnvIsolated
	Paths  *paths.Paths

	Type EnvType

	t *testing.T
}

// NewTestEnvironment creates a new test environment
func NewTestEnvironment(t *testing.T, envType EnvType) *TestEnvironment {
	t.Helper()

	env := &TestEnvironment{t: t, Type: envType}

	base := "/virtual"
	switch envType {
	case EnvMemoryOnly:
		env.Memory = NewMemoryFS()
		env.FS = env.Memory
	case EnvIsolated:
		base = t.TempDir()
		env.FS = filesystem.NewOS()
	}

	env.DotfilesRoot = filepath.Join(base, "dotfiles")
	env.HomeDir = filepath.Join(base, "home")
	env.ConfigDir = filepath.Join(env.HomeDir, ".config", "dotapply")
	env.StateDir = filepath.Join(env.HomeDir, ".local", "state", "dotapply")

	for _, dir := range []string{env.DotfilesRoot, env.HomeDir} {
		require.NoError(t, env.FS.MkdirAll(dir, 0755))
	}

	p, err := paths.New(env.HomeDir, env.DotfilesRoot)
	require.NoError(t, err)
	env.Paths = p.WithConfigDir(env.ConfigDir).WithStateDir(env.StateDir)

	return env
}

// HomePath returns the absolute path of a home-relative path
func (env *TestEnvironment) HomePath(rel string) string {
	return filepath.Join(env.HomeDir, rel)
}

// WriteFile writes content at path, creating parents
func (env *TestEnvironment) WriteFile(path, content string) string {
	env.t.Helper()
	require.NoError(env.t, env.FS.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(env.t, env.FS.WriteFile(path, []byte(content), 0644))
	return path
}

// WriteHome writes a file under the home directory
func (env *TestEnvironment) WriteHome(rel, content string) string {
	env.t.Helper()
	return env.WriteFile(env.HomePath(rel), content)
}

// Store registers original with the resolver and writes content at its
// storage location
func (env *TestEnvironment) Store(r *mapping.Resolver, original string, content []byte) string {
	env.t.Helper()
	entry, err := r.Register(original)
	require.NoError(env.t, err)
	path := env.Paths.StoragePath(entry.StoragePath)
	require.NoError(env.t, env.FS.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(env.t, env.FS.WriteFile(path, content, 0644))
	return path
}

// StoreDir registers a tracked directory and creates it in storage with
// the given files
func (env *TestEnvironment) StoreDir(r *mapping.Resolver, original string, files map[string]string) string {
	env.t.Helper()
	entry, err := r.Register(original)
	require.NoError(env.t, err)
	dir := env.Paths.StoragePath(entry.StoragePath)
	require.NoError(env.t, env.FS.MkdirAll(dir, 0755))
	for name, content := range files {
		env.WriteFile(filepath.Join(dir, name), content)
	}
	return dir
}

// Resolver builds a resolver for profile
func (env *TestEnvironment) Resolver(profile types.Profile) *mapping.Resolver {
	env.t.Helper()
	r, err := mapping.NewResolver(env.FS, env.Paths, profile)
	require.NoError(env.t, err)
	return r
}

// ReadFile returns the content at path
func (env *TestEnvironment) ReadFile(path string) string {
	env.t.Helper()
	data, err := env.FS.ReadFile(path)
	require.NoError(env.t, err)
	return string(data)
}

// Exists reports whether path exists without following symlinks
func (env *TestEnvironment) Exists(path string) bool {
	_, err := env.FS.Lstat(path)
	return err == nil
}

// RequireSymlink fails the test unless target is a symlink to dest
func (env *TestEnvironment) RequireSymlink(target, dest string) {
	env.t.Helper()
	info, err := env.FS.Lstat(target)
	require.NoError(env.t, err)
	require.NotZero(env.t, info.Mode()&os.ModeSymlink, "%s is not a symlink", target)
	got, err := env.FS.Readlink(target)
	require.NoError(env.t, err)
	require.Equal(env.t, dest, got)
}
