// pkg/filesystem/links_test.go
// TEST TYPE: Unit Test
// DEPENDENCIES: Real filesystem (t.TempDir)
// PURPOSE: Test resolving symlinks among path components

package filesystem_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/arthur-debert/dotapply/pkg/errors"
	"github.com/arthur-debert/dotapply/pkg/filesystem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveLinks(t *testing.T) {
	fsys := filesystem.NewOS()
	base, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	store := filepath.Join(base, "store", "ssh")
	home := filepath.Join(base, "home")
	require.NoError(t, os.MkdirAll(store, 0755))
	require.NoError(t, os.MkdirAll(home, 0755))
	require.NoError(t, os.Symlink(store, filepath.Join(home, ".ssh")))
	require.NoError(t, os.Symlink("../store", filepath.Join(home, "rel")))
	require.NoError(t, os.Symlink(filepath.Join(store, "config"), filepath.Join(home, ".netrc")))

	tests := []struct {
		name       string
		path       string
		followLast bool
		want       string
	}{
		{"through directory link", filepath.Join(home, ".ssh", "config"), false, filepath.Join(store, "config")},
		{"relative link", filepath.Join(home, "rel", "ssh", "known_hosts"), false, filepath.Join(store, "known_hosts")},
		{"final link kept", filepath.Join(home, ".netrc"), false, filepath.Join(home, ".netrc")},
		{"final link followed", filepath.Join(home, ".netrc"), true, filepath.Join(store, "config")},
		{"missing tail", filepath.Join(home, "missing", "a", "b"), false, filepath.Join(home, "missing", "a", "b")},
		{"plain path", filepath.Join(home, "file"), true, filepath.Join(home, "file")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := filesystem.ResolveLinks(fsys, tt.path, tt.followLast)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveLinksErrors(t *testing.T) {
	fsys := filesystem.NewOS()
	dir := t.TempDir()
	require.NoError(t, os.Symlink(filepath.Join(dir, "b"), filepath.Join(dir, "a")))
	require.NoError(t, os.Symlink(filepath.Join(dir, "a"), filepath.Join(dir, "b")))

	_, err := filesystem.ResolveLinks(fsys, filepath.Join(dir, "a", "x"), false)
	assert.True(t, errors.IsErrorCode(err, errors.ErrFileAccess))

	_, err = filesystem.ResolveLinks(fsys, "relative/path", false)
	assert.True(t, errors.IsErrorCode(err, errors.ErrInvalidInput))
}
