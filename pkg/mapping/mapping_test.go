// pkg/mapping/mapping_test.go
// TEST TYPE: Unit Test
// DEPENDENCIES: MemoryFS
// PURPOSE: Test hash-id registration, resolution, legacy fallback and collision policy

package mapping_test

import (
	"path/filepath"
	"testing"

	"github.com/arthur-debert/dotapply/pkg/errors"
	"github.com/arthur-debert/dotapply/pkg/mapping"
	"github.com/arthur-debert/dotapply/pkg/paths"
	"github.com/arthur-debert/dotapply/pkg/testutil"
	"github.com/arthur-debert/dotapply/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T, profile types.Profile, opts ...mapping.Option) (*mapping.Resolver, *testutil.MemoryFS, *paths.Paths) {
	t.Helper()
	fs := testutil.NewMemoryFS()
	p, err := paths.New("/home/u", "/dots")
	require.NoError(t, err)
	require.NoError(t, fs.MkdirAll("/dots/"+profile.Name, 0755))

	r, err := mapping.NewResolver(fs, p, profile, opts...)
	require.NoError(t, err)
	return r, fs, p
}

func TestHashIDIsStableAndSized(t *testing.T) {
	a := mapping.HashID("~/.zshrc")
	assert.Equal(t, a, mapping.HashID("~/.zshrc"))
	assert.Len(t, a, mapping.HashIDBytes*2)
	assert.NotEqual(t, a, mapping.HashID("~/.bashrc"))
}

func TestRegisterResolveRoundTrip(t *testing.T) {
	profile := types.Profile{
		Name:    "work",
		Files:   []string{"~/.zshrc", "/home/u/.config/git/config", ".vimrc"},
		Secrets: []string{"~/.ssh/config"},
	}
	r, _, _ := setup(t, profile)

	for _, original := range append(profile.Files, profile.Secrets...) {
		t.Run(original, func(t *testing.T) {
			entry, err := r.Register(original)
			require.NoError(t, err)

			want, err := r.StoragePath(original)
			require.NoError(t, err)

			got, err := r.Resolve(original)
			require.NoError(t, err)
			assert.Equal(t, want, got)
			assert.Equal(t, filepath.Join("/dots", entry.StoragePath), got)
		})
	}
}

func TestRegisterLayout(t *testing.T) {
	r, _, _ := setup(t, types.Profile{Name: "work", Secrets: []string{"~/.ssh/config"}})

	file, err := r.Register("/home/u/.zshrc")
	require.NoError(t, err)
	assert.Equal(t, "~/.zshrc", file.Original)
	assert.Equal(t, filepath.Join("work", "files", mapping.HashID("~/.zshrc")+"-.zshrc"), file.StoragePath)
	assert.False(t, file.Secret)

	secret, err := r.Register("~/.ssh/config")
	require.NoError(t, err)
	assert.True(t, secret.Secret)
	assert.Equal(t, filepath.Join("work", "secrets", mapping.HashID("~/.ssh/config")+"-config.age"), secret.StoragePath)
}

func TestRegisterIsIdempotent(t *testing.T) {
	calls := 0
	counting := func(c string) string {
		calls++
		return mapping.HashID(c)
	}
	r, _, _ := setup(t, types.Profile{Name: "work"}, mapping.WithHashFunc(counting))

	first, err := r.Register("~/.zshrc")
	require.NoError(t, err)
	second, err := r.Register("/home/u/.zshrc")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls, "an existing entry is never recomputed")
	assert.Len(t, r.Entries(), 1)
}

func TestExistingMappingsAreImmutable(t *testing.T) {
	profile := types.Profile{
		Name:         "work",
		FileMappings: map[string]string{"legacyid": "~/.zshrc"},
	}
	r, _, _ := setup(t, profile)

	entry, err := r.Register("~/.zshrc")
	require.NoError(t, err)
	assert.Equal(t, "legacyid", entry.HashID, "configured hash-ids are kept even if the digest would differ")
	assert.Equal(t, map[string]string{"legacyid": "~/.zshrc"}, r.FileMappings())
}

func TestRegisterDetectsCollision(t *testing.T) {
	constant := func(string) string { return "deadbeef" }
	r, _, _ := setup(t, types.Profile{Name: "work"}, mapping.WithHashFunc(constant))

	_, err := r.Register("~/.zshrc")
	require.NoError(t, err)

	_, err = r.Register("~/.bashrc")
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrMappingCollision))
	assert.Equal(t, "~/.zshrc", errors.GetErrorDetails(err)["existing"])
}

func TestNewResolverRejectsNonInjectiveTable(t *testing.T) {
	fs := testutil.NewMemoryFS()
	p, err := paths.New("/home/u", "/dots")
	require.NoError(t, err)

	_, err = mapping.NewResolver(fs, p, types.Profile{
		Name:         "work",
		FileMappings: map[string]string{"a": "~/.zshrc", "b": "/home/u/.zshrc"},
	})
	assert.True(t, errors.IsErrorCode(err, errors.ErrMappingCollision))
}

func TestResolveLegacyFallback(t *testing.T) {
	r, fs, _ := setup(t, types.Profile{Name: "work", Secrets: []string{"~/.netrc"}})
	require.NoError(t, fs.WriteFile("/dots/work/.zshrc", []byte("legacy"), 0644))
	require.NoError(t, fs.WriteFile("/dots/work/.netrc.age", []byte("cipher"), 0644))

	got, err := r.Resolve("~/.zshrc")
	require.NoError(t, err)
	assert.Equal(t, "/dots/work/.zshrc", got)

	got, err = r.Resolve("~/.netrc")
	require.NoError(t, err)
	assert.Equal(t, "/dots/work/.netrc.age", got)
}

func TestResolveMappingWinsOverLegacy(t *testing.T) {
	r, fs, _ := setup(t, types.Profile{Name: "work"})
	require.NoError(t, fs.WriteFile("/dots/work/.zshrc", []byte("legacy"), 0644))

	entry, err := r.Register("~/.zshrc")
	require.NoError(t, err)

	got, err := r.Resolve("~/.zshrc")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/dots", entry.StoragePath), got)
}

func TestResolveNotFound(t *testing.T) {
	r, _, _ := setup(t, types.Profile{Name: "work"})

	_, err := r.Resolve("~/.missing")
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrMappingNotFound))
	assert.Equal(t, "~/.missing", errors.GetErrorDetails(err)["path"])
}
