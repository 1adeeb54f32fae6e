// Package mapping translates a profile's tracked original paths to their
// storage locations inside the dotfiles repository.
//
// Storage names are derived from the canonical path, never from content:
// tracked files live at <profile>/files/<hashid>-<basename> and secrets at
// <profile>/secrets/<hashid>-<basename>.age. Profiles created before hashed
// storage keep working through the flat <profile>/<basename> fallback.
package mapping

import (
	"encoding/hex"
	"path"
	"path/filepath"
	"sort"

	"github.com/arthur-debert/dotapply/pkg/errors"
	"github.com/arthur-debert/dotapply/pkg/logging"
	"github.com/arthur-debert/dotapply/pkg/paths"
	"github.com/arthur-debert/dotapply/pkg/types"
	"github.com/rs/zerolog"
	"github.com/zeebo/blake3"
)

// HashIDBytes is the digest width used for hash-ids (128 bits)
const HashIDBytes = 16

// HashID returns the stable hash-id of a canonical path
func HashID(canonical string) string {
	h := blake3.New()
	_, _ = h.Write([]byte(canonical))
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:HashIDBytes])
}

// HashFunc computes a hash-id from a canonical path
type HashFunc func(canonical string) string

// Option configures a Resolver
type Option func(*Resolver)

// WithHashFunc replaces the hash-id function
func WithHashFunc(fn HashFunc) Option {
	return func(r *Resolver) { r.hash = fn }
}

// Resolver holds the mapping table of one profile. The profile itself is
// never modified; registrations accumulate in the resolver and can be
// read back with FileMappings for the configuration layer to persist.
type Resolver struct {
	fs      types.FS
	paths   *paths.Paths
	profile string
	hash    HashFunc
	logger  zerolog.Logger

	secrets     map[string]bool
	byID        map[string]types.MappingEntry
	byCanonical map[string]string
}

// NewResolver loads the profile's file_mappings. Two ids pointing at the
// same canonical path make the table non-injective and are rejected.
func NewResolver(fs types.FS, p *paths.Paths, profile types.Profile, opts ...Option) (*Resolver, error) {
	r := &Resolver{
		fs:          fs,
		paths:       p,
		profile:     profile.Name,
		hash:        HashID,
		logger:      logging.GetLogger("apply.mapping").With().Str("profile", profile.Name).Logger(),
		secrets:     make(map[string]bool),
		byID:        make(map[string]types.MappingEntry),
		byCanonical: make(map[string]string),
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, s := range profile.Secrets {
		canonical, err := p.Canonical(s)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrConfigInvalid, "invalid secret path %q", s)
		}
		r.secrets[canonical] = true
	}

	for _, id := range profile.MappingIDs() {
		original := profile.FileMappings[id]
		canonical, err := p.Canonical(original)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrConfigInvalid, "invalid mapped path %q", original)
		}
		if other, dup := r.byCanonical[canonical]; dup {
			return nil, errors.Newf(errors.ErrMappingCollision,
				"hash-ids %s and %s both map %s", other, id, canonical).
				WithDetail("path", canonical)
		}
		r.insert(r.entryFor(id, canonical))
	}

	r.logger.Trace().Int("entries", len(r.byID)).Msg("Mapping table loaded")
	return r, nil
}

func (r *Resolver) entryFor(id, canonical string) types.MappingEntry {
	secret := r.secrets[canonical]
	dir := paths.FilesDir
	name := id + "-" + path.Base(canonical)
	if secret {
		dir = paths.SecretsDir
		name += paths.SecretExt
	}
	return types.MappingEntry{
		HashID:      id,
		Original:    canonical,
		StoragePath: filepath.Join(r.profile, dir, name),
		Secret:      secret,
	}
}

func (r *Resolver) insert(e types.MappingEntry) {
	r.byID[e.HashID] = e
	r.byCanonical[e.Original] = e.HashID
}

// Register returns the mapping entry for original, creating it on first use.
// Registration is idempotent; an existing entry is never recomputed.
func (r *Resolver) Register(original string) (types.MappingEntry, error) {
	canonical, err := r.paths.Canonical(original)
	if err != nil {
		return types.MappingEntry{}, err
	}
	if id, ok := r.byCanonical[canonical]; ok {
		return r.byID[id], nil
	}

	id := r.hash(canonical)
	if existing, taken := r.byID[id]; taken {
		return types.MappingEntry{}, errors.Newf(errors.ErrMappingCollision,
			"hash-id %s of %s is already used by %s", id, canonical, existing.Original).
			WithDetail("path", canonical).
			WithDetail("existing", existing.Original)
	}

	entry := r.entryFor(id, canonical)
	r.insert(entry)
	r.logger.Debug().Str("path", canonical).Str("hash_id", id).Msg("Registered mapping")
	return entry, nil
}

// Lookup returns the registered entry for original, if any
func (r *Resolver) Lookup(original string) (types.MappingEntry, bool) {
	canonical, err := r.paths.Canonical(original)
	if err != nil {
		return types.MappingEntry{}, false
	}
	id, ok := r.byCanonical[canonical]
	if !ok {
		return types.MappingEntry{}, false
	}
	return r.byID[id], true
}

// Resolve returns the absolute storage path of original. The hash-id
// mapping wins; otherwise the legacy flat layout is used when a file
// exists there. Neither resolving is a MAPPING_NOT_FOUND error.
func (r *Resolver) Resolve(original string) (string, error) {
	if entry, ok := r.Lookup(original); ok {
		return r.paths.StoragePath(entry.StoragePath), nil
	}

	canonical, err := r.paths.Canonical(original)
	if err != nil {
		return "", err
	}

	for _, legacy := range r.legacyCandidates(canonical) {
		if _, err := r.fs.Lstat(legacy); err == nil {
			r.logger.Debug().Str("path", canonical).Str("storage", legacy).Msg("Resolved through legacy flat storage")
			return legacy, nil
		}
	}

	return "", errors.Newf(errors.ErrMappingNotFound, "no storage found for %s", canonical).
		WithDetail("path", canonical)
}

func (r *Resolver) legacyCandidates(canonical string) []string {
	flat := filepath.Join(r.paths.ProfileDir(r.profile), path.Base(canonical))
	if r.secrets[canonical] {
		return []string{flat + paths.SecretExt, flat}
	}
	return []string{flat}
}

// StoragePath returns where original is, or would be, stored under the
// hashed layout. It does not register the path or touch the filesystem.
func (r *Resolver) StoragePath(original string) (string, error) {
	if entry, ok := r.Lookup(original); ok {
		return r.paths.StoragePath(entry.StoragePath), nil
	}
	canonical, err := r.paths.Canonical(original)
	if err != nil {
		return "", err
	}
	return r.paths.StoragePath(r.entryFor(r.hash(canonical), canonical).StoragePath), nil
}

// Entries returns every mapping entry sorted by hash-id
func (r *Resolver) Entries() []types.MappingEntry {
	out := make([]types.MappingEntry, 0, len(r.byID))
	for _, e := range r.byID {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HashID < out[j].HashID })
	return out
}

// FileMappings returns the table in the profile's file_mappings shape
func (r *Resolver) FileMappings() map[string]string {
	out := make(map[string]string, len(r.byID))
	for id, e := range r.byID {
		out[id] = e.Original
	}
	return out
}
