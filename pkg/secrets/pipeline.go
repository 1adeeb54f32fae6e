// Package secrets makes a profile's encrypted secrets available in
// plaintext at their destinations.
//
// Ciphertext stays in repository storage. Plaintext is produced at apply
// time through an Oracle, written with owner-only permissions to the
// destination, and the buffer is wiped. A key mismatch opens a dialog
// where the user can skip the file, cancel the rest of the apply, or
// import a replacement key and retry.
package secrets

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/arthur-debert/dotapply/pkg/errors"
	"github.com/arthur-debert/dotapply/pkg/filesystem"
	"github.com/arthur-debert/dotapply/pkg/logging"
	"github.com/arthur-debert/dotapply/pkg/paths"
	"github.com/arthur-debert/dotapply/pkg/types"
	"github.com/rs/zerolog"
)

// PlaintextMode is the permission of every decrypted file
const PlaintextMode os.FileMode = 0600

// Action names recorded on outcomes
const (
	ActionDecrypt = "decrypt"
)

// Prompter answers the key setup and key mismatch dialogs
type Prompter interface {
	KeySetup(ctx context.Context, profile string) (types.KeySetupChoice, error)
	KeyMaterial(ctx context.Context, profile string) (string, error)
	KeyMismatch(ctx context.Context, profile, file string) (types.MismatchChoice, error)
}

// Resolver locates a secret's ciphertext in storage
type Resolver interface {
	Resolve(original string) (string, error)
}

// Result is what one pipeline run produced. Entries and Outcomes are
// parallel and follow the profile's secrets order.
type Result struct {
	Entries  []types.SecretEntry
	Outcomes []types.ItemOutcome
}

// Pipeline decrypts the secrets of one profile
type Pipeline struct {
	fs       types.FS
	paths    *paths.Paths
	oracle   Oracle
	prompter Prompter
	now      func() time.Time
	logger   zerolog.Logger
}

// NewPipeline creates a Pipeline. prompter may be nil, in which case key
// setup fails and every mismatch is skipped.
func NewPipeline(fs types.FS, p *paths.Paths, oracle Oracle, prompter Prompter) *Pipeline {
	return &Pipeline{
		fs:       fs,
		paths:    p,
		oracle:   oracle,
		prompter: prompter,
		now:      time.Now,
		logger:   logging.GetLogger("apply.secrets"),
	}
}

// WithClock sets the time source used for key metadata
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// run holds the state of one pipeline invocation
type run struct {
	profile  string
	keyRef   string
	entries  []types.SecretEntry
	outcomes []types.ItemOutcome
	// skipped holds indexes of entries skipped after a key mismatch; they
	// are retried when a replacement key is imported
	skipped []int
	logger  zerolog.Logger
}

func (r *run) set(i int, state types.SecretState, status types.ItemStatus, action string, err error) {
	r.entries[i].State = state
	r.outcomes[i] = types.NewOutcome(types.StageSecrets, r.entries[i].Original, status, action, err)
}

// Run decrypts every secret of profile. Per-secret failures are returned
// as outcomes. The error is non-nil only when the user cancelled during
// the mismatch dialog; secrets after that point are not attempted.
func (p *Pipeline) Run(ctx context.Context, profile types.Profile, resolver Resolver, dryRun bool) (Result, error) {
	if !profile.HasSecrets() {
		return Result{}, nil
	}

	done := logging.LogOperationStart(p.logger, "secrets.run")
	defer done()

	r := &run{
		profile:  profile.Name,
		keyRef:   p.paths.KeyPath(profile.Name),
		entries:  make([]types.SecretEntry, len(profile.Secrets)),
		outcomes: make([]types.ItemOutcome, len(profile.Secrets)),
		logger:   p.logger.With().Str("profile", profile.Name).Logger(),
	}

	pending := p.prepare(r, profile, resolver)
	if len(pending) == 0 {
		return r.result(), nil
	}

	hasKey, err := p.oracle.HasKey(ctx, r.keyRef)
	if err != nil {
		for _, i := range pending {
			r.set(i, types.SecretFailed, types.ItemFailed, ActionDecrypt, errors.OracleFailure(r.entries[i].Original, err))
		}
		return r.result(), nil
	}

	if dryRun {
		for _, i := range pending {
			r.set(i, types.SecretPending, types.ItemPlanned, ActionDecrypt, nil)
			detail := "decrypt to " + r.entries[i].Destination
			if !hasKey {
				detail = "key setup required, then " + detail
			}
			r.outcomes[i] = r.outcomes[i].WithDetail(detail)
		}
		return r.result(), nil
	}

	if !hasKey {
		if err := p.setupKey(ctx, r); err != nil {
			r.logger.Warn().Err(err).Msg("No key material, secrets not decrypted")
			for _, i := range pending {
				r.set(i, types.SecretFailed, types.ItemFailed, ActionDecrypt, err)
			}
			return r.result(), nil
		}
	}

	for n, i := range pending {
		if err := ctx.Err(); err != nil {
			abort := errors.Wrap(err, errors.ErrCancelled, "apply cancelled")
			p.notAttempted(r, pending[n:], abort)
			return r.result(), abort
		}

		if abort := p.process(ctx, r, i); abort != nil {
			p.notAttempted(r, pending[n+1:], abort)
			return r.result(), abort
		}
	}
	return r.result(), nil
}

func (r *run) result() Result {
	return Result{Entries: r.entries, Outcomes: r.outcomes}
}

// prepare resolves ciphertext and destination for each secret and returns
// the indexes that are ready to decrypt
func (p *Pipeline) prepare(r *run, profile types.Profile, resolver Resolver) []int {
	var pending []int
	for i, original := range profile.Secrets {
		r.entries[i] = types.SecretEntry{Original: original, State: types.SecretPending}

		dest, err := p.paths.Target(original)
		if err != nil {
			r.set(i, types.SecretFailed, types.ItemFailed, ActionDecrypt, err)
			continue
		}
		r.entries[i].Destination = dest
		if err := p.outsideStorage(dest); err != nil {
			r.set(i, types.SecretFailed, types.ItemFailed, ActionDecrypt, err)
			continue
		}

		cipher, err := resolver.Resolve(original)
		if err != nil {
			r.set(i, types.SecretFailed, types.ItemFailed, ActionDecrypt, err)
			continue
		}
		r.entries[i].Ciphertext = cipher
		pending = append(pending, i)
	}
	return pending
}

// outsideStorage fails when dest lies in repository storage, either as
// written or once the links among its parents are followed, e.g. a
// secret inside a directory that is itself linked into the repository
func (p *Pipeline) outsideStorage(dest string) error {
	if p.paths.InDotfilesRoot(dest) {
		return errors.Newf(errors.ErrInvalidInput, "destination %s is inside repository storage", dest).
			WithDetail("path", dest)
	}

	physical, err := filesystem.ResolveLinks(p.fs, dest, false)
	if err != nil {
		return err
	}
	root, err := filesystem.ResolveLinks(p.fs, p.paths.DotfilesRoot(), true)
	if err != nil {
		return err
	}
	if physical == root || strings.HasPrefix(physical, root+string(filepath.Separator)) || p.paths.InDotfilesRoot(physical) {
		return errors.Newf(errors.ErrInvalidInput, "destination %s resolves to %s inside repository storage", dest, physical).
			WithDetail("path", dest).
			WithDetail("resolved", physical)
	}
	return nil
}

func (p *Pipeline) notAttempted(r *run, idx []int, cause error) {
	for _, i := range idx {
		r.set(i, types.SecretPending, types.ItemSkipped, "", cause)
		r.outcomes[i] = r.outcomes[i].WithDetail("not attempted")
	}
}

// process drives one secret through decryption and, on a key mismatch,
// the recovery dialog. A non-nil error means the user cancelled.
func (p *Pipeline) process(ctx context.Context, r *run, i int) error {
	if mismatch := p.attempt(ctx, r, i); !mismatch {
		return nil
	}

	file := r.entries[i].Original
	logger := r.logger.With().Str("secret", file).Logger()
	for {
		choice := types.MismatchSkip
		if p.prompter != nil {
			c, err := p.prompter.KeyMismatch(ctx, r.profile, file)
			if err != nil {
				logger.Debug().Err(err).Msg("Mismatch prompt unavailable, skipping")
			} else {
				choice = c
			}
		}

		switch choice {
		case types.MismatchCancel:
			logger.Warn().Msg("Apply cancelled at key mismatch")
			r.set(i, types.SecretKeyMismatch, types.ItemFailed, ActionDecrypt,
				errors.Newf(errors.ErrKeyMismatch, "key does not match %s", file))
			r.outcomes[i] = r.outcomes[i].WithDetail("cancelled")
			return errors.Newf(errors.ErrCancelled, "cancelled at key mismatch on %s", file)

		case types.MismatchImport:
			if err := p.importReplacement(ctx, r); err != nil {
				logger.Warn().Err(err).Msg("Key import failed")
				continue
			}
			p.retrySkipped(ctx, r)
			if mismatch := p.attempt(ctx, r, i); !mismatch {
				return nil
			}

		default:
			logger.Info().Msg("Skipped secret after key mismatch")
			r.set(i, types.SecretSkipped, types.ItemSkipped, ActionDecrypt,
				errors.Newf(errors.ErrKeyMismatch, "key does not match %s", file))
			r.skipped = append(r.skipped, i)
			return nil
		}
	}
}

// attempt decrypts entry i once and records the outcome. It reports
// whether the failure was a key mismatch, leaving the outcome for the
// caller to decide.
func (p *Pipeline) attempt(ctx context.Context, r *run, i int) bool {
	e := &r.entries[i]
	logger := r.logger.With().Str("secret", e.Original).Logger()

	ciphertext, err := p.fs.ReadFile(e.Ciphertext)
	if err != nil {
		r.set(i, types.SecretFailed, types.ItemFailed, ActionDecrypt, errors.Wrapf(err, errors.ErrFileAccess,
			"cannot read ciphertext %s", e.Ciphertext))
		return false
	}

	plaintext, err := p.oracle.Decrypt(ctx, ciphertext, r.keyRef)
	switch {
	case errors.IsErrorCode(err, errors.ErrKeyMismatch):
		logger.Debug().Msg("Key mismatch")
		e.State = types.SecretKeyMismatch
		return true
	case errors.IsErrorCode(err, errors.ErrKeyMissing):
		r.set(i, types.SecretFailed, types.ItemFailed, ActionDecrypt, err)
		return false
	case err != nil:
		logger.Error().Err(err).Msg("Decryption failed")
		r.set(i, types.SecretFailed, types.ItemFailed, ActionDecrypt, errors.OracleFailure(e.Original, err))
		return false
	}

	changed, err := p.writePlaintext(e.Destination, plaintext)
	if err != nil {
		r.set(i, types.SecretFailed, types.ItemFailed, ActionDecrypt, err)
		return false
	}
	if !changed {
		r.set(i, types.SecretDecrypted, types.ItemUnchanged, ActionDecrypt, nil)
		return false
	}
	logger.Info().Str("destination", e.Destination).Msg("Decrypted secret")
	r.set(i, types.SecretDecrypted, types.ItemSucceeded, ActionDecrypt, nil)
	r.outcomes[i] = r.outcomes[i].WithDetail("written to " + e.Destination)
	return false
}

// retrySkipped retries every secret skipped earlier in this run. Those
// that still mismatch stay skipped.
func (p *Pipeline) retrySkipped(ctx context.Context, r *run) {
	var still []int
	for _, i := range r.skipped {
		if mismatch := p.attempt(ctx, r, i); mismatch {
			r.set(i, types.SecretSkipped, types.ItemSkipped, ActionDecrypt,
				errors.Newf(errors.ErrKeyMismatch, "key does not match %s", r.entries[i].Original))
			still = append(still, i)
		}
	}
	r.skipped = still
}

// writePlaintext places plaintext at dest with owner-only permissions and
// wipes the buffer. A symlink at dest is removed first so the write can
// never land in the file it points at.
func (p *Pipeline) writePlaintext(dest string, plaintext []byte) (bool, error) {
	defer wipe(plaintext)

	if info, err := p.fs.Lstat(dest); err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			if err := p.fs.Remove(dest); err != nil {
				return false, errors.Wrapf(err, errors.ErrFileWrite, "cannot remove link at %s", dest)
			}
		} else if info.IsDir() {
			return false, errors.Newf(errors.ErrFileWrite, "destination %s is a directory", dest)
		} else if existing, err := p.fs.ReadFile(dest); err == nil {
			same := bytes.Equal(existing, plaintext)
			wipe(existing)
			if same {
				if info.Mode().Perm() != PlaintextMode {
					if err := p.fs.Chmod(dest, PlaintextMode); err != nil {
						return false, errors.Wrapf(err, errors.ErrFileWrite, "cannot restrict %s", dest)
					}
				}
				return false, nil
			}
		}
	}

	if err := p.fs.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return false, errors.Wrapf(err, errors.ErrDirCreate, "cannot create parent of %s", dest)
	}
	if err := p.fs.WriteFile(dest, plaintext, PlaintextMode); err != nil {
		return false, errors.Wrapf(err, errors.ErrFileWrite, "cannot write %s", dest)
	}
	// WriteFile keeps the mode of a file that already existed
	if err := p.fs.Chmod(dest, PlaintextMode); err != nil {
		return false, errors.Wrapf(err, errors.ErrFileWrite, "cannot restrict %s", dest)
	}
	return true, nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
