// Package symlink converges link targets under the home directory onto
// their resolved storage locations.
//
// Each target moves through a small state machine: an absent target is
// linked, a correct link is left alone, a wrong or dangling link is
// repaired, and non-symlink content is a conflict that is backed up,
// force-overwritten, or refused.
package symlink

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/arthur-debert/dotapply/pkg/errors"
	"github.com/arthur-debert/dotapply/pkg/logging"
	"github.com/arthur-debert/dotapply/pkg/types"
	"github.com/rs/zerolog"
)

// DefaultBackupSuffix tags backup files next to their target
const DefaultBackupSuffix = "dotapply-backup"

// Action names recorded on outcomes
const (
	ActionCreate    = "create"
	ActionRepair    = "repair"
	ActionBackup    = "backup"
	ActionOverwrite = "overwrite"
	ActionUnlink    = "unlink"
	ActionRestore   = "restore"
)

// Link pairs a target path with the storage path it should point at
type Link struct {
	// Original is the tracked path as written in the profile
	Original string
	Target   string
	Source   string
}

// Options control one convergence or uninstall pass
type Options struct {
	Backups      bool
	BackupSuffix string
	Force        bool
	DryRun       bool
}

func (o Options) suffix() string {
	if o.BackupSuffix == "" {
		return DefaultBackupSuffix
	}
	return o.BackupSuffix
}

// ConflictPrompter asks what to do with a target occupied by real content
type ConflictPrompter interface {
	Conflict(ctx context.Context, target string) (types.ConflictChoice, error)
}

// Manager applies link state machines on a filesystem
type Manager struct {
	fs       types.FS
	prompter ConflictPrompter
	now      func() time.Time
	logger   zerolog.Logger
}

// NewManager creates a Manager. prompter may be nil for headless runs, in
// which case unresolvable conflicts fail.
func NewManager(fs types.FS, prompter ConflictPrompter) *Manager {
	return &Manager{
		fs:       fs,
		prompter: prompter,
		now:      time.Now,
		logger:   logging.GetLogger("apply.symlink"),
	}
}

// WithClock sets the time source used for backup suffixes
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Inspect computes the current state of target relative to source
func (m *Manager) Inspect(target, source string) (types.SymlinkRecord, error) {
	rec := types.SymlinkRecord{Target: target, Source: source}

	info, err := m.fs.Lstat(target)
	if err != nil {
		if os.IsNotExist(err) {
			rec.State = types.SymlinkAbsent
			return rec, nil
		}
		return rec, errors.Wrapf(err, errors.ErrFileAccess, "cannot inspect %s", target)
	}

	if info.Mode()&os.ModeSymlink == 0 {
		rec.State = types.SymlinkConflict
		rec.IsDir = info.IsDir()
		return rec, nil
	}

	current, err := m.fs.Readlink(target)
	if err != nil {
		return rec, errors.Wrapf(err, errors.ErrFileAccess, "cannot read link %s", target)
	}
	rec.Current = current

	if sameTarget(target, current, source) {
		if _, err := m.fs.Stat(target); err == nil {
			rec.State = types.SymlinkValid
			return rec, nil
		}
	}
	rec.State = types.SymlinkBroken
	return rec, nil
}

func sameTarget(link, current, source string) bool {
	if !filepath.IsAbs(current) {
		current = filepath.Join(filepath.Dir(link), current)
	}
	return filepath.Clean(current) == filepath.Clean(source)
}

// Converge brings every link in line with its source. Per-item failures are
// returned as outcomes. The error is non-nil only when the pass was aborted,
// either by the user at a conflict prompt or by ctx; links after that point
// are reported as not attempted.
func (m *Manager) Converge(ctx context.Context, links []Link, opts Options) ([]types.ItemOutcome, error) {
	done := logging.LogOperationStart(m.logger, "symlinks.converge")
	defer done()

	outcomes := make([]types.ItemOutcome, 0, len(links))
	for i, link := range links {
		if err := ctx.Err(); err != nil {
			abort := errors.Wrap(err, errors.ErrCancelled, "apply cancelled")
			return append(outcomes, notAttempted(links[i:], abort)...), abort
		}

		outcome, abort := m.ConvergeOne(ctx, link, opts)
		outcomes = append(outcomes, outcome)
		if abort != nil {
			return append(outcomes, notAttempted(links[i+1:], abort)...), abort
		}
	}
	return outcomes, nil
}

func notAttempted(links []Link, cause error) []types.ItemOutcome {
	out := make([]types.ItemOutcome, 0, len(links))
	for _, l := range links {
		out = append(out, types.NewOutcome(types.StageSymlinks, l.Original, types.ItemSkipped, "", cause).
			WithDetail("not attempted"))
	}
	return out
}

// ConvergeOne runs the state machine for a single link. A non-nil error
// means the user asked to abort the stage.
func (m *Manager) ConvergeOne(ctx context.Context, link Link, opts Options) (types.ItemOutcome, error) {
	logger := m.logger.With().Str("target", link.Target).Str("source", link.Source).Logger()
	outcome := func(status types.ItemStatus, action string, err error) types.ItemOutcome {
		return types.NewOutcome(types.StageSymlinks, link.Original, status, action, err)
	}

	if _, err := m.fs.Stat(link.Source); err != nil {
		return outcome(types.ItemFailed, "", errors.Wrapf(err, errors.ErrMappingNotFound,
			"storage for %s is missing at %s", link.Original, link.Source)), nil
	}

	rec, err := m.Inspect(link.Target, link.Source)
	if err != nil {
		return outcome(types.ItemFailed, "", err), nil
	}
	logger.Trace().Str("state", string(rec.State)).Msg("Inspected target")

	switch rec.State {
	case types.SymlinkValid:
		return outcome(types.ItemUnchanged, "", nil), nil

	case types.SymlinkAbsent:
		if opts.DryRun {
			return outcome(types.ItemPlanned, ActionCreate, nil), nil
		}
		if err := m.link(link); err != nil {
			return outcome(types.ItemFailed, ActionCreate, err), nil
		}
		logger.Info().Msg("Created symlink")
		return outcome(types.ItemSucceeded, ActionCreate, nil), nil

	case types.SymlinkBroken:
		if opts.DryRun {
			return outcome(types.ItemPlanned, ActionRepair, nil).WithDetail("currently -> " + rec.Current), nil
		}
		if err := m.fs.Remove(link.Target); err != nil {
			return outcome(types.ItemFailed, ActionRepair, errors.Wrapf(err, errors.ErrSymlinkCreate,
				"cannot remove stale link %s", link.Target)), nil
		}
		if err := m.link(link); err != nil {
			return outcome(types.ItemFailed, ActionRepair, err), nil
		}
		logger.Info().Str("previous", rec.Current).Msg("Repaired symlink")
		return outcome(types.ItemSucceeded, ActionRepair, nil), nil
	}

	return m.resolveConflict(ctx, link, rec, opts, logger)
}

func (m *Manager) resolveConflict(ctx context.Context, link Link, rec types.SymlinkRecord, opts Options, logger zerolog.Logger) (types.ItemOutcome, error) {
	outcome := func(status types.ItemStatus, action string, err error) types.ItemOutcome {
		return types.NewOutcome(types.StageSymlinks, link.Original, status, action, err)
	}

	switch {
	case opts.Backups:
		backup, err := m.nextBackupPath(link.Target, opts.suffix())
		if err != nil {
			return outcome(types.ItemFailed, ActionBackup, err), nil
		}
		if opts.DryRun {
			return outcome(types.ItemPlanned, ActionBackup, nil).WithDetail("backup to " + backup), nil
		}
		if err := m.fs.Rename(link.Target, backup); err != nil {
			return outcome(types.ItemFailed, ActionBackup, errors.Wrapf(err, errors.ErrFileWrite,
				"cannot back up %s", link.Target)), nil
		}
		logger.Info().Str("backup", backup).Msg("Backed up existing content")
		if err := m.link(link); err != nil {
			return outcome(types.ItemFailed, ActionBackup, err).WithDetail("backup at " + backup), nil
		}
		return outcome(types.ItemSucceeded, ActionBackup, nil).WithDetail("backup at " + backup), nil

	case opts.Force:
		if opts.DryRun {
			return outcome(types.ItemPlanned, ActionOverwrite, nil), nil
		}
		return m.overwrite(link, logger), nil
	}

	conflict := errors.Conflict(link.Target)
	if opts.DryRun || m.prompter == nil {
		return outcome(types.ItemFailed, "", conflict), nil
	}

	choice, err := m.prompter.Conflict(ctx, link.Target)
	if err != nil {
		logger.Debug().Err(err).Msg("Conflict prompt unavailable")
		return outcome(types.ItemFailed, "", conflict), nil
	}

	switch choice {
	case types.ConflictOverwrite:
		return m.overwrite(link, logger), nil
	case types.ConflictAbort:
		logger.Warn().Msg("Aborted at conflict")
		return outcome(types.ItemFailed, "", conflict),
			errors.Newf(errors.ErrCancelled, "aborted at conflict on %s", link.Target)
	default:
		return outcome(types.ItemSkipped, "", conflict), nil
	}
}

func (m *Manager) overwrite(link Link, logger zerolog.Logger) types.ItemOutcome {
	if err := m.fs.RemoveAll(link.Target); err != nil {
		return types.NewOutcome(types.StageSymlinks, link.Original, types.ItemFailed, ActionOverwrite,
			errors.Wrapf(err, errors.ErrFileWrite, "cannot remove %s", link.Target))
	}
	if err := m.link(link); err != nil {
		return types.NewOutcome(types.StageSymlinks, link.Original, types.ItemFailed, ActionOverwrite, err)
	}
	logger.Warn().Msg("Overwrote existing content")
	return types.NewOutcome(types.StageSymlinks, link.Original, types.ItemSucceeded, ActionOverwrite, nil)
}

// link creates parent directories and the symlink itself
func (m *Manager) link(link Link) error {
	if err := m.fs.MkdirAll(filepath.Dir(link.Target), 0755); err != nil {
		return errors.Wrapf(err, errors.ErrDirCreate, "cannot create parent of %s", link.Target)
	}
	if err := m.fs.Symlink(link.Source, link.Target); err != nil {
		return errors.Wrapf(err, errors.ErrSymlinkCreate, "cannot link %s", link.Target)
	}
	return nil
}
