package symlink

import (
	"context"

	"github.com/arthur-debert/dotapply/pkg/errors"
	"github.com/arthur-debert/dotapply/pkg/logging"
	"github.com/arthur-debert/dotapply/pkg/types"
)

// Uninstall removes links created by Converge and restores the most
// recent backup of each target. Targets that are not links to their
// source are left untouched.
func (m *Manager) Uninstall(ctx context.Context, links []Link, opts Options) []types.ItemOutcome {
	done := logging.LogOperationStart(m.logger, "symlinks.uninstall")
	defer done()

	outcomes := make([]types.ItemOutcome, 0, len(links))
	for _, link := range links {
		if ctx.Err() != nil {
			outcomes = append(outcomes, notAttempted([]Link{link}, errors.Wrap(ctx.Err(), errors.ErrCancelled, "unlink cancelled"))...)
			continue
		}
		outcomes = append(outcomes, m.UninstallOne(link, opts))
	}
	return outcomes
}

// UninstallOne reverses a single link. Without a backup the link is still
// removed and the outcome carries BACKUP_UNAVAILABLE as a warning.
func (m *Manager) UninstallOne(link Link, opts Options) types.ItemOutcome {
	logger := m.logger.With().Str("target", link.Target).Logger()
	outcome := func(status types.ItemStatus, action string, err error) types.ItemOutcome {
		return types.NewOutcome(types.StageSymlinks, link.Original, status, action, err)
	}

	rec, err := m.Inspect(link.Target, link.Source)
	if err != nil {
		return outcome(types.ItemFailed, ActionUnlink, err)
	}

	switch rec.State {
	case types.SymlinkAbsent:
		return outcome(types.ItemUnchanged, "", nil).WithDetail("not linked")
	case types.SymlinkConflict:
		return outcome(types.ItemSkipped, "", nil).WithDetail("not a symlink, left in place")
	case types.SymlinkBroken:
		if !sameTarget(link.Target, rec.Current, link.Source) {
			return outcome(types.ItemSkipped, "", nil).WithDetail("links to " + rec.Current + ", left in place")
		}
	}

	backup, found, err := m.LatestBackup(link.Target, opts.suffix())
	if err != nil {
		return outcome(types.ItemFailed, ActionUnlink, err)
	}

	if opts.DryRun {
		if found {
			return outcome(types.ItemPlanned, ActionRestore, nil).WithDetail("restore " + backup.Path)
		}
		return outcome(types.ItemPlanned, ActionUnlink, nil)
	}

	if err := m.fs.Remove(link.Target); err != nil {
		return outcome(types.ItemFailed, ActionUnlink, errors.Wrapf(err, errors.ErrFileWrite, "cannot remove link %s", link.Target))
	}

	if !found {
		logger.Warn().Msg("Removed link, no backup to restore")
		return outcome(types.ItemSucceeded, ActionUnlink, errors.Newf(errors.ErrBackupUnavailable,
			"no backup of %s to restore; target left absent", link.Target).WithDetail("path", link.Target))
	}

	if err := m.fs.Rename(backup.Path, link.Target); err != nil {
		return outcome(types.ItemFailed, ActionRestore, errors.Wrapf(err, errors.ErrFileWrite, "cannot restore %s", backup.Path))
	}
	logger.Info().Str("backup", backup.Path).Msg("Restored backup")
	return outcome(types.ItemSucceeded, ActionRestore, nil).WithDetail("restored " + backup.Path)
}
