// pkg/symlink/symlink_test.go
// TEST TYPE: Unit Test
// DEPENDENCIES: MemoryFS, ScriptedPrompter
// PURPOSE: Test the per-target link state machine, conflicts, backups and dry-run

package symlink_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/arthur-debert/dotapply/pkg/errors"
	"github.com/arthur-debert/dotapply/pkg/symlink"
	"github.com/arthur-debert/dotapply/pkg/testutil"
	"github.com/arthur-debert/dotapply/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

type fixture struct {
	env     *testutil.TestEnvironment
	manager *symlink.Manager
	link    symlink.Link
}

func newFixture(t *testing.T, prompter symlink.ConflictPrompter) *fixture {
	t.Helper()
	env := testutil.NewTestEnvironment(t, testutil.EnvMemoryOnly)
	source := env.WriteFile(filepath.Join(env.DotfilesRoot, "work", "files", "abc-.zshrc"), "stored zshrc")

	m := symlink.NewManager(env.FS, prompter).WithClock(func() time.Time { return fixedNow })
	return &fixture{
		env:     env,
		manager: m,
		link:    symlink.Link{Original: "~/.zshrc", Target: env.HomePath(".zshrc"), Source: source},
	}
}

func (f *fixture) converge(t *testing.T, opts symlink.Options) types.ItemOutcome {
	t.Helper()
	outcomes, err := f.manager.Converge(context.Background(), []symlink.Link{f.link}, opts)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	return outcomes[0]
}

func TestInspectStates(t *testing.T) {
	f := newFixture(t, nil)

	rec, err := f.manager.Inspect(f.link.Target, f.link.Source)
	require.NoError(t, err)
	assert.Equal(t, types.SymlinkAbsent, rec.State)

	require.NoError(t, f.env.FS.Symlink(f.link.Source, f.link.Target))
	rec, err = f.manager.Inspect(f.link.Target, f.link.Source)
	require.NoError(t, err)
	assert.Equal(t, types.SymlinkValid, rec.State)

	rec, err = f.manager.Inspect(f.link.Target, "/somewhere/else")
	require.NoError(t, err)
	assert.Equal(t, types.SymlinkBroken, rec.State)
	assert.Equal(t, f.link.Source, rec.Current)

	f.env.WriteHome(".bashrc", "real file")
	rec, err = f.manager.Inspect(f.env.HomePath(".bashrc"), f.link.Source)
	require.NoError(t, err)
	assert.Equal(t, types.SymlinkConflict, rec.State)
	assert.False(t, rec.IsDir)
}

func TestConvergeCreatesAndIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	f.link.Target = f.env.HomePath(".config/zsh/.zshrc")

	out := f.converge(t, symlink.Options{})
	assert.Equal(t, types.ItemSucceeded, out.Status)
	assert.Equal(t, symlink.ActionCreate, out.Action)
	f.env.RequireSymlink(f.link.Target, f.link.Source)

	info, err := f.env.FS.Stat(f.env.HomePath(".config/zsh"))
	require.NoError(t, err)
	assert.True(t, info.IsDir(), "missing parents are created")

	before := f.env.Memory.Mutations()
	out = f.converge(t, symlink.Options{})
	assert.Equal(t, types.ItemUnchanged, out.Status)
	assert.Equal(t, before, f.env.Memory.Mutations(), "second pass performs no mutations")
}

func TestConvergeRepairsWrongAndDanglingLinks(t *testing.T) {
	tests := []struct {
		name string
		dest string
	}{
		{"wrong_target", "/virtual/dotfiles/old/.zshrc"},
		{"dangling", "/nowhere/at/all"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			if tt.name == "wrong_target" {
				f.env.WriteFile(tt.dest, "old")
			}
			require.NoError(t, f.env.FS.Symlink(tt.dest, f.link.Target))

			out := f.converge(t, symlink.Options{})
			assert.Equal(t, types.ItemSucceeded, out.Status)
			assert.Equal(t, symlink.ActionRepair, out.Action)
			f.env.RequireSymlink(f.link.Target, f.link.Source)
		})
	}
}

func TestConvergeConflictWithBackups(t *testing.T) {
	f := newFixture(t, nil)
	f.env.WriteHome(".zshrc", "original bytes")

	out := f.converge(t, symlink.Options{Backups: true})
	assert.Equal(t, types.ItemSucceeded, out.Status)
	assert.Equal(t, symlink.ActionBackup, out.Action)
	f.env.RequireSymlink(f.link.Target, f.link.Source)

	backup, found, err := f.manager.LatestBackup(f.link.Target, "")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, f.env.HomePath(".zshrc.dotapply-backup-20240501T093000"), backup.Path)
	assert.Equal(t, "original bytes", f.env.ReadFile(backup.Path))
}

func TestConvergeBackupAvoidsCollisions(t *testing.T) {
	f := newFixture(t, nil)
	f.env.WriteHome(".zshrc.dotapply-backup-20240501T093000", "earlier backup")
	f.env.WriteHome(".zshrc", "current")

	out := f.converge(t, symlink.Options{Backups: true})
	require.Equal(t, types.ItemSucceeded, out.Status)

	assert.Equal(t, "earlier backup", f.env.ReadFile(f.env.HomePath(".zshrc.dotapply-backup-20240501T093000")))
	assert.Equal(t, "current", f.env.ReadFile(f.env.HomePath(".zshrc.dotapply-backup-20240501T093000.1")))
}

func TestConvergeConflictWithoutBackupsOrForce(t *testing.T) {
	f := newFixture(t, nil)
	f.env.WriteHome(".zshrc", "precious")

	out := f.converge(t, symlink.Options{})
	assert.Equal(t, types.ItemFailed, out.Status)
	assert.Equal(t, errors.ErrConflict, out.Code)
	assert.True(t, out.Unresolved())
	assert.Equal(t, "precious", f.env.ReadFile(f.link.Target), "target bytes are unmodified")
}

func TestConvergeConflictWithForce(t *testing.T) {
	f := newFixture(t, nil)
	f.env.WriteHome(".zshrc", "doomed")

	out := f.converge(t, symlink.Options{Force: true})
	assert.Equal(t, types.ItemSucceeded, out.Status)
	assert.Equal(t, symlink.ActionOverwrite, out.Action)
	f.env.RequireSymlink(f.link.Target, f.link.Source)
}

func TestConvergeConflictPrompt(t *testing.T) {
	tests := []struct {
		name       string
		choice     types.ConflictChoice
		wantStatus types.ItemStatus
		wantLinked bool
	}{
		{"overwrite", types.ConflictOverwrite, types.ItemSucceeded, true},
		{"skip", types.ConflictSkip, types.ItemSkipped, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prompter := testutil.NewScriptedPrompter()
			prompter.Conflicts = []types.ConflictChoice{tt.choice}
			f := newFixture(t, prompter)
			f.env.WriteHome(".zshrc", "local edits")

			out := f.converge(t, symlink.Options{})
			assert.Equal(t, tt.wantStatus, out.Status)
			assert.Equal(t, []string{f.link.Target}, prompter.CallsOf("conflict"))
			if tt.wantLinked {
				f.env.RequireSymlink(f.link.Target, f.link.Source)
			} else {
				assert.Equal(t, "local edits", f.env.ReadFile(f.link.Target))
				assert.True(t, out.Unresolved(), "a skipped conflict stays unresolved")
			}
		})
	}
}

func TestConvergeAbortStopsRemainingLinks(t *testing.T) {
	prompter := testutil.NewScriptedPrompter()
	prompter.Conflicts = []types.ConflictChoice{types.ConflictAbort}
	f := newFixture(t, prompter)
	f.env.WriteHome(".zshrc", "local")

	second := symlink.Link{Original: "~/.vimrc", Target: f.env.HomePath(".vimrc"), Source: f.link.Source}
	outcomes, err := f.manager.Converge(context.Background(), []symlink.Link{f.link, second}, symlink.Options{})

	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCancelled))
	require.Len(t, outcomes, 2)
	assert.Equal(t, types.ItemFailed, outcomes[0].Status)
	assert.Equal(t, types.ItemSkipped, outcomes[1].Status)
	assert.False(t, f.env.Exists(second.Target), "links after an abort are not attempted")
}

func TestConvergeNonInteractivePromptFails(t *testing.T) {
	f := newFixture(t, testutil.NewScriptedPrompter())
	f.env.WriteHome(".zshrc", "local")

	out := f.converge(t, symlink.Options{})
	assert.Equal(t, types.ItemFailed, out.Status)
	assert.Equal(t, errors.ErrConflict, out.Code)
	assert.Equal(t, "local", f.env.ReadFile(f.link.Target))
}

func TestConvergeDryRunDoesNotMutate(t *testing.T) {
	f := newFixture(t, nil)
	f.env.WriteHome(".bashrc", "real")
	require.NoError(t, f.env.FS.Symlink("/nowhere", f.env.HomePath(".vimrc")))

	links := []symlink.Link{
		f.link,
		{Original: "~/.bashrc", Target: f.env.HomePath(".bashrc"), Source: f.link.Source},
		{Original: "~/.vimrc", Target: f.env.HomePath(".vimrc"), Source: f.link.Source},
	}

	before := f.env.Memory.Mutations()
	outcomes, err := f.manager.Converge(context.Background(), links, symlink.Options{Backups: true, DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, before, f.env.Memory.Mutations())
	require.Len(t, outcomes, 3)
	assert.Equal(t, symlink.ActionCreate, outcomes[0].Action)
	assert.Equal(t, symlink.ActionBackup, outcomes[1].Action)
	assert.Equal(t, symlink.ActionRepair, outcomes[2].Action)
	for _, o := range outcomes {
		assert.Equal(t, types.ItemPlanned, o.Status)
	}
}

func TestConvergeMissingSourceLeavesTargetAlone(t *testing.T) {
	f := newFixture(t, nil)
	f.env.WriteHome(".zshrc", "keep me")
	f.link.Source = filepath.Join(f.env.DotfilesRoot, "work", "files", "missing")

	out := f.converge(t, symlink.Options{Backups: true})
	assert.Equal(t, types.ItemFailed, out.Status)
	assert.Equal(t, errors.ErrMappingNotFound, out.Code)
	assert.Equal(t, "keep me", f.env.ReadFile(f.link.Target))
}

func TestConvergeDirectoryLink(t *testing.T) {
	f := newFixture(t, nil)
	source := filepath.Join(f.env.DotfilesRoot, "work", "files", "def-nvim")
	f.env.WriteFile(filepath.Join(source, "init.lua"), "vim.o.number = true")
	f.env.WriteHome(".config/nvim/init.vim", "old config")

	dir := symlink.Link{Original: "~/.config/nvim", Target: f.env.HomePath(".config/nvim"), Source: source}
	outcomes, err := f.manager.Converge(context.Background(), []symlink.Link{dir}, symlink.Options{Backups: true})
	require.NoError(t, err)
	require.Equal(t, types.ItemSucceeded, outcomes[0].Status)

	f.env.RequireSymlink(dir.Target, source)
	assert.Equal(t, "old config", f.env.ReadFile(f.env.HomePath(".config/nvim.dotapply-backup-20240501T093000/init.vim")))
}

func TestConvergeCancelledContext(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes, err := f.manager.Converge(ctx, []symlink.Link{f.link}, symlink.Options{})
	require.Error(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, types.ItemSkipped, outcomes[0].Status)
	assert.False(t, f.env.Exists(f.link.Target))
}
