// Package prompt provides the interactive side of an apply: profile
// selection, key setup, key mismatch and conflict dialogs.
//
// The engine only sees the Prompter interface. Console implements it on
// the terminal with pterm; when stdin is not a terminal every prompt fails
// with NON_INTERACTIVE and the engine takes its headless path.
package prompt

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/arthur-debert/dotapply/pkg/errors"
	"github.com/arthur-debert/dotapply/pkg/logging"
	"github.com/arthur-debert/dotapply/pkg/secrets"
	"github.com/arthur-debert/dotapply/pkg/symlink"
	"github.com/arthur-debert/dotapply/pkg/types"
	"github.com/mattn/go-isatty"
	"github.com/pterm/pterm"
	"github.com/rs/zerolog"
)

// ProfileSelector picks a profile when none was named
type ProfileSelector interface {
	SelectProfile(ctx context.Context, names []string) (string, error)
}

// Prompter is every dialog the engine may open
type Prompter interface {
	ProfileSelector
	secrets.Prompter
	symlink.ConflictPrompter
}

// option pairs a displayed label with the choice it stands for
type option[T any] struct {
	label  string
	choice T
}

var keySetupOptions = []option[types.KeySetupChoice]{
	{"Generate a new key", types.KeySetupGenerate},
	{"Import an existing key", types.KeySetupImport},
	{"Continue without secrets", types.KeySetupCancel},
}

var mismatchOptions = []option[types.MismatchChoice]{
	{"Skip this file and continue", types.MismatchSkip},
	{"Import a replacement key and retry", types.MismatchImport},
	{"Cancel the remaining apply", types.MismatchCancel},
}

var conflictOptions = []option[types.ConflictChoice]{
	{"Skip this file", types.ConflictSkip},
	{"Overwrite it with the link", types.ConflictOverwrite},
	{"Abort linking", types.ConflictAbort},
}

// Console prompts on the controlling terminal
type Console struct {
	interactive bool
	logger      zerolog.Logger
}

// NewConsole creates a Console. Prompts are only shown when stdin is a
// terminal.
func NewConsole() *Console {
	fd := os.Stdin.Fd()
	return &Console{
		interactive: isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd),
		logger:      logging.GetLogger("prompt"),
	}
}

// Interactive reports whether prompts can be shown
func (c *Console) Interactive() bool {
	return c.interactive
}

func (c *Console) check(ctx context.Context, kind string) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, errors.ErrCancelled, "prompt cancelled")
	}
	if !c.interactive {
		return errors.Newf(errors.ErrNonInteractive, "cannot ask for %s: stdin is not a terminal", kind)
	}
	c.logger.Debug().Str("prompt", kind).Msg("Prompting")
	return nil
}

func selectOption[T any](title string, options []option[T]) (T, error) {
	var zero T
	labels := make([]string, len(options))
	for i, o := range options {
		labels[i] = o.label
	}

	picked, err := pterm.DefaultInteractiveSelect.
		WithOptions(labels).
		WithDefaultText(title).
		Show()
	if err != nil {
		return zero, errors.Wrap(err, errors.ErrNonInteractive, "failed to read selection")
	}
	for _, o := range options {
		if o.label == picked {
			return o.choice, nil
		}
	}
	return zero, errors.Newf(errors.ErrInvalidInput, "unknown selection %q", picked)
}

// SelectProfile asks which profile to apply
func (c *Console) SelectProfile(ctx context.Context, names []string) (string, error) {
	if err := c.check(ctx, "a profile"); err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", errors.New(errors.ErrProfileNotFound, "no profiles configured")
	}
	picked, err := pterm.DefaultInteractiveSelect.
		WithOptions(names).
		WithDefaultText("Profile to apply").
		Show()
	if err != nil {
		return "", errors.Wrap(err, errors.ErrNonInteractive, "failed to read selection")
	}
	return picked, nil
}

// KeySetup asks how to obtain missing key material
func (c *Console) KeySetup(ctx context.Context, profile string) (types.KeySetupChoice, error) {
	if err := c.check(ctx, "key setup"); err != nil {
		return "", err
	}
	pterm.Warning.Printfln("Profile %s has secrets but no decryption key.", profile)
	return selectOption("How should the key be set up?", keySetupOptions)
}

// KeyMaterial reads an age identity without echoing it
func (c *Console) KeyMaterial(ctx context.Context, profile string) (string, error) {
	if err := c.check(ctx, "key material"); err != nil {
		return "", err
	}
	material, err := pterm.DefaultInteractiveTextInput.
		WithMask("*").
		Show(fmt.Sprintf("Paste the age identity for %s", profile))
	if err != nil {
		return "", errors.Wrap(err, errors.ErrNonInteractive, "failed to read key material")
	}
	return strings.TrimSpace(material), nil
}

// KeyMismatch asks what to do with a secret the current key cannot open
func (c *Console) KeyMismatch(ctx context.Context, profile, file string) (types.MismatchChoice, error) {
	if err := c.check(ctx, "key mismatch resolution"); err != nil {
		return "", err
	}
	pterm.Warning.Printfln("The key for profile %s cannot decrypt %s.", profile, file)
	return selectOption("What now?", mismatchOptions)
}

// Conflict asks what to do with real content at a link target
func (c *Console) Conflict(ctx context.Context, target string) (types.ConflictChoice, error) {
	if err := c.check(ctx, "conflict resolution"); err != nil {
		return "", err
	}
	pterm.Warning.Printfln("%s already exists and is not a symlink.", target)
	return selectOption("What now?", conflictOptions)
}
