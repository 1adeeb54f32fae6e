package packages

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/arthur-debert/dotapply/pkg/errors"
	"github.com/arthur-debert/dotapply/pkg/logging"
	"github.com/arthur-debert/dotapply/pkg/types"
	"github.com/rs/zerolog"
)

// Brew implements Manager by running the brew binary
type Brew struct {
	Binary string
	logger zerolog.Logger
}

// NewBrew creates a Brew manager. An empty binary defaults to "brew" on PATH.
func NewBrew(binary string) *Brew {
	if binary == "" {
		binary = "brew"
	}
	return &Brew{Binary: binary, logger: logging.GetLogger("packages.brew")}
}

// ListInstalled returns installed formulae and casks. A missing brew
// binary is an error: nothing can be installed without it either.
func (b *Brew) ListInstalled(ctx context.Context) ([]string, error) {
	formulae, err := b.list(ctx, "--formula")
	if err != nil {
		return nil, err
	}
	casks, err := b.list(ctx, "--cask")
	if err != nil {
		// cask support is optional on Linux
		b.logger.Debug().Err(err).Msg("Listing casks failed, assuming none")
		return formulae, nil
	}
	return append(formulae, casks...), nil
}

func (b *Brew) list(ctx context.Context, flag string) ([]string, error) {
	args := []string{"list", "-1", flag}
	logging.LogCommand(b.logger, b.Binary, args)

	out, err := exec.CommandContext(ctx, b.Binary, args...).Output()
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrPackageList, "%s %s failed", b.Binary, strings.Join(args, " "))
	}

	var names []string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		if name := strings.TrimSpace(scanner.Text()); name != "" {
			names = append(names, name)
		}
	}
	return names, scanner.Err()
}

// Install runs one brew install for the whole batch
func (b *Brew) Install(ctx context.Context, names []string, kind types.PackageKind) error {
	args := []string{"install"}
	if kind == types.PackageCask {
		args = append(args, "--cask")
	}
	args = append(args, names...)
	logging.LogCommand(b.logger, b.Binary, args)

	output, err := exec.CommandContext(ctx, b.Binary, args...).CombinedOutput()
	if err != nil {
		b.logger.Error().Err(err).Str("output", string(output)).Msg("brew install failed")
		return errors.Wrapf(err, errors.ErrPackageInstallFailed, "%s install failed: %s",
			b.Binary, strings.TrimSpace(lastLine(output)))
	}
	return nil
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	return lines[len(lines)-1]
}
