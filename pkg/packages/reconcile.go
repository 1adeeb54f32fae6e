// Package packages reconciles a profile's desired package set with what is
// already installed, installing only the difference.
//
// Desired names are plain formula names or "cask:<name>" for bundled
// applications. Installed state is queried once per run and each kind is
// installed in at most one batch.
package packages

import (
	"context"
	"path"
	"sort"
	"strings"

	"github.com/arthur-debert/dotapply/pkg/errors"
	"github.com/arthur-debert/dotapply/pkg/logging"
	"github.com/arthur-debert/dotapply/pkg/types"
	"github.com/rs/zerolog"
)

// CaskPrefix marks a desired package as a bundled application
const CaskPrefix = "cask:"

// ActionInstall is recorded on outcomes for installed packages
const ActionInstall = "install"

// Manager is the package manager capability
type Manager interface {
	ListInstalled(ctx context.Context) ([]string, error)
	Install(ctx context.Context, names []string, kind types.PackageKind) error
}

// Package is one desired package
type Package struct {
	// Spec is the name as written in the profile
	Spec string
	Name string
	Kind types.PackageKind
}

// Parse splits a profile entry into name and kind
func Parse(spec string) Package {
	spec = strings.TrimSpace(spec)
	if name, ok := strings.CutPrefix(spec, CaskPrefix); ok {
		return Package{Spec: spec, Name: strings.TrimSpace(name), Kind: types.PackageCask}
	}
	return Package{Spec: spec, Name: spec, Kind: types.PackageFormula}
}

// InstalledName is the name brew lists the package under once installed:
// the last segment of a tap-qualified name such as "user/tap/tool"
func (p Package) InstalledName() string {
	return path.Base(p.Name)
}

// Plan is the difference between desired and installed packages
type Plan struct {
	Installed []Package
	Missing   map[types.PackageKind][]Package
}

// Kinds returns the kinds with missing packages in a fixed order
func (p Plan) Kinds() []types.PackageKind {
	var kinds []types.PackageKind
	for _, k := range []types.PackageKind{types.PackageFormula, types.PackageCask} {
		if len(p.Missing[k]) > 0 {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// Diff computes desired − installed, partitioned by kind. Duplicate and
// empty entries are dropped. Tap-qualified names match on their last
// segment.
func Diff(desired, installed []string) Plan {
	have := make(map[string]bool, len(installed))
	for _, name := range installed {
		have[path.Base(name)] = true
	}

	plan := Plan{Missing: make(map[types.PackageKind][]Package)}
	seen := make(map[string]bool)
	for _, spec := range desired {
		pkg := Parse(spec)
		if pkg.Name == "" || seen[string(pkg.Kind)+"/"+pkg.Name] {
			continue
		}
		seen[string(pkg.Kind)+"/"+pkg.Name] = true

		if have[pkg.InstalledName()] {
			plan.Installed = append(plan.Installed, pkg)
			continue
		}
		plan.Missing[pkg.Kind] = append(plan.Missing[pkg.Kind], pkg)
	}

	for _, pkgs := range plan.Missing {
		sort.Slice(pkgs, func(i, j int) bool { return pkgs[i].Name < pkgs[j].Name })
	}
	return plan
}

// Reconciler ensures desired packages are installed
type Reconciler struct {
	manager Manager
	logger  zerolog.Logger
}

// NewReconciler creates a Reconciler on top of manager
func NewReconciler(manager Manager) *Reconciler {
	return &Reconciler{manager: manager, logger: logging.GetLogger("apply.packages")}
}

// Reconcile installs whatever in desired is not yet installed. A failed
// batch marks each of its packages failed with the attempted list; other
// batches still run and nothing is rolled back.
func (r *Reconciler) Reconcile(ctx context.Context, desired []string, dryRun bool) []types.ItemOutcome {
	if len(desired) == 0 {
		return nil
	}

	done := logging.LogOperationStart(r.logger, "packages.reconcile")
	defer done()

	installed, err := r.manager.ListInstalled(ctx)
	if err != nil {
		err = errors.Wrap(err, errors.ErrPackageList, "cannot list installed packages")
		r.logger.Error().Err(err).Msg("Package listing failed")
		var outcomes []types.ItemOutcome
		for _, spec := range desired {
			outcomes = append(outcomes, types.NewOutcome(types.StagePackages, spec, types.ItemFailed, ActionInstall, err))
		}
		return outcomes
	}

	plan := Diff(desired, installed)
	r.logger.Debug().
		Int("installed", len(plan.Installed)).
		Int("missing", len(plan.Missing[types.PackageFormula])+len(plan.Missing[types.PackageCask])).
		Msg("Computed package plan")

	var outcomes []types.ItemOutcome
	for _, pkg := range plan.Installed {
		outcomes = append(outcomes, types.NewOutcome(types.StagePackages, pkg.Spec, types.ItemUnchanged, "", nil).
			WithDetail("already installed"))
	}

	for _, kind := range plan.Kinds() {
		batch := plan.Missing[kind]
		names := make([]string, len(batch))
		for i, pkg := range batch {
			names[i] = pkg.Name
		}

		if dryRun {
			for _, pkg := range batch {
				outcomes = append(outcomes, types.NewOutcome(types.StagePackages, pkg.Spec, types.ItemPlanned, ActionInstall, nil).
					WithDetail("install " + string(kind)))
			}
			continue
		}

		r.logger.Info().Str("kind", string(kind)).Strs("packages", names).Msg("Installing packages")
		if err := r.manager.Install(ctx, names, kind); err != nil {
			failure := errors.PackageInstallFailed(names, err)
			r.logger.Error().Err(err).Strs("packages", names).Msg("Package batch failed")
			for _, pkg := range batch {
				outcomes = append(outcomes, types.NewOutcome(types.StagePackages, pkg.Spec, types.ItemFailed, ActionInstall, failure))
			}
			continue
		}
		for _, pkg := range batch {
			outcomes = append(outcomes, types.NewOutcome(types.StagePackages, pkg.Spec, types.ItemSucceeded, ActionInstall, nil))
		}
	}
	return outcomes
}
