// Package apply sequences the engine components for one profile.
//
// An apply runs four stages in a fixed order: bootstrap script generation
// and classification, secret decryption, package installation and, last,
// symlink convergence. Each stage reports per-item outcomes; only an
// explicit cancel or abort stops the stages that have not started yet.
// Nothing already done is rolled back.
package apply

import (
	"context"

	"github.com/arthur-debert/dotapply/pkg/bootstrap"
	"github.com/arthur-debert/dotapply/pkg/config"
	"github.com/arthur-debert/dotapply/pkg/errors"
	"github.com/arthur-debert/dotapply/pkg/logging"
	"github.com/arthur-debert/dotapply/pkg/mapping"
	"github.com/arthur-debert/dotapply/pkg/packages"
	"github.com/arthur-debert/dotapply/pkg/paths"
	"github.com/arthur-debert/dotapply/pkg/secrets"
	"github.com/arthur-debert/dotapply/pkg/symlink"
	"github.com/arthur-debert/dotapply/pkg/types"
	"github.com/rs/zerolog"
)

// ActionGenerate is recorded on the bootstrap script outcome
const ActionGenerate = "generate"

// Prompter is the set of dialogs an apply may open
type Prompter interface {
	secrets.Prompter
	symlink.ConflictPrompter
}

// Deps are the collaborators of an Orchestrator. Prompter may be nil for
// headless runs.
type Deps struct {
	FS       types.FS
	Paths    *paths.Paths
	Oracle   secrets.Oracle
	Packages packages.Manager
	Prompter Prompter
	Settings config.Settings
}

// Orchestrator runs applies and unlinks
type Orchestrator struct {
	deps       Deps
	generator  *bootstrap.Generator
	pipeline   *secrets.Pipeline
	reconciler *packages.Reconciler
	links      *symlink.Manager
	logger     zerolog.Logger
}

// New wires the components from deps
func New(deps Deps) *Orchestrator {
	var (
		secretPrompter   secrets.Prompter
		conflictPrompter symlink.ConflictPrompter
	)
	if deps.Prompter != nil {
		secretPrompter = deps.Prompter
		conflictPrompter = deps.Prompter
	}
	return &Orchestrator{
		deps:       deps,
		generator:  bootstrap.NewGenerator(deps.FS, deps.Paths),
		pipeline:   secrets.NewPipeline(deps.FS, deps.Paths, deps.Oracle, secretPrompter),
		reconciler: packages.NewReconciler(deps.Packages),
		links:      symlink.NewManager(deps.FS, conflictPrompter),
		logger:     logging.GetLogger("apply"),
	}
}

// Generator exposes the bootstrap generator, mainly to set its clock
func (o *Orchestrator) Generator() *bootstrap.Generator { return o.generator }

// Links exposes the symlink manager, mainly to set its clock
func (o *Orchestrator) Links() *symlink.Manager { return o.links }

func (o *Orchestrator) linkOptions(opts types.ApplyOptions) symlink.Options {
	return symlink.Options{
		Backups:      o.deps.Settings.Backups,
		BackupSuffix: o.deps.Settings.BackupSuffix,
		Force:        opts.Force,
		DryRun:       opts.DryRun,
	}
}

// Apply runs every stage for profile. The returned error is reserved for
// problems that prevent the apply from starting at all; everything that
// happens once stages run is in the report.
func (o *Orchestrator) Apply(ctx context.Context, profile types.Profile, opts types.ApplyOptions) (*types.ApplyReport, error) {
	logger := o.logger.With().Str("profile", profile.Name).Bool("dry_run", opts.DryRun).Logger()

	if !profile.Enabled && !opts.Force {
		return nil, errors.Newf(errors.ErrInvalidInput, "profile %s is disabled", profile.Name).
			WithDetail("profile", profile.Name)
	}

	resolver, err := mapping.NewResolver(o.deps.FS, o.deps.Paths, profile)
	if err != nil {
		return nil, err
	}

	done := logging.LogOperationStart(logger, "apply")
	defer done()

	report := &types.ApplyReport{Profile: profile.Name, DryRun: opts.DryRun}
	for _, stage := range types.Stages {
		report.Stages = append(report.Stages, types.StageReport{Stage: stage})
	}

	var abort error
	for i := range report.Stages {
		sr := &report.Stages[i]

		if abort == nil && ctx.Err() != nil {
			abort = errors.Wrap(ctx.Err(), errors.ErrCancelled, "apply cancelled")
		}
		switch {
		case abort != nil:
			sr.Aborted = true
			sr.SkipReason = "apply cancelled"
			continue
		case opts.Skips(sr.Stage):
			sr.SkipReason = "skipped by option"
			continue
		}
		if reason := idle(sr.Stage, profile); reason != "" {
			sr.SkipReason = reason
			continue
		}

		sr.Ran = true
		logger.Debug().Str("stage", string(sr.Stage)).Msg("Stage starting")
		switch sr.Stage {
		case types.StageBootstrap:
			sr.Items, report.Bootstrap = o.runBootstrap(profile, opts)
		case types.StageSecrets:
			var res secrets.Result
			res, abort = o.pipeline.Run(ctx, profile, resolver, opts.DryRun)
			sr.Items = res.Outcomes
		case types.StagePackages:
			sr.Items = o.reconciler.Reconcile(ctx, profile.HomebrewPackages, opts.DryRun)
		case types.StageSymlinks:
			sr.Items, abort = o.runSymlinks(ctx, profile, resolver, opts)
		}
		if abort != nil {
			logger.Warn().Err(abort).Str("stage", string(sr.Stage)).Msg("Stage aborted, remaining stages will not run")
		}
	}

	report.Cancelled = abort != nil
	report.Finalize()
	logger.Info().
		Int("succeeded", report.Summary.Succeeded).
		Int("skipped", report.Summary.Skipped).
		Int("failed", report.Summary.Failed).
		Bool("cancelled", report.Cancelled).
		Msg("Apply finished")
	return report, nil
}

// idle returns why a stage has nothing to do for profile, or ""
func idle(stage types.Stage, profile types.Profile) string {
	switch stage {
	case types.StageSecrets:
		if !profile.HasSecrets() {
			return "no secrets"
		}
	case types.StagePackages:
		if len(profile.HomebrewPackages) == 0 {
			return "no packages"
		}
	case types.StageSymlinks:
		if len(profile.Files) == 0 && len(profile.Directories) == 0 {
			return "no files"
		}
	}
	return ""
}

// runBootstrap generates and classifies the script. Its risk level is
// carried as an error on a non-failing outcome since the script is never
// run here.
func (o *Orchestrator) runBootstrap(profile types.Profile, opts types.ApplyOptions) ([]types.ItemOutcome, *types.BootstrapScript) {
	script, err := o.generator.Generate(profile, opts.DryRun)
	if err != nil {
		return []types.ItemOutcome{types.NewOutcome(types.StageBootstrap, script.Path, types.ItemFailed, ActionGenerate, err)}, nil
	}

	status := types.ItemSucceeded
	if !script.Written {
		status = types.ItemPlanned
	}
	outcome := types.NewOutcome(types.StageBootstrap, script.Path, status, ActionGenerate, bootstrap.ClassificationError(script)).
		WithDetail(script.Level.String())
	return []types.ItemOutcome{outcome}, &script
}

func (o *Orchestrator) runSymlinks(ctx context.Context, profile types.Profile, resolver *mapping.Resolver, opts types.ApplyOptions) ([]types.ItemOutcome, error) {
	plan := o.planLinks(profile, resolver)
	converged, err := o.links.Converge(ctx, plan.links, o.linkOptions(opts))
	return plan.merge(converged), err
}

// Unlink reverses the profile's links and restores backups where they
// exist. Secrets and packages are left alone.
func (o *Orchestrator) Unlink(ctx context.Context, profile types.Profile, dryRun bool) ([]types.ItemOutcome, error) {
	resolver, err := mapping.NewResolver(o.deps.FS, o.deps.Paths, profile)
	if err != nil {
		return nil, err
	}

	logger := o.logger.With().Str("profile", profile.Name).Bool("dry_run", dryRun).Logger()
	done := logging.LogOperationStart(logger, "unlink")
	defer done()

	plan := o.planLinks(profile, resolver)
	opts := o.linkOptions(types.ApplyOptions{DryRun: dryRun})
	return plan.merge(o.links.Uninstall(ctx, plan.links, opts)), nil
}
