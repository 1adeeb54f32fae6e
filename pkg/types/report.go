package types

import (
	"github.com/arthur-debert/dotapply/pkg/errors"
)

// Stage names one step of an apply, in execution order
type Stage string

const (
	StageBootstrap Stage = "bootstrap"
	StageSecrets   Stage = "secrets"
	StagePackages  Stage = "packages"
	StageSymlinks  Stage = "symlinks"
)

// Stages lists every stage in the fixed order an apply runs them
var Stages = []Stage{StageBootstrap, StageSecrets, StagePackages, StageSymlinks}

// ApplyOptions controls one apply invocation
type ApplyOptions struct {
	Profile       string
	SkipBootstrap bool
	SkipSecrets   bool
	SkipPackages  bool
	Force         bool
	DryRun        bool
}

// Skips reports whether the options turn off the given stage
func (o ApplyOptions) Skips(stage Stage) bool {
	switch stage {
	case StageBootstrap:
		return o.SkipBootstrap
	case StageSecrets:
		return o.SkipSecrets
	case StagePackages:
		return o.SkipPackages
	}
	return false
}

// ItemStatus is the terminal state of a single file, secret or package
type ItemStatus string

const (
	ItemSucceeded ItemStatus = "succeeded"
	ItemUnchanged ItemStatus = "unchanged"
	ItemPlanned   ItemStatus = "planned"
	ItemSkipped   ItemStatus = "skipped"
	ItemFailed    ItemStatus = "failed"
)

// ItemOutcome is the per-item result of a stage. Errors are carried as
// values so that one item never aborts its siblings.
type ItemOutcome struct {
	Stage  Stage      `yaml:"stage"`
	Item   string     `yaml:"item"`
	Status ItemStatus `yaml:"status"`
	Action string     `yaml:"action,omitempty"`
	Detail string     `yaml:"detail,omitempty"`

	Code    errors.ErrorCode `yaml:"code,omitempty"`
	Message string           `yaml:"error,omitempty"`
	Err     error            `yaml:"-"`
}

// Unresolved reports whether the item leaves an open failure behind.
// A skip that carries an error (a skipped key mismatch, a declined
// conflict) is unresolved. Exclusions and dry-run plans are not.
func (o ItemOutcome) Unresolved() bool {
	if o.Status == ItemFailed {
		return true
	}
	return o.Status == ItemSkipped && o.Err != nil
}

// NewOutcome builds an outcome and copies the error code out of err
func NewOutcome(stage Stage, item string, status ItemStatus, action string, err error) ItemOutcome {
	out := ItemOutcome{Stage: stage, Item: item, Status: status, Action: action}
	if err != nil {
		out.Err = err
		out.Code = errors.GetErrorCode(err)
		out.Message = err.Error()
	}
	return out
}

// WithDetail sets a human readable detail on the outcome
func (o ItemOutcome) WithDetail(detail string) ItemOutcome {
	o.Detail = detail
	return o
}

// StageReport holds the outcomes of one stage
type StageReport struct {
	Stage Stage `yaml:"stage"`
	// Ran is false when the stage was skipped by option, had nothing to do,
	// or did not start because an earlier stage aborted.
	Ran        bool          `yaml:"ran"`
	SkipReason string        `yaml:"skip_reason,omitempty"`
	Aborted    bool          `yaml:"aborted,omitempty"`
	Items      []ItemOutcome `yaml:"items,omitempty"`
}

// Summary counts items by outcome. Failed counts every unresolved item,
// so a skipped key mismatch shows up in both Skipped and Failed.
type Summary struct {
	Succeeded int `yaml:"succeeded"`
	Unchanged int `yaml:"unchanged"`
	Planned   int `yaml:"planned"`
	Skipped   int `yaml:"skipped"`
	Failed    int `yaml:"failed"`
}

// ApplyReport aggregates one apply invocation
type ApplyReport struct {
	Profile   string           `yaml:"profile"`
	DryRun    bool             `yaml:"dry_run"`
	Cancelled bool             `yaml:"cancelled,omitempty"`
	Bootstrap *BootstrapScript `yaml:"bootstrap,omitempty"`
	Stages    []StageReport    `yaml:"stages"`
	Summary   Summary          `yaml:"summary"`
	ExitCode  int              `yaml:"exit_code"`
}

// Stage returns the report for the named stage, or nil
func (r *ApplyReport) Stage(stage Stage) *StageReport {
	for i := range r.Stages {
		if r.Stages[i].Stage == stage {
			return &r.Stages[i]
		}
	}
	return nil
}

// Items returns every outcome across stages in execution order
func (r *ApplyReport) Items() []ItemOutcome {
	var items []ItemOutcome
	for _, s := range r.Stages {
		items = append(items, s.Items...)
	}
	return items
}

// Finalize computes the summary and exit code from the stage outcomes
func (r *ApplyReport) Finalize() {
	var sum Summary
	for _, item := range r.Items() {
		switch item.Status {
		case ItemSucceeded:
			sum.Succeeded++
		case ItemUnchanged:
			sum.Unchanged++
		case ItemPlanned:
			sum.Planned++
		case ItemSkipped:
			sum.Skipped++
		}
		if item.Unresolved() {
			sum.Failed++
		}
	}
	r.Summary = sum

	r.ExitCode = 0
	if sum.Failed > 0 || r.Cancelled {
		r.ExitCode = 1
	}
}

// Success reports whether the apply left nothing unresolved
func (r *ApplyReport) Success() bool {
	return r.ExitCode == 0
}
