package types

import "time"

// SymlinkState is the observed state of a link target
type SymlinkState string

const (
	// SymlinkAbsent means nothing exists at the target path
	SymlinkAbsent SymlinkState = "absent"
	// SymlinkValid means the target is a symlink to the resolved storage path
	SymlinkValid SymlinkState = "valid"
	// SymlinkBroken means the target is a symlink pointing elsewhere or nowhere
	SymlinkBroken SymlinkState = "broken"
	// SymlinkConflict means the target holds non-symlink content
	SymlinkConflict SymlinkState = "conflict"
)

// SymlinkRecord is computed per target. It is never persisted.
type SymlinkRecord struct {
	Target  string
	Source  string
	State   SymlinkState
	Current string // link destination when the target is a symlink
	IsDir   bool   // conflicting content is a directory
}

// BackupRecord describes content moved aside at conflict time
type BackupRecord struct {
	Target  string
	Path    string
	ModTime time.Time
}

// SecretState tracks one secret through the pipeline
type SecretState string

const (
	SecretPending     SecretState = "pending"
	SecretDecrypted   SecretState = "decrypted"
	SecretKeyMismatch SecretState = "key_mismatch"
	SecretSkipped     SecretState = "skipped"
	SecretFailed      SecretState = "failed"
)

// SecretEntry is one tracked secret during an apply
type SecretEntry struct {
	Original    string
	Destination string
	Ciphertext  string
	State       SecretState
}

// SafetyLevel is the static risk classification of a setup script.
// Levels compare by severity.
type SafetyLevel int

const (
	SafetySafe SafetyLevel = iota
	SafetyWarning
	SafetyDangerous
	SafetyBlocked
)

func (l SafetyLevel) String() string {
	switch l {
	case SafetyWarning:
		return "warning"
	case SafetyDangerous:
		return "dangerous"
	case SafetyBlocked:
		return "blocked"
	default:
		return "safe"
	}
}

// MarshalYAML renders the level by name
func (l SafetyLevel) MarshalYAML() (interface{}, error) {
	return l.String(), nil
}

// PatternMatch is one rule hit inside a script
type PatternMatch struct {
	Line    int         `yaml:"line"`
	Excerpt string      `yaml:"excerpt"`
	Rule    string      `yaml:"rule"`
	Level   SafetyLevel `yaml:"level"`
}

// BootstrapScript is a generated setup script and its classification
type BootstrapScript struct {
	Path    string         `yaml:"path"`
	Level   SafetyLevel    `yaml:"level"`
	Matches []PatternMatch `yaml:"matches,omitempty"`
	Written bool           `yaml:"written"`
}

// PackageKind separates standalone formulae from bundled applications
type PackageKind string

const (
	PackageFormula PackageKind = "formula"
	PackageCask    PackageKind = "cask"
)
