package types

// KeySetupChoice is the answer to the missing-key prompt
type KeySetupChoice string

const (
	KeySetupGenerate KeySetupChoice = "generate"
	KeySetupImport   KeySetupChoice = "import"
	KeySetupCancel   KeySetupChoice = "cancel"
)

// MismatchChoice is the answer to the key-mismatch prompt
type MismatchChoice string

const (
	MismatchSkip   MismatchChoice = "skip"
	MismatchCancel MismatchChoice = "cancel"
	MismatchImport MismatchChoice = "import"
)

// ConflictChoice is the answer to the conflict prompt
type ConflictChoice string

const (
	ConflictOverwrite ConflictChoice = "overwrite"
	ConflictSkip      ConflictChoice = "skip"
	ConflictAbort     ConflictChoice = "abort"
)
