package dotapply

// Short messages (one-liners)
const (
	// Command descriptions
	MsgRootShort       = "Apply dotfile profiles to this machine"
	MsgApplyShort      = "Apply a profile: bootstrap script, secrets, packages, then links"
	MsgUnlinkShort     = "Remove a profile's links and restore backups"
	MsgClassifyShort   = "Classify the risk of a setup script"
	MsgProfilesShort   = "List configured profiles"
	MsgVersionShort    = "Print version information"
	MsgCompletionShort = "Generate shell completion script"

	// Flag descriptions
	MsgFlagVerbose       = "Increase verbosity (-v INFO, -vv DEBUG, -vvv TRACE)"
	MsgFlagDryRun        = "Show what would change without changing anything"
	MsgFlagForce         = "Overwrite conflicting files and apply disabled profiles"
	MsgFlagRoot          = "Dotfiles repository root (default: $DOTFILES_ROOT, then the enclosing git repository)"
	MsgFlagOutput        = "Output format: auto, term, text or yaml"
	MsgFlagSkipBootstrap = "Do not generate the bootstrap script"
	MsgFlagSkipSecrets   = "Do not decrypt secrets"
	MsgFlagSkipPackages  = "Do not install packages"

	// Status messages
	MsgNoProfiles     = "No profiles configured in %s\n"
	MsgProfileItem    = "  %s%s\n"
	MsgProfileOff     = " (disabled)"
	MsgVersionFormat  = "dotapply version %s\n  commit: %s\n  built:  %s\n"
	MsgUnlinkTitle    = "Unlink %s"
	MsgClassifyNotRun = "dotapply never runs scripts; review and run it yourself if you trust it."

	// Error messages
	MsgErrNoProfile     = "no profile given and none could be selected: %w"
	MsgErrUnknownFormat = "invalid --output: %w"
)

// MsgRootLong is the root command's long help
const MsgRootLong = `dotapply applies a profile from your dotfiles repository to this machine.

An apply runs four stages in order: it generates and classifies the
profile's bootstrap script (which it never runs), decrypts the profile's
secrets into place, installs its Homebrew packages and finally links its
files into your home directory.

The repository root is taken from --root, $DOTFILES_ROOT or the enclosing
git repository. Profiles are configured in dotapply.toml at that root.`

// MsgApplyLong is the apply command's long help
const MsgApplyLong = `Apply a profile. Without a profile argument you are asked to pick one.

Per-item failures never stop the other items; the summary lists succeeded,
skipped and failed items and the exit status is non-zero when anything is
left unresolved.`
