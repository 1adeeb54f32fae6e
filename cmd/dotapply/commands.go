package dotapply

import (
	"fmt"
	"io"
	"os"

	"github.com/arthur-debert/dotapply/internal/version"
	"github.com/arthur-debert/dotapply/pkg/apply"
	"github.com/arthur-debert/dotapply/pkg/config"
	"github.com/arthur-debert/dotapply/pkg/display"
	"github.com/arthur-debert/dotapply/pkg/filesystem"
	"github.com/arthur-debert/dotapply/pkg/logging"
	"github.com/arthur-debert/dotapply/pkg/packages"
	"github.com/arthur-debert/dotapply/pkg/paths"
	"github.com/arthur-debert/dotapply/pkg/secrets"
	"github.com/arthur-debert/dotapply/pkg/types"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// ExitError carries a non-zero exit status for a command whose result was
// already printed
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

type globalFlags struct {
	verbosity int
	dryRun    bool
	force     bool
	root      string
	output    string
}

// NewRootCmd creates and returns the root command
func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:     "dotapply",
		Short:   MsgRootShort,
		Long:    MsgRootLong,
		Version: version.Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.SetupLogger(flags.verbosity)
			log.Debug().Str("command", cmd.Name()).Msg("Command started")
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Help()
			return fmt.Errorf("no command specified")
		},
		SilenceUsage:      true,
		SilenceErrors:     true,
		DisableAutoGenTag: true,
	}

	rootCmd.PersistentFlags().CountVarP(&flags.verbosity, "verbose", "v", MsgFlagVerbose)
	rootCmd.PersistentFlags().BoolVar(&flags.dryRun, "dry-run", false, MsgFlagDryRun)
	rootCmd.PersistentFlags().BoolVar(&flags.force, "force", false, MsgFlagForce)
	rootCmd.PersistentFlags().StringVar(&flags.root, "root", "", MsgFlagRoot)
	rootCmd.PersistentFlags().StringVarP(&flags.output, "output", "o", "auto", MsgFlagOutput)

	rootCmd.AddGroup(&cobra.Group{ID: "core", Title: "COMMANDS:"})
	rootCmd.AddGroup(&cobra.Group{ID: "misc", Title: "MISC:"})

	rootCmd.AddCommand(newApplyCmd(flags))
	rootCmd.AddCommand(newUnlinkCmd(flags))
	rootCmd.AddCommand(newClassifyCmd(flags))
	rootCmd.AddCommand(newProfilesCmd(flags))
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newCompletionCmd())

	return rootCmd
}

// session is what every repository command needs: resolved paths and
// the loaded configuration
type session struct {
	paths  *paths.Paths
	config *config.Config
	fs     types.FS
}

func openSession(flags *globalFlags) (*session, error) {
	p, err := paths.FromEnvironment(flags.root)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(p.ConfigFile())
	if err != nil {
		return nil, err
	}
	log.Debug().Str("root", p.DotfilesRoot()).Str("home", p.Home()).Msg("Session opened")
	return &session{paths: p, config: cfg, fs: filesystem.NewOS()}, nil
}

func (s *session) orchestrator(prompter apply.Prompter) *apply.Orchestrator {
	settings := s.config.Settings
	return apply.New(apply.Deps{
		FS:       s.fs,
		Paths:    s.paths,
		Oracle:   secrets.NewAgeCLI(settings.AgeBinary, settings.AgeKeygenBinary),
		Packages: packages.NewBrew(settings.BrewBinary),
		Prompter: prompter,
		Settings: settings,
	})
}

// outputFormat resolves --output against stdout
func outputFormat(flags *globalFlags) (display.Format, error) {
	format, err := display.ParseFormat(flags.output)
	if err != nil {
		return format, fmt.Errorf(MsgErrUnknownFormat, err)
	}
	return format.Resolve(os.Stdout), nil
}

// emit writes v as YAML, or the renderer's text for it otherwise
func emit(w io.Writer, format display.Format, v interface{}, text func(*display.Renderer) string) error {
	if format == display.FormatYAML {
		out, err := display.RenderYAML(v)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, out)
		return err
	}
	_, err := io.WriteString(w, text(display.NewRenderer(format)))
	return err
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   MsgVersionShort,
		GroupID: "misc",
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), MsgVersionFormat, version.Version, version.Commit, version.Date)
		},
	}
}

func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:                   "completion [bash|zsh|fish|powershell]",
		Short:                 MsgCompletionShort,
		GroupID:               "misc",
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletionV2(out, true)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			default:
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
		},
	}
}
