package dotapply

import (
	"fmt"

	"github.com/arthur-debert/dotapply/pkg/display"
	"github.com/arthur-debert/dotapply/pkg/logging"
	"github.com/arthur-debert/dotapply/pkg/prompt"
	"github.com/arthur-debert/dotapply/pkg/types"
	"github.com/spf13/cobra"
)

func newApplyCmd(flags *globalFlags) *cobra.Command {
	var opts types.ApplyOptions

	cmd := &cobra.Command{
		Use:               "apply [profile]",
		Short:             MsgApplyShort,
		Long:              MsgApplyLong,
		GroupID:           "core",
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: profileCompletion(flags),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.GetLogger("cmd.apply")
			format, err := outputFormat(flags)
			if err != nil {
				return err
			}

			s, err := openSession(flags)
			if err != nil {
				return err
			}

			console := prompt.NewConsole()
			name := ""
			if len(args) == 1 {
				name = args[0]
			} else {
				name, err = console.SelectProfile(cmd.Context(), s.config.ProfileNames())
				if err != nil {
					return fmt.Errorf(MsgErrNoProfile, err)
				}
			}

			profile, err := s.config.Profile(name)
			if err != nil {
				return err
			}

			opts.Profile = name
			opts.Force = flags.force
			opts.DryRun = flags.dryRun
			logger.Info().
				Str("profile", name).
				Bool("dryRun", opts.DryRun).
				Bool("force", opts.Force).
				Msg("Starting apply")

			report, err := s.orchestrator(console).Apply(cmd.Context(), profile, opts)
			if err != nil {
				return err
			}

			if err := emit(cmd.OutOrStdout(), format, report, func(r *display.Renderer) string {
				return r.RenderReport(report)
			}); err != nil {
				return err
			}
			if !report.Success() {
				return &ExitError{Code: report.ExitCode}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.SkipBootstrap, "skip-bootstrap", false, MsgFlagSkipBootstrap)
	cmd.Flags().BoolVar(&opts.SkipSecrets, "skip-secrets", false, MsgFlagSkipSecrets)
	cmd.Flags().BoolVar(&opts.SkipPackages, "skip-packages", false, MsgFlagSkipPackages)
	return cmd
}

func newUnlinkCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:               "unlink <profile>",
		Short:             MsgUnlinkShort,
		GroupID:           "core",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: profileCompletion(flags),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(flags)
			if err != nil {
				return err
			}
			s, err := openSession(flags)
			if err != nil {
				return err
			}
			profile, err := s.config.Profile(args[0])
			if err != nil {
				return err
			}

			outcomes, err := s.orchestrator(nil).Unlink(cmd.Context(), profile, flags.dryRun)
			if err != nil {
				return err
			}
			if err := emit(cmd.OutOrStdout(), format, outcomes, func(r *display.Renderer) string {
				return r.RenderOutcomes(fmt.Sprintf(MsgUnlinkTitle, profile.Name), outcomes)
			}); err != nil {
				return err
			}
			for _, o := range outcomes {
				if o.Unresolved() {
					return &ExitError{Code: 1}
				}
			}
			return nil
		},
	}
}

// profileCompletion completes configured profile names
func profileCompletion(flags *globalFlags) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		s, err := openSession(flags)
		if err != nil {
			return nil, cobra.ShellCompDirectiveError
		}
		return s.config.ProfileNames(), cobra.ShellCompDirectiveNoFileComp
	}
}
