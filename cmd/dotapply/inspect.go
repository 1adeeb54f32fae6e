package dotapply

import (
	"fmt"
	"os"

	"github.com/arthur-debert/dotapply/pkg/bootstrap"
	"github.com/arthur-debert/dotapply/pkg/display"
	"github.com/arthur-debert/dotapply/pkg/errors"
	"github.com/arthur-debert/dotapply/pkg/types"
	"github.com/spf13/cobra"
)

func newClassifyCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "classify <script>",
		Short:   MsgClassifyShort,
		GroupID: "core",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(flags)
			if err != nil {
				return err
			}
			content, err := os.ReadFile(args[0])
			if err != nil {
				return errors.Wrapf(err, errors.ErrFileAccess, "cannot read %s", args[0])
			}

			script := bootstrap.Classify(args[0], content)
			if err := emit(cmd.OutOrStdout(), format, script, func(r *display.Renderer) string {
				return r.RenderScript(script)
			}); err != nil {
				return err
			}

			if script.Level >= types.SafetyDangerous {
				if format != display.FormatYAML {
					fmt.Fprintln(cmd.OutOrStdout(), MsgClassifyNotRun)
				}
				return &ExitError{Code: 1}
			}
			return nil
		},
	}
}

type profileEntry struct {
	Name        string `yaml:"name"`
	Enabled     bool   `yaml:"enabled"`
	Files       int    `yaml:"files"`
	Directories int    `yaml:"directories"`
	Secrets     int    `yaml:"secrets"`
	Packages    int    `yaml:"packages"`
}

func newProfilesCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "profiles",
		Short:   MsgProfilesShort,
		GroupID: "core",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(flags)
			if err != nil {
				return err
			}
			s, err := openSession(flags)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			names := s.config.ProfileNames()
			if format == display.FormatYAML {
				entries := make([]profileEntry, 0, len(names))
				for _, name := range names {
					p := s.config.Profiles[name]
					entries = append(entries, profileEntry{
						Name:        name,
						Enabled:     p.Enabled,
						Files:       len(p.Files),
						Directories: len(p.Directories),
						Secrets:     len(p.Secrets),
						Packages:    len(p.HomebrewPackages),
					})
				}
				return emit(out, format, entries, nil)
			}

			if len(names) == 0 {
				fmt.Fprintf(out, MsgNoProfiles, s.paths.ConfigFile())
				return nil
			}
			for _, name := range names {
				suffix := ""
				if !s.config.Profiles[name].Enabled {
					suffix = MsgProfileOff
				}
				fmt.Fprintf(out, MsgProfileItem, name, suffix)
			}
			return nil
		},
	}
}
