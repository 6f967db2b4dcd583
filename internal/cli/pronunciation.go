package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/riddler/pkg/api"
	"github.com/mesh-intelligence/riddler/pkg/types"
)

func newPronunciationCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "pronunciation",
		Aliases: []string{"pron"},
		Short:   "Add and look up word pronunciations",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <dictionary-id> <word> <variant>...",
			Short: "Merge pronunciation variants into a word",
			Long: `Add merges the variants into the word's record, creating it if needed.
Words are matched case-insensitively.

Example:
  riddler pronunciation add 0190f3c2-... tomato "t ah m ey t ow" "t ah m aa t ow"`,
			Args: cobra.MinimumNArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withRegistry(func(reg types.Registry) error {
					id, err := reg.AddPronunciations(cmd.Context(), args[0], args[1], args[2:])
					if err != nil {
						return err
					}
					return a.printID(cmd, id)
				})
			},
		},
		&cobra.Command{
			Use:   "has <dictionary-id> <word>",
			Short: "Report whether the dictionary knows a word",
			Long:  "Has prints true or false. The exit code is 0 either way.",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withRegistry(func(reg types.Registry) error {
					found, err := reg.HasPronunciation(cmd.Context(), args[0], args[1])
					if err != nil {
						return err
					}
					return a.output(cmd.OutOrStdout(), api.PronunciationResponse{Found: found}, func() {
						fmt.Fprintln(cmd.OutOrStdout(), found)
					})
				})
			},
		},
	)
	return cmd
}
