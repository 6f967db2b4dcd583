package cli

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/riddler/pkg/api"
	"github.com/mesh-intelligence/riddler/pkg/types"
)

// collectDateLayouts are the accepted --collected formats.
var collectDateLayouts = []string{time.RFC3339Nano, time.DateTime, time.DateOnly}

func parseCollectDate(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC(), nil
	}
	for _, layout := range collectDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, userError(fmt.Errorf("invalid collect date %q (use RFC 3339 or YYYY-MM-DD)", s))
}

func newCorpusCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "corpus",
		Short: "Create and inspect corpora",
	}

	var collected string
	create := &cobra.Command{
		Use:   "create <dictionary-id> [key=value...]",
		Short: "Create a corpus under a dictionary",
		Long: `Create stores a corpus with the given metadata under an existing
dictionary. --collected sets the collection date (default: now).

Example:
  riddler corpus create 0190f3c2-... speaker=alice --collected 2024-03-01`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			md, err := parseMetadata(args[1:])
			if err != nil {
				return err
			}
			date, err := parseCollectDate(collected)
			if err != nil {
				return err
			}
			return a.withRegistry(func(reg types.Registry) error {
				id, err := reg.CreateCorpus(cmd.Context(), args[0], types.CorpusDescriptor{Metadata: md, CollectDate: date})
				if err != nil {
					return err
				}
				return a.printID(cmd, id)
			})
		},
	}
	create.Flags().StringVar(&collected, "collected", "", "collection date, RFC 3339 or YYYY-MM-DD")

	cmd.AddCommand(
		create,
		&cobra.Command{
			Use:   "get <id>",
			Short: "Print a corpus descriptor",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withRegistry(func(reg types.Registry) error {
					desc, err := reg.GetCorpusDescriptor(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					return a.output(cmd.OutOrStdout(), desc, func() {
						fmt.Fprintf(cmd.OutOrStdout(), "collected: %s\n", desc.CollectDate.Format(time.RFC3339Nano))
						printMetadata(cmd, desc.Metadata)
					})
				})
			},
		},
		&cobra.Command{
			Use:   "list <dictionary-id>",
			Short: "List the corpora of a dictionary",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withRegistry(func(reg types.Registry) error {
					corpora, err := reg.ListCorpora(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					return a.output(cmd.OutOrStdout(), api.CorporaResponse{Corpora: corpora}, func() {
						rows := make([]table.Row, len(corpora))
						for i, c := range corpora {
							rows[i] = table.Row{c.CorpusID, formatMetadata(c.Metadata), c.CollectDate.Format(time.RFC3339)}
						}
						printTable(cmd.OutOrStdout(), table.Row{"ID", "Metadata", "Collected"}, rows)
					})
				})
			},
		},
	)
	return cmd
}
