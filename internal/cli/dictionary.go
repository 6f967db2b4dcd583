package cli

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/riddler/pkg/api"
	"github.com/mesh-intelligence/riddler/pkg/types"
)

func newDictionaryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "dictionary",
		Aliases: []string{"dict"},
		Short:   "Create and look up dictionaries",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "create key=value...",
			Short: "Create a dictionary from its metadata",
			Long: `Create stores a dictionary identified by its metadata set. Creation
fails when an existing dictionary already has every given pair.

Example:
  riddler dictionary create language=en dialect=us source=cmudict`,
			Args: cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				md, err := parseMetadata(args)
				if err != nil {
					return err
				}
				return a.withRegistry(func(reg types.Registry) error {
					id, err := reg.CreateDictionary(cmd.Context(), types.DictionaryDescriptor{Metadata: md})
					if err != nil {
						return err
					}
					return a.printID(cmd, id)
				})
			},
		},
		&cobra.Command{
			Use:   "get key=value...",
			Short: "Print the id of a dictionary having every given pair",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				md, err := parseMetadata(args)
				if err != nil {
					return err
				}
				return a.withRegistry(func(reg types.Registry) error {
					id, err := reg.GetDictionary(cmd.Context(), types.DictionaryDescriptor{Metadata: md})
					if err != nil {
						return err
					}
					return a.printID(cmd, id)
				})
			},
		},
		&cobra.Command{
			Use:   "metadata <id>",
			Short: "Print a dictionary's metadata",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withRegistry(func(reg types.Registry) error {
					desc, err := reg.GetDictionaryMetadata(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					return a.output(cmd.OutOrStdout(), desc, func() {
						printMetadata(cmd, desc.Metadata)
					})
				})
			},
		},
		&cobra.Command{
			Use:   "find key=value...",
			Short: "List dictionaries whose metadata contains every pair",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				md, err := parseMetadata(args)
				if err != nil {
					return err
				}
				return a.withRegistry(func(reg types.Registry) error {
					ids, err := reg.FindDictionaries(cmd.Context(), md)
					if err != nil {
						return err
					}
					return a.output(cmd.OutOrStdout(), api.IDsResponse{IDs: ids}, func() {
						for _, id := range ids {
							fmt.Fprintln(cmd.OutOrStdout(), id)
						}
					})
				})
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List all dictionaries",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withRegistry(func(reg types.Registry) error {
					dicts, err := reg.ListDictionaries(cmd.Context())
					if err != nil {
						return err
					}
					return a.output(cmd.OutOrStdout(), api.DictionariesResponse{Dictionaries: dicts}, func() {
						rows := make([]table.Row, len(dicts))
						for i, d := range dicts {
							rows[i] = table.Row{d.DictionaryID, formatMetadata(d.Metadata), d.CreatedAt.Format(time.RFC3339)}
						}
						printTable(cmd.OutOrStdout(), table.Row{"ID", "Metadata", "Created"}, rows)
					})
				})
			},
		},
	)
	return cmd
}

// printID prints a bare id, or {"id": ...} in JSON mode.
func (a *app) printID(cmd *cobra.Command, id string) error {
	return a.output(cmd.OutOrStdout(), api.IDResponse{ID: id}, func() {
		fmt.Fprintln(cmd.OutOrStdout(), id)
	})
}

func printMetadata(cmd *cobra.Command, md types.Metadata) {
	rows := make([]table.Row, len(md))
	for i, e := range md {
		rows[i] = table.Row{e.Key, e.Value}
	}
	printTable(cmd.OutOrStdout(), table.Row{"Key", "Value"}, rows)
}
