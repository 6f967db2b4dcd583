package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/riddler/internal/paths"
	"github.com/mesh-intelligence/riddler/internal/snapshot"
	"github.com/mesh-intelligence/riddler/pkg/types"
)

// snapshotSink opens the sink at rawURL, the configured snapshot.url, or
// the snapshots directory under the data dir, in that order.
func (a *app) snapshotSink(rawURL string) (snapshot.Sink, error) {
	if rawURL == "" {
		rawURL = a.config.GetString(cfgKeySnapshotURL)
	}
	if rawURL == "" {
		dir, err := a.dataDir()
		if err != nil {
			return nil, fmt.Errorf("resolve data dir: %w", err)
		}
		rawURL = paths.SnapshotDir(dir)
	}
	sink, err := snapshot.Open(rawURL, snapshot.S3Config{
		Endpoint:  a.config.GetString(cfgKeyS3Endpoint),
		AccessKey: a.config.GetString(cfgKeyS3AccessKey),
		SecretKey: a.config.GetString(cfgKeyS3SecretKey),
		Secure:    a.config.GetBool(cfgKeyS3Secure),
	})
	if err != nil {
		return nil, userError(err)
	}
	a.logger.Debug("snapshot sink", "url", rawURL)
	return sink, nil
}

func newSnapshotCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Export and inspect registry snapshots",
		Long: `Snapshots are zstd-compressed JSON-lines archives of every dictionary and
corpus. They are stored in a directory (a path or file:// URL) or an
S3-compatible bucket (s3://bucket/prefix, with snapshot.endpoint and
credentials from config.yaml).`,
	}

	var to string
	export := &cobra.Command{
		Use:   "export",
		Short: "Write a snapshot of the registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sink, err := a.snapshotSink(to)
			if err != nil {
				return err
			}
			return a.withRegistry(func(reg types.Registry) error {
				name, stats, err := snapshot.Take(cmd.Context(), reg, sink, time.Now())
				if err != nil {
					return err
				}
				a.logger.Info("snapshot written", "name", name,
					"dictionaries", stats.Dictionaries, "corpora", stats.Corpora)
				return a.output(cmd.OutOrStdout(), map[string]any{
					"name":         name,
					"dictionaries": stats.Dictionaries,
					"corpora":      stats.Corpora,
				}, func() {
					fmt.Fprintf(cmd.OutOrStdout(), "%s (%d dictionaries, %d corpora)\n",
						name, stats.Dictionaries, stats.Corpora)
				})
			})
		},
	}
	export.Flags().StringVar(&to, "to", "", "destination directory or URL")

	var from string
	list := &cobra.Command{
		Use:   "list",
		Short: "List stored snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sink, err := a.snapshotSink(from)
			if err != nil {
				return err
			}
			names, err := sink.List(cmd.Context())
			if err != nil {
				return err
			}
			return a.output(cmd.OutOrStdout(), names, func() {
				for _, name := range names {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
			})
		},
	}
	list.Flags().StringVar(&from, "from", "", "source directory or URL")

	inspect := &cobra.Command{
		Use:   "inspect <name>",
		Short: "Print the contents of a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sink, err := a.snapshotSink(from)
			if err != nil {
				return err
			}
			snap, err := snapshot.Load(cmd.Context(), sink, args[0])
			if errors.Is(err, snapshot.ErrNotFound) {
				return userError(fmt.Errorf("snapshot %s not found", args[0]))
			}
			if err != nil {
				return err
			}
			return a.output(cmd.OutOrStdout(), snap, func() {
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "version: %d\ncreated: %s\n", snap.Version, snap.CreatedAt.Format(time.RFC3339))
				rows := make([]table.Row, 0, len(snap.Dictionaries)+len(snap.Corpora))
				for _, d := range snap.Dictionaries {
					rows = append(rows, table.Row{"dictionary", d.DictionaryID, formatMetadata(d.Metadata)})
				}
				for _, c := range snap.Corpora {
					rows = append(rows, table.Row{"corpus", c.CorpusID, formatMetadata(c.Metadata)})
				}
				printTable(w, table.Row{"Kind", "ID", "Metadata"}, rows)
			})
		},
	}
	inspect.Flags().StringVar(&from, "from", "", "source directory or URL")

	cmd.AddCommand(export, list, inspect)
	return cmd
}
