package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize riddler configuration and storage",
		Long:  "Create config.yaml if it does not exist, then attach and detach the local\nbackend so its schema and data files exist.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, err := a.dataDir()
			if err != nil {
				return fmt.Errorf("resolve data dir: %w", err)
			}
			created, err := writeConfigIfMissing(a.configDir, dataDir)
			if err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			if created {
				// Re-read so the new file's values apply to this run.
				if a.config, err = loadConfig(a.configDir); err != nil {
					return err
				}
			}

			catalog, cfg, err := a.attachCatalog()
			if err != nil {
				return err
			}
			if err := catalog.Detach(); err != nil {
				return fmt.Errorf("finalize storage: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Riddler initialized (backend: %s)\n", cfg.Backend)
			fmt.Fprintf(out, "config: %s\n", a.configDir)
			if cfg.DataDir != "" {
				fmt.Fprintf(out, "data:   %s\n", cfg.DataDir)
			}
			return nil
		},
	}
}
