package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/riddler/internal/check"
	"github.com/mesh-intelligence/riddler/pkg/types"
)

func newCheckCmd(a *app) *cobra.Command {
	var (
		filters check.RegexFilters
		verbose bool
		noColor bool
		list    bool
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run the contract checks against a registry",
		Long: `Check runs the registry contract checks against the server at --url, or
against the local backend. Each check creates its own uniquely named
dictionaries and corpora, so it is safe to run against a live registry.

Examples:
  riddler check --url http://127.0.0.1:8420
  riddler check --run '^dictionary/' --skip 'unknown'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if list {
				for _, id := range check.IDs() {
					if filters.AsFilter(id) {
						fmt.Fprintln(cmd.OutOrStdout(), id)
					}
				}
				return nil
			}
			return a.withRegistry(func(reg types.Registry) error {
				logger := check.NewConsoleLogger(cmd.OutOrStdout(), verbose, noColor)
				results := check.Run(cmd.Context(), reg, check.Options{
					Filter: filters.AsFilter,
					Logger: logger,
				})
				logger.Summary(results)
				if !results.OK() {
					return &cliError{code: exitUserError, err: errors.New("contract checks failed")}
				}
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.Var(&filters.MustMatch, "run", "run only checks whose id matches this regex (repeatable)")
	f.Var(&filters.MustNotMatch, "skip", "skip checks whose id matches this regex (repeatable)")
	f.BoolVarP(&verbose, "verbose", "v", false, "print each check as it starts")
	f.BoolVar(&noColor, "no-color", false, "disable colored output")
	f.BoolVar(&list, "list", false, "list check ids without running them")
	return cmd
}
