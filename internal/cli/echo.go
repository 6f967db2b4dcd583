package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/riddler/pkg/api"
	"github.com/mesh-intelligence/riddler/pkg/types"
)

func newEchoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "echo [message...]",
		Short: "Send a message to the registry and print the reply",
		RunE: func(cmd *cobra.Command, args []string) error {
			msg := strings.Join(args, " ")
			return a.withRegistry(func(reg types.Registry) error {
				reply, err := reg.Echo(cmd.Context(), msg)
				if err != nil {
					return err
				}
				return a.output(cmd.OutOrStdout(), api.EchoMessage{Message: reply}, func() {
					fmt.Fprintln(cmd.OutOrStdout(), reply)
				})
			})
		},
	}
}
