package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCheckCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check FILE",
		Short: "Compose a form definition and report errors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := a.compose(args[0])
			if err != nil {
				return err
			}
			valued := 0
			for _, n := range def.Nodes() {
				if n.Valued() {
					valued++
				}
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d fields, %d pages)\n", args[0], valued, def.PageCount)
			return err
		},
	}
}
