package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-formlogic/internal/prompt"
)

func newFillCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "fill FILE",
		Short: "Fill a form interactively and print the submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := a.compose(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			f, err := a.newForm(ctx, def)
			if err != nil {
				return err
			}
			defer f.Close()

			driver := prompt.NewSurveyDriver(cmd.ErrOrStderr())
			if err := prompt.NewFiller(f, driver).Run(ctx); err != nil {
				return err
			}
			for _, issue := range f.Errors() {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", issue.Path, issue.Message)
			}
			return writeJSON(cmd.OutOrStdout(), f.Submission())
		},
	}
}
