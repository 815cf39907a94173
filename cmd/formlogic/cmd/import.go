package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-formlogic/pkg/openapi"
	"github.com/goliatone/go-formlogic/pkg/schema"
)

func newImportCommand(a *app) *cobra.Command {
	var (
		operation string
		format    string
	)
	cmd := &cobra.Command{
		Use:   "import-openapi FILE",
		Short: "Generate a form definition from an OpenAPI request body",
		Long:  `Without --operation the command lists the operations of the document.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			doc, err := openapi.LoadFile(ctx, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if operation == "" {
				for _, op := range openapi.Operations(doc) {
					if _, err := fmt.Fprintf(out, "%s\t%s %s\n", op.ID, op.Method, op.Path); err != nil {
						return err
					}
				}
				return nil
			}

			fields, err := openapi.FieldsFor(doc, operation)
			if err != nil {
				return err
			}
			a.logger.Debug("imported fields", "operation", operation, "count", len(fields))
			form := schema.Document{Fields: fields}

			switch format {
			case "json":
				return writeJSON(out, form)
			case "yaml":
				enc := yaml.NewEncoder(out)
				enc.SetIndent(2)
				if err := enc.Encode(form); err != nil {
					return fmt.Errorf("encode output: %w", err)
				}
				return enc.Close()
			default:
				return fmt.Errorf("unknown format %q", format)
			}
		},
	}
	cmd.Flags().StringVar(&operation, "operation", "", "operationId (or method:path) to import")
	cmd.Flags().StringVar(&format, "format", "yaml", "output format (yaml, json)")
	return cmd
}
