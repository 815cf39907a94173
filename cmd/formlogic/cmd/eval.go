package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-formlogic/pkg/form"
	"github.com/goliatone/go-formlogic/pkg/validation"
)

type evalResult struct {
	ID         string             `json:"id"`
	Valid      bool               `json:"valid"`
	Page       int                `json:"page"`
	Values     map[string]any     `json:"values"`
	Submission map[string]any     `json:"submission"`
	Errors     []validation.Issue `json:"errors,omitempty"`
	Fields     []form.FieldView   `json:"fields,omitempty"`
}

func newEvalCommand(a *app) *cobra.Command {
	var (
		valuesFile string
		sets       []string
		page       int
		submitting bool
		showFields bool
	)
	cmd := &cobra.Command{
		Use:   "eval FILE",
		Short: "Run a form against values and print its state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := a.compose(args[0])
			if err != nil {
				return err
			}
			var opts []form.Option
			if valuesFile != "" {
				values, err := readValues(valuesFile)
				if err != nil {
					return err
				}
				opts = append(opts, form.WithValues(values))
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			f, err := a.newForm(ctx, def, opts...)
			if err != nil {
				return err
			}
			defer f.Close()

			for _, assignment := range sets {
				path, value, err := parseAssignment(assignment)
				if err != nil {
					return err
				}
				if err := f.SetValue(path, value); err != nil {
					return fmt.Errorf("set %s: %w", path, err)
				}
			}
			if cmd.Flags().Changed("page") {
				if err := f.SetPage(page); err != nil {
					return err
				}
			}
			if submitting {
				f.SetSubmitting(true)
			}
			if err := f.Wait(ctx); err != nil {
				return err
			}

			res := evalResult{
				ID:         f.ID(),
				Valid:      f.Valid(),
				Page:       f.Page(),
				Values:     f.Values(),
				Submission: f.Submission(),
				Errors:     f.Errors(),
			}
			if showFields {
				res.Fields = f.Fields()
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&valuesFile, "values", "", "JSON or YAML file with initial values")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "assign a value, path=value (value parsed as JSON when possible)")
	cmd.Flags().IntVar(&page, "page", 0, "current page")
	cmd.Flags().BoolVar(&submitting, "submitting", false, "mark the form as submitting")
	cmd.Flags().BoolVar(&showFields, "fields", false, "include per-field state in the output")
	return cmd
}

func readValues(path string) (map[string]any, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	var values map[string]any
	if err := json.Unmarshal(data, &values); err == nil {
		return values, nil
	}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return values, nil
}

func parseAssignment(raw string) (string, any, error) {
	path, text, ok := strings.Cut(raw, "=")
	if !ok || strings.TrimSpace(path) == "" {
		return "", nil, fmt.Errorf("invalid --set %q, expected path=value", raw)
	}
	var value any
	if err := json.Unmarshal([]byte(text), &value); err != nil {
		value = text
	}
	return strings.TrimSpace(path), value, nil
}
