package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rendis/flowcheck/internal/diagram"
	"github.com/rendis/flowcheck/internal/rules"
	"github.com/rendis/flowcheck/internal/validation"
)

func newDiagramCmd(a *app) *cobra.Command {
	var (
		format string
		output string
		plain  bool
	)

	cmd := &cobra.Command{
		Use:   "diagram [file|-]",
		Short: "Render a workflow graph with validation results",
		Long: `Diagram validates the workflow and draws its graph with every node
marked ok, warning, error or disabled. Formats: mermaid, ascii, png, svg.
Images need --output.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			data, err := a.readInput(path)
			if err != nil {
				return &exitError{code: exitFailure, err: err}
			}
			wf, err := validation.DecodeWorkflow(data)
			if err != nil {
				return &exitError{code: exitFailure, err: err}
			}

			model := diagram.Build(wf, nil)
			if !plain {
				profile, err := a.profile(rules.DefaultWorkflowProfile)
				if err != nil {
					return &exitError{code: exitFailure, err: err}
				}
				v, release, err := a.buildValidator(ctx)
				if err != nil {
					return &exitError{code: exitFailure, err: err}
				}
				defer release()
				opts := validation.DefaultOptions()
				opts.Profile = profile
				model = diagram.Build(wf, v.ValidateWorkflow(ctx, wf, opts))
			}

			var out []byte
			switch format {
			case "mermaid":
				out = []byte(diagram.RenderMermaid(model))
			case "ascii":
				out = []byte(diagram.RenderASCII(model))
			case "png", "svg":
				if output == "" {
					return &exitError{code: exitFailure, err: fmt.Errorf("--format %s needs --output", format)}
				}
				if out, err = diagram.RenderImage(ctx, model, diagram.ImageFormat(format)); err != nil {
					return &exitError{code: exitFailure, err: err}
				}
			default:
				return &exitError{code: exitFailure, err: fmt.Errorf("unknown format %q; expected mermaid, ascii, png or svg", format)}
			}

			if output == "" {
				_, err = a.stdout.Write(out)
				return err
			}
			if err := os.WriteFile(output, out, 0o644); err != nil {
				return &exitError{code: exitFailure, err: err}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "mermaid", "output format: mermaid, ascii, png, svg")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout")
	cmd.Flags().BoolVar(&plain, "plain", false, "draw the graph without validating it")
	return cmd
}
