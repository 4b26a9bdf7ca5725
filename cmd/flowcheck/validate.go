package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/rendis/flowcheck/internal/rules"
	"github.com/rendis/flowcheck/internal/validation"
	"github.com/rendis/flowcheck/pkg/schema"
)

func newValidateCmd(a *app) *cobra.Command {
	var skipNodes, skipConnections, skipExpressions bool

	cmd := &cobra.Command{
		Use:   "validate [file|-]",
		Short: "Validate a complete workflow",
		Long: `Validate runs the full pipeline: structure, node configuration,
expressions and AI topology. The workflow is read from the file argument,
or from stdin when it is "-" or omitted.

Exit status is 0 when the workflow is valid, 1 when it has errors and 2
when it could not be checked.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := a.profile(rules.DefaultWorkflowProfile)
			if err != nil {
				return &exitError{code: exitFailure, err: err}
			}
			opts := validation.DefaultOptions()
			opts.Profile = profile
			opts.ValidateNodes = !skipNodes
			opts.ValidateConnections = !skipConnections
			opts.ValidateExpressions = !skipExpressions

			return a.runWorkflow(cmd.Context(), args, func(v *validation.Validator, ctx context.Context, wf *schema.Workflow) *schema.ValidationResult {
				return v.ValidateWorkflow(ctx, wf, opts)
			})
		},
	}
	cmd.Flags().BoolVar(&skipNodes, "skip-nodes", false, "skip node configuration rules")
	cmd.Flags().BoolVar(&skipConnections, "skip-connections", false, "skip connection and AI topology checks")
	cmd.Flags().BoolVar(&skipExpressions, "skip-expressions", false, "skip expression checks")
	return cmd
}

func newConnectionsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "connections [file|-]",
		Short: "Validate workflow structure, connections and AI topology only",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runWorkflow(cmd.Context(), args, (*validation.Validator).ValidateConnections)
		},
	}
}

func newExpressionsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "expressions [file|-]",
		Short: "Validate the expressions of every node",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runWorkflow(cmd.Context(), args, (*validation.Validator).ValidateExpressions)
		},
	}
}

// workflowCheck has the shape of the Validator's workflow method expressions.
type workflowCheck func(v *validation.Validator, ctx context.Context, wf *schema.Workflow) *schema.ValidationResult

// runWorkflow reads and decodes the workflow, runs check and emits the result.
func (a *app) runWorkflow(ctx context.Context, args []string, check workflowCheck) error {
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

	v, release, err := a.buildValidator(ctx)
	if err != nil {
		return &exitError{code: exitFailure, err: err}
	}
	defer release()

	res := check(v, ctx, wf)
	return a.verdict(ctx, res, res.Valid)
}
