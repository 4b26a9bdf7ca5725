package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/rendis/flowcheck/internal/rules"
	"github.com/rendis/flowcheck/pkg/schema"
)

func newNodeCmd(a *app) *cobra.Command {
	var (
		config      string
		name        string
		typeVersion float64
		minimal     bool
	)

	cmd := &cobra.Command{
		Use:   "node <type>",
		Short: "Validate a single node configuration",
		Long: `Node checks one node's parameters against its type's rules under the
configured profile. --config takes inline JSON or @file. With --minimal only
missing required properties are reported.`,
		Example: `  flowcheck node n8n-nodes-base.httpRequest --config '{"method":"POST"}' --profile ai-friendly
  flowcheck node nodes-base.slack --config @slack.json --minimal`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			node := &schema.Node{Name: args[0], Type: args[0], Parameters: map[string]any{}}
			if name != "" {
				node.Name = name
			}
			if cmd.Flags().Changed("version") {
				node.TypeVersion = typeVersion
			}
			if config != "" {
				data, err := readValue(config)
				if err != nil {
					return &exitError{code: exitFailure, err: err}
				}
				if err := json.Unmarshal(data, &node.Parameters); err != nil {
					return &exitError{code: exitFailure, err: schema.NewError(schema.ErrCodeDecode, "--config is not a JSON object").WithCause(err)}
				}
			}

			v, release, err := a.buildValidator(ctx)
			if err != nil {
				return &exitError{code: exitFailure, err: err}
			}
			defer release()

			if minimal {
				out, err := v.ValidateNodeMinimal(ctx, node)
				if err != nil {
					return &exitError{code: exitFailure, err: err}
				}
				return a.verdict(ctx, out, out.Valid)
			}

			var profile rules.Profile
			if profile, err = a.profile(rules.DefaultProfile); err != nil {
				return &exitError{code: exitFailure, err: err}
			}
			out, err := v.ValidateNode(ctx, node, profile)
			if err != nil {
				return &exitError{code: exitFailure, err: err}
			}
			return a.verdict(ctx, out, out.Valid)
		},
	}
	cmd.Flags().StringVar(&config, "config", "", "node parameters as JSON, or @file")
	cmd.Flags().StringVar(&name, "name", "", "node name used in findings (default: the type)")
	cmd.Flags().Float64Var(&typeVersion, "version", 0, "node typeVersion")
	cmd.Flags().BoolVar(&minimal, "minimal", false, "report missing required properties only")
	return cmd
}
