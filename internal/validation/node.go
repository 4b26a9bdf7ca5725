package validation

import (
	"context"
	"log/slog"
	"time"

	"github.com/rendis/flowcheck/internal/catalog"
	"github.com/rendis/flowcheck/internal/logging"
	"github.com/rendis/flowcheck/internal/rules"
	"github.com/rendis/flowcheck/pkg/schema"
)

// NodeResult is the outcome of validating one node configuration.
type NodeResult struct {
	NodeType    string `json:"nodeType"`
	DisplayName string `json:"displayName"`
	Profile     string `json:"profile"`
	*rules.Result
}

// MinimalResult lists only the required properties a node is missing.
type MinimalResult struct {
	NodeType              string   `json:"nodeType"`
	DisplayName           string   `json:"displayName"`
	Valid                 bool     `json:"valid"`
	MissingRequiredFields []string `json:"missingRequiredFields"`
}

// ValidateNode runs the configuration rules for a single node under profile.
// An unresolvable type is returned as a NOT_FOUND error carrying a
// "did you mean" suggestion when one exists.
func (v *Validator) ValidateNode(ctx context.Context, node *schema.Node, profile rules.Profile) (*NodeResult, error) {
	start := time.Now()
	desc, err := v.resolveNode(ctx, node)
	if err != nil {
		return nil, err
	}
	out := v.engine.ValidateInput(rules.NewInput(node, desc), profile)

	res := schema.NewValidationResult()
	addRuleResult(res, node, out)
	v.observe(EntryNode, res.Finalize(), start)
	v.logger.DebugContext(logging.WithNode(ctx, node.Name), "node validated",
		slog.String("type", desc.Type),
		slog.String("profile", profile.String()),
		slog.Bool("valid", out.Valid),
	)

	return &NodeResult{
		NodeType:    desc.Type,
		DisplayName: desc.DisplayName,
		Profile:     profile.String(),
		Result:      out,
	}, nil
}

// ValidateNodeMinimal reports the required properties missing from a node,
// ignoring every other rule.
func (v *Validator) ValidateNodeMinimal(ctx context.Context, node *schema.Node) (*MinimalResult, error) {
	start := time.Now()
	desc, err := v.resolveNode(ctx, node)
	if err != nil {
		return nil, err
	}
	out := v.engine.ValidateInput(rules.NewInput(node, desc), rules.ProfileMinimal)

	res := schema.NewValidationResult()
	missing := []string{}
	for _, is := range out.Errors {
		if is.Kind != rules.KindMissingRequired {
			continue
		}
		missing = append(missing, is.Property)
		res.AddError(schema.CategoryConfiguration, node, schema.CodeConfiguration, is.Message)
	}
	v.observe(EntryNodeMinimal, res.Finalize(), start)

	return &MinimalResult{
		NodeType:              desc.Type,
		DisplayName:           desc.DisplayName,
		Valid:                 len(missing) == 0,
		MissingRequiredFields: missing,
	}, nil
}

func (v *Validator) resolveNode(ctx context.Context, node *schema.Node) (*schema.Descriptor, error) {
	if node == nil || node.Type == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "node type is required")
	}
	desc, _, err := catalog.ResolveAny(ctx, v.catalog, node.Type)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, schema.NewError(schema.ErrCodeInternal, "node lookup cancelled").WithCause(ctxErr)
		}
		nf := catalog.NotFound(node.Type).WithNode(node.Name)
		if guess := closestType(node.Type, v.typeCandidates(ctx)); guess != "" {
			nf = nf.WithDetails(map[string]any{"suggestion": guess})
		}
		return nil, nf
	}
	return desc, nil
}
