package validation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/flowcheck/internal/catalog"
	"github.com/rendis/flowcheck/internal/expressions"
	"github.com/rendis/flowcheck/internal/logging"
	"github.com/rendis/flowcheck/internal/rules"
	"github.com/rendis/flowcheck/internal/topology"
	"github.com/rendis/flowcheck/pkg/schema"
)

// ValidateWorkflow runs the pipeline in fixed order:
// 1. Structural (presence, identity, types, versions, connections, cycles)
// 2. Node configuration rules
// 3. Expressions
// 4. AI topology, when connections are validated and AI nodes exist
// 5. Suggestions
//
// Findings are data; the result is never nil. wf is not modified.
func (v *Validator) ValidateWorkflow(ctx context.Context, wf *schema.Workflow, opts Options) *schema.ValidationResult {
	return v.validate(ctx, EntryWorkflow, wf, opts)
}

// ValidateConnections checks workflow structure, connections and AI topology
// without node configuration or expressions.
func (v *Validator) ValidateConnections(ctx context.Context, wf *schema.Workflow) *schema.ValidationResult {
	return v.validate(ctx, EntryConnections, wf, Options{ValidateConnections: true, Profile: rules.DefaultWorkflowProfile})
}

// ValidateExpressions checks workflow structure and the expressions of every
// enabled node.
func (v *Validator) ValidateExpressions(ctx context.Context, wf *schema.Workflow) *schema.ValidationResult {
	return v.validate(ctx, EntryExpressions, wf, Options{ValidateExpressions: true, Profile: rules.DefaultWorkflowProfile})
}

func (v *Validator) validate(ctx context.Context, entry string, wf *schema.Workflow, opts Options) *schema.ValidationResult {
	start := time.Now()
	name := ""
	if wf != nil {
		name = wf.Name
	}
	ctx = logging.WithIDs(ctx, uuid.NewString(), name)

	res := v.pipeline(ctx, wf, opts)

	v.logger.InfoContext(ctx, "workflow validated",
		slog.String("entry", entry),
		slog.String("profile", opts.Profile.String()),
		slog.Bool("valid", res.Valid),
		slog.Int("errors", len(res.Errors)),
		slog.Int("warnings", len(res.Warnings)),
		slog.Duration("elapsed", time.Since(start)),
	)
	v.observe(entry, res, start)
	return res
}

func (v *Validator) pipeline(ctx context.Context, wf *schema.Workflow, opts Options) *schema.ValidationResult {
	res := schema.NewValidationResult()
	if wf == nil {
		res.AddError(schema.CategoryStructural, nil, schema.CodeMissingNodes, "Workflow is nil")
		return res.Finalize()
	}

	r := newRun(ctx, v, wf, opts, res)
	if err := r.resolveTypes(); err != nil {
		v.logger.WarnContext(ctx, "catalog lookups abandoned", slog.String("error", err.Error()))
		res.AddError(schema.CategoryStructural, nil, schema.CodeInternal,
			fmt.Sprintf("Validation cancelled while resolving node types: %v", err))
		res.Statistics = r.stats
		return res.Finalize()
	}

	r.checkStructure()
	if opts.ValidateNodes {
		r.checkNodeRules()
	}
	if opts.ValidateExpressions {
		r.checkExpressions()
	}
	if opts.ValidateConnections && wf.Connections != nil && topology.HasAINodes(wf) {
		res.Merge(v.topology.Check(ctx, wf))
	}
	r.suggest()

	res.Statistics = r.stats
	return res.Finalize()
}

// run is the state of one validation call. Nothing in it outlives the call.
type run struct {
	ctx   context.Context
	v     *Validator
	wf    *schema.Workflow
	opts  Options
	res   *schema.ValidationResult
	stats schema.Statistics

	order  []string                // node names in document order
	byName map[string]*schema.Node // first node carrying each name
	byID   map[string]*schema.Node
	types  map[string]catalog.Resolution
	exprs  *expressions.Checker

	executable []*schema.Node // non-note nodes
	checked    int            // nodes the rule engine ran on
	unhandled  []string       // nodes needing error handling that have none
}

func newRun(ctx context.Context, v *Validator, wf *schema.Workflow, opts Options, res *schema.ValidationResult) *run {
	r := &run{
		ctx:    ctx,
		v:      v,
		wf:     wf,
		opts:   opts,
		res:    res,
		byName: make(map[string]*schema.Node, len(wf.Nodes)),
		byID:   make(map[string]*schema.Node, len(wf.Nodes)),
		types:  map[string]catalog.Resolution{},
		exprs:  expressions.NewChecker(),
	}
	for i := range wf.Nodes {
		n := &wf.Nodes[i]
		r.order = append(r.order, n.Name)
		if _, ok := r.byName[n.Name]; !ok {
			r.byName[n.Name] = n
		}
		if _, ok := r.byID[n.ID]; !ok && n.ID != "" {
			r.byID[n.ID] = n
		}
		if !isNote(n) {
			r.executable = append(r.executable, n)
		}
	}
	return r
}

// resolveTypes looks up every distinct node type once, concurrently.
func (r *run) resolveTypes() error {
	types := make([]string, 0, len(r.wf.Nodes))
	for i := range r.wf.Nodes {
		types = append(types, r.wf.Nodes[i].Type)
	}
	if len(types) == 0 || r.v.catalog == nil {
		return nil
	}
	resolved, err := catalog.Prefetch(r.ctx, r.v.catalog, types, r.v.fetchLimit)
	if err != nil {
		return err
	}
	r.types = resolved
	return nil
}

func (r *run) descriptor(n *schema.Node) *schema.Descriptor {
	return r.types[n.Type].Descriptor
}

// checkNodeRules runs the configuration rule engine on every enabled node
// whose type resolved. Unknown types are already reported structurally.
func (r *run) checkNodeRules() {
	for _, n := range r.executable {
		if n.Disabled {
			continue
		}
		desc := r.descriptor(n)
		if desc == nil {
			continue
		}
		nodeCtx := logging.WithNode(r.ctx, n.Name)
		in := rules.NewInput(n, desc)
		in.Logger = logging.LogWith(nodeCtx, r.v.logger)
		out := r.v.engine.ValidateInput(in, r.opts.Profile)
		r.checked++
		if rules.NeedsErrorHandling(in) {
			r.unhandled = append(r.unhandled, n.Name)
		}
		addRuleResult(r.res, n, out)

		r.v.logger.DebugContext(nodeCtx, "node rules applied",
			slog.String("type", in.Type),
			slog.Int("errors", len(out.Errors)),
			slog.Int("warnings", len(out.Warnings)),
		)
	}
}

// addRuleResult maps a rule engine result onto workflow issues attributed to n.
func addRuleResult(res *schema.ValidationResult, n *schema.Node, out *rules.Result) {
	for _, is := range out.Errors {
		res.AddError(schema.CategoryConfiguration, n, ruleCode(is), ruleMessage(is))
	}
	for _, is := range out.Warnings {
		res.AddWarning(schema.CategoryConfiguration, n, ruleCode(is), ruleMessage(is))
	}
	for _, s := range out.Suggestions {
		res.Suggest(fmt.Sprintf("%s: %s", n.Name, s))
	}
	if len(out.Autofix) > 0 {
		res.Fixes = append(res.Fixes, schema.NodeFix{NodeID: n.ID, NodeName: n.Name, Patch: out.Autofix})
	}
}

func ruleCode(is rules.Issue) string {
	switch {
	case is.Code != "":
		return is.Code
	case is.Kind == rules.KindInternal:
		return schema.CodeInternal
	}
	return schema.CodeConfiguration
}

func ruleMessage(is rules.Issue) string {
	if is.Fix == "" {
		return is.Message
	}
	return is.Message + ". " + is.Fix
}

// checkExpressions validates the expressions of every enabled node against
// the nodes that precede it.
func (r *run) checkExpressions() {
	upstream := upstreamNames(r.wf, r.order, r.byName)
	for _, n := range r.executable {
		if n.Disabled {
			continue
		}
		out := r.exprs.Check(n.Parameters, upstream[n.Name], expressionOptions(r.order))
		r.stats.ExpressionsValidated += out.Expressions
		if out.Expressions > 0 {
			r.res.Expressions = append(r.res.Expressions, schema.ExpressionUsage{
				NodeName:  n.Name,
				Variables: out.Variables(),
				Nodes:     out.Nodes(),
			})
		}
		for _, msg := range out.Errors {
			r.res.AddError(schema.CategoryExpression, n, schema.CodeExpression, "Expression error: "+msg)
		}
		for _, msg := range out.Warnings {
			r.res.AddWarning(schema.CategoryExpression, n, schema.CodeExpression, "Expression warning: "+msg)
		}
	}
}

func isNote(n *schema.Node) bool {
	return catalog.Canonical(n.Type) == catalog.PackageBase+".stickyNote"
}
