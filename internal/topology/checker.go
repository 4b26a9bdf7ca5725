// Package topology validates the AI overlay graph: the ai_* connections that
// attach language models, memories, tools, vector stores and their helpers to
// agents and chains.
package topology

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/rendis/flowcheck/internal/catalog"
	"github.com/rendis/flowcheck/pkg/schema"
)

const lcPrefix = catalog.PackageLangChain + "."

func lc(local string) string { return lcPrefix + local }

// role validates one AI node against its connection contract.
type role func(r *run, n *schema.Node)

var roles = map[string]role{
	lc("agent"):                agentRole,
	lc("chainLlm"):             chainRole,
	lc("chainRetrievalQa"):     retrievalChainRole,
	lc("chainSummarization"):   summarizationChainRole,
	lc("chatTrigger"):          chatTriggerRole,
	lc("toolVectorStore"):      vectorStoreToolRole,
	lc("toolHttpRequest"):      httpToolRole,
	lc("toolCode"):             codeToolRole,
	lc("toolWorkflow"):         workflowToolRole,
	lc("mcpClientTool"):        mcpToolRole,
	lc("toolSerpApi"):          searchToolRole,
	lc("toolSearXng"):          searchToolRole,
	lc("toolWolframAlpha"):     searchToolRole,
	lc("retrieverVectorStore"): retrieverRole,
}

// Checker validates AI topology. It holds no per-run state and is safe for
// concurrent use.
type Checker struct {
	logger *slog.Logger
}

// Option configures a Checker.
type Option func(*Checker)

// WithLogger sets the logger used for recovered panics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Checker) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Checker.
func New(opts ...Option) *Checker {
	c := &Checker{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// HasAINodes reports whether the workflow uses any LangChain node or AI
// connection kind.
func HasAINodes(wf *schema.Workflow) bool {
	if wf == nil {
		return false
	}
	for i := range wf.Nodes {
		if isAIType(wf.Nodes[i].Type) {
			return true
		}
	}
	for _, nc := range wf.Connections {
		for kind := range nc {
			if kind.IsAI() {
				return true
			}
		}
	}
	return false
}

func isAIType(nodeType string) bool {
	return strings.HasPrefix(catalog.Canonical(nodeType), lcPrefix)
}

// isToolType reports whether a type is meant to be attached through ai_tool.
func isToolType(nodeType string) bool {
	c := catalog.Canonical(nodeType)
	if !strings.HasPrefix(c, lcPrefix) {
		return false
	}
	local := schema.LocalType(c)
	return strings.HasPrefix(local, "tool") || local == "mcpClientTool"
}

// Check validates every enabled AI node. Workflows without AI nodes return
// an empty result without building the index.
func (c *Checker) Check(ctx context.Context, wf *schema.Workflow) *schema.ValidationResult {
	res := schema.NewValidationResult()
	if !HasAINodes(wf) {
		return res.Finalize()
	}

	r := &run{
		ctx:     ctx,
		checker: c,
		wf:      wf,
		ix:      BuildIndex(wf),
		nodes:   make(map[string]*schema.Node, len(wf.Nodes)),
		stores:  make(map[string]bool),
		schemas: schemaCache{},
		res:     res,
	}
	for i := range wf.Nodes {
		r.nodes[wf.Nodes[i].Name] = &wf.Nodes[i]
	}

	for i := range wf.Nodes {
		n := &wf.Nodes[i]
		if n.Disabled {
			continue
		}
		if f, ok := roles[catalog.Canonical(n.Type)]; ok {
			c.apply(r, n, f)
		}
	}
	c.apply(r, nil, toolAttachment)
	return res.Finalize()
}

// apply runs one role and turns a panic into a single internal error naming
// the node.
func (c *Checker) apply(r *run, n *schema.Node, f role) {
	defer func() {
		if rec := recover(); rec != nil {
			name := ""
			if n != nil {
				name = n.Name
			}
			c.logger.ErrorContext(r.ctx, "topology role panicked",
				slog.String("node", name),
				slog.Any("panic", rec),
			)
			r.res.AddError(schema.CategoryTopology, n, schema.CodeInternal,
				fmt.Sprintf("internal error while checking AI connections: %v", rec))
		}
	}()
	f(r, n)
}

// run is the state of one Check call.
type run struct {
	ctx     context.Context
	checker *Checker
	wf      *schema.Workflow
	ix      *Index
	nodes   map[string]*schema.Node
	stores  map[string]bool // vector stores already checked
	schemas schemaCache
	res     *schema.ValidationResult
}

func (r *run) errorf(n *schema.Node, code, format string, args ...any) {
	r.res.AddError(schema.CategoryTopology, n, code, fmt.Sprintf(format, args...))
}

func (r *run) warnf(n *schema.Node, code, format string, args ...any) {
	r.res.AddWarning(schema.CategoryTopology, n, code, fmt.Sprintf(format, args...))
}

func (r *run) infof(n *schema.Node, code, format string, args ...any) {
	r.res.AddInfo(schema.CategoryTopology, n, code, fmt.Sprintf(format, args...))
}

// targets returns the names of the nodes n feeds through kind.
func (r *run) targets(n *schema.Node, kind schema.ConnectionKind) []string {
	var out []string
	for _, slot := range r.wf.Connections[n.Name][kind] {
		for _, conn := range slot {
			out = append(out, conn.Node)
		}
	}
	return out
}

// typeOf returns the canonical type of a named node, or "".
func (r *run) typeOf(name string) string {
	if n, ok := r.nodes[name]; ok {
		return catalog.Canonical(n.Type)
	}
	return ""
}

// toolAttachment flags community nodes used as tools and tool nodes that no
// agent consumes.
func toolAttachment(r *run, _ *schema.Node) {
	for i := range r.wf.Nodes {
		n := &r.wf.Nodes[i]
		if n.Disabled {
			continue
		}
		usedAsTool := r.ix.Outbound(n.Name, schema.KindAITool) > 0
		if usedAsTool && !catalog.IsBuiltinPackage(n.Type) {
			r.warnf(n, schema.CodeCommunityTool,
				"Community node '%s' (%s) is used as an AI tool; tool usage of community nodes must be enabled with N8N_COMMUNITY_PACKAGES_ALLOW_TOOL_USAGE",
				n.Name, n.Type)
		}
		if !usedAsTool && isToolType(n.Type) {
			r.warnf(n, schema.CodeToolNotConnected,
				"Tool '%s' is not connected to any AI Agent; connect it through an ai_tool connection", n.Name)
		}
	}
}
