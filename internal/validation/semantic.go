package validation

import (
	"context"
	"fmt"
	"strings"

	"github.com/rendis/flowcheck/internal/catalog"
	"github.com/rendis/flowcheck/pkg/schema"
)

// checkStructure applies the structural rules. A missing nodes or
// connections field only disables the checks that depend on it.
func (r *run) checkStructure() {
	wf := r.wf
	if wf.Nodes == nil {
		r.res.AddError(schema.CategoryStructural, nil, schema.CodeMissingNodes,
			"Workflow has no 'nodes' array")
	}
	if wf.Connections == nil {
		r.res.AddError(schema.CategoryStructural, nil, schema.CodeMissingConnections,
			"Workflow has no 'connections' object")
	}
	if wf.Nodes == nil {
		return
	}
	if len(wf.Nodes) == 0 {
		r.res.AddWarning(schema.CategoryStructural, nil, schema.CodeEmptyWorkflow,
			"Workflow has no nodes")
		return
	}

	r.checkIdentity()
	r.countNodes()
	r.checkShape()
	if r.opts.ValidateNodes {
		r.checkTypes()
	}
	if r.opts.ValidateConnections && wf.Connections != nil {
		edges := r.checkConnections()
		r.checkErrorOutputs()
		r.checkOrphans(edges)
		r.checkCycles(edges)
	}
}

// checkIdentity reports one error per pair of nodes sharing a name or an id.
func (r *run) checkIdentity() {
	names := make(map[string][]int, len(r.wf.Nodes))
	ids := make(map[string][]int, len(r.wf.Nodes))
	for i := range r.wf.Nodes {
		n := &r.wf.Nodes[i]
		if prev := names[n.Name]; len(prev) > 0 {
			for _, j := range prev {
				other := &r.wf.Nodes[j]
				r.res.AddError(schema.CategoryStructural, n, schema.CodeDuplicateName,
					fmt.Sprintf("Duplicate node name '%s': used by node ids '%s' and '%s'", n.Name, other.ID, n.ID))
			}
		}
		names[n.Name] = append(names[n.Name], i)

		if n.ID == "" {
			continue
		}
		if prev := ids[n.ID]; len(prev) > 0 {
			for _, j := range prev {
				other := &r.wf.Nodes[j]
				r.res.AddError(schema.CategoryStructural, n, schema.CodeDuplicateID,
					fmt.Sprintf("Duplicate node id '%s': used by nodes '%s' and '%s'", n.ID, other.Name, n.Name))
			}
		}
		ids[n.ID] = append(ids[n.ID], i)
	}
}

func (r *run) countNodes() {
	r.stats.TotalNodes = len(r.wf.Nodes)
	for i := range r.wf.Nodes {
		n := &r.wf.Nodes[i]
		if n.Disabled {
			continue
		}
		r.stats.EnabledNodes++
		if r.isTrigger(n) {
			r.stats.TriggerNodes++
		}
	}
	if len(r.executable) > 1 && r.stats.TriggerNodes == 0 {
		r.res.AddWarning(schema.CategoryStructural, nil, schema.CodeNoTrigger,
			"Workflow has no enabled trigger node; it can only run when called manually or from another workflow")
	}
}

// checkShape covers single-node workflows and multi-node workflows without
// any connection.
func (r *run) checkShape() {
	switch {
	case len(r.executable) == 1:
		n := r.executable[0]
		if !isEntryPoint(n) {
			r.res.AddError(schema.CategoryStructural, n, schema.CodeSingleNode,
				fmt.Sprintf("Single-node workflows are only valid for webhook endpoints; connect '%s' to a trigger or add the nodes it should feed", n.Name))
			return
		}
		if len(r.wf.Connections) == 0 {
			r.res.AddWarning(schema.CategoryStructural, n, schema.CodeNoConnections,
				fmt.Sprintf("Webhook '%s' has no connections; requests are accepted but not processed", n.Name))
		}
	case len(r.executable) > 1 && r.wf.Connections != nil && len(r.wf.Connections) == 0:
		r.res.AddError(schema.CategoryStructural, nil, schema.CodeNoConnections,
			fmt.Sprintf("Workflow has %d nodes but no connections", len(r.executable)))
	}
}

// checkTypes resolves every enabled node type and checks its typeVersion.
func (r *run) checkTypes() {
	for i := range r.wf.Nodes {
		n := &r.wf.Nodes[i]
		if n.Disabled {
			continue
		}
		if strings.TrimSpace(n.Type) == "" {
			r.res.AddError(schema.CategoryStructural, n, schema.CodeUnknownNodeType,
				fmt.Sprintf("Node '%s' has no type", n.Name))
			continue
		}
		desc := r.descriptor(n)
		if desc == nil {
			r.res.AddError(schema.CategoryStructural, n, schema.CodeUnknownNodeType, r.unknownTypeMessage(n))
			continue
		}
		if desc.Type != "" && n.Type != desc.Type {
			r.res.AddWarning(schema.CategoryStructural, n, schema.CodeNonCanonicalType,
				fmt.Sprintf("Node '%s' uses the type spelling '%s'; the platform expects '%s'", n.Name, n.Type, desc.Type))
		}
		r.checkVersion(n, desc)
	}
}

func (r *run) unknownTypeMessage(n *schema.Node) string {
	msg := fmt.Sprintf("Unknown node type '%s' on node '%s'", n.Type, n.Name)
	if guess := closestType(n.Type, r.v.typeCandidates(r.ctx)); guess != "" {
		msg += fmt.Sprintf(". Did you mean '%s'?", guess)
	}
	return msg
}

// typeCandidates returns the well-known types plus every type the catalog can
// list.
func (v *Validator) typeCandidates(ctx context.Context) []string {
	out := append([]string{}, commonTypes...)
	if l, ok := v.catalog.(catalog.Lister); ok {
		if listed, err := l.Types(ctx); err == nil {
			out = append(out, listed...)
		}
	}
	return out
}

func (r *run) checkVersion(n *schema.Node, desc *schema.Descriptor) {
	v, present, numeric := n.Version()
	maxVersion := desc.MaxVersion
	if maxVersion == 0 {
		maxVersion = desc.CurrentVersion
	}
	switch {
	case !present:
		if desc.IsVersioned {
			r.res.AddError(schema.CategoryStructural, n, schema.CodeMissingTypeVersion,
				fmt.Sprintf("Node '%s' (%s) has no typeVersion; the current version is %s",
					n.Name, desc.Type, schema.FormatVersion(desc.CurrentVersion)))
		}
	case !numeric:
		r.res.AddError(schema.CategoryStructural, n, schema.CodeInvalidTypeVersion,
			fmt.Sprintf("Node '%s' has a non-numeric typeVersion %v", n.Name, n.TypeVersion))
	case maxVersion > 0 && v > maxVersion:
		r.res.AddError(schema.CategoryStructural, n, schema.CodeUnsupportedTypeVersion,
			fmt.Sprintf("Node '%s' typeVersion %s exceeds the maximum supported version %s of %s",
				n.Name, schema.FormatVersion(v), schema.FormatVersion(maxVersion), desc.Type))
	case v < desc.CurrentVersion:
		r.res.AddWarning(schema.CategoryStructural, n, schema.CodeOutdatedTypeVersion,
			fmt.Sprintf("Node '%s' uses typeVersion %s; the current version of %s is %s",
				n.Name, schema.FormatVersion(v), desc.Type, schema.FormatVersion(desc.CurrentVersion)))
	}
}

// isTrigger reports whether a node starts executions.
func (r *run) isTrigger(n *schema.Node) bool {
	if desc := r.descriptor(n); desc != nil && desc.IsTrigger {
		return true
	}
	local := strings.ToLower(schema.LocalType(catalog.Canonical(n.Type)))
	return strings.HasSuffix(local, "trigger") || local == "webhook" || local == "start"
}

// isEntryPoint reports whether a node can stand alone as a workflow.
func isEntryPoint(n *schema.Node) bool {
	return strings.Contains(strings.ToLower(schema.LocalType(n.Type)), "webhook")
}
