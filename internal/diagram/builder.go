package diagram

import (
	"fmt"
	"strings"

	"github.com/rendis/flowcheck/internal/catalog"
	"github.com/rendis/flowcheck/pkg/schema"
)

// Build constructs a DiagramModel from a workflow and, optionally, the result
// of validating it. Sticky notes are left out; connections to unknown nodes
// are dropped. Nodes on a cycle are placed on a final level of their own.
func Build(wf *schema.Workflow, res *schema.ValidationResult) *DiagramModel {
	model := &DiagramModel{Title: "Workflow"}
	if wf == nil {
		return model
	}
	if wf.Name != "" {
		model.Title = wf.Name
	}

	overlays := indexIssues(res)
	byName := make(map[string]*Node, len(wf.Nodes))
	order := make([]string, 0, len(wf.Nodes))
	for i := range wf.Nodes {
		n := &wf.Nodes[i]
		if catalog.Canonical(n.Type) == catalog.PackageBase+".stickyNote" {
			continue
		}
		node := &Node{
			ID:    fmt.Sprintf("n%d", i),
			Label: n.Name,
			Type:  schema.LocalType(catalog.Canonical(n.Type)),
			Kind:  nodeKind(n, wf.Connections[n.Name]),
		}
		if res != nil {
			node.Status = overlayFor(n, overlays[n.Name])
		}
		model.Nodes = append(model.Nodes, node)
		order = append(order, n.Name)
		if _, dup := byName[n.Name]; !dup {
			byName[n.Name] = node
		}
	}

	for _, e := range wf.Connections.Edges(order) {
		from, to := byName[e.Source], byName[e.Target.Node]
		if from == nil || to == nil {
			continue
		}
		model.Edges = append(model.Edges, Edge{
			From:  from.ID,
			To:    to.ID,
			Label: edgeLabel(e),
			AI:    e.Kind.IsAI(),
		})
	}

	model.Levels = buildLevels(model.Nodes, model.Edges)
	return model
}

// nodeKind classifies a node from its type and outgoing connections.
func nodeKind(n *schema.Node, out schema.NodeConnections) NodeKind {
	local := strings.ToLower(schema.LocalType(n.Type))
	switch {
	case strings.HasSuffix(local, "trigger") || local == "webhook":
		return NodeKindTrigger
	case local == "if" || local == "switch" || local == "filter":
		return NodeKindBranch
	}
	if len(out) > 0 {
		ai := true
		for kind := range out {
			if !kind.IsAI() {
				ai = false
				break
			}
		}
		if ai {
			return NodeKindSubNode
		}
	}
	return NodeKindAction
}

// edgeLabel names the output an edge leaves from. The first main output is
// left unlabelled.
func edgeLabel(e schema.Edge) string {
	switch {
	case e.Kind == schema.KindMain && e.Output == 0:
		return ""
	case e.Kind == schema.KindMain:
		return fmt.Sprintf("out %d", e.Output)
	case e.Kind.IsAI():
		return strings.TrimPrefix(string(e.Kind), "ai_")
	}
	return string(e.Kind)
}

type nodeIssues struct {
	errors   []string
	warnings []string
}

func indexIssues(res *schema.ValidationResult) map[string]*nodeIssues {
	out := make(map[string]*nodeIssues)
	if res == nil {
		return out
	}
	get := func(name string) *nodeIssues {
		ni := out[name]
		if ni == nil {
			ni = &nodeIssues{}
			out[name] = ni
		}
		return ni
	}
	for _, is := range res.Errors {
		if is.NodeName != "" {
			ni := get(is.NodeName)
			ni.errors = append(ni.errors, is.Message)
		}
	}
	for _, is := range res.Warnings {
		if is.NodeName != "" {
			ni := get(is.NodeName)
			ni.warnings = append(ni.warnings, is.Message)
		}
	}
	return out
}

func overlayFor(n *schema.Node, ni *nodeIssues) *StatusOverlay {
	st := &StatusOverlay{Verdict: VerdictOK}
	if ni != nil {
		st.Errors, st.Warnings = len(ni.errors), len(ni.warnings)
		switch {
		case st.Errors > 0:
			st.Verdict, st.Message = VerdictError, ni.errors[0]
		case st.Warnings > 0:
			st.Verdict, st.Message = VerdictWarning, ni.warnings[0]
		}
	}
	if n.Disabled && st.Verdict == VerdictOK {
		st.Verdict = VerdictDisabled
	}
	return st
}

// buildLevels assigns every node the length of the longest path reaching it.
// Nodes left unplaced because they sit on or behind a cycle share one last
// level.
func buildLevels(nodes []*Node, edges []Edge) [][]string {
	indeg := make(map[string]int, len(nodes))
	succ := make(map[string][]string, len(nodes))
	for _, e := range edges {
		succ[e.From] = append(succ[e.From], e.To)
		indeg[e.To]++
	}

	var queue []string
	for _, n := range nodes {
		if indeg[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}
	level := make(map[string]int, len(nodes))
	placed := make(map[string]bool, len(nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		placed[id] = true
		for _, next := range succ[id] {
			if level[id]+1 > level[next] {
				level[next] = level[id] + 1
			}
			indeg[next]--
			if indeg[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	var levels [][]string
	var stuck []string
	for _, n := range nodes {
		if !placed[n.ID] {
			stuck = append(stuck, n.ID)
			continue
		}
		l := level[n.ID]
		for len(levels) <= l {
			levels = append(levels, nil)
		}
		levels[l] = append(levels[l], n.ID)
	}
	if len(stuck) > 0 {
		levels = append(levels, stuck)
	}
	return levels
}
