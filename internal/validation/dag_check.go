package validation

import (
	"fmt"
	"strings"

	"github.com/rendis/flowcheck/pkg/schema"
)

// graph is the set of connections whose endpoints both resolve to node names.
type graph struct {
	adj    map[string][]string // source -> targets, in edge order
	degree map[string]int      // inbound + outbound edge count
}

// checkConnections verifies every endpoint names a node, counts valid and
// invalid edges, and returns the graph of valid edges.
func (r *run) checkConnections() *graph {
	g := &graph{adj: map[string][]string{}, degree: map[string]int{}}
	for _, src := range r.wf.Connections.Sources(r.order) {
		nc := r.wf.Connections[src]
		srcNode, ok := r.byName[src]
		if !ok {
			r.stats.InvalidConnections += countEdges(nc)
			if idNode, isID := r.byID[src]; isID {
				r.res.AddError(schema.CategoryStructural, idNode, schema.CodeConnectionUsesID,
					fmt.Sprintf("Connection source '%s' is a node id; connections must use the node name '%s'", src, idNode.Name))
			} else {
				r.res.AddError(schema.CategoryStructural, nil, schema.CodeUnknownSource,
					fmt.Sprintf("Connection source '%s' does not match any node name", src))
			}
			continue
		}

		for _, kind := range nc.Kinds() {
			for _, slot := range nc[kind] {
				for _, conn := range slot {
					if r.checkTarget(srcNode, conn) {
						g.adj[src] = append(g.adj[src], conn.Node)
						g.degree[src]++
						g.degree[conn.Node]++
					}
				}
			}
		}
	}
	return g
}

func (r *run) checkTarget(src *schema.Node, conn schema.Connection) bool {
	if target, ok := r.byName[conn.Node]; ok {
		r.stats.ValidConnections++
		if target.Disabled {
			r.res.AddWarning(schema.CategoryStructural, src, schema.CodeDisabledTarget,
				fmt.Sprintf("Connection from '%s' to disabled node '%s'", src.Name, target.Name))
		}
		return true
	}

	r.stats.InvalidConnections++
	if idNode, ok := r.byID[conn.Node]; ok {
		r.res.AddError(schema.CategoryStructural, src, schema.CodeConnectionUsesID,
			fmt.Sprintf("Connection from '%s' targets node id '%s'; connections must use the node name '%s'",
				src.Name, conn.Node, idNode.Name))
		return false
	}
	r.res.AddError(schema.CategoryStructural, src, schema.CodeUnknownTarget,
		fmt.Sprintf("Connection from '%s' targets unknown node '%s'", src.Name, conn.Node))
	return false
}

func countEdges(nc schema.NodeConnections) int {
	n := 0
	for _, slots := range nc {
		for _, slot := range slots {
			n += len(slot)
		}
	}
	return n
}

// checkErrorOutputs flags nodes that route failures to an error output that
// nothing consumes. The error output is the second main output.
func (r *run) checkErrorOutputs() {
	for _, n := range r.executable {
		if n.Disabled || n.OnError != schema.OnErrorContinueOutput {
			continue
		}
		slots := r.wf.Connections[n.Name][schema.KindMain]
		if len(slots) < 2 || !slots[1].Connected() {
			r.res.AddWarning(schema.CategoryStructural, n, schema.CodeErrorOutputUnused,
				fmt.Sprintf("Node '%s' sends failures to its error output (onError: %s) but nothing is connected to it",
					n.Name, schema.OnErrorContinueOutput))
		}
	}
}

// checkOrphans warns about enabled nodes without any valid edge. Triggers
// may stand alone.
func (r *run) checkOrphans(g *graph) {
	if len(r.executable) < 2 {
		return
	}
	for _, n := range r.executable {
		if n.Disabled || g.degree[n.Name] > 0 || r.isTrigger(n) {
			continue
		}
		r.res.AddWarning(schema.CategoryStructural, n, schema.CodeOrphanNode,
			fmt.Sprintf("Node '%s' is not connected to any other node", n.Name))
	}
}

// checkCycles reports the first directed cycle over all connection kinds.
// Detection stops at the first back edge, so any number of cycles yields a
// single error.
func (r *run) checkCycles(g *graph) {
	path := findCycle(r.order, g.adj)
	if path == nil {
		return
	}
	r.res.AddError(schema.CategoryStructural, r.byName[path[0]], schema.CodeCycleDetected,
		fmt.Sprintf("Workflow contains a cycle: %s", strings.Join(path, " -> ")))
}

// findCycle walks the graph depth-first from each unvisited node in order
// and returns the first cycle found, with its entry node repeated at the end.
// The walk keeps an explicit stack so deep graphs cannot overflow.
func findCycle(order []string, adj map[string][]string) []string {
	const (
		white = iota
		grey
		black
	)
	type frame struct {
		node string
		next int
	}

	color := make(map[string]int, len(order))
	for _, start := range order {
		if color[start] != white {
			continue
		}
		color[start] = grey
		stack := []frame{{node: start}}
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next == len(adj[top.node]) {
				color[top.node] = black
				stack = stack[:len(stack)-1]
				continue
			}
			next := adj[top.node][top.next]
			top.next++

			switch color[next] {
			case grey:
				var path []string
				for i := range stack {
					if stack[i].node == next || path != nil {
						path = append(path, stack[i].node)
					}
				}
				return append(path, next)
			case white:
				color[next] = grey
				stack = append(stack, frame{node: next})
			}
		}
	}
	return nil
}
