package validation

import (
	"sort"

	"github.com/rendis/flowcheck/internal/expressions"
	"github.com/rendis/flowcheck/pkg/schema"
)

func expressionOptions(order []string) expressions.Options {
	return expressions.Options{AllNodes: order}
}

// upstreamNames returns, per node, the names of the nodes that run before it,
// in document order. main and error edges make the source a predecessor of
// the target. An AI sub-node shares the predecessors of the node it serves,
// since it runs inside that node's execution.
func upstreamNames(wf *schema.Workflow, order []string, byName map[string]*schema.Node) map[string][]string {
	parents := make(map[string][]string)
	serves := make(map[string][]string)
	for _, e := range wf.Connections.Edges(order) {
		if _, ok := byName[e.Source]; !ok {
			continue
		}
		if _, ok := byName[e.Target.Node]; !ok {
			continue
		}
		if e.Kind.IsAI() {
			serves[e.Source] = append(serves[e.Source], e.Target.Node)
		} else {
			parents[e.Target.Node] = append(parents[e.Target.Node], e.Source)
		}
	}

	position := make(map[string]int, len(order))
	for i, name := range order {
		if _, ok := position[name]; !ok {
			position[name] = i
		}
	}

	out := make(map[string][]string, len(order))
	for _, name := range order {
		if _, done := out[name]; done {
			continue
		}
		found := map[string]bool{}
		explored := map[string]bool{name: true}
		work := []string{name}
		for len(work) > 0 {
			cur := work[len(work)-1]
			work = work[:len(work)-1]
			for _, p := range parents[cur] {
				if p != name {
					found[p] = true
				}
				if !explored[p] {
					explored[p] = true
					work = append(work, p)
				}
			}
			for _, root := range serves[cur] {
				if !explored[root] {
					explored[root] = true
					work = append(work, root)
				}
			}
		}

		names := make([]string, 0, len(found))
		for n := range found {
			names = append(names, n)
		}
		sort.Slice(names, func(i, j int) bool { return position[names[i]] < position[names[j]] })
		out[name] = names
	}
	return out
}
