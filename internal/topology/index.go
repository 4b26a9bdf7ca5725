package topology

import (
	"github.com/rendis/flowcheck/internal/catalog"
	"github.com/rendis/flowcheck/pkg/schema"
)

// Source is one inbound edge of a node.
type Source struct {
	Name  string
	Type  string // canonical type of the source node, "" when unknown
	Kind  schema.ConnectionKind
	Index int
}

// Index is the reverse connection index of one workflow plus the outbound
// kinds of every source. It is built once per run and read-only afterwards.
type Index struct {
	inbound  map[string][]Source
	outbound map[string]map[schema.ConnectionKind]int
}

// BuildIndex indexes the workflow's connections. Edges naming unknown nodes
// are kept; their source type is left empty.
func BuildIndex(wf *schema.Workflow) *Index {
	types := make(map[string]string, len(wf.Nodes))
	order := make([]string, 0, len(wf.Nodes))
	for i := range wf.Nodes {
		types[wf.Nodes[i].Name] = catalog.Canonical(wf.Nodes[i].Type)
		order = append(order, wf.Nodes[i].Name)
	}

	ix := &Index{
		inbound:  make(map[string][]Source),
		outbound: make(map[string]map[schema.ConnectionKind]int),
	}
	for _, e := range wf.Connections.Edges(order) {
		ix.inbound[e.Target.Node] = append(ix.inbound[e.Target.Node], Source{
			Name:  e.Source,
			Type:  types[e.Source],
			Kind:  e.Kind,
			Index: e.Target.Index,
		})
		out := ix.outbound[e.Source]
		if out == nil {
			out = make(map[schema.ConnectionKind]int)
			ix.outbound[e.Source] = out
		}
		out[e.Kind]++
	}
	return ix
}

// Inbound returns the edges into target of the given kind, in edge order.
func (ix *Index) Inbound(target string, kind schema.ConnectionKind) []Source {
	var out []Source
	for _, s := range ix.inbound[target] {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

// Outbound returns the number of edges of the given kind leaving source.
func (ix *Index) Outbound(source string, kind schema.ConnectionKind) int {
	return ix.outbound[source][kind]
}
