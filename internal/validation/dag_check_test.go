package validation

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowcheck/pkg/schema"
)

// --- Connections ---

func TestConnections_UnknownSourceAndTarget(t *testing.T) {
	wf := wfOf(node("Start", manualType, 1.0, nil), node("Done", noOpType, 1.0, nil))
	link(wf, "Start", schema.KindMain, "Done")
	link(wf, "Start", schema.KindMain, "Nowhere")
	link(wf, "Ghost", schema.KindMain, "Done")

	res := structural(t, wf)
	assert.ElementsMatch(t, []string{schema.CodeUnknownTarget, schema.CodeUnknownSource}, codesOf(res.Errors))
	assert.Equal(t, 1, res.Statistics.ValidConnections)
	assert.Equal(t, 2, res.Statistics.InvalidConnections)
	assert.Contains(t, findIssue(res.Errors, schema.CodeUnknownSource).Message, "'Ghost'")
}

func TestConnections_TargetByID(t *testing.T) {
	wf := wfOf(node("Start", manualType, 1.0, nil), node("Done", noOpType, 1.0, nil))
	link(wf, "Start", schema.KindMain, "id-Done")

	res := structural(t, wf)
	e := findIssue(res.Errors, schema.CodeConnectionUsesID)
	require.NotNil(t, e)
	assert.Equal(t, "Start", e.NodeName)
	assert.Contains(t, e.Message, "'Done'")
}

func TestConnections_ErrorOutputWithoutHandler(t *testing.T) {
	fetch := httpNode("Fetch")
	fetch.OnError = schema.OnErrorContinueOutput
	wf := wfOf(node("Start", manualType, 1.0, nil), fetch, node("Done", noOpType, 1.0, nil))
	chain(wf, "Start", "Fetch", "Done")

	res := structural(t, wf)
	w := findIssue(res.Warnings, schema.CodeErrorOutputUnused)
	require.NotNil(t, w)
	assert.Equal(t, "Fetch", w.NodeName)

	wf.Connections["Fetch"][schema.KindMain] = append(wf.Connections["Fetch"][schema.KindMain],
		schema.OutputSlot{{Node: "Done", Type: schema.KindMain}})
	res = structural(t, wf)
	assert.Nil(t, findIssue(res.Warnings, schema.CodeErrorOutputUnused))
}

func TestConnections_Orphans(t *testing.T) {
	wf := wfOf(
		node("Start", manualType, 1.0, nil),
		node("Done", noOpType, 1.0, nil),
		node("Lonely", noOpType, 1.0, nil),
		node("Hook", webhookType, 2.0, map[string]any{"path": "idle"}),
	)
	chain(wf, "Start", "Done")

	res := structural(t, wf)
	require.Equal(t, 1, countCode(res.Warnings, schema.CodeOrphanNode))
	assert.Equal(t, "Lonely", findIssue(res.Warnings, schema.CodeOrphanNode).NodeName)
}

// --- Cycles ---

func TestCycles_SingleErrorForManyCycles(t *testing.T) {
	wf := wfOf(
		node("Start", manualType, 1.0, nil),
		node("A", noOpType, 1.0, nil),
		node("B", noOpType, 1.0, nil),
		node("C", noOpType, 1.0, nil),
	)
	chain(wf, "Start", "A", "B", "A")
	chain(wf, "B", "C", "C")

	res := structural(t, wf)
	require.Equal(t, 1, countCode(res.Errors, schema.CodeCycleDetected))
	e := findIssue(res.Errors, schema.CodeCycleDetected)
	assert.Equal(t, "Workflow contains a cycle: A -> B -> A", e.Message)
	assert.Equal(t, "A", e.NodeName)
}

func TestCycles_AIConnectionsCount(t *testing.T) {
	wf := wfOf(
		node("Start", manualType, 1.0, nil),
		node("A", noOpType, 1.0, nil),
		node("B", noOpType, 1.0, nil),
	)
	chain(wf, "Start", "A", "B")
	link(wf, "B", schema.KindAITool, "A")

	res := newValidator(t).ValidateConnections(t.Context(), wf)
	assert.Equal(t, 1, countCode(res.Errors, schema.CodeCycleDetected))
}

func TestFindCycle(t *testing.T) {
	tests := []struct {
		name  string
		order []string
		adj   map[string][]string
		want  []string
	}{
		{"empty", nil, nil, nil},
		{"chain", []string{"a", "b", "c"}, map[string][]string{"a": {"b"}, "b": {"c"}}, nil},
		{"diamond", []string{"a", "b", "c", "d"}, map[string][]string{"a": {"b", "c"}, "b": {"d"}, "c": {"d"}}, nil},
		{"self loop", []string{"a"}, map[string][]string{"a": {"a"}}, []string{"a", "a"}},
		{"tail", []string{"a", "b", "c"}, map[string][]string{"a": {"b"}, "b": {"c"}, "c": {"b"}}, []string{"b", "c", "b"}},
		{"document order", []string{"x", "y", "p", "q"}, map[string][]string{"p": {"q"}, "q": {"p"}, "x": {"y"}, "y": {"x"}}, []string{"x", "y", "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, findCycle(tt.order, tt.adj))
		})
	}
}

func TestFindCycle_DeepChain(t *testing.T) {
	const depth = 100000
	order := make([]string, depth)
	adj := make(map[string][]string, depth)
	for i := range order {
		order[i] = fmt.Sprintf("n%d", i)
		if i > 0 {
			adj[order[i-1]] = []string{order[i]}
		}
	}
	assert.Nil(t, findCycle(order, adj))

	adj[order[depth-1]] = []string{order[0]}
	path := findCycle(order, adj)
	require.Len(t, path, depth+1)
	assert.Equal(t, "n0", path[0])
	assert.Equal(t, "n0", path[depth])
}

// --- Upstream ---

func TestUpstreamNames(t *testing.T) {
	wf := wfOf(
		node("Chat", "@n8n/n8n-nodes-langchain.chatTrigger", 1.3, nil),
		node("Prep", setType, 3.4, nil),
		node("Agent", "@n8n/n8n-nodes-langchain.agent", 2.2, nil),
		node("Tool", "@n8n/n8n-nodes-langchain.toolCode", 1.3, nil),
		node("After", noOpType, 1.0, nil),
		node("Side", noOpType, 1.0, nil),
	)
	chain(wf, "Chat", "Prep", "Agent", "After")
	link(wf, "Tool", schema.KindAITool, "Agent")

	byName := map[string]*schema.Node{}
	var order []string
	for i := range wf.Nodes {
		byName[wf.Nodes[i].Name] = &wf.Nodes[i]
		order = append(order, wf.Nodes[i].Name)
	}
	up := upstreamNames(wf, order, byName)

	assert.Empty(t, up["Chat"])
	assert.Equal(t, []string{"Chat", "Prep"}, up["Agent"])
	assert.Equal(t, []string{"Chat", "Prep"}, up["Tool"])
	assert.Equal(t, []string{"Chat", "Prep", "Agent"}, up["After"])
	assert.Empty(t, up["Side"])
}

func TestUpstreamNames_Loop(t *testing.T) {
	wf := wfOf(node("A", noOpType, 1.0, nil), node("B", noOpType, 1.0, nil))
	chain(wf, "A", "B", "A")
	byName := map[string]*schema.Node{"A": &wf.Nodes[0], "B": &wf.Nodes[1]}

	up := upstreamNames(wf, []string{"A", "B"}, byName)
	assert.Equal(t, []string{"B"}, up["A"])
	assert.Equal(t, []string{"A"}, up["B"])
}

// --- Type hints ---

func TestClosestType(t *testing.T) {
	candidates := []string{"n8n-nodes-base.httpRequest", "n8n-nodes-base.set", "n8n-nodes-base.webhook"}
	tests := []struct {
		in   string
		want string
	}{
		{"n8n-nodes-base.httpRequst", "n8n-nodes-base.httpRequest"},
		{"n8n-nodes-base.webhok", "n8n-nodes-base.webhook"},
		{"nodes-base.httprequest", "n8n-nodes-base.httpRequest"},
		{"zzz.qqqqqqqqqq", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, closestType(tt.in, candidates))
		})
	}
}
