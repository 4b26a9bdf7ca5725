package topology

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowcheck/pkg/schema"
)

func node(name, nodeType string, version float64, params map[string]any) schema.Node {
	if params == nil {
		params = map[string]any{}
	}
	return schema.Node{ID: name + "-id", Name: name, Type: nodeType, TypeVersion: version, Parameters: params}
}

func newWF(nodes ...schema.Node) *schema.Workflow {
	return &schema.Workflow{Name: "test", Nodes: nodes, Connections: schema.ConnectionMap{}}
}

func connect(wf *schema.Workflow, from string, kind schema.ConnectionKind, to string) {
	nc := wf.Connections[from]
	if nc == nil {
		nc = schema.NodeConnections{}
		wf.Connections[from] = nc
	}
	if len(nc[kind]) == 0 {
		nc[kind] = []schema.OutputSlot{nil}
	}
	nc[kind][0] = append(nc[kind][0], schema.Connection{Node: to, Type: kind})
}

func codes(issues []schema.ValidationIssue) []string {
	out := make([]string, len(issues))
	for i, is := range issues {
		out[i] = is.Code
	}
	return out
}

// chatAgent returns a chat trigger feeding an agent with one model and one
// calculator tool.
func chatAgent(agentParams map[string]any) *schema.Workflow {
	wf := newWF(
		node("Chat", "@n8n/n8n-nodes-langchain.chatTrigger", 1.1, nil),
		node("Agent", "@n8n/n8n-nodes-langchain.agent", 2.2, agentParams),
		node("Model", "@n8n/n8n-nodes-langchain.lmChatOpenAi", 1.2, nil),
		node("Calc", "@n8n/n8n-nodes-langchain.toolCalculator", 1, nil),
	)
	connect(wf, "Chat", schema.KindMain, "Agent")
	connect(wf, "Model", schema.KindLanguageModel, "Agent")
	connect(wf, "Calc", schema.KindAITool, "Agent")
	return wf
}

// --- Index ---

func TestBuildIndex(t *testing.T) {
	wf := chatAgent(nil)
	ix := BuildIndex(wf)

	models := ix.Inbound("Agent", schema.KindLanguageModel)
	require.Len(t, models, 1)
	assert.Equal(t, "Model", models[0].Name)
	assert.Equal(t, "@n8n/n8n-nodes-langchain.lmChatOpenAi", models[0].Type)

	assert.Empty(t, ix.Inbound("Agent", schema.KindMemory))
	assert.Equal(t, 1, ix.Outbound("Calc", schema.KindAITool))
	assert.Equal(t, 0, ix.Outbound("Agent", schema.KindMain))
}

func TestHasAINodes(t *testing.T) {
	plain := newWF(node("Hook", "n8n-nodes-base.webhook", 2, nil), node("Set", "n8n-nodes-base.set", 3.4, nil))
	connect(plain, "Hook", schema.KindMain, "Set")
	assert.False(t, HasAINodes(plain))
	assert.False(t, HasAINodes(nil))

	assert.True(t, HasAINodes(chatAgent(nil)))

	community := newWF(node("A", "n8n-nodes-acme.thing", 1, nil), node("B", "n8n-nodes-acme.other", 1, nil))
	connect(community, "A", schema.KindAITool, "B")
	assert.True(t, HasAINodes(community))
}

func TestCheck_NoAINodes(t *testing.T) {
	wf := newWF(node("Hook", "n8n-nodes-base.webhook", 2, nil))
	res := New().Check(context.Background(), wf)
	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
	assert.Empty(t, res.Warnings)
	assert.Empty(t, res.Info)
}

func TestCheck_CleanAgent(t *testing.T) {
	res := New().Check(context.Background(), chatAgent(map[string]any{
		"options": map[string]any{"systemMessage": "You are a careful support assistant for ACME."},
	}))
	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
	assert.Empty(t, res.Warnings)
	assert.Empty(t, res.Info)
}

// --- Agent role ---

func TestAgent_TooManyLanguageModels(t *testing.T) {
	wf := chatAgent(nil)
	wf.Nodes = append(wf.Nodes,
		node("Claude", "@n8n/n8n-nodes-langchain.lmChatAnthropic", 1.3, nil),
		node("Gemini", "@n8n/n8n-nodes-langchain.lmChatGoogleGemini", 1, nil),
	)
	connect(wf, "Claude", schema.KindLanguageModel, "Agent")
	connect(wf, "Gemini", schema.KindLanguageModel, "Agent")

	res := New().Check(context.Background(), wf)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, schema.CodeTooManyLanguageModels, res.Errors[0].Code)
	assert.Equal(t, "Agent", res.Errors[0].NodeName)
	assert.Contains(t, res.Errors[0].Message, "too many language models")
	assert.False(t, res.Valid)
}

func TestAgent_FallbackModel(t *testing.T) {
	build := func(version float64, fallback bool) *schema.Workflow {
		wf := chatAgent(map[string]any{"needsFallback": fallback})
		wf.Nodes[1].TypeVersion = version
		wf.Nodes = append(wf.Nodes, node("Backup", "@n8n/n8n-nodes-langchain.lmChatAnthropic", 1.3, nil))
		connect(wf, "Backup", schema.KindLanguageModel, "Agent")
		return wf
	}

	res := New().Check(context.Background(), build(2.1, true))
	assert.Empty(t, res.Errors)

	res = New().Check(context.Background(), build(2.0, true))
	assert.Equal(t, []string{schema.CodeTooManyLanguageModels}, codes(res.Errors))

	res = New().Check(context.Background(), build(2.2, false))
	assert.Equal(t, []string{schema.CodeTooManyLanguageModels}, codes(res.Errors))
}

func TestAgent_MissingModel(t *testing.T) {
	wf := newWF(node("Agent", "@n8n/n8n-nodes-langchain.agent", 2.2, nil))
	res := New().Check(context.Background(), wf)
	assert.Equal(t, []string{schema.CodeMissingLanguageModel}, codes(res.Errors))
}

func TestAgent_Memory(t *testing.T) {
	wf := chatAgent(nil)
	wf.Nodes = append(wf.Nodes,
		node("Mem1", "@n8n/n8n-nodes-langchain.memoryBufferWindow", 1.3, nil),
		node("Mem2", "@n8n/n8n-nodes-langchain.memoryPostgresChat", 1.3, nil),
	)
	connect(wf, "Mem1", schema.KindMemory, "Agent")
	res := New().Check(context.Background(), wf)
	assert.Empty(t, res.Errors)

	connect(wf, "Mem2", schema.KindMemory, "Agent")
	res = New().Check(context.Background(), wf)
	assert.Equal(t, []string{schema.CodeTooManyMemories}, codes(res.Errors))
}

func TestAgent_Streaming(t *testing.T) {
	wf := chatAgent(map[string]any{"options": map[string]any{"streamResponse": true}})
	wf.Nodes = append(wf.Nodes, node("Log", "n8n-nodes-base.set", 3.4, nil))
	connect(wf, "Agent", schema.KindMain, "Log")

	res := New().Check(context.Background(), wf)
	assert.Equal(t, []string{schema.CodeStreamingWithOutput}, codes(res.Errors))

	// Streaming inherited from the chat trigger.
	wf = chatAgent(nil)
	wf.Nodes[0].Parameters = map[string]any{"options": map[string]any{"responseMode": "streaming"}}
	wf.Nodes = append(wf.Nodes, node("Log", "n8n-nodes-base.set", 3.4, nil))
	connect(wf, "Agent", schema.KindMain, "Log")
	res = New().Check(context.Background(), wf)
	assert.Equal(t, []string{schema.CodeStreamingWithOutput}, codes(res.Errors))
}

func TestChatTrigger_StreamingTarget(t *testing.T) {
	wf := newWF(
		node("Chat", "@n8n/n8n-nodes-langchain.chatTrigger", 1.1, map[string]any{"options": map[string]any{"responseMode": "streaming"}}),
		node("Set", "n8n-nodes-base.set", 3.4, nil),
	)
	connect(wf, "Chat", schema.KindMain, "Set")
	res := New().Check(context.Background(), wf)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "Chat", res.Errors[0].NodeName)
	assert.Contains(t, res.Errors[0].Message, "'Set'")
}

func TestAgent_PromptAndOptions(t *testing.T) {
	res := New().Check(context.Background(), chatAgent(map[string]any{
		"promptType":      "define",
		"text":            "  ",
		"hasOutputParser": true,
		"options": map[string]any{
			"systemMessage": "Be nice.",
			"maxIterations": 80,
		},
	}))
	assert.ElementsMatch(t, []string{schema.CodeMissingPromptText, schema.CodeMissingOutputParser}, codes(res.Errors))
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0].Message, "80 iterations")
	require.Len(t, res.Info, 1)
	assert.Contains(t, res.Info[0].Message, "short system message")
}

// --- Chains ---

func TestChainLlm(t *testing.T) {
	wf := newWF(
		node("Chain", "@n8n/n8n-nodes-langchain.chainLlm", 1.5, nil),
		node("Model", "@n8n/n8n-nodes-langchain.lmChatOpenAi", 1.2, nil),
		node("Calc", "@n8n/n8n-nodes-langchain.toolCalculator", 1, nil),
	)
	connect(wf, "Model", schema.KindLanguageModel, "Chain")
	connect(wf, "Calc", schema.KindAITool, "Chain")

	res := New().Check(context.Background(), wf)
	assert.Equal(t, []string{schema.CodeInvalidToolConfig}, codes(res.Errors))
}

func TestRetrievalChain(t *testing.T) {
	wf := newWF(
		node("QA", "@n8n/n8n-nodes-langchain.chainRetrievalQa", 1.4, nil),
		node("Model", "@n8n/n8n-nodes-langchain.lmChatOpenAi", 1.2, nil),
	)
	connect(wf, "Model", schema.KindLanguageModel, "QA")
	res := New().Check(context.Background(), wf)
	assert.Equal(t, []string{schema.CodeMissingRetriever}, codes(res.Errors))
}

// --- Vector store tool ---

func vectorStoreWorkflow(withEmbedding bool) *schema.Workflow {
	wf := chatAgent(nil)
	wf.Nodes = append(wf.Nodes,
		node("Docs Tool", "@n8n/n8n-nodes-langchain.toolVectorStore", 1, map[string]any{"description": "Product documentation", "topK": 4}),
		node("Tool Model", "@n8n/n8n-nodes-langchain.lmChatOpenAi", 1.2, nil),
		node("Vector Store", "@n8n/n8n-nodes-langchain.vectorStoreInMemory", 1.1, nil),
		node("Loader", "@n8n/n8n-nodes-langchain.documentDefaultDataLoader", 1, nil),
		node("Embeddings", "@n8n/n8n-nodes-langchain.embeddingsOpenAi", 1.2, nil),
	)
	connect(wf, "Docs Tool", schema.KindAITool, "Agent")
	connect(wf, "Tool Model", schema.KindLanguageModel, "Docs Tool")
	connect(wf, "Vector Store", schema.KindVectorStore, "Docs Tool")
	connect(wf, "Loader", schema.KindDocument, "Vector Store")
	if withEmbedding {
		connect(wf, "Embeddings", schema.KindEmbedding, "Vector Store")
	}
	return wf
}

func TestVectorStoreTool_MissingEmbedding(t *testing.T) {
	res := New().Check(context.Background(), vectorStoreWorkflow(false))
	require.Len(t, res.Errors, 1)
	assert.Equal(t, schema.CodeMissingEmbedding, res.Errors[0].Code)
	assert.Equal(t, "Vector Store", res.Errors[0].NodeName)
	assert.Contains(t, res.Errors[0].Message, "'Vector Store'")
	assert.Empty(t, res.Warnings)
}

func TestVectorStoreTool_Complete(t *testing.T) {
	res := New().Check(context.Background(), vectorStoreWorkflow(true))
	assert.Empty(t, res.Errors)
	assert.Empty(t, res.Warnings)
}

func TestVectorStoreTool_Warnings(t *testing.T) {
	wf := vectorStoreWorkflow(true)
	wf.Nodes[4].Parameters["topK"] = 50
	delete(wf.Connections, "Loader")

	res := New().Check(context.Background(), wf)
	assert.Empty(t, res.Errors)
	assert.ElementsMatch(t, []string{schema.CodeTopology, schema.CodeMissingDocumentLoader}, codes(res.Warnings))
}

func TestVectorStoreTool_NoStore(t *testing.T) {
	wf := chatAgent(nil)
	wf.Nodes = append(wf.Nodes,
		node("Docs Tool", "@n8n/n8n-nodes-langchain.toolVectorStore", 1, map[string]any{"description": "docs"}),
		node("Tool Model", "@n8n/n8n-nodes-langchain.lmChatOpenAi", 1.2, nil),
	)
	connect(wf, "Docs Tool", schema.KindAITool, "Agent")
	connect(wf, "Tool Model", schema.KindLanguageModel, "Docs Tool")
	res := New().Check(context.Background(), wf)
	assert.Equal(t, []string{schema.CodeMissingVectorStore}, codes(res.Errors))
}

// --- Tools ---

func withTool(tool schema.Node) *schema.Workflow {
	wf := chatAgent(nil)
	wf.Nodes = append(wf.Nodes, tool)
	connect(wf, tool.Name, schema.KindAITool, "Agent")
	return wf
}

func TestHTTPTool(t *testing.T) {
	wf := withTool(node("Search", "@n8n/n8n-nodes-langchain.toolHttpRequest", 1.1, map[string]any{
		"toolDescription": "Search the catalog",
		"url":             "https://api.example.com/search?q={query}&limit={limit}",
		"placeholderDefinitions": map[string]any{"values": []any{
			map[string]any{"name": "query", "type": "string"},
			map[string]any{"name": "page", "type": "number"},
		}},
	}))
	res := New().Check(context.Background(), wf)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Message, "{limit}")
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0].Message, "'page'")
}

func TestHTTPTool_DescriptionAndURL(t *testing.T) {
	wf := withTool(node("Fetch", "@n8n/n8n-nodes-langchain.toolHttpRequest", 1.1, map[string]any{
		"url": "ftp://files.example.com/{path}",
		"placeholderDefinitions": map[string]any{"values": []any{
			map[string]any{"name": "path"},
		}},
	}))
	res := New().Check(context.Background(), wf)
	assert.Len(t, res.Errors, 2)
	for _, e := range res.Errors {
		assert.Equal(t, schema.CodeInvalidToolConfig, e.Code)
	}

	// Placeholders inside {{ }} expressions are not tool placeholders.
	wf = withTool(node("Fetch", "@n8n/n8n-nodes-langchain.toolHttpRequest", 1.1, map[string]any{
		"toolDescription": "Fetch an item",
		"url":             "https://api.example.com/items",
		"jsonBody":        "={{ {a: 1} }}",
	}))
	res = New().Check(context.Background(), wf)
	assert.Empty(t, res.Errors)
	assert.Empty(t, res.Warnings)
}

func TestCodeTool(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
		errors int
	}{
		{"valid", map[string]any{
			"name": "get_weather", "description": "Weather by city", "jsCode": "return 'sunny'",
			"specifyInputSchema": true, "schemaType": "manual",
			"inputSchema": `{"type": "object", "properties": {"city": {"type": "string"}}}`,
		}, 0},
		{"bad name", map[string]any{"name": "get weather", "description": "d", "jsCode": "return 1"}, 1},
		{"missing name and code", map[string]any{"description": "d"}, 2},
		{"invalid schema", map[string]any{
			"name": "f", "description": "d", "jsCode": "return 1",
			"specifyInputSchema": true, "schemaType": "manual", "inputSchema": `{"type": 5}`,
		}, 1},
		{"schema not json", map[string]any{
			"name": "f", "description": "d", "jsCode": "return 1",
			"specifyInputSchema": true, "schemaType": "manual", "inputSchema": `{type: object}`,
		}, 1},
		{"bad example", map[string]any{
			"name": "f", "description": "d", "jsCode": "return 1",
			"specifyInputSchema": true, "jsonSchemaExample": `{"city":`,
		}, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := New().Check(context.Background(), withTool(node("Tool", "@n8n/n8n-nodes-langchain.toolCode", 1.1, tc.params)))
			assert.Len(t, res.Errors, tc.errors, "%v", res.Errors)
		})
	}
}

func TestWorkflowAndMCPTools(t *testing.T) {
	res := New().Check(context.Background(), withTool(node("Sub", "@n8n/n8n-nodes-langchain.toolWorkflow", 2, map[string]any{
		"description": "Run the billing flow",
		"workflowId":  map[string]any{"__rl": true, "value": "", "mode": "list"},
	})))
	assert.Equal(t, []string{schema.CodeInvalidToolConfig}, codes(res.Errors))

	res = New().Check(context.Background(), withTool(node("MCP", "@n8n/n8n-nodes-langchain.mcpClientTool", 1, map[string]any{
		"sseEndpoint": "localhost:3000/sse",
		"include":     "selected",
	})))
	assert.Equal(t, []string{schema.CodeInvalidToolConfig}, codes(res.Errors))
	assert.Equal(t, []string{schema.CodeInvalidToolConfig}, codes(res.Warnings))
}

func TestSearchTool_Credentials(t *testing.T) {
	tool := node("Web", "@n8n/n8n-nodes-langchain.toolSerpApi", 1, nil)
	res := New().Check(context.Background(), withTool(tool))
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Message, "serpApi")

	tool.Credentials = map[string]any{"serpApi": map[string]any{"id": "1", "name": "SerpAPI"}}
	res = New().Check(context.Background(), withTool(tool))
	assert.Empty(t, res.Errors)
}

func TestToolAttachment(t *testing.T) {
	wf := chatAgent(nil)
	wf.Nodes = append(wf.Nodes,
		node("Loose", "@n8n/n8n-nodes-langchain.toolWikipedia", 1, nil),
		node("Weather", "n8n-nodes-acme.weather", 1, nil),
	)
	connect(wf, "Weather", schema.KindAITool, "Agent")

	res := New().Check(context.Background(), wf)
	assert.Empty(t, res.Errors)
	assert.ElementsMatch(t, []string{schema.CodeToolNotConnected, schema.CodeCommunityTool}, codes(res.Warnings))

	wf.Nodes[4].Disabled = true
	res = New().Check(context.Background(), wf)
	assert.Equal(t, []string{schema.CodeCommunityTool}, codes(res.Warnings))
}

func TestCheck_PanicBecomesInternalError(t *testing.T) {
	c := New()
	wf := chatAgent(nil)
	r := &run{ctx: context.Background(), checker: c, wf: wf, ix: BuildIndex(wf), nodes: map[string]*schema.Node{}, stores: map[string]bool{}, res: schema.NewValidationResult()}
	c.apply(r, &wf.Nodes[1], func(*run, *schema.Node) { panic("boom") })

	require.Len(t, r.res.Errors, 1)
	assert.Equal(t, schema.CodeInternal, r.res.Errors[0].Code)
	assert.Equal(t, "Agent", r.res.Errors[0].NodeName)
}

func TestCheck_Idempotent(t *testing.T) {
	wf := vectorStoreWorkflow(false)
	c := New()
	assert.Equal(t, c.Check(context.Background(), wf), c.Check(context.Background(), wf))
}

func TestSchemaCache(t *testing.T) {
	c := schemaCache{}
	first, err := c.compile(`{"type": "object"}`)
	require.NoError(t, err)
	again, err := c.compile(`{"type": "object"}`)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	_, err = c.compile(`{"type": "object", "required": ["city"]}`)
	require.NoError(t, err)
	assert.Len(t, c, 2)

	_, err = c.compile(`{"type": 5}`)
	assert.Error(t, err)
	assert.Len(t, c, 2)
}

func TestCheck_DistinctSchemasAcrossCalls(t *testing.T) {
	c := New()
	for i := 0; i < 20; i++ {
		params := map[string]any{
			"name": "lookup", "description": "Lookup", "jsCode": "return 1",
			"specifyInputSchema": true, "schemaType": "manual",
			"inputSchema": fmt.Sprintf(`{"type": "object", "maxProperties": %d}`, i+1),
		}
		res := c.Check(context.Background(), withTool(node("Tool", "@n8n/n8n-nodes-langchain.toolCode", 1.1, params)))
		assert.Empty(t, res.Errors, "schema %d", i)
	}
}
