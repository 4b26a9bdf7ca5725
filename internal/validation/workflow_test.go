package validation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowcheck/internal/catalog"
	"github.com/rendis/flowcheck/internal/logging"
	"github.com/rendis/flowcheck/internal/rules"
	"github.com/rendis/flowcheck/pkg/schema"
)

// --- Fixtures ---

func newValidator(t *testing.T, opts ...Option) *Validator {
	t.Helper()
	cat, err := catalog.Builtin()
	require.NoError(t, err)
	v, err := New(cat, opts...)
	require.NoError(t, err)
	return v
}

func node(name, nodeType string, version any, params map[string]any) schema.Node {
	if params == nil {
		params = map[string]any{}
	}
	return schema.Node{ID: "id-" + name, Name: name, Type: nodeType, TypeVersion: version, Parameters: params}
}

func wfOf(nodes ...schema.Node) *schema.Workflow {
	return &schema.Workflow{Name: "test", Nodes: nodes, Connections: schema.ConnectionMap{}}
}

func link(wf *schema.Workflow, from string, kind schema.ConnectionKind, to string) {
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

func codesOf(issues []schema.ValidationIssue) []string {
	out := make([]string, len(issues))
	for i, is := range issues {
		out[i] = is.Code
	}
	return out
}

func countCode(issues []schema.ValidationIssue, code string) int {
	n := 0
	for _, is := range issues {
		if is.Code == code {
			n++
		}
	}
	return n
}

const (
	webhookType = "n8n-nodes-base.webhook"
	manualType  = "n8n-nodes-base.manualTrigger"
	httpType    = "n8n-nodes-base.httpRequest"
	setType     = "n8n-nodes-base.set"
	noOpType    = "n8n-nodes-base.noOp"
)

func httpNode(name string) schema.Node {
	return node(name, httpType, 4.2, map[string]any{"url": "https://api.example.com/" + name})
}

// chain links the named nodes one after another through main.
func chain(wf *schema.Workflow, names ...string) {
	for i := 1; i < len(names); i++ {
		link(wf, names[i-1], schema.KindMain, names[i])
	}
}

// --- Reference scenarios ---

func TestValidateWorkflow_SingleWebhook(t *testing.T) {
	v := newValidator(t)
	wf := wfOf(node("Webhook", webhookType, 2.0, map[string]any{"path": "orders"}))

	res := v.ValidateWorkflow(context.Background(), wf, DefaultOptions())
	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, schema.CodeNoConnections, res.Warnings[0].Code)
	assert.Equal(t, 1, res.Statistics.TriggerNodes)
}

func TestValidateWorkflow_ConnectionByID(t *testing.T) {
	v := newValidator(t)
	wf := wfOf(
		node("Trigger", manualType, 1.0, nil),
		node("Set", setType, 3.4, nil),
	)
	link(wf, "id-Trigger", schema.KindMain, "Set")

	res := v.ValidateWorkflow(context.Background(), wf, DefaultOptions())
	require.Len(t, res.Errors, 1)
	assert.Equal(t, schema.CodeConnectionUsesID, res.Errors[0].Code)
	assert.Contains(t, res.Errors[0].Message, "'Trigger'")
	assert.Equal(t, 0, res.Statistics.ValidConnections)
	assert.Equal(t, 1, res.Statistics.InvalidConnections)
	assert.Contains(t, res.Suggestions, connectionExample)
}

func TestValidateWorkflow_TooManyModels(t *testing.T) {
	v := newValidator(t)
	wf := wfOf(
		node("Chat", "@n8n/n8n-nodes-langchain.chatTrigger", 1.3, nil),
		node("Agent", "@n8n/n8n-nodes-langchain.agent", 2.2, nil),
		node("OpenAI", "@n8n/n8n-nodes-langchain.lmChatOpenAi", 1.2, nil),
		node("Claude", "@n8n/n8n-nodes-langchain.lmChatAnthropic", 1.3, nil),
		node("Llama", "@n8n/n8n-nodes-langchain.lmChatOllama", 1.0, nil),
	)
	link(wf, "Chat", schema.KindMain, "Agent")
	for _, m := range []string{"OpenAI", "Claude", "Llama"} {
		link(wf, m, schema.KindLanguageModel, "Agent")
	}

	res := v.ValidateWorkflow(context.Background(), wf, DefaultOptions())
	require.Len(t, res.Errors, 1, "%v", res.Errors)
	assert.Equal(t, schema.CodeTooManyLanguageModels, res.Errors[0].Code)
	assert.Equal(t, schema.CategoryTopology, res.Errors[0].Category)
	assert.Equal(t, "Agent", res.Errors[0].NodeName)
}

func TestValidateWorkflow_VectorStoreWithoutEmbedding(t *testing.T) {
	v := newValidator(t)
	wf := wfOf(
		node("Chat", "@n8n/n8n-nodes-langchain.chatTrigger", 1.3, nil),
		node("Agent", "@n8n/n8n-nodes-langchain.agent", 2.2, nil),
		node("Model", "@n8n/n8n-nodes-langchain.lmChatOpenAi", 1.2, nil),
		node("Docs", "@n8n/n8n-nodes-langchain.toolVectorStore", 1.1, map[string]any{
			"description": "Product manuals", "topK": 4,
		}),
		node("Docs Model", "@n8n/n8n-nodes-langchain.lmChatOpenAi", 1.2, nil),
		node("Store", "@n8n/n8n-nodes-langchain.vectorStoreInMemory", 1.1, nil),
		node("Loader", "@n8n/n8n-nodes-langchain.documentDefaultDataLoader", 1.1, nil),
	)
	link(wf, "Chat", schema.KindMain, "Agent")
	link(wf, "Model", schema.KindLanguageModel, "Agent")
	link(wf, "Docs", schema.KindAITool, "Agent")
	link(wf, "Docs Model", schema.KindLanguageModel, "Docs")
	link(wf, "Store", schema.KindVectorStore, "Docs")
	link(wf, "Loader", schema.KindDocument, "Store")

	res := v.ValidateWorkflow(context.Background(), wf, DefaultOptions())
	require.Len(t, res.Errors, 1, "%v", res.Errors)
	assert.Equal(t, schema.CodeMissingEmbedding, res.Errors[0].Code)
	assert.Equal(t, "Store", res.Errors[0].NodeName)
}

// --- Properties ---

func sampleWorkflow() *schema.Workflow {
	wf := wfOf(
		node("Webhook", webhookType, 2.0, map[string]any{"path": "/orders"}),
		httpNode("Fetch"),
		node("Code", "n8n-nodes-base.code", 2.0, map[string]any{"jsCode": "return items.map(i => eval(i.json.src))"}),
		node("Notify", "n8n-nodes-base.slack", 2.2, map[string]any{"resource": "message", "operation": "post"}),
		node("Later", noOpType, 1.0, nil),
	)
	chain(wf, "Webhook", "Fetch", "Code", "Notify", "Later")
	wf.Nodes[3].Parameters["text"] = "={{ $('Later').item.json.id }}"
	return wf
}

func TestValidateWorkflow_Idempotent(t *testing.T) {
	v := newValidator(t)
	wf := sampleWorkflow()
	opts := DefaultOptions()
	opts.Profile = rules.ProfileStrict

	first := v.ValidateWorkflow(context.Background(), wf, opts)
	second := v.ValidateWorkflow(context.Background(), wf, opts)
	assert.Equal(t, first, second)
}

func TestValidateWorkflow_DoesNotMutate(t *testing.T) {
	v := newValidator(t)
	wf := sampleWorkflow()
	before := fmt.Sprintf("%#v", *wf)

	opts := DefaultOptions()
	opts.Profile = rules.ProfileStrict
	res := v.ValidateWorkflow(context.Background(), wf, opts)
	require.NotEmpty(t, res.Fixes)
	assert.Equal(t, before, fmt.Sprintf("%#v", *wf))
}

func TestValidateWorkflow_ProfileMonotonic(t *testing.T) {
	v := newValidator(t)
	wf := sampleWorkflow()

	issueSet := func(p rules.Profile) map[string]bool {
		opts := DefaultOptions()
		opts.Profile = p
		res := v.ValidateWorkflow(context.Background(), wf, opts)
		out := map[string]bool{}
		for _, group := range [][]schema.ValidationIssue{res.Errors, res.Warnings, res.Info} {
			for _, is := range group {
				out[string(is.Severity)+"|"+is.Code+"|"+is.NodeName+"|"+is.Message] = true
			}
		}
		return out
	}

	profiles := []rules.Profile{rules.ProfileMinimal, rules.ProfileRuntime, rules.ProfileAIFriendly, rules.ProfileStrict}
	for i := 1; i < len(profiles); i++ {
		lower, higher := issueSet(profiles[i-1]), issueSet(profiles[i])
		for k := range lower {
			assert.True(t, higher[k], "%s issue %q missing under %s", profiles[i-1], k, profiles[i])
		}
	}
}

func TestValidateWorkflow_ExpressionOrder(t *testing.T) {
	v := newValidator(t)
	res := v.ValidateWorkflow(context.Background(), sampleWorkflow(), DefaultOptions())

	var found bool
	for _, e := range res.Errors {
		if e.Category == schema.CategoryExpression && e.NodeName == "Notify" {
			found = true
			assert.Contains(t, e.Message, `"Later"`)
		}
	}
	assert.True(t, found, "%v", res.Errors)
	assert.Equal(t, 1, res.Statistics.ExpressionsValidated)
}

func TestValidateWorkflow_ConcurrentRuns(t *testing.T) {
	v := newValidator(t)
	want := v.ValidateWorkflow(context.Background(), sampleWorkflow(), DefaultOptions())

	var wg sync.WaitGroup
	results := make([]*schema.ValidationResult, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = v.ValidateWorkflow(context.Background(), sampleWorkflow(), DefaultOptions())
		}(i)
	}
	wg.Wait()
	for _, got := range results {
		assert.Equal(t, want, got)
	}
}

// --- Suggestions ---

func TestSuggestions_ErrorHandlingAggregate(t *testing.T) {
	v := newValidator(t)
	wf := wfOf(
		node("Webhook", webhookType, 2.0, map[string]any{"path": "orders"}),
		httpNode("A"), httpNode("B"), httpNode("C"),
	)
	chain(wf, "Webhook", "A", "B", "C")

	opts := DefaultOptions()
	opts.Profile = rules.ProfileAIFriendly
	res := v.ValidateWorkflow(context.Background(), wf, opts)

	assert.Zero(t, countCode(res.Warnings, schema.CodeErrorHandlingMissing))
	var aggregate string
	for _, s := range res.Suggestions {
		if bytes.Contains([]byte(s), []byte("no error handling")) {
			aggregate = s
		}
	}
	assert.Contains(t, aggregate, "3 of 4 nodes")
	assert.Len(t, res.Fixes, 3)
}

func TestSuggestions_ErrorHandlingPerNode(t *testing.T) {
	v := newValidator(t)
	assignments := map[string]any{"assignments": map[string]any{"assignments": []any{
		map[string]any{"name": "ok", "value": true, "type": "boolean"},
	}}}
	wf := wfOf(
		node("Webhook", webhookType, 2.0, map[string]any{"path": "orders"}),
		httpNode("A"),
		node("Set", setType, 3.4, assignments),
		node("Done", noOpType, 1.0, nil),
	)
	chain(wf, "Webhook", "A", "Set", "Done")

	opts := DefaultOptions()
	opts.Profile = rules.ProfileAIFriendly
	res := v.ValidateWorkflow(context.Background(), wf, opts)
	assert.Equal(t, 1, countCode(res.Warnings, schema.CodeErrorHandlingMissing))
	require.Len(t, res.Fixes, 1)
	assert.Equal(t, "A", res.Fixes[0].NodeName)
	assert.Contains(t, res.Fixes[0].Patch, "onError")
}

func TestSuggestions_TriggerAndSize(t *testing.T) {
	v := newValidator(t)
	var nodes []schema.Node
	var names []string
	for i := 0; i < 22; i++ {
		name := fmt.Sprintf("Step %d", i)
		nodes = append(nodes, node(name, noOpType, 1.0, nil))
		names = append(names, name)
	}
	wf := wfOf(nodes...)
	chain(wf, names...)

	res := v.ValidateWorkflow(context.Background(), wf, DefaultOptions())
	assert.Equal(t, 1, countCode(res.Warnings, schema.CodeNoTrigger))
	var trigger, size bool
	for _, s := range res.Suggestions {
		trigger = trigger || bytes.Contains([]byte(s), []byte("trigger node"))
		size = size || bytes.Contains([]byte(s), []byte("22 nodes"))
	}
	assert.True(t, trigger)
	assert.True(t, size)
}

func TestSuggestions_CleanWorkflow(t *testing.T) {
	v := newValidator(t)
	wf := wfOf(
		node("Start", manualType, 1.0, nil),
		node("Done", noOpType, 1.0, nil),
	)
	chain(wf, "Start", "Done")

	res := v.ValidateWorkflow(context.Background(), wf, DefaultOptions())
	assert.True(t, res.Valid)
	assert.Empty(t, res.Warnings)
	assert.Empty(t, res.Suggestions)
	assert.Equal(t, schema.Statistics{TotalNodes: 2, EnabledNodes: 2, TriggerNodes: 1, ValidConnections: 1}, res.Statistics)
}

// --- Narrow entry points ---

func TestValidateConnections_SkipsNodeRules(t *testing.T) {
	v := newValidator(t)
	wf := wfOf(
		node("Start", manualType, 1.0, nil),
		node("Fetch", httpType, 4.2, nil), // url missing
	)
	link(wf, "Start", schema.KindMain, "Ghost")

	res := v.ValidateConnections(context.Background(), wf)
	assert.Equal(t, []string{schema.CodeUnknownTarget}, codesOf(res.Errors))
	assert.Equal(t, 1, countCode(res.Warnings, schema.CodeOrphanNode))
}

func TestValidateExpressions_Only(t *testing.T) {
	v := newValidator(t)
	wf := wfOf(
		node("Start", manualType, 1.0, nil),
		node("Fetch", httpType, 4.2, map[string]any{"url": "={{ $json.url "}),
	)
	chain(wf, "Start", "Fetch")

	res := v.ValidateExpressions(context.Background(), wf)
	require.NotEmpty(t, res.Errors)
	for _, e := range res.Errors {
		assert.Equal(t, schema.CategoryExpression, e.Category)
	}
}

func TestValidateNode(t *testing.T) {
	v := newValidator(t)
	n := node("Fetch", httpType, 4.2, nil)

	out, err := v.ValidateNode(context.Background(), &n, rules.ProfileRuntime)
	require.NoError(t, err)
	assert.Equal(t, httpType, out.NodeType)
	assert.False(t, out.Valid)
	require.NotEmpty(t, out.Errors)
	assert.Equal(t, "url", out.Errors[0].Property)

	minimal, err := v.ValidateNodeMinimal(context.Background(), &n)
	require.NoError(t, err)
	assert.False(t, minimal.Valid)
	assert.Equal(t, []string{"url"}, minimal.MissingRequiredFields)
}

func TestValidateNode_UnknownType(t *testing.T) {
	v := newValidator(t)
	n := node("Fetch", "n8n-nodes-base.httpRequst", 1.0, nil)

	_, err := v.ValidateNode(context.Background(), &n, rules.ProfileRuntime)
	require.Error(t, err)
	assert.True(t, catalog.IsNotFound(err))
	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, httpType, fe.Details["suggestion"])

	_, err = v.ValidateNodeMinimal(context.Background(), &schema.Node{Name: "x"})
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

// --- Ambient behavior ---

type recordingObserver struct {
	mu      sync.Mutex
	entries []string
}

func (o *recordingObserver) ObserveRun(entry string, _ *schema.ValidationResult, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries = append(o.entries, entry)
}

func TestObserverAndLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(logging.NewCorrelationHandler(slog.NewJSONHandler(&buf, nil)))
	obs := &recordingObserver{}
	v := newValidator(t, WithLogger(logger), WithObserver(obs))

	wf := sampleWorkflow()
	wf.Name = "Orders"
	v.ValidateWorkflow(context.Background(), wf, DefaultOptions())
	v.ValidateConnections(context.Background(), wf)
	n := httpNode("Fetch")
	_, err := v.ValidateNode(context.Background(), &n, rules.ProfileRuntime)
	require.NoError(t, err)

	assert.Equal(t, []string{EntryWorkflow, EntryConnections, EntryNode}, obs.entries)
	assert.Contains(t, buf.String(), `"workflow":"Orders"`)
	assert.Contains(t, buf.String(), `"run_id":"`)
}

func TestRuleLogsCarryCorrelationOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(logging.NewCorrelationHandler(slog.NewJSONHandler(&buf, nil)))
	engine, err := rules.NewEngine(rules.WithLogger(logger), rules.WithRule(noOpType, func(acc rules.Accumulator, in rules.Input) rules.Accumulator {
		panic("boom")
	}))
	require.NoError(t, err)
	v := newValidator(t, WithLogger(logger), WithEngine(engine))

	wf := wfOf(node("Start", manualType, 1.0, nil), node("Done", noOpType, 1.0, nil))
	chain(wf, "Start", "Done")
	v.ValidateWorkflow(context.Background(), wf, DefaultOptions())

	var line string
	for _, l := range strings.Split(buf.String(), "\n") {
		if strings.Contains(l, "rule panicked") {
			line = l
		}
	}
	require.NotEmpty(t, line, buf.String())
	assert.Equal(t, 1, strings.Count(line, `"run_id":`), line)
	assert.Equal(t, 1, strings.Count(line, `"workflow":"test"`), line)
	assert.Contains(t, line, `"node":"Done"`)
}

func TestValidateWorkflow_Cancelled(t *testing.T) {
	v := newValidator(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := v.ValidateWorkflow(ctx, sampleWorkflow(), DefaultOptions())
	assert.False(t, res.Valid)
	assert.Equal(t, []string{schema.CodeInternal}, codesOf(res.Errors))
}

func TestValidateWorkflow_Nil(t *testing.T) {
	v := newValidator(t)
	res := v.ValidateWorkflow(context.Background(), nil, DefaultOptions())
	assert.Equal(t, []string{schema.CodeMissingNodes}, codesOf(res.Errors))
}

func TestValidateWorkflow_NilCatalog(t *testing.T) {
	v, err := New(nil)
	require.NoError(t, err)
	wf := wfOf(node("Start", manualType, 1.0, nil), node("Done", noOpType, 1.0, nil))
	chain(wf, "Start", "Done")

	res := v.ValidateWorkflow(context.Background(), wf, DefaultOptions())
	assert.Equal(t, 2, countCode(res.Errors, schema.CodeUnknownNodeType))
}

// --- Expressions ---

func TestExpressionParseCacheIsPerRun(t *testing.T) {
	v := newValidator(t)
	wf := wfOf(
		node("Start", manualType, 1.0, nil),
		node("Fetch", httpType, 4.2, map[string]any{"url": "={{ $json.base + '/orders' }}"}),
	)
	chain(wf, "Start", "Fetch")

	first := newRun(context.Background(), v, wf, DefaultOptions(), schema.NewValidationResult())
	first.checkExpressions()
	assert.Equal(t, 1, first.exprs.Cached())

	for i := 0; i < 100; i++ {
		wf.Nodes[1].Parameters["url"] = fmt.Sprintf("={{ $json.base + '/orders/%d' }}", i)
		v.ValidateWorkflow(context.Background(), wf, DefaultOptions())
	}

	second := newRun(context.Background(), v, wf, DefaultOptions(), schema.NewValidationResult())
	assert.NotSame(t, first.exprs, second.exprs)
	assert.Zero(t, second.exprs.Cached())
}

func TestValidateExpressions_ReportsUsage(t *testing.T) {
	v := newValidator(t)
	wf := wfOf(
		node("Start", manualType, 1.0, nil),
		node("Fetch", httpType, 4.2, map[string]any{"url": "={{ $json.base }}/{{ $('Start').item.json.id }}"}),
		node("Done", noOpType, 1.0, nil),
	)
	chain(wf, "Start", "Fetch", "Done")

	res := v.ValidateExpressions(context.Background(), wf)
	require.Len(t, res.Expressions, 1)
	usage := res.Expressions[0]
	assert.Equal(t, "Fetch", usage.NodeName)
	assert.Equal(t, []string{"$json"}, usage.Variables)
	assert.Equal(t, []string{"Start"}, usage.Nodes)

	data, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"usedVariables":["$json"]`)
	assert.Contains(t, string(data), `"usedNodes":["Start"]`)
}
