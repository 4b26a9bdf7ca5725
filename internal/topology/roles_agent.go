package topology

import (
	"github.com/rendis/flowcheck/pkg/schema"
)

const (
	// fallbackModelVersion is the first agent version with a fallback model input.
	fallbackModelVersion = 2.1
	maxAgentIterations   = 50
	minSystemMessage     = 20
)

func agentRole(r *run, n *schema.Node) {
	models := r.ix.Inbound(n.Name, schema.KindLanguageModel)
	fallback := flag(n, "needsFallback")
	switch len(models) {
	case 0:
		r.errorf(n, schema.CodeMissingLanguageModel,
			"AI Agent '%s' has no language model connected; connect exactly one through ai_languageModel", n.Name)
	case 1:
		if fallback {
			r.warnf(n, schema.CodeMissingLanguageModel,
				"AI Agent '%s' has needsFallback enabled but only one language model connected", n.Name)
		}
	case 2:
		if v, _, _ := n.Version(); !fallback || v < fallbackModelVersion {
			r.errorf(n, schema.CodeTooManyLanguageModels,
				"AI Agent '%s' has 2 language models; a second model is only allowed as a fallback (needsFallback: true, typeVersion %s or later)",
				n.Name, schema.FormatVersion(fallbackModelVersion))
		}
	default:
		r.errorf(n, schema.CodeTooManyLanguageModels,
			"AI Agent '%s' has too many language models (%d); connect exactly one", n.Name, len(models))
	}

	if mem := r.ix.Inbound(n.Name, schema.KindMemory); len(mem) > 1 {
		r.errorf(n, schema.CodeTooManyMemories,
			"AI Agent '%s' has %d memory connections; only one memory can own the conversation state", n.Name, len(mem))
	}

	if agentStreams(r, n) {
		if out := r.targets(n, schema.KindMain); len(out) > 0 {
			r.errorf(n, schema.CodeStreamingWithOutput,
				"AI Agent '%s' streams its response but has main output connections to %v; streaming agents must be the last node", n.Name, out)
		}
	}

	checkPrompt(r, n, "AI Agent")

	if msg := text(n, "options.systemMessage"); msg != "" && len([]rune(msg)) < minSystemMessage && !isExpression(msg) {
		r.infof(n, schema.CodeTopology,
			"AI Agent '%s' has a very short system message; describe the agent's role and constraints", n.Name)
	}

	if it, ok := number(n, "options.maxIterations"); ok && it > maxAgentIterations {
		r.warnf(n, schema.CodeTopology,
			"AI Agent '%s' allows %v iterations; more than %d risks long, expensive runs", n.Name, it, maxAgentIterations)
	}

	checkOutputParser(r, n, "AI Agent")

	if len(r.ix.Inbound(n.Name, schema.KindAITool)) == 0 {
		r.infof(n, schema.CodeTopology,
			"AI Agent '%s' has no tools connected; a Basic LLM Chain is simpler when no tools are needed", n.Name)
	}
}

// agentStreams reports whether the agent streams its response, either by its
// own option or because a streaming chat trigger feeds it.
func agentStreams(r *run, n *schema.Node) bool {
	if flag(n, "options.streamResponse") {
		return true
	}
	for _, src := range r.ix.Inbound(n.Name, schema.KindMain) {
		if src.Type == lc("chatTrigger") && chatStreams(r.nodes[src.Name]) {
			return true
		}
	}
	return false
}

func chatStreams(n *schema.Node) bool {
	if n == nil || n.Disabled {
		return false
	}
	return text(n, "options.responseMode") == "streaming" || text(n, "responseMode") == "streaming"
}

// checkPrompt requires prompt text when the prompt is defined on the node.
func checkPrompt(r *run, n *schema.Node, label string) {
	if text(n, "promptType") == "define" && text(n, "text") == "" {
		r.errorf(n, schema.CodeMissingPromptText,
			"%s '%s' uses promptType 'define' but the prompt text is empty", label, n.Name)
	}
}

// checkOutputParser matches the hasOutputParser flag against ai_outputParser
// connections.
func checkOutputParser(r *run, n *schema.Node, label string) {
	parsers := r.ix.Inbound(n.Name, schema.KindOutputParser)
	switch {
	case flag(n, "hasOutputParser") && len(parsers) == 0:
		r.errorf(n, schema.CodeMissingOutputParser,
			"%s '%s' requires a specific output format but no output parser is connected", label, n.Name)
	case !flag(n, "hasOutputParser") && len(parsers) > 0:
		r.warnf(n, schema.CodeMissingOutputParser,
			"%s '%s' has an output parser connected but hasOutputParser is off; the parser is ignored", label, n.Name)
	}
}

// checkSingleModel requires exactly one language model.
func checkSingleModel(r *run, n *schema.Node, label string) {
	switch models := r.ix.Inbound(n.Name, schema.KindLanguageModel); {
	case len(models) == 0:
		r.errorf(n, schema.CodeMissingLanguageModel,
			"%s '%s' has no language model connected", label, n.Name)
	case len(models) > 1:
		r.errorf(n, schema.CodeTooManyLanguageModels,
			"%s '%s' has too many language models (%d); connect exactly one", label, n.Name, len(models))
	}
}

func chainRole(r *run, n *schema.Node) {
	checkSingleModel(r, n, "Basic LLM Chain")
	if tools := r.ix.Inbound(n.Name, schema.KindAITool); len(tools) > 0 {
		r.errorf(n, schema.CodeInvalidToolConfig,
			"Basic LLM Chain '%s' cannot use tools (%d connected); use an AI Agent instead", n.Name, len(tools))
	}
	if mem := r.ix.Inbound(n.Name, schema.KindMemory); len(mem) > 0 {
		r.warnf(n, schema.CodeTopology,
			"Basic LLM Chain '%s' does not keep conversation memory; use an AI Agent for multi-turn conversations", n.Name)
	}
	checkPrompt(r, n, "Basic LLM Chain")
	checkOutputParser(r, n, "Basic LLM Chain")
}

func retrievalChainRole(r *run, n *schema.Node) {
	checkSingleModel(r, n, "Question and Answer Chain")
	if len(r.ix.Inbound(n.Name, schema.KindRetriever)) == 0 {
		r.errorf(n, schema.CodeMissingRetriever,
			"Question and Answer Chain '%s' has no retriever connected (ai_retriever)", n.Name)
	}
	checkPrompt(r, n, "Question and Answer Chain")
}

func summarizationChainRole(r *run, n *schema.Node) {
	checkSingleModel(r, n, "Summarization Chain")
}

func retrieverRole(r *run, n *schema.Node) {
	stores := r.ix.Inbound(n.Name, schema.KindVectorStore)
	if len(stores) == 0 {
		r.errorf(n, schema.CodeMissingVectorStore,
			"Vector Store Retriever '%s' has no vector store connected (ai_vectorStore)", n.Name)
	}
	for _, s := range stores {
		checkVectorStore(r, s.Name, n.Name)
	}
}

func chatTriggerRole(r *run, n *schema.Node) {
	if !chatStreams(n) {
		return
	}
	for _, target := range r.targets(n, schema.KindMain) {
		if r.typeOf(target) != lc("agent") {
			r.errorf(n, schema.CodeStreamingWithOutput,
				"Chat Trigger '%s' streams responses but feeds '%s', which is not an AI Agent; streaming needs an AI Agent as the direct target",
				n.Name, target)
		}
	}
}

// checkVectorStore validates a vector store feeding consumer. Each store is
// checked once per run.
func checkVectorStore(r *run, store, consumer string) {
	n, ok := r.nodes[store]
	if !ok || r.stores[store] {
		return
	}
	r.stores[store] = true
	if len(r.ix.Inbound(store, schema.KindEmbedding)) == 0 {
		r.errorf(n, schema.CodeMissingEmbedding,
			"Vector store '%s' used by '%s' has no embedding model connected (ai_embedding)", store, consumer)
	}
	if len(r.ix.Inbound(store, schema.KindDocument)) == 0 {
		r.warnf(n, schema.CodeMissingDocumentLoader,
			"Vector store '%s' has no document loader connected (ai_document); it can only query existing data", store)
	}
}
