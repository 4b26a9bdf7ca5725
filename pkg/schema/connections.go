package schema

import "sort"

// ConnectionKind is the semantic category of an edge.
type ConnectionKind string

const (
	KindMain          ConnectionKind = "main"
	KindError         ConnectionKind = "error"
	KindAITool        ConnectionKind = "ai_tool"
	KindLanguageModel ConnectionKind = "ai_languageModel"
	KindMemory        ConnectionKind = "ai_memory"
	KindEmbedding     ConnectionKind = "ai_embedding"
	KindVectorStore   ConnectionKind = "ai_vectorStore"
	KindDocument      ConnectionKind = "ai_document"
	KindOutputParser  ConnectionKind = "ai_outputParser"
	KindTextSplitter  ConnectionKind = "ai_textSplitter"
	KindRetriever     ConnectionKind = "ai_retriever"
)

// knownKinds lists the kinds in their canonical iteration order.
var knownKinds = []ConnectionKind{
	KindMain, KindError, KindAITool, KindLanguageModel, KindMemory,
	KindEmbedding, KindVectorStore, KindDocument, KindOutputParser,
	KindTextSplitter, KindRetriever,
}

// Known reports whether the kind is one of the enumerated kinds.
func (k ConnectionKind) Known() bool {
	for _, kk := range knownKinds {
		if k == kk {
			return true
		}
	}
	return false
}

// IsAI reports whether the kind belongs to the AI overlay graph.
func (k ConnectionKind) IsAI() bool {
	return len(k) > 3 && k[:3] == "ai_"
}

// Connection is a single edge endpoint inside an output slot.
type Connection struct {
	Node  string         `json:"node"`
	Type  ConnectionKind `json:"type"`
	Index int            `json:"index"`
}

// OutputSlot is the ordered edge list of one output. A nil or empty slot is
// an intentionally unconnected branch, not an error.
type OutputSlot []Connection

// Connected reports whether the slot carries at least one edge.
func (s OutputSlot) Connected() bool { return len(s) > 0 }

// NodeConnections maps a connection kind to the node's output slots.
type NodeConnections map[ConnectionKind][]OutputSlot

// Kinds returns the kinds present, known kinds first in canonical order,
// then unknown kinds sorted.
func (nc NodeConnections) Kinds() []ConnectionKind {
	out := make([]ConnectionKind, 0, len(nc))
	for _, k := range knownKinds {
		if _, ok := nc[k]; ok {
			out = append(out, k)
		}
	}
	var extra []string
	for k := range nc {
		if !k.Known() {
			extra = append(extra, string(k))
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		out = append(out, ConnectionKind(k))
	}
	return out
}

// ConnectionMap maps a source node name to its outgoing connections.
// Keys are node names, never node ids.
type ConnectionMap map[string]NodeConnections

// Sources returns the source keys in deterministic order: keys matching a
// name in order come first (in that order), the rest follow sorted.
func (cm ConnectionMap) Sources(order []string) []string {
	out := make([]string, 0, len(cm))
	seen := make(map[string]bool, len(cm))
	for _, name := range order {
		if _, ok := cm[name]; ok && !seen[name] {
			out = append(out, name)
			seen[name] = true
		}
	}
	var rest []string
	for k := range cm {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// Edge is a flattened connection with its origin.
type Edge struct {
	Source string
	Kind   ConnectionKind
	Output int
	Target Connection
}

// Edges flattens the map into edges in deterministic order.
func (cm ConnectionMap) Edges(order []string) []Edge {
	var out []Edge
	for _, src := range cm.Sources(order) {
		nc := cm[src]
		for _, kind := range nc.Kinds() {
			for outIdx, slot := range nc[kind] {
				for _, c := range slot {
					out = append(out, Edge{Source: src, Kind: kind, Output: outIdx, Target: c})
				}
			}
		}
	}
	return out
}
