// Package diagram renders a workflow graph with the outcome of its
// validation overlaid on each node, as Mermaid, ASCII or a graphviz image.
package diagram

// NodeKind classifies a diagram node by the role it plays in the workflow.
type NodeKind string

const (
	NodeKindTrigger NodeKind = "trigger"
	NodeKindAction  NodeKind = "action"
	NodeKindBranch  NodeKind = "branch"
	NodeKindSubNode NodeKind = "subnode"
)

// Verdict summarizes the issues reported for one node.
type Verdict string

const (
	VerdictOK       Verdict = "ok"
	VerdictWarning  Verdict = "warning"
	VerdictError    Verdict = "error"
	VerdictDisabled Verdict = "disabled"
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title  string
	Nodes  []*Node
	Edges  []Edge
	Levels [][]string
}

// Node is one workflow node.
type Node struct {
	ID     string
	Label  string
	Type   string
	Kind   NodeKind
	Status *StatusOverlay
}

// StatusOverlay carries the validation outcome for a node.
type StatusOverlay struct {
	Verdict  Verdict
	Errors   int
	Warnings int
	// Message is the first error, or the first warning when there are no
	// errors.
	Message string
}

// Edge is one connection. Label is empty for the first main output.
type Edge struct {
	From  string
	To    string
	Label string
	// AI marks sub-node attachments, drawn dashed.
	AI bool
}
