package diagram

import (
	"fmt"
	"strings"
)

// RenderMermaid renders a DiagramModel as a Mermaid flowchart string.
// AI attachments are drawn as dashed arrows.
func RenderMermaid(model *DiagramModel) string {
	var b strings.Builder

	b.WriteString("graph TD\n")
	if model.Title != "" {
		fmt.Fprintf(&b, "    %%%% %s\n", model.Title)
	}

	for _, node := range model.Nodes {
		fmt.Fprintf(&b, "    %s\n", mermaidNodeDef(node))
	}

	for _, edge := range model.Edges {
		arrow := "-->"
		if edge.AI {
			arrow = "-.->"
		}
		label := ""
		if edge.Label != "" {
			label = fmt.Sprintf("|%s|", mermaidEscapeLabel(edge.Label))
		}
		fmt.Fprintf(&b, "    %s %s%s %s\n", edge.From, arrow, label, edge.To)
	}

	b.WriteString("\n")
	b.WriteString("    classDef ok fill:#2d6a2d,stroke:#1a4a1a,color:#fff\n")
	b.WriteString("    classDef error fill:#8b1a1a,stroke:#5c0e0e,color:#fff\n")
	b.WriteString("    classDef warning fill:#b7791a,stroke:#8a5c14,color:#fff\n")
	b.WriteString("    classDef disabled fill:#4a4a4a,stroke:#333,color:#aaa,stroke-dasharray:5 5\n")

	for _, node := range model.Nodes {
		if node.Status != nil {
			fmt.Fprintf(&b, "    class %s %s\n", node.ID, node.Status.Verdict)
		}
	}

	return b.String()
}

// mermaidNodeDef returns a Mermaid node definition with the shape for its kind.
func mermaidNodeDef(node *Node) string {
	label := mermaidEscapeLabel(nodeCaption(node))

	switch node.Kind {
	case NodeKindTrigger:
		return fmt.Sprintf("%s([\"%s\"])", node.ID, label)
	case NodeKindBranch:
		return fmt.Sprintf("%s{\"%s\"}", node.ID, label)
	case NodeKindSubNode:
		return fmt.Sprintf("%s{{\"%s\"}}", node.ID, label)
	default:
		return fmt.Sprintf("%s[\"%s\"]", node.ID, label)
	}
}

// nodeCaption is the node name followed by its issue counts, if any.
func nodeCaption(node *Node) string {
	st := node.Status
	if st == nil || (st.Errors == 0 && st.Warnings == 0) {
		return node.Label
	}
	var parts []string
	if st.Errors > 0 {
		parts = append(parts, plural(st.Errors, "error"))
	}
	if st.Warnings > 0 {
		parts = append(parts, plural(st.Warnings, "warning"))
	}
	return fmt.Sprintf("%s (%s)", node.Label, strings.Join(parts, ", "))
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// mermaidEscapeLabel replaces characters that end a quoted Mermaid label.
func mermaidEscapeLabel(s string) string {
	r := strings.NewReplacer(`"`, "#quot;", "|", "#124;", "\n", " ")
	return r.Replace(s)
}
