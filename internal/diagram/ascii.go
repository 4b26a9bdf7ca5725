package diagram

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// statusTag returns a short ASCII indicator for a verdict.
func statusTag(st *StatusOverlay) string {
	if st == nil {
		return ""
	}
	switch st.Verdict {
	case VerdictOK:
		return "[OK]"
	case VerdictError:
		return fmt.Sprintf("[ERR %d]", st.Errors)
	case VerdictWarning:
		return fmt.Sprintf("[WARN %d]", st.Warnings)
	case VerdictDisabled:
		return "[OFF]"
	}
	return ""
}

// RenderASCII renders a DiagramModel as a text diagram, one row of boxes per
// level, followed by the connection list and the first issue of every node
// that has one.
func RenderASCII(model *DiagramModel) string {
	var b strings.Builder

	if model.Title != "" {
		fmt.Fprintf(&b, "=== %s ===\n\n", model.Title)
	}

	index := make(map[string]*Node, len(model.Nodes))
	for _, n := range model.Nodes {
		index[n.ID] = n
	}

	for levelIdx, level := range model.Levels {
		var boxes []asciiBox
		for _, id := range level {
			if node := index[id]; node != nil {
				boxes = append(boxes, makeBox(node))
			}
		}
		renderBoxRow(&b, boxes)
		if levelIdx < len(model.Levels)-1 {
			renderConnector(&b, len(boxes))
		}
	}

	if len(model.Edges) > 0 {
		b.WriteString("\nConnections:\n")
		for _, e := range model.Edges {
			from, to := index[e.From], index[e.To]
			if from == nil || to == nil {
				continue
			}
			arrow := "─→"
			if e.AI {
				arrow = "┄→"
			}
			label := ""
			if e.Label != "" {
				label = " [" + e.Label + "]"
			}
			fmt.Fprintf(&b, "  %s %s %s%s\n", from.Label, arrow, to.Label, label)
		}
	}

	var notes []string
	for _, n := range model.Nodes {
		if n.Status != nil && n.Status.Message != "" {
			notes = append(notes, fmt.Sprintf("  %s: %s", n.Label, n.Status.Message))
		}
	}
	if len(notes) > 0 {
		b.WriteString("\nIssues:\n")
		b.WriteString(strings.Join(notes, "\n"))
		b.WriteByte('\n')
	}

	return b.String()
}

// asciiBox holds the rendered lines of a single box.
type asciiBox struct {
	lines []string
	width int
}

// makeBox creates an ASCII box for a node.
func makeBox(node *Node) asciiBox {
	contentLines := []string{node.Label}
	if node.Type != "" {
		contentLines = append(contentLines, "("+node.Type+")")
	}
	if tag := statusTag(node.Status); tag != "" {
		contentLines = append(contentLines, tag)
	}

	maxLen := 0
	for _, line := range contentLines {
		if n := utf8.RuneCountInString(line); n > maxLen {
			maxLen = n
		}
	}
	width := maxLen + 4 // 2 border + 2 padding

	lines := make([]string, 0, len(contentLines)+2)
	lines = append(lines, "┌"+strings.Repeat("─", width-2)+"┐")
	for _, content := range contentLines {
		padded := content + strings.Repeat(" ", maxLen-utf8.RuneCountInString(content))
		lines = append(lines, "│ "+padded+" │")
	}
	lines = append(lines, "└"+strings.Repeat("─", width-2)+"┘")

	return asciiBox{lines: lines, width: width}
}

// renderBoxRow writes boxes side by side.
func renderBoxRow(b *strings.Builder, boxes []asciiBox) {
	maxHeight := 0
	for _, box := range boxes {
		if len(box.lines) > maxHeight {
			maxHeight = len(box.lines)
		}
	}

	for row := 0; row < maxHeight; row++ {
		for i, box := range boxes {
			if i > 0 {
				b.WriteString("  ")
			}
			if row < len(box.lines) {
				b.WriteString(box.lines[row])
			} else {
				b.WriteString(strings.Repeat(" ", box.width))
			}
		}
		b.WriteByte('\n')
	}
}

// renderConnector draws a vertical connector between levels.
func renderConnector(b *strings.Builder, boxCount int) {
	if boxCount == 0 {
		return
	}
	b.WriteString("       │\n")
	b.WriteString("       ▼\n")
}
