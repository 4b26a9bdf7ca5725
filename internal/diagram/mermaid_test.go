package diagram

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rendis/flowcheck/pkg/schema"
)

func TestRenderMermaidLinear(t *testing.T) {
	output := RenderMermaid(Build(linearWorkflow(), nil))

	assert.True(t, strings.HasPrefix(output, "graph TD\n"))
	assert.Contains(t, output, "%% ETL Pipeline")
	assert.Contains(t, output, `n0(["Start"])`)
	assert.Contains(t, output, `n1["Fetch"]`)
	assert.Contains(t, output, "n0 --> n1")
	assert.Contains(t, output, "n1 --> n2")
	assert.NotContains(t, output, "class n0")
}

func TestRenderMermaidShapes(t *testing.T) {
	output := RenderMermaid(Build(branchWorkflow(), nil))
	assert.Contains(t, output, `n1{"Check"}`)
	assert.Contains(t, output, "n1 -->|out 1| n3")

	output = RenderMermaid(Build(agentWorkflow(), nil))
	assert.Contains(t, output, `n2{{"Model"}}`)
	assert.Contains(t, output, "n2 -.->|languageModel| n1")
	assert.Contains(t, output, "n3 -.->|memory| n1")
}

func TestRenderMermaidWithResult(t *testing.T) {
	wf := linearWorkflow()
	res := schema.NewValidationResult()
	res.AddError(schema.CategoryConfiguration, &wf.Nodes[1], schema.CodeConfiguration, "a")
	res.AddError(schema.CategoryConfiguration, &wf.Nodes[1], schema.CodeConfiguration, "b")
	res.AddWarning(schema.CategoryConfiguration, &wf.Nodes[2], schema.CodeConfiguration, "c")

	output := RenderMermaid(Build(wf, res.Finalize()))

	assert.Contains(t, output, `n1["Fetch (2 errors)"]`)
	assert.Contains(t, output, `n2["Shape (1 warning)"]`)
	assert.Contains(t, output, "class n0 ok")
	assert.Contains(t, output, "class n1 error")
	assert.Contains(t, output, "class n2 warning")
}

func TestMermaidEscapeLabel(t *testing.T) {
	assert.Equal(t, "Say #quot;hi#quot;", mermaidEscapeLabel(`Say "hi"`))
	assert.Equal(t, "a #124; b", mermaidEscapeLabel("a | b"))
	assert.Equal(t, "plain", mermaidEscapeLabel("plain"))
}
