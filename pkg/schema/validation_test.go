package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationResult_EmptyIsValid(t *testing.T) {
	r := NewValidationResult()
	assert.True(t, r.Finalize().Valid)
	assert.NoError(t, r.ToError())
}

func TestValidationResult_AddError(t *testing.T) {
	r := NewValidationResult()
	node := &Node{ID: "n1", Name: "Fetch"}
	r.AddError(CategoryStructural, node, CodeDuplicateName, "duplicate")

	assert.False(t, r.Finalize().Valid)
	require.Len(t, r.Errors, 1)
	assert.Equal(t, "n1", r.Errors[0].NodeID)
	assert.Equal(t, "Fetch", r.Errors[0].NodeName)
	assert.Equal(t, SeverityError, r.Errors[0].Severity)
	assert.Equal(t, CategoryStructural, r.Errors[0].Category)
	assert.Equal(t, "Fetch: duplicate", r.Errors[0].String())
}

func TestValidationResult_SeverityRouting(t *testing.T) {
	r := NewValidationResult()
	r.AddWarning(CategoryConfiguration, nil, CodeConfiguration, "w")
	r.AddInfo(CategoryTopology, nil, CodeTopology, "i")

	assert.True(t, r.Finalize().Valid, "warnings and info never invalidate")
	assert.Len(t, r.Warnings, 1)
	assert.Len(t, r.Info, 1)
	assert.Empty(t, r.Errors)
}

func TestValidationResult_MergeKeepsOrder(t *testing.T) {
	r1 := NewValidationResult()
	r1.AddError(CategoryStructural, nil, "", "first")
	r1.Suggest("s1")

	r2 := NewValidationResult()
	r2.AddError(CategoryTopology, nil, "", "second")
	r2.Suggest("s1")
	r2.Suggest("s2")

	r1.Merge(r2)
	require.Len(t, r1.Errors, 2)
	assert.Equal(t, "first", r1.Errors[0].Message)
	assert.Equal(t, "second", r1.Errors[1].Message)
	assert.Equal(t, []string{"s1", "s2"}, r1.Suggestions)
}

func TestValidationResult_ToError(t *testing.T) {
	r := NewValidationResult()
	r.AddError(CategoryStructural, nil, "", "a")
	r.AddError(CategoryStructural, nil, "", "b")

	err := r.ToError()
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeValidation))
	assert.Contains(t, err.Error(), "2 errors")
}

func TestValidationResult_JSONArraysNeverNull(t *testing.T) {
	data, err := json.Marshal(NewValidationResult().Finalize())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"errors":[]`)
	assert.Contains(t, string(data), `"warnings":[]`)
	assert.NotContains(t, string(data), `"info"`)
}

func TestNode_Version(t *testing.T) {
	tests := []struct {
		name        string
		tv          any
		wantV       float64
		wantPresent bool
		wantNumeric bool
	}{
		{"absent", nil, 0, false, false},
		{"float", 4.2, 4.2, true, true},
		{"int", 3, 3, true, true},
		{"json number", json.Number("2"), 2, true, true},
		{"string", "2", 0, true, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			n := &Node{TypeVersion: tc.tv}
			v, present, numeric := n.Version()
			assert.Equal(t, tc.wantV, v)
			assert.Equal(t, tc.wantPresent, present)
			assert.Equal(t, tc.wantNumeric, numeric)
		})
	}
}

func TestConnectionMap_DeterministicEdges(t *testing.T) {
	cm := ConnectionMap{
		"zeta": {KindMain: {{{Node: "a", Type: KindMain}}}},
		"B": {
			KindAITool: {{{Node: "Agent", Type: KindAITool}}},
			KindMain:   {nil, {{Node: "c", Type: KindMain}}},
		},
		"alpha": {KindMain: {{{Node: "b", Type: KindMain}}}},
	}

	edges := cm.Edges([]string{"B"})
	require.Len(t, edges, 4)
	assert.Equal(t, "B", edges[0].Source)
	assert.Equal(t, KindMain, edges[0].Kind)
	assert.Equal(t, 1, edges[0].Output, "nil slot is skipped but keeps its index")
	assert.Equal(t, KindAITool, edges[1].Kind)
	assert.Equal(t, "alpha", edges[2].Source)
	assert.Equal(t, "zeta", edges[3].Source)
}

func TestConnectionKind(t *testing.T) {
	assert.True(t, KindMain.Known())
	assert.False(t, ConnectionKind("ai_custom").Known())
	assert.True(t, ConnectionKind("ai_custom").IsAI())
	assert.False(t, KindError.IsAI())
	assert.False(t, OutputSlot(nil).Connected())
}

func TestLocalType(t *testing.T) {
	assert.Equal(t, "httpRequest", LocalType("n8n-nodes-base.httpRequest"))
	assert.Equal(t, "agent", LocalType("@n8n/n8n-nodes-langchain.agent"))
	assert.Equal(t, "webhook", LocalType("webhook"))
	assert.Equal(t, "2.1", FormatVersion(2.1))
	assert.Equal(t, "3", FormatVersion(3))
}
