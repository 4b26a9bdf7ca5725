package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowcheck/pkg/schema"
)

func TestBuiltinPolicies_Compile(t *testing.T) {
	policies := BuiltinPolicies()
	require.NotEmpty(t, policies)

	ps, err := NewPolicySet(policies)
	require.NoError(t, err)
	assert.Equal(t, len(policies), ps.Len())
	assert.Contains(t, ps.IDs(), "webhook-path-spaces")
}

func TestLoadPolicies(t *testing.T) {
	doc := []byte(`
policies:
  - id: no-test-urls
    types: [nodes-base.httpRequest]
    when: has(config.url) && config.url.contains("test.")
    severity: error
    kind: invalid_value
    property: url
    message: Test endpoint in workflow
    profile: runtime
`)
	policies, err := LoadPolicies(doc)
	require.NoError(t, err)
	require.Len(t, policies, 1)
	assert.Equal(t, ProfileRuntime, policies[0].Profile)
	assert.Equal(t, KindInvalidValue, policies[0].Kind)

	_, err = LoadPolicies([]byte("policies: [unclosed"))
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeDecode))

	_, err = LoadPolicies([]byte("policies:\n  - id: x\n    profile: paranoid\n"))
	require.Error(t, err)
}

func TestLoadPolicyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.yaml")
	require.NoError(t, os.WriteFile(path, []byte("policies:\n  - id: a\n    when: \"true\"\n    severity: suggestion\n    message: hi\n"), 0o644))

	policies, err := LoadPolicyFile(path)
	require.NoError(t, err)
	require.Len(t, policies, 1)

	_, err = LoadPolicyFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestNewPolicySet_Invalid(t *testing.T) {
	ok := Policy{ID: "a", When: "true", Severity: SeverityWarning, Message: "m"}
	tests := []struct {
		name string
		p    []Policy
	}{
		{"missing id", []Policy{{When: "true", Severity: SeverityWarning, Message: "m"}}},
		{"duplicate id", []Policy{ok, ok}},
		{"bad severity", []Policy{{ID: "a", When: "true", Severity: "fatal", Message: "m"}}},
		{"no message", []Policy{{ID: "a", When: "true", Severity: SeverityWarning}}},
		{"syntax", []Policy{{ID: "a", When: "config.url ==", Severity: SeverityWarning, Message: "m"}}},
		{"undeclared variable", []Policy{{ID: "a", When: "steps.x == 1", Severity: SeverityWarning, Message: "m"}}},
		{"non-boolean", []Policy{{ID: "a", When: "1 + 1", Severity: SeverityWarning, Message: "m"}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewPolicySet(tc.p)
			require.Error(t, err)
			assert.True(t, schema.IsCode(err, schema.ErrCodePolicy))
		})
	}
}

func TestPolicy_Apply(t *testing.T) {
	ps, err := NewPolicySet([]Policy{
		{
			ID:       "big-batch",
			Types:    []string{"nodes-base.splitInBatches"},
			When:     "has(config.batchSize) && config.batchSize > 100.0",
			Severity: SeverityError,
			Kind:     KindInefficient,
			Property: "batchSize",
			Message:  "batch too large",
			Profile:  ProfileRuntime,
		},
		{
			ID:       "named",
			When:     `name.startsWith("tmp")`,
			Severity: SeveritySuggestion,
			Message:  "rename temporary node",
			Profile:  ProfileStrict,
		},
		{
			// Fails at evaluation time on every node without "missing".
			ID:       "broken",
			When:     `config.missing == "x"`,
			Severity: SeverityError,
			Message:  "never reported",
		},
	})
	require.NoError(t, err)
	e := newTestEngine(t, WithPolicies(ps))

	in := Input{
		Type:   "n8n-nodes-base.splitInBatches",
		Name:   "tmp loop",
		Config: map[string]any{"batchSize": 500.0},
	}
	r := e.ValidateInput(in, ProfileRuntime)
	require.Len(t, r.Errors, 1)
	assert.Equal(t, "batch too large", r.Errors[0].Message)
	assert.Equal(t, KindInefficient, r.Errors[0].Kind)
	assert.NotContains(t, r.Suggestions, "rename temporary node")

	r = e.ValidateInput(in, ProfileStrict)
	assert.Contains(t, r.Suggestions, "rename temporary node")

	in.Type = "n8n-nodes-base.noOp"
	r = e.ValidateInput(in, ProfileRuntime)
	assert.Empty(t, r.Errors)
}

func TestBuiltinPolicy_WebhookPathSpaces(t *testing.T) {
	e := newTestEngine(t)
	r := e.Validate("n8n-nodes-base.webhook", map[string]any{"path": "my hook"}, nil, ProfileRuntime)
	require.Len(t, r.Warnings, 1)
	assert.Equal(t, "path", r.Warnings[0].Property)
	assert.Contains(t, r.Warnings[0].Message, "spaces")
}

func TestBuiltinPolicy_CodeEval(t *testing.T) {
	e := newTestEngine(t)
	r := e.Validate("n8n-nodes-base.code", map[string]any{"jsCode": "return eval($json.expr)"}, nil, ProfileAIFriendly)
	var found bool
	for _, w := range r.Warnings {
		if w.Kind == KindSecurity && w.Message == "Code uses eval()" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestBuiltinPolicy_UnauthorizedCerts(t *testing.T) {
	e := newTestEngine(t)
	r := e.Validate("n8n-nodes-base.httpRequest", map[string]any{
		"url":     "https://x.io",
		"options": map[string]any{"allowUnauthorizedCerts": true},
	}, nil, ProfileRuntime)
	assert.NotNil(t, findIssue(r.Warnings, "options.allowUnauthorizedCerts"))
}
