package rules

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rendis/flowcheck/internal/catalog"
	"github.com/rendis/flowcheck/pkg/schema"
)

// Input is what a rule function sees for one node.
type Input struct {
	NodeType string // as written in the workflow
	Type     string // canonical, fully namespaced
	Name     string
	Version  float64

	// Config is the node's parameters with node-level settings merged on top.
	Config map[string]any
	Props  []schema.Property

	// Credentials are the credential types the descriptor declares.
	Credentials    []string
	HasCredentials bool

	// Logger, when set, replaces the engine logger for this node so panics
	// and skipped policies carry the caller's correlation attributes.
	Logger *slog.Logger
}

// NewInput builds the rule input for a node. desc may be nil.
func NewInput(node *schema.Node, desc *schema.Descriptor) Input {
	in := Input{
		NodeType:       node.Type,
		Type:           catalog.Canonical(node.Type),
		Name:           node.Name,
		Config:         ConfigOf(node),
		HasCredentials: len(node.Credentials) > 0,
	}
	if v, ok, numeric := node.Version(); ok && numeric {
		in.Version = v
	}
	if desc != nil {
		in.Props = desc.Properties
		in.Credentials = desc.Credentials
	}
	return in
}

// ConfigOf returns a copy of the node's parameters with its node-level
// settings merged on top. The node is not modified.
func ConfigOf(node *schema.Node) map[string]any {
	out := make(map[string]any, len(node.Parameters)+4)
	for k, v := range node.Parameters {
		out[k] = v
	}
	for k, v := range node.ErrorSettings() {
		out[k] = v
	}
	if node.ExecuteOnce {
		out["executeOnce"] = true
	}
	return out
}

// Local returns the type name without its package prefix.
func (in Input) Local() string { return schema.LocalType(in.Type) }

// Value resolves a dotted path such as "options.timeout".
func (in Input) Value(path string) (any, bool) {
	var cur any = in.Config
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Has reports whether the path is set to a non-empty value.
func (in Input) Has(path string) bool {
	v, ok := in.Value(path)
	return ok && !isEmpty(v)
}

// Text returns the string at path, or "".
func (in Input) Text(path string) string {
	v, _ := in.Value(path)
	s, _ := v.(string)
	return s
}

// StringOr returns the string at path, or def when unset.
func (in Input) StringOr(path, def string) string {
	if s := in.Text(path); s != "" {
		return s
	}
	return def
}

// Bool returns the boolean at path, or false.
func (in Input) Bool(path string) bool {
	v, _ := in.Value(path)
	b, _ := v.(bool)
	return b
}

// Number returns the number at path.
func (in Input) Number(path string) (float64, bool) {
	v, ok := in.Value(path)
	if !ok {
		return 0, false
	}
	return toNumber(v)
}

// Operation returns the selected operation, falling back to the declared default.
func (in Input) Operation() string { return in.StringOr("operation", in.defaultString("operation")) }

// Resource returns the selected resource, falling back to the declared default.
func (in Input) Resource() string { return in.StringOr("resource", in.defaultString("resource")) }

func (in Input) defaultString(name string) string {
	for _, p := range in.Props {
		if p.Name == name {
			s, _ := p.Default.(string)
			return s
		}
	}
	return ""
}

// IsExpression reports whether v is an expression-mode value.
func IsExpression(v any) bool {
	s, ok := v.(string)
	return ok && (strings.HasPrefix(s, "=") || strings.Contains(s, "{{"))
}

// resourceValue unwraps a resource locator ({"__rl": true, "value": ...}).
func resourceValue(v any) any {
	if m, ok := v.(map[string]any); ok {
		if inner, ok := m["value"]; ok {
			return inner
		}
	}
	return v
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		if _, rl := t["__rl"]; rl {
			return isEmpty(t["value"])
		}
		return len(t) == 0
	}
	return false
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// looseEqual compares option values across JSON number and string forms.
func looseEqual(a, b any) bool {
	if na, ok := toNumber(a); ok {
		if nb, ok := toNumber(b); ok {
			return na == nb
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// validJSON reports whether a literal JSON parameter parses.
func validJSON(v any) bool {
	s, ok := v.(string)
	if !ok {
		return true
	}
	if strings.TrimSpace(s) == "" {
		return true
	}
	return json.Valid([]byte(s))
}
