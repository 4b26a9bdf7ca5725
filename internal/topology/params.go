package topology

import (
	"encoding/json"
	"strings"

	"github.com/rendis/flowcheck/pkg/schema"
)

// value resolves a dotted parameter path.
func value(n *schema.Node, path string) (any, bool) {
	var cur any = n.Parameters
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func text(n *schema.Node, path string) string {
	v, _ := value(n, path)
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func flag(n *schema.Node, path string) bool {
	v, _ := value(n, path)
	b, _ := v.(bool)
	return b
}

func number(n *schema.Node, path string) (float64, bool) {
	v, ok := value(n, path)
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	}
	return 0, false
}

// locatorValue unwraps resource locator parameters ({"__rl": true, "value": ...}).
func locatorValue(n *schema.Node, path string) string {
	v, _ := value(n, path)
	if m, ok := v.(map[string]any); ok {
		v = m["value"]
	}
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func isExpression(s string) bool {
	return strings.HasPrefix(s, "=") || strings.Contains(s, "{{")
}
