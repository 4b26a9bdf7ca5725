package rules

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/rendis/flowcheck/pkg/schema"
)

// baseRule applies the descriptor-driven checks every node type gets.
func baseRule(acc Accumulator, in Input) Accumulator {
	if len(in.Props) == 0 {
		return checkSecrets(acc, in)
	}
	defaults := make(map[string]any, len(in.Props))
	declared := make(map[string]bool, len(in.Props))
	for _, p := range in.Props {
		defaults[p.Name] = p.Default
		declared[p.Name] = true
	}

	for _, p := range in.Props {
		v, set := in.Config[p.Name]
		shown := visible(p, in, defaults)

		if p.Required && shown && (!set || isEmpty(v)) && isEmpty(p.Default) {
			acc = acc.Error(ProfileMinimal, Issue{
				Kind:     KindMissingRequired,
				Property: p.Name,
				Message:  fmt.Sprintf("Required property '%s' is missing", label(p)),
				Fix:      fmt.Sprintf("Set '%s'", p.Name),
			})
			continue
		}
		if !set {
			continue
		}
		if !shown {
			if !looseEqual(v, p.Default) {
				acc = acc.Warn(ProfileAIFriendly, Issue{
					Kind:     KindBestPractice,
					Property: p.Name,
					Message:  fmt.Sprintf("Property '%s' is set but not shown for the current configuration%s; it will be ignored", p.Name, showHint(p)),
					Fix:      fmt.Sprintf("Remove '%s' or change the settings that control it", p.Name),
				})
			}
			continue
		}
		if IsExpression(v) || v == nil {
			continue
		}
		acc = checkType(acc, p, v)
	}

	keys := make([]string, 0, len(in.Config))
	for k := range in.Config {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if declared[k] || schema.NodeSettingKeys[k] {
			continue
		}
		acc = acc.Warn(ProfileStrict, Issue{
			Kind:     KindInvalidConfiguration,
			Property: k,
			Message:  fmt.Sprintf("Unknown property '%s' for %s", k, in.Local()),
			Fix:      fmt.Sprintf("Remove '%s'", k),
		})
	}

	return checkSecrets(acc, in)
}

func checkType(acc Accumulator, p schema.Property, v any) Accumulator {
	bad := func(want string) Accumulator {
		return acc.Error(ProfileRuntime, Issue{
			Kind:     KindInvalidType,
			Property: p.Name,
			Message:  fmt.Sprintf("Property '%s' must be %s, got %s", p.Name, want, typeName(v)),
		})
	}
	switch p.Type {
	case "string":
		if _, ok := v.(string); !ok {
			return bad("a string")
		}
	case "number":
		if _, ok := toNumber(v); !ok {
			return bad("a number")
		}
	case "boolean":
		if _, ok := v.(bool); !ok {
			return bad("a boolean")
		}
	case "collection", "fixedCollection", "filter", "resourceMapper":
		if _, ok := v.(map[string]any); !ok {
			return bad("an object")
		}
	case "multiOptions":
		list, ok := v.([]any)
		if !ok {
			return bad("an array")
		}
		for _, item := range list {
			if !IsExpression(item) && !inOptions(p, item) {
				return acc.Error(ProfileRuntime, invalidOption(p, item))
			}
		}
	case "options":
		switch v.(type) {
		case map[string]any, []any:
			return bad("a single value")
		}
		if len(p.Options) > 0 && !inOptions(p, v) {
			return acc.Error(ProfileRuntime, invalidOption(p, v))
		}
	}
	return acc
}

func inOptions(p schema.Property, v any) bool {
	for _, o := range p.Options {
		if looseEqual(o.Value, v) {
			return true
		}
	}
	return false
}

func invalidOption(p schema.Property, v any) Issue {
	vals := make([]string, 0, len(p.Options))
	for i, o := range p.Options {
		if i == 10 {
			vals = append(vals, "...")
			break
		}
		vals = append(vals, fmt.Sprint(o.Value))
	}
	return Issue{
		Kind:     KindInvalidValue,
		Property: p.Name,
		Message:  fmt.Sprintf("Invalid value %v for '%s'; must be one of: %s", v, p.Name, strings.Join(vals, ", ")),
		Fix:      fmt.Sprintf("Use one of: %s", strings.Join(vals, ", ")),
	}
}

// visible evaluates displayOptions against the configuration. Unset sibling
// properties take their declared defaults.
func visible(p schema.Property, in Input, defaults map[string]any) bool {
	if p.DisplayOptions == nil {
		return true
	}
	current := func(key string) any {
		if key == "@version" {
			return in.Version
		}
		if v, ok := in.Config[key]; ok {
			return v
		}
		return defaults[key]
	}
	matches := func(key string, allowed []any) bool {
		cur := current(key)
		for _, a := range allowed {
			if looseEqual(cur, a) {
				return true
			}
		}
		return false
	}
	for key, allowed := range p.DisplayOptions.Show {
		if !matches(key, allowed) {
			return false
		}
	}
	for key, denied := range p.DisplayOptions.Hide {
		if matches(key, denied) {
			return false
		}
	}
	return true
}

func showHint(p schema.Property) string {
	if p.DisplayOptions == nil || len(p.DisplayOptions.Show) == 0 {
		return ""
	}
	keys := make([]string, 0, len(p.DisplayOptions.Show))
	for k := range p.DisplayOptions.Show {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, p.DisplayOptions.Show[k]))
	}
	return " (shown when " + strings.Join(parts, ", ") + ")"
}

var (
	secretKeyRe   = regexp.MustCompile(`(?i)(api[_-]?key|secret|password|passwd|access[_-]?token|auth[_-]?token|bearer|authorization)`)
	secretValueRe = regexp.MustCompile(`^(sk-|xox[bpa]-|ghp_|AKIA|Bearer\s+\S{8,})`)
)

// checkSecrets warns about credentials written into parameters.
func checkSecrets(acc Accumulator, in Input) Accumulator {
	var walk func(path string, v any)
	walk = func(path string, v any) {
		switch t := v.(type) {
		case map[string]any:
			// Header/query parameter pairs: {"name": "Authorization", "value": "..."}
			if name, ok := t["name"].(string); ok && secretKeyRe.MatchString(name) {
				if looksSecret(t["value"]) {
					acc = acc.Warn(ProfileRuntime, secretIssue(path+"."+name))
				}
			}
			keys := make([]string, 0, len(t))
			for k := range t {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				child := k
				if path != "" {
					child = path + "." + k
				}
				if s, ok := t[k].(string); ok && (secretKeyRe.MatchString(k) && looksSecret(s) || secretValueRe.MatchString(s)) {
					acc = acc.Warn(ProfileRuntime, secretIssue(child))
					continue
				}
				walk(child, t[k])
			}
		case []any:
			for i, e := range t {
				walk(fmt.Sprintf("%s[%d]", path, i), e)
			}
		}
	}
	walk("", in.Config)
	return acc
}

func looksSecret(v any) bool {
	s, ok := v.(string)
	return ok && !IsExpression(s) && len(strings.TrimSpace(s)) >= 8
}

func secretIssue(path string) Issue {
	return Issue{
		Kind:     KindSecurity,
		Property: path,
		Message:  fmt.Sprintf("'%s' looks like a hardcoded secret", path),
		Fix:      "Store the value in a credential and reference it instead",
	}
}

func label(p schema.Property) string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Name
}

func typeName(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case nil:
		return "null"
	}
	if _, ok := toNumber(v); ok {
		return "number"
	}
	return fmt.Sprintf("%T", v)
}
