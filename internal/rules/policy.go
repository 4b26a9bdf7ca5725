package rules

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/cel-go/cel"
	"gopkg.in/yaml.v3"

	"github.com/rendis/flowcheck/internal/catalog"
	"github.com/rendis/flowcheck/pkg/schema"
)

//go:embed policies.yaml
var builtinPolicies []byte

// Policy is a declarative rule: a CEL condition over the node configuration
// that produces one finding when it evaluates to true.
//
// The condition sees these variables:
//   - config:    map(string, dyn), parameters with node settings merged on top
//   - node_type: string, canonical node type
//   - local:     string, type without its package
//   - version:   double, typeVersion (0 when unknown)
//   - name:      string, node name
type Policy struct {
	ID       string   `yaml:"id" json:"id"`
	Types    []string `yaml:"types,omitempty" json:"types,omitempty"`
	When     string   `yaml:"when" json:"when"`
	Severity string   `yaml:"severity" json:"severity"`
	Kind     Kind     `yaml:"kind" json:"kind"`
	Property string   `yaml:"property,omitempty" json:"property,omitempty"`
	Message  string   `yaml:"message" json:"message"`
	Fix      string   `yaml:"fix,omitempty" json:"fix,omitempty"`
	Profile  Profile  `yaml:"profile" json:"profile"`
}

const (
	SeverityError      = "error"
	SeverityWarning    = "warning"
	SeveritySuggestion = "suggestion"
)

type compiledPolicy struct {
	Policy
	types map[string]bool
	prg   cel.Program
}

func (c *compiledPolicy) applies(nodeType string) bool {
	return len(c.types) == 0 || c.types[nodeType]
}

// PolicySet is a compiled, immutable list of policies.
type PolicySet struct {
	policies []*compiledPolicy
}

// Len returns the number of policies.
func (ps *PolicySet) Len() int {
	if ps == nil {
		return 0
	}
	return len(ps.policies)
}

// IDs returns the policy identifiers in evaluation order.
func (ps *PolicySet) IDs() []string {
	if ps == nil {
		return nil
	}
	ids := make([]string, len(ps.policies))
	for i, p := range ps.policies {
		ids[i] = p.ID
	}
	return ids
}

type policyFile struct {
	Policies []Policy `yaml:"policies"`
}

// BuiltinPolicies returns the policies shipped with flowcheck.
func BuiltinPolicies() []Policy {
	ps, err := LoadPolicies(builtinPolicies)
	if err != nil {
		panic(fmt.Sprintf("builtin policies: %v", err))
	}
	return ps
}

// LoadPolicies decodes a YAML document with a top-level "policies" list.
func LoadPolicies(data []byte) ([]Policy, error) {
	var f policyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeDecode, "decode policies: %s", err.Error()).WithCause(err)
	}
	return f.Policies, nil
}

// LoadPolicyFile reads policies from a YAML file.
func LoadPolicyFile(path string) ([]Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "read policy file %s: %s", path, err.Error()).WithCause(err)
	}
	return LoadPolicies(data)
}

func policyEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("config", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("node_type", cel.StringType),
		cel.Variable("local", cel.StringType),
		cel.Variable("version", cel.DoubleType),
		cel.Variable("name", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	return env, nil
}

// NewPolicySet validates and compiles policies. Any invalid policy fails
// the whole set.
func NewPolicySet(policies []Policy) (*PolicySet, error) {
	env, err := policyEnv()
	if err != nil {
		return nil, err
	}
	ps := &PolicySet{policies: make([]*compiledPolicy, 0, len(policies))}
	seen := make(map[string]bool, len(policies))
	for _, p := range policies {
		if p.ID == "" {
			return nil, schema.NewError(schema.ErrCodePolicy, "policy without id")
		}
		if seen[p.ID] {
			return nil, schema.NewErrorf(schema.ErrCodePolicy, "duplicate policy id %q", p.ID)
		}
		seen[p.ID] = true
		switch p.Severity {
		case SeverityError, SeverityWarning, SeveritySuggestion:
		default:
			return nil, schema.NewErrorf(schema.ErrCodePolicy, "policy %s: unknown severity %q", p.ID, p.Severity)
		}
		if p.Message == "" {
			return nil, schema.NewErrorf(schema.ErrCodePolicy, "policy %s: message is required", p.ID)
		}

		ast, issues := env.Compile(p.When)
		if issues != nil && issues.Err() != nil {
			return nil, schema.NewErrorf(schema.ErrCodePolicy,
				"policy %s: CEL compile error in %q: %s", p.ID, p.When, issues.Err().Error()).
				WithCause(issues.Err()).
				WithDetails(map[string]any{"policy": p.ID, "expression": p.When})
		}
		if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
			return nil, schema.NewErrorf(schema.ErrCodePolicy,
				"policy %s: condition must be boolean, got %s", p.ID, out)
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodePolicy,
				"policy %s: CEL program error: %s", p.ID, err.Error()).WithCause(err)
		}

		cp := &compiledPolicy{Policy: p, prg: prg}
		if len(p.Types) > 0 {
			cp.types = make(map[string]bool, len(p.Types))
			for _, t := range p.Types {
				cp.types[catalog.Canonical(t)] = true
			}
		}
		if cp.Kind == "" {
			cp.Kind = KindBestPractice
		}
		ps.policies = append(ps.policies, cp)
	}
	return ps, nil
}

// Rule adapts the set into a Rule. Conditions that fail to evaluate or
// yield a non-boolean are skipped and logged at debug level.
func (ps *PolicySet) Rule(logger *slog.Logger) Rule {
	return func(acc Accumulator, in Input) Accumulator {
		if ps == nil {
			return acc
		}
		var activation map[string]any
		for _, p := range ps.policies {
			if !p.applies(in.Type) || !acc.Active(p.Profile) {
				continue
			}
			if activation == nil {
				activation = map[string]any{
					"config":    in.Config,
					"node_type": in.Type,
					"local":     in.Local(),
					"version":   in.Version,
					"name":      in.Name,
				}
			}
			out, _, err := p.prg.Eval(activation)
			if err != nil {
				logger.Debug("policy skipped", slog.String("policy", p.ID), slog.String("node", in.Name), slog.String("error", err.Error()))
				continue
			}
			hit, ok := out.Value().(bool)
			if !ok {
				logger.Debug("policy skipped", slog.String("policy", p.ID), slog.String("node", in.Name), slog.String("error", "non-boolean result"))
				continue
			}
			if !hit {
				continue
			}
			is := Issue{Kind: p.Kind, Property: p.Property, Message: p.Message, Fix: p.Fix}
			switch p.Severity {
			case SeverityError:
				acc = acc.Error(p.Profile, is)
			case SeverityWarning:
				acc = acc.Warn(p.Profile, is)
			case SeveritySuggestion:
				acc = acc.Suggest(p.Profile, p.Message)
			}
		}
		return acc
	}
}
