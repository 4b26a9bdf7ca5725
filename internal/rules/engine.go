package rules

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/rendis/flowcheck/internal/catalog"
	"github.com/rendis/flowcheck/pkg/schema"
)

// Engine validates node configurations against their descriptors and the
// per-type rule library. It is safe for concurrent use after construction.
type Engine struct {
	rules    map[string]Rule
	policies *PolicySet
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithPolicies replaces the builtin CEL policy set.
func WithPolicies(ps *PolicySet) Option {
	return func(e *Engine) { e.policies = ps }
}

// WithLogger sets the logger used for skipped policies and recovered panics.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRule registers or overrides the rule for a type.
func WithRule(nodeType string, r Rule) Option {
	return func(e *Engine) { e.rules[catalog.Canonical(nodeType)] = r }
}

// NewEngine creates an Engine with the builtin rule library and policies.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		rules:  builtinRules(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(e)
	}
	if e.policies == nil {
		ps, err := NewPolicySet(BuiltinPolicies())
		if err != nil {
			return nil, fmt.Errorf("compile builtin policies: %w", err)
		}
		e.policies = ps
	}
	return e, nil
}

// Registered reports whether a type has a dedicated rule.
func (e *Engine) Registered(nodeType string) bool {
	_, ok := e.rules[catalog.Canonical(nodeType)]
	return ok
}

// Validate checks one configuration under a profile.
func (e *Engine) Validate(nodeType string, config map[string]any, props []schema.Property, profile Profile) *Result {
	return e.ValidateInput(Input{
		NodeType: nodeType,
		Type:     catalog.Canonical(nodeType),
		Config:   config,
		Props:    props,
	}, profile)
}

// ValidateInput runs the base checks, the type rule (or the essentials
// fallback), the error handling convention and the policies in that order.
// A panicking stage is recorded as one internal error and the remaining
// stages still run.
func (e *Engine) ValidateInput(in Input, profile Profile) *Result {
	if in.Config == nil {
		in.Config = map[string]any{}
	}
	typeRule, ok := e.rules[in.Type]
	if !ok {
		typeRule = essentialsRule
	}

	logger := e.logger
	if in.Logger != nil {
		logger = in.Logger
	}
	stages := []struct {
		name string
		rule Rule
	}{
		{"properties", baseRule},
		{"type", typeRule},
		{"error-handling", errorHandlingRule},
		{"policies", e.policies.Rule(logger)},
	}

	acc := NewAccumulator(profile)
	for _, st := range stages {
		acc = safeApply(logger, acc, in, st.name, st.rule)
	}
	return acc.Result()
}

func safeApply(logger *slog.Logger, acc Accumulator, in Input, stage string, r Rule) (out Accumulator) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("rule panicked",
				slog.String("node", in.Name),
				slog.String("type", in.Type),
				slog.String("stage", stage),
				slog.Any("panic", rec),
			)
			out = acc.Error(ProfileMinimal, Issue{
				Kind:    KindInternal,
				Message: fmt.Sprintf("internal error while validating %s (%s rules): %v", in.Local(), stage, rec),
			})
		}
	}()
	return r(acc, in)
}
