// Package validation runs the workflow validation pipeline: structural graph
// checks, per-node configuration rules, expressions and AI topology, followed
// by suggestion synthesis.
package validation

import (
	"log/slog"
	"time"

	"github.com/rendis/flowcheck/internal/catalog"
	"github.com/rendis/flowcheck/internal/logging"
	"github.com/rendis/flowcheck/internal/rules"
	"github.com/rendis/flowcheck/internal/topology"
	"github.com/rendis/flowcheck/pkg/schema"
)

// Entry point names reported to the Observer.
const (
	EntryWorkflow    = "workflow"
	EntryConnections = "connections"
	EntryExpressions = "expressions"
	EntryNode        = "node"
	EntryNodeMinimal = "node_minimal"
)

// Options selects the pipeline stages and the rule profile.
type Options struct {
	ValidateNodes       bool          `json:"validateNodes"`
	ValidateConnections bool          `json:"validateConnections"`
	ValidateExpressions bool          `json:"validateExpressions"`
	Profile             rules.Profile `json:"profile"`
}

// DefaultOptions enables every stage under the runtime profile.
func DefaultOptions() Options {
	return Options{
		ValidateNodes:       true,
		ValidateConnections: true,
		ValidateExpressions: true,
		Profile:             rules.DefaultWorkflowProfile,
	}
}

// Observer receives one call per finished validation run.
type Observer interface {
	ObserveRun(entry string, res *schema.ValidationResult, d time.Duration)
}

// Validator checks workflow documents. It keeps no per-run state and is safe
// for concurrent use.
type Validator struct {
	catalog     catalog.Catalog
	engine      *rules.Engine
	topology    *topology.Checker
	logger      *slog.Logger
	observer    Observer
	fetchLimit  int
}

// Option configures a Validator.
type Option func(*Validator)

// WithLogger sets the logger. Records carry the run id and workflow name when
// the logger's handler is a logging.CorrelationHandler.
func WithLogger(l *slog.Logger) Option {
	return func(v *Validator) {
		if l != nil {
			v.logger = l
		}
	}
}

// WithEngine replaces the default rule engine.
func WithEngine(e *rules.Engine) Option {
	return func(v *Validator) { v.engine = e }
}

// WithObserver reports every run to o.
func WithObserver(o Observer) Option {
	return func(v *Validator) { v.observer = o }
}

// WithFetchConcurrency bounds concurrent catalog lookups per run.
func WithFetchConcurrency(n int) Option {
	return func(v *Validator) { v.fetchLimit = n }
}

// New creates a Validator backed by cat. cat may be nil, in which case every
// node type is reported as unknown.
func New(cat catalog.Catalog, opts ...Option) (*Validator, error) {
	v := &Validator{
		catalog:     cat,
		logger:      logging.Discard(),
		fetchLimit:  catalog.DefaultFetchConcurrency,
	}
	for _, o := range opts {
		o(v)
	}
	if v.engine == nil {
		e, err := rules.NewEngine(rules.WithLogger(v.logger))
		if err != nil {
			return nil, err
		}
		v.engine = e
	}
	v.topology = topology.New(topology.WithLogger(v.logger))
	return v, nil
}

func (v *Validator) observe(entry string, res *schema.ValidationResult, start time.Time) {
	if v.observer != nil {
		v.observer.ObserveRun(entry, res, time.Since(start))
	}
}
