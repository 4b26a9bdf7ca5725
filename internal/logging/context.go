package logging

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	runIDKey ctxKey = iota
	workflowKey
	nodeKey
)

// WithRunID returns a context with the validation run ID set.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// WithWorkflow returns a context with the workflow name set.
func WithWorkflow(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, workflowKey, name)
}

// WithNode returns a context with the node name set.
func WithNode(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, nodeKey, name)
}

// RunID extracts the run ID from the context, or "" if absent.
func RunID(ctx context.Context) string {
	v, _ := ctx.Value(runIDKey).(string)
	return v
}

// Workflow extracts the workflow name from the context, or "" if absent.
func Workflow(ctx context.Context) string {
	v, _ := ctx.Value(workflowKey).(string)
	return v
}

// Node extracts the node name from the context, or "" if absent.
func Node(ctx context.Context) string {
	v, _ := ctx.Value(nodeKey).(string)
	return v
}

// WithIDs sets the run ID and workflow name on the context at once.
func WithIDs(ctx context.Context, runID, workflow string) context.Context {
	ctx = WithRunID(ctx, runID)
	ctx = WithWorkflow(ctx, workflow)
	return ctx
}

const (
	runIDAttr    = "run_id"
	workflowAttr = "workflow"
	nodeAttr     = "node"
)

// attrs returns the correlation attributes present in ctx, leaving out the
// keys in skip.
func attrs(ctx context.Context, skip map[string]bool) []slog.Attr {
	var out []slog.Attr
	add := func(key, v string) {
		if v != "" && !skip[key] {
			out = append(out, slog.String(key, v))
		}
	}
	add(runIDAttr, RunID(ctx))
	add(workflowAttr, Workflow(ctx))
	add(nodeAttr, Node(ctx))
	return out
}

// LogWith binds the correlation attributes of ctx to logger. Handy for
// loggers handed to code that logs without a context. A CorrelationHandler
// under the returned logger does not add the bound keys a second time.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	as := attrs(ctx, nil)
	if len(as) == 0 {
		return logger
	}
	args := make([]any, len(as))
	for i, a := range as {
		args[i] = a
	}
	return logger.With(args...)
}

// CorrelationHandler adds run_id, workflow and node from the record's
// context before delegating, unless the key is already bound through
// WithAttrs. Loggers built by New already use it, so
// logger.InfoContext(ctx, ...) is enough to correlate a line with its run.
type CorrelationHandler struct {
	inner slog.Handler
	bound map[string]bool
}

func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	if as := attrs(ctx, h.bound); len(as) > 0 {
		r = r.Clone()
		r.AddAttrs(as...)
	}
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(as []slog.Attr) slog.Handler {
	bound := h.bound
	copied := false
	for _, a := range as {
		switch a.Key {
		case runIDAttr, workflowAttr, nodeAttr:
			if !copied {
				bound, copied = copyKeys(h.bound), true
			}
			bound[a.Key] = true
		}
	}
	return &CorrelationHandler{inner: h.inner.WithAttrs(as), bound: bound}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name), bound: h.bound}
}

func copyKeys(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m)+3)
	for k := range m {
		out[k] = true
	}
	return out
}
