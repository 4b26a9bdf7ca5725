package report

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/itchyny/gojq"

	"github.com/rendis/flowcheck/pkg/schema"
)

// maxCachedFilters bounds the filter cache. Filters are caller supplied.
const maxCachedFilters = 128

// Query runs jq filters over validation output. Compiled filters are cached
// and reused across goroutines.
type Query struct {
	mu    sync.RWMutex
	cache map[string]*gojq.Code
}

// NewQuery creates an empty filter cache.
func NewQuery() *Query {
	return &Query{cache: make(map[string]*gojq.Code)}
}

// Run applies a jq filter to v and returns every output. v is first
// round-tripped through JSON so struct values are seen with their JSON
// field names.
func (q *Query) Run(ctx context.Context, filter string, v any) ([]any, error) {
	if filter == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty jq filter")
	}
	code, err := q.compile(filter)
	if err != nil {
		return nil, err
	}
	input, err := toJQ(v)
	if err != nil {
		return nil, err
	}

	iter := code.RunWithContext(ctx, input)
	var out []any
	for {
		val, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := val.(error); isErr {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"jq evaluation failed for %q: %s", filter, err.Error()).
				WithCause(err).
				WithDetails(map[string]any{"filter": filter})
		}
		out = append(out, val)
	}
	return out, nil
}

func (q *Query) compile(filter string) (*gojq.Code, error) {
	q.mu.RLock()
	if code, ok := q.cache[filter]; ok {
		q.mu.RUnlock()
		return code, nil
	}
	q.mu.RUnlock()

	q.mu.Lock()
	defer q.mu.Unlock()

	if code, ok := q.cache[filter]; ok {
		return code, nil
	}

	parsed, err := gojq.Parse(filter)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"jq parse error in %q: %s", filter, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"filter": filter})
	}
	code, err := gojq.Compile(parsed,
		// No $ENV access.
		gojq.WithEnvironLoader(func() []string { return nil }),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"jq compile error in %q: %s", filter, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"filter": filter})
	}
	if len(q.cache) >= maxCachedFilters {
		clear(q.cache)
	}
	q.cache[filter] = code
	return code, nil
}

func toJQ(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeInternal, "encode query input: %s", err.Error()).WithCause(err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeInternal, "decode query input: %s", err.Error()).WithCause(err)
	}
	return out, nil
}
