package catalog

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rendis/flowcheck/pkg/schema"
)

// DefaultFetchConcurrency bounds concurrent catalog lookups.
const DefaultFetchConcurrency = 8

// Resolution is the outcome of resolving one distinct type string.
type Resolution struct {
	Descriptor *schema.Descriptor
	Matched    string // spelling that matched, empty when not found
}

// Found reports whether the type resolved.
func (r Resolution) Found() bool { return r.Descriptor != nil }

// Prefetch resolves each distinct type concurrently, trying alias spellings
// per type. Lookup failures become not-found entries; only context
// cancellation is returned as an error. The result does not depend on the
// order in which lookups complete.
func Prefetch(ctx context.Context, cat Catalog, types []string, limit int) (map[string]Resolution, error) {
	distinct := make(map[string]struct{}, len(types))
	for _, t := range types {
		if t != "" {
			distinct[t] = struct{}{}
		}
	}
	keys := make([]string, 0, len(distinct))
	for t := range distinct {
		keys = append(keys, t)
	}
	sort.Strings(keys)

	if limit <= 0 {
		limit = DefaultFetchConcurrency
	}

	var mu sync.Mutex
	out := make(map[string]Resolution, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, t := range keys {
		g.Go(func() error {
			desc, matched, err := ResolveAny(gctx, cat, t)
			if err != nil {
				if cerr := gctx.Err(); cerr != nil {
					return cerr
				}
				desc, matched = nil, ""
			}
			mu.Lock()
			out[t] = Resolution{Descriptor: desc, Matched: matched}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
