package catalog

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/rendis/flowcheck/pkg/schema"
)

//go:embed builtin_nodes.json
var builtinNodes []byte

// Memory is a map-backed Catalog. It is safe for concurrent use.
type Memory struct {
	mu    sync.RWMutex
	types map[string]*schema.Descriptor
}

// NewMemory creates a Memory catalog holding the given descriptors.
func NewMemory(descs ...*schema.Descriptor) *Memory {
	m := &Memory{types: make(map[string]*schema.Descriptor, len(descs))}
	for _, d := range descs {
		m.Add(d)
	}
	return m
}

// Builtin returns a Memory catalog seeded with the embedded descriptors for
// the core and LangChain node types.
func Builtin() (*Memory, error) {
	descs, err := DecodeDescriptors(builtinNodes)
	if err != nil {
		return nil, fmt.Errorf("decode builtin catalog: %w", err)
	}
	return NewMemory(descs...), nil
}

// BuiltinJSON returns the raw embedded seed document.
func BuiltinJSON() []byte {
	return builtinNodes
}

// DecodeDescriptors parses a JSON array of descriptors.
func DecodeDescriptors(data []byte) ([]*schema.Descriptor, error) {
	var descs []*schema.Descriptor
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&descs); err != nil {
		return nil, err
	}
	for i, d := range descs {
		if d == nil || d.Type == "" {
			return nil, fmt.Errorf("descriptor %d has no type", i)
		}
	}
	return descs, nil
}

// Add registers or replaces a descriptor.
func (m *Memory) Add(d *schema.Descriptor) {
	if d == nil || d.Type == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.types[d.Type] = d
}

// Resolve implements Catalog.
func (m *Memory) Resolve(_ context.Context, nodeType string) (*schema.Descriptor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.types[nodeType]
	if !ok {
		return nil, NotFound(nodeType)
	}
	return d, nil
}

// Types implements Lister. The result is sorted.
func (m *Memory) Types(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.types))
	for t := range m.types {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}

// Len returns the number of descriptors.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.types)
}

var (
	_ Catalog = (*Memory)(nil)
	_ Lister  = (*Memory)(nil)
)
