package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// MemoryStore is the in-memory backend. It round-trips documents through JSON
// so stored data is decoupled from caller structs, and it emulates partition
// addressing: a point read with the wrong partition value misses, exactly as
// the real backend would.
//
// It backs every unit test and doubles as the store for local development.
type MemoryStore struct {
	mu      sync.RWMutex
	data    map[string]map[string]memoryDoc
	handles map[string]*memoryCollection

	// fault, when set, is consulted before every operation so tests can
	// inject backend failures (best-effort audit, fan-out isolation).
	fault func(op, collection, id string) error
}

type memoryCollection struct {
	name           string
	partitionField string
	store          *MemoryStore
}

type memoryDoc struct {
	partition string
	raw       json.RawMessage
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		data:    make(map[string]map[string]memoryDoc),
		handles: make(map[string]*memoryCollection),
	}
}

// SetFault installs a failure hook for tests. Return nil from the hook to let
// the operation proceed.
func (s *MemoryStore) SetFault(fn func(op, collection, id string) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = fn
}

func (s *MemoryStore) Collection(name, partitionField string) Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.handles[name]; ok {
		return c
	}
	c := &memoryCollection{name: name, partitionField: partitionField, store: s}
	s.handles[name] = c
	s.data[name] = make(map[string]memoryDoc)
	return c
}

// docs returns the backing map for the collection. Caller holds s.mu.
func (c *memoryCollection) docs() map[string]memoryDoc {
	return c.store.data[c.name]
}

// check runs the fault hook. Caller holds s.mu.
func (c *memoryCollection) check(op, id string) error {
	if c.store.fault != nil {
		return c.store.fault(op, c.name, id)
	}
	return nil
}

func (c *memoryCollection) Get(ctx context.Context, id, partition string, out any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	if err := c.check("get", id); err != nil {
		return err
	}
	doc, ok := c.docs()[id]
	if !ok || (partition != "" && doc.partition != partition) {
		return ErrNotFound
	}
	return json.Unmarshal(doc.raw, out)
}

func (c *memoryCollection) Create(ctx context.Context, id, partition string, doc any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	if err := c.check("create", id); err != nil {
		return err
	}
	if _, ok := c.docs()[id]; ok {
		return ErrConflict
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	c.docs()[id] = memoryDoc{partition: partition, raw: raw}
	return nil
}

func (c *memoryCollection) Upsert(ctx context.Context, id, partition string, doc any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	if err := c.check("upsert", id); err != nil {
		return err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	c.docs()[id] = memoryDoc{partition: partition, raw: raw}
	return nil
}

func (c *memoryCollection) Delete(ctx context.Context, id, partition string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	if err := c.check("delete", id); err != nil {
		return err
	}
	doc, ok := c.docs()[id]
	if !ok || (partition != "" && doc.partition != partition) {
		return ErrNotFound
	}
	delete(c.docs(), id)
	return nil
}

func (c *memoryCollection) Query(ctx context.Context, q Query, out any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	if err := c.check("query", ""); err != nil {
		return err
	}

	var matched []json.RawMessage
	for id, doc := range c.docs() {
		fields := map[string]any{}
		if err := json.Unmarshal(doc.raw, &fields); err != nil {
			continue
		}
		if _, ok := fields["id"]; !ok {
			fields["id"] = id
		}
		if matchesAll(fields, q.Filters) {
			matched = append(matched, doc.raw)
			if q.Limit > 0 && len(matched) == q.Limit {
				break
			}
		}
	}

	raw, err := json.Marshal(matched)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return json.Unmarshal(raw, out)
}

func matchesAll(fields map[string]any, filters []Filter) bool {
	for _, f := range filters {
		if !matches(fields[f.Field], f) {
			return false
		}
	}
	return true
}

// matches compares a stored JSON value against a filter value. Numbers are
// compared numerically, strings lexically; a missing or incomparable field
// never matches and never panics.
func matches(stored any, f Filter) bool {
	cmp, ok := compare(stored, f.Value)
	if !ok {
		return false
	}
	switch f.Op {
	case OpEq:
		return cmp == 0
	case OpGte:
		return cmp >= 0
	case OpLte:
		return cmp <= 0
	default:
		return false
	}
}

func compare(a, b any) (int, bool) {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
	if as, ok := a.(string); ok {
		bs, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(as, bs), true
	}
	if ab, ok := a.(bool); ok {
		bb, ok := b.(bool)
		if !ok {
			return 0, false
		}
		if ab == bb {
			return 0, true
		}
		return 1, true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
