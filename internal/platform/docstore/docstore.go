// Package docstore abstracts the partitioned document collections the domain
// stores persist into. The backend guarantees read-after-write consistency
// within a partition and nothing across partitions; operations that span
// partitions (such as the activity rename fan-out) are explicitly non-atomic.
package docstore

import "context"

// Op is a filter comparison operator.
type Op string

const (
	OpEq  Op = "eq"
	OpGte Op = "gte"
	OpLte Op = "lte"
)

// Filter is a single predicate over one document field. Field names refer to
// the stored (snake_case) names; "id" addresses the document identifier.
type Filter struct {
	Field string
	Op    Op
	Value any
}

func Eq(field string, value any) Filter  { return Filter{Field: field, Op: OpEq, Value: value} }
func Gte(field string, value any) Filter { return Filter{Field: field, Op: OpGte, Value: value} }
func Lte(field string, value any) Filter { return Filter{Field: field, Op: OpLte, Value: value} }

// Query combines the predicates that are present with AND semantics; an
// absent predicate imposes no constraint. Limit of 0 means unbounded.
type Query struct {
	Filters []Filter
	Limit   int
}

// Collection is one partitioned document collection. The partition argument
// is the partition-key value of the addressed document; for collections
// partitioned by id it equals the id.
type Collection interface {
	// Get loads the document with the given id into out, which must be a
	// pointer to a struct. Returns ErrNotFound when absent.
	Get(ctx context.Context, id, partition string, out any) error
	// Create inserts a new document. Returns ErrConflict when the id is
	// already taken, including when a concurrent create won the race.
	Create(ctx context.Context, id, partition string, doc any) error
	// Upsert replaces the document wholesale, creating it if necessary.
	Upsert(ctx context.Context, id, partition string, doc any) error
	// Delete removes the document. Returns ErrNotFound when absent.
	Delete(ctx context.Context, id, partition string) error
	// Query decodes every matching document into out, which must be a
	// pointer to a slice. No ordering is guaranteed; callers sort.
	Query(ctx context.Context, q Query, out any) error
}

// Store hands out collections. partitionField names the stored field the
// collection is physically partitioned by ("_id" for self-partitioned ones).
type Store interface {
	Collection(name, partitionField string) Collection
}
