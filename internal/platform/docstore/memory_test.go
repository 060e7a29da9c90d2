package docstore

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testDoc struct {
	ID     string `json:"id" bson:"_id"`
	HomeID string `json:"home_id,omitempty" bson:"home_id,omitempty"`
	Name   string `json:"name,omitempty" bson:"name,omitempty"`
	Date   string `json:"date,omitempty" bson:"date,omitempty"`
	Count  int    `json:"count,omitempty" bson:"count,omitempty"`
}

func TestMemoryCreateGet(t *testing.T) {
	ctx := context.Background()
	coll := NewMemory().Collection("homes", "_id")

	require.NoError(t, coll.Create(ctx, "solgarden", "solgarden", testDoc{ID: "solgarden", Name: "Solgården"}))

	var got testDoc
	require.NoError(t, coll.Get(ctx, "solgarden", "solgarden", &got))
	assert.Equal(t, "Solgården", got.Name)

	err := coll.Get(ctx, "missing", "missing", &got)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryCreateConflict(t *testing.T) {
	ctx := context.Background()
	coll := NewMemory().Collection("homes", "_id")

	require.NoError(t, coll.Create(ctx, "a", "a", testDoc{ID: "a", Name: "first"}))
	err := coll.Create(ctx, "a", "a", testDoc{ID: "a", Name: "second"})
	require.ErrorIs(t, err, ErrConflict)

	// The losing create must not have clobbered the winner.
	var got testDoc
	require.NoError(t, coll.Get(ctx, "a", "a", &got))
	assert.Equal(t, "first", got.Name)
}

func TestMemoryPartitionAddressing(t *testing.T) {
	ctx := context.Background()
	coll := NewMemory().Collection("visits", "home_id")

	require.NoError(t, coll.Create(ctx, "v1", "solgarden", testDoc{ID: "v1", HomeID: "solgarden"}))

	var got testDoc
	assert.ErrorIs(t, coll.Get(ctx, "v1", "other-home", &got), ErrNotFound)
	require.NoError(t, coll.Get(ctx, "v1", "solgarden", &got))

	assert.ErrorIs(t, coll.Delete(ctx, "v1", "other-home"), ErrNotFound)
	require.NoError(t, coll.Delete(ctx, "v1", "solgarden"))
}

func TestMemoryQueryFilters(t *testing.T) {
	ctx := context.Background()
	coll := NewMemory().Collection("visits", "home_id")

	docs := []testDoc{
		{ID: "v1", HomeID: "solgarden", Date: "2025-01-01", Count: 3},
		{ID: "v2", HomeID: "solgarden", Date: "2025-01-05", Count: 1},
		{ID: "v3", HomeID: "vastra", Date: "2025-01-03", Count: 2},
	}
	for _, d := range docs {
		require.NoError(t, coll.Create(ctx, d.ID, d.HomeID, d))
	}

	t.Run("single equality", func(t *testing.T) {
		var out []testDoc
		require.NoError(t, coll.Query(ctx, Query{Filters: []Filter{Eq("home_id", "solgarden")}}, &out))
		assert.Len(t, out, 2)
	})

	t.Run("date range is inclusive", func(t *testing.T) {
		var out []testDoc
		q := Query{Filters: []Filter{Gte("date", "2025-01-03"), Lte("date", "2025-01-05")}}
		require.NoError(t, coll.Query(ctx, q, &out))
		assert.Len(t, out, 2)
	})

	t.Run("no filters returns everything", func(t *testing.T) {
		var out []testDoc
		require.NoError(t, coll.Query(ctx, Query{}, &out))
		assert.Len(t, out, 3)
	})

	t.Run("numeric comparison", func(t *testing.T) {
		var out []testDoc
		require.NoError(t, coll.Query(ctx, Query{Filters: []Filter{Gte("count", 2)}}, &out))
		assert.Len(t, out, 2)
	})

	t.Run("id filter", func(t *testing.T) {
		var out []testDoc
		require.NoError(t, coll.Query(ctx, Query{Filters: []Filter{Eq("id", "v2")}, Limit: 1}, &out))
		require.Len(t, out, 1)
		assert.Equal(t, "v2", out[0].ID)
	})

	t.Run("missing field never matches", func(t *testing.T) {
		var out []testDoc
		require.NoError(t, coll.Query(ctx, Query{Filters: []Filter{Eq("nonexistent", "x")}}, &out))
		assert.Empty(t, out)
	})
}

func TestMemoryUpsertReplacesWholesale(t *testing.T) {
	ctx := context.Background()
	coll := NewMemory().Collection("homes", "_id")

	require.NoError(t, coll.Create(ctx, "a", "a", testDoc{ID: "a", Name: "old", Count: 5}))
	require.NoError(t, coll.Upsert(ctx, "a", "a", testDoc{ID: "a", Name: "new"}))

	var got testDoc
	require.NoError(t, coll.Get(ctx, "a", "a", &got))
	assert.Equal(t, "new", got.Name)
	assert.Zero(t, got.Count, "replace must not merge old fields")
}

func TestMemoryCancelledContext(t *testing.T) {
	coll := NewMemory().Collection("homes", "_id")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var got testDoc
	assert.ErrorIs(t, coll.Get(ctx, "a", "a", &got), ErrUnavailable)
	assert.ErrorIs(t, coll.Create(ctx, "a", "a", testDoc{ID: "a"}), ErrUnavailable)
}

func TestMemoryFaultHook(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	coll := store.Collection("audit", "_id")
	store.SetFault(func(op, collection, id string) error {
		if op == "create" {
			return ErrUnavailable
		}
		return nil
	})
	assert.ErrorIs(t, coll.Create(ctx, "a", "a", testDoc{ID: "a"}), ErrUnavailable)
}

func TestMemoryConcurrentCreates(t *testing.T) {
	ctx := context.Background()
	coll := NewMemory().Collection("activities", "_id")

	const n = 32
	var wg sync.WaitGroup
	conflicts := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conflicts <- coll.Create(ctx, "yoga", "yoga", testDoc{ID: "yoga", Name: "Yoga"})
		}()
	}
	wg.Wait()
	close(conflicts)

	created := 0
	for err := range conflicts {
		if err == nil {
			created++
		} else {
			require.ErrorIs(t, err, ErrConflict)
		}
	}
	assert.Equal(t, 1, created, "exactly one concurrent create wins")
}
