package activities

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	dErrors "github.com/Fazzolix/matningsabo/pkg/domain-errors"

	"github.com/Fazzolix/matningsabo/internal/platform/docstore"
	"github.com/Fazzolix/matningsabo/internal/validate"
	"github.com/Fazzolix/matningsabo/pkg/slug"
)

// renameWorkers bounds the concurrent visit rewrites during a rename fan-out.
const renameWorkers = 4

// Store persists the activity catalogue. It also holds a handle to the visits
// collection because renaming an activity rewrites the denormalized activity
// name on every matching visit.
type Store struct {
	coll   docstore.Collection
	visits docstore.Collection
	now    func() time.Time
}

func NewStore(db docstore.Store) *Store {
	return &Store{
		coll:   db.Collection("activities", "_id"),
		visits: db.Collection("outdoor_visits", "home_id"),
		now:    time.Now,
	}
}

// Create adds a catalogued activity. The id is the slug of the name and the
// new activity sorts after everything that already exists.
func (s *Store) Create(ctx context.Context, name, description, category string, active bool) (*Activity, error) {
	if ok, msg := validate.ActivityName(name); !ok {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, msg)
	}
	id := slug.Make(name)
	if id == "" {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, "Ogiltigt aktivitetsnamn")
	}
	if _, err := s.Get(ctx, id); err == nil {
		return nil, dErrors.New(dErrors.CodeConflict, fmt.Sprintf("Aktivitet med id '%s' finns redan", id))
	} else if !dErrors.Is(err, dErrors.CodeNotFound) {
		return nil, err
	}

	next, err := s.nextSortOrder(ctx)
	if err != nil {
		return nil, err
	}
	if category == "" {
		category = DefaultCategory
	}
	act := &Activity{
		ID:          id,
		Name:        strings.TrimSpace(name),
		Active:      active,
		Description: validate.Sanitize(description, 500),
		Category:    validate.Sanitize(category, 50),
		SortOrder:   &next,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.coll.Create(ctx, id, id, act); err != nil {
		if errors.Is(err, docstore.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, fmt.Sprintf("Aktivitet med id '%s' finns redan", id))
		}
		return nil, dErrors.Wrap(dErrors.CodeUnavailable, "kunde inte spara aktiviteten", err)
	}
	return act, nil
}

// Ensure catalogues a free-text activity name if it is not already known.
// Used when a visit references an activity that was typed rather than picked;
// a concurrent creator winning the race counts as success.
func (s *Store) Ensure(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	id := slug.Make(name)
	if id == "" {
		return nil
	}
	if _, err := s.Get(ctx, id); err == nil {
		return nil
	} else if !dErrors.Is(err, dErrors.CodeNotFound) {
		return err
	}

	next, err := s.nextSortOrder(ctx)
	if err != nil {
		return err
	}
	act := &Activity{
		ID:        id,
		Name:      name,
		Active:    true,
		Category:  DefaultCategory,
		SortOrder: &next,
		CreatedAt: s.now().UTC(),
	}
	if err := s.coll.Create(ctx, id, id, act); err != nil {
		if errors.Is(err, docstore.ErrConflict) {
			return nil
		}
		return dErrors.Wrap(dErrors.CodeUnavailable, "kunde inte spara aktiviteten", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*Activity, error) {
	var act Activity
	if err := s.coll.Get(ctx, id, id, &act); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "Aktiviteten hittades inte")
		}
		return nil, dErrors.Wrap(dErrors.CodeUnavailable, "kunde inte läsa aktiviteten", err)
	}
	return &act, nil
}

// FindByName looks an activity up by its exact display name.
func (s *Store) FindByName(ctx context.Context, name string) (*Activity, error) {
	if name == "" {
		return nil, dErrors.New(dErrors.CodeNotFound, "Aktiviteten hittades inte")
	}
	var acts []Activity
	q := docstore.Query{Filters: []docstore.Filter{docstore.Eq("name", name)}, Limit: 1}
	if err := s.coll.Query(ctx, q, &acts); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeUnavailable, "kunde inte söka aktiviteter", err)
	}
	if len(acts) == 0 {
		return nil, dErrors.New(dErrors.CodeNotFound, "Aktiviteten hittades inte")
	}
	return &acts[0], nil
}

// ListActive returns active activities sorted by sort_order. Records without
// a sort_order sort last, in stable insertion order.
func (s *Store) ListActive(ctx context.Context) ([]Activity, error) {
	var acts []Activity
	q := docstore.Query{Filters: []docstore.Filter{docstore.Eq("active", true)}}
	if err := s.coll.Query(ctx, q, &acts); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeUnavailable, "kunde inte lista aktiviteter", err)
	}
	sort.SliceStable(acts, func(i, j int) bool {
		a, b := acts[i].SortOrder, acts[j].SortOrder
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return *a < *b
	})
	return acts, nil
}

// Rename changes the activity's display name and then rewrites the
// denormalized activity name on every visit still carrying the old one. The
// fan-out is best-effort: one failing visit does not stop the rest. The
// number of visits that could not be rewritten is returned so the caller can
// report it.
func (s *Store) Rename(ctx context.Context, id, newName, oldName string) (failed int, err error) {
	act, err := s.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	act.Name = strings.TrimSpace(newName)
	if err := s.coll.Upsert(ctx, act.ID, act.ID, act); err != nil {
		return 0, dErrors.Wrap(dErrors.CodeUnavailable, "kunde inte spara aktiviteten", err)
	}

	if oldName == "" || oldName == act.Name {
		return 0, nil
	}

	var refs []map[string]any
	q := docstore.Query{Filters: []docstore.Filter{docstore.Eq("activity", oldName)}}
	if err := s.visits.Query(ctx, q, &refs); err != nil {
		return 0, dErrors.Wrap(dErrors.CodeUnavailable, "kunde inte hitta berörda utevistelser", err)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(renameWorkers)
	for _, ref := range refs {
		doc := ref
		g.Go(func() error {
			if ok := s.rewriteVisitActivity(gctx, doc, act.Name); !ok {
				mu.Lock()
				failed++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return failed, nil
}

// rewriteVisitActivity stamps the new name onto one visit document. The
// document is kept as a raw map so fields this package knows nothing about
// survive the round trip.
func (s *Store) rewriteVisitActivity(ctx context.Context, doc map[string]any, newName string) bool {
	id := stringField(doc, "id", "_id")
	partition := stringField(doc, "home_id", "traffpunkt_id")
	if id == "" || partition == "" {
		return false
	}
	var full map[string]any
	if err := s.visits.Get(ctx, id, partition, &full); err != nil {
		return false
	}
	full["activity"] = newName
	full["activity_name"] = newName
	return s.visits.Upsert(ctx, id, partition, full) == nil
}

// Deactivate soft-deletes, keeping the record for historical references.
func (s *Store) Deactivate(ctx context.Context, id string) error {
	act, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	act.Active = false
	if err := s.coll.Upsert(ctx, act.ID, act.ID, act); err != nil {
		return dErrors.Wrap(dErrors.CodeUnavailable, "kunde inte spara aktiviteten", err)
	}
	return nil
}

func (s *Store) nextSortOrder(ctx context.Context) (int, error) {
	var acts []Activity
	if err := s.coll.Query(ctx, docstore.Query{}, &acts); err != nil {
		return 0, dErrors.Wrap(dErrors.CodeUnavailable, "kunde inte lista aktiviteter", err)
	}
	max := 0
	for _, a := range acts {
		if a.SortOrder != nil && *a.SortOrder > max {
			max = *a.SortOrder
		}
	}
	return max + 1, nil
}

func stringField(doc map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := doc[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
