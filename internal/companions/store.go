package companions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	dErrors "github.com/Fazzolix/matningsabo/pkg/domain-errors"

	"github.com/Fazzolix/matningsabo/internal/platform/docstore"
	"github.com/Fazzolix/matningsabo/internal/validate"
	"github.com/Fazzolix/matningsabo/pkg/slug"
)

type Store struct {
	coll docstore.Collection
	now  func() time.Time
}

func NewStore(db docstore.Store) *Store {
	return &Store{
		coll: db.Collection("companions", "_id"),
		now:  time.Now,
	}
}

func (s *Store) Create(ctx context.Context, name string, active bool) (*Companion, error) {
	if ok, msg := validate.CompanionName(name); !ok {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, msg)
	}
	id := slug.Make(name)
	if id == "" {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, "Ogiltigt namn")
	}
	if _, err := s.Get(ctx, id); err == nil {
		return nil, dErrors.New(dErrors.CodeConflict, fmt.Sprintf("Medföljare med id '%s' finns redan", id))
	} else if !dErrors.Is(err, dErrors.CodeNotFound) {
		return nil, err
	}

	comp := &Companion{
		ID:        id,
		Name:      strings.TrimSpace(name),
		Active:    active,
		CreatedAt: s.now().UTC(),
	}
	if err := s.coll.Create(ctx, id, id, comp); err != nil {
		if errors.Is(err, docstore.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, fmt.Sprintf("Medföljare med id '%s' finns redan", id))
		}
		return nil, dErrors.Wrap(dErrors.CodeUnavailable, "kunde inte spara medföljaren", err)
	}
	return comp, nil
}

func (s *Store) Get(ctx context.Context, id string) (*Companion, error) {
	if id == "" {
		return nil, dErrors.New(dErrors.CodeNotFound, "Medföljaren hittades inte")
	}
	var comp Companion
	if err := s.coll.Get(ctx, id, id, &comp); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "Medföljaren hittades inte")
		}
		return nil, dErrors.Wrap(dErrors.CodeUnavailable, "kunde inte läsa medföljaren", err)
	}
	return &comp, nil
}

// ListActive returns active companions sorted case-insensitively by name.
func (s *Store) ListActive(ctx context.Context) ([]Companion, error) {
	var comps []Companion
	q := docstore.Query{Filters: []docstore.Filter{docstore.Eq("active", true)}}
	if err := s.coll.Query(ctx, q, &comps); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeUnavailable, "kunde inte lista medföljare", err)
	}
	sort.SliceStable(comps, func(i, j int) bool {
		return strings.ToLower(comps[i].Name) < strings.ToLower(comps[j].Name)
	})
	return comps, nil
}

// Rename changes the display name in place. Companion names are not
// denormalized onto visits by id, so no fan-out is needed.
func (s *Store) Rename(ctx context.Context, id, newName string) (*Companion, error) {
	if ok, msg := validate.CompanionName(newName); !ok {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, msg)
	}
	comp, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	comp.Name = strings.TrimSpace(newName)
	if err := s.coll.Upsert(ctx, comp.ID, comp.ID, comp); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeUnavailable, "kunde inte spara medföljaren", err)
	}
	return comp, nil
}

func (s *Store) Deactivate(ctx context.Context, id string) error {
	comp, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	comp.Active = false
	if err := s.coll.Upsert(ctx, comp.ID, comp.ID, comp); err != nil {
		return dErrors.Wrap(dErrors.CodeUnavailable, "kunde inte spara medföljaren", err)
	}
	return nil
}
