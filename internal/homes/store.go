package homes

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

// Store persists homes. The collection is partitioned by document id, so
// every operation addresses a single partition.
type Store struct {
	coll docstore.Collection
	now  func() time.Time
}

func NewStore(db docstore.Store) *Store {
	return &Store{
		coll: db.Collection("homes", "_id"),
		now:  time.Now,
	}
}

// Create registers a new home under a slug derived from its name. The
// pre-check gives a friendly conflict message; the write itself still
// enforces uniqueness for racing creators.
func (s *Store) Create(ctx context.Context, name, address, description string, active bool) (*Home, error) {
	if ok, msg := validate.HomeName(name); !ok {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, msg)
	}
	id := slug.Make(name)
	if id == "" {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, "Ogiltigt namn")
	}

	if _, err := s.Get(ctx, id); err == nil {
		return nil, dErrors.New(dErrors.CodeConflict, fmt.Sprintf("Äldreboende med id '%s' finns redan", id))
	} else if !dErrors.Is(err, dErrors.CodeNotFound) {
		return nil, err
	}

	home := &Home{
		ID:          id,
		Name:        strings.TrimSpace(name),
		Active:      active,
		Address:     validate.Sanitize(address, 200),
		Description: validate.Sanitize(description, 500),
		CreatedAt:   s.now().UTC(),
		Departments: []Department{},
	}
	if err := s.coll.Create(ctx, id, id, home); err != nil {
		if errors.Is(err, docstore.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, fmt.Sprintf("Äldreboende med id '%s' finns redan", id))
		}
		return nil, dErrors.Wrap(dErrors.CodeUnavailable, "kunde inte spara äldreboendet", err)
	}
	return home, nil
}

func (s *Store) Get(ctx context.Context, id string) (*Home, error) {
	var home Home
	if err := s.coll.Get(ctx, id, id, &home); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "Äldreboendet hittades inte")
		}
		return nil, dErrors.Wrap(dErrors.CodeUnavailable, "kunde inte läsa äldreboendet", err)
	}
	sortDepartments(home.Departments)
	return &home, nil
}

// ListActive returns active homes sorted by name, each with its departments
// sorted the same way.
func (s *Store) ListActive(ctx context.Context) ([]Home, error) {
	var homes []Home
	q := docstore.Query{Filters: []docstore.Filter{docstore.Eq("active", true)}}
	if err := s.coll.Query(ctx, q, &homes); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeUnavailable, "kunde inte lista äldreboenden", err)
	}
	sort.SliceStable(homes, func(i, j int) bool {
		return strings.ToLower(homes[i].Name) < strings.ToLower(homes[j].Name)
	})
	for i := range homes {
		sortDepartments(homes[i].Departments)
	}
	return homes, nil
}

// AddDepartment appends a department to the home and rewrites the whole
// document. A name that slugs to an existing department id is treated as a
// conflict rather than a duplicate entry.
func (s *Store) AddDepartment(ctx context.Context, homeID, name string) (*Department, error) {
	if ok, msg := validate.DepartmentName(name); !ok {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, msg)
	}
	home, err := s.Get(ctx, homeID)
	if err != nil {
		return nil, err
	}
	if len(home.Departments) >= MaxDepartments {
		return nil, dErrors.New(dErrors.CodeInvalidArgument,
			fmt.Sprintf("Max %d avdelningar per äldreboende", MaxDepartments))
	}
	deptSlug := slug.Make(name)
	if deptSlug == "" {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, "Ogiltigt avdelningsnamn")
	}
	deptID := homeID + "__" + deptSlug
	for _, d := range home.Departments {
		if d.ID == deptID {
			return nil, dErrors.New(dErrors.CodeConflict,
				fmt.Sprintf("Avdelning '%s' finns redan", strings.TrimSpace(name)))
		}
	}

	dept := Department{
		ID:        deptID,
		Slug:      deptSlug,
		Name:      strings.TrimSpace(name),
		Active:    true,
		CreatedAt: s.now().UTC(),
	}
	home.Departments = append(home.Departments, dept)
	if err := s.upsert(ctx, home); err != nil {
		return nil, err
	}
	return &dept, nil
}

// UpdateDepartment patches name and/or active of one department. Nil fields
// are left untouched. The department id is stable across renames.
func (s *Store) UpdateDepartment(ctx context.Context, homeID, deptID string, name *string, active *bool) (*Department, error) {
	if name != nil {
		if ok, msg := validate.DepartmentName(*name); !ok {
			return nil, dErrors.New(dErrors.CodeInvalidArgument, msg)
		}
	}
	home, err := s.Get(ctx, homeID)
	if err != nil {
		return nil, err
	}
	idx := -1
	for i, d := range home.Departments {
		if d.ID == deptID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, dErrors.New(dErrors.CodeNotFound, "Avdelningen hittades inte")
	}
	if name != nil {
		home.Departments[idx].Name = strings.TrimSpace(*name)
	}
	if active != nil {
		home.Departments[idx].Active = *active
	}
	if err := s.upsert(ctx, home); err != nil {
		return nil, err
	}
	dept := home.Departments[idx]
	return &dept, nil
}

// RemoveDepartment deletes the department entry outright. Visits keep their
// department_id reference; statistics tolerate dangling ids.
func (s *Store) RemoveDepartment(ctx context.Context, homeID, deptID string) error {
	home, err := s.Get(ctx, homeID)
	if err != nil {
		return err
	}
	kept := home.Departments[:0]
	found := false
	for _, d := range home.Departments {
		if d.ID == deptID {
			found = true
			continue
		}
		kept = append(kept, d)
	}
	if !found {
		return dErrors.New(dErrors.CodeNotFound, "Avdelningen hittades inte")
	}
	home.Departments = kept
	return s.upsert(ctx, home)
}

func (s *Store) upsert(ctx context.Context, home *Home) error {
	if err := s.coll.Upsert(ctx, home.ID, home.ID, home); err != nil {
		return dErrors.Wrap(dErrors.CodeUnavailable, "kunde inte spara äldreboendet", err)
	}
	return nil
}

func sortDepartments(depts []Department) {
	sort.SliceStable(depts, func(i, j int) bool {
		return strings.ToLower(depts[i].Name) < strings.ToLower(depts[j].Name)
	})
}
