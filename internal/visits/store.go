package visits

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	dErrors "github.com/Fazzolix/matningsabo/pkg/domain-errors"

	"github.com/Fazzolix/matningsabo/internal/platform/docstore"
)

// ListLimitMax caps how many records an own-visits listing may return.
const ListLimitMax = 500

// Store persists visits. The collection is partitioned by home_id, so
// lookups by opaque id alone need an unpartitioned scan. That is acceptable
// at the current data volume; revisit the partition scheme before it is not.
type Store struct {
	coll  docstore.Collection
	now   func() time.Time
	newID func() string
}

func NewStore(db docstore.Store) *Store {
	return &Store{
		coll:  db.Collection("outdoor_visits", "home_id"),
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
}

// Create stores a validated visit. Missing bookkeeping fields are stamped;
// visits have no natural key, so creation never conflicts.
func (s *Store) Create(ctx context.Context, v Visit) (*Visit, error) {
	if v.ID == "" {
		v.ID = s.newID()
	}
	if v.RegisteredAt.IsZero() {
		v.RegisteredAt = s.now().UTC()
	}
	if v.LastModifiedAt.IsZero() {
		v.LastModifiedAt = v.RegisteredAt
	}
	v.EditCount = 0
	v.TotalParticipants = v.GenderCounts.Men + v.GenderCounts.Women
	if v.SatisfactionEntries == nil {
		v.SatisfactionEntries = []SatisfactionEntry{}
	}
	if err := s.coll.Create(ctx, v.ID, v.HomeID, &v); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeUnavailable, "kunde inte spara utevistelsen", err)
	}
	return &v, nil
}

// Get finds a visit by id across all partitions.
func (s *Store) Get(ctx context.Context, id string) (*Visit, error) {
	if id == "" {
		return nil, dErrors.New(dErrors.CodeNotFound, "Hittades inte")
	}
	var found []Visit
	q := docstore.Query{Filters: []docstore.Filter{docstore.Eq("id", id)}, Limit: 1}
	if err := s.coll.Query(ctx, q, &found); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeUnavailable, "kunde inte läsa utevistelsen", err)
	}
	if len(found) == 0 {
		return nil, dErrors.New(dErrors.CodeNotFound, "Hittades inte")
	}
	return &found[0], nil
}

// Update replaces the stored visit wholesale after re-reading it. Identity
// and origin fields always come from the stored record, never the payload,
// and the partition key is preserved so the replacement lands on the same
// document.
func (s *Store) Update(ctx context.Context, id string, updated Visit) (*Visit, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	updated.ID = existing.ID
	updated.HomeID = existing.HomeID
	updated.RegisteredBy = existing.RegisteredBy
	updated.RegisteredByOID = existing.RegisteredByOID
	updated.RegisteredAt = existing.RegisteredAt
	updated.EditCount = existing.EditCount + 1
	updated.LastModifiedAt = s.now().UTC()
	updated.TotalParticipants = updated.GenderCounts.Men + updated.GenderCounts.Women
	if updated.SatisfactionEntries == nil {
		updated.SatisfactionEntries = []SatisfactionEntry{}
	}
	if err := s.coll.Upsert(ctx, updated.ID, updated.HomeID, &updated); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeUnavailable, "kunde inte uppdatera utevistelsen", err)
	}
	return &updated, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.coll.Delete(ctx, existing.ID, existing.HomeID); err != nil {
		return dErrors.Wrap(dErrors.CodeUnavailable, "kunde inte ta bort utevistelsen", err)
	}
	return nil
}

// Filters narrows a statistics query. Empty fields impose no constraint.
type Filters struct {
	HomeID       string
	DateFrom     string
	DateTo       string
	DepartmentID string
	ActivityID   string
	CompanionID  string
	OfferStatus  string
	VisitType    string
}

func (f Filters) query() docstore.Query {
	var filters []docstore.Filter
	if f.HomeID != "" {
		filters = append(filters, docstore.Eq("home_id", f.HomeID))
	}
	if f.DateFrom != "" {
		filters = append(filters, docstore.Gte("date", f.DateFrom))
	}
	if f.DateTo != "" {
		filters = append(filters, docstore.Lte("date", f.DateTo))
	}
	if f.DepartmentID != "" {
		filters = append(filters, docstore.Eq("department_id", f.DepartmentID))
	}
	if f.ActivityID != "" {
		filters = append(filters, docstore.Eq("activity_id", f.ActivityID))
	}
	if f.CompanionID != "" {
		filters = append(filters, docstore.Eq("companion_id", f.CompanionID))
	}
	if f.OfferStatus != "" {
		filters = append(filters, docstore.Eq("offer_status", f.OfferStatus))
	}
	if f.VisitType != "" {
		filters = append(filters, docstore.Eq("visit_type", f.VisitType))
	}
	return docstore.Query{Filters: filters}
}

// QueryStatistics returns every visit matching the present filters. The
// caller decides whether identity fields must be redacted before serving
// the result.
func (s *Store) QueryStatistics(ctx context.Context, f Filters) ([]Visit, error) {
	var found []Visit
	if err := s.coll.Query(ctx, f.query(), &found); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeUnavailable, "kunde inte hämta statistik", err)
	}
	return found, nil
}

// ListOwned returns the caller's own visits in the date range, newest first.
// Records are matched by subject id, with a second pass on the legacy email
// field for records that predate subject-id capture.
func (s *Store) ListOwned(ctx context.Context, subjectID, email, dateFrom, dateTo string, limit int) ([]Visit, error) {
	filters := []docstore.Filter{docstore.Eq("registered_by_oid", subjectID)}
	if dateFrom != "" {
		filters = append(filters, docstore.Gte("date", dateFrom))
	}
	if dateTo != "" {
		filters = append(filters, docstore.Lte("date", dateTo))
	}
	var found []Visit
	if err := s.coll.Query(ctx, docstore.Query{Filters: filters}, &found); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeUnavailable, "kunde inte hämta registreringar", err)
	}

	if email != "" {
		legacyFilters := []docstore.Filter{docstore.Eq("registered_by", email)}
		if dateFrom != "" {
			legacyFilters = append(legacyFilters, docstore.Gte("date", dateFrom))
		}
		if dateTo != "" {
			legacyFilters = append(legacyFilters, docstore.Lte("date", dateTo))
		}
		var legacy []Visit
		if err := s.coll.Query(ctx, docstore.Query{Filters: legacyFilters}, &legacy); err != nil {
			return nil, dErrors.Wrap(dErrors.CodeUnavailable, "kunde inte hämta registreringar", err)
		}
		seen := make(map[string]bool, len(found))
		for _, v := range found {
			seen[v.ID] = true
		}
		for _, v := range legacy {
			if !seen[v.ID] {
				found = append(found, v)
			}
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		if found[i].Date != found[j].Date {
			return found[i].Date > found[j].Date
		}
		return found[i].RegisteredAt.After(found[j].RegisteredAt)
	})

	if limit < 1 {
		limit = 1
	}
	if limit > ListLimitMax {
		limit = ListLimitMax
	}
	if len(found) > limit {
		found = found[:limit]
	}
	return found, nil
}
