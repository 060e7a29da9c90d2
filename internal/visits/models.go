package visits

import (
	"strings"
	"time"
)

type GenderCounts struct {
	Men   int `json:"men" bson:"men"`
	Women int `json:"women" bson:"women"`
}

type SatisfactionEntry struct {
	Gender string `json:"gender" bson:"gender"`
	Rating int    `json:"rating" bson:"rating"`
}

// Visit is one registered outing (or declined offer). The activity and
// companion names are denormalized onto the record so statistics stay
// readable even after catalogue entries change or disappear.
type Visit struct {
	ID                  string              `json:"id" bson:"_id"`
	HomeID              string              `json:"home_id" bson:"home_id"`
	DepartmentID        string              `json:"department_id" bson:"department_id"`
	Date                string              `json:"date" bson:"date"`
	VisitType           string              `json:"visit_type" bson:"visit_type"`
	OfferStatus         string              `json:"offer_status" bson:"offer_status"`
	GenderCounts        GenderCounts        `json:"gender_counts" bson:"gender_counts"`
	TotalParticipants   int                 `json:"total_participants" bson:"total_participants"`
	Activity            string              `json:"activity" bson:"activity"`
	ActivityName        string              `json:"activity_name" bson:"activity_name"`
	ActivityID          string              `json:"activity_id" bson:"activity_id"`
	Companion           string              `json:"companion" bson:"companion"`
	CompanionName       string              `json:"companion_name" bson:"companion_name"`
	CompanionID         string              `json:"companion_id" bson:"companion_id"`
	DurationMinutes     *int                `json:"duration_minutes" bson:"duration_minutes"`
	SatisfactionEntries []SatisfactionEntry `json:"satisfaction_entries" bson:"satisfaction_entries"`
	RegisteredBy        string              `json:"registered_by" bson:"registered_by"`
	RegisteredByOID     string              `json:"registered_by_oid" bson:"registered_by_oid"`
	RegisteredAt        time.Time           `json:"registered_at" bson:"registered_at"`
	LastModifiedAt      time.Time           `json:"last_modified_at" bson:"last_modified_at"`
	EditCount           int                 `json:"edit_count" bson:"edit_count"`
}

// OwnedBy reports whether the caller registered this visit. The subject id
// is the primary identity; the lowercased email covers records created
// before subject ids were captured.
func (v *Visit) OwnedBy(subjectID, email string) bool {
	if subjectID != "" && v.RegisteredByOID == subjectID {
		return true
	}
	email = strings.ToLower(strings.TrimSpace(email))
	return email != "" && strings.ToLower(strings.TrimSpace(v.RegisteredBy)) == email
}

// Redacted is a visit with operator identity and bookkeeping fields
// stripped, safe to hand to any authenticated caller.
type Redacted struct {
	ID                  string              `json:"id"`
	HomeID              string              `json:"home_id"`
	DepartmentID        string              `json:"department_id"`
	Date                string              `json:"date"`
	VisitType           string              `json:"visit_type"`
	OfferStatus         string              `json:"offer_status"`
	GenderCounts        GenderCounts        `json:"gender_counts"`
	TotalParticipants   int                 `json:"total_participants"`
	Activity            string              `json:"activity"`
	ActivityName        string              `json:"activity_name"`
	ActivityID          string              `json:"activity_id"`
	Companion           string              `json:"companion"`
	CompanionName       string              `json:"companion_name"`
	CompanionID         string              `json:"companion_id"`
	DurationMinutes     *int                `json:"duration_minutes"`
	SatisfactionEntries []SatisfactionEntry `json:"satisfaction_entries"`
}

func (v *Visit) Redact() Redacted {
	return Redacted{
		ID:                  v.ID,
		HomeID:              v.HomeID,
		DepartmentID:        v.DepartmentID,
		Date:                v.Date,
		VisitType:           v.VisitType,
		OfferStatus:         v.OfferStatus,
		GenderCounts:        v.GenderCounts,
		TotalParticipants:   v.TotalParticipants,
		Activity:            v.Activity,
		ActivityName:        v.ActivityName,
		ActivityID:          v.ActivityID,
		Companion:           v.Companion,
		CompanionName:       v.CompanionName,
		CompanionID:         v.CompanionID,
		DurationMinutes:     v.DurationMinutes,
		SatisfactionEntries: v.SatisfactionEntries,
	}
}

// Summary is the compact shape served by the caller's own-visits listing.
type Summary struct {
	ID                string    `json:"id"`
	Date              string    `json:"date"`
	Activity          string    `json:"activity"`
	Companion         string    `json:"companion"`
	HomeID            string    `json:"home_id"`
	DepartmentID      string    `json:"department_id"`
	OfferStatus       string    `json:"offer_status"`
	VisitType         string    `json:"visit_type"`
	TotalParticipants int       `json:"total_participants"`
	RegisteredAt      time.Time `json:"registered_at"`
}

func (v *Visit) Summarize() Summary {
	return Summary{
		ID:                v.ID,
		Date:              v.Date,
		Activity:          v.Activity,
		Companion:         v.Companion,
		HomeID:            v.HomeID,
		DepartmentID:      v.DepartmentID,
		OfferStatus:       v.OfferStatus,
		VisitType:         v.VisitType,
		TotalParticipants: v.TotalParticipants,
		RegisteredAt:      v.RegisteredAt,
	}
}

// ChangedFields lists the payload-editable fields that differ between two
// versions of a visit, for the audit trail.
func ChangedFields(before, after *Visit) []string {
	changed := []string{}
	add := func(name string, differs bool) {
		if differs {
			changed = append(changed, name)
		}
	}
	add("department_id", before.DepartmentID != after.DepartmentID)
	add("date", before.Date != after.Date)
	add("visit_type", before.VisitType != after.VisitType)
	add("offer_status", before.OfferStatus != after.OfferStatus)
	add("gender_counts", before.GenderCounts != after.GenderCounts)
	add("activity", before.Activity != after.Activity)
	add("activity_id", before.ActivityID != after.ActivityID)
	add("companion", before.Companion != after.Companion)
	add("companion_id", before.CompanionID != after.CompanionID)
	add("duration_minutes", !equalIntPtr(before.DurationMinutes, after.DurationMinutes))
	add("satisfaction_entries", !equalEntries(before.SatisfactionEntries, after.SatisfactionEntries))
	return changed
}

func equalIntPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalEntries(a, b []SatisfactionEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
