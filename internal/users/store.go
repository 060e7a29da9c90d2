package users

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	dErrors "github.com/Fazzolix/matningsabo/pkg/domain-errors"

	"github.com/Fazzolix/matningsabo/internal/audit"
	"github.com/Fazzolix/matningsabo/internal/platform/docstore"
)

// adminAuditor records role changes. Satisfied by audit.Recorder.
type adminAuditor interface {
	RecordAdmin(ctx context.Context, action, actorOID, actorEmail, targetOID, targetEmail string)
}

type Store struct {
	coll    docstore.Collection
	auditor adminAuditor
	now     func() time.Time
}

func NewStore(db docstore.Store, auditor adminAuditor) *Store {
	return &Store{
		coll:    db.Collection("users", "_id"),
		auditor: auditor,
		now:     time.Now,
	}
}

// Upsert records a login. A first login creates the user with default roles;
// later logins refresh email, display name and the login timestamp. Roles
// are never touched here.
func (s *Store) Upsert(ctx context.Context, subjectID, email, displayName string) error {
	if subjectID == "" {
		return nil
	}
	email = strings.ToLower(strings.TrimSpace(email))
	now := s.now().UTC()

	user, err := s.Get(ctx, subjectID)
	if err == nil {
		user.Email = email
		user.DisplayName = displayName
		user.LastLoginAt = now
		if err := s.coll.Upsert(ctx, user.ID, user.ID, user); err != nil {
			return dErrors.Wrap(dErrors.CodeUnavailable, "kunde inte spara användaren", err)
		}
		return nil
	}
	if !dErrors.Is(err, dErrors.CodeNotFound) {
		return err
	}

	fresh := &User{
		ID:          subjectID,
		Email:       email,
		DisplayName: displayName,
		Roles:       Roles{Admin: false},
		CreatedAt:   now,
		LastLoginAt: now,
	}
	if err := s.coll.Create(ctx, fresh.ID, fresh.ID, fresh); err != nil {
		// A concurrent first login already created the record.
		if errors.Is(err, docstore.ErrConflict) {
			return nil
		}
		return dErrors.Wrap(dErrors.CodeUnavailable, "kunde inte spara användaren", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, subjectID string) (*User, error) {
	if subjectID == "" {
		return nil, dErrors.New(dErrors.CodeNotFound, "Användaren hittades inte")
	}
	var user User
	if err := s.coll.Get(ctx, subjectID, subjectID, &user); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "Användaren hittades inte")
		}
		return nil, dErrors.Wrap(dErrors.CodeUnavailable, "kunde inte läsa användaren", err)
	}
	return &user, nil
}

// List returns users for the admin screen, optionally filtered by an email
// substring, oldest account first.
func (s *Store) List(ctx context.Context, emailQuery string, limit int) ([]User, error) {
	var users []User
	if err := s.coll.Query(ctx, docstore.Query{}, &users); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeUnavailable, "kunde inte lista användare", err)
	}
	q := strings.ToLower(strings.TrimSpace(emailQuery))
	if q != "" {
		filtered := users[:0]
		for _, u := range users {
			if strings.Contains(strings.ToLower(u.Email), q) {
				filtered = append(filtered, u)
			}
		}
		users = filtered
	}
	sort.SliceStable(users, func(i, j int) bool {
		if !users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].CreatedAt.Before(users[j].CreatedAt)
		}
		return users[i].Email < users[j].Email
	})
	if limit < 1 {
		limit = 1
	}
	if limit > 500 {
		limit = 500
	}
	if len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

// SetAdminRole flips roles.admin on the target user and writes an audit
// record. The audit write is best-effort and never rolls back the change.
func (s *Store) SetAdminRole(ctx context.Context, targetID string, admin bool, actorID, actorEmail string) (*User, error) {
	user, err := s.Get(ctx, targetID)
	if err != nil {
		return nil, err
	}
	user.Roles.Admin = admin
	if err := s.coll.Upsert(ctx, user.ID, user.ID, user); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeUnavailable, "kunde inte spara användaren", err)
	}

	action := audit.ActionRevokeAdmin
	if admin {
		action = audit.ActionGrantAdmin
	}
	s.auditor.RecordAdmin(ctx, action, actorID, actorEmail, user.ID, user.Email)
	return user, nil
}
