package users

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "github.com/Fazzolix/matningsabo/pkg/domain-errors"

	"github.com/Fazzolix/matningsabo/internal/audit"
	"github.com/Fazzolix/matningsabo/internal/platform/docstore"
	"github.com/Fazzolix/matningsabo/internal/platform/metrics"
)

type recordedAudit struct {
	action      string
	actorOID    string
	targetOID   string
	targetEmail string
}

type fakeAuditor struct {
	records []recordedAudit
}

func (f *fakeAuditor) RecordAdmin(ctx context.Context, action, actorOID, actorEmail, targetOID, targetEmail string) {
	f.records = append(f.records, recordedAudit{action, actorOID, targetOID, targetEmail})
}

func newTestStore(t *testing.T) (*Store, *docstore.MemoryStore, *fakeAuditor) {
	t.Helper()
	db := docstore.NewMemory()
	auditor := &fakeAuditor{}
	store := NewStore(db, auditor)
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	store.now = func() time.Time {
		base = base.Add(time.Hour)
		return base
	}
	return store, db, auditor
}

func TestUpsertCreatesOnFirstLogin(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "oid-anna", "Anna@Example.SE", "Anna Svensson"))

	user, err := store.Get(ctx, "oid-anna")
	require.NoError(t, err)
	assert.Equal(t, "anna@example.se", user.Email)
	assert.Equal(t, "Anna Svensson", user.DisplayName)
	assert.False(t, user.Roles.Admin)
	assert.Equal(t, user.CreatedAt, user.LastLoginAt)
}

func TestUpsertRefreshesButKeepsRoles(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "oid-anna", "anna@example.se", "Anna"))
	_, err := store.SetAdminRole(ctx, "oid-anna", true, "oid-chef", "chef@example.se")
	require.NoError(t, err)

	require.NoError(t, store.Upsert(ctx, "oid-anna", "anna.svensson@example.se", "Anna Svensson"))

	user, err := store.Get(ctx, "oid-anna")
	require.NoError(t, err)
	assert.Equal(t, "anna.svensson@example.se", user.Email)
	assert.Equal(t, "Anna Svensson", user.DisplayName)
	assert.True(t, user.Roles.Admin, "upsert must not reset roles")
	assert.True(t, user.LastLoginAt.After(user.CreatedAt))
}

func TestUpsertIgnoresEmptySubject(t *testing.T) {
	store, _, _ := newTestStore(t)
	require.NoError(t, store.Upsert(context.Background(), "", "x@example.se", "X"))
}

func TestUpsertConcurrentFirstLogin(t *testing.T) {
	store, db, _ := newTestStore(t)
	ctx := context.Background()

	db.SetFault(func(op, collection, id string) error {
		if op == "create" && collection == "users" {
			return docstore.ErrConflict
		}
		return nil
	})
	require.NoError(t, store.Upsert(ctx, "oid-anna", "anna@example.se", "Anna"))
}

func TestGetNotFound(t *testing.T) {
	store, _, _ := newTestStore(t)

	_, err := store.Get(context.Background(), "saknas")
	assert.True(t, dErrors.Is(err, dErrors.CodeNotFound))
}

func TestList(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "oid-1", "anna@example.se", "Anna"))
	require.NoError(t, store.Upsert(ctx, "oid-2", "berit@example.se", "Berit"))
	require.NoError(t, store.Upsert(ctx, "oid-3", "cecilia@annan.se", "Cecilia"))

	t.Run("oldest first", func(t *testing.T) {
		list, err := store.List(ctx, "", 200)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, "anna@example.se", list[0].Email)
		assert.Equal(t, "cecilia@annan.se", list[2].Email)
	})

	t.Run("email substring filter", func(t *testing.T) {
		list, err := store.List(ctx, "EXAMPLE.SE", 200)
		require.NoError(t, err)
		assert.Len(t, list, 2)
	})

	t.Run("limit clamped", func(t *testing.T) {
		list, err := store.List(ctx, "", 0)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})
}

func TestSetAdminRole(t *testing.T) {
	store, _, auditor := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "oid-anna", "anna@example.se", "Anna"))

	user, err := store.SetAdminRole(ctx, "oid-anna", true, "oid-chef", "chef@example.se")
	require.NoError(t, err)
	assert.True(t, user.Roles.Admin)

	require.Len(t, auditor.records, 1)
	assert.Equal(t, audit.ActionGrantAdmin, auditor.records[0].action)
	assert.Equal(t, "oid-chef", auditor.records[0].actorOID)
	assert.Equal(t, "oid-anna", auditor.records[0].targetOID)
	assert.Equal(t, "anna@example.se", auditor.records[0].targetEmail)

	user, err = store.SetAdminRole(ctx, "oid-anna", false, "oid-chef", "chef@example.se")
	require.NoError(t, err)
	assert.False(t, user.Roles.Admin)
	require.Len(t, auditor.records, 2)
	assert.Equal(t, audit.ActionRevokeAdmin, auditor.records[1].action)
}

func TestSetAdminRoleNotFound(t *testing.T) {
	store, _, auditor := newTestStore(t)

	_, err := store.SetAdminRole(context.Background(), "saknas", true, "oid-chef", "chef@example.se")
	assert.True(t, dErrors.Is(err, dErrors.CodeNotFound))
	assert.Empty(t, auditor.records)
}

func TestSetAdminRoleAuditFailureDoesNotRollBack(t *testing.T) {
	db := docstore.NewMemory()
	recorder := audit.NewRecorder(db, slog.New(slog.DiscardHandler), metrics.NewForTest())
	store := NewStore(db, recorder)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "oid-anna", "anna@example.se", "Anna"))

	db.SetFault(func(op, collection, id string) error {
		if collection == "admin_audit" {
			return docstore.ErrUnavailable
		}
		return nil
	})

	user, err := store.SetAdminRole(ctx, "oid-anna", true, "oid-chef", "chef@example.se")
	require.NoError(t, err)
	assert.True(t, user.Roles.Admin)

	got, err := store.Get(ctx, "oid-anna")
	require.NoError(t, err)
	assert.True(t, got.Roles.Admin)
}
