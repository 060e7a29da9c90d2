// Package audit appends admin and visit audit records. Writes are
// best-effort: a failed audit write is logged and counted but never fails
// the operation that triggered it.
package audit

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Fazzolix/matningsabo/internal/platform/docstore"
	"github.com/Fazzolix/matningsabo/internal/platform/metrics"
)

const (
	ActionGrantAdmin  = "grant_admin"
	ActionRevokeAdmin = "revoke_admin"

	ActionVisitUpdate = "update"
	ActionVisitDelete = "delete"
)

// AdminRecord tracks a role change.
type AdminRecord struct {
	ID          string    `json:"id" bson:"_id"`
	Action      string    `json:"action" bson:"action"`
	ActorOID    string    `json:"actor_oid" bson:"actor_oid"`
	ActorEmail  string    `json:"actor_email" bson:"actor_email"`
	TargetOID   string    `json:"target_oid" bson:"target_oid"`
	TargetEmail string    `json:"target_email" bson:"target_email"`
	TS          time.Time `json:"ts" bson:"ts"`
}

// VisitRecord tracks a mutation of a visit by its owner.
type VisitRecord struct {
	ID            string    `json:"id" bson:"_id"`
	Action        string    `json:"action" bson:"action"`
	ActorOID      string    `json:"actor_oid" bson:"actor_oid"`
	ActorEmail    string    `json:"actor_email" bson:"actor_email"`
	VisitID       string    `json:"visit_id" bson:"visit_id"`
	ChangedFields []string  `json:"changed_fields" bson:"changed_fields"`
	TS            time.Time `json:"ts" bson:"ts"`
}

type Recorder struct {
	admin   docstore.Collection
	visit   docstore.Collection
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	newID   func() string
}

func NewRecorder(db docstore.Store, logger *slog.Logger, m *metrics.Metrics) *Recorder {
	return &Recorder{
		admin:   db.Collection("admin_audit", "_id"),
		visit:   db.Collection("visit_audit", "_id"),
		logger:  logger,
		metrics: m,
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
	}
}

// RecordAdmin appends a role-change record. Never returns an error.
func (r *Recorder) RecordAdmin(ctx context.Context, action, actorOID, actorEmail, targetOID, targetEmail string) {
	rec := AdminRecord{
		ID:          r.newID(),
		Action:      action,
		ActorOID:    actorOID,
		ActorEmail:  strings.ToLower(strings.TrimSpace(actorEmail)),
		TargetOID:   targetOID,
		TargetEmail: strings.ToLower(strings.TrimSpace(targetEmail)),
		TS:          r.now().UTC(),
	}
	if err := r.admin.Create(ctx, rec.ID, rec.ID, rec); err != nil {
		r.metrics.AuditWriteFailures.WithLabelValues("admin").Inc()
		r.logger.Error("admin audit write failed",
			slog.String("action", action),
			slog.String("target_oid", targetOID),
			slog.Any("error", err))
	}
}

// RecordVisit appends a visit-mutation record. Never returns an error.
func (r *Recorder) RecordVisit(ctx context.Context, action, actorOID, actorEmail, visitID string, changedFields []string) {
	if changedFields == nil {
		changedFields = []string{}
	}
	rec := VisitRecord{
		ID:            r.newID(),
		Action:        action,
		ActorOID:      actorOID,
		ActorEmail:    strings.ToLower(strings.TrimSpace(actorEmail)),
		VisitID:       visitID,
		ChangedFields: changedFields,
		TS:            r.now().UTC(),
	}
	if err := r.visit.Create(ctx, rec.ID, rec.ID, rec); err != nil {
		r.metrics.AuditWriteFailures.WithLabelValues("visit").Inc()
		r.logger.Error("visit audit write failed",
			slog.String("action", action),
			slog.String("visit_id", visitID),
			slog.Any("error", err))
	}
}
