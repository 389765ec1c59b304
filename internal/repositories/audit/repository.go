package audit

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const table = "audit_log"

type row struct {
	ID        int64                          `db:"id"`
	Action    string                         `db:"action"`
	Actor     string                         `db:"actor"`
	TargetID  string                         `db:"target_id"`
	Details   database.JSONB[map[string]any] `db:"details"`
	Timestamp time.Time                      `db:"timestamp"`
}

// Repository appends to and reads the audit log. The table rejects updates and deletes.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) Append(ctx context.Context, entry *models.AuditEntry) error {
	ctx, span := tracing.StartSpan(ctx, "audit.Repository.Append")
	defer span.End()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	details := entry.Details
	if details == nil {
		details = map[string]any{}
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols("action", "actor", "target_id", "details", "timestamp")
	ib.Values(entry.Action, entry.Actor, entry.TargetID, database.NewJSONB(details), entry.Timestamp)
	ib.Returning("id")

	query, args := ib.Build()
	if err := r.db.Q(ctx).QueryRowxContext(ctx, query, args...).Scan(&entry.ID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"action":    entry.Action,
			"target_id": entry.TargetID,
		}).Error("Failed to append audit entry")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to append audit entry")
	}

	return nil
}

func (r *Repository) ListByTarget(ctx context.Context, targetID string) ([]models.AuditEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "audit.Repository.ListByTarget")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("id", "action", "actor", "target_id", "details", "timestamp")
	sb.From(table)
	sb.Where(sb.Equal("target_id", targetID))
	sb.OrderBy("timestamp DESC", "id DESC")

	query, args := sb.Build()
	var rows []row
	if err := r.db.Q(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"target_id": targetID}).Error("Failed to list audit entries")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list audit entries")
	}

	out := make([]models.AuditEntry, 0, len(rows))
	for _, rw := range rows {
		out = append(out, models.AuditEntry{
			ID:        rw.ID,
			Action:    models.AuditAction(rw.Action),
			Actor:     rw.Actor,
			TargetID:  rw.TargetID,
			Details:   rw.Details.GetValue(),
			Timestamp: rw.Timestamp,
		})
	}
	return out, nil
}
