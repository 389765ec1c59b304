package reconciliation

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/apperrors"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const table = "reconciliation_tasks"

var columns = []string{
	"id", "record", "candidate_id", "score", "entity_type", "status",
	"created_at", "resolved_at", "resolved_by", "resolution", "resolved_entity_id",
}

type row struct {
	ID               int64                                `db:"id"`
	Record           database.JSONB[models.InvoiceRecord] `db:"record"`
	CandidateID      string                               `db:"candidate_id"`
	Score            float64                              `db:"score"`
	EntityType       string                               `db:"entity_type"`
	Status           string                               `db:"status"`
	CreatedAt        time.Time                            `db:"created_at"`
	ResolvedAt       *time.Time                           `db:"resolved_at"`
	ResolvedBy       *string                              `db:"resolved_by"`
	Resolution       *string                              `db:"resolution"`
	ResolvedEntityID *string                              `db:"resolved_entity_id"`
}

func (r row) toModel() models.ReconciliationTask {
	task := models.ReconciliationTask{
		ID:          r.ID,
		Record:      r.Record.GetValue(),
		CandidateID: r.CandidateID,
		Score:       r.Score,
		EntityType:  models.NodeType(r.EntityType),
		Status:      models.TaskStatus(r.Status),
		CreatedAt:   r.CreatedAt,
		ResolvedAt:  r.ResolvedAt,
	}
	if r.ResolvedBy != nil {
		task.ResolvedBy = *r.ResolvedBy
	}
	if r.Resolution != nil {
		task.Resolution = models.ResolveAction(*r.Resolution)
	}
	if r.ResolvedEntityID != nil {
		task.ResolvedEntityID = *r.ResolvedEntityID
	}
	return task
}

// Repository persists the reconciliation queue
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

func (r *Repository) Create(ctx context.Context, task *models.ReconciliationTask) error {
	ctx, span := tracing.StartSpan(ctx, "reconciliation.Repository.Create")
	defer span.End()

	task.Status = models.TaskStatusPending
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols("record", "candidate_id", "score", "entity_type", "status", "created_at")
	ib.Values(database.NewJSONB(task.Record), task.CandidateID, task.Score, task.EntityType, task.Status, task.CreatedAt)
	ib.Returning("id")

	query, args := ib.Build()
	if err := r.db.Q(ctx).QueryRowxContext(ctx, query, args...).Scan(&task.ID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"candidate_id": task.CandidateID}).Error("Failed to create reconciliation task")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create reconciliation task")
	}

	return nil
}

func (r *Repository) Get(ctx context.Context, id int64) (*models.ReconciliationTask, error) {
	ctx, span := tracing.StartSpan(ctx, "reconciliation.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var out row
	if err := r.db.Q(ctx).GetContext(ctx, &out, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, apperrors.NotFound("reconciliation task", fmt.Sprint(id))
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"task_id": id}).Error("Failed to get reconciliation task")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get reconciliation task")
	}

	task := out.toModel()
	return &task, nil
}

func (r *Repository) ListPending(ctx context.Context, limit int) ([]models.ReconciliationTask, error) {
	ctx, span := tracing.StartSpan(ctx, "reconciliation.Repository.ListPending")
	defer span.End()

	if limit < 1 || limit > 500 {
		limit = 100
	}

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("status", models.TaskStatusPending))
	sb.OrderBy("id")
	sb.Limit(limit)

	query, args := sb.Build()
	var rows []row
	if err := r.db.Q(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list pending reconciliation tasks")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list reconciliation tasks")
	}

	out := make([]models.ReconciliationTask, 0, len(rows))
	for _, rw := range rows {
		out = append(out, rw.toModel())
	}
	return out, nil
}

func (r *Repository) FindPending(ctx context.Context, source, sourceID string) (*models.ReconciliationTask, error) {
	ctx, span := tracing.StartSpan(ctx, "reconciliation.Repository.FindPending")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(
		sb.Equal("status", models.TaskStatusPending),
		sb.Equal(database.JSONPath("record", "source"), source),
		sb.Equal(database.JSONPath("record", "source_id"), sourceID),
	)
	sb.OrderBy("id")
	sb.Limit(1)

	query, args := sb.Build()
	var out row
	if err := r.db.Q(ctx).GetContext(ctx, &out, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, apperrors.NotFound("reconciliation task", source+"/"+sourceID)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"source":    source,
			"source_id": sourceID,
		}).Error("Failed to find pending reconciliation task")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find reconciliation task")
	}

	task := out.toModel()
	return &task, nil
}

// Resolve is a conditional update on status so two resolvers cannot both win.
func (r *Repository) Resolve(ctx context.Context, id int64, resolution models.TaskResolution) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "reconciliation.Repository.Resolve")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(
		ub.Assign("status", models.TaskStatusResolved),
		ub.Assign("resolution", resolution.Action),
		ub.Assign("resolved_by", resolution.ResolvedBy),
		ub.Assign("resolved_entity_id", resolution.ResolvedEntityID),
		ub.Assign("resolved_at", resolution.ResolvedAt),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("status", models.TaskStatusPending),
	)

	query, args := ub.Build()
	result, err := r.db.Q(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"task_id": id}).Error("Failed to resolve reconciliation task")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to resolve reconciliation task")
	}

	if n, _ := result.RowsAffected(); n > 0 {
		return true, nil
	}

	// distinguish a missing task from one that is no longer pending
	if _, err := r.Get(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}
