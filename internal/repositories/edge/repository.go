package edge

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/apperrors"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const table = "edges"

var columns = []string{"id", "type", "from_node_id", "to_node_id", "attrs", "created_at"}

// amounts are summed in one statement so the result is a single snapshot
const statsQuery = `
SELECT
	COALESCE(SUM(CASE WHEN to_node_id = $1 THEN COALESCE((attrs->>'amount')::double precision, 0) ELSE 0 END), 0) AS inflow,
	COALESCE(SUM(CASE WHEN from_node_id = $1 THEN COALESCE((attrs->>'amount')::double precision, 0) ELSE 0 END), 0) AS outflow,
	COALESCE(SUM(COALESCE((attrs->>'amount')::double precision, 0)), 0) AS volume,
	COUNT(*) AS edge_count
FROM edges
WHERE from_node_id = $1 OR to_node_id = $1`

type row struct {
	ID         string                            `db:"id"`
	Type       string                            `db:"type"`
	FromNodeID string                            `db:"from_node_id"`
	ToNodeID   string                            `db:"to_node_id"`
	Attrs      database.JSONB[models.Attributes] `db:"attrs"`
	CreatedAt  time.Time                         `db:"created_at"`
}

func (r row) toModel() *models.Edge {
	attrs := r.Attrs.GetValue()
	if attrs == nil {
		attrs = models.Attributes{}
	}
	return &models.Edge{
		ID:         r.ID,
		Type:       models.EdgeType(r.Type),
		FromNodeID: r.FromNodeID,
		ToNodeID:   r.ToNodeID,
		Attributes: attrs,
		CreatedAt:  r.CreatedAt,
	}
}

type statsRow struct {
	Inflow    float64 `db:"inflow"`
	Outflow   float64 `db:"outflow"`
	Volume    float64 `db:"volume"`
	EdgeCount int     `db:"edge_count"`
}

// Repository handles relationship persistence
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

func (r *Repository) Create(ctx context.Context, edge *models.Edge) error {
	ctx, span := tracing.StartSpan(ctx, "edge.Repository.Create")
	defer span.End()

	if edge.CreatedAt.IsZero() {
		edge.CreatedAt = time.Now().UTC()
	}
	if edge.Attributes == nil {
		edge.Attributes = models.Attributes{}
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols(columns...)
	ib.Values(edge.ID, edge.Type, edge.FromNodeID, edge.ToNodeID, database.NewJSONB(edge.Attributes), edge.CreatedAt)

	query, args := ib.Build()
	if _, err := r.db.Q(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"edge_id": edge.ID,
			"from":    edge.FromNodeID,
			"to":      edge.ToNodeID,
		}).Error("Failed to create edge")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create edge")
	}

	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (*models.Edge, error) {
	ctx, span := tracing.StartSpan(ctx, "edge.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var out row
	if err := r.db.Q(ctx).GetContext(ctx, &out, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, apperrors.NotFound("edge", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"edge_id": id}).Error("Failed to get edge")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get edge")
	}

	return out.toModel(), nil
}

func (r *Repository) ListTouching(ctx context.Context, nodeID string) ([]*models.Edge, error) {
	ctx, span := tracing.StartSpan(ctx, "edge.Repository.ListTouching")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Or(
		sb.Equal("from_node_id", nodeID),
		sb.Equal("to_node_id", nodeID),
	))
	sb.OrderBy("seq")

	query, args := sb.Build()
	var rows []row
	if err := r.db.Q(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"node_id": nodeID}).Error("Failed to list edges")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list edges")
	}

	out := make([]*models.Edge, 0, len(rows))
	for _, rw := range rows {
		out = append(out, rw.toModel())
	}
	return out, nil
}

func (r *Repository) RepointFrom(ctx context.Context, victimID, survivorID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "edge.Repository.RepointFrom")
	defer span.End()

	return r.repoint(ctx, "from_node_id", victimID, survivorID)
}

func (r *Repository) RepointTo(ctx context.Context, victimID, survivorID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "edge.Repository.RepointTo")
	defer span.End()

	return r.repoint(ctx, "to_node_id", victimID, survivorID)
}

func (r *Repository) repoint(ctx context.Context, column, victimID, survivorID string) (int, error) {
	ub := database.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(ub.Assign(column, survivorID))
	ub.Where(ub.Equal(column, victimID))

	query, args := ub.Build()
	result, err := r.db.Q(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"column":   column,
			"victim":   victimID,
			"survivor": survivorID,
		}).Error("Failed to repoint edges")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to repoint edges")
	}

	n, _ := result.RowsAffected()
	return int(n), nil
}

func (r *Repository) Stats(ctx context.Context, nodeID string) (models.NodeStats, error) {
	ctx, span := tracing.StartSpan(ctx, "edge.Repository.Stats")
	defer span.End()

	var out statsRow
	if err := r.db.Q(ctx).GetContext(ctx, &out, statsQuery, nodeID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"node_id": nodeID}).Error("Failed to compute node stats")
		return models.NodeStats{}, httperror.NewHTTPError(http.StatusInternalServerError, "failed to compute node stats")
	}

	return models.NodeStats{
		Inflow:    out.Inflow,
		Outflow:   out.Outflow,
		Volume:    out.Volume,
		EdgeCount: out.EdgeCount,
	}, nil
}
