package node

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

const table = "nodes"

var columns = []string{"id", "type", "attrs", "created_at", "updated_at"}

type row struct {
	ID        string                            `db:"id"`
	Type      string                            `db:"type"`
	Attrs     database.JSONB[models.Attributes] `db:"attrs"`
	CreatedAt time.Time                         `db:"created_at"`
	UpdatedAt time.Time                         `db:"updated_at"`
}

func (r row) toModel() *models.Node {
	attrs := r.Attrs.GetValue()
	if attrs == nil {
		attrs = models.Attributes{}
	}
	return &models.Node{
		ID:         r.ID,
		Type:       models.NodeType(r.Type),
		Attributes: attrs,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

// Repository handles canonical node persistence
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

func (r *Repository) Create(ctx context.Context, node *models.Node) error {
	ctx, span := tracing.StartSpan(ctx, "node.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	if node.CreatedAt.IsZero() {
		node.CreatedAt = now
	}
	node.UpdatedAt = now
	if node.Attributes == nil {
		node.Attributes = models.Attributes{}
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols(columns...)
	ib.Values(node.ID, node.Type, database.NewJSONB(node.Attributes), node.CreatedAt, node.UpdatedAt)

	query, args := ib.Build()
	if _, err := r.db.Q(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"node_id": node.ID}).Error("Failed to create node")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create node")
	}

	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (*models.Node, error) {
	ctx, span := tracing.StartSpan(ctx, "node.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var out row
	if err := r.db.Q(ctx).GetContext(ctx, &out, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, apperrors.NotFound("node", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"node_id": id}).Error("Failed to get node")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get node")
	}

	return out.toModel(), nil
}

// Lock takes FOR UPDATE locks in id order so concurrent merges cannot deadlock.
func (r *Repository) Lock(ctx context.Context, ids ...string) error {
	ctx, span := tracing.StartSpan(ctx, "node.Repository.Lock")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	args := make([]any, 0, len(ids))
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := wanted[id]; ok {
			continue
		}
		wanted[id] = struct{}{}
		args = append(args, id)
	}

	sb := database.NewSelectBuilder()
	sb.Select("id")
	sb.From(table)
	sb.Where(sb.In("id", args...))
	sb.OrderBy("id")
	database.ForUpdate(sb)

	query, qargs := sb.Build()
	var locked []string
	if err := r.db.Q(ctx).SelectContext(ctx, &locked, query, qargs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"node_ids": ids}).Error("Failed to lock nodes")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to lock nodes")
	}

	for _, id := range locked {
		delete(wanted, id)
	}
	for _, id := range ids {
		if _, missing := wanted[id]; missing {
			return apperrors.NotFound("node", id)
		}
	}

	return nil
}

func (r *Repository) ListLive(ctx context.Context, nodeType models.NodeType) ([]*models.Node, error) {
	ctx, span := tracing.StartSpan(ctx, "node.Repository.ListLive")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(
		sb.Equal("type", nodeType),
		sb.NotEqual("COALESCE("+database.JSONPath("attrs", models.AttrStatus)+", 'active')", string(models.NodeStatusMerged)),
	)
	sb.OrderBy("id")

	query, args := sb.Build()
	var rows []row
	if err := r.db.Q(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"node_type": nodeType}).Error("Failed to list live nodes")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list nodes")
	}

	out := make([]*models.Node, 0, len(rows))
	for _, rw := range rows {
		out = append(out, rw.toModel())
	}
	return out, nil
}

func (r *Repository) UpdateAttributes(ctx context.Context, id string, attrs models.Attributes) error {
	ctx, span := tracing.StartSpan(ctx, "node.Repository.UpdateAttributes")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(
		ub.Assign("attrs", database.NewJSONB(attrs)),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	result, err := r.db.Q(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"node_id": id}).Error("Failed to update node attributes")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update node")
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return apperrors.NotFound("node", id)
	}
	return nil
}
