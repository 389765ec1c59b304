package invoice

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/apperrors"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const table = "invoices"

var columns = []string{
	"id", "source", "source_id", "vendor_node_id", "job_node_id", "edge_id", "amount", "currency",
	"date", "status", "cost_codes", "description", "raw_payload", "created_at", "updated_at",
}

type row struct {
	ID           string                   `db:"id"`
	Source       string                   `db:"source"`
	SourceID     string                   `db:"source_id"`
	VendorNodeID string                   `db:"vendor_node_id"`
	JobNodeID    *string                  `db:"job_node_id"`
	EdgeID       *string                  `db:"edge_id"`
	Amount       float64                  `db:"amount"`
	Currency     string                   `db:"currency"`
	Date         string                   `db:"date"`
	Status       string                   `db:"status"`
	CostCodes    database.JSONB[[]string] `db:"cost_codes"`
	Description  string                   `db:"description"`
	RawPayload   []byte                   `db:"raw_payload"`
	CreatedAt    time.Time                `db:"created_at"`
	UpdatedAt    time.Time                `db:"updated_at"`
}

func (r row) toModel() *models.Invoice {
	inv := &models.Invoice{
		ID:           r.ID,
		Source:       r.Source,
		SourceID:     r.SourceID,
		VendorNodeID: r.VendorNodeID,
		Amount:       r.Amount,
		Currency:     r.Currency,
		Date:         r.Date,
		Status:       models.InvoiceStatus(r.Status),
		CostCodes:    r.CostCodes.GetValue(),
		Description:  r.Description,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.JobNodeID != nil {
		inv.JobNodeID = *r.JobNodeID
	}
	if r.EdgeID != nil {
		inv.EdgeID = *r.EdgeID
	}
	if len(r.RawPayload) > 0 {
		inv.RawPayload = json.RawMessage(r.RawPayload)
	}
	return inv
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Repository persists detailed invoice records
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

func (r *Repository) Create(ctx context.Context, invoice *models.Invoice) error {
	ctx, span := tracing.StartSpan(ctx, "invoice.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	invoice.CreatedAt = now
	invoice.UpdatedAt = now
	if invoice.Status == "" {
		invoice.Status = models.InvoiceStatusUnapproved
	}
	costCodes := invoice.CostCodes
	if costCodes == nil {
		costCodes = []string{}
	}
	var raw any
	if len(invoice.RawPayload) > 0 {
		raw = string(invoice.RawPayload)
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols(columns...)
	ib.Values(
		invoice.ID, invoice.Source, invoice.SourceID, invoice.VendorNodeID,
		nullable(invoice.JobNodeID), nullable(invoice.EdgeID), invoice.Amount, invoice.Currency,
		invoice.Date, invoice.Status, database.NewJSONB(costCodes), invoice.Description, raw,
		invoice.CreatedAt, invoice.UpdatedAt,
	)

	query, args := ib.Build()
	if _, err := r.db.Q(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"invoice_id": invoice.ID}).Error("Failed to create invoice")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create invoice")
	}

	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (*models.Invoice, error) {
	ctx, span := tracing.StartSpan(ctx, "invoice.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var out row
	if err := r.db.Q(ctx).GetContext(ctx, &out, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, apperrors.NotFound("invoice", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"invoice_id": id}).Error("Failed to get invoice")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get invoice")
	}

	return out.toModel(), nil
}

func (r *Repository) CountByVendor(ctx context.Context, vendorNodeID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "invoice.Repository.CountByVendor")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From(table)
	sb.Where(sb.Equal("vendor_node_id", vendorNodeID))

	query, args := sb.Build()
	var count int
	if err := r.db.Q(ctx).GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"vendor_node_id": vendorNodeID}).Error("Failed to count invoices")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count invoices")
	}
	return count, nil
}

func (r *Repository) RepointVendor(ctx context.Context, victimID, survivorID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "invoice.Repository.RepointVendor")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(
		ub.Assign("vendor_node_id", survivorID),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(ub.Equal("vendor_node_id", victimID))

	query, args := ub.Build()
	result, err := r.db.Q(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"victim":   victimID,
			"survivor": survivorID,
		}).Error("Failed to repoint invoices")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to repoint invoices")
	}

	n, _ := result.RowsAffected()
	return int(n), nil
}

func (r *Repository) UpdateStatus(ctx context.Context, id string, status models.InvoiceStatus) error {
	ctx, span := tracing.StartSpan(ctx, "invoice.Repository.UpdateStatus")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(
		ub.Assign("status", status),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	result, err := r.db.Q(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"invoice_id": id}).Error("Failed to update invoice status")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update invoice status")
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return apperrors.NotFound("invoice", id)
	}
	return nil
}
