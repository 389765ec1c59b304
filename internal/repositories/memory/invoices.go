package memory

import (
	"context"

	"github.com/Ramsey-B/fern/pkg/apperrors"
	"github.com/Ramsey-B/fern/pkg/models"
)

type invoiceRepo struct{ s *Store }

func (r *invoiceRepo) Create(ctx context.Context, invoice *models.Invoice) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.invoices[invoice.ID]; ok {
			return apperrors.InvalidOperation("invoice %s already exists", invoice.ID)
		}
		now := r.s.now()
		invoice.CreatedAt = now
		invoice.UpdatedAt = now
		if invoice.Status == "" {
			invoice.Status = models.InvoiceStatusUnapproved
		}
		stored := *invoice
		st.invoices[invoice.ID] = &stored
		return nil
	})
}

func (r *invoiceRepo) Get(ctx context.Context, id string) (*models.Invoice, error) {
	var out *models.Invoice
	err := r.s.read(ctx, func(st *state) error {
		inv, ok := st.invoices[id]
		if !ok {
			return apperrors.NotFound("invoice", id)
		}
		c := *inv
		out = &c
		return nil
	})
	return out, err
}

func (r *invoiceRepo) CountByVendor(ctx context.Context, vendorNodeID string) (int, error) {
	count := 0
	err := r.s.read(ctx, func(st *state) error {
		for _, inv := range st.invoices {
			if inv.VendorNodeID == vendorNodeID {
				count++
			}
		}
		return nil
	})
	return count, err
}

func (r *invoiceRepo) RepointVendor(ctx context.Context, victimID, survivorID string) (int, error) {
	moved := 0
	err := r.s.write(ctx, func(st *state) error {
		now := r.s.now()
		for _, inv := range st.invoices {
			if inv.VendorNodeID == victimID {
				inv.VendorNodeID = survivorID
				inv.UpdatedAt = now
				moved++
			}
		}
		return nil
	})
	return moved, err
}

func (r *invoiceRepo) UpdateStatus(ctx context.Context, id string, status models.InvoiceStatus) error {
	return r.s.write(ctx, func(st *state) error {
		inv, ok := st.invoices[id]
		if !ok {
			return apperrors.NotFound("invoice", id)
		}
		inv.Status = status
		inv.UpdatedAt = r.s.now()
		return nil
	})
}
