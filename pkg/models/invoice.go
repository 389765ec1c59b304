package models

import (
	"encoding/json"
	"fmt"
	"time"
)

const DefaultCurrency = "USD"

// InvoiceRecord is one raw record handed to ingestion. RawPayload is stored for
// provenance and never interpreted.
type InvoiceRecord struct {
	Source      string          `json:"source" yaml:"source" validate:"required"`
	SourceID    string          `json:"source_id" yaml:"source_id" validate:"required"`
	VendorName  string          `json:"vendor_name" yaml:"vendor_name" validate:"required"`
	Amount      float64         `json:"amount" yaml:"amount" validate:"gte=0"`
	Currency    string          `json:"currency,omitempty" yaml:"currency"`
	Date        string          `json:"date" yaml:"date" validate:"required"`
	JobID       string          `json:"job_id,omitempty" yaml:"job_id"`
	CostCodes   []string        `json:"cost_codes,omitempty" yaml:"cost_codes"`
	Description string          `json:"description,omitempty" yaml:"description"`
	Attachments []string        `json:"attachments,omitempty" yaml:"attachments"`
	RawPayload  json.RawMessage `json:"raw_payload,omitempty" yaml:"-"`
}

// InvoiceID is the dedup key for a record's (source, source_id) pair.
func (r InvoiceRecord) InvoiceID() string {
	return fmt.Sprintf("inv:%s:%s", r.Source, r.SourceID)
}

func (r InvoiceRecord) CurrencyOrDefault() string {
	if r.Currency == "" {
		return DefaultCurrency
	}
	return r.Currency
}

type InvoiceStatus string

const (
	InvoiceStatusUnapproved InvoiceStatus = "unapproved"
	InvoiceStatusApproved   InvoiceStatus = "approved"
	InvoiceStatusPaid       InvoiceStatus = "paid"
	InvoiceStatusVoid       InvoiceStatus = "void"
)

func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusUnapproved, InvoiceStatusApproved, InvoiceStatusPaid, InvoiceStatusVoid:
		return true
	}
	return false
}

// Invoice is the detailed record written once a raw record is linked into the graph.
type Invoice struct {
	ID           string          `json:"id"`
	Source       string          `json:"source"`
	SourceID     string          `json:"source_id"`
	VendorNodeID string          `json:"vendor_node_id"`
	JobNodeID    string          `json:"job_node_id"`
	EdgeID       string          `json:"edge_id"`
	Amount       float64         `json:"amount"`
	Currency     string          `json:"currency"`
	Date         string          `json:"date"`
	Status       InvoiceStatus   `json:"status"`
	CostCodes    []string        `json:"cost_codes,omitempty"`
	Description  string          `json:"description,omitempty"`
	RawPayload   json.RawMessage `json:"raw_payload,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type UpdateInvoiceStatusRequest struct {
	Status InvoiceStatus `json:"status" validate:"required,oneof=unapproved approved paid void"`
	Actor  string        `json:"actor" validate:"required"`
}
