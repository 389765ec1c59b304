package models

import "time"

type EdgeType string

const (
	EdgeTypeContract    EdgeType = "Contract"
	EdgeTypeInvoice     EdgeType = "Invoice"
	EdgeTypePayment     EdgeType = "Payment"
	EdgeTypePaymentFlow EdgeType = "PaymentFlow"
)

// Edge is a directed relationship. Only the endpoints change after creation, and only through a merge.
type Edge struct {
	ID         string     `json:"id"`
	Type       EdgeType   `json:"type"`
	FromNodeID string     `json:"from_node_id"`
	ToNodeID   string     `json:"to_node_id"`
	Attributes Attributes `json:"attrs"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (e *Edge) Touches(nodeID string) bool {
	return e.FromNodeID == nodeID || e.ToNodeID == nodeID
}

func (e *Edge) Clone() *Edge {
	if e == nil {
		return nil
	}
	c := *e
	c.Attributes = e.Attributes.Clone()
	return &c
}

// RepointResult counts the edges moved by a single endpoint rewrite.
type RepointResult struct {
	From int `json:"from"`
	To   int `json:"to"`
}
