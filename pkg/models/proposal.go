package models

import "time"

type ProposalStatus string

const (
	ProposalStatusPending  ProposalStatus = "pending"
	ProposalStatusApproved ProposalStatus = "approved"
	ProposalStatusRejected ProposalStatus = "rejected"
)

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// VictimImpact is the advisory effect of absorbing one victim, computed at proposal time.
type VictimImpact struct {
	VictimID     string  `json:"victim_id"`
	VictimName   string  `json:"victim_name,omitempty"`
	EdgeCount    int     `json:"affected_edges"`
	TotalAmount  float64 `json:"total_transaction_value"`
	InvoiceCount int     `json:"affected_invoices"`
}

type ImpactPreview struct {
	Victims               []VictimImpact `json:"victims"`
	AffectedEdges         int            `json:"affected_edges"`
	TotalTransactionValue float64        `json:"total_transaction_value"`
	AffectedInvoices      int            `json:"affected_invoices"`
}

type MergeProposal struct {
	ID              int64          `json:"id"`
	SurvivorID      string         `json:"survivor_id"`
	VictimIDs       []string       `json:"victim_ids"`
	ProposedBy      string         `json:"proposed_by"`
	Reason          string         `json:"reason"`
	Preview         ImpactPreview  `json:"impact_preview"`
	Status          ProposalStatus `json:"status"`
	ProposedAt      time.Time      `json:"proposed_at"`
	DecidedBy       string         `json:"decided_by,omitempty"`
	DecidedAt       *time.Time     `json:"decided_at,omitempty"`
	DecisionNotes   string         `json:"decision_notes,omitempty"`
	RejectionReason string         `json:"rejection_reason,omitempty"`
}

// ProposalDecision is the terminal write applied to a pending proposal.
type ProposalDecision struct {
	Status          ProposalStatus
	DecidedBy       string
	DecidedAt       time.Time
	Notes           string
	RejectionReason string
}

// MergeOutcome reports what a single merge moved.
type MergeOutcome struct {
	SurvivorID    string `json:"survivor_id"`
	VictimID      string `json:"victim_id"`
	EdgesFrom     int    `json:"edges_from"`
	EdgesTo       int    `json:"edges_to"`
	InvoicesMoved int    `json:"invoices_moved"`
}

type ApprovalResult struct {
	Proposal *MergeProposal `json:"proposal"`
	Merges   []MergeOutcome `json:"merges"`
}

type MergeRequest struct {
	SurvivorID string `json:"survivor_id" validate:"required"`
	VictimID   string `json:"victim_id" validate:"required"`
	Reason     string `json:"reason"`
	Actor      string `json:"actor"`
}

type ProposeMergeRequest struct {
	SurvivorID string   `json:"survivor_id" validate:"required"`
	VictimIDs  []string `json:"victim_ids" validate:"required,min=1"`
	Reason     string   `json:"reason"`
	ProposedBy string   `json:"proposed_by" validate:"required"`
}

type ApproveProposalRequest struct {
	ApprovedBy string `json:"approved_by" validate:"required"`
	Notes      string `json:"notes"`
}

type RejectProposalRequest struct {
	RejectedBy string `json:"rejected_by" validate:"required"`
	Reason     string `json:"reason"`
}
