package models

import "time"

type TaskStatus string

const (
	TaskStatusPending  TaskStatus = "pending"
	TaskStatusResolved TaskStatus = "resolved"
)

type ResolveAction string

const (
	ResolveActionMerge     ResolveAction = "merge"
	ResolveActionCreateNew ResolveAction = "create_new"
)

func (a ResolveAction) IsValid() bool {
	return a == ResolveActionMerge || a == ResolveActionCreateNew
}

// ReconciliationTask is an ambiguous match waiting for a human decision.
type ReconciliationTask struct {
	ID               int64         `json:"id"`
	Record           InvoiceRecord `json:"record"`
	CandidateID      string        `json:"candidate_id"`
	Score            float64       `json:"score"`
	EntityType       NodeType      `json:"entity_type"`
	Status           TaskStatus    `json:"status"`
	CreatedAt        time.Time     `json:"created_at"`
	ResolvedAt       *time.Time    `json:"resolved_at,omitempty"`
	ResolvedBy       string        `json:"resolved_by,omitempty"`
	Resolution       ResolveAction `json:"resolution,omitempty"`
	ResolvedEntityID string        `json:"resolved_entity_id,omitempty"`
}

// TaskResolution is the terminal write applied to a pending task.
type TaskResolution struct {
	Action           ResolveAction
	ResolvedBy       string
	ResolvedEntityID string
	ResolvedAt       time.Time
}

type ResolveTaskRequest struct {
	Action         ResolveAction `json:"action" validate:"required,oneof=merge create_new"`
	TargetEntityID string        `json:"target_entity_id,omitempty"`
	Actor          string        `json:"actor"`
}

type ResolveTaskResult struct {
	TaskID           int64  `json:"task_id"`
	ResolvedEntityID string `json:"resolved_entity_id"`
	EdgeID           string `json:"edge_id,omitempty"`
	InvoiceID        string `json:"invoice_id,omitempty"`
	// Duplicate is set when the record had already been ingested and nothing was linked.
	Duplicate        bool   `json:"duplicate,omitempty"`
}
