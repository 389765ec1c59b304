package models

type MatchType string

const (
	MatchTypeAuto      MatchType = "AUTO"
	MatchTypeCandidate MatchType = "CANDIDATE"
	MatchTypeNew       MatchType = "NEW"
)

// MatchResult is the outcome of resolving one raw name. MatchID is empty for NEW.
type MatchResult struct {
	MatchID     string    `json:"match_id,omitempty"`
	MatchType   MatchType `json:"match_type"`
	Score       float64   `json:"score"`
	MatchedName string    `json:"matched_name,omitempty"`
}

type ResolveRequest struct {
	RawName    string   `json:"raw_name" validate:"required"`
	EntityType NodeType `json:"entity_type"`
}

type IngestStatus string

const (
	IngestStatusIngested IngestStatus = "ingested"
	IngestStatusQueued   IngestStatus = "queued"
)

type IngestResult struct {
	Status    IngestStatus `json:"status"`
	EntityID  string       `json:"entity_id,omitempty"`
	EdgeID    string       `json:"edge_id,omitempty"`
	InvoiceID string       `json:"invoice_id,omitempty"`
	TaskID    int64        `json:"task_id,omitempty"`
	MatchType MatchType    `json:"match_type,omitempty"`
	Score     float64      `json:"score"`
	Duplicate bool         `json:"duplicate,omitempty"`
}
