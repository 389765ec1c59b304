package events

import (
	"context"
	"encoding/json"

	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
)

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, entities []*kafka.EntityEvent, relationships []*kafka.RelationshipEvent) error
}

// Emitter turns graph events into kafka change messages.
type Emitter struct {
	publisher Publisher
}

func NewEmitter(publisher Publisher) *Emitter {
	return &Emitter{publisher: publisher}
}

func (e *Emitter) Handle(ctx context.Context, evts ...Event) error {
	var entities []*kafka.EntityEvent
	var relationships []*kafka.RelationshipEvent

	for _, evt := range evts {
		switch {
		case evt.Edge != nil:
			relationships = append(relationships, relationshipEvent(evt))
		default:
			if ent := entityEvent(evt); ent != nil {
				entities = append(entities, ent)
			}
		}
	}

	return e.publisher.Publish(ctx, entities, relationships)
}

func relationshipEvent(evt Event) *kafka.RelationshipEvent {
	props, _ := json.Marshal(evt.Edge.Attributes)
	return &kafka.RelationshipEvent{
		EventType:        string(evt.Kind),
		RelationshipID:   evt.Edge.ID,
		RelationshipType: string(evt.Edge.Type),
		FromEntityID:     evt.Edge.FromNodeID,
		ToEntityID:       evt.Edge.ToNodeID,
		Actor:            evt.Actor,
		Properties:       props,
		SchemaVersion:    SchemaVersion,
		Timestamp:        evt.Timestamp,
	}
}

func entityEvent(evt Event) *kafka.EntityEvent {
	out := &kafka.EntityEvent{
		EventType:     string(evt.Kind),
		Actor:         evt.Actor,
		SchemaVersion: SchemaVersion,
		Timestamp:     evt.Timestamp,
	}

	switch {
	case evt.Merge != nil:
		out.EntityID = evt.Merge.SurvivorID
		out.EntityType = string(models.NodeTypeVendor)
		out.SourceEntities = []string{evt.Merge.VictimID}
		out.Data, _ = json.Marshal(map[string]any{
			"reason":         evt.Reason,
			"edges_from":     evt.Merge.EdgesFrom,
			"edges_to":       evt.Merge.EdgesTo,
			"invoices_moved": evt.Merge.InvoicesMoved,
		})
		if evt.Node != nil {
			out.EntityType = string(evt.Node.Type)
		}
	case evt.Node != nil:
		out.EntityID = evt.Node.ID
		out.EntityType = string(evt.Node.Type)
		out.Data, _ = json.Marshal(evt.Node.Attributes)
	case evt.Invoice != nil:
		out.EntityID = evt.Invoice.ID
		out.EntityType = "Invoice"
		out.Data, _ = json.Marshal(evt.Invoice)
	case evt.Task != nil:
		out.EntityID = evt.Task.CandidateID
		out.EntityType = "ReconciliationTask"
		out.Data, _ = json.Marshal(evt.Task)
	case evt.Proposal != nil:
		out.EntityID = evt.Proposal.SurvivorID
		out.EntityType = "MergeProposal"
		out.SourceEntities = append([]string(nil), evt.Proposal.VictimIDs...)
		out.Data, _ = json.Marshal(evt.Proposal)
	default:
		return nil
	}
	return out
}
