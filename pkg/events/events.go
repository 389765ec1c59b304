// Package events carries committed graph changes to downstream sinks (kafka, the graph projection).
package events

import (
	"context"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/models"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

type Kind string

const (
	KindEntityCreated        Kind = "entity.created"
	KindEntityUpdated        Kind = "entity.updated"
	KindEntityMerged         Kind = "entity.merged"
	KindEdgeCreated          Kind = "relationship.created"
	KindReconciliationQueued Kind = "reconciliation.queued"
	KindReconciliationDone   Kind = "reconciliation.resolved"
	KindProposalCreated      Kind = "proposal.created"
	KindProposalApproved     Kind = "proposal.approved"
	KindProposalRejected     Kind = "proposal.rejected"
	KindInvoiceStatusChanged Kind = "invoice.status_changed"
)

// Event is one committed change. Exactly the fields relevant to Kind are set.
type Event struct {
	Kind      Kind
	Actor     string
	Reason    string
	Node      *models.Node
	Edge      *models.Edge
	Merge     *models.MergeOutcome
	Proposal  *models.MergeProposal
	Task      *models.ReconciliationTask
	Invoice   *models.Invoice
	Timestamp time.Time
}

// Sink receives events after the writes that produced them have committed.
type Sink interface {
	Handle(ctx context.Context, events ...Event) error
}

type noop struct{}

func (noop) Handle(context.Context, ...Event) error { return nil }

// Noop discards every event.
func Noop() Sink { return noop{} }

type multi []Sink

func (m multi) Handle(ctx context.Context, evts ...Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Handle(ctx, evts...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Multi fans events out to every sink and joins their errors.
func Multi(sinks ...Sink) Sink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Recorder collects events while a transaction runs so they can be dispatched after commit.
type Recorder struct {
	events []Event
}

func (r *Recorder) Add(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	r.events = append(r.events, e)
}

func (r *Recorder) Events() []Event {
	return r.events
}

// Flush hands the collected events to sink. Delivery failures are logged, never returned:
// the writes behind them are already durable.
func (r *Recorder) Flush(ctx context.Context, sink Sink, logger ectologger.Logger) {
	if sink == nil || len(r.events) == 0 {
		return
	}
	if err := sink.Handle(ctx, r.events...); err != nil {
		logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_count": len(r.events),
		}).Warn("Failed to deliver events")
	}
	r.events = nil
}
