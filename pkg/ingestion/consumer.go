package ingestion

import (
	"context"

	"github.com/Ramsey-B/fern/pkg/apperrors"
	fernctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/kafka"
)

const headerActor = "actor"

// MessageHandler ingests one invoice record per kafka message. Undecodable bodies are
// reported as InvalidOperation so the consumer commits past them instead of retrying.
func (o *Orchestrator) MessageHandler() kafka.MessageHandler {
	return func(ctx context.Context, msg *kafka.IncomingMessage) error {
		record, err := msg.DecodeInvoice()
		if err != nil {
			return apperrors.InvalidOperation("%s/%d@%d: %v", msg.Topic, msg.Partition, msg.Offset, err)
		}

		ctx = fernctx.SetSource(ctx, "kafka")
		if requestID := msg.Header("request_id", ""); requestID != "" {
			ctx = fernctx.SetRequestID(ctx, requestID)
		}

		_, err = o.Ingest(ctx, record, msg.Header(headerActor, ""))
		return err
	}
}
