package kafka

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/Ramsey-B/fern/pkg/models"
)

// IncomingMessage is a consumed record with its headers flattened.
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string
}

// Header returns the header value, or fallback when the header is absent.
func (m *IncomingMessage) Header(key, fallback string) string {
	if v, ok := m.Headers[key]; ok && v != "" {
		return v
	}
	return fallback
}

// DecodeInvoice reads the message body as an invoice record. The raw body is kept as the
// record's payload when the producer did not send one.
func (m *IncomingMessage) DecodeInvoice() (models.InvoiceRecord, error) {
	var record models.InvoiceRecord
	if len(m.Value) == 0 {
		return record, errors.New("empty message body")
	}
	if err := json.Unmarshal(m.Value, &record); err != nil {
		return record, errors.Wrap(err, "failed to decode invoice record")
	}
	if record.Source == "" {
		record.Source = m.Header("source", "")
	}
	if len(record.RawPayload) == 0 {
		record.RawPayload = append(json.RawMessage(nil), m.Value...)
	}
	return record, nil
}
