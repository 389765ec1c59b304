package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Writer is the subset of *kafka.Writer the producer uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes graph change events
type Producer struct {
	writer Writer
	logger ectologger.Logger
	topic  string
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return NewProducerWithWriter(writer, cfg.Topic, logger)
}

// NewProducerWithWriter wraps an existing writer.
func NewProducerWithWriter(writer Writer, topic string, logger ectologger.Logger) *Producer {
	return &Producer{
		writer: writer,
		logger: logger,
		topic:  topic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// EntityEvent is the wire form of a node change. Data carries the node attributes or
// the merge details.
type EntityEvent struct {
	EventType      string          `json:"event_type"`
	EntityID       string          `json:"entity_id"`
	EntityType     string          `json:"entity_type"`
	Actor          string          `json:"actor,omitempty"`
	Data           json.RawMessage `json:"data,omitempty"`
	SourceEntities []string        `json:"source_entities,omitempty"`
	SchemaVersion  string          `json:"schema_version"`
	Timestamp      time.Time       `json:"timestamp"`
}

// RelationshipEvent is the wire form of an edge change
type RelationshipEvent struct {
	EventType        string          `json:"event_type"`
	RelationshipID   string          `json:"relationship_id"`
	RelationshipType string          `json:"relationship_type"`
	FromEntityID     string          `json:"from_entity_id"`
	ToEntityID       string          `json:"to_entity_id"`
	Actor            string          `json:"actor,omitempty"`
	Properties       json.RawMessage `json:"properties,omitempty"`
	SchemaVersion    string          `json:"schema_version"`
	Timestamp        time.Time       `json:"timestamp"`
}

func (p *Producer) entityMessage(event *EntityEvent) (kafka.Message, error) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.EntityID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "entity_type", Value: []byte(event.EntityType)},
			{Key: "schema_version", Value: []byte(event.SchemaVersion)},
		},
	}, nil
}

func (p *Producer) relationshipMessage(event *RelationshipEvent) (kafka.Message, error) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.RelationshipID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "relationship_type", Value: []byte(event.RelationshipType)},
			{Key: "schema_version", Value: []byte(event.SchemaVersion)},
		},
	}, nil
}

// Publish writes entity and relationship events as one batch, preserving order.
func (p *Producer) Publish(ctx context.Context, entities []*EntityEvent, relationships []*RelationshipEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.Publish")
	defer span.End()

	messages := make([]kafka.Message, 0, len(entities)+len(relationships))
	for _, e := range entities {
		msg, err := p.entityMessage(e)
		if err != nil {
			return err
		}
		messages = append(messages, msg)
	}
	for _, r := range relationships {
		msg, err := p.relationshipMessage(r)
		if err != nil {
			return err
		}
		messages = append(messages, msg)
	}

	if len(messages) == 0 {
		return nil
	}

	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		metrics.RecordKafkaMessage(p.topic, "out", "error")
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"batch_size": len(messages),
		}).Error("Failed to publish events batch")
		tracing.RecordError(span, err)
		return err
	}

	metrics.RecordKafkaMessage(p.topic, "out", "ok")
	p.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_size": len(messages),
	}).Debug("Published events batch")

	return nil
}
