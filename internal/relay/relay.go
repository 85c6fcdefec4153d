// Package relay publishes adapter status events to Kafka so other
// systems can follow instance connectivity without polling the
// adapter's endpoints.
//
// The relay subscribes to the status bus and queues events for a
// single background publisher. Queueing keeps healthchecks from
// blocking on broker acknowledgement: when the queue is full the
// event is dropped and counted instead of stalling the emitter.
//
// # franz-go Client
//
// We use github.com/twmb/franz-go as the Kafka client for several reasons:
//
//   - Pure Go. No CGo dependency on librdkafka.
//   - Modern API with context-aware methods.
//   - Natively supports idempotent producing.
//   - Active maintenance and excellent documentation.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/stanleypendergraft/adapter-change-management/internal/config"
	"github.com/stanleypendergraft/adapter-change-management/internal/events"
	"github.com/stanleypendergraft/adapter-change-management/internal/observability"
)

// queueSize bounds how many status events may wait for the broker.
const queueSize = 16

// Envelope is the relayed form of one status event.
type Envelope struct {
	EventID   string             `json:"event_id"`
	Status    string             `json:"status"`
	Payload   events.StatusEvent `json:"payload"`
	EmittedAt time.Time          `json:"emitted_at"`
}

// Encoder renders an envelope into the bytes produced to Kafka.
type Encoder interface {
	Encode(ctx context.Context, env Envelope) ([]byte, error)
}

// JSONEncoder renders envelopes as plain JSON documents.
type JSONEncoder struct{}

func (JSONEncoder) Encode(_ context.Context, env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

type queuedEvent struct {
	status events.Status
	event  events.StatusEvent
}

// Relay owns the Kafka producer and the queue between the status bus
// and the broker.
//
// The producer is configured with acks=all (RequiredAcks: -1) so an
// acknowledged status event is replicated before it counts as
// delivered.
type Relay struct {
	client  *kgo.Client
	topic   string
	encoder Encoder
	logger  *slog.Logger
	queue   chan queuedEvent
}

// New creates a relay from the adapter configuration. The relay is
// idle until Run is started and its Subscriber is registered on the
// status bus.
func New(cfg config.RelayConfig, logger *slog.Logger) (*Relay, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()), // -1: wait for all in-sync replicas
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.RecordRetries(5),
		kgo.RetryTimeout(30 * time.Second),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating Kafka producer client: %w", err)
	}

	var encoder Encoder = JSONEncoder{}
	if cfg.Encoding == "avro" {
		encoder, err = NewAvroEncoder(NewHTTPRegistryClient(cfg.SchemaRegistryURL), cfg.Topic)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("building avro encoder: %w", err)
		}
	}

	return &Relay{
		client:  client,
		topic:   cfg.Topic,
		encoder: encoder,
		logger:  logger.With("component", "relay"),
		queue:   make(chan queuedEvent, queueSize),
	}, nil
}

// Subscriber returns the handler to register on the status bus. The
// handler only enqueues, so emitters never wait on the broker.
func (r *Relay) Subscriber() events.Handler {
	return func(status events.Status, event events.StatusEvent) {
		select {
		case r.queue <- queuedEvent{status: status, event: event}:
		default:
			observability.Metrics.RelayPublishTotal.WithLabelValues("dropped").Inc()
			r.logger.Warn("relay queue full, dropping status event", "status", status)
		}
	}
}

// Run drains the queue until the context is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("relay starting", "topic", r.topic)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("relay shutting down")
			return ctx.Err()
		case q := <-r.queue:
			r.publish(ctx, q.status, q.event)
		}
	}
}

// publish sends one status event and waits for broker acknowledgement.
// Failures are logged and counted; the event is not requeued beyond
// the retries the client already performs.
func (r *Relay) publish(ctx context.Context, status events.Status, event events.StatusEvent) {
	env := Envelope{
		EventID:   uuid.NewString(),
		Status:    string(status),
		Payload:   event,
		EmittedAt: time.Now().UTC(),
	}

	value, err := r.encoder.Encode(ctx, env)
	if err != nil {
		observability.Metrics.RelayPublishTotal.WithLabelValues("encode_error").Inc()
		r.logger.Error("status event did not encode", "error", err)
		return
	}

	rec := &kgo.Record{
		Topic: r.topic,
		Key:   []byte(event.ID),
		Value: value,
	}

	results := r.client.ProduceSync(ctx, rec)
	if err := results.FirstErr(); err != nil {
		observability.Metrics.RelayPublishTotal.WithLabelValues("error").Inc()
		r.logger.Error("status event did not publish", "topic", r.topic, "error", err)
		return
	}

	observability.Metrics.RelayPublishTotal.WithLabelValues("ok").Inc()
	r.logger.Debug("status event published",
		"topic", r.topic,
		"status", status,
		"partition", results[0].Record.Partition,
		"offset", results[0].Record.Offset,
	)
}

// Close flushes any pending messages and closes the Kafka connection.
func (r *Relay) Close() {
	r.client.Close()
}
