package relay

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/hamba/avro/v2"
)

// SchemaRegistryClient is a simple client for interacting with a
// Confluent-compatible Schema Registry.
type SchemaRegistryClient interface {
	// GetSchemaID returns the ID for the given subject's schema,
	// registering the schema when the registry does not know it yet.
	GetSchemaID(ctx context.Context, subject string, schema avro.Schema) (int, error)
}

// newStatusSchema builds the Avro record schema for relayed status
// events. All fields are optional strings, which keeps schema
// evolution cheap.
func newStatusSchema() (avro.Schema, error) {
	fields := []string{"event_id", "status", "id", "emitted_at"}

	avroFields := make([]*avro.Field, 0, len(fields))
	for _, f := range fields {
		// Union schema ["null", "string"] to make the field optional.
		schema, _ := avro.NewUnionSchema([]avro.Schema{
			&avro.NullSchema{},
			avro.NewPrimitiveSchema(avro.String, nil),
		})

		field, err := avro.NewField(f, schema, avro.WithDefault(nil))
		if err != nil {
			return nil, fmt.Errorf("creating field %s: %w", f, err)
		}
		avroFields = append(avroFields, field)
	}

	recordSchema, err := avro.NewRecordSchema("adapter_status", "com.changemanagement.adapter", avroFields)
	if err != nil {
		return nil, fmt.Errorf("creating record schema: %w", err)
	}

	return recordSchema, nil
}

// AvroEncoder renders envelopes in the Confluent wire format:
// [Magic Byte (0)] [Schema ID (4 bytes)] [Avro Data].
type AvroEncoder struct {
	registry SchemaRegistryClient
	subject  string
	schema   avro.Schema

	mu       sync.Mutex
	schemaID int
	resolved bool
}

// NewAvroEncoder builds an encoder that registers the status schema
// under the topic's value subject the first time it encodes.
func NewAvroEncoder(registry SchemaRegistryClient, topic string) (*AvroEncoder, error) {
	schema, err := newStatusSchema()
	if err != nil {
		return nil, err
	}
	return &AvroEncoder{
		registry: registry,
		subject:  topic + "-value",
		schema:   schema,
	}, nil
}

func (e *AvroEncoder) Encode(ctx context.Context, env Envelope) ([]byte, error) {
	id, err := e.resolveSchemaID(ctx)
	if err != nil {
		return nil, err
	}

	record := map[string]interface{}{
		"event_id":   env.EventID,
		"status":     env.Status,
		"id":         env.Payload.ID,
		"emitted_at": env.EmittedAt.Format(time.RFC3339),
	}

	data, err := avro.Marshal(e.schema, record)
	if err != nil {
		return nil, fmt.Errorf("marshaling avro: %w", err)
	}

	// Confluent wire format: 1 byte magic + 4 bytes schema ID + data
	result := make([]byte, 5+len(data))
	result[0] = 0 // Magic byte
	binary.BigEndian.PutUint32(result[1:5], uint32(id))
	copy(result[5:], data)

	return result, nil
}

// resolveSchemaID registers the schema once and caches the returned ID
// for the life of the encoder.
func (e *AvroEncoder) resolveSchemaID(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.resolved {
		return e.schemaID, nil
	}

	id, err := e.registry.GetSchemaID(ctx, e.subject, e.schema)
	if err != nil {
		return 0, fmt.Errorf("getting schema ID for subject %s: %w", e.subject, err)
	}
	e.schemaID = id
	e.resolved = true
	return id, nil
}
