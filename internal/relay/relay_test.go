package relay

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/hamba/avro/v2"

	"github.com/stanleypendergraft/adapter-change-management/internal/events"
)

func testRelayLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestJSONEncoder(t *testing.T) {
	env := Envelope{
		EventID:   "evt-1",
		Status:    "ONLINE",
		Payload:   events.StatusEvent{ID: "change-management"},
		EmittedAt: time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC),
	}

	data, err := JSONEncoder{}.Encode(context.Background(), env)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("output did not parse: %v", err)
	}
	if decoded["event_id"] != "evt-1" {
		t.Errorf("event_id = %v", decoded["event_id"])
	}
	if decoded["status"] != "ONLINE" {
		t.Errorf("status = %v", decoded["status"])
	}
	payload, ok := decoded["payload"].(map[string]interface{})
	if !ok {
		t.Fatalf("payload = %v", decoded["payload"])
	}
	if payload["id"] != "change-management" {
		t.Errorf("payload id = %v", payload["id"])
	}
}

func TestNewStatusSchema(t *testing.T) {
	schema, err := newStatusSchema()
	if err != nil {
		t.Fatalf("newStatusSchema failed: %v", err)
	}

	s := schema.String()
	for _, field := range []string{"event_id", "status", "id", "emitted_at"} {
		if !strings.Contains(s, field) {
			t.Errorf("schema missing field %s: %s", field, s)
		}
	}
	if !strings.Contains(s, "adapter_status") {
		t.Errorf("schema missing record name: %s", s)
	}
}

type fakeRegistry struct {
	id    int
	calls int
}

func (f *fakeRegistry) GetSchemaID(_ context.Context, _ string, _ avro.Schema) (int, error) {
	f.calls++
	return f.id, nil
}

func TestAvroEncoder_WireFormat(t *testing.T) {
	reg := &fakeRegistry{id: 42}
	enc, err := NewAvroEncoder(reg, "adapter.status")
	if err != nil {
		t.Fatalf("NewAvroEncoder failed: %v", err)
	}

	env := Envelope{
		EventID:   "evt-1",
		Status:    "OFFLINE",
		Payload:   events.StatusEvent{ID: "change-management"},
		EmittedAt: time.Now().UTC(),
	}

	data, err := enc.Encode(context.Background(), env)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if data[0] != 0 {
		t.Errorf("magic byte = %d, want 0", data[0])
	}
	if id := binary.BigEndian.Uint32(data[1:5]); id != 42 {
		t.Errorf("schema ID = %d, want 42", id)
	}
	if len(data) <= 5 {
		t.Error("no avro payload after the header")
	}

	// A second encode reuses the cached schema ID.
	if _, err := enc.Encode(context.Background(), env); err != nil {
		t.Fatalf("second Encode failed: %v", err)
	}
	if reg.calls != 1 {
		t.Errorf("registry called %d times, want 1", reg.calls)
	}
}

func TestAvroEncoder_SubjectFromTopic(t *testing.T) {
	enc, err := NewAvroEncoder(&fakeRegistry{id: 1}, "adapter.status")
	if err != nil {
		t.Fatalf("NewAvroEncoder failed: %v", err)
	}
	if enc.subject != "adapter.status-value" {
		t.Errorf("subject = %q", enc.subject)
	}
}

func TestSubscriber_DropsWhenQueueFull(t *testing.T) {
	r := &Relay{
		topic:  "adapter.status",
		logger: testRelayLogger(),
		queue:  make(chan queuedEvent, 2),
	}

	h := r.Subscriber()
	for i := 0; i < 5; i++ {
		h(events.StatusOnline, events.StatusEvent{ID: "change-management"})
	}

	if len(r.queue) != 2 {
		t.Errorf("queue length = %d, want 2", len(r.queue))
	}
}

func TestRun_StopsWhenCancelled(t *testing.T) {
	r := &Relay{
		topic:  "adapter.status",
		logger: testRelayLogger(),
		queue:  make(chan queuedEvent, 1),
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := r.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}
}

func TestHTTPRegistryClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/subjects/adapter.status-value/versions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/vnd.schemaregistry.v1+json" {
			t.Errorf("Content-Type = %q", ct)
		}
		var req struct {
			Schema string `json:"schema"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Schema == "" {
			t.Errorf("request body missing schema: %v", err)
		}
		w.Header().Set("Content-Type", "application/vnd.schemaregistry.v1+json")
		fmt.Fprint(w, `{"id":7}`)
	}))
	defer srv.Close()

	schema, err := newStatusSchema()
	if err != nil {
		t.Fatalf("newStatusSchema failed: %v", err)
	}

	client := NewHTTPRegistryClient(srv.URL)
	id, err := client.GetSchemaID(context.Background(), "adapter.status-value", schema)
	if err != nil {
		t.Fatalf("GetSchemaID failed: %v", err)
	}
	if id != 7 {
		t.Errorf("id = %d, want 7", id)
	}
}

func TestHTTPRegistryClient_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"error_code":42201,"message":"Invalid schema"}`)
	}))
	defer srv.Close()

	schema, err := newStatusSchema()
	if err != nil {
		t.Fatalf("newStatusSchema failed: %v", err)
	}

	client := NewHTTPRegistryClient(srv.URL)
	_, err = client.GetSchemaID(context.Background(), "s", schema)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "schema registry status 422") {
		t.Errorf("error should carry the status: %v", err)
	}
	if !strings.Contains(err.Error(), "Invalid schema") {
		t.Errorf("error should carry the envelope message: %v", err)
	}
}

func TestHTTPRegistryClient_ErrorUnparseableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "backend exploded")
	}))
	defer srv.Close()

	schema, err := newStatusSchema()
	if err != nil {
		t.Fatalf("newStatusSchema failed: %v", err)
	}

	client := NewHTTPRegistryClient(srv.URL)
	_, err = client.GetSchemaID(context.Background(), "s", schema)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "backend exploded") {
		t.Errorf("error should fall back to the raw body: %v", err)
	}
}
