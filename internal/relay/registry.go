package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hamba/avro/v2"

	"github.com/stanleypendergraft/adapter-change-management/internal/observability"
)

// HTTPRegistryClient implements SchemaRegistryClient against the Confluent
// Schema Registry HTTP API. Every call lands in the
// adapter_registry_requests_total metric by outcome.
type HTTPRegistryClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPRegistryClient(baseURL string) *HTTPRegistryClient {
	return &HTTPRegistryClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// GetSchemaID registers the schema under the subject via
// POST /subjects/{subject}/versions. The registry answers with the existing
// ID when it already knows the schema, so the call doubles as a lookup.
func (c *HTTPRegistryClient) GetSchemaID(ctx context.Context, subject string, schema avro.Schema) (int, error) {
	id, err := c.register(ctx, subject, schema)
	if err != nil {
		observability.Metrics.RegistryRequestsTotal.WithLabelValues("error").Inc()
		return 0, err
	}
	observability.Metrics.RegistryRequestsTotal.WithLabelValues("ok").Inc()
	return id, nil
}

func (c *HTTPRegistryClient) register(ctx context.Context, subject string, schema avro.Schema) (int, error) {
	body, err := json.Marshal(struct {
		Schema string `json:"schema"`
	}{Schema: schema.String()})
	if err != nil {
		return 0, fmt.Errorf("encoding schema: %w", err)
	}

	url := fmt.Sprintf("%s/subjects/%s/versions", c.baseURL, subject)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("creating registry request: %w", err)
	}
	req.Header.Set("Content-Type", "application/vnd.schemaregistry.v1+json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("schema registry request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, registryStatusError(resp)
	}

	var reply struct {
		ID int `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return 0, fmt.Errorf("decoding registry reply: %w", err)
	}
	return reply.ID, nil
}

// registryStatusError shapes a non-200 registry reply into an error,
// preferring the registry's own error envelope when the body parses.
func registryStatusError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var re struct {
		ErrorCode int    `json:"error_code"`
		Message   string `json:"message"`
	}
	if err := json.Unmarshal(body, &re); err == nil && re.Message != "" {
		return fmt.Errorf("schema registry status %d: %s", resp.StatusCode, re.Message)
	}
	return fmt.Errorf("schema registry status %d: %s", resp.StatusCode, body)
}
