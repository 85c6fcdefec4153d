// Package servicenow provides the HTTP connector for the ServiceNow Table API.
//
// # Connector Contract
//
// The connector issues exactly one HTTP request per call and hands back the
// raw outcome. There is no retry, backoff, pagination, or body
// interpretation here; the adapter that owns the connector decides what a
// reply means. The connector's responsibilities end at:
//
//   - Authentication: delegates to the [Authenticator] for the header value.
//   - URL construction: {url}/api/now/table/{table}?sysparm_query=...
//   - Optional client-side rate limiting via golang.org/x/time/rate.
//   - Shaping non-2xx replies into errors, preferring the instance's own
//     error envelope when the body parses.
//
// # URL Construction
//
// Query parameters follow the ServiceNow Table API convention:
//
//   - sysparm_query: encoded query string from [QueryBuilder]
//   - sysparm_limit: max records to return
//   - sysparm_exclude_reference_link: true (strip reference URLs)
//   - sysparm_fields: comma-separated field projection
//
// # Thread Safety
//
// The connector is safe for concurrent use. The underlying http.Client
// handles connection pooling, and the Authenticator ensures thread-safe
// header access.
package servicenow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/stanleypendergraft/adapter-change-management/internal/config"
	"github.com/stanleypendergraft/adapter-change-management/internal/observability"
)

// tableAPIPath is the fixed REST path of the Table API.
const tableAPIPath = "/api/now/table"

// Connector performs single-shot requests against one configured table.
// All methods are safe for concurrent use.
type Connector interface {
	// Get issues one GET for the configured table and returns the raw
	// response. Transport failures and non-2xx replies surface as errors.
	Get(ctx context.Context) (*Response, error)

	// Post issues one POST creating a record in the configured table from
	// the configured payload. Transport failures and non-2xx replies
	// surface as errors.
	Post(ctx context.Context) (*Response, error)

	// Close releases resources held by the connector.
	Close()
}

// tableConnector is the concrete implementation of the Connector interface.
type tableConnector struct {
	baseURL string
	table   string
	auth    Authenticator
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger

	// Request shaping
	limit       int
	fields      []string
	activeOnly  bool
	orderBy     string
	postPayload Record
}

// ConnectorOption is a functional option for configuring the connector.
type ConnectorOption func(*tableConnector)

// WithRateLimiter sets a client-side rate limiter.
func WithRateLimiter(rps float64) ConnectorOption {
	return func(c *tableConnector) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), int(math.Max(1, rps)))
		}
	}
}

// defaultPostPayload is used when request.post_payload is not configured.
// Payload sourcing belongs to the connector, not its callers.
var defaultPostPayload = Record{
	"description": "Created by the change-management adapter",
}

// NewConnector creates a connector scoped to the table named by the adapter
// properties. The caller is responsible for calling Close() when the
// connector is no longer needed.
func NewConnector(props config.AdapterProperties, req config.RequestConfig, auth Authenticator, logger *slog.Logger, opts ...ConnectorOption) Connector {
	c := &tableConnector{
		baseURL: strings.TrimRight(props.URL, "/"),
		table:   props.Table,
		auth:    auth,
		logger:  logger.With("component", "sn-connector", "table", props.Table),
		http: &http.Client{
			Timeout: time.Duration(req.TimeoutSecondsValue()) * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limit:       req.Limit,
		fields:      req.Fields,
		activeOnly:  req.ActiveOnly,
		orderBy:     req.OrderBy,
		postPayload: Record(req.PostPayload),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Close releases idle connections and shuts down the authenticator.
func (c *tableConnector) Close() {
	c.http.CloseIdleConnections()
	c.auth.Close()
}

// Get fetches records from the configured table.
//
//	GET {baseURL}/api/now/table/{table}?sysparm_query=...&sysparm_limit=...
//
// A healthy reply carries the JSON body {"result": [{...}, ...]}.
func (c *tableConnector) Get(ctx context.Context) (*Response, error) {
	reqURL, err := c.buildTableURL()
	if err != nil {
		return nil, err
	}

	c.logger.Debug("fetching change requests", "url", reqURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating GET request: %w", err)
	}

	return c.do(req)
}

// Post creates one record in the configured table from the configured
// payload.
//
//	POST {baseURL}/api/now/table/{table}
//
// A healthy reply carries the JSON body {"result": {...}} including the
// sys_id assigned by ServiceNow.
func (c *tableConnector) Post(ctx context.Context) (*Response, error) {
	reqURL := c.baseURL + tableAPIPath + "/" + strings.TrimLeft(c.table, "/")

	payload := c.postPayload
	if len(payload) == 0 {
		payload = defaultPostPayload
	}
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling post payload: %w", err)
	}

	c.logger.Debug("creating change request", "url", reqURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("creating POST request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

// do executes a single request and shapes the reply. One request per call;
// failures are reported to the caller, never retried here.
func (c *tableConnector) do(req *http.Request) (*Response, error) {
	ctx := req.Context()
	method := req.Method

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			observability.Metrics.APIErrorsTotal.WithLabelValues(method, "rate_limited").Inc()
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}
	}

	token, err := c.auth.Token(ctx)
	if err != nil {
		observability.Metrics.APIErrorsTotal.WithLabelValues(method, "auth").Inc()
		return nil, fmt.Errorf("getting auth header: %w", err)
	}
	req.Header.Set("Authorization", token)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	observability.Metrics.APIRequestsTotal.WithLabelValues(method).Inc()
	observability.Metrics.APILatency.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.Metrics.APIErrorsTotal.WithLabelValues(method, "network").Inc()
		return nil, fmt.Errorf("%s %s: %w", method, c.table, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		observability.Metrics.APIErrorsTotal.WithLabelValues(method, "read").Inc()
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		observability.Metrics.APIErrorsTotal.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()
		return nil, apiError(resp.StatusCode, body)
	}

	r := &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}

	// Some instance-side failures arrive with 200 and an error envelope.
	// Surface the message on the response without failing the call.
	var er ErrorResponse
	if json.Unmarshal(body, &er) == nil && er.Error.Message != "" {
		r.Err = er.Error.Message
	}

	return r, nil
}

// buildQuery assembles the encoded query from the request shaping settings.
func (c *tableConnector) buildQuery() string {
	q := NewQueryBuilder()
	if c.activeOnly {
		q.WhereEquals("active", "true")
	}
	if c.orderBy != "" {
		if field, ok := strings.CutPrefix(c.orderBy, "-"); ok {
			q.OrderByDesc(field)
		} else {
			q.OrderByAsc(c.orderBy)
		}
	}
	return q.Build()
}

// buildTableURL constructs the full request URL for a Table API GET query.
// All values are properly URL-encoded using net/url.
func (c *tableConnector) buildTableURL() (string, error) {
	u, err := url.Parse(c.baseURL + tableAPIPath + "/" + strings.TrimLeft(c.table, "/"))
	if err != nil {
		return "", fmt.Errorf("building URL: %w", err)
	}

	params := url.Values{}
	params.Set("sysparm_exclude_reference_link", "true")
	if c.limit > 0 {
		params.Set("sysparm_limit", strconv.Itoa(c.limit))
	}
	if query := c.buildQuery(); query != "" {
		params.Set("sysparm_query", query)
	}
	if len(c.fields) > 0 {
		params.Set("sysparm_fields", strings.Join(c.fields, ","))
	}

	u.RawQuery = params.Encode()
	return u.String(), nil
}

// apiError shapes a non-2xx reply into an error, preferring the instance's
// own error envelope when the body parses.
func apiError(status int, body []byte) error {
	var er ErrorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error.Message != "" {
		if er.Error.Detail != "" {
			return fmt.Errorf("table api status %d: %s: %s", status, er.Error.Message, er.Error.Detail)
		}
		return fmt.Errorf("table api status %d: %s", status, er.Error.Message)
	}
	return fmt.Errorf("table api status %d: %s", status, truncateBody(body))
}

// truncateBody returns the first 500 bytes of a response body for logging.
func truncateBody(body []byte) string {
	if len(body) > 500 {
		return string(body[:500]) + "..."
	}
	return string(body)
}
