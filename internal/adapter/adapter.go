// Package adapter connects one ServiceNow change request table to the
// rest of the system. It owns a single table connector, rewrites raw
// Table API replies into the change ticket shape downstream systems
// expect, and announces instance connectivity as status events.
//
// # Lifecycle
//
// Connect runs the first healthcheck; periodic healthchecks keep the
// announced state current. Every healthcheck emits a status event, so
// consumers see repeated ONLINE emissions while the instance stays
// reachable, not just transitions.
//
// # Record Translation
//
// The instance names records by number and sys_id. Downstream systems
// speak change_ticket_number and change_ticket_key, so GetRecord and
// PostRecord rewrite each reply body into that shape and deliver it as
// an escaped JSON string.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stanleypendergraft/adapter-change-management/internal/config"
	"github.com/stanleypendergraft/adapter-change-management/internal/events"
	"github.com/stanleypendergraft/adapter-change-management/internal/observability"
	"github.com/stanleypendergraft/adapter-change-management/internal/servicenow"
)

// Adapter brokers access to one change request table and reports the
// instance's connectivity.
type Adapter struct {
	id     string
	conn   servicenow.Connector
	bus    *events.Bus
	logger *slog.Logger
}

// Option customizes adapter construction.
type Option func(*Adapter)

// WithConnector substitutes the table connector. Used in tests.
func WithConnector(conn servicenow.Connector) Option {
	return func(a *Adapter) { a.conn = conn }
}

// New builds an adapter for one table. Construction fails with a
// *ConfigurationError before any request is made when a required
// property is missing.
func New(id string, props config.AdapterProperties, req config.RequestConfig, bus *events.Bus, logger *slog.Logger, opts ...Option) (*Adapter, error) {
	switch {
	case id == "":
		return nil, &ConfigurationError{Field: "id"}
	case props.URL == "":
		return nil, &ConfigurationError{Field: "url"}
	case props.Auth.Username == "":
		return nil, &ConfigurationError{Field: "auth.username"}
	case props.Auth.Password == "":
		return nil, &ConfigurationError{Field: "auth.password"}
	case props.Table == "":
		return nil, &ConfigurationError{Field: "table"}
	}

	a := &Adapter{
		id:     id,
		bus:    bus,
		logger: logger.With("component", "adapter", "adapter_id", id),
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.conn == nil {
		auth := servicenow.NewBasicAuthenticator(props.Auth.Username, props.Auth.Password)
		var connOpts []servicenow.ConnectorOption
		if req.RateLimitRPS > 0 {
			connOpts = append(connOpts, servicenow.WithRateLimiter(req.RateLimitRPS))
		}
		a.conn = servicenow.NewConnector(props, req, auth, logger, connOpts...)
	}

	return a, nil
}

// ID returns the adapter's configured identity. Status event payloads
// carry this value.
func (a *Adapter) ID() string { return a.id }

// Close releases the connector's resources.
func (a *Adapter) Close() { a.conn.Close() }

// Connect runs the adapter's first healthcheck. All outcomes surface
// through emitted status events and logs.
func (a *Adapter) Connect(ctx context.Context) {
	_, _ = a.Healthcheck(ctx)
}

// Healthcheck fetches change requests to probe instance connectivity
// and emits the resulting status event. It emits on every call, even
// when the status has not changed since the last one.
func (a *Adapter) Healthcheck(ctx context.Context) (*servicenow.Response, error) {
	resp, err := a.GetRecord(ctx)
	switch {
	case errors.Is(err, ErrInstanceHibernating):
		observability.Metrics.HealthchecksTotal.WithLabelValues("hibernating").Inc()
		a.logger.Error("healthcheck found the instance hibernating")
		a.emitOffline()
		return nil, err
	case err != nil:
		observability.Metrics.HealthchecksTotal.WithLabelValues("error").Inc()
		a.logger.Error("healthcheck failed", "error", err)
		a.emitOffline()
		return nil, err
	default:
		observability.Metrics.HealthchecksTotal.WithLabelValues("ok").Inc()
		a.logger.Debug("healthcheck succeeded")
		a.emitOnline()
		return resp, nil
	}
}

// GetRecord fetches change requests from the table and rewrites the
// reply body into the escaped change request list shape.
//
// A hibernating instance surfaces as ErrInstanceHibernating and an
// absent reply or one without a body as ErrMissingBody; when a reply
// exists it is returned alongside the error so callers can inspect it.
func (a *Adapter) GetRecord(ctx context.Context) (*servicenow.Response, error) {
	resp, err := a.conn.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("change request fetch: %w", err)
	}
	if resp == nil {
		a.logger.Warn("table reply was absent")
		return nil, ErrMissingBody
	}
	if resp.Hibernating() {
		return resp, ErrInstanceHibernating
	}
	if !resp.HasBody() {
		a.logger.Warn("table reply carried no body", "status", resp.StatusCode)
		return resp, ErrMissingBody
	}

	// Translation clears the instance's error message, so capture it
	// for the completion log first.
	connErr := resp.Err
	count, err := translateList(resp)
	if err != nil {
		a.logger.Error("table reply did not translate", "status", resp.StatusCode, "instance_error", connErr, "error", err)
		return resp, err
	}

	a.logger.Info("change request fetch complete", "records", count, "instance_error", connErr)
	return resp, nil
}

// PostRecord creates a change request with the connector's configured
// payload and rewrites the reply body into one escaped change request.
// Error behavior matches GetRecord.
func (a *Adapter) PostRecord(ctx context.Context) (*servicenow.Response, error) {
	resp, err := a.conn.Post(ctx)
	if err != nil {
		return nil, fmt.Errorf("change request create: %w", err)
	}
	if resp == nil {
		a.logger.Warn("create reply was absent")
		return nil, ErrMissingBody
	}
	if resp.Hibernating() {
		return resp, ErrInstanceHibernating
	}
	if !resp.HasBody() {
		a.logger.Warn("create reply carried no body", "status", resp.StatusCode)
		return resp, ErrMissingBody
	}

	connErr := resp.Err
	record, err := translateSingle(resp)
	if err != nil {
		a.logger.Error("create reply did not translate", "status", resp.StatusCode, "instance_error", connErr, "error", err)
		return resp, err
	}

	a.logger.Info("change request created",
		"change_ticket_number", record.ChangeTicketNumber,
		"change_ticket_key", record.ChangeTicketKey,
		"instance_error", connErr)
	return resp, nil
}

func (a *Adapter) emitOnline() {
	observability.Metrics.AdapterOnline.Set(1)
	a.logger.Info("adapter online")
	a.emitStatus(events.StatusOnline)
}

func (a *Adapter) emitOffline() {
	observability.Metrics.AdapterOnline.Set(0)
	a.logger.Warn("adapter offline")
	a.emitStatus(events.StatusOffline)
}

func (a *Adapter) emitStatus(status events.Status) {
	observability.Metrics.StatusEventsTotal.WithLabelValues(string(status)).Inc()
	if a.bus == nil {
		return
	}
	a.bus.Publish(status, events.StatusEvent{ID: a.id})
}
