package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
adapter:
  id: change-management-dev
  properties:
    url: https://dev.service-now.com
    auth:
      username: admin
      password: admin123
    table: change_request
`

const relayYAML = `
adapter:
  id: change-management-dev
  properties:
    url: https://example.service-now.com
    auth:
      username: user
      password: pass
    table: change_request
relay:
  enabled: true
  brokers: [localhost:9092]
`

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeTemp(t, validYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Adapter.ID != "change-management-dev" {
		t.Errorf("Adapter.ID = %q", cfg.Adapter.ID)
	}
	if cfg.Adapter.Properties.URL != "https://dev.service-now.com" {
		t.Errorf("Properties.URL = %q", cfg.Adapter.Properties.URL)
	}
	if cfg.Adapter.Properties.Auth.Username != "admin" {
		t.Errorf("Auth.Username = %q", cfg.Adapter.Properties.Auth.Username)
	}
	if cfg.Adapter.Properties.Table != "change_request" {
		t.Errorf("Properties.Table = %q", cfg.Adapter.Properties.Table)
	}
}

func TestDefaults(t *testing.T) {
	path := writeTemp(t, validYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Request.Limit != 10 {
		t.Errorf("Request.Limit default = %d, want 10", cfg.Request.Limit)
	}
	wantFields := []string{"number", "active", "priority", "description", "work_start", "work_end", "sys_id"}
	if len(cfg.Request.Fields) != len(wantFields) {
		t.Fatalf("Request.Fields default = %v", cfg.Request.Fields)
	}
	for i, f := range wantFields {
		if cfg.Request.Fields[i] != f {
			t.Errorf("Request.Fields[%d] = %q, want %q", i, cfg.Request.Fields[i], f)
		}
	}
	if cfg.Request.TimeoutSecondsValue() != 30 {
		t.Errorf("TimeoutSecondsValue default = %d, want 30", cfg.Request.TimeoutSecondsValue())
	}
	if cfg.Healthcheck.Interval.Duration != 60*time.Second {
		t.Errorf("Healthcheck.Interval default = %v, want 1m", cfg.Healthcheck.Interval)
	}
	if cfg.Relay.Enabled {
		t.Error("Relay should be disabled by default")
	}
	if cfg.Observability.Addr != ":8080" {
		t.Errorf("Observability.Addr default = %q, want :8080", cfg.Observability.Addr)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel default = %q, want info", cfg.LogLevel)
	}
}

func TestRelayDefaults(t *testing.T) {
	path := writeTemp(t, relayYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Relay.Topic != "adapter.status" {
		t.Errorf("Relay.Topic default = %q, want adapter.status", cfg.Relay.Topic)
	}
	if cfg.Relay.Encoding != "json" {
		t.Errorf("Relay.Encoding default = %q, want json", cfg.Relay.Encoding)
	}
}

func TestMissingAdapterProperties(t *testing.T) {
	yaml := `
adapter:
  id: ""
  properties:
    url: ""
    auth:
      username: ""
      password: ""
    table: ""
`
	path := writeTemp(t, yaml)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for missing adapter properties")
	}
	errStr := err.Error()
	for _, field := range []string{
		"adapter.id",
		"adapter.properties.url",
		"adapter.properties.auth.username",
		"adapter.properties.auth.password",
		"adapter.properties.table",
	} {
		if !strings.Contains(errStr, field) {
			t.Errorf("error should mention %s: %v", field, err)
		}
	}
}

func TestInvalidURL(t *testing.T) {
	yaml := `
adapter:
  id: dev
  properties:
    url: "not-a-url"
    auth:
      username: user
      password: pass
    table: change_request
`
	path := writeTemp(t, yaml)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid URL")
	}
	if !strings.Contains(err.Error(), "valid URL") {
		t.Errorf("error should mention valid URL: %v", err)
	}
}

func TestExplicitZeroTimeout(t *testing.T) {
	yaml := validYAML + `
request:
  timeout_seconds: 0
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Request.TimeoutSeconds == nil {
		t.Fatal("TimeoutSeconds should be set by explicit 0")
	}
	if cfg.Request.TimeoutSecondsValue() != 0 {
		t.Errorf("TimeoutSecondsValue = %d, want 0 (disabled)", cfg.Request.TimeoutSecondsValue())
	}
}

func TestNegativeTimeout(t *testing.T) {
	yaml := validYAML + `
request:
  timeout_seconds: -5
`
	path := writeTemp(t, yaml)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for negative timeout")
	}
	if !strings.Contains(err.Error(), "timeout_seconds") {
		t.Errorf("error should mention timeout_seconds: %v", err)
	}
}

func TestBareDashOrderBy(t *testing.T) {
	yaml := validYAML + `
request:
  order_by: "-"
`
	path := writeTemp(t, yaml)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for bare '-' order_by")
	}
	if !strings.Contains(err.Error(), "order_by") {
		t.Errorf("error should mention order_by: %v", err)
	}
}

func TestRelayRequiresBrokers(t *testing.T) {
	yaml := validYAML + `
relay:
  enabled: true
`
	path := writeTemp(t, yaml)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for relay without brokers")
	}
	if !strings.Contains(err.Error(), "relay.brokers") {
		t.Errorf("error should mention relay.brokers: %v", err)
	}
}

func TestRelayInvalidEncoding(t *testing.T) {
	yaml := validYAML + `
relay:
  enabled: true
  brokers: [localhost:9092]
  encoding: xml
`
	path := writeTemp(t, yaml)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid relay encoding")
	}
	if !strings.Contains(err.Error(), "relay.encoding") {
		t.Errorf("error should mention relay.encoding: %v", err)
	}
}

func TestAvroRequiresRegistry(t *testing.T) {
	yaml := validYAML + `
relay:
  enabled: true
  brokers: [localhost:9092]
  encoding: avro
`
	path := writeTemp(t, yaml)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for avro encoding without registry")
	}
	if !strings.Contains(err.Error(), "schema_registry_url") {
		t.Errorf("error should mention schema_registry_url: %v", err)
	}
}

func TestEnvVarExpansion(t *testing.T) {
	t.Setenv("SN_URL", "https://from-env.service-now.com")
	t.Setenv("SN_USER", "env-user")
	t.Setenv("SN_PASS", "env-pass")

	yaml := `
adapter:
  id: dev
  properties:
    url: ${SN_URL}
    auth:
      username: ${SN_USER}
      password: ${SN_PASS}
    table: change_request
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Adapter.Properties.URL != "https://from-env.service-now.com" {
		t.Errorf("URL = %q, want env value", cfg.Adapter.Properties.URL)
	}
	if cfg.Adapter.Properties.Auth.Password != "env-pass" {
		t.Errorf("Password = %q, want env value", cfg.Adapter.Properties.Auth.Password)
	}
}

func TestCustomDuration(t *testing.T) {
	yaml := validYAML + `
healthcheck:
  interval: "90s"
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Healthcheck.Interval.Duration != 90*time.Second {
		t.Errorf("Healthcheck.Interval = %v, want 90s", cfg.Healthcheck.Interval)
	}
}

func TestInvalidDuration(t *testing.T) {
	yaml := validYAML + `
healthcheck:
  interval: "soon"
`
	path := writeTemp(t, yaml)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unparseable duration")
	}
	if !strings.Contains(err.Error(), "invalid duration") {
		t.Errorf("error should mention invalid duration: %v", err)
	}
}

func TestFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("expected error for nonexistent file")
	}
}
