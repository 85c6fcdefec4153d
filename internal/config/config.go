// Package config provides YAML-based configuration loading, validation, and
// defaults for the change-management adapter.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for the adapter process.
type Config struct {
	Adapter       AdapterConfig       `yaml:"adapter"`
	Request       RequestConfig       `yaml:"request"`
	Healthcheck   HealthcheckConfig   `yaml:"healthcheck"`
	Relay         RelayConfig         `yaml:"relay"`
	Observability ObservabilityConfig `yaml:"observability"`
	LogLevel      string              `yaml:"log_level"`
}

// AdapterConfig names one adapter instance and carries its connection
// properties.
type AdapterConfig struct {
	ID         string            `yaml:"id"`
	Properties AdapterProperties `yaml:"properties"`
}

// AdapterProperties holds the ServiceNow instance connection settings.
// All four leaf fields are required; the adapter refuses to construct a
// connector without them.
type AdapterProperties struct {
	URL   string     `yaml:"url"`
	Auth  AuthConfig `yaml:"auth"`
	Table string     `yaml:"table"`
}

// AuthConfig holds HTTP Basic Auth credentials.
type AuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// RequestConfig tunes the Table API requests the connector issues.
type RequestConfig struct {
	Limit      int      `yaml:"limit"`
	Fields     []string `yaml:"fields"`
	ActiveOnly bool     `yaml:"active_only"`
	// OrderBy names the sort field; a "-" prefix sorts descending.
	OrderBy string `yaml:"order_by"`
	// TimeoutSeconds bounds each HTTP request. Unset means 30; an explicit
	// 0 disables the timeout.
	TimeoutSeconds *int                   `yaml:"timeout_seconds"`
	RateLimitRPS   float64                `yaml:"rate_limit_rps"`
	PostPayload    map[string]interface{} `yaml:"post_payload"`
}

// TimeoutSecondsValue returns the effective HTTP request timeout in seconds.
func (r RequestConfig) TimeoutSecondsValue() int {
	if r.TimeoutSeconds == nil {
		return 30
	}
	return *r.TimeoutSeconds
}

// HealthcheckConfig controls the periodic healthcheck loop.
type HealthcheckConfig struct {
	Interval Duration `yaml:"interval"`
}

// RelayConfig controls the optional Kafka status relay.
type RelayConfig struct {
	Enabled           bool     `yaml:"enabled"`
	Brokers           []string `yaml:"brokers"`
	Topic             string   `yaml:"topic"`
	Encoding          string   `yaml:"encoding"` // "json" or "avro"
	SchemaRegistryURL string   `yaml:"schema_registry_url"`
}

// ObservabilityConfig controls the metrics/health HTTP server.
type ObservabilityConfig struct {
	Addr string `yaml:"addr"`
}

// Duration is a time.Duration that unmarshals from YAML strings like "500ms" or "30s".
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = dur
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// Load reads a YAML config file, expands environment variables, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand ${VAR} and $VAR references in the YAML.
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyDefaults sets default values for unset fields.
func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	// Request defaults
	req := &cfg.Request
	if req.Limit == 0 {
		req.Limit = 10
	}
	if len(req.Fields) == 0 {
		// Project the record down to the fields the adapter consumes.
		req.Fields = []string{
			"number", "active", "priority", "description",
			"work_start", "work_end", "sys_id",
		}
	}

	// Healthcheck defaults
	if cfg.Healthcheck.Interval.Duration == 0 {
		cfg.Healthcheck.Interval.Duration = 60 * time.Second
	}

	// Relay defaults
	if cfg.Relay.Enabled {
		if cfg.Relay.Topic == "" {
			cfg.Relay.Topic = "adapter.status"
		}
		if cfg.Relay.Encoding == "" {
			cfg.Relay.Encoding = "json"
		}
	}

	// Observability defaults
	if cfg.Observability.Addr == "" {
		cfg.Observability.Addr = ":8080"
	}
}

// validate checks that all required fields are present and valid.
func validate(cfg *Config) error {
	var errs []error

	// Adapter identity and properties
	if cfg.Adapter.ID == "" {
		errs = append(errs, errors.New("adapter.id is required"))
	}
	props := cfg.Adapter.Properties
	if props.URL == "" {
		errs = append(errs, errors.New("adapter.properties.url is required"))
	} else if u, err := url.Parse(props.URL); err != nil || u.Scheme == "" {
		errs = append(errs, fmt.Errorf("adapter.properties.url is not a valid URL: %s", props.URL))
	}
	if props.Auth.Username == "" {
		errs = append(errs, errors.New("adapter.properties.auth.username is required"))
	}
	if props.Auth.Password == "" {
		errs = append(errs, errors.New("adapter.properties.auth.password is required"))
	}
	if props.Table == "" {
		errs = append(errs, errors.New("adapter.properties.table is required"))
	}

	// Request
	if cfg.Request.Limit < 0 {
		errs = append(errs, fmt.Errorf("request.limit must not be negative, got %d", cfg.Request.Limit))
	}
	if ts := cfg.Request.TimeoutSecondsValue(); ts < 0 {
		errs = append(errs, fmt.Errorf("request.timeout_seconds must not be negative, got %d", ts))
	}
	if cfg.Request.RateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("request.rate_limit_rps must not be negative, got %v", cfg.Request.RateLimitRPS))
	}
	if cfg.Request.OrderBy == "-" {
		errs = append(errs, errors.New("request.order_by needs a field name after the '-' prefix"))
	}

	// Relay
	if cfg.Relay.Enabled {
		if len(cfg.Relay.Brokers) == 0 {
			errs = append(errs, errors.New("relay.brokers must contain at least one broker when relay is enabled"))
		}
		switch cfg.Relay.Encoding {
		case "json", "avro":
		default:
			errs = append(errs, fmt.Errorf("relay.encoding must be 'json' or 'avro', got %q", cfg.Relay.Encoding))
		}
		if cfg.Relay.Encoding == "avro" && cfg.Relay.SchemaRegistryURL == "" {
			errs = append(errs, errors.New("relay.schema_registry_url is required when relay.encoding is 'avro'"))
		}
	}

	return errors.Join(errs...)
}
