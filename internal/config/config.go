// Package config assembles the run configuration for lambdaterm from
// defaults, an optional YAML file, and the process environment.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/yairfalse/lambdaterm/types"
)

// Environment variable names
const (
	EnvInstanceID        = "INSTANCE_ID"
	EnvToken             = "LAMBDA_TOKEN"
	EnvWaitForTerminate  = "WAIT_FOR_TERMINATE"
	EnvTerminateTimeout  = "TERMINATE_TIMEOUT"
	EnvPublishInstanceID = "PUBLISH_INSTANCE_ID"
	EnvGitHubOutput      = "GITHUB_OUTPUT"
	EnvAPIURL            = "LAMBDA_API_URL"
	EnvPollInterval      = "POLL_INTERVAL"
	EnvLogLevel          = "LOG_LEVEL"
	EnvPolicy            = "TERMINATE_POLICY"
	EnvOTLPEndpoint      = "OTEL_EXPORTER_OTLP_ENDPOINT"
	EnvOTLPInsecure      = "OTEL_EXPORTER_OTLP_INSECURE"
	EnvPushgateway       = "METRICS_PUSHGATEWAY"
)

// Defaults
const (
	DefaultAPIURL           = "https://cloud.lambdalabs.com/api/v1"
	DefaultTerminateTimeout = 600 * time.Second
	DefaultPollInterval     = 5 * time.Second
	DefaultLogLevel         = "info"
	DefaultServiceName      = "lambdaterm"
	DefaultOTLPPort         = "4317"
)

var validate = validator.New()

// LookupFunc matches os.LookupEnv
type LookupFunc func(key string) (string, bool)

// Config is the complete run configuration. Build it once, validate it,
// and pass it down; nothing mutates it afterwards.
type Config struct {
	// Raw comma-separated ids. Split and checked by the request builder.
	InstanceIDs string
	Token       string

	// WaitForTerminate gates the completion waiter. Defaults to false.
	WaitForTerminate bool
	TerminateTimeout time.Duration `validate:"gte=0"`
	PollInterval     time.Duration `validate:"gt=0"`

	// PublishInstanceID writes instance_id=<id> to OutputPath after a
	// successful terminate.
	PublishInstanceID bool
	OutputPath        string

	APIURL     string `validate:"required,url"`
	LogLevel   string `validate:"oneof=trace debug info warn error"`
	PolicyPath string

	OTEL OTELConfig
}

// OTELConfig holds telemetry export settings
type OTELConfig struct {
	ServiceName    string `validate:"required"`
	Endpoint       string `validate:"omitempty,hostname_port"`
	Insecure       bool
	PushgatewayURL string `validate:"omitempty,url"`
}

// fileConfig is the YAML shape. Secrets are never read from the file.
type fileConfig struct {
	InstanceIDs       string `yaml:"instance_ids"`
	WaitForTerminate  *bool  `yaml:"wait_for_terminate"`
	TerminateTimeout  *int   `yaml:"terminate_timeout"`
	PollInterval      string `yaml:"poll_interval"`
	PublishInstanceID *bool  `yaml:"publish_instance_id"`
	OutputPath        string `yaml:"output_path"`
	APIURL            string `yaml:"api_url"`
	LogLevel          string `yaml:"log_level"`
	PolicyPath        string `yaml:"policy"`
	OTEL              struct {
		ServiceName    string `yaml:"service_name"`
		Endpoint       string `yaml:"endpoint"`
		Insecure       *bool  `yaml:"insecure"`
		PushgatewayURL string `yaml:"pushgateway"`
	} `yaml:"otel"`
}

// Default returns the configuration used when nothing is set
func Default() Config {
	return Config{
		TerminateTimeout:  DefaultTerminateTimeout,
		PollInterval:      DefaultPollInterval,
		PublishInstanceID: true,
		APIURL:            DefaultAPIURL,
		LogLevel:          DefaultLogLevel,
		OTEL: OTELConfig{
			ServiceName: DefaultServiceName,
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (if non-empty),
// and the environment seen through lookup, in that order of precedence.
func Load(path string, lookup LookupFunc) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.ApplyFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ApplyFile overlays settings from a YAML file
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	setString(&c.InstanceIDs, fc.InstanceIDs)
	setString(&c.OutputPath, fc.OutputPath)
	setString(&c.APIURL, fc.APIURL)
	setString(&c.LogLevel, fc.LogLevel)
	setString(&c.PolicyPath, fc.PolicyPath)
	setString(&c.OTEL.ServiceName, fc.OTEL.ServiceName)
	setString(&c.OTEL.PushgatewayURL, fc.OTEL.PushgatewayURL)

	if fc.WaitForTerminate != nil {
		c.WaitForTerminate = *fc.WaitForTerminate
	}
	if fc.PublishInstanceID != nil {
		c.PublishInstanceID = *fc.PublishInstanceID
	}
	if err := c.setOTLPEndpoint("otel.endpoint", fc.OTEL.Endpoint); err != nil {
		return err
	}
	if fc.OTEL.Insecure != nil {
		c.OTEL.Insecure = *fc.OTEL.Insecure
	}
	if fc.TerminateTimeout != nil {
		if *fc.TerminateTimeout < 0 {
			return &types.ConfigError{Field: "terminate_timeout", Reason: "must not be negative"}
		}
		c.TerminateTimeout = time.Duration(*fc.TerminateTimeout) * time.Second
	}
	if fc.PollInterval != "" {
		d, err := time.ParseDuration(fc.PollInterval)
		if err != nil {
			return &types.ConfigError{Field: "poll_interval", Reason: err.Error()}
		}
		c.PollInterval = d
	}

	return nil
}

// ApplyEnv overlays settings from the environment
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	if v, ok := lookup(EnvInstanceID); ok {
		c.InstanceIDs = v
	}
	if v, ok := lookup(EnvToken); ok {
		c.Token = v
	}
	if v, ok := lookup(EnvGitHubOutput); ok {
		c.OutputPath = v
	}
	setFromEnv(lookup, EnvAPIURL, &c.APIURL)
	setFromEnv(lookup, EnvLogLevel, &c.LogLevel)
	setFromEnv(lookup, EnvPolicy, &c.PolicyPath)
	setFromEnv(lookup, EnvPushgateway, &c.OTEL.PushgatewayURL)

	if v, ok := lookup(EnvOTLPEndpoint); ok {
		if err := c.setOTLPEndpoint(EnvOTLPEndpoint, v); err != nil {
			return err
		}
	}

	var err error
	if c.WaitForTerminate, err = boolFromEnv(lookup, EnvWaitForTerminate, c.WaitForTerminate); err != nil {
		return err
	}
	if c.PublishInstanceID, err = boolFromEnv(lookup, EnvPublishInstanceID, c.PublishInstanceID); err != nil {
		return err
	}
	if c.OTEL.Insecure, err = boolFromEnv(lookup, EnvOTLPInsecure, c.OTEL.Insecure); err != nil {
		return err
	}

	if v, ok := lookup(EnvTerminateTimeout); ok && v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return &types.ConfigError{Field: EnvTerminateTimeout, Reason: fmt.Sprintf("%q is not an integer number of seconds", v)}
		}
		if secs < 0 {
			return &types.ConfigError{Field: EnvTerminateTimeout, Reason: "must not be negative"}
		}
		c.TerminateTimeout = time.Duration(secs) * time.Second
	}

	if v, ok := lookup(EnvPollInterval); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return &types.ConfigError{Field: EnvPollInterval, Reason: err.Error()}
		}
		c.PollInterval = d
	}

	return nil
}

// Validate checks field constraints. Presence of instance ids and the
// token is checked by the request builder, not here, so that read-only
// commands can run without them.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		first := verrs[0]
		return &types.ConfigError{
			Field:  first.Namespace(),
			Reason: fmt.Sprintf("failed %q check (value %v)", first.Tag(), first.Value()),
		}
	}
	return fmt.Errorf("validate config: %w", err)
}

// setOTLPEndpoint accepts host:port or the URL form used by the standard
// OTLP variables. The gRPC exporters take host:port, so the scheme is
// dropped; http implies an insecure connection.
func (c *Config) setOTLPEndpoint(field, raw string) error {
	if raw == "" {
		return nil
	}
	if !strings.Contains(raw, "://") {
		c.OTEL.Endpoint = raw
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return &types.ConfigError{Field: field, Reason: fmt.Sprintf("%q is not a valid endpoint", raw)}
	}

	port := u.Port()
	if port == "" {
		port = DefaultOTLPPort
	}

	switch u.Scheme {
	case "http":
		c.OTEL.Insecure = true
	case "https":
	default:
		return &types.ConfigError{Field: field, Reason: fmt.Sprintf("unsupported scheme %q", u.Scheme)}
	}
	c.OTEL.Endpoint = net.JoinHostPort(u.Hostname(), port)
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setFromEnv(lookup LookupFunc, key string, dst *string) {
	if v, ok := lookup(key); ok && v != "" {
		*dst = v
	}
}

func boolFromEnv(lookup LookupFunc, key string, current bool) (bool, error) {
	v, ok := lookup(key)
	if !ok || v == "" {
		return current, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return current, &types.ConfigError{Field: key, Reason: fmt.Sprintf("%q is not a boolean", v)}
	}
	return b, nil
}
