// Package config handles configuration loading for ports, database strings, engine and collaborator endpoints.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration values for the application.
type Config struct {
	// Database connection string
	DatabaseURL string

	// HTTP server port for the controller
	HTTPPort int

	// Minimum log level: debug, info, warn, error
	LogLevel string

	// API rate limit per client IP (requests/second). 0 disables limiting.
	APIRateLimit float64
	APIRateBurst int
	// Key the rate limit on X-Forwarded-For. Only safe behind a proxy that sets it.
	APITrustForwardedFor bool

	// Allowed CORS origins for the controller API
	CORSAllowedOrigins []string

	// Workflow engine (Temporal) connection
	TemporalHostPort  string
	TemporalNamespace string
	TaskQueue         string

	// Fixed workflow template id the controller asks the engine to run
	WorkflowTemplate string

	// How a cancellation reaches the engine: "cancel" or "terminate"
	CancelMode string

	// Bounded retries for engine control calls
	EngineRetryAttempts int

	// Job identity and validation policy
	JobIDPrefix        string
	JobIDSuffix        bool
	DefaultWaitMinutes int
	MaxWaitMinutes     int
	DefaultMaxResults  int
	MaxResultsCap      int
	StartTimeTolerance time.Duration

	// Search-trigger collaborator
	SearchURL         string
	SearchTimeout     time.Duration
	SearchRateLimit   float64
	SearchQuerySuffix string

	// Aggregation-trigger collaborator
	AggregationURL     string
	AggregationTimeout time.Duration
	AggregationMode    string

	// Per-item workflow policy
	SearchConcurrency      int
	ActivityTimeout        time.Duration
	ActivityMaxAttempts    int
	FailOnSearchError      bool
	WorkerConcurrency      int
	WorkerMetricsPort      int
	WorkerShutdownDeadline time.Duration

	// OpenTelemetry collector endpoint
	OTELEndpoint string

	// URL of the controller (e.g., "http://localhost:6161"), used by the CLI
	ControllerURL string
}

// Aggregation modes.
const (
	AggregationPerKey = "per_key"
	AggregationGlobal = "global"
)

// Cancel modes.
const (
	CancelModeCancel    = "cancel"
	CancelModeTerminate = "terminate"
)

// Load reads configuration from an optional config file, an optional .env file
// and environment variables. Environment variables win over the config file.
// An empty configPath searches for reviewplane.yaml in the current directory.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("reviewplane")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	cfg := &Config{
		DatabaseURL:            v.GetString("database_url"),
		HTTPPort:               v.GetInt("http_port"),
		LogLevel:               v.GetString("log_level"),
		APIRateLimit:           v.GetFloat64("api.rate_limit"),
		APIRateBurst:           v.GetInt("api.rate_burst"),
		APITrustForwardedFor:   v.GetBool("api.trust_forwarded_for"),
		CORSAllowedOrigins:     v.GetStringSlice("api.cors_allowed_origins"),
		TemporalHostPort:       v.GetString("temporal.host_port"),
		TemporalNamespace:      v.GetString("temporal.namespace"),
		TaskQueue:              v.GetString("temporal.task_queue"),
		WorkflowTemplate:       v.GetString("engine.workflow_template"),
		CancelMode:             v.GetString("engine.cancel_mode"),
		EngineRetryAttempts:    v.GetInt("engine.retry_attempts"),
		JobIDPrefix:            v.GetString("jobs.id_prefix"),
		JobIDSuffix:            v.GetBool("jobs.id_suffix"),
		DefaultWaitMinutes:     v.GetInt("jobs.default_wait_minutes"),
		MaxWaitMinutes:         v.GetInt("jobs.max_wait_minutes"),
		DefaultMaxResults:      v.GetInt("jobs.default_max_results"),
		MaxResultsCap:          v.GetInt("jobs.max_results_cap"),
		StartTimeTolerance:     v.GetDuration("jobs.start_time_tolerance"),
		SearchURL:              v.GetString("search.url"),
		SearchTimeout:          v.GetDuration("search.timeout"),
		SearchRateLimit:        v.GetFloat64("search.rate_limit"),
		SearchQuerySuffix:      v.GetString("search.query_suffix"),
		AggregationURL:         v.GetString("aggregation.url"),
		AggregationTimeout:     v.GetDuration("aggregation.timeout"),
		AggregationMode:        v.GetString("aggregation.mode"),
		SearchConcurrency:      v.GetInt("workflow.search_concurrency"),
		ActivityTimeout:        v.GetDuration("workflow.activity_timeout"),
		ActivityMaxAttempts:    v.GetInt("workflow.max_attempts"),
		FailOnSearchError:      v.GetBool("workflow.fail_on_search_error"),
		WorkerConcurrency:      v.GetInt("worker.concurrency"),
		WorkerMetricsPort:      v.GetInt("worker.metrics_port"),
		WorkerShutdownDeadline: v.GetDuration("worker.shutdown_deadline"),
		OTELEndpoint:           v.GetString("otel_endpoint"),
		ControllerURL:          v.GetString("controller_url"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_port", 6161)
	v.SetDefault("log_level", "info")
	v.SetDefault("api.rate_limit", 0)
	v.SetDefault("api.rate_burst", 10)
	v.SetDefault("api.trust_forwarded_for", false)
	v.SetDefault("api.cors_allowed_origins", []string{"*"})
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "shoe-review")
	v.SetDefault("engine.workflow_template", "shoe_review_automation")
	v.SetDefault("engine.cancel_mode", CancelModeCancel)
	v.SetDefault("engine.retry_attempts", 3)
	v.SetDefault("jobs.id_prefix", "shoe_review")
	v.SetDefault("jobs.id_suffix", true)
	v.SetDefault("jobs.default_wait_minutes", 10)
	v.SetDefault("jobs.max_wait_minutes", 1440)
	v.SetDefault("jobs.default_max_results", 5)
	v.SetDefault("jobs.max_results_cap", 50)
	v.SetDefault("jobs.start_time_tolerance", 5*time.Minute)
	v.SetDefault("search.url", "http://localhost:8081/search")
	v.SetDefault("search.timeout", 30*time.Second)
	v.SetDefault("search.rate_limit", 0.5)
	v.SetDefault("search.query_suffix", " review")
	v.SetDefault("aggregation.url", "http://localhost:8082")
	v.SetDefault("aggregation.timeout", 60*time.Second)
	v.SetDefault("aggregation.mode", AggregationPerKey)
	v.SetDefault("workflow.search_concurrency", 2)
	v.SetDefault("workflow.activity_timeout", 2*time.Minute)
	v.SetDefault("workflow.max_attempts", 3)
	v.SetDefault("workflow.fail_on_search_error", false)
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.metrics_port", 6162)
	v.SetDefault("worker.shutdown_deadline", 30*time.Second)
	v.SetDefault("otel_endpoint", "localhost:4317")
	v.SetDefault("controller_url", "http://localhost:6161")
}

// bindEnv maps the conventional environment variable names that do not follow the key replacer.
func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("database_url", "DATABASE_URL")
	_ = v.BindEnv("http_port", "PORT")
	_ = v.BindEnv("temporal.host_port", "TEMPORAL_HOST_PORT")
	_ = v.BindEnv("temporal.namespace", "TEMPORAL_NAMESPACE")
	_ = v.BindEnv("temporal.task_queue", "TEMPORAL_TASK_QUEUE")
	_ = v.BindEnv("search.url", "SEARCH_API_URL")
	_ = v.BindEnv("aggregation.url", "AGGREGATION_API_URL")
	_ = v.BindEnv("worker.concurrency", "WORKER_CONCURRENCY")
	_ = v.BindEnv("otel_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
	_ = v.BindEnv("controller_url", "CONTROLLER_URL")
}

// RequireDatabase reports an error when no job record store is configured.
// Only the controller keeps job records; the worker and CLI run without one.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url is required (env: DATABASE_URL)")
	}
	return nil
}

func (c *Config) validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port: %d", c.HTTPPort)
	}
	switch c.AggregationMode {
	case AggregationPerKey, AggregationGlobal:
	default:
		return fmt.Errorf("invalid aggregation.mode %q: must be %q or %q", c.AggregationMode, AggregationPerKey, AggregationGlobal)
	}
	switch c.CancelMode {
	case CancelModeCancel, CancelModeTerminate:
	default:
		return fmt.Errorf("invalid engine.cancel_mode %q: must be %q or %q", c.CancelMode, CancelModeCancel, CancelModeTerminate)
	}
	if c.MaxResultsCap < 1 {
		return fmt.Errorf("jobs.max_results_cap must be at least 1")
	}
	if c.DefaultMaxResults < 1 || c.DefaultMaxResults > c.MaxResultsCap {
		return fmt.Errorf("jobs.default_max_results must be within [1, %d]", c.MaxResultsCap)
	}
	if c.DefaultWaitMinutes < 0 || c.DefaultWaitMinutes > c.MaxWaitMinutes {
		return fmt.Errorf("jobs.default_wait_minutes must be within [0, %d]", c.MaxWaitMinutes)
	}
	if c.SearchConcurrency < 1 {
		c.SearchConcurrency = 1
	}
	if c.ActivityMaxAttempts < 1 {
		c.ActivityMaxAttempts = 1
	}
	if c.EngineRetryAttempts < 0 {
		c.EngineRetryAttempts = 0
	}
	return nil
}
