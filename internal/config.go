package internal

import (
	"fmt"
	"log"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the full application configuration.
type Config struct {
	// Server holds HTTP server configuration.
	Server struct {
		Port           int    `yaml:"port"`
		ReadTimeoutMS  int64  `yaml:"read_timeout_ms"`
		WriteTimeoutMS int64  `yaml:"write_timeout_ms"`
		IdleTimeoutMS  int64  `yaml:"idle_timeout_ms"`
		ReadHeaderMS   int64  `yaml:"read_header_timeout_ms"`
		MaxBodyBytes   int64  `yaml:"max_body_bytes"`
		RateLimitRPS   int64  `yaml:"rate_limit_rps"`
		RateLimitBurst int64  `yaml:"rate_limit_burst"`
		MetricsEnabled bool   `yaml:"metrics_enabled"`
		MetricsPath    string `yaml:"metrics_path"`
	} `yaml:"server"`
	// Webhook holds the inbound webhook endpoint configuration.
	Webhook struct {
		Path        string `yaml:"path"`
		DebugEvents bool   `yaml:"debug_events"`
	} `yaml:"webhook"`
	// Storage holds the shared database configuration for all stores.
	Storage StorageConfig `yaml:"storage"`
	// IgnoreRules are evaluated against each commit descriptor; a match
	// drops the commit from ingestion.
	IgnoreRules  []IgnoreRule `yaml:"ignore_rules"`
	IgnoreStrict bool         `yaml:"ignore_strict"`
	// Watermill holds configuration for the downstream event publisher.
	Watermill WatermillConfig `yaml:"watermill"`
}

// StorageConfig is the database configuration shared by the stores.
type StorageConfig struct {
	Driver      string       `yaml:"driver"`
	DSN         string       `yaml:"dsn"`
	Dialect     string       `yaml:"dialect"`
	AutoMigrate bool         `yaml:"auto_migrate"`
	Tables      TablesConfig `yaml:"tables"`
}

// TablesConfig overrides the default table name per entity.
type TablesConfig struct {
	Installations             string `yaml:"installations"`
	Organizations             string `yaml:"organizations"`
	InstallationOrganizations string `yaml:"installation_organizations"`
	Repositories              string `yaml:"repositories"`
	Authors                   string `yaml:"authors"`
	Commits                   string `yaml:"commits"`
	PullRequests              string `yaml:"pull_requests"`
}

// WatermillConfig holds the configuration for the event publisher drivers.
type WatermillConfig struct {
	Driver       string             `yaml:"driver"`
	Drivers      []string           `yaml:"drivers"`
	TopicPrefix  string             `yaml:"topic_prefix"`
	GoChannel    GoChannelConfig    `yaml:"gochannel"`
	Kafka        KafkaConfig        `yaml:"kafka"`
	NATS         NATSConfig         `yaml:"nats"`
	AMQP         AMQPConfig         `yaml:"amqp"`
	SQL          SQLConfig          `yaml:"sql"`
	HTTP         HTTPConfig         `yaml:"http"`
	JobQueue     JobQueueConfig     `yaml:"jobqueue"`
	PublishRetry PublishRetryConfig `yaml:"publish_retry"`
}

// GoChannelConfig holds configuration for the GoChannel pub/sub.
type GoChannelConfig struct {
	OutputChannelBuffer            int64 `yaml:"output_buffer"`
	Persistent                     bool  `yaml:"persistent"`
	BlockPublishUntilSubscriberAck bool  `yaml:"block_publish_until_subscriber_ack"`
}

// KafkaConfig holds configuration for the Kafka publisher.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
}

// NATSConfig holds configuration for the NATS streaming publisher.
type NATSConfig struct {
	ClusterID string `yaml:"cluster_id"`
	ClientID  string `yaml:"client_id"`
	URL       string `yaml:"url"`
}

// AMQPConfig holds configuration for the AMQP publisher.
type AMQPConfig struct {
	URL  string `yaml:"url"`
	Mode string `yaml:"mode"`
}

// SQLConfig holds configuration for the SQL publisher.
type SQLConfig struct {
	Driver               string `yaml:"driver"`
	DSN                  string `yaml:"dsn"`
	Dialect              string `yaml:"dialect"`
	AutoInitializeSchema bool   `yaml:"auto_initialize_schema"`
}

// HTTPConfig holds configuration for the HTTP publisher.
type HTTPConfig struct {
	BaseURL string `yaml:"base_url"`
	Mode    string `yaml:"mode"`
}

// JobQueueConfig holds configuration for the river-compatible job publisher.
type JobQueueConfig struct {
	Driver      string   `yaml:"driver"`
	DSN         string   `yaml:"dsn"`
	Table       string   `yaml:"table"`
	Queue       string   `yaml:"queue"`
	Kind        string   `yaml:"kind"`
	MaxAttempts int      `yaml:"max_attempts"`
	Priority    int      `yaml:"priority"`
	Tags        []string `yaml:"tags"`
}

type PublishRetryConfig struct {
	Attempts int `yaml:"attempts"`
	DelayMS  int `yaml:"delay_ms"`
}

// LoadConfig loads the application configuration from a YAML file.
// It expands environment variables and applies default values.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return cfg, err
	}

	applyDefaults(&cfg)
	normalized, err := normalizeIgnoreRules(cfg.IgnoreRules)
	if err != nil {
		return cfg, err
	}
	cfg.IgnoreRules = normalized
	return cfg, nil
}

// IgnoreRulesConfig represents the classifier-specific parts of the configuration.
type IgnoreRulesConfig struct {
	Rules  []IgnoreRule `yaml:"ignore_rules"`
	Strict bool         `yaml:"ignore_strict"`
	Logger *log.Logger
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeoutMS == 0 {
		cfg.Server.ReadTimeoutMS = 5000
	}
	if cfg.Server.WriteTimeoutMS == 0 {
		cfg.Server.WriteTimeoutMS = 10000
	}
	if cfg.Server.IdleTimeoutMS == 0 {
		cfg.Server.IdleTimeoutMS = 60000
	}
	if cfg.Server.ReadHeaderMS == 0 {
		cfg.Server.ReadHeaderMS = 5000
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 1 << 20
	}
	if cfg.Server.MetricsPath == "" {
		cfg.Server.MetricsPath = "/metrics"
	}
	if cfg.Webhook.Path == "" {
		cfg.Webhook.Path = "/webhooks/gitlab"
	}
	if cfg.Storage.Driver == "" && cfg.Storage.Dialect == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "gitmirror.db"
	}
	if cfg.Watermill.Driver == "" {
		cfg.Watermill.Driver = "gochannel"
	}
	if cfg.Watermill.TopicPrefix == "" {
		cfg.Watermill.TopicPrefix = "gitmirror"
	}
	if cfg.Watermill.GoChannel.OutputChannelBuffer == 0 {
		cfg.Watermill.GoChannel.OutputChannelBuffer = 64
	}
	if cfg.Watermill.HTTP.Mode == "" {
		cfg.Watermill.HTTP.Mode = "topic_url"
	}
	if cfg.Watermill.JobQueue.Table == "" {
		cfg.Watermill.JobQueue.Table = "river_job"
	}
	if cfg.Watermill.JobQueue.Queue == "" {
		cfg.Watermill.JobQueue.Queue = "default"
	}
	if cfg.Watermill.JobQueue.Kind == "" {
		cfg.Watermill.JobQueue.Kind = "gitmirror.event"
	}
	if cfg.Watermill.JobQueue.MaxAttempts == 0 {
		cfg.Watermill.JobQueue.MaxAttempts = 25
	}
	if cfg.Watermill.PublishRetry.Attempts == 0 {
		cfg.Watermill.PublishRetry.Attempts = 3
	}
	if cfg.Watermill.PublishRetry.DelayMS == 0 {
		cfg.Watermill.PublishRetry.DelayMS = 500
	}
}

func normalizeIgnoreRules(rules []IgnoreRule) ([]IgnoreRule, error) {
	out := make([]IgnoreRule, 0, len(rules))
	for i := range rules {
		rule := rules[i]
		rule.When = strings.TrimSpace(rule.When)
		if rule.When == "" {
			return nil, fmt.Errorf("ignore rule %d is missing when", i)
		}
		out = append(out, rule)
	}
	return out, nil
}
