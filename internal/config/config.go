// Package config defines process configuration and its loading.
//
// Values are layered: defaults from New, then an optional YAML file, then
// SLIPSYNC_* environment variables. Keys are flat and match the koanf tags.
package config

import (
	"fmt"
	"slices"
	"time"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	// DriverKafka only carries notifications; it cannot back an area.
	DriverKafka = "kafka"
)

var (
	drivers    = []string{DriverMemory, DriverRedis, DriverPostgres}
	transports = []string{DriverMemory, DriverRedis, DriverPostgres, DriverKafka}
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// Origin groups the contexts that share localStorage and its change
	// notifications.
	Origin string `koanf:"origin"`
	// ContextID identifies this process among the contexts of the origin.
	// Empty means a random id per start.
	ContextID string `koanf:"context_id"`
	// SessionID scopes sessionStorage. Contexts with the same session id see
	// each other's session writes. Empty means the context id.
	SessionID string `koanf:"session_id"`
	// SessionTTLSec expires sessionStorage records on backends that support
	// it. Zero keeps them.
	SessionTTLSec int `koanf:"session_ttl_sec"`

	// LocalDriver and SessionDriver select the backend of each shared area.
	LocalDriver   string `koanf:"local_driver"`
	SessionDriver string `koanf:"session_driver"`
	// Transport carries change notifications between contexts.
	Transport string `koanf:"transport"`

	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	PostgresDSN string `koanf:"postgres_dsn"`

	// KafkaBrokers is a comma separated host:port list. KafkaTopic defaults
	// to one derived from Origin.
	KafkaBrokers string `koanf:"kafka_brokers"`
	KafkaTopic   string `koanf:"kafka_topic"`

	// EventQueueSize bounds the queue between transports and the dispatcher.
	EventQueueSize int `koanf:"queue_size"`
	// DedupeSize bounds the window of notification ids remembered to drop
	// redeliveries.
	DedupeSize int `koanf:"dedupe_size"`

	// Catalog source: at most one of file, url or S3 bucket.
	CatalogFile      string `koanf:"catalog_file"`
	CatalogURL       string `koanf:"catalog_url"`
	CatalogS3Bucket  string `koanf:"catalog_s3_bucket"`
	CatalogS3Key     string `koanf:"catalog_s3_key"`
	CatalogS3Region  string `koanf:"catalog_s3_region"`
	CatalogS3URL     string `koanf:"catalog_s3_endpoint"`
	CatalogS3Access  string `koanf:"catalog_s3_access_key"`
	CatalogS3Secret  string `koanf:"catalog_s3_secret_key"`
	CatalogTimeoutMS int    `koanf:"catalog_timeout_ms"`

	// TimeZone renders event start times.
	TimeZone string `koanf:"time_zone"`

	// BetslipKey is the localStorage key of the betslip.
	BetslipKey string `koanf:"betslip_key"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:         "info",
		LogFormat:        "text",
		Addr:             ":9080",
		Origin:           "slipsync",
		LocalDriver:      DriverMemory,
		SessionDriver:    DriverMemory,
		Transport:        DriverMemory,
		RedisAddr:        "localhost:6379",
		EventQueueSize:   1024,
		DedupeSize:       10_000,
		CatalogS3Region:  "us-east-1",
		CatalogS3Key:     "events.json",
		CatalogTimeoutMS: 5000,
		TimeZone:         "UTC",
		BetslipKey:       "betslip",
	}
}

// CatalogTimeout returns the catalog fetch timeout.
func (c *Config) CatalogTimeout() time.Duration {
	return time.Duration(c.CatalogTimeoutMS) * time.Millisecond
}

// SessionTTL returns the sessionStorage record lifetime.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSec) * time.Second
}

// Location resolves TimeZone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("%w: time_zone %q: %v", ErrInvalidConfig, c.TimeZone, err)
	}
	return loc, nil
}

// Uses reports whether any area or the transport runs on driver.
func (c *Config) Uses(driver string) bool {
	return c.LocalDriver == driver || c.SessionDriver == driver || c.Transport == driver
}

// Validate checks the configuration for values the process cannot start
// with.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.Origin == "":
		return fmt.Errorf("%w: origin must not be empty", ErrInvalidConfig)
	case c.BetslipKey == "":
		return fmt.Errorf("%w: betslip_key must not be empty", ErrInvalidConfig)
	case c.EventQueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.SessionTTLSec < 0 || c.CatalogTimeoutMS < 0:
		return fmt.Errorf("%w: durations must not be negative", ErrInvalidConfig)
	}
	for name, d := range map[string]string{
		"local_driver":   c.LocalDriver,
		"session_driver": c.SessionDriver,
	} {
		if !slices.Contains(drivers, d) {
			return fmt.Errorf("%w: %s %q is not one of %v", ErrInvalidConfig, name, d, drivers)
		}
	}
	if !slices.Contains(transports, c.Transport) {
		return fmt.Errorf("%w: transport %q is not one of %v", ErrInvalidConfig, c.Transport, transports)
	}
	if c.Uses(DriverRedis) && c.RedisAddr == "" {
		return fmt.Errorf("%w: redis_addr is required by the redis driver", ErrInvalidConfig)
	}
	if c.Uses(DriverPostgres) && c.PostgresDSN == "" {
		return fmt.Errorf("%w: postgres_dsn is required by the postgres driver", ErrInvalidConfig)
	}
	if c.Transport == DriverKafka && c.KafkaBrokers == "" {
		return fmt.Errorf("%w: kafka_brokers is required by the kafka transport", ErrInvalidConfig)
	}
	sources := 0
	for _, s := range []string{c.CatalogFile, c.CatalogURL, c.CatalogS3Bucket} {
		if s != "" {
			sources++
		}
	}
	if sources > 1 {
		return fmt.Errorf("%w: set only one of catalog_file, catalog_url, catalog_s3_bucket", ErrInvalidConfig)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}
