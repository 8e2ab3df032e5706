package countd

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"pkt.systems/countd/internal/identity"
)

const (
	// DefaultListen is the default TCP endpoint the server binds to.
	DefaultListen = ":9350"
	// DefaultMetricsListen is the default metrics endpoint (Prometheus
	// scrape). Empty disables metrics unless explicitly configured.
	DefaultMetricsListen = ""
	// DefaultStore points the server at the in-memory backend when no store
	// is provided.
	DefaultStore = "mem://"
	// DefaultQueue logs notifications instead of publishing them.
	DefaultQueue = "log://"
	// DefaultAuthMode verifies bearer JWTs locally.
	DefaultAuthMode = string(identity.ModeJWT)
	// DefaultShutdownTimeout caps graceful HTTP shutdown.
	DefaultShutdownTimeout = 10 * time.Second
	// DefaultJSONMaxBytes bounds incoming request bodies.
	DefaultJSONMaxBytes = int64(1 << 20)
	// DefaultStorageRetryMaxAttempts describes how many transient storage
	// errors are retried.
	DefaultStorageRetryMaxAttempts = 4
	// DefaultStorageRetryBaseDelay configures the base delay between storage
	// retries.
	DefaultStorageRetryBaseDelay = 100 * time.Millisecond
	// DefaultStorageRetryMaxDelay caps the exponential backoff between
	// storage retries.
	DefaultStorageRetryMaxDelay = 2 * time.Second
	// DefaultStorageRetryMultiplier defines the exponential backoff ratio.
	DefaultStorageRetryMultiplier = 2.0
	// DefaultConfigFileName is the YAML config file the CLI looks for.
	DefaultConfigFileName = "countd.yaml"
)

// Config collects every server setting. Zero values fall back to the
// defaults above via Validate.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string
	// MetricsListen serves the Prometheus scrape endpoint when non-empty.
	MetricsListen string
	// Store selects the backend by URL scheme: mem://, disk:///path,
	// redis://host:port/db.
	Store string
	// Queue selects the notifier by URL scheme: log://,
	// pubsub://project/topic, redisq://host:port/db?key=name.
	Queue string
	// AuthMode is "jwt" or "header".
	AuthMode string
	// JWTSecret is the HS256 shared secret for jwt mode.
	JWTSecret string
	// JWTSecretFile reads the secret from a file when JWTSecret is empty.
	JWTSecretFile string
	// ShutdownTimeout caps graceful shutdown.
	ShutdownTimeout time.Duration
	// JSONMaxBytes limits the size of incoming request bodies.
	JSONMaxBytes int64
	// Storage retry tuning for transient backend errors.
	StorageRetryMaxAttempts int
	StorageRetryBaseDelay   time.Duration
	StorageRetryMaxDelay    time.Duration
	StorageRetryMultiplier  float64
}

// Validate normalizes cfg in place and reports configuration errors.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Listen) == "" {
		c.Listen = DefaultListen
	}
	if strings.TrimSpace(c.Store) == "" {
		c.Store = DefaultStore
	}
	if strings.TrimSpace(c.Queue) == "" {
		c.Queue = DefaultQueue
	}
	if strings.TrimSpace(c.AuthMode) == "" {
		c.AuthMode = DefaultAuthMode
	}
	mode, err := identity.ParseMode(c.AuthMode)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	c.AuthMode = string(mode)
	if _, err := url.Parse(c.Store); err != nil {
		return fmt.Errorf("config: parse store URL: %w", err)
	}
	if _, err := url.Parse(c.Queue); err != nil {
		return fmt.Errorf("config: parse queue URL: %w", err)
	}
	if mode == identity.ModeJWT {
		secret, err := c.ResolveJWTSecret()
		if err != nil {
			return err
		}
		if len(secret) == 0 {
			return fmt.Errorf("config: auth mode jwt requires --jwt-secret or --jwt-secret-file")
		}
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.JSONMaxBytes <= 0 {
		c.JSONMaxBytes = DefaultJSONMaxBytes
	}
	if c.StorageRetryMaxAttempts <= 0 {
		c.StorageRetryMaxAttempts = DefaultStorageRetryMaxAttempts
	}
	if c.StorageRetryBaseDelay <= 0 {
		c.StorageRetryBaseDelay = DefaultStorageRetryBaseDelay
	}
	if c.StorageRetryMaxDelay <= 0 {
		c.StorageRetryMaxDelay = DefaultStorageRetryMaxDelay
	}
	if c.StorageRetryMultiplier <= 0 {
		c.StorageRetryMultiplier = DefaultStorageRetryMultiplier
	}
	return nil
}

// ResolveJWTSecret returns the configured HS256 secret, reading
// JWTSecretFile when the inline secret is empty.
func (c *Config) ResolveJWTSecret() ([]byte, error) {
	if secret := strings.TrimSpace(c.JWTSecret); secret != "" {
		return []byte(secret), nil
	}
	path := strings.TrimSpace(c.JWTSecretFile)
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read jwt secret file: %w", err)
	}
	return []byte(strings.TrimSpace(string(data))), nil
}
