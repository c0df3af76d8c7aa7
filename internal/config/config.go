package config

import (
	"context"
	"os"
	"strings"
	"time"
)

// ListenerConfig holds the network/TLS settings for a single listener (main or management).
type ListenerConfig struct {
	Port              int
	EnablePlainText   bool
	EnableTLS         bool
	TLSCertFile       string
	TLSKeyFile        string
	ReadHeaderTimeout time.Duration
}

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

const (
	ModeProd        = "prod"
	ModeDevelopment = "development"
	ModeTesting     = "testing"
)

// Config holds all configuration for the chat service.
type Config struct {
	// Mode is "prod" (default), "development" or "testing". Outside prod, error
	// responses carry the raw internal error for diagnostics.
	Mode string

	// Document store holding the message ledger and the conversation index.
	DatastoreType           string // "mongo", "postgres" or "memory"
	DBURL                   string
	DatabaseName            string // mongo database name
	DatastoreMigrateAtStart bool

	// DB pool
	DBMaxOpenConns int
	DBMaxIdleConns int

	// Profile directory.
	ProfileStoreType string // "postgres" or "sqlite"
	ProfileDBURL     string

	// Image blob store.
	ImageStoreType            string // "s3", "mongo", "postgres" or "db"
	ImageDBURL                string
	ImageMaxSize              int64
	ImageDirectDownload       bool
	ImageDownloadURLExpiresIn time.Duration

	// S3
	S3Bucket           string
	S3Prefix           string
	S3UsePathStyle     bool
	S3ExternalEndpoint string

	// Profile cache.
	CacheType          string // "none", "local", "redis" or "infinispan"
	CacheProfileTTL    time.Duration
	CacheLocalMaxItems int64

	// Redis
	RedisURL string

	// Infinispan (RESP protocol, connects via go-redis)
	InfinispanHost           string
	InfinispanUsername       string
	InfinispanPassword       string
	InfinispanStartupTimeout time.Duration

	// Paging.
	DefaultPageSize int
	MaxPageSize     int

	// SortConversationIDs derives conversation ids from the lexicographically
	// sorted participant pair instead of the caller-supplied order.
	SortConversationIDs bool

	// MetricsLabels is a comma-separated list of key=value pairs added as
	// constant labels to all Prometheus metrics. Values support ${VAR} expansion.
	MetricsLabels string

	// Server
	Listener           ListenerConfig
	ManagementListener ListenerConfig
	// ManagementListenerEnabled is true when --management-port was explicitly provided.
	// When false, management endpoints are served on the main port.
	ManagementListenerEnabled bool
	// ManagementAccessLog enables HTTP access logging for /health, /ready and /metrics.
	ManagementAccessLog bool
	CORSEnabled         bool
	CORSOrigins         string

	// Body size limit (bytes) for non-upload requests.
	MaxBodySize int64

	// Temporary file directory. Empty uses platform default temp directory.
	TempDir string

	// Graceful shutdown drain timeout (seconds)
	DrainTimeout int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Mode:                      ModeProd,
		DatastoreType:             "mongo",
		DatabaseName:              "chat_service",
		DatastoreMigrateAtStart:   true,
		DBMaxOpenConns:            25,
		DBMaxIdleConns:            5,
		ProfileStoreType:          "postgres",
		ImageStoreType:            "s3",
		ImageMaxSize:              10 * 1024 * 1024, // 10 MB
		ImageDownloadURLExpiresIn: 5 * time.Minute,
		CacheType:                 "none",
		CacheProfileTTL:           5 * time.Minute,
		CacheLocalMaxItems:        10_000,
		InfinispanStartupTimeout:  30 * time.Second,
		DefaultPageSize:           50,
		MaxPageSize:               1000,
		MetricsLabels:             "service=chat-service",
		Listener: ListenerConfig{
			Port:              8080,
			EnablePlainText:   true,
			EnableTLS:         true,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ManagementListener: ListenerConfig{
			EnablePlainText: true,
			EnableTLS:       true,
		},
		MaxBodySize:  1024 * 1024,
		DrainTimeout: 30,
	}
}

// IsProd reports whether raw internal errors must be withheld from clients.
func (c *Config) IsProd() bool {
	if c == nil {
		return true
	}
	return c.Mode != ModeDevelopment && c.Mode != ModeTesting
}

// ResolvedTempDir returns the configured temp directory or the platform default.
func (c *Config) ResolvedTempDir() string {
	if c == nil {
		return os.TempDir()
	}
	if dir := strings.TrimSpace(c.TempDir); dir != "" {
		return dir
	}
	return os.TempDir()
}

// ResolvedProfileDBURL returns the profile directory URL. Postgres profiles fall back
// to the document store URL when that store is also postgres.
func (c *Config) ResolvedProfileDBURL() string {
	if u := strings.TrimSpace(c.ProfileDBURL); u != "" {
		return u
	}
	if c.ProfileStoreType == c.DatastoreType {
		return c.DBURL
	}
	return ""
}

// ResolvedImageStoreType maps the "db" alias to the engine backing the document store.
func (c *Config) ResolvedImageStoreType() string {
	if c.ImageStoreType != "db" {
		return c.ImageStoreType
	}
	switch c.DatastoreType {
	case "mongo":
		return "mongo"
	case "postgres":
		return "postgres"
	}
	return ""
}

// ResolvedImageDBURL returns the database URL for database-backed image stores.
func (c *Config) ResolvedImageDBURL() string {
	if u := strings.TrimSpace(c.ImageDBURL); u != "" {
		return u
	}
	if c.ResolvedImageStoreType() == c.DatastoreType {
		return c.DBURL
	}
	return ""
}

// PageSize applies the default and maximum page size to a requested limit.
func (c *Config) PageSize(requested int) int {
	def, max := 50, 1000
	if c != nil {
		if c.DefaultPageSize > 0 {
			def = c.DefaultPageSize
		}
		if c.MaxPageSize > 0 {
			max = c.MaxPageSize
		}
	}
	if requested <= 0 {
		return def
	}
	if requested > max {
		return max
	}
	return requested
}
