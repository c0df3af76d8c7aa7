package serve

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/chat-service/internal/config"
	routesystem "github.com/chirino/chat-service/internal/plugin/route/system"
	registrycache "github.com/chirino/chat-service/internal/registry/cache"
	registryimage "github.com/chirino/chat-service/internal/registry/image"
	registryprofile "github.com/chirino/chat-service/internal/registry/profile"
	registrystore "github.com/chirino/chat-service/internal/registry/store"
	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v3"

	// Import all plugins to trigger init() registration
	_ "github.com/chirino/chat-service/internal/plugin/cache/infinispan"
	_ "github.com/chirino/chat-service/internal/plugin/cache/local"
	_ "github.com/chirino/chat-service/internal/plugin/cache/noop"
	_ "github.com/chirino/chat-service/internal/plugin/cache/redis"
	_ "github.com/chirino/chat-service/internal/plugin/image/mongostore"
	_ "github.com/chirino/chat-service/internal/plugin/image/pgstore"
	_ "github.com/chirino/chat-service/internal/plugin/image/s3store"
	_ "github.com/chirino/chat-service/internal/plugin/profile/sql"
	_ "github.com/chirino/chat-service/internal/plugin/route/conversations"
	_ "github.com/chirino/chat-service/internal/plugin/route/images"
	_ "github.com/chirino/chat-service/internal/plugin/route/profiles"
	_ "github.com/chirino/chat-service/internal/plugin/store/memory"
	_ "github.com/chirino/chat-service/internal/plugin/store/mongo"
	_ "github.com/chirino/chat-service/internal/plugin/store/postgres"
)

// Command returns the serve sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the chat service HTTP server",
		Flags: flags(&cfg),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg.ManagementListener.ReadHeaderTimeout = cfg.Listener.ReadHeaderTimeout
			cfg.ManagementListenerEnabled = cmd.IsSet("management-port")
			return run(config.WithContext(ctx, &cfg), cfg)
		},
	}
}

func flags(cfg *config.Config) []cli.Flag {
	return []cli.Flag{

		// ── Server ────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "mode",
			Category:    "Server:",
			Sources:     cli.EnvVars("CHAT_SERVICE_MODE"),
			Destination: &cfg.Mode,
			Value:       cfg.Mode,
			Usage:       "Run mode (prod|development|testing); outside prod error bodies carry the raw error",
		},
		&cli.StringFlag{
			Name:        "tls-cert-file",
			Category:    "Server:",
			Sources:     cli.EnvVars("CHAT_SERVICE_TLS_CERT_FILE"),
			Destination: &cfg.Listener.TLSCertFile,
			Usage:       "TLS certificate file; a self-signed certificate is generated when unset",
		},
		&cli.StringFlag{
			Name:        "tls-key-file",
			Category:    "Server:",
			Sources:     cli.EnvVars("CHAT_SERVICE_TLS_KEY_FILE"),
			Destination: &cfg.Listener.TLSKeyFile,
			Usage:       "TLS private key file",
		},
		&cli.DurationFlag{
			Name:        "read-header-timeout",
			Category:    "Server:",
			Sources:     cli.EnvVars("CHAT_SERVICE_READ_HEADER_TIMEOUT"),
			Destination: &cfg.Listener.ReadHeaderTimeout,
			Value:       cfg.Listener.ReadHeaderTimeout,
			Usage:       "HTTP read header timeout",
		},
		&cli.IntFlag{
			Name:        "drain-timeout-seconds",
			Category:    "Server:",
			Sources:     cli.EnvVars("CHAT_SERVICE_DRAIN_TIMEOUT_SECONDS"),
			Destination: &cfg.DrainTimeout,
			Value:       cfg.DrainTimeout,
			Usage:       "Seconds to wait for in-flight requests on shutdown",
		},
		&cli.StringFlag{
			Name:        "temp-dir",
			Category:    "Server:",
			Sources:     cli.EnvVars("CHAT_SERVICE_TEMP_DIR"),
			Destination: &cfg.TempDir,
			Usage:       "Directory for spooled uploads; defaults to OS temp directory",
		},
		&cli.Int64Flag{
			Name:        "max-body-size",
			Category:    "Server:",
			Sources:     cli.EnvVars("CHAT_SERVICE_MAX_BODY_SIZE"),
			Destination: &cfg.MaxBodySize,
			Value:       cfg.MaxBodySize,
			Usage:       "Maximum JSON request body size in bytes (image uploads use --images-max-size)",
		},
		&cli.BoolFlag{
			Name:        "cors",
			Category:    "Server:",
			Sources:     cli.EnvVars("CHAT_SERVICE_CORS"),
			Destination: &cfg.CORSEnabled,
			Usage:       "Enable CORS headers",
		},
		&cli.StringFlag{
			Name:        "cors-origins",
			Category:    "Server:",
			Sources:     cli.EnvVars("CHAT_SERVICE_CORS_ORIGINS"),
			Destination: &cfg.CORSOrigins,
			Usage:       "Comma-separated allowed origins (default any)",
		},
		&cli.BoolFlag{
			Name:        "management-access-log",
			Category:    "Server:",
			Sources:     cli.EnvVars("CHAT_SERVICE_MANAGEMENT_ACCESS_LOG"),
			Destination: &cfg.ManagementAccessLog,
			Usage:       "Enable HTTP access logging for management endpoints (/health, /ready, /metrics)",
		},

		// ── Network Listener ──────────────────────────────────────
		&cli.IntFlag{
			Name:        "port",
			Category:    "Network Listener:",
			Sources:     cli.EnvVars("CHAT_SERVICE_PORT"),
			Destination: &cfg.Listener.Port,
			Value:       cfg.Listener.Port,
			Usage:       "HTTP server port",
		},
		&cli.BoolFlag{
			Name:        "plain-text",
			Category:    "Network Listener:",
			Sources:     cli.EnvVars("CHAT_SERVICE_PLAIN_TEXT"),
			Destination: &cfg.Listener.EnablePlainText,
			Value:       cfg.Listener.EnablePlainText,
			Usage:       "Enable plaintext HTTP/1.1 + h2c",
		},
		&cli.BoolFlag{
			Name:        "tls",
			Category:    "Network Listener:",
			Sources:     cli.EnvVars("CHAT_SERVICE_TLS"),
			Destination: &cfg.Listener.EnableTLS,
			Value:       cfg.Listener.EnableTLS,
			Usage:       "Enable TLS HTTP/1.1 + HTTP/2",
		},

		// ── Management Network Listener ───────────────────────────
		&cli.IntFlag{
			Name:        "management-port",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("CHAT_SERVICE_MANAGEMENT_PORT"),
			Destination: &cfg.ManagementListener.Port,
			Value:       cfg.ManagementListener.Port,
			Usage:       "Dedicated port for health and metrics (0 = OS-assigned random port); when unset, served on the main port",
		},
		&cli.BoolFlag{
			Name:        "management-plain-text",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("CHAT_SERVICE_MANAGEMENT_PLAIN_TEXT"),
			Destination: &cfg.ManagementListener.EnablePlainText,
			Value:       cfg.ManagementListener.EnablePlainText,
			Usage:       "Enable plaintext HTTP for management server",
		},
		&cli.BoolFlag{
			Name:        "management-tls",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("CHAT_SERVICE_MANAGEMENT_TLS"),
			Destination: &cfg.ManagementListener.EnableTLS,
			Value:       cfg.ManagementListener.EnableTLS,
			Usage:       "Enable TLS for management server",
		},

		// ── Database ───────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "db-kind",
			Category:    "Database:",
			Sources:     cli.EnvVars("CHAT_SERVICE_DB_KIND"),
			Destination: &cfg.DatastoreType,
			Value:       cfg.DatastoreType,
			Usage:       "Document store for messages and conversations (" + strings.Join(registrystore.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "db-url",
			Category:    "Database:",
			Sources:     cli.EnvVars("CHAT_SERVICE_DB_URL"),
			Destination: &cfg.DBURL,
			Usage:       "Database connection URL (not used by the memory store)",
		},
		&cli.StringFlag{
			Name:        "db-name",
			Category:    "Database:",
			Sources:     cli.EnvVars("CHAT_SERVICE_DB_NAME"),
			Destination: &cfg.DatabaseName,
			Value:       cfg.DatabaseName,
			Usage:       "MongoDB database name",
		},
		&cli.IntFlag{
			Name:        "db-max-open-conns",
			Category:    "Database:",
			Sources:     cli.EnvVars("CHAT_SERVICE_DB_MAX_OPEN_CONNS"),
			Destination: &cfg.DBMaxOpenConns,
			Value:       cfg.DBMaxOpenConns,
			Usage:       "Maximum number of open database connections",
		},
		&cli.IntFlag{
			Name:        "db-max-idle-conns",
			Category:    "Database:",
			Sources:     cli.EnvVars("CHAT_SERVICE_DB_MAX_IDLE_CONNS"),
			Destination: &cfg.DBMaxIdleConns,
			Value:       cfg.DBMaxIdleConns,
			Usage:       "Maximum number of idle database connections",
		},
		&cli.BoolFlag{
			Name:        "db-migrate-at-start",
			Category:    "Database:",
			Sources:     cli.EnvVars("CHAT_SERVICE_DB_MIGRATE_AT_START"),
			Destination: &cfg.DatastoreMigrateAtStart,
			Value:       cfg.DatastoreMigrateAtStart,
			Usage:       "Create indexes and tables before serving",
		},

		// ── Profiles ──────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "profiles-kind",
			Category:    "Profiles:",
			Sources:     cli.EnvVars("CHAT_SERVICE_PROFILES_KIND"),
			Destination: &cfg.ProfileStoreType,
			Value:       cfg.ProfileStoreType,
			Usage:       "Profile directory (" + strings.Join(registryprofile.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "profiles-db-url",
			Category:    "Profiles:",
			Sources:     cli.EnvVars("CHAT_SERVICE_PROFILES_DB_URL"),
			Destination: &cfg.ProfileDBURL,
			Usage:       "Profile database URL; defaults to --db-url when both use the same engine",
		},

		// ── Images ────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "images-kind",
			Category:    "Images:",
			Sources:     cli.EnvVars("CHAT_SERVICE_IMAGES_KIND"),
			Destination: &cfg.ImageStoreType,
			Value:       cfg.ImageStoreType,
			Usage:       "Image store (db|" + strings.Join(registryimage.Names(), "|") + "); db uses the document store's engine",
		},
		&cli.StringFlag{
			Name:        "images-db-url",
			Category:    "Images:",
			Sources:     cli.EnvVars("CHAT_SERVICE_IMAGES_DB_URL"),
			Destination: &cfg.ImageDBURL,
			Usage:       "Image database URL; defaults to --db-url when both use the same engine",
		},
		&cli.Int64Flag{
			Name:        "images-max-size",
			Category:    "Images:",
			Sources:     cli.EnvVars("CHAT_SERVICE_IMAGES_MAX_SIZE"),
			Destination: &cfg.ImageMaxSize,
			Value:       cfg.ImageMaxSize,
			Usage:       "Maximum image size in bytes",
		},
		&cli.BoolFlag{
			Name:        "images-direct-download",
			Category:    "Images:",
			Sources:     cli.EnvVars("CHAT_SERVICE_IMAGES_DIRECT_DOWNLOAD"),
			Destination: &cfg.ImageDirectDownload,
			Usage:       "Redirect downloads to signed store URLs when the store supports them",
		},
		&cli.DurationFlag{
			Name:        "images-download-url-expires-in",
			Category:    "Images:",
			Sources:     cli.EnvVars("CHAT_SERVICE_IMAGES_DOWNLOAD_URL_EXPIRES_IN"),
			Destination: &cfg.ImageDownloadURLExpiresIn,
			Value:       cfg.ImageDownloadURLExpiresIn,
			Usage:       "Lifetime of signed download URLs",
		},
		&cli.StringFlag{
			Name:        "images-s3-bucket",
			Category:    "Images:",
			Sources:     cli.EnvVars("CHAT_SERVICE_IMAGES_S3_BUCKET"),
			Destination: &cfg.S3Bucket,
			Usage:       "S3 bucket for images",
		},
		&cli.StringFlag{
			Name:        "images-s3-prefix",
			Category:    "Images:",
			Sources:     cli.EnvVars("CHAT_SERVICE_IMAGES_S3_PREFIX"),
			Destination: &cfg.S3Prefix,
			Usage:       "Key prefix for image objects",
		},
		&cli.BoolFlag{
			Name:        "images-s3-use-path-style",
			Category:    "Images:",
			Sources:     cli.EnvVars("CHAT_SERVICE_IMAGES_S3_USE_PATH_STYLE"),
			Destination: &cfg.S3UsePathStyle,
			Usage:       "Use path-style S3 addressing (required for LocalStack/MinIO)",
		},
		&cli.StringFlag{
			Name:        "images-s3-external-endpoint",
			Category:    "Images:",
			Sources:     cli.EnvVars("CHAT_SERVICE_IMAGES_S3_EXTERNAL_ENDPOINT"),
			Destination: &cfg.S3ExternalEndpoint,
			Usage:       "Public S3 endpoint substituted into signed URLs",
		},

		// ── Cache ─────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "cache-kind",
			Category:    "Cache:",
			Sources:     cli.EnvVars("CHAT_SERVICE_CACHE_KIND"),
			Destination: &cfg.CacheType,
			Value:       cfg.CacheType,
			Usage:       "Profile cache (" + strings.Join(registrycache.Names(), "|") + ")",
		},
		&cli.DurationFlag{
			Name:        "cache-profile-ttl",
			Category:    "Cache:",
			Sources:     cli.EnvVars("CHAT_SERVICE_CACHE_PROFILE_TTL"),
			Destination: &cfg.CacheProfileTTL,
			Value:       cfg.CacheProfileTTL,
			Usage:       "How long a cached profile is served",
		},
		&cli.Int64Flag{
			Name:        "cache-local-max-items",
			Category:    "Cache:",
			Sources:     cli.EnvVars("CHAT_SERVICE_CACHE_LOCAL_MAX_ITEMS"),
			Destination: &cfg.CacheLocalMaxItems,
			Value:       cfg.CacheLocalMaxItems,
			Usage:       "Capacity of the in-process profile cache",
		},
		&cli.StringFlag{
			Name:        "redis-hosts",
			Category:    "Cache:",
			Sources:     cli.EnvVars("CHAT_SERVICE_REDIS_HOSTS"),
			Destination: &cfg.RedisURL,
			Usage:       "Redis connection URL",
		},
		&cli.StringFlag{
			Name:        "infinispan-host",
			Category:    "Cache:",
			Sources:     cli.EnvVars("CHAT_SERVICE_INFINISPAN_HOST"),
			Destination: &cfg.InfinispanHost,
			Usage:       "Infinispan RESP host:port (e.g. localhost:11222)",
		},
		&cli.StringFlag{
			Name:        "infinispan-username",
			Category:    "Cache:",
			Sources:     cli.EnvVars("CHAT_SERVICE_INFINISPAN_USERNAME"),
			Destination: &cfg.InfinispanUsername,
			Usage:       "Infinispan username",
		},
		&cli.StringFlag{
			Name:        "infinispan-password",
			Category:    "Cache:",
			Sources:     cli.EnvVars("CHAT_SERVICE_INFINISPAN_PASSWORD"),
			Destination: &cfg.InfinispanPassword,
			Usage:       "Infinispan password",
		},

		// ── Paging ────────────────────────────────────────────────
		&cli.IntFlag{
			Name:        "default-page-size",
			Category:    "Paging:",
			Sources:     cli.EnvVars("CHAT_SERVICE_DEFAULT_PAGE_SIZE"),
			Destination: &cfg.DefaultPageSize,
			Value:       cfg.DefaultPageSize,
			Usage:       "Page size used when a list request sends no limit",
		},
		&cli.IntFlag{
			Name:        "max-page-size",
			Category:    "Paging:",
			Sources:     cli.EnvVars("CHAT_SERVICE_MAX_PAGE_SIZE"),
			Destination: &cfg.MaxPageSize,
			Value:       cfg.MaxPageSize,
			Usage:       "Upper bound for the limit query parameter",
		},
		&cli.BoolFlag{
			Name:        "conversation-ids-sorted",
			Category:    "Paging:",
			Sources:     cli.EnvVars("CHAT_SERVICE_CONVERSATION_IDS_SORTED"),
			Destination: &cfg.SortConversationIDs,
			Usage:       "Derive conversation ids from the alphabetically sorted participant pair",
		},

		// ── Monitoring ────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "metrics-labels",
			Category:    "Monitoring:",
			Sources:     cli.EnvVars("CHAT_SERVICE_METRICS_LABELS"),
			Destination: &cfg.MetricsLabels,
			Value:       cfg.MetricsLabels,
			Usage:       "Comma-separated key=value pairs added as constant labels to all Prometheus metrics. Supports ${VAR} expansion.",
		},
	}
}

func run(ctx context.Context, cfg config.Config) error {
	srv, err := StartServer(ctx, &cfg)
	if err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("Shutting down...")
	routesystem.MarkNotReady()

	drainCtx, drainCancel := context.WithTimeout(context.Background(), time.Duration(cfg.DrainTimeout)*time.Second)
	defer drainCancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		log.Error("Shutdown error", "err", err)
	}
	log.Info("Server stopped")
	return nil
}

func maxBodySizeMiddleware(maxBodySize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBodySize <= 0 || isImageUpload(c.Request) {
			c.Next()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize)
		c.Next()
	}
}

// isImageUpload reports whether req is a multipart image upload, whose size is
// bounded by the image store instead.
func isImageUpload(req *http.Request) bool {
	if req == nil || req.URL == nil {
		return false
	}
	if req.Method != http.MethodPost || req.URL.Path != "/images" {
		return false
	}
	contentType := strings.ToLower(strings.TrimSpace(req.Header.Get("Content-Type")))
	return strings.HasPrefix(contentType, "multipart/form-data")
}
