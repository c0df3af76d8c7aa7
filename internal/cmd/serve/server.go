package serve

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/chirino/chat-service/internal/apierror"
	"github.com/chirino/chat-service/internal/config"
	"github.com/chirino/chat-service/internal/plugin/profile/cached"
	routesystem "github.com/chirino/chat-service/internal/plugin/route/system"
	storemetrics "github.com/chirino/chat-service/internal/plugin/store/metrics"
	registrycache "github.com/chirino/chat-service/internal/registry/cache"
	registryimage "github.com/chirino/chat-service/internal/registry/image"
	registrymigrate "github.com/chirino/chat-service/internal/registry/migrate"
	registryprofile "github.com/chirino/chat-service/internal/registry/profile"
	registryroute "github.com/chirino/chat-service/internal/registry/route"
	registrystore "github.com/chirino/chat-service/internal/registry/store"
	"github.com/chirino/chat-service/internal/service"
	"github.com/chirino/chat-service/internal/telemetry"
	"github.com/gin-gonic/gin"
)

// Server holds the running server and its subsystems.
type Server struct {
	Config          *config.Config
	Services        *registryroute.Services
	Router          *gin.Engine
	Running         *RunningServer
	closeManagement func(context.Context) error
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.closeManagement != nil {
		_ = s.closeManagement(ctx)
	}
	return s.Running.Close(ctx)
}

// StartServer loads every store, builds the router and starts listening.
// Use cfg.Listener.Port=0 for a random port. Actual port: Server.Running.Port.
func StartServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	log.Info("Starting chat service",
		"httpPort", cfg.Listener.Port,
		"db", cfg.DatastoreType,
		"profiles", cfg.ProfileStoreType,
		"images", cfg.ResolvedImageStoreType(),
		"cache", cfg.CacheType,
	)

	metricsLabels, err := telemetry.ParseMetricsLabels(cfg.MetricsLabels)
	if err != nil {
		return nil, fmt.Errorf("invalid --metrics-labels: %w", err)
	}
	telemetry.InitMetrics(metricsLabels)

	if err := registrymigrate.RunAll(ctx); err != nil {
		return nil, fmt.Errorf("migrations failed: %w", err)
	}

	// A cache failure only costs latency, so the service starts without one.
	if cacheLoader, err := registrycache.Select(cfg.CacheType); err != nil {
		log.Warn("Cache not available", "cache", cfg.CacheType, "err", err)
	} else if profileCache, err := cacheLoader(ctx); err != nil {
		log.Warn("Failed to initialize cache", "cache", cfg.CacheType, "err", err)
	} else {
		ctx = registrycache.WithProfileCacheContext(ctx, profileCache)
	}

	svc, err := loadServices(ctx, cfg)
	if err != nil {
		return nil, err
	}

	router := newRouter(cfg)
	if err := registryroute.Mount(router, svc, registryroute.MainRouteLoaders()); err != nil {
		return nil, fmt.Errorf("failed to load routes: %w", err)
	}

	// Management routes get their own engine when a dedicated port is set;
	// otherwise they share the main router.
	var closeManagement func(context.Context) error
	if cfg.ManagementListenerEnabled {
		mgmtRouter := gin.New()
		mgmtRouter.Use(gin.Recovery())
		if cfg.ManagementAccessLog {
			mgmtRouter.Use(telemetry.AccessLogMiddleware())
		}
		if err := registryroute.Mount(mgmtRouter, svc, registryroute.ManagementRouteLoaders()); err != nil {
			return nil, fmt.Errorf("failed to load management routes: %w", err)
		}
		// Management listener shares TLS cert/key with the main listener.
		mgmtCfg := cfg.ManagementListener
		mgmtCfg.TLSCertFile = cfg.Listener.TLSCertFile
		mgmtCfg.TLSKeyFile = cfg.Listener.TLSKeyFile
		_, closeManagement, err = startManagementServer(mgmtCfg, mgmtRouter)
		if err != nil {
			return nil, fmt.Errorf("failed to start management server: %w", err)
		}
	} else if err := registryroute.Mount(router, svc, registryroute.ManagementRouteLoaders()); err != nil {
		return nil, fmt.Errorf("failed to load management routes: %w", err)
	}

	running, err := StartListener("main", cfg.Listener, router)
	if err != nil {
		if closeManagement != nil {
			_ = closeManagement(context.Background())
		}
		return nil, err
	}

	log.Info("Server listening",
		"port", running.Port,
		"plaintext", cfg.Listener.EnablePlainText,
		"tls", cfg.Listener.EnableTLS,
	)

	routesystem.MarkReady()
	return &Server{
		Config:          cfg,
		Services:        svc,
		Router:          router,
		Running:         running,
		closeManagement: closeManagement,
	}, nil
}

func newRouter(cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.ManagementAccessLog {
		router.Use(telemetry.AccessLogMiddleware())
	} else {
		router.Use(telemetry.AccessLogMiddleware("/health", "/ready", "/metrics"))
	}
	router.Use(telemetry.MetricsMiddleware())
	router.Use(telemetry.ReporterMiddleware(telemetry.MetricsReporter{}))
	router.Use(maxBodySizeMiddleware(cfg.MaxBodySize))
	if cfg.CORSEnabled {
		router.Use(corsMiddleware(cfg.CORSOrigins))
	}
	router.Use(apierror.Middleware(cfg.IsProd()))
	return router
}

// loadServices selects and loads the document store, profile directory and image
// store plugins and builds the services on top of them.
func loadServices(ctx context.Context, cfg *config.Config) (*registryroute.Services, error) {
	storeLoader, err := registrystore.Select(cfg.DatastoreType)
	if err != nil {
		return nil, err
	}
	store, err := storeLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	store = storemetrics.Wrap(store)

	profileLoader, err := registryprofile.Select(cfg.ProfileStoreType)
	if err != nil {
		return nil, err
	}
	profiles, err := profileLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize profile store: %w", err)
	}
	profiles = cached.Wrap(profiles, registrycache.ProfileCacheFromContext(ctx), cfg.CacheProfileTTL)

	imageLoader, err := registryimage.Select(cfg.ResolvedImageStoreType())
	if err != nil {
		return nil, err
	}
	images, err := imageLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize image store: %w", err)
	}

	messages := service.NewMessageService(store, cfg)
	return &registryroute.Services{
		Config:        cfg,
		Conversations: service.NewConversationService(store, profiles, messages, cfg),
		Messages:      messages,
		Profiles:      service.NewProfileService(profiles),
		Images:        service.NewImageService(images, cfg),
	}, nil
}
