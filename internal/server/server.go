// Package server provides the HTTP server setup and routing configuration.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stwalsh4118/marquee/internal/access"
	"github.com/stwalsh4118/marquee/internal/ads"
	"github.com/stwalsh4118/marquee/internal/api"
	"github.com/stwalsh4118/marquee/internal/config"
	"github.com/stwalsh4118/marquee/internal/db"
	"github.com/stwalsh4118/marquee/internal/history"
	"github.com/stwalsh4118/marquee/internal/kvstore"
	"github.com/stwalsh4118/marquee/internal/logger"
	"github.com/stwalsh4118/marquee/internal/metadata"
	"github.com/stwalsh4118/marquee/internal/metrics"
	"github.com/stwalsh4118/marquee/internal/middleware"
	"github.com/stwalsh4118/marquee/internal/player"
	"github.com/stwalsh4118/marquee/internal/refresh"
	"github.com/stwalsh4118/marquee/internal/source"
)

// Server represents the HTTP server and the components it serves
type Server struct {
	config     *config.Config
	db         *db.DB
	repos      *db.Repositories
	store      kvstore.Store
	metrics    *metrics.Metrics
	cache      *metadata.Cache
	resolver   *metadata.Resolver
	history    *history.Store
	gate       *access.Gate
	controller *player.Controller
	catalog    *ads.Catalog
	watcher    *ads.Watcher
	rotator    *ads.Rotator
	scheduler  *refresh.Scheduler
	router     *gin.Engine
	server     *http.Server
}

// New creates a new server instance and wires every component
func New(cfg *config.Config, database *db.DB) (*Server, error) {
	repos := db.NewRepositories(database)

	store, err := kvstore.New(cfg.Cache, repos)
	if err != nil {
		return nil, fmt.Errorf("failed to create state store: %w", err)
	}

	m := metrics.New()

	cache := metadata.NewCache(metadata.Options{
		TTL:      cfg.Cache.TTL,
		Capacity: cfg.Cache.Capacity,
		Store:    store,
	})
	m.RegisterCache(func() (int64, int64, int64, int) {
		s := cache.Stats()
		return s.Hits, s.Misses, s.Evictions, s.CurrentSize
	})

	fetcher := metadata.NewHTTPFetcher(cfg.Metadata.OEmbedURL, cfg.Metadata.DurationURL, cfg.Metadata.Timeout)
	resolver := metadata.NewResolver(cache, fetcher)
	hist := history.New(cfg.History.Capacity, store, nil)
	gate := access.NewGate(repos.Settings, repos.Counters, store, cfg.Access)

	controller := player.NewController(player.Options{
		Factory:  player.NewBackendFactory(cfg.Playback, resolver),
		History:  hist,
		Autoplay: cfg.Playback.Autoplay,
		OnStatus: func(st player.Status) {
			logger.Log.Debug().Str("kind", string(st.Kind)).Str("message", st.Message).Msg("Player status")
		},
		OnChange: func(from, to player.State, strategy source.Strategy) {
			m.ObserveTransition(string(from), string(to), string(strategy))
		},
	})

	catalog := ads.NewCatalog(cfg.Refresh.AdCatalogPath)
	if err := catalog.Load(); err != nil {
		logger.Log.Warn().Err(err).Msg("Starting with an empty ad catalog")
	}

	var watcher *ads.Watcher
	if catalog.Path() != "" {
		watcher, err = ads.NewWatcher(catalog, 0, m.ObserveCatalogReload)
		if err != nil {
			return nil, fmt.Errorf("failed to create ad catalog watcher: %w", err)
		}
	}

	rotator := ads.NewRotator(catalog, gate, m.AddAdsShown)
	scheduler := refresh.NewScheduler(rotator, gate, gate.Identity, cfg.Refresh.Interval, m.ObserveTick)

	srv := &Server{
		config:     cfg,
		db:         database,
		repos:      repos,
		store:      store,
		metrics:    m,
		cache:      cache,
		resolver:   resolver,
		history:    hist,
		gate:       gate,
		controller: controller,
		catalog:    catalog,
		watcher:    watcher,
		rotator:    rotator,
		scheduler:  scheduler,
	}
	srv.setupRouter()
	srv.server = &http.Server{
		Addr:           fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:        srv.router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}
	return srv, nil
}

// setupRouter initializes the Gin router with middleware and routes
func (s *Server) setupRouter() {
	if s.config.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()

	s.router.Use(middleware.RequestLogger())
	s.router.Use(middleware.Metrics(s.metrics))
	s.router.Use(gin.Recovery())
	s.router.Use(cors.New(corsConfig()))

	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	apiGroup := s.router.Group("/api")

	api.SetupHealthRoutes(apiGroup, s.db, s.cache)
	api.SetupPlayerRoutes(apiGroup, s.controller)
	api.SetupHistoryRoutes(apiGroup, s.history)
	api.SetupMetadataRoutes(apiGroup, s.resolver)
	api.SetupAdminRoutes(apiGroup, s.gate, s.config.Access, s.metrics.ObserveLogin)
	api.SetupRefreshRoutes(apiGroup, s.scheduler, s.rotator)
}

func corsConfig() cors.Config {
	c := cors.DefaultConfig()
	c.AllowAllOrigins = true
	c.AddAllowHeaders(api.SessionHeader)
	return c
}

// Handler returns the configured router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the background components and then the HTTP server. The
// refresh loop runs from boot; each tick consults the access gate.
func (s *Server) Start() error {
	if s.watcher != nil {
		if err := s.watcher.Start(); err != nil {
			return fmt.Errorf("failed to start ad catalog watcher: %w", err)
		}
	}

	s.scheduler.SetVisible(true)

	logger.Log.Info().
		Str("host", s.config.Server.Host).
		Int("port", s.config.Server.Port).
		Msg("Starting HTTP server")

	return s.server.ListenAndServe()
}

// RefreshRunning reports whether the refresh loop is active
func (s *Server) RefreshRunning() bool {
	return s.scheduler.Running()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Log.Info().Msg("Shutting down server gracefully")

	s.scheduler.Stop()

	if s.watcher != nil {
		_ = s.watcher.Stop()
	}

	s.controller.Reset()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	if closer, ok := s.store.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			logger.Log.Warn().Err(err).Msg("Error closing state store")
		}
	}

	logger.Log.Info().Msg("Server stopped")
	return nil
}
