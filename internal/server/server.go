// Package server exposes the archives over HTTP. The wire formats are flat
// JSON objects with an {"error": "..."} shape on failure, matching what the
// existing agent-side clients already parse.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"reko/internal/archive"
	"reko/internal/config"
	"reko/internal/logging"
	"reko/internal/rulesync"
	"reko/internal/search"
)

// Server wires the stores, search engine and rules generator behind a gin
// router.
type Server struct {
	cfg        *config.Config
	store      *archive.Store
	rules      *archive.RuleStore
	engine     *search.Engine
	generator  *rulesync.Generator
	router     *gin.Engine
	httpServer *http.Server
	metrics    *Metrics
	logger     *logging.Logger
	startTime  time.Time
}

// New builds a Server from configuration. It creates the data directory on
// first use but performs no network I/O until Start.
func New(cfg *config.Config) (*Server, error) {
	store, err := archive.NewStore(cfg)
	if err != nil {
		return nil, err
	}
	rules := archive.NewRuleStore(cfg, store.Root())

	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	if cfg.Server.EnableCORS {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Requested-With"}
		router.Use(cors.New(corsConfig))
	}

	s := &Server{
		cfg:       cfg,
		store:     store,
		rules:     rules,
		engine:    search.NewEngine(store),
		generator: rulesync.NewGenerator(cfg, rules),
		router:    router,
		metrics:   defaultMetrics(),
		logger:    logging.NewComponentLogger("Server"),
		startTime: time.Now(),
	}
	s.router.Use(s.observeRequests())
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.GET("/ping", s.handlePing)
	s.router.GET("/search", s.handleSearch)
	s.router.GET("/quick-search", s.handleQuickSearch)
	s.router.POST("/add", s.handleAdd)
	s.router.GET("/rules", s.handleGetRules)
	s.router.POST("/rules", s.handlePostRule)
	s.router.POST("/generate-cursorrules", s.handleGenerate)
	s.router.GET("/list-projects", s.handleListProjects)
	s.router.GET("/list-sections", s.handleListSections)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// observeRequests records per-route request durations. The /metrics scrape
// itself is excluded.
func (s *Server) observeRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" || route == "/metrics" {
			return
		}
		s.metrics.ObserveRequest(route, fmt.Sprintf("%d", c.Writer.Status()), time.Since(start))
	}
}

// Router returns the underlying gin engine, used by handler tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start runs the HTTP server until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop shuts the server down gracefully, draining in-flight requests.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown: %v", err)
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// Run starts the server and stops it when ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Stop()
	}
}
