package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/AgentOS/apps/internal/api/http"
	"github.com/GriffinCanCode/AgentOS/apps/internal/api/middleware"
	"github.com/GriffinCanCode/AgentOS/apps/internal/api/ws"
	"github.com/GriffinCanCode/AgentOS/apps/internal/domain/events"
	"github.com/GriffinCanCode/AgentOS/apps/internal/domain/installer"
	"github.com/GriffinCanCode/AgentOS/apps/internal/domain/planner"
	"github.com/GriffinCanCode/AgentOS/apps/internal/domain/registry"
	"github.com/GriffinCanCode/AgentOS/apps/internal/domain/scheduler"
	"github.com/GriffinCanCode/AgentOS/apps/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/apps/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/apps/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/apps/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/AgentOS/apps/internal/providers/fetch"
	"github.com/GriffinCanCode/AgentOS/apps/internal/providers/verify"
	"github.com/GriffinCanCode/AgentOS/apps/internal/shared/paths"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	config    *config.Config
	logger    *logging.Logger
	metrics   *monitoring.Metrics
	gatherer  prometheus.Gatherer
	tracer    *tracing.Tracer
	bus       *events.Bus
	registry  *registry.Registry
	planner   *planner.Planner
	scheduler *scheduler.Scheduler
	router    *gin.Engine
	http      *http.Server
}

// Options carries optional collaborators, mostly for tests
type Options struct {
	Logger    *logging.Logger
	Manifests planner.ManifestSource
	Packages  planner.PackageSource
	Signature verify.SignatureChecker
	Version   string
}

// New opens the registry, recovers from interrupted transitions and builds
// the router
func New(ctx context.Context, cfg *config.Config, opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		var err error
		logger, err = logging.New(logging.Config{Level: cfg.Logging.Level, Development: cfg.Logging.Development})
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}

	logger.Info("Initializing apps service",
		zap.String("data_dir", cfg.Storage.DataDir),
		zap.String("registry_backend", cfg.Storage.RegistryBackend),
		zap.String("port", cfg.Server.Port))

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(promReg)

	layout := paths.New(cfg.Storage.DataDir)
	if err := layout.Ensure(); err != nil {
		return nil, err
	}

	store, err := openStore(cfg.Storage.RegistryBackend, layout, logger.Logger)
	if err != nil {
		return nil, err
	}
	reg, err := registry.Open(ctx, store, logger.Logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	inst := installer.New(layout, logger.Logger)
	if err := Recover(ctx, reg, inst, logger.Logger); err != nil {
		reg.Close()
		return nil, err
	}

	tracer := tracing.New("apps", logger.Named("trace"))
	client := fetch.New(fetch.Config{
		UserAgent:       cfg.HTTP.UserAgent,
		RequestsPerSec:  cfg.HTTP.RequestsPerSec,
		FetchTimeout:    cfg.Update.FetchTimeout,
		DownloadTimeout: cfg.Update.DownloadTimeout,
		ManifestRetries: fetch.DefaultConfig().ManifestRetries,
		BreakerTimeout:  fetch.DefaultConfig().BreakerTimeout,
		Tracer:          tracer,
	}, logger.Logger)

	var manifests planner.ManifestSource = client
	if opts.Manifests != nil {
		manifests = opts.Manifests
	}
	var packages planner.PackageSource = client
	if opts.Packages != nil {
		packages = opts.Packages
	}

	bus := events.NewBus()
	p, err := planner.New(planner.Deps{
		Registry:  reg,
		Installer: inst,
		Manifests: manifests,
		Packages:  packages,
		Verifier:  verify.New(opts.Signature, logger.Logger),
		Bus:       bus,
		Metrics:   metrics,
		Logger:    logger.Logger,
	}, planner.Options{
		DownloadAttempts: cfg.Update.DownloadAttempts,
		BackoffInitial:   cfg.Update.BackoffInitial,
		BackoffMax:       cfg.Update.BackoffMax,
		FetchTimeout:     cfg.Update.FetchTimeout,
		DownloadTimeout:  cfg.Update.DownloadTimeout,
		VerifyTimeout:    cfg.Update.VerifyTimeout,
		CommitAttempts:   cfg.Update.CommitAttempts,
	})
	if err != nil {
		tracer.Close()
		reg.Close()
		return nil, err
	}

	if cfg.Storage.SystemDir != "" {
		if _, err := p.Seed(ctx, cfg.Storage.SystemDir, cfg.Storage.AllowRemovePreloaded); err != nil {
			logger.Warn("Failed to seed preloaded apps", zap.Error(err))
		}
	}

	var sched *scheduler.Scheduler
	if cfg.Update.CheckEnabled {
		sched = scheduler.New(p, reg, scheduler.Config{
			Interval:    cfg.Update.CheckInterval,
			Concurrency: cfg.Update.CheckConcurrency,
			AutoUpdate:  cfg.Update.AutoUpdate,
		}, logger.Named("scheduler"))
	}

	s := &Server{
		config:    cfg,
		logger:    logger,
		metrics:   metrics,
		gatherer:  promReg,
		tracer:    tracer,
		bus:       bus,
		registry:  reg,
		planner:   p,
		scheduler: sched,
	}
	s.router = s.routes(opts.Version)
	s.http = &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server initialized successfully", zap.Int("installed_apps", reg.Stats().TotalApps))
	return s, nil
}

func (s *Server) routes(version string) *gin.Engine {
	if !s.config.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(tracing.HTTPMiddleware(s.tracer))
	router.Use(middleware.Logger(s.logger.Named("http")))
	router.Use(middleware.Recovery(s.logger.Logger))
	router.Use(monitoring.Middleware(s.metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if s.config.RateLimit.Enabled {
		s.logger.Info("Rate limiting enabled",
			zap.Int("rps", s.config.RateLimit.RequestsPerSecond),
			zap.Int("burst", s.config.RateLimit.Burst))
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: s.config.RateLimit.RequestsPerSecond,
			Burst:             s.config.RateLimit.Burst,
		}))
	}

	var sweeper apihttp.Sweeper
	if s.scheduler != nil {
		sweeper = s.scheduler
	}
	apihttp.NewHandlers(s.planner, s.registry, sweeper, version, s.logger.Named("api")).Register(router)

	router.GET("/events", ws.NewHandler(s.bus, s.metrics, s.logger.Named("ws")).HandleEvents)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	router.GET("/metrics/json", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.metrics.Snapshot())
	})

	level := gin.WrapH(s.logger.LevelHandler())
	router.GET("/log/level", level)
	router.PUT("/log/level", level)
	return router
}

// Handler returns the HTTP handler of the API
func (s *Server) Handler() http.Handler {
	return s.router
}

// Planner returns the lifecycle planner
func (s *Server) Planner() *planner.Planner {
	return s.planner
}

// Run serves the API and runs the update scheduler until ctx is done, then
// shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		if s.scheduler != nil {
			_ = s.scheduler.Run(ctx)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
	defer stop()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	<-schedDone
	return serveErr
}

// Close releases the registry and detaches event subscribers
func (s *Server) Close() error {
	s.bus.Close()
	s.tracer.Close()
	err := s.registry.Close()
	_ = s.logger.Sync()
	return err
}

func openStore(backend string, layout paths.Layout, logger *zap.Logger) (registry.Store, error) {
	switch backend {
	case config.BackendLevelDB:
		store, err := registry.OpenLevelStore(layout.Registry(), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open registry database: %w", err)
		}
		return store, nil
	case config.BackendFile, "":
		return registry.NewFileStore(layout.Registry(), logger), nil
	}
	return nil, fmt.Errorf("unknown registry backend %q", backend)
}
