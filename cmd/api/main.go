// Package main is the entry point for the API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/openforest/fieldcoord/internal/api"
	"github.com/openforest/fieldcoord/internal/assignment"
	"github.com/openforest/fieldcoord/internal/auth"
	"github.com/openforest/fieldcoord/internal/brigade"
	"github.com/openforest/fieldcoord/internal/config"
	"github.com/openforest/fieldcoord/internal/db"
	"github.com/openforest/fieldcoord/internal/directory"
	"github.com/openforest/fieldcoord/internal/geo"
	"github.com/openforest/fieldcoord/internal/health"
	"github.com/openforest/fieldcoord/internal/middleware"
	"github.com/openforest/fieldcoord/internal/plot"
	"github.com/openforest/fieldcoord/internal/report"
	"github.com/openforest/fieldcoord/internal/site"
	"github.com/openforest/fieldcoord/internal/tracing"
)

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", "", "path to YAML config file (environment variables take precedence)")
	flag.Parse()

	if *help {
		fmt.Println("Fieldcoord API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", "config", cfg.LogSummary())

	ctx := context.Background()

	// Tracing
	provider, err := tracing.NewProvider(tracing.Config{
		ServiceName:  "fieldcoord-api",
		Enabled:      cfg.TracingEnabled,
		Environment:  cfg.Env,
		ExporterType: cfg.OTLPProtocol,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SamplingRate: 1.0,
		InsecureMode: cfg.Env == "development",
	})
	if err != nil {
		logger.Error("tracing init failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Error("tracing shutdown failed", "error", err)
		}
	}()

	// Database-backed stores
	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	sites := site.NewPostgresRepository(conn, logger)
	brigades := brigade.NewPostgresRepository(conn, logger)
	people := directory.NewPostgresRepository(conn)
	store := assignment.NewPostgresStore(conn, logger)

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	httpMetrics := middleware.NewMetrics()
	if err := httpMetrics.Register(registry); err != nil {
		logger.Error("metrics registration failed", "error", err)
		os.Exit(1)
	}
	brigadeMetrics := brigade.NewMetrics()
	if err := brigadeMetrics.Register(registry); err != nil {
		logger.Error("metrics registration failed", "error", err)
		os.Exit(1)
	}

	// Rate limiting: Redis when configured, in-memory otherwise.
	var limitStore middleware.RateLimitStore
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid redis url", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
		limitStore = middleware.NewRedisRateLimitStore(redisClient).WithMetrics(httpMetrics)
	} else {
		memStore := middleware.NewInMemoryRateLimitStore()
		limitStore = memStore
		go func() {
			for range time.Tick(time.Minute) {
				memStore.Cleanup()
			}
		}()
	}
	limitConfig := middleware.RateLimitConfig{
		RequestsPerWindow: cfg.RateLimitPerMinute,
		WindowDuration:    time.Minute,
	}
	if err := limitConfig.Validate(); err != nil {
		logger.Error("invalid rate limit config", "error", err)
		os.Exit(1)
	}

	// Geographic reference lookup; names degrade without it.
	var lookup geo.Lookup = unavailableLookup{}
	if cfg.GeoLookupURL != "" {
		lookup = geo.NewNameCache(geo.NewHTTPLookup(cfg.GeoLookupURL), geo.DefaultCacheSize)
	}

	// Domain services
	siteService := site.NewService(sites, logger)
	engine := brigade.NewEngine(brigades, sites, brigadeMetrics, logger)
	coordinator := assignment.NewCoordinator(store, people, logger)
	tracker := plot.NewTracker(sites, brigades, engine, logger)
	search := directory.NewSearchEngine(people, sites, lookup, logger)
	generator := report.NewGenerator(brigades, sites, people, logger)

	tokens := auth.NewJWTService(cfg.JWTSecret)

	healthConfig := api.HealthHandlersConfig{
		DBChecker:      health.NewDBChecker(conn),
		MetricsEnabled: true,
	}
	if redisClient != nil {
		healthConfig.RedisChecker = health.NewRedisChecker(redisClient)
	}

	router := api.NewRouter(api.RouterConfig{
		Sites:        api.NewSiteHandlers(siteService),
		Assignments:  api.NewAssignmentHandlers(coordinator),
		Brigades:     api.NewBrigadeHandlers(engine),
		Plots:        api.NewPlotHandlers(tracker),
		Search:       api.NewSearchHandlers(search),
		Reports:      api.NewReportHandlers(generator),
		Health:       api.NewHealthHandlers(healthConfig),
		Authenticate: middleware.Authenticate(tokens),
	})
	router.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	handler := newHandler(cfg, router, logger, limitStore, limitConfig, httpMetrics)
	server := newServer(fmt.Sprintf(":%d", cfg.Port), handler)

	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		logger.Error("listen failed", "error", err)
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	if err := serve(server, ln, logger, quit); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// newHandler wraps the composed routes in the middleware chain, outermost
// first: RequestID -> CORS -> Tracing -> HTTPMetrics -> RateLimiter ->
// Logging -> routes.
func newHandler(cfg *config.Config, routes http.Handler, logger *slog.Logger, limitStore middleware.RateLimitStore, limitConfig middleware.RateLimitConfig, httpMetrics *middleware.Metrics) http.Handler {
	handler := routes
	handler = middleware.Logging(logger)(handler)
	handler = middleware.RateLimiter(limitStore, limitConfig, middleware.IPKeyFunc(), httpMetrics)(handler)
	handler = middleware.HTTPMetrics(httpMetrics)(handler)
	if cfg.TracingEnabled {
		handler = middleware.Tracing("fieldcoord-api")(handler)
	}
	if len(cfg.AllowedOrigins) > 0 {
		handler = middleware.CORS(middleware.DefaultCORSConfig(cfg.AllowedOrigins))(handler)
	}
	return middleware.RequestID(handler)
}

// newServer builds the HTTP server with the service timeouts.
func newServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// serve runs the server on ln until a signal arrives on quit, then drains
// in-flight requests within the shutdown timeout.
func serve(server *http.Server, ln net.Listener, logger *slog.Logger, quit <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// unavailableLookup is the no-service fallback; every name resolves to not
// found and display locations degrade to "unknown".
type unavailableLookup struct{}

func (unavailableLookup) ResolveName(context.Context, geo.DivisionKind, string) (string, error) {
	return "", geo.ErrNameNotFound
}
