// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"risk-engine/internal/analyzer"
	"risk-engine/internal/config"
	"risk-engine/internal/handler"
	"risk-engine/internal/metrics"
	"risk-engine/internal/notify"
	"risk-engine/internal/reputation"
	"risk-engine/internal/service"
	"risk-engine/pkg/logger"
	"risk-engine/pkg/middleware"
	"risk-engine/pkg/redis"
	"risk-engine/pkg/syncutil"
	"risk-engine/pkg/tracing"
)

const serviceName = "risk-engine"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(serviceName, cfg.Environment, cfg.LogLevel)
	defer log.Sync()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracing.InitTracer(ctx, serviceName, cfg.OTLPEndpoint, log)
	if err != nil {
		log.Fatal("failed to initialize tracing", zap.Error(err))
	}

	a, err := newApp(ctx, cfg, log, prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatal("failed to initialize", zap.Error(err))
	}

	go a.cache.RunCleanup(ctx, time.Minute)
	go a.reviews.RunEscalation(ctx, cfg.ReviewEscalationInterval)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      a.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("starting risk engine",
			zap.String("port", cfg.Port),
			zap.String("environment", cfg.Environment),
			zap.String("store", a.stores.kind))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	stop()

	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	a.close(shutdownCtx)
	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Warn("failed to flush traces", zap.Error(err))
	}

	log.Info("server exited")
}

// app holds the wired components behind the HTTP server.
type app struct {
	router   *gin.Engine
	engine   *service.FraudEngine
	executor *service.ActionExecutor
	reviews  *service.ReviewService
	cache    *reputation.Cache
	stores   *stores
	log      *zap.Logger
	closers  []func()
}

func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger, reg prometheus.Registerer) (*app, error) {
	m := metrics.New(reg)

	// Initialize stores
	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open stores: %w", err)
	}
	a := &app{stores: st, log: log}

	// Initialize reputation lookups
	cache, closeRedis := newReputationCache(ctx, cfg, log)
	a.cache = cache
	a.closers = append(a.closers, closeRedis)
	rep := newReputationProvider(cfg, cache, m, log)

	notifier, closeNotifier := newNotifier(cfg, log)
	a.closers = append(a.closers, closeNotifier)

	// Initialize services
	settings := service.NewSettingsService(cfg.DefaultSettings(), st.platform, log)
	if err := settings.Load(ctx); err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("failed to load risk settings: %w", err)
	}

	locks := &syncutil.ShardedMutex{}
	a.executor = service.NewActionExecutor(st.platform, st.platform, st.platform, notifier, locks, m, log)

	analyzers := analyzer.NewDefaultSet(analyzer.Sources{
		History:    st.platform,
		Blacklist:  st.platform,
		Reputation: rep,
	}, analyzer.DefaultConfig())

	a.engine = service.NewFraudEngine(analyzers, settings, a.executor, st.platform, st.analyses, m, log)
	a.reviews = service.NewReviewService(st.platform, st.platform, notifier, locks, m, log)
	reports := service.NewReportService(st.analyses, log)

	// Initialize handlers
	a.router = setupRouter(log, m, st, cache,
		handler.NewFraudHandler(a.engine, reports, log),
		handler.NewReviewHandler(a.reviews, log),
		handler.NewSettingsHandler(settings, log),
	)
	return a, nil
}

// close waits for analyzer calls and in-flight operator alerts before
// closing the producer and the stores.
func (a *app) close(ctx context.Context) {
	if a.engine != nil {
		if err := a.engine.Wait(ctx); err != nil {
			a.log.Warn("analyzers still running at shutdown", zap.Error(err))
		}
	}
	if a.executor != nil {
		a.executor.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.stores.close(ctx)
}

func setupRouter(log *zap.Logger, m *metrics.Metrics, st *stores, cache *reputation.Cache, fraud *handler.FraudHandler, reviews *handler.ReviewHandler, settings *handler.SettingsHandler) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS())
	router.Use(middleware.Metrics(m.HTTPRequestsTotal, m.HTTPRequestDuration))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	router.GET("/ready", func(c *gin.Context) {
		if err := st.ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":           "ready",
			"store":            st.kind,
			"reputation_cache": cache.Stats(),
		})
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handler.RegisterRoutes(router.Group("/api/v1"), fraud, reviews, settings)
	return router
}

func newReputationCache(ctx context.Context, cfg *config.Config, log *zap.Logger) (*reputation.Cache, func()) {
	if cfg.RedisURL == "" {
		return reputation.NewCache(nil, cfg.ReputationCacheTTL, log), func() {}
	}

	client, err := redis.NewRedisClient(cfg.RedisURL)
	if err == nil {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err = client.Ping(pingCtx)
		cancel()
	}
	if err != nil {
		log.Warn("redis unavailable, reputation cache is memory only", zap.Error(err))
		if client != nil {
			_ = client.Close()
		}
		return reputation.NewCache(nil, cfg.ReputationCacheTTL, log), func() {}
	}

	return reputation.NewCache(client, cfg.ReputationCacheTTL, log), func() {
		if err := client.Close(); err != nil {
			log.Warn("failed to close redis", zap.Error(err))
		}
	}
}

func newReputationProvider(cfg *config.Config, cache *reputation.Cache, m *metrics.Metrics, log *zap.Logger) *reputation.CachedProvider {
	static := reputation.NewStaticProvider(cfg.DefaultCountry)
	if cfg.ReputationAPIURL == "" {
		log.Warn("REPUTATION_API_URL not set, using built-in reputation data")
		return reputation.NewCachedProvider(static, nil, cache, m, log)
	}

	api := reputation.NewHTTPProvider(cfg.ReputationAPIURL, cfg.ReputationAPIKey, cfg.ReputationRPS, cfg.ReputationTimeout, log)
	return reputation.NewCachedProvider(api, static, cache, m, log)
}

func newNotifier(cfg *config.Config, log *zap.Logger) (notify.Notifier, func()) {
	brokers := cfg.Brokers()
	if len(brokers) == 0 {
		log.Warn("KAFKA_BROKERS not set, operator alerts go to the log")
		return notify.NewLogNotifier(log), func() {}
	}

	n := notify.NewKafkaNotifier(brokers, cfg.AlertTopic, log)
	return n, func() {
		if err := n.Close(); err != nil {
			log.Warn("failed to close kafka writer", zap.Error(err))
		}
	}
}
