package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"simoj/internal/common/cache"
	"simoj/internal/common/db"
	commonmw "simoj/internal/common/http/middleware"
	"simoj/internal/common/mq"
	"simoj/internal/finalize/controller"
	"simoj/internal/finalize/repository"
	"simoj/internal/finalize/service"
	"simoj/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	defaultConfigPath = "configs/finalizer_service.yaml"
	readinessTimeout  = 2 * time.Second
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	checks := readinessChecks{}

	store, closeStore, err := openStore(appCfg, checks)
	if err != nil {
		logger.Error(context.Background(), "init submission store failed", zap.Error(err), zap.String("driver", appCfg.Store.Driver))
		return
	}
	defer closeStore()

	var cacheClient cache.Cache
	if appCfg.RedisEnabled() {
		redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
		if err != nil {
			logger.Error(context.Background(), "init redis failed", zap.Error(err))
			return
		}
		defer func() {
			_ = redisCache.Close()
		}()
		cacheClient = redisCache
		checks["redis"] = redisCache.Ping
	}
	finalCache := repository.NewFinalCache(store, cacheClient, appCfg.Finalize.FinalCacheTTL, appCfg.Finalize.FinalCacheEmptyTTL)

	var mqClient *mq.KafkaQueue
	var publisher service.FinalChangedPublisher
	if appCfg.KafkaEnabled() {
		mqClient, err = mq.NewKafkaQueue(appCfg.Kafka)
		if err != nil {
			logger.Error(context.Background(), "init kafka failed", zap.Error(err))
			return
		}
		defer func() {
			_ = mqClient.Close()
		}()
		publisher = service.NewMQFinalChangedPublisher(mqClient, appCfg.Topics.FinalChanged)
		checks["kafka"] = mqClient.Ping
	}

	finalizer, err := service.NewFinalizerService(service.Config{
		Store:            store,
		Cache:            finalCache,
		Publisher:        publisher,
		Metrics:          service.NewMetrics(prometheus.DefaultRegisterer),
		MaxRetries:       appCfg.Finalize.MaxRetries,
		RetryBaseDelay:   appCfg.Finalize.RetryBaseDelay,
		RetryMaxDelay:    appCfg.Finalize.RetryMaxDelay,
		VerifyInvariants: *appCfg.Finalize.VerifyInvariants,
	})
	if err != nil {
		logger.Error(context.Background(), "init finalizer failed", zap.Error(err))
		return
	}

	reselect, err := service.NewReselectJob(finalizer, service.ReselectConfig{
		Concurrency:   appCfg.Finalize.Reselect.Concurrency,
		RatePerSecond: appCfg.Finalize.Reselect.RatePerSecond,
		Burst:         appCfg.Finalize.Reselect.Burst,
	})
	if err != nil {
		logger.Error(context.Background(), "init reselect job failed", zap.Error(err))
		return
	}

	if mqClient != nil {
		if err := subscribeEvents(appCfg, mqClient, finalizer, reselect, prometheus.DefaultRegisterer); err != nil {
			logger.Error(context.Background(), "subscribe events failed", zap.Error(err))
			return
		}
		if err := mqClient.Start(); err != nil {
			logger.Error(context.Background(), "start kafka consumer failed", zap.Error(err))
			return
		}
	} else {
		logger.Warn(context.Background(), "kafka brokers not configured, event consumers disabled")
	}

	httpServer := buildHTTPServer(appCfg.Server, finalizer, reselect, checks)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(context.Background(), "init http listener failed", zap.Error(err))
		return
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "finalizer http server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error(context.Background(), "http server shutdown failed", zap.Error(err))
	}
	if mqClient != nil {
		_ = mqClient.Stop()
	}
}

// openStore builds the configured submission store and returns its closer.
func openStore(cfg *AppConfig, checks readinessChecks) (repository.SubmissionStore, func(), error) {
	switch cfg.Store.Driver {
	case storeDriverMySQL:
		mysqlDB, err := db.NewMySQLWithConfig(&cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		checks["database"] = mysqlDB.Ping
		return repository.NewMySQLSubmissionStore(db.NewStaticProvider(mysqlDB)), func() { _ = mysqlDB.Close() }, nil
	case storeDriverGormMySQL, storeDriverSQLite:
		gcfg := repository.GormConfig{Driver: "mysql", DSN: cfg.Database.DSN, LogSQL: cfg.Store.LogSQL}
		if cfg.Store.Driver == storeDriverSQLite {
			gcfg = repository.GormConfig{Driver: "sqlite", DSN: cfg.Store.SQLitePath, LogSQL: cfg.Store.LogSQL}
		}
		gdb, err := repository.OpenGorm(gcfg)
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, nil, err
		}
		closer := func() { _ = sqlDB.Close() }
		checks["database"] = sqlDB.PingContext
		store := repository.NewGormSubmissionStore(gdb)
		if cfg.Store.AutoMigrate || cfg.Store.Driver == storeDriverSQLite {
			if err := store.AutoMigrate(); err != nil {
				closer()
				return nil, nil, fmt.Errorf("auto migrate: %w", err)
			}
		}
		return store, closer, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
}

func subscribeEvents(cfg *AppConfig, queue mq.MessageQueue, finalizer *service.FinalizerService, reselect *service.ReselectJob, reg prometheus.Registerer) error {
	consumer, err := service.NewEventConsumer(finalizer, reselect)
	if err != nil {
		return err
	}
	limiter := mq.NewTokenLimiter(cfg.Finalize.MaxInflight)
	registerConsumerSlots(reg, limiter)

	submissionOpts := cfg.SubmissionConsumer.toSubscribeOptions(limiter)
	if err := queue.SubscribeWithOptions(context.Background(), cfg.Topics.SubmissionEvents, consumer.HandleSubmissionMessage, &submissionOpts); err != nil {
		return fmt.Errorf("subscribe %s: %w", cfg.Topics.SubmissionEvents, err)
	}
	contestOpts := cfg.ContestProblemConsumer.toSubscribeOptions(limiter)
	if err := queue.SubscribeWithOptions(context.Background(), cfg.Topics.ContestProblemEvents, consumer.HandleContestProblemMessage, &contestOpts); err != nil {
		return fmt.Errorf("subscribe %s: %w", cfg.Topics.ContestProblemEvents, err)
	}
	return nil
}

// registerConsumerSlots exports the free in-flight slots shared by both consumers.
func registerConsumerSlots(reg prometheus.Registerer, limiter *mq.TokenLimiter) prometheus.GaugeFunc {
	return promauto.With(reg).NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "finalize_consumer_slots_available",
			Help: "Free in-flight message slots shared by the event consumers.",
		},
		func() float64 { return float64(limiter.Available()) },
	)
}

func buildHTTPServer(cfg ServerConfig, finalizer *service.FinalizerService, reselect *service.ReselectJob, checks readinessChecks) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(commonmw.AccessLog())

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	router.GET("/readyz", checks.handler)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1/finalize")
	controller.NewFinalizeController(finalizer, reselect).RegisterRoutes(api)

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

// readinessChecks maps a dependency name to its ping.
type readinessChecks map[string]func(ctx context.Context) error

func (r readinessChecks) handler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	failed := map[string]string{}
	for name, ping := range r {
		if err := ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		logger.Warn(c.Request.Context(), "readiness check failed", zap.Any("failed", failed))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "failed": failed})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
