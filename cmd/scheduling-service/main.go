package main

import (
	"context"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/trainwell/scheduling-engine/internal/availability"
	"github.com/trainwell/scheduling-engine/internal/config"
	"github.com/trainwell/scheduling-engine/internal/db"
	"github.com/trainwell/scheduling-engine/internal/handlers"
	"github.com/trainwell/scheduling-engine/internal/httpx"
	"github.com/trainwell/scheduling-engine/internal/kafkax"
	"github.com/trainwell/scheduling-engine/internal/noshow"
	"github.com/trainwell/scheduling-engine/internal/otelx"
	"github.com/trainwell/scheduling-engine/internal/outbox"
	"github.com/trainwell/scheduling-engine/internal/payments"
	"github.com/trainwell/scheduling-engine/internal/redisx"
	"github.com/trainwell/scheduling-engine/internal/runtime"
	"github.com/trainwell/scheduling-engine/internal/settlement"
	"github.com/trainwell/scheduling-engine/internal/storage"
)

func main() {
	_ = godotenv.Load()

	service := config.String("SERVICE_NAME", "scheduling-engine")
	port, err := config.Port("PORT", "8090")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr: config.String("REDIS_ADDR", "localhost:6379"),
	})
	defer rdb.Close()

	repo := storage.New(pool)
	outboxRepo := outbox.NewRepository(pool)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go outboxPublisher.Run(ctx)

	sweepLock := redisx.NewLocker(rdb, "scheduling:noshow-sweep",
		config.Duration("NOSHOW_SWEEP_LOCK_TTL", time.Minute))
	reconciler := noshow.New(repo, outboxRepo, sweepLock, logger, noshow.Config{
		Interval:  config.Duration("NOSHOW_SWEEP_INTERVAL", 5*time.Minute),
		BatchSize: config.Int("NOSHOW_SWEEP_BATCH_SIZE", 200),
	})
	go reconciler.Run(ctx)

	stripeKey := config.String("STRIPE_SECRET_KEY", "")
	if stripeKey == "" {
		logger.Warn("STRIPE_SECRET_KEY not set, card charges will fail")
	}
	charger := payments.NewStripeCharger(stripeKey, logger)

	settle := settlement.New(repo, charger, outboxRepo, logger)
	generator := availability.NewGenerator(repo)

	mux := runtime.NewBaseMux(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "redis", Check: httpx.RedisReadyCheck(rdb)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	handlers.New(generator, settle, reconciler, logger).Register(mux)

	limiter := httpx.NewRedisRateLimiter(rdb,
		config.Int("RATE_LIMIT_REQUESTS", 120),
		config.Duration("RATE_LIMIT_WINDOW", time.Minute),
		"scheduling:rl",
	)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		limiter.Middleware(logger),
	)
	handler = otelhttp.NewHandler(handler, "scheduling")

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
