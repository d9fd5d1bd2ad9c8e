package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	alertsvc "github.com/ridewell/alertcast-backend/internal/alerts"
	"github.com/ridewell/alertcast-backend/internal/audience"
	"github.com/ridewell/alertcast-backend/internal/delivery"
	"github.com/ridewell/alertcast-backend/internal/notifications"
	"github.com/ridewell/alertcast-backend/internal/users"
	"github.com/ridewell/alertcast-backend/pkg/config"
	"github.com/ridewell/alertcast-backend/pkg/db"
	"github.com/ridewell/alertcast-backend/pkg/dedupe"
	"github.com/ridewell/alertcast-backend/pkg/logger"
	"github.com/ridewell/alertcast-backend/pkg/metrics"
	"github.com/ridewell/alertcast-backend/pkg/migrate"
	"github.com/ridewell/alertcast-backend/pkg/pubsub"
	"github.com/ridewell/alertcast-backend/pkg/push"
	"github.com/ridewell/alertcast-backend/pkg/queue"
	"github.com/ridewell/alertcast-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	guard, err := dedupe.NewGuard(redisClient, cfg.Delivery.DedupeTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create dedupe guard", err)
		os.Exit(1)
	}

	pushOpts := []push.Option{}
	if cfg.Push.BaseURL != "" {
		pushOpts = append(pushOpts, push.WithBaseURL(cfg.Push.BaseURL))
	}
	if cfg.Push.Timeout > 0 {
		pushOpts = append(pushOpts, push.WithHTTPClient(&http.Client{Timeout: cfg.Push.Timeout}))
	}
	pushClient, err := push.NewClient(cfg.Push.ServerKey, pushOpts...)
	if err != nil {
		logg.Error(context.Background(), "failed to create push client", err)
		os.Exit(1)
	}

	deliveryMetrics := metrics.NewDeliveryMetrics(prometheus.DefaultRegisterer)

	usersRepo := users.NewRepository(dbClient.DB())
	resolver, err := audience.NewResolver(usersRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create audience resolver", err)
		os.Exit(1)
	}

	dispatcher, err := delivery.NewDispatcher(pushClient, usersRepo, guard, deliveryMetrics, logg, delivery.DispatcherOptions{
		BatchSize:     cfg.Delivery.BatchSize,
		BatchDelay:    cfg.Delivery.BatchDelay,
		EvictionLimit: cfg.Delivery.EvictionLimit,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create push dispatcher", err)
		os.Exit(1)
	}

	var limiter *rate.Limiter
	if cfg.Delivery.InAppPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Delivery.InAppPerSec), cfg.Delivery.InAppPerSec)
	}
	fanout, err := delivery.NewFanout(notifications.NewRepository(dbClient.DB()), guard, limiter, deliveryMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create in-app fanout", err)
		os.Exit(1)
	}

	var events delivery.LifecyclePublisher
	if cfg.PubSub.Enabled {
		pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub client", err)
			}
		}()
		publisher, err := pubsub.NewEventPublisher(pubsubClient, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to create event publisher", err)
			os.Exit(1)
		}
		events = publisher
	}

	alertsRepo := alertsvc.NewRepository(dbClient.DB())
	processor, err := delivery.NewProcessor(dbClient, alertsRepo, resolver, dispatcher, fanout, events, deliveryMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create delivery processor", err)
		os.Exit(1)
	}

	service, err := NewService(ServiceParams{
		Config:    cfg,
		Logger:    logg,
		DB:        dbClient,
		Redis:     redisClient,
		Jobs:      queue.NewRepository(dbClient.DB()),
		Alerts:    alertsRepo,
		Processor: processor,
		Metrics:   deliveryMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create worker", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": "worker",
	})
	logg.Info(ctx, "starting delivery worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "worker shutting down gracefully")
}
