package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/betx/exchange-engine/internal/bet"
	"github.com/betx/exchange-engine/internal/config"
	"github.com/betx/exchange-engine/internal/events"
	"github.com/betx/exchange-engine/internal/exposure"
	"github.com/betx/exchange-engine/internal/feed"
	"github.com/betx/exchange-engine/internal/gate"
	"github.com/betx/exchange-engine/internal/settlement"
	"github.com/betx/exchange-engine/internal/store"
)

func main() {
	cfg, err := config.LoadAndValidate()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.Database.URL != "" {
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		if cfg.Database.Migrate {
			if err := store.Migrate(ctx, pool); err != nil {
				slog.Error("database migration failed", "err", err)
				os.Exit(1)
			}
		}
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// Placement and settlement share one gate so a settlement run freezes
	// the event's ledger.
	eventGate := gate.New()

	// --- Exposure ---
	limiter := exposure.NewLimiter(cfg.Limits.MaxPerMarket, cfg.Limits.MaxPerEvent)
	agg := exposure.NewAggregator(st, limiter)

	// --- WebSocket hub ---
	// Outlives the signal context so requests still draining can broadcast.
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	wsHub := bet.NewWSHub()
	go wsHub.Run(hubCtx)

	opts := []bet.Option{bet.WithLogger(logger)}
	notifiers := []settlement.Notifier{wsHub}

	// --- Kafka ---
	if cfg.Kafka.Brokers != "" {
		w := events.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		cleanup = append(cleanup, func() { w.Close() })
		publisher := events.NewKafkaPublisher(w)
		opts = append(opts, bet.WithPublisher(publisher))
		notifiers = append(notifiers, publisher)
		slog.Info("publishing bet events to Kafka", "topic", cfg.Kafka.Topic)
	}

	// --- Settlement ---
	var scheduler *settlement.Scheduler
	if cfg.Feed.BaseURL != "" {
		var source feed.Source = feed.NewClient(cfg.Feed.BaseURL,
			feed.WithTimeout(cfg.Feed.Timeout),
			feed.WithRetries(cfg.Feed.MaxRetries, cfg.Feed.RetryBackoff),
			feed.WithPaths(cfg.Feed.FeedPaths()),
			feed.WithLogger(logger),
		)

		// Cache decided results in Redis if configured.
		if cfg.Redis.URL != "" {
			opt, err := redis.ParseURL(cfg.Redis.URL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			source = feed.NewCachedFeed(source, rdb, cfg.Redis.ResultTTL, logger)
			slog.Info("Redis results cache enabled")
		}

		fetcher := feed.NewFetcher(source, feed.FetcherConfig{
			BatchSize:    cfg.Feed.BatchSize,
			BatchTimeout: cfg.Feed.BatchTimeout,
			Concurrency:  cfg.Feed.Concurrency,
		}, logger)
		engine := settlement.NewEngine(st, fetcher, eventGate, logger, notifiers...)
		opts = append(opts, bet.WithSettler(engine))

		if !cfg.Settlement.Disabled {
			scheduler = settlement.NewScheduler(settlement.SchedulerConfig{
				Interval:   cfg.Settlement.Interval,
				RunTimeout: cfg.Settlement.RunTimeout,
			}, engine, st, logger)
			if err := scheduler.Start(ctx); err != nil {
				slog.Error("start settlement scheduler", "err", err)
				os.Exit(1)
			}
		}
	} else {
		slog.Warn("FEED_BASE_URL not set, settlement disabled")
	}

	// --- Bet service ---
	betSvc := bet.NewService(st, agg, eventGate, wsHub, opts...)

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      newRouter(wsHub, betSvc, 30*time.Second),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("exchange-engine listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	slog.Info("shutting down exchange-engine...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	if scheduler != nil {
		if err := scheduler.Stop(shutdownCtx); err != nil {
			slog.Error("scheduler stop error", "err", err)
		}
	}
	stopHub()
	fmt.Println("exchange-engine stopped")
}
