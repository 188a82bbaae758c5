package main

import (
	"context"
	"log"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shortlink/pkg/cache"
	"shortlink/pkg/config"
	"shortlink/pkg/http"
	"shortlink/pkg/limiter"
	"shortlink/pkg/logging"
	"shortlink/pkg/middleware"
	"shortlink/pkg/service"
	"shortlink/pkg/session"
	"shortlink/pkg/storage"
	"shortlink/pkg/worker"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfgStore, err := config.Load(".")
	if err != nil {
		log.Fatal(err)
	}
	cfg := cfgStore.Snapshot()
	if cfg.JWTSecret == "" {
		log.Fatal("jwt_secret must be configured")
	}

	logger := logging.NewLogger(logging.LogLevel(os.Getenv("LOG_LEVEL")))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Postgres pool: bounded connections, bounded acquisition.
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	poolCfg.MaxConns = cfg.DBMaxConns
	poolCfg.ConnConfig.ConnectTimeout = cfg.PoolTimeout
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal(err)
	}
	opt.PoolSize = cfg.RedisPoolSize
	opt.PoolTimeout = cfg.PoolTimeout
	redisClient := redis.NewClient(opt)
	defer redisClient.Close()

	linkCache := cache.NewLinkCache(redisClient)
	linkStore := storage.NewPostgresLinkStore(pool)
	userStore := storage.NewPostgresUserStore(pool)
	sessions := session.NewManager(redisClient)
	lim := limiter.NewLimiter(redisClient)

	dispatcher := worker.NewDispatcher(cfg.QueueCapacity, cfg.WorkerConcurrency, logger)
	go dispatcher.Run(ctx)

	linkService := service.NewLinkService(linkStore, linkCache, dispatcher, cfgStore, logger)
	userService := service.NewUserService(userStore, sessions, lim, cfgStore, logger)
	synchronizer := service.NewSynchronizer(linkStore, linkStore, linkCache, cfgStore, logger)

	scheduler := worker.NewScheduler(dispatcher, logger)
	go scheduler.RunPeriodic(ctx, worker.KindSyncClicks,
		func() time.Duration { return cfgStore.Snapshot().SyncClicksInterval },
		synchronizer.SyncClicks)
	go scheduler.RunPeriodic(ctx, worker.KindDrainVisits,
		func() time.Duration { return cfgStore.Snapshot().DrainVisitsInterval },
		synchronizer.DrainVisits)
	go scheduler.RunPeriodic(ctx, worker.KindPurgeExpired,
		func() time.Duration { return cfgStore.Snapshot().PurgeExpiredInterval },
		synchronizer.PurgeExpired)

	auth := middleware.NewAuth(sessions, userStore, cfgStore, logger)
	rateLimit := middleware.NewRateLimit(lim, cfgStore, logger)
	handler := http.NewHandler(linkService, userService)

	r := chi.NewRouter()
	http.SetupRoutes(r, handler, auth, rateLimit)

	srv := &stdhttp.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("Starting server on %s", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
	dispatcher.Wait()
}
