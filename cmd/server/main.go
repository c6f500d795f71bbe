package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"clinic-queue/internal/clock"
	"clinic-queue/internal/config"
	"clinic-queue/internal/counter"
	"clinic-queue/internal/http/handler"
	"clinic-queue/internal/http/middleware"
	"clinic-queue/internal/queue"
	"clinic-queue/internal/realtime"
	"clinic-queue/internal/store"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

func main() {
	runtime.GOMAXPROCS(runtime.NumCPU())

	config.LoadEnv()
	cfg := config.Load()
	config.InitLogger(cfg.App.Name, cfg.App.Env, cfg.App.LogLevel)
	if cfg.JWT.Secret == "" {
		log.Warn().Msg("JWT_SECRET is empty, every authenticated request will be rejected")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, dialect, err := config.OpenDB(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()

	if err := store.Migrate(ctx, db, dialect); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}
	st := store.New(db, dialect, clock.Real())

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = config.NewRedis(ctx, cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("connect redis")
		}
		defer rdb.Close()
	}

	var alloc counter.Allocator
	switch cfg.Queue.CounterBackend {
	case "redis":
		if rdb == nil {
			log.Fatal().Msg("COUNTER_BACKEND=redis needs REDIS_ENABLED=true")
		}
		alloc = counter.NewRedis(rdb)
	default:
		alloc = counter.NewSQL(db, dialect)
	}

	extra, err := queue.ParseClasses(cfg.Queue.Classifications)
	if err != nil {
		log.Fatal().Err(err).Msg("parse CLASSIFICATIONS")
	}
	classes, err := queue.NewClassifier(extra...)
	if err != nil {
		log.Fatal().Err(err).Msg("build classifications")
	}

	broadcaster := realtime.NewBroadcaster(st, cfg.Queue.BroadcastDebounce)
	defer broadcaster.Close()

	var notifier realtime.Notifier = broadcaster
	if rdb != nil {
		relay := realtime.NewRelay(rdb, broadcaster, cfg.Redis.Channel)
		go func() {
			if err := relay.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("change relay stopped")
			}
		}()
		notifier = relay
	}

	svc := queue.NewService(st, alloc, classes, notifier)
	h := handler.New(svc, broadcaster, alloc, cfg.Queue, clock.Real())

	app := fiber.New(fiber.Config{
		AppName:       cfg.App.Name,
		Prefork:       false,
		CaseSensitive: true,
		StrictRouting: true,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.RequestLogger())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE",
	}))

	h.Register(app, cfg.JWT.Secret)

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error().Err(err).Msg("shutdown")
		}
	}()

	log.Info().Str("addr", cfg.App.Addr()).Str("db", dialect).
		Str("counter", cfg.Queue.CounterBackend).Bool("redis", rdb != nil).Msg("server starting")
	if err := app.Listen(cfg.App.Addr()); err != nil {
		log.Fatal().Err(err).Msg("listen")
	}
}
