package main // Entry point package

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/matvey1347srgtjh/uchebnaia-practika/internal/config"
	"github.com/matvey1347srgtjh/uchebnaia-practika/internal/database"
	"github.com/matvey1347srgtjh/uchebnaia-practika/internal/handler"
	"github.com/matvey1347srgtjh/uchebnaia-practika/internal/queue"
	"github.com/matvey1347srgtjh/uchebnaia-practika/internal/repository"
	"github.com/matvey1347srgtjh/uchebnaia-practika/internal/router"
	"github.com/matvey1347srgtjh/uchebnaia-practika/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("config: .env not loaded: %v", err)
	}
	cfg := config.Load()
	resCfg, err := config.LoadReservationConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	evCfg := config.LoadEventsConfig()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if cfg.Env == "dev" {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	db, err := database.OpenDriver(database.Params{
		Driver:     cfg.DBDriver,
		User:       cfg.DBUser,
		Pass:       cfg.DBPass,
		Host:       cfg.DBHost,
		Port:       cfg.DBPort,
		Name:       cfg.DBName,
		SQLitePath: cfg.SQLitePath,
	})
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb == nil {
		log.Printf("redis: unavailable; rate limiting in process, session cache off")
	} else {
		defer rdb.Close()
	}

	var events service.EventPublisher
	if evCfg.Enabled {
		events = service.NewAMQPPublisher(evCfg.URL)
	}

	tickets := repository.NewTicketRepo(db)
	sessions := repository.NewSessionRepo(db)
	engine := service.NewEngine(tickets, sessions, service.Options{
		HoldTTL:      resCfg.HoldTTL,
		CodeAttempts: resCfg.CodeAttempts,
		Events:       events,
		Logger:       logger,
	})
	projector := service.NewProjector(tickets, sessions, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if resCfg.ReaperEnabled {
		reaper := service.NewReaper(tickets, service.ReaperOptions{
			Interval: resCfg.ReaperInterval,
			Events:   events,
			Logger:   logger.With("component", "reaper"),
		})
		go reaper.Run(ctx)
		log.Printf("reaper: sweeping every %s", reaper.Interval())
	}
	if evCfg.ConsumerEnabled {
		consumer := queue.NewConsumer(evCfg.URL, evCfg.LogDir)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("ticket-consumer: stopped: %v", err)
			}
		}()
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	deps := router.Deps{
		DB:        db,
		Sessions:  handler.NewSessionHandler(sessions, engine, projector),
		Booking:   handler.NewBookingHandler(engine),
		JWTSecret: cfg.JWTSecret,
		Redis:     rdb,
		RateLimit: config.LoadRateLimitConfig(),
		HoldLimit: config.LoadHoldRateLimitConfig(),
		Cache:     config.LoadCacheConfig(),
	}
	router.RegisterRoutes(e, deps)
	router.RegisterCustomer(e, deps)

	addr := ":" + cfg.Port
	go func() {
		log.Printf("listening on %s (env=%s, driver=%s, hold_ttl=%s)", addr, cfg.Env, cfg.DBDriver, engine.HoldTTL())
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
