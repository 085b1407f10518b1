package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"paper-trader/cache"
	"paper-trader/config"
	"paper-trader/database"
	"paper-trader/gateway"
	"paper-trader/handlers"
	"paper-trader/history"
	"paper-trader/ledger"
	"paper-trader/logger"
	"paper-trader/market"
	"paper-trader/middleware"
	"paper-trader/portfolio"
	"paper-trader/scheduler"
	"paper-trader/trading"

	"github.com/gin-gonic/gin"
)

func main() {
	path := os.Getenv("PAPER_TRADER_CONFIG")
	if path == "" {
		path = "config.toml"
	}

	cfg, err := config.Load(path)
	if err != nil {
		l := logger.New(logger.Config{})
		l.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log := logger.New(logger.Config{Level: cfg.Logging.Level, Pretty: cfg.Logging.Pretty})
	logger.SetGlobalLogger(log)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	startingCash, _ := cfg.StartingCash()

	log.Info().Msg("Starting paper trader")

	// Initialize PostgreSQL and Redis connections.
	db, err := config.OpenDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to get database instance")
	}
	defer sqlDB.Close()

	if err := database.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	rdb, err := config.OpenRedis(pingCtx, cfg.Redis)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to redis")
	}
	defer rdb.Close()

	gw := gateway.New(cfg.Gateway.Channels,
		gateway.WithBaseURL(cfg.Gateway.BaseURL),
		gateway.WithTimeout(cfg.Gateway.GetTimeout()),
		gateway.WithLimiter(gateway.NewLimiter(cfg.Gateway.RequestsPerWindow, cfg.Gateway.GetWindow())),
		gateway.WithLogger(log),
	)
	marketSvc := market.NewService(gw, cache.NewPriceCache(rdb, cfg.Redis.GetPriceTTL()), log)
	historyClient := history.NewClient(cfg.History.BaseURL, cfg.History.APIKey,
		history.WithTimeout(cfg.History.GetTimeout()),
		history.WithRateLimit(cfg.History.RateLimit),
		history.WithLogger(log),
	)
	store := ledger.New(db, startingCash)
	executor := trading.NewExecutor(store, log)
	valuer := portfolio.NewService(store, marketSvc, log)

	sched := scheduler.New(log)
	if err := sched.AddJob(cfg.Scheduler.SnapshotCron, scheduler.NewNetWorthSnapshotJob(valuer, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register jobs")
	}
	sched.Start()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(log))

	h := handlers.New(handlers.Deps{
		Market:    marketSvc,
		History:   historyClient,
		Ledger:    store,
		Portfolio: valuer,
		Trader:    executor,
		Budget:    gw,
	}, cfg.Server.GetRequestTimeout(), log)
	h.Register(router, middleware.JWTAuth(cfg.Auth.JWTSecret))

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()
	log.Info().Str("port", cfg.Server.Port).Msg("Server started")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server stopped")
}
