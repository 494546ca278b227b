package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/yourorg/stock-trader/internal/auth"
	"github.com/yourorg/stock-trader/internal/execution"
	"github.com/yourorg/stock-trader/internal/funds"
	"github.com/yourorg/stock-trader/internal/gateway"
	"github.com/yourorg/stock-trader/internal/market"
	"github.com/yourorg/stock-trader/internal/position"
	"github.com/yourorg/stock-trader/internal/pricing"
	pgRepo "github.com/yourorg/stock-trader/internal/repository/postgres"
	redisRepo "github.com/yourorg/stock-trader/internal/repository/redis"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	dbURL := os.Getenv("DATABASE_URL")
	redisURL := os.Getenv("REDIS_URL")
	jwtSecret := os.Getenv("JWT_SECRET")
	adminKey := os.Getenv("ADMIN_REGISTRATION_KEY")
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	feedInterval := pricing.DefaultInterval
	if v := os.Getenv("PRICE_FEED_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			feedInterval = d
		}
	}
	feedDrift := pricing.DefaultDrift
	if v := os.Getenv("PRICE_FEED_DRIFT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			feedDrift = f
		}
	}

	db, err := pgRepo.Connect(dbURL)
	if err != nil {
		logger.Error("failed to connect to database", "err", err)
		os.Exit(1)
	}
	logger.Info("database connected")

	if err := pgRepo.RunMigrations(dbURL, "migrations"); err != nil {
		logger.Error("failed to run migrations", "err", err)
		os.Exit(1)
	}
	logger.Info("migrations applied")

	redisClient, err := redisRepo.Connect(redisURL)
	if err != nil {
		logger.Error("failed to connect to redis", "err", err)
		os.Exit(1)
	}
	logger.Info("redis connected")

	userRepo := pgRepo.NewUserRepo(db)
	stockRepo := pgRepo.NewStockRepo(db)
	holdingRepo := pgRepo.NewHoldingRepo(db)
	orderRepo := pgRepo.NewOrderRepo(db)
	txRepo := pgRepo.NewTransactionRepo(db)
	methodRepo := pgRepo.NewPaymentMethodRepo(db)
	priceRepo := redisRepo.NewPriceRepo(redisClient)

	jwtSvc := auth.NewJWTService(jwtSecret)

	positions := position.NewManager(holdingRepo)
	orderSvc := execution.NewOrderService(db, userRepo, stockRepo, orderRepo, txRepo, positions)
	fundsSvc := funds.NewService(db, userRepo, txRepo, methodRepo)
	catalog := market.NewCatalog(db, stockRepo)

	hub := gateway.NewHub(priceRepo, logger)
	feed := pricing.NewFeed(db, stockRepo, priceRepo, feedInterval, feedDrift, logger)

	handlers := gateway.NewHandlers(
		userRepo, holdingRepo, catalog, orderSvc, fundsSvc, jwtSvc, adminKey, logger,
	)
	router := gateway.NewRouter(handlers, hub, jwtSvc)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go hub.Run(ctx)
	go feed.Run(ctx)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "err", err)
	}
	logger.Info("server stopped")
}
