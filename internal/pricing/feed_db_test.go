package pricing

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yourorg/stock-trader/internal/domain"
	pgRepo "github.com/yourorg/stock-trader/internal/repository/postgres"
	redisRepo "github.com/yourorg/stock-trader/internal/repository/redis"
)

func TestTickBatch(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	redisURL := os.Getenv("TEST_REDIS_URL")
	if dsn == "" || redisURL == "" {
		t.Skip("TEST_DATABASE_URL or TEST_REDIS_URL not set")
	}
	db, err := pgRepo.Connect(dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := pgRepo.RunMigrations(dsn, "../../migrations"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	redisClient, err := redisRepo.Connect(redisURL)
	if err != nil {
		t.Fatalf("redis connect: %v", err)
	}
	t.Cleanup(func() { redisClient.Close() })

	ctx := context.Background()
	stocks := pgRepo.NewStockRepo(db)
	stock := &domain.Stock{
		Symbol: "K" + uuid.NewString()[:8],
		Name:   "Tick Target",
		Price:  decimal.RequireFromString("50.00"),
		Volume: decimal.RequireFromString("100"),
	}
	if err := stocks.Create(ctx, stock); err != nil {
		t.Fatalf("create stock: %v", err)
	}

	prices := redisRepo.NewPriceRepo(redisClient)
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	feed := NewFeed(db, stocks, prices, DefaultInterval, DefaultDrift, logger)

	if err := feed.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}

	got, err := stocks.GetByID(ctx, stock.ID)
	if err != nil {
		t.Fatalf("get stock: %v", err)
	}
	floor := decimal.RequireFromString("0.01")
	if got.Price.LessThan(floor) {
		t.Errorf("ticked price %s below floor", got.Price)
	}
	ratio, _ := got.Price.Div(stock.Price).Float64()
	if ratio < 1-noiseSpan || ratio > 1+noiseSpan+2*DefaultDrift {
		t.Errorf("ticked price %s moved outside the drift bounds (ratio %v)", got.Price, ratio)
	}
	if got.Price.Exponent() < -2 {
		t.Errorf("ticked price %s has more than 2 decimal places", got.Price)
	}

	tick, err := prices.GetLastPrice(ctx, stock.Symbol)
	if err != nil {
		t.Fatalf("get last price: %v", err)
	}
	if tick == nil {
		t.Fatal("no tick published to redis")
	}
	if !tick.Price.Equal(got.Price) {
		t.Errorf("published price %s != stored price %s", tick.Price, got.Price)
	}
}
