// Package pricing runs the simulated market: a background feed that drifts
// every stock's price on a fixed cadence.
package pricing

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/yourorg/stock-trader/internal/domain"
	pgRepo "github.com/yourorg/stock-trader/internal/repository/postgres"
	redisRepo "github.com/yourorg/stock-trader/internal/repository/redis"
)

const (
	// DefaultInterval is the tick cadence of the feed.
	DefaultInterval = 30 * time.Second
	// DefaultDrift is the constant per-tick bias, a gentle upward pull.
	DefaultDrift = 0.0005
	// noiseSpan bounds the uniform per-tick noise to [-noiseSpan, +noiseSpan].
	noiseSpan = 0.01
)

// priceFloor keeps a stock from drifting to zero.
var priceFloor = decimal.New(1, -2)

type Feed struct {
	db       *sqlx.DB
	stocks   *pgRepo.StockRepo
	prices   *redisRepo.PriceRepo
	interval time.Duration
	drift    float64
	rng      *rand.Rand
	logger   *slog.Logger
}

func NewFeed(db *sqlx.DB, stocks *pgRepo.StockRepo, prices *redisRepo.PriceRepo, interval time.Duration, drift float64, logger *slog.Logger) *Feed {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Feed{
		db:       db,
		stocks:   stocks,
		prices:   prices,
		interval: interval,
		drift:    drift,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:   logger,
	}
}

// Run ticks until ctx is canceled. A failed tick is logged and the next one
// runs on schedule regardless; the feed never propagates errors into request
// handling.
func (f *Feed) Run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.safeTick(ctx); err != nil {
				f.logger.Error("price tick failed", "err", err)
			}
		}
	}
}

func (f *Feed) safeTick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panicked: %v", r)
		}
	}()
	return f.Tick(ctx)
}

// Tick applies one batch of drifted prices to every stock as a single unit of
// work, then publishes the new ticks for websocket subscribers.
func (f *Feed) Tick(ctx context.Context) error {
	tx, err := f.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stocks, err := f.stocks.ListForUpdateTx(ctx, tx)
	if err != nil {
		return fmt.Errorf("list stocks: %w", err)
	}

	ticks := make([]domain.PriceTick, 0, len(stocks))
	now := time.Now()
	for _, stock := range stocks {
		noise := f.rng.Float64()*2*noiseSpan - noiseSpan
		newPrice := NextPrice(stock.Price, noise, f.drift)
		if err := f.stocks.UpdatePriceTx(ctx, tx, stock.ID, newPrice); err != nil {
			return fmt.Errorf("update price for %s: %w", stock.Symbol, err)
		}
		ticks = append(ticks, domain.PriceTick{
			Symbol:    stock.Symbol,
			Price:     newPrice,
			Timestamp: now,
		})
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	// Publish only after commit so subscribers never see an uncommitted price.
	for _, tick := range ticks {
		if err := f.prices.Publish(ctx, tick); err != nil {
			f.logger.Error("failed to publish price tick", "symbol", tick.Symbol, "err", err)
		}
	}
	return nil
}

// NextPrice computes one drifted step: old * (1 + noise + drift), rounded to
// 2 decimals and floored at 0.01.
func NextPrice(old decimal.Decimal, noise, drift float64) decimal.Decimal {
	factor := decimal.NewFromFloat(1 + noise + drift)
	next := domain.RoundMoney(old.Mul(factor))
	if next.LessThan(priceFloor) {
		return priceFloor
	}
	return next
}
