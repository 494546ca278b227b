// Package market exposes the stock catalog: customers read it, admins edit it.
package market

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/yourorg/stock-trader/internal/domain"
	pgRepo "github.com/yourorg/stock-trader/internal/repository/postgres"
)

type Catalog struct {
	db     *sqlx.DB
	stocks *pgRepo.StockRepo
}

func NewCatalog(db *sqlx.DB, stocks *pgRepo.StockRepo) *Catalog {
	return &Catalog{db: db, stocks: stocks}
}

func (c *Catalog) List(ctx context.Context) ([]domain.Stock, error) {
	return c.stocks.List(ctx)
}

func (c *Catalog) Get(ctx context.Context, id uuid.UUID) (*domain.Stock, error) {
	return c.stocks.GetByID(ctx, id)
}

func (c *Catalog) Create(ctx context.Context, symbol, name string, price, volume decimal.Decimal) (*domain.Stock, error) {
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if price.Sign() <= 0 {
		return nil, fmt.Errorf("price must be greater than zero")
	}
	if volume.Sign() < 0 {
		return nil, fmt.Errorf("volume must not be negative")
	}
	stock := &domain.Stock{
		Symbol: symbol,
		Name:   name,
		Price:  domain.RoundMoney(price),
		Volume: domain.RoundQuantity(volume),
	}
	if err := c.stocks.Create(ctx, stock); err != nil {
		return nil, err
	}
	return stock, nil
}

func (c *Catalog) Update(ctx context.Context, id uuid.UUID, symbol, name string, price, volume decimal.Decimal) (*domain.Stock, error) {
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if price.Sign() <= 0 {
		return nil, fmt.Errorf("price must be greater than zero")
	}
	if volume.Sign() < 0 {
		return nil, fmt.Errorf("volume must not be negative")
	}
	stock, err := c.stocks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	stock.Symbol = symbol
	stock.Name = name
	stock.Price = domain.RoundMoney(price)
	stock.Volume = domain.RoundQuantity(volume)
	if err := c.stocks.Update(ctx, stock); err != nil {
		return nil, err
	}
	return stock, nil
}

// Delete refuses to remove a stock that holdings or orders still reference.
// Cascading would silently destroy customer positions and audit history.
func (c *Catalog) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	refs, err := c.stocks.CountReferencesTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if refs > 0 {
		return domain.ErrStockInUse
	}
	if err := c.stocks.DeleteTx(ctx, tx, id); err != nil {
		return err
	}
	return tx.Commit()
}
