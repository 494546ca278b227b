package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/yourorg/stock-trader/internal/domain"
)

type StockRepo struct {
	db *sqlx.DB
}

func NewStockRepo(db *sqlx.DB) *StockRepo {
	return &StockRepo{db: db}
}

func (r *StockRepo) Create(ctx context.Context, s *domain.Stock) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	query := `
		INSERT INTO stocks (id, symbol, name, price, volume)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, s.ID, s.Symbol, s.Name, s.Price, s.Volume).
		Scan(&s.CreatedAt, &s.UpdatedAt)
	return translateErr(err)
}

func (r *StockRepo) List(ctx context.Context) ([]domain.Stock, error) {
	var stocks []domain.Stock
	err := r.db.SelectContext(ctx, &stocks, `SELECT * FROM stocks ORDER BY symbol`)
	if err != nil {
		return nil, err
	}
	return stocks, nil
}

func (r *StockRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Stock, error) {
	var s domain.Stock
	err := r.db.GetContext(ctx, &s, `SELECT * FROM stocks WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("stock by id: %w", translateErr(err))
	}
	return &s, nil
}

func (r *StockRepo) GetByIDForUpdateTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*domain.Stock, error) {
	var s domain.Stock
	err := tx.GetContext(ctx, &s, `SELECT * FROM stocks WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return nil, fmt.Errorf("stock by id: %w", translateErr(err))
	}
	return &s, nil
}

func (r *StockRepo) UpdateVolumeTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, volume decimal.Decimal) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE stocks SET volume = $1, updated_at = NOW() WHERE id = $2`,
		volume, id)
	return err
}

func (r *StockRepo) Update(ctx context.Context, s *domain.Stock) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE stocks
		SET symbol = $1, name = $2, price = $3, volume = $4, updated_at = NOW()
		WHERE id = $5`,
		s.Symbol, s.Name, s.Price, s.Volume, s.ID)
	if err != nil {
		return translateErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListForUpdateTx locks every stock row for the pricing feed's batch update.
func (r *StockRepo) ListForUpdateTx(ctx context.Context, tx *sqlx.Tx) ([]domain.Stock, error) {
	var stocks []domain.Stock
	err := tx.SelectContext(ctx, &stocks, `SELECT * FROM stocks ORDER BY symbol FOR UPDATE`)
	if err != nil {
		return nil, err
	}
	return stocks, nil
}

func (r *StockRepo) UpdatePriceTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, price decimal.Decimal) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE stocks SET price = $1, updated_at = NOW() WHERE id = $2`,
		price, id)
	return err
}

// CountReferencesTx counts holdings and orders that point at the stock;
// deletion is refused while any exist. Terminal orders count too: they are
// audit history and keep a foreign key to the stock.
func (r *StockRepo) CountReferencesTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (int64, error) {
	var n int64
	err := tx.GetContext(ctx, &n, `
		SELECT (SELECT COUNT(*) FROM holdings WHERE stock_id = $1)
		     + (SELECT COUNT(*) FROM orders WHERE stock_id = $1)`,
		id)
	return n, err
}

func (r *StockRepo) DeleteTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM stocks WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
