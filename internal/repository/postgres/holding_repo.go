package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/yourorg/stock-trader/internal/domain"
)

type HoldingRepo struct {
	db *sqlx.DB
}

func NewHoldingRepo(db *sqlx.DB) *HoldingRepo {
	return &HoldingRepo{db: db}
}

func (r *HoldingRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Holding, error) {
	var holdings []domain.Holding
	err := r.db.SelectContext(ctx, &holdings, `
		SELECT h.* FROM holdings h
		JOIN stocks s ON s.id = h.stock_id
		WHERE h.user_id = $1
		ORDER BY s.symbol`, userID)
	if err != nil {
		return nil, err
	}
	return holdings, nil
}

// GetForUpdateTx returns nil, nil when no holding exists for the pair.
func (r *HoldingRepo) GetForUpdateTx(ctx context.Context, tx *sqlx.Tx, userID, stockID uuid.UUID) (*domain.Holding, error) {
	var h domain.Holding
	err := tx.GetContext(ctx, &h,
		`SELECT * FROM holdings WHERE user_id = $1 AND stock_id = $2 FOR UPDATE`,
		userID, stockID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &h, nil
}

func (r *HoldingRepo) InsertTx(ctx context.Context, tx *sqlx.Tx, userID, stockID uuid.UUID, qty decimal.Decimal) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO holdings (id, user_id, stock_id, quantity)
		VALUES ($1, $2, $3, $4)`,
		uuid.New(), userID, stockID, qty)
	return err
}

func (r *HoldingRepo) UpdateQuantityTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, qty decimal.Decimal) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE holdings SET quantity = $1, updated_at = NOW() WHERE id = $2`,
		qty, id)
	return err
}

func (r *HoldingRepo) DeleteTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM holdings WHERE id = $1`, id)
	return err
}
