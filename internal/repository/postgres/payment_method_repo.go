package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/yourorg/stock-trader/internal/domain"
)

type PaymentMethodRepo struct {
	db *sqlx.DB
}

func NewPaymentMethodRepo(db *sqlx.DB) *PaymentMethodRepo {
	return &PaymentMethodRepo{db: db}
}

func (r *PaymentMethodRepo) InsertTx(ctx context.Context, tx *sqlx.Tx, pm *domain.PaymentMethod) error {
	if pm.ID == uuid.Nil {
		pm.ID = uuid.New()
	}
	query := `
		INSERT INTO payment_methods (id, user_id, brand, last4, exp_month, exp_year, is_default, token)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`
	return tx.QueryRowContext(ctx, query,
		pm.ID, pm.UserID, pm.Brand, pm.Last4, pm.ExpMonth, pm.ExpYear, pm.IsDefault, pm.Token).
		Scan(&pm.CreatedAt)
}

func (r *PaymentMethodRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.PaymentMethod, error) {
	var methods []domain.PaymentMethod
	err := r.db.SelectContext(ctx, &methods,
		`SELECT * FROM payment_methods WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	return methods, nil
}

// GetByIDForUpdateTx locks the card row so a concurrent removal cannot commit
// under a deposit that already resolved it.
func (r *PaymentMethodRepo) GetByIDForUpdateTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*domain.PaymentMethod, error) {
	var pm domain.PaymentMethod
	err := tx.GetContext(ctx, &pm, `SELECT * FROM payment_methods WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return nil, fmt.Errorf("payment method by id: %w", translateErr(err))
	}
	return &pm, nil
}

// GetDefaultForUpdateTx returns the user's default card under a row lock, or
// nil, nil when no default is on file.
func (r *PaymentMethodRepo) GetDefaultForUpdateTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) (*domain.PaymentMethod, error) {
	var pm domain.PaymentMethod
	err := tx.GetContext(ctx, &pm,
		`SELECT * FROM payment_methods WHERE user_id = $1 AND is_default FOR UPDATE`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &pm, nil
}

// OldestByUserTx returns the user's longest-held card, or nil, nil when the
// user has none.
func (r *PaymentMethodRepo) OldestByUserTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) (*domain.PaymentMethod, error) {
	var pm domain.PaymentMethod
	err := tx.GetContext(ctx, &pm,
		`SELECT * FROM payment_methods WHERE user_id = $1 ORDER BY created_at LIMIT 1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &pm, nil
}

func (r *PaymentMethodRepo) CountByUserTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) (int64, error) {
	var n int64
	err := tx.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM payment_methods WHERE user_id = $1`, userID)
	return n, err
}

// ClearDefaultTx drops the default flag from every card the user has; callers
// set the new default in the same transaction to keep the one-default invariant.
func (r *PaymentMethodRepo) ClearDefaultTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE payment_methods SET is_default = FALSE WHERE user_id = $1 AND is_default`,
		userID)
	return err
}

func (r *PaymentMethodRepo) SetDefaultTx(ctx context.Context, tx *sqlx.Tx, userID, id uuid.UUID) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE payment_methods SET is_default = TRUE WHERE id = $1 AND user_id = $2`,
		id, userID)
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

func (r *PaymentMethodRepo) DeleteTx(ctx context.Context, tx *sqlx.Tx, userID, id uuid.UUID) error {
	res, err := tx.ExecContext(ctx,
		`DELETE FROM payment_methods WHERE id = $1 AND user_id = $2`, id, userID)
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
