package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/yourorg/stock-trader/internal/domain"
)

type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	query := `
		INSERT INTO users (id, full_name, email, password_hash, role, funds)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query,
		u.ID, u.FullName, u.Email, u.PasswordHash, u.Role, u.Funds).
		Scan(&u.CreatedAt, &u.UpdatedAt)
	return translateErr(err)
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	err := r.db.GetContext(ctx, &u, `SELECT * FROM users WHERE email = $1`, email)
	if err != nil {
		return nil, fmt.Errorf("user by email: %w", translateErr(err))
	}
	return &u, nil
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var u domain.User
	err := r.db.GetContext(ctx, &u, `SELECT * FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("user by id: %w", translateErr(err))
	}
	return &u, nil
}

func (r *UserRepo) GetByIDForUpdateTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*domain.User, error) {
	var u domain.User
	err := tx.GetContext(ctx, &u, `SELECT * FROM users WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return nil, fmt.Errorf("user by id: %w", translateErr(err))
	}
	return &u, nil
}

func (r *UserRepo) UpdateFundsTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, funds decimal.Decimal) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE users SET funds = $1, updated_at = NOW() WHERE id = $2`,
		funds, id)
	return err
}
