// Package funds implements deposits and withdrawals of simulated cash, gated
// by an on-file payment method, plus payment method bookkeeping.
package funds

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/yourorg/stock-trader/internal/domain"
	pgRepo "github.com/yourorg/stock-trader/internal/repository/postgres"
)

type Service struct {
	db      *sqlx.DB
	users   *pgRepo.UserRepo
	txRepo  *pgRepo.TransactionRepo
	methods *pgRepo.PaymentMethodRepo
}

func NewService(db *sqlx.DB, users *pgRepo.UserRepo, txRepo *pgRepo.TransactionRepo, methods *pgRepo.PaymentMethodRepo) *Service {
	return &Service{db: db, users: users, txRepo: txRepo, methods: methods}
}

// Deposit credits funds through a payment method: the explicit one when an id
// is given (it must belong to the user), otherwise the user's default card.
// Without either, the deposit is rejected before any mutation.
func (s *Service) Deposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, methodID *uuid.UUID) (*domain.Transaction, error) {
	amount = domain.RoundMoney(amount)
	if amount.Sign() <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Resolve the card under the same transaction so a concurrent removal
	// cannot leave the deposit noting a card that no longer exists.
	method, err := s.resolveMethodTx(ctx, tx, userID, methodID)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByIDForUpdateTx(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	newFunds := domain.RoundMoney(user.Funds.Add(amount))
	if err := s.users.UpdateFundsTx(ctx, tx, user.ID, newFunds); err != nil {
		return nil, fmt.Errorf("update funds: %w", err)
	}

	record := &domain.Transaction{
		UserID:       user.ID,
		Type:         domain.TxDeposit,
		Amount:       amount,
		BalanceAfter: newFunds,
		Note:         fmt.Sprintf("deposit via %s ****%s", method.Brand, method.Last4),
	}
	if err := s.txRepo.InsertTx(ctx, tx, record); err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return record, nil
}

// Withdraw debits funds; the balance may never go below zero.
func (s *Service) Withdraw(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*domain.Transaction, error) {
	amount = domain.RoundMoney(amount)
	if amount.Sign() <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	user, err := s.users.GetByIDForUpdateTx(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if user.Funds.LessThan(amount) {
		return nil, domain.ErrInsufficientFunds
	}
	newFunds := domain.RoundMoney(user.Funds.Sub(amount))
	if err := s.users.UpdateFundsTx(ctx, tx, user.ID, newFunds); err != nil {
		return nil, fmt.Errorf("update funds: %w", err)
	}

	record := &domain.Transaction{
		UserID:       user.ID,
		Type:         domain.TxWithdraw,
		Amount:       amount,
		BalanceAfter: newFunds,
		Note:         "withdrawal",
	}
	if err := s.txRepo.InsertTx(ctx, tx, record); err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return record, nil
}

func (s *Service) ListTransactions(ctx context.Context, userID uuid.UUID) ([]domain.Transaction, error) {
	return s.txRepo.ListByUser(ctx, userID)
}

func (s *Service) resolveMethodTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, methodID *uuid.UUID) (*domain.PaymentMethod, error) {
	if methodID != nil {
		method, err := s.methods.GetByIDForUpdateTx(ctx, tx, *methodID)
		if err != nil {
			return nil, domain.ErrNoPaymentMethod
		}
		if method.UserID != userID {
			return nil, domain.ErrNoPaymentMethod
		}
		return method, nil
	}
	method, err := s.methods.GetDefaultForUpdateTx(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if method == nil {
		return nil, domain.ErrNoPaymentMethod
	}
	return method, nil
}

// AddPaymentMethod stores a card. The user's first card becomes the default;
// makeDefault promotes a later card, clearing the previous default in the same
// transaction so at most one default exists.
func (s *Service) AddPaymentMethod(ctx context.Context, pm *domain.PaymentMethod, makeDefault bool) error {
	if !domain.ValidBrand(pm.Brand) {
		return fmt.Errorf("unknown card brand %q", pm.Brand)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	count, err := s.methods.CountByUserTx(ctx, tx, pm.UserID)
	if err != nil {
		return err
	}
	pm.IsDefault = makeDefault || count == 0
	if pm.IsDefault {
		if err := s.methods.ClearDefaultTx(ctx, tx, pm.UserID); err != nil {
			return err
		}
	}
	if err := s.methods.InsertTx(ctx, tx, pm); err != nil {
		return fmt.Errorf("insert payment method: %w", err)
	}
	return tx.Commit()
}

func (s *Service) SetDefaultPaymentMethod(ctx context.Context, userID, methodID uuid.UUID) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.methods.ClearDefaultTx(ctx, tx, userID); err != nil {
		return err
	}
	if err := s.methods.SetDefaultTx(ctx, tx, userID, methodID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Service) ListPaymentMethods(ctx context.Context, userID uuid.UUID) ([]domain.PaymentMethod, error) {
	return s.methods.ListByUser(ctx, userID)
}

// RemovePaymentMethod deletes a card. When the deleted card was the default
// and other cards remain, the oldest remaining card is promoted in the same
// transaction, so a user with cards on file always has exactly one default.
func (s *Service) RemovePaymentMethod(ctx context.Context, userID, methodID uuid.UUID) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	method, err := s.methods.GetByIDForUpdateTx(ctx, tx, methodID)
	if err != nil {
		return err
	}
	if method.UserID != userID {
		return domain.ErrNotFound
	}
	if err := s.methods.DeleteTx(ctx, tx, userID, methodID); err != nil {
		return err
	}
	if method.IsDefault {
		next, err := s.methods.OldestByUserTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		if next != nil {
			if err := s.methods.SetDefaultTx(ctx, tx, userID, next.ID); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}
