// Package position applies quantity deltas to a user's holdings inside a
// caller-owned transaction.
package position

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/yourorg/stock-trader/internal/domain"
	pgRepo "github.com/yourorg/stock-trader/internal/repository/postgres"
)

type Manager struct {
	holdings *pgRepo.HoldingRepo
}

func NewManager(holdings *pgRepo.HoldingRepo) *Manager {
	return &Manager{holdings: holdings}
}

// Adjust adds delta shares of a stock to the user's holding. A holding whose
// quantity falls to zero or below is deleted rather than kept empty.
//
// Precondition: callers passing a negative delta must have verified the user
// holds at least -delta shares. Adjust performs no sufficiency check; with no
// existing holding and delta <= 0 it is a no-op.
func (m *Manager) Adjust(ctx context.Context, tx *sqlx.Tx, userID, stockID uuid.UUID, delta decimal.Decimal) error {
	holding, err := m.holdings.GetForUpdateTx(ctx, tx, userID, stockID)
	if err != nil {
		return fmt.Errorf("get holding: %w", err)
	}

	if holding == nil {
		if delta.Sign() <= 0 {
			return nil
		}
		return m.holdings.InsertTx(ctx, tx, userID, stockID, domain.RoundQuantity(delta))
	}

	newQty := domain.RoundQuantity(holding.Quantity.Add(delta))
	if newQty.Sign() <= 0 {
		return m.holdings.DeleteTx(ctx, tx, holding.ID)
	}
	return m.holdings.UpdateQuantityTx(ctx, tx, holding.ID, newQty)
}

// Quantity reports how many shares the user currently holds, zero when none,
// locking the holding row for the rest of the transaction.
func (m *Manager) Quantity(ctx context.Context, tx *sqlx.Tx, userID, stockID uuid.UUID) (decimal.Decimal, error) {
	holding, err := m.holdings.GetForUpdateTx(ctx, tx, userID, stockID)
	if err != nil {
		return decimal.Zero, err
	}
	if holding == nil {
		return decimal.Zero, nil
	}
	return holding.Quantity, nil
}
