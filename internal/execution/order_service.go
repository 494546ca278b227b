// Package execution holds the order engine: placing trades at a locked price
// and settling or canceling them later against live account state.
package execution

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/yourorg/stock-trader/internal/domain"
	"github.com/yourorg/stock-trader/internal/position"
	pgRepo "github.com/yourorg/stock-trader/internal/repository/postgres"
)

type OrderService struct {
	db        *sqlx.DB
	userRepo  *pgRepo.UserRepo
	stockRepo *pgRepo.StockRepo
	orderRepo *pgRepo.OrderRepo
	txRepo    *pgRepo.TransactionRepo
	positions *position.Manager
}

func NewOrderService(
	db *sqlx.DB,
	userRepo *pgRepo.UserRepo,
	stockRepo *pgRepo.StockRepo,
	orderRepo *pgRepo.OrderRepo,
	txRepo *pgRepo.TransactionRepo,
	positions *position.Manager,
) *OrderService {
	return &OrderService{
		db:        db,
		userRepo:  userRepo,
		stockRepo: stockRepo,
		orderRepo: orderRepo,
		txRepo:    txRepo,
		positions: positions,
	}
}

// Place records a PENDING order priced at the stock's current market price.
// That snapshot is what settlement later trades at; intervening price ticks do
// not change the economics of an order already placed. No funds, volume, or
// holding is touched here.
func (s *OrderService) Place(ctx context.Context, userID, stockID uuid.UUID, side domain.OrderSide, qty decimal.Decimal) (*domain.Order, error) {
	qty = domain.RoundQuantity(qty)
	if err := validatePlacement(side, qty); err != nil {
		return nil, err
	}
	if _, err := s.userRepo.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	stock, err := s.stockRepo.GetByID(ctx, stockID)
	if err != nil {
		return nil, err
	}

	order := &domain.Order{
		UserID:      userID,
		StockID:     stockID,
		Side:        side,
		Quantity:    qty,
		PriceLocked: domain.RoundMoney(stock.Price),
		Status:      domain.StatusPending,
	}
	if err := s.orderRepo.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	return order, nil
}

// Settle applies a pending order's economic effect in a single transaction.
// Re-settling a non-pending order fails with ErrOrderNotPending and mutates
// nothing, so concurrent settlement attempts serialize on the order row lock
// and only the first one succeeds.
//
// Lock order is fixed (order, then user, then stock) so that concurrent
// settlements of different orders cannot deadlock.
func (s *OrderService) Settle(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	order, err := s.orderRepo.GetByIDForUpdateTx(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != domain.StatusPending {
		return nil, domain.ErrOrderNotPending
	}

	user, err := s.userRepo.GetByIDForUpdateTx(ctx, tx, order.UserID)
	if err != nil {
		return nil, err
	}
	stock, err := s.stockRepo.GetByIDForUpdateTx(ctx, tx, order.StockID)
	if err != nil {
		return nil, err
	}

	cost := domain.RoundMoney(order.PriceLocked.Mul(order.Quantity))

	var newFunds decimal.Decimal
	var txType domain.TxType
	switch order.Side {
	case domain.SideBuy:
		if stock.Volume.LessThan(order.Quantity) {
			return nil, domain.ErrInsufficientVolume
		}
		if user.Funds.LessThan(cost) {
			return nil, domain.ErrInsufficientFunds
		}
		newFunds = domain.RoundMoney(user.Funds.Sub(cost))
		txType = domain.TxBuy
		newVolume := domain.RoundQuantity(stock.Volume.Sub(order.Quantity))
		if err := s.stockRepo.UpdateVolumeTx(ctx, tx, stock.ID, newVolume); err != nil {
			return nil, fmt.Errorf("update volume: %w", err)
		}
		if err := s.positions.Adjust(ctx, tx, order.UserID, order.StockID, order.Quantity); err != nil {
			return nil, fmt.Errorf("adjust holding: %w", err)
		}
	case domain.SideSell:
		held, err := s.positions.Quantity(ctx, tx, order.UserID, order.StockID)
		if err != nil {
			return nil, fmt.Errorf("get holding: %w", err)
		}
		if held.LessThan(order.Quantity) {
			return nil, domain.ErrInsufficientShares
		}
		if err := s.positions.Adjust(ctx, tx, order.UserID, order.StockID, order.Quantity.Neg()); err != nil {
			return nil, fmt.Errorf("adjust holding: %w", err)
		}
		newVolume := domain.RoundQuantity(stock.Volume.Add(order.Quantity))
		if err := s.stockRepo.UpdateVolumeTx(ctx, tx, stock.ID, newVolume); err != nil {
			return nil, fmt.Errorf("update volume: %w", err)
		}
		newFunds = domain.RoundMoney(user.Funds.Add(cost))
		txType = domain.TxSell
	default:
		return nil, domain.ErrInvalidSide
	}

	if err := s.userRepo.UpdateFundsTx(ctx, tx, user.ID, newFunds); err != nil {
		return nil, fmt.Errorf("update funds: %w", err)
	}

	record := &domain.Transaction{
		UserID:       user.ID,
		Type:         txType,
		Amount:       cost,
		BalanceAfter: newFunds,
		Note:         fmt.Sprintf("%s %s %s @ %s", txType, order.Quantity, stock.Symbol, order.PriceLocked),
	}
	if err := s.txRepo.InsertTx(ctx, tx, record); err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}

	if err := s.orderRepo.MarkExecutedTx(ctx, tx, order.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return s.orderRepo.GetByID(ctx, order.ID)
}

// Cancel transitions a pending order to CANCELED. Nothing was applied at
// placement time, so there is no economic effect to reverse.
func (s *OrderService) Cancel(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	order, err := s.orderRepo.GetByIDForUpdateTx(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != domain.StatusPending {
		return nil, domain.ErrOrderNotPending
	}
	if err := s.orderRepo.MarkCanceledTx(ctx, tx, order.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return s.orderRepo.GetByID(ctx, order.ID)
}

func (s *OrderService) Get(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	return s.orderRepo.GetByID(ctx, orderID)
}

func (s *OrderService) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Order, error) {
	return s.orderRepo.ListByUser(ctx, userID)
}
