package execution

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/yourorg/stock-trader/internal/domain"
	"github.com/yourorg/stock-trader/internal/position"
	pgRepo "github.com/yourorg/stock-trader/internal/repository/postgres"
)

// These tests run against a throwaway postgres database and are skipped when
// TEST_DATABASE_URL is unset.
func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := pgRepo.Connect(dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := pgRepo.RunMigrations(dsn, "../../migrations"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

type testEnv struct {
	db        *sqlx.DB
	users     *pgRepo.UserRepo
	stocks    *pgRepo.StockRepo
	holdings  *pgRepo.HoldingRepo
	orders    *pgRepo.OrderRepo
	txs       *pgRepo.TransactionRepo
	positions *position.Manager
	svc       *OrderService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	users := pgRepo.NewUserRepo(db)
	stocks := pgRepo.NewStockRepo(db)
	holdings := pgRepo.NewHoldingRepo(db)
	orders := pgRepo.NewOrderRepo(db)
	txs := pgRepo.NewTransactionRepo(db)
	positions := position.NewManager(holdings)
	return &testEnv{
		db:        db,
		users:     users,
		stocks:    stocks,
		holdings:  holdings,
		orders:    orders,
		txs:       txs,
		positions: positions,
		svc:       NewOrderService(db, users, stocks, orders, txs, positions),
	}
}

func (e *testEnv) newUser(t *testing.T, funds string) *domain.User {
	t.Helper()
	u := &domain.User{
		FullName:     "Test Customer",
		Email:        fmt.Sprintf("cust-%s@example.com", uuid.NewString()),
		PasswordHash: "x",
		Role:         domain.RoleCustomer,
		Funds:        decimal.RequireFromString(funds),
	}
	if err := e.users.Create(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func (e *testEnv) newStock(t *testing.T, price, volume string) *domain.Stock {
	t.Helper()
	s := &domain.Stock{
		Symbol: "T" + uuid.NewString()[:8],
		Name:   "Test Stock",
		Price:  decimal.RequireFromString(price),
		Volume: decimal.RequireFromString(volume),
	}
	if err := e.stocks.Create(context.Background(), s); err != nil {
		t.Fatalf("create stock: %v", err)
	}
	return s
}

func (e *testEnv) holdingQty(t *testing.T, userID, stockID uuid.UUID) (decimal.Decimal, bool) {
	t.Helper()
	holdings, err := e.holdings.ListByUser(context.Background(), userID)
	if err != nil {
		t.Fatalf("list holdings: %v", err)
	}
	for _, h := range holdings {
		if h.StockID == stockID {
			return h.Quantity, true
		}
	}
	return decimal.Zero, false
}

func TestBuyThenSellRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := env.newUser(t, "10000.00")
	stock := env.newStock(t, "50.00", "100")

	buy, err := env.svc.Place(ctx, user.ID, stock.ID, domain.SideBuy, decimal.RequireFromString("10"))
	if err != nil {
		t.Fatalf("place buy: %v", err)
	}
	if buy.Status != domain.StatusPending {
		t.Errorf("placed order status = %s, want PENDING", buy.Status)
	}
	if !buy.PriceLocked.Equal(decimal.RequireFromString("50.00")) {
		t.Errorf("price_locked = %s, want 50.00", buy.PriceLocked)
	}

	settled, err := env.svc.Settle(ctx, buy.ID)
	if err != nil {
		t.Fatalf("settle buy: %v", err)
	}
	if settled.Status != domain.StatusExecuted {
		t.Errorf("settled order status = %s, want EXECUTED", settled.Status)
	}
	if settled.ExecutedAt == nil {
		t.Error("executed_at not stamped")
	}

	gotUser, err := env.users.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if !gotUser.Funds.Equal(decimal.RequireFromString("9500.00")) {
		t.Errorf("funds after buy = %s, want 9500.00", gotUser.Funds)
	}
	gotStock, err := env.stocks.GetByID(ctx, stock.ID)
	if err != nil {
		t.Fatalf("get stock: %v", err)
	}
	if !gotStock.Volume.Equal(decimal.RequireFromString("90")) {
		t.Errorf("volume after buy = %s, want 90", gotStock.Volume)
	}
	qty, ok := env.holdingQty(t, user.ID, stock.ID)
	if !ok || !qty.Equal(decimal.RequireFromString("10")) {
		t.Errorf("holding after buy = %s (present=%v), want 10", qty, ok)
	}

	txs, err := env.txs.ListByUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("transactions after buy = %d, want 1", len(txs))
	}
	if txs[0].Type != domain.TxBuy {
		t.Errorf("transaction type = %s, want BUY", txs[0].Type)
	}
	if !txs[0].Amount.Equal(decimal.RequireFromString("500.00")) {
		t.Errorf("transaction amount = %s, want 500.00", txs[0].Amount)
	}
	if !txs[0].BalanceAfter.Equal(gotUser.Funds) {
		t.Errorf("balance_after = %s, funds = %s; must match exactly", txs[0].BalanceAfter, gotUser.Funds)
	}

	sell, err := env.svc.Place(ctx, user.ID, stock.ID, domain.SideSell, decimal.RequireFromString("10"))
	if err != nil {
		t.Fatalf("place sell: %v", err)
	}
	if _, err := env.svc.Settle(ctx, sell.ID); err != nil {
		t.Fatalf("settle sell: %v", err)
	}

	gotUser, _ = env.users.GetByID(ctx, user.ID)
	if !gotUser.Funds.Equal(decimal.RequireFromString("10000.00")) {
		t.Errorf("funds after round trip = %s, want 10000.00", gotUser.Funds)
	}
	gotStock, _ = env.stocks.GetByID(ctx, stock.ID)
	if !gotStock.Volume.Equal(decimal.RequireFromString("100")) {
		t.Errorf("volume after round trip = %s, want 100", gotStock.Volume)
	}
	if _, ok := env.holdingQty(t, user.ID, stock.ID); ok {
		t.Error("holding still present after selling the full position")
	}

	txs, _ = env.txs.ListByUser(ctx, user.ID)
	if len(txs) != 2 {
		t.Fatalf("transactions after round trip = %d, want 2", len(txs))
	}
	// Most recent first.
	if txs[0].Type != domain.TxSell {
		t.Errorf("latest transaction type = %s, want SELL", txs[0].Type)
	}
	if !txs[0].BalanceAfter.Equal(decimal.RequireFromString("10000.00")) {
		t.Errorf("sell balance_after = %s, want 10000.00", txs[0].BalanceAfter)
	}
}

func TestSettleTwiceFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := env.newUser(t, "1000.00")
	stock := env.newStock(t, "10.00", "50")

	order, err := env.svc.Place(ctx, user.ID, stock.ID, domain.SideBuy, decimal.RequireFromString("5"))
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if _, err := env.svc.Settle(ctx, order.ID); err != nil {
		t.Fatalf("first settle: %v", err)
	}

	_, err = env.svc.Settle(ctx, order.ID)
	if !errors.Is(err, domain.ErrOrderNotPending) {
		t.Fatalf("second settle: got %v, want ErrOrderNotPending", err)
	}

	gotUser, _ := env.users.GetByID(ctx, user.ID)
	if !gotUser.Funds.Equal(decimal.RequireFromString("950.00")) {
		t.Errorf("funds after double settle = %s, want 950.00", gotUser.Funds)
	}
	txs, _ := env.txs.ListByUser(ctx, user.ID)
	if len(txs) != 1 {
		t.Errorf("transactions after double settle = %d, want 1", len(txs))
	}
}

func TestCancelIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := env.newUser(t, "1000.00")
	stock := env.newStock(t, "10.00", "50")

	order, err := env.svc.Place(ctx, user.ID, stock.ID, domain.SideBuy, decimal.RequireFromString("5"))
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	canceled, err := env.svc.Cancel(ctx, order.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if canceled.Status != domain.StatusCanceled {
		t.Errorf("status = %s, want CANCELED", canceled.Status)
	}
	if canceled.CanceledAt == nil {
		t.Error("canceled_at not stamped")
	}

	if _, err := env.svc.Settle(ctx, order.ID); !errors.Is(err, domain.ErrOrderNotPending) {
		t.Errorf("settle after cancel: got %v, want ErrOrderNotPending", err)
	}
	if _, err := env.svc.Cancel(ctx, order.ID); !errors.Is(err, domain.ErrOrderNotPending) {
		t.Errorf("cancel after cancel: got %v, want ErrOrderNotPending", err)
	}

	gotUser, _ := env.users.GetByID(ctx, user.ID)
	if !gotUser.Funds.Equal(decimal.RequireFromString("1000.00")) {
		t.Errorf("funds after cancel = %s, want 1000.00 (no economic effect)", gotUser.Funds)
	}
}

func TestSettleInsufficientFunds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := env.newUser(t, "100.00")
	stock := env.newStock(t, "50.00", "100")

	order, err := env.svc.Place(ctx, user.ID, stock.ID, domain.SideBuy, decimal.RequireFromString("10"))
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if _, err := env.svc.Settle(ctx, order.ID); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("settle: got %v, want ErrInsufficientFunds", err)
	}

	// A failed settlement mutates nothing and the order stays PENDING.
	got, _ := env.svc.Get(ctx, order.ID)
	if got.Status != domain.StatusPending {
		t.Errorf("status after failed settle = %s, want PENDING", got.Status)
	}
	gotUser, _ := env.users.GetByID(ctx, user.ID)
	if !gotUser.Funds.Equal(decimal.RequireFromString("100.00")) {
		t.Errorf("funds changed by failed settle: %s", gotUser.Funds)
	}
	txs, _ := env.txs.ListByUser(ctx, user.ID)
	if len(txs) != 0 {
		t.Errorf("failed settle produced %d transactions", len(txs))
	}
}

func TestSettleInsufficientVolume(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := env.newUser(t, "100000.00")
	stock := env.newStock(t, "50.00", "5")

	order, err := env.svc.Place(ctx, user.ID, stock.ID, domain.SideBuy, decimal.RequireFromString("10"))
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if _, err := env.svc.Settle(ctx, order.ID); !errors.Is(err, domain.ErrInsufficientVolume) {
		t.Fatalf("settle: got %v, want ErrInsufficientVolume", err)
	}
	gotStock, _ := env.stocks.GetByID(ctx, stock.ID)
	if !gotStock.Volume.Equal(decimal.RequireFromString("5")) {
		t.Errorf("volume changed by failed settle: %s", gotStock.Volume)
	}
}

func TestSellWithoutShares(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := env.newUser(t, "1000.00")
	stock := env.newStock(t, "50.00", "100")

	order, err := env.svc.Place(ctx, user.ID, stock.ID, domain.SideSell, decimal.RequireFromString("1"))
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if _, err := env.svc.Settle(ctx, order.ID); !errors.Is(err, domain.ErrInsufficientShares) {
		t.Fatalf("settle: got %v, want ErrInsufficientShares", err)
	}
}

func TestPriceLockedAtPlacement(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := env.newUser(t, "10000.00")
	stock := env.newStock(t, "50.00", "100")

	order, err := env.svc.Place(ctx, user.ID, stock.ID, domain.SideBuy, decimal.RequireFromString("10"))
	if err != nil {
		t.Fatalf("place: %v", err)
	}

	// Market moves between placement and settlement.
	stock.Price = decimal.RequireFromString("75.00")
	if err := env.stocks.Update(ctx, stock); err != nil {
		t.Fatalf("update price: %v", err)
	}

	if _, err := env.svc.Settle(ctx, order.ID); err != nil {
		t.Fatalf("settle: %v", err)
	}
	gotUser, _ := env.users.GetByID(ctx, user.ID)
	if !gotUser.Funds.Equal(decimal.RequireFromString("9500.00")) {
		t.Errorf("funds = %s, want 9500.00 (trade at locked 50.00, not live 75.00)", gotUser.Funds)
	}
}

func TestPlaceRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := env.newUser(t, "1000.00")
	stock := env.newStock(t, "10.00", "10")

	if _, err := env.svc.Place(ctx, user.ID, stock.ID, domain.SideBuy, decimal.Zero); !errors.Is(err, domain.ErrInvalidQuantity) {
		t.Errorf("zero quantity: got %v, want ErrInvalidQuantity", err)
	}
	if _, err := env.svc.Place(ctx, user.ID, uuid.New(), domain.SideBuy, decimal.RequireFromString("1")); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown stock: got %v, want ErrNotFound", err)
	}
	if _, err := env.svc.Place(ctx, uuid.New(), stock.ID, domain.SideBuy, decimal.RequireFromString("1")); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown user: got %v, want ErrNotFound", err)
	}
}
