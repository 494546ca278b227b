package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourorg/stock-trader/internal/auth"
	"github.com/yourorg/stock-trader/internal/domain"
	"github.com/yourorg/stock-trader/internal/execution"
	"github.com/yourorg/stock-trader/internal/funds"
	"github.com/yourorg/stock-trader/internal/market"
	pgRepo "github.com/yourorg/stock-trader/internal/repository/postgres"
)

// startingFunds is the simulated balance every new customer begins with.
var startingFunds = decimal.NewFromInt(10000)

type Handlers struct {
	userRepo    *pgRepo.UserRepo
	holdingRepo *pgRepo.HoldingRepo
	catalog     *market.Catalog
	orderSvc    *execution.OrderService
	fundsSvc    *funds.Service
	jwtSvc      *auth.JWTService
	adminKey    string
	logger      *slog.Logger
}

func NewHandlers(
	userRepo *pgRepo.UserRepo,
	holdingRepo *pgRepo.HoldingRepo,
	catalog *market.Catalog,
	orderSvc *execution.OrderService,
	fundsSvc *funds.Service,
	jwtSvc *auth.JWTService,
	adminKey string,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		userRepo:    userRepo,
		holdingRepo: holdingRepo,
		catalog:     catalog,
		orderSvc:    orderSvc,
		fundsSvc:    fundsSvc,
		jwtSvc:      jwtSvc,
		adminKey:    adminKey,
		logger:      logger,
	}
}

type registerRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	AdminKey string `json:"admin_key,omitempty"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user"`
}

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	h.register(w, r, domain.RoleCustomer)
}

// AdminRegister creates an admin account when the shared admin key matches.
func (h *Handlers) AdminRegister(w http.ResponseWriter, r *http.Request) {
	h.register(w, r, domain.RoleAdmin)
}

func (h *Handlers) register(w http.ResponseWriter, r *http.Request, role domain.Role) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}
	if role == domain.RoleAdmin && req.AdminKey != h.adminKey {
		writeError(w, http.StatusForbidden, "invalid admin key")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), 12)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	user := &domain.User{
		FullName:     req.FullName,
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         role,
		Funds:        startingFunds,
	}
	if role == domain.RoleAdmin {
		user.Funds = decimal.Zero
	}
	if err := h.userRepo.Create(r.Context(), user); err != nil {
		if errors.Is(err, domain.ErrDuplicateEmail) {
			writeError(w, http.StatusConflict, "email already registered")
			return
		}
		h.logger.Error("create user failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	token, err := h.jwtSvc.Sign(user.ID, user.Role)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to sign token")
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: user})
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := h.userRepo.GetByEmail(r.Context(), req.Email)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	token, err := h.jwtSvc.Sign(user.ID, user.Role)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to sign token")
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

func (h *Handlers) GetProfile(w http.ResponseWriter, r *http.Request) {
	user, err := h.userRepo.GetByID(r.Context(), auth.UserIDFromCtx(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handlers) ListMarket(w http.ResponseWriter, r *http.Request) {
	stocks, err := h.catalog.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch market")
		return
	}
	writeJSON(w, http.StatusOK, stocks)
}

func (h *Handlers) GetHoldings(w http.ResponseWriter, r *http.Request) {
	holdings, err := h.holdingRepo.ListByUser(r.Context(), auth.UserIDFromCtx(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch holdings")
		return
	}
	writeJSON(w, http.StatusOK, holdings)
}

type placeOrderRequest struct {
	StockID  uuid.UUID        `json:"stock_id"`
	Side     domain.OrderSide `json:"side"`
	Quantity decimal.Decimal  `json:"quantity"`
}

func (h *Handlers) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	order, err := h.orderSvc.Place(r.Context(), auth.UserIDFromCtx(r.Context()), req.StockID, req.Side, req.Quantity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (h *Handlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orderSvc.ListByUser(r.Context(), auth.UserIDFromCtx(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch orders")
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := h.ownedOrder(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handlers) SettleOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := h.ownedOrder(w, r)
	if !ok {
		return
	}
	settled, err := h.orderSvc.Settle(r.Context(), order.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settled)
}

func (h *Handlers) CancelOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := h.ownedOrder(w, r)
	if !ok {
		return
	}
	canceled, err := h.orderSvc.Cancel(r.Context(), order.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, canceled)
}

// ownedOrder resolves the {id} path param and rejects orders that belong to a
// different user.
func (h *Handlers) ownedOrder(w http.ResponseWriter, r *http.Request) (*domain.Order, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return nil, false
	}
	order, err := h.orderSvc.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	if order.UserID != auth.UserIDFromCtx(r.Context()) {
		writeError(w, http.StatusNotFound, "order not found")
		return nil, false
	}
	return order, true
}

func (h *Handlers) ListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.fundsSvc.ListTransactions(r.Context(), auth.UserIDFromCtx(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch transactions")
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

type depositRequest struct {
	Amount          decimal.Decimal `json:"amount"`
	PaymentMethodID *uuid.UUID      `json:"payment_method_id,omitempty"`
}

func (h *Handlers) Deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	record, err := h.fundsSvc.Deposit(r.Context(), auth.UserIDFromCtx(r.Context()), req.Amount, req.PaymentMethodID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

type withdrawRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (h *Handlers) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	record, err := h.fundsSvc.Withdraw(r.Context(), auth.UserIDFromCtx(r.Context()), req.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

type addPaymentMethodRequest struct {
	Brand       domain.CardBrand `json:"brand"`
	Last4       string           `json:"last4"`
	ExpMonth    int              `json:"exp_month"`
	ExpYear     int              `json:"exp_year"`
	Token       string           `json:"token"`
	MakeDefault bool             `json:"make_default"`
}

func (h *Handlers) AddPaymentMethod(w http.ResponseWriter, r *http.Request) {
	var req addPaymentMethodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Last4) != 4 {
		writeError(w, http.StatusBadRequest, "last4 must be 4 digits")
		return
	}
	pm := &domain.PaymentMethod{
		UserID:   auth.UserIDFromCtx(r.Context()),
		Brand:    req.Brand,
		Last4:    req.Last4,
		ExpMonth: req.ExpMonth,
		ExpYear:  req.ExpYear,
		Token:    req.Token,
	}
	if err := h.fundsSvc.AddPaymentMethod(r.Context(), pm, req.MakeDefault); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, pm)
}

func (h *Handlers) ListPaymentMethods(w http.ResponseWriter, r *http.Request) {
	methods, err := h.fundsSvc.ListPaymentMethods(r.Context(), auth.UserIDFromCtx(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch payment methods")
		return
	}
	writeJSON(w, http.StatusOK, methods)
}

func (h *Handlers) SetDefaultPaymentMethod(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid payment method id")
		return
	}
	if err := h.fundsSvc.SetDefaultPaymentMethod(r.Context(), auth.UserIDFromCtx(r.Context()), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) RemovePaymentMethod(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid payment method id")
		return
	}
	if err := h.fundsSvc.RemovePaymentMethod(r.Context(), auth.UserIDFromCtx(r.Context()), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type stockRequest struct {
	Symbol string          `json:"symbol"`
	Name   string          `json:"name"`
	Price  decimal.Decimal `json:"price"`
	Volume decimal.Decimal `json:"volume"`
}

func (h *Handlers) CreateStock(w http.ResponseWriter, r *http.Request) {
	var req stockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	stock, err := h.catalog.Create(r.Context(), req.Symbol, req.Name, req.Price, req.Volume)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, stock)
}

func (h *Handlers) UpdateStock(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid stock id")
		return
	}
	var req stockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	stock, err := h.catalog.Update(r.Context(), id, req.Symbol, req.Name, req.Price, req.Volume)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stock)
}

func (h *Handlers) DeleteStock(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid stock id")
		return
	}
	if err := h.catalog.Delete(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// statusForError maps the service error taxonomy onto HTTP statuses:
// validation problems are 400, missing entities 404, state conflicts 409.
func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidSide),
		errors.Is(err, domain.ErrNoPaymentMethod):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrOrderNotPending),
		errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrInsufficientVolume),
		errors.Is(err, domain.ErrInsufficientShares),
		errors.Is(err, domain.ErrDuplicateSymbol),
		errors.Is(err, domain.ErrDuplicateEmail),
		errors.Is(err, domain.ErrStockInUse):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, statusForError(err), err.Error())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
