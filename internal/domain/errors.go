package domain

import "errors"

// Sentinel errors surfaced by the service layer. Handlers map these to HTTP
// statuses; the reason text is what callers show to the user.
var (
	ErrInvalidQuantity    = errors.New("quantity must be greater than zero")
	ErrInvalidAmount      = errors.New("amount must be greater than zero")
	ErrInvalidSide        = errors.New("invalid order side")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientVolume = errors.New("insufficient market volume")
	ErrInsufficientShares = errors.New("not enough shares")
	ErrOrderNotPending    = errors.New("not pending")
	ErrNoPaymentMethod    = errors.New("no payment method on file")
	ErrNotFound           = errors.New("not found")
	ErrDuplicateSymbol    = errors.New("symbol already exists")
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrStockInUse         = errors.New("stock has holdings or orders")
)
