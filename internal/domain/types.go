package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

type OrderStatus string

const (
	StatusPending  OrderStatus = "PENDING"
	StatusExecuted OrderStatus = "EXECUTED"
	StatusCanceled OrderStatus = "CANCELED"
)

type TxType string

const (
	TxBuy      TxType = "BUY"
	TxSell     TxType = "SELL"
	TxDeposit  TxType = "DEPOSIT"
	TxWithdraw TxType = "WITHDRAW"
)

type CardBrand string

const (
	BrandVisa       CardBrand = "visa"
	BrandMastercard CardBrand = "mastercard"
	BrandAmex       CardBrand = "amex"
	BrandDiscover   CardBrand = "discover"
)

// ValidBrand reports whether b is one of the supported card brands.
func ValidBrand(b CardBrand) bool {
	switch b {
	case BrandVisa, BrandMastercard, BrandAmex, BrandDiscover:
		return true
	}
	return false
}

// RoundMoney rounds a monetary amount to 2 decimal places.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// RoundQuantity rounds a share quantity to 6 decimal places.
func RoundQuantity(d decimal.Decimal) decimal.Decimal {
	return d.Round(6)
}

type User struct {
	ID           uuid.UUID       `db:"id"            json:"id"`
	FullName     string          `db:"full_name"     json:"full_name"`
	Email        string          `db:"email"         json:"email"`
	PasswordHash string          `db:"password_hash" json:"-"`
	Role         Role            `db:"role"          json:"role"`
	Funds        decimal.Decimal `db:"funds"         json:"funds"`
	CreatedAt    time.Time       `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"    json:"updated_at"`
}

type Stock struct {
	ID        uuid.UUID       `db:"id"         json:"id"`
	Symbol    string          `db:"symbol"     json:"symbol"`
	Name      string          `db:"name"       json:"name"`
	Price     decimal.Decimal `db:"price"      json:"price"`
	Volume    decimal.Decimal `db:"volume"     json:"volume"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

type Holding struct {
	ID        uuid.UUID       `db:"id"         json:"id"`
	UserID    uuid.UUID       `db:"user_id"    json:"user_id"`
	StockID   uuid.UUID       `db:"stock_id"   json:"stock_id"`
	Quantity  decimal.Decimal `db:"quantity"   json:"quantity"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

type Order struct {
	ID          uuid.UUID       `db:"id"           json:"id"`
	UserID      uuid.UUID       `db:"user_id"      json:"user_id"`
	StockID     uuid.UUID       `db:"stock_id"     json:"stock_id"`
	Side        OrderSide       `db:"side"         json:"side"`
	Quantity    decimal.Decimal `db:"quantity"     json:"quantity"`
	PriceLocked decimal.Decimal `db:"price_locked" json:"price_locked"`
	Status      OrderStatus     `db:"status"       json:"status"`
	ExecutedAt  *time.Time      `db:"executed_at"  json:"executed_at,omitempty"`
	CanceledAt  *time.Time      `db:"canceled_at"  json:"canceled_at,omitempty"`
	CreatedAt   time.Time       `db:"created_at"   json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"   json:"updated_at"`
}

type Transaction struct {
	ID           int64           `db:"id"            json:"id"`
	UserID       uuid.UUID       `db:"user_id"       json:"user_id"`
	Type         TxType          `db:"tx_type"       json:"type"`
	Amount       decimal.Decimal `db:"amount"        json:"amount"`
	BalanceAfter decimal.Decimal `db:"balance_after" json:"balance_after"`
	Note         string          `db:"note"          json:"note"`
	CreatedAt    time.Time       `db:"created_at"    json:"created_at"`
}

type PaymentMethod struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	UserID    uuid.UUID `db:"user_id"    json:"user_id"`
	Brand     CardBrand `db:"brand"      json:"brand"`
	Last4     string    `db:"last4"      json:"last4"`
	ExpMonth  int       `db:"exp_month"  json:"exp_month"`
	ExpYear   int       `db:"exp_year"   json:"exp_year"`
	IsDefault bool      `db:"is_default" json:"is_default"`
	Token     string    `db:"token"      json:"-"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type PriceTick struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}
