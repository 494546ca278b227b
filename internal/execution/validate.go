package execution

import (
	"github.com/shopspring/decimal"

	"github.com/yourorg/stock-trader/internal/domain"
)

func validatePlacement(side domain.OrderSide, qty decimal.Decimal) error {
	if qty.Sign() <= 0 {
		return domain.ErrInvalidQuantity
	}
	switch side {
	case domain.SideBuy, domain.SideSell:
	default:
		return domain.ErrInvalidSide
	}
	return nil
}
