package trading

import (
	"fmt"
	"math"

	"paper-trader/apperr"
	"paper-trader/models"

	"github.com/shopspring/decimal"
)

var maxQuantity = decimal.NewFromInt(math.MaxInt64)

// ParseQuantity accepts only positive whole numbers.
func ParseQuantity(q decimal.Decimal) (int64, error) {
	if !q.IsPositive() || !q.IsInteger() || q.GreaterThan(maxQuantity) {
		return 0, fmt.Errorf("%s: %w", q, apperr.ErrInvalidQuantity)
	}
	return q.IntPart(), nil
}

// MaxAffordable is the largest whole quantity cash buys at price.
func MaxAffordable(cash, price decimal.Decimal) int64 {
	if !cash.IsPositive() || !price.IsPositive() {
		return 0
	}
	q, _ := cash.QuoRem(price, 0)
	return q.IntPart()
}

// Validate checks req against the user's cash and the quantity held in
// req.Symbol, in rule order: quantity, side, symbol, price, then funds for a
// buy or shares for a sell. It returns the whole quantity to trade.
func Validate(req Request, cash decimal.Decimal, held int64) (int64, error) {
	qty, err := ParseQuantity(req.Quantity)
	if err != nil {
		return 0, err
	}
	if !req.Side.Valid() {
		return 0, fmt.Errorf("%q: %w", req.Side, apperr.ErrInvalidSide)
	}
	if req.Symbol == "" {
		return 0, fmt.Errorf("empty symbol: %w", apperr.ErrInvalidQuery)
	}
	if !req.Price.IsPositive() {
		return 0, fmt.Errorf("%s: %w", req.Price, apperr.ErrInvalidPrice)
	}

	switch req.Side {
	case models.Buy:
		if qty > math.MaxInt64-held {
			return 0, fmt.Errorf("%d more than %d held: %w", qty, held, apperr.ErrInvalidQuantity)
		}
		cost := req.Price.Mul(decimal.NewFromInt(qty))
		if cost.GreaterThan(cash) {
			return 0, &apperr.RejectionError{
				Reason:      apperr.ErrInsufficientFunds,
				MaxQuantity: MaxAffordable(cash, req.Price),
			}
		}
	case models.Sell:
		if qty > held {
			return 0, &apperr.RejectionError{
				Reason:      apperr.ErrInsufficientShares,
				MaxQuantity: held,
			}
		}
	}
	return qty, nil
}

// AverageCost is the quantity-weighted mean of the held position and a buy
// of qty at price.
func AverageCost(held int64, avgCost decimal.Decimal, qty int64, price decimal.Decimal) decimal.Decimal {
	if held == 0 {
		return price
	}
	return avgCost.Mul(decimal.NewFromInt(held)).
		Add(price.Mul(decimal.NewFromInt(qty))).
		Div(decimal.NewFromInt(held + qty))
}
