package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"paper-trader/apperr"
	"paper-trader/gateway"
	"paper-trader/market"
	"paper-trader/middleware"
	"paper-trader/models"
	"paper-trader/trading"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type TradeInput struct {
	Symbol   string          `json:"symbol" binding:"required"`
	Side     models.Side     `json:"side" binding:"required"`
	Quantity decimal.Decimal `json:"quantity"`
}

type tradeView struct {
	State       trading.State    `json:"state"`
	CashBalance decimal.Decimal  `json:"cash_balance"`
	Holding     *holdingView     `json:"holding"`
	Transaction *transactionView `json:"transaction"`
}

// PlaceTrade fills a market order at the current quote. The quote comes
// from the trading channel and a failure to get one blocks the trade.
func (h *Handler) PlaceTrade(c *gin.Context) {
	var input TradeInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	// reject malformed orders before spending upstream budget on a quote
	if _, err := trading.ParseQuantity(input.Quantity); err != nil {
		h.fail(c, err)
		return
	}
	if !input.Side.Valid() {
		h.fail(c, apperr.ErrInvalidSide)
		return
	}
	symbol := market.NormalizeSymbol(input.Symbol)

	ctx, cancel := h.context(c)
	defer cancel()

	q, err := h.deps.Market.GetQuote(ctx, gateway.Trading, symbol)
	if err != nil {
		h.fail(c, fmt.Errorf("price %s: %w", symbol, err))
		return
	}

	res, err := h.deps.Trader.Execute(ctx, trading.Request{
		UserID:   middleware.UserID(c),
		Symbol:   symbol,
		Side:     input.Side,
		Quantity: input.Quantity,
		Price:    decimal.NewFromFloat(q.Current),
	})
	if err != nil {
		var rej *apperr.RejectionError
		if errors.As(err, &rej) {
			_ = c.Error(err)
			c.AbortWithStatusJSON(apperr.HTTPStatus(err), gin.H{
				"error":        rej.Reason.Error(),
				"state":        trading.Rejected,
				"max_quantity": rej.MaxQuantity,
			})
			return
		}
		h.fail(c, err)
		return
	}

	view := tradeView{State: res.State}
	if res.Portfolio != nil {
		view.CashBalance = money(res.Portfolio.CashBalance)
	}
	if res.Holding != nil {
		hv := newHoldingView(*res.Holding)
		view.Holding = &hv
	}
	if res.Transaction != nil {
		tv := newTransactionView(*res.Transaction)
		view.Transaction = &tv
	}
	c.JSON(http.StatusOK, view)
}
