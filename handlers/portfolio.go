package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"paper-trader/apperr"
	"paper-trader/middleware"
	"paper-trader/models"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const (
	defaultTransactionLimit = 100
	maxTransactionLimit     = 1000
	defaultNetWorthDays     = 30
)

type holdingView struct {
	Symbol    string          `json:"symbol"`
	Quantity  int64           `json:"quantity"`
	AvgCost   decimal.Decimal `json:"avg_cost"`
	CostBasis decimal.Decimal `json:"cost_basis"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func newHoldingView(h models.Holding) holdingView {
	return holdingView{
		Symbol:    h.Symbol,
		Quantity:  h.Quantity,
		AvgCost:   money(h.AvgCost),
		CostBasis: money(h.AvgCost.Mul(decimal.NewFromInt(h.Quantity))),
		UpdatedAt: h.UpdatedAt,
	}
}

type transactionView struct {
	ID          string          `json:"id"`
	Symbol      string          `json:"symbol"`
	Type        models.Side     `json:"type"`
	Quantity    int64           `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Description string          `json:"description"`
	Timestamp   time.Time       `json:"timestamp"`
}

func newTransactionView(t models.Transaction) transactionView {
	return transactionView{
		ID:          t.ID,
		Symbol:      t.Symbol,
		Type:        t.Type,
		Quantity:    t.Quantity,
		Price:       money(t.Price),
		TotalAmount: money(t.TotalAmount),
		Description: t.Description,
		Timestamp:   t.Timestamp,
	}
}

type netWorthView struct {
	Date     string          `json:"date"`
	NetWorth decimal.Decimal `json:"net_worth"`
	Cash     decimal.Decimal `json:"cash"`
	Holdings decimal.Decimal `json:"holdings"`
}

func newNetWorthView(s models.NetWorthSnapshot) netWorthView {
	return netWorthView{
		Date:     s.Date,
		NetWorth: money(s.NetWorth),
		Cash:     money(s.CashComponent),
		Holdings: money(s.HoldingsComponent),
	}
}

// GetPortfolio returns the valuation summary. Holdings whose live quote is
// unavailable are still valued, see price_source.
func (h *Handler) GetPortfolio(c *gin.Context) {
	ctx, cancel := h.context(c)
	defer cancel()

	sum, err := h.deps.Portfolio.Summary(ctx, middleware.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum.Display())
}

func (h *Handler) GetHoldings(c *gin.Context) {
	ctx, cancel := h.context(c)
	defer cancel()

	holdings, err := h.deps.Ledger.GetUserStocks(ctx, middleware.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	views := make([]holdingView, 0, len(holdings))
	for _, hd := range holdings {
		views = append(views, newHoldingView(hd))
	}
	c.JSON(http.StatusOK, views)
}

// GetTransactions lists the most recent transactions, newest first.
func (h *Handler) GetTransactions(c *gin.Context) {
	limit, err := intQuery(c, "limit", defaultTransactionLimit)
	if err != nil {
		h.fail(c, err)
		return
	}
	if limit > maxTransactionLimit {
		limit = maxTransactionLimit
	}

	ctx, cancel := h.context(c)
	defer cancel()

	txs, err := h.deps.Ledger.GetTransactions(ctx, middleware.UserID(c), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	views := make([]transactionView, 0, len(txs))
	for i := len(txs) - 1; i >= 0; i-- {
		views = append(views, newTransactionView(txs[i]))
	}
	c.JSON(http.StatusOK, views)
}

func (h *Handler) GetNetWorth(c *gin.Context) {
	days, err := intQuery(c, "days", defaultNetWorthDays)
	if err != nil {
		h.fail(c, err)
		return
	}

	ctx, cancel := h.context(c)
	defer cancel()

	snaps, err := h.deps.Ledger.GetNetWorthHistory(ctx, middleware.UserID(c), days)
	if err != nil {
		h.fail(c, err)
		return
	}
	views := make([]netWorthView, 0, len(snaps))
	for _, s := range snaps {
		views = append(views, newNetWorthView(s))
	}
	c.JSON(http.StatusOK, views)
}

// RecordNetWorth values the portfolio now and stores it as today's point.
func (h *Handler) RecordNetWorth(c *gin.Context) {
	ctx, cancel := h.context(c)
	defer cancel()

	snap, err := h.deps.Portfolio.SnapshotNetWorth(ctx, middleware.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, newNetWorthView(*snap))
}

func intQuery(c *gin.Context, key string, fallback int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s %q: %w", key, v, apperr.ErrInvalidQuery)
	}
	return n, nil
}
