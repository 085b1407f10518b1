package handlers

import (
	"fmt"
	"net/http"

	"paper-trader/apperr"
	"paper-trader/gateway"
	"paper-trader/market"
	"paper-trader/middleware"

	"github.com/gin-gonic/gin"
)

type WatchlistInput struct {
	Symbol      string `json:"symbol" binding:"required"`
	CompanyName string `json:"company_name"`
}

func (h *Handler) GetWatchlist(c *gin.Context) {
	ctx, cancel := h.context(c)
	defer cancel()

	items, err := h.deps.Ledger.GetUserWatchlist(ctx, middleware.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

// AddToWatchlist stores a symbol. Without a company name the profile is
// looked up; a failed lookup stores the symbol without one.
func (h *Handler) AddToWatchlist(c *gin.Context) {
	var input WatchlistInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	symbol := market.NormalizeSymbol(input.Symbol)
	if symbol == "" {
		h.fail(c, fmt.Errorf("watchlist: empty symbol: %w", apperr.ErrInvalidQuery))
		return
	}

	ctx, cancel := h.context(c)
	defer cancel()

	name := input.CompanyName
	if name == "" {
		if p, err := h.deps.Market.GetProfile(ctx, gateway.Details, symbol); err == nil {
			name = p.Name
		} else {
			h.log.Debug().Err(err).Str("symbol", symbol).Msg("Company name lookup failed")
		}
	}

	item, err := h.deps.Ledger.AddToWatchlist(ctx, middleware.UserID(c), symbol, name)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *Handler) RemoveFromWatchlist(c *gin.Context) {
	ctx, cancel := h.context(c)
	defer cancel()

	symbol := market.NormalizeSymbol(c.Param("symbol"))
	if err := h.deps.Ledger.RemoveFromWatchlist(ctx, middleware.UserID(c), symbol); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
