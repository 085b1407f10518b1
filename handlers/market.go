package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"paper-trader/apperr"
	"paper-trader/gateway"
	"paper-trader/history"
	"paper-trader/market"

	"github.com/gin-gonic/gin"
)

const (
	defaultCandleResolution = "D"
	defaultCandleDays       = 30
	defaultNewsDays         = 7
	newsDateLayout          = "2006-01-02"
)

func (h *Handler) GetTrending(c *gin.Context) {
	ctx, cancel := h.context(c)
	defer cancel()

	symbols, err := h.deps.Market.GetTrendingSymbols(ctx, gateway.Trending)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(symbols), "result": symbols})
}

func (h *Handler) Search(c *gin.Context) {
	ctx, cancel := h.context(c)
	defer cancel()

	symbols, err := h.deps.Market.SearchSymbols(ctx, gateway.Search, c.Query("q"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(symbols), "result": symbols})
}

func (h *Handler) GetDetails(c *gin.Context) {
	ctx, cancel := h.context(c)
	defer cancel()

	d, err := h.deps.Market.GetDetails(ctx, gateway.Details, c.Param("symbol"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) GetQuote(c *gin.Context) {
	ctx, cancel := h.context(c)
	defer cancel()

	q, err := h.deps.Market.GetQuote(ctx, gateway.Details, c.Param("symbol"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (h *Handler) GetProfile(c *gin.Context) {
	ctx, cancel := h.context(c)
	defer cancel()

	p, err := h.deps.Market.GetProfile(ctx, gateway.Details, c.Param("symbol"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// GetCandles takes resolution plus from and to as unix seconds. It
// defaults to daily candles over the last 30 days.
func (h *Handler) GetCandles(c *gin.Context) {
	to := time.Now()
	from := to.AddDate(0, 0, -defaultCandleDays)
	var err error
	if v := c.Query("from"); v != "" {
		if from, err = parseUnix(v); err != nil {
			h.fail(c, err)
			return
		}
	}
	if v := c.Query("to"); v != "" {
		if to, err = parseUnix(v); err != nil {
			h.fail(c, err)
			return
		}
	}

	ctx, cancel := h.context(c)
	defer cancel()

	candles, err := h.deps.Market.GetCandles(ctx, gateway.Details, c.Param("symbol"), c.DefaultQuery("resolution", defaultCandleResolution), from, to)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, candles)
}

// GetNews takes from and to as YYYY-MM-DD and defaults to the last week.
func (h *Handler) GetNews(c *gin.Context) {
	to := time.Now()
	from := to.AddDate(0, 0, -defaultNewsDays)
	var err error
	if v := c.Query("from"); v != "" {
		if from, err = parseDate(v); err != nil {
			h.fail(c, err)
			return
		}
	}
	if v := c.Query("to"); v != "" {
		if to, err = parseDate(v); err != nil {
			h.fail(c, err)
			return
		}
	}

	ctx, cancel := h.context(c)
	defer cancel()

	news, err := h.deps.Market.GetCompanyNews(ctx, gateway.Details, c.Param("symbol"), from, to)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, news)
}

func (h *Handler) GetHistory(c *gin.Context) {
	r, err := history.ParseRange(c.DefaultQuery("range", string(history.Daily)))
	if err != nil {
		h.fail(c, err)
		return
	}

	ctx, cancel := h.context(c)
	defer cancel()

	symbol := market.NormalizeSymbol(c.Param("symbol"))
	bars, err := h.deps.History.GetBars(ctx, symbol, r)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "range": r, "bars": bars})
}

func parseUnix(v string) (time.Time, error) {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q: %w", v, apperr.ErrInvalidQuery)
	}
	return time.Unix(n, 0).UTC(), nil
}

func parseDate(v string) (time.Time, error) {
	t, err := time.Parse(newsDateLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: %w", v, apperr.ErrInvalidQuery)
	}
	return t, nil
}
