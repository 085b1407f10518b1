package market

import (
	"context"

	"paper-trader/gateway"
	"paper-trader/models"

	"golang.org/x/sync/errgroup"
)

// newsLookbackDays is how far back the details view reaches for headlines.
const newsLookbackDays = 7

// Details is everything the stock details view shows. Profile and News
// are best effort and may be empty.
type Details struct {
	Symbol  string            `json:"symbol"`
	Quote   *models.Quote     `json:"quote"`
	Profile *models.Profile   `json:"profile,omitempty"`
	News    []models.NewsItem `json:"news"`
}

// GetDetails fetches quote, profile and recent news in parallel. Only a
// quote failure fails the call; profile and news failures read as no data.
func (s *Service) GetDetails(ctx context.Context, ch gateway.Channel, symbol string) (*Details, error) {
	symbol = NormalizeSymbol(symbol)
	d := &Details{Symbol: symbol, News: []models.NewsItem{}}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		q, err := s.GetQuote(gctx, ch, symbol)
		if err != nil {
			return err
		}
		d.Quote = q
		return nil
	})
	g.Go(func() error {
		p, err := s.GetProfile(gctx, ch, symbol)
		if err != nil {
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("Profile unavailable")
			return nil
		}
		d.Profile = p
		return nil
	})
	g.Go(func() error {
		to := s.now()
		news, err := s.GetCompanyNews(gctx, ch, symbol, to.AddDate(0, 0, -newsLookbackDays), to)
		if err != nil {
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("News unavailable")
			return nil
		}
		d.News = news
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return d, nil
}
