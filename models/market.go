package models

import "time"

// Quote is the latest price snapshot for a symbol, in the upstream's
// compact field names.
type Quote struct {
	Current       float64 `json:"c" msgpack:"c"`
	Change        float64 `json:"d" msgpack:"d"`
	ChangePercent float64 `json:"dp" msgpack:"dp"`
	High          float64 `json:"h" msgpack:"h"`
	Low           float64 `json:"l" msgpack:"l"`
	Open          float64 `json:"o" msgpack:"o"`
	PreviousClose float64 `json:"pc" msgpack:"pc"`
	Timestamp     int64   `json:"t" msgpack:"t"`
}

// Empty reports whether the upstream returned its all-zero placeholder,
// which is what it answers for unknown symbols.
func (q Quote) Empty() bool {
	return q.Current == 0 && q.Timestamp == 0
}

// Time returns the quote timestamp.
func (q Quote) Time() time.Time {
	return time.Unix(q.Timestamp, 0).UTC()
}

type Profile struct {
	Country              string  `json:"country"`
	Currency             string  `json:"currency"`
	Exchange             string  `json:"exchange"`
	IPO                  string  `json:"ipo"`
	MarketCapitalization float64 `json:"marketCapitalization"`
	Name                 string  `json:"name"`
	Phone                string  `json:"phone"`
	ShareOutstanding     float64 `json:"shareOutstanding"`
	Ticker               string  `json:"ticker"`
	WebURL               string  `json:"weburl"`
	Logo                 string  `json:"logo"`
	Industry             string  `json:"finnhubIndustry"`
}

// Symbol is one entry of a search result or of the exchange directory.
type Symbol struct {
	Symbol        string `json:"symbol"`
	DisplaySymbol string `json:"displaySymbol"`
	Description   string `json:"description"`
	Type          string `json:"type"`
	Currency      string `json:"currency,omitempty"`
	MIC           string `json:"mic,omitempty"`
}

type SearchResult struct {
	Count  int      `json:"count"`
	Result []Symbol `json:"result"`
}

// Candles is the column-oriented candle response. Status is "ok" or "no_data".
type Candles struct {
	Close     []float64 `json:"c"`
	High      []float64 `json:"h"`
	Low       []float64 `json:"l"`
	Open      []float64 `json:"o"`
	Timestamp []int64   `json:"t"`
	Volume    []float64 `json:"v"`
	Status    string    `json:"s"`
}

type NewsItem struct {
	Category string `json:"category"`
	Datetime int64  `json:"datetime"`
	Headline string `json:"headline"`
	ID       int64  `json:"id"`
	Image    string `json:"image"`
	Related  string `json:"related"`
	Source   string `json:"source"`
	Summary  string `json:"summary"`
	URL      string `json:"url"`
}

// Bar is one OHLCV point of a history series.
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}
