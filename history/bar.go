package history

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"paper-trader/models"
)

// flexFloat64 accepts a number, a numeric string, an empty string or null.
// Anything unparseable reads as 0.
type flexFloat64 float64

func (f *flexFloat64) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*f = flexFloat64(num)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		num, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			*f = 0
			return nil
		}
		*f = flexFloat64(num)
		return nil
	}
	*f = 0
	return nil
}

// flexTime accepts unix seconds or one of the provider's date layouts.
type flexTime time.Time

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (t *flexTime) UnmarshalJSON(data []byte) error {
	var secs int64
	if err := json.Unmarshal(data, &secs); err == nil {
		if secs <= 0 {
			*t = flexTime(time.Time{})
			return nil
		}
		*t = flexTime(time.Unix(secs, 0).UTC())
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				*t = flexTime(parsed.UTC())
				return nil
			}
		}
	}
	*t = flexTime(time.Time{})
	return nil
}

type rawBar struct {
	Time     flexTime    `json:"time"`
	Datetime flexTime    `json:"datetime"`
	Open     flexFloat64 `json:"open"`
	High     flexFloat64 `json:"high"`
	Low      flexFloat64 `json:"low"`
	Close    flexFloat64 `json:"close"`
	Volume   flexFloat64 `json:"volume"`
}

func (rb rawBar) toBar() (models.Bar, bool) {
	ts := time.Time(rb.Time)
	if ts.IsZero() {
		ts = time.Time(rb.Datetime)
	}
	if ts.IsZero() || rb.Close <= 0 {
		return models.Bar{}, false
	}
	return models.Bar{
		Time:   ts,
		Open:   float64(rb.Open),
		High:   float64(rb.High),
		Low:    float64(rb.Low),
		Close:  float64(rb.Close),
		Volume: float64(rb.Volume),
	}, true
}
