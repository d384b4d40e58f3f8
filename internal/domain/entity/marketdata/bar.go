package marketdata

import "time"

// BarFields is the canonical per-symbol field order used when a dataset is
// flattened into wide `{field}_{symbol}` columns.
var BarFields = []string{"open", "high", "low", "close", "volume", "trade_count", "vwap"}

// Bar models one daily OHLCV record for a symbol.
type Bar struct {
	Symbol     string    `json:"symbol"`
	Date       time.Time `json:"date"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     int64     `json:"volume"`
	TradeCount int64     `json:"trade_count"`
	VWAP       float64   `json:"vwap"`
}

// Field returns the named value as float64. Unknown names return zero.
func (b Bar) Field(name string) float64 {
	switch name {
	case "open":
		return b.Open
	case "high":
		return b.High
	case "low":
		return b.Low
	case "close":
		return b.Close
	case "volume":
		return float64(b.Volume)
	case "trade_count":
		return float64(b.TradeCount)
	case "vwap":
		return b.VWAP
	default:
		return 0
	}
}

// NormalizeDate drops the intraday component of the bar timestamp. Provider
// timestamps carry a session cutoff time that must be discarded before bars
// can be aligned onto a trading calendar.
func (b Bar) NormalizeDate() Bar {
	b.Date = DateOnly(b.Date)
	return b
}

// DateOnly truncates t to a UTC calendar date.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
