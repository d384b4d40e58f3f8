package marketdata

import "time"

// TradingDay is one session from the provider trading schedule.
type TradingDay struct {
	Date  time.Time `json:"date"`
	Close time.Time `json:"close"`
}

// Calendar is the ordered sequence of trading sessions returned by a
// provider. Immutable once fetched.
type Calendar []TradingDay

// DatesForYear returns the session dates for one year, in calendar order.
// The close timestamp anchors the date, mirroring how daily bars are stamped.
func (c Calendar) DatesForYear(year int) []time.Time {
	var dates []time.Time
	for _, day := range c {
		if day.Date.Year() != year {
			continue
		}
		dates = append(dates, DateOnly(day.Close))
	}
	return dates
}
