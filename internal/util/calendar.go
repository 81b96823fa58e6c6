package util

import (
	"time"

	"tickerdesk/internal/domain"
)

// TradingCalendar provides weekday-based session awareness for a market.
// Exchange holidays are not modelled; it is only used to lay out
// placeholder history rows.
type TradingCalendar struct {
	market domain.Market
	loc    *time.Location
}

// NewTradingCalendar creates a TradingCalendar for the given market. It falls
// back to UTC when the market's zone database entry is unavailable.
func NewTradingCalendar(market domain.Market) *TradingCalendar {
	name := "America/New_York"
	if market == domain.MarketTW {
		name = "Asia/Taipei"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		loc = time.UTC
	}
	return &TradingCalendar{market: market, loc: loc}
}

// Market returns the calendar's market.
func (tc *TradingCalendar) Market() domain.Market {
	return tc.market
}

// IsTradingDay reports whether t falls on a weekday in the market's zone.
func (tc *TradingCalendar) IsTradingDay(t time.Time) bool {
	switch t.In(tc.loc).Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return true
}

// SessionsBack returns the trading dates within the last span calendar days
// ending at now, newest first, formatted as YYYY-MM-DD.
func (tc *TradingCalendar) SessionsBack(now time.Time, span int) []string {
	local := now.In(tc.loc)
	dates := make([]string, 0, span)
	for i := 0; i < span; i++ {
		d := local.AddDate(0, 0, -i)
		if tc.IsTradingDay(d) {
			dates = append(dates, d.Format(domain.DateLayout))
		}
	}
	return dates
}
