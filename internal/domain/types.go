// Package domain defines the core types shared across tickerdesk: ticker
// records, daily bars, and the hosting API coordinates.
package domain

import "time"

// Market identifies the listing region of a ticker.
type Market string

const (
	MarketUS Market = "us"
	MarketTW Market = "tw"
)

// Currency codes reported by the batch job.
const (
	CurrencyUSD = "USD"
	CurrencyTWD = "TWD"
)

// DateLayout is the calendar date format used by the snapshot and prompts.
const DateLayout = "2006-01-02"

// MaxHistory is the number of daily bars kept per record.
const MaxHistory = 30

// Bar is one daily OHLCV row with the technical indicators the batch job
// attaches. Indicators are nil when the batch job could not compute them.
type Bar struct {
	Date   string   `json:"date"`
	Open   float64  `json:"open"`
	High   float64  `json:"high"`
	Low    float64  `json:"low"`
	Close  float64  `json:"close"`
	Volume int64    `json:"volume"`
	MA5    *float64 `json:"ma5"`
	MA20   *float64 `json:"ma20"`
	K      *float64 `json:"k"`
	D      *float64 `json:"d"`
	DIF    *float64 `json:"dif"`
	MACD   *float64 `json:"macd"`
	OSC    *float64 `json:"osc"`
}

// TickerRecord is one watchlist row. History is ordered newest first.
type TickerRecord struct {
	ID            string   `json:"id"`
	Code          string   `json:"code"`
	Name          string   `json:"name"`
	Industry      string   `json:"industry"`
	Currency      string   `json:"currency,omitempty"`
	History       []Bar    `json:"history"`
	IsPlaceholder bool     `json:"isPlaceholder,omitempty"`
	Error         bool     `json:"error,omitempty"`
	ErrorMessage  string   `json:"error_msg,omitempty"`
	Change        float64  `json:"change"`
	PctChange     float64  `json:"pctChange"`
	EarningsDate  string   `json:"earningsDate,omitempty"`
	ForeignNet    *float64 `json:"foreignNet,omitempty"`
	TrustNet      *float64 `json:"trustNet,omitempty"`
}

// LatestClose returns the close of the newest bar, or false when the record
// has no history yet.
func (r TickerRecord) LatestClose() (float64, bool) {
	if len(r.History) == 0 {
		return 0, false
	}
	return r.History[0].Close, true
}

// Earnings parses EarningsDate. It returns false when the field is empty or
// not a calendar date.
func (r TickerRecord) Earnings() (time.Time, bool) {
	if r.EarningsDate == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(DateLayout, r.EarningsDate)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// RemoteConfig holds the hosting API credential and target repository. It is
// persisted verbatim in local storage.
type RemoteConfig struct {
	Token string `json:"token"`
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
}

// Complete reports whether all three fields are set.
func (c RemoteConfig) Complete() bool {
	return c.Token != "" && c.Owner != "" && c.Repo != ""
}

// Redacted returns a copy with the token masked, for display.
func (c RemoteConfig) Redacted() RemoteConfig {
	if c.Token == "" {
		return c
	}
	tail := ""
	if len(c.Token) > 4 {
		tail = c.Token[len(c.Token)-4:]
	}
	c.Token = "****" + tail
	return c
}
