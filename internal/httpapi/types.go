// Package httpapi provides a local HTTP REST API over the watchlist store,
// serving the same data as the TUI client in JSON format.
package httpapi

import (
	"time"

	"tickerdesk/internal/dashboard"
	"tickerdesk/internal/domain"
)

// RecordJSON is a ticker record with its display badge.
type RecordJSON struct {
	domain.TickerRecord
	Badge string `json:"badge"`
}

// GroupJSON holds the records of one industry.
type GroupJSON struct {
	Name    string       `json:"name"`
	Count   int          `json:"count"`
	Records []RecordJSON `json:"records"`
}

// WatchlistResponse is the top-level JSON response for the watchlist.
type WatchlistResponse struct {
	Updated      time.Time   `json:"updated"`
	UpdatedLabel string      `json:"updatedLabel"`
	Confirmed    int         `json:"confirmed"`
	Placeholders int         `json:"placeholders"`
	Errored      int         `json:"errored"`
	SortMode     int         `json:"sortMode"`
	SortLabel    string      `json:"sortLabel"`
	Groups       []GroupJSON `json:"groups"`
}

// HistoryStatsJSON is the JSON representation of dashboard.HistoryStats.
type HistoryStatsJSON struct {
	Bars      int     `json:"bars"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Open      float64 `json:"open"`
	Close     float64 `json:"close"`
	AvgVolume float64 `json:"avgVolume"`
	MaxGain   float64 `json:"maxGain"`
	MaxLoss   float64 `json:"maxLoss"`
}

// RecordResponse is a single record with its history statistics.
type RecordResponse struct {
	Record RecordJSON       `json:"record"`
	Stats  HistoryStatsJSON `json:"stats"`
}

// RefreshResponse reports the codes confirmed by a refresh.
type RefreshResponse struct {
	Confirmed []string  `json:"confirmed"`
	Updated   time.Time `json:"updated"`
}

// PromptResponse holds the rendered prompt.
type PromptResponse struct {
	Date    string `json:"date"`
	Preview string `json:"preview"`
	Prompt  string `json:"prompt"`
}

// ArchiveResponse holds archived bars for a code, newest first.
type ArchiveResponse struct {
	Code string       `json:"code"`
	Bars []domain.Bar `json:"bars"`
}

// convertRecord attaches the badge to a record.
func convertRecord(r domain.TickerRecord) RecordJSON {
	return RecordJSON{TickerRecord: r, Badge: dashboard.Badge(r)}
}

// convertView converts a dashboard.View to JSON.
func convertView(v dashboard.View, sortMode int, updated, now time.Time) WatchlistResponse {
	groups := make([]GroupJSON, 0, len(v.Groups))
	for _, g := range v.Groups {
		records := make([]RecordJSON, 0, len(g.Records))
		for _, r := range g.Records {
			records = append(records, convertRecord(r))
		}
		groups = append(groups, GroupJSON{Name: g.Name, Count: g.Count, Records: records})
	}
	return WatchlistResponse{
		Updated:      updated,
		UpdatedLabel: dashboard.FormatUpdated(updated, now),
		Confirmed:    v.Confirmed,
		Placeholders: v.Placeholders,
		Errored:      v.Errored,
		SortMode:     sortMode,
		SortLabel:    dashboard.SortModeLabel(sortMode),
		Groups:       groups,
	}
}

// convertHistoryStats converts dashboard.HistoryStats to JSON.
func convertHistoryStats(s dashboard.HistoryStats) HistoryStatsJSON {
	return HistoryStatsJSON{
		Bars:      s.Bars,
		High:      s.High,
		Low:       s.Low,
		Open:      s.Open,
		Close:     s.Close,
		AvgVolume: s.AvgVolume,
		MaxGain:   s.MaxGain,
		MaxLoss:   s.MaxLoss,
	}
}
