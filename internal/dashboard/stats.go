// Package dashboard provides shared grouping, statistics and formatting for
// the watchlist views, used by the TUI, the CLI and the HTTP API.
package dashboard

import (
	"math"
	"sort"
	"strings"

	"tickerdesk/internal/domain"
)

// HistoryStats holds statistics over a record's cached history window.
type HistoryStats struct {
	Code      string
	Bars      int
	High      float64
	Low       float64
	Open      float64 // oldest bar's open
	Close     float64 // newest bar's close
	AvgVolume float64
	MaxGain   float64 // max possible gain over all (buy, sell) pairs where sell is after buy
	MaxLoss   float64 // max possible loss over all (buy, sell) pairs where sell is after buy
}

// IndustryGroup holds the records of one industry with a count.
type IndustryGroup struct {
	Name    string
	Count   int
	Records []domain.TickerRecord
}

// View holds everything the watchlist screens render.
type View struct {
	Groups       []IndustryGroup // first-seen industry order
	Confirmed    int
	Placeholders int
	Errored      int
}

// ComputeHistoryStats aggregates r's history. Bars are walked oldest first to
// compute temporal max gain/loss.
func ComputeHistoryStats(r domain.TickerRecord) HistoryStats {
	s := HistoryStats{Code: r.Code, Bars: len(r.History), Low: math.MaxFloat64}
	if len(r.History) == 0 {
		s.Low = 0
		return s
	}

	minPrice := math.MaxFloat64
	maxPrice := 0.0
	var volume int64
	for i := len(r.History) - 1; i >= 0; i-- {
		b := r.History[i]
		volume += b.Volume
		high, low := b.High, b.Low
		if high == 0 {
			high = b.Close
		}
		if low == 0 {
			low = b.Close
		}
		if high > s.High {
			s.High = high
		}
		if low < s.Low {
			s.Low = low
		}

		// Max gain: buy at lowest close seen so far, sell now.
		if b.Close < minPrice {
			minPrice = b.Close
		}
		if minPrice > 0 {
			if g := (b.Close - minPrice) / minPrice; g > s.MaxGain {
				s.MaxGain = g
			}
		}
		// Max loss: buy at highest close seen so far, sell now.
		if b.Close > maxPrice {
			maxPrice = b.Close
		}
		if b.Close > 0 {
			if l := (maxPrice - b.Close) / b.Close; l > s.MaxLoss {
				s.MaxLoss = l
			}
		}
	}
	oldest := r.History[len(r.History)-1]
	s.Open = oldest.Open
	if s.Open == 0 {
		s.Open = oldest.Close
	}
	s.Close = r.History[0].Close
	s.AvgVolume = float64(volume) / float64(len(r.History))
	return s
}

// Sort modes for records within a group.
const (
	SortListOrder = 0 // as displayed by the store (default)
	SortCode      = 1 // by code
	SortPctChange = 2 // by percent change (desc)
	SortVolume    = 3 // by latest volume (desc)
	SortModeCount = 4
)

// SortModeLabel returns a short label for the given sort mode.
func SortModeLabel(mode int) string {
	switch mode {
	case SortCode:
		return "code"
	case SortPctChange:
		return "change%"
	case SortVolume:
		return "volume"
	default:
		return "list"
	}
}

// ParseSortMode accepts a label returned by SortModeLabel, "change" for
// SortPctChange, or the mode number.
func ParseSortMode(s string) (int, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "list", "0":
		return SortListOrder, true
	case "code", "1":
		return SortCode, true
	case "change%", "change", "pct", "2":
		return SortPctChange, true
	case "volume", "3":
		return SortVolume, true
	}
	return SortListOrder, false
}

// GroupByIndustry buckets records by industry. Groups appear in the order
// their first record does; records keep their relative order.
func GroupByIndustry(records []domain.TickerRecord) []IndustryGroup {
	index := make(map[string]int)
	var groups []IndustryGroup
	for _, r := range records {
		name := r.Industry
		if name == "" {
			name = domain.DetermineIndustry(r.Code)
		}
		i, ok := index[name]
		if !ok {
			i = len(groups)
			index[name] = i
			groups = append(groups, IndustryGroup{Name: name})
		}
		groups[i].Records = append(groups[i].Records, r)
		groups[i].Count++
	}
	return groups
}

// ComputeView groups records and counts their states.
func ComputeView(records []domain.TickerRecord, sortMode int) View {
	v := View{Groups: GroupByIndustry(records)}
	for _, r := range records {
		switch {
		case r.Error:
			v.Errored++
		case r.IsPlaceholder:
			v.Placeholders++
		default:
			v.Confirmed++
		}
	}
	ResortView(&v, sortMode)
	return v
}

// ResortView re-sorts the records within each group without regrouping.
// Used when toggling sort mode.
func ResortView(v *View, sortMode int) {
	for i := range v.Groups {
		sortRecords(v.Groups[i].Records, sortMode)
	}
}

func sortRecords(rs []domain.TickerRecord, mode int) {
	switch mode {
	case SortCode:
		sort.SliceStable(rs, func(i, j int) bool { return rs[i].Code < rs[j].Code })
	case SortPctChange:
		sort.SliceStable(rs, func(i, j int) bool { return rs[i].PctChange > rs[j].PctChange })
	case SortVolume:
		sort.SliceStable(rs, func(i, j int) bool { return latestVolume(rs[i]) > latestVolume(rs[j]) })
	}
}

func latestVolume(r domain.TickerRecord) int64 {
	if len(r.History) == 0 {
		return 0
	}
	return r.History[0].Volume
}
