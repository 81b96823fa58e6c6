// Package prompt renders the LLM briefing prompt from cached ticker history.
package prompt

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"tickerdesk/internal/domain"
)

// ErrNoRecords is returned when no usable record is left to render.
var ErrNoRecords = errors.New("prompt: no records to include")

// codeSeparator joins codes inside the instruction text.
const codeSeparator = "、"

// earningsWindowDays is how close, in calendar days, an earnings date must be
// to now for the earnings instruction to be added.
const earningsWindowDays = 2

// Build renders the prompt for records as of targetDate. Records flagged with
// a batch error are left out.
func Build(records []domain.TickerRecord, targetDate string, now time.Time) (string, error) {
	included := Included(records)
	if len(included) == 0 {
		return "", ErrNoRecords
	}

	codes := make([]string, len(included))
	for i, r := range included {
		codes[i] = r.Code
	}
	list := strings.Join(codes, codeSeparator)

	var b strings.Builder
	fmt.Fprintf(&b, "Provide a complete daily briefing for %s, focused on the latest information as of %s. Cover:\n", list, targetDate)
	b.WriteString("1. Trend analysis based on the Raw Data (closing price, volume and KD/MACD indicators over the last 30 trading days);\n")
	fmt.Fprintf(&b, "2. The latest news and milestones for %s, grouped by business line;\n", list)
	b.WriteString("3. Index impact analysis and analyst ratings/estimates;\n")
	fmt.Fprintf(&b, "4. Major news in the industries %s belong to.\n", list)
	if line := earningsLine(included, now); line != "" {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString("\nRaw Data:\n")
	for _, r := range included {
		writeHistory(&b, r)
	}
	return b.String(), nil
}

// Included returns the records Build would render, in order.
func Included(records []domain.TickerRecord) []domain.TickerRecord {
	out := make([]domain.TickerRecord, 0, len(records))
	for _, r := range records {
		if !r.Error {
			out = append(out, r)
		}
	}
	return out
}

// Preview returns a one-line summary of what Build would include.
func Preview(records []domain.TickerRecord) string {
	included := Included(records)
	if len(included) == 0 {
		return "no tickers to include"
	}
	codes := make([]string, 0, len(included))
	rows := 0
	for _, r := range included {
		codes = append(codes, r.Code)
		rows += len(r.History)
	}
	noun := "tickers"
	if len(included) == 1 {
		noun = "ticker"
	}
	return fmt.Sprintf("%d %s, %d history rows: %s", len(included), noun, rows, strings.Join(codes, codeSeparator))
}

// earningsLine returns the extra instruction when an included record reports
// earnings within earningsWindowDays of now, or "".
func earningsLine(records []domain.TickerRecord, now time.Time) string {
	var near []string
	for _, r := range records {
		d, ok := r.Earnings()
		if !ok {
			continue
		}
		if days := calendarDays(now, d); days >= -earningsWindowDays && days <= earningsWindowDays {
			near = append(near, fmt.Sprintf("%s (%s)", r.Code, r.EarningsDate))
		}
	}
	if len(near) == 0 {
		return ""
	}
	return fmt.Sprintf("5. Earnings analysis for %s: consensus versus results, guidance changes and the expected price reaction.", strings.Join(near, codeSeparator))
}

// calendarDays counts whole days from now's local date to date.
func calendarDays(now, date time.Time) int {
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	y, m, d = date.Date()
	target := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return int(target.Sub(today).Hours() / 24)
}

func writeHistory(b *strings.Builder, r domain.TickerRecord) {
	if len(r.History) == 0 {
		return
	}
	fmt.Fprintf(b, "\n[%s - history]\n", r.Code)
	b.WriteString("date | close | volume | K | D | MACD\n---|---|---|---|---|---\n")
	for _, bar := range r.History {
		fmt.Fprintf(b, "%s | %s | %d | %s | %s | %s\n",
			bar.Date,
			strconv.FormatFloat(bar.Close, 'f', 2, 64),
			bar.Volume,
			indicator(bar.K, 1),
			indicator(bar.D, 1),
			indicator(bar.MACD, 2),
		)
	}
}

func indicator(v *float64, prec int) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', prec, 64)
}
