package dashboard

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"tickerdesk/internal/domain"
)

// FormatInt formats an integer with comma separators.
func FormatInt(n int64) string {
	return humanize.Comma(n)
}

// FormatVolume formats a share volume with B/M/K suffixes.
func FormatVolume(v float64) string {
	switch {
	case v >= 1e9:
		return fmt.Sprintf("%.1fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("%.1fM", v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("%.1fK", v/1e3)
	default:
		return fmt.Sprintf("%.0f", v)
	}
}

// FormatPrice formats a price with its currency prefix, or "-" for zero.
func FormatPrice(p float64, currency string) string {
	if p == 0 {
		return "-"
	}
	switch currency {
	case domain.CurrencyTWD:
		return "NT$" + humanize.CommafWithDigits(p, 2)
	case domain.CurrencyUSD, "":
		return "$" + humanize.CommafWithDigits(p, 2)
	default:
		return humanize.CommafWithDigits(p, 2) + " " + currency
	}
}

// FormatChange formats an absolute change with an explicit sign.
func FormatChange(c float64) string {
	if c == 0 {
		return "0.00"
	}
	return fmt.Sprintf("%+.2f", c)
}

// FormatPct formats a percent change (already in percent units) as "+X.XX%".
func FormatPct(p float64) string {
	if p == 0 {
		return "0.00%"
	}
	return fmt.Sprintf("%+.2f%%", p)
}

// FormatGain formats a gain ratio as "+X.X%", or "" if zero.
// Drops decimal for values >= 100% to keep width compact.
func FormatGain(g float64) string {
	if g <= 0 {
		return ""
	}
	pct := g * 100
	if pct >= 100 {
		return fmt.Sprintf("+%.0f%%", pct)
	}
	return fmt.Sprintf("+%.1f%%", pct)
}

// FormatLoss formats a loss ratio as "-X.X%", or "" if zero.
// Drops decimal for values >= 100% to keep width compact.
func FormatLoss(l float64) string {
	if l <= 0 {
		return ""
	}
	pct := l * 100
	if pct >= 100 {
		return fmt.Sprintf("-%.0f%%", pct)
	}
	return fmt.Sprintf("-%.1f%%", pct)
}

// FormatNet formats an institutional net flow in lots, or "" when absent.
func FormatNet(v *float64) string {
	if v == nil {
		return ""
	}
	n := int64(*v)
	if n > 0 {
		return "+" + humanize.Comma(n)
	}
	return humanize.Comma(n)
}

// Badge returns the status label for a record.
func Badge(r domain.TickerRecord) string {
	switch {
	case r.Error:
		return "Error"
	case r.IsPlaceholder:
		return "Syncing"
	default:
		return "Real"
	}
}

// FormatUpdated describes when the snapshot was last fetched.
func FormatUpdated(t, now time.Time) string {
	if t.IsZero() {
		return "never updated"
	}
	return "updated " + humanize.RelTime(t, now, "ago", "from now")
}
