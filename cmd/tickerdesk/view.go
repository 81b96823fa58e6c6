package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"tickerdesk/internal/dashboard"
	"tickerdesk/internal/domain"
	"tickerdesk/internal/watchlist"
)

// Styles.
var (
	groupStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	codeStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	codeHlStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("75")) // brighter blue for highlight
	gainStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	lossStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	colHeaderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	dimStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	priceStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	volumeStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	earningsStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	badgeRealStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("2"))
	badgeSyncStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("3"))
	badgeErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Background(lipgloss.Color("1"))
	formTitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("6"))
	highlightBG     = lipgloss.Color("236") // dark grey background
)

// hlStyle returns a copy of s with the highlight background applied when hl is true.
func hlStyle(s lipgloss.Style, hl bool) lipgloss.Style {
	if hl {
		return s.Background(highlightBG)
	}
	return s
}

func badgeStyle(badge string) lipgloss.Style {
	switch badge {
	case "Error":
		return badgeErrorStyle
	case "Syncing":
		return badgeSyncStyle
	default:
		return badgeRealStyle
	}
}

func toastStyle(kind watchlist.Kind) lipgloss.Style {
	base := lipgloss.NewStyle().Foreground(lipgloss.Color("0"))
	switch kind {
	case watchlist.KindSuccess:
		return base.Background(lipgloss.Color("2"))
	case watchlist.KindWarning:
		return base.Background(lipgloss.Color("3"))
	case watchlist.KindError:
		return base.Foreground(lipgloss.Color("15")).Background(lipgloss.Color("1"))
	default:
		return base.Background(lipgloss.Color("6"))
	}
}

const rowFormat = "  %-10s %-18s %12s %10s %8s %10s %9s %9s"

func (m model) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}

	status := dashboard.FormatUpdated(m.updated, m.now())
	if m.loading {
		status = "loading..."
	}
	polling := ""
	if m.store.NeedsPolling() {
		polling = "    watching for new data"
	}
	headerText := fmt.Sprintf(
		" tickerdesk  %s    real: %d  syncing: %d  error: %d    sort: %s    prompt date: %s%s ",
		status,
		m.view.Confirmed,
		m.view.Placeholders,
		m.view.Errored,
		dashboard.SortModeLabel(m.sortMode),
		m.targetDate,
		polling,
	)
	headerBar := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("15")).
		Background(lipgloss.Color("4")).
		Render(padOrTrunc(headerText, m.width))

	body := m.viewport.View()
	if m.mode == modeSettings {
		body = m.renderSettings()
	}

	return headerBar + "\n" + body + "\n" + m.statusLine() + "\n" + m.footerBar()
}

// statusLine shows the add prompt while typing, otherwise the newest toast.
func (m model) statusLine() string {
	if m.mode == modeAdd {
		return m.addInput.View()
	}
	if len(m.toasts) == 0 {
		return ""
	}
	t := m.toasts[len(m.toasts)-1]
	text := " " + t.text + " "
	if more := len(m.toasts) - 1; more > 0 {
		text += fmt.Sprintf("(+%d) ", more)
	}
	return toastStyle(t.kind).Render(text)
}

func (m model) footerBar() string {
	var footerLeft string
	switch m.mode {
	case modeAdd:
		footerLeft = " enter add  esc cancel"
	case modeSettings:
		footerLeft = " tab next field  enter save  esc cancel"
	default:
		footerLeft = " q quit  a add  x remove  r refresh  t trigger  p copy prompt  [/] date  c settings  s sort"
	}
	pct := m.viewport.ScrollPercent() * 100
	footerRight := fmt.Sprintf("%.0f%% ", pct)
	gap := m.width - len(footerLeft) - len(footerRight)
	if gap < 0 {
		gap = 0
	}
	footerText := footerLeft + strings.Repeat(" ", gap) + footerRight
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("15")).
		Background(lipgloss.Color("8")).
		Render(padOrTrunc(footerText, m.width))
}

func (m model) renderSettings() string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(formTitleStyle.Render("  Hosting API settings  "))
	b.WriteString("\n\n")
	for i := range m.settings {
		b.WriteString(m.settings[i].View())
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("  The token needs contents and actions write access on the repository."))
	b.WriteString("\n")

	lines := strings.Count(b.String(), "\n")
	if pad := m.viewport.Height - lines; pad > 0 {
		b.WriteString(strings.Repeat("\n", pad))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func (m model) renderContent() string {
	var b strings.Builder
	if len(m.view.Groups) == 0 {
		if m.loading {
			b.WriteString(dimStyle.Render("  Loading..."))
		} else {
			b.WriteString(dimStyle.Render("  (watchlist is empty, press a to add a ticker)"))
		}
		b.WriteString("\n")
		return b.String()
	}

	for _, g := range m.view.Groups {
		renderGroup(&b, g, m.width, m.selectedCode)
		b.WriteString("\n")
	}
	return b.String()
}

// selectedLine returns the content line of the selected row, or -1.
func (m model) selectedLine() int {
	line := 0
	for _, g := range m.view.Groups {
		line += 2 // group header + column header
		for _, r := range g.Records {
			if r.Code == m.selectedCode {
				return line
			}
			line++
			if r.Error && r.ErrorMessage != "" {
				line++
			}
		}
		line++ // blank line between groups
	}
	return -1
}

func renderGroup(b *strings.Builder, g dashboard.IndustryGroup, width int, selectedCode string) {
	groupHeader := fmt.Sprintf(" %s  %d tickers ", g.Name, g.Count)
	b.WriteString(groupStyle.Render(groupHeader))
	lineLen := width - lipgloss.Width(groupHeader) - 1
	if lineLen > 0 {
		b.WriteString(dimStyle.Render(" " + strings.Repeat("─", lineLen)))
	}
	b.WriteString("\n")

	colLine := fmt.Sprintf(rowFormat, "Code", "Name", "Close", "Chg", "Chg%", "Volume", "30d Gain", "30d Loss")
	b.WriteString(colHeaderStyle.Render(colLine))
	b.WriteString("  Status\n")

	for _, r := range g.Records {
		renderRecord(b, r, r.Code == selectedCode)
	}
}

func renderRecord(b *strings.Builder, r domain.TickerRecord, hl bool) {
	sp := hlStyle(lipgloss.NewStyle(), hl).Render(" ")

	codeSt := codeStyle
	if hl {
		codeSt = codeHlStyle
	}
	b.WriteString(hlStyle(lipgloss.NewStyle(), hl).Render("  "))
	b.WriteString(hlStyle(codeSt, hl).Render(fmt.Sprintf("%-10s", r.Code)))
	b.WriteString(sp)
	b.WriteString(hlStyle(dimStyle, hl).Render(fmt.Sprintf("%-18s", truncate(r.Name, 18))))
	b.WriteString(sp)

	closeText := "-"
	if c, ok := r.LatestClose(); ok {
		closeText = dashboard.FormatPrice(c, r.Currency)
	}
	b.WriteString(hlStyle(priceStyle, hl).Render(fmt.Sprintf("%12s", closeText)))
	b.WriteString(sp)

	moveStyle := dimStyle
	switch {
	case r.Change > 0:
		moveStyle = gainStyle
	case r.Change < 0:
		moveStyle = lossStyle
	}
	b.WriteString(hlStyle(moveStyle, hl).Render(fmt.Sprintf("%10s", dashboard.FormatChange(r.Change))))
	b.WriteString(sp)
	b.WriteString(hlStyle(moveStyle, hl).Render(fmt.Sprintf("%8s", dashboard.FormatPct(r.PctChange))))
	b.WriteString(sp)

	volText := "-"
	if len(r.History) > 0 {
		volText = dashboard.FormatVolume(float64(r.History[0].Volume))
	}
	b.WriteString(hlStyle(volumeStyle, hl).Render(fmt.Sprintf("%10s", volText)))
	b.WriteString(sp)

	stats := dashboard.ComputeHistoryStats(r)
	gainWins := stats.MaxGain >= stats.MaxLoss
	gainSt, lossSt := dimStyle, dimStyle
	if stats.MaxGain >= 0.10 && gainWins {
		gainSt = gainStyle
	}
	if stats.MaxLoss >= 0.10 && !gainWins {
		lossSt = lossStyle
	}
	b.WriteString(hlStyle(gainSt, hl).Render(fmt.Sprintf("%9s", dashboard.FormatGain(stats.MaxGain))))
	b.WriteString(sp)
	b.WriteString(hlStyle(lossSt, hl).Render(fmt.Sprintf("%9s", dashboard.FormatLoss(stats.MaxLoss))))
	b.WriteString(hlStyle(lipgloss.NewStyle(), hl).Render("  "))

	badge := dashboard.Badge(r)
	b.WriteString(badgeStyle(badge).Render(" " + badge + " "))
	if r.EarningsDate != "" {
		b.WriteString(" ")
		b.WriteString(earningsStyle.Render("earnings " + r.EarningsDate))
	}
	if r.ForeignNet != nil || r.TrustNet != nil {
		b.WriteString(dimStyle.Render(fmt.Sprintf("  foreign %s  trust %s",
			dashboard.FormatNet(r.ForeignNet), dashboard.FormatNet(r.TrustNet))))
	}
	b.WriteString("\n")

	if r.Error && r.ErrorMessage != "" {
		b.WriteString(lossStyle.Render("      " + r.ErrorMessage))
		b.WriteString("\n")
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// padOrTrunc pads s with spaces to width, or truncates if longer.
func padOrTrunc(s string, width int) string {
	n := len(s)
	if n >= width {
		return s[:width]
	}
	return s + strings.Repeat(" ", width-n)
}
