// Package placeholder fabricates stand-in ticker records for codes the batch
// job has not produced yet. None of the values are real market data.
package placeholder

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tickerdesk/internal/domain"
	"tickerdesk/internal/util"
)

// Generator synthesizes a placeholder record for code.
type Generator interface {
	Generate(code string, now time.Time) domain.TickerRecord
}

// Compile-time interface checks.
var _ Generator = (*RandomWalk)(nil)
var _ Generator = Disabled{}

// historySpan is the number of calendar days covered by generated history.
const historySpan = domain.MaxHistory

// RandomWalk produces a random-walk price series over recent weekdays with
// random indicator values.
type RandomWalk struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomWalk returns a generator seeded from the runtime source.
func NewRandomWalk() *RandomWalk {
	return &RandomWalk{rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

// NewSeededRandomWalk returns a deterministic generator.
func NewSeededRandomWalk(seed uint64) *RandomWalk {
	return &RandomWalk{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Generate builds a placeholder record with up to historySpan days of
// weekday bars, newest first.
func (g *RandomWalk) Generate(code string, now time.Time) domain.TickerRecord {
	rec := baseRecord(code)
	cal := util.NewTradingCalendar(domain.MarketFor(code))
	dates := cal.SessionsBack(now, historySpan)

	g.mu.Lock()
	defer g.mu.Unlock()

	price := basePrice(code)
	rec.History = make([]domain.Bar, 0, len(dates))
	for _, date := range dates {
		open := price
		price += price * ((g.rng.Float64() - 0.5) * 0.04)
		high := max(open, price) * (1 + g.rng.Float64()*0.01)
		low := min(open, price) * (1 - g.rng.Float64()*0.01)
		dif := g.between(-2, 2)
		macd := g.between(-2, 2)
		rec.History = append(rec.History, domain.Bar{
			Date:   date,
			Open:   round(open, 2),
			High:   round(high, 2),
			Low:    round(low, 2),
			Close:  round(price, 2),
			Volume: int64(g.rng.IntN(50000) + 5000),
			K:      ptr(round(g.between(10, 90), 1)),
			D:      ptr(round(g.between(10, 90), 1)),
			DIF:    ptr(round(dif, 2)),
			MACD:   ptr(round(macd, 2)),
			OSC:    ptr(round(dif-macd, 2)),
		})
	}
	fillChange(&rec)
	return rec
}

func (g *RandomWalk) between(lo, hi float64) float64 {
	return lo + g.rng.Float64()*(hi-lo)
}

// Disabled generates records with no history, for deployments where every
// requested code is always covered by the snapshot.
type Disabled struct{}

// Generate returns a placeholder record without history.
func (Disabled) Generate(code string, _ time.Time) domain.TickerRecord {
	rec := baseRecord(code)
	rec.History = []domain.Bar{}
	return rec
}

func baseRecord(code string) domain.TickerRecord {
	return domain.TickerRecord{
		ID:            "local-" + code + "-" + uuid.NewString(),
		Code:          code,
		Name:          code,
		Industry:      domain.DetermineIndustry(code),
		Currency:      domain.CurrencyFor(code),
		IsPlaceholder: true,
	}
}

// basePrice picks a plausible starting price so placeholder rows do not
// look wildly off for well-known codes.
func basePrice(code string) float64 {
	switch domain.BareCode(code) {
	case "2330", "TSM":
		return 1000
	case "NVDA":
		return 130
	case "AAPL":
		return 220
	}
	if domain.IsRegionCode(code) {
		return 50
	}
	return 100
}

// fillChange derives the day-over-day change from the two newest bars.
func fillChange(rec *domain.TickerRecord) {
	if len(rec.History) < 2 {
		return
	}
	today := decimal.NewFromFloat(rec.History[0].Close)
	prev := decimal.NewFromFloat(rec.History[1].Close)
	change := today.Sub(prev)
	rec.Change = change.Round(2).InexactFloat64()
	if !prev.IsZero() {
		rec.PctChange = change.Div(prev).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
	}
}

func round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

func ptr(v float64) *float64 { return &v }
