package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/parquet-go/parquet-go"

	"tickerdesk/internal/domain"
)

// Compile-time interface check.
var _ Archive = (*ParquetArchive)(nil)

// ParquetArchive implements Archive using one Parquet file per ticker code.
// Layout: <DataDir>/history/<CODE>.parquet
type ParquetArchive struct {
	DataDir string

	mu sync.Mutex
}

// NewParquetArchive creates a ParquetArchive rooted at the given data directory.
func NewParquetArchive(dataDir string) *ParquetArchive {
	return &ParquetArchive{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// BarRecord is the Parquet schema for one archived daily bar.
type BarRecord struct {
	Code   string   `parquet:"code"`
	Date   string   `parquet:"date"`
	Open   float64  `parquet:"open"`
	High   float64  `parquet:"high"`
	Low    float64  `parquet:"low"`
	Close  float64  `parquet:"close"`
	Volume int64    `parquet:"volume"`
	MA5    *float64 `parquet:"ma5,optional"`
	MA20   *float64 `parquet:"ma20,optional"`
	K      *float64 `parquet:"k,optional"`
	D      *float64 `parquet:"d,optional"`
	DIF    *float64 `parquet:"dif,optional"`
	MACD   *float64 `parquet:"macd,optional"`
	OSC    *float64 `parquet:"osc,optional"`
}

func toBarRecord(code string, b domain.Bar) BarRecord {
	return BarRecord{
		Code: code, Date: b.Date,
		Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume,
		MA5: b.MA5, MA20: b.MA20, K: b.K, D: b.D, DIF: b.DIF, MACD: b.MACD, OSC: b.OSC,
	}
}

func (r BarRecord) bar() domain.Bar {
	return domain.Bar{
		Date: r.Date,
		Open: r.Open, High: r.High, Low: r.Low, Close: r.Close, Volume: r.Volume,
		MA5: r.MA5, MA20: r.MA20, K: r.K, D: r.D, DIF: r.DIF, MACD: r.MACD, OSC: r.OSC,
	}
}

// ---------------------------------------------------------------------------
// Archive implementation
// ---------------------------------------------------------------------------

// WriteHistory merges bars into the code's Parquet file. Bars are keyed by
// date; incoming bars replace archived ones for the same date.
func (s *ParquetArchive) WriteHistory(_ context.Context, code string, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	code = domain.NormalizeCode(code)

	records := make([]BarRecord, 0, len(bars))
	for _, b := range bars {
		if b.Date == "" {
			continue
		}
		records = append(records, toBarRecord(code, b))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.historyPath(code)
	existing, _ := readParquetFile[BarRecord](path)
	merged := mergeBarRecords(existing, records)

	if err := writeParquetFile(path, merged); err != nil {
		return fmt.Errorf("writing history for %s: %w", code, err)
	}
	return nil
}

// ReadHistory reads the archived bars for code, newest first.
func (s *ParquetArchive) ReadHistory(_ context.Context, code string) ([]domain.Bar, error) {
	code = domain.NormalizeCode(code)

	s.mu.Lock()
	records, err := readParquetFile[BarRecord](s.historyPath(code))
	s.mu.Unlock()
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	bars := make([]domain.Bar, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		bars = append(bars, records[i].bar())
	}
	return bars, nil
}

// ListCodes lists all codes that have archived history.
func (s *ParquetArchive) ListCodes(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.DataDir, "history"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var codes []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".parquet") {
			continue
		}
		codes = append(codes, strings.TrimSuffix(e.Name(), ".parquet"))
	}
	sort.Strings(codes)
	return codes, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// historyPath returns the filesystem path for a code's Parquet file.
func (s *ParquetArchive) historyPath(code string) string {
	return filepath.Join(s.DataDir, "history", strings.ToUpper(code)+".parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeBarRecords deduplicates bar records by date, preferring incoming
// records over existing ones. Results are sorted oldest first.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	seen := make(map[string]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Date] = r
	}
	for _, r := range incoming {
		seen[r.Date] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Date < merged[j].Date
	})
	return merged
}
