package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"tickerdesk/internal/domain"
)

func ptr(v float64) *float64 { return &v }

func exerciseKV(t *testing.T, kv KV) {
	t.Helper()
	ctx := context.Background()

	if _, err := kv.Get(ctx, "saved_codes"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get on empty store: err = %v, want ErrNotFound", err)
	}

	if err := kv.Set(ctx, "saved_codes", []byte(`["TSM"]`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := kv.Set(ctx, "saved_codes", []byte(`["TSM","2330"]`)); err != nil {
		t.Fatalf("Set (replace): %v", err)
	}
	got, err := kv.Get(ctx, "saved_codes")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != `["TSM","2330"]` {
		t.Errorf("Get = %s, want %s", got, `["TSM","2330"]`)
	}

	if err := kv.Delete(ctx, "saved_codes"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := kv.Delete(ctx, "saved_codes"); err != nil {
		t.Fatalf("Delete of missing key: %v", err)
	}
	if _, err := kv.Get(ctx, "saved_codes"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Delete: err = %v, want ErrNotFound", err)
	}
}

func TestMemoryKV(t *testing.T) {
	exerciseKV(t, NewMemoryKV())
}

func TestMemoryKVCopiesValues(t *testing.T) {
	kv := NewMemoryKV()
	ctx := context.Background()
	buf := []byte("abc")
	_ = kv.Set(ctx, "k", buf)
	buf[0] = 'x'
	got, _ := kv.Get(ctx, "k")
	if string(got) != "abc" {
		t.Errorf("stored value aliased caller buffer: %s", got)
	}
}

func TestSQLiteKV(t *testing.T) {
	kv, err := NewSQLiteKV(filepath.Join(t.TempDir(), "nested", "tickerdesk.db"))
	if err != nil {
		t.Fatalf("NewSQLiteKV: %v", err)
	}
	defer kv.Close()
	exerciseKV(t, kv)
}

func TestSQLiteKVPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tickerdesk.db")
	ctx := context.Background()

	kv, err := NewSQLiteKV(path)
	if err != nil {
		t.Fatalf("NewSQLiteKV: %v", err)
	}
	if err := kv.Set(ctx, "remote_config", []byte(`{"owner":"o"}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	kv.Close()

	kv2, err := NewSQLiteKV(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer kv2.Close()
	got, err := kv2.Get(ctx, "remote_config")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if string(got) != `{"owner":"o"}` {
		t.Errorf("Get = %s", got)
	}
}

func TestParquetArchivePath(t *testing.T) {
	a := NewParquetArchive("/data")
	want := filepath.Join("/data", "history", "TSM.parquet")
	if got := a.historyPath("tsm"); got != want {
		t.Errorf("historyPath mismatch:\n  got  %s\n  want %s", got, want)
	}
}

func TestParquetArchiveWriteRead(t *testing.T) {
	a := NewParquetArchive(t.TempDir())
	ctx := context.Background()

	// Snapshot order: newest first.
	bars := []domain.Bar{
		{Date: "2024-06-14", Open: 1000, High: 1010, Low: 995, Close: 1005, Volume: 12000, K: ptr(70.1), MACD: ptr(0.8)},
		{Date: "2024-06-13", Open: 990, High: 1002, Low: 985, Close: 1000, Volume: 11000},
	}
	if err := a.WriteHistory(ctx, "2330", bars); err != nil {
		t.Fatalf("WriteHistory: %v", err)
	}

	got, err := a.ReadHistory(ctx, "2330")
	if err != nil {
		t.Fatalf("ReadHistory: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadHistory returned %d bars, want 2", len(got))
	}
	if got[0].Date != "2024-06-14" || got[0].Close != 1005 {
		t.Errorf("first bar = %+v, want 2024-06-14 close 1005", got[0])
	}
	if got[0].K == nil || *got[0].K != 70.1 {
		t.Errorf("first bar K = %v, want 70.1", got[0].K)
	}
	if got[1].K != nil {
		t.Errorf("second bar K = %v, want nil", *got[1].K)
	}
}

func TestParquetArchiveMerge(t *testing.T) {
	a := NewParquetArchive(t.TempDir())
	ctx := context.Background()

	first := []domain.Bar{{Date: "2024-03-01", Close: 403}}
	if err := a.WriteHistory(ctx, "MSFT", first); err != nil {
		t.Fatalf("WriteHistory (first): %v", err)
	}

	// Same date is replaced, new date is added.
	second := []domain.Bar{{Date: "2024-03-04", Close: 410}, {Date: "2024-03-01", Close: 404}}
	if err := a.WriteHistory(ctx, "MSFT", second); err != nil {
		t.Fatalf("WriteHistory (second): %v", err)
	}

	got, err := a.ReadHistory(ctx, "MSFT")
	if err != nil {
		t.Fatalf("ReadHistory: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("after merge got %d bars, want 2", len(got))
	}
	if got[1].Date != "2024-03-01" || got[1].Close != 404 {
		t.Errorf("merged bar = %+v, want close 404", got[1])
	}

	codes, err := a.ListCodes(ctx)
	if err != nil {
		t.Fatalf("ListCodes: %v", err)
	}
	if len(codes) != 1 || codes[0] != "MSFT" {
		t.Errorf("ListCodes = %v, want [MSFT]", codes)
	}
}

func TestParquetArchiveMissing(t *testing.T) {
	a := NewParquetArchive(t.TempDir())
	if _, err := a.ReadHistory(context.Background(), "NOPE"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ReadHistory on missing code: err = %v, want ErrNotFound", err)
	}
	codes, err := a.ListCodes(context.Background())
	if err != nil || len(codes) != 0 {
		t.Errorf("ListCodes on empty archive = %v, %v", codes, err)
	}
}
