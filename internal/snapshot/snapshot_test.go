package snapshot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleSnapshot = `[
  {"id": "2330", "code": "2330", "name": "2330.TW", "industry": "Semiconductors", "currency": "TWD",
   "change": 10, "pctChange": 1.0, "isPlaceholder": true,
   "history": [{"date": "2024-06-14", "close": 1005, "volume": 100, "k": 70.1, "d": 60.2, "macd": 0.5}],
   "error": false},
  {"id": "ZZZZ", "code": "ZZZZ", "name": "ZZZZ", "industry": "US/International",
   "history": [], "error": true, "error_msg": "no data"}
]`

func TestLoaderFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stocks.json")
	if err := os.WriteFile(path, []byte(sampleSnapshot), 0o644); err != nil {
		t.Fatal(err)
	}

	records, err := NewLoader(path, time.Second).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].IsPlaceholder {
		t.Error("snapshot records must never be placeholders")
	}
	if !records[1].Error || records[1].ErrorMessage != "no data" {
		t.Errorf("error record = %+v", records[1])
	}
}

func TestLoaderMissingFile(t *testing.T) {
	_, err := NewLoader(filepath.Join(t.TempDir(), "absent.json"), time.Second).Fetch(context.Background())
	if err == nil {
		t.Fatal("Fetch should fail for a missing file")
	}
}

func TestLoaderHTTPCacheBusting(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("t")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(sampleSnapshot))
	}))
	defer srv.Close()

	l := NewLoader(srv.URL+"/stocks.json", time.Second)
	l.now = func() time.Time { return time.UnixMilli(1718000000000) }

	records, err := l.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if gotQuery != "1718000000000" {
		t.Errorf("cache-busting param = %q, want %q", gotQuery, "1718000000000")
	}
}

func TestLoaderHTTPNotFound(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.NotFound(w, r)
	}))
	defer srv.Close()

	if _, err := NewLoader(srv.URL, time.Second).Fetch(context.Background()); err == nil {
		t.Fatal("Fetch should fail on 404")
	}
	if calls != 1 {
		t.Errorf("404 was requested %d times, want 1", calls)
	}
}

func TestLoaderHTTPRetriesServerError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(sampleSnapshot))
	}))
	defer srv.Close()

	records, err := NewLoader(srv.URL, time.Second).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(records) != 2 || calls != 2 {
		t.Errorf("got %d records after %d calls, want 2 after 2", len(records), calls)
	}
}

func TestDecodeMalformed(t *testing.T) {
	if _, err := Decode([]byte(`{"not": "an array"}`)); err == nil {
		t.Fatal("Decode should reject a non-array document")
	}
}

func TestCacheBustedKeepsQuery(t *testing.T) {
	got, err := CacheBusted("https://example.com/stocks.json?v=2", time.UnixMilli(5))
	if err != nil {
		t.Fatal(err)
	}
	if got != "https://example.com/stocks.json?t=5&v=2" {
		t.Errorf("CacheBusted = %q", got)
	}
}
