package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tickerdesk/internal/domain"
	"tickerdesk/internal/placeholder"
	"tickerdesk/internal/store"
	"tickerdesk/internal/watchlist"
)

type staticSource []domain.TickerRecord

func (s staticSource) Fetch(ctx context.Context) ([]domain.TickerRecord, error) {
	return append([]domain.TickerRecord(nil), s...), nil
}

type nopRemote struct{ triggers int }

func (n *nopRemote) WriteListFile(ctx context.Context, cfg domain.RemoteConfig, code string, isDelete bool) (bool, error) {
	return true, nil
}

func (n *nopRemote) TriggerBatchRun(ctx context.Context, cfg domain.RemoteConfig) error {
	n.triggers++
	return nil
}

const trustedOrigin = "http://localhost:5173"

func newTestServer(t *testing.T, archive store.Archive) (*httptest.Server, *watchlist.Store, *nopRemote) {
	t.Helper()
	k := 55.5
	source := staticSource{{
		ID: "2330", Code: "2330", Name: "2330.TW", Industry: domain.IndustryTaiwan,
		Currency: domain.CurrencyTWD, PctChange: 0.5,
		History: []domain.Bar{{Date: "2024-06-14", Close: 1005, Volume: 12000, K: &k}},
	}}
	rem := &nopRemote{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	wl := watchlist.New(watchlist.Options{
		Snapshot:     source,
		KV:           store.NewMemoryKV(),
		Remote:       rem,
		Placeholders: placeholder.NewSeededRandomWalk(7),
		Logger:       logger,
	})
	t.Cleanup(wl.Close)
	wl.Load(context.Background())

	srv := httptest.NewServer(NewServer(wl, archive, logger, trustedOrigin).Handler())
	t.Cleanup(srv.Close)
	return srv, wl, rem
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	return doFrom(t, "", method, url, body)
}

// doFrom sends a request carrying the given Origin header, if any.
func doFrom(t *testing.T, origin, method, url, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return v
}

func TestWatchlistEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	resp := do(t, http.MethodPut, srv.URL+"/api/watchlist/aapl", "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("PUT status = %d, want 201", resp.StatusCode)
	}
	added := decode[RecordJSON](t, resp)
	if added.Code != "AAPL" || added.Badge != "Syncing" {
		t.Errorf("added = %s/%s", added.Code, added.Badge)
	}

	resp = do(t, http.MethodGet, srv.URL+"/api/watchlist", "")
	got := decode[WatchlistResponse](t, resp)
	if got.Confirmed != 1 || got.Placeholders != 1 {
		t.Errorf("counts = %d confirmed / %d placeholders", got.Confirmed, got.Placeholders)
	}
	if len(got.Groups) != 2 || got.Groups[0].Name != domain.IndustryInternational {
		t.Fatalf("groups = %+v", got.Groups)
	}
	if rec := got.Groups[1].Records[0]; rec.Code != "2330" || rec.Badge != "Real" || rec.History[0].K == nil {
		t.Errorf("confirmed record = %+v", rec)
	}
}

func TestAddConflictAndRemove(t *testing.T) {
	srv, wl, _ := newTestServer(t, nil)

	if resp := do(t, http.MethodPut, srv.URL+"/api/watchlist/2330", ""); resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate PUT status = %d, want 409", resp.StatusCode)
	}
	if resp := do(t, http.MethodDelete, srv.URL+"/api/watchlist/2330", ""); resp.StatusCode != http.StatusNoContent {
		t.Errorf("DELETE status = %d, want 204", resp.StatusCode)
	}
	if len(wl.Records()) != 0 {
		t.Errorf("records after delete = %d, want 0", len(wl.Records()))
	}
}

func TestRecordEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	resp := do(t, http.MethodGet, srv.URL+"/api/watchlist/2330", "")
	got := decode[RecordResponse](t, resp)
	if got.Record.Code != "2330" || got.Stats.Bars != 1 || got.Stats.Close != 1005 {
		t.Errorf("record response = %+v", got)
	}
	if resp := do(t, http.MethodGet, srv.URL+"/api/watchlist/NOPE", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing record status = %d, want 404", resp.StatusCode)
	}
}

func TestPromptEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	resp := do(t, http.MethodGet, srv.URL+"/api/prompt?date=2024-06-14", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	got := decode[PromptResponse](t, resp)
	if !strings.Contains(got.Prompt, "[2330 - history]") || !strings.Contains(got.Prompt, "as of 2024-06-14") {
		t.Errorf("prompt = %q", got.Prompt)
	}

	if resp := do(t, http.MethodGet, srv.URL+"/api/prompt?date=June", ""); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad date status = %d, want 400", resp.StatusCode)
	}
}

func TestPromptEmpty(t *testing.T) {
	srv, wl, _ := newTestServer(t, nil)
	_ = wl.Remove(context.Background(), "2330")
	if resp := do(t, http.MethodGet, srv.URL+"/api/prompt", ""); resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", resp.StatusCode)
	}
}

func TestConfigEndpoints(t *testing.T) {
	srv, wl, _ := newTestServer(t, nil)

	resp := do(t, http.MethodPut, srv.URL+"/api/config", `{"token":"ghp_secret9876","owner":"alice","repo":"desk"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT status = %d", resp.StatusCode)
	}
	if got := wl.RemoteConfig(context.Background()); got.Token != "ghp_secret9876" {
		t.Errorf("stored token = %q", got.Token)
	}

	got := decode[domain.RemoteConfig](t, do(t, http.MethodGet, srv.URL+"/api/config", ""))
	if got.Token != "****9876" || got.Owner != "alice" {
		t.Errorf("GET config = %+v, want redacted token", got)
	}

	if resp := do(t, http.MethodPut, srv.URL+"/api/config", "{"); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed PUT status = %d, want 400", resp.StatusCode)
	}
}

func TestCrossOriginRefused(t *testing.T) {
	srv, wl, rem := newTestServer(t, nil)
	ctx := context.Background()
	_ = wl.SaveRemoteConfig(ctx, domain.RemoteConfig{Token: "ghp_mine", Owner: "alice", Repo: "desk"})

	const evil = "https://evil.example"
	resp := doFrom(t, evil, http.MethodPut, srv.URL+"/api/config", `{"token":"ghp_theirs","owner":"mallory","repo":"x"}`)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("cross-origin PUT /api/config status = %d, want 403", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Access-Control-Allow-Origin = %q, want none", got)
	}
	if got := wl.RemoteConfig(ctx); got.Token != "ghp_mine" || got.Owner != "alice" {
		t.Errorf("config overwritten: %+v", got)
	}

	if resp := doFrom(t, evil, http.MethodDelete, srv.URL+"/api/watchlist/2330", ""); resp.StatusCode != http.StatusForbidden {
		t.Errorf("cross-origin DELETE status = %d, want 403", resp.StatusCode)
	}
	if _, ok := wl.Get("2330"); !ok {
		t.Error("2330 removed by a cross-origin request")
	}
	if resp := doFrom(t, evil, http.MethodPost, srv.URL+"/api/trigger", ""); resp.StatusCode != http.StatusForbidden {
		t.Errorf("cross-origin trigger status = %d, want 403", resp.StatusCode)
	}
	if rem.triggers != 0 {
		t.Errorf("triggers = %d, want 0", rem.triggers)
	}
	if resp := doFrom(t, evil, http.MethodOptions, srv.URL+"/api/config", ""); resp.StatusCode != http.StatusForbidden {
		t.Errorf("cross-origin preflight status = %d, want 403", resp.StatusCode)
	}
}

func TestTrustedOriginAllowed(t *testing.T) {
	srv, wl, _ := newTestServer(t, nil)

	resp := doFrom(t, trustedOrigin, http.MethodOptions, srv.URL+"/api/config", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != trustedOrigin {
		t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, trustedOrigin)
	}

	resp = doFrom(t, trustedOrigin, http.MethodPut, srv.URL+"/api/config", `{"token":"ghp_new","owner":"bob","repo":"desk"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT status = %d, want 200", resp.StatusCode)
	}
	if got := wl.RemoteConfig(context.Background()); got.Owner != "bob" {
		t.Errorf("owner = %q, want bob", got.Owner)
	}
}

func TestTriggerEndpoint(t *testing.T) {
	srv, wl, rem := newTestServer(t, nil)

	if resp := do(t, http.MethodPost, srv.URL+"/api/trigger", ""); resp.StatusCode != http.StatusPreconditionFailed {
		t.Errorf("unconfigured status = %d, want 412", resp.StatusCode)
	}
	_ = wl.SaveRemoteConfig(context.Background(), domain.RemoteConfig{Token: "t", Owner: "o", Repo: "r"})
	if resp := do(t, http.MethodPost, srv.URL+"/api/trigger", ""); resp.StatusCode != http.StatusAccepted {
		t.Errorf("status = %d, want 202", resp.StatusCode)
	}
	if rem.triggers != 1 {
		t.Errorf("triggers = %d, want 1", rem.triggers)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	got := decode[RefreshResponse](t, do(t, http.MethodPost, srv.URL+"/api/refresh", ""))
	if got.Confirmed == nil || got.Updated.IsZero() {
		t.Errorf("refresh = %+v", got)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	if resp := do(t, http.MethodGet, srv.URL+"/api/history/2330", ""); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("disabled archive status = %d, want 503", resp.StatusCode)
	}

	archive := store.NewParquetArchive(t.TempDir())
	srv, _, _ = newTestServer(t, archive)
	got := decode[ArchiveResponse](t, do(t, http.MethodGet, srv.URL+"/api/history/2330", ""))
	if got.Code != "2330" || len(got.Bars) != 1 || got.Bars[0].Close != 1005 {
		t.Errorf("history = %+v", got)
	}
	if resp := do(t, http.MethodGet, srv.URL+"/api/history/MSFT", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown code status = %d, want 404", resp.StatusCode)
	}
}

func TestEventsStream(t *testing.T) {
	srv, wl, _ := newTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /api/events: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	// The subscription is registered after headers are flushed; retry the
	// add until an event arrives.
	lines := make(chan string, 16)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	codes := []string{"MSFT", "AMZN", "META", "GOOG", "NFLX"}
	for _, code := range codes {
		_, _ = wl.Add(context.Background(), code)
		select {
		case line := <-lines:
			if line != "event: info" {
				t.Fatalf("first line = %q, want event: info", line)
			}
			data := <-lines
			if !strings.Contains(data, "saved locally") {
				t.Errorf("data = %q", data)
			}
			return
		case <-time.After(200 * time.Millisecond):
		}
	}
	t.Fatal("no event received")
}
