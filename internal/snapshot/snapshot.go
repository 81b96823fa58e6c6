// Package snapshot loads the JSON file of confirmed ticker records that the
// external batch job publishes.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"tickerdesk/internal/domain"
	"tickerdesk/internal/util"
)

// Source fetches the current snapshot.
type Source interface {
	Fetch(ctx context.Context) ([]domain.TickerRecord, error)
}

// Compile-time interface check.
var _ Source = (*Loader)(nil)

// maxSnapshotBytes bounds how much of a response is decoded.
const maxSnapshotBytes = 32 << 20

// Transient HTTP failures are retried with backoff.
const (
	fetchAttempts  = 3
	fetchBaseDelay = 500 * time.Millisecond
)

// Loader reads the snapshot from an http(s) URL or a local file path.
type Loader struct {
	location   string
	httpClient *http.Client
	now        func() time.Time
}

// NewLoader creates a Loader for location. timeout applies to HTTP fetches.
func NewLoader(location string, timeout time.Duration) *Loader {
	return &Loader{
		location:   location,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

// Location returns the configured snapshot location.
func (l *Loader) Location() string { return l.location }

// Fetch returns the records in the snapshot. Every returned record is marked
// as confirmed.
func (l *Loader) Fetch(ctx context.Context) ([]domain.TickerRecord, error) {
	var (
		data []byte
		err  error
	)
	if isURL(l.location) {
		data, err = l.fetchHTTP(ctx)
	} else {
		data, err = os.ReadFile(l.location)
	}
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Decode parses a snapshot document.
func Decode(data []byte) ([]domain.TickerRecord, error) {
	var records []domain.TickerRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	for i := range records {
		records[i].IsPlaceholder = false
		if len(records[i].History) > domain.MaxHistory {
			records[i].History = records[i].History[:domain.MaxHistory]
		}
	}
	return records, nil
}

func (l *Loader) fetchHTTP(ctx context.Context) ([]byte, error) {
	u, err := CacheBusted(l.location, l.now())
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")

	var data []byte
	err = util.Retry(ctx, fetchAttempts, fetchBaseDelay, func() error {
		resp, err := l.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("fetching snapshot: %w", err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 500:
			return fmt.Errorf("fetching snapshot: status %d", resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return util.Permanent(fmt.Errorf("fetching snapshot: status %d", resp.StatusCode))
		}
		data, err = io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes))
		return err
	})
	return data, err
}

// CacheBusted appends a t=<unix-ms> query parameter to rawURL, keeping any
// existing query.
func CacheBusted(rawURL string, now time.Time) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing snapshot url: %w", err)
	}
	q := u.Query()
	q.Set("t", strconv.FormatInt(now.UnixMilli(), 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func isURL(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}
