// Package tickerdesk is a Go SDK for the tickerdesk-server HTTP API.
package tickerdesk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client provides a Go SDK for interacting with the tickerdesk-server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new tickerdesk API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Error is a non-2xx response from the server.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("tickerdesk: status %d: %s", e.Status, e.Message)
}

// Bar is one daily row. Indicators are nil when unavailable.
type Bar struct {
	Date   string   `json:"date"`
	Open   float64  `json:"open"`
	High   float64  `json:"high"`
	Low    float64  `json:"low"`
	Close  float64  `json:"close"`
	Volume int64    `json:"volume"`
	K      *float64 `json:"k"`
	D      *float64 `json:"d"`
	MACD   *float64 `json:"macd"`
}

// Record is one watchlist row.
type Record struct {
	Code          string  `json:"code"`
	Name          string  `json:"name"`
	Industry      string  `json:"industry"`
	Currency      string  `json:"currency"`
	History       []Bar   `json:"history"`
	IsPlaceholder bool    `json:"isPlaceholder"`
	Error         bool    `json:"error"`
	ErrorMessage  string  `json:"error_msg"`
	Change        float64 `json:"change"`
	PctChange     float64 `json:"pctChange"`
	EarningsDate  string  `json:"earningsDate"`
	Badge         string  `json:"badge"`
}

// Group is an industry bucket of records.
type Group struct {
	Name    string   `json:"name"`
	Count   int      `json:"count"`
	Records []Record `json:"records"`
}

// Watchlist is the grouped display list.
type Watchlist struct {
	Updated      time.Time `json:"updated"`
	UpdatedLabel string    `json:"updatedLabel"`
	Confirmed    int       `json:"confirmed"`
	Placeholders int       `json:"placeholders"`
	Errored      int       `json:"errored"`
	SortLabel    string    `json:"sortLabel"`
	Groups       []Group   `json:"groups"`
}

// Records flattens the groups in display order.
func (w Watchlist) Records() []Record {
	var out []Record
	for _, g := range w.Groups {
		out = append(out, g.Records...)
	}
	return out
}

// Config is the hosting API configuration. Token is redacted on reads.
type Config struct {
	Token string `json:"token"`
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
}

// Prompt is a rendered LLM prompt.
type Prompt struct {
	Date    string `json:"date"`
	Preview string `json:"preview"`
	Prompt  string `json:"prompt"`
}

// GetWatchlist retrieves the grouped watchlist. sortMode 0 keeps list order.
func (c *Client) GetWatchlist(ctx context.Context, sortMode int) (*Watchlist, error) {
	q := url.Values{}
	if sortMode > 0 {
		q.Set("sort", strconv.Itoa(sortMode))
	}
	var out Watchlist
	if err := c.do(ctx, http.MethodGet, "/api/watchlist", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Add adds code to the watchlist and returns its placeholder record.
func (c *Client) Add(ctx context.Context, code string) (*Record, error) {
	var out Record
	if err := c.do(ctx, http.MethodPut, "/api/watchlist/"+url.PathEscape(code), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Remove removes code from the watchlist.
func (c *Client) Remove(ctx context.Context, code string) error {
	return c.do(ctx, http.MethodDelete, "/api/watchlist/"+url.PathEscape(code), nil, nil, nil)
}

// Refresh reloads the snapshot and returns newly confirmed codes.
func (c *Client) Refresh(ctx context.Context) ([]string, error) {
	var out struct {
		Confirmed []string `json:"confirmed"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/refresh", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Confirmed, nil
}

// Trigger dispatches the batch job.
func (c *Client) Trigger(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/trigger", nil, nil, nil)
}

// GetPrompt renders the prompt for date (YYYY-MM-DD, empty for today).
func (c *Client) GetPrompt(ctx context.Context, date string) (*Prompt, error) {
	q := url.Values{}
	if date != "" {
		q.Set("date", date)
	}
	var out Prompt
	if err := c.do(ctx, http.MethodGet, "/api/prompt", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetConfig retrieves the hosting API configuration with the token redacted.
func (c *Client) GetConfig(ctx context.Context) (*Config, error) {
	var out Config
	if err := c.do(ctx, http.MethodGet, "/api/config", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetConfig stores the hosting API configuration.
func (c *Client) SetConfig(ctx context.Context, cfg Config) error {
	return c.do(ctx, http.MethodPut, "/api/config", nil, cfg, nil)
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, in, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&payload)
		return &Error{Status: resp.StatusCode, Message: payload.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
