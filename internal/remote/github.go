// Package remote persists the watchlist to a file in a GitHub repository and
// dispatches the workflow that rebuilds the snapshot.
package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"tickerdesk/internal/domain"
	"tickerdesk/internal/util"
)

// ErrNotConfigured is returned, without any request being made, when the
// token, owner or repository is missing.
var ErrNotConfigured = errors.New("remote: hosting API not configured")

// APIError describes a failed hosting API call.
type APIError struct {
	Op      string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Message)
}

// ListFile is the decoded watchlist file and its revision marker.
type ListFile struct {
	Codes []string
	SHA   string
}

// Options configure a Client.
type Options struct {
	APIURL          string
	ListPath        string
	Workflow        string
	Branch          string
	RateLimitPerMin int
	Timeout         time.Duration
	// HTTPClient overrides the base client; its transport is wrapped with
	// bearer authentication.
	HTTPClient *http.Client
}

// Client talks to the GitHub REST API.
type Client struct {
	apiURL   string
	listPath string
	workflow string
	branch   string
	base     *http.Client
	limiter  *util.RateLimiter
}

// NewClient creates a Client from opts.
func NewClient(opts Options) *Client {
	base := opts.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		apiURL:   strings.TrimRight(opts.APIURL, "/"),
		listPath: strings.TrimLeft(opts.ListPath, "/"),
		workflow: opts.Workflow,
		branch:   opts.Branch,
		base:     base,
		limiter:  util.NewRateLimiter(opts.RateLimitPerMin, writeBurst),
	}
}

// Token costs against the write budget. Reads are free; a dispatch starts a
// workflow run and is charged double.
const (
	costRead     = 0
	costWrite    = 1
	costDispatch = 2
	writeBurst   = 3
)

// contentsResponse is the subset of the contents API payload we use.
type contentsResponse struct {
	SHA      string `json:"sha"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type putContentsRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha,omitempty"`
	Branch  string `json:"branch,omitempty"`
}

type dispatchRequest struct {
	Ref string `json:"ref"`
}

// ReadListFile returns the codes stored in the list file together with its
// revision marker.
func (c *Client) ReadListFile(ctx context.Context, cfg domain.RemoteConfig) (ListFile, error) {
	if !cfg.Complete() {
		return ListFile{}, ErrNotConfigured
	}
	const op = "read list file"

	var body contentsResponse
	if err := c.do(ctx, cfg, op, costRead, http.MethodGet, c.contentsURL(cfg), nil, http.StatusOK, &body); err != nil {
		return ListFile{}, err
	}
	codes, err := decodeList(body.Content)
	if err != nil {
		return ListFile{}, &APIError{Op: op, Message: err.Error()}
	}
	return ListFile{Codes: codes, SHA: body.SHA}, nil
}

// WriteListFile adds code to, or removes it from, the list file. It reports
// whether the file changed; no write is issued when it would not. A write
// lost to a concurrent edit is rejected by the API and surfaces as an error.
func (c *Client) WriteListFile(ctx context.Context, cfg domain.RemoteConfig, code string, isDelete bool) (bool, error) {
	if !cfg.Complete() {
		return false, ErrNotConfigured
	}
	const op = "write list file"

	current, err := c.ReadListFile(ctx, cfg)
	if err != nil {
		return false, err
	}

	var next []string
	verb := "Add"
	if isDelete {
		verb = "Remove"
		next = slices.DeleteFunc(slices.Clone(current.Codes), func(s string) bool { return s == code })
	} else {
		if slices.Contains(current.Codes, code) {
			return false, nil
		}
		next = append(slices.Clone(current.Codes), code)
	}
	if len(next) == len(current.Codes) {
		return false, nil
	}

	content, err := encodeList(next)
	if err != nil {
		return false, &APIError{Op: op, Message: err.Error()}
	}
	req := putContentsRequest{
		Message: fmt.Sprintf("%s %s via tickerdesk", verb, code),
		Content: content,
		SHA:     current.SHA,
		Branch:  c.branch,
	}
	if err := c.do(ctx, cfg, op, costWrite, http.MethodPut, c.contentsURL(cfg), req, http.StatusOK, nil); err != nil {
		return false, err
	}
	return true, nil
}

// TriggerBatchRun dispatches the snapshot workflow on the configured branch.
// It does not wait for the run to finish.
func (c *Client) TriggerBatchRun(ctx context.Context, cfg domain.RemoteConfig) error {
	if !cfg.Complete() {
		return ErrNotConfigured
	}
	u := fmt.Sprintf("%s/repos/%s/%s/actions/workflows/%s/dispatches",
		c.apiURL, url.PathEscape(cfg.Owner), url.PathEscape(cfg.Repo), url.PathEscape(c.workflow))
	return c.do(ctx, cfg, "trigger batch run", costDispatch, http.MethodPost, u, dispatchRequest{Ref: c.branch}, http.StatusNoContent, nil)
}

func (c *Client) contentsURL(cfg domain.RemoteConfig) string {
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s",
		c.apiURL, url.PathEscape(cfg.Owner), url.PathEscape(cfg.Repo), c.listPath)
}

// httpClient wraps the base client's transport with the user's token.
func (c *Client) httpClient(cfg domain.RemoteConfig) *http.Client {
	base := c.base.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	return &http.Client{
		Timeout: c.base.Timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}),
			Base:   base,
		},
	}
}

func (c *Client) do(ctx context.Context, cfg domain.RemoteConfig, op string, cost int, method, u string, in any, wantStatus int, out any) error {
	if err := c.limiter.WaitN(ctx, cost); err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return &APIError{Op: op, Message: err.Error()}
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return &APIError{Op: op, Message: err.Error()}
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient(cfg).Do(req)
	if err != nil {
		return &APIError{Op: op, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return &APIError{Op: op, Status: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &APIError{Op: op, Status: resp.StatusCode, Message: "decoding response: " + err.Error()}
		}
	}
	return nil
}

// errorMessage extracts the API's "message" field, falling back to the raw
// body.
func errorMessage(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 4096))
	var payload struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Message != "" {
		return payload.Message
	}
	if msg := strings.TrimSpace(string(data)); msg != "" {
		return msg
	}
	return "unexpected response"
}

// decodeList decodes the base64 (line-wrapped) JSON array of codes.
func decodeList(content string) ([]string, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(strings.ReplaceAll(content, "\n", ""), "\r", ""))
	if err != nil {
		return nil, fmt.Errorf("decoding content: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return []string{}, nil
	}
	var codes []string
	if err := json.Unmarshal(raw, &codes); err != nil {
		return nil, fmt.Errorf("parsing list: %w", err)
	}
	return codes, nil
}

// encodeList renders codes as an indented JSON array in base64.
func encodeList(codes []string) (string, error) {
	if codes == nil {
		codes = []string{}
	}
	data, err := json.MarshalIndent(codes, "", "  ")
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
