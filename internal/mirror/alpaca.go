// Package mirror copies watchlist edits to an Alpaca account watchlist so
// US tickers also show up in the broker's apps.
package mirror

import (
	"context"
	"fmt"
	"sort"
	"sync"

	alpacaapi "github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"

	"tickerdesk/internal/domain"
)

// watchlistAPI is the subset of the Alpaca client the mirror needs.
type watchlistAPI interface {
	GetWatchlists() ([]alpacaapi.Watchlist, error)
	GetWatchlist(watchlistID string) (*alpacaapi.Watchlist, error)
	CreateWatchlist(req alpacaapi.CreateWatchlistRequest) (*alpacaapi.Watchlist, error)
	AddSymbolToWatchlist(watchlistID string, req alpacaapi.AddSymbolToWatchlistRequest) (*alpacaapi.Watchlist, error)
	RemoveSymbolFromWatchlist(watchlistID string, req alpacaapi.RemoveSymbolFromWatchlistRequest) error
}

// Alpaca mirrors US codes into a named Alpaca watchlist. Taiwan-listed codes
// are skipped.
type Alpaca struct {
	api  watchlistAPI
	name string

	mu      sync.Mutex
	id      string
	symbols map[string]bool
}

// NewAlpaca creates a mirror for the watchlist called name.
func NewAlpaca(apiKey, apiSecret, baseURL, name string) *Alpaca {
	client := alpacaapi.NewClient(alpacaapi.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	})
	return newAlpaca(client, name)
}

func newAlpaca(api watchlistAPI, name string) *Alpaca {
	return &Alpaca{api: api, name: name}
}

// AddSymbol adds code to the watchlist.
func (a *Alpaca) AddSymbol(ctx context.Context, code string) error {
	if domain.IsRegionCode(code) {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.ensureLocked(ctx); err != nil {
		return err
	}
	if a.symbols[code] {
		return nil
	}
	if _, err := a.api.AddSymbolToWatchlist(a.id, alpacaapi.AddSymbolToWatchlistRequest{Symbol: code}); err != nil {
		return fmt.Errorf("adding %s to alpaca watchlist: %w", code, err)
	}
	a.symbols[code] = true
	return nil
}

// RemoveSymbol removes code from the watchlist.
func (a *Alpaca) RemoveSymbol(ctx context.Context, code string) error {
	if domain.IsRegionCode(code) {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.ensureLocked(ctx); err != nil {
		return err
	}
	if !a.symbols[code] {
		return nil
	}
	if err := a.api.RemoveSymbolFromWatchlist(a.id, alpacaapi.RemoveSymbolFromWatchlistRequest{Symbol: code}); err != nil {
		return fmt.Errorf("removing %s from alpaca watchlist: %w", code, err)
	}
	delete(a.symbols, code)
	return nil
}

// Symbols returns the mirrored symbols, sorted.
func (a *Alpaca) Symbols(ctx context.Context) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.ensureLocked(ctx); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(a.symbols))
	for s := range a.symbols {
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

// ensureLocked gets or creates the named watchlist on first use. Must be
// called with mu held.
func (a *Alpaca) ensureLocked(ctx context.Context) error {
	if a.id != "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	lists, err := a.api.GetWatchlists()
	if err != nil {
		return fmt.Errorf("listing alpaca watchlists: %w", err)
	}
	for _, w := range lists {
		if w.Name != a.name {
			continue
		}
		// GetWatchlists doesn't include assets; fetch the full watchlist.
		full, err := a.api.GetWatchlist(w.ID)
		if err != nil {
			return fmt.Errorf("loading alpaca watchlist: %w", err)
		}
		a.symbols = make(map[string]bool, len(full.Assets))
		for _, asset := range full.Assets {
			a.symbols[asset.Symbol] = true
		}
		a.id = w.ID
		return nil
	}

	w, err := a.api.CreateWatchlist(alpacaapi.CreateWatchlistRequest{Name: a.name})
	if err != nil {
		return fmt.Errorf("creating alpaca watchlist: %w", err)
	}
	a.id = w.ID
	a.symbols = make(map[string]bool)
	return nil
}
