package watchlist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"tickerdesk/internal/domain"
	"tickerdesk/internal/store"
)

// Local storage keys.
const (
	KeyRemoteConfig = "remote_config"
	KeySavedCodes   = "saved_codes"
)

// SaveRemoteConfig persists cfg verbatim.
func (s *Store) SaveRemoteConfig(ctx context.Context, cfg domain.RemoteConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding remote config: %w", err)
	}
	if err := s.kv.Set(ctx, KeyRemoteConfig, data); err != nil {
		return fmt.Errorf("saving remote config: %w", err)
	}
	s.log.Info("remote config saved", "owner", cfg.Owner, "repo", cfg.Repo)
	s.notify(KindSuccess, "settings saved; new tickers will sync to the hosting API")
	return nil
}

// RemoteConfig returns the persisted config. A missing or malformed entry
// reads as empty.
func (s *Store) RemoteConfig(ctx context.Context) domain.RemoteConfig {
	var cfg domain.RemoteConfig
	if !s.readJSON(ctx, KeyRemoteConfig, &cfg) {
		return domain.RemoteConfig{}
	}
	return cfg
}

// SavedCodes returns the locally remembered codes in insertion order.
func (s *Store) SavedCodes(ctx context.Context) []string {
	return s.savedCodes(ctx)
}

func (s *Store) savedCodes(ctx context.Context) []string {
	var codes []string
	if !s.readJSON(ctx, KeySavedCodes, &codes) {
		return nil
	}
	return codes
}

// updateSavedCodes appends code (deduplicated) or filters it out.
func (s *Store) updateSavedCodes(ctx context.Context, code string, isDelete bool) error {
	s.codesMu.Lock()
	defer s.codesMu.Unlock()

	codes := s.savedCodes(ctx)
	if isDelete {
		codes = slices.DeleteFunc(codes, func(c string) bool { return c == code })
	} else {
		if slices.Contains(codes, code) {
			return nil
		}
		codes = append(codes, code)
	}
	if codes == nil {
		codes = []string{}
	}
	data, err := json.Marshal(codes)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, KeySavedCodes, data)
}

// readJSON decodes key into v, reporting false for a missing or unreadable
// entry.
func (s *Store) readJSON(ctx context.Context, key string, v any) bool {
	data, err := s.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.log.Warn("reading local entry", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.log.Warn("malformed local entry", "key", key, "error", err)
		return false
	}
	return true
}
