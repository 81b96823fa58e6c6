package watchlist

import (
	"context"
	"sync"
	"time"

	"tickerdesk/internal/remote"
)

// Refresh reloads the list and returns the codes that went from placeholder
// to confirmed. In background mode a single notification names them.
func (s *Store) Refresh(ctx context.Context, background bool) []string {
	_, confirmed := s.load(ctx)
	if len(confirmed) > 0 {
		s.log.Info("placeholders confirmed", "codes", confirmed, "background", background)
		if background {
			s.notify(KindSuccess, "data ready: "+joinCodes(confirmed), confirmed...)
		}
	}
	return confirmed
}

// NeedsPolling reports whether a placeholder is displayed or a batch run
// was dispatched within the watch window.
func (s *Store) NeedsPolling() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.now().Before(s.watchUntil) {
		return true
	}
	for _, r := range s.records {
		if r.IsPlaceholder {
			return true
		}
	}
	return false
}

// Run refreshes in background mode on every tick while NeedsPolling holds.
// Ticks fire on a fixed interval regardless of whether the previous refresh
// finished; overlapping results are ordered by Load. Run returns when ctx is
// cancelled or the store is closed.
func (s *Store) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if !s.NeedsPolling() {
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.Refresh(ctx, true)
			}()
		}
	}
}

// TriggerBatchRun dispatches the batch job and keeps polling on for the
// configured watch window. It returns remote.ErrNotConfigured when the
// hosting API is not set up.
func (s *Store) TriggerBatchRun(ctx context.Context) error {
	cfg := s.RemoteConfig(ctx)
	if !cfg.Complete() {
		s.notify(KindWarning, "hosting API not configured")
		return remote.ErrNotConfigured
	}
	if err := s.remote.TriggerBatchRun(ctx, cfg); err != nil {
		s.log.Error("triggering batch run", "error", err)
		s.notify(KindError, "sync failed: "+err.Error())
		return err
	}

	s.mu.Lock()
	s.watchUntil = s.now().Add(s.watchFor)
	s.mu.Unlock()

	s.log.Info("batch run triggered", "watch", s.watchFor)
	s.notify(KindInfo, "batch job triggered; watching for new data")
	return nil
}
