// Package watchlist reconciles the batch job's snapshot, the locally
// remembered codes and the in-memory display list, and owns the add/remove
// operations and their side effects.
package watchlist

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"tickerdesk/internal/domain"
	"tickerdesk/internal/placeholder"
	"tickerdesk/internal/store"
)

var (
	// ErrEmptyCode is returned by Add for blank input.
	ErrEmptyCode = errors.New("watchlist: empty ticker code")
	// ErrDuplicate is returned by Add when the code is already displayed.
	ErrDuplicate = errors.New("watchlist: ticker already in list")
)

// SnapshotSource fetches the confirmed records published by the batch job.
type SnapshotSource interface {
	Fetch(ctx context.Context) ([]domain.TickerRecord, error)
}

// RemoteSync persists list edits to the hosting API and dispatches the batch
// job.
type RemoteSync interface {
	WriteListFile(ctx context.Context, cfg domain.RemoteConfig, code string, isDelete bool) (bool, error)
	TriggerBatchRun(ctx context.Context, cfg domain.RemoteConfig) error
}

// Mirror receives list edits on a best-effort basis, e.g. a broker watchlist.
type Mirror interface {
	AddSymbol(ctx context.Context, code string) error
	RemoveSymbol(ctx context.Context, code string) error
}

// HistoryWriter archives confirmed bars.
type HistoryWriter interface {
	WriteHistory(ctx context.Context, code string, bars []domain.Bar) error
}

// Options wires a Store. Snapshot, KV and Remote are required.
type Options struct {
	Snapshot     SnapshotSource
	KV           store.KV
	Remote       RemoteSync
	Mirror       Mirror
	Archive      HistoryWriter
	Placeholders placeholder.Generator

	// RefreshInterval is the Run tick. TriggerWatch is how long polling stays
	// on after a batch run is dispatched.
	RefreshInterval time.Duration
	TriggerWatch    time.Duration

	Logger *slog.Logger
	Now    func() time.Time
}

// Store holds the display list.
type Store struct {
	snapshot SnapshotSource
	kv       store.KV
	remote   RemoteSync
	mirror   Mirror
	archive  HistoryWriter
	gen      placeholder.Generator
	interval time.Duration
	watchFor time.Duration
	log      *slog.Logger
	now      func() time.Time

	mu          sync.RWMutex
	records     []domain.TickerRecord
	lastUpdated time.Time
	applied     uint64    // sequence of the last state written to records
	watchUntil  time.Time // batch trigger watch window
	// Codes confirmed before a failed fetch and shown as placeholders since.
	// Their return is not a new arrival.
	outage map[string]struct{}
	issued      atomic.Uint64

	codesMu sync.Mutex // serializes read-modify-write of saved codes

	archMu   sync.Mutex
	archived map[string]string // code -> newest archived date

	subsMu    sync.Mutex
	nextSubID int
	subs      map[int]chan Notification

	lifeMu sync.Mutex
	closed bool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Store. Call Load to populate it and Close to release it.
func New(opts Options) *Store {
	s := &Store{
		snapshot: opts.Snapshot,
		kv:       opts.KV,
		remote:   opts.Remote,
		mirror:   opts.Mirror,
		archive:  opts.Archive,
		gen:      opts.Placeholders,
		interval: opts.RefreshInterval,
		watchFor: opts.TriggerWatch,
		log:      opts.Logger,
		now:      opts.Now,
		archived: make(map[string]string),
		subs:     make(map[int]chan Notification),
		outage:   make(map[string]struct{}),
	}
	if s.gen == nil {
		s.gen = placeholder.NewRandomWalk()
	}
	if s.interval <= 0 {
		s.interval = 30 * time.Second
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Load fetches the snapshot and merges it with the locally remembered codes.
// Codes the snapshot lacks are shown as placeholders, reusing the one already
// displayed for that code. A failed fetch yields an empty base list.
//
// Load reports whether its result was applied. A result is discarded when a
// newer load or edit has been applied meanwhile, or when ctx or the store
// ended while the fetch was in flight.
func (s *Store) Load(ctx context.Context) bool {
	applied, _ := s.load(ctx)
	return applied
}

// load also returns the codes whose displayed placeholder was replaced by a
// confirmed record. Transitions are computed against the state being
// replaced, so overlapping loads report each one once.
func (s *Store) load(ctx context.Context) (bool, []string) {
	seq := s.issued.Add(1)

	snap, err := s.snapshot.Fetch(ctx)
	if err != nil {
		s.log.Warn("loading snapshot", "error", err)
		snap = nil
	}
	codes := s.savedCodes(ctx)

	if ctx.Err() != nil || s.ctx.Err() != nil {
		return false, nil
	}

	s.mu.Lock()
	if seq < s.applied {
		s.mu.Unlock()
		s.log.Debug("discarding stale load", "seq", seq, "applied", s.applied)
		return false, nil
	}
	s.applied = seq

	present := make(map[string]struct{}, len(snap))
	for _, r := range snap {
		present[r.Code] = struct{}{}
	}
	shown := make(map[string]domain.TickerRecord)
	for _, r := range s.records {
		if r.IsPlaceholder {
			shown[r.Code] = r
		}
	}

	var confirmed []string
	for _, r := range snap {
		if _, ok := shown[r.Code]; !ok {
			continue
		}
		if _, ok := s.outage[r.Code]; ok {
			continue
		}
		confirmed = append(confirmed, r.Code)
	}
	if len(confirmed) > 0 {
		s.watchUntil = time.Time{}
	}
	if err != nil {
		for _, r := range s.records {
			if !r.IsPlaceholder {
				s.outage[r.Code] = struct{}{}
			}
		}
	} else {
		clear(s.outage)
	}

	list := slices.Clone(snap)
	now := s.now()
	for _, code := range codes {
		if _, ok := present[code]; ok {
			continue
		}
		present[code] = struct{}{}
		if r, ok := shown[code]; ok {
			list = append(list, r)
			continue
		}
		list = append(list, s.gen.Generate(code, now))
	}
	s.records = list
	if err == nil {
		s.lastUpdated = now
	}
	s.mu.Unlock()

	if err == nil {
		s.archiveConfirmed(ctx, snap)
	}
	return true, confirmed
}

// Add validates and normalizes input, prepends a placeholder for it and
// remembers it locally. Persistence to the hosting API happens in the
// background and reports back through notifications.
func (s *Store) Add(ctx context.Context, input string) (domain.TickerRecord, error) {
	code := domain.NormalizeCode(input)
	if code == "" {
		return domain.TickerRecord{}, ErrEmptyCode
	}

	s.mu.Lock()
	if slices.ContainsFunc(s.records, func(r domain.TickerRecord) bool { return r.Code == code }) {
		s.mu.Unlock()
		return domain.TickerRecord{}, ErrDuplicate
	}
	rec := s.gen.Generate(code, s.now())
	s.records = append([]domain.TickerRecord{rec}, s.records...)
	s.applied = s.issued.Add(1)
	s.mu.Unlock()

	if err := s.updateSavedCodes(ctx, code, false); err != nil {
		s.log.Warn("remembering code", "code", code, "error", err)
	}
	s.log.Info("ticker added", "code", code)

	cfg := s.RemoteConfig(ctx)
	if !cfg.Complete() {
		s.notify(KindInfo, "saved locally (hosting API not configured)", code)
	} else {
		s.syncCode(cfg, code, false)
	}
	s.mirrorCode(code, false)
	return rec, nil
}

// Remove drops code from the display list and the local list immediately. The
// hosting API delete runs in the background; local state is never rolled back.
func (s *Store) Remove(ctx context.Context, code string) error {
	code = domain.NormalizeCode(code)
	if code == "" {
		return ErrEmptyCode
	}

	s.mu.Lock()
	s.records = slices.DeleteFunc(slices.Clone(s.records), func(r domain.TickerRecord) bool { return r.Code == code })
	delete(s.outage, code)
	s.applied = s.issued.Add(1)
	s.mu.Unlock()

	if err := s.updateSavedCodes(ctx, code, true); err != nil {
		s.log.Warn("forgetting code", "code", code, "error", err)
	}
	s.log.Info("ticker removed", "code", code)

	if cfg := s.RemoteConfig(ctx); cfg.Complete() {
		s.syncCode(cfg, code, true)
	}
	s.mirrorCode(code, true)
	return nil
}

// Records returns a copy of the display list.
func (s *Store) Records() []domain.TickerRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.records)
}

// Get returns the displayed record for code.
func (s *Store) Get(code string) (domain.TickerRecord, bool) {
	code = domain.NormalizeCode(code)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if r.Code == code {
			return r, true
		}
	}
	return domain.TickerRecord{}, false
}

// LastUpdated returns when the snapshot was last fetched successfully.
func (s *Store) LastUpdated() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdated
}

// Close cancels in-flight background operations and waits for them. Their
// results are not applied afterwards.
func (s *Store) Close() {
	s.lifeMu.Lock()
	if s.closed {
		s.lifeMu.Unlock()
		return
	}
	s.closed = true
	s.lifeMu.Unlock()

	s.cancel()
	s.wg.Wait()

	s.subsMu.Lock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	s.subsMu.Unlock()
}

// Wait blocks until background operations started so far have finished. The
// command-line client calls it before exiting so edits reach the hosting API.
func (s *Store) Wait() {
	s.wg.Wait()
}

// goAsync runs fn on the store lifetime context. It is a no-op after Close.
func (s *Store) goAsync(fn func(ctx context.Context)) {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.closed {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
}

// syncCode writes an edit to the hosting API in the background.
func (s *Store) syncCode(cfg domain.RemoteConfig, code string, isDelete bool) {
	s.goAsync(func(ctx context.Context) {
		changed, err := s.remote.WriteListFile(ctx, cfg, code, isDelete)
		if ctx.Err() != nil {
			return
		}
		switch {
		case err != nil:
			s.log.Error("syncing list file", "code", code, "delete", isDelete, "error", err)
			s.notify(KindError, "sync failed: "+err.Error(), code)
		case !changed:
			s.log.Debug("list file already up to date", "code", code, "delete", isDelete)
			s.notify(KindInfo, code+" already up to date on the hosting list", code)
		default:
			s.notify(KindSuccess, "synced "+code+"; batch job will refresh data shortly", code)
		}
	})
}

func (s *Store) mirrorCode(code string, isDelete bool) {
	if s.mirror == nil {
		return
	}
	s.goAsync(func(ctx context.Context) {
		var err error
		if isDelete {
			err = s.mirror.RemoveSymbol(ctx, code)
		} else {
			err = s.mirror.AddSymbol(ctx, code)
		}
		if err != nil && ctx.Err() == nil {
			s.log.Warn("mirroring watchlist edit", "code", code, "delete", isDelete, "error", err)
		}
	})
}

// archiveConfirmed stores the history of confirmed records whose newest bar
// has not been archived yet.
func (s *Store) archiveConfirmed(ctx context.Context, records []domain.TickerRecord) {
	if s.archive == nil {
		return
	}
	s.archMu.Lock()
	defer s.archMu.Unlock()
	for _, r := range records {
		if r.Error || len(r.History) == 0 {
			continue
		}
		newest := r.History[0].Date
		if s.archived[r.Code] == newest {
			continue
		}
		if err := s.archive.WriteHistory(ctx, r.Code, r.History); err != nil {
			s.log.Warn("archiving history", "code", r.Code, "error", err)
			continue
		}
		s.archived[r.Code] = newest
	}
}
