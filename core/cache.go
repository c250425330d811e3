package core

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Default lifecycle durations
const (
	DefaultStaleTime = 5 * time.Minute
	DefaultGCTime    = 10 * time.Minute
)

// Store maps query keys to cache entries. It deduplicates concurrent
// requests for the same key, serves fresh entries without fetching, keeps
// data from the last success when a refetch fails and evicts entries nobody
// observed for their GC time.
//
// A Store never returns fetch failures as Go errors; they are recorded on
// the entry. Applications create one Store at startup and share it; tests
// create one per test.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	closed  bool

	// evicted holds entries collected while a request was in flight, so a
	// reader arriving before the response adopts that request.
	evicted map[string]*entry

	reg      *Registry
	log      *zap.Logger
	metrics  *CacheMetrics
	now      func() time.Time
	defaults QueryOptions
	retry    RetryPolicy

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used by the Store.
func WithLogger(log *zap.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock replaces time.Now for staleness bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithDefaults sets the stale and GC times used when a read leaves them unset.
func WithDefaults(staleTime, gcTime time.Duration) Option {
	return func(s *Store) {
		if staleTime > 0 {
			s.defaults.StaleTime = staleTime
		}
		if gcTime > 0 {
			s.defaults.GCTime = gcTime
		}
	}
}

// WithRetryPolicy sets the policy used when a read does not carry its own.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(s *Store) {
		s.retry = p
	}
}

// NewStore creates an isolated Store that fetches through reg.
func NewStore(reg *Registry, opts ...Option) *Store {
	if reg == nil {
		reg = NewRegistry()
	}
	s := &Store{
		entries: make(map[string]*entry),
		evicted: make(map[string]*entry),
		reg:     reg,
		log:     zap.NewNop(),
		metrics: newCacheMetrics(),
		now:     time.Now,
		defaults: QueryOptions{
			StaleTime: DefaultStaleTime,
			GCTime:    DefaultGCTime,
		},
		retry: DefaultRetryPolicy(),
	}
	for _, o := range opts {
		o(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Registry returns the registry the Store fetches through.
func (s *Store) Registry() *Registry {
	return s.reg
}

// Metrics returns the cache metrics
func (s *Store) Metrics() *CacheMetrics {
	return s.metrics
}

// Read returns the entry for key. A fresh entry is returned as-is. A stale
// or absent entry triggers one fetch, joined by any request already in
// flight for the key, and is returned with its previous data and
// StatusLoading.
func (s *Store) Read(key Key, opts QueryOptions) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.getOrCreateLocked(key, opts)
	s.ensureLocked(e, opts)
	return e.snapshot()
}

// Fetch reads key and blocks until no request is in flight for it. The
// returned error is non-nil only when ctx ends first; it is then a
// KindCancelled *Error and the entry snapshot is the one seen at that time.
func (s *Store) Fetch(ctx context.Context, key Key, opts QueryOptions) (Entry, error) {
	o := s.Observe(key, opts)
	defer o.Close()
	return o.Wait(ctx)
}

// Refetch starts a new request for key even when the entry is fresh. An
// in-flight request is joined rather than duplicated.
func (s *Store) Refetch(key Key, opts QueryOptions) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.getOrCreateLocked(key, opts)
	if e.run == nil {
		s.startLocked(e, opts)
	}
	return e.snapshot()
}

// Peek returns the entry for key without touching its lifecycle.
func (s *Store) Peek(key Key) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key.String()]
	if !ok {
		return Entry{}, false
	}
	return e.snapshot(), true
}

// Invalidate forces the next read of key to refetch regardless of
// staleness. A request in flight keeps running but new reads no longer
// join it; if it is the last one issued its data lands already stale.
func (s *Store) Invalidate(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key.String()]; ok {
		s.invalidateLocked(e)
	}
}

// InvalidatePrefix invalidates every entry whose key starts with prefix.
// It returns the number of entries invalidated.
func (s *Store) InvalidatePrefix(prefix Key) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, e := range s.entries {
		if e.key.HasPrefix(prefix) {
			s.invalidateLocked(e)
			n++
		}
	}
	return n
}

func (s *Store) invalidateLocked(e *entry) {
	e.invalid = true
	e.invalidSeq = e.seq
	e.run = nil
	s.metrics.Invalidations.Add(1)
}

// SetData stores data for key as if a fetch had just succeeded. Responses
// to requests issued before the call are discarded.
func (s *Store) SetData(key Key, data any, opts QueryOptions) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.getOrCreateLocked(key, opts)
	e.seq++
	e.run = nil
	s.applySuccessLocked(e, data, s.staleTime(opts), false)
	return e.snapshot()
}

// Remove drops the entry for key. In-flight requests are not cancelled but
// their responses are discarded.
func (s *Store) Remove(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key.String()]; ok {
		s.removeLocked(e)
	}
	delete(s.evicted, key.String())
}

// Len returns the number of entries currently held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close cancels every in-flight request, stops GC timers and drops all
// entries. It waits for running fetches to return.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cancel()
	for _, e := range s.entries {
		if e.gcTimer != nil {
			e.gcTimer.Stop()
		}
	}
	s.entries = make(map[string]*entry)
	s.evicted = make(map[string]*entry)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

func (s *Store) staleTime(opts QueryOptions) time.Duration {
	if opts.StaleTime > 0 {
		return opts.StaleTime
	}
	return s.defaults.StaleTime
}

func (s *Store) gcTime(opts QueryOptions) time.Duration {
	if opts.GCTime > 0 {
		return opts.GCTime
	}
	return s.defaults.GCTime
}

func (s *Store) retryPolicy(opts QueryOptions) RetryPolicy {
	if opts.Retry != nil {
		return *opts.Retry
	}
	return s.retry
}

func (s *Store) getOrCreateLocked(key Key, opts QueryOptions) *entry {
	id := key.String()
	gcTime := s.gcTime(opts)

	if e, ok := s.entries[id]; ok {
		if gcTime > e.gcTime {
			e.gcTime = gcTime
		}
		return e
	}

	if e, ok := s.evicted[id]; ok {
		delete(s.evicted, id)
		if gcTime > e.gcTime {
			e.gcTime = gcTime
		}
		s.entries[id] = e
		s.scheduleGCLocked(e)
		s.log.Debug("evicted entry revived",
			zap.String("key", id),
			zap.Uint64("request_id", e.run.id))
		return e
	}

	e := &entry{
		key:       key,
		id:        id,
		staleTime: s.staleTime(opts),
		gcTime:    gcTime,
		runs:      make(map[uint64]*fetchRun),
	}
	s.entries[id] = e
	s.scheduleGCLocked(e)
	return e
}

// ensureLocked starts a fetch for a stale or absent entry unless one is
// already in flight.
func (s *Store) ensureLocked(e *entry, opts QueryOptions) {
	ctx := s.ctx
	if e.fresh(s.now()) {
		s.metrics.recordHit(ctx)
		return
	}
	s.metrics.recordMiss(ctx)
	if e.run == nil {
		s.startLocked(e, opts)
	}
}

func (s *Store) startLocked(e *entry, opts QueryOptions) {
	if s.closed {
		return
	}

	e.seq++
	ctx, cancel := context.WithCancel(s.ctx)
	run := &fetchRun{
		id:     e.seq,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	e.run = run
	e.runs[run.id] = run
	if e.status != StatusLoading {
		e.prevStatus = e.status
	}
	e.status = StatusLoading
	e.staleTime = s.staleTime(opts)

	policy := s.retryPolicy(opts)
	s.metrics.recordFetch(ctx)
	s.log.Debug("fetch started",
		zap.String("key", e.id),
		zap.Uint64("request_id", run.id))

	s.wg.Add(1)
	go s.execute(ctx, e, run, policy)
}

func (s *Store) execute(ctx context.Context, e *entry, run *fetchRun, policy RetryPolicy) {
	defer s.wg.Done()
	defer close(run.done)
	defer run.cancel()

	var data any
	err := Retry(ctx, policy, s.log, func(ctx context.Context) error {
		v, err := s.reg.Fetch(ctx, e.key)
		if err != nil {
			return err
		}
		data = v
		return nil
	})
	if err == nil && ctx.Err() != nil {
		err = &Error{Kind: KindCancelled, Op: e.id, Err: ctx.Err()}
	}
	s.settle(e, run, data, err)
}

// settle applies the outcome of run. Responses for evicted entries,
// superseded requests and cancelled requests never reach the cache.
func (s *Store) settle(e *entry, run *fetchRun, data any, err *Error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(e.runs, run.id)
	if s.evicted[e.id] == e && e.run == run {
		delete(s.evicted, e.id)
	}
	ctx := context.Background()

	reason := ""
	switch {
	case s.entries[e.id] != e:
		reason = "evicted"
	case run.id != e.seq:
		reason = "superseded"
	case err != nil && err.Kind == KindCancelled:
		reason = "cancelled"
		if e.run == run {
			e.run = nil
		}
		e.status = e.prevStatus
	}
	if reason != "" {
		s.metrics.recordDiscard(ctx)
		s.log.Debug("response discarded",
			zap.String("key", e.id),
			zap.Uint64("request_id", run.id),
			zap.String("reason", reason))
		return
	}

	if e.run == run {
		e.run = nil
	}

	if err != nil {
		s.metrics.recordError(ctx)
		e.err = err
		e.status = StatusError
		s.log.Debug("fetch failed",
			zap.String("key", e.id),
			zap.Uint64("request_id", run.id),
			zap.String("kind", string(err.Kind)))
		return
	}

	s.applySuccessLocked(e, data, e.staleTime, run.id <= e.invalidSeq)
}

func (s *Store) applySuccessLocked(e *entry, data any, staleTime time.Duration, stale bool) {
	now := s.now()
	e.data = data
	e.err = nil
	e.status = StatusSuccess
	e.fetchedAt = now
	e.staleAt = now.Add(staleTime)
	e.invalid = stale
	if stale {
		e.staleAt = now
	}
}

func (s *Store) removeLocked(e *entry) {
	if e.gcTimer != nil {
		e.gcTimer.Stop()
		e.gcTimer = nil
	}
	delete(s.entries, e.id)
}

// attachLocked registers an observer on e and suspends its GC.
func (s *Store) attachLocked(e *entry) {
	e.observers++
	e.gcGen++
	e.gcAt = time.Time{}
	if e.gcTimer != nil {
		e.gcTimer.Stop()
		e.gcTimer = nil
	}
}

// detachLocked unregisters an observer. When the last one leaves, requests
// still in flight are cancelled and the GC timer starts.
func (s *Store) detachLocked(e *entry) {
	if e.observers == 0 {
		return
	}
	e.observers--
	if e.observers > 0 {
		return
	}
	for _, run := range e.runs {
		run.cancel()
	}
	e.run = nil
	if s.entries[e.id] == e {
		s.scheduleGCLocked(e)
	}
}

func (s *Store) scheduleGCLocked(e *entry) {
	if e.observers > 0 || s.closed {
		return
	}
	if e.gcTimer != nil {
		e.gcTimer.Stop()
	}
	e.gcGen++
	gen := e.gcGen
	e.gcAt = s.now().Add(e.gcTime)
	e.gcTimer = time.AfterFunc(e.gcTime, func() {
		s.collect(e, gen)
	})
}

// collect evicts e unless it was observed or rescheduled since the timer
// was armed. A request in flight is left running: a read of the key before
// it settles revives the entry and joins it, otherwise the response is
// discarded on arrival.
func (s *Store) collect(e *entry, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entries[e.id] != e || e.gcGen != gen || e.observers > 0 {
		return
	}
	s.removeLocked(e)
	if e.run != nil {
		s.evicted[e.id] = e
	}
	s.metrics.recordEviction(context.Background())
	s.log.Debug("entry evicted", zap.String("key", e.id))
}
