package core

import (
	"context"
	"sync"
)

// Observer is a subscriber interested in one key. While at least one
// observer is attached the entry is never garbage collected; when the last
// one closes, requests in flight for the key are cancelled.
type Observer struct {
	s    *Store
	key  Key
	opts QueryOptions

	mu     sync.Mutex
	e      *entry
	closed bool
}

// Observe attaches an observer to key and reads it, triggering a fetch
// when the entry is stale or absent.
func (s *Store) Observe(key Key, opts QueryOptions) *Observer {
	o := &Observer{s: s, key: key, opts: opts}
	o.Read()
	return o
}

// Key returns the observed key.
func (o *Observer) Key() Key {
	return o.key
}

// entryLocked returns the live entry for the observer, re-attaching when
// the previous one was removed from the Store. Requires o.mu and s.mu.
func (o *Observer) entryLocked() *entry {
	s := o.s
	if o.e != nil && s.entries[o.e.id] == o.e {
		return o.e
	}
	e := s.getOrCreateLocked(o.key, o.opts)
	s.attachLocked(e)
	o.e = e
	return e
}

// Read behaves like Store.Read for the observed key.
func (o *Observer) Read() Entry {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := o.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.closed {
		if e, ok := s.entries[o.key.String()]; ok {
			return e.snapshot()
		}
		return Entry{Key: o.key}
	}
	e := o.entryLocked()
	s.ensureLocked(e, o.opts)
	return e.snapshot()
}

// Current returns the entry without triggering a fetch.
func (o *Observer) Current() Entry {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := o.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.e == nil || s.entries[o.e.id] != o.e {
		return Entry{Key: o.key}
	}
	return o.e.snapshot()
}

// Refetch forces a new request for the observed key.
func (o *Observer) Refetch() Entry {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := o.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.closed {
		return Entry{Key: o.key}
	}
	e := o.entryLocked()
	if e.run == nil {
		s.startLocked(e, o.opts)
	}
	return e.snapshot()
}

// Wait blocks until no request is in flight for the key and returns the
// settled entry. If ctx ends first the current snapshot is returned with
// a KindCancelled error.
func (o *Observer) Wait(ctx context.Context) (Entry, error) {
	for {
		o.mu.Lock()
		o.s.mu.Lock()
		var (
			snap Entry
			run  *fetchRun
		)
		if o.e != nil && o.s.entries[o.e.id] == o.e {
			snap = o.e.snapshot()
			run = o.e.run
		} else {
			snap = Entry{Key: o.key}
		}
		o.s.mu.Unlock()
		o.mu.Unlock()

		if run == nil {
			return snap, nil
		}
		select {
		case <-run.done:
		case <-ctx.Done():
			return snap, &Error{Kind: KindCancelled, Op: o.key.String(), Err: ctx.Err()}
		}
	}
}

// Close detaches the observer. It is safe to call more than once.
func (o *Observer) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return
	}
	o.closed = true

	s := o.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.e != nil && s.entries[o.e.id] == o.e {
		s.detachLocked(o.e)
	}
	o.e = nil
}
