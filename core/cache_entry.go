package core

import (
	"context"
	"time"
)

// Status is the lifecycle state of a cache entry.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "idle"
	}
}

// Entry is a point-in-time snapshot of a cached query. Data is shared with
// the Store and must be treated as immutable.
type Entry struct {
	Key       Key
	Data      any
	Err       *Error
	Status    Status
	FetchedAt time.Time
	StaleAt   time.Time
	GCAt      time.Time // zero while observers are attached
	RequestID uint64    // id of the in-flight request, 0 when none
	Observers int
}

// HasData reports whether a successful fetch ever populated the entry.
func (e Entry) HasData() bool {
	return !e.FetchedAt.IsZero()
}

// Fetching reports whether a request is in flight.
func (e Entry) Fetching() bool {
	return e.RequestID != 0
}

// Data returns the entry data as V.
func Data[V any](e Entry) (V, bool) {
	v, ok := e.Data.(V)
	return v, ok
}

// QueryOptions control the lifecycle of the entries a read touches. Zero
// durations fall back to the Store defaults.
type QueryOptions struct {
	StaleTime time.Duration
	GCTime    time.Duration
	Retry     *RetryPolicy
}

type fetchRun struct {
	id     uint64
	cancel context.CancelFunc
	done   chan struct{}
}

// entry is the mutable record behind an Entry. Guarded by Store.mu.
type entry struct {
	key Key
	id  string

	data      any
	err       *Error
	status    Status
	fetchedAt time.Time
	staleAt   time.Time
	staleTime time.Duration

	// status to restore when the current run is cancelled
	prevStatus Status

	seq        uint64 // latest request id issued for this key
	invalidSeq uint64 // responses with id <= invalidSeq land already stale
	invalid    bool
	run        *fetchRun // run new reads join, nil when none
	runs       map[uint64]*fetchRun

	observers int
	gcTime    time.Duration
	gcAt      time.Time
	gcGen     uint64
	gcTimer   *time.Timer
}

func (e *entry) fresh(now time.Time) bool {
	return e.status != StatusIdle && !e.fetchedAt.IsZero() && !e.invalid && now.Before(e.staleAt)
}

func (e *entry) snapshot() Entry {
	snap := Entry{
		Key:       e.key,
		Data:      e.data,
		Err:       e.err,
		Status:    e.status,
		FetchedAt: e.fetchedAt,
		StaleAt:   e.staleAt,
		GCAt:      e.gcAt,
		Observers: e.observers,
	}
	if e.run != nil {
		snap.RequestID = e.run.id
	}
	return snap
}
