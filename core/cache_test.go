package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// countingFetcher counts calls and delegates to fn.
type countingFetcher struct {
	calls atomic.Int32
	fn    func(ctx context.Context, key Key, call int32) (any, error)
}

func (f *countingFetcher) Fetch(ctx context.Context, key Key) (any, error) {
	n := f.calls.Add(1)
	return f.fn(ctx, key, n)
}

func fastRetry() *RetryPolicy {
	return &RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func newTestStore(t *testing.T, prefix Key, f Fetcher, opts ...Option) *Store {
	t.Helper()
	reg := NewRegistry()
	reg.Register(prefix, f)
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	s := NewStore(reg, opts...)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	return s
}

type summary struct {
	Total int
}

func TestStore_DedupConcurrentReads(t *testing.T) {
	release := make(chan struct{})
	f := &countingFetcher{fn: func(ctx context.Context, key Key, _ int32) (any, error) {
		<-release
		return &summary{Total: 42}, nil
	}}
	s := newTestStore(t, K("politicians"), f)
	key := K("politicians", 1, "detail")

	const n = 25
	var wg sync.WaitGroup
	results := make([]Entry, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, err := s.Fetch(context.Background(), key, QueryOptions{})
			assert.NoError(t, err)
			results[i] = e
		}(i)
	}

	require.Eventually(t, func() bool {
		e, ok := s.Peek(key)
		return ok && e.Observers == n
	}, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), f.calls.Load())
	for _, e := range results {
		assert.Equal(t, StatusSuccess, e.Status)
		assert.Same(t, results[0].Data, e.Data)
	}
	assert.Equal(t, int64(1), s.Metrics().Fetches.Load())
}

func TestStore_ReadReturnsLoadingWithPreviousData(t *testing.T) {
	release := make(chan struct{})
	f := &countingFetcher{fn: func(ctx context.Context, key Key, call int32) (any, error) {
		if call > 1 {
			<-release
		}
		return int(call), nil
	}}
	s := newTestStore(t, K("politicians"), f)
	key := K("politicians", 1, "detail")

	e, err := s.Fetch(context.Background(), key, QueryOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, e.Data)

	s.Invalidate(key)
	e = s.Read(key, QueryOptions{})
	assert.Equal(t, StatusLoading, e.Status)
	assert.Equal(t, 1, e.Data)
	assert.True(t, e.Fetching())

	// A second read joins the request in flight.
	e2 := s.Read(key, QueryOptions{})
	assert.Equal(t, e.RequestID, e2.RequestID)

	close(release)
	e, err = s.Fetch(context.Background(), key, QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, e.Data)
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestStore_Staleness(t *testing.T) {
	clock := newFakeClock()
	f := &countingFetcher{fn: func(ctx context.Context, key Key, call int32) (any, error) {
		return int(call), nil
	}}
	s := newTestStore(t, K("politicians"), f, WithClock(clock.Now))
	key := K("politicians", 7, "stats", "all")
	opts := QueryOptions{StaleTime: time.Minute}
	ctx := context.Background()

	e, err := s.Fetch(ctx, key, opts)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(time.Minute), e.StaleAt)

	clock.Advance(59 * time.Second)
	e = s.Read(key, opts)
	assert.Equal(t, StatusSuccess, e.Status)
	assert.Equal(t, int32(1), f.calls.Load())

	clock.Advance(time.Second)
	e = s.Read(key, opts)
	assert.Equal(t, StatusLoading, e.Status)

	e, err = s.Fetch(ctx, key, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, e.Data)
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestStore_ScenarioB_FreshReadReturnsSameValue(t *testing.T) {
	f := &countingFetcher{fn: func(ctx context.Context, key Key, _ int32) (any, error) {
		return &summary{Total: 300}, nil
	}}
	s := newTestStore(t, K("politicians", Any, "expenses-summary"), f)
	key := K("politicians", 7, "expenses-summary", "all")
	ctx := context.Background()

	first, err := s.Fetch(ctx, key, QueryOptions{})
	require.NoError(t, err)
	second, err := s.Fetch(ctx, key, QueryOptions{})
	require.NoError(t, err)

	assert.Same(t, first.Data, second.Data)
	assert.Equal(t, int32(1), f.calls.Load())
	assert.Equal(t, int64(1), s.Metrics().Hits.Load())
}

func TestStore_ScenarioC_NotFoundIsNotRetried(t *testing.T) {
	f := &countingFetcher{fn: func(ctx context.Context, key Key, _ int32) (any, error) {
		return nil, ErrorForStatus("/politicos/999", 404)
	}}
	s := newTestStore(t, K("politicians"), f)

	e, err := s.Fetch(context.Background(), K("politicians", 999, "detail"), QueryOptions{})
	require.NoError(t, err)

	assert.Equal(t, StatusError, e.Status)
	require.NotNil(t, e.Err)
	assert.Equal(t, KindNotFound, e.Err.Kind)
	assert.Equal(t, 404, e.Err.Status)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestStore_TransientRetriedThenFails(t *testing.T) {
	f := &countingFetcher{fn: func(ctx context.Context, key Key, _ int32) (any, error) {
		return nil, ErrorForStatus("/politicos/1", 503)
	}}
	s := newTestStore(t, K("politicians"), f)

	e, err := s.Fetch(context.Background(), K("politicians", 1, "detail"), QueryOptions{Retry: fastRetry()})
	require.NoError(t, err)

	assert.Equal(t, StatusError, e.Status)
	assert.Equal(t, KindTransient, e.Err.Kind)
	assert.Equal(t, int32(3), f.calls.Load())
	assert.Equal(t, int64(1), s.Metrics().Errors.Load())
}

func TestStore_TransientRecovers(t *testing.T) {
	f := &countingFetcher{fn: func(ctx context.Context, key Key, call int32) (any, error) {
		if call == 1 {
			return nil, errors.New("connection reset")
		}
		return "ok", nil
	}}
	s := newTestStore(t, K("politicians"), f)

	e, err := s.Fetch(context.Background(), K("politicians", 1, "detail"), QueryOptions{Retry: fastRetry()})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, e.Status)
	assert.Equal(t, "ok", e.Data)
	assert.Nil(t, e.Err)
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestStore_StaleWhileError(t *testing.T) {
	f := &countingFetcher{fn: func(ctx context.Context, key Key, _ int32) (any, error) {
		return nil, ErrorForStatus("/politicos/1", 500)
	}}
	s := newTestStore(t, K("politicians"), f, WithRetryPolicy(NoRetry()))
	key := K("politicians", 1, "detail")

	s.SetData(key, "cached", QueryOptions{})
	s.Invalidate(key)

	e, err := s.Fetch(context.Background(), key, QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, StatusError, e.Status)
	assert.Equal(t, "cached", e.Data)
	assert.True(t, e.HasData())
	assert.Equal(t, KindTransient, e.Err.Kind)
}

func TestStore_LastRequestWins(t *testing.T) {
	slow := make(chan struct{})
	f := &countingFetcher{fn: func(ctx context.Context, key Key, call int32) (any, error) {
		if call == 1 {
			<-slow
			return "old", nil
		}
		return "new", nil
	}}
	s := newTestStore(t, K("politicians"), f)
	key := K("politicians", 1, "detail")

	first := s.Read(key, QueryOptions{})
	require.Eventually(t, func() bool {
		return f.calls.Load() == 1
	}, time.Second, time.Millisecond)
	s.Invalidate(key)
	second := s.Read(key, QueryOptions{})
	assert.Greater(t, second.RequestID, first.RequestID)

	require.Eventually(t, func() bool {
		e, _ := s.Peek(key)
		return e.Status == StatusSuccess
	}, time.Second, time.Millisecond)

	close(slow)
	require.Eventually(t, func() bool {
		return s.Metrics().Discarded.Load() == 1
	}, time.Second, time.Millisecond)

	e, ok := s.Peek(key)
	require.True(t, ok)
	assert.Equal(t, "new", e.Data)
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestStore_InvalidateDuringFlightLandsStale(t *testing.T) {
	release := make(chan struct{})
	f := &countingFetcher{fn: func(ctx context.Context, key Key, call int32) (any, error) {
		<-release
		return int(call), nil
	}}
	s := newTestStore(t, K("politicians"), f)
	key := K("politicians", 1, "detail")

	s.Read(key, QueryOptions{})
	s.Invalidate(key)
	close(release)

	require.Eventually(t, func() bool {
		e, _ := s.Peek(key)
		return e.Status == StatusSuccess
	}, time.Second, time.Millisecond)

	e := s.Read(key, QueryOptions{})
	assert.Equal(t, StatusLoading, e.Status, "invalidated data must trigger a refetch")
}

func TestStore_CancelWhenLastObserverDetaches(t *testing.T) {
	started := make(chan struct{})
	f := &countingFetcher{fn: func(ctx context.Context, key Key, _ int32) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	s := newTestStore(t, K("politicians"), f)
	key := K("politicians", 1, "detail")

	o := s.Observe(key, QueryOptions{})
	assert.Equal(t, StatusLoading, o.Current().Status)

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("fetch did not start")
	}
	o.Close()

	require.Eventually(t, func() bool {
		return s.Metrics().Discarded.Load() == 1
	}, time.Second, time.Millisecond)

	e, ok := s.Peek(key)
	require.True(t, ok)
	assert.Equal(t, StatusIdle, e.Status)
	assert.Nil(t, e.Err)
	assert.Nil(t, e.Data)
	assert.Equal(t, int32(1), f.calls.Load(), "cancelled fetches are not retried")
}

func TestStore_FetchContextCancelled(t *testing.T) {
	f := &countingFetcher{fn: func(ctx context.Context, key Key, _ int32) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	s := newTestStore(t, K("politicians"), f)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := s.Fetch(ctx, K("politicians", 1, "detail"), QueryOptions{})
	require.Error(t, err)
	assert.Equal(t, KindCancelled, KindOf(err))
}

func TestStore_GarbageCollection(t *testing.T) {
	f := &countingFetcher{fn: func(ctx context.Context, key Key, _ int32) (any, error) {
		return "v", nil
	}}
	s := newTestStore(t, K("politicians"), f)
	opts := QueryOptions{GCTime: 20 * time.Millisecond}

	observed := K("politicians", 1, "detail")
	unobserved := K("politicians", 2, "detail")

	o := s.Observe(observed, opts)
	_, err := s.Fetch(context.Background(), unobserved, opts)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := s.Peek(unobserved)
		return !ok
	}, time.Second, 5*time.Millisecond)

	_, ok := s.Peek(observed)
	assert.True(t, ok, "observed entries are never collected")

	o.Close()
	e, ok := s.Peek(observed)
	require.True(t, ok)
	assert.False(t, e.GCAt.IsZero())

	require.Eventually(t, func() bool {
		_, ok := s.Peek(observed)
		return !ok
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(2), s.Metrics().Evictions.Load())
}

func TestStore_EvictedResponseDiscarded(t *testing.T) {
	release := make(chan struct{})
	f := &countingFetcher{fn: func(ctx context.Context, key Key, _ int32) (any, error) {
		<-release
		return "late", nil
	}}
	s := newTestStore(t, K("politicians"), f)
	key := K("politicians", 1, "detail")

	s.Read(key, QueryOptions{GCTime: 5 * time.Millisecond})
	require.Eventually(t, func() bool {
		return s.Len() == 0
	}, time.Second, time.Millisecond)

	close(release)
	require.Eventually(t, func() bool {
		return s.Metrics().Discarded.Load() == 1
	}, time.Second, time.Millisecond)

	_, ok := s.Peek(key)
	assert.False(t, ok)
}

func TestStore_EvictedRequestAdoptedByNewReader(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	f := &countingFetcher{fn: func(ctx context.Context, key Key, call int32) (any, error) {
		started <- struct{}{}
		<-release
		return int(call), nil
	}}
	s := newTestStore(t, K("politicians"), f)
	key := K("politicians", 1, "detail")
	opts := QueryOptions{GCTime: 20 * time.Millisecond}

	s.Read(key, opts)
	<-started
	require.Eventually(t, func() bool {
		return s.Len() == 0
	}, time.Second, time.Millisecond)

	o := s.Observe(key, opts)
	defer o.Close()
	e := o.Current()
	assert.Equal(t, StatusLoading, e.Status)
	assert.True(t, e.Fetching(), "the reader joins the request still in flight")

	close(release)
	e, err := o.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, e.Status)
	assert.Equal(t, 1, e.Data)
	assert.Equal(t, int32(1), f.calls.Load())
	assert.Zero(t, s.Metrics().Discarded.Load())
}

func TestStore_InvalidatePrefix(t *testing.T) {
	f := &countingFetcher{fn: func(ctx context.Context, key Key, call int32) (any, error) {
		return int(call), nil
	}}
	s := newTestStore(t, K("politicians"), f)
	ctx := context.Background()

	for _, k := range []Key{
		K("politicians", 1, "detail"),
		K("politicians", 1, "votes"),
		K("politicians", 2, "detail"),
	} {
		_, err := s.Fetch(ctx, k, QueryOptions{})
		require.NoError(t, err)
	}

	n := s.InvalidatePrefix(K("politicians", Any, "detail"))
	assert.Equal(t, 2, n)

	assert.Equal(t, StatusSuccess, s.Read(K("politicians", 1, "votes"), QueryOptions{}).Status)
	assert.Equal(t, StatusLoading, s.Read(K("politicians", 2, "detail"), QueryOptions{}).Status)
}

func TestStore_UnregisteredKey(t *testing.T) {
	s := NewStore(nil)
	defer s.Close() //nolint:errcheck

	e, err := s.Fetch(context.Background(), K("senators", 1), QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, StatusError, e.Status)
	assert.Equal(t, KindNotFound, e.Err.Kind)
}
