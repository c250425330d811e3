package core

import (
	"context"
	"fmt"
	"sync"
)

// Fetcher loads the value for a key. Implementations must honour ctx
// cancellation and should return *Error values.
type Fetcher interface {
	Fetch(ctx context.Context, key Key) (any, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, key Key) (any, error)

func (f FetcherFunc) Fetch(ctx context.Context, key Key) (any, error) {
	return f(ctx, key)
}

// TypedFetcher is a Fetcher producing values of a single type V.
type TypedFetcher[V any] interface {
	Fetch(ctx context.Context, key Key) (V, error)
}

// TypedFetcherFunc adapts a function to the TypedFetcher interface.
type TypedFetcherFunc[V any] func(ctx context.Context, key Key) (V, error)

func (f TypedFetcherFunc[V]) Fetch(ctx context.Context, key Key) (V, error) {
	return f(ctx, key)
}

type typedAdapter[V any] struct {
	f TypedFetcher[V]
}

func (a typedAdapter[V]) Fetch(ctx context.Context, key Key) (any, error) {
	v, err := a.f.Fetch(ctx, key)
	if err != nil {
		return nil, err
	}
	return v, nil
}

type registration struct {
	prefix  Key
	fetcher Fetcher
}

// Registry dispatches keys to fetchers by key prefix. The longest matching
// prefix wins; prefixes may contain Any.
type Registry struct {
	mu   sync.RWMutex
	regs []registration
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register binds f to every key starting with prefix. Registering the same
// prefix twice replaces the earlier fetcher.
func (r *Registry) Register(prefix Key, f Fetcher) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.regs {
		if r.regs[i].prefix.Equal(prefix) {
			r.regs[i].fetcher = f
			return
		}
	}
	r.regs = append(r.regs, registration{prefix: prefix, fetcher: f})
}

// Register binds a typed fetcher in r.
func Register[V any](r *Registry, prefix Key, f TypedFetcher[V]) {
	r.Register(prefix, typedAdapter[V]{f: f})
}

// Lookup returns the fetcher registered for the longest prefix of key.
func (r *Registry) Lookup(key Key) (Fetcher, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		best    Fetcher
		bestLen = -1
	)
	for _, reg := range r.regs {
		if len(reg.prefix) > bestLen && key.HasPrefix(reg.prefix) {
			best, bestLen = reg.fetcher, len(reg.prefix)
		}
	}
	return best, best != nil
}

// Fetch dispatches key to its registered fetcher.
func (r *Registry) Fetch(ctx context.Context, key Key) (any, error) {
	f, ok := r.Lookup(key)
	if !ok {
		return nil, NewError(KindNotFound, key.String(),
			fmt.Errorf("no fetcher registered for key"))
	}
	return f.Fetch(ctx, key)
}
