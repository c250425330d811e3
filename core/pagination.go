package core

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Page size bounds. DefaultPageSize is used when a Pager is created
// without a limit; larger limits are cut to MaxPageSize, the most the API
// returns per request.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page is one slice of an offset-paginated list. HasMore is derived from
// the item count: a full page means more data may follow. A list whose
// length is an exact multiple of the limit therefore costs one extra,
// empty request at the end.
type Page[T any] struct {
	Items   []T
	Offset  int
	Limit   int
	HasMore bool
}

// NewPage builds a page from the items returned for (offset, limit).
func NewPage[T any](items []T, offset, limit int) Page[T] {
	return Page[T]{
		Items:   items,
		Offset:  offset,
		Limit:   limit,
		HasMore: limit > 0 && len(items) >= limit,
	}
}

// NextPageParam returns the offset of the page after last, or false when
// last was the final page.
func NextPageParam[T any](last Page[T]) (int, bool) {
	if !last.HasMore {
		return 0, false
	}
	return last.Offset + len(last.Items), true
}

// Flatten concatenates page items in page order.
func Flatten[T any](pages []Page[T]) []T {
	n := 0
	for _, p := range pages {
		n += len(p.Items)
	}
	out := make([]T, 0, n)
	for _, p := range pages {
		out = append(out, p.Items...)
	}
	return out
}

// PageKey returns the cache key of the page at offset for a list.
func PageKey(base Key, limit, offset int) Key {
	return base.Append(limit, offset)
}

// PageFetcher loads the raw items of one page.
type PageFetcher[T any] interface {
	FetchPage(ctx context.Context, base Key, offset, limit int) ([]T, error)
}

// PageFetcherFunc adapts a function to the PageFetcher interface.
type PageFetcherFunc[T any] func(ctx context.Context, base Key, offset, limit int) ([]T, error)

func (f PageFetcherFunc[T]) FetchPage(ctx context.Context, base Key, offset, limit int) ([]T, error) {
	return f(ctx, base, offset, limit)
}

// RegisterPages binds a page fetcher to the keys PageKey builds from bases
// starting with prefix. Cached values are Page[T].
func RegisterPages[T any](r *Registry, prefix Key, f PageFetcher[T]) {
	r.Register(prefix, FetcherFunc(func(ctx context.Context, key Key) (any, error) {
		limit, ok := key.Int(-2)
		offset, ok2 := key.Int(-1)
		if !ok || !ok2 || len(key) < 2 {
			return nil, NewError(KindNotFound, key.String(),
				fmt.Errorf("key has no limit/offset segments"))
		}
		items, err := f.FetchPage(ctx, key[:len(key)-2], offset, limit)
		if err != nil {
			return nil, err
		}
		return NewPage(items, offset, limit), nil
	}))
}

// Pager walks an offset-paginated list through a Store. Every page is its
// own cache entry, observed for as long as the Pager is open, so pages
// survive the invalidation of their siblings.
//
// Offsets are fixed once a page is fetched: refetching never reorders items
// already observed. Insertions at the head of the remote list can still
// duplicate or skip items across page boundaries.
type Pager[T any] struct {
	store *Store
	base  Key
	limit int
	opts  QueryOptions

	mu        sync.Mutex
	offsets   []int
	observers []*Observer
	closed    bool

	sf singleflight.Group
}

// NewPager returns a Pager over the list identified by base. Nothing is
// fetched until FetchNextPage. The limit is clamped to 1..MaxPageSize.
func NewPager[T any](store *Store, base Key, limit int, opts QueryOptions) *Pager[T] {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return &Pager[T]{
		store: store,
		base:  base,
		limit: limit,
		opts:  opts,
	}
}

// Base returns the list key.
func (p *Pager[T]) Base() Key {
	return p.base
}

// Limit returns the page size.
func (p *Pager[T]) Limit() int {
	return p.limit
}

// FetchNextPage loads the page following the last loaded one; the first
// call loads offset 0. If the last page failed it is fetched again. It
// returns false without a request when the list is exhausted. Concurrent
// calls share one request.
func (p *Pager[T]) FetchNextPage(ctx context.Context) (Page[T], bool, error) {
	type result struct {
		page Page[T]
		ok   bool
	}
	v, err, _ := p.sf.Do(p.base.String(), func() (any, error) {
		page, ok, err := p.fetchNext(ctx)
		return result{page, ok}, err
	})
	r, _ := v.(result)
	return r.page, r.ok, err
}

func (p *Pager[T]) fetchNext(ctx context.Context) (Page[T], bool, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return Page[T]{}, false, NewError(KindCancelled, p.base.String(),
			fmt.Errorf("pager closed"))
	}

	var o *Observer
	if n := len(p.observers); n == 0 {
		o = p.attachLocked(0)
	} else {
		last := p.observers[n-1]
		page, ok := Data[Page[T]](last.Current())
		if !ok {
			o = last
			o.Read()
		} else {
			next, more := NextPageParam(page)
			if !more {
				p.mu.Unlock()
				return Page[T]{}, false, nil
			}
			o = p.attachLocked(next)
		}
	}
	p.mu.Unlock()

	e, err := o.Wait(ctx)
	if err != nil {
		return Page[T]{}, true, err
	}
	if e.Err != nil {
		return Page[T]{}, true, e.Err
	}
	page, _ := Data[Page[T]](e)
	return page, true, nil
}

func (p *Pager[T]) attachLocked(offset int) *Observer {
	o := p.store.Observe(PageKey(p.base, p.limit, offset), p.opts)
	p.offsets = append(p.offsets, offset)
	p.observers = append(p.observers, o)
	return o
}

// HasNextPage reports whether FetchNextPage may load more items.
func (p *Pager[T]) HasNextPage() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.observers)
	if n == 0 {
		return !p.closed
	}
	page, ok := Data[Page[T]](p.observers[n-1].Current())
	if !ok {
		return true
	}
	return page.HasMore
}

// Pages returns the loaded pages in fetch order, stopping at the first page
// that has no data yet.
func (p *Pager[T]) Pages() []Page[T] {
	p.mu.Lock()
	defer p.mu.Unlock()

	pages := make([]Page[T], 0, len(p.observers))
	for _, o := range p.observers {
		page, ok := Data[Page[T]](o.Current())
		if !ok {
			break
		}
		pages = append(pages, page)
	}
	return pages
}

// Items returns every item observed so far as one ordered list.
func (p *Pager[T]) Items() []T {
	return Flatten(p.Pages())
}

// Offsets returns the page params requested so far.
func (p *Pager[T]) Offsets() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.offsets...)
}

// Refetch reloads every loaded page concurrently, keeping their offsets.
func (p *Pager[T]) Refetch(ctx context.Context) error {
	p.mu.Lock()
	observers := append([]*Observer(nil), p.observers...)
	p.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, o := range observers {
		o := o
		g.Go(func() error {
			o.Refetch()
			e, err := o.Wait(ctx)
			if err != nil {
				return err
			}
			if e.Err != nil {
				return e.Err
			}
			return nil
		})
	}
	return g.Wait()
}

// Invalidate marks every page of the list stale.
func (p *Pager[T]) Invalidate() {
	p.store.InvalidatePrefix(p.base)
}

// Close detaches from every page. Pages are then garbage collected after
// their GC time unless observed elsewhere.
func (p *Pager[T]) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	for _, o := range p.observers {
		o.Close()
	}
}
