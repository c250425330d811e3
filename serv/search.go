package serv

import (
	"context"
	"sync"

	"github.com/WrongProvider/quemVota-sub000/core"
	"go.uber.org/zap"
)

// SearchResult is the state of a search after its query settled or a new
// page was loaded.
type SearchResult struct {
	Query   string       `json:"query"`
	Items   []Politician `json:"items"`
	HasMore bool         `json:"has_more"`
	Err     error        `json:"-"`
}

// SearchSession runs a free-text politician search as the user types.
// Keystrokes are debounced; once the query settles its first page is
// loaded and published on Results.
type SearchSession struct {
	s      *Service
	filter PoliticianFilter
	limit  int
	deb    *core.Debouncer[string]

	ctx    context.Context
	cancel context.CancelFunc
	out    chan SearchResult

	mu    sync.Mutex
	query string
	seen  bool
}

// NewSearch starts a search session. UF and party in filter stay fixed;
// the query comes from Type.
func (s *Service) NewSearch(ctx context.Context, filter PoliticianFilter) *SearchSession {
	ctx, cancel := context.WithCancel(ctx)
	ss := &SearchSession{
		s:      s,
		filter: filter,
		limit:  s.conf.Pagination.PageSize,
		ctx:    ctx,
		cancel: cancel,
		out:    make(chan SearchResult, 1),
	}
	ss.deb = core.NewDebouncer(s.conf.Search.Debounce, ss.settle)
	return ss
}

// Results delivers one result per settled query or loaded page. Nothing is
// sent after Close.
func (ss *SearchSession) Results() <-chan SearchResult {
	return ss.out
}

// Type records the current text of the search box.
func (ss *SearchSession) Type(q string) {
	ss.deb.Push(q)
}

// Flush settles the pending query without waiting for the quiet period.
func (ss *SearchSession) Flush() {
	ss.deb.Flush()
}

func (ss *SearchSession) settle(q string) {
	f := ss.filter
	f.Query = q
	f = f.Sanitize()

	ss.mu.Lock()
	if ss.seen && f.Query == ss.query {
		ss.mu.Unlock()
		return
	}
	ss.query = f.Query
	ss.seen = true
	ss.mu.Unlock()

	ss.s.log.Debug("search settled", zap.String("q", f.Query))
	ss.publish(ss.load(f, false))
}

// More loads the next page of the current query.
func (ss *SearchSession) More() {
	ss.mu.Lock()
	f := ss.filter
	f.Query = ss.query
	ss.mu.Unlock()

	ss.publish(ss.load(f, true))
}

// load returns the items of f, fetching the first page when none is loaded
// or the next one when more is set.
func (ss *SearchSession) load(f PoliticianFilter, more bool) SearchResult {
	p := ss.s.Politicians(f, ss.limit)
	r := SearchResult{Query: f.Query}

	if len(p.Pages()) == 0 || (more && p.HasNextPage()) {
		if _, _, err := p.FetchNextPage(ss.ctx); err != nil {
			r.Err = err
		}
	}
	r.Items = p.Items()
	r.HasMore = p.HasNextPage()
	return r
}

func (ss *SearchSession) publish(r SearchResult) {
	if core.KindOf(r.Err) == core.KindCancelled {
		return
	}
	select {
	case ss.out <- r:
	case <-ss.ctx.Done():
	}
}

// Close stops the session. Pending keystrokes are dropped.
func (ss *SearchSession) Close() {
	ss.deb.Stop()
	ss.cancel()
}
