package serv

import (
	"context"
	"strings"
	"sync"

	"github.com/WrongProvider/quemVota-sub000/core"
	cache "github.com/go-pkgz/expirable-cache"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Service is the data-access layer of the dashboard. It owns the single
// query cache of the process, the upstream transport and the live pagers.
type Service struct {
	conf  *Config
	log   *zap.Logger
	store *core.Store
	tr    *Transport
	memo  *timelineMemo

	mu     sync.Mutex
	pagers cache.Cache
}

// Option configures a Service.
type Option func(*serviceOptions)

type serviceOptions struct {
	store []core.Option
}

// WithStoreOptions passes options to the underlying core.Store.
func WithStoreOptions(opts ...core.Option) Option {
	return func(o *serviceOptions) {
		o.store = append(o.store, opts...)
	}
}

// NewService validates conf and creates a Service with an empty cache.
func NewService(conf *Config, log *zap.Logger, opts ...Option) (*Service, error) {
	if conf == nil {
		return nil, errors.New("config is required")
	}
	if err := conf.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	if log == nil {
		log = zap.NewNop()
	}

	var so serviceOptions
	for _, o := range opts {
		o(&so)
	}

	s := &Service{conf: conf, log: log}

	var err error
	if s.memo, err = newTimelineMemo(conf.Cache.MemoSize); err != nil {
		return nil, err
	}

	s.pagers, err = cache.NewCache(
		cache.TTL(conf.Cache.GCTime),
		cache.OnEvicted(func(key string, v interface{}) {
			if p, ok := v.(interface{ Close() }); ok {
				p.Close()
			}
		}))
	if err != nil {
		return nil, errors.Wrap(err, "creating pager cache")
	}

	s.tr = NewTransport(conf.API, log.Named("transport"))

	reg := core.NewRegistry()
	registerResources(reg, s.tr)

	storeOpts := append([]core.Option{
		core.WithLogger(log.Named("cache")),
		core.WithDefaults(conf.Cache.StaleTime, conf.Cache.GCTime),
	}, so.store...)
	s.store = core.NewStore(reg, storeOpts...)

	return s, nil
}

// Config returns the service config.
func (s *Service) Config() *Config {
	return s.conf
}

// Store returns the query cache.
func (s *Service) Store() *core.Store {
	return s.store
}

// Transport returns the upstream transport.
func (s *Service) Transport() *Transport {
	return s.tr
}

func (s *Service) listOptions() core.QueryOptions {
	return core.QueryOptions{
		StaleTime: s.conf.Cache.StaleTime,
		GCTime:    s.conf.Cache.GCTime,
	}
}

func (s *Service) timelineOptions() core.QueryOptions {
	return core.QueryOptions{
		StaleTime: s.conf.Cache.TimelineStaleTime,
		GCTime:    s.conf.Cache.TimelineGCTime,
	}
}

// optionsFor returns the lifecycle used for key.
func (s *Service) optionsFor(key core.Key) core.QueryOptions {
	if key.HasPrefix(core.K("politicians", core.Any, "expenses-summary")) {
		return s.timelineOptions()
	}
	return s.listOptions()
}

// Get reads any resource key through the cache and waits for it to settle.
func (s *Service) Get(ctx context.Context, key core.Key) (core.Entry, error) {
	return s.store.Fetch(ctx, key, s.optionsFor(key))
}

// fetchValue reads key and returns its data as V. Data from an earlier
// success is returned even when the latest fetch failed; the entry tells
// the caller. An error is returned only when there is no data to show.
func fetchValue[V any](ctx context.Context, s *Service, key core.Key, opts core.QueryOptions) (V, core.Entry, error) {
	var zero V

	e, err := s.store.Fetch(ctx, key, opts)
	if err != nil {
		return zero, e, err
	}
	if !e.HasData() {
		if e.Err != nil {
			return zero, e, e.Err
		}
		return zero, e, core.NewError(core.KindTransient, key.String(), errors.New("no data"))
	}
	if e.Err != nil {
		s.log.Debug("serving stale data", zap.String("key", key.String()), zap.Error(e.Err))
	}

	v, ok := core.Data[V](e)
	if !ok {
		return zero, e, core.NewError(core.KindTransient, key.String(),
			errors.Errorf("unexpected %T in cache", e.Data))
	}
	return v, e, nil
}

func fetchByID[V any](ctx context.Context, s *Service, id int, key func(int) core.Key) (V, error) {
	if err := checkID(id); err != nil {
		var zero V
		return zero, err
	}
	v, _, err := fetchValue[V](ctx, s, key(id), s.listOptions())
	return v, err
}

func fetchByIDYear[V any](ctx context.Context, s *Service, id, year int, key func(int, int) core.Key) (V, error) {
	var zero V
	if err := checkID(id); err != nil {
		return zero, err
	}
	if err := checkYear(year); err != nil {
		return zero, err
	}
	v, _, err := fetchValue[V](ctx, s, key(id, year), s.listOptions())
	return v, err
}

// Politician returns the detail of politician id.
func (s *Service) Politician(ctx context.Context, id int) (*PoliticianDetail, error) {
	return fetchByID[*PoliticianDetail](ctx, s, id, PoliticianKey)
}

// Stats returns the statistics of politician id for year, 0 meaning all years.
func (s *Service) Stats(ctx context.Context, id, year int) (*PoliticianStats, error) {
	return fetchByIDYear[*PoliticianStats](ctx, s, id, year, StatsKey)
}

// Performance returns the performance score of politician id for year, 0
// meaning all years.
func (s *Service) Performance(ctx context.Context, id, year int) (*PoliticianPerformance, error) {
	return fetchByIDYear[*PoliticianPerformance](ctx, s, id, year, PerformanceKey)
}

// Timeline returns the yearly performance history of politician id.
func (s *Service) Timeline(ctx context.Context, id int) ([]TimelineYear, error) {
	return fetchByID[[]TimelineYear](ctx, s, id, TimelineKey)
}

// Votes returns the latest votes of politician id.
func (s *Service) Votes(ctx context.Context, id int) ([]Vote, error) {
	return fetchByID[[]Vote](ctx, s, id, VotesKey)
}

// Proposal returns the detail of proposal id.
func (s *Service) Proposal(ctx context.Context, id int) (*ProposalDetail, error) {
	return fetchByID[*ProposalDetail](ctx, s, id, ProposalKey)
}

// ProposalVotings returns the votings of proposal id.
func (s *Service) ProposalVotings(ctx context.Context, id int) ([]Voting, error) {
	return fetchByID[[]Voting](ctx, s, id, ProposalVotingsKey)
}

// Voting returns the detail of voting id.
func (s *Service) Voting(ctx context.Context, id int) (*VotingDetail, error) {
	return fetchByID[*VotingDetail](ctx, s, id, VotingKey)
}

// PerformanceRanking returns politicians ranked by performance score.
func (s *Service) PerformanceRanking(ctx context.Context) ([]PerformanceRanking, error) {
	v, _, err := fetchValue[[]PerformanceRanking](ctx, s, PerformanceRankingKey, s.listOptions())
	return v, err
}

// OverallStats returns the dashboard-wide figures.
func (s *Service) OverallStats(ctx context.Context) (*OverallStats, error) {
	v, _, err := fetchValue[*OverallStats](ctx, s, OverallStatsKey, s.listOptions())
	return v, err
}

// Politicians returns the pager of the politicians list matching f. A zero
// limit uses the configured page size. Pagers are shared per list and
// closed once unused for the cache GC time.
func (s *Service) Politicians(f PoliticianFilter, limit int) *core.Pager[Politician] {
	return pager[Politician](s, PoliticiansListKey(f), limit)
}

// Proposals returns the pager of the proposals list. Empty typ and zero
// year mean no filter.
func (s *Service) Proposals(typ string, year, limit int) (*core.Pager[Proposal], error) {
	if err := checkYear(year); err != nil {
		return nil, err
	}
	typ = truncate(upper(strings.TrimSpace(typ)), partyMaxLength)
	return pager[Proposal](s, ProposalsListKey(typ, year), limit), nil
}

// Votings returns the pager of the votings list, 0 meaning all years.
func (s *Service) Votings(year, limit int) (*core.Pager[Voting], error) {
	if err := checkYear(year); err != nil {
		return nil, err
	}
	return pager[Voting](s, VotingsListKey(year), limit), nil
}

// ExpenseRanking returns the pager of politicians ranked by total spent.
func (s *Service) ExpenseRanking(limit int) *core.Pager[ExpenseRanking] {
	return pager[ExpenseRanking](s, ExpenseRankingKey, limit)
}

// SupplierRanking returns the pager of companies ranked by amount received.
func (s *Service) SupplierRanking(limit int) *core.Pager[SupplierRanking] {
	return pager[SupplierRanking](s, SupplierRankingKey, limit)
}

func pager[T any](s *Service, base core.Key, limit int) *core.Pager[T] {
	limit = clampLimit(limit, s.conf.Pagination.PageSize)
	id := base.Append(limit).String()
	ttl := s.conf.Cache.GCTime

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pagers.DeleteExpired()
	if v, ok := s.pagers.Get(id); ok {
		if p, ok := v.(*core.Pager[T]); ok {
			s.pagers.Set(id, p, ttl)
			return p
		}
	}

	p := core.NewPager[T](s.store, base, limit, s.listOptions())
	s.pagers.Set(id, p, ttl)
	return p
}

// InvalidatePolitician marks every cached resource of politician id stale.
// It returns the number of entries invalidated.
func (s *Service) InvalidatePolitician(id int) int {
	return s.store.InvalidatePrefix(core.K("politicians", id))
}

// WatchConfig applies log level and rate limit changes of the config file
// while the service runs.
func (s *Service) WatchConfig(level zap.AtomicLevel) {
	s.conf.Watch(s.log, func(nc *Config) {
		level.SetLevel(parseLevel(nc.LogLevel))
		s.tr.SetRateLimit(nc.API.RateLimit, nc.API.Burst)
	})
}

// Close closes every pager and the cache. In-flight requests are cancelled.
func (s *Service) Close() error {
	s.mu.Lock()
	for _, k := range s.pagers.Keys() {
		if v, ok := s.pagers.Peek(k); ok {
			if p, ok := v.(interface{ Close() }); ok {
				p.Close()
			}
		}
	}
	s.pagers.Purge()
	s.mu.Unlock()

	return s.store.Close()
}
