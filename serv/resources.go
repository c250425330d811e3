package serv

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/WrongProvider/quemVota-sub000/core"
)

// Key prefixes of the cached resources. List prefixes carry wildcards for
// their filter segments so they always outrank the per-id prefixes.
var (
	politiciansListPrefix = core.K("politicians", "infinite", core.Any, core.Any, core.Any)
	proposalsListPrefix   = core.K("proposals", "list", core.Any, core.Any)
	votingsListPrefix     = core.K("votings", "list", core.Any)
)

// PoliticiansListKey is the base key of the politicians list for f. Pages
// append limit and offset.
func PoliticiansListKey(f PoliticianFilter) core.Key {
	f = f.Sanitize()
	return core.K("politicians", "infinite", f.Query, f.UF, f.Party)
}

// PoliticianKey is the key of a politician's detail.
func PoliticianKey(id int) core.Key {
	return core.K("politicians", id, "detail")
}

// StatsKey is the key of a politician's statistics for year, 0 meaning all.
func StatsKey(id, year int) core.Key {
	return core.K("politicians", id, "stats", yearSegment(year))
}

// PerformanceKey is the key of a politician's performance for year, 0 meaning all.
func PerformanceKey(id, year int) core.Key {
	return core.K("politicians", id, "performance", yearSegment(year))
}

// TimelineKey is the key of a politician's yearly performance history.
func TimelineKey(id int) core.Key {
	return core.K("politicians", id, "timeline")
}

// ExpensesSummaryKey is the key of a politician's expense summary for
// year, 0 meaning all.
func ExpensesSummaryKey(id, year int) core.Key {
	return core.K("politicians", id, "expenses-summary", yearSegment(year))
}

// VotesKey is the key of a politician's latest votes.
func VotesKey(id int) core.Key {
	return core.K("politicians", id, "votes")
}

// ProposalsListKey is the base key of the proposals list. Empty type and
// zero year mean no filter.
func ProposalsListKey(typ string, year int) core.Key {
	return core.K("proposals", "list", typ, year)
}

// ProposalKey is the key of a proposal's detail.
func ProposalKey(id int) core.Key {
	return core.K("proposals", id, "detail")
}

// ProposalVotingsKey is the key of the votings of a proposal.
func ProposalVotingsKey(id int) core.Key {
	return core.K("proposals", id, "votings")
}

// VotingsListKey is the base key of the votings list, 0 meaning all years.
func VotingsListKey(year int) core.Key {
	return core.K("votings", "list", year)
}

// VotingKey is the key of a voting's detail.
func VotingKey(id int) core.Key {
	return core.K("votings", id, "detail")
}

// Ranking keys
var (
	ExpenseRankingKey     = core.K("rankings", "expenses")
	SupplierRankingKey    = core.K("rankings", "suppliers")
	PerformanceRankingKey = core.K("rankings", "performance")
	OverallStatsKey       = core.K("rankings", "stats")
)

// registerResources binds every resource of the API to reg.
func registerResources(reg *core.Registry, t *Transport) {
	core.RegisterPages[Politician](reg, politiciansListPrefix,
		core.PageFetcherFunc[Politician](func(ctx context.Context, base core.Key, offset, limit int) ([]Politician, error) {
			f := PoliticianFilter{Query: base.Str(2), UF: base.Str(3), Party: base.Str(4)}.Sanitize()
			return getList[Politician](ctx, t, "/politicos/", pageValues(f.values(), offset, limit))
		}))

	registerObject[PoliticianDetail](reg, core.K("politicians", core.Any, "detail"), t,
		func(id int, _ core.Key) (string, url.Values) {
			return fmt.Sprintf("/politicos/%d", id), nil
		})

	registerObject[PoliticianStats](reg, core.K("politicians", core.Any, "stats"), t,
		func(id int, key core.Key) (string, url.Values) {
			return fmt.Sprintf("/politicos/%d/estatisticas", id), yearValues(key)
		})

	registerObject[PoliticianPerformance](reg, core.K("politicians", core.Any, "performance"), t,
		func(id int, key core.Key) (string, url.Values) {
			return fmt.Sprintf("/politicos/%d/performance", id), yearValues(key)
		})

	registerList[TimelineYear](reg, core.K("politicians", core.Any, "timeline"), t,
		func(id int, _ core.Key) (string, url.Values) {
			return fmt.Sprintf("/politicos/%d/timeline", id), nil
		})

	registerObject[ExpensesSummary](reg, core.K("politicians", core.Any, "expenses-summary"), t,
		func(id int, key core.Key) (string, url.Values) {
			v := yearValues(key)
			v.Set("limit_meses", strconv.Itoa(expenseMonths))
			return fmt.Sprintf("/politicos/%d/despesas/resumo_completo", id), v
		})

	registerList[Vote](reg, core.K("politicians", core.Any, "votes"), t,
		func(id int, _ core.Key) (string, url.Values) {
			return fmt.Sprintf("/politicos/%d/votacoes", id), url.Values{"limit": {strconv.Itoa(votesLimit)}}
		})

	core.RegisterPages[Proposal](reg, proposalsListPrefix,
		core.PageFetcherFunc[Proposal](func(ctx context.Context, base core.Key, offset, limit int) ([]Proposal, error) {
			v := url.Values{}
			if typ := base.Str(2); typ != "" {
				v.Set("sigla_tipo", typ)
			}
			if year, _ := base.Int(3); year != 0 {
				setYear(v, year)
			}
			return getList[Proposal](ctx, t, "/proposicoes/", pageValues(v, offset, limit))
		}))

	registerObject[ProposalDetail](reg, core.K("proposals", core.Any, "detail"), t,
		func(id int, _ core.Key) (string, url.Values) {
			return fmt.Sprintf("/proposicoes/%d", id), nil
		})

	registerList[Voting](reg, core.K("proposals", core.Any, "votings"), t,
		func(id int, _ core.Key) (string, url.Values) {
			return fmt.Sprintf("/proposicoes/%d/votacoes", id), nil
		})

	core.RegisterPages[Voting](reg, votingsListPrefix,
		core.PageFetcherFunc[Voting](func(ctx context.Context, base core.Key, offset, limit int) ([]Voting, error) {
			v := url.Values{}
			if year, _ := base.Int(2); year != 0 {
				setYear(v, year)
			}
			return getList[Voting](ctx, t, "/votacoes/", pageValues(v, offset, limit))
		}))

	registerObject[VotingDetail](reg, core.K("votings", core.Any, "detail"), t,
		func(id int, _ core.Key) (string, url.Values) {
			return fmt.Sprintf("/votacoes/%d", id), nil
		})

	core.RegisterPages[ExpenseRanking](reg, ExpenseRankingKey,
		core.PageFetcherFunc[ExpenseRanking](func(ctx context.Context, _ core.Key, offset, limit int) ([]ExpenseRanking, error) {
			return getList[ExpenseRanking](ctx, t, "/ranking/despesa_politico", pageValues(nil, offset, limit))
		}))

	core.RegisterPages[SupplierRanking](reg, SupplierRankingKey,
		core.PageFetcherFunc[SupplierRanking](func(ctx context.Context, _ core.Key, offset, limit int) ([]SupplierRanking, error) {
			return getList[SupplierRanking](ctx, t, "/ranking/lucro_empresas", pageValues(nil, offset, limit))
		}))

	core.Register[[]PerformanceRanking](reg, PerformanceRankingKey,
		core.TypedFetcherFunc[[]PerformanceRanking](func(ctx context.Context, _ core.Key) ([]PerformanceRanking, error) {
			return getList[PerformanceRanking](ctx, t, "/ranking/performance_politicos", nil)
		}))

	core.Register[*OverallStats](reg, OverallStatsKey,
		core.TypedFetcherFunc[*OverallStats](func(ctx context.Context, _ core.Key) (*OverallStats, error) {
			return getObject[OverallStats](ctx, t, "/ranking/stats/geral", nil)
		}))
}

// pathFunc maps a per-id key to the request path and query.
type pathFunc func(id int, key core.Key) (string, url.Values)

// registerObject registers a fetcher for keys shaped (resource, id, ...)
// whose response is a JSON object. Cached values are *T.
func registerObject[T any](reg *core.Registry, prefix core.Key, t *Transport, path pathFunc) {
	core.Register[*T](reg, prefix, core.TypedFetcherFunc[*T](func(ctx context.Context, key core.Key) (*T, error) {
		id, err := keyID(key)
		if err != nil {
			return nil, err
		}
		p, v := path(id, key)
		return getObject[T](ctx, t, p, v)
	}))
}

// registerList registers a fetcher for keys shaped (resource, id, ...)
// whose response is a JSON array. Cached values are []T.
func registerList[T any](reg *core.Registry, prefix core.Key, t *Transport, path pathFunc) {
	core.Register[[]T](reg, prefix, core.TypedFetcherFunc[[]T](func(ctx context.Context, key core.Key) ([]T, error) {
		id, err := keyID(key)
		if err != nil {
			return nil, err
		}
		p, v := path(id, key)
		return getList[T](ctx, t, p, v)
	}))
}

func keyID(key core.Key) (int, error) {
	id, ok := key.Int(1)
	if !ok || id <= 0 {
		return 0, core.NewError(core.KindNotFound, key.String(), ErrInvalidArgument)
	}
	return id, nil
}

// yearValues returns the "ano" parameter of a key ending in a year segment.
func yearValues(key core.Key) url.Values {
	v := url.Values{}
	if year, ok := key.Int(-1); ok {
		setYear(v, year)
	}
	return v
}
