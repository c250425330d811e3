package serv

import (
	"context"
	"strconv"
	"time"

	"github.com/WrongProvider/quemVota-sub000/core"
	"github.com/WrongProvider/quemVota-sub000/core/timeseries"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// ExpensesTimeline is the expense timeline of a politician: yearly rollups
// of the whole history and, when a year is selected, that year's months.
type ExpensesTimeline struct {
	PoliticianID int                       `json:"politico_id"`
	Years        []timeseries.YearlyRollup `json:"anos"`
	YearPills    []int                     `json:"pilulas"`
	TotalAmount  decimal.Decimal           `json:"total_gasto"`
	Count        int                       `json:"qtd_despesas"`

	// Selected is nil when no year is selected.
	Selected *timeseries.YearView `json:"ano_selecionado,omitempty"`

	Suppliers  []Supplier `json:"top_fornecedores"`
	Categories []Category `json:"top_categorias"`

	FetchedAt time.Time `json:"atualizado_em"`

	// Err is set when the data shown is from an earlier success because the
	// latest refetch failed.
	Err *core.Error `json:"-"`
}

// timelineMemo caches aggregations per cache entry version, so repeated
// reads of an unchanged entry never recompute them.
type timelineMemo struct {
	cache *lru.TwoQueueCache[string, any]
}

func newTimelineMemo(size int) (*timelineMemo, error) {
	c, err := lru.New2Q[string, any](size)
	if err != nil {
		return nil, errors.Wrap(err, "creating timeline memo")
	}
	return &timelineMemo{cache: c}, nil
}

func memoKey(e core.Entry, view string) string {
	return e.Key.String() + "@" + strconv.FormatInt(e.FetchedAt.UnixNano(), 10) + "/" + view
}

func (m *timelineMemo) summary(e core.Entry, records []timeseries.MonthlyRecord) timeseries.Summary {
	k := memoKey(e, "summary")
	if v, ok := m.cache.Get(k); ok {
		return v.(timeseries.Summary)
	}
	s := timeseries.Aggregate(records)
	m.cache.Add(k, s)
	return s
}

func (m *timelineMemo) year(e core.Entry, records []timeseries.MonthlyRecord, year int) timeseries.YearView {
	k := memoKey(e, strconv.Itoa(year))
	if v, ok := m.cache.Get(k); ok {
		return v.(timeseries.YearView)
	}
	yv := timeseries.SelectYear(records, year)
	m.cache.Add(k, yv)
	return yv
}

// ExpensesTimeline returns the expense timeline of politician id. A zero
// year selects no year. Rollups always cover the whole history; suppliers
// and categories follow the selected year.
func (s *Service) ExpensesTimeline(ctx context.Context, id, year int) (*ExpensesTimeline, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	if err := checkYear(year); err != nil {
		return nil, err
	}
	opts := s.timelineOptions()

	all, entry, err := fetchValue[*ExpensesSummary](ctx, s, ExpensesSummaryKey(id, 0), opts)
	if err != nil {
		return nil, err
	}

	sum := s.memo.summary(entry, all.Monthly)
	tl := &ExpensesTimeline{
		PoliticianID: id,
		Years:        sum.Years,
		YearPills:    timeseries.YearsAscending(sum.Years),
		TotalAmount:  sum.TotalAmount,
		Count:        sum.Count,
		Suppliers:    all.Suppliers,
		Categories:   all.Categories,
		FetchedAt:    entry.FetchedAt,
		Err:          entry.Err,
	}
	if year == 0 {
		return tl, nil
	}

	byYear, yearEntry, err := fetchValue[*ExpensesSummary](ctx, s, ExpensesSummaryKey(id, year), opts)
	if err != nil {
		return nil, err
	}
	yv := s.memo.year(yearEntry, byYear.Monthly, year)
	tl.Selected = &yv
	tl.Suppliers = byYear.Suppliers
	tl.Categories = byYear.Categories
	if yearEntry.Err != nil {
		tl.Err = yearEntry.Err
	}
	return tl, nil
}
