// Package timeseries turns monthly expense records into yearly rollups and
// per-year views. Every function is pure: inputs are never modified.
package timeseries

import (
	"sort"

	"github.com/shopspring/decimal"
)

// MonthlyRecord is the total spent in one month.
type MonthlyRecord struct {
	Year        int             `json:"ano"`
	Month       int             `json:"mes"`
	TotalAmount decimal.Decimal `json:"total_gasto"`
	Count       int             `json:"qtd_despesas"`
}

// YearlyRollup sums every MonthlyRecord of a year.
type YearlyRollup struct {
	Year        int             `json:"ano"`
	TotalAmount decimal.Decimal `json:"total_gasto"`
	Count       int             `json:"qtd_despesas"`
}

// Summary is the all-years view of a monthly series.
type Summary struct {
	Years       []YearlyRollup  `json:"anos"` // descending by year
	TotalAmount decimal.Decimal `json:"total_gasto"`
	Count       int             `json:"qtd_despesas"`
}

// YearView is the detail of one year.
type YearView struct {
	Year        int             `json:"ano"`
	Months      []MonthlyRecord `json:"meses"` // ascending by month
	TotalAmount decimal.Decimal `json:"total_gasto"`
	Count       int             `json:"qtd_despesas"`
	Peak        decimal.Decimal `json:"pico"`
	PeakMonth   int             `json:"mes_pico,omitempty"`
	MonthlyMean decimal.Decimal `json:"media_mensal"`
}

// Empty reports whether the year has no monthly data. Views of empty years
// must be rendered as "no data".
func (v YearView) Empty() bool {
	return len(v.Months) == 0
}

// IsPeak reports whether m is one of the months with the highest total.
func (v YearView) IsPeak(m MonthlyRecord) bool {
	return !v.Empty() && m.TotalAmount.Equal(v.Peak)
}

// sanitize clamps negative amounts and counts to zero.
func sanitize(r MonthlyRecord) MonthlyRecord {
	if r.TotalAmount.IsNegative() {
		r.TotalAmount = decimal.Zero
	}
	if r.Count < 0 {
		r.Count = 0
	}
	return r
}

// Rollup groups records by year and returns one rollup per year, most
// recent year first.
func Rollup(records []MonthlyRecord) []YearlyRollup {
	byYear := make(map[int]*YearlyRollup)
	for _, r := range records {
		r = sanitize(r)
		y, ok := byYear[r.Year]
		if !ok {
			y = &YearlyRollup{Year: r.Year, TotalAmount: decimal.Zero}
			byYear[r.Year] = y
		}
		y.TotalAmount = y.TotalAmount.Add(r.TotalAmount)
		y.Count += r.Count
	}

	out := make([]YearlyRollup, 0, len(byYear))
	for _, y := range byYear {
		out = append(out, *y)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Year > out[j].Year
	})
	return out
}

// Aggregate returns the yearly rollups of records with their grand totals.
func Aggregate(records []MonthlyRecord) Summary {
	s := Summary{
		Years:       Rollup(records),
		TotalAmount: decimal.Zero,
	}
	for _, y := range s.Years {
		s.TotalAmount = s.TotalAmount.Add(y.TotalAmount)
		s.Count += y.Count
	}
	return s
}

// YearsAscending lists the years covered by rollups, oldest first.
func YearsAscending(rollups []YearlyRollup) []int {
	years := make([]int, len(rollups))
	for i, y := range rollups {
		years[i] = y.Year
	}
	sort.Ints(years)
	return years
}

// SelectYear returns the months of year in calendar order with their peak
// and mean. The mean divides by the months present, not by twelve.
// Records whose month is outside 1..12 are left out.
func SelectYear(records []MonthlyRecord, year int) YearView {
	v := YearView{
		Year:        year,
		TotalAmount: decimal.Zero,
		Peak:        decimal.Zero,
		MonthlyMean: decimal.Zero,
	}
	for _, r := range records {
		if r.Year != year || r.Month < 1 || r.Month > 12 {
			continue
		}
		v.Months = append(v.Months, sanitize(r))
	}
	if len(v.Months) == 0 {
		return v
	}

	sort.SliceStable(v.Months, func(i, j int) bool {
		return v.Months[i].Month < v.Months[j].Month
	})
	for i, m := range v.Months {
		v.TotalAmount = v.TotalAmount.Add(m.TotalAmount)
		v.Count += m.Count
		if i == 0 || m.TotalAmount.GreaterThan(v.Peak) {
			v.Peak = m.TotalAmount
			v.PeakMonth = m.Month
		}
	}
	v.MonthlyMean = v.TotalAmount.Div(decimal.NewFromInt(int64(len(v.Months))))
	return v
}
