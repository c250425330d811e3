package timeseries

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var decimalEqual = cmp.Comparer(func(a, b decimal.Decimal) bool {
	return a.Equal(b)
})

func rec(year, month int, total string, count int) MonthlyRecord {
	return MonthlyRecord{
		Year:        year,
		Month:       month,
		TotalAmount: decimal.RequireFromString(total),
		Count:       count,
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestRollup_ScenarioA(t *testing.T) {
	in := []MonthlyRecord{
		rec(2023, 1, "100", 1),
		rec(2023, 2, "200", 1),
		rec(2024, 1, "50", 1),
	}
	want := []YearlyRollup{
		{Year: 2024, TotalAmount: dec("50"), Count: 1},
		{Year: 2023, TotalAmount: dec("300"), Count: 2},
	}

	if diff := cmp.Diff(want, Rollup(in), decimalEqual); diff != "" {
		t.Errorf("Rollup() mismatch (-want +got):\n%s", diff)
	}
}

func TestRollup_Properties(t *testing.T) {
	in := []MonthlyRecord{
		rec(2019, 12, "1234.56", 10),
		rec(2021, 3, "0.10", 1),
		rec(2019, 1, "99.99", 2),
		rec(2022, 7, "-5", -1),
		rec(2021, 4, "0.20", 3),
		rec(2020, 6, "7000", 40),
	}
	orig := append([]MonthlyRecord(nil), in...)

	got := Rollup(in)

	if diff := cmp.Diff(orig, in, decimalEqual); diff != "" {
		t.Fatalf("input was modified:\n%s", diff)
	}
	if diff := cmp.Diff(got, Rollup(in), decimalEqual); diff != "" {
		t.Errorf("Rollup is not idempotent:\n%s", diff)
	}

	sumIn := decimal.Zero
	countIn := 0
	for _, r := range in {
		sumIn = sumIn.Add(sanitize(r).TotalAmount)
		countIn += sanitize(r).Count
	}
	sumOut := decimal.Zero
	countOut := 0
	for i, y := range got {
		sumOut = sumOut.Add(y.TotalAmount)
		countOut += y.Count
		if i > 0 {
			assert.Greater(t, got[i-1].Year, y.Year, "years must be strictly descending")
		}
	}
	assert.True(t, sumIn.Equal(sumOut), "sum %s != %s", sumIn, sumOut)
	assert.Equal(t, countIn, countOut)
	assert.True(t, got[0].TotalAmount.IsZero(), "negative amounts are clamped")
	assert.Equal(t, []int{2019, 2020, 2021, 2022}, YearsAscending(got))
}

func TestRollup_Empty(t *testing.T) {
	assert.Empty(t, Rollup(nil))

	s := Aggregate(nil)
	assert.Empty(t, s.Years)
	assert.True(t, s.TotalAmount.IsZero())
	assert.Zero(t, s.Count)
}

func TestAggregate(t *testing.T) {
	s := Aggregate([]MonthlyRecord{
		rec(2023, 1, "100.50", 1),
		rec(2023, 2, "200.25", 4),
		rec(2024, 1, "50", 1),
	})
	assert.True(t, dec("350.75").Equal(s.TotalAmount))
	assert.Equal(t, 6, s.Count)
	assert.Len(t, s.Years, 2)
}

func TestSelectYear(t *testing.T) {
	in := []MonthlyRecord{
		rec(2023, 3, "300", 3),
		rec(2023, 1, "100", 1),
		rec(2024, 1, "999", 9),
		rec(2023, 2, "500", 2),
		rec(2023, 13, "1", 1),
	}

	v := SelectYear(in, 2023)

	want := YearView{
		Year: 2023,
		Months: []MonthlyRecord{
			rec(2023, 1, "100", 1),
			rec(2023, 2, "500", 2),
			rec(2023, 3, "300", 3),
		},
		TotalAmount: dec("900"),
		Count:       6,
		Peak:        dec("500"),
		PeakMonth:   2,
		MonthlyMean: dec("300"),
	}
	if diff := cmp.Diff(want, v, decimalEqual); diff != "" {
		t.Errorf("SelectYear() mismatch (-want +got):\n%s", diff)
	}
	assert.False(t, v.Empty())
	assert.True(t, v.IsPeak(v.Months[1]))
	assert.False(t, v.IsPeak(v.Months[0]))
}

func TestSelectYear_TiedPeaks(t *testing.T) {
	v := SelectYear([]MonthlyRecord{
		rec(2022, 5, "80", 1),
		rec(2022, 2, "80", 1),
		rec(2022, 9, "10", 1),
	}, 2022)

	assert.Equal(t, 2, v.PeakMonth)
	assert.True(t, v.IsPeak(v.Months[0]))
	assert.True(t, v.IsPeak(v.Months[1]))
}

func TestSelectYear_Empty(t *testing.T) {
	v := SelectYear([]MonthlyRecord{rec(2023, 1, "100", 1)}, 2010)

	assert.True(t, v.Empty())
	assert.Equal(t, 2010, v.Year)
	assert.True(t, v.TotalAmount.IsZero())
	assert.True(t, v.Peak.IsZero())
	assert.True(t, v.MonthlyMean.IsZero())
	assert.False(t, v.IsPeak(rec(2010, 1, "0", 0)))
}

func TestMonthlyRecord_UnmarshalJSON(t *testing.T) {
	body := `[
		{"ano": 2023, "mes": 1, "total_gasto": 1500.75, "qtd_despesas": 12},
		{"ano": "2023", "mes": "2", "total_gasto": "200.10", "qtd_despesas": null},
		{"ano": 2024, "mes": 3, "total_gasto": "n/a"},
		{"ano": 2024.0, "mes": 4, "total_gasto": null, "qtd_despesas": 3.9}
	]`

	var got []MonthlyRecord
	require.NoError(t, json.Unmarshal([]byte(body), &got))

	want := []MonthlyRecord{
		rec(2023, 1, "1500.75", 12),
		rec(2023, 2, "200.10", 0),
		rec(2024, 3, "0", 0),
		rec(2024, 4, "0", 3),
	}
	if diff := cmp.Diff(want, got, decimalEqual); diff != "" {
		t.Errorf("decode mismatch (-want +got):\n%s", diff)
	}

	var r MonthlyRecord
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &r))
}
