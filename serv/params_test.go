package serv

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoliticianFilter_Sanitize(t *testing.T) {
	tests := []struct {
		name string
		in   PoliticianFilter
		want PoliticianFilter
	}{
		{"empty", PoliticianFilter{}, PoliticianFilter{}},
		{"trimmed query", PoliticianFilter{Query: "  joão  "}, PoliticianFilter{Query: "joão"}},
		{"blank query", PoliticianFilter{Query: "   "}, PoliticianFilter{}},
		{"uf upper-cased", PoliticianFilter{UF: "sp"}, PoliticianFilter{UF: "SP"}},
		{"uf cut to two letters", PoliticianFilter{UF: "rjx"}, PoliticianFilter{UF: "RJ"}},
		{"short uf dropped", PoliticianFilter{UF: "s"}, PoliticianFilter{}},
		{"party upper-cased", PoliticianFilter{Party: " psol "}, PoliticianFilter{Party: "PSOL"}},
		{"accented party", PoliticianFilter{Party: "união"}, PoliticianFilter{Party: "UNIÃO"}},
		{
			"long party cut",
			PoliticianFilter{Party: strings.Repeat("a", 30)},
			PoliticianFilter{Party: strings.Repeat("A", 20)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Sanitize())
		})
	}
}

func TestPoliticianFilter_LongQuery(t *testing.T) {
	q := strings.Repeat("ç", 200)
	got := PoliticianFilter{Query: q}.Sanitize().Query
	assert.Equal(t, 150, len([]rune(got)))
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 30, clampLimit(0, 30))
	assert.Equal(t, 1, clampLimit(-5, 30))
	assert.Equal(t, 100, clampLimit(101, 30))
	assert.Equal(t, 42, clampLimit(42, 30))
	assert.Equal(t, 0, clampOffset(-1))
}

func TestCheckYear(t *testing.T) {
	assert.NoError(t, checkYear(0))
	assert.NoError(t, checkYear(2000))
	assert.NoError(t, checkYear(2100))
	assert.ErrorIs(t, checkYear(1999), ErrInvalidArgument)
	assert.ErrorIs(t, checkYear(2101), ErrInvalidArgument)
	assert.ErrorIs(t, checkID(0), ErrInvalidArgument)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, `["politicians",7,"expenses-summary","all"]`, ExpensesSummaryKey(7, 0).String())
	assert.Equal(t, `["politicians",7,"expenses-summary",2023]`, ExpensesSummaryKey(7, 2023).String())
	assert.Equal(t, `["politicians",999,"detail"]`, PoliticianKey(999).String())
	assert.True(t, PoliticiansListKey(PoliticianFilter{UF: "sp"}).Equal(
		PoliticiansListKey(PoliticianFilter{UF: " SP "})))
}
