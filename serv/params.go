package serv

import (
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/WrongProvider/quemVota-sub000/core"
	"github.com/pkg/errors"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrInvalidArgument is returned for requests rejected before reaching the
// cache: non-positive ids and years outside the accepted range.
var ErrInvalidArgument = errors.New("invalid argument")

const (
	minLimit        = 1
	maxLimit        = core.MaxPageSize
	ufLength        = 2
	searchMaxLength = 150
	partyMaxLength  = 20
	minYear         = 2000
	maxYear         = 2100

	votesLimit    = 20
	expenseMonths = 60
)

// PoliticianFilter selects politicians in list and search requests.
type PoliticianFilter struct {
	Query string
	UF    string
	Party string
}

// Sanitize returns the filter as it is sent upstream: the query is trimmed
// and cut at 150 characters, the state is kept only when it has exactly two
// letters and the party is upper-cased and cut at 20 characters.
func (f PoliticianFilter) Sanitize() PoliticianFilter {
	return PoliticianFilter{
		Query: truncate(strings.TrimSpace(f.Query), searchMaxLength),
		UF:    sanitizeUF(f.UF),
		Party: truncate(upper(strings.TrimSpace(f.Party)), partyMaxLength),
	}
}

func (f PoliticianFilter) values() url.Values {
	v := url.Values{}
	if f.Query != "" {
		v.Set("q", f.Query)
	}
	if f.UF != "" {
		v.Set("uf", f.UF)
	}
	if f.Party != "" {
		v.Set("partido", f.Party)
	}
	return v
}

func sanitizeUF(uf string) string {
	uf = truncate(upper(strings.TrimSpace(uf)), ufLength)
	if utf8.RuneCountInString(uf) != ufLength {
		return ""
	}
	return uf
}

// upper upper-cases s with Portuguese casing rules.
func upper(s string) string {
	return cases.Upper(language.BrazilianPortuguese).String(s)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// clampLimit forces a page size into 1..100, using def for zero.
func clampLimit(limit, def int) int {
	if limit == 0 {
		limit = def
	}
	if limit < minLimit {
		return minLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

func clampOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

func checkID(id int) error {
	if id <= 0 {
		return errors.Wrapf(ErrInvalidArgument, "id must be a positive integer, got %d", id)
	}
	return nil
}

// checkYear accepts zero (all years) or a year in 2000..2100.
func checkYear(year int) error {
	if year == 0 || (year >= minYear && year <= maxYear) {
		return nil
	}
	return errors.Wrapf(ErrInvalidArgument, "year must be between %d and %d, got %d",
		minYear, maxYear, year)
}

// yearSegment is the key segment for an optional year.
func yearSegment(year int) any {
	if year == 0 {
		return "all"
	}
	return year
}

func setYear(v url.Values, year int) {
	if year != 0 {
		v.Set("ano", strconv.Itoa(year))
	}
}

func pageValues(v url.Values, offset, limit int) url.Values {
	if v == nil {
		v = url.Values{}
	}
	v.Set("limit", strconv.Itoa(clampLimit(limit, defaultPageSize)))
	v.Set("offset", strconv.Itoa(clampOffset(offset)))
	return v
}
