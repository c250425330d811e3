package serv

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/WrongProvider/quemVota-sub000/core"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap/zaptest"
)

// upstream is a fake of the public-data API.
type upstream struct {
	t   *testing.T
	srv *httptest.Server

	mu          sync.Mutex
	politicians []Politician
	calls       map[string]int
	queries     []string
	requestIDs  []string
	fail        map[string]int // path -> status to answer with
	body        map[string]string
}

func newUpstream(t *testing.T, n int) *upstream {
	t.Helper()

	faker := gofakeit.New(7)
	u := &upstream{
		t:     t,
		calls: make(map[string]int),
		fail:  make(map[string]int),
		body:  make(map[string]string),
	}
	ufs := []string{"SP", "RJ", "MG", "BA"}
	parties := []string{"PT", "PL", "PSD", "MDB"}
	for i := 1; i <= n; i++ {
		u.politicians = append(u.politicians, Politician{
			ID:    i,
			Name:  faker.Name(),
			UF:    faker.RandomString(ufs),
			Party: faker.RandomString(parties),
		})
	}

	r := chi.NewRouter()
	r.Use(u.record)
	r.Get("/politicos/", u.listPoliticians)
	r.Get("/politicos/{id}", u.politician)
	r.Get("/politicos/{id}/estatisticas", u.stats)
	r.Get("/politicos/{id}/despesas/resumo_completo", u.expenses)
	r.Get("/politicos/{id}/votacoes", u.votes)
	r.Get("/ranking/performance_politicos", u.performanceRanking)
	r.Get("/ranking/stats/geral", u.overallStats)

	u.srv = httptest.NewServer(r)
	t.Cleanup(u.srv.Close)
	return u
}

func (u *upstream) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.calls[r.URL.Path]++
		u.queries = append(u.queries, r.URL.RawQuery)
		u.requestIDs = append(u.requestIDs, r.Header.Get(requestIDHeader))
		status, failing := u.fail[r.URL.Path]
		body, canned := u.body[r.URL.Path]
		u.mu.Unlock()

		switch {
		case failing:
			w.WriteHeader(status)
		case canned:
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(body)) //nolint:errcheck
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func (u *upstream) Calls(path string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls[path]
}

func (u *upstream) TotalCalls() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	n := 0
	for _, c := range u.calls {
		n += c
	}
	return n
}

func (u *upstream) LastQuery() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.queries) == 0 {
		return ""
	}
	return u.queries[len(u.queries)-1]
}

func (u *upstream) Fail(path string, status int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.fail[path] = status
}

func (u *upstream) Heal(path string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.fail, path)
}

func (u *upstream) Respond(path, body string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.body[path] = body
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func intParam(r *http.Request, name string, def int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(name)); err == nil {
		return v
	}
	return def
}

func (u *upstream) listPoliticians(w http.ResponseWriter, r *http.Request) {
	q := strings.ToLower(r.URL.Query().Get("q"))
	uf := r.URL.Query().Get("uf")
	party := r.URL.Query().Get("partido")

	u.mu.Lock()
	var match []Politician
	for _, p := range u.politicians {
		if q != "" && !strings.Contains(strings.ToLower(p.Name), q) {
			continue
		}
		if uf != "" && p.UF != uf {
			continue
		}
		if party != "" && p.Party != party {
			continue
		}
		match = append(match, p)
	}
	u.mu.Unlock()

	offset := intParam(r, "offset", 0)
	limit := intParam(r, "limit", 20)
	out := []Politician{}
	if offset < len(match) {
		end := offset + limit
		if end > len(match) {
			end = len(match)
		}
		out = match[offset:end]
	}
	writeJSON(w, out)
}

func (u *upstream) find(r *http.Request) (Politician, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		return Politician{}, false
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, p := range u.politicians {
		if p.ID == id {
			return p, true
		}
	}
	return Politician{}, false
}

func (u *upstream) politician(w http.ResponseWriter, r *http.Request) {
	p, ok := u.find(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, PoliticianDetail{Politician: p, Situation: "Exercício"})
}

func (u *upstream) stats(w http.ResponseWriter, r *http.Request) {
	if _, ok := u.find(r); !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, map[string]any{
		"total_votacoes": 120,
		"total_despesas": 48,
		"total_gasto":    "15230.55",
		"media_mensal":   "1269.21",
		"primeiro_ano":   2019,
		"ultimo_ano":     nil,
	})
}

var monthlyFixture = []map[string]any{
	{"ano": 2023, "mes": 2, "total_gasto": 200, "qtd_despesas": 1},
	{"ano": 2023, "mes": 1, "total_gasto": 100, "qtd_despesas": 1},
	{"ano": 2024, "mes": 1, "total_gasto": "50.5", "qtd_despesas": 1},
}

func (u *upstream) expenses(w http.ResponseWriter, r *http.Request) {
	if _, ok := u.find(r); !ok {
		http.NotFound(w, r)
		return
	}
	year := intParam(r, "ano", 0)
	months := []map[string]any{}
	for _, m := range monthlyFixture {
		if year == 0 || m["ano"] == year {
			months = append(months, m)
		}
	}
	suppliers := []map[string]any{
		{"nome": "Posto Central", "total": 180, "categoria_principal": "COMBUSTÍVEIS"},
		{"nome_fornecedor": "Gráfica Sul", "total_recebido": 90.25},
	}
	if year != 0 {
		suppliers = suppliers[:1]
	}
	writeJSON(w, map[string]any{
		"historico_mensal": months,
		"top_fornecedores": suppliers,
		"por_categoria":    []map[string]any{{"tipo_despesa": "COMBUSTÍVEIS", "total": 180}},
	})
}

func (u *upstream) votes(w http.ResponseWriter, r *http.Request) {
	if _, ok := u.find(r); !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, []Vote{
		{Date: "2024-05-02", Description: "PL 1/2024", Vote: "Sim"},
		{Date: "2024-04-18", Description: "PEC 3/2024", Vote: "Não"},
	})
}

func (u *upstream) performanceRanking(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, []PerformanceRanking{{ID: 1, Name: "A", Score: 9.1}})
}

func (u *upstream) overallStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, OverallStats{GlobalMean: 6.4, TotalPoliticians: 513})
}

func testConfig(t *testing.T, baseURL string) *Config {
	t.Helper()
	conf, err := NewConfig()
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	conf.API.BaseURL = baseURL + "/"
	conf.API.Timeout = 2 * time.Second
	return conf
}

func newTestService(t *testing.T, u *upstream) *Service {
	t.Helper()
	fast := core.RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	s, err := NewService(testConfig(t, u.srv.URL), zaptest.NewLogger(t),
		WithStoreOptions(core.WithRetryPolicy(fast)))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	return s
}
