package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/WrongProvider/quemVota-sub000/serv"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newProbeService(t *testing.T, status int) *serv.Service {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/ranking/stats/geral", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		if status == http.StatusOK {
			w.Write([]byte(`{"media_global": 6.4, "total_parlamentares": 513}`)) //nolint:errcheck
		}
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	c, err := serv.NewConfig()
	require.NoError(t, err)
	c.API.BaseURL = srv.URL
	c.API.Timeout = 2 * time.Second

	s, err := serv.NewService(c, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	return s
}

func TestProbeAPI(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		st, err := probeAPI(newProbeService(t, http.StatusOK))
		require.NoError(t, err)
		assert.Equal(t, "ok", st.Status)
	})

	t.Run("server error", func(t *testing.T) {
		st, err := probeAPI(newProbeService(t, http.StatusInternalServerError))
		require.Error(t, err)
		assert.Equal(t, "failed", st.Status)
		assert.Contains(t, st.Note, "status 500")
	})

	t.Run("not found", func(t *testing.T) {
		st, err := probeAPI(newProbeService(t, http.StatusNotFound))
		require.Error(t, err)
		assert.Equal(t, "failed", st.Status)
	})
}
