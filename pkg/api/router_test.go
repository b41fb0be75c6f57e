package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modaq/uploader/pkg/config"
)

func TestRouterServesHealth(t *testing.T) {
	t.Parallel()

	router := NewRouter(Deps{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestRouterUnknownRoute(t *testing.T) {
	t.Parallel()

	router := NewRouter(Deps{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerPort(t *testing.T) {
	t.Parallel()

	srv := NewServer(config.APIConfig{
		Host:              "127.0.0.1",
		Port:              5123,
		ReadHeaderTimeout: time.Second,
		IdleTimeout:       time.Second,
	}, http.NewServeMux())

	assert.Equal(t, 5123, srv.Port())
}
