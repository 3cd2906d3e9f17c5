package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/caliperdev/campaignmanager/internal/config"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
}

func TestRecoveryMiddleware(t *testing.T) {
	rm := NewRecoveryMiddleware(zap.NewNop())
	h := rm.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/campaigns", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "internal server error")
}

func TestAuthMiddleware(t *testing.T) {
	cfg := config.AuthConfig{
		Enabled:   true,
		MasterKey: "secret-key",
		SkipPaths: []string{"/health"},
	}
	h := NewAuthMiddleware(cfg, zap.NewNop()).Handler(okHandler())

	// missing key
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/campaigns", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// wrong key
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/campaigns", nil)
	req.Header.Set(AuthHeaderName, "wrong")
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// header key
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/campaigns", nil)
	req.Header.Set(AuthHeaderName, "secret-key")
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// query param key
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/campaigns?api_key=secret-key", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	// skip path needs no key
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddlewareDisabled(t *testing.T) {
	h := NewAuthMiddleware(config.AuthConfig{Enabled: false}, zap.NewNop()).Handler(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/campaigns", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	cfg := config.RateLimitConfig{Enabled: true, RPS: 1, Burst: 2}
	h := NewRateLimitMiddleware(cfg, zap.NewNop(), nil).Handler(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/campaigns", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	// a different client has its own bucket
	other := httptest.NewRequest(http.MethodGet, "/campaigns", nil)
	other.RemoteAddr = "10.0.0.2:1234"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, other)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitDisabled(t *testing.T) {
	h := NewRateLimitMiddleware(config.RateLimitConfig{Enabled: false}, zap.NewNop(), nil).Handler(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/campaigns", nil)
	for i := 0; i < 50; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}
}
