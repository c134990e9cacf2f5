package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reclutas/apiserver/config"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, cfg config.Config) (*Server, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	if cfg.Session.CookieName == "" {
		cfg.Session.CookieName = "reclutas_session"
	}
	srv, err := Build(cfg, Deps{DB: conn}, quietLogger())
	require.NoError(t, err)
	return srv, mock
}

func serve(srv *Server, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	srv, mock := newTestServer(t, config.Config{})

	mock.ExpectPing()
	assert.Equal(t, http.StatusOK, serve(srv, http.MethodGet, "/healthz").Code)

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	assert.Equal(t, http.StatusServiceUnavailable, serve(srv, http.MethodGet, "/healthz").Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, config.Config{})
	serve(srv, http.MethodGet, "/api/me")

	rec := serve(srv, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "reclutas_http_requests_total")
}

func TestAPIRequiresSession(t *testing.T) {
	srv, _ := newTestServer(t, config.Config{})
	for _, path := range []string{"/api/me", "/api/reclutas", "/api/entrevistas", "/api/logs"} {
		assert.Equal(t, http.StatusUnauthorized, serve(srv, http.MethodGet, path).Code, path)
	}
	assert.Equal(t, http.StatusNoContent, serve(srv, http.MethodPost, "/api/logout").Code)
}

func TestAllowedNetworks(t *testing.T) {
	cfg := config.Config{Security: config.SecurityConfig{AllowedNetworks: []string{"10.0.0.0/8"}}}
	srv, _ := newTestServer(t, cfg)

	assert.Equal(t, http.StatusForbidden, serve(srv, http.MethodGet, "/api/me").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("X-Forwarded-For", "10.1.1.1")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	_, err := Build(config.Config{Security: config.SecurityConfig{AllowedNetworks: []string{"nope/8"}}}, Deps{}, quietLogger())
	assert.Error(t, err)
}

func TestFailedBuildClosesConnections(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()
	rdb := redis.NewClient(&redis.Options{Addr: miniredis.RunT(t).Addr()})

	cfg := config.Config{Security: config.SecurityConfig{AllowedNetworks: []string{"nope/8"}}}
	srv, err := buildOrClose(cfg, Deps{DB: conn, Redis: rdb}, quietLogger())
	require.Error(t, err)
	assert.Nil(t, srv)

	require.NoError(t, mock.ExpectationsWereMet())
	assert.ErrorIs(t, rdb.Ping(context.Background()).Err(), redis.ErrClosed)
}

func TestBuildLeavesCallerConnectionsOpen(t *testing.T) {
	conn, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	cfg := config.Config{Security: config.SecurityConfig{AllowedNetworks: []string{"nope/8"}}}
	_, err = Build(cfg, Deps{DB: conn}, quietLogger())
	require.Error(t, err)

	mock.ExpectPing()
	require.NoError(t, conn.Ping())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationSwitch(t *testing.T) {
	srv, _ := newTestServer(t, config.Config{})
	assert.Equal(t, http.StatusForbidden, serve(srv, http.MethodPost, "/api/register").Code)
}

func TestPurgeOnceDeletesExpiredSessions(t *testing.T) {
	srv, mock := newTestServer(t, config.Config{})
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sessions")).
		WillReturnResult(sqlmock.NewResult(0, 3))

	srv.purgeOnce(context.Background())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPurgeSessionsStopsWithContext(t *testing.T) {
	srv, _ := newTestServer(t, config.Config{Session: config.SessionConfig{PurgeInterval: time.Hour}})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.purgeSessions(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
