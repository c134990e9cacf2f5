//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reclutas/apiserver/config"
	"github.com/reclutas/apiserver/internal/db"
	"github.com/reclutas/apiserver/internal/server"
)

const serverPort = 18080

var baseURL = fmt.Sprintf("http://localhost:%d", serverPort)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	root, err := repoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to locate repo root: %v\n", err)
		os.Exit(1)
	}

	setEnv()
	if err := dockerCompose(ctx, root, "up", "-d"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start docker compose: %v\n", err)
		os.Exit(1)
	}
	down := func() { _ = dockerCompose(context.Background(), root, "down") }

	if err := waitForPostgres(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "postgres not ready: %v\n", err)
		down()
		os.Exit(1)
	}
	if err := db.MigrateUp(config.LoadConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		down()
		os.Exit(1)
	}

	srvCtx, stop := context.WithCancel(context.Background())
	done, err := startServer(srvCtx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		stop()
		down()
		os.Exit(1)
	}
	if err := waitForHealth(ctx, baseURL+"/healthz"); err != nil {
		fmt.Fprintf(os.Stderr, "server not healthy: %v\n", err)
		stop()
		<-done
		down()
		os.Exit(1)
	}

	code := m.Run()

	stop()
	<-done
	down()
	os.Exit(code)
}

func TestRecruitingLifecycle(t *testing.T) {
	email := fmt.Sprintf("admin_%d@example.com", time.Now().UnixNano())
	password := "testpass123!"

	status, _ := call(t, http.MethodPost, "/api/register", "", map[string]string{
		"email": email, "nombre": "Test Admin", "password": password,
	}, nil)
	require.Equal(t, http.StatusCreated, status)
	require.NoError(t, promoteToAdmin(email))

	var login struct {
		Token string `json:"token"`
	}
	status, _ = call(t, http.MethodPost, "/api/login", "", map[string]string{"email": email, "password": password}, &login)
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, login.Token)
	token := login.Token

	var candidate struct {
		ID     int    `json:"id"`
		Estado string `json:"estado"`
	}
	status, _ = call(t, http.MethodPost, "/api/reclutas", token, map[string]string{
		"nombre": "Marta Ruiz", "email": "marta@example.com", "puesto": "Backend",
	}, &candidate)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "En proceso", candidate.Estado)

	day := time.Now().AddDate(0, 0, 7).Format("2006-01-02")
	var interview struct {
		ID int `json:"id"`
	}
	status, _ = call(t, http.MethodPost, "/api/entrevistas", token, map[string]any{
		"recluta_id": candidate.ID, "fecha": day, "hora": "10:00", "duracion": 60,
	}, &interview)
	require.Equal(t, http.StatusCreated, status)

	status, body := call(t, http.MethodPost, "/api/entrevistas", token, map[string]any{
		"recluta_id": candidate.ID, "fecha": day, "hora": "10:30", "duracion": 30,
	}, nil)
	assert.Equal(t, http.StatusConflict, status, body)

	status, _ = call(t, http.MethodPost, "/api/entrevistas", token, map[string]any{
		"recluta_id": candidate.ID, "fecha": day, "hora": "11:00", "duracion": 30,
	}, nil)
	assert.Equal(t, http.StatusCreated, status)

	var listed struct {
		Items []struct {
			ID int `json:"id"`
		} `json:"items"`
	}
	status, _ = call(t, http.MethodGet, "/api/entrevistas?fecha="+day, token, nil, &listed)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, listed.Items, 2)

	status, _ = call(t, http.MethodDelete, fmt.Sprintf("/api/reclutas/%d", candidate.ID), token, nil, nil)
	require.Equal(t, http.StatusNoContent, status)

	status, _ = call(t, http.MethodGet, fmt.Sprintf("/api/entrevistas/%d", interview.ID), token, nil, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = call(t, http.MethodGet, "/api/logs?limit=20", token, nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "candidate_deleted")
	assert.Contains(t, body, "interview_created")

	status, _ = call(t, http.MethodPost, "/api/logout", token, nil, nil)
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = call(t, http.MethodGet, "/api/me", token, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func call(t *testing.T, method, path, token string, payload any, out any) (int, string) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, baseURL+path, body)
	require.NoError(t, err)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.Unmarshal(raw, out))
	}
	return resp.StatusCode, strings.TrimSpace(string(raw))
}

func promoteToAdmin(email string) error {
	conn, err := sql.Open("postgres", db.PostgresURL(config.LoadConfig().Database))
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = conn.ExecContext(ctx, "UPDATE accounts SET admin = TRUE WHERE LOWER(email) = LOWER($1)", email)
	return err
}

func waitForPostgres(ctx context.Context) error {
	conn, err := sql.Open("postgres", db.PostgresURL(config.LoadConfig().Database))
	if err != nil {
		return err
	}
	defer conn.Close()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := conn.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres ping timeout: %w", err)
		case <-ticker.C:
		}
	}
}

func waitForHealth(ctx context.Context, url string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			return fmt.Errorf("health check failed with status")
		case <-ticker.C:
		}
	}
}

func setEnv() {
	_ = os.Setenv("SESSION_SECRET", "test-secret")
	_ = os.Setenv("SERVER_PORT", fmt.Sprintf("%d", serverPort))
	_ = os.Setenv("DB_HOST", "localhost")
	_ = os.Setenv("DB_PORT", "5432")
	_ = os.Setenv("DB_USER", "reclutas")
	_ = os.Setenv("DB_PASSWORD", "reclutas")
	_ = os.Setenv("DB_NAME", "reclutas")
	_ = os.Setenv("DB_SSL", "false")
	_ = os.Setenv("ALLOW_REGISTRATION", "true")
	_ = os.Setenv("REDIS_ADDR", "localhost:6379")
	_ = os.Setenv("MQ_BACKEND", "memory")
}

func startServer(ctx context.Context) (<-chan struct{}, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	srv, err := server.New(ctx, config.LoadConfig(), logger)
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Run(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "server stopped: %v\n", err)
		}
	}()
	return done, nil
}

func dockerCompose(ctx context.Context, root string, args ...string) error {
	composeFile := filepath.Join(root, "development", "docker-compose.yml")
	baseArgs := append([]string{"compose", "-f", composeFile}, args...)
	cmd := exec.CommandContext(ctx, "docker", baseArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found")
		}
		dir = parent
	}
}
