package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"time"

	_ "github.com/lib/pq"

	"github.com/reclutas/apiserver/config"
	"github.com/reclutas/apiserver/internal/metrics"
)

const (
	driverName      = "postgres"
	applicationName = "reclutas"
	connectTimeout  = 5 * time.Second
	connMaxIdle     = 2 * time.Minute
	connMaxLife     = 30 * time.Minute
)

// Open connects to Postgres, sizes the pool from cfg, pings, and exports the
// pool statistics on /metrics.
func Open(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	conn, err := sql.Open(driverName, PostgresURL(cfg.Database))
	if err != nil {
		return nil, err
	}

	maxOpen := cfg.Database.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 25
	}
	conn.SetMaxOpenConns(maxOpen)
	conn.SetMaxIdleConns(max(1, maxOpen/5))
	conn.SetConnMaxIdleTime(connMaxIdle)
	conn.SetConnMaxLifetime(connMaxLife)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping database %s@%s:%d: %w", cfg.Database.DBName, cfg.Database.Host, cfg.Database.Port, err)
	}

	if err := metrics.RegisterDB(conn, cfg.Database.DBName); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("register pool metrics: %w", err)
	}
	return conn, nil
}

// PostgresURL builds a lib/pq DSN. Connections identify themselves as
// "reclutas" in pg_stat_activity.
func PostgresURL(cfg config.DatabaseConfig) string {
	sslmode := "disable"
	if cfg.UseSSL {
		sslmode = "require"
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		User:   url.UserPassword(cfg.User, cfg.Password),
		Path:   cfg.DBName,
	}
	q := url.Values{}
	q.Set("sslmode", sslmode)
	q.Set("application_name", applicationName)
	q.Set("connect_timeout", strconv.Itoa(int(connectTimeout.Seconds())))
	u.RawQuery = q.Encode()
	return u.String()
}
