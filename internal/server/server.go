package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/reclutas/apiserver/config"
	"github.com/reclutas/apiserver/internal/db"
	"github.com/reclutas/apiserver/internal/events"
	"github.com/reclutas/apiserver/internal/handlers"
	"github.com/reclutas/apiserver/internal/logging"
	"github.com/reclutas/apiserver/internal/mq"
	"github.com/reclutas/apiserver/internal/ratelimit"
	"github.com/reclutas/apiserver/internal/services"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer    *http.Server
	router        *chi.Mux
	db            *sql.DB
	redis         *redis.Client
	broker        *mq.MQ
	sessions      *services.SessionService
	purgeInterval time.Duration
	logger        *slog.Logger
}

// Deps are the connections a server is built on. Redis and Broker are
// optional.
type Deps struct {
	DB     *sql.DB
	Redis  *redis.Client
	Broker *mq.MQ
}

// Close releases every connection that is set.
func (d Deps) Close() {
	if d.Broker != nil {
		_ = d.Broker.Close()
	}
	if d.Redis != nil {
		_ = d.Redis.Close()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
}

// New connects to the configured backends and constructs a Server.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, login rate limiting fails open", "addr", cfg.Redis.Addr, "error", err)
		}
	} else {
		logger.Warn("REDIS_ADDR not set, login rate limiting disabled")
	}

	broker, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		Deps{DB: dbConn, Redis: rdb}.Close()
		return nil, err
	}
	if broker == nil {
		logger.Info("MQ_BACKEND not set, interview events are not published")
	}

	return buildOrClose(cfg, Deps{DB: dbConn, Redis: rdb, Broker: broker}, logger)
}

// buildOrClose is Build for connections the server owns: they are closed
// when the server cannot be assembled.
func buildOrClose(cfg config.Config, deps Deps, logger *slog.Logger) (*Server, error) {
	srv, err := Build(cfg, deps, logger)
	if err != nil {
		deps.Close()
		return nil, err
	}
	return srv, nil
}

// Build assembles the router and services over existing connections.
func Build(cfg config.Config, deps Deps, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	secret := cfg.Session.Secret
	if secret == "" {
		generated, err := randomSecret()
		if err != nil {
			return nil, err
		}
		secret = generated
		logger.Warn("SESSION_SECRET not set, using a random secret; sessions will not survive a restart")
	}

	allowNetworks, err := handlers.AllowNetworks(cfg.Security.AllowedNetworks)
	if err != nil {
		return nil, err
	}

	database := db.New(deps.DB)
	repos := services.StoreRepositories()
	publisher := events.NewPublisher(deps.Broker, cfg.MQ.Channel)

	credentials := services.NewCredentialService(database, repos, cfg.Security)
	sessions := services.NewSessionService(database, repos, cfg.Session.TTL)
	accounts := services.NewAccountService(database, repos, credentials, sessions)
	audit := services.NewAuditService(database, repos, logger)
	candidates := services.NewCandidateService(database, repos)
	interviews := services.NewInterviewService(database, repos, publisher, logger)

	var limiter *ratelimit.Limiter
	if deps.Redis != nil {
		limiter = ratelimit.New(deps.Redis, cfg.Security.LoginRateLimit, cfg.Security.LoginRateBurst)
	}

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		logging.RequestLogger(logger),
		middleware.Recoverer,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz(deps.DB))
	router.Handle("/metrics", promhttp.Handler())
	router.Route("/api", func(r chi.Router) {
		r.Use(allowNetworks)

		var guard *handlers.SessionGuard
		r.Group(func(r chi.Router) {
			guard = handlers.AuthRouter(r, handlers.AuthDeps{
				Credentials:       credentials,
				Sessions:          sessions,
				Accounts:          accounts,
				Audit:             audit,
				Limiter:           limiter,
				Tokens:            handlers.NewTokenCodec(secret),
				Cookie:            handlers.CookieOptions{Name: cfg.Session.CookieName, Secure: cfg.Session.CookieSecure},
				AllowRegistration: cfg.Security.AllowRegistration,
			})
		})
		r.Group(func(r chi.Router) {
			r.Use(guard.RequireSession)
			r.Route("/reclutas", func(r chi.Router) {
				handlers.CandidateRouter(r, candidates, interviews, audit)
			})
			r.Route("/entrevistas", func(r chi.Router) {
				handlers.InterviewRouter(r, interviews, audit)
			})
			r.With(handlers.RequireAdmin).Route("/logs", func(r chi.Router) {
				handlers.AuditRouter(r, audit)
			})
		})
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer:    httpServer,
		router:        router,
		db:            deps.DB,
		redis:         deps.Redis,
		broker:        deps.Broker,
		sessions:      sessions,
		purgeInterval: cfg.Session.PurgeInterval,
		logger:        logger,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run serves HTTP and purges expired sessions until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.purgeSessions(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.httpServer.Addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	return s.Shutdown(shutdownCtx)
}

// purgeSessions removes expired and invalidated sessions on every tick.
// Failures are logged and retried on the next tick.
func (s *Server) purgeSessions(ctx context.Context) {
	if s.purgeInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.purgeOnce(ctx)
		}
	}
}

func (s *Server) purgeOnce(ctx context.Context) {
	purged, err := s.sessions.PurgeExpired(ctx)
	if err != nil {
		s.logger.Warn("session purge failed", "error", err)
		return
	}
	if purged > 0 {
		s.logger.Debug("sessions purged", "count", purged)
	}
}

// Shutdown stops accepting requests, waits for in-flight ones and closes
// the backends.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	Deps{DB: s.db, Redis: s.redis, Broker: s.broker}.Close()
	return err
}

func randomSecret() (string, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("generate session secret: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}
