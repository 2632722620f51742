package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jjudge-oj/accounts/config"
	"github.com/jjudge-oj/accounts/internal/db"
	"github.com/jjudge-oj/accounts/internal/gate"
	"github.com/jjudge-oj/accounts/internal/handlers"
	"github.com/jjudge-oj/accounts/internal/hashing"
	"github.com/jjudge-oj/accounts/internal/mq"
	"github.com/jjudge-oj/accounts/internal/services"
	"github.com/jjudge-oj/accounts/internal/store"
	"github.com/jjudge-oj/accounts/internal/token"
	"github.com/jjudge-oj/accounts/internal/transport"
)

const shutdownTimeout = 10 * time.Second

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	events     *mq.MQ
	logger     *slog.Logger
}

// New wires storage, hashing, tokens, cookies and events into a router.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{logger: logger}

	var repo services.UserRepository
	switch cfg.Database.Driver {
	case "memory":
		logger.WarnContext(ctx, "using in-memory user store; accounts are lost on exit")
		repo = store.NewMemoryUserRepository()
	default:
		dbConn, err := db.Open(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		s.db = dbConn
		repo = store.NewUserRepository(dbConn)
	}

	hasher, err := hashing.NewArgon2(hashing.Config{
		Memory:      cfg.Hashing.MemoryKB,
		Time:        cfg.Hashing.Time,
		Parallelism: cfg.Hashing.Parallelism,
		SaltLength:  hashing.DefaultConfig().SaltLength,
		KeyLength:   hashing.DefaultConfig().KeyLength,
	})
	if err != nil {
		s.close()
		return nil, fmt.Errorf("hashing config: %w", err)
	}

	codec, err := transport.NewCodec(transport.CodecConfig{
		HashKey:  cfg.Auth.CookieHashKey,
		BlockKey: cfg.Auth.CookieBlockKey,
		MaxAge:   token.Refresh.TTL,
		Secure:   cfg.Auth.CookieSecure,
	})
	if err != nil {
		s.close()
		return nil, fmt.Errorf("cookie config: %w", err)
	}

	var events services.AccountEvents
	backend, err := mq.NewBackend(ctx, cfg.Events)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("events backend: %w", err)
	}
	if backend != nil {
		s.events = mq.New(backend)
		events = mq.NewAccountEvents(s.events, cfg.Events.Channel)
	}

	userService := services.NewUserService(repo, hashing.NewPool(hasher, cfg.Hashing.Workers), cfg.Auth.JWTSecret, events, logger)
	authHandler := handlers.NewAuthHandler(
		userService,
		codec,
		gate.New(token.Access, cfg.Auth.JWTSecret, repo, logger),
		gate.New(token.Refresh, cfg.Auth.JWTSecret, repo, logger),
		logger,
	)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/"+strings.Trim(cfg.APIVersion, "/")+"/user", func(r chi.Router) {
		handlers.AuthRouter(r, authHandler)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8000
	}

	s.router = router
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}
	return s, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.InfoContext(ctx, "listening", "addr", s.httpServer.Addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.InfoContext(ctx, "shutting down")
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown stops accepting requests, waits for in-flight ones and releases
// the database and broker.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.close()
	return err
}

func (s *Server) close() {
	if s.db != nil {
		_ = s.db.Close()
		s.db = nil
	}
	if s.events != nil {
		if err := s.events.Close(); err != nil {
			s.logger.Warn("close events backend", "error", err)
		}
		s.events = nil
	}
}
