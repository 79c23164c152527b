package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bothive/bothive/internal/authcode"
	"github.com/bothive/bothive/internal/errs"
	"github.com/bothive/bothive/internal/logsink"
	"github.com/bothive/bothive/internal/registry"
	"github.com/bothive/bothive/internal/sandbox"
	"github.com/bothive/bothive/internal/session"
)

// BotRegistry defines the registry operations the API consumes.
type BotRegistry interface {
	CreateBot(ctx context.Context, nb registry.NewBot, maxBots int) (*registry.Bot, error)
	GetBot(ctx context.Context, id string, tenantID int64) (*registry.Bot, error)
	ListBots(ctx context.Context, tenantID int64) ([]*registry.Bot, error)
	DeleteBot(ctx context.Context, id string, tenantID int64) error
	SetArchiveDigest(ctx context.Context, id, digest string) error
	GetTenant(ctx context.Context, id int64) (*registry.Tenant, error)
	FindOrCreateTenant(ctx context.Context, chatID, displayName, avatarRef string) (*registry.Tenant, error)
}

// ProcessManager defines the supervisor operations the API consumes.
type ProcessManager interface {
	Start(ctx context.Context, bot *registry.Bot) error
	Stop(ctx context.Context, botID string) error
	Running(botID string) bool
}

// FileStore defines the sandbox operations the API consumes.
type FileStore interface {
	Ensure(root string) error
	List(root string) ([]sandbox.Entry, error)
	Read(root, relPath string) ([]byte, error)
	Write(root, relPath string, content []byte) error
	Delete(root, relPath string) error
	ExtractArchive(archivePath, destRoot string) (string, error)
}

// CodeBroker defines the credential operations the API consumes.
type CodeBroker interface {
	Redeem(ctx context.Context, raw string) (authcode.Identity, error)
}

// Sessions defines the session operations the API consumes.
type Sessions interface {
	Create(ctx context.Context, tenantID int64) (string, error)
	Resolve(ctx context.Context, token string) (session.Principal, error)
}

// LogTailer retrieves recent bot output.
type LogTailer interface {
	Tail(ctx context.Context, botID string, limit int) ([]logsink.Entry, error)
}

// QuotaResolver maps a tenant tier to its bot quota.
type QuotaResolver func(tier string) int

// Config holds API server configuration.
type Config struct {
	Listen        string
	DataDir       string
	ShutdownGrace time.Duration
}

// Server is the HTTP control surface.
type Server struct {
	config     Config
	registry   BotRegistry
	supervisor ProcessManager
	files      FileStore
	broker     CodeBroker
	sessions   Sessions
	logs       LogTailer
	quota      QuotaResolver
	logger     *slog.Logger
	server     *http.Server
	startedAt  time.Time
}

func New(config Config, reg BotRegistry, sup ProcessManager, files FileStore, broker CodeBroker, sessions Sessions, logs LogTailer, quota QuotaResolver, logger *slog.Logger) *Server {
	return &Server{
		config:     config,
		registry:   reg,
		supervisor: sup,
		files:      files,
		broker:     broker,
		sessions:   sessions,
		logs:       logs,
		quota:      quota,
		logger:     logger,
		startedAt:  time.Now(),
	}
}

// Start starts the HTTP server (blocking until ctx is cancelled).
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		grace := s.config.ShutdownGrace
		if grace <= 0 {
			grace = 5 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler returns the configured router. Split out for tests.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Post("/auth/redeem", s.handleRedeem)

	r.Group(func(r chi.Router) {
		r.Use(s.sessionMiddleware)
		r.Get("/bots", s.handleListBots)
		r.Post("/bots", s.handleCreateBot)
		r.Get("/bots/{botID}", s.handleGetBot)
		r.Delete("/bots/{botID}", s.handleDeleteBot)
		r.Post("/bots/{botID}/start", s.handleStartBot)
		r.Post("/bots/{botID}/stop", s.handleStopBot)
		r.Get("/bots/{botID}/files", s.handleListFiles)
		r.Get("/bots/{botID}/files/content", s.handleReadFile)
		r.Put("/bots/{botID}/files/content", s.handleWriteFile)
		r.Delete("/bots/{botID}/files", s.handleDeleteFile)
		r.Post("/bots/{botID}/archive", s.handleUploadArchive)
		r.Get("/bots/{botID}/logs", s.handleTailLogs)
	})

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := session.ExtractBearerToken(r)
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, err.Error())
			return
		}

		principal, err := s.sessions.Resolve(r.Context(), token)
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, "invalid session")
			return
		}

		next.ServeHTTP(w, r.WithContext(session.WithPrincipal(r.Context(), principal)))
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeTaxonomyError maps the error taxonomy onto HTTP status codes.
func (s *Server) writeTaxonomyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, errs.ErrConflict):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, errs.ErrValidation):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("internal error", "error", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}
