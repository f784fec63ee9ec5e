// Package server sets up the HTTP server, router, and all route definitions.
//
// This package is the composition root: New opens the database and the
// attachment store, builds the auth stack, services and handlers, and wires
// them to routes. main.go only loads config and calls Start.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/blockful/backoffice/internal/auth"
	"github.com/blockful/backoffice/internal/config"
	"github.com/blockful/backoffice/internal/handler"
	"github.com/blockful/backoffice/internal/middleware"
	sqliteRepo "github.com/blockful/backoffice/internal/repository/sqlite"
	"github.com/blockful/backoffice/internal/service"
	"github.com/blockful/backoffice/internal/storage"
	"github.com/blockful/backoffice/internal/telemetry"
)

// Server represents the HTTP server and all its dependencies.
//
// The Server owns the database connection and closes it on shutdown.
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB

	httpClient *http.Client
	verifier   auth.IdentityVerifier
	google     *auth.GoogleProvider
}

// Option customises a Server. Tests use them to stub Google.
type Option func(*Server)

// WithVerifier replaces the Google userinfo verifier.
func WithVerifier(v auth.IdentityVerifier) Option {
	return func(s *Server) { s.verifier = v }
}

// WithGoogleProvider replaces the OAuth provider built from config.
func WithGoogleProvider(p *auth.GoogleProvider) Option {
	return func(s *Server) { s.google = p }
}

// WithHTTPClient sets the client used for outbound calls to Google.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Server) { s.httpClient = c }
}

// New creates a Server from cfg.
func New(cfg config.Config, logger *slog.Logger, opts ...Option) (*Server, error) {
	if dir := filepath.Dir(cfg.DBPath); cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
		}
	}

	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// Handler returns the fully wrapped HTTP handler (tracing included).
func (s *Server) Handler() http.Handler {
	return telemetry.Handler(s.router)
}

// Close releases the database.
func (s *Server) Close() error {
	return s.db.Close()
}

// setupRoutes builds the dependency chain and registers every route.
//
// ROUTE STRUCTURE:
// GET    /                                      → index
// GET    /healthz                               → liveness + DB ping
// GET    /auth/google, /auth/google/callback    → browser sign-in (when configured)
// GET    /auth/session, /auth/logout            → browser session
// GET    /auth/me                               → current user            [required]
// POST   /auth/users                            → create/update from token [identity]
// *      /auth/users/...                        → user administration     [required]
// *      /ooo...                                → OOO records             [optional reads]
// *      /reimbursements...                     → reimbursements          [required]
// GET    /dashboard                             → reimbursement stats     [required]
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID, 2. RealIP, 3. Logger, 4. Recoverer, 5. CORS
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{s.config.FrontendURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// === Outbound Google ===
	if s.httpClient == nil {
		s.httpClient = telemetry.HTTPClient()
	}
	if s.google == nil && s.config.GoogleConfigured() {
		s.google = auth.NewGoogleProvider(
			s.config.GoogleClientID,
			s.config.GoogleClientSecret,
			s.config.GoogleRedirectURI,
			s.httpClient,
		)
	}
	if s.verifier == nil {
		s.verifier = auth.NewVerifier(s.config.AllowedDomain, s.logger, auth.WithHTTPClient(s.httpClient))
	}

	// A nil *GoogleProvider must not end up inside a non-nil interface.
	var (
		refresher auth.Refresher
		oauth     handler.OAuthProvider
	)
	if s.google != nil {
		refresher = s.google
		oauth = s.google
	}

	// === Sessions ===
	tokens, err := auth.NewTokenService(s.config.SessionSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	sealer, err := auth.NewSealer(s.config.SessionSecret)
	if err != nil {
		return fmt.Errorf("creating sealer: %w", err)
	}
	sessions := auth.NewSessionIssuer(tokens, sealer, refresher, s.config.SessionMaxAge, s.config.SecureCookies, s.logger)

	// === Attachments ===
	files, err := storage.New(s.config.UploadDir, s.config.MaxUploadBytes)
	if err != nil {
		return fmt.Errorf("creating attachment store: %w", err)
	}

	// === Services ===
	// s.db implements every repository interface; services only see the
	// interfaces.
	reconciler := service.NewReconciler(
		s.db,
		s.config.AllowedDomain,
		s.config.Provisioning == config.ProvisionAuto,
		s.config.ReconcileGrace,
		s.logger,
	)
	userService := service.NewUserService(s.db, reconciler, s.logger)
	oooService := service.NewOOOService(s.db, s.logger)
	reimbursementService := service.NewReimbursementService(s.db, files, s.logger)

	authn := auth.NewAuthenticator(s.verifier, reconciler, sessions, s.logger)

	// === Handlers ===
	healthHandler := handler.NewHealthHandler(s.db, s.logger)
	authHandler := handler.NewAuthHandler(oauth, s.verifier, reconciler, userService, sessions,
		s.config.FrontendURL, s.config.AllowedDomain, s.logger)
	userHandler := handler.NewUserHandler(userService, s.logger)
	oooHandler := handler.NewOOOHandler(oooService, s.logger)
	reimbursementHandler := handler.NewReimbursementHandler(reimbursementService, files.MaxBytes(), s.logger)

	s.router.Get("/", healthHandler.HandleIndex)
	s.router.Get("/healthz", healthHandler.HandleHealth)

	s.router.Route("/auth", func(r chi.Router) {
		if oauth != nil {
			r.Get("/google", authHandler.HandleGoogleLogin)
			r.Get("/google/callback", authHandler.HandleGoogleCallback)
		} else {
			s.logger.Warn("GOOGLE_CLIENT_ID/SECRET not set; browser sign-in is disabled")
		}
		r.Get("/session", authHandler.HandleSession)
		r.Get("/logout", authHandler.HandleLogout)
		r.Get("/me", authn.Require(authHandler.HandleMe))

		r.Post("/users", authn.RequireIdentity(authHandler.HandleCreateUser))
		r.Get("/users/email/{email}", authn.Require(userHandler.HandleGetByEmail))
		r.Get("/users/provider/{provider}/{accountID}", authn.Require(userHandler.HandleGetByProvider))
		r.Get("/users/{id}", authn.Require(userHandler.HandleGetByID))
		r.Put("/users/{id}", authn.Require(userHandler.HandleUpdate))
		r.Delete("/users/{id}", authn.Require(userHandler.HandleDelete))
	})

	s.router.Route("/ooo", func(r chi.Router) {
		r.Post("/", authn.Require(oooHandler.HandleCreate))
		r.Get("/", authn.Optional(oooHandler.HandleList))
		r.Get("/{id}", authn.Optional(oooHandler.HandleGet))
		r.Put("/{id}", authn.Require(oooHandler.HandleUpdate))
		r.Delete("/{id}", authn.Require(oooHandler.HandleDelete))
	})

	s.router.Route("/reimbursements", func(r chi.Router) {
		r.Post("/", authn.Require(reimbursementHandler.HandleCreate))
		r.Get("/", authn.Require(reimbursementHandler.HandleList))
		r.Get("/{id}", authn.Require(reimbursementHandler.HandleGet))
		r.Get("/{id}/file", authn.Require(reimbursementHandler.HandleFile))
		r.Put("/{id}", authn.Require(reimbursementHandler.HandleUpdate))
		r.Delete("/{id}", authn.Require(reimbursementHandler.HandleDelete))
	})

	s.router.Get("/dashboard", authn.Require(reimbursementHandler.HandleDashboard))

	return nil
}

// Start starts the HTTP server and handles graceful shutdown.
//
// On SIGINT/SIGTERM it stops accepting connections, gives in-flight requests
// 30 seconds to finish, then closes the database.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second, // uploads
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
			slog.String("allowed_domain", s.config.AllowedDomain),
			slog.String("provisioning", s.config.Provisioning),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
