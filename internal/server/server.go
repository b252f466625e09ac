// Package server is the composition root: it opens the stores, builds the
// services and handlers, and owns the routing table and the HTTP lifecycle.
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config ──► stores (sqlite | postgres, + optional redis sessions)
//	                  │
//	                  ├─► service.AuthService ──► handler.AuthHandler
//	                  ├─► auth.SessionManager ──► auth.LoadSession / handler.AuthHandler
//	news.Client ────► service.NewsService ────► handler.FeedHandler
//
// Nothing below this package constructs its own collaborators.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/newsroom/internal/auth"
	"github.com/sakif/newsroom/internal/config"
	"github.com/sakif/newsroom/internal/handler"
	"github.com/sakif/newsroom/internal/metrics"
	"github.com/sakif/newsroom/internal/middleware"
	"github.com/sakif/newsroom/internal/news"
	"github.com/sakif/newsroom/internal/service"
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns its store connections. Close releases them; Start calls
// it on the way out.
type Server struct {
	router   *chi.Mux
	config   *config.Config
	logger   *slog.Logger
	stores   *stores
	sessions *auth.SessionManager
}

// New wires every dependency from cfg. Store connections are opened here,
// so a bad DATABASE_URL or an unreachable Redis fails startup.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		stores: st,
	}

	if err := s.setupRoutes(); err != nil {
		st.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the store connections.
func (s *Server) Close() {
	s.stores.Close()
}

// providers builds the OAuth providers that have credentials. The others
// are left out, so their /auth routes answer 404.
func (s *Server) providers() []auth.Provider {
	var out []auth.Provider

	if c := s.config.Google; c.Enabled() {
		out = append(out, auth.NewGoogleProvider(auth.ProviderConfig{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			CallbackURL:  c.CallbackURL,
		}))
	} else {
		s.logger.Warn("GOOGLE_CLIENT_ID not set, Google login is disabled")
	}

	if c := s.config.GitHub; c.Enabled() {
		out = append(out, auth.NewGitHubProvider(auth.ProviderConfig{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			CallbackURL:  c.CallbackURL,
		}))
	} else {
		s.logger.Warn("GITHUB_CLIENT_ID not set, GitHub login is disabled")
	}

	return out
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /healthz                liveness (JSON)
// GET    /metrics                Prometheus exposition
// GET    /static/*               CSS and other assets
// GET    /login, POST /login     local login
// GET    /register, POST /register
// GET    /auth/{provider}        start Google / GitHub login
// GET    /auth/{provider}/callback
// GET    /logout
// GET    /, /news, /search       the feed (login required)
//
// MIDDLEWARE ORDER MATTERS:
//  1. RequestID, RealIP, Recoverer (chi)
//  2. CORS for FRONTEND_URL
//  3. metrics, which reads the matched route pattern after the handler
//  4. LoadSession, so everything below sees the user
//  5. request logging, which logs that user
func (s *Server) setupRoutes() error {
	cfg := s.config

	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.FrontendURL},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	s.router.Use(metrics.Middleware)

	s.sessions = auth.NewSessionManager(s.stores.sessions, s.stores.users, auth.SessionOptions{
		TTL:    cfg.SessionTTL,
		Secure: cfg.CookieSecure,
	}, s.logger)
	s.router.Use(auth.LoadSession(s.sessions, s.logger))
	s.router.Use(middleware.Logger(s.logger))

	// === Infrastructure ===
	health := handler.NewHealthHandler(s.stores.checks, s.logger)
	s.router.Get("/healthz", health.HandleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	// GET /static/css/style.css → {StaticDir}/css/style.css
	fileServer := http.FileServer(http.Dir(cfg.StaticDir))
	s.router.Handle("/static/*", http.StripPrefix("/static/", fileServer))

	// === Handlers ===
	pages, err := handler.NewRenderer(cfg.TemplateDir, s.logger)
	if err != nil {
		return err
	}

	states, err := auth.NewStateService(cfg.SessionSecret)
	if err != nil {
		return err
	}

	accounts := service.NewAuthService(s.stores.users, auth.NewPasswordService(), s.logger)
	authHandler := handler.NewAuthHandler(handler.AuthHandlerOptions{
		Accounts:  accounts,
		Sessions:  s.sessions,
		States:    states,
		Providers: s.providers(),
		Pages:     pages,
		Secure:    cfg.CookieSecure,
	}, s.logger)

	if cfg.News.APIKey == "" {
		s.logger.Warn("NEWS_API_KEY not set, the feed will show placeholder articles")
	}
	newsClient := news.NewClient(news.Config{
		BaseURL:  cfg.News.BaseURL,
		APIKey:   cfg.News.APIKey,
		Language: cfg.News.Language,
	})
	feed := service.NewNewsService(newsClient, service.NewsOptions{
		DefaultQuery: cfg.News.Query,
		CacheTTL:     cfg.News.CacheTTL,
	}, s.logger)
	feedHandler := handler.NewFeedHandler(feed, pages, s.logger)

	// === Public Routes ===
	s.router.Get("/login", authHandler.HandleLoginPage)
	s.router.Post("/login", authHandler.HandleLogin)
	s.router.Get("/register", authHandler.HandleRegisterPage)
	s.router.Post("/register", authHandler.HandleRegister)
	s.router.Get("/logout", authHandler.HandleLogout)
	s.router.Route("/auth/{provider}", func(r chi.Router) {
		r.Get("/", authHandler.HandleOAuthStart)
		r.Get("/callback", authHandler.HandleOAuthCallback)
	})

	// === Protected Routes ===
	s.router.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)
		r.Get("/", feedHandler.HandleHome)
		r.Get("/news", feedHandler.HandleNews)
		r.Get("/search", feedHandler.HandleSearch)
	})

	return nil
}

// reapSessions purges expired sessions every interval until ctx is done.
func (s *Server) reapSessions(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.sessions.PurgeExpired(ctx)
			if err != nil {
				s.logger.Error("session purge failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				s.logger.Info("expired sessions purged", slog.Int64("count", n))
			}
		}
	}
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new HTTP connections
//  2. Wait for in-flight requests to finish (30s timeout)
//  3. Stop the session reaper and close the stores
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	reapCtx, stopReaper := context.WithCancel(context.Background())
	defer stopReaper()
	go s.reapSessions(reapCtx, s.config.ReapInterval)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("store", s.stores.name),
			slog.String("sessions", s.config.SessionStore),
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
