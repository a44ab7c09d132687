package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cosray/backend/config"
	"github.com/cosray/backend/internal/cache"
	"github.com/cosray/backend/internal/db"
	"github.com/cosray/backend/internal/handlers"
	"github.com/cosray/backend/internal/iotdb"
	"github.com/cosray/backend/internal/mail"
	"github.com/cosray/backend/internal/middleware"
	"github.com/cosray/backend/internal/mq"
	"github.com/cosray/backend/internal/packets"
	"github.com/cosray/backend/internal/services"
	"github.com/cosray/backend/internal/storage"
	"github.com/cosray/backend/internal/store"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

const requestTimeout = 60 * time.Second

// Server wraps the HTTP server, the router and the backends it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	sessions   cache.Store
	broker     mq.Backend
	iotdb      *iotdb.Client
	log        zerolog.Logger
}

// New connects every configured backend and builds the router. Backends
// opened before a failure are closed again.
func New(ctx context.Context, cfg config.Config, log zerolog.Logger) (*Server, error) {
	s := &Server{log: log}
	if err := s.connect(ctx, cfg); err != nil {
		s.closeBackends()
		return nil, err
	}

	mailer, err := mail.New(cfg.Mail, s.broker, log)
	if err != nil {
		s.closeBackends()
		return nil, err
	}

	archive, err := storage.New(ctx, cfg.Archive)
	if err != nil {
		s.closeBackends()
		return nil, err
	}

	userRepo := store.NewUserRepository(s.db)
	userService := services.NewUserService(userRepo)
	authService := services.NewAuthService(userRepo, s.sessions, mailer, cfg.Security.SecretKey, cfg.Accounts, log)

	var packetOpts []services.PacketServiceOption
	if archive != nil {
		packetOpts = append(packetOpts, services.WithArchive(storage.NewArchive(archive)))
	}
	if s.broker != nil {
		packetOpts = append(packetOpts, services.WithEvents(s.broker, cfg.MQ.PacketEventsChannel))
	}
	packetService := services.NewPacketService(s.iotdb, packets.DeviceSettingsFrom(cfg.IoTDB), log, packetOpts...)

	authn := handlers.NewAuthenticator(authService, log)
	authHandler := handlers.NewAuthHandler(authService, log)

	router := chi.NewRouter()
	router.Use(
		chimw.RequestID,
		chimw.RealIP,
		middleware.AccessLog(log),
		middleware.Recovery(log),
		middleware.AllowedHosts(cfg.Security.AllowedHosts),
		middleware.CORS(middleware.CORSOptions{
			AllowAll:         cfg.CORSAllowAll(),
			AllowedOrigins:   cfg.Security.CORSAllowedOrigins,
			AllowCredentials: cfg.Security.CORSAllowCredentials,
			PathPrefix:       "/api/",
		}),
		middleware.CSRF(cfg.Security.CSRFTrustedOrigins),
		chimw.Timeout(requestTimeout),
	)
	router.NotFound(handlers.NotFound)
	router.MethodNotAllowed(handlers.MethodNotAllowed)

	router.Get("/", handlers.Root)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/_allauth/app/v1", func(r chi.Router) {
		handlers.AuthRouter(r, authService, log)
	})
	router.Route("/api", func(r chi.Router) {
		r.Post("/auth-token/", authHandler.ObtainToken)
		r.With(authn.RequireUser, authn.RequireStaff).Get("/schema/", handlers.Schema)
		r.Route("/users", func(r chi.Router) {
			handlers.UserRouter(r, userService, authn.RequireUser, log)
		})
		r.Route("/mu-packets", func(r chi.Router) {
			handlers.PacketRouter(r, packetService, authn.RequireUser, log)
		})
	})
	if cfg.Debug {
		router.Get("/400/", handlers.BadRequestPage)
		router.Get("/403/", handlers.PermissionDeniedPage)
		router.Get("/404/", handlers.NotFound)
		router.Get("/500/", handlers.ServerErrorPage)
	}

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	s.router = router
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().
		Str("env", string(cfg.Env)).
		Bool("debug", cfg.Debug).
		Int("port", port).
		Str("cache", cfg.Cache.Backend).
		Str("mail", cfg.Mail.Backend).
		Str("archive", cfg.Archive.Backend).
		Str("mq", cfg.MQ.Backend).
		Str("iotdb_dialect", cfg.IoTDB.SQLDialect).
		Strs("allowed_hosts", cfg.Security.AllowedHosts).
		Msg("configuration loaded")
	return s, nil
}

func (s *Server) connect(ctx context.Context, cfg config.Config) error {
	var err error
	if s.db, err = db.Open(ctx, cfg.Database); err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if s.sessions, err = cache.New(ctx, cfg.Cache); err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	if s.broker, err = mq.New(ctx, cfg.MQ); err != nil {
		return err
	}
	if s.iotdb, err = iotdb.New(cfg.IoTDB, s.log); err != nil {
		return err
	}
	return nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones until ctx is
// done and then closes the backends.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.closeBackends()
	return err
}

func (s *Server) closeBackends() {
	if s.iotdb != nil {
		s.iotdb.Close()
	}
	if s.broker != nil {
		if err := s.broker.Close(); err != nil {
			s.log.Warn().Err(err).Msg("failed to close message broker")
		}
	}
	if s.sessions != nil {
		if err := s.sessions.Close(); err != nil {
			s.log.Warn().Err(err).Msg("failed to close cache")
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.log.Warn().Err(err).Msg("failed to close database")
		}
	}
}
