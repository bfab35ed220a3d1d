package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"gorm.io/gorm"

	apimw "github.com/casapps/landregistry/src/internal/api/middleware"
	"github.com/casapps/landregistry/src/internal/auth"
	"github.com/casapps/landregistry/src/internal/cache"
	apperrors "github.com/casapps/landregistry/src/internal/errors"
	"github.com/casapps/landregistry/src/internal/ledger"
	"github.com/casapps/landregistry/src/internal/metrics"
	"github.com/casapps/landregistry/src/internal/notifications"
	"github.com/casapps/landregistry/src/internal/services"
)

// Options carries the collaborators a caller may inject
type Options struct {
	// Ledger overrides the ledger selected by ledger.type
	Ledger ledger.Ledger
	// Sender overrides the SMTP mailer
	Sender  notifications.Sender
	Logger  *slog.Logger
	Version string
}

// Server represents the main application server
type Server struct {
	echo    *echo.Echo
	config  *viper.Viper
	db      *gorm.DB
	cache   *cache.CacheManager
	ledger  ledger.Ledger
	metrics *metrics.Metrics
	logger  *slog.Logger
	version string

	auth       *auth.AuthService
	notifier   *notifications.Service
	users      *services.UserService
	lands      *services.LandService
	transfers  *services.TransferService
	admin      *services.AdminService
	reports    *services.ReportService
	audit      *services.AuditService
	reconciler *services.Reconciler
	auditor    *apimw.Auditor

	anonLimiter *apimw.RateLimiter
	userLimiter *apimw.RateLimiter
	housekeeper *cron.Cron
}

// New wires the services and routes of the registry
func New(ctx context.Context, cfg *viper.Viper, db *gorm.DB, opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	version := opts.Version
	if version == "" {
		version = "dev"
	}

	l := opts.Ledger
	if l == nil {
		var err error
		if l, err = ledger.New(ctx, cfg); err != nil {
			return nil, fmt.Errorf("failed to initialize ledger: %w", err)
		}
	}

	m := metrics.New()
	l = ledger.WithObserver(l, m.ObserveLedger)

	notifier, err := notifications.NewService(cfg, opts.Sender, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize notifications: %w", err)
	}

	cacheManager := cache.NewCacheManager(cfg)
	authService := auth.NewAuthService(
		cfg.GetString("security.secret_key"),
		cfg.GetString("app.name"),
		cfg.GetDuration("security.token_ttl"),
	)
	totpService := auth.NewTOTPService(cfg.GetString("app.name"))

	users := services.NewUserService(db, cfg, cacheManager, authService, totpService)
	lands := services.NewLandService(db, cfg, cacheManager, l)
	transfers := services.NewTransferService(db, cfg, l, users, lands, notifier, m)
	audit := services.NewAuditService(db, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:        e,
		config:      cfg,
		db:          db,
		cache:       cacheManager,
		ledger:      l,
		metrics:     m,
		logger:      logger,
		version:     version,
		auth:        authService,
		notifier:    notifier,
		users:       users,
		lands:       lands,
		transfers:   transfers,
		admin:       services.NewAdminService(db, cfg, cacheManager, lands, l),
		reports:     services.NewReportService(db),
		audit:       audit,
		auditor:     apimw.NewAuditor(audit, cfg.GetBool("audit.enabled")),
		reconciler:  services.NewReconciler(transfers, cfg, m),
		anonLimiter: apimw.NewRateLimiter(cfg.GetInt("ratelimit.anonymous_api")),
		userLimiter: apimw.NewRateLimiter(cfg.GetInt("ratelimit.authenticated_api")),
	}

	errorHandler := apperrors.NewErrorHandler(cfg, logger)
	e.HTTPErrorHandler = errorHandler.HTTPErrorHandler
	e.Validator = NewEchoValidator()

	s.setupMiddleware(errorHandler)
	s.setupRoutes()

	return s, nil
}

func (s *Server) setupMiddleware(errorHandler *apperrors.ErrorHandler) {
	s.echo.Use(middleware.RequestID())
	s.echo.Use(apimw.RequestLogger(s.logger))
	s.echo.Use(errorHandler.RecoverMiddleware())
	s.echo.Use(s.metrics.Middleware())
	s.echo.Use(middleware.BodyLimit("1M"))

	// CORS middleware
	s.echo.Use(apimw.CORS(s.config))

	// Security middleware
	s.echo.Use(apimw.Security())
}

// ServeHTTP lets the server be driven directly, as in tests
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start starts background jobs and then serves address until shutdown
func (s *Server) Start(address string) error {
	if err := s.reconciler.Start(); err != nil {
		return err
	}
	if err := s.startHousekeeping(); err != nil {
		return err
	}

	s.echo.Server.ReadTimeout = s.config.GetDuration("server.request_timeout")
	s.echo.Server.WriteTimeout = s.config.GetDuration("server.request_timeout")

	s.logger.Info("server listening", "address", address, "version", s.version, "cache", s.cache.Backend())
	if err := s.echo.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// startHousekeeping purges expired sessions, old audit entries and idle rate
// limiter keys
func (s *Server) startHousekeeping() error {
	s.housekeeper = cron.New()
	_, err := s.housekeeper.AddFunc("@every 10m", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		if n, err := s.users.PurgeExpiredSessions(ctx); err != nil {
			s.logger.Error("failed to purge expired sessions", "error", err)
		} else if n > 0 {
			s.logger.Info("purged expired sessions", "count", n)
		}
		if retention := s.config.GetDuration("audit.retention"); retention > 0 {
			if n, err := s.audit.Purge(ctx, retention); err != nil {
				s.logger.Error("failed to purge audit log", "error", err)
			} else if n > 0 {
				s.logger.Info("purged audit log", "count", n)
			}
		}
		s.anonLimiter.Cleanup(30 * time.Minute)
		s.userLimiter.Cleanup(30 * time.Minute)
	})
	if err != nil {
		return err
	}
	s.housekeeper.Start()
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.echo.Shutdown(ctx)

	s.reconciler.Stop()
	if s.housekeeper != nil {
		<-s.housekeeper.Stop().Done()
	}
	s.notifier.Wait()

	if cerr := s.cache.Close(); cerr != nil {
		s.logger.Warn("failed to close cache", "error", cerr)
	}
	return err
}
