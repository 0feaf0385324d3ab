package main

import (
	"context"
	crypto_rand "crypto/rand"
	"fmt"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/Anup697028/mediwise-chat/internal/config"
	"github.com/Anup697028/mediwise-chat/internal/domain/billing"
	"github.com/Anup697028/mediwise-chat/internal/domain/clinical"
	"github.com/Anup697028/mediwise-chat/internal/domain/identity"
	"github.com/Anup697028/mediwise-chat/internal/domain/scheduling"
	"github.com/Anup697028/mediwise-chat/internal/platform/auth"
	"github.com/Anup697028/mediwise-chat/internal/platform/clock"
	"github.com/Anup697028/mediwise-chat/internal/platform/db"
	"github.com/Anup697028/mediwise-chat/internal/platform/kvstore"
	"github.com/Anup697028/mediwise-chat/internal/platform/live"
	"github.com/Anup697028/mediwise-chat/internal/platform/localdb"
	"github.com/Anup697028/mediwise-chat/internal/platform/messaging"
	"github.com/Anup697028/mediwise-chat/internal/platform/middleware"
	"github.com/Anup697028/mediwise-chat/internal/platform/notification"
)

// app holds everything a command needs, wired from one Config.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	clock  clock.Clock

	pool *pgxpool.Pool
	db   *localdb.Database

	notifier *notification.Manager
	live     *live.Hub
	events   messaging.Publisher

	identity   *identity.Service
	billing    *billing.Service
	scheduling *scheduling.Service
	clinical   *clinical.Service

	tokens  *auth.TokenIssuer
	revoked *auth.TokenRevocationStore
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// openDatabase connects the configured key/value backend and initializes the
// Local Data Store on it.
func openDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*localdb.Database, *pgxpool.Pool, error) {
	var (
		store kvstore.Store
		pool  *pgxpool.Pool
	)
	switch cfg.StoreBackend {
	case config.BackendMemory:
		store = kvstore.NewMemoryStore()
	case config.BackendFile:
		fs, err := kvstore.NewFileStore(cfg.DataDir)
		if err != nil {
			return nil, nil, err
		}
		store = fs
	case config.BackendPostgres:
		p, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, logger)
		if err != nil {
			return nil, nil, err
		}
		pg := kvstore.NewPGStore(p)
		if err := pg.EnsureSchema(ctx); err != nil {
			p.Close()
			return nil, nil, err
		}
		store, pool = pg, p
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	database := localdb.New(store, cfg.KeyPrefix, logger)
	if err := database.Initialize(ctx, identity.Seeds()...); err != nil {
		if pool != nil {
			pool.Close()
		}
		return nil, nil, fmt.Errorf("initialize store: %w", err)
	}
	return database, pool, nil
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	database, pool, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, clock: clock.System{}, pool: pool, db: database}

	outbox := notification.NewOutbox(logger, 0)
	a.notifier = notification.NewManager(outbox, outbox, notification.NewTemplateEngine(), a.clock)

	// Events go to connected clients and, when configured, to the broker.
	a.live = live.NewHub(logger)
	a.events = a.live
	if cfg.RabbitMQURL != "" {
		rp, err := messaging.NewRabbitPublisher(cfg.RabbitMQURL, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.events = messaging.Fanout{rp, a.live}
	}

	latency := clock.NewLatency(cfg.SimulatedLatency)
	a.identity = identity.NewService(
		identity.NewUserRepoKV(database),
		identity.NewCredentialRepoKV(database),
		identity.NewSessions(database),
		identity.NewMemoryOTPStore(),
		identity.Config{
			Notifier:        a.notifier,
			Events:          a.events,
			Clock:           a.clock,
			Latency:         latency,
			Logger:          logger,
			OTPTTL:          cfg.OTPTTL,
			OTPCooldown:     cfg.OTPCooldown,
			OTPMaxAttempts:  cfg.OTPMaxAttempts,
			VerifyPasswords: cfg.VerifyPasswords,
			LogCodes:        cfg.IsDev(),
		},
	)
	a.identity.Sessions().OnEnd(a.live.Disconnect)
	if u, err := a.identity.Restore(ctx); err != nil {
		logger.Warn().Err(err).Msg("could not restore session")
	} else if u != nil {
		logger.Info().Str("user_id", u.ID).Msg("session restored")
	}

	a.billing = billing.NewService(a.identity, latency, logger)
	a.scheduling = scheduling.NewService(
		scheduling.NewAppointmentRepoKV(database),
		scheduling.NewDoctorRepoKV(database),
		a.identity,
		scheduling.Config{
			Notifier: a.notifier,
			Events:   a.events,
			Clock:    a.clock,
			Latency:  latency,
			Logger:   logger,
		},
	)
	a.clinical = clinical.NewService(
		clinical.NewConsultationRepoKV(database),
		clinical.NewPrescriptionRepoKV(database),
		a.scheduling,
		clinical.Config{Events: a.events, Clock: a.clock, Latency: latency, Logger: logger},
	)

	key, err := cfg.SigningKey()
	if err != nil {
		a.Close()
		return nil, err
	}
	if key == nil {
		key = make([]byte, config.MinSigningKeyBytes)
		if _, err := crypto_rand.Read(key); err != nil {
			a.Close()
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
		logger.Warn().Msg("SESSION_SIGNING_KEY not set; using an ephemeral key, tokens will not survive a restart")
	}
	a.tokens, err = auth.NewTokenIssuer(key, cfg.SessionTTL, a.clock)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.revoked = auth.NewTokenRevocationStore(a.clock)
	return a, nil
}

// Close disconnects live clients and releases the event publisher and the
// database pool.
func (a *app) Close() {
	if a.events != nil {
		if err := a.events.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("close event publisher")
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

// newServer builds the HTTP API.
func (a *app) newServer() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: a.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.SecurityHeaders(!a.cfg.IsDev()))
	if a.cfg.RequestTimeout > 0 {
		e.Use(middleware.RequestTimeout(a.cfg.RequestTimeout))
	}

	apiV1 := e.Group("/api/v1")
	session := auth.SessionMiddleware(a.tokens, a.revoked, a.identity.Sessions())

	rateLimitCfg := middleware.DefaultRateLimitConfig()
	if a.cfg.RateLimitRPS > 0 {
		rateLimitCfg.RequestsPerSecond = a.cfg.RateLimitRPS
		rateLimitCfg.BurstSize = a.cfg.RateLimitBurst
	}
	rateLimitCfg.Clock = a.clock

	identity.NewHandler(a.identity, a.tokens, a.revoked).RegisterRoutes(apiV1, session, middleware.RateLimit(rateLimitCfg))
	billing.NewHandler(a.billing, a.identity).RegisterRoutes(apiV1, session)
	scheduling.NewHandler(a.scheduling, a.identity).RegisterRoutes(apiV1, session)
	clinical.NewHandler(a.clinical, a.identity).RegisterRoutes(apiV1, session)
	notification.NewHandler(a.notifier).RegisterRoutes(apiV1)
	live.NewHandler(a.live, a.cfg.CORSOrigins).RegisterRoutes(apiV1, session)

	// Health checks
	var pinger db.Pinger
	if a.pool != nil {
		pinger = a.pool
	}
	apiV1.GET("/health", db.LivenessHandler(a.cfg.StoreBackend))
	apiV1.GET("/health/db", db.HealthHandler(pinger))
	return e
}
