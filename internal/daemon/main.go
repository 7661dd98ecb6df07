// Package daemon wires the service together: database, sessions, remote directory, audit pipeline,
// login gate, reconciler and the web server.
package daemon

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	sessionmysql "github.com/gofiber/storage/mysql/v2"
	sessionpostgres "github.com/gofiber/storage/postgres/v3"
	"github.com/rs/zerolog/log"

	"github.com/staffmanagement/authservice/internal/audit"
	"github.com/staffmanagement/authservice/internal/auth"
	"github.com/staffmanagement/authservice/internal/config"
	"github.com/staffmanagement/authservice/internal/db/dsn"
	"github.com/staffmanagement/authservice/internal/web"
	"github.com/staffmanagement/authservice/internal/web/handler"
	"github.com/staffmanagement/authservice/internal/web/session"
)

const sessionTable = "sessions"

// Daemon represents the main application daemon.
type Daemon struct {
	cfg        *config.Config
	core       *Core
	sessions   *session.Manager
	dispatcher *audit.Dispatcher
	webService *web.Service
}

// Start serves HTTP until SIGINT or SIGTERM, then shuts down gracefully.
func (d *Daemon) Start() error {
	go func() {
		if err := d.webService.Start(fmt.Sprintf(":%d", d.cfg.Webserver.Port)); err != nil {
			log.Error().Err(err).Msg("web service stopped")
		}
	}()

	d.webService.WaitShutdown()

	return d.Close()
}

// Close drains the audit queue and releases sessions and the database.
func (d *Daemon) Close() error {
	var errs []error

	if err := d.dispatcher.Close(); err != nil {
		errs = append(errs, err)
	}

	if err := d.sessions.Close(); err != nil {
		errs = append(errs, err)
	}

	d.core.Close()

	return errors.Join(errs...)
}

// New creates a new Daemon instance with the provided configuration.
func New(ctx context.Context, cfg *config.Config) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	core, err := NewCore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return newDaemon(ctx, cfg, core)
}

func newDaemon(ctx context.Context, cfg *config.Config, core *Core) (*Daemon, error) {
	sessions := session.New(
		sessionStorage(cfg),
		cfg.Webserver.Session.CookieName,
		cfg.Webserver.Session.ExpiryTime,
		!cfg.DevMode,
	)

	dispatcher := audit.NewDispatcher(audit.NewWriter(core.Identity, core.AuditLog), cfg.Audit)

	gate := auth.NewGate(core.Policy, core.Identity, dispatcher, sessions).
		WithProvisioner(core.Reconciler)

	deps := &handler.Deps{
		Config:     cfg,
		Policy:     core.Policy,
		Sessions:   sessions,
		Identity:   core.Identity,
		AuditLog:   core.AuditLog,
		Recorder:   dispatcher,
		Gate:       gate,
		Reconciler: core.Reconciler,
	}

	provider, err := auth.NewOIDCProvider(ctx, cfg.Auth.OIDC, cfg.Webserver.URL)

	switch {
	case err == nil:
		deps.OIDC = provider
	case errors.Is(err, auth.ErrOIDCDisabled):
		log.Warn().Msg("OIDC is disabled, no login endpoint is available")
	default:
		_ = dispatcher.Close() //nolint:errcheck

		return nil, err
	}

	return &Daemon{
		cfg:        cfg,
		core:       core,
		sessions:   sessions,
		dispatcher: dispatcher,
		webService: web.New(cfg, deps),
	}, nil
}

// sessionStorage keeps sessions in the service database for the server engines and in memory
// otherwise.
func sessionStorage(cfg *config.Config) fiber.Storage {
	if cfg.Webserver.Session.Storage != "db" {
		return nil
	}

	switch cfg.DB.GormEngine {
	case "mysql":
		return sessionmysql.New(sessionmysql.Config{
			ConnectionURI: dsn.MySQL(cfg),
			Table:         sessionTable,
		})
	case "postgres":
		return sessionpostgres.New(sessionpostgres.Config{
			ConnectionURI: dsn.PostgresURI(cfg),
			Table:         sessionTable,
		})
	default:
		log.Warn().Str("engine", cfg.DB.GormEngine).Msg("no session storage for this engine, using memory")
		return nil
	}
}
