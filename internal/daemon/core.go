package daemon

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/staffmanagement/authservice/internal/config"
	"github.com/staffmanagement/authservice/internal/db"
	"github.com/staffmanagement/authservice/internal/db/controller/auditlog"
	"github.com/staffmanagement/authservice/internal/db/controller/identity"
	"github.com/staffmanagement/authservice/internal/directory"
	"github.com/staffmanagement/authservice/internal/policy"
	"github.com/staffmanagement/authservice/internal/roles"
)

// Core holds the components shared by the daemon and the CLI maintenance commands.
type Core struct {
	DB         *gorm.DB
	Policy     policy.Policy
	Identity   *identity.Store
	AuditLog   *auditlog.Store
	Reconciler *roles.Reconciler
}

// NewCore opens the database, seeds the roles and builds the reconciler.
func NewCore(ctx context.Context, cfg *config.Config) (*Core, error) {
	gdb, err := db.Open(cfg)
	if err != nil {
		return nil, err
	}

	return newCore(ctx, cfg, gdb)
}

func newCore(ctx context.Context, cfg *config.Config, gdb *gorm.DB) (*Core, error) {
	p := policy.FromConfig(cfg)
	store := identity.New(gdb)

	if err := seed(ctx, store, p); err != nil {
		return nil, err
	}

	var remote roles.RemoteGroups

	if p.SyncEnabled {
		backend, err := directory.New(ctx, cfg.Directory)
		if err != nil {
			return nil, fmt.Errorf("failed to create directory backend: %w", err)
		}

		client, err := directory.NewClient(backend, cfg.Directory.ResolveCacheSize)
		if err != nil {
			return nil, err
		}

		remote = client

		log.Info().Str("backend", cfg.Directory.Backend).Msg("remote group sync enabled")
	} else {
		log.Info().Msg("remote group sync disabled")
	}

	if len(p.AllowedGroups) == 0 {
		log.Warn().Msg("no allowed groups configured, every login will be denied")
	}

	return &Core{
		DB:         gdb,
		Policy:     p,
		Identity:   store,
		AuditLog:   auditlog.New(gdb),
		Reconciler: roles.NewReconciler(store, remote, p),
	}, nil
}

// Close closes the database pool.
func (c *Core) Close() {
	sqlDB, err := c.DB.DB()
	if err != nil {
		return
	}

	if err = sqlDB.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close database")
	}
}
