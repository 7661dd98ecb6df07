// Package db opens the gorm connection for the configured engine and migrates the schema.
package db

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog/log"
	gormmysql "gorm.io/driver/mysql"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/staffmanagement/authservice/internal/config"
	"github.com/staffmanagement/authservice/internal/db/dsn"
	"github.com/staffmanagement/authservice/internal/db/models"
)

// Open connects to the configured database engine and migrates the schema.
func Open(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch cfg.DB.GormEngine {
	case "postgres":
		dialector = gormpostgres.Open(dsn.Postgres(cfg))
	case "sqlite":
		dialector = sqlite.Open(dsn.SQLite(cfg))
	default:
		dialector = gormmysql.Open(dsn.MySQL(cfg))
	}

	gormCfg := &gorm.Config{}
	if !cfg.DevMode {
		gormCfg.Logger = gormlogger.Default.LogMode(gormlogger.Silent)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	if cfg.DB.GormEngine == "sqlite" {
		if err = sqliteSetup(db, dsn.SQLite(cfg) == ":memory:"); err != nil {
			return nil, err
		}
	}

	if err = Migrate(db); err != nil {
		return nil, err
	}

	log.Info().Str("engine", cfg.DB.GormEngine).Msg("database ready")

	return db, nil
}

// OpenInMemory opens a migrated in-memory SQLite database.
func OpenInMemory() (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}

	if err = sqliteSetup(db, true); err != nil {
		return nil, err
	}

	if err = Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// sqliteSetup enables foreign keys. Every connection of an in-memory database
// sees its own database, so the pool is pinned to one connection.
func sqliteSetup(db *gorm.DB, inMemory bool) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql pool: %w", err)
	}

	if inMemory {
		sqlDB.SetMaxOpenConns(1)
	}

	if err = db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return nil
}

// Migrate creates or updates the schema of all models.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return nil
}
