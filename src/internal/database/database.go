package database

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/casapps/landregistry/src/internal/database/models"
	"github.com/glebarez/sqlite"
	"github.com/spf13/viper"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	cgosqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ActiveTransferIndex enforces at most one pending or processing transfer per land
const ActiveTransferIndex = "ux_transfers_active_land"

// Dialector picks the gorm driver for a database type
func Dialector(dbType, dsn string) (gorm.Dialector, error) {
	switch dbType {
	case "postgres", "postgresql":
		return postgres.Open(dsn), nil
	case "mysql":
		return mysql.Open(dsn), nil
	case "sqlite3":
		return cgosqlite.Open(dsn), nil
	case "sqlite", "":
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}

// Initialize initializes the database connection
func Initialize(cfg *viper.Viper) (*gorm.DB, error) {
	dialector, err := Dialector(cfg.GetString("database.type"), cfg.GetString("database.dsn"))
	if err != nil {
		return nil, err
	}

	// Configure logger - use Silent for production, Info for debug
	logLevel := logger.Silent
	if cfg.GetBool("debug") {
		logLevel = logger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		DisableForeignKeyConstraintWhenMigrating: true,
		PrepareStmt: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	maxConns := cfg.GetInt("database.max_connections")
	if maxConns <= 0 {
		maxConns = 25
	}
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(maxConns / 2)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.GetInt("database.max_idle_time")) * time.Second)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// MigrateDB brings the schema up to date. PostgreSQL runs the versioned SQL
// migrations; the other dialects use AutoMigrate.
func MigrateDB(db *gorm.DB) error {
	if db.Dialector.Name() == "postgres" {
		mm, err := NewMigrationManager(db)
		if err != nil {
			return err
		}
		return mm.Up()
	}

	if err := db.AutoMigrate(models.GetAllModels()...); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return EnsureIndexes(db)
}

// EnsureIndexes creates the indexes gorm tags cannot express. MySQL has no
// partial indexes, so there the service-level lock is the only guard.
func EnsureIndexes(db *gorm.DB) error {
	if db.Dialector.Name() == "mysql" {
		slog.Warn("partial unique index unsupported, relying on application lock", "index", ActiveTransferIndex)
		return nil
	}

	stmt := fmt.Sprintf(
		"CREATE UNIQUE INDEX IF NOT EXISTS %s ON transfers (land_id) WHERE status IN ('%s', '%s')",
		ActiveTransferIndex, models.TransferStatusPending, models.TransferStatusProcessing)
	if err := db.Exec(stmt).Error; err != nil {
		return fmt.Errorf("failed to create %s: %w", ActiveTransferIndex, err)
	}

	return nil
}
