package db

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"livesale-backend/config"
	"livesale-backend/internal/model"
)

// Init opens the configured database and, when enabled, runs migrations.
func Init(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dialector, err := openDialector(cfg)
	if err != nil {
		return nil, err
	}

	logLevel := logger.Warn
	if cfg.LogSQL {
		logLevel = logger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if cfg.Driver == "sqlite" {
		// SQLite has a single writer; one connection turns lock waits into pool waits.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	}

	if cfg.AutoMigrate {
		if err := Migrate(db); err != nil {
			return nil, err
		}
	}

	log.Println("Database initialization complete.")
	return db, nil
}

func openDialector(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "postgres", "":
		return postgres.Open(cfg.DSN), nil
	case "sqlite":
		return sqlite.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Migrate creates or updates the schema, including the partial unique indexes that
// enforce one active claim per actor per slot and unique waitlist positions.
func Migrate(db *gorm.DB) error {
	log.Println("Running database migrations...")
	if err := db.AutoMigrate(
		&model.Session{},
		&model.Slot{},
		&model.Claim{},
		&model.Comment{},
		&model.PushSubscription{},
	); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}

	if err := applyConstraintDDL(db); err != nil {
		return err
	}
	return nil
}

// Index names are matched by the store when classifying unique violations.
const (
	IndexActiveActor      = "idx_claims_active_actor"
	IndexWaitlistPosition = "idx_claims_waitlist_position"
)

func applyConstraintDDL(db *gorm.DB) error {
	ddls := []string{
		// 1) One live position per actor per slot.
		"CREATE UNIQUE INDEX IF NOT EXISTS " + IndexActiveActor + " ON claims " +
			"(session_id, slot_number, actor_id) WHERE status IN ('winner', 'waitlist', 'unmatched');",

		// 2) FIFO positions never collide within a slot.
		"CREATE UNIQUE INDEX IF NOT EXISTS " + IndexWaitlistPosition + " ON claims " +
			"(session_id, slot_number, waitlist_position) WHERE status = 'waitlist';",

		// 3) Backfill walks unmatched claims in arrival order.
		"CREATE INDEX IF NOT EXISTS idx_claims_arrival ON claims (session_id, slot_number, status, arrived_at, id);",
	}

	for _, ddl := range ddls {
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("DDL failed on %q: %w", ddl, err)
		}
	}
	return nil
}
