package database

import (
	"fmt"
	"log/slog"
	"time"

	"bookhaven/pkg/config"
	"bookhaven/pkg/models"
	"bookhaven/pkg/store"
	"bookhaven/pkg/store/gormstore"
	"bookhaven/pkg/store/memory"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// OpenStore builds the entity store selected by cfg.Store.Driver.
func OpenStore(cfg *config.Config, log *slog.Logger) (store.Store, error) {
	if cfg.Store.Driver == config.DriverMemory {
		log.Info("Using in-memory store")
		return memory.New(), nil
	}

	db, err := Open(cfg, log)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return gormstore.New(db), nil
}

// Open connects to sqlite or postgres, retrying postgres while it starts up.
func Open(cfg *config.Config, log *slog.Logger) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	}

	switch cfg.Store.Driver {
	case config.DriverSQLite:
		log.Info("Connecting to sqlite database", "path", cfg.Store.SQLitePath)
		db, err := gorm.Open(sqlite.Open(cfg.Store.SQLitePath), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return db, singleConnection(db)

	case config.DriverPostgres:
		log.Info("Connecting to database",
			"user", cfg.DB.User, "host", cfg.DB.Host, "port", cfg.DB.Port, "dbname", cfg.DB.Name)

		var db *gorm.DB
		var err error
		for i := 0; i < cfg.DB.ConnectRetries; i++ {
			db, err = gorm.Open(postgres.Open(cfg.DB.DSN()), gormCfg)
			if err == nil {
				break
			}
			log.Warn("Database connection attempt failed",
				"attempt", i+1, "max_attempts", cfg.DB.ConnectRetries, "error", err)
			if i < cfg.DB.ConnectRetries-1 {
				time.Sleep(cfg.DB.RetryDelay)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}

		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("get database instance: %w", err)
		}
		sqlDB.SetMaxOpenConns(cfg.DB.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.DB.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)

		if err := sqlDB.Ping(); err != nil {
			return nil, fmt.Errorf("database ping: %w", err)
		}
		log.Info("Database connection established successfully")
		return db, nil
	}

	return nil, fmt.Errorf("store driver %q has no database", cfg.Store.Driver)
}

// OpenSQLiteMemory returns a migrated in-memory sqlite database.
func OpenSQLiteMemory() (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Discard,
	})
	if err != nil {
		return nil, err
	}
	if err := singleConnection(db); err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// SQLite allows one writer at a time, and every :memory: connection is its own database.
func singleConnection(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(1)
	return nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	return nil
}
