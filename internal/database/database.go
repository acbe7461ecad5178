// Package database owns the gorm/sqlite connection backing TalkDub's three
// ephemeral keyed stores (PIN Store, Rate Limiter, Translation Cache). The
// Job Store itself is filesystem JSON, not gorm-backed; see
// internal/jobstore.
package database

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/talkdub/talkdub/internal/models"
)

// DB is the global database instance.
var DB *gorm.DB

// Initialize opens the database connection with the same WAL/cache/mmap
// pragma tuning this project has always used for its sqlite-backed stores,
// and migrates the three ephemeral-store tables.
func Initialize(dbPath string) error {
	var err error

	if err := os.MkdirAll("data", 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %v", err)
	}

	dsn := fmt.Sprintf("%s?"+
		"_pragma=foreign_keys(1)&"+
		"_pragma=journal_mode(WAL)&"+
		"_pragma=synchronous(NORMAL)&"+
		"_pragma=cache_size(-64000)&"+
		"_pragma=temp_store(MEMORY)&"+
		"_pragma=mmap_size(268435456)&"+
		"_timeout=30000",
		dbPath)

	DB, err = gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:          gormlogger.Default.LogMode(gormlogger.Warn),
		CreateBatchSize: 100,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %v", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %v", err)
	}

	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	if err := DB.AutoMigrate(
		&models.PINRecord{},
		&models.RateLimitCounter{},
		&models.TranslationCacheEntry{},
	); err != nil {
		return fmt.Errorf("failed to auto migrate: %v", err)
	}

	return nil
}

// Close closes the database connection gracefully.
func Close() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	err = sqlDB.Close()
	DB = nil
	return err
}

// HealthCheck performs a health check on the database connection.
func HealthCheck() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %v", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %v", err)
	}
	return nil
}

// GetConnectionStats returns database connection pool statistics.
func GetConnectionStats() sql.DBStats {
	if DB == nil {
		return sql.DBStats{}
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return sql.DBStats{}
	}
	return sqlDB.Stats()
}
