// Package repo implements the data layer. This file opens the GORM handle
// for Idempotency-Key reservations: pure-Go SQLite, in memory by default.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-qa-backend/internal/domain"
)

// MemoryDSN is the default DSN: a named, shared-cache in-memory database so
// every pooled connection sees the same tables.
const MemoryDSN = "file:idempotency?mode=memory&cache=shared"

const (
	maxOpenConns     = 10
	slowQueryLogTime = 200 * time.Millisecond
)

var pragmas = []string{
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
}

// gormLog forwards GORM's slow-query and error output to zerolog.
type gormLog struct{}

func (gormLog) Printf(format string, args ...any) {
	log.Warn().Str("component", "gorm").Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// OpenSQLite opens (or creates) the database at dsn, applies the PRAGMAs and
// pool limits, and registers the OpenTelemetry plugin so queries join the
// request trace. A file DSN must point into an existing directory.
func OpenSQLite(dsn string) (*gorm.DB, error) {
	memory := isMemoryDSN(dsn)
	if !memory {
		if dir := filepath.Dir(strings.TrimPrefix(dsn, "file:")); dir != "." {
			if _, err := os.Stat(dir); err != nil {
				return nil, err
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.New(gormLog{}, logger.Config{
			SlowThreshold:             slowQueryLogTime,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		}),
	})
	if err != nil {
		return nil, err
	}
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, err
	}
	for _, p := range pragmas {
		if err := db.Exec(p).Error; err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxOpenConns)
	// A shared in-memory database is dropped with its last connection, so
	// connections are never recycled there.
	if !memory {
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	return db, nil
}

// AutoMigrate creates the idempotency table and its indexes.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&domain.Idempotency{})
}

func isMemoryDSN(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
}
