package testutil

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewTestDB opens an in-memory SQLite database private to t, migrates models
// and closes it when the test finishes. Timestamps are written in UTC, the same
// as pkg/db.
func NewTestDB(t *testing.T, models ...any) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(dsn(t)), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if len(models) > 0 {
		if err := db.AutoMigrate(models...); err != nil {
			t.Fatalf("failed to migrate test database: %v", err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB from gorm: %v", err)
	}

	// one connection keeps the shared-cache database alive and serialises
	// writers the way row locks would
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}

// dsn names the database after the test so subtests never share tables.
func dsn(t *testing.T) string {
	name := strings.NewReplacer("/", "_", " ", "_", "#", "_", "?", "_").Replace(t.Name())
	return fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", name)
}
