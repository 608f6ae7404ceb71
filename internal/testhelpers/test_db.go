package testhelpers

import (
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	openSQLite = func(dsn string) (*gorm.DB, error) {
		return gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	}
	migrateSchema = func(db *gorm.DB, tables ...any) error { return db.AutoMigrate(tables...) }
)

// SetupTestDB creates an isolated in-memory SQLite database for tests and
// migrates the given tables into it.
func SetupTestDB(t *testing.T, tables ...any) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := openSQLite(dsn)
	if err != nil {
		panic(fmt.Sprintf("failed to open test database: %v", err))
	}
	if err := migrateSchema(db, tables...); err != nil {
		panic(fmt.Sprintf("failed to migrate test database: %v", err))
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// DropTable removes a table to force repository errors.
func DropTable(t *testing.T, db *gorm.DB, table any) {
	t.Helper()
	if err := db.Migrator().DropTable(table); err != nil {
		panic(fmt.Sprintf("failed to drop table: %v", err))
	}
}
