// Package psqltest opens throwaway in-memory databases for tests.
package psqltest

import (
	"context"
	"fmt"
	"mindmesh/mindmesh/sources/psql"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
)

// NewDatabase returns a migrated sqlite database private to the test.
func NewDatabase(t *testing.T) *psql.Database {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString())
	db, err := psql.Open(context.Background(), sqlite.Open(dsn))
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	t.Cleanup(db.Close)
	return db
}
