//go:build integration

package testhelpers

import (
	"context"
	"testing"
)

func TestTestDB_SchemaMigrated(t *testing.T) {
	testDB := GetTestDB(t)

	ctx := context.Background()

	for _, table := range []string{"contracts", "suppliers", "amendments", "inquiries"} {
		var exists bool
		err := testDB.DB.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT FROM information_schema.tables
				WHERE table_schema = 'public' AND table_name = $1
			)`, table).Scan(&exists)
		if err != nil {
			t.Fatalf("failed to check table %s: %v", table, err)
		}
		if !exists {
			t.Errorf("expected table %s to exist after migrations", table)
		}
	}
}

func TestTestRedis_Ping(t *testing.T) {
	tr := GetTestRedis(t)

	if err := tr.Client.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
}
