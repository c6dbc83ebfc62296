package migrations_test

import (
	"context"
	"sync"
	"testing"

	"github.com/trader2544/rabbit-hole-fitness-lab-sub000/internal/testutil"
	"github.com/trader2544/rabbit-hole-fitness-lab-sub000/migrations"
)

func TestApply_IsRepeatable(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()

	if err := migrations.Apply(ctx, pool, nil); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	var count int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM goose_db_version WHERE is_applied`).Scan(&count); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if count < 5 {
		t.Fatalf("expected at least 5 applied migrations, got %d", count)
	}

	if err := migrations.Apply(ctx, pool, nil); err != nil {
		t.Fatalf("re-apply migrations: %v", err)
	}

	var count2 int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM goose_db_version WHERE is_applied`).Scan(&count2); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if count2 != count {
		t.Fatalf("expected migration count unchanged, got %d vs %d", count2, count)
	}
}

func TestApply_ConcurrentCallersSerialize(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()

	const replicas = 4
	var wg sync.WaitGroup
	errs := make(chan error, replicas)
	for i := 0; i < replicas; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- migrations.Apply(ctx, pool, nil)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent apply: %v", err)
		}
	}

	var duplicates int
	if err := pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM (
			SELECT version_id FROM goose_db_version WHERE is_applied GROUP BY version_id HAVING COUNT(*) > 1
		) d
	`).Scan(&duplicates); err != nil {
		t.Fatalf("count duplicate versions: %v", err)
	}
	if duplicates != 0 {
		t.Fatalf("expected each version recorded once, got %d duplicated", duplicates)
	}

	var held int
	if err := pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM pg_locks
		WHERE locktype = 'advisory' AND ((classid::bigint << 32) | objid::bigint) = $1
	`, migrations.MigrationLockID).Scan(&held); err != nil {
		t.Fatalf("query advisory locks: %v", err)
	}
	if held != 0 {
		t.Fatalf("expected migration lock to be released, got %d holders", held)
	}
}
