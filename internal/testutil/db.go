package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trader2544/rabbit-hole-fitness-lab-sub000/migrations"
)

const testDBLockID int64 = 702315448

// NewTestPool connects to TEST_DATABASE_URL and skips the test when it is
// unset or unreachable. The database is locked for the lifetime of the test.
func NewTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("skipping Postgres integration tests: TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("failed to parse config: %v", err)
	}
	cfg.MaxConns = 16

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("skipping Postgres integration tests: %v", err)
	}
	t.Cleanup(pool.Close)

	lockTestDB(t, pool)
	return pool
}

// NewMigratedPool returns a test pool with all migrations applied and every
// table truncated.
func NewMigratedPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	pool := NewTestPool(t)
	ctx := context.Background()
	if err := migrations.Apply(ctx, pool, nil); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}
	TruncateAll(t, ctx, pool)
	return pool
}

func TruncateAll(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(ctx, `TRUNCATE order_items, orders, bookings, schedules, subscriptions, activity_logs, notifications, event_outbox RESTART IDENTITY CASCADE`)
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
}

// InsertSlot creates a scheduled slot starting in an hour.
func InsertSlot(t *testing.T, ctx context.Context, pool *pgxpool.Pool, capacity int) uuid.UUID {
	t.Helper()
	id := uuid.New()
	start := time.Now().Add(time.Hour)
	_, err := pool.Exec(ctx, `
INSERT INTO schedules (id, title, start_time, end_time, max_participants, current_participants, status)
VALUES ($1, 'HIIT', $2, $3, $4, 0, 'scheduled')`,
		id, start, start.Add(time.Hour), capacity,
	)
	if err != nil {
		t.Fatalf("insert slot: %v", err)
	}
	return id
}

// CountRows returns SELECT COUNT(*) for the given table.
func CountRows(t *testing.T, ctx context.Context, pool *pgxpool.Pool, table string) int {
	t.Helper()
	var n int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func lockTestDB(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire lock conn: %v", err)
	}
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, testDBLockID); err != nil {
		conn.Release()
		t.Fatalf("acquire test lock: %v", err)
	}

	t.Cleanup(func() {
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, testDBLockID)
		conn.Release()
	})
}
