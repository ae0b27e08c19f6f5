package main

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"

	"fleet-monitor/tracker/internal/config"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Config: %v", err)
	}

	ctx := context.Background()

	fmt.Println("Connecting to the history database...")
	conn, err := pgx.Connect(ctx, cfg.DatabaseURL())
	if err != nil {
		log.Fatalf("Connection failed: %v\n\nMake sure Postgres is running:\n  docker-compose up -d timescaledb", err)
	}
	defer conn.Close(ctx)
	fmt.Println("✓ Connected")

	table := pgx.Identifier{cfg.HistoryTable}.Sanitize()

	step1_tracking_table(ctx, conn, table)
	step2_indexes(ctx, conn, cfg.HistoryTable, table)
	step3_verify(ctx, conn, cfg.HistoryTable)

	fmt.Println("\n✅ Database initialised successfully")
	fmt.Println("   Run next: go run ./scripts/seed_redis")
}

// ─────────────────────────────────────────────────────────────
// Step 1: tracking table
// ─────────────────────────────────────────────────────────────
func step1_tracking_table(ctx context.Context, conn *pgx.Conn, table string) {
	fmt.Println("\n── Step 1: tracking table ──────────────────────")

	// row_key is "{vehicleId}_{unixSeconds}". The C collation makes
	// ORDER BY and range predicates compare raw bytes, which the prefix
	// scans depend on.
	execOrFatal(ctx, conn, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			row_key  TEXT COLLATE "C" PRIMARY KEY,

			-- location group: {"lat": .., "lon": ..}
			loc      JSONB,
			loc_ts   BIGINT,

			-- stat group: {"speed": ..}
			stat     JSONB,
			stat_ts  BIGINT
		);
	`, table), "tracking table created")
}

// ─────────────────────────────────────────────────────────────
// Step 2: indexes
// ─────────────────────────────────────────────────────────────
func step2_indexes(ctx context.Context, conn *pgx.Conn, name, table string) {
	fmt.Println("\n── Step 2: Indexes ─────────────────────────────")

	indexes := []struct {
		name string
		sql  string
		why  string
	}{
		{
			name: "idx_" + name + "_loc_ts",
			sql: fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s
				  ON %s (loc_ts);`, pgx.Identifier{"idx_" + name + "_loc_ts"}.Sanitize(), table),
			why: "query: paths and heatmap by time range",
		},
	}

	for _, idx := range indexes {
		execOrFatal(ctx, conn, idx.sql,
			fmt.Sprintf("%-40s ← %s", idx.name, idx.why),
		)
	}
}

// ─────────────────────────────────────────────────────────────
// Step 3: verify
// ─────────────────────────────────────────────────────────────
func step3_verify(ctx context.Context, conn *pgx.Conn, name string) {
	fmt.Println("\n── Step 3: Verification ────────────────────────")

	var exists bool
	err := conn.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_name = $1
		)
	`, name).Scan(&exists)
	if err != nil || !exists {
		log.Fatalf("Table %s was not created: %v", name, err)
	}
	fmt.Printf("  ✓ table: %s\n", name)

	var indexCount int
	err = conn.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM pg_indexes
		WHERE tablename = $1
		AND indexname LIKE 'idx_%'
	`, name).Scan(&indexCount)
	if err != nil {
		log.Fatalf("Index check failed: %v", err)
	}
	fmt.Printf("  ✓ indexes created: %d\n", indexCount)
}

// execOrFatal runs a SQL statement and prints result or exits on error
func execOrFatal(ctx context.Context, conn *pgx.Conn, sql, label string) {
	_, err := conn.Exec(ctx, sql)
	if err != nil {
		log.Fatalf("FAILED: %s\nError: %v\nSQL: %s", label, err, sql)
	}
	fmt.Printf("  ✓ %s\n", label)
}
