package migrations

import (
	"context"
	"fmt"
	"strings"

	"solana-copytrade-lab/internal/storage/postgres"
)

// RunPostgresMigrations applies all embedded SQL files in lexical order.
// Migrations use IF NOT EXISTS and are safe to re-run.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) error {
	files, err := readAll(PostgresFS, "postgres")
	if err != nil {
		return err
	}

	for _, f := range files {
		if strings.TrimSpace(f.sql) == "" {
			continue
		}
		// pgx runs multi-statement text through the simple protocol.
		if _, err := pool.Exec(ctx, f.sql); err != nil {
			return fmt.Errorf("apply migration %s: %w", f.name, err)
		}
	}
	return nil
}
