package migrations

import (
	"context"
	"fmt"

	"wallet-copy-watcher/internal/storage/postgres"
)

// RunPostgres applies the embedded schema. Every file is idempotent.
func RunPostgres(ctx context.Context, pool *postgres.Pool) error {
	scripts, err := load(PostgresFS, "postgres")
	if err != nil {
		return err
	}

	for _, s := range scripts {
		if _, err := pool.Exec(ctx, s.sql); err != nil {
			return fmt.Errorf("apply migration %s: %w", s.name, err)
		}
	}
	return nil
}
