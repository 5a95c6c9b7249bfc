package presencedb

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

func init() {
	migrate(up001, down001)
}

func up001(ctx context.Context, tx *sqlx.Tx) error {
	if _, err := tx.ExecContext(ctx, strings.ReplaceAll(`
		CREATE TABLE location_records (
			node_id       TEXT PRIMARY KEY NOT NULL,
			user_id       TEXT NOT NULL,
			last_seen_ms  INTEGER NOT NULL,
			record_json   TEXT NOT NULL
		) STRICT;
	`, `
		`, "\n")); err != nil {
		return fmt.Errorf("create location_records table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `CREATE INDEX location_records_user_idx ON location_records(user_id)`); err != nil {
		return fmt.Errorf("create location_records user index: %w", err)
	}
	return nil
}

func down001(ctx context.Context, tx *sqlx.Tx) error {
	if _, err := tx.ExecContext(ctx, `DROP INDEX location_records_user_idx`); err != nil {
		return fmt.Errorf("drop location_records_user_idx index: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DROP TABLE location_records`); err != nil {
		return fmt.Errorf("drop location_records table: %w", err)
	}
	return nil
}
