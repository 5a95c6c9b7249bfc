package presencedb

import (
	"context"
	"database/sql"
	"fmt"
	"path"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
)

type migration struct {
	Name string
	Up   func(context.Context, *sqlx.Tx) error
	Down func(context.Context, *sqlx.Tx) error
}

var migrations = map[uint64]migration{}

// migrate registers a migration, inferring its version from the calling
// file's name (e.g. "001_init_db.go" registers version 1).
func migrate(up, down func(context.Context, *sqlx.Tx) error) {
	_, fn, _, ok := runtime.Caller(1)
	if !ok {
		panic("presencedb: add migration: failed to get caller filename")
	}
	fn = path.Base(strings.ReplaceAll(fn, `\`, `/`))

	n, _, ok := strings.Cut(fn, "_")
	if !ok {
		panic("presencedb: add migration: failed to parse filename " + fn)
	}
	v, err := strconv.ParseUint(n, 10, 64)
	if err != nil {
		panic("presencedb: add migration: failed to parse filename " + fn + ": " + err.Error())
	}
	if v == 0 {
		panic("presencedb: add migration: version must not be 0")
	}
	migrations[v] = migration{strings.TrimSuffix(fn, ".go"), up, down}
}

// Version reports the database's current schema version and the highest
// version this build knows how to migrate to.
func (db *DB) Version() (current, required uint64, err error) {
	if err = db.x.Get(&current, `PRAGMA user_version`); err != nil {
		return 0, 0, fmt.Errorf("get schema version: %w", err)
	}
	for v := range migrations {
		if v > required {
			required = v
		}
	}
	return current, required, nil
}

// MigrateUp migrates the database up to version to.
func (db *DB) MigrateUp(ctx context.Context, to uint64) error {
	tx, err := db.x.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("presencedb: begin transaction: %w", err)
	}
	defer tx.Rollback()

	var cv uint64
	if err := tx.GetContext(ctx, &cv, `PRAGMA user_version`); err != nil {
		return fmt.Errorf("presencedb: get schema version: %w", err)
	}
	if to < cv {
		return fmt.Errorf("presencedb: target version %d is less than current version %d", to, cv)
	}

	var steps []uint64
	foundCurrent, foundTarget := cv == 0, to == 0
	for v := range migrations {
		if v == cv {
			foundCurrent = true
		}
		if v == to {
			foundTarget = true
		}
		if v > cv && v <= to {
			steps = append(steps, v)
		}
	}
	if !foundCurrent {
		return fmt.Errorf("presencedb: unsupported current schema version %d", cv)
	}
	if !foundTarget {
		return fmt.Errorf("presencedb: unknown target schema version %d", to)
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i] < steps[j] })

	for _, v := range steps {
		if err := migrations[v].Up(ctx, tx); err != nil {
			return fmt.Errorf("presencedb: migrate up to %d: %w", v, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `PRAGMA user_version = `+strconv.FormatUint(to, 10)); err != nil {
		return fmt.Errorf("presencedb: update schema version: %w", err)
	}
	return tx.Commit()
}
