// Package presencedb implements optional sqlite3-backed persistence for a
// root resolver's presence LocationIndex, so /whoswho survives a daemon
// restart. Grounded directly in the teacher's db/atlasdb (sqlx.Connect with
// a WAL/cache_size/busy_timeout query-string pragma bundle, and a
// migration-registry schema) narrowed to a single table.
package presencedb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/jmoiron/sqlx"

	"github.com/boxnet/boxd/pkg/boxid"
	"github.com/boxnet/boxd/pkg/presence"
)

// DB stores presence LocationRecords in a sqlite3 database.
type DB struct {
	x *sqlx.DB
}

// Open opens (creating if necessary) a sqlite3 database at name and
// migrates it to the latest known schema version.
func Open(name string) (*DB, error) {
	dsn := (&url.URL{
		Path: name,
		RawQuery: (url.Values{
			"_journal":      {"WAL"},
			"_cache_size":   {"-32000"},
			"_busy_timeout": {"6000"},
		}).Encode(),
	}).String()

	x, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("presencedb: open %s: %w", name, err)
	}
	db := &DB{x}

	_, required, err := db.Version()
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := db.MigrateUp(context.Background(), required); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) Close() error {
	return db.x.Close()
}

type locationRecordRow struct {
	NodeID      string `db:"node_id"`
	UserID      string `db:"user_id"`
	LastSeenMs  int64  `db:"last_seen_ms"`
	RecordJSON  string `db:"record_json"`
}

// SaveRecord upserts rec.
func (db *DB) SaveRecord(rec presence.LocationRecord) error {
	encoded, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("presencedb: encode record: %w", err)
	}
	_, err = db.x.NamedExec(`
		INSERT OR REPLACE INTO
		location_records ( node_id,  user_id,  last_seen_ms,  record_json)
		VALUES           (:node_id, :user_id, :last_seen_ms, :record_json)
	`, map[string]any{
		"node_id":      rec.NodeID.String(),
		"user_id":      rec.UserID.String(),
		"last_seen_ms": rec.LastSeenMs,
		"record_json":  string(encoded),
	})
	if err != nil {
		return fmt.Errorf("presencedb: save record: %w", err)
	}
	return nil
}

// GetRecord returns the stored record for node, or nil if absent.
func (db *DB) GetRecord(node boxid.ID) (*presence.LocationRecord, error) {
	var row locationRecordRow
	if err := db.x.Get(&row, `SELECT * FROM location_records WHERE node_id = ?`, node.String()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("presencedb: get record: %w", err)
	}
	var rec presence.LocationRecord
	if err := json.Unmarshal([]byte(row.RecordJSON), &rec); err != nil {
		return nil, fmt.Errorf("presencedb: decode record: %w", err)
	}
	return &rec, nil
}

// DeleteRecord removes the stored record for node, if any.
func (db *DB) DeleteRecord(node boxid.ID) error {
	if _, err := db.x.Exec(`DELETE FROM location_records WHERE node_id = ?`, node.String()); err != nil {
		return fmt.Errorf("presencedb: delete record: %w", err)
	}
	return nil
}

// AllRecords loads every stored record, for rebuilding an in-memory
// LocationIndex after a restart.
func (db *DB) AllRecords() ([]presence.LocationRecord, error) {
	var rows []locationRecordRow
	if err := db.x.Select(&rows, `SELECT * FROM location_records`); err != nil {
		return nil, fmt.Errorf("presencedb: list records: %w", err)
	}
	out := make([]presence.LocationRecord, 0, len(rows))
	for _, row := range rows {
		var rec presence.LocationRecord
		if err := json.Unmarshal([]byte(row.RecordJSON), &rec); err != nil {
			return nil, fmt.Errorf("presencedb: decode record: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}
