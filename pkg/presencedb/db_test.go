package presencedb

import (
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/boxnet/boxd/pkg/boxid"
	"github.com/boxnet/boxd/pkg/presence"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "presence.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenMigratesToLatest(t *testing.T) {
	db := openTestDB(t)
	cur, required, err := db.Version()
	if err != nil {
		t.Fatal(err)
	}
	if cur != required {
		t.Fatalf("Open did not migrate: current=%d required=%d", cur, required)
	}
}

func TestSaveGetRoundTrip(t *testing.T) {
	db := openTestDB(t)

	rec := presence.LocationRecord{
		NodeID:     boxid.MustNew(),
		UserID:     boxid.MustNew(),
		Online:     true,
		SinceMs:    time.Now().UnixMilli(),
		LastSeenMs: time.Now().UnixMilli(),
	}
	if err := db.SaveRecord(rec); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetRecord(rec.NodeID)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.NodeID != rec.NodeID || got.UserID != rec.UserID {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestGetRecordMissingReturnsNil(t *testing.T) {
	db := openTestDB(t)
	got, err := db.GetRecord(boxid.MustNew())
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestSaveRecordUpsert(t *testing.T) {
	db := openTestDB(t)
	node := boxid.MustNew()

	if err := db.SaveRecord(presence.LocationRecord{NodeID: node, LastSeenMs: 1}); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveRecord(presence.LocationRecord{NodeID: node, LastSeenMs: 2}); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetRecord(node)
	if err != nil {
		t.Fatal(err)
	}
	if got.LastSeenMs != 2 {
		t.Fatalf("expected upsert to overwrite, got LastSeenMs=%d", got.LastSeenMs)
	}

	all, err := db.AllRecords()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 stored record after upsert, got %d", len(all))
	}
}

func TestDeleteRecord(t *testing.T) {
	db := openTestDB(t)
	node := boxid.MustNew()

	if err := db.SaveRecord(presence.LocationRecord{NodeID: node, LastSeenMs: 1}); err != nil {
		t.Fatal(err)
	}
	if err := db.DeleteRecord(node); err != nil {
		t.Fatal(err)
	}
	got, err := db.GetRecord(node)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("expected record deleted, got %+v", got)
	}
}
