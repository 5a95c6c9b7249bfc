package presence

import (
	"testing"
	"time"

	"github.com/boxnet/boxd/pkg/boxid"
)

func TestUpdateAndGet(t *testing.T) {
	idx := NewLocationIndex(0)
	node := boxid.MustNew()
	user := boxid.MustNew()

	idx.Update(LocationRecord{NodeID: node, UserID: user, LastSeenMs: time.Now().UnixMilli()})

	rec, ok := idx.Get(node)
	if !ok || rec.NodeID != node {
		t.Fatalf("Get: got %+v, %v", rec, ok)
	}
}

func TestGetByUserExcludesStale(t *testing.T) {
	idx := NewLocationIndex(100 * time.Millisecond)
	user := boxid.MustNew()
	fresh := boxid.MustNew()
	stale := boxid.MustNew()

	now := time.Now()
	idx.Update(LocationRecord{NodeID: fresh, UserID: user, LastSeenMs: now.UnixMilli()})
	idx.Update(LocationRecord{NodeID: stale, UserID: user, LastSeenMs: now.Add(-time.Second).UnixMilli()})

	recs := idx.GetByUser(user)
	if len(recs) != 1 || recs[0].NodeID != fresh {
		t.Fatalf("GetByUser: got %+v", recs)
	}
}

func TestIsStale(t *testing.T) {
	idx := NewLocationIndex(50 * time.Millisecond)
	node := boxid.MustNew()

	if !idx.IsStale(node) {
		t.Fatal("unknown node should be stale")
	}

	idx.Update(LocationRecord{NodeID: node, LastSeenMs: time.Now().UnixMilli()})
	if idx.IsStale(node) {
		t.Fatal("freshly updated node should not be stale")
	}

	idx.Update(LocationRecord{NodeID: node, LastSeenMs: time.Now().Add(-time.Second).UnixMilli()})
	if !idx.IsStale(node) {
		t.Fatal("old record should be stale")
	}
}

func TestSnapshotCounts(t *testing.T) {
	idx := NewLocationIndex(100 * time.Millisecond)
	user1 := boxid.MustNew()
	user2 := boxid.MustNew()
	now := time.Now()

	idx.Update(LocationRecord{NodeID: boxid.MustNew(), UserID: user1, LastSeenMs: now.UnixMilli()})
	idx.Update(LocationRecord{NodeID: boxid.MustNew(), UserID: user2, LastSeenMs: now.Add(-time.Second).UnixMilli()})

	s := idx.Snapshot()
	if s.TotalNodes != 2 || s.ActiveNodes != 1 || s.TotalUsers != 2 {
		t.Fatalf("unexpected summary: %+v", s)
	}
	if len(s.StaleNodes) != 1 || len(s.StaleUsers) != 1 {
		t.Fatalf("unexpected stale sets: %+v", s)
	}
}

func TestSetPersistHookFiresAfterUpdate(t *testing.T) {
	idx := NewLocationIndex(0)
	node := boxid.MustNew()

	var got LocationRecord
	calls := 0
	idx.SetPersistHook(func(rec LocationRecord) {
		got = rec
		calls++
	})

	idx.Update(LocationRecord{NodeID: node, LastSeenMs: time.Now().UnixMilli()})

	if calls != 1 || got.NodeID != node {
		t.Fatalf("expected hook called once with the updated record, got calls=%d rec=%+v", calls, got)
	}
}

func TestUpdateMovesNodeBetweenUsers(t *testing.T) {
	idx := NewLocationIndex(0)
	node := boxid.MustNew()
	userA := boxid.MustNew()
	userB := boxid.MustNew()

	idx.Update(LocationRecord{NodeID: node, UserID: userA, LastSeenMs: time.Now().UnixMilli()})
	idx.Update(LocationRecord{NodeID: node, UserID: userB, LastSeenMs: time.Now().UnixMilli()})

	if recs := idx.GetByUser(userA); len(recs) != 0 {
		t.Fatalf("expected node removed from userA's set, got %+v", recs)
	}
	if recs := idx.GetByUser(userB); len(recs) != 1 {
		t.Fatalf("expected node present under userB's set, got %+v", recs)
	}
}
