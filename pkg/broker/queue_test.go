package broker

import (
	"context"
	"net/netip"
	"testing"
	"time"
)

func peerAt(port uint16) netip.AddrPort {
	return netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), port)
}

func TestBoundedQueuePushPop(t *testing.T) {
	q := newBoundedQueue(4)
	q.Push(peerAt(1), "a")
	q.Push(peerAt(2), "b")

	ctx := context.Background()
	it, ok := q.Pop(ctx)
	if !ok || it.payload != "a" {
		t.Fatalf("got %+v, %v", it, ok)
	}
	it, ok = q.Pop(ctx)
	if !ok || it.payload != "b" {
		t.Fatalf("got %+v, %v", it, ok)
	}
}

func TestBoundedQueueEvictsOldestSamePeerFirst(t *testing.T) {
	q := newBoundedQueue(2)
	q.Push(peerAt(1), "a1")
	q.Push(peerAt(2), "b1")
	// at capacity; peer 1 has a queued item, so it is evicted, not peer 2's.
	q.Push(peerAt(1), "a2")

	ctx := context.Background()
	first, _ := q.Pop(ctx)
	second, _ := q.Pop(ctx)
	if first.payload != "b1" || second.payload != "a2" {
		t.Fatalf("got %v, %v, want b1, a2", first.payload, second.payload)
	}
}

func TestBoundedQueueEvictsOldestOverallWhenNoSamePeerItem(t *testing.T) {
	q := newBoundedQueue(2)
	q.Push(peerAt(1), "a1")
	q.Push(peerAt(2), "b1")
	q.Push(peerAt(3), "c1")

	ctx := context.Background()
	first, _ := q.Pop(ctx)
	second, _ := q.Pop(ctx)
	if first.payload != "b1" || second.payload != "c1" {
		t.Fatalf("got %v, %v, want b1, c1", first.payload, second.payload)
	}
}

func TestBoundedQueuePopDrainsBeforeReportingClosed(t *testing.T) {
	q := newBoundedQueue(4)
	q.Push(peerAt(1), "a")
	q.Close()

	ctx := context.Background()
	it, ok := q.Pop(ctx)
	if !ok || it.payload != "a" {
		t.Fatalf("expected queued item to survive Close, got %+v, %v", it, ok)
	}
	if _, ok := q.Pop(ctx); ok {
		t.Fatal("expected ok=false once drained after Close")
	}
}

func TestBoundedQueuePopRespectsContextCancellation(t *testing.T) {
	q := newBoundedQueue(4)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, ok := q.Pop(ctx); ok {
		t.Fatal("expected ok=false on context cancellation of an empty queue")
	}
}

func TestBoundedQueuePushAfterCloseDropsSilently(t *testing.T) {
	q := newBoundedQueue(4)
	q.Close()
	if q.Push(peerAt(1), "a") {
		t.Fatal("expected Push after Close to report false")
	}
}
