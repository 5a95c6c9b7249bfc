package adminapi

import (
	"context"
	"encoding/json"
	"net/netip"
	"testing"
	"time"

	"github.com/boxnet/boxd/pkg/boxid"
	"github.com/boxnet/boxd/pkg/nat"
	"github.com/boxnet/boxd/pkg/presence"
	"github.com/boxnet/boxd/pkg/queuestore"
)

func decode(t *testing.T, b []byte) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("invalid json response: %v (%s)", err, b)
	}
	return m
}

func newTestHandler(t *testing.T) (*Handler, boxid.ID, boxid.ID) {
	t.Helper()
	store, err := queuestore.NewStore(t.TempDir(), nil, false)
	if err != nil {
		t.Fatal(err)
	}
	idx := presence.NewLocationIndex(2 * time.Minute)
	node := boxid.MustNew()
	user := boxid.MustNew()
	nowMs := time.Now().UnixMilli()
	idx.Update(presence.LocationRecord{
		NodeID:     node,
		UserID:     user,
		Online:     true,
		SinceMs:    nowMs,
		LastSeenMs: nowMs,
	})

	h := NewHandler(Deps{
		NodeID:    node,
		UserID:    user,
		Port:      5000,
		StartedAt: time.Now(),
		Queue:     store,
		Location:  idx,
	})
	return h, node, user
}

func TestDispatchStatus(t *testing.T) {
	h, node, user := newTestHandler(t)
	resp := decode(t, h.Dispatch(context.Background(), "status"))
	if resp["status"] != "ok" {
		t.Fatalf("status = %v", resp["status"])
	}
	if resp["nodeUUID"] != node.String() {
		t.Errorf("nodeUUID = %v, want %s", resp["nodeUUID"], node.String())
	}
	if resp["userUUID"] != user.String() {
		t.Errorf("userUUID = %v, want %s", resp["userUUID"], user.String())
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	h, _, _ := newTestHandler(t)
	resp := decode(t, h.Dispatch(context.Background(), "frobnicate"))
	if resp["status"] != "error" {
		t.Fatalf("expected error status, got %v", resp["status"])
	}
}

func TestDispatchEmptyLine(t *testing.T) {
	h, _, _ := newTestHandler(t)
	resp := decode(t, h.Dispatch(context.Background(), "   "))
	if resp["status"] != "error" {
		t.Fatalf("expected error status for empty command")
	}
}

func TestDispatchLocateNode(t *testing.T) {
	h, node, _ := newTestHandler(t)
	resp := decode(t, h.Dispatch(context.Background(), "locate "+node.String()))
	if resp["status"] != "ok" {
		t.Fatalf("status = %v", resp["status"])
	}
}

func TestDispatchLocateUserAggregate(t *testing.T) {
	h, _, user := newTestHandler(t)
	resp := decode(t, h.Dispatch(context.Background(), "locate "+user.String()))
	if resp["status"] != "ok" {
		t.Fatalf("status = %v", resp["status"])
	}
	if resp["userUUID"] != user.String() {
		t.Errorf("userUUID = %v, want %s", resp["userUUID"], user.String())
	}
}

func TestDispatchLocateNotFound(t *testing.T) {
	h, _, _ := newTestHandler(t)
	unknown := boxid.MustNew()
	resp := decode(t, h.Dispatch(context.Background(), "locate "+unknown.String()))
	if resp["status"] != "error" {
		t.Fatalf("expected error status")
	}
	if resp["message"] != "node-not-found" {
		t.Errorf("message = %v, want node-not-found", resp["message"])
	}
}

func TestDispatchLocateBadArgCount(t *testing.T) {
	h, _, _ := newTestHandler(t)
	resp := decode(t, h.Dispatch(context.Background(), "locate"))
	if resp["status"] != "error" {
		t.Fatalf("expected error status for missing argument")
	}
}

func TestDispatchLocationSummary(t *testing.T) {
	h, _, _ := newTestHandler(t)
	resp := decode(t, h.Dispatch(context.Background(), "location-summary"))
	if resp["status"] != "ok" {
		t.Fatalf("status = %v", resp["status"])
	}
	if resp["summary"] == nil {
		t.Fatal("expected summary field")
	}
}

func TestDispatchNatProbeWithGatewayFlag(t *testing.T) {
	h, _, _ := newTestHandler(t)
	var seenGateway netip.Addr
	h.deps.NatProbe = func(ctx context.Context, gatewayOverride netip.Addr) []nat.ProbeReport {
		seenGateway = gatewayOverride
		return []nat.ProbeReport{{Backend: nat.BackendUPnP, Status: "ok"}}
	}

	resp := decode(t, h.Dispatch(context.Background(), "nat-probe --gateway 192.168.1.1"))
	if resp["status"] != "ok" {
		t.Fatalf("status = %v", resp["status"])
	}
	if seenGateway.String() != "192.168.1.1" {
		t.Errorf("gateway passed through = %v", seenGateway)
	}
}

func TestDispatchNatProbeBadGateway(t *testing.T) {
	h, _, _ := newTestHandler(t)
	h.deps.NatProbe = func(ctx context.Context, gatewayOverride netip.Addr) []nat.ProbeReport { return nil }
	resp := decode(t, h.Dispatch(context.Background(), "nat-probe --gateway not-an-ip"))
	if resp["status"] != "error" {
		t.Fatalf("expected error status for bad gateway")
	}
}

func TestDispatchSetLogTargetRejectsUnknownTarget(t *testing.T) {
	h, _, _ := newTestHandler(t)
	resp := decode(t, h.Dispatch(context.Background(), "set-log-target syslog"))
	if resp["status"] != "error" {
		t.Fatalf("expected error status for unsupported target")
	}
}

func TestDispatchSetLogTargetAcceptsFileTarget(t *testing.T) {
	h, _, _ := newTestHandler(t)
	var got string
	h.deps.SetLogTarget = func(spec string) error {
		got = spec
		return nil
	}
	resp := decode(t, h.Dispatch(context.Background(), "set-log-target file:/tmp/box.log"))
	if resp["status"] != "ok" {
		t.Fatalf("status = %v", resp["status"])
	}
	if got != "file:/tmp/box.log" {
		t.Errorf("got %q", got)
	}
}

func TestDispatchReloadWithoutHookErrors(t *testing.T) {
	h, _, _ := newTestHandler(t)
	resp := decode(t, h.Dispatch(context.Background(), "reload"))
	if resp["status"] != "error" {
		t.Fatalf("expected error status when no reload hook is wired")
	}
}

func TestDispatchStats(t *testing.T) {
	h, _, _ := newTestHandler(t)
	resp := decode(t, h.Dispatch(context.Background(), "stats"))
	if resp["status"] != "ok" {
		t.Fatalf("status = %v", resp["status"])
	}
	if resp["queueCount"] == nil {
		t.Fatal("expected queueCount field")
	}
}
