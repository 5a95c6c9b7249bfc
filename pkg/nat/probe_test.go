package nat

import (
	"context"
	"net/netip"
	"os"
	"testing"
)

func TestProbeRespectsSkipEnvVar(t *testing.T) {
	t.Setenv("BOX_SKIP_NAT_PROBE", "1")
	reports := Probe(context.Background(), netip.MustParseAddr("192.168.1.50"), 5000, netip.Addr{})
	if len(reports) != 3 {
		t.Fatalf("got %d reports, want 3", len(reports))
	}
	for _, r := range reports {
		if r.Status != "skipped" {
			t.Errorf("backend %s status = %q, want skipped", r.Backend, r.Status)
		}
	}
}

func TestProbeUnsetSkipEnvVar(t *testing.T) {
	os.Unsetenv("BOX_SKIP_NAT_PROBE")
	if skipRequested() {
		t.Fatal("skipRequested should be false when env var is unset")
	}
}
