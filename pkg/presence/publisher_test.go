package presence

import (
	"context"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/boxnet/boxd/pkg/boxid"
)

type fakeSender struct {
	mu    sync.Mutex
	calls []string
	fail  bool
}

func (f *fakeSender) SendPut(ctx context.Context, resolver netip.AddrPort, queue, contentType string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return context.DeadlineExceeded
	}
	f.calls = append(f.calls, queue)
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestPublisherPublishesNodeAndUserAlias(t *testing.T) {
	sender := &fakeSender{}
	resolver := netip.MustParseAddrPort("127.0.0.1:9999")

	p := NewPublisher(zerolog.Nop(), boxid.MustNew(), boxid.MustNew(), []netip.AddrPort{resolver}, time.Hour,
		func() ([]Address, Connectivity, map[string]string) { return nil, Connectivity{}, nil },
		sender, nil)

	p.publishOnce(context.Background())

	if sender.count() != 2 {
		t.Fatalf("expected 2 PUTs (node + user alias), got %d", sender.count())
	}
}

func TestPublisherFailureDoesNotPanic(t *testing.T) {
	sender := &fakeSender{fail: true}
	resolver := netip.MustParseAddrPort("127.0.0.1:9999")

	p := NewPublisher(zerolog.Nop(), boxid.MustNew(), boxid.MustNew(), []netip.AddrPort{resolver}, time.Hour,
		func() ([]Address, Connectivity, map[string]string) { return nil, Connectivity{}, nil },
		sender, nil)

	p.publishOnce(context.Background())
	if sender.count() != 0 {
		t.Fatalf("expected no successful calls recorded, got %d", sender.count())
	}
}

func TestPublisherLastPublishTracksPublishOnce(t *testing.T) {
	sender := &fakeSender{}
	resolver := netip.MustParseAddrPort("127.0.0.1:9999")

	p := NewPublisher(zerolog.Nop(), boxid.MustNew(), boxid.MustNew(), []netip.AddrPort{resolver}, time.Hour,
		func() ([]Address, Connectivity, map[string]string) { return nil, Connectivity{}, nil },
		sender, nil)

	if !p.LastPublish().IsZero() {
		t.Fatalf("expected zero LastPublish before any publish, got %v", p.LastPublish())
	}

	before := time.Now()
	p.publishOnce(context.Background())
	if p.LastPublish().Before(before) {
		t.Fatalf("LastPublish() = %v, want >= %v", p.LastPublish(), before)
	}
}

func TestPublisherAppliesMappingSnapshot(t *testing.T) {
	sender := &fakeSender{}
	resolver := netip.MustParseAddrPort("127.0.0.1:9999")
	mappingCh := make(chan MappingSnapshot, 1)

	p := NewPublisher(zerolog.Nop(), boxid.MustNew(), boxid.MustNew(), []netip.AddrPort{resolver}, 20*time.Millisecond,
		func() ([]Address, Connectivity, map[string]string) { return nil, Connectivity{}, nil },
		sender, mappingCh)

	mappingCh <- MappingSnapshot{PortMapping{Enabled: true, Backend: "upnp", ExternalPort: 4242}}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	p.Run(ctx)

	if !p.mapping.Enabled || p.mapping.ExternalPort != 4242 {
		t.Fatalf("expected mapping snapshot applied, got %+v", p.mapping)
	}
}
