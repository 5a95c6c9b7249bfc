package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/boxnet/boxd/pkg/boxid"
)

// DefaultPublishInterval is the default presence publish interval
// (spec.md §4.5).
const DefaultPublishInterval = 60 * time.Second

// Sender is the narrow capability the publisher needs from the broker's
// client-side transport: submit one PUT and wait for its STATUS reply (or
// fail). Publishing failures are logged and never halt the loop
// (spec.md §4.5), mirroring pkg/origin.AuthMgr's
// failure-never-halts-the-runtime background refresh.
type Sender interface {
	SendPut(ctx context.Context, resolver netip.AddrPort, queue, contentType string, payload []byte) error
}

// RecordSource produces the current LocationRecord to publish. SinceMs and
// LastSeenMs are filled in by the Publisher; the source supplies the rest
// of the runtime-derived fields (addresses, connectivity, tags).
type RecordSource func() (addresses []Address, connectivity Connectivity, tags map[string]string)

// MappingSnapshot is the NAT coordinator's best current port mapping
// state, pushed to the publisher over a channel (resolving the cyclic
// ownership between pkg/nat and pkg/presence without either importing the
// other).
type MappingSnapshot struct {
	PortMapping
}

// Publisher runs the presence publish loop for one local node.
type Publisher struct {
	log zerolog.Logger

	nodeID    boxid.ID
	userID    boxid.ID
	resolvers []netip.AddrPort
	interval  time.Duration
	source    RecordSource
	sender    Sender

	since       time.Time
	mapping     PortMapping
	mappingCh   <-chan MappingSnapshot

	mu          sync.Mutex
	lastPublish time.Time
}

// LastPublish returns the time of the most recent publish attempt (whether
// or not every resolver accepted it), for the admin channel's status
// report.
func (p *Publisher) LastPublish() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastPublish
}

// NewPublisher constructs a Publisher. mappingCh may be nil if no NAT
// coordinator is in use.
func NewPublisher(log zerolog.Logger, nodeID, userID boxid.ID, resolvers []netip.AddrPort, interval time.Duration, source RecordSource, sender Sender, mappingCh <-chan MappingSnapshot) *Publisher {
	if interval <= 0 {
		interval = DefaultPublishInterval
	}
	return &Publisher{
		log:       log,
		nodeID:    nodeID,
		userID:    userID,
		resolvers: resolvers,
		interval:  interval,
		source:    source,
		sender:    sender,
		since:     time.Now(),
		mappingCh: mappingCh,
	}
}

// Run publishes a LocationRecord every interval until ctx is canceled, and
// applies MappingSnapshot updates as they arrive in between publishes.
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.publishOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-p.mappingCh:
			if !ok {
				p.mappingCh = nil
				continue
			}
			p.mapping = snap.PortMapping
		case <-ticker.C:
			p.publishOnce(ctx)
		}
	}
}

func (p *Publisher) publishOnce(ctx context.Context) {
	addresses, connectivity, tags := p.source()
	connectivity.PortMapping = p.mapping

	now := time.Now()
	p.mu.Lock()
	p.lastPublish = now
	p.mu.Unlock()
	rec := LocationRecord{
		UserID:       p.userID,
		NodeID:       p.nodeID,
		Addresses:    addresses,
		Connectivity: connectivity,
		Online:       true,
		SinceMs:      p.since.UnixMilli(),
		LastSeenMs:   now.UnixMilli(),
		Tags:         tags,
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		p.log.Error().Err(err).Msg("presence: encode location record")
		return
	}

	nodeQueue := fmt.Sprintf("/whoswho/%s", p.nodeID)
	userQueue := fmt.Sprintf("/whoswho/%s", p.userID)

	for _, resolver := range p.resolvers {
		if err := p.sender.SendPut(ctx, resolver, nodeQueue, "application/json", payload); err != nil {
			p.log.Warn().Err(err).Stringer("resolver", resolver).Msg("presence: publish to resolver failed")
			continue
		}
		if err := p.sender.SendPut(ctx, resolver, userQueue, "application/json", payload); err != nil {
			p.log.Warn().Err(err).Stringer("resolver", resolver).Msg("presence: publish user alias failed")
		}
	}
}
