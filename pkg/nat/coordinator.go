package nat

import (
	"context"
	"net/netip"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/boxnet/boxd/pkg/presence"
)

// Coordinator obtains and refreshes one external UDP port mapping, trying
// UPnP-IGD, PCP, then NAT-PMP in that order. The first success wins. Each
// refresh calls Acquire again, which re-runs the whole UPnP-IGD, PCP,
// NAT-PMP order, so a refresh can land on a different backend than the one
// before it. When a refresh fails, Run clears the current mapping and
// returns; the failure is logged but no MappingSnapshot reports it.
type Coordinator struct {
	log zerolog.Logger

	localIP      netip.Addr
	internalPort uint16
	gatewayOverride netip.Addr

	snapshots chan<- presence.MappingSnapshot

	mu           sync.Mutex
	current      *MappingHandle
	upnpControl  string // kept out of MappingHandle; needed only to release
	upnpService  string
}

// NewCoordinator constructs a Coordinator. snapshots may be nil if no
// subscriber wants mapping change notifications.
func NewCoordinator(log zerolog.Logger, localIP netip.Addr, internalPort uint16, gatewayOverride netip.Addr, snapshots chan<- presence.MappingSnapshot) *Coordinator {
	return &Coordinator{
		log:             log,
		localIP:         localIP,
		internalPort:    internalPort,
		gatewayOverride: gatewayOverride,
		snapshots:       snapshots,
	}
}

// skipRequested reports whether BOX_SKIP_NAT_PROBE is set (spec.md §6).
func skipRequested() bool {
	return os.Getenv("BOX_SKIP_NAT_PROBE") != ""
}

func (c *Coordinator) gateway() (netip.Addr, error) {
	if c.gatewayOverride.IsValid() {
		return c.gatewayOverride, nil
	}
	return DiscoverGateway()
}

// Acquire attempts UPnP, then PCP, then NAT-PMP, keeping the first
// success. It emits a MappingSnapshot on success.
func (c *Coordinator) Acquire(ctx context.Context) (MappingHandle, error) {
	if skipRequested() {
		return MappingHandle{}, ErrSkipped
	}

	gw, err := c.gateway()
	if err != nil {
		return MappingHandle{}, err
	}

	if handle, controlURL, service, err := c.tryUPnP(ctx); err == nil {
		c.setCurrent(handle, controlURL, service)
		return handle, nil
	} else {
		c.log.Debug().Err(err).Msg("nat: upnp failed")
	}

	if handle, peerState, err := acquirePCP(gw, c.internalPort); err == nil {
		handle.PeerState = peerState
		c.setCurrent(handle, "", "")
		return handle, nil
	} else {
		c.log.Debug().Err(err).Msg("nat: pcp failed")
	}

	if handle, err := acquireNATPMP(gw, c.internalPort); err == nil {
		c.setCurrent(handle, "", "")
		return handle, nil
	} else {
		c.log.Debug().Err(err).Msg("nat: nat-pmp failed")
	}

	return MappingHandle{}, ErrAllBackendsFailed
}

func (c *Coordinator) tryUPnP(ctx context.Context) (MappingHandle, string, string, error) {
	client := &Client{}
	handle, dev, err := client.acquireUPnP(ctx, c.localIP, c.internalPort)
	if err != nil {
		return MappingHandle{}, "", "", err
	}
	return handle, dev.ControlURL, dev.ServiceType, nil
}

func (c *Coordinator) setCurrent(handle MappingHandle, controlURL, service string) {
	c.mu.Lock()
	c.current = &handle
	c.upnpControl = controlURL
	c.upnpService = service
	c.mu.Unlock()

	if c.snapshots != nil {
		select {
		case c.snapshots <- presence.MappingSnapshot{PortMapping: toPortMapping(handle)}:
		default:
		}
	}
}

func toPortMapping(h MappingHandle) presence.PortMapping {
	pm := presence.PortMapping{
		Enabled:      true,
		Backend:      string(h.Backend),
		ExternalPort: h.ExternalPort,
		Reachability: "unknown",
		Status:       "ok",
	}
	if h.ExternalIPv4.IsValid() {
		pm.ExternalIPv4 = h.ExternalIPv4.String()
	}
	if h.Service != "" {
		pm.Origin = h.Service
	}
	if h.PeerState != "" {
		pm.Peer = h.PeerState
	}
	return pm
}

// Current returns the coordinator's present port mapping, translated to
// presence.PortMapping for the admin status report. ok is false if no
// mapping is currently held.
func (c *Coordinator) Current() (presence.PortMapping, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return presence.PortMapping{}, false
	}
	return toPortMapping(*c.current), true
}

// Run keeps the current mapping refreshed every max(lifetime/2, 60s) until
// ctx is canceled, at which point it releases the mapping.
func (c *Coordinator) Run(ctx context.Context) {
	handle, err := c.Acquire(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("nat: initial acquire failed")
	}

	for {
		interval := refreshInterval(handle)
		select {
		case <-ctx.Done():
			c.release()
			return
		case <-time.After(interval):
			next, err := c.Acquire(ctx)
			if err != nil {
				c.log.Warn().Err(err).Msg("nat: refresh failed, abandoning mapping")
				c.mu.Lock()
				c.current = nil
				c.mu.Unlock()
				return
			}
			handle = next
		}
	}
}

func refreshInterval(h MappingHandle) time.Duration {
	if h.LifetimeS/2 > 60 {
		return time.Duration(h.LifetimeS/2) * time.Second
	}
	return 60 * time.Second
}

// release issues the protocol-specific teardown for whatever mapping is
// current, best-effort (spec.md §4.6).
func (c *Coordinator) release() {
	c.mu.Lock()
	handle := c.current
	controlURL, service := c.upnpControl, c.upnpService
	c.mu.Unlock()
	if handle == nil {
		return
	}

	switch handle.Backend {
	case BackendUPnP:
		if controlURL != "" {
			client := &Client{}
			ctx, cancel := context.WithTimeout(context.Background(), ReceiveTimeout)
			defer cancel()
			if err := client.releaseUPnP(ctx, controlURL, service, handle.ExternalPort); err != nil {
				c.log.Debug().Err(err).Msg("nat: release upnp mapping failed")
			}
		}
	case BackendPCP:
		if err := deletePCP(handle.Gateway, c.internalPort); err != nil {
			c.log.Debug().Err(err).Msg("nat: release pcp mapping failed")
		}
	case BackendNATPMP:
		if err := deleteNATPMP(handle.Gateway, c.internalPort); err != nil {
			c.log.Debug().Err(err).Msg("nat: release nat-pmp mapping failed")
		}
	}
}
