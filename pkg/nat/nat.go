// Package nat implements Box's NAT traversal coordinator (spec.md §4.6):
// sequential UPnP-IGD / PCP / NAT-PMP probing, lease refresh, teardown, and
// an on-demand probe API for the admin channel.
//
// The small per-backend HTTP client shape (context timeouts, req/do split)
// is grounded in the teacher's pkg/eax.Client, reused here for UPnP's SSDP
// device description fetch and SOAP AddPortMapping/DeletePortMapping calls.
// The PCP/NAT-PMP fixed-layout request/response codecs are grounded in
// pkg/a2s's raw-binary datagram coding (encode a struct by hand, send,
// decode the fixed-shape response, verify a magic/opcode field).
package nat

import (
	"errors"
	"net/netip"
	"time"
)

// Backend identifies which NAT traversal protocol produced a mapping.
type Backend string

const (
	BackendUPnP   Backend = "upnp"
	BackendPCP    Backend = "pcp"
	BackendNATPMP Backend = "natpmp"
)

// ReceiveTimeout is the hard per-step receive timeout for each discovery
// backend (spec.md §4.6).
const ReceiveTimeout = 3 * time.Second

// DeviceDescriptionTimeout bounds the UPnP device description HTTP GET.
const DeviceDescriptionTimeout = 5 * time.Second

// ErrNoGateway is returned when no default IPv4 gateway can be discovered.
var ErrNoGateway = errors.New("nat: no default gateway found")

// ErrAllBackendsFailed is returned when every backend in the discovery
// order fails.
var ErrAllBackendsFailed = errors.New("nat: all backends failed")

// ErrSkipped is returned by Probe/Acquire when BOX_SKIP_NAT_PROBE is set
// (spec.md §6).
var ErrSkipped = errors.New("nat: probing skipped")

// MappingHandle is a coordinator-owned NAT traversal result (spec.md §3).
// It is released (best-effort DELETE) on shutdown or replacement.
type MappingHandle struct {
	Backend      Backend
	ExternalPort uint16
	Gateway      netip.Addr
	Service      string // UPnP WANIPConnection/WANPPPConnection service type used
	LifetimeS    int
	ExternalIPv4 netip.Addr
	PeerState    string // PCP PEER opcode diagnostic, if any
}

// ProbeReport is the result of attempting one backend during an on-demand
// probe (spec.md §4.6).
type ProbeReport struct {
	Backend      Backend    `json:"backend"`
	Status       string     `json:"status"` // "ok", "error", "skipped"
	ExternalPort uint16     `json:"externalPort,omitempty"`
	ExternalIPv4 string     `json:"externalIpv4,omitempty"`
	LifetimeS    int        `json:"lifetimeS,omitempty"`
	Gateway      string     `json:"gateway,omitempty"`
	Service      string     `json:"service,omitempty"`
	Error        string     `json:"error,omitempty"`
	PeerState    string     `json:"peerState,omitempty"`
}
