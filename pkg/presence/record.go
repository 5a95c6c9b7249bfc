// Package presence implements Box's presence/location subsystem
// (spec.md §4.5): a per-node publishing loop that PUTs a LocationRecord
// into each configured root resolver's /whoswho queue, and the
// LocationIndex a root resolver maintains over records it receives.
//
// The index's stale/active staging is grounded in the teacher's
// pkg/api/api0.ServerList heartbeat-liveness model (LastHeartbeat plus a
// snapshot-on-demand RWMutex), narrowed from ServerList's three states
// (alive/ghost/gone) to Box's two (active/stale).
package presence

import "github.com/boxnet/boxd/pkg/boxid"

// AddressScope classifies a published address.
type AddressScope string

const (
	ScopeGlobal   AddressScope = "global"
	ScopeLink     AddressScope = "link"
	ScopeLoopback AddressScope = "loopback"
)

// AddressSource describes how an address entry was obtained.
type AddressSource string

const (
	SourceProbe  AddressSource = "probe"
	SourceConfig AddressSource = "config"
	SourceManual AddressSource = "manual"
)

// Address is one network endpoint a node publishes.
type Address struct {
	IP     string        `json:"ip"`
	Port   uint16        `json:"port"`
	Scope  AddressScope  `json:"scope"`
	Source AddressSource `json:"source"`
}

// PortMapping describes the outcome of the NAT coordinator's best current
// mapping attempt, folded into a LocationRecord's Connectivity.
type PortMapping struct {
	Enabled      bool   `json:"enabled"`
	Origin       string `json:"origin,omitempty"`
	Backend      string `json:"backend,omitempty"`
	ExternalIPv4 string `json:"externalIpv4,omitempty"`
	ExternalPort uint16 `json:"externalPort,omitempty"`
	Peer         string `json:"peer,omitempty"`
	Reachability string `json:"reachability,omitempty"`
	Status       string `json:"status,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Connectivity summarizes a node's IPv6 and NAT-traversal state.
type Connectivity struct {
	HasGlobalIPv6  bool        `json:"hasGlobalIpv6"`
	GlobalIPv6     []string    `json:"globalIpv6,omitempty"`
	IPv6ProbeError string      `json:"ipv6ProbeError,omitempty"`
	PortMapping    PortMapping `json:"portMapping"`
}

// LocationRecord is a node's published presence (spec.md §3).
type LocationRecord struct {
	UserID        boxid.ID     `json:"userId"`
	NodeID        boxid.ID     `json:"nodeId"`
	Addresses     []Address    `json:"addresses"`
	Connectivity  Connectivity `json:"connectivity"`
	Online        bool         `json:"online"`
	SinceMs       int64        `json:"sinceMs"`
	LastSeenMs    int64        `json:"lastSeenMs"`
	NodePublicKey string       `json:"nodePublicKey,omitempty"`
	Tags          map[string]string `json:"tags,omitempty"`
}
