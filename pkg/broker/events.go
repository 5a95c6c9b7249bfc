package broker

import (
	"net/netip"

	"github.com/boxnet/boxd/pkg/wire"
)

// mainEvent is NetworkInput's posting to the Main stage: a frame decoded
// from one peer's datagram. firstDatagram marks the very first datagram
// received from peer on this session, which triggers the implicit
// handshake reply instead of ordinary command dispatch (spec.md §4.3's
// handshake-state paragraph).
type mainEvent struct {
	peer          netip.AddrPort
	frame         wire.Frame
	firstDatagram bool
}

// outboundEvent is Main's posting to the NetworkOutput stage: one frame to
// deliver to peer.
type outboundEvent struct {
	peer  netip.AddrPort
	frame wire.Frame
}
