package broker

import (
	"context"
	"net"

	"github.com/boxnet/boxd/pkg/wire"
)

// runNetworkOutput is the NetworkOutput stage (spec.md §4.3): it consumes
// send requests from Main, encrypts (or passes through, under Clear mode),
// and writes to the socket. It returns once outputQueue is closed and
// drained.
func (s *Server) runNetworkOutput(ctx context.Context, conn *net.UDPConn) {
	for {
		item, ok := s.outputQueue.Pop(ctx)
		if !ok {
			return
		}
		ev, ok := item.payload.(outboundEvent)
		if !ok {
			continue
		}
		s.sendFrame(conn, ev)
	}
}

func (s *Server) sendFrame(conn *net.UDPConn, ev outboundEvent) {
	sess, ok := s.sessions.get(ev.peer)
	if !ok {
		// Peer session was removed (BYE) before this send drained; drop it.
		return
	}

	encoded, err := wire.Encode(ev.frame)
	if err != nil {
		s.log.Error().Err(err).Msg("broker: encode outbound frame")
		return
	}

	datagram, err := sess.enc.Seal(encoded)
	if err != nil {
		s.log.Warn().Err(err).Stringer("peer", ev.peer).Msg("broker: seal outbound frame")
		return
	}

	if _, err := conn.WriteToUDPAddrPort(datagram, ev.peer); err != nil {
		// A send to a peer whose socket has gone away is discarded with a
		// warning (spec.md §4.3's termination paragraph), not escalated.
		s.log.Warn().Err(err).Stringer("peer", ev.peer).Msg("broker: send failed")
		return
	}
	s.metrics.frames_out_total.Inc()
}
