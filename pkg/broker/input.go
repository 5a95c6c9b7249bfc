package broker

import (
	"context"
	"errors"
	"net"
	"net/netip"

	"github.com/boxnet/boxd/pkg/transport"
	"github.com/boxnet/boxd/pkg/wire"
)

// runNetworkInput is the NetworkInput stage (spec.md §4.3): it owns the UDP
// socket's read side, decrypts (or passes through, under Clear mode) each
// datagram, decodes the application frame, and posts the result to Main.
// It returns once conn is closed by Run's shutdown sequence, which bounds
// it to "within one poll tick" per spec.md §5.
func (s *Server) runNetworkInput(ctx context.Context, conn *net.UDPConn) {
	buf := make([]byte, transport.MaxDatagram)
	for {
		n, addr, err := conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn().Err(err).Msg("broker: network input read error")
			continue
		}
		peer := netip.AddrPortFrom(addr.Addr().Unmap(), addr.Port())
		s.handleDatagram(peer, buf[:n])
	}
}

func (s *Server) handleDatagram(peer netip.AddrPort, datagram []byte) {
	sess, created, err := s.sessions.getOrCreate(peer)
	if err != nil {
		s.log.Debug().Err(err).Stringer("peer", peer).Msg("broker: establish session")
		return
	}

	plaintext, err := sess.dec.Open(datagram)
	if err != nil {
		s.metrics.frames_rejected_total.aead.Inc()
		s.log.Debug().Err(err).Stringer("peer", peer).Msg("broker: rejected datagram")
		return
	}

	frame, err := wire.Decode(plaintext)
	if err != nil {
		s.metrics.frames_rejected_total.malformed.Inc()
		s.log.Debug().Err(err).Stringer("peer", peer).Msg("broker: malformed frame")
		return
	}

	s.metrics.frames_in_total.Inc()
	if !s.mainQueue.Push(peer, mainEvent{peer: peer, frame: frame, firstDatagram: created}) {
		s.metrics.queue_dropped_total.main.Inc()
	}
}
