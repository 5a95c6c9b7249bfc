package broker

import (
	"github.com/boxnet/boxd/pkg/wire"
)

// reply posts a fully-formed frame to NetworkOutput for delivery to
// ev.peer. A saturated output queue makes room by evicting the oldest
// pending send to the same peer (else the oldest overall) inside
// boundedQueue.Push, without counting it; the frame itself is dropped and
// counted only when the output queue has already been closed.
func (s *Server) reply(ev mainEvent, frame wire.Frame) {
	if !s.outputQueue.Push(ev.peer, outboundEvent{peer: ev.peer, frame: frame}) {
		s.metrics.queue_dropped_total.output.Inc()
	}
}

func (s *Server) replyStatus(ev mainEvent, code wire.StatusCode, message string) {
	payload, err := wire.EncodeStatus(wire.StatusPayload{Status: code, Message: message})
	if err != nil {
		s.log.Error().Err(err).Msg("broker: encode status reply")
		return
	}
	s.reply(ev, wire.Frame{
		Command:   wire.CommandSTATUS,
		RequestID: ev.frame.RequestID,
		NodeID:    s.nodeID,
		UserID:    s.userID,
		Payload:   payload,
	})
}

func (s *Server) replyHello(ev mainEvent, status wire.StatusCode, versions []uint16) {
	payload, err := wire.EncodeHello(wire.HelloPayload{Status: status, Versions: versions})
	if err != nil {
		s.log.Error().Err(err).Msg("broker: encode hello reply")
		return
	}
	s.reply(ev, wire.Frame{
		Command:   wire.CommandHELLO,
		RequestID: ev.frame.RequestID,
		NodeID:    s.nodeID,
		UserID:    s.userID,
		Payload:   payload,
	})
}

func (s *Server) replyPut(ev mainEvent, queue, contentType string, data []byte) {
	payload, err := wire.EncodePut(wire.PutPayload{Queue: queue, ContentType: contentType, Data: data})
	if err != nil {
		s.log.Error().Err(err).Msg("broker: encode put reply")
		s.replyStatus(ev, wire.StatusInternalError, wire.StatusInternalError.Message())
		return
	}
	s.reply(ev, wire.Frame{
		Command:   wire.CommandPUT,
		RequestID: ev.frame.RequestID,
		NodeID:    s.nodeID,
		UserID:    s.userID,
		Payload:   payload,
	})
}
