package broker

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/boxnet/boxd/pkg/boxid"
	"github.com/boxnet/boxd/pkg/presence"
	"github.com/boxnet/boxd/pkg/queuestore"
	"github.com/boxnet/boxd/pkg/wire"
)

// supportedVersions is the wire protocol version set this broker answers
// HELLO negotiation with (spec.md §4.3: "intersects {1}").
var supportedVersions = []uint16{1}

// handleFrame dispatches one mainEvent, grounded in spec.md §4.3's Main
// stage bullet list. It never blocks on I/O; store writes run synchronously
// but are bounded by datagram size.
func (s *Server) handleFrame(ev mainEvent) {
	sess, ok := s.sessions.get(ev.peer)
	if !ok {
		// Session vanished between NetworkInput posting and Main consuming
		// (e.g. a racing BYE); nothing to reply to.
		return
	}
	sess.lastActivity = s.now()

	if ev.firstDatagram {
		sess.handshakeCompleted = true
		s.replyHello(ev, wire.StatusOK, s.supportedVersions)
		return
	}

	switch ev.frame.Command {
	case wire.CommandHELLO:
		s.handleHello(ev)
	case wire.CommandPUT:
		s.handlePut(ev)
	case wire.CommandGET:
		s.handleGet(ev)
	case wire.CommandDELETE:
		s.handleDelete(ev)
	case wire.CommandLOCATE:
		s.handleLocate(ev)
	case wire.CommandSTATUS:
		s.replyStatus(ev, wire.StatusOK, "pong")
	case wire.CommandBYE:
		s.sessions.remove(ev.peer)
	default:
		// Includes CommandSEARCH, which is reserved (spec.md §4.2) and not
		// yet implemented.
		s.replyStatus(ev, wire.StatusBadRequest, wire.StatusBadRequest.Message())
	}
}

func (s *Server) handleHello(ev mainEvent) {
	p, err := wire.DecodeHello(ev.frame.Payload)
	if err != nil || len(p.Versions) == 0 {
		s.replyStatus(ev, wire.StatusBadRequest, wire.StatusBadRequest.Message())
		return
	}
	if !versionsIntersect(p.Versions, s.supportedVersions) {
		s.replyStatus(ev, wire.StatusBadRequest, "unsupported-version")
		return
	}
	s.replyHello(ev, wire.StatusOK, s.supportedVersions)
}

func versionsIntersect(a, b []uint16) bool {
	want := make(map[uint16]struct{}, len(b))
	for _, v := range b {
		want[v] = struct{}{}
	}
	for _, v := range a {
		if _, ok := want[v]; ok {
			return true
		}
	}
	return false
}

func (s *Server) handlePut(ev mainEvent) {
	p, err := wire.DecodePut(ev.frame.Payload)
	if err != nil {
		s.replyStatus(ev, wire.StatusBadRequest, wire.StatusBadRequest.Message())
		return
	}

	err = s.store.Put(p.Queue, p.ContentType, p.Data, s.maxPayload)
	switch {
	case err == nil:
		s.replyStatus(ev, wire.StatusOK, wire.StatusOK.Message())
	case errors.Is(err, queuestore.ErrBadQueueName):
		s.replyStatus(ev, wire.StatusBadRequest, "bad-queue-name")
	case errors.Is(err, queuestore.ErrTooLarge):
		s.replyStatus(ev, wire.StatusTooLarge, wire.StatusTooLarge.Message())
	default:
		s.log.Error().Err(err).Str("queue", p.Queue).Msg("broker: put failed")
		s.replyStatus(ev, wire.StatusInternalError, wire.StatusInternalError.Message())
	}

	s.maybeIndexWhoswho(p.Queue, p.Data)
}

// maybeIndexWhoswho updates the Location Index when a PUT lands in
// /whoswho/<uuid>, the mechanism root resolvers use to learn presence
// records (spec.md §4.5: "PUT into /whoswho/<node_uuid> updates the index
// entry's last_seen_ms"). Malformed payloads are ignored; not every broker
// is a root resolver, and not every PUT into that queue need be valid JSON.
func (s *Server) maybeIndexWhoswho(queue string, payload []byte) {
	if s.location == nil || !isWhoswhoQueue(queue) {
		return
	}
	var rec presence.LocationRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return
	}
	s.location.Update(rec)
}

func isWhoswhoQueue(queue string) bool {
	const prefix = "/whoswho/"
	return len(queue) > len(prefix) && queue[:len(prefix)] == prefix
}

func (s *Server) handleGet(ev mainEvent) {
	p, err := wire.DecodeQueue(ev.frame.Payload)
	if err != nil {
		s.replyStatus(ev, wire.StatusBadRequest, wire.StatusBadRequest.Message())
		return
	}

	obj, err := s.store.Get(p.Queue)
	switch {
	case err == nil:
		s.replyPut(ev, p.Queue, obj.ContentType, obj.Payload)
	case errors.Is(err, queuestore.ErrNotFound):
		s.replyStatus(ev, wire.StatusNotFound, wire.StatusNotFound.Message())
	case errors.Is(err, queuestore.ErrBadQueueName):
		s.replyStatus(ev, wire.StatusBadRequest, "bad-queue-name")
	default:
		s.log.Error().Err(err).Str("queue", p.Queue).Msg("broker: get failed")
		s.replyStatus(ev, wire.StatusInternalError, wire.StatusInternalError.Message())
	}
}

func (s *Server) handleDelete(ev mainEvent) {
	p, err := wire.DecodeQueue(ev.frame.Payload)
	if err != nil {
		s.replyStatus(ev, wire.StatusBadRequest, wire.StatusBadRequest.Message())
		return
	}

	err = s.store.Delete(p.Queue)
	switch {
	case err == nil:
		s.replyStatus(ev, wire.StatusOK, wire.StatusOK.Message())
	case errors.Is(err, queuestore.ErrNotFound):
		s.replyStatus(ev, wire.StatusNotFound, wire.StatusNotFound.Message())
	case errors.Is(err, queuestore.ErrBadQueueName):
		s.replyStatus(ev, wire.StatusBadRequest, "bad-queue-name")
	default:
		s.log.Error().Err(err).Str("queue", p.Queue).Msg("broker: delete failed")
		s.replyStatus(ev, wire.StatusInternalError, wire.StatusInternalError.Message())
	}
}

// handleLocate answers a LOCATE frame by consulting the Location Index
// (spec.md §4.3, §4.5). The record (or aggregate) is returned JSON-encoded
// in a PUT-shaped reply frame, the same encoding the presence publisher
// itself uses, since the wire table defines no separate LOCATE response
// payload.
func (s *Server) handleLocate(ev mainEvent) {
	p, err := wire.DecodeLocate(ev.frame.Payload)
	if err != nil {
		s.replyStatus(ev, wire.StatusBadRequest, wire.StatusBadRequest.Message())
		return
	}
	if s.location == nil {
		s.replyStatus(ev, wire.StatusNotFound, wire.StatusNotFound.Message())
		return
	}

	if rec, ok := s.location.Get(p.Target); ok {
		s.replyLocateJSON(ev, p.Target, rec)
		return
	}
	if recs := s.location.GetByUser(p.Target); len(recs) > 0 {
		s.replyLocateJSON(ev, p.Target, recs)
		return
	}
	s.replyStatus(ev, wire.StatusNotFound, wire.StatusNotFound.Message())
}

func (s *Server) replyLocateJSON(ev mainEvent, target boxid.ID, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		s.log.Error().Err(err).Msg("broker: encode locate response")
		s.replyStatus(ev, wire.StatusInternalError, wire.StatusInternalError.Message())
		return
	}
	s.replyPut(ev, fmt.Sprintf("/whoswho/%s", target), "application/json", payload)
}
