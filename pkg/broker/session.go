package broker

import (
	"net/netip"
	"sync"
	"time"

	"github.com/boxnet/boxd/pkg/transport"
)

// peerSession holds per-peer transport and handshake state. Per spec.md
// §5's "no global mutable state escapes its owner stage" rule, enc is
// touched only by NetworkOutput, dec only by NetworkInput, and
// handshakeCompleted/lastActivity only by Main — each field has exactly one
// owning goroutine after creation, so the only contention is the
// get-or-create itself.
type peerSession struct {
	enc *transport.Encryptor
	dec *transport.Decryptor

	handshakeCompleted bool
	lastActivity       time.Time
}

// sessionTable is the broker's map of peer to peerSession, created lazily on
// first contact (spec.md §4.3's handshake-state paragraph).
type sessionTable struct {
	mu       sync.Mutex
	sessions map[netip.AddrPort]*peerSession
	mode     transport.Mode
	psk      []byte
}

func newSessionTable(mode transport.Mode, psk []byte) *sessionTable {
	return &sessionTable{
		sessions: make(map[netip.AddrPort]*peerSession),
		mode:     mode,
		psk:      psk,
	}
}

// getOrCreate returns peer's session, creating one with a fresh
// encryptor/decryptor pair if peer has not been seen before. created
// reports whether this call did the creating.
func (t *sessionTable) getOrCreate(peer netip.AddrPort) (sess *peerSession, created bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.sessions[peer]; ok {
		return s, false, nil
	}

	s := &peerSession{}
	if t.mode == transport.Clear {
		s.enc = transport.NewClearEncryptor()
		s.dec = transport.NewClearDecryptor()
	} else {
		if s.enc, err = transport.NewEncryptor(t.psk); err != nil {
			return nil, false, err
		}
		if s.dec, err = transport.NewDecryptor(t.psk); err != nil {
			return nil, false, err
		}
	}
	t.sessions[peer] = s
	return s, true, nil
}

func (t *sessionTable) get(peer netip.AddrPort) (*peerSession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[peer]
	return s, ok
}

func (t *sessionTable) remove(peer netip.AddrPort) {
	t.mu.Lock()
	delete(t.sessions, peer)
	t.mu.Unlock()
}

func (t *sessionTable) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}
