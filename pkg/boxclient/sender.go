package boxclient

import (
	"context"
	"net/netip"

	"github.com/boxnet/boxd/pkg/boxid"
	"github.com/boxnet/boxd/pkg/presence"
	"github.com/boxnet/boxd/pkg/transport"
)

// Sender implements presence.Sender by dialing a fresh Client per publish —
// acceptable at the presence loop's 60s-by-default cadence, and it avoids
// the publisher having to track per-resolver connection state itself.
type Sender struct {
	Mode   transport.Mode
	PSK    []byte
	NodeID boxid.ID
	UserID boxid.ID
}

var _ presence.Sender = (*Sender)(nil)

// SendPut dials resolver, performs the handshake, and issues one PUT.
func (s *Sender) SendPut(ctx context.Context, resolver netip.AddrPort, queue, contentType string, payload []byte) error {
	c, err := Dial(ctx, resolver, s.Mode, s.PSK, s.NodeID, s.UserID)
	if err != nil {
		return err
	}
	defer c.Close()
	return c.Put(ctx, queue, contentType, payload)
}
