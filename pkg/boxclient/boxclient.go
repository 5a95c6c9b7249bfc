// Package boxclient is the one-shot request/reply client used by both the
// box CLI and the presence publisher's Sender: dial, HELLO, send one
// command, wait for the matching reply, close. It is the client-side
// mirror of pkg/broker's handshake contract (spec.md §4.3: a peer's first
// datagram gets an implicit HELLO reply).
package boxclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/boxnet/boxd/pkg/boxid"
	"github.com/boxnet/boxd/pkg/transport"
	"github.com/boxnet/boxd/pkg/wire"
)

// DefaultTimeout bounds a round trip when ctx carries no earlier deadline.
const DefaultTimeout = 5 * time.Second

// ErrStatus wraps a non-OK STATUS reply.
type ErrStatus struct {
	Code    wire.StatusCode
	Message string
}

func (e *ErrStatus) Error() string {
	return fmt.Sprintf("boxclient: status %s: %s", e.Code, e.Message)
}

// Client is a connected, handshaken session with one peer.
type Client struct {
	sock   *transport.Socket
	nodeID boxid.ID
	userID boxid.ID
}

// Dial opens a socket to addr, performs the HELLO handshake, and returns a
// ready Client. nodeID/userID are stamped on every frame this client sends.
func Dial(ctx context.Context, addr netip.AddrPort, mode transport.Mode, psk []byte, nodeID, userID boxid.ID) (*Client, error) {
	sock, err := transport.Dial(addr, mode, psk)
	if err != nil {
		return nil, fmt.Errorf("boxclient: dial: %w", err)
	}
	c := &Client{sock: sock, nodeID: nodeID, userID: userID}

	if _, err := c.roundTrip(ctx, wire.Frame{
		Command: wire.CommandHELLO,
		Payload: mustEncodeHello(),
	}); err != nil {
		sock.Close()
		return nil, fmt.Errorf("boxclient: handshake: %w", err)
	}
	return c, nil
}

func mustEncodeHello() []byte {
	b, _ := wire.EncodeHello(wire.HelloPayload{Status: wire.StatusOK, Versions: []uint16{1}})
	return b
}

// roundTrip sends req (stamping RequestID/NodeID/UserID if unset) and
// returns the first reply frame carrying the same RequestID, honoring
// ctx's deadline (or DefaultTimeout if ctx has none).
func (c *Client) roundTrip(ctx context.Context, req wire.Frame) (wire.Frame, error) {
	if req.RequestID.IsNil() {
		id, err := boxid.New()
		if err != nil {
			return wire.Frame{}, err
		}
		req.RequestID = id
	}
	req.NodeID = c.nodeID
	req.UserID = c.userID

	encoded, err := wire.Encode(req)
	if err != nil {
		return wire.Frame{}, err
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultTimeout)
	}
	if err := c.sock.SetDeadline(deadline); err != nil {
		return wire.Frame{}, err
	}

	if _, err := c.sock.Send(encoded); err != nil {
		return wire.Frame{}, fmt.Errorf("boxclient: send: %w", err)
	}

	buf := make([]byte, transport.MaxDatagram)
	for {
		if err := ctx.Err(); err != nil {
			return wire.Frame{}, err
		}
		plaintext, err := c.sock.Receive(buf)
		if err != nil {
			return wire.Frame{}, fmt.Errorf("boxclient: receive: %w", err)
		}
		frame, err := wire.Decode(plaintext)
		if err != nil {
			continue // malformed or unrelated datagram; keep waiting
		}
		if frame.RequestID != req.RequestID {
			continue
		}
		return frame, nil
	}
}

// Put stores payload under queue.
func (c *Client) Put(ctx context.Context, queue, contentType string, payload []byte) error {
	p, err := wire.EncodePut(wire.PutPayload{Queue: queue, ContentType: contentType, Data: payload})
	if err != nil {
		return err
	}
	reply, err := c.roundTrip(ctx, wire.Frame{Command: wire.CommandPUT, Payload: p})
	if err != nil {
		return err
	}
	return statusOrErr(reply)
}

// Get retrieves the next object from queue.
func (c *Client) Get(ctx context.Context, queue string) (contentType string, data []byte, err error) {
	p, err := wire.EncodeQueue(wire.QueuePayload{Queue: queue})
	if err != nil {
		return "", nil, err
	}
	reply, err := c.roundTrip(ctx, wire.Frame{Command: wire.CommandGET, Payload: p})
	if err != nil {
		return "", nil, err
	}
	if reply.Command == wire.CommandSTATUS {
		return "", nil, statusOrErr(reply)
	}
	put, err := wire.DecodePut(reply.Payload)
	if err != nil {
		return "", nil, fmt.Errorf("boxclient: decode reply: %w", err)
	}
	return put.ContentType, put.Data, nil
}

// Delete removes the next object from queue.
func (c *Client) Delete(ctx context.Context, queue string) error {
	p, err := wire.EncodeQueue(wire.QueuePayload{Queue: queue})
	if err != nil {
		return err
	}
	reply, err := c.roundTrip(ctx, wire.Frame{Command: wire.CommandDELETE, Payload: p})
	if err != nil {
		return err
	}
	return statusOrErr(reply)
}

// Locate queries a node or user id, returning the raw JSON record or
// aggregate the broker replies with (spec.md §4.5).
func (c *Client) Locate(ctx context.Context, target boxid.ID) (json.RawMessage, error) {
	p, err := wire.EncodeLocate(wire.LocatePayload{Target: target})
	if err != nil {
		return nil, err
	}
	reply, err := c.roundTrip(ctx, wire.Frame{Command: wire.CommandLOCATE, Payload: p})
	if err != nil {
		return nil, err
	}
	if reply.Command == wire.CommandSTATUS {
		return nil, statusOrErr(reply)
	}
	put, err := wire.DecodePut(reply.Payload)
	if err != nil {
		return nil, fmt.Errorf("boxclient: decode reply: %w", err)
	}
	return json.RawMessage(put.Data), nil
}

// Bye notifies the peer this session is ending and closes the socket.
func (c *Client) Bye() error {
	encoded, err := wire.Encode(wire.Frame{Command: wire.CommandBYE, NodeID: c.nodeID, UserID: c.userID})
	if err != nil {
		return c.Close()
	}
	c.sock.Send(encoded)
	return c.Close()
}

// Close closes the underlying socket without notifying the peer.
func (c *Client) Close() error { return c.sock.Close() }

func statusOrErr(reply wire.Frame) error {
	if reply.Command != wire.CommandSTATUS {
		return errors.New("boxclient: unexpected reply command: " + reply.Command.String())
	}
	sp, err := wire.DecodeStatus(reply.Payload)
	if err != nil {
		return fmt.Errorf("boxclient: decode status: %w", err)
	}
	if sp.Status != wire.StatusOK {
		return &ErrStatus{Code: sp.Status, Message: sp.Message}
	}
	return nil
}
