package transport

import (
	"fmt"
	"net"
	"net/netip"
	"time"
)

// Socket is a convenience wrapper around a UDP connection fixed to a single
// peer (used through pkg/boxclient by the client CLI and the presence
// publisher — anywhere Box talks point-to-point rather than fanning out to
// many peers; the NAT backends dial their own plain UDP sockets).
// The broker, which must multiplex many peers on one socket, manages its own
// per-peer Encryptor/Decryptor maps directly instead of using Socket (see
// pkg/broker).
type Socket struct {
	conn *net.UDPConn
	enc  *Encryptor
	dec  *Decryptor
}

// Dial opens a UDP socket connected to addr and wraps it in mode. For
// AeadPsk, psk is the pre-shared key; it is ignored for Clear.
func Dial(addr netip.AddrPort, mode Mode, psk []byte) (*Socket, error) {
	conn, err := net.DialUDP("udp", nil, net.UDPAddrFromAddrPort(addr))
	if err != nil {
		return nil, err
	}
	return newSocket(conn, mode, psk)
}

func newSocket(conn *net.UDPConn, mode Mode, psk []byte) (*Socket, error) {
	var (
		enc *Encryptor
		dec *Decryptor
		err error
	)
	if mode == Clear {
		enc = NewClearEncryptor()
		dec = NewClearDecryptor()
	} else {
		if enc, err = NewEncryptor(psk); err != nil {
			conn.Close()
			return nil, err
		}
		if dec, err = NewDecryptor(psk); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return &Socket{conn: conn, enc: enc, dec: dec}, nil
}

// Send frames and writes plaintext to the connected peer. It returns the
// number of plaintext bytes submitted, never a partial write.
func (s *Socket) Send(plaintext []byte) (int, error) {
	frame, err := s.enc.Seal(plaintext)
	if err != nil {
		return 0, err
	}
	if _, err := s.conn.Write(frame); err != nil {
		return 0, err
	}
	return len(plaintext), nil
}

// Receive reads one datagram into buf and returns the decrypted plaintext.
func (s *Socket) Receive(buf []byte) ([]byte, error) {
	n, err := s.conn.Read(buf)
	if err != nil {
		return nil, err
	}
	return s.dec.Open(buf[:n])
}

// DebugResendLastFrame retransmits the most recently sealed frame verbatim,
// for replay-rejection tests (spec.md §4.1).
func (s *Socket) DebugResendLastFrame() error {
	frame := s.enc.DebugLastFrame()
	if frame == nil {
		return fmt.Errorf("transport: no frame has been sent yet")
	}
	_, err := s.conn.Write(frame)
	return err
}

// SetDeadline sets the read and write deadline on the underlying
// connection, for callers doing request/reply round trips over a Socket
// (the client CLI, the presence publisher) that need a bounded wait
// instead of blocking on Receive forever.
func (s *Socket) SetDeadline(t time.Time) error { return s.conn.SetDeadline(t) }

// Close closes the underlying connection.
func (s *Socket) Close() error { return s.conn.Close() }

// LocalAddr returns the local address of the socket.
func (s *Socket) LocalAddr() net.Addr { return s.conn.LocalAddr() }
