// Package wire implements Box's application-level frame codec: the fixed
// magic/version/length/command/request-id/node-id/user-id header, plus the
// per-command payload shapes layered on top of it. The codec is pure — no
// I/O, no allocation beyond the output buffer — and is exercised by
// pkg/broker, never called directly by pkg/transport.
//
// The header layout and per-field manual encoding/binary style mirror the
// teacher's pkg/a2s request/response codec (r2encodeGetChallenge /
// r2decodeChallenge).
package wire

import (
	"encoding/binary"
	"unicode/utf8"

	"github.com/boxnet/boxd/pkg/boxid"
)

const (
	Magic   byte = 0x42 // 'B'
	Version byte = 0x01

	// headerFixedLen is the number of header bytes counted by
	// remainder_length: command(4) + request_id(16) + node_id(16) + user_id(16).
	headerFixedLen = 4 + 16 + 16 + 16 // 52

	// HeaderLen is the total length of a frame's fixed header, i.e. the
	// payload starts at this offset.
	HeaderLen = 6 + headerFixedLen // 58
)

// Command identifies a frame's operation.
type Command uint32

const (
	CommandHELLO   Command = 1
	CommandPUT     Command = 2
	CommandGET     Command = 3
	CommandDELETE  Command = 4
	CommandSTATUS  Command = 5
	CommandSEARCH  Command = 6
	CommandBYE     Command = 7
	CommandLOCATE  Command = 8
)

func (c Command) String() string {
	switch c {
	case CommandHELLO:
		return "HELLO"
	case CommandPUT:
		return "PUT"
	case CommandGET:
		return "GET"
	case CommandDELETE:
		return "DELETE"
	case CommandSTATUS:
		return "STATUS"
	case CommandSEARCH:
		return "SEARCH"
	case CommandBYE:
		return "BYE"
	case CommandLOCATE:
		return "LOCATE"
	default:
		return "UNKNOWN"
	}
}

func (c Command) valid() bool {
	return c >= CommandHELLO && c <= CommandLOCATE
}

// Frame is a single decoded Box application frame.
type Frame struct {
	Command   Command
	RequestID boxid.ID
	NodeID    boxid.ID
	UserID    boxid.ID
	Payload   []byte
}

// Encode serializes f into a newly allocated buffer.
func Encode(f Frame) ([]byte, error) {
	remainder := headerFixedLen + len(f.Payload)
	if remainder > 0xFFFFFFFF {
		return nil, ErrInvalidLength
	}

	buf := make([]byte, HeaderLen+len(f.Payload))
	buf[0] = Magic
	buf[1] = Version
	binary.BigEndian.PutUint32(buf[2:6], uint32(remainder))
	binary.BigEndian.PutUint32(buf[6:10], uint32(f.Command))
	copy(buf[10:26], f.RequestID[:])
	copy(buf[26:42], f.NodeID[:])
	copy(buf[42:58], f.UserID[:])
	copy(buf[HeaderLen:], f.Payload)
	return buf, nil
}

// Decode parses a frame from buf. The returned Frame's Payload aliases a
// freshly copied slice, never buf itself, so callers may reuse buf
// immediately (the broker reads into a shared receive buffer).
func Decode(buf []byte) (Frame, error) {
	var f Frame

	if len(buf) < 6 {
		return f, ErrMalformedHeader
	}
	if buf[0] != Magic {
		return f, ErrMalformedHeader
	}
	if buf[1] != Version {
		return f, ErrUnsupportedVersion
	}

	remainder := binary.BigEndian.Uint32(buf[2:6])
	if remainder < headerFixedLen {
		return f, ErrInvalidLength
	}

	total := uint64(6) + uint64(remainder)
	if total > uint64(len(buf)) {
		return f, ErrTruncatedPayload
	}

	command := Command(binary.BigEndian.Uint32(buf[6:10]))
	if !command.valid() {
		return f, ErrUnsupportedCommand
	}

	f.Command = command
	f.RequestID = boxid.FromBytes(buf[10:26])
	f.NodeID = boxid.FromBytes(buf[26:42])
	f.UserID = boxid.FromBytes(buf[42:58])

	payloadLen := remainder - headerFixedLen
	f.Payload = make([]byte, payloadLen)
	copy(f.Payload, buf[HeaderLen:HeaderLen+payloadLen])

	return f, nil
}

// validUTF8NoControl reports whether s is valid UTF-8 with no control
// characters or NUL bytes, the rule shared by queue names and content types.
func validUTF8NoControl(s string) bool {
	if !utf8.ValidString(s) {
		return false
	}
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return false
		}
	}
	return true
}
