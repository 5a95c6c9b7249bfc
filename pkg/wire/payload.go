package wire

import (
	"encoding/binary"

	"github.com/boxnet/boxd/pkg/boxid"
)

// HelloPayload is the decoded payload of a HELLO frame. Decode does not
// reject Versions == nil (count == 0) — that boundary behavior belongs to
// the broker's handshake logic (spec.md §4.3, §8), which replies STATUS
// BadRequest; the codec stays pure and simply reports what was on the wire.
type HelloPayload struct {
	Status   StatusCode
	Versions []uint16
}

// EncodeHello serializes a HelloPayload.
func EncodeHello(p HelloPayload) ([]byte, error) {
	if len(p.Versions) > 0xFF {
		return nil, ErrInvalidLength
	}
	buf := make([]byte, 2+2*len(p.Versions))
	buf[0] = byte(p.Status)
	buf[1] = byte(len(p.Versions))
	for i, v := range p.Versions {
		binary.BigEndian.PutUint16(buf[2+2*i:], v)
	}
	return buf, nil
}

// DecodeHello parses a HELLO payload.
func DecodeHello(b []byte) (HelloPayload, error) {
	var p HelloPayload
	if len(b) < 2 {
		return p, ErrTruncatedPayload
	}
	p.Status = StatusCode(b[0])
	count := int(b[1])
	if len(b) < 2+2*count {
		return p, ErrTruncatedPayload
	}
	p.Versions = make([]uint16, count)
	for i := range p.Versions {
		p.Versions[i] = binary.BigEndian.Uint16(b[2+2*i:])
	}
	return p, nil
}

// PutPayload is the decoded payload of a PUT frame.
type PutPayload struct {
	Queue       string
	ContentType string
	Data        []byte
}

// EncodePut serializes a PutPayload.
func EncodePut(p PutPayload) ([]byte, error) {
	if !validUTF8NoControl(p.Queue) || !validUTF8NoControl(p.ContentType) {
		return nil, ErrInvalidUTF8
	}
	if len(p.Queue) > 0xFFFF || len(p.ContentType) > 0xFFFF {
		return nil, ErrInvalidLength
	}
	buf := make([]byte, 0, 2+len(p.Queue)+2+len(p.ContentType)+4+len(p.Data))
	buf = appendU16String(buf, p.Queue)
	buf = appendU16String(buf, p.ContentType)
	buf = appendU32Bytes(buf, p.Data)
	return buf, nil
}

// DecodePut parses a PUT payload.
func DecodePut(b []byte) (PutPayload, error) {
	var p PutPayload

	qp, rest, err := readU16String(b)
	if err != nil {
		return p, err
	}
	if !validUTF8NoControl(qp) {
		return p, ErrInvalidUTF8
	}
	p.Queue = qp

	ct, rest, err := readU16String(rest)
	if err != nil {
		return p, err
	}
	if !validUTF8NoControl(ct) {
		return p, ErrInvalidUTF8
	}
	p.ContentType = ct

	data, rest, err := readU32Bytes(rest)
	if err != nil {
		return p, err
	}
	if len(rest) != 0 {
		return p, ErrInvalidLength
	}
	p.Data = data

	return p, nil
}

// QueuePayload is the decoded payload of a GET or DELETE frame.
type QueuePayload struct {
	Queue string
}

// EncodeQueue serializes a QueuePayload.
func EncodeQueue(p QueuePayload) ([]byte, error) {
	if !validUTF8NoControl(p.Queue) {
		return nil, ErrInvalidUTF8
	}
	if len(p.Queue) > 0xFFFF {
		return nil, ErrInvalidLength
	}
	return appendU16String(nil, p.Queue), nil
}

// DecodeQueue parses a GET/DELETE payload.
func DecodeQueue(b []byte) (QueuePayload, error) {
	var p QueuePayload
	qp, rest, err := readU16String(b)
	if err != nil {
		return p, err
	}
	if len(rest) != 0 {
		return p, ErrInvalidLength
	}
	if !validUTF8NoControl(qp) {
		return p, ErrInvalidUTF8
	}
	p.Queue = qp
	return p, nil
}

// StatusPayload is the decoded payload of a STATUS frame.
type StatusPayload struct {
	Status  StatusCode
	Message string
}

// EncodeStatus serializes a StatusPayload.
func EncodeStatus(p StatusPayload) ([]byte, error) {
	if !validUTF8NoControl(p.Message) {
		return nil, ErrInvalidUTF8
	}
	buf := make([]byte, 1+len(p.Message))
	buf[0] = byte(p.Status)
	copy(buf[1:], p.Message)
	return buf, nil
}

// DecodeStatus parses a STATUS payload; the message consumes the remainder.
func DecodeStatus(b []byte) (StatusPayload, error) {
	var p StatusPayload
	if len(b) < 1 {
		return p, ErrTruncatedPayload
	}
	p.Status = StatusCode(b[0])
	if !validUTF8NoControl(string(b[1:])) {
		return p, ErrInvalidUTF8
	}
	p.Message = string(b[1:])
	return p, nil
}

// LocatePayload is the decoded payload of a LOCATE frame.
type LocatePayload struct {
	Target boxid.ID
}

// EncodeLocate serializes a LocatePayload.
func EncodeLocate(p LocatePayload) ([]byte, error) {
	buf := make([]byte, 16)
	copy(buf, p.Target[:])
	return buf, nil
}

// DecodeLocate parses a LOCATE payload.
func DecodeLocate(b []byte) (LocatePayload, error) {
	var p LocatePayload
	if len(b) != 16 {
		return p, ErrTruncatedPayload
	}
	p.Target = boxid.FromBytes(b)
	return p, nil
}

// --- small shared helpers for length-prefixed fields ---

func appendU16String(buf []byte, s string) []byte {
	var l [2]byte
	binary.BigEndian.PutUint16(l[:], uint16(len(s)))
	buf = append(buf, l[:]...)
	buf = append(buf, s...)
	return buf
}

func readU16String(b []byte) (string, []byte, error) {
	if len(b) < 2 {
		return "", nil, ErrTruncatedPayload
	}
	n := int(binary.BigEndian.Uint16(b))
	if len(b) < 2+n {
		return "", nil, ErrTruncatedPayload
	}
	return string(b[2 : 2+n]), b[2+n:], nil
}

func appendU32Bytes(buf []byte, data []byte) []byte {
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(data)))
	buf = append(buf, l[:]...)
	buf = append(buf, data...)
	return buf
}

func readU32Bytes(b []byte) ([]byte, []byte, error) {
	if len(b) < 4 {
		return nil, nil, ErrTruncatedPayload
	}
	n := binary.BigEndian.Uint32(b)
	if uint64(len(b)) < 4+uint64(n) {
		return nil, nil, ErrTruncatedPayload
	}
	data := make([]byte, n)
	copy(data, b[4:4+n])
	return data, b[4+n:], nil
}
