package wire

import "errors"

// Codec error taxonomy (spec.md §7).
var (
	ErrMalformedHeader   = errors.New("wire: malformed header")
	ErrUnsupportedVersion = errors.New("wire: unsupported version")
	ErrUnsupportedCommand = errors.New("wire: unsupported command")
	ErrTruncatedPayload  = errors.New("wire: truncated payload")
	ErrInvalidLength     = errors.New("wire: invalid length")
	ErrInvalidUTF8       = errors.New("wire: invalid utf-8")
)
