// Package adminapi implements Box's admin-channel request/response contract
// (spec.md §6): "status", "stats", "reload", "locate", "nat-probe",
// "location-summary", and "set-log-target". The IPC transport itself (Unix
// socket / Windows named pipe) is a named out-of-scope collaborator; this
// package only turns one newline-terminated command line into one JSON
// response object, independent of how the line arrived.
//
// The shape — one method per command, a uniform error envelope — is
// grounded in the teacher's pkg/api/api0.Handler and its ErrorCode/ErrorObj
// pair, adapted from HTTP handlers to a single Dispatch entry point.
package adminapi

import (
	"context"
	"encoding/json"
	"net/netip"
	"strings"
	"time"

	"github.com/boxnet/boxd/pkg/boxid"
	"github.com/boxnet/boxd/pkg/nat"
	"github.com/boxnet/boxd/pkg/presence"
	"github.com/boxnet/boxd/pkg/queuestore"
)

// ErrorCode names a known admin-channel failure, the same role as the
// teacher's api0.ErrorCode.
type ErrorCode string

const (
	ErrorCodeBadCommand  ErrorCode = "BAD_COMMAND"
	ErrorCodeBadArgument ErrorCode = "BAD_ARGUMENT"
	ErrorCodeNotFound    ErrorCode = "NOT_FOUND"
	ErrorCodeInternal    ErrorCode = "INTERNAL_ERROR"
)

// envelope is the response shape spec.md §6 requires: a top-level "status"
// key plus command-specific fields merged in via json.RawMessage.
type envelope struct {
	Status  string    `json:"status"`
	Message string    `json:"message,omitempty"`
	Code    ErrorCode `json:"code,omitempty"`
}

func ok(extra any) []byte {
	b, err := json.Marshal(extra)
	if err != nil {
		return errorResponse(ErrorCodeInternal, err.Error())
	}
	// Merge {"status":"ok"} into the caller's object by decoding it back
	// into a map, the same "decode then re-tag" approach api0 uses when
	// attaching ErrorObj to an otherwise-typed response.
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return errorResponse(ErrorCodeInternal, err.Error())
	}
	m["status"] = "ok"
	out, err := json.Marshal(m)
	if err != nil {
		return errorResponse(ErrorCodeInternal, err.Error())
	}
	return out
}

func errorResponse(code ErrorCode, message string) []byte {
	b, _ := json.Marshal(envelope{Status: "error", Code: code, Message: message})
	return b
}

// Deps wires adminapi to the live components it reports on and mutates. It
// is a plain struct of closures and handles rather than an interface, since
// the concrete collaborators (a *queuestore.Store, a *presence.LocationIndex,
// the NAT coordinator's current mapping) have no other admin-side caller —
// matching how api0.Handler is constructed with concrete *Storage/*AuthMgr
// fields instead of narrow interfaces.
type Deps struct {
	NodeID boxid.ID
	UserID boxid.ID
	Port   uint16

	StartedAt time.Time

	Queue    *queuestore.Store
	Location *presence.LocationIndex

	HasGlobalIPv6      func() bool
	CurrentMapping     func() (presence.PortMapping, bool)
	LastPresenceUpdate func() time.Time

	// Reload re-reads configuration from path (empty string means the
	// default location) and returns the new effective values as a
	// JSON-marshalable object.
	Reload func(path string) (any, error)

	// NatProbe runs the on-demand probe. gatewayOverride may be the zero
	// value to use automatic discovery.
	NatProbe func(ctx context.Context, gatewayOverride netip.Addr) []nat.ProbeReport

	SetLogTarget func(spec string) error
}

// Handler dispatches admin-channel command lines against a fixed Deps.
type Handler struct {
	deps Deps
}

// NewHandler constructs a Handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{deps: deps}
}

// Dispatch parses one newline-terminated command line and returns its JSON
// response. It never panics on malformed input; unknown commands and bad
// arguments produce an {"status":"error"} envelope.
func (h *Handler) Dispatch(ctx context.Context, line string) []byte {
	line = strings.TrimSpace(line)
	if line == "" {
		return errorResponse(ErrorCodeBadCommand, "empty command")
	}

	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "status":
		return h.handleStatus()
	case "stats":
		return h.handleStats()
	case "reload":
		return h.handleReload(args)
	case "locate":
		return h.handleLocate(args)
	case "nat-probe":
		return h.handleNatProbe(ctx, args)
	case "location-summary":
		return h.handleLocationSummary()
	case "set-log-target":
		return h.handleSetLogTarget(args)
	default:
		return errorResponse(ErrorCodeBadCommand, "unrecognized command: "+cmd)
	}
}
