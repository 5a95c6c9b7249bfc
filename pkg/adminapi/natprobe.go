package adminapi

import (
	"context"
	"net/netip"

	"github.com/boxnet/boxd/pkg/nat"
)

type natProbeResponse struct {
	Reports []nat.ProbeReport `json:"reports"`
}

// handleNatProbe answers `nat-probe [--gateway <ip>]` (spec.md §6).
func (h *Handler) handleNatProbe(ctx context.Context, args []string) []byte {
	if h.deps.NatProbe == nil {
		return errorResponse(ErrorCodeInternal, "nat probing unavailable")
	}

	var gateway netip.Addr
	for i := 0; i < len(args); i++ {
		if args[i] == "--gateway" {
			if i+1 >= len(args) {
				return errorResponse(ErrorCodeBadArgument, "--gateway requires a value")
			}
			addr, err := netip.ParseAddr(args[i+1])
			if err != nil {
				return errorResponse(ErrorCodeBadArgument, "invalid gateway: "+err.Error())
			}
			gateway = addr
			i++
		}
	}

	reports := h.deps.NatProbe(ctx, gateway)
	return ok(natProbeResponse{Reports: reports})
}
