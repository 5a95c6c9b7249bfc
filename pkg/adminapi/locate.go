package adminapi

import (
	"github.com/boxnet/boxd/pkg/boxid"
)

type userAggregateResponse struct {
	UserUUID string      `json:"userUUID"`
	Nodes    []nodeEntry `json:"nodes"`
}

type nodeEntry struct {
	NodeUUID   string `json:"nodeUUID"`
	Online     bool   `json:"online"`
	LastSeenMs int64  `json:"lastSeenMs"`
}

// handleLocate answers `locate <uuid>`: first as a node id, then as a user
// id aggregate, per spec.md §6 ("node record, or user aggregate, or
// {status:error, message:"node-not-found"}").
func (h *Handler) handleLocate(args []string) []byte {
	if len(args) != 1 {
		return errorResponse(ErrorCodeBadArgument, "usage: locate <uuid>")
	}
	if h.deps.Location == nil {
		return errorResponse(ErrorCodeInternal, "location index unavailable")
	}

	id, err := boxid.Parse(args[0])
	if err != nil {
		return errorResponse(ErrorCodeBadArgument, "invalid uuid: "+err.Error())
	}

	if rec, found := h.deps.Location.Get(id); found {
		return ok(rec)
	}

	if recs := h.deps.Location.GetByUser(id); len(recs) > 0 {
		agg := userAggregateResponse{UserUUID: id.String()}
		for _, r := range recs {
			agg.Nodes = append(agg.Nodes, nodeEntry{
				NodeUUID:   r.NodeID.String(),
				Online:     r.Online,
				LastSeenMs: r.LastSeenMs,
			})
		}
		return ok(agg)
	}

	return errorResponse(ErrorCodeNotFound, "node-not-found")
}
