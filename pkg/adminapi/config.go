package adminapi

import "strings"

// handleReload answers `reload [path]` by re-reading configuration and
// returning the new effective values (spec.md §6).
func (h *Handler) handleReload(args []string) []byte {
	if h.deps.Reload == nil {
		return errorResponse(ErrorCodeInternal, "reload unavailable")
	}
	path := ""
	if len(args) > 0 {
		path = args[0]
	}
	cfg, err := h.deps.Reload(path)
	if err != nil {
		return errorResponse(ErrorCodeInternal, err.Error())
	}
	return ok(cfg)
}

// handleLocationSummary answers `location-summary` (spec.md §6).
func (h *Handler) handleLocationSummary() []byte {
	if h.deps.Location == nil {
		return errorResponse(ErrorCodeInternal, "location index unavailable")
	}
	return ok(struct {
		Summary any `json:"summary"`
	}{Summary: h.deps.Location.Snapshot()})
}

// handleSetLogTarget answers `set-log-target <spec>`, where spec is one of
// "stderr", "stdout", or "file:<path>" (spec.md §6).
func (h *Handler) handleSetLogTarget(args []string) []byte {
	if len(args) != 1 {
		return errorResponse(ErrorCodeBadArgument, "usage: set-log-target <stderr|stdout|file:path>")
	}
	target := args[0]
	if target != "stderr" && target != "stdout" && !strings.HasPrefix(target, "file:") {
		return errorResponse(ErrorCodeBadArgument, "unrecognized log target: "+target)
	}
	if h.deps.SetLogTarget == nil {
		return errorResponse(ErrorCodeInternal, "log target switching unavailable")
	}
	if err := h.deps.SetLogTarget(target); err != nil {
		return errorResponse(ErrorCodeInternal, err.Error())
	}
	return ok(struct {
		Target string `json:"target"`
	}{Target: target})
}
