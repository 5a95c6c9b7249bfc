package adminapi

type statusResponse struct {
	NodeUUID      string `json:"nodeUUID"`
	UserUUID      string `json:"userUUID"`
	Port          uint16 `json:"port"`
	HasGlobalIPv6 bool   `json:"hasGlobalIPv6"`
	QueueRoot     string `json:"queueRoot,omitempty"`
	QueueCount    int    `json:"queueCount"`
	Objects       int    `json:"objects"`
	PortMapping   any    `json:"portMapping,omitempty"`
	OnlineSinceMs int64  `json:"onlineSince"`
	LastPresenceMs int64 `json:"lastPresenceUpdate,omitempty"`
}

func (h *Handler) handleStatus() []byte {
	queueCount, objectCount := 0, 0
	if h.deps.Queue != nil {
		if n, err := h.deps.Queue.QueueCount(); err == nil {
			queueCount = n
		}
		if n, err := h.deps.Queue.ObjectCount(); err == nil {
			objectCount = n
		}
	}

	resp := statusResponse{
		NodeUUID:      h.deps.NodeID.String(),
		UserUUID:      h.deps.UserID.String(),
		Port:          h.deps.Port,
		QueueCount:    queueCount,
		Objects:       objectCount,
		OnlineSinceMs: h.deps.StartedAt.UnixMilli(),
	}
	if h.deps.HasGlobalIPv6 != nil {
		resp.HasGlobalIPv6 = h.deps.HasGlobalIPv6()
	}
	if h.deps.CurrentMapping != nil {
		if pm, ok := h.deps.CurrentMapping(); ok {
			resp.PortMapping = pm
		}
	}
	if h.deps.LastPresenceUpdate != nil {
		if t := h.deps.LastPresenceUpdate(); !t.IsZero() {
			resp.LastPresenceMs = t.UnixMilli()
		}
	}
	return ok(resp)
}

type statsResponse struct {
	QueueCount int   `json:"queueCount"`
	Objects    int   `json:"objects"`
	UptimeMs   int64 `json:"uptimeMs"`
}

// handleStats answers a subset of status focused on counts and throughput
// (spec.md §6: "subset focused on counts and throughput").
func (h *Handler) handleStats() []byte {
	queueCount, objectCount := 0, 0
	if h.deps.Queue != nil {
		if n, err := h.deps.Queue.QueueCount(); err == nil {
			queueCount = n
		}
		if n, err := h.deps.Queue.ObjectCount(); err == nil {
			objectCount = n
		}
	}
	uptime := int64(0)
	if !h.deps.StartedAt.IsZero() {
		uptime = nowMs() - h.deps.StartedAt.UnixMilli()
	}
	return ok(statsResponse{QueueCount: queueCount, Objects: objectCount, UptimeMs: uptime})
}
