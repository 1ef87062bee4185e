package handler

import (
	"net/http"

	"miniups-gateway/pkg/response"
)

// BreakerReporter exposes the upstream circuit breaker state.
type BreakerReporter interface {
	BreakerState() string
}

type HealthHandler struct {
	upstream BreakerReporter
	version  string
}

func NewHealthHandler(upstream BreakerReporter, version string) *HealthHandler {
	return &HealthHandler{upstream: upstream, version: version}
}

type healthResponse struct {
	Status   string `json:"status"`
	Service  string `json:"service"`
	Version  string `json:"version"`
	Upstream string `json:"upstream"`
}

// Health answers 200 while the breaker is closed or half-open and 503 once
// it has opened.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	state := h.upstream.BreakerState()
	body := &healthResponse{
		Status:   "healthy",
		Service:  "miniups-gateway",
		Version:  h.version,
		Upstream: state,
	}
	if state == "open" {
		body.Status = "degraded"
		response.JSON(w, http.StatusServiceUnavailable, body)
		return
	}
	response.JSON(w, http.StatusOK, body)
}
