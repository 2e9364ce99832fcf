package api

import (
	"net/http"
	"time"

	"github.com/lightshow/lightshow/internal/api/common"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	deps *common.Dependencies
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(deps *common.Dependencies) *HealthHandler {
	return &HealthHandler{deps: deps}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadinessResponse represents the readiness check response
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// Health handles GET /health (liveness probe)
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	common.SendJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
	})
}

// Ready handles GET /ready. The controller is ready when plugins are
// installed and the active animation is not in a failed state.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	response := ReadinessResponse{
		Status:    "ready",
		Timestamp: time.Now(),
		Checks:    map[string]string{"plugins": "ok", "animation": "ok"},
	}
	status := http.StatusOK

	if len(h.deps.Plugins.List()) == 0 {
		response.Checks["plugins"] = "none installed"
		response.Status = "not_ready"
		status = http.StatusServiceUnavailable
	}
	if st := h.deps.Controller.Status(); st.State == "failed" {
		response.Checks["animation"] = st.State
		response.Status = "not_ready"
		response.Error = st.Error
		status = http.StatusServiceUnavailable
	}

	common.SendJSON(w, status, response)
}
