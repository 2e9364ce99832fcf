package handlers

import (
	"net/http"

	"github.com/lightshow/lightshow/internal/api/common"
	"github.com/lightshow/lightshow/internal/auth"
	"github.com/lightshow/lightshow/internal/eventbus"
	"github.com/lightshow/lightshow/internal/plugins"
	"github.com/lightshow/lightshow/internal/scheduler"
)

type SystemHandler struct {
	Deps *common.Dependencies
}

func NewSystemHandler(deps *common.Dependencies) *SystemHandler {
	return &SystemHandler{Deps: deps}
}

// Login handles POST /api/v1/login
func (h *SystemHandler) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := common.DecodeJSON[auth.LoginRequest](w, r)
	if !ok {
		return
	}

	response, err := h.Deps.Auth.Login(req.Username, req.Password)
	if err != nil {
		h.Deps.Logger.Warn("Login failed", "user", req.Username, "ip", r.RemoteAddr)
		common.SendError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid credentials", nil)
		return
	}

	common.SendJSON(w, http.StatusOK, response)
}

// PluginResponse describes an installed plugin.
type PluginResponse struct {
	ID           string               `json:"id"`
	Name         string               `json:"name"`
	Version      string               `json:"version,omitempty"`
	Description  string               `json:"description,omitempty"`
	Capabilities []plugins.Capability `json:"capabilities"`
	Active       bool                 `json:"active"`
}

// ListPlugins handles GET /api/v1/plugins
func (h *SystemHandler) ListPlugins(w http.ResponseWriter, r *http.Request) {
	active := h.Deps.Controller.Status().Animation
	list := h.Deps.Plugins.List()

	out := make([]PluginResponse, 0, len(list))
	for _, d := range list {
		out = append(out, PluginResponse{
			ID:           d.ID(),
			Name:         d.Manifest.Name,
			Version:      d.Manifest.Version,
			Description:  d.Manifest.Description,
			Capabilities: d.Manifest.Capabilities,
			Active:       d.ID() == active,
		})
	}
	common.SendListResponse(w, out, len(out))
}

// StatusResponse is the controller state reported to the UI.
type StatusResponse struct {
	Scheduler scheduler.Status `json:"scheduler"`
	EventBus  *eventbus.Stats  `json:"eventbus,omitempty"`
}

// Status handles GET /api/v1/status
func (h *SystemHandler) Status(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Scheduler: h.Deps.Controller.Status()}
	if h.Deps.Bus != nil {
		stats := h.Deps.Bus.Stats()
		resp.EventBus = &stats
	}
	common.SendJSON(w, http.StatusOK, resp)
}
