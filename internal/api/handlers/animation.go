package handlers

import (
	"net/http"

	"github.com/lightshow/lightshow/internal/animation"
	"github.com/lightshow/lightshow/internal/api/common"
)

type AnimationHandler struct {
	Deps *common.Dependencies
}

func NewAnimationHandler(deps *common.Dependencies) *AnimationHandler {
	return &AnimationHandler{Deps: deps}
}

// SelectRequest chooses the active animation by plugin id.
type SelectRequest struct {
	ID string `json:"id" validate:"required"`
}

// Select handles PUT /api/v1/animation
func (h *AnimationHandler) Select(w http.ResponseWriter, r *http.Request) {
	req, ok := common.DecodeJSON[SelectRequest](w, r)
	if !ok {
		return
	}
	if _, found := h.Deps.Plugins.Get(req.ID); !found {
		common.SendError(w, r, http.StatusNotFound, "NOT_FOUND", "Plugin not found", map[string]string{"id": req.ID})
		return
	}
	if common.HandleControlError(w, r, h.Deps.Controller.Select(r.Context(), req.ID)) {
		return
	}
	h.Deps.Logger.Info("Animation selected", "animation", req.ID)
	common.SendJSON(w, http.StatusAccepted, h.Deps.Controller.Status())
}

// Restart handles POST /api/v1/animation/restart
func (h *AnimationHandler) Restart(w http.ResponseWriter, r *http.Request) {
	if common.HandleControlError(w, r, h.Deps.Controller.Restart(r.Context())) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Respawn handles POST /api/v1/animation/respawn
func (h *AnimationHandler) Respawn(w http.ResponseWriter, r *http.Request) {
	if common.HandleControlError(w, r, h.Deps.Controller.Respawn(r.Context())) {
		return
	}
	common.SendJSON(w, http.StatusAccepted, h.Deps.Controller.Status())
}

// Schema handles GET /api/v1/animation/schema
func (h *AnimationHandler) Schema(w http.ResponseWriter, r *http.Request) {
	schema, err := h.Deps.Controller.Schema(r.Context())
	if common.HandleControlError(w, r, err) {
		return
	}
	common.SendJSON(w, http.StatusOK, schema)
}

// GetParameters handles GET /api/v1/animation/parameters
func (h *AnimationHandler) GetParameters(w http.ResponseWriter, r *http.Request) {
	vs, err := h.Deps.Controller.Parameters(r.Context())
	if common.HandleControlError(w, r, err) {
		return
	}
	common.SendJSON(w, http.StatusOK, vs)
}

// SetParameters handles PUT /api/v1/animation/parameters. The update is
// queued and applied before the next frame.
func (h *AnimationHandler) SetParameters(w http.ResponseWriter, r *http.Request) {
	raw, ok := common.DecodeJSON[animation.RawValues](w, r)
	if !ok {
		return
	}
	schema, err := h.Deps.Controller.Schema(r.Context())
	if common.HandleControlError(w, r, err) {
		return
	}
	vs, err := animation.DecodeValues(schema, raw)
	if err != nil {
		common.SendError(w, r, http.StatusBadRequest, "INVALID_PARAMETERS", err.Error(), nil)
		return
	}
	if common.HandleControlError(w, r, h.Deps.Controller.SetParameters(r.Context(), vs)) {
		return
	}
	common.SendJSON(w, http.StatusAccepted, vs)
}
