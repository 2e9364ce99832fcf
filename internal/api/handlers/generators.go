package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lightshow/lightshow/internal/animation"
	"github.com/lightshow/lightshow/internal/api/common"
	"github.com/lightshow/lightshow/internal/generators"
)

type GeneratorHandler struct {
	Deps *common.Dependencies
}

func NewGeneratorHandler(deps *common.Dependencies) *GeneratorHandler {
	return &GeneratorHandler{Deps: deps}
}

// GeneratorResponse describes one event generator.
type GeneratorResponse struct {
	Name       string                      `json:"name"`
	Schema     []animation.ParameterSchema `json:"schema"`
	Parameters animation.Values            `json:"parameters"`
}

func (h *GeneratorHandler) lookup(w http.ResponseWriter, r *http.Request) (generators.Generator, bool) {
	name := chi.URLParam(r, "name")
	g, ok := h.Deps.Generators.Get(name)
	if !ok {
		common.SendError(w, r, http.StatusNotFound, "NOT_FOUND", "Generator not found", map[string]string{"name": name})
	}
	return g, ok
}

// List handles GET /api/v1/generators
func (h *GeneratorHandler) List(w http.ResponseWriter, r *http.Request) {
	gens := h.Deps.Generators.List()
	out := make([]GeneratorResponse, 0, len(gens))
	for _, g := range gens {
		out = append(out, GeneratorResponse{Name: g.Name(), Schema: g.Schema(), Parameters: g.Parameters()})
	}
	common.SendListResponse(w, out, len(out))
}

// GetParameters handles GET /api/v1/generators/{name}/parameters
func (h *GeneratorHandler) GetParameters(w http.ResponseWriter, r *http.Request) {
	g, ok := h.lookup(w, r)
	if !ok {
		return
	}
	common.SendJSON(w, http.StatusOK, g.Parameters())
}

// SetParameters handles PUT /api/v1/generators/{name}/parameters
func (h *GeneratorHandler) SetParameters(w http.ResponseWriter, r *http.Request) {
	g, ok := h.lookup(w, r)
	if !ok {
		return
	}
	raw, ok := common.DecodeJSON[animation.RawValues](w, r)
	if !ok {
		return
	}
	vs, err := animation.DecodeValues(g.Schema(), raw)
	if err == nil {
		err = g.SetParameters(vs)
	}
	if err != nil {
		common.SendError(w, r, http.StatusBadRequest, "INVALID_PARAMETERS", err.Error(), nil)
		return
	}
	common.SendJSON(w, http.StatusOK, g.Parameters())
}

// Restart handles POST /api/v1/generators/{name}/restart
func (h *GeneratorHandler) Restart(w http.ResponseWriter, r *http.Request) {
	g, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := g.Restart(); err != nil {
		common.SendError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error(), nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
