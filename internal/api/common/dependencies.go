package common

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/lightshow/lightshow/internal/animation"
	"github.com/lightshow/lightshow/internal/auth"
	"github.com/lightshow/lightshow/internal/eventbus"
	"github.com/lightshow/lightshow/internal/generators"
	"github.com/lightshow/lightshow/internal/plugins"
	"github.com/lightshow/lightshow/internal/scheduler"
)

// Controller is the part of the scheduler the API drives.
type Controller interface {
	Select(ctx context.Context, id string) error
	Respawn(ctx context.Context) error
	Restart(ctx context.Context) error
	SetParameters(ctx context.Context, vs animation.Values) error
	Parameters(ctx context.Context) (animation.Values, error)
	Schema(ctx context.Context) ([]animation.ParameterSchema, error)
	Status() scheduler.Status
}

// Catalog lists installed plugins.
type Catalog interface {
	Get(id string) (*plugins.Descriptor, bool)
	List() []*plugins.Descriptor
}

// Generators looks up event generators by name.
type Generators interface {
	Get(name string) (generators.Generator, bool)
	List() []generators.Generator
}

// Dependencies holds common dependencies for API handlers
type Dependencies struct {
	Controller Controller
	Plugins    Catalog
	Generators Generators
	// Bus is optional; its counters are included in the status response.
	Bus *eventbus.Bus
	// Preview serves the frame preview websocket; nil disables it.
	Preview http.Handler
	Auth    *auth.Service
	Logger  *slog.Logger
}
