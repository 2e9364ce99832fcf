package scheduler

import (
	"context"
	"fmt"

	"github.com/lightshow/lightshow/internal/animation"
	"github.com/lightshow/lightshow/internal/eventbus"
	"github.com/lightshow/lightshow/internal/host"
	"github.com/lightshow/lightshow/internal/plugins"
	"github.com/lightshow/lightshow/internal/protocol"
)

// Plugin is the view of a running animation plugin the scheduler needs.
// *host.Host implements it.
type Plugin interface {
	PluginID() string
	Name() string
	CachedSchema() []animation.ParameterSchema
	Frame(ctx context.Context, t float64) (animation.Frame, error)
	SetParameters(ctx context.Context, vs animation.Values) error
	Parameters(ctx context.Context) (animation.Values, error)
	Restart(ctx context.Context) error
	Notify(ctx context.Context, e animation.Event) error
	State() host.State
	Err() error
	Done() <-chan struct{}
	Shutdown()
}

var _ Plugin = (*host.Host)(nil)

// Launcher starts the plugin with the given manifest id.
type Launcher interface {
	Launch(ctx context.Context, id string) (Plugin, error)
}

// Router receives the active plugin as the event destination.
type Router interface {
	SetDestination(dest eventbus.Destination)
}

// HostLauncher spawns plugins found in a registry.
type HostLauncher struct {
	Registry *plugins.Registry
	Options  host.Options
}

func (l HostLauncher) Launch(ctx context.Context, id string) (Plugin, error) {
	desc, ok := l.Registry.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: unknown plugin %q", protocol.ErrConfig, id)
	}
	h, err := host.Spawn(ctx, desc, l.Options)
	if err != nil {
		return nil, err
	}
	return h, nil
}
