// Package generators turns external inputs (audio, MIDI) into animation
// events. Each generator owns its parameters and can be restarted without
// being rebuilt.
package generators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lightshow/lightshow/internal/animation"
)

// Generator produces events from an input until ctx is cancelled.
type Generator interface {
	Name() string
	Schema() []animation.ParameterSchema
	Parameters() animation.Values
	SetParameters(animation.Values) error
	// Restart clears internal estimator state.
	Restart() error
	Run(ctx context.Context, emit func(animation.Event)) error
}

// Manager runs a fixed set of generators and forwards their events.
type Manager struct {
	mu      sync.RWMutex
	gens    map[string]Generator
	order   []string
	publish func(animation.Event)
	logger  *slog.Logger
}

// NewManager creates a manager publishing through publish.
func NewManager(publish func(animation.Event), logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		gens:    make(map[string]Generator),
		publish: publish,
		logger:  logger.With("component", "generators"),
	}
}

// Add registers g. Names must be unique.
func (m *Manager) Add(g Generator) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.gens[g.Name()]; dup {
		return fmt.Errorf("generator %q already registered", g.Name())
	}
	m.gens[g.Name()] = g
	m.order = append(m.order, g.Name())
	return nil
}

// Get returns the named generator.
func (m *Manager) Get(name string) (Generator, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.gens[name]
	return g, ok
}

// List returns generators in registration order.
func (m *Manager) List() []Generator {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Generator, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.gens[name])
	}
	return out
}

// Run starts every generator and waits for all of them to stop.
func (m *Manager) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, g := range m.List() {
		wg.Add(1)
		go func(g Generator) {
			defer wg.Done()
			m.logger.Info("Starting generator", "generator", g.Name())
			err := g.Run(ctx, m.publish)
			if err != nil && !errors.Is(err, context.Canceled) {
				m.logger.Error("Generator stopped", "generator", g.Name(), "error", err)
				return
			}
			m.logger.Info("Generator stopped", "generator", g.Name())
		}(g)
	}
	wg.Wait()
}
