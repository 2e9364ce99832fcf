// Package animation defines the contract between the plugin runtime and
// the animations it hosts, along with the value types shared with the host:
// colors, frames, parameter schemas and events.
package animation

// Animation produces frames for a fixed set of light points. The runtime
// calls every method from a single goroutine.
type Animation interface {
	Name() string
	Schema() []ParameterSchema
	Parameters() Values
	// SetParameters applies values atomically. Errors wrap
	// ErrInvalidParameter when a value is rejected.
	SetParameters(Values) error
	// Frame renders the frame for time t in seconds. The result length
	// must equal the configured point count.
	Frame(t float64) (Frame, error)
	Restart() error
}

// EventHandler is implemented by animations that react to events.
type EventHandler interface {
	HandleEvent(Event)
}
