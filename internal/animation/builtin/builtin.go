// Package builtin contains the animations shipped with the stock plugin.
package builtin

import (
	"fmt"
	"slices"

	"github.com/lightshow/lightshow/internal/animation"
)

type constructor func(points int) animation.Animation

var registry = map[string]constructor{
	"diagnostic": func(points int) animation.Animation { return NewDiagnostic(points) },
	"solid":      func(points int) animation.Animation { return NewSolid(points) },
	"pulse":      func(points int) animation.Animation { return NewPulse(points) },
	"spectrum":   func(points int) animation.Animation { return NewSpectrum(points) },
}

// Names lists the available animations.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// New builds the named animation for points lights.
func New(name string, points int) (animation.Animation, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown animation %q (available: %v)", name, Names())
	}
	if points <= 0 {
		return nil, fmt.Errorf("animation %q: point count must be positive, got %d", name, points)
	}
	return ctor(points), nil
}

// Compose wraps a base animation with the standard speed, brightness and
// gate controls.
func Compose(base animation.Animation) animation.Animation {
	return animation.NewGate(animation.NewBrightness(animation.NewSpeed(base)))
}
