package animation

import (
	"maps"
	"slices"
)

// layer adds its own parameters in front of an inner animation. Values for
// ids it owns stay here; everything else is forwarded.
type layer struct {
	inner Animation
	own   *Params
}

func (l *layer) Name() string {
	return l.inner.Name()
}

func (l *layer) Schema() []ParameterSchema {
	return append(l.own.Schema(), l.inner.Schema()...)
}

func (l *layer) Parameters() Values {
	vs := l.inner.Parameters()
	if vs == nil {
		vs = make(Values)
	}
	maps.Copy(vs, l.own.Parameters())
	return vs
}

func (l *layer) SetParameters(vs Values) error {
	own, rest := l.split(vs)
	if err := CheckValues(l.own.schema, own); err != nil {
		return err
	}
	if len(rest) > 0 {
		if err := l.inner.SetParameters(rest); err != nil {
			return err
		}
	}
	return l.own.SetParameters(own)
}

func (l *layer) Restart() error {
	return l.inner.Restart()
}

func (l *layer) HandleEvent(e Event) {
	if h, ok := l.inner.(EventHandler); ok {
		h.HandleEvent(e)
	}
}

// Unwrap returns the wrapped animation.
func (l *layer) Unwrap() Animation {
	return l.inner
}

func (l *layer) split(vs Values) (own, rest Values) {
	own, rest = make(Values), make(Values)
	for _, k := range slices.Sorted(maps.Keys(vs)) {
		if l.own.Has(k) {
			own[k] = vs[k]
		} else {
			rest[k] = vs[k]
		}
	}
	return own, rest
}

// Brightness scales every pixel of the inner animation.
type Brightness struct {
	layer
}

// NewBrightness wraps inner with a "brightness" parameter in [0, 1].
func NewBrightness(inner Animation) *Brightness {
	return &Brightness{layer{inner: inner, own: NewParams(ParameterSchema{
		ID:      "brightness",
		Name:    "Brightness",
		Type:    TypeFloat,
		Min:     Bound(0),
		Max:     Bound(1),
		Default: []byte("1"),
	})}}
}

func (b *Brightness) Frame(t float64) (Frame, error) {
	f, err := b.inner.Frame(t)
	if err != nil {
		return f, err
	}
	level := b.own.Get("brightness").Float()
	if level >= 1 {
		return f, nil
	}
	for i, c := range f.Pixels {
		f.Pixels[i] = c.Scale(level)
	}
	return f, nil
}

// Gate blanks the output while its "enabled" parameter is false.
type Gate struct {
	layer
}

// NewGate wraps inner with an "enabled" switch.
func NewGate(inner Animation) *Gate {
	return &Gate{layer{inner: inner, own: NewParams(ParameterSchema{
		ID:      "enabled",
		Name:    "Enabled",
		Type:    TypeBool,
		Default: []byte("true"),
	})}}
}

func (g *Gate) Frame(t float64) (Frame, error) {
	f, err := g.inner.Frame(t)
	if err != nil {
		return f, err
	}
	if !g.own.Get("enabled").Bool() {
		f.Fill(Black)
	}
	return f, nil
}

// Speed rescales time for the inner animation. Changing the speed keeps
// the inner timeline continuous. After Restart the next frame's time
// becomes the new origin, so the inner animation starts again at zero.
type Speed struct {
	layer
	origin float64
	offset float64
	last   float64
	rebase bool
}

// NewSpeed wraps inner with a "speed" multiplier in [0, 10].
func NewSpeed(inner Animation) *Speed {
	return &Speed{layer: layer{inner: inner, own: NewParams(ParameterSchema{
		ID:      "speed",
		Name:    "Speed",
		Type:    TypeFloat,
		Min:     Bound(0),
		Max:     Bound(10),
		Default: []byte("1"),
	})}}
}

func (s *Speed) local(t float64) float64 {
	return s.offset + (t-s.origin)*s.own.Get("speed").Float()
}

func (s *Speed) SetParameters(vs Values) error {
	if s.rebase {
		return s.layer.SetParameters(vs)
	}
	pinned := s.local(s.last)
	if err := s.layer.SetParameters(vs); err != nil {
		return err
	}
	s.offset, s.origin = pinned, s.last
	return nil
}

func (s *Speed) Restart() error {
	s.offset, s.rebase = 0, true
	return s.inner.Restart()
}

func (s *Speed) Frame(t float64) (Frame, error) {
	if s.rebase {
		s.origin, s.rebase = t, false
	}
	s.last = t
	return s.inner.Frame(s.local(t))
}
