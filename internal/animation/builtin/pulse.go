package builtin

import (
	"math"

	"github.com/lightshow/lightshow/internal/animation"
)

// Pulse flashes on every beat and decays exponentially between beats.
type Pulse struct {
	*animation.Params
	points int
	level  float64
	last   float64
	primed bool
}

func NewPulse(points int) *Pulse {
	return &Pulse{
		Params: animation.NewParams(
			animation.ParameterSchema{
				ID:      "color",
				Name:    "Color",
				Type:    animation.TypeColor,
				Default: []byte("[255,0,64]"),
			},
			animation.ParameterSchema{
				ID:          "decay",
				Name:        "Decay",
				Description: "Fade rate per second",
				Type:        animation.TypeFloat,
				Min:         animation.Bound(0.1),
				Max:         animation.Bound(20),
				Default:     []byte("4"),
			},
		),
		points: points,
	}
}

func (p *Pulse) Name() string { return "pulse" }

func (p *Pulse) Restart() error {
	p.level, p.primed = 0, false
	return nil
}

func (p *Pulse) HandleEvent(e animation.Event) {
	if beat, ok := e.(animation.BeatEvent); ok {
		strength := beat.Strength
		if strength <= 0 || strength > 1 {
			strength = 1
		}
		p.level = math.Max(p.level, strength)
	}
}

func (p *Pulse) Frame(t float64) (animation.Frame, error) {
	if p.primed && t > p.last {
		p.level *= math.Exp(-p.Get("decay").Float() * (t - p.last))
	}
	p.last, p.primed = t, true

	f := animation.NewFrame(p.points)
	f.Fill(p.Get("color").Color().Scale(p.level))
	return f, nil
}
