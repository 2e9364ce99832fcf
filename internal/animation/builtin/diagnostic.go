package builtin

import (
	"math"

	"github.com/lightshow/lightshow/internal/animation"
)

// Diagnostic walks a single white pixel along the strip at four points per
// second.
type Diagnostic struct {
	*animation.Params
	points int
}

func NewDiagnostic(points int) *Diagnostic {
	return &Diagnostic{Params: animation.NewParams(), points: points}
}

func (d *Diagnostic) Name() string { return "diagnostic" }

func (d *Diagnostic) Restart() error { return nil }

func (d *Diagnostic) Frame(t float64) (animation.Frame, error) {
	f := animation.NewFrame(d.points)
	f.Set(litIndex(t, d.points), animation.White)
	return f, nil
}

func litIndex(t float64, points int) int {
	i := int(math.Floor(math.Mod(t*4, float64(points))))
	if i < 0 {
		i += points
	}
	if i >= points {
		i = 0
	}
	return i
}
