package builtin

import "github.com/lightshow/lightshow/internal/animation"

// Solid fills every pixel with one color.
type Solid struct {
	*animation.Params
	points int
}

func NewSolid(points int) *Solid {
	return &Solid{
		Params: animation.NewParams(animation.ParameterSchema{
			ID:      "color",
			Name:    "Color",
			Type:    animation.TypeColor,
			Default: []byte("[255,255,255]"),
		}),
		points: points,
	}
}

func (s *Solid) Name() string { return "solid" }

func (s *Solid) Restart() error { return nil }

func (s *Solid) Frame(float64) (animation.Frame, error) {
	f := animation.NewFrame(s.points)
	f.Fill(s.Get("color").Color())
	return f, nil
}
