package builtin

import "github.com/lightshow/lightshow/internal/animation"

// Spectrum spreads the latest FFT bands across the strip.
type Spectrum struct {
	*animation.Params
	points int
	bands  []float64
}

func NewSpectrum(points int) *Spectrum {
	return &Spectrum{
		Params: animation.NewParams(
			animation.ParameterSchema{
				ID:      "low",
				Name:    "Low color",
				Type:    animation.TypeColor,
				Default: []byte("[0,0,255]"),
			},
			animation.ParameterSchema{
				ID:      "high",
				Name:    "High color",
				Type:    animation.TypeColor,
				Default: []byte("[255,0,0]"),
			},
			animation.ParameterSchema{
				ID:      "gain",
				Name:    "Gain",
				Type:    animation.TypeFloat,
				Min:     animation.Bound(0),
				Max:     animation.Bound(50),
				Default: []byte("1"),
			},
		),
		points: points,
	}
}

func (s *Spectrum) Name() string { return "spectrum" }

func (s *Spectrum) Restart() error {
	s.bands = nil
	return nil
}

func (s *Spectrum) HandleEvent(e animation.Event) {
	if fft, ok := e.(animation.FFTEvent); ok {
		s.bands = append(s.bands[:0], fft.Bands...)
	}
}

func (s *Spectrum) Frame(float64) (animation.Frame, error) {
	f := animation.NewFrame(s.points)
	if len(s.bands) == 0 {
		return f, nil
	}
	low, high := s.Get("low").Color(), s.Get("high").Color()
	gain := s.Get("gain").Float()
	for i := range f.Pixels {
		band := i * len(s.bands) / s.points
		level := s.bands[band] * gain
		f.Pixels[i] = blend(low, high, float64(i)/float64(s.points)).Scale(level)
	}
	return f, nil
}

func blend(a, b animation.Color, t float64) animation.Color {
	mix := func(x, y uint8) uint8 {
		return uint8(float64(x) + (float64(y)-float64(x))*t)
	}
	return animation.Color{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B)}
}
