package animation

import "fmt"

// Frame is one color per light point. Its length always equals the point
// count of the lights configuration it was rendered for.
type Frame struct {
	Pixels []Color `json:"pixels"`
}

// NewFrame returns an all-black frame of the given length.
func NewFrame(points int) Frame {
	return Frame{Pixels: make([]Color, points)}
}

// Len returns the number of pixels.
func (f Frame) Len() int {
	return len(f.Pixels)
}

// Set assigns pixel i. An index outside the frame is a programming error
// and panics.
func (f Frame) Set(i int, c Color) {
	if i < 0 || i >= len(f.Pixels) {
		panic(fmt.Sprintf("animation: pixel index %d out of range [0,%d)", i, len(f.Pixels)))
	}
	f.Pixels[i] = c
}

// Fill sets every pixel to c.
func (f Frame) Fill(c Color) {
	for i := range f.Pixels {
		f.Pixels[i] = c
	}
}

// Clone returns a deep copy.
func (f Frame) Clone() Frame {
	out := Frame{Pixels: make([]Color, len(f.Pixels))}
	copy(out.Pixels, f.Pixels)
	return out
}

// Check verifies the frame matches the configured point count.
func (f Frame) Check(points int) error {
	if len(f.Pixels) != points {
		return fmt.Errorf("frame has %d pixels, want %d", len(f.Pixels), points)
	}
	return nil
}
