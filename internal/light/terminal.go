package light

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/lightshow/lightshow/internal/animation"
)

// Terminal draws frames as a single row of colored blocks, redrawn in place.
type Terminal struct {
	mu      sync.Mutex
	w       io.Writer
	columns int
	styles  map[animation.Color]lipgloss.Style
}

// NewTerminal writes to w, downsampling frames to at most columns cells.
func NewTerminal(w io.Writer, columns int) *Terminal {
	if columns <= 0 {
		columns = 100
	}
	return &Terminal{w: w, columns: columns, styles: make(map[animation.Color]lipgloss.Style)}
}

func (t *Terminal) style(c animation.Color) lipgloss.Style {
	s, ok := t.styles[c]
	if !ok {
		s = lipgloss.NewStyle().Foreground(lipgloss.Color(c.Hex()))
		if len(t.styles) < 4096 {
			t.styles[c] = s
		}
	}
	return s
}

// Line renders the frame without the carriage return.
func (t *Terminal) Line(f animation.Frame) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	cells := min(t.columns, f.Len())
	var b strings.Builder
	for i := 0; i < cells; i++ {
		c := f.Pixels[i*f.Len()/cells]
		b.WriteString(t.style(c).Render("█"))
	}
	return b.String()
}

func (t *Terminal) Render(_ context.Context, f animation.Frame) error {
	line := t.Line(f)
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := fmt.Fprint(t.w, "\r"+line)
	return err
}

func (t *Terminal) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := fmt.Fprintln(t.w)
	return err
}
