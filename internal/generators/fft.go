package generators

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"
	"sync"

	algofft "github.com/MeKo-Christian/algo-fft"

	"github.com/lightshow/lightshow/internal/animation"
	"github.com/lightshow/lightshow/internal/audio"
)

// FFT emits log-spaced band magnitudes for every audio block.
type FFT struct {
	*animation.Params
	in <-chan audio.Block

	mu     sync.Mutex
	size   int
	plan   *algofft.Plan[complex128]
	window []float64
	input  []complex128
	output []complex128
	smooth []float64
}

// NewFFT reads blocks from in and reports bands bands by default.
func NewFFT(in <-chan audio.Block, bands int) *FFT {
	if bands <= 0 {
		bands = 16
	}
	return &FFT{
		Params: animation.NewParams(
			animation.ParameterSchema{
				ID:      "bands",
				Name:    "Bands",
				Type:    animation.TypeInt,
				Min:     animation.Bound(1),
				Max:     animation.Bound(64),
				Default: []byte(fmt.Sprint(bands)),
			},
			animation.ParameterSchema{
				ID:      "gain",
				Name:    "Gain",
				Type:    animation.TypeFloat,
				Min:     animation.Bound(0),
				Max:     animation.Bound(100),
				Default: []byte("4"),
			},
			animation.ParameterSchema{
				ID:          "smoothing",
				Name:        "Smoothing",
				Description: "Weight of the previous band value",
				Type:        animation.TypeFloat,
				Min:         animation.Bound(0),
				Max:         animation.Bound(0.99),
				Default:     []byte("0.5"),
			},
		),
		in: in,
	}
}

func (f *FFT) Name() string { return "fft" }

func (f *FFT) Restart() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.smooth = nil
	return nil
}

func (f *FFT) Run(ctx context.Context, emit func(animation.Event)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case block, ok := <-f.in:
			if !ok {
				return nil
			}
			e, err := f.Process(block)
			if err != nil {
				return err
			}
			emit(e)
		}
	}
}

// Process transforms one block. Blocks are truncated to the largest power
// of two that fits.
func (f *FFT) Process(block audio.Block) (animation.FFTEvent, error) {
	n := 1
	for n*2 <= len(block) {
		n *= 2
	}
	if n < 2 {
		return animation.FFTEvent{}, fmt.Errorf("fft: block of %d samples is too short", len(block))
	}

	bands := int(f.Get("bands").Int())
	gain := f.Get("gain").Float()
	alpha := f.Get("smoothing").Float()

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.prepare(n); err != nil {
		return animation.FFTEvent{}, err
	}
	for i := 0; i < n; i++ {
		f.input[i] = complex(block[i]*f.window[i], 0)
	}
	if err := f.plan.Forward(f.output, f.input); err != nil {
		return animation.FFTEvent{}, fmt.Errorf("fft forward: %w", err)
	}

	if len(f.smooth) != bands {
		f.smooth = make([]float64, bands)
	}
	half := n / 2
	out := make([]float64, bands)
	for b := 0; b < bands; b++ {
		lo, hi := bandEdges(b, bands, half)
		var sum float64
		for k := lo; k < hi; k++ {
			sum += cmplx.Abs(f.output[k])
		}
		level := sum / float64(hi-lo) / float64(half) * gain
		level = math.Min(1, level)
		f.smooth[b] = alpha*f.smooth[b] + (1-alpha)*level
		out[b] = f.smooth[b]
	}
	return animation.FFTEvent{Bands: out}, nil
}

func (f *FFT) prepare(n int) error {
	if f.size == n {
		return nil
	}
	plan, err := algofft.NewPlan64(n)
	if err != nil {
		return fmt.Errorf("fft init plan: %w", err)
	}
	f.plan = plan
	f.size = n
	f.input = make([]complex128, n)
	f.output = make([]complex128, n)
	f.window = make([]float64, n)
	for i := range f.window {
		f.window[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return nil
}

// bandEdges splits bins [1, half) logarithmically. Every band covers at
// least one bin.
func bandEdges(b, bands, half int) (lo, hi int) {
	edge := func(i int) int {
		return int(math.Round(math.Pow(float64(half), float64(i)/float64(bands))))
	}
	lo, hi = edge(b), edge(b+1)
	if lo < 1 {
		lo = 1
	}
	if hi <= lo {
		hi = lo + 1
	}
	if hi > half {
		hi = half
	}
	if lo >= hi {
		lo = hi - 1
	}
	return lo, hi
}
