package generators

import (
	"context"
	"math"
	"slices"
	"sync"

	"github.com/lightshow/lightshow/internal/animation"
	"github.com/lightshow/lightshow/internal/audio"
)

const (
	energyHistory = 43
	maxIntervals  = 8
)

// Beat detects onsets from block energy against a running average and
// estimates tempo from the median inter-onset interval.
type Beat struct {
	*animation.Params
	in         <-chan audio.Block
	sampleRate int

	mu        sync.Mutex
	history   []float64
	clock     float64
	lastOnset float64
	intervals []float64
}

// NewBeat reads blocks from in, sampled at sampleRate.
func NewBeat(in <-chan audio.Block, sampleRate int) *Beat {
	return &Beat{
		Params: animation.NewParams(
			animation.ParameterSchema{
				ID:          "sensitivity",
				Name:        "Sensitivity",
				Description: "Energy ratio over the running average that counts as a beat",
				Type:        animation.TypeFloat,
				Min:         animation.Bound(1.05),
				Max:         animation.Bound(5),
				Default:     []byte("1.4"),
			},
			animation.ParameterSchema{
				ID:      "min_bpm",
				Name:    "Minimum BPM",
				Type:    animation.TypeFloat,
				Min:     animation.Bound(30),
				Max:     animation.Bound(300),
				Default: []byte("70"),
			},
			animation.ParameterSchema{
				ID:      "max_bpm",
				Name:    "Maximum BPM",
				Type:    animation.TypeFloat,
				Min:     animation.Bound(30),
				Max:     animation.Bound(300),
				Default: []byte("180"),
			},
		),
		in:         in,
		sampleRate: sampleRate,
		lastOnset:  math.Inf(-1),
	}
}

func (b *Beat) Name() string { return "beat" }

func (b *Beat) Restart() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = b.history[:0]
	b.intervals = b.intervals[:0]
	b.clock = 0
	b.lastOnset = math.Inf(-1)
	return nil
}

func (b *Beat) Run(ctx context.Context, emit func(animation.Event)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case block, ok := <-b.in:
			if !ok {
				return nil
			}
			if e, ok := b.Process(block); ok {
				emit(e)
			}
		}
	}
}

// Process consumes one block and reports a beat when one is detected.
func (b *Beat) Process(block audio.Block) (animation.BeatEvent, bool) {
	sensitivity := b.Get("sensitivity").Float()
	minBPM, maxBPM := b.Get("min_bpm").Float(), b.Get("max_bpm").Float()
	if minBPM > maxBPM {
		minBPM, maxBPM = maxBPM, minBPM
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock
	b.clock += float64(len(block)) / float64(b.sampleRate)

	var energy float64
	for _, s := range block {
		energy += s * s
	}
	if len(block) > 0 {
		energy /= float64(len(block))
	}

	var avg float64
	for _, e := range b.history {
		avg += e
	}
	full := len(b.history) == energyHistory
	if len(b.history) > 0 {
		avg /= float64(len(b.history))
	}
	if full {
		b.history = b.history[1:]
	}
	b.history = append(b.history, energy)

	if !full || avg <= 0 || energy < sensitivity*avg {
		return animation.BeatEvent{}, false
	}
	if now-b.lastOnset < 60/maxBPM {
		return animation.BeatEvent{}, false
	}

	if !math.IsInf(b.lastOnset, -1) {
		b.intervals = append(b.intervals, now-b.lastOnset)
		if len(b.intervals) > maxIntervals {
			b.intervals = b.intervals[1:]
		}
	}
	b.lastOnset = now

	return animation.BeatEvent{
		BPM:      estimateBPM(b.intervals, minBPM, maxBPM),
		Strength: math.Min(1, energy/(avg*sensitivity*2)),
	}, true
}

// estimateBPM folds the median interval into [minBPM, maxBPM].
func estimateBPM(intervals []float64, minBPM, maxBPM float64) float64 {
	if len(intervals) == 0 {
		return 0
	}
	sorted := slices.Clone(intervals)
	slices.Sort(sorted)
	median := sorted[len(sorted)/2]
	if median <= 0 {
		return 0
	}
	bpm := 60 / median
	for bpm < minBPM && bpm*2 <= maxBPM {
		bpm *= 2
	}
	for bpm > maxBPM && bpm/2 >= minBPM {
		bpm /= 2
	}
	return math.Round(bpm*10) / 10
}
