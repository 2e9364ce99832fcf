// Package audio reads PCM sample blocks from a capture stream and fans them
// out to analysers.
package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os/exec"
	"sync"
)

// Block is one chunk of mono samples in [-1, 1].
type Block []float64

// Capture decodes mono float32 little-endian PCM into fixed-size blocks.
type Capture struct {
	r          io.Reader
	blockSize  int
	sampleRate int
	logger     *slog.Logger

	mu   sync.Mutex
	subs []chan Block
}

// NewCapture reads from r. Every subscriber receives the same blocks.
func NewCapture(r io.Reader, sampleRate, blockSize int, logger *slog.Logger) *Capture {
	if logger == nil {
		logger = slog.Default()
	}
	return &Capture{
		r:          r,
		blockSize:  blockSize,
		sampleRate: sampleRate,
		logger:     logger.With("component", "audio"),
	}
}

// SampleRate returns the configured sample rate.
func (c *Capture) SampleRate() int { return c.sampleRate }

// Subscribe returns a channel of blocks. A subscriber that falls more than
// buffer blocks behind misses blocks. The channel closes when Run returns.
func (c *Capture) Subscribe(buffer int) <-chan Block {
	ch := make(chan Block, buffer)
	c.mu.Lock()
	c.subs = append(c.subs, ch)
	c.mu.Unlock()
	return ch
}

// Run reads until the stream ends or ctx is cancelled.
func (c *Capture) Run(ctx context.Context) error {
	defer c.closeSubs()

	raw := make([]byte, c.blockSize*4)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := io.ReadFull(c.r, raw); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				c.logger.Info("Audio stream ended")
				return nil
			}
			return fmt.Errorf("read audio: %w", err)
		}

		block := make(Block, c.blockSize)
		for i := range block {
			block[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:])))
		}
		c.publish(block)
	}
}

func (c *Capture) publish(b Block) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- b:
		default:
		}
	}
}

func (c *Capture) closeSubs() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.subs {
		close(ch)
	}
	c.subs = nil
}

// Command starts argv and returns its stdout as the capture stream. The
// process is killed when ctx is cancelled.
func Command(ctx context.Context, argv []string) (io.ReadCloser, func() error, error) {
	if len(argv) == 0 {
		return nil, nil, errors.New("audio command is empty")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("start audio command: %w", err)
	}
	return stdout, cmd.Wait, nil
}
