// Package light delivers rendered frames to the physical (or simulated)
// lights.
package light

import (
	"context"
	"errors"

	"github.com/lightshow/lightshow/internal/animation"
)

// Client displays frames.
type Client interface {
	Render(ctx context.Context, f animation.Frame) error
	Close() error
}

// Discard drops every frame.
type Discard struct{}

func (Discard) Render(context.Context, animation.Frame) error { return nil }
func (Discard) Close() error                                  { return nil }

// Fanout renders to several clients. Every client receives every frame even
// if an earlier one fails.
type Fanout []Client

func (f Fanout) Render(ctx context.Context, frame animation.Frame) error {
	var errs []error
	for _, c := range f {
		if err := c.Render(ctx, frame); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) Close() error {
	var errs []error
	for _, c := range f {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
