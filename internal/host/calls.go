package host

import (
	"context"
	"fmt"

	"github.com/lightshow/lightshow/internal/animation"
	"github.com/lightshow/lightshow/internal/protocol"
)

// Frame asks the plugin to render time t. A frame whose length differs
// from the configured point count is rejected as a protocol violation.
func (h *Host) Frame(ctx context.Context, t float64) (animation.Frame, error) {
	f, err := call(ctx, h, protocol.Frame, protocol.FrameParams{Time: t})
	if err != nil {
		return animation.Frame{}, err
	}
	if err := f.Check(h.opts.Lights.Points); err != nil {
		return animation.Frame{}, fmt.Errorf("%w: %w", protocol.ErrProtocol, err)
	}
	return f, nil
}

// SetParameters validates vs against the cached schema and sends them.
// Invalid values are rejected locally with an InvalidParams error.
func (h *Host) SetParameters(ctx context.Context, vs animation.Values) error {
	if err := animation.CheckValues(h.CachedSchema(), vs); err != nil {
		return protocol.NewError(protocol.CodeInvalidParams, err.Error(), nil)
	}
	raw, err := vs.Raw()
	if err != nil {
		return err
	}
	_, err = call(ctx, h, protocol.SetParameters, raw)
	return err
}

// Parameters fetches the current values from the plugin.
func (h *Host) Parameters(ctx context.Context) (animation.Values, error) {
	raw, err := call(ctx, h, protocol.GetParameters, protocol.Empty{})
	if err != nil {
		return nil, err
	}
	vs, err := animation.DecodeValues(h.CachedSchema(), raw)
	if err != nil {
		return nil, fmt.Errorf("%w: get_parameters: %w", protocol.ErrProtocol, err)
	}
	return vs, nil
}

// Schema fetches the schema again and refreshes the cached copy.
func (h *Host) Schema(ctx context.Context) ([]animation.ParameterSchema, error) {
	schema, err := call(ctx, h, protocol.GetSchema, protocol.Empty{})
	if err != nil {
		return nil, err
	}
	if err := animation.ValidateSchema(schema); err != nil {
		return nil, fmt.Errorf("%w: schema: %w", protocol.ErrProtocol, err)
	}
	h.mu.Lock()
	h.schema = schema
	h.mu.Unlock()
	return schema, nil
}

// Restart resets the animation's internal state.
func (h *Host) Restart(ctx context.Context) error {
	_, err := call(ctx, h, protocol.Restart, protocol.Empty{})
	return err
}

// Notify queues an event notification and returns at once. While the
// plugin is not reading its input the oldest queued events are dropped.
func (h *Host) Notify(ctx context.Context, e animation.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-h.done:
		return h.closedErr()
	default:
	}

	raw, err := protocol.EventNotification.Encode(animation.WireEvent{Event: e})
	if err != nil {
		return err
	}
	if h.events.Push(protocol.NewNotification(protocol.EventNotification.Name, raw)) {
		h.logger.Debug("Plugin not reading, dropped oldest queued event", "type", e.EventType())
	}
	return nil
}
