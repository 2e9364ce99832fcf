// Package runtime serves a single Animation over the line protocol on a
// pair of streams, normally the plugin process's stdin and stdout.
package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"

	"github.com/lightshow/lightshow/internal/animation"
	"github.com/lightshow/lightshow/internal/protocol"
)

type handler func(params json.RawMessage) (json.RawMessage, *protocol.Error)

// Server dispatches requests to an Animation. Requests are handled one at
// a time in arrival order.
type Server struct {
	anim     animation.Animation
	logger   *slog.Logger
	handlers map[string]handler
	notes    map[string]func(json.RawMessage) error
}

// NewServer wires the standard methods to anim.
func NewServer(anim animation.Animation, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		anim:     anim,
		logger:   logger.With("component", "runtime", "animation", anim.Name()),
		handlers: make(map[string]handler),
		notes:    make(map[string]func(json.RawMessage) error),
	}

	handle(s, protocol.GetName, func(protocol.Empty) (string, error) {
		return anim.Name(), nil
	})
	handle(s, protocol.GetSchema, func(protocol.Empty) ([]animation.ParameterSchema, error) {
		schema := anim.Schema()
		if schema == nil {
			schema = []animation.ParameterSchema{}
		}
		return schema, nil
	})
	handle(s, protocol.SetParameters, func(raw animation.RawValues) (protocol.Empty, error) {
		vs, err := animation.DecodeValues(anim.Schema(), raw)
		if err != nil {
			return protocol.Empty{}, err
		}
		return protocol.Empty{}, anim.SetParameters(vs)
	})
	handle(s, protocol.GetParameters, func(protocol.Empty) (animation.RawValues, error) {
		return anim.Parameters().Raw()
	})
	handle(s, protocol.Frame, func(p protocol.FrameParams) (animation.Frame, error) {
		return anim.Frame(p.Time)
	})
	handle(s, protocol.Restart, func(protocol.Empty) (protocol.Empty, error) {
		return protocol.Empty{}, anim.Restart()
	})

	s.notes[protocol.EventNotification.Name] = func(raw json.RawMessage) error {
		w, err := protocol.EventNotification.Decode(raw)
		if err != nil {
			return err
		}
		if _, unknown := w.Event.(animation.UnknownEvent); unknown {
			s.logger.Debug("Ignoring unknown event type", "type", w.Event.EventType())
			return nil
		}
		if h, ok := anim.(animation.EventHandler); ok {
			h.HandleEvent(w.Event)
		}
		return nil
	}

	return s
}

func handle[P, R any](s *Server, m protocol.Method[P, R], fn func(P) (R, error)) {
	s.handlers[m.Name] = func(raw json.RawMessage) (json.RawMessage, *protocol.Error) {
		params, err := m.DecodeParams(raw)
		if err != nil {
			return nil, protocol.NewError(protocol.CodeInvalidParams, "invalid params", err.Error())
		}
		result, err := fn(params)
		if err != nil {
			return nil, toRPCError(err)
		}
		out, err := m.EncodeResult(result)
		if err != nil {
			return nil, protocol.NewError(protocol.CodeInternalError, "encode result", err.Error())
		}
		return out, nil
	}
}

func toRPCError(err error) *protocol.Error {
	var rpcErr *protocol.Error
	switch {
	case errors.As(err, &rpcErr):
		return rpcErr
	case errors.Is(err, animation.ErrInvalidParameter):
		return protocol.NewError(protocol.CodeInvalidParams, err.Error(), nil)
	default:
		return protocol.NewError(protocol.CodeInternalError, "animation failed", map[string]string{"error": err.Error()})
	}
}

// Serve reads messages from r and writes responses to w until r reaches
// end of stream, which is a clean shutdown and returns nil. Cancelling ctx
// stops the loop after the current message.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	enc := protocol.NewEncoder(w)
	dec := protocol.NewDecoder(r)

	s.logger.Debug("Plugin runtime started")
	for msg, err := range dec.Messages() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			if errors.Is(err, protocol.ErrProtocol) {
				s.logger.Warn("Discarding malformed message", "error", err)
				continue
			}
			if errors.Is(err, io.EOF) {
				s.logger.Debug("Input closed, stopping")
				return nil
			}
			return err
		}

		switch msg.Kind {
		case protocol.KindRequest:
			resp := s.dispatch(msg)
			if err := enc.Encode(resp); err != nil {
				return err
			}
		case protocol.KindNotification:
			s.notify(msg)
		default:
			s.logger.Debug("Ignoring unexpected response", "id", msg.ID)
		}
	}
	return nil
}

func (s *Server) dispatch(msg protocol.Message) (resp protocol.Message) {
	h, ok := s.handlers[msg.Method]
	if !ok {
		return protocol.NewErrorResponse(msg.ID, protocol.NewError(protocol.CodeMethodNotFound, "method not found", msg.Method))
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Handler panicked", "method", msg.Method, "panic", r, "stack", string(debug.Stack()))
			resp = protocol.NewErrorResponse(msg.ID, protocol.NewError(protocol.CodeInternalError, "animation panicked", fmt.Sprint(r)))
		}
	}()

	result, rpcErr := h(msg.Params)
	if rpcErr != nil {
		return protocol.NewErrorResponse(msg.ID, rpcErr)
	}
	return protocol.NewResult(msg.ID, result)
}

func (s *Server) notify(msg protocol.Message) {
	fn, ok := s.notes[msg.Method]
	if !ok {
		s.logger.Debug("Ignoring unknown notification", "method", msg.Method)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Notification handler panicked", "method", msg.Method, "panic", r)
		}
	}()

	if err := fn(msg.Params); err != nil {
		s.logger.Warn("Notification rejected", "method", msg.Method, "error", err)
	}
}
