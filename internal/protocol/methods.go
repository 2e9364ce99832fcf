package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/lightshow/lightshow/internal/animation"
)

// Empty stands for absent params or a null result.
type Empty struct{}

// Method describes a request/response pair. The same descriptor drives the
// host-side typed call and the plugin-side dispatch, so both ends agree on
// the method name and the payload shapes.
type Method[P, R any] struct {
	Name string
}

// Notification describes a fire-and-forget message.
type Notification[P any] struct {
	Name string
}

// FrameParams are the params of the frame method.
type FrameParams struct {
	Time float64 `json:"time"`
}

var (
	GetName       = Method[Empty, string]{Name: "get_name"}
	GetSchema     = Method[Empty, []animation.ParameterSchema]{Name: "get_schema"}
	SetParameters = Method[animation.RawValues, Empty]{Name: "set_parameters"}
	GetParameters = Method[Empty, animation.RawValues]{Name: "get_parameters"}
	Frame         = Method[FrameParams, animation.Frame]{Name: "frame"}
	Restart       = Method[Empty, Empty]{Name: "restart"}

	EventNotification = Notification[animation.WireEvent]{Name: "event"}
)

func encodePayload(v any) (json.RawMessage, error) {
	if _, ok := v.(Empty); ok {
		return nil, nil
	}
	return json.Marshal(v)
}

func decodePayload[T any](raw json.RawMessage) (T, error) {
	var v T
	if _, ok := any(v).(Empty); ok {
		return v, nil
	}
	if len(raw) == 0 {
		raw = nullResult
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, err
	}
	return v, nil
}

// EncodeParams marshals params; Empty produces no params member.
func (m Method[P, R]) EncodeParams(p P) (json.RawMessage, error) {
	raw, err := encodePayload(p)
	if err != nil {
		return nil, fmt.Errorf("%s params: %w", m.Name, err)
	}
	return raw, nil
}

// DecodeParams unmarshals the params of an incoming request.
func (m Method[P, R]) DecodeParams(raw json.RawMessage) (P, error) {
	return decodePayload[P](raw)
}

// EncodeResult marshals a result; Empty encodes as null.
func (m Method[P, R]) EncodeResult(r R) (json.RawMessage, error) {
	raw, err := encodePayload(r)
	if err != nil {
		return nil, fmt.Errorf("%s result: %w", m.Name, err)
	}
	if raw == nil {
		raw = nullResult
	}
	return raw, nil
}

// DecodeResult unmarshals a response result.
func (m Method[P, R]) DecodeResult(raw json.RawMessage) (R, error) {
	r, err := decodePayload[R](raw)
	if err != nil {
		return r, &ProtocolError{Raw: truncate(raw), Err: fmt.Errorf("%s result: %w", m.Name, err)}
	}
	return r, nil
}

// Encode marshals notification params.
func (n Notification[P]) Encode(p P) (json.RawMessage, error) {
	return encodePayload(p)
}

// Decode unmarshals notification params.
func (n Notification[P]) Decode(raw json.RawMessage) (P, error) {
	return decodePayload[P](raw)
}
