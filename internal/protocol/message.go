package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Version is the value of the "jsonrpc" member on every outgoing message.
const Version = "2.0"

// Standard error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Kind distinguishes the three message shapes.
type Kind int

const (
	KindRequest Kind = iota + 1
	KindNotification
	KindResponse
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindNotification:
		return "notification"
	case KindResponse:
		return "response"
	default:
		return "unknown"
	}
}

var nullResult = json.RawMessage("null")

// Error is the error object carried by a failed response.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	if len(e.Data) > 0 {
		return fmt.Sprintf("rpc error %d: %s (%s)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// NewError builds an error object. data is marshalled when non-nil.
func NewError(code int, message string, data any) *Error {
	e := &Error{Code: code, Message: message}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			e.Data = raw
		}
	}
	return e
}

// Message is one decoded line. Exactly the fields relevant to Kind are set.
type Message struct {
	Kind   Kind
	ID     uint64
	Method string
	Params json.RawMessage
	Result json.RawMessage
	Error  *Error
}

// NewRequest returns a request expecting a response correlated by id.
func NewRequest(id uint64, method string, params json.RawMessage) Message {
	return Message{Kind: KindRequest, ID: id, Method: method, Params: params}
}

// NewNotification returns a fire-and-forget message.
func NewNotification(method string, params json.RawMessage) Message {
	return Message{Kind: KindNotification, Method: method, Params: params}
}

// NewResult returns a successful response. A nil result encodes as null.
func NewResult(id uint64, result json.RawMessage) Message {
	if len(result) == 0 {
		result = nullResult
	}
	return Message{Kind: KindResponse, ID: id, Result: result}
}

// NewErrorResponse returns a failed response.
func NewErrorResponse(id uint64, err *Error) Message {
	return Message{Kind: KindResponse, ID: id, Error: err}
}

type wireMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uint64         `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

var (
	errMissingMethod = errors.New("message has neither method nor id")
	errBothOutcomes  = errors.New("response carries both result and error")
	errNoMethod      = errors.New("request is missing a method")
)

func (m Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{JSONRPC: Version}
	switch m.Kind {
	case KindRequest:
		if m.Method == "" {
			return nil, errNoMethod
		}
		id := m.ID
		w.ID, w.Method, w.Params = &id, m.Method, m.Params
	case KindNotification:
		if m.Method == "" {
			return nil, errNoMethod
		}
		w.Method, w.Params = m.Method, m.Params
	case KindResponse:
		id := m.ID
		w.ID = &id
		if m.Error != nil {
			w.Error = m.Error
		} else {
			w.Result = m.Result
			if len(w.Result) == 0 {
				w.Result = nullResult
			}
		}
	default:
		return nil, fmt.Errorf("cannot encode message of kind %d", m.Kind)
	}
	return json.Marshal(w)
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch {
	case w.Method != "" && w.ID != nil:
		*m = Message{Kind: KindRequest, ID: *w.ID, Method: w.Method, Params: w.Params}
	case w.Method != "":
		*m = Message{Kind: KindNotification, Method: w.Method, Params: w.Params}
	case w.ID != nil:
		if w.Error != nil && w.Result != nil {
			return errBothOutcomes
		}
		*m = Message{Kind: KindResponse, ID: *w.ID, Result: w.Result, Error: w.Error}
		if m.Error == nil && len(m.Result) == 0 {
			m.Result = nullResult
		}
	default:
		return errMissingMethod
	}
	return nil
}
