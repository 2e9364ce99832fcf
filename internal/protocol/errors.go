package protocol

import (
	"errors"
	"fmt"
)

// Sentinel errors describing the failure taxonomy shared by the host and the
// plugin runtime. Concrete errors wrap one of these so callers can branch
// with errors.Is.
var (
	// ErrTransport means the byte channel itself failed (EOF, broken pipe,
	// process exit). The channel is unusable afterwards.
	ErrTransport = errors.New("transport failure")

	// ErrProtocol means a line could not be parsed or violated the message
	// structure. Only that line is affected.
	ErrProtocol = errors.New("protocol violation")

	// ErrConfig means a plugin could not be described or started because of
	// its on-disk configuration.
	ErrConfig = errors.New("plugin configuration invalid")

	// ErrTimeout means no response arrived within the per-call deadline. The
	// channel stays open.
	ErrTimeout = errors.New("call timed out")

	// ErrClosed means the channel was shut down before the call completed.
	ErrClosed = errors.New("channel closed")
)

// TransportError wraps an I/O failure on the underlying stream.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}

// ProtocolError describes a single malformed line.
type ProtocolError struct {
	Line int
	Raw  string
	Err  error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *ProtocolError) Unwrap() []error {
	return []error{ErrProtocol, e.Err}
}

// IsApplication reports whether err carries an error object returned by the
// remote peer.
func IsApplication(err error) bool {
	var rpcErr *Error
	return errors.As(err, &rpcErr)
}
