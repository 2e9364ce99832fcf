package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"sync"
)

// MaxLineSize bounds a single encoded message. Longer lines are rejected as
// protocol errors and skipped.
const MaxLineSize = 16 << 20

var errLineTooLong = fmt.Errorf("line exceeds %d bytes", MaxLineSize)

// Marshal encodes m as a single newline-terminated line.
func Marshal(m Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Encoder writes messages to a stream, one per line. It is safe for
// concurrent use; each message is written with a single Write call.
type Encoder struct {
	mu  sync.Mutex
	w   io.Writer
	err error
}

// NewEncoder returns an encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes m. After the first write failure every call returns the same
// TransportError.
func (e *Encoder) Encode(m Message) error {
	line, err := Marshal(m)
	if err != nil {
		return &ProtocolError{Err: err}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	if _, err := e.w.Write(line); err != nil {
		e.err = &TransportError{Op: "write", Err: err}
		return e.err
	}
	return nil
}

// Decoder reads newline-delimited messages from a stream.
type Decoder struct {
	r    *bufio.Reader
	line int
	err  error
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next message. A malformed line yields a *ProtocolError
// and the following call continues with the next line. End of stream or a
// read failure yields a *TransportError, which is sticky.
func (d *Decoder) Next() (Message, error) {
	for {
		if d.err != nil {
			return Message{}, d.err
		}

		raw, err := d.readLine()
		if err != nil && len(raw) == 0 {
			d.err = &TransportError{Op: "read", Err: err}
			if errors.Is(err, errLineTooLong) {
				d.err = nil
				return Message{}, &ProtocolError{Line: d.line, Err: err}
			}
			continue
		}
		if err != nil && !errors.Is(err, io.EOF) {
			d.err = &TransportError{Op: "read", Err: err}
		}

		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 {
			continue
		}

		var m Message
		if err := json.Unmarshal(raw, &m); err != nil {
			return Message{}, &ProtocolError{Line: d.line, Raw: truncate(raw), Err: err}
		}
		return m, nil
	}
}

// Messages yields messages lazily. Protocol errors are yielded and decoding
// continues; the sequence ends after yielding a transport error.
func (d *Decoder) Messages() iter.Seq2[Message, error] {
	return func(yield func(Message, error) bool) {
		for {
			m, err := d.Next()
			if !yield(m, err) {
				return
			}
			if err != nil && errors.Is(err, ErrTransport) {
				return
			}
		}
	}
}

// readLine returns one line without its terminator. Oversized lines are
// consumed to their end and reported as errLineTooLong.
func (d *Decoder) readLine() ([]byte, error) {
	var buf []byte
	tooLong := false
	for {
		chunk, err := d.r.ReadSlice('\n')
		if !tooLong {
			if len(buf)+len(chunk) > MaxLineSize {
				tooLong = true
				buf = nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if len(chunk) > 0 || len(buf) > 0 || tooLong {
			d.line++
		}
		if tooLong {
			if err != nil && !errors.Is(err, io.EOF) {
				return nil, err
			}
			return nil, errLineTooLong
		}
		return bytes.TrimSuffix(buf, []byte{'\n'}), err
	}
}

func truncate(raw []byte) string {
	const limit = 256
	if len(raw) > limit {
		return string(raw[:limit]) + "..."
	}
	return string(raw)
}
