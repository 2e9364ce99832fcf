package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestMarshal_Shapes(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{"request", NewRequest(7, "frame", json.RawMessage(`{"time":1.5}`)), `{"jsonrpc":"2.0","id":7,"method":"frame","params":{"time":1.5}}`},
		{"request without params", NewRequest(1, "get_name", nil), `{"jsonrpc":"2.0","id":1,"method":"get_name"}`},
		{"notification", NewNotification("event", json.RawMessage(`{"type":"beat","bpm":120}`)), `{"jsonrpc":"2.0","method":"event","params":{"type":"beat","bpm":120}}`},
		{"null result", NewResult(3, nil), `{"jsonrpc":"2.0","id":3,"result":null}`},
		{"error", NewErrorResponse(4, NewError(CodeMethodNotFound, "method not found", nil)), `{"jsonrpc":"2.0","id":4,"error":{"code":-32601,"message":"method not found"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, err := Marshal(tt.msg)
			if err != nil {
				t.Fatalf("Marshal() error: %v", err)
			}
			if string(line) != tt.want+"\n" {
				t.Errorf("Marshal() = %s, want %s", line, tt.want)
			}
		})
	}
}

func TestDecoder_SkipsMalformedLines(t *testing.T) {
	input := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"result":"diagnostic"}`,
		`this is not json`,
		``,
		`{"jsonrpc":"2.0","params":{}}`,
		`{"jsonrpc":"2.0","method":"event","params":{"type":"beat","bpm":90}}`,
	}, "\n")

	dec := NewDecoder(strings.NewReader(input))
	var kinds []Kind
	var protoErrs int
	var last error
	for m, err := range dec.Messages() {
		if err != nil {
			last = err
			if errors.Is(err, ErrProtocol) {
				protoErrs++
			}
			continue
		}
		kinds = append(kinds, m.Kind)
	}

	if protoErrs != 2 {
		t.Errorf("protocol errors = %d, want 2", protoErrs)
	}
	if len(kinds) != 2 || kinds[0] != KindResponse || kinds[1] != KindNotification {
		t.Errorf("kinds = %v, want [response notification]", kinds)
	}
	if !errors.Is(last, ErrTransport) || !errors.Is(last, io.EOF) {
		t.Errorf("final error = %v, want transport EOF", last)
	}

	if _, err := dec.Next(); !errors.Is(err, ErrTransport) {
		t.Errorf("Next() after EOF = %v, want sticky transport error", err)
	}
}

func TestDecoder_OversizedLine(t *testing.T) {
	big := `{"jsonrpc":"2.0","method":"x","params":"` + strings.Repeat("a", MaxLineSize) + `"}`
	input := big + "\n" + `{"jsonrpc":"2.0","id":2,"result":null}` + "\n"

	dec := NewDecoder(strings.NewReader(input))
	if _, err := dec.Next(); !errors.Is(err, ErrProtocol) {
		t.Fatalf("first Next() = %v, want protocol error", err)
	}
	m, err := dec.Next()
	if err != nil {
		t.Fatalf("second Next() error: %v", err)
	}
	if m.Kind != KindResponse || m.ID != 2 {
		t.Errorf("second message = %+v", m)
	}
}

func TestDecoder_LargeFrameFits(t *testing.T) {
	// 100k points of white is about 1.4 MB on the wire; ten times that must
	// still fit on one line.
	payload := strings.Repeat("[255,255,255],", 1_000_000)
	line := `{"jsonrpc":"2.0","id":1,"result":{"pixels":[` + payload + `[0,0,0]]}}` + "\n"
	if len(line) >= MaxLineSize {
		t.Fatalf("test line of %d bytes exceeds MaxLineSize %d", len(line), MaxLineSize)
	}

	m, err := NewDecoder(strings.NewReader(line)).Next()
	if err != nil {
		t.Fatalf("Next() error: %v", err)
	}
	if m.ID != 1 || len(m.Result) < 14_000_000 {
		t.Errorf("decoded id %d with %d result bytes", m.ID, len(m.Result))
	}
}

func TestEncoder_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	raw, err := Frame.EncodeParams(FrameParams{Time: 125})
	if err != nil {
		t.Fatalf("EncodeParams() error: %v", err)
	}
	if err := enc.Encode(NewRequest(9, Frame.Name, raw)); err != nil {
		t.Fatalf("Encode() error: %v", err)
	}

	m, err := NewDecoder(&buf).Next()
	if err != nil {
		t.Fatalf("Next() error: %v", err)
	}
	params, err := Frame.DecodeParams(m.Params)
	if err != nil {
		t.Fatalf("DecodeParams() error: %v", err)
	}
	if m.Method != "frame" || m.ID != 9 || params.Time != 125 {
		t.Errorf("decoded %+v params %+v", m, params)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }

func TestEncoder_StickyFailure(t *testing.T) {
	enc := NewEncoder(failingWriter{})
	err := enc.Encode(NewNotification("event", nil))
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("Encode() = %v, want transport error", err)
	}
	if err2 := enc.Encode(NewNotification("event", nil)); err2 != err {
		t.Errorf("second Encode() = %v, want the first error", err2)
	}
}

func TestMethod_EmptyResultIsNull(t *testing.T) {
	raw, err := Restart.EncodeResult(Empty{})
	if err != nil {
		t.Fatalf("EncodeResult() error: %v", err)
	}
	if string(raw) != "null" {
		t.Errorf("EncodeResult(Empty) = %s, want null", raw)
	}
	if raw, _ := GetName.EncodeParams(Empty{}); raw != nil {
		t.Errorf("EncodeParams(Empty) = %s, want nil", raw)
	}
}

func TestIsApplication(t *testing.T) {
	appErr := NewError(CodeInvalidParams, "bad", map[string]string{"id": "x"})
	if !IsApplication(appErr) {
		t.Error("IsApplication(*Error) = false")
	}
	if IsApplication(&TransportError{Op: "read", Err: io.EOF}) {
		t.Error("IsApplication(transport) = true")
	}
	if string(appErr.Data) != `{"id":"x"}` {
		t.Errorf("Data = %s", appErr.Data)
	}
}
