package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/lightshow/lightshow/internal/animation"
	"github.com/lightshow/lightshow/internal/animation/builtin"
	"github.com/lightshow/lightshow/internal/protocol"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// serve runs the server over the given input lines and returns the
// responses keyed by id.
func serve(t *testing.T, anim animation.Animation, lines ...string) map[uint64]protocol.Message {
	t.Helper()
	var out bytes.Buffer
	in := strings.NewReader(strings.Join(lines, "\n") + "\n")
	if err := NewServer(anim, quietLogger()).Serve(context.Background(), in, &out); err != nil {
		t.Fatalf("Serve() error: %v", err)
	}

	responses := make(map[uint64]protocol.Message)
	dec := protocol.NewDecoder(&out)
	for {
		m, err := dec.Next()
		if err != nil {
			break
		}
		responses[m.ID] = m
	}
	return responses
}

func TestServe_DiagnosticFrame(t *testing.T) {
	anim, err := builtin.New("diagnostic", 500)
	if err != nil {
		t.Fatalf("builtin.New() error: %v", err)
	}

	resp := serve(t, builtin.Compose(anim),
		`{"jsonrpc":"2.0","id":1,"method":"get_name"}`,
		`{"jsonrpc":"2.0","id":2,"method":"frame","params":{"time":125.0}}`,
	)

	name, err := protocol.GetName.DecodeResult(resp[1].Result)
	if err != nil || name != "diagnostic" {
		t.Errorf("get_name = %q, %v", name, err)
	}

	frame, err := protocol.Frame.DecodeResult(resp[2].Result)
	if err != nil {
		t.Fatalf("frame result: %v", err)
	}
	if frame.Len() != 500 {
		t.Fatalf("frame length = %d, want 500", frame.Len())
	}
	if frame.Pixels[0] != animation.White {
		t.Errorf("pixel 0 = %v, want white", frame.Pixels[0])
	}
	for i := 1; i < 500; i++ {
		if frame.Pixels[i] != animation.Black {
			t.Fatalf("pixel %d = %v, want black", i, frame.Pixels[i])
		}
	}
}

func TestServe_Errors(t *testing.T) {
	resp := serve(t, builtin.Compose(builtin.NewSolid(3)),
		`{"jsonrpc":"2.0","id":1,"method":"explode"}`,
		`not json at all`,
		`{"jsonrpc":"2.0","id":2,"method":"set_parameters","params":{"brightness":7}}`,
		`{"jsonrpc":"2.0","id":3,"method":"set_parameters","params":{"nope":1}}`,
		`{"jsonrpc":"2.0","id":4,"method":"frame","params":"soon"}`,
		`{"jsonrpc":"2.0","id":5,"method":"restart"}`,
	)

	wantCodes := map[uint64]int{
		1: protocol.CodeMethodNotFound,
		2: protocol.CodeInvalidParams,
		3: protocol.CodeInvalidParams,
		4: protocol.CodeInvalidParams,
	}
	for id, code := range wantCodes {
		m, ok := resp[id]
		if !ok {
			t.Errorf("no response for id %d", id)
			continue
		}
		if m.Error == nil || m.Error.Code != code {
			t.Errorf("id %d error = %+v, want code %d", id, m.Error, code)
		}
	}
	if r := resp[5]; r.Error != nil || string(r.Result) != "null" {
		t.Errorf("restart response = %+v", r)
	}
}

func TestServe_ParametersRoundTrip(t *testing.T) {
	resp := serve(t, builtin.Compose(builtin.NewSolid(3)),
		`{"jsonrpc":"2.0","id":1,"method":"set_parameters","params":{"color":[1,2,3],"brightness":0.25}}`,
		`{"jsonrpc":"2.0","id":2,"method":"get_parameters"}`,
	)
	if resp[1].Error != nil {
		t.Fatalf("set_parameters error: %v", resp[1].Error)
	}
	raw, err := protocol.GetParameters.DecodeResult(resp[2].Result)
	if err != nil {
		t.Fatalf("get_parameters result: %v", err)
	}
	if string(raw["color"]) != "[1,2,3]" || string(raw["brightness"]) != "0.25" {
		t.Errorf("parameters = color %s brightness %s", raw["color"], raw["brightness"])
	}
}

type recorder struct {
	*animation.Params
	events []animation.Event
}

func (r *recorder) Name() string   { return "recorder" }
func (r *recorder) Restart() error { return nil }
func (r *recorder) HandleEvent(e animation.Event) {
	r.events = append(r.events, e)
}
func (r *recorder) Frame(float64) (animation.Frame, error) {
	if len(r.events) == 0 {
		panic("no events yet")
	}
	return animation.NewFrame(1), nil
}

func TestServe_EventsAndPanics(t *testing.T) {
	rec := &recorder{Params: animation.NewParams()}
	resp := serve(t, rec,
		`{"jsonrpc":"2.0","id":1,"method":"frame","params":{"time":0}}`,
		`{"jsonrpc":"2.0","method":"event","params":{"type":"beat","bpm":120}}`,
		`{"jsonrpc":"2.0","method":"event","params":{"type":"strobe"}}`,
		`{"jsonrpc":"2.0","id":2,"method":"frame","params":{"time":1}}`,
	)

	if resp[1].Error == nil || resp[1].Error.Code != protocol.CodeInternalError {
		t.Errorf("panicking frame response = %+v, want internal error", resp[1])
	}
	if resp[2].Error != nil {
		t.Errorf("frame after event failed: %v", resp[2].Error)
	}
	if len(rec.events) != 1 {
		t.Fatalf("events delivered = %d, want 1", len(rec.events))
	}
	if beat, ok := rec.events[0].(animation.BeatEvent); !ok || beat.BPM != 120 {
		t.Errorf("event = %#v", rec.events[0])
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewServer(builtin.NewSolid(1), quietLogger()).Serve(ctx, strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"get_name"}`+"\n"), io.Discard)
	if err != context.Canceled {
		t.Errorf("Serve() = %v, want context.Canceled", err)
	}
}

func TestToRPCError_PassesThrough(t *testing.T) {
	custom := protocol.NewError(-32000, "device busy", nil)
	if got := toRPCError(custom); got != custom {
		t.Errorf("toRPCError() = %v, want original", got)
	}
	if got := toRPCError(io.ErrUnexpectedEOF); got.Code != protocol.CodeInternalError {
		t.Errorf("generic error code = %d", got.Code)
	}
	var data map[string]string
	if err := json.Unmarshal(toRPCError(io.ErrUnexpectedEOF).Data, &data); err != nil || data["error"] == "" {
		t.Errorf("generic error data = %v, %v", data, err)
	}
}
