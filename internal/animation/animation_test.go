package animation

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

type counter struct {
	*Params
	frames  []float64
	events  []Event
	restart int
}

func newCounter() *counter {
	return &counter{Params: NewParams(ParameterSchema{
		ID:      "count",
		Name:    "Count",
		Type:    TypeInt,
		Min:     Bound(0),
		Max:     Bound(100),
		Default: []byte("5"),
	})}
}

func (c *counter) Name() string { return "counter" }

func (c *counter) Frame(t float64) (Frame, error) {
	c.frames = append(c.frames, t)
	f := NewFrame(2)
	f.Fill(White)
	return f, nil
}

func (c *counter) Restart() error {
	c.restart++
	return nil
}

func (c *counter) HandleEvent(e Event) {
	c.events = append(c.events, e)
}

func TestColor_JSON(t *testing.T) {
	data, err := json.Marshal(RGB(1, 2, 3))
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if string(data) != "[1,2,3]" {
		t.Errorf("Marshal() = %s, want [1,2,3]", data)
	}

	var c Color
	if err := json.Unmarshal([]byte(`"#ff8000"`), &c); err != nil {
		t.Fatalf("Unmarshal(hex) error: %v", err)
	}
	if c != RGB(255, 128, 0) {
		t.Errorf("Unmarshal(hex) = %v", c)
	}

	for _, bad := range []string{`[1,2]`, `[1,2,256]`, `[-1,0,0]`, `"#zzzzzz"`, `{}`} {
		if err := json.Unmarshal([]byte(bad), &c); err == nil {
			t.Errorf("Unmarshal(%s) expected error", bad)
		}
	}
}

func TestFrame_SetOutOfRangePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Set() with out of range index did not panic")
		}
	}()
	NewFrame(3).Set(3, White)
}

func TestSchema_Decode(t *testing.T) {
	level := ParameterSchema{ID: "level", Name: "Level", Type: TypeFloat, Min: Bound(0), Max: Bound(1)}
	steps := ParameterSchema{ID: "steps", Name: "Steps", Type: TypeInt, Min: Bound(1), Max: Bound(10)}
	mode := ParameterSchema{ID: "mode", Name: "Mode", Type: TypeEnum, Options: []string{"a", "b"}}
	label := ParameterSchema{ID: "label", Name: "Label", Type: TypeString, MaxLength: 3}

	tests := []struct {
		name    string
		schema  ParameterSchema
		raw     string
		wantErr bool
	}{
		{"float in range", level, "0.5", false},
		{"float above max", level, "1.5", true},
		{"float from string", level, `"x"`, true},
		{"int in range", steps, "10", false},
		{"int fractional", steps, "2.5", true},
		{"int below min", steps, "0", true},
		{"enum option", mode, `"b"`, false},
		{"enum unknown", mode, `"c"`, true},
		{"string short", label, `"abc"`, false},
		{"string too long", label, `"abcd"`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.schema.Decode(json.RawMessage(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Decode(%s) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidParameter) {
				t.Errorf("error %v does not wrap ErrInvalidParameter", err)
			}
		})
	}
}

func TestValues_RoundTrip(t *testing.T) {
	schema := []ParameterSchema{
		{ID: "f", Name: "F", Type: TypeFloat},
		{ID: "i", Name: "I", Type: TypeInt},
		{ID: "b", Name: "B", Type: TypeBool},
		{ID: "c", Name: "C", Type: TypeColor},
	}
	in := Values{
		"f": Float(0.1 + 0.2),
		"i": Int(1 << 60),
		"b": Bool(true),
		"c": ColorValue(RGB(9, 8, 7)),
	}

	raw, err := in.Raw()
	if err != nil {
		t.Fatalf("Raw() error: %v", err)
	}
	out, err := DecodeValues(schema, raw)
	if err != nil {
		t.Fatalf("DecodeValues() error: %v", err)
	}
	for k, v := range in {
		if out[k] != v {
			t.Errorf("%s = %v, want %v", k, out[k], v)
		}
	}

	if _, err := DecodeValues(schema, RawValues{"missing": json.RawMessage("1")}); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("unknown id error = %v, want ErrInvalidParameter", err)
	}
}

func TestValidateSchema(t *testing.T) {
	if err := ValidateSchema([]ParameterSchema{{ID: "a", Name: "A", Type: TypeFloat}}); err != nil {
		t.Errorf("valid schema rejected: %v", err)
	}
	bad := map[string][]ParameterSchema{
		"missing name":  {{ID: "a", Type: TypeFloat}},
		"unknown type":  {{ID: "a", Name: "A", Type: "complex"}},
		"enum no opts":  {{ID: "a", Name: "A", Type: TypeEnum}},
		"duplicate id":  {{ID: "a", Name: "A", Type: TypeBool}, {ID: "a", Name: "B", Type: TypeBool}},
		"bad default":   {{ID: "a", Name: "A", Type: TypeFloat, Max: Bound(1), Default: []byte("2")}},
		"min above max": {{ID: "a", Name: "A", Type: TypeFloat, Min: Bound(2), Max: Bound(1)}},
	}
	for name, schema := range bad {
		if err := ValidateSchema(schema); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestParams_SetIsAtomic(t *testing.T) {
	p := NewParams(
		ParameterSchema{ID: "a", Name: "A", Type: TypeInt, Default: []byte("1")},
		ParameterSchema{ID: "b", Name: "B", Type: TypeInt, Max: Bound(5), Default: []byte("1")},
	)
	err := p.SetParameters(Values{"a": Int(2), "b": Int(9)})
	if !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("SetParameters() error = %v, want ErrInvalidParameter", err)
	}
	if got := p.Get("a").Int(); got != 1 {
		t.Errorf("a = %d after rejected update, want 1", got)
	}
}

func TestWrappers_RoutesParameters(t *testing.T) {
	inner := newCounter()
	var anim Animation = NewGate(NewBrightness(NewSpeed(inner)))

	ids := map[string]bool{}
	for _, s := range anim.Schema() {
		ids[s.ID] = true
	}
	for _, id := range []string{"enabled", "brightness", "speed", "count"} {
		if !ids[id] {
			t.Errorf("schema missing %q", id)
		}
	}

	if err := anim.SetParameters(Values{"count": Int(7), "brightness": Float(0.5)}); err != nil {
		t.Fatalf("SetParameters() error: %v", err)
	}
	got := anim.Parameters()
	if got["count"].Int() != 7 || got["brightness"].Float() != 0.5 {
		t.Errorf("Parameters() = %v", got)
	}

	f, err := anim.Frame(1)
	if err != nil {
		t.Fatalf("Frame() error: %v", err)
	}
	if f.Pixels[0] != White.Scale(0.5) {
		t.Errorf("pixel = %v, want half white", f.Pixels[0])
	}

	if err := anim.SetParameters(Values{"enabled": Bool(false)}); err != nil {
		t.Fatalf("SetParameters() error: %v", err)
	}
	f, _ = anim.Frame(2)
	if f.Pixels[0] != Black {
		t.Errorf("gated pixel = %v, want black", f.Pixels[0])
	}

	if err := anim.SetParameters(Values{"count": Int(1), "brightness": Float(3)}); err == nil {
		t.Fatal("expected out of range brightness to be rejected")
	}
	if inner.Get("count").Int() != 7 {
		t.Errorf("inner changed by rejected update: count = %d", inner.Get("count").Int())
	}

	anim.(EventHandler).HandleEvent(BeatEvent{BPM: 90})
	if len(inner.events) != 1 {
		t.Errorf("inner received %d events, want 1", len(inner.events))
	}
}

func TestSpeed_TimeStaysContinuous(t *testing.T) {
	inner := newCounter()
	s := NewSpeed(inner)

	s.Frame(10)
	if err := s.SetParameters(Values{"speed": Float(2)}); err != nil {
		t.Fatalf("SetParameters() error: %v", err)
	}
	s.Frame(10)
	s.Frame(11)

	want := []float64{10, 10, 12}
	for i, w := range want {
		if inner.frames[i] != w {
			t.Errorf("inner time %d = %g, want %g", i, inner.frames[i], w)
		}
	}
}

func TestSpeed_RestartRebasesOnNextFrame(t *testing.T) {
	inner := newCounter()
	s := NewSpeed(inner)

	s.Frame(10)
	if err := s.Restart(); err != nil {
		t.Fatalf("Restart() error: %v", err)
	}
	if err := s.SetParameters(Values{"speed": Float(3)}); err != nil {
		t.Fatalf("SetParameters() error: %v", err)
	}
	s.Frame(0)
	s.Frame(1)

	want := []float64{10, 0, 3}
	for i, w := range want {
		if inner.frames[i] != w {
			t.Errorf("inner time %d = %g, want %g", i, inner.frames[i], w)
		}
	}
}

func TestCheck_RejectsNonFiniteFloats(t *testing.T) {
	schema := []ParameterSchema{{ID: "gain", Name: "Gain", Type: TypeFloat, Default: []byte("1")}}

	for _, f := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		err := CheckValues(schema, Values{"gain": Float(f)})
		if !errors.Is(err, ErrInvalidParameter) {
			t.Errorf("CheckValues(%v) error = %v, want ErrInvalidParameter", f, err)
		}
	}
	if err := CheckValues(schema, Values{"gain": Float(1e300)}); err != nil {
		t.Errorf("CheckValues(1e300) error: %v", err)
	}
}

func TestWireEvent_JSON(t *testing.T) {
	data, err := json.Marshal(WireEvent{Event: BeatEvent{BPM: 128, Strength: 0.5}})
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if string(data) != `{"type":"beat","bpm":128,"strength":0.5}` {
		t.Errorf("Marshal() = %s", data)
	}

	var w WireEvent
	if err := json.Unmarshal([]byte(`{"type":"midi","status":144,"channel":1,"data1":60,"data2":100}`), &w); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if w.Event != (MIDIEvent{Status: 144, Channel: 1, Data1: 60, Data2: 100}) {
		t.Errorf("Unmarshal() = %#v", w.Event)
	}

	if err := json.Unmarshal([]byte(`{"type":"laser","angle":3}`), &w); err != nil {
		t.Fatalf("Unmarshal(unknown) error: %v", err)
	}
	u, ok := w.Event.(UnknownEvent)
	if !ok || u.Type != "laser" {
		t.Fatalf("unknown variant = %#v", w.Event)
	}
	again, _ := json.Marshal(w)
	if string(again) != `{"type":"laser","angle":3}` {
		t.Errorf("unknown variant re-encoded as %s", again)
	}
}
