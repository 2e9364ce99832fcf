package animation

import (
	"encoding/json"
	"fmt"
)

// EventType tags the variants of Event.
type EventType string

const (
	EventBeat EventType = "beat"
	EventFFT  EventType = "fft"
	EventMIDI EventType = "midi"
)

// Event is one of BeatEvent, FFTEvent, MIDIEvent or UnknownEvent.
type Event interface {
	EventType() EventType
}

// BeatEvent reports a detected beat and the current tempo estimate.
type BeatEvent struct {
	BPM      float64 `json:"bpm"`
	Strength float64 `json:"strength,omitempty"`
}

// FFTEvent carries band magnitudes, lowest band first.
type FFTEvent struct {
	Bands []float64 `json:"bands"`
}

// MIDIEvent is one channel voice message. Channel is 1-based.
type MIDIEvent struct {
	Status  uint8 `json:"status"`
	Channel uint8 `json:"channel"`
	Data1   uint8 `json:"data1"`
	Data2   uint8 `json:"data2"`
}

// UnknownEvent preserves a variant this build does not understand.
type UnknownEvent struct {
	Type string
	Raw  json.RawMessage
}

func (BeatEvent) EventType() EventType      { return EventBeat }
func (FFTEvent) EventType() EventType       { return EventFFT }
func (MIDIEvent) EventType() EventType      { return EventMIDI }
func (e UnknownEvent) EventType() EventType { return EventType(e.Type) }

// WireEvent encodes an Event as a flat object tagged by "type".
type WireEvent struct {
	Event Event
}

func (w WireEvent) MarshalJSON() ([]byte, error) {
	if w.Event == nil {
		return nil, fmt.Errorf("event: nil")
	}
	if u, ok := w.Event.(UnknownEvent); ok {
		if len(u.Raw) > 0 {
			return u.Raw, nil
		}
		return json.Marshal(struct {
			Type string `json:"type"`
		}{u.Type})
	}

	body, err := json.Marshal(w.Event)
	if err != nil {
		return nil, err
	}
	tag, err := json.Marshal(string(w.Event.EventType()))
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(body)+len(tag)+10)
	out = append(out, `{"type":`...)
	out = append(out, tag...)
	if len(body) > 2 {
		out = append(out, ',')
		out = append(out, body[1:]...)
	} else {
		out = append(out, '}')
	}
	return out, nil
}

func (w *WireEvent) UnmarshalJSON(data []byte) error {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return fmt.Errorf("event: %w", err)
	}

	var err error
	switch EventType(head.Type) {
	case EventBeat:
		var e BeatEvent
		err = json.Unmarshal(data, &e)
		w.Event = e
	case EventFFT:
		var e FFTEvent
		err = json.Unmarshal(data, &e)
		w.Event = e
	case EventMIDI:
		var e MIDIEvent
		err = json.Unmarshal(data, &e)
		w.Event = e
	default:
		w.Event = UnknownEvent{Type: head.Type, Raw: append(json.RawMessage(nil), data...)}
	}
	if err != nil {
		return fmt.Errorf("event %s: %w", head.Type, err)
	}
	return nil
}
