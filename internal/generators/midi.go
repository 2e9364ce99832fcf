package generators

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"

	"github.com/lightshow/lightshow/internal/animation"
)

// MIDI parses a raw MIDI byte stream into channel voice events. Running
// status is honoured, system exclusive data is skipped and realtime bytes
// are ignored.
type MIDI struct {
	*animation.Params
	open func() (io.ReadCloser, error)

	status uint8
	data   [2]uint8
	have   int
	sysex  bool
}

// NewMIDI opens device (for example /dev/snd/midiC1D0) when run.
func NewMIDI(device string) *MIDI {
	return newMIDI(func() (io.ReadCloser, error) { return os.Open(device) })
}

func newMIDI(open func() (io.ReadCloser, error)) *MIDI {
	return &MIDI{
		Params: animation.NewParams(animation.ParameterSchema{
			ID:          "channel",
			Name:        "Channel",
			Description: "Only forward this channel (0 forwards all)",
			Type:        animation.TypeInt,
			Min:         animation.Bound(0),
			Max:         animation.Bound(16),
			Default:     []byte("0"),
		}),
		open: open,
	}
}

func (m *MIDI) Name() string { return "midi" }

// Restart drops any partially received message.
func (m *MIDI) Restart() error {
	m.status, m.have, m.sysex = 0, 0, false
	return nil
}

func (m *MIDI) Run(ctx context.Context, emit func(animation.Event)) error {
	rc, err := m.open()
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		rc.Close()
	}()

	r := bufio.NewReader(rc)
	for {
		b, err := r.ReadByte()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if e, ok := m.Feed(b); ok {
			emit(e)
		}
	}
}

func dataLen(status uint8) int {
	switch status & 0xF0 {
	case 0xC0, 0xD0:
		return 1
	default:
		return 2
	}
}

// Feed consumes one byte and returns a completed event.
func (m *MIDI) Feed(b uint8) (animation.MIDIEvent, bool) {
	switch {
	case b >= 0xF8:
		return animation.MIDIEvent{}, false
	case b == 0xF0:
		m.sysex, m.status, m.have = true, 0, 0
		return animation.MIDIEvent{}, false
	case b == 0xF7:
		m.sysex = false
		return animation.MIDIEvent{}, false
	case b >= 0xF0:
		m.status, m.have, m.sysex = 0, 0, false
		return animation.MIDIEvent{}, false
	case b >= 0x80:
		m.status, m.have, m.sysex = b, 0, false
		return animation.MIDIEvent{}, false
	}

	if m.sysex || m.status == 0 {
		return animation.MIDIEvent{}, false
	}
	m.data[m.have] = b
	m.have++
	if m.have < dataLen(m.status) {
		return animation.MIDIEvent{}, false
	}
	m.have = 0

	e := animation.MIDIEvent{
		Status:  m.status & 0xF0,
		Channel: m.status&0x0F + 1,
		Data1:   m.data[0],
	}
	if dataLen(m.status) == 2 {
		e.Data2 = m.data[1]
	}
	if e.Status == 0x90 && e.Data2 == 0 {
		e.Status = 0x80
	}

	if ch := m.Get("channel").Int(); ch != 0 && int64(e.Channel) != ch {
		return animation.MIDIEvent{}, false
	}
	return e, true
}
