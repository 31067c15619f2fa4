package midi

import (
	"fmt"
	"strings"
	"sync/atomic"

	"go-pulse/debug"

	gomidi "gitlab.com/gomidi/midi/v2"
)

// PanicInput listens on a MIDI input (a pedal, pad or keyboard) and clears
// a run flag the first time any key is pressed, or the configured controller
// goes past half way. Pair it with driver.RunWhile.
type PanicInput struct {
	port   string
	cc     int
	flag   *atomic.Bool
	stop   func()
	events chan DeviceEvent
}

// NewPanicInput opens the first input port whose name contains match
// (case-insensitive). cc < 0 ignores control changes.
func NewPanicInput(backend Backend, match string, cc int, flag *atomic.Bool) (*PanicInput, error) {
	if backend == nil {
		backend = RtMidi{}
	}
	names, ok := listPorts(backend.InPorts, enumerateTimeout)
	if !ok {
		return nil, fmt.Errorf("panic input: port enumeration timed out")
	}
	match = strings.ToLower(match)
	for _, name := range names {
		if match == "" || !strings.Contains(strings.ToLower(name), match) {
			continue
		}
		pi := &PanicInput{
			port:   name,
			cc:     cc,
			flag:   flag,
			events: make(chan DeviceEvent, 1),
		}
		stop, err := backend.Listen(name, pi.handle)
		if err != nil {
			return nil, fmt.Errorf("panic input: %w", err)
		}
		pi.stop = stop
		debug.Log("midi", "panic input on %s", name)
		return pi, nil
	}
	return nil, fmt.Errorf("panic input %q: %w", match, ErrPortNotFound)
}

// Port returns the name of the input port being watched.
func (pi *PanicInput) Port() string { return pi.port }

// Events delivers one PanicPressed event when the flag is cleared.
func (pi *PanicInput) Events() <-chan DeviceEvent { return pi.events }

func (pi *PanicInput) handle(msg gomidi.Message) {
	var channel, key, velocity, cc, value uint8
	pressed := msg.GetNoteOn(&channel, &key, &velocity) && velocity > 0
	if !pressed && pi.cc >= 0 && msg.GetControlChange(&channel, &cc, &value) {
		pressed = int(cc) == pi.cc && value >= 64
	}
	if !pressed || !pi.flag.Swap(false) {
		return
	}
	debug.Log("midi", "panic from %s: %s", pi.port, msg)
	select {
	case pi.events <- DeviceEvent{Type: PanicPressed, Port: pi.port}:
	default:
	}
}

// Close stops listening.
func (pi *PanicInput) Close() error {
	if pi.stop != nil {
		pi.stop()
	}
	return nil
}
