package midi

import (
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"go-pulse/config"
	"go-pulse/device"

	"github.com/cwbudde/algo-vecmath"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver
)

// Output is an opened MIDI output port.
type Output interface {
	Send(msg gomidi.Message) error
	Close() error
}

// Backend enumerates and opens ports. RtMidi is the real one; tests plug in
// their own.
type Backend interface {
	OutPorts() []string
	InPorts() []string
	Open(name string) (Output, error)
	Listen(name string, fn func(gomidi.Message)) (stop func(), err error)
}

// Mapping says how the actuators of one port turn into control changes.
// Actuator i is written to Controls[i], scaled by Gains[i].
type Mapping struct {
	Channel  uint8 // 0-based
	Controls []uint8
	Gains    []float64
}

// normalized pads Gains to len(Controls) with unity gain.
func (m Mapping) normalized() Mapping {
	gains := make([]float64, len(m.Controls))
	for i := range gains {
		gains[i] = 1
		if i < len(m.Gains) {
			gains[i] = m.Gains[i]
		}
	}
	m.Gains = gains
	return m
}

// Options configures a DeviceManager.
type Options struct {
	// PortMatch selects ports whose lower-cased name contains it. Empty
	// matches nothing, so only Ports are used.
	PortMatch string
	Default   Mapping
	// Ports maps exact port names to their own mapping.
	Ports    map[string]Mapping
	PollRate time.Duration
}

// OptionsFromConfig converts the midi section of the config file. Channels
// there are 1-based; a device channel of 0 inherits the global one.
func OptionsFromConfig(c config.MIDIConfig) Options {
	o := Options{
		PortMatch: strings.ToLower(c.PortMatch),
		PollRate:  c.PollRate,
		Default:   Mapping{Channel: channel(c.Channel)},
		Ports:     make(map[string]Mapping, len(c.Devices)),
	}
	for _, cc := range c.Controls {
		o.Default.Controls = append(o.Default.Controls, uint8(cc))
	}
	for _, d := range c.Devices {
		ch := c.Channel
		if d.Channel != 0 {
			ch = d.Channel
		}
		m := Mapping{Channel: channel(ch)}
		for _, a := range d.Actuators {
			gain := a.Gain
			if gain == 0 {
				gain = 1
			}
			m.Controls = append(m.Controls, uint8(a.CC))
			m.Gains = append(m.Gains, gain)
		}
		o.Ports[d.Port] = m
	}
	return o
}

func channel(oneBased int) uint8 {
	if oneBased < 1 {
		return 0
	}
	return uint8(oneBased - 1)
}

// PortID derives a device ID from a port name, so a device keeps its ID
// (and its overrides) across unplug and replug.
func PortID(name string) device.DeviceID {
	h := fnv.New32a()
	h.Write([]byte(name))
	return device.DeviceID(h.Sum32())
}

// ccValues applies gains, clamps into [0,1] and scales to 0..127.
func ccValues(levels, gains []float64) []uint8 {
	scaled := make([]float64, len(levels))
	copy(scaled, levels)
	vecmath.MulBlockInPlace(scaled, gains)
	for i, v := range scaled {
		scaled[i] = min(max(v, 0), 1)
	}
	vecmath.ScaleBlock(scaled, scaled, 127)

	out := make([]uint8, len(scaled))
	for i, v := range scaled {
		out[i] = uint8(v + 0.5)
	}
	return out
}

// RtMidi is the gomidi backend using the rtmidi driver.
type RtMidi struct{}

func (RtMidi) OutPorts() []string {
	var names []string
	for _, p := range gomidi.GetOutPorts() {
		names = append(names, p.String())
	}
	return names
}

func (RtMidi) InPorts() []string {
	var names []string
	for _, p := range gomidi.GetInPorts() {
		names = append(names, p.String())
	}
	return names
}

func (RtMidi) Open(name string) (Output, error) {
	for _, p := range gomidi.GetOutPorts() {
		if p.String() != name {
			continue
		}
		send, err := gomidi.SendTo(p)
		if err != nil {
			return nil, fmt.Errorf("open output %s: %w", name, err)
		}
		return &output{port: p, send: send}, nil
	}
	return nil, fmt.Errorf("open output %s: %w", name, ErrPortNotFound)
}

func (RtMidi) Listen(name string, fn func(gomidi.Message)) (func(), error) {
	for _, p := range gomidi.GetInPorts() {
		if p.String() != name {
			continue
		}
		stop, err := gomidi.ListenTo(p, func(msg gomidi.Message, timestampms int32) {
			fn(msg)
		})
		if err != nil {
			return nil, fmt.Errorf("open input %s: %w", name, err)
		}
		return stop, nil
	}
	return nil, fmt.Errorf("open input %s: %w", name, ErrPortNotFound)
}

type output struct {
	port drivers.Out
	send func(gomidi.Message) error
}

func (o *output) Send(msg gomidi.Message) error { return o.send(msg) }
func (o *output) Close() error                  { return o.port.Close() }

// listPorts runs fn with a timeout. CoreMIDI can hang while enumerating;
// ok is false when it did.
func listPorts(fn func() []string, timeout time.Duration) (names []string, ok bool) {
	ch := make(chan []string, 1)
	go func() {
		ch <- fn()
	}()

	select {
	case names = <-ch:
		return names, true
	case <-time.After(timeout):
		return nil, false
	}
}
