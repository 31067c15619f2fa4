package midi

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go-pulse/debug"
	"go-pulse/device"

	gomidi "gitlab.com/gomidi/midi/v2"
)

// DefaultPollRate is how often Run rescans ports when Options leave it zero.
const DefaultPollRate = time.Second

const enumerateTimeout = 3 * time.Second

var ErrPortNotFound = errors.New("port not found")

type port struct {
	name    string
	dev     device.Device
	mapping Mapping
	mu      sync.Mutex // serializes writes to out
	out     Output
}

// write sends one control change per actuator.
func (p *port) write(levels []float64) error {
	values := ccValues(levels, p.mapping.Gains)
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, v := range values {
		cc := p.mapping.Controls[i]
		if err := p.out.Send(gomidi.ControlChange(p.mapping.Channel, cc, v)); err != nil {
			return fmt.Errorf("send %s cc%d: %w", p.name, cc, err)
		}
	}
	return nil
}

func (p *port) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out.Close()
}

// DeviceManager handles hot-plug detection of MIDI outputs and is the
// device.Client the driver talks to. Every matching output port is one
// device; its actuators are the port's configured control changes.
type DeviceManager struct {
	opts    Options
	backend Backend
	scanMu  sync.Mutex

	mu     sync.RWMutex
	ports  map[device.DeviceID]*port
	order  []device.DeviceID
	closed bool

	events    chan DeviceEvent
	closeOnce sync.Once
}

// NewDeviceManager creates a device manager. A nil backend means RtMidi.
func NewDeviceManager(opts Options, backend Backend) *DeviceManager {
	if backend == nil {
		backend = RtMidi{}
	}
	if opts.PollRate <= 0 {
		opts.PollRate = DefaultPollRate
	}
	opts.Default = opts.Default.normalized()
	ports := make(map[string]Mapping, len(opts.Ports))
	for name, m := range opts.Ports {
		ports[name] = m.normalized()
	}
	opts.Ports = ports

	return &DeviceManager{
		opts:    opts,
		backend: backend,
		ports:   make(map[device.DeviceID]*port),
		events:  make(chan DeviceEvent, 16),
	}
}

// Events returns a channel of device connect/disconnect events. It is
// closed by Close.
func (dm *DeviceManager) Events() <-chan DeviceEvent {
	return dm.events
}

// Run starts the polling loop (blocking - run in goroutine). It closes every
// port when ctx is done.
func (dm *DeviceManager) Run(ctx context.Context) {
	ticker := time.NewTicker(dm.opts.PollRate)
	defer ticker.Stop()

	dm.Scan()

	for {
		select {
		case <-ctx.Done():
			dm.Close()
			return
		case <-ticker.C:
			dm.Scan()
		}
	}
}

// mapping returns how a port is driven, or false if it is not ours.
func (dm *DeviceManager) mapping(name string) (Mapping, bool) {
	if m, ok := dm.opts.Ports[name]; ok {
		return m, true
	}
	if dm.opts.PortMatch != "" && strings.Contains(strings.ToLower(name), dm.opts.PortMatch) {
		return dm.opts.Default, true
	}
	return Mapping{}, false
}

// Scan enumerates output ports once, opening new matches and closing ports
// that went away.
func (dm *DeviceManager) Scan() {
	dm.scanMu.Lock()
	defer dm.scanMu.Unlock()

	names, ok := listPorts(dm.backend.OutPorts, enumerateTimeout)
	if !ok {
		// CoreMIDI is hung - skip this scan
		debug.Log("midi", "port enumeration timed out")
		return
	}

	var events []DeviceEvent
	seen := make(map[device.DeviceID]bool)

	for _, name := range names {
		m, ok := dm.mapping(name)
		if !ok {
			continue
		}
		id := PortID(name)
		seen[id] = true

		dm.mu.RLock()
		_, exists := dm.ports[id]
		closed := dm.closed
		dm.mu.RUnlock()
		if exists || closed {
			continue
		}

		out, err := dm.backend.Open(name)
		if err != nil {
			debug.Log("midi", "open %s: %v", name, err)
			continue
		}
		p := &port{
			name:    name,
			mapping: m,
			out:     out,
			dev:     device.Device{ID: id, Name: name, Actuators: actuators(len(m.Controls))},
		}

		dm.mu.Lock()
		if dm.closed {
			dm.mu.Unlock()
			p.close()
			return
		}
		dm.ports[id] = p
		dm.order = append(dm.order, id)
		dm.mu.Unlock()

		debug.Log("midi", "connected %s id=%d actuators=%d", name, id, len(m.Controls))
		events = append(events, DeviceEvent{Type: DeviceConnected, Device: p.dev, Port: name})
	}

	// Check for disconnects
	dm.mu.Lock()
	var gone []*port
	for _, id := range dm.order {
		if !seen[id] {
			gone = append(gone, dm.ports[id])
			delete(dm.ports, id)
		}
	}
	dm.order = slices.DeleteFunc(dm.order, func(id device.DeviceID) bool { return !seen[id] })
	dm.mu.Unlock()

	for _, p := range gone {
		p.close()
		debug.Log("midi", "disconnected %s", p.name)
		events = append(events, DeviceEvent{Type: DeviceDisconnected, Device: p.dev, Port: p.name})
	}

	for _, ev := range events {
		dm.emit(ev)
	}
}

// emit never blocks the scan; a full channel drops the event.
func (dm *DeviceManager) emit(ev DeviceEvent) {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	if dm.closed {
		return
	}
	select {
	case dm.events <- ev:
	default:
		debug.Log("midi", "event dropped: %s %s", ev.Type, ev.Port)
	}
}

func actuators(n int) []device.ActuatorID {
	ids := make([]device.ActuatorID, n)
	for i := range ids {
		ids[i] = device.ActuatorID(i)
	}
	return ids
}

// Devices returns the connected ports in connection order.
func (dm *DeviceManager) Devices() []device.Device {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	out := make([]device.Device, 0, len(dm.order))
	for _, id := range dm.order {
		d := dm.ports[id].dev
		d.Actuators = slices.Clone(d.Actuators)
		out = append(out, d)
	}
	return out
}

func (dm *DeviceManager) lookup(id device.DeviceID) (*port, error) {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	if dm.closed {
		return nil, device.ErrClosed
	}
	p, ok := dm.ports[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", device.ErrUnknownDevice, id)
	}
	return p, nil
}

// Send writes one control change per actuator. Actuators missing from
// levels are written as 0.
func (dm *DeviceManager) Send(ctx context.Context, id device.DeviceID, levels map[device.ActuatorID]float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := dm.lookup(id)
	if err != nil {
		return err
	}
	values := make([]float64, len(p.mapping.Controls))
	for i := range values {
		values[i] = levels[device.ActuatorID(i)]
	}
	debug.LogEvery(100, "midi", "send %s %v", p.name, values)
	return p.write(values)
}

// SendScalar writes the same level to every actuator of a device.
func (dm *DeviceManager) SendScalar(ctx context.Context, id device.DeviceID, level float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := dm.lookup(id)
	if err != nil {
		return err
	}
	values := make([]float64, len(p.mapping.Controls))
	for i := range values {
		values[i] = level
	}
	return p.write(values)
}

// StopAll writes 0 to every actuator of every connected port. It keeps
// going past failures and reports all of them.
func (dm *DeviceManager) StopAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dm.mu.RLock()
	if dm.closed {
		dm.mu.RUnlock()
		return device.ErrClosed
	}
	ports := make([]*port, 0, len(dm.order))
	for _, id := range dm.order {
		ports = append(ports, dm.ports[id])
	}
	dm.mu.RUnlock()

	var errs []error
	for _, p := range ports {
		if err := p.write(make([]float64, len(p.mapping.Controls))); err != nil {
			errs = append(errs, err)
		}
	}
	debug.Log("midi", "stop-all ports=%d errors=%d", len(ports), len(errs))
	return errors.Join(errs...)
}

// Close closes every open port and the events channel. Later calls on the
// client fail with device.ErrClosed.
func (dm *DeviceManager) Close() error {
	var errs []error
	dm.closeOnce.Do(func() {
		dm.mu.Lock()
		defer dm.mu.Unlock()
		for _, id := range dm.order {
			if err := dm.ports[id].close(); err != nil {
				errs = append(errs, err)
			}
		}
		dm.ports = make(map[device.DeviceID]*port)
		dm.order = nil
		dm.closed = true
		close(dm.events)
	})
	return errors.Join(errs...)
}
