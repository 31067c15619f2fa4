package device

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// CommandKind says which Client method produced a Command.
type CommandKind int

const (
	CommandSend CommandKind = iota
	CommandScalar
	CommandStopAll
)

func (k CommandKind) String() string {
	switch k {
	case CommandSend:
		return "send"
	case CommandScalar:
		return "scalar"
	case CommandStopAll:
		return "stop-all"
	}
	return fmt.Sprintf("command(%d)", int(k))
}

// Command is one recorded call on a Sim.
type Command struct {
	Kind   CommandKind
	Device DeviceID
	Levels map[ActuatorID]float64
}

// Sim is an in-memory Client. It backs the --sim mode and the driver tests:
// devices can be plugged and unplugged at any time, every command is logged,
// and sends can be made to fail.
type Sim struct {
	mu       sync.Mutex
	devices  map[DeviceID]Device
	order    []DeviceID
	levels   map[DeviceID]map[ActuatorID]float64
	log      []Command
	failures map[DeviceID]error
	stopErr  error
	closed   bool

	// OnSend, if set, runs before each Send is applied, outside the lock.
	OnSend func(id DeviceID)
}

// NewSim creates a simulated client with the given devices connected.
func NewSim(devices ...Device) *Sim {
	s := &Sim{
		devices:  make(map[DeviceID]Device),
		levels:   make(map[DeviceID]map[ActuatorID]float64),
		failures: make(map[DeviceID]error),
	}
	for _, d := range devices {
		s.Connect(d)
	}
	return s
}

// Connect plugs in a device, replacing one with the same ID.
func (s *Sim) Connect(d Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.devices[d.ID]; !ok {
		s.order = append(s.order, d.ID)
	}
	d.Actuators = slices.Clone(d.Actuators)
	s.devices[d.ID] = d
	if s.levels[d.ID] == nil {
		s.levels[d.ID] = make(map[ActuatorID]float64)
	}
}

// Disconnect unplugs a device.
func (s *Sim) Disconnect(id DeviceID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.devices, id)
	delete(s.levels, id)
	s.order = slices.DeleteFunc(s.order, func(d DeviceID) bool { return d == id })
}

// FailSends makes every later Send to id return err. A nil err clears it.
func (s *Sim) FailSends(id DeviceID, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, id)
		return
	}
	s.failures[id] = err
}

// FailStopAll makes StopAll return err after zeroing the devices.
func (s *Sim) FailStopAll(err error) {
	s.mu.Lock()
	s.stopErr = err
	s.mu.Unlock()
}

// Close makes every later call fail with ErrClosed.
func (s *Sim) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *Sim) Devices() []Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	out := make([]Device, 0, len(s.order))
	for _, id := range s.order {
		d := s.devices[id]
		d.Actuators = slices.Clone(d.Actuators)
		out = append(out, d)
	}
	return out
}

func (s *Sim) Send(ctx context.Context, id DeviceID, levels map[ActuatorID]float64) error {
	if s.OnSend != nil {
		s.OnSend(id)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(id); err != nil {
		return err
	}
	cmd := Command{Kind: CommandSend, Device: id, Levels: make(map[ActuatorID]float64, len(levels))}
	for a, v := range levels {
		cmd.Levels[a] = v
		s.levels[id][a] = v
	}
	s.log = append(s.log, cmd)
	return nil
}

func (s *Sim) SendScalar(ctx context.Context, id DeviceID, level float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(id); err != nil {
		return err
	}
	cmd := Command{Kind: CommandScalar, Device: id, Levels: make(map[ActuatorID]float64)}
	for _, a := range s.devices[id].Actuators {
		cmd.Levels[a] = level
		s.levels[id][a] = level
	}
	s.log = append(s.log, cmd)
	return nil
}

func (s *Sim) StopAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for id, d := range s.devices {
		for _, a := range d.Actuators {
			s.levels[id][a] = 0
		}
	}
	s.log = append(s.log, Command{Kind: CommandStopAll})
	return s.stopErr
}

// check must be called with mu held.
func (s *Sim) check(id DeviceID) error {
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.devices[id]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownDevice, id)
	}
	return s.failures[id]
}

// Level returns the last intensity written to an actuator.
func (s *Sim) Level(id DeviceID, a ActuatorID) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.levels[id][a]
}

// Commands returns a copy of the command log.
func (s *Sim) Commands() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.log)
}

// Count returns how many commands of a kind were recorded.
func (s *Sim) Count(kind CommandKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.log {
		if c.Kind == kind {
			n++
		}
	}
	return n
}
