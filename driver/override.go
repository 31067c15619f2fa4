package driver

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"go-pulse/debug"
	"go-pulse/device"
	"go-pulse/pattern"
)

// ActuatorKey addresses one actuator of one device.
type ActuatorKey struct {
	Device   device.DeviceID
	Actuator device.ActuatorID
}

// Source says which level of the override hierarchy produced a level.
type Source int

const (
	SourceGlobal Source = iota
	SourceDevice
	SourceActuator
)

func (s Source) String() string {
	switch s {
	case SourceDevice:
		return "device"
	case SourceActuator:
		return "actuator"
	}
	return "global"
}

type commandKind int

const (
	cmdSetGlobal commandKind = iota
	cmdSetDevice
	cmdClearDevice
	cmdSetActuator
	cmdClearActuator
	cmdSetTickRate
)

// command is a queued mutation. While a run is in progress mutations wait
// here and are applied at the next tick boundary.
type command struct {
	kind    commandKind
	device  device.DeviceID
	key     ActuatorKey
	pattern pattern.Pattern
	rate    int
}

// apply must be called with mu held. live means a run is in progress, so a
// newly installed pattern starts from a clean state.
func (c command) apply(d *Driver, live bool) {
	if live && c.pattern != nil {
		c.pattern.Reset()
	}
	switch c.kind {
	case cmdSetGlobal:
		d.global = c.pattern
	case cmdSetDevice:
		d.devices[c.device] = c.pattern
	case cmdClearDevice:
		delete(d.devices, c.device)
	case cmdSetActuator:
		d.actuators[c.key] = c.pattern
	case cmdClearActuator:
		delete(d.actuators, c.key)
	case cmdSetTickRate:
		d.tickRate = c.rate
	}
}

// submit applies c now when idle, or queues it for the running loop.
func (d *Driver) submit(c command) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.submitLocked(c)
}

func (d *Driver) submitLocked(c command) {
	if d.state == Running {
		d.pending = append(d.pending, c)
		return
	}
	c.apply(d, false)
}

// drain applies queued commands at a tick boundary. It returns the new tick
// rate if one of them changed it, or 0.
func (d *Driver) drain() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pending) == 0 {
		return 0
	}
	before := d.tickRate
	for _, c := range d.pending {
		c.apply(d, true)
	}
	debug.Log("driver", "applied %d queued changes", len(d.pending))
	d.pending = nil
	if d.tickRate != before {
		return d.tickRate
	}
	return 0
}

// SetGlobal replaces the pattern used by every actuator without an override.
func (d *Driver) SetGlobal(p pattern.Pattern) error {
	if err := pattern.Validate(p); err != nil {
		return fmt.Errorf("global pattern: %w", err)
	}
	d.submit(command{kind: cmdSetGlobal, pattern: p})
	return nil
}

// SetDeviceOverride makes every actuator of a device follow p unless the
// actuator has its own override.
func (d *Driver) SetDeviceOverride(id device.DeviceID, p pattern.Pattern) error {
	if err := pattern.Validate(p); err != nil {
		return fmt.Errorf("device %d override: %w", id, err)
	}
	d.submit(command{kind: cmdSetDevice, device: id, pattern: p})
	return nil
}

// ClearDeviceOverride removes a device override, if any.
func (d *Driver) ClearDeviceOverride(id device.DeviceID) {
	d.submit(command{kind: cmdClearDevice, device: id})
}

// SetActuatorOverride makes one actuator follow p.
func (d *Driver) SetActuatorOverride(id device.DeviceID, a device.ActuatorID, p pattern.Pattern) error {
	if err := pattern.Validate(p); err != nil {
		return fmt.Errorf("device %d actuator %d override: %w", id, a, err)
	}
	d.submit(command{kind: cmdSetActuator, key: ActuatorKey{id, a}, pattern: p})
	return nil
}

// ClearActuatorOverride removes an actuator override, if any.
func (d *Driver) ClearActuatorOverride(id device.DeviceID, a device.ActuatorID) {
	d.submit(command{kind: cmdClearActuator, key: ActuatorKey{id, a}})
}

// SetTickRate changes the sampling rate. A running loop picks it up at the
// next tick.
func (d *Driver) SetTickRate(hz int) error {
	if hz <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidTickRate, hz)
	}
	d.submit(command{kind: cmdSetTickRate, rate: hz})
	return nil
}

// StepTickRate adds delta to the tick rate, counting changes still queued
// for the next tick, and returns the new rate.
func (d *Driver) StepTickRate(delta int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rate := d.tickRate
	for _, c := range d.pending {
		if c.kind == cmdSetTickRate {
			rate = c.rate
		}
	}
	rate += delta
	if rate <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidTickRate, rate)
	}
	d.submitLocked(command{kind: cmdSetTickRate, rate: rate})
	return rate, nil
}

// ToggleDeviceOverride clears the device's override if it has one, queued
// changes included, and installs p otherwise. It reports whether the
// override is now set.
func (d *Driver) ToggleDeviceOverride(id device.DeviceID, p pattern.Pattern) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, set := d.devices[id]
	for _, c := range d.pending {
		switch {
		case c.kind == cmdSetDevice && c.device == id:
			set = true
		case c.kind == cmdClearDevice && c.device == id:
			set = false
		}
	}
	if set {
		d.submitLocked(command{kind: cmdClearDevice, device: id})
		return false, nil
	}
	if err := pattern.Validate(p); err != nil {
		return false, fmt.Errorf("device %d override: %w", id, err)
	}
	d.submitLocked(command{kind: cmdSetDevice, device: id, pattern: p})
	return true, nil
}

// TickRate returns the configured rate in Hz.
func (d *Driver) TickRate() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tickRate
}

// DeviceOverrides lists devices that have an override, in ID order.
func (d *Driver) DeviceOverrides() []device.DeviceID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Sorted(maps.Keys(d.devices))
}

// ActuatorOverrides lists actuators that have an override.
func (d *Driver) ActuatorOverrides() []ActuatorKey {
	d.mu.Lock()
	defer d.mu.Unlock()
	keys := slices.Collect(maps.Keys(d.actuators))
	slices.SortFunc(keys, func(a, b ActuatorKey) int {
		if a.Device != b.Device {
			return int(a.Device) - int(b.Device)
		}
		return int(a.Actuator) - int(b.Actuator)
	})
	return keys
}

// resolve picks the level for one actuator: its own override, then its
// device's override, then the tick's shared global sample. Overrides are
// sampled fresh on every call.
func (d *Driver) resolve(key ActuatorKey, elapsed, global float64) (float64, Source) {
	if p, ok := d.actuators[key]; ok {
		return p.Sample(elapsed), SourceActuator
	}
	if p, ok := d.devices[key.Device]; ok {
		return p.Sample(elapsed), SourceDevice
	}
	return global, SourceGlobal
}

// resetAll must be called with mu held, before a run starts.
func (d *Driver) resetAll() {
	d.global.Reset()
	for _, p := range d.devices {
		p.Reset()
	}
	for _, p := range d.actuators {
		p.Reset()
	}
}

func period(hz int) time.Duration {
	return time.Second / time.Duration(hz)
}
