// Package driver samples patterns on a fixed tick and pushes the resulting
// intensities to every connected device.
package driver

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go-pulse/debug"
	"go-pulse/device"
	"go-pulse/pattern"
)

// DefaultTickRate is the sampling rate used when none is given.
const DefaultTickRate = 10

// State is where a Driver is in its lifecycle.
type State int

const (
	Idle State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	}
	return "idle"
}

// Snapshot is what one tick sent. Levels holds the clamped intensity per
// actuator, Sources where each one came from.
type Snapshot struct {
	Tick     int
	Elapsed  float64
	Duration float64
	TickRate int
	Levels   map[device.DeviceID]map[device.ActuatorID]float64
	Sources  map[ActuatorKey]Source
}

// Unbounded reports whether the global pattern has no end.
func (s Snapshot) Unbounded() bool { return s.Duration >= pattern.Unbounded }

// Option configures a Driver.
type Option func(*Driver) error

// WithTickRate sets the sampling rate in Hz.
func WithTickRate(hz int) Option {
	return func(d *Driver) error {
		if hz <= 0 {
			return fmt.Errorf("%w: %d", ErrInvalidTickRate, hz)
		}
		d.tickRate = hz
		return nil
	}
}

// WithCommandTimeout bounds each device command. Zero means wait as long as
// the client takes.
func WithCommandTimeout(timeout time.Duration) Option {
	return func(d *Driver) error {
		if timeout < 0 {
			return fmt.Errorf("%w: %s", ErrInvalidTimeout, timeout)
		}
		d.timeout = timeout
		return nil
	}
}

// Driver owns a global pattern plus optional per-device and per-actuator
// overrides, and drives a device.Client with them. Patterns handed to a
// Driver belong to it from then on; sharing one instance between two
// installed slots shares its state.
type Driver struct {
	client  device.Client
	timeout time.Duration

	// Guarded by mu. While Running the loop goroutine is the only writer
	// and mutators queue into pending instead.
	mu        sync.Mutex
	state     State
	global    pattern.Pattern
	devices   map[device.DeviceID]pattern.Pattern
	actuators map[ActuatorKey]pattern.Pattern
	tickRate  int
	pending   []command

	updates chan Snapshot
}

// New creates an idle driver for client, running global.
func New(client device.Client, global pattern.Pattern, opts ...Option) (*Driver, error) {
	if client == nil {
		return nil, ErrNoClient
	}
	if err := pattern.Validate(global); err != nil {
		return nil, fmt.Errorf("global pattern: %w", err)
	}
	d := &Driver{
		client:    client,
		global:    global,
		devices:   make(map[device.DeviceID]pattern.Pattern),
		actuators: make(map[ActuatorKey]pattern.Pattern),
		tickRate:  DefaultTickRate,
		updates:   make(chan Snapshot, 1),
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// State returns the lifecycle state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Duration returns the current global pattern's duration in seconds.
func (d *Driver) Duration() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.global.Duration()
}

// Updates delivers the latest tick snapshot. Slow readers miss intermediate
// ticks; they never block the loop.
func (d *Driver) Updates() <-chan Snapshot {
	return d.updates
}

// Run drives devices until the global pattern ends or ctx is cancelled.
// Every exit path, including a failed command, sends stop-all exactly once.
// Ending by duration or cancellation returns nil.
func (d *Driver) Run(ctx context.Context) error {
	return d.run(ctx, nil)
}

// RunWhile is Run with an extra stop condition: the loop ends at the first
// tick where keepRunning is false. A nil flag behaves like Run.
func (d *Driver) RunWhile(ctx context.Context, keepRunning *atomic.Bool) error {
	if keepRunning == nil {
		return d.run(ctx, nil)
	}
	return d.run(ctx, keepRunning.Load)
}

func (d *Driver) run(ctx context.Context, keepRunning func() bool) (err error) {
	d.mu.Lock()
	if d.state == Running {
		d.mu.Unlock()
		return ErrRunning
	}
	d.state = Running
	d.resetAll()
	rate := d.tickRate
	d.mu.Unlock()

	defer func() {
		if stopErr := d.stopAll(ctx); stopErr != nil {
			err = errors.Join(err, stopErr)
		}
		d.finish()
		debug.Log("driver", "run end err=%v", err)
	}()

	debug.Log("driver", "run start rate=%dHz duration=%s", rate, fmtDuration(d.global.Duration()))

	ticker := time.NewTicker(period(rate))
	defer ticker.Stop()

	start := time.Now()
	for tick := 0; ; tick++ {
		if hz := d.drain(); hz > 0 {
			ticker.Reset(period(hz))
			debug.Log("driver", "tick rate now %dHz", hz)
		}

		elapsed := time.Since(start).Seconds()
		if elapsed > d.global.Duration() {
			return nil
		}
		if ctx.Err() != nil || (keepRunning != nil && !keepRunning()) {
			return nil
		}

		if err := d.tick(ctx, tick, elapsed); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
}

// tick samples the global pattern once, resolves every actuator of every
// currently connected device and sends one command per device.
func (d *Driver) tick(ctx context.Context, n int, elapsed float64) error {
	global := d.global.Sample(elapsed)
	snap := Snapshot{
		Tick:     n,
		Elapsed:  elapsed,
		Duration: d.global.Duration(),
		TickRate: d.tickRate,
		Levels:   make(map[device.DeviceID]map[device.ActuatorID]float64),
		Sources:  make(map[ActuatorKey]Source),
	}

	for _, dev := range d.client.Devices() {
		levels := make(map[device.ActuatorID]float64, len(dev.Actuators))
		for _, a := range dev.Actuators {
			key := ActuatorKey{dev.ID, a}
			v, src := d.resolve(key, elapsed, global)
			levels[a] = clampLevel(v)
			snap.Sources[key] = src
		}
		err := d.send(ctx, dev.ID, levels)
		if errors.Is(err, device.ErrUnknownDevice) {
			// Unplugged since Devices(); the next tick no longer lists it.
			debug.Log("driver", "tick %d: %s gone", n, dev)
			for _, a := range dev.Actuators {
				delete(snap.Sources, ActuatorKey{dev.ID, a})
			}
			continue
		}
		if err != nil {
			debug.Log("driver", "tick %d: %s send failed: %v", n, dev, err)
			return &CommandError{Device: dev.ID, Tick: n, Err: err}
		}
		snap.Levels[dev.ID] = maps.Clone(levels)
	}

	debug.LogEvery(50, "driver", "tick %d t=%.2f global=%.3f devices=%d", n, elapsed, global, len(snap.Levels))
	d.publish(snap)
	return nil
}

// commandContext detaches from cancellation so a command already underway
// is not cut short by the loop stopping, then applies the optional timeout.
func (d *Driver) commandContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if d.timeout > 0 {
		return context.WithTimeout(ctx, d.timeout)
	}
	return ctx, func() {}
}

func (d *Driver) send(ctx context.Context, id device.DeviceID, levels map[device.ActuatorID]float64) error {
	ctx, cancel := d.commandContext(ctx)
	defer cancel()
	return d.client.Send(ctx, id, levels)
}

func (d *Driver) stopAll(ctx context.Context) error {
	ctx, cancel := d.commandContext(ctx)
	defer cancel()
	if err := d.client.StopAll(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrStopAll, err)
	}
	return nil
}

// finish moves to Stopped and applies anything queued after the last tick.
func (d *Driver) finish() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = Stopped
	for _, c := range d.pending {
		c.apply(d, false)
	}
	d.pending = nil
}

// publish keeps only the newest snapshot in the channel.
func (d *Driver) publish(s Snapshot) {
	select {
	case d.updates <- s:
		return
	default:
	}
	select {
	case <-d.updates:
	default:
	}
	select {
	case d.updates <- s:
	default:
	}
}

// clampLevel keeps device levels inside [0, 1]; NaN becomes 0.
func clampLevel(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func fmtDuration(d float64) string {
	if d >= pattern.Unbounded {
		return "unbounded"
	}
	return fmt.Sprintf("%.2fs", d)
}
