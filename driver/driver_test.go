package driver

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"go-pulse/device"
	"go-pulse/pattern"
)

// counting is a constant pattern that counts resets and samples.
type counting struct {
	level   float64
	length  float64
	resets  atomic.Int32
	samples atomic.Int32
}

func (p *counting) Sample(float64) float64 { p.samples.Add(1); return p.level }
func (p *counting) Duration() float64      { return p.length }
func (p *counting) Reset()                 { p.resets.Add(1) }

func forever(level float64) pattern.Pattern {
	return pattern.NewConstant(level, pattern.Unbounded)
}

func sendsTo(s *device.Sim, id device.DeviceID) []device.Command {
	var out []device.Command
	for _, c := range s.Commands() {
		if c.Kind == device.CommandSend && c.Device == id {
			out = append(out, c)
		}
	}
	return out
}

func newDriver(t *testing.T, c device.Client, global pattern.Pattern, opts ...Option) *Driver {
	t.Helper()
	d, err := New(c, global, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return d
}

func TestOverrideResolution(t *testing.T) {
	sim := device.NewSim(
		device.Device{ID: 1, Actuators: []device.ActuatorID{0, 1}},
		device.Device{ID: 2, Actuators: []device.ActuatorID{0}},
	)
	d := newDriver(t, sim, pattern.NewConstant(0.2, 0.2), WithTickRate(20))
	if err := d.SetDeviceOverride(1, forever(0.5)); err != nil {
		t.Fatalf("SetDeviceOverride() error = %v", err)
	}
	if err := d.SetActuatorOverride(1, 1, forever(0.9)); err != nil {
		t.Fatalf("SetActuatorOverride() error = %v", err)
	}

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	dev1 := sendsTo(sim, 1)
	dev2 := sendsTo(sim, 2)
	if len(dev1) == 0 || len(dev2) == 0 {
		t.Fatalf("no commands sent: dev1=%d dev2=%d", len(dev1), len(dev2))
	}
	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"device override", dev1[0].Levels[0], 0.5},
		{"actuator override", dev1[0].Levels[1], 0.9},
		{"global", dev2[0].Levels[0], 0.2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Fatalf("level = %v, want %v", tt.got, tt.want)
			}
		})
	}

	snap := <-d.Updates()
	if snap.Sources[ActuatorKey{1, 1}] != SourceActuator ||
		snap.Sources[ActuatorKey{1, 0}] != SourceDevice ||
		snap.Sources[ActuatorKey{2, 0}] != SourceGlobal {
		t.Fatalf("Sources = %v", snap.Sources)
	}
}

func TestTickCountFollowsDurationAndRate(t *testing.T) {
	sim := device.NewSim(device.Device{ID: 1, Actuators: []device.ActuatorID{0}})
	d := newDriver(t, sim, pattern.NewConstant(0.4, 0.5), WithTickRate(20))

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := int(math.Ceil(0.5 * 20))
	got := len(sendsTo(sim, 1))
	if got < want-2 || got > want+1 {
		t.Fatalf("sent %d commands, want about %d", got, want)
	}
	if n := sim.Count(device.CommandStopAll); n != 1 {
		t.Fatalf("stop-all sent %d times, want 1", n)
	}
	if d.State() != Stopped {
		t.Fatalf("State() = %v, want stopped", d.State())
	}
}

func TestCancellationStopsOnce(t *testing.T) {
	sim := device.NewSim(device.Device{ID: 1, Actuators: []device.ActuatorID{0}})
	d := newDriver(t, sim, forever(0.3), WithTickRate(50))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var sends atomic.Int32
	sim.OnSend = func(device.DeviceID) {
		if sends.Add(1) == 3 {
			cancel()
		}
	}

	if err := d.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	// The send that observed cancellation still lands.
	if got := len(sendsTo(sim, 1)); got != 3 {
		t.Fatalf("sent %d commands, want 3", got)
	}
	if n := sim.Count(device.CommandStopAll); n != 1 {
		t.Fatalf("stop-all sent %d times, want 1", n)
	}
	if got := sim.Level(1, 0); got != 0 {
		t.Fatalf("level after stop = %v, want 0", got)
	}
}

func TestRunWhileFlag(t *testing.T) {
	sim := device.NewSim(device.Device{ID: 1, Actuators: []device.ActuatorID{0}})
	d := newDriver(t, sim, forever(0.3), WithTickRate(50))

	var keep atomic.Bool
	keep.Store(true)
	sim.OnSend = func(device.DeviceID) {
		if len(sim.Commands()) >= 1 {
			keep.Store(false)
		}
	}

	if err := d.RunWhile(context.Background(), &keep); err != nil {
		t.Fatalf("RunWhile() error = %v", err)
	}
	if got := len(sendsTo(sim, 1)); got != 2 {
		t.Fatalf("sent %d commands, want 2", got)
	}
	if n := sim.Count(device.CommandStopAll); n != 1 {
		t.Fatalf("stop-all sent %d times, want 1", n)
	}
}

func TestRunWhileAlreadyFalse(t *testing.T) {
	sim := device.NewSim(device.Device{ID: 1, Actuators: []device.ActuatorID{0}})
	d := newDriver(t, sim, forever(0.3))

	var keep atomic.Bool
	if err := d.RunWhile(context.Background(), &keep); err != nil {
		t.Fatalf("RunWhile() error = %v", err)
	}
	if got := len(sendsTo(sim, 1)); got != 0 {
		t.Fatalf("sent %d commands, want 0", got)
	}
	if n := sim.Count(device.CommandStopAll); n != 1 {
		t.Fatalf("stop-all sent %d times, want 1", n)
	}
}

func TestCommandFailureEndsRun(t *testing.T) {
	boom := errors.New("boom")
	sim := device.NewSim(
		device.Device{ID: 1, Actuators: []device.ActuatorID{0}},
		device.Device{ID: 2, Actuators: []device.ActuatorID{0}},
	)
	sim.FailSends(2, boom)
	d := newDriver(t, sim, forever(0.3), WithTickRate(50))

	err := d.Run(context.Background())
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("Run() = %v, want *CommandError", err)
	}
	if cmdErr.Device != 2 || cmdErr.Tick != 0 {
		t.Fatalf("CommandError = %+v", cmdErr)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("Run() = %v, want it to wrap boom", err)
	}
	if n := sim.Count(device.CommandStopAll); n != 1 {
		t.Fatalf("stop-all sent %d times, want 1", n)
	}
}

func TestStopAllFailureIsReported(t *testing.T) {
	boom := errors.New("boom")
	bus := errors.New("bus gone")
	sim := device.NewSim(device.Device{ID: 1, Actuators: []device.ActuatorID{0}})
	sim.FailSends(1, boom)
	sim.FailStopAll(bus)
	d := newDriver(t, sim, forever(0.3))

	err := d.Run(context.Background())
	for _, want := range []error{boom, bus, ErrStopAll} {
		if !errors.Is(err, want) {
			t.Fatalf("Run() = %v, want it to wrap %v", err, want)
		}
	}
}

func TestLevelsAreClamped(t *testing.T) {
	sim := device.NewSim(device.Device{ID: 1, Actuators: []device.ActuatorID{0, 1, 2}})
	d := newDriver(t, sim, pattern.NewConstant(1.7, 0.05))
	if err := d.SetActuatorOverride(1, 1, forever(-0.3)); err != nil {
		t.Fatal(err)
	}
	nan := pattern.NewFunc(func(float64) float64 { return math.NaN() }, pattern.Unbounded)
	if err := d.SetActuatorOverride(1, 2, nan); err != nil {
		t.Fatal(err)
	}

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	first := sendsTo(sim, 1)[0]
	want := map[device.ActuatorID]float64{0: 1, 1: 0, 2: 0}
	for a, v := range want {
		if first.Levels[a] != v {
			t.Fatalf("actuator %d = %v, want %v", a, first.Levels[a], v)
		}
	}
}

func TestInvalidConfiguration(t *testing.T) {
	sim := device.NewSim()
	tests := []struct {
		name string
		fn   func() error
		want error
	}{
		{"zero tick rate", func() error { _, err := New(sim, forever(0), WithTickRate(0)); return err }, ErrInvalidTickRate},
		{"negative tick rate", func() error { _, err := New(sim, forever(0), WithTickRate(-5)); return err }, ErrInvalidTickRate},
		{"negative timeout", func() error { _, err := New(sim, forever(0), WithCommandTimeout(-time.Second)); return err }, ErrInvalidTimeout},
		{"nil client", func() error { _, err := New(nil, forever(0)); return err }, ErrNoClient},
		{"invalid global", func() error { _, err := New(sim, pattern.NewSineWave(1, 0)); return err }, pattern.ErrInvalid},
		{"set tick rate", func() error { return newDriver(t, sim, forever(0)).SetTickRate(0) }, ErrInvalidTickRate},
		{"invalid override", func() error { return newDriver(t, sim, forever(0)).SetDeviceOverride(1, pattern.NewPause(-1)) }, pattern.ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRunResetsPatterns(t *testing.T) {
	sim := device.NewSim(device.Device{ID: 1, Actuators: []device.ActuatorID{0, 1}})
	global := &counting{level: 0.1, length: 0.05}
	override := &counting{level: 0.6, length: pattern.Unbounded}
	d := newDriver(t, sim, global)
	if err := d.SetDeviceOverride(1, override); err != nil {
		t.Fatal(err)
	}

	for range 2 {
		if err := d.Run(context.Background()); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	}
	if global.resets.Load() != 2 || override.resets.Load() != 2 {
		t.Fatalf("resets global=%d override=%d, want 2 each", global.resets.Load(), override.resets.Load())
	}
	// One global sample per tick, one override sample per actuator per tick.
	ticks := int32(len(sendsTo(sim, 1)))
	if global.samples.Load() != ticks || override.samples.Load() != 2*ticks {
		t.Fatalf("samples global=%d override=%d over %d ticks", global.samples.Load(), override.samples.Load(), ticks)
	}
}

func TestChangesQueuedWhileRunning(t *testing.T) {
	sim := device.NewSim(device.Device{ID: 1, Actuators: []device.ActuatorID{0}})
	d := newDriver(t, sim, forever(0.2), WithTickRate(50))
	late := &counting{level: 0.8, length: pattern.Unbounded}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var sends atomic.Int32
	sim.OnSend = func(device.DeviceID) {
		switch sends.Add(1) {
		case 1:
			if err := d.SetDeviceOverride(1, late); err != nil {
				t.Error(err)
			}
			if err := d.SetTickRate(100); err != nil {
				t.Error(err)
			}
			if d.TickRate() != 50 {
				t.Error("tick rate changed before the tick boundary")
			}
		case 4:
			cancel()
		}
	}

	if err := d.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	cmds := sendsTo(sim, 1)
	if cmds[0].Levels[0] != 0.2 {
		t.Fatalf("first level = %v, want 0.2", cmds[0].Levels[0])
	}
	for i, c := range cmds[1:] {
		if c.Levels[0] != 0.8 {
			t.Fatalf("level %d = %v, want 0.8", i+1, c.Levels[0])
		}
	}
	if late.resets.Load() != 1 {
		t.Fatalf("late override reset %d times, want 1", late.resets.Load())
	}
	if d.TickRate() != 100 {
		t.Fatalf("TickRate() = %d, want 100", d.TickRate())
	}
	if got := d.DeviceOverrides(); len(got) != 1 || got[0] != 1 {
		t.Fatalf("DeviceOverrides() = %v", got)
	}
}

func TestIdleChangesApplyImmediately(t *testing.T) {
	d := newDriver(t, device.NewSim(), forever(0))
	if err := d.SetActuatorOverride(2, 3, forever(1)); err != nil {
		t.Fatal(err)
	}
	if err := d.SetActuatorOverride(1, 0, forever(1)); err != nil {
		t.Fatal(err)
	}
	got := d.ActuatorOverrides()
	if len(got) != 2 || got[0] != (ActuatorKey{1, 0}) || got[1] != (ActuatorKey{2, 3}) {
		t.Fatalf("ActuatorOverrides() = %v", got)
	}
	d.ClearActuatorOverride(1, 0)
	d.ClearDeviceOverride(9)
	if got := d.ActuatorOverrides(); len(got) != 1 {
		t.Fatalf("ActuatorOverrides() after clear = %v", got)
	}
	if err := d.SetGlobal(pattern.NewConstant(0.5, 2)); err != nil {
		t.Fatal(err)
	}
	if d.Duration() != 2 {
		t.Fatalf("Duration() = %v, want 2", d.Duration())
	}
}

func TestHotPlugPickedUpNextTick(t *testing.T) {
	sim := device.NewSim(device.Device{ID: 1, Actuators: []device.ActuatorID{0}})
	d := newDriver(t, sim, forever(0.4), WithTickRate(50))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sim.OnSend = func(id device.DeviceID) {
		switch {
		case id == 1 && len(sendsTo(sim, 1)) == 1:
			sim.Connect(device.Device{ID: 2, Actuators: []device.ActuatorID{0, 1}})
		case id == 2:
			cancel()
		}
	}

	if err := d.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	dev2 := sendsTo(sim, 2)
	if len(dev2) != 1 || dev2[0].Levels[1] != 0.4 {
		t.Fatalf("device 2 commands = %+v", dev2)
	}
}

func TestRunTwiceConcurrently(t *testing.T) {
	sim := device.NewSim(device.Device{ID: 1, Actuators: []device.ActuatorID{0}})
	d := newDriver(t, sim, forever(0.1), WithTickRate(50))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for d.State() != Running {
		if time.Now().After(deadline) {
			t.Fatal("driver never started")
		}
		time.Sleep(time.Millisecond)
	}
	if err := d.Run(ctx); !errors.Is(err, ErrRunning) {
		t.Fatalf("second Run() = %v, want ErrRunning", err)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if n := sim.Count(device.CommandStopAll); n != 1 {
		t.Fatalf("stop-all sent %d times, want 1", n)
	}
}

func TestCommandTimeoutReachesClient(t *testing.T) {
	sim := device.NewSim(device.Device{ID: 1, Actuators: []device.ActuatorID{0}})
	d := newDriver(t, sim, pattern.NewConstant(0.5, 0.01), WithCommandTimeout(time.Second))
	ctx, cancel := d.commandContext(context.Background())
	defer cancel()
	if _, ok := ctx.Deadline(); !ok {
		t.Fatal("command context has no deadline")
	}
	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestNilChildRejected(t *testing.T) {
	sim := device.NewSim(device.Device{ID: 1, Actuators: []device.ActuatorID{0}})
	broken := pattern.Sum(pattern.NewConstant(0.2, 1), nil)
	if _, err := New(sim, broken); !errors.Is(err, pattern.ErrInvalid) {
		t.Fatalf("New() error = %v, want ErrInvalid", err)
	}

	d := newDriver(t, sim, forever(0.1))
	if err := d.SetGlobal(pattern.Sum(pattern.NewConstant(0.2, 1), nil)); !errors.Is(err, pattern.ErrInvalid) {
		t.Fatalf("SetGlobal() error = %v, want ErrInvalid", err)
	}
	if err := d.SetDeviceOverride(1, pattern.Repeat(nil, 2)); !errors.Is(err, pattern.ErrInvalid) {
		t.Fatalf("SetDeviceOverride() error = %v, want ErrInvalid", err)
	}
	if err := d.SetActuatorOverride(1, 0, pattern.Chain(nil, pattern.NewPause(1))); !errors.Is(err, pattern.ErrInvalid) {
		t.Fatalf("SetActuatorOverride() error = %v, want ErrInvalid", err)
	}
}

func TestVanishedDeviceSkipped(t *testing.T) {
	sim := device.NewSim(
		device.Device{ID: 1, Actuators: []device.ActuatorID{0}},
		device.Device{ID: 2, Actuators: []device.ActuatorID{0}},
	)
	d := newDriver(t, sim, forever(0.5), WithTickRate(50))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var sends atomic.Int32
	sim.OnSend = func(id device.DeviceID) {
		if id != 1 {
			return
		}
		switch sends.Add(1) {
		case 1:
			sim.Disconnect(2)
		case 3:
			cancel()
		}
	}

	if err := d.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v, want nil after an unplug", err)
	}
	if got := len(sendsTo(sim, 1)); got != 3 {
		t.Fatalf("sent %d commands to device 1, want 3", got)
	}
	if got := len(sendsTo(sim, 2)); got != 0 {
		t.Fatalf("sent %d commands to the unplugged device", got)
	}
	if n := sim.Count(device.CommandStopAll); n != 1 {
		t.Fatalf("stop-all sent %d times, want 1", n)
	}
}

func TestRunWhileNilFlag(t *testing.T) {
	sim := device.NewSim(device.Device{ID: 1, Actuators: []device.ActuatorID{0}})
	d := newDriver(t, sim, forever(0.3), WithTickRate(50))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sim.OnSend = func(device.DeviceID) {
		if len(sendsTo(sim, 1)) == 1 {
			cancel()
		}
	}
	if err := d.RunWhile(ctx, nil); err != nil {
		t.Fatalf("RunWhile(nil) error = %v", err)
	}
	if n := sim.Count(device.CommandStopAll); n != 1 {
		t.Fatalf("stop-all sent %d times, want 1", n)
	}
}

func TestToggleCountsQueuedChanges(t *testing.T) {
	sim := device.NewSim(device.Device{ID: 1, Actuators: []device.ActuatorID{0}})
	d := newDriver(t, sim, forever(0.2), WithTickRate(50))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var sends atomic.Int32
	sim.OnSend = func(device.DeviceID) {
		switch sends.Add(1) {
		case 1:
			on, err := d.ToggleDeviceOverride(1, forever(0.9))
			if err != nil || !on {
				t.Errorf("first toggle = %v, %v; want set", on, err)
			}
			on, err = d.ToggleDeviceOverride(1, forever(0.9))
			if err != nil || on {
				t.Errorf("second toggle = %v, %v; want cleared", on, err)
			}
			if rate, err := d.StepTickRate(5); err != nil || rate != 55 {
				t.Errorf("StepTickRate(5) = %d, %v", rate, err)
			}
			if rate, err := d.StepTickRate(5); err != nil || rate != 60 {
				t.Errorf("second StepTickRate(5) = %d, %v", rate, err)
			}
		case 3:
			cancel()
		}
	}

	if err := d.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := d.DeviceOverrides(); len(got) != 0 {
		t.Fatalf("DeviceOverrides() = %v, want none", got)
	}
	for i, c := range sendsTo(sim, 1) {
		if c.Levels[0] != 0.2 {
			t.Fatalf("level %d = %v, want the global 0.2", i, c.Levels[0])
		}
	}
	if d.TickRate() != 60 {
		t.Fatalf("TickRate() = %d, want 60", d.TickRate())
	}
}

func TestStepTickRateRejectsZero(t *testing.T) {
	d := newDriver(t, device.NewSim(), forever(0.1))
	if _, err := d.StepTickRate(-DefaultTickRate); !errors.Is(err, ErrInvalidTickRate) {
		t.Fatalf("StepTickRate() error = %v, want ErrInvalidTickRate", err)
	}
	if d.TickRate() != DefaultTickRate {
		t.Fatalf("TickRate() = %d after a rejected step", d.TickRate())
	}
}
