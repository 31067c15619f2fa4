package device

import (
	"context"
	"errors"
	"testing"
)

func TestSimSendRecordsLevels(t *testing.T) {
	s := NewSim(Device{ID: 1, Name: "left", Actuators: []ActuatorID{0, 1}})
	ctx := context.Background()

	if err := s.Send(ctx, 1, map[ActuatorID]float64{0: 0.3, 1: 0.9}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got := s.Level(1, 1); got != 0.9 {
		t.Fatalf("Level(1, 1) = %v, want 0.9", got)
	}
	if err := s.SendScalar(ctx, 1, 0.5); err != nil {
		t.Fatalf("SendScalar() error = %v", err)
	}
	if got := s.Level(1, 0); got != 0.5 {
		t.Fatalf("Level(1, 0) = %v, want 0.5", got)
	}
	if n := len(s.Commands()); n != 2 {
		t.Fatalf("len(Commands()) = %d, want 2", n)
	}
}

func TestSimStopAllZeroes(t *testing.T) {
	s := NewSim(
		Device{ID: 1, Actuators: []ActuatorID{0}},
		Device{ID: 2, Actuators: []ActuatorID{0, 1}},
	)
	ctx := context.Background()
	s.SendScalar(ctx, 1, 1)
	s.SendScalar(ctx, 2, 1)

	if err := s.StopAll(ctx); err != nil {
		t.Fatalf("StopAll() error = %v", err)
	}
	for _, id := range []DeviceID{1, 2} {
		if got := s.Level(id, 0); got != 0 {
			t.Fatalf("Level(%d, 0) = %v, want 0", id, got)
		}
	}
	if s.Count(CommandStopAll) != 1 {
		t.Fatalf("Count(stop-all) = %d, want 1", s.Count(CommandStopAll))
	}
}

func TestSimUnknownDevice(t *testing.T) {
	s := NewSim()
	err := s.Send(context.Background(), 9, map[ActuatorID]float64{0: 1})
	if !errors.Is(err, ErrUnknownDevice) {
		t.Fatalf("Send() = %v, want ErrUnknownDevice", err)
	}
}

func TestSimHotPlugKeepsOrder(t *testing.T) {
	s := NewSim(Device{ID: 3}, Device{ID: 1}, Device{ID: 2})
	s.Disconnect(1)
	s.Connect(Device{ID: 7})

	var got []DeviceID
	for _, d := range s.Devices() {
		got = append(got, d.ID)
	}
	want := []DeviceID{3, 2, 7}
	if len(got) != len(want) {
		t.Fatalf("Devices() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Devices() = %v, want %v", got, want)
		}
	}
}

func TestSimFailures(t *testing.T) {
	boom := errors.New("boom")
	s := NewSim(Device{ID: 1, Actuators: []ActuatorID{0}})
	s.FailSends(1, boom)
	if err := s.Send(context.Background(), 1, nil); !errors.Is(err, boom) {
		t.Fatalf("Send() = %v, want boom", err)
	}
	s.FailSends(1, nil)
	if err := s.Send(context.Background(), 1, nil); err != nil {
		t.Fatalf("Send() after clearing = %v", err)
	}

	s.Close()
	if err := s.StopAll(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("StopAll() after Close = %v, want ErrClosed", err)
	}
}

func TestSimDevicesIsSnapshot(t *testing.T) {
	s := NewSim(Device{ID: 1, Actuators: []ActuatorID{0, 1}})
	devs := s.Devices()
	devs[0].Actuators[0] = 42
	if s.Devices()[0].Actuators[0] != 0 {
		t.Fatal("mutating a snapshot changed the client")
	}
}

func TestDeviceString(t *testing.T) {
	if got := (Device{ID: 4}).String(); got != "device 4" {
		t.Fatalf("String() = %q", got)
	}
	if got := (Device{ID: 4, Name: "cuff"}).String(); got != "cuff (4)" {
		t.Fatalf("String() = %q", got)
	}
}
