// Package device defines the boundary between the pattern driver and
// whatever actually moves the actuators.
package device

import (
	"context"
	"errors"
	"fmt"
)

// DeviceID identifies a connected device. It stays the same across
// reconnects of the same hardware.
type DeviceID uint32

// ActuatorID identifies an actuator within its device.
type ActuatorID uint32

// Device is a connected device and the actuators it exposes.
type Device struct {
	ID        DeviceID
	Name      string
	Actuators []ActuatorID
}

func (d Device) String() string {
	if d.Name == "" {
		return fmt.Sprintf("device %d", d.ID)
	}
	return fmt.Sprintf("%s (%d)", d.Name, d.ID)
}

// Client is a device-control connection. Implementations must be safe for
// use from several goroutines: the driver and the owning program share one.
type Client interface {
	// Devices returns the devices connected right now.
	Devices() []Device

	// Send sets each listed actuator of a device to an intensity in [0, 1].
	Send(ctx context.Context, id DeviceID, levels map[ActuatorID]float64) error

	// SendScalar sets every actuator of a device to the same intensity.
	SendScalar(ctx context.Context, id DeviceID, level float64) error

	// StopAll zeroes every actuator on every connected device.
	StopAll(ctx context.Context) error
}

var (
	ErrUnknownDevice = errors.New("unknown device")
	ErrClosed        = errors.New("client closed")
)
