package driver

import (
	"errors"
	"fmt"

	"go-pulse/device"
)

var (
	ErrInvalidTickRate = errors.New("tick rate must be > 0")
	ErrInvalidTimeout  = errors.New("command timeout must be >= 0")
	ErrNoClient        = errors.New("no device client")
	ErrRunning         = errors.New("driver is already running")
	ErrStopAll         = errors.New("stop-all failed")
)

// CommandError is returned by Run when sending to a device fails. The run
// is over by the time the caller sees it; stop-all has been attempted.
type CommandError struct {
	Device device.DeviceID
	Tick   int
	Err    error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("device %d tick %d: %v", e.Device, e.Tick, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }
