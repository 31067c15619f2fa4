package midi

import "go-pulse/device"

// DeviceEvent is emitted when an output port appears or goes away.
type DeviceEvent struct {
	Type   DeviceEventType
	Device device.Device
	Port   string
}

type DeviceEventType int

const (
	DeviceConnected DeviceEventType = iota
	DeviceDisconnected
	// PanicPressed is sent by a PanicInput when its trigger fires.
	PanicPressed
)

func (t DeviceEventType) String() string {
	switch t {
	case DeviceConnected:
		return "connected"
	case DeviceDisconnected:
		return "disconnected"
	case PanicPressed:
		return "panic"
	}
	return "unknown"
}
