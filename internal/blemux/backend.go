package blemux

import "time"

// ServiceConfig describes the GATT command service a backend exposes.
type ServiceConfig struct {
	ServiceUUID string
	CommandUUID string

	// OnWrite runs on the radio goroutine for every write to the
	// command characteristic. It must not block.
	OnWrite func(value []byte)
}

// AdvertiseConfig describes the advertising payload and cadence.
type AdvertiseConfig struct {
	DeviceName  string
	ServiceUUID string
	Interval    time.Duration
}

// Backend is the slice of a BLE peripheral stack the mux needs. The
// production implementation sits on BlueZ; tests use MockBackend.
type Backend interface {
	Enable() error
	SetConnectHandler(fn func(addr string, connected bool))
	AddCommandService(cfg ServiceConfig) error
	Advertise(cfg AdvertiseConfig) error
	StopAdvertising() error
}
