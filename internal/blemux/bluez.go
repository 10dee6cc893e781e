package blemux

import (
	"fmt"

	"tinygo.org/x/bluetooth"
)

// BlueZBackend drives the host's Bluetooth adapter through BlueZ.
type BlueZBackend struct {
	adapter *bluetooth.Adapter
	adv     *bluetooth.Advertisement
	char    bluetooth.Characteristic
}

// NewBlueZBackend returns a backend on the default adapter.
func NewBlueZBackend() *BlueZBackend {
	return &BlueZBackend{adapter: bluetooth.DefaultAdapter}
}

// Enable powers up the stack.
func (b *BlueZBackend) Enable() error {
	return b.adapter.Enable()
}

// SetConnectHandler forwards connect and disconnect transitions.
func (b *BlueZBackend) SetConnectHandler(fn func(addr string, connected bool)) {
	b.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		fn(device.Address.String(), connected)
	})
}

// AddCommandService registers the lock service with its single writable
// characteristic.
func (b *BlueZBackend) AddCommandService(cfg ServiceConfig) error {
	svcUUID, err := bluetooth.ParseUUID(cfg.ServiceUUID)
	if err != nil {
		return fmt.Errorf("parse service uuid: %w", err)
	}
	charUUID, err := bluetooth.ParseUUID(cfg.CommandUUID)
	if err != nil {
		return fmt.Errorf("parse characteristic uuid: %w", err)
	}

	service := bluetooth.Service{
		UUID: svcUUID,
		Characteristics: []bluetooth.CharacteristicConfig{{
			Handle: &b.char,
			UUID:   charUUID,
			Flags: bluetooth.CharacteristicWritePermission |
				bluetooth.CharacteristicWriteWithoutResponsePermission |
				bluetooth.CharacteristicNotifyPermission,
			WriteEvent: func(client bluetooth.Connection, offset int, value []byte) {
				if cfg.OnWrite != nil {
					cfg.OnWrite(value)
				}
			},
		}},
	}

	if err := b.adapter.AddService(&service); err != nil {
		return fmt.Errorf("add service: %w", err)
	}
	return nil
}

// Advertise configures and starts the advertisement.
func (b *BlueZBackend) Advertise(cfg AdvertiseConfig) error {
	svcUUID, err := bluetooth.ParseUUID(cfg.ServiceUUID)
	if err != nil {
		return fmt.Errorf("parse service uuid: %w", err)
	}

	adv := b.adapter.DefaultAdvertisement()
	if err := adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    cfg.DeviceName,
		ServiceUUIDs: []bluetooth.UUID{svcUUID},
		Interval:     bluetooth.NewDuration(cfg.Interval),
	}); err != nil {
		return fmt.Errorf("configure advertisement: %w", err)
	}

	b.adv = adv
	return adv.Start()
}

// StopAdvertising stops the advertisement if one is running.
func (b *BlueZBackend) StopAdvertising() error {
	if b.adv == nil {
		return nil
	}
	return b.adv.Stop()
}
