// Package blemux exposes the lock's command characteristic over BLE and
// funnels characteristic writes into the controller's admission gate.
//
// The radio callback is the hot boundary: it logs, offers the payload,
// and returns. Parsing and motion happen on the controller's goroutine.
package blemux

import (
	"fmt"
	"sync"
	"time"

	"github.com/hs-CN/remote-servo-controllor/internal/lock"
	"github.com/hs-CN/remote-servo-controllor/internal/monitoring"
)

// GATT identity of the lock service. Centrals find the device by name
// or by the service UUID carried in the advertisement.
const (
	ServiceUUID               = "87cde903-dd98-4bda-b3ac-ee6e1718f373"
	CommandCharacteristicUUID = "047c2b6b-97b5-4b0c-adba-bbea3f7fb2e2"
	DeviceName                = "BLE Lock"
)

// Advertising cadence. The slow interval keeps the radio polite; a lock
// does not need to be found in under a second.
const (
	AdvertiseIntervalMin = 800 * time.Millisecond
	AdvertiseIntervalMax = 1000 * time.Millisecond
)

// Connection interval window proposed between peers. Centrals dialing
// the lock (see cmd/lockctl) request the same window the peripheral
// firmware asks of its centrals.
const (
	ConnIntervalMin = 30 * time.Millisecond
	ConnIntervalMax = 60 * time.Millisecond
)

// CommandSink admits raw command payloads; *lock.Controller satisfies
// it. TrySubmit must not block.
type CommandSink interface {
	TrySubmit(payload []byte, source string) bool
}

// Mux owns the peripheral role: one service, one writable
// characteristic, and an advertisement that keeps running when a
// central drops.
type Mux struct {
	backend Backend
	sink    CommandSink

	mu       sync.Mutex
	writes   uint64
	accepted uint64
	dropped  uint64
}

// Stats counts characteristic traffic at the radio boundary.
type Stats struct {
	Writes   uint64 `json:"writes"`
	Accepted uint64 `json:"accepted"`
	Dropped  uint64 `json:"dropped"`
}

// New wires a backend to a command sink. Nothing touches the radio
// until Start.
func New(backend Backend, sink CommandSink) *Mux {
	return &Mux{backend: backend, sink: sink}
}

// Start brings the radio up: stack enabled, service registered,
// advertisement running.
func (m *Mux) Start() error {
	if err := m.backend.Enable(); err != nil {
		return fmt.Errorf("enable ble stack: %w", err)
	}

	m.backend.SetConnectHandler(func(addr string, connected bool) {
		if connected {
			monitoring.Logf("blemux: central %s connected", addr)
			return
		}
		monitoring.Logf("blemux: central %s disconnected, still advertising", addr)
	})

	if err := m.backend.AddCommandService(ServiceConfig{
		ServiceUUID: ServiceUUID,
		CommandUUID: CommandCharacteristicUUID,
		OnWrite:     m.handleWrite,
	}); err != nil {
		return fmt.Errorf("register command service: %w", err)
	}

	if err := m.backend.Advertise(AdvertiseConfig{
		DeviceName:  DeviceName,
		ServiceUUID: ServiceUUID,
		Interval:    AdvertiseIntervalMin,
	}); err != nil {
		return fmt.Errorf("start advertising: %w", err)
	}

	monitoring.Logf("blemux: advertising as %q", DeviceName)
	return nil
}

// Stop halts advertising. Connections already up stay with the stack.
func (m *Mux) Stop() error {
	return m.backend.StopAdvertising()
}

// handleWrite runs on the radio callback for every characteristic
// write. The sink either takes the payload or it is dropped here; the
// callback never waits.
func (m *Mux) handleWrite(value []byte) {
	monitoring.Logf("blemux: received command: %q", value)

	m.mu.Lock()
	m.writes++
	m.mu.Unlock()

	if m.sink.TrySubmit(value, lock.SourceBLE) {
		m.mu.Lock()
		m.accepted++
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	m.dropped++
	m.mu.Unlock()
}

// Stats returns a snapshot of the write counters.
func (m *Mux) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{Writes: m.writes, Accepted: m.accepted, Dropped: m.dropped}
}
