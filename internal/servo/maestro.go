package servo

import (
	"fmt"
	"io"

	"go.bug.st/serial"

	"github.com/hs-CN/remote-servo-controllor/internal/monitoring"
)

// The Maestro counts pulse time in quarter-microsecond ticks. At 50 Hz a
// frame is 20 ms, or 80000 ticks.
const (
	maestroFrameTicks = 80000
	maestroSetTarget  = 0x84
	maestroMaxTarget  = 0x3FFF
)

// MaestroOutput drives one channel of a Pololu Maestro servo controller
// using its compact serial protocol.
type MaestroOutput struct {
	port    io.WriteCloser
	channel uint8
}

// NewMaestroOutput wraps an already-open command port. Close closes it.
func NewMaestroOutput(port io.WriteCloser, channel uint8) *MaestroOutput {
	return &MaestroOutput{port: port, channel: channel}
}

// OpenMaestro opens the Maestro command port at the given path. The
// USB command port ignores the baud rate; 9600 keeps UART wiring happy.
func OpenMaestro(path string, channel uint8) (*MaestroOutput, error) {
	port, err := serial.Open(path, &serial.Mode{BaudRate: 9600})
	if err != nil {
		return nil, fmt.Errorf("open maestro port %s: %w", path, err)
	}

	monitoring.Logf("maestro ready on %s channel %d", path, channel)

	return NewMaestroOutput(port, channel), nil
}

// MaxDuty reports ticks per frame.
func (m *MaestroOutput) MaxDuty() uint32 {
	return maestroFrameTicks
}

// SetDuty sends a Set Target command for duty ticks of high time.
// Targets above 0x3FFF do not fit the two-byte wire encoding; servo
// pulses stay far below that.
func (m *MaestroOutput) SetDuty(duty uint32) error {
	if duty > maestroMaxTarget {
		return fmt.Errorf("%w: %d > %d", ErrDutyRange, duty, maestroMaxTarget)
	}

	frame := []byte{
		maestroSetTarget,
		m.channel,
		byte(duty & 0x7F),
		byte((duty >> 7) & 0x7F),
	}

	n, err := m.port.Write(frame)
	if err != nil {
		return fmt.Errorf("write set target: %w", err)
	}
	if n != len(frame) {
		return fmt.Errorf("write set target: %w", io.ErrShortWrite)
	}
	return nil
}

// Close closes the serial port.
func (m *MaestroOutput) Close() error {
	return m.port.Close()
}
