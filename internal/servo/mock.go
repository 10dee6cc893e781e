package servo

import "sync"

// DefaultMockResolution mirrors a 14-bit PWM timer, the resolution the
// development harness is calibrated against.
const DefaultMockResolution = 1<<14 - 1

// MockPWM implements PWMOutput with configurable behaviour for testing
// and for running the daemon without servo hardware attached.
type MockPWM struct {
	mu sync.Mutex

	// Resolution is the value reported by MaxDuty.
	Resolution uint32

	// Duties records every duty value programmed via SetDuty.
	Duties []uint32

	// SetDutyError is returned by the next SetDuty call if set.
	SetDutyError error

	// CloseError is returned by Close if set.
	CloseError error

	// Closed indicates whether Close was called.
	Closed bool

	// SetDutyCalls records the number of SetDuty calls.
	SetDutyCalls int
}

// NewMockPWM creates a MockPWM at DefaultMockResolution.
func NewMockPWM() *MockPWM {
	return &MockPWM{Resolution: DefaultMockResolution}
}

// MaxDuty reports the configured resolution.
func (m *MockPWM) MaxDuty() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Resolution
}

// SetDuty records the duty value, optionally simulating errors.
func (m *MockPWM) SetDuty(duty uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SetDutyCalls++

	if m.Closed {
		return ErrClosed
	}

	if m.SetDutyError != nil {
		err := m.SetDutyError
		m.SetDutyError = nil
		return err
	}

	if duty > m.Resolution {
		return ErrDutyRange
	}

	m.Duties = append(m.Duties, duty)
	return nil
}

// LastDuty returns the most recently programmed duty value, if any.
func (m *MockPWM) LastDuty() (uint32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.Duties) == 0 {
		return 0, false
	}
	return m.Duties[len(m.Duties)-1], true
}

// AllDuties returns a copy of every duty value programmed so far.
func (m *MockPWM) AllDuties() []uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]uint32, len(m.Duties))
	copy(out, m.Duties)
	return out
}

// Close marks the output as closed.
func (m *MockPWM) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Closed = true
	return m.CloseError
}
