package blemux

import "sync"

// MockBackend implements Backend with configurable behaviour for
// testing and for running the daemon without a Bluetooth adapter.
type MockBackend struct {
	mu sync.Mutex

	// EnableError is returned by Enable if set.
	EnableError error

	// AddServiceError is returned by AddCommandService if set.
	AddServiceError error

	// AdvertiseError is returned by Advertise if set.
	AdvertiseError error

	// StopError is returned by StopAdvertising if set.
	StopError error

	// Enabled indicates whether Enable was called.
	Enabled bool

	// Service holds the last registered service config.
	Service ServiceConfig

	// ServiceAdded indicates whether AddCommandService succeeded.
	ServiceAdded bool

	// Advert holds the last advertising config.
	Advert AdvertiseConfig

	// Advertising tracks Advertise and StopAdvertising calls.
	Advertising bool

	connectHandler func(addr string, connected bool)
}

// NewMockBackend creates an idle MockBackend.
func NewMockBackend() *MockBackend {
	return &MockBackend{}
}

// Enable marks the stack enabled.
func (m *MockBackend) Enable() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.EnableError != nil {
		return m.EnableError
	}
	m.Enabled = true
	return nil
}

// SetConnectHandler stores the handler for SimulateConnect.
func (m *MockBackend) SetConnectHandler(fn func(addr string, connected bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectHandler = fn
}

// AddCommandService records the service config.
func (m *MockBackend) AddCommandService(cfg ServiceConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AddServiceError != nil {
		return m.AddServiceError
	}
	m.Service = cfg
	m.ServiceAdded = true
	return nil
}

// Advertise records the advertising config.
func (m *MockBackend) Advertise(cfg AdvertiseConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AdvertiseError != nil {
		return m.AdvertiseError
	}
	m.Advert = cfg
	m.Advertising = true
	return nil
}

// StopAdvertising clears the advertising flag.
func (m *MockBackend) StopAdvertising() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StopError != nil {
		return m.StopError
	}
	m.Advertising = false
	return nil
}

// InjectWrite simulates a central writing to the command
// characteristic.
func (m *MockBackend) InjectWrite(value []byte) {
	m.mu.Lock()
	onWrite := m.Service.OnWrite
	m.mu.Unlock()

	if onWrite != nil {
		onWrite(value)
	}
}

// SimulateConnect fires the connect handler as the stack would.
func (m *MockBackend) SimulateConnect(addr string, connected bool) {
	m.mu.Lock()
	fn := m.connectHandler
	m.mu.Unlock()

	if fn != nil {
		fn(addr, connected)
	}
}
