package servo

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/pca9685"
	"periph.io/x/host/v3"

	"github.com/hs-CN/remote-servo-controllor/internal/monitoring"
)

// pca9685Resolution is the controller's 12-bit PWM counter full scale.
const pca9685Resolution = 4095

// PCA9685Output drives one channel of a PCA9685 16-channel PWM
// controller over I2C.
type PCA9685Output struct {
	bus     i2c.BusCloser
	dev     *pca9685.Dev
	channel int
}

// OpenPCA9685 opens the named I2C bus (empty selects the first
// available), programs the controller for servo frames, and returns the
// given channel as a PWMOutput. addr is normally pca9685.I2CAddr.
func OpenPCA9685(busName string, addr uint16, channel int) (*PCA9685Output, error) {
	if channel < 0 || channel > 15 {
		return nil, fmt.Errorf("servo: pca9685 channel %d out of range", channel)
	}

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init host drivers: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", busName, err)
	}

	dev, err := pca9685.NewI2C(bus, addr)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("probe pca9685 at %#x: %w", addr, err)
	}

	if err := dev.SetPwmFreq(DriveFrequencyHz * physic.Hertz); err != nil {
		bus.Close()
		return nil, fmt.Errorf("set pwm frequency: %w", err)
	}

	monitoring.Logf("pca9685 ready on %s channel %d at %d Hz", bus, channel, DriveFrequencyHz)

	return &PCA9685Output{bus: bus, dev: dev, channel: channel}, nil
}

// MaxDuty reports the controller's tick count.
func (p *PCA9685Output) MaxDuty() uint32 {
	return pca9685Resolution
}

// SetDuty holds the channel high for duty ticks of each frame.
func (p *PCA9685Output) SetDuty(duty uint32) error {
	if duty > pca9685Resolution {
		return fmt.Errorf("%w: %d > %d", ErrDutyRange, duty, pca9685Resolution)
	}
	if err := p.dev.SetPwm(p.channel, 0, gpio.Duty(duty)); err != nil {
		return fmt.Errorf("program channel %d: %w", p.channel, err)
	}
	return nil
}

// Close releases the I2C bus.
func (p *PCA9685Output) Close() error {
	return p.bus.Close()
}
