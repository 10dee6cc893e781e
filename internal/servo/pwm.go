// Package servo drives a hobby servo horn over a PWM output.
//
// The angle-to-pulse mapping lives in SG90; the PWMOutput implementations
// only know how to program a duty value on their particular hardware.
package servo

import "errors"

// DriveFrequencyHz is the PWM carrier frequency hobby servos expect.
// A frame is 20 ms; the servo reads the high time at the start of it.
const DriveFrequencyHz = 50

var (
	// ErrClosed is returned when a PWM output is used after Close.
	ErrClosed = errors.New("servo: pwm output closed")

	// ErrDutyRange is returned when a duty value exceeds what the
	// backend can program.
	ErrDutyRange = errors.New("servo: duty out of range")

	// ErrDegreeRange is returned for angles beyond the horn's travel.
	ErrDegreeRange = errors.New("servo: degree out of range")
)

// PWMOutput is a single PWM channel running at DriveFrequencyHz.
//
// MaxDuty reports the backend's full-scale value; SetDuty programs a high
// time of duty/MaxDuty of the frame. MaxDuty must be constant for the
// life of the output.
type PWMOutput interface {
	MaxDuty() uint32
	SetDuty(duty uint32) error
	Close() error
}
