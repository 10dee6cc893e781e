package servo

import (
	"fmt"

	"github.com/hs-CN/remote-servo-controllor/internal/monitoring"
)

// MaxDegree is the mechanical travel limit of an SG90-class horn.
const MaxDegree = 180

// DefaultDutyOffset is the duty fraction for 0 degrees: a 0.5 ms pulse
// in the 20 ms frame.
const DefaultDutyOffset = 0.025

// SG90 maps angles onto pulse widths for a stock SG90-class servo:
// 0.5 ms at 0 degrees rising linearly to 2.5 ms at 180.
type SG90 struct {
	out     PWMOutput
	maxDuty uint32
	offset  float64
}

// New returns an SG90 on out with the stock pulse calibration.
func New(out PWMOutput) *SG90 {
	return NewCalibrated(out, DefaultDutyOffset)
}

// NewCalibrated returns an SG90 whose zero-degree duty fraction is
// offset rather than the stock DefaultDutyOffset. Units that sit
// slightly off-center at rest get trimmed here.
func NewCalibrated(out PWMOutput, offset float64) *SG90 {
	return &SG90{
		out:     out,
		maxDuty: out.MaxDuty(),
		offset:  offset,
	}
}

// DutyForDegree converts an angle to the backend's duty value. The
// conversion truncates: on a 14-bit backend 90 degrees is 1228, not 1229.
func (s *SG90) DutyForDegree(degree uint8) uint32 {
	return uint32((float64(degree)/1800.0 + s.offset) * float64(s.maxDuty))
}

// SetDegree drives the horn to the given angle.
func (s *SG90) SetDegree(degree uint8) error {
	if degree > MaxDegree {
		return fmt.Errorf("%w: %d", ErrDegreeRange, degree)
	}

	duty := s.DutyForDegree(degree)
	monitoring.Debugf("servo: degree %d -> duty %d/%d", degree, duty, s.maxDuty)

	if err := s.out.SetDuty(duty); err != nil {
		return fmt.Errorf("set duty %d: %w", duty, err)
	}
	return nil
}

// MaxDuty reports the resolution of the underlying output.
func (s *SG90) MaxDuty() uint32 {
	return s.maxDuty
}

// Close releases the underlying output.
func (s *SG90) Close() error {
	return s.out.Close()
}
