package servo

import (
	"errors"
	"testing"
)

func TestMockPWM_SetDutyAfterClose(t *testing.T) {
	pwm := NewMockPWM()
	if err := pwm.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := pwm.SetDuty(100); !errors.Is(err, ErrClosed) {
		t.Errorf("SetDuty after Close = %v, want ErrClosed", err)
	}
}

func TestMockPWM_SetDutyBeyondResolution(t *testing.T) {
	pwm := &MockPWM{Resolution: 100}
	if err := pwm.SetDuty(101); !errors.Is(err, ErrDutyRange) {
		t.Errorf("SetDuty(101) = %v, want ErrDutyRange", err)
	}
	if _, ok := pwm.LastDuty(); ok {
		t.Error("rejected duty was recorded")
	}
}

func TestMockPWM_ErrorClearsAfterUse(t *testing.T) {
	pwm := NewMockPWM()
	pwm.SetDutyError = errors.New("transient")

	if err := pwm.SetDuty(1); err == nil {
		t.Fatal("expected injected error")
	}
	if err := pwm.SetDuty(2); err != nil {
		t.Errorf("second SetDuty = %v, want nil", err)
	}
	if duty, ok := pwm.LastDuty(); !ok || duty != 2 {
		t.Errorf("LastDuty = %d, %v, want 2, true", duty, ok)
	}
}

func TestMockPWM_LastDutyEmpty(t *testing.T) {
	pwm := NewMockPWM()
	if _, ok := pwm.LastDuty(); ok {
		t.Error("LastDuty reported a value before any SetDuty")
	}
}
