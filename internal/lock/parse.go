package lock

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MaxDegree is the largest angle a command may request.
const MaxDegree = 180

var (
	// ErrNotANumber flags payloads that do not parse as an unsigned
	// decimal byte.
	ErrNotANumber = errors.New("lock: command is not a number")

	// ErrDegreeRange flags angles that parse but exceed MaxDegree.
	ErrDegreeRange = errors.New("lock: degree out of range")
)

// Audit labels for rejected commands.
const (
	ReasonNotANumber  = "not_a_number"
	ReasonDegreeRange = "degree_range"
	ReasonBusy        = "busy"
)

// ParseDegree interprets a raw command payload as an ASCII decimal
// angle. The whole payload is the number; whitespace, fractions, and
// framing bytes all fail. A single leading plus sign is tolerated.
//
// On ErrDegreeRange the parsed value is returned alongside the error so
// callers can report what was asked for.
func ParseDegree(payload []byte) (uint8, error) {
	s := strings.TrimPrefix(string(payload), "+")
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrNotANumber, payload)
	}
	if n > MaxDegree {
		return uint8(n), fmt.Errorf("%w: %d", ErrDegreeRange, n)
	}
	return uint8(n), nil
}

// RejectReason maps a ParseDegree error to its audit label.
func RejectReason(err error) string {
	switch {
	case errors.Is(err, ErrDegreeRange):
		return ReasonDegreeRange
	case errors.Is(err, ErrNotANumber):
		return ReasonNotANumber
	}
	return "error"
}
