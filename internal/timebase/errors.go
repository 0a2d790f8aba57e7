package timebase

import "errors"

// Sentinel errors matching the §7 error taxonomy entries this package
// can raise. Callers wrap these with fmt.Errorf("...: %w", ...) to add
// context and can classify them with errors.Is against these.
var (
	// ErrInvalidUnit is returned when a unit token is not a
	// recognized base or compound unit.
	ErrInvalidUnit = errors.New("unit parse error: invalid unit")
	// ErrInvalidNumber is returned when the numeric literal portion
	// of a time string cannot be parsed.
	ErrInvalidNumber = errors.New("unit parse error: invalid number")
	// ErrUnderflowPeriod is returned when a requested period is
	// smaller than the process time base (and not exact zero).
	ErrUnderflowPeriod = errors.New("underflow: period too small for time base")
	// ErrOverflowPeriod is returned when a requested period exceeds
	// CoreTime's representable range.
	ErrOverflowPeriod = errors.New("overflow: period too large for time base")
	// ErrNoTimeUnit is returned when a time string has no "s" or
	// "Hz"-family unit to resolve against the time base.
	ErrNoTimeUnit = errors.New("unit parse error: time conversion requires a time unit (s or Hz)")
	// ErrNotInitialized is returned when TimeLord methods are called
	// before Init.
	ErrNotInitialized = errors.New("time lord has not been initialized")
)
