package timebase

import (
	"fmt"
	"math"
	"math/big"
	"sync"
)

// MaxCoreTime is the largest CoreTime value a period is allowed to
// resolve to; a period above it is an overflow. The engine also uses
// it as the time of sentinel activities (e.g. the end-of-run stop
// backstop inserted at MaxCoreTime).
const MaxCoreTime CoreTime = math.MaxInt64

// TimeLord owns the process time base and every TimeConverter derived
// from it. Unlike the original's function-local static singleton, a
// TimeLord here is an explicit value threaded through the simulation
// rather than global state — the only concession to the original's
// design is the internal mutex guarding the two caches, standing in
// for its spinlock.
type TimeLord struct {
	mu sync.Mutex

	initialized bool
	timebaseStr string
	timebase    UnitAlgebra // always expressed in seconds

	byString map[string]*TimeConverter
	byFactor map[CoreTime]*TimeConverter
}

// NewTimeLord returns a TimeLord initialized with the given time base
// string, e.g. "1ps". The base must resolve to a plain seconds unit.
func NewTimeLord(baseStr string) (*TimeLord, error) {
	tl := &TimeLord{}
	if err := tl.Init(baseStr); err != nil {
		return nil, err
	}
	return tl, nil
}

// Init (re-)establishes the process time base. It is not safe to call
// concurrently with GetTimeConverter calls already in flight against
// the converters it produced before re-init.
func (tl *TimeLord) Init(baseStr string) error {
	base, err := Parse(baseStr)
	if err != nil {
		return fmt.Errorf("time base %q: %w", baseStr, err)
	}
	if !base.HasUnitsSeconds() {
		return fmt.Errorf("time base %q: %w", baseStr, ErrNoTimeUnit)
	}
	if base.IsZero() {
		return fmt.Errorf("time base %q: %w", baseStr, ErrInvalidNumber)
	}

	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.timebaseStr = baseStr
	tl.timebase = base
	tl.byString = make(map[string]*TimeConverter)
	tl.byFactor = make(map[CoreTime]*TimeConverter)
	tl.initialized = true

	// The base period itself always converts at a factor of 1.
	self := &TimeConverter{factor: 1}
	tl.byString[baseStr] = self
	tl.byFactor[1] = self
	return nil
}

// TimeBase returns the process time base as a UnitAlgebra.
func (tl *TimeLord) TimeBase() UnitAlgebra {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return tl.timebase
}

// GetTimeConverter returns the (possibly cached) TimeConverter for a
// period string such as "2.5ns" or "1GHz", computing and validating
// its factor against the time base on first use.
func (tl *TimeLord) GetTimeConverter(s string) (*TimeConverter, error) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	if !tl.initialized {
		return nil, ErrNotInitialized
	}
	if c, ok := tl.byString[s]; ok {
		return c, nil
	}

	ua, err := Parse(s)
	if err != nil {
		return nil, fmt.Errorf("time converter %q: %w", s, err)
	}
	factor, err := tl.getFactorForTime(ua)
	if err != nil {
		return nil, fmt.Errorf("time converter %q: %w", s, err)
	}

	c := tl.getOrCreateByFactorLocked(factor)
	tl.byString[s] = c
	return c, nil
}

// GetTimeConverterForFactor returns the (possibly cached)
// TimeConverter for a raw core-tick factor, e.g. one recovered from a
// checkpoint.
func (tl *TimeLord) GetTimeConverterForFactor(factor CoreTime) (*TimeConverter, error) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	if !tl.initialized {
		return nil, ErrNotInitialized
	}
	return tl.getOrCreateByFactorLocked(factor), nil
}

func (tl *TimeLord) getOrCreateByFactorLocked(factor CoreTime) *TimeConverter {
	if c, ok := tl.byFactor[factor]; ok {
		return c
	}
	c := &TimeConverter{factor: factor}
	tl.byFactor[factor] = c
	return c
}

// getFactorForTime ports TimeLord::getFactorForTime: a period given
// in seconds divides the time base; a frequency given in Hertz is
// inverted to a period first. Anything else has no time unit to
// convert against. The result is checked against overflow (exceeds
// MaxCoreTime) and underflow (rounds below one tick but is not
// exactly zero).
func (tl *TimeLord) getFactorForTime(ua UnitAlgebra) (CoreTime, error) {
	var factor UnitAlgebra
	switch {
	case ua.HasUnitsSeconds():
		factor = ua.Div(tl.timebase)
	case ua.HasUnitsHertz():
		factor = ua.Invert().Div(tl.timebase)
	default:
		return 0, ErrNoTimeUnit
	}

	r := factor.Rat()
	maxRat := new(big.Rat).SetUint64(uint64(MaxCoreTime))
	if r.Cmp(maxRat) > 0 {
		return 0, ErrOverflowPeriod
	}
	one := big.NewRat(1, 1)
	if r.Sign() != 0 && r.Cmp(one) < 0 {
		return 0, ErrUnderflowPeriod
	}
	return ratToRoundedUint64(r), nil
}

// ratToRoundedUint64 rounds a non-negative r to the nearest integer,
// half rounding up, matching UnitAlgebra::getRoundedValue() in the
// original.
func ratToRoundedUint64(r *big.Rat) uint64 {
	shifted := new(big.Rat).Add(r, big.NewRat(1, 2))
	q := new(big.Int).Quo(shifted.Num(), shifted.Denom())
	return q.Uint64()
}
