package timebase

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

var numberRe = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?`)

var siMultipliers = map[string]*big.Rat{
	"a": ratPow10(-18),
	"f": ratPow10(-15),
	"p": ratPow10(-12),
	"n": ratPow10(-9),
	"u": ratPow10(-6),
	"m": ratPow10(-3),
	"k": ratPow10(3),
	"K": ratPow10(3),
	"M": ratPow10(6),
	"G": ratPow10(9),
	"T": ratPow10(12),
	"P": ratPow10(15),
	"E": ratPow10(18),
}

var binaryMultipliers = map[string]*big.Rat{
	"Ki": new(big.Rat).SetInt64(1 << 10),
	"Mi": new(big.Rat).SetInt64(1 << 20),
	"Gi": new(big.Rat).SetInt64(1 << 30),
	"Ti": new(big.Rat).SetInt64(1 << 40),
	"Pi": new(big.Rat).SetInt64(1 << 50),
	"Ei": new(big.Rat).SetInt64(1 << 60),
}

func ratPow10(exp int) *big.Rat {
	r := big.NewRat(1, 1)
	ten := big.NewRat(10, 1)
	tenInv := big.NewRat(1, 10)
	if exp >= 0 {
		for i := 0; i < exp; i++ {
			r.Mul(r, ten)
		}
	} else {
		for i := 0; i < -exp; i++ {
			r.Mul(r, tenInv)
		}
	}
	return r
}

// UnitAlgebra is a decimal value paired with a reduced physical unit,
// e.g. "1.5ns" or "64KiB". It is the Go analogue of SST's UnitAlgebra
// class: arithmetic on values of incompatible dimension is permitted
// (the type does not enforce dimensional analysis beyond what
// TimeLord needs — reducing numerator/denominator unit lists so "Hz"
// and "1/s" compare equal).
type UnitAlgebra struct {
	value *big.Rat
	unit  units
}

// Parse parses a value with an optional unit suffix, e.g. "1ps",
// "2.5GHz", "0", "64KiB". A bare number with no unit is dimensionless.
func Parse(s string) (UnitAlgebra, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return UnitAlgebra{}, fmt.Errorf("%w: empty string", ErrInvalidNumber)
	}
	loc := numberRe.FindStringIndex(s)
	if loc == nil || loc[0] != 0 {
		return UnitAlgebra{}, fmt.Errorf("%w: %q", ErrInvalidNumber, s)
	}
	numStr := s[:loc[1]]
	unitStr := strings.TrimSpace(s[loc[1]:])

	value := new(big.Rat)
	if _, ok := value.SetString(numStr); !ok {
		return UnitAlgebra{}, fmt.Errorf("%w: %q", ErrInvalidNumber, numStr)
	}

	if unitStr == "" {
		return UnitAlgebra{value: value, unit: units{}}, nil
	}

	u, multiplier, err := parseUnitsExpr(unitStr)
	if err != nil {
		return UnitAlgebra{}, err
	}
	value.Mul(value, multiplier)
	return UnitAlgebra{value: value, unit: u}, nil
}

// MustParse is Parse but panics on error; useful for package-level
// constants derived from literal time strings.
func MustParse(s string) UnitAlgebra {
	ua, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return ua
}

func parseUnitsExpr(s string) (units, *big.Rat, error) {
	var numPart, denPart string
	if idx := strings.IndexByte(s, '/'); idx >= 0 {
		numPart = s[:idx]
		denPart = s[idx+1:]
		if strings.IndexByte(denPart, '/') >= 0 {
			return units{}, nil, fmt.Errorf("%w: multiple '/' in %q", ErrInvalidUnit, s)
		}
	} else {
		numPart = s
	}

	multiplier := big.NewRat(1, 1)
	result := units{}

	for _, tok := range splitDash(numPart) {
		frag, mult, err := resolveUnitToken(tok)
		if err != nil {
			return units{}, nil, err
		}
		multiplier.Mul(multiplier, mult)
		result.num = append(result.num, frag.num...)
		result.den = append(result.den, frag.den...)
	}
	for _, tok := range splitDash(denPart) {
		frag, mult, err := resolveUnitToken(tok)
		if err != nil {
			return units{}, nil, err
		}
		multiplier.Mul(multiplier, mult)
		// Inverted: fragment's numerator becomes our denominator and
		// vice versa (mirrors Units::addUnit(..., invert=true)).
		result.num = append(result.num, frag.den...)
		result.den = append(result.den, frag.num...)
	}
	result.reduce()
	return result, multiplier, nil
}

func splitDash(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "-")
}

// resolveUnitToken resolves a single unit token, stripping an SI or
// binary prefix only if the full token is not itself a registered
// base or compound unit (matching Units::addUnit's "check as-is
// first" rule, so "events" is never mistaken for an "e"-prefixed
// unit — 'e'/'E' are not among the lowercase SI letters anyway, but
// "Bps"/"bps" must not be stripped either).
func resolveUnitToken(tok string) (units, *big.Rat, error) {
	if tok == "1" {
		return units{}, big.NewRat(1, 1), nil
	}
	if frag, err := parseUnitToken(tok); err == nil {
		return frag, big.NewRat(1, 1), nil
	}

	prefix, mult := splitPrefix(tok)
	if prefix == "" {
		return units{}, nil, fmt.Errorf("%w: %q", ErrInvalidUnit, tok)
	}
	rest := tok[len(prefix):]
	frag, err := parseUnitToken(rest)
	if err != nil {
		return units{}, nil, err
	}
	return frag, mult, nil
}

// splitPrefix returns the longest recognized SI/binary prefix at the
// start of tok and its multiplier, or ("", nil) if none applies.
func splitPrefix(tok string) (string, *big.Rat) {
	if len(tok) >= 2 {
		p2 := tok[:2]
		if m, ok := binaryMultipliers[p2]; ok {
			return p2, m
		}
	}
	if len(tok) >= 1 {
		p1 := tok[:1]
		if m, ok := siMultipliers[p1]; ok {
			return p1, m
		}
	}
	return "", nil
}

// HasUnitsSeconds reports whether the value is expressed in plain
// seconds (numerator only, "s").
func (u UnitAlgebra) HasUnitsSeconds() bool { return u.unit.hasUnit(unitSeconds) }

// HasUnitsHertz reports whether the value is expressed in Hertz
// ("1/s").
func (u UnitAlgebra) HasUnitsHertz() bool { return u.unit.hasUnitInverse(unitSeconds) }

// IsZero reports whether the numeric value is exactly zero.
func (u UnitAlgebra) IsZero() bool { return u.value.Sign() == 0 }

// Rat returns the underlying rational value.
func (u UnitAlgebra) Rat() *big.Rat { return new(big.Rat).Set(u.value) }

// Invert returns 1/u, with the unit inverted as well.
func (u UnitAlgebra) Invert() UnitAlgebra {
	inv := new(big.Rat).Inv(u.value)
	return UnitAlgebra{value: inv, unit: u.unit.invert()}
}

// Mul returns u * v, with units combined and reduced.
func (u UnitAlgebra) Mul(v UnitAlgebra) UnitAlgebra {
	val := new(big.Rat).Mul(u.value, v.value)
	return UnitAlgebra{value: val, unit: u.unit.mul(v.unit)}
}

// MulScalar returns u * k for an integer scalar k (used to scale a
// base period by a TimeConverter factor).
func (u UnitAlgebra) MulScalar(k uint64) UnitAlgebra {
	val := new(big.Rat).Mul(u.value, new(big.Rat).SetUint64(k))
	return UnitAlgebra{value: val, unit: u.unit.clone()}
}

// Div returns u / v, with units combined and reduced.
func (u UnitAlgebra) Div(v UnitAlgebra) UnitAlgebra {
	val := new(big.Rat).Quo(u.value, v.value)
	return UnitAlgebra{value: val, unit: u.unit.div(v.unit)}
}

// String renders the value followed by its unit string, e.g. "1000s"
// or "1/1000000Hz" style values collapse to a plain fraction if not
// integral.
func (u UnitAlgebra) String() string {
	unitStr := u.unit.String()
	if unitStr == "" {
		return u.value.RatString()
	}
	return u.value.RatString() + unitStr
}
