// Package timebase implements the engine's time model: a decimal unit
// algebra for parsing physical quantities ("1ps", "2.5GHz", "64KiB"),
// a process-wide base period, and the TimeConverter/TimeLord pair that
// map between a component's natural time unit and the engine's
// integer core-tick clock.
//
// This is a from-scratch Go port of the arithmetic in
// sst/core/unitAlgebra.{h,cc}: a rational value paired with a unit
// expressed as numerator/denominator lists of base-unit IDs, reduced
// on every multiply/divide so "Hz" and "1/s" compare equal.
package timebase

import (
	"fmt"
	"sort"
	"strings"
)

// unitID identifies one of the small set of registered base units.
type unitID int

const (
	unitSeconds unitID = iota + 1
	unitBytes
	unitBits
	unitEvents
)

var baseUnitNames = map[unitID]string{
	unitSeconds: "s",
	unitBytes:   "B",
	unitBits:    "b",
	unitEvents:  "events",
}

var baseUnitIDs = map[string]unitID{
	"s":      unitSeconds,
	"B":      unitBytes,
	"b":      unitBits,
	"events": unitEvents,
}

// compoundUnits expresses a compound unit name as inverted-or-not
// references to a base unit, mirroring Units::registerCompoundUnit in
// the original ("Hz" = "1/s", "Bps" = "B/s", ...).
var compoundUnits = map[string]struct {
	unit    unitID
	inverse bool
}{
	"Hz":     {unitSeconds, true},
	"hz":     {unitSeconds, true},
	"Bps":    {unitBytes, false}, // handled specially below (B/s)
	"bps":    {unitBits, false},  // handled specially below (b/s)
	"event":  {unitEvents, false},
	"events": {unitEvents, false},
}

// siPrefixes lists the recognized SI and binary ("*i") prefixes. Their
// multipliers live in siMultipliers/binaryMultipliers in
// unitalgebra.go, which splitPrefix consults.
var siPrefixes = []string{
	"Ki", "Mi", "Gi", "Ti", "Pi", "Ei", // binary, must be checked before single-letter SI
	"a", "f", "p", "n", "u", "m",
	"k", "K", "M", "G", "T", "P", "E",
}

// units represents a reduced product of base units: numerator over
// denominator, each a sorted list of unitIDs (repeats allowed, same as
// the original's vector-based reduce()).
type units struct {
	num []unitID
	den []unitID
}

func (u units) clone() units {
	return units{num: append([]unitID(nil), u.num...), den: append([]unitID(nil), u.den...)}
}

// reduce cancels matching numerator/denominator entries, matching
// Units::reduce() in the original.
func (u *units) reduce() {
	sort.Slice(u.num, func(i, j int) bool { return u.num[i] < u.num[j] })
	sort.Slice(u.den, func(i, j int) bool { return u.den[i] < u.den[j] })

	var num, den []unitID
	i, j := 0, 0
	for i < len(u.num) && j < len(u.den) {
		if u.num[i] == u.den[j] {
			i++
			j++
			continue
		}
		if u.num[i] < u.den[j] {
			num = append(num, u.num[i])
			i++
		} else {
			den = append(den, u.den[j])
			j++
		}
	}
	num = append(num, u.num[i:]...)
	den = append(den, u.den[j:]...)
	u.num = num
	u.den = den
}

func (u units) mul(v units) units {
	r := units{
		num: append(append([]unitID(nil), u.num...), v.num...),
		den: append(append([]unitID(nil), u.den...), v.den...),
	}
	r.reduce()
	return r
}

func (u units) div(v units) units {
	r := units{
		num: append(append([]unitID(nil), u.num...), v.den...),
		den: append(append([]unitID(nil), u.den...), v.num...),
	}
	r.reduce()
	return r
}

func (u units) invert() units {
	return units{num: append([]unitID(nil), u.den...), den: append([]unitID(nil), u.num...)}
}

func (u units) equal(v units) bool {
	if len(u.num) != len(v.num) || len(u.den) != len(v.den) {
		return false
	}
	for i := range u.num {
		if u.num[i] != v.num[i] {
			return false
		}
	}
	for i := range u.den {
		if u.den[i] != v.den[i] {
			return false
		}
	}
	return true
}

// hasUnit reports whether u is exactly the given single base unit
// (numerator only, denominator empty), e.g. hasUnit(unitSeconds) for
// plain "s".
func (u units) hasUnit(id unitID) bool {
	return len(u.num) == 1 && len(u.den) == 0 && u.num[0] == id
}

// hasUnitInverse reports whether u is exactly 1/<id>, e.g. "Hz".
func (u units) hasUnitInverse(id unitID) bool {
	return len(u.den) == 1 && len(u.num) == 0 && u.den[0] == id
}

func (u units) String() string {
	if len(u.num) == 0 && len(u.den) == 0 {
		return ""
	}
	if u.hasUnitInverse(unitSeconds) {
		return "Hz"
	}
	var b strings.Builder
	if len(u.num) == 0 {
		b.WriteString("1")
	} else {
		for i, id := range u.num {
			if i > 0 {
				b.WriteString("-")
			}
			b.WriteString(baseUnitNames[id])
		}
	}
	if len(u.den) != 0 {
		b.WriteString("/")
		for i, id := range u.den {
			if i > 0 {
				b.WriteString("-")
			}
			b.WriteString(baseUnitNames[id])
		}
	}
	return b.String()
}

// parseUnitToken resolves one '-'-joined token (after SI-prefix
// stripping) to either a base unit or a compound unit expansion,
// returned as a units value, or an error if the token is unknown.
// Compound units are expanded here: "Hz" = "1/s", "Bps" = "B/s" and
// "bps" = "b/s" carry a denominator entry.
func parseUnitToken(tok string) (units, error) {
	if tok == "1" {
		return units{}, nil
	}
	if id, ok := baseUnitIDs[tok]; ok {
		return units{num: []unitID{id}}, nil
	}
	switch tok {
	case "Hz", "hz":
		return units{den: []unitID{unitSeconds}}, nil
	case "Bps":
		return units{num: []unitID{unitBytes}, den: []unitID{unitSeconds}}, nil
	case "bps":
		return units{num: []unitID{unitBits}, den: []unitID{unitSeconds}}, nil
	case "event", "events":
		return units{num: []unitID{unitEvents}}, nil
	}
	return units{}, fmt.Errorf("%w: %q", ErrInvalidUnit, tok)
}
