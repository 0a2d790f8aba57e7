package timebase

import "testing"

func TestParseBasic(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1ps", "1/1000000000000s"},
		{"1000ms", "1s"},
		{"1GHz", "1000000000Hz"},
		{"0", "0"},
	}
	for _, c := range cases {
		ua, err := Parse(c.in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", c.in, err)
		}
		if got := ua.String(); got != c.want {
			t.Errorf("Parse(%q).String() = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestParseHertzIsSecondsInverse(t *testing.T) {
	hz, err := Parse("1Hz")
	if err != nil {
		t.Fatalf("Parse(1Hz): %v", err)
	}
	if !hz.HasUnitsHertz() {
		t.Fatalf("1Hz should report HasUnitsHertz")
	}
	inv := hz.Invert()
	if !inv.HasUnitsSeconds() {
		t.Fatalf("inverse of 1Hz should report HasUnitsSeconds, got %q", inv.String())
	}
}

func TestParseInvalidUnit(t *testing.T) {
	if _, err := Parse("5qq"); err == nil {
		t.Fatalf("expected error for unknown unit")
	}
}

func TestParseInvalidNumber(t *testing.T) {
	if _, err := Parse("ns"); err == nil {
		t.Fatalf("expected error for missing numeric literal")
	}
}

func TestBpsIsBytesPerSecond(t *testing.T) {
	ua, err := Parse("10Bps")
	if err != nil {
		t.Fatalf("Parse(10Bps): %v", err)
	}
	if ua.unit.hasUnit(unitBytes) {
		t.Fatalf("10Bps should not reduce to bare bytes")
	}
	want := units{num: []unitID{unitBytes}, den: []unitID{unitSeconds}}
	if !ua.unit.equal(want) {
		t.Errorf("10Bps unit = %+v, want %+v", ua.unit, want)
	}
}

func TestMulSecondsByHertzIsDimensionless(t *testing.T) {
	a := MustParse("4s")
	b := MustParse("2Hz")
	prod := a.Mul(b)
	if prod.Rat().Cmp(MustParse("8").Rat()) != 0 {
		t.Errorf("4s * 2Hz = %s, want dimensionless 8", prod)
	}
}
