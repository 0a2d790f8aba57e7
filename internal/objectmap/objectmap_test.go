package objectmap

import "testing"

func TestReadOnlyFundamentalRejectsSet(t *testing.T) {
	f := ReadOnlyString("name", func() string { return "clock_source" })
	if !f.ReadOnly() {
		t.Fatal("ReadOnlyString should report ReadOnly() == true")
	}
	if err := f.Set("other"); err == nil {
		t.Fatal("Set on a read-only fundamental should error")
	}
	if got := f.Get(); got != "clock_source" {
		t.Fatalf("Get() = %q, want clock_source", got)
	}
}

func TestWritableUint64RoundTrip(t *testing.T) {
	var period uint64 = 1000
	f := Uint64("period", func() uint64 { return period }, func(v uint64) { period = v })

	if f.ReadOnly() {
		t.Fatal("writable Uint64 should report ReadOnly() == false")
	}
	if err := f.Set("2000"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if period != 2000 {
		t.Fatalf("period = %d, want 2000", period)
	}
	if got := f.Get(); got != "2000" {
		t.Fatalf("Get() = %q, want 2000", got)
	}
}

func TestBoolRejectsInvalidValue(t *testing.T) {
	f := Bool("enabled", func() bool { return true }, func(bool) {})
	if err := f.Set("not-a-bool"); err == nil {
		t.Fatal("Set with an invalid bool string should error")
	}
}

func TestContainerHoldsOrderedChildren(t *testing.T) {
	c := NewContainer("ComponentInfo")
	c.Add("name", ReadOnlyString("name", func() string { return "counter" }))
	c.Add("rank", ReadOnlyUint64("rank", func() uint64 { return 0 }))

	if c.IsFundamental() {
		t.Fatal("Container should report IsFundamental() == false")
	}
	if !c.ReadOnly() {
		t.Fatal("Container itself should be ReadOnly()")
	}
	if err := c.Set("x"); err == nil {
		t.Fatal("Set on a Container should always error")
	}

	names := c.Names()
	if len(names) != 2 || names[0] != "name" || names[1] != "rank" {
		t.Fatalf("Names() = %v, want [name rank] in insertion order", names)
	}

	nameField := c.Field("name")
	if nameField == nil || nameField.Get() != "counter" {
		t.Fatalf("Field(name) = %v, want counter", nameField)
	}
	if c.Field("missing") != nil {
		t.Fatal("Field on an absent name should return nil")
	}
}

func TestContainerSummaryMentionsFieldCount(t *testing.T) {
	c := NewContainer("LinkMap")
	c.Add("port0", ReadOnlyString("port0", func() string { return "bound" }))
	c.Add("port1", ReadOnlyString("port1", func() string { return "bound" }))

	if got := c.Get(); got != "LinkMap{2 fields}" {
		t.Fatalf("Get() = %q, want LinkMap{2 fields}", got)
	}
}
