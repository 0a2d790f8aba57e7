package checkpoint

import "testing"

type leaf struct {
	Name  string
	Value uint64
}

func (l *leaf) Serialize(s *Serializer) {
	s.String(&l.Name)
	s.Uint64(&l.Value)
}

func TestSizerMatchesPackedLength(t *testing.T) {
	l := &leaf{Name: "x", Value: 42}

	sizer := NewSizer()
	l.Serialize(sizer)

	packer := NewPacker()
	l.Serialize(packer)

	if sizer.Size() != len(packer.Bytes()) {
		t.Fatalf("sizer = %d, packed = %d, want equal", sizer.Size(), len(packer.Bytes()))
	}
}

func TestPackUnpackRoundTrip(t *testing.T) {
	l := &leaf{Name: "component-a", Value: 12345}
	packer := NewPacker()
	l.Serialize(packer)

	var got leaf
	unpacker := NewUnpacker(packer.Bytes())
	got.Serialize(unpacker)

	if got.Name != l.Name || got.Value != l.Value {
		t.Fatalf("round trip = %+v, want %+v", got, *l)
	}
}

type container struct {
	Label string
	Leaf  leaf
}

func (c *container) Serialize(s *Serializer) {
	s.String(&c.Label)
	s.Object(&c.Leaf)
}

func TestObjectNesting(t *testing.T) {
	c := &container{Label: "outer", Leaf: leaf{Name: "inner", Value: 7}}
	packer := NewPacker()
	c.Serialize(packer)

	var got container
	unpacker := NewUnpacker(packer.Bytes())
	got.Serialize(unpacker)

	if got.Label != c.Label || got.Leaf.Name != c.Leaf.Name || got.Leaf.Value != c.Leaf.Value {
		t.Fatalf("nested round trip = %+v, want %+v", got, *c)
	}
}

func TestDuplicateObjectContentIsDeduped(t *testing.T) {
	type pair struct {
		A, B leaf
	}
	p := &pair{A: leaf{Name: "same", Value: 1}, B: leaf{Name: "same", Value: 1}}

	packer := NewPacker()
	packer.Object(&p.A)
	packer.Object(&p.B)

	fresh := NewPacker()
	fresh.Object(&leaf{Name: "same", Value: 1})
	oneRecordSize := len(fresh.Bytes())

	// A duplicate reference costs 9 bytes (1 tag + 8 id) rather than a
	// full second record.
	if len(packer.Bytes()) >= 2*oneRecordSize {
		t.Fatalf("duplicate object content was not deduplicated: total %d bytes, one record %d bytes", len(packer.Bytes()), oneRecordSize)
	}
}

func TestBoolAndIntRoundTrip(t *testing.T) {
	type flags struct {
		Active bool
		Count  int
	}
	ser := func(f *flags, s *Serializer) {
		s.Bool(&f.Active)
		s.Int(&f.Count)
	}

	f := &flags{Active: true, Count: -7}
	packer := NewPacker()
	ser(f, packer)

	var got flags
	unpacker := NewUnpacker(packer.Bytes())
	ser(&got, unpacker)

	if got.Active != f.Active || got.Count != f.Count {
		t.Fatalf("flags round trip = %+v, want %+v", got, *f)
	}
}
