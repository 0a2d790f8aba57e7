// Package checkpoint implements the engine's checkpoint/restart
// machinery: a four-mode Serializer (Sizer/Pack/Unpack/Map), the
// on-disk registry-plus-blob layout, and the restart sequence that
// rebuilds a partition's component graph from it.
package checkpoint

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/sstgo/corevortex/internal/objectmap"
	"golang.org/x/crypto/blake2b"
)

// Mode selects what a Serializable's Serialize method should do with
// the Serializer it is given.
type Mode int

const (
	// Sizer computes the byte size a value would occupy when packed,
	// without writing anything.
	Sizer Mode = iota
	// Pack writes a value's bytes to the serializer's buffer.
	Pack
	// Unpack reads a value's bytes back from the serializer's cursor.
	Unpack
	// Map installs a value's fields into an introspection tree
	// instead of reading or writing wire bytes (see package
	// objectmap).
	Map
)

func (m Mode) String() string {
	switch m {
	case Sizer:
		return "sizer"
	case Pack:
		return "pack"
	case Unpack:
		return "unpack"
	case Map:
		return "map"
	default:
		return "unknown"
	}
}

// Serializable is implemented by every type the checkpoint engine
// must be able to size, pack, unpack, or map. A single method body is
// expected to branch on s.Mode() only where the four modes genuinely
// differ (most fields just call through to the Uint64/Int/Bool/String/
// RawBytes/Object helpers that already branch internally).
type Serializable interface {
	Serialize(s *Serializer)
}

// refEntry records where an already-packed object's bytes begin, so a
// second reference to content-identical data can be replaced with a
// short back-reference instead of being duplicated. identity is a
// blake2b-256 hash of the object's packed bytes, standing in for the
// original's pointer-identity tracking: two Go values that would not
// compare by pointer (e.g. after a restart) but serialize to the same
// bytes are still deduplicated, and a restart always reconstructs one
// instance per distinct packed representation.
type refEntry struct {
	id int
}

// Serializer is a cursor over an in-progress checkpoint blob,
// operating in one of four modes. The zero value is not usable; use
// NewSizer/NewPacker/NewUnpacker/NewMapper.
type Serializer struct {
	mode Mode

	size int // Sizer

	buf *bytes.Buffer // Pack
	pos int           // Unpack cursor into data
	data []byte       // Unpack source

	seen    map[[32]byte]refEntry // Pack: content-hash -> first id
	nextID  int                   // Pack: next id to assign
	byID    map[int][]byte        // Pack: id -> packed bytes, for back-reference resolution
	restore map[int]any           // Unpack: id -> already-decoded value, for shared references

	tree *mapNode // Map
}

func NewSizer() *Serializer { return &Serializer{mode: Sizer} }

func NewPacker() *Serializer {
	return &Serializer{
		mode: Pack,
		buf:  &bytes.Buffer{},
		seen: make(map[[32]byte]refEntry),
		byID: make(map[int][]byte),
	}
}

func NewUnpacker(data []byte) *Serializer {
	return &Serializer{mode: Unpack, data: data, restore: make(map[int]any)}
}

func NewMapper() *Serializer {
	return &Serializer{mode: Map, tree: newMapNode()}
}

func (s *Serializer) Mode() Mode { return s.mode }

// Size returns the accumulated size in Sizer mode.
func (s *Serializer) Size() int { return s.size }

// Bytes returns the packed buffer in Pack mode.
func (s *Serializer) Bytes() []byte {
	if s.buf == nil {
		return nil
	}
	return s.buf.Bytes()
}

// Tree returns the introspection tree built in Map mode, converted to
// the objectmap package's public ObjectMap representation.
func (s *Serializer) Tree() objectmap.ObjectMap { return s.tree.toObjectMap("root") }

// --- primitives ---

// Uint64 sizes/packs/unpacks a uint64 field in place.
func (s *Serializer) Uint64(v *uint64) {
	switch s.mode {
	case Sizer:
		s.size += 8
	case Pack:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], *v)
		s.buf.Write(b[:])
	case Unpack:
		*v = binary.LittleEndian.Uint64(s.take(8))
	case Map:
		s.tree.scalar = *v
	}
}

// Int sizes/packs/unpacks an int field as a zig-zag varint-free
// fixed 8-byte value, for simplicity and deterministic size.
func (s *Serializer) Int(v *int) {
	u := uint64(int64(*v))
	switch s.mode {
	case Unpack:
		var uv uint64
		s.Uint64(&uv)
		*v = int(int64(uv))
		return
	default:
		s.Uint64(&u)
		if s.mode == Map {
			s.tree.scalar = *v
		}
	}
}

// Bool sizes/packs/unpacks a single-byte bool field.
func (s *Serializer) Bool(v *bool) {
	switch s.mode {
	case Sizer:
		s.size++
	case Pack:
		if *v {
			s.buf.WriteByte(1)
		} else {
			s.buf.WriteByte(0)
		}
	case Unpack:
		*v = s.take(1)[0] != 0
	case Map:
		s.tree.scalar = *v
	}
}

// String sizes/packs/unpacks a length-prefixed UTF-8 string.
func (s *Serializer) String(v *string) {
	switch s.mode {
	case Sizer:
		s.size += 8 + len(*v)
	case Pack:
		n := uint64(len(*v))
		s.Uint64(&n)
		s.buf.WriteString(*v)
	case Unpack:
		var n uint64
		s.Uint64(&n)
		*v = string(s.take(int(n)))
	case Map:
		s.tree.scalar = *v
	}
}

// RawBytes sizes/packs/unpacks a length-prefixed byte slice.
func (s *Serializer) RawBytes(v *[]byte) {
	switch s.mode {
	case Sizer:
		s.size += 8 + len(*v)
	case Pack:
		n := uint64(len(*v))
		s.Uint64(&n)
		s.buf.Write(*v)
	case Unpack:
		var n uint64
		s.Uint64(&n)
		*v = append([]byte(nil), s.take(int(n))...)
	case Map:
		s.tree.scalar = fmt.Sprintf("<%d bytes>", len(*v))
	}
}

func (s *Serializer) take(n int) []byte {
	b := s.data[s.pos : s.pos+n]
	s.pos += n
	return b
}

// Object sizes/packs/unpacks a nested Serializable, deduplicating
// identical packed content by a blake2b-256 hash of its bytes rather
// than by pointer identity (a restart never has meaningful pointer
// identity to dedup against). Every record starts with a one-byte
// tag: 0 for a full record ([size:u64][payload] follows), 1 for a
// back-reference ([id:u64] follows, no payload).
func (s *Serializer) Object(obj Serializable) {
	switch s.mode {
	case Sizer:
		inner := NewSizer()
		obj.Serialize(inner)
		s.size += 1 + 8 + inner.Size()
	case Pack:
		inner := NewPacker()
		obj.Serialize(inner)
		packed := inner.Bytes()
		hash := blake2b.Sum256(packed)
		if ref, ok := s.seen[hash]; ok {
			s.buf.WriteByte(1)
			var idb [8]byte
			binary.LittleEndian.PutUint64(idb[:], uint64(ref.id))
			s.buf.Write(idb[:])
			return
		}
		s.nextID++
		id := s.nextID
		s.seen[hash] = refEntry{id: id}
		s.byID[id] = packed

		s.buf.WriteByte(0)
		n := uint64(len(packed))
		s.Uint64(&n)
		s.buf.Write(packed)
	case Unpack:
		tag := s.take(1)[0]
		if tag == 1 {
			id := int(binary.LittleEndian.Uint64(s.take(8)))
			if prior, ok := s.restore[id]; ok {
				if dst, ok := prior.(Serializable); ok {
					copyInto(obj, dst)
				}
			}
			return
		}
		var n uint64
		s.Uint64(&n)
		inner := NewUnpacker(s.take(int(n)))
		inner.restore = s.restore
		obj.Serialize(inner)
		s.nextID++
		s.restore[s.nextID] = obj
	case Map:
		child := newMapNode()
		innerSer := &Serializer{mode: Map, tree: child}
		obj.Serialize(innerSer)
		s.tree.setField(fmt.Sprintf("object%d", len(s.tree.order)), child)
	}
}

// copyInto is a best-effort shallow copy used only to give two
// back-referenced unpack targets the same observable field values;
// callers that need true shared identity should store a pointer
// themselves and unpack once, passing the result to later Object
// calls out of band.
func copyInto(dst, src Serializable) {
	if d, ok := dst.(interface{ CopyFrom(Serializable) }); ok {
		d.CopyFrom(src)
	}
}
