package objectmap

import (
	"fmt"
	"strconv"
)

// String builds a read-write string fundamental backed by get/set
// closures over the caller's field.
func String(name string, get func() string, set func(string)) *Fundamental {
	f := &Fundamental{Name: name, TypeName: "string", Get_: get}
	if set != nil {
		f.SetFn = func(v string) error { set(v); return nil }
	}
	return f
}

// ReadOnlyString builds a read-only string fundamental, e.g. for a
// TimeConverter's factor or a ComponentInfo's Name.
func ReadOnlyString(name string, get func() string) *Fundamental {
	return &Fundamental{Name: name, TypeName: "string", Get_: get}
}

// Uint64 builds a read-write uint64 fundamental.
func Uint64(name string, get func() uint64, set func(uint64)) *Fundamental {
	f := &Fundamental{Name: name, TypeName: "uint64", Get_: func() string {
		return strconv.FormatUint(get(), 10)
	}}
	if set != nil {
		f.SetFn = func(v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("objectmap: %s: %w", name, err)
			}
			set(n)
			return nil
		}
	}
	return f
}

// ReadOnlyUint64 builds a read-only uint64 fundamental.
func ReadOnlyUint64(name string, get func() uint64) *Fundamental {
	return Uint64(name, get, nil)
}

// Bool builds a read-write bool fundamental.
func Bool(name string, get func() bool, set func(bool)) *Fundamental {
	f := &Fundamental{Name: name, TypeName: "bool", Get_: func() string {
		return strconv.FormatBool(get())
	}}
	if set != nil {
		f.SetFn = func(v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("objectmap: %s: %w", name, err)
			}
			set(b)
			return nil
		}
	}
	return f
}
