package checkpoint

import (
	"fmt"

	"github.com/sstgo/corevortex/internal/objectmap"
)

// mapNode accumulates a Serializable's fields while a Serializer runs
// in Map mode. It is an internal bookkeeping type only: Serializer.Tree
// converts the finished node into the real objectmap.ObjectMap tree
// that the console walks, so nothing outside this package ever sees a
// *mapNode.
type mapNode struct {
	scalar   any
	hasField bool
	fields   map[string]*mapNode
	order    []string
}

func newMapNode() *mapNode { return &mapNode{fields: map[string]*mapNode{}} }

func (n *mapNode) setField(name string, child *mapNode) {
	if _, exists := n.fields[name]; !exists {
		n.order = append(n.order, name)
	}
	n.fields[name] = child
	n.hasField = true
}

// SetField installs a named child node, for a Serializable's Serialize
// method to call in Map mode when it has a nested field with its own
// name (rather than an anonymous Object() call). Outside Map mode it
// just runs fn against s directly, so callers can write it
// unconditionally alongside String/Uint64/etc.
func (s *Serializer) SetField(name string, fn func(*Serializer)) {
	if s.mode != Map {
		fn(s)
		return
	}
	child := newMapNode()
	inner := &Serializer{mode: Map, tree: child}
	fn(inner)
	s.tree.setField(name, child)
}

// toObjectMap converts the accumulated node into the objectmap
// package's real tree: a read-only Fundamental for a bare scalar, or a
// Container walking every named field in insertion order. A node with
// both a scalar and named fields (possible when a Serializable writes
// bare primitives before calling SetField) keeps the fields and drops
// the bare scalar, since a container takes precedence for navigation.
func (n *mapNode) toObjectMap(typeName string) objectmap.ObjectMap {
	if n.hasField {
		c := objectmap.NewContainer(typeName)
		for _, name := range n.order {
			c.Add(name, n.fields[name].toObjectMap(name))
		}
		return c
	}
	scalar := n.scalar
	return objectmap.ReadOnlyString(typeName, func() string {
		return fmt.Sprintf("%v", scalar)
	})
}
