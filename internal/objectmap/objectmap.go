// Package objectmap implements the introspection tree a Serializer's
// Map mode installs entries into: a live, read-mostly view of an
// engine object graph that the interactive console can walk without
// holding a reference to the simulation's actual state.
package objectmap

import "fmt"

// ObjectMap is one node of the introspection tree. A leaf node wraps a
// fundamental value (a string, number, or bool); a container node
// holds named children instead.
type ObjectMap interface {
	// Get returns the node's value formatted as a string. Container
	// nodes return a short summary rather than an error.
	Get() string
	// Set assigns a new value from its string form. Read-only nodes
	// (and all containers) reject this.
	Set(value string) error
	// IsFundamental reports whether this node wraps a scalar value
	// rather than a set of named children.
	IsFundamental() bool
	// Type names the Go type of the wrapped value, or the container's
	// declared type name.
	Type() string
	// ReadOnly reports whether Set always fails for this node.
	ReadOnly() bool
}

// errReadOnly is returned by Set on a read-only or container node.
type errReadOnly struct{ path string }

func (e *errReadOnly) Error() string { return fmt.Sprintf("objectmap: %s is read-only", e.path) }

// Fundamental wraps a single scalar value. SetFn is nil for read-only
// fundamentals (as in the original's ObjectMapFundamental<TimeConverter>,
// which always refuses Set).
type Fundamental struct {
	Name   string
	TypeName string
	Get_  func() string
	SetFn func(string) error
}

func (f *Fundamental) Get() string { return f.Get_() }

func (f *Fundamental) Set(value string) error {
	if f.SetFn == nil {
		return &errReadOnly{path: f.Name}
	}
	return f.SetFn(value)
}

func (f *Fundamental) IsFundamental() bool { return true }
func (f *Fundamental) Type() string        { return f.TypeName }
func (f *Fundamental) ReadOnly() bool      { return f.SetFn == nil }

// Container holds named child nodes for an aggregate value
// (ComponentInfo, LinkMap, Clock, a task queue, ...). Containers are
// always read-only as a whole; individual fundamental children may be
// writable.
type Container struct {
	TypeName string
	Children map[string]ObjectMap
	order    []string
}

// NewContainer creates an empty container of the given declared type.
func NewContainer(typeName string) *Container {
	return &Container{TypeName: typeName, Children: map[string]ObjectMap{}}
}

// Add installs a named child, preserving insertion order for Names().
func (c *Container) Add(name string, child ObjectMap) {
	if _, exists := c.Children[name]; !exists {
		c.order = append(c.order, name)
	}
	c.Children[name] = child
}

// Names returns the child field names in insertion order.
func (c *Container) Names() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Field returns the named child, or nil if absent.
func (c *Container) Field(name string) ObjectMap {
	return c.Children[name]
}

func (c *Container) Get() string {
	return fmt.Sprintf("%s{%d fields}", c.TypeName, len(c.Children))
}

func (c *Container) Set(string) error { return &errReadOnly{path: c.TypeName} }
func (c *Container) IsFundamental() bool { return false }
func (c *Container) Type() string        { return c.TypeName }
func (c *Container) ReadOnly() bool      { return true }
