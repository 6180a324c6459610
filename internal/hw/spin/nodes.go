package spin

import (
	"errors"

	"github.com/cjeanneret/spinrec/internal/debug"
)

// NodeKind is the GenICam interface type of a node.
type NodeKind int

const (
	KindUnknown NodeKind = iota
	KindInteger
	KindBoolean
	KindFloat
	KindCommand
	KindString
	KindEnumeration
	KindEnumEntry
	KindCategory
)

// NodeMap is a camera property registry.
type NodeMap interface {
	// Node returns the named node, or nil if the map has no such feature.
	Node(name string) Node
}

// Node is the common part of every feature.
type Node interface {
	Name() string
	Kind() NodeKind
	IsAvailable() bool
	IsReadable() bool
	IsWritable() bool
	// ToString renders the current value as text.
	ToString() (string, error)
}

// Enumeration is a node with named entries.
type Enumeration interface {
	Node
	// EntryByName returns the named entry, or nil if it does not exist.
	EntryByName(name string) EnumEntry
	IntValue() (int64, error)
	SetIntValue(v int64) error
}

// EnumEntry is one value of an Enumeration.
type EnumEntry interface {
	Node
	Value() (int64, error)
}

// Float is a floating point feature with bounds.
type Float interface {
	Node
	Value() (float64, error)
	Max() (float64, error)
	SetValue(v float64) error
}

// Command is an executable feature (e.g. TriggerSoftware).
type Command interface {
	Node
	Execute() error
}

// String is a text feature.
type String interface {
	Node
	Value() (string, error)
}

// Category groups features (e.g. DeviceInformation).
type Category interface {
	Node
	Features() ([]Node, error)
}

var errNotWritable = errors.New("not available or not writable")
var errNotReadable = errors.New("not available or not readable")

func present(n Node) bool {
	return n != nil && n.IsAvailable()
}

// Readable reports whether n exists, is available and readable.
func Readable(n Node) bool {
	return present(n) && n.IsReadable()
}

// Writable reports whether n exists, is available and writable.
func Writable(n Node) bool {
	return present(n) && n.IsWritable()
}

// EnumerationNode fetches an enumeration node and checks it can be written.
func EnumerationNode(nm NodeMap, name string) (Enumeration, error) {
	n := nm.Node(name)
	if !Writable(n) {
		return nil, &NodeError{Node: name, Step: "node retrieval", Err: errNotWritable}
	}
	e, ok := n.(Enumeration)
	if !ok || n.Kind() != KindEnumeration {
		return nil, &NodeError{Node: name, Step: "node retrieval", Err: errors.New("not an enumeration")}
	}
	return e, nil
}

// SetEnum writes the named entry into an enumeration node. The node must be
// available and writable, the entry available and readable.
func SetEnum(nm NodeMap, name, entry string) error {
	e, err := EnumerationNode(nm, name)
	if err != nil {
		return err
	}
	ent := e.EntryByName(entry)
	if !Readable(ent) {
		return &NodeError{Node: name, Entry: entry, Step: "enum entry retrieval", Err: errNotReadable}
	}
	v, err := ent.Value()
	if err != nil {
		return &NodeError{Node: name, Entry: entry, Step: "enum entry retrieval", Err: err}
	}
	debug.Node("SetIntValue", name, entry)
	if err := e.SetIntValue(v); err != nil {
		return &NodeError{Node: name, Entry: entry, Step: "set", Err: err}
	}
	return nil
}

// FloatNode fetches a float node and checks it can be written.
func FloatNode(nm NodeMap, name string) (Float, error) {
	n := nm.Node(name)
	if !Writable(n) {
		return nil, &NodeError{Node: name, Step: "node retrieval", Err: errNotWritable}
	}
	f, ok := n.(Float)
	if !ok || n.Kind() != KindFloat {
		return nil, &NodeError{Node: name, Step: "node retrieval", Err: errors.New("not a float")}
	}
	return f, nil
}

// Execute runs a command node.
func Execute(nm NodeMap, name string) error {
	n := nm.Node(name)
	if !Writable(n) {
		return &NodeError{Node: name, Step: "node retrieval", Err: errNotWritable}
	}
	c, ok := n.(Command)
	if !ok || n.Kind() != KindCommand {
		return &NodeError{Node: name, Step: "node retrieval", Err: errors.New("not a command")}
	}
	debug.Node("Execute", name, nil)
	if err := c.Execute(); err != nil {
		return &NodeError{Node: name, Step: "execute", Err: err}
	}
	return nil
}

// ReadString returns the value of a string node, or "" when the node is
// missing or unreadable.
func ReadString(nm NodeMap, name string) string {
	n := nm.Node(name)
	if !Readable(n) {
		return ""
	}
	s, ok := n.(String)
	if !ok {
		return ""
	}
	v, err := s.Value()
	if err != nil {
		return ""
	}
	debug.Node("GetValue", name, v)
	return v
}

// SerialNumber reads DeviceSerialNumber from the transport layer node map.
func SerialNumber(cam Camera) string {
	return ReadString(cam.TLDeviceNodeMap(), NodeDeviceSerialNumber)
}

// Feature is one name/value pair of a category dump.
type Feature struct {
	Name     string
	Value    string
	Readable bool
}

// CategoryFeatures lists the features of a category node with their current
// values. It returns false when the category itself is not readable.
func CategoryFeatures(nm NodeMap, name string) ([]Feature, bool) {
	n := nm.Node(name)
	if !Readable(n) {
		return nil, false
	}
	c, ok := n.(Category)
	if !ok {
		return nil, false
	}
	nodes, err := c.Features()
	if err != nil {
		return nil, false
	}
	features := make([]Feature, 0, len(nodes))
	for _, f := range nodes {
		feat := Feature{Name: f.Name()}
		if f.IsReadable() {
			if v, err := f.ToString(); err == nil {
				feat.Value = v
				feat.Readable = true
			}
		}
		features = append(features, feat)
	}
	return features, true
}
