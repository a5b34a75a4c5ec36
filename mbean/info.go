package mbean

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
)

// Domains is the canonical listing: domain -> property list -> descriptor.
// Every wire shape is converted into this before a tree is built.
type Domains map[string]Domain

// Domain maps property-list strings to MBean descriptors.
type Domain map[string]*MBeanInfo

// Count returns the number of descriptors across all domains.
func (d Domains) Count() int {
	n := 0
	for _, dom := range d {
		n += len(dom)
	}
	return n
}

// RightsState records whether invocation rights were supplied for a descriptor.
type RightsState int

const (
	// RightsUnknown is the state of descriptors not produced by a listing.
	RightsUnknown RightsState = iota
	// RightsNotDecorated means at least one operation or attribute lacks a flag.
	RightsNotDecorated
	// RightsDecorated means every operation and attribute carries a flag.
	RightsDecorated
)

func (s RightsState) String() string {
	switch s {
	case RightsNotDecorated:
		return "not-decorated"
	case RightsDecorated:
		return "decorated"
	default:
		return "unknown"
	}
}

// MBeanInfo describes the attributes and operations of one MBean.
type MBeanInfo struct {
	Desc       string                `json:"desc,omitempty"`
	Class      string                `json:"class,omitempty"`
	Attr       map[string]*Attribute `json:"attr,omitempty"`
	Op         map[string]Operations `json:"op,omitempty"`
	Notif      json.RawMessage       `json:"notif,omitempty"`
	OpByString map[string]*Operation `json:"opByString,omitempty"`
	CanInvoke  *bool                 `json:"canInvoke,omitempty"`
	Error      string                `json:"error,omitempty"`

	// Rights is set once by the listing path that produced the descriptor.
	Rights RightsState `json:"-"`
}

// Attribute describes an MBean attribute.
type Attribute struct {
	Desc      string `json:"desc,omitempty"`
	Type      string `json:"type,omitempty"`
	RW        bool   `json:"rw"`
	CanInvoke *bool  `json:"canInvoke,omitempty"`
}

// Operation describes one signature of an MBean operation.
type Operation struct {
	Desc      string     `json:"desc,omitempty"`
	Args      []Argument `json:"args"`
	Ret       string     `json:"ret,omitempty"`
	CanInvoke *bool      `json:"canInvoke,omitempty"`
}

// Argument describes an operation parameter.
type Argument struct {
	Name string `json:"name,omitempty"`
	Type string `json:"type"`
	Desc string `json:"desc,omitempty"`
}

// Operations holds the overloads of one operation name. On the wire a
// single signature is an object and overloads are an array.
type Operations []*Operation

func (o *Operations) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var ops []*Operation
		if err := json.Unmarshal(data, &ops); err != nil {
			return err
		}
		*o = ops
		return nil
	}
	var op Operation
	if err := json.Unmarshal(data, &op); err != nil {
		return err
	}
	*o = Operations{&op}
	return nil
}

func (o Operations) MarshalJSON() ([]byte, error) {
	if len(o) == 1 {
		return json.Marshal(o[0])
	}
	return json.Marshal([]*Operation(o))
}

// Signature returns the operation signature, e.g. "start(java.lang.String,int)".
func (op *Operation) Signature(name string) string {
	types := make([]string, len(op.Args))
	for i, a := range op.Args {
		types[i] = a.Type
	}
	return name + "(" + strings.Join(types, ",") + ")"
}

// IsError reports whether the server could not describe the MBean.
func (m *MBeanInfo) IsError() bool {
	return m.Error != "" && m.Attr == nil && m.Op == nil
}

// EnsureOpByString rebuilds OpByString so that it shares its entries with
// Op. Flags the server only sent on the by-signature view are carried over.
func (m *MBeanInfo) EnsureOpByString() {
	if len(m.Op) == 0 {
		return
	}
	byString := make(map[string]*Operation)
	for name, overloads := range m.Op {
		for _, op := range overloads {
			sig := op.Signature(name)
			if srv, ok := m.OpByString[sig]; ok && op.CanInvoke == nil && srv.CanInvoke != nil {
				op.CanInvoke = cloneBool(srv.CanInvoke)
			}
			byString[sig] = op
		}
	}
	m.OpByString = byString
}

// InferRights scans the flags once and records the result in Rights.
func (m *MBeanInfo) InferRights() RightsState {
	m.Rights = RightsDecorated
	for _, overloads := range m.Op {
		for _, op := range overloads {
			if op.CanInvoke == nil {
				m.Rights = RightsNotDecorated
				return m.Rights
			}
		}
	}
	for _, attr := range m.Attr {
		if attr.CanInvoke == nil {
			m.Rights = RightsNotDecorated
			return m.Rights
		}
	}
	return m.Rights
}

// OperationNames returns the operation names in sorted order.
func (m *MBeanInfo) OperationNames() []string {
	names := make([]string, 0, len(m.Op))
	for name := range m.Op {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AttributeNames returns the attribute names in sorted order.
func (m *MBeanInfo) AttributeNames() []string {
	names := make([]string, 0, len(m.Attr))
	for name := range m.Attr {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy.
func (m *MBeanInfo) Clone() *MBeanInfo {
	if m == nil {
		return nil
	}
	c := *m
	c.CanInvoke = cloneBool(m.CanInvoke)
	if m.Attr != nil {
		c.Attr = make(map[string]*Attribute, len(m.Attr))
		for k, a := range m.Attr {
			ac := *a
			ac.CanInvoke = cloneBool(a.CanInvoke)
			c.Attr[k] = &ac
		}
	}
	byPtr := make(map[*Operation]*Operation)
	if m.Op != nil {
		c.Op = make(map[string]Operations, len(m.Op))
		for name, overloads := range m.Op {
			ops := make(Operations, len(overloads))
			for i, op := range overloads {
				oc := *op
				oc.Args = append([]Argument(nil), op.Args...)
				oc.CanInvoke = cloneBool(op.CanInvoke)
				ops[i] = &oc
				byPtr[op] = &oc
			}
			c.Op[name] = ops
		}
	}
	if m.OpByString != nil {
		c.OpByString = make(map[string]*Operation, len(m.OpByString))
		for sig, op := range m.OpByString {
			if shared, ok := byPtr[op]; ok {
				c.OpByString[sig] = shared
				continue
			}
			oc := *op
			oc.CanInvoke = cloneBool(op.CanInvoke)
			c.OpByString[sig] = &oc
		}
	}
	return &c
}

func cloneBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}

// BoolPtr returns a pointer to v.
func BoolPtr(v bool) *bool {
	return &v
}
