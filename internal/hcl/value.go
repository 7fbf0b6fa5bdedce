// Package hcl synthesizes the Terraform configuration artifact that mirrors
// every object the migration creates. The generator only ever appends to an
// existing artifact, so manual edits survive reruns.
package hcl

// Value is the closed set of attribute shapes the generator emits.
type Value interface {
	isValue()
}

// StringValue renders quoted, or as a heredoc when it spans lines.
type StringValue string

// BoolValue renders as a bare true/false literal.
type BoolValue bool

// ListValue renders as a multi-line bracket list.
type ListValue []Value

// RawValue is an already-encoded HCL expression, emitted verbatim.
type RawValue string

// BlockValue renders as a nested block without an equals sign.
type BlockValue struct {
	Body *Body
}

// ReferenceValue renders as the id address of another record, so generated
// blocks chain together instead of hardcoding target ids.
type ReferenceValue struct {
	Target *Record
}

func (StringValue) isValue()    {}
func (BoolValue) isValue()      {}
func (ListValue) isValue()      {}
func (RawValue) isValue()       {}
func (BlockValue) isValue()     {}
func (ReferenceValue) isValue() {}

func String(s string) Value { return StringValue(s) }
func Bool(b bool) Value     { return BoolValue(b) }
func Raw(s string) Value    { return RawValue(s) }

func Ref(target *Record) Value { return ReferenceValue{Target: target} }

func Block(body *Body) Value { return BlockValue{Body: body} }

// Strings wraps a string slice as a list value.
func Strings(items []string) Value {
	list := make(ListValue, 0, len(items))
	for _, item := range items {
		list = append(list, StringValue(item))
	}
	return list
}

// Refs wraps record references as a list value.
func Refs(targets []*Record) Value {
	list := make(ListValue, 0, len(targets))
	for _, target := range targets {
		list = append(list, ReferenceValue{Target: target})
	}
	return list
}

// Attribute is one key/value pair of a block body.
type Attribute struct {
	Key   string
	Value Value
}

// Body is an ordered attribute collection. Order is preserved so rerendering
// a record is deterministic.
type Body struct {
	attrs []Attribute
}

func NewBody() *Body {
	return &Body{}
}

// Set adds or replaces an attribute. Nil values are dropped, which lets
// callers pass through optional attributes without checking each one.
func (b *Body) Set(key string, v Value) *Body {
	if v == nil {
		return b
	}
	for i := range b.attrs {
		if b.attrs[i].Key == key {
			b.attrs[i].Value = v
			return b
		}
	}
	b.attrs = append(b.attrs, Attribute{Key: key, Value: v})
	return b
}

func (b *Body) Get(key string) (Value, bool) {
	for _, attr := range b.attrs {
		if attr.Key == key {
			return attr.Value, true
		}
	}
	return nil, false
}

func (b *Body) Attributes() []Attribute {
	return b.attrs
}
