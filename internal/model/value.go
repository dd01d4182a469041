package model

import (
	"fmt"

	"github.com/goccy/go-json"
)

// ValueKind discriminates the populated slot of a Value.
type ValueKind uint8

const (
	KindNone ValueKind = iota
	KindFloat64
	KindFloat32
	KindString
	KindBool
)

func (k ValueKind) String() string {
	switch k {
	case KindFloat64:
		return "float64"
	case KindFloat32:
		return "float32"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	default:
		return "none"
	}
}

// Value is a sensor reading. At most one slot is populated, selected by Kind.
// The zero Value has KindNone.
type Value struct {
	kind ValueKind
	f64  float64
	f32  float32
	str  string
	b    bool
}

func Float64Value(v float64) Value { return Value{kind: KindFloat64, f64: v} }
func Float32Value(v float32) Value { return Value{kind: KindFloat32, f32: v} }
func StringValue(v string) Value   { return Value{kind: KindString, str: v} }
func BoolValue(v bool) Value       { return Value{kind: KindBool, b: v} }

// Kind reports which slot is populated.
func (v Value) Kind() ValueKind { return v.kind }

func (v Value) Float64() (float64, bool) { return v.f64, v.kind == KindFloat64 }
func (v Value) Float32() (float32, bool) { return v.f32, v.kind == KindFloat32 }
func (v Value) Str() (string, bool)      { return v.str, v.kind == KindString }
func (v Value) Bool() (bool, bool)       { return v.b, v.kind == KindBool }

// Power returns the value as watts for energy derivation. Float64 wins over
// float32, an empty reading counts as 0, and string or bool readings are not
// numeric (ok is false).
func (v Value) Power() (watts float64, ok bool) {
	switch v.kind {
	case KindFloat64:
		return v.f64, true
	case KindFloat32:
		return float64(v.f32), true
	case KindNone:
		return 0, true
	default:
		return 0, false
	}
}

// Columns splits the value into the four nullable storage columns.
func (v Value) Columns() (f64 *float64, f32 *float64, str *string, b *bool) {
	switch v.kind {
	case KindFloat64:
		x := v.f64
		f64 = &x
	case KindFloat32:
		x := float64(v.f32)
		f32 = &x
	case KindString:
		x := v.str
		str = &x
	case KindBool:
		x := v.b
		b = &x
	}
	return
}

// ValueFromColumns rebuilds a Value from storage columns. It rejects rows
// with more than one populated slot.
func ValueFromColumns(f64, f32 *float64, str *string, b *bool) (Value, error) {
	var v Value
	n := 0
	if f64 != nil {
		v, n = Float64Value(*f64), n+1
	}
	if f32 != nil {
		v, n = Float32Value(float32(*f32)), n+1
	}
	if str != nil {
		v, n = StringValue(*str), n+1
	}
	if b != nil {
		v, n = BoolValue(*b), n+1
	}
	if n > 1 {
		return Value{}, fmt.Errorf("reading has %d populated value columns", n)
	}
	return v, nil
}

func (v Value) String() string {
	switch v.kind {
	case KindFloat64:
		return fmt.Sprintf("%g", v.f64)
	case KindFloat32:
		return fmt.Sprintf("%g", v.f32)
	case KindString:
		return v.str
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	default:
		return "<none>"
	}
}

type valueJSON struct {
	Kind  string `json:"kind"`
	Value any    `json:"value,omitempty"`
}

func (v Value) MarshalJSON() ([]byte, error) {
	out := valueJSON{Kind: v.kind.String()}
	switch v.kind {
	case KindFloat64:
		out.Value = v.f64
	case KindFloat32:
		out.Value = v.f32
	case KindString:
		out.Value = v.str
	case KindBool:
		out.Value = v.b
	}
	return json.Marshal(out)
}
