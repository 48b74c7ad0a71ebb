// Package jsonvalue is an ordered, tagged representation of JSON documents.
//
// Artifacts are assembled as Value trees rather than Go maps so that member
// order is deterministic and so that non-finite numbers, which JSON cannot
// represent, can be scrubbed in one place before encoding. See [Sanitize].
package jsonvalue

import (
	"math"
	"strconv"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindNumber
	KindString
	KindBool
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is an immutable JSON value. The zero Value is null.
type Value struct {
	kind    Kind
	num     float64
	literal string // original number text when decoded, so re-encoding is lossless
	str     string
	b       bool
	items   []Value
	members []Member
}

// Member is one key/value pair of an object.
type Member struct {
	Key   string
	Value Value
}

// Null returns the null value.
func Null() Value { return Value{} }

// Number wraps a float. Non-finite values are allowed here and removed by Sanitize.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Int wraps an integer.
func Int(n int64) Value {
	return Value{kind: KindNumber, num: float64(n), literal: strconv.FormatInt(n, 10)}
}

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Bool wraps a bool.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Array builds an array from the given elements.
func Array(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindArray, items: items}
}

// Object builds an object; members keep the given order.
func Object(members ...Member) Value {
	if members == nil {
		members = []Member{}
	}
	return Value{kind: KindObject, members: members}
}

// M is shorthand for constructing a Member.
func M(key string, v Value) Member { return Member{Key: key, Value: v} }

// OptionalNumber returns Number(f) when ok, otherwise null.
func OptionalNumber(f float64, ok bool) Value {
	if !ok {
		return Null()
	}
	return Number(f)
}

func (v Value) Kind() Kind     { return v.kind }
func (v Value) IsNull() bool   { return v.kind == KindNull }
func (v Value) Items() []Value { return v.items }

// Members returns the object's members in order, or nil for non-objects.
func (v Value) Members() []Member { return v.members }

// Float returns the numeric value and whether v is a number.
func (v Value) Float() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

// Int64 returns the value as an integer when it is a whole, finite number.
func (v Value) Int64() (int64, bool) {
	if v.kind != KindNumber || math.IsNaN(v.num) || math.IsInf(v.num, 0) {
		return 0, false
	}
	if v.literal != "" {
		if n, err := strconv.ParseInt(v.literal, 10, 64); err == nil {
			return n, true
		}
	}
	if v.num != math.Trunc(v.num) {
		return 0, false
	}
	return int64(v.num), true
}

// Str returns the string value and whether v is a string.
func (v Value) Str() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

// Boolean returns the bool value and whether v is a bool.
func (v Value) Boolean() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// Get looks up a member by key. The second result reports presence, so a
// present-but-null member returns (Null(), true).
func (v Value) Get(key string) (Value, bool) {
	for _, m := range v.members {
		if m.Key == key {
			return m.Value, true
		}
	}
	return Value{}, false
}

// Has reports whether an object carries the key.
func (v Value) Has(key string) bool {
	_, ok := v.Get(key)
	return ok
}

// With returns a copy of the object with key set to val. An existing member
// is replaced in place; a new one is appended.
func (v Value) With(key string, val Value) Value {
	out := make([]Member, 0, len(v.members)+1)
	replaced := false
	for _, m := range v.members {
		if m.Key == key {
			out = append(out, Member{Key: key, Value: val})
			replaced = true
			continue
		}
		out = append(out, m)
	}
	if !replaced {
		out = append(out, Member{Key: key, Value: val})
	}
	return Value{kind: KindObject, members: out}
}

// Equal reports deep equality. Numbers compare by value, ignoring literal text.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindNumber:
		return a.num == b.num || (math.IsNaN(a.num) && math.IsNaN(b.num))
	case KindString:
		return a.str == b.str
	case KindBool:
		return a.b == b.b
	case KindArray:
		if len(a.items) != len(b.items) {
			return false
		}
		for i := range a.items {
			if !Equal(a.items[i], b.items[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(a.members) != len(b.members) {
			return false
		}
		for i := range a.members {
			if a.members[i].Key != b.members[i].Key || !Equal(a.members[i].Value, b.members[i].Value) {
				return false
			}
		}
		return true
	}
	return false
}
