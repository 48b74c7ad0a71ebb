package jsonvalue

import "math"

// Sanitize returns a copy of v in which every non-finite number (NaN, ±Inf)
// at any depth is replaced with null. All other values, member order and
// element order are preserved. The input is never modified, and sanitizing
// an already-sanitized tree yields an equal tree.
func Sanitize(v Value) Value {
	switch v.kind {
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return Null()
		}
		return v
	case KindArray:
		items := make([]Value, len(v.items))
		for i, item := range v.items {
			items[i] = Sanitize(item)
		}
		return Value{kind: KindArray, items: items}
	case KindObject:
		members := make([]Member, len(v.members))
		for i, m := range v.members {
			members[i] = Member{Key: m.Key, Value: Sanitize(m.Value)}
		}
		return Value{kind: KindObject, members: members}
	default:
		return v
	}
}

// HasNonFinite reports whether any number in the tree is NaN or infinite.
func HasNonFinite(v Value) bool {
	switch v.kind {
	case KindNumber:
		return math.IsNaN(v.num) || math.IsInf(v.num, 0)
	case KindArray:
		for _, item := range v.items {
			if HasNonFinite(item) {
				return true
			}
		}
	case KindObject:
		for _, m := range v.members {
			if HasNonFinite(m.Value) {
				return true
			}
		}
	}
	return false
}
