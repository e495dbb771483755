package heap

import (
	"math"
)

// Value represents a payload slot value using NaN-boxing.
//
// All values are represented as 64-bit IEEE 754 doubles. Non-float values
// are encoded in the NaN (Not-a-Number) space using the quiet NaN prefix
// and tag bits to distinguish kinds.
//
// Encoding scheme:
//   - Float: native IEEE 754 double (if not a NaN, it's a float)
//   - Int: quiet NaN + tagInt + 48-bit signed payload
//   - Ref: quiet NaN + tagRef + 48-bit arena address
//   - Weak: quiet NaN + tagWeak + weak reference ID
//   - Special: quiet NaN + tagSpecial + special value ID (nil/true/false)
//
// References are encoded by arena address rather than machine pointer, so a
// reclaimed target is detectable (the arena keeps a poisoned header at the
// address until the cell is reused) instead of being a dangling pointer.
type Value uint64

// NaN-boxing constants
const (
	// Quiet NaN prefix: exponent all 1s, quiet bit set, sign bit 0
	// 0x7FF8_0000_0000_0000
	nanBits uint64 = 0x7FF8000000000000

	// Tag mask: 3 bits within the NaN mantissa space
	tagMask uint64 = 0x0007000000000000

	// Payload mask: 48 bits for address/int/id
	payloadMask uint64 = 0x0000FFFFFFFFFFFF

	// Tag values (shifted into position)
	tagRef     uint64 = 0x0001000000000000 // Arena address of a managed object
	tagInt     uint64 = 0x0002000000000000 // 48-bit signed integer
	tagSpecial uint64 = 0x0003000000000000 // nil, true, false
	tagWeak    uint64 = 0x0004000000000000 // Weak reference ID

	// Sign bit for 48-bit integer sign extension
	intSignBit uint64 = 0x0000800000000000

	// Mask for sign extension
	intSignExtend uint64 = 0xFFFF000000000000
)

// Special value payloads
const (
	specialNil   uint64 = 0
	specialTrue  uint64 = 1
	specialFalse uint64 = 2
)

// Pre-defined special values
const (
	Nil   Value = Value(nanBits | tagSpecial | specialNil)
	True  Value = Value(nanBits | tagSpecial | specialTrue)
	False Value = Value(nanBits | tagSpecial | specialFalse)
)

// Int range (48-bit signed)
const (
	MaxInt int64 = (1 << 47) - 1
	MinInt int64 = -(1 << 47)
)

// Addr is the arena address of a managed object. The zero address is never
// a valid object; it plays the role of the null pointer.
type Addr uint64

// NilAddr is the address of no object.
const NilAddr Addr = 0

// ---------------------------------------------------------------------------
// Kind checking
// ---------------------------------------------------------------------------

// IsFloat returns true if v represents a float64 value.
// A value is a float if it's not one of our tagged NaN values.
func (v Value) IsFloat() bool {
	bits := uint64(v)

	if (bits & 0x7FF0000000000000) != 0x7FF0000000000000 {
		// Exponent is not all 1s, so it's a regular float
		return true
	}

	// Exponent is all 1s. Infinity has mantissa == 0.
	mantissa := bits & 0x000FFFFFFFFFFFFF
	if mantissa == 0 {
		return true
	}

	if (bits & nanBits) != nanBits {
		// Signaling NaN, treat as float
		return true
	}

	// Quiet NaN with no tag bits is a "real" NaN, treat as float.
	return bits&tagMask == 0
}

// IsInt returns true if v represents an integer.
func (v Value) IsInt() bool {
	return (uint64(v) & (nanBits | tagMask)) == (nanBits | tagInt)
}

// IsRef returns true if v represents a reference to a managed object.
func (v Value) IsRef() bool {
	return (uint64(v) & (nanBits | tagMask)) == (nanBits | tagRef)
}

// IsWeak returns true if v represents a weak reference ID.
func (v Value) IsWeak() bool {
	return (uint64(v) & (nanBits | tagMask)) == (nanBits | tagWeak)
}

// IsNil returns true if v is the nil value.
func (v Value) IsNil() bool {
	return v == Nil
}

// IsBool returns true if v is true or false.
func (v Value) IsBool() bool {
	return v == True || v == False
}

// ---------------------------------------------------------------------------
// Float operations
// ---------------------------------------------------------------------------

// Float64 returns v as a float64.
// Panics if v is not a float.
func (v Value) Float64() float64 {
	if !v.IsFloat() {
		panic("Value.Float64: not a float")
	}
	return math.Float64frombits(uint64(v))
}

// FromFloat64 creates a Value from a float64.
func FromFloat64(f float64) Value {
	return Value(math.Float64bits(f))
}

// ---------------------------------------------------------------------------
// Int operations
// ---------------------------------------------------------------------------

// Int returns v as an int64.
// Panics if v is not an integer.
func (v Value) Int() int64 {
	if !v.IsInt() {
		panic("Value.Int: not an integer")
	}
	payload := uint64(v) & payloadMask

	// Sign extend from 48 bits to 64 bits
	if (payload & intSignBit) != 0 {
		payload |= intSignExtend
	}
	return int64(payload)
}

// FromInt creates a Value from an int64.
// Panics if n is outside the 48-bit range.
func FromInt(n int64) Value {
	if n > MaxInt || n < MinInt {
		panic("FromInt: value out of range")
	}
	return Value(nanBits | tagInt | (uint64(n) & payloadMask))
}

// ---------------------------------------------------------------------------
// Reference operations
// ---------------------------------------------------------------------------

// RefAddr returns the arena address encoded in v.
// Panics if v is not a reference.
func (v Value) RefAddr() Addr {
	if !v.IsRef() {
		panic("Value.RefAddr: not a reference")
	}
	return Addr(uint64(v) & payloadMask)
}

// FromRefAddr creates a Value from an arena address.
func FromRefAddr(a Addr) Value {
	return Value(nanBits | tagRef | (uint64(a) & payloadMask))
}

// ---------------------------------------------------------------------------
// Weak reference operations
// ---------------------------------------------------------------------------

// WeakID returns the weak reference ID encoded in v.
// Panics if v is not a weak reference.
func (v Value) WeakID() uint32 {
	if !v.IsWeak() {
		panic("Value.WeakID: not a weak reference")
	}
	return uint32(uint64(v) & payloadMask)
}

// FromWeakID creates a Value from a weak reference ID.
func FromWeakID(id uint32) Value {
	return Value(nanBits | tagWeak | uint64(id))
}

// ---------------------------------------------------------------------------
// Boolean operations
// ---------------------------------------------------------------------------

// Bool returns v as a bool.
// Panics if v is not true or false.
func (v Value) Bool() bool {
	switch v {
	case True:
		return true
	case False:
		return false
	default:
		panic("Value.Bool: not a boolean")
	}
}

// FromBool creates a Value from a bool.
func FromBool(b bool) Value {
	if b {
		return True
	}
	return False
}
