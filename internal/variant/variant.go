// Package variant implements the tagged value domain used for object
// attributes and the expression sub-language: nil, bool, int, double,
// string, point, and homogeneous arrays of any of those.
package variant

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/purpleidea/poietic-core/internal/errwrap"
)

// ValueType is the reflected type tag used by trait schemas and the
// expression binder.
type ValueType int

// The full set of value types a Variant can carry.
const (
	TypeNil ValueType = iota
	TypeBool
	TypeInt
	TypeDouble
	TypeString
	TypePoint
	TypeArray // homogeneous array of one of the atomic types above
)

// String renders the canonical name of a ValueType.
func (t ValueType) String() string {
	switch t {
	case TypeNil:
		return "nil"
	case TypeBool:
		return "bool"
	case TypeInt:
		return "int"
	case TypeDouble:
		return "double"
	case TypeString:
		return "string"
	case TypePoint:
		return "point"
	case TypeArray:
		return "array"
	default:
		return "unknown"
	}
}

// Errors returned from conversions and comparisons. Names are stable and
// intended to be matched on by callers.
const (
	ErrTypeMismatch      = errwrap.ConstError("variant: type mismatch")
	ErrConversionFailed  = errwrap.ConstError("variant: conversion failed")
	ErrIncomparableArray = errwrap.ConstError("variant: arrays of different element type")
	ErrNotAnArray        = errwrap.ConstError("variant: not an array")
)

// Point is a pair of doubles, used for 2D positional/graphical attributes.
type Point struct {
	X, Y float64
}

// Variant is a tagged sum over the value domain. The zero Variant is the nil
// variant. Exactly one of the typed fields is meaningful, selected by Type.
type Variant struct {
	typ   ValueType
	b     bool
	i     int64
	d     float64
	s     string
	p     Point
	elem  ValueType // element type, only meaningful when typ == TypeArray
	array []Variant
}

// Nil returns the nil variant.
func Nil() Variant { return Variant{typ: TypeNil} }

// Bool wraps a bool.
func Bool(v bool) Variant { return Variant{typ: TypeBool, b: v} }

// Int wraps a 64-bit signed integer.
func Int(v int64) Variant { return Variant{typ: TypeInt, i: v} }

// Double wraps a float64.
func Double(v float64) Variant { return Variant{typ: TypeDouble, d: v} }

// String wraps a string.
func String(v string) Variant { return Variant{typ: TypeString, s: v} }

// PointOf wraps a Point.
func PointOf(x, y float64) Variant { return Variant{typ: TypePoint, p: Point{X: x, Y: y}} }

// Array wraps a homogeneous slice of Variants, all sharing elemType. An empty
// array is legal; its element type is still tracked so schema checks can
// still reject the wrong kind of empty array.
func Array(elemType ValueType, items []Variant) (Variant, error) {
	for _, it := range items {
		if it.typ != elemType {
			return Variant{}, errors.Wrapf(ErrTypeMismatch, "array element is %s, expected %s", it.typ, elemType)
		}
	}
	cp := make([]Variant, len(items))
	copy(cp, items)
	return Variant{typ: TypeArray, elem: elemType, array: cp}, nil
}

// Type returns the ValueType tag of this Variant.
func (v Variant) Type() ValueType { return v.typ }

// ElementType returns the element ValueType of an array Variant, or
// ErrNotAnArray otherwise.
func (v Variant) ElementType() (ValueType, error) {
	if v.typ != TypeArray {
		return 0, ErrNotAnArray
	}
	return v.elem, nil
}

// IsNil reports whether this is the nil variant.
func (v Variant) IsNil() bool { return v.typ == TypeNil }

// Items returns a copy of the array contents, or ErrNotAnArray.
func (v Variant) Items() ([]Variant, error) {
	if v.typ != TypeArray {
		return nil, ErrNotAnArray
	}
	cp := make([]Variant, len(v.array))
	copy(cp, v.array)
	return cp, nil
}

// String renders a human-readable form of the value, used for display and
// debug dumps.
func (v Variant) String() string {
	switch v.typ {
	case TypeNil:
		return "nil"
	case TypeBool:
		return strconv.FormatBool(v.b)
	case TypeInt:
		return strconv.FormatInt(v.i, 10)
	case TypeDouble:
		return strconv.FormatFloat(v.d, 'g', -1, 64)
	case TypeString:
		return strconv.Quote(v.s)
	case TypePoint:
		return fmt.Sprintf("(%v, %v)", v.p.X, v.p.Y)
	case TypeArray:
		parts := make([]string, len(v.array))
		for i, it := range v.array {
			parts[i] = it.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return "?"
	}
}

// Raw returns the underlying Go value for this Variant (bool, int64,
// float64, string, Point, or []Variant). Nil returns nil.
func (v Variant) Raw() interface{} {
	switch v.typ {
	case TypeNil:
		return nil
	case TypeBool:
		return v.b
	case TypeInt:
		return v.i
	case TypeDouble:
		return v.d
	case TypeString:
		return v.s
	case TypePoint:
		return v.p
	case TypeArray:
		return v.array
	default:
		return nil
	}
}

// The BoolValue, IntValue, DoubleValue, StringValue and PointValue accessors
// return the zero value of their kind if the Variant does not hold that type; callers that care should check
// Type() first, matching the mgmt Value interface's unchecked accessors.

// BoolValue returns the bool payload.
func (v Variant) BoolValue() bool { return v.b }

// IntValue returns the int64 payload.
func (v Variant) IntValue() int64 { return v.i }

// DoubleValue returns the float64 payload.
func (v Variant) DoubleValue() float64 { return v.d }

// StringValue returns the string payload.
func (v Variant) StringValue() string { return v.s }

// PointValue returns the Point payload.
func (v Variant) PointValue() Point { return v.p }

// Equal reports whether two variants are of the same type and equal value.
func (v Variant) Equal(other Variant) bool {
	return v.Cmp(other) == 0 && v.typ == other.typ
}

// Cmp provides a total ordering within the same tag: -1, 0, or 1. Comparing
// across different tags orders by the ValueType enum value, so sorting a
// mixed slice is still deterministic (see Less and SortSlice).
func (v Variant) Cmp(other Variant) int {
	if v.typ != other.typ {
		if v.typ < other.typ {
			return -1
		}
		return 1
	}
	switch v.typ {
	case TypeNil:
		return 0
	case TypeBool:
		if v.b == other.b {
			return 0
		}
		if !v.b {
			return -1
		}
		return 1
	case TypeInt:
		switch {
		case v.i < other.i:
			return -1
		case v.i > other.i:
			return 1
		default:
			return 0
		}
	case TypeDouble:
		switch {
		case v.d < other.d:
			return -1
		case v.d > other.d:
			return 1
		default:
			return 0
		}
	case TypeString:
		return strings.Compare(v.s, other.s)
	case TypePoint:
		if c := cmpFloat(v.p.X, other.p.X); c != 0 {
			return c
		}
		return cmpFloat(v.p.Y, other.p.Y)
	case TypeArray:
		n := len(v.array)
		if len(other.array) < n {
			n = len(other.array)
		}
		for i := 0; i < n; i++ {
			if c := v.array[i].Cmp(other.array[i]); c != 0 {
				return c
			}
		}
		switch {
		case len(v.array) < len(other.array):
			return -1
		case len(v.array) > len(other.array):
			return 1
		default:
			return 0
		}
	default:
		return 0
	}
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Less reports v < other under Cmp, useful directly with sort.Slice.
func (v Variant) Less(other Variant) bool { return v.Cmp(other) < 0 }

// ToInt converts this Variant to an int Variant, per the canonical
// conversion rules: string is parsed, double truncates toward zero, bool
// maps to 0/1, arrays convert element-wise.
func (v Variant) ToInt() (Variant, error) {
	switch v.typ {
	case TypeInt:
		return v, nil
	case TypeDouble:
		return Int(int64(v.d)), nil
	case TypeBool:
		if v.b {
			return Int(1), nil
		}
		return Int(0), nil
	case TypeString:
		i, err := strconv.ParseInt(strings.TrimSpace(v.s), 10, 64)
		if err != nil {
			return Variant{}, errors.Wrapf(ErrConversionFailed, "cannot parse %q as int", v.s)
		}
		return Int(i), nil
	case TypeArray:
		return v.mapArray(Variant.ToInt)
	default:
		return Variant{}, errors.Wrapf(ErrConversionFailed, "cannot convert %s to int", v.typ)
	}
}

// ToDouble converts this Variant to a double Variant.
func (v Variant) ToDouble() (Variant, error) {
	switch v.typ {
	case TypeDouble:
		return v, nil
	case TypeInt:
		return Double(float64(v.i)), nil
	case TypeBool:
		if v.b {
			return Double(1), nil
		}
		return Double(0), nil
	case TypeString:
		d, err := strconv.ParseFloat(strings.TrimSpace(v.s), 64)
		if err != nil {
			return Variant{}, errors.Wrapf(ErrConversionFailed, "cannot parse %q as double", v.s)
		}
		return Double(d), nil
	case TypeArray:
		return v.mapArray(Variant.ToDouble)
	default:
		return Variant{}, errors.Wrapf(ErrConversionFailed, "cannot convert %s to double", v.typ)
	}
}

// ToBool converts this Variant to a bool Variant.
func (v Variant) ToBool() (Variant, error) {
	switch v.typ {
	case TypeBool:
		return v, nil
	case TypeInt:
		return Bool(v.i != 0), nil
	case TypeDouble:
		return Bool(v.d != 0), nil
	case TypeString:
		b, err := strconv.ParseBool(strings.TrimSpace(v.s))
		if err != nil {
			return Variant{}, errors.Wrapf(ErrConversionFailed, "cannot parse %q as bool", v.s)
		}
		return Bool(b), nil
	case TypeArray:
		return v.mapArray(Variant.ToBool)
	default:
		return Variant{}, errors.Wrapf(ErrConversionFailed, "cannot convert %s to bool", v.typ)
	}
}

// ToPoint converts a string "x,y" or an existing point Variant to a point.
func (v Variant) ToPoint() (Variant, error) {
	switch v.typ {
	case TypePoint:
		return v, nil
	case TypeString:
		parts := strings.SplitN(v.s, ",", 2)
		if len(parts) != 2 {
			return Variant{}, errors.Wrapf(ErrConversionFailed, "cannot parse %q as point", v.s)
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return Variant{}, errors.Wrapf(ErrConversionFailed, "cannot parse %q as point", v.s)
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return Variant{}, errors.Wrapf(ErrConversionFailed, "cannot parse %q as point", v.s)
		}
		return PointOf(x, y), nil
	default:
		return Variant{}, errors.Wrapf(ErrConversionFailed, "cannot convert %s to point", v.typ)
	}
}

func (v Variant) mapArray(fn func(Variant) (Variant, error)) (Variant, error) {
	out := make([]Variant, len(v.array))
	var elemType ValueType
	for i, it := range v.array {
		converted, err := fn(it)
		if err != nil {
			return Variant{}, err
		}
		out[i] = converted
		elemType = converted.typ
	}
	return Variant{typ: TypeArray, elem: elemType, array: out}, nil
}

// Add, Sub, Mul, Div, Mod implement numeric arithmetic on Variants (the
// expression binder only type-checks and does not call them): int arithmetic stays int
// unless either operand is a double, in which case both promote to double.
// Division by zero yields NaN for doubles and a typed error for ints.

// Add returns v + other, promoting int to double as needed.
func (v Variant) Add(other Variant) (Variant, error) { return arith(v, other, opAdd) }

// Sub returns v - other.
func (v Variant) Sub(other Variant) (Variant, error) { return arith(v, other, opSub) }

// Mul returns v * other.
func (v Variant) Mul(other Variant) (Variant, error) { return arith(v, other, opMul) }

// Div returns v / other. Integer division by zero is an error; double
// division by zero yields NaN.
func (v Variant) Div(other Variant) (Variant, error) { return arith(v, other, opDiv) }

// Mod returns v % other (integer only; non-integer operands are truncated
// first via ToInt).
func (v Variant) Mod(other Variant) (Variant, error) {
	a, err := v.ToInt()
	if err != nil {
		return Variant{}, err
	}
	b, err := other.ToInt()
	if err != nil {
		return Variant{}, err
	}
	if b.i == 0 {
		return Variant{}, errors.Wrapf(ErrConversionFailed, "modulo by zero")
	}
	return Int(a.i % b.i), nil
}

type arithOp int

const (
	opAdd arithOp = iota
	opSub
	opMul
	opDiv
)

func arith(v, other Variant, op arithOp) (Variant, error) {
	if v.typ == TypeInt && other.typ == TypeInt {
		switch op {
		case opAdd:
			return Int(v.i + other.i), nil
		case opSub:
			return Int(v.i - other.i), nil
		case opMul:
			return Int(v.i * other.i), nil
		case opDiv:
			if other.i == 0 {
				return Variant{}, errors.Wrapf(ErrConversionFailed, "integer division by zero")
			}
			return Int(v.i / other.i), nil
		}
	}
	a, err := v.ToDouble()
	if err != nil {
		return Variant{}, err
	}
	b, err := other.ToDouble()
	if err != nil {
		return Variant{}, err
	}
	switch op {
	case opAdd:
		return Double(a.d + b.d), nil
	case opSub:
		return Double(a.d - b.d), nil
	case opMul:
		return Double(a.d * b.d), nil
	case opDiv:
		if b.d == 0 {
			return Double(math.NaN()), nil
		}
		return Double(a.d / b.d), nil
	}
	return Variant{}, errors.Wrapf(ErrTypeMismatch, "unsupported arithmetic operands")
}

// SortSlice sorts a slice of Variants in place using Cmp, mirroring mgmt's
// VertexSlice sort-by-String pattern for deterministic iteration.
func SortSlice(vs []Variant) {
	sort.Slice(vs, func(i, j int) bool { return vs[i].Less(vs[j]) })
}
