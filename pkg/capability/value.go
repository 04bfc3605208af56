// ABOUTME: Strongly typed tagged-union values for capability parameters
// ABOUTME: Scalars describe configurations, arrays describe offers
package capability

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Kind tags the variant held by a Value
type Kind uint8

const (
	KindInvalid Kind = iota
	KindByte
	KindUint16
	KindString
	KindBytes
	KindUint16s
	KindStrings
)

// Signature returns the wire type signature of the kind
func (k Kind) Signature() string {
	switch k {
	case KindByte:
		return "y"
	case KindUint16:
		return "q"
	case KindString:
		return "s"
	case KindBytes:
		return "ay"
	case KindUint16s:
		return "aq"
	case KindStrings:
		return "as"
	default:
		return ""
	}
}

func kindFromSignature(sig string) Kind {
	for k := KindByte; k <= KindStrings; k++ {
		if k.Signature() == sig {
			return k
		}
	}
	return KindInvalid
}

// IsArray reports whether the kind holds a set of acceptable values
func (k Kind) IsArray() bool {
	return k == KindBytes || k == KindUint16s || k == KindStrings
}

// Element returns the scalar kind stored in an array kind
func (k Kind) Element() Kind {
	switch k {
	case KindBytes:
		return KindByte
	case KindUint16s:
		return KindUint16
	case KindStrings:
		return KindString
	default:
		return KindInvalid
	}
}

// Value is one parameter value
type Value struct {
	kind Kind
	num  uint16
	str  string
	nums []uint16
	strs []string
}

// Byte returns a scalar byte value
func Byte(v byte) Value { return Value{kind: KindByte, num: uint16(v)} }

// Uint16 returns a scalar uint16 value
func Uint16(v uint16) Value { return Value{kind: KindUint16, num: v} }

// String returns a scalar string value
func String(v string) Value { return Value{kind: KindString, str: v} }

// Bytes returns an array of acceptable bytes
func Bytes(v ...byte) Value {
	nums := make([]uint16, len(v))
	for i, b := range v {
		nums[i] = uint16(b)
	}
	return Value{kind: KindBytes, nums: nums}
}

// Uint16s returns an array of acceptable uint16 values
func Uint16s(v ...uint16) Value { return Value{kind: KindUint16s, nums: slices.Clone(v)} }

// Strings returns an array of acceptable strings
func Strings(v ...string) Value { return Value{kind: KindStrings, strs: slices.Clone(v)} }

// Kind returns the variant tag
func (v Value) Kind() Kind { return v.kind }

// AsByte returns the byte held by a KindByte value
func (v Value) AsByte() (byte, bool) {
	if v.kind != KindByte {
		return 0, false
	}
	return byte(v.num), true
}

// AsUint16 returns the number held by a KindUint16 value
func (v Value) AsUint16() (uint16, bool) {
	if v.kind != KindUint16 {
		return 0, false
	}
	return v.num, true
}

// AsString returns the string held by a KindString value
func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

// Contains reports whether the scalar s is one of the values in array v.
// Mismatched kinds never match.
func (v Value) Contains(s Value) bool {
	if !v.kind.IsArray() || v.kind.Element() != s.kind {
		return false
	}
	switch s.kind {
	case KindByte, KindUint16:
		return slices.Contains(v.nums, s.num)
	case KindString:
		return slices.Contains(v.strs, s.str)
	}
	return false
}

// Equal compares two values including their kind
func (v Value) Equal(o Value) bool {
	return v.kind == o.kind && v.num == o.num && v.str == o.str &&
		slices.Equal(v.nums, o.nums) && slices.Equal(v.strs, o.strs)
}

func (v Value) String() string {
	switch v.kind {
	case KindByte, KindUint16:
		return fmt.Sprintf("%d", v.num)
	case KindString:
		return fmt.Sprintf("%q", v.str)
	case KindBytes, KindUint16s:
		return fmt.Sprintf("%v", v.nums)
	case KindStrings:
		return fmt.Sprintf("%q", v.strs)
	default:
		return "<invalid>"
	}
}

type wireValue struct {
	Sig string          `json:"sig"`
	Val json.RawMessage `json:"val"`
}

// MarshalJSON encodes the value with its type signature
func (v Value) MarshalJSON() ([]byte, error) {
	var raw any
	switch v.kind {
	case KindByte, KindUint16:
		raw = v.num
	case KindString:
		raw = v.str
	case KindBytes, KindUint16s:
		raw = v.nums
	case KindStrings:
		raw = v.strs
	default:
		return nil, fmt.Errorf("cannot marshal invalid value")
	}
	val, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireValue{Sig: v.kind.Signature(), Val: val})
}

// UnmarshalJSON decodes a value produced by MarshalJSON
func (v *Value) UnmarshalJSON(data []byte) error {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	kind := kindFromSignature(w.Sig)
	out := Value{kind: kind}
	var err error
	switch kind {
	case KindByte:
		var b byte
		err = json.Unmarshal(w.Val, &b)
		out.num = uint16(b)
	case KindUint16:
		err = json.Unmarshal(w.Val, &out.num)
	case KindString:
		err = json.Unmarshal(w.Val, &out.str)
	case KindBytes:
		var bs []uint8
		// []byte would expect base64
		var ints []int
		err = json.Unmarshal(w.Val, &ints)
		for _, i := range ints {
			if i < 0 || i > 255 {
				return fmt.Errorf("byte value out of range: %d", i)
			}
			bs = append(bs, uint8(i))
		}
		out = Bytes(bs...)
	case KindUint16s:
		err = json.Unmarshal(w.Val, &out.nums)
	case KindStrings:
		err = json.Unmarshal(w.Val, &out.strs)
	default:
		return fmt.Errorf("unsupported value signature: %q", w.Sig)
	}
	if err != nil {
		return fmt.Errorf("failed to decode %s value: %w", w.Sig, err)
	}
	*v = out
	return nil
}
