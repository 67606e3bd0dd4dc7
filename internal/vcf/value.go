package vcf

import (
	"math"
	"strconv"
	"strings"
)

// Kind enumerates the value types an INFO or FORMAT field can hold.
type Kind uint8

const (
	KindString Kind = iota
	KindInteger
	KindFloat
	KindFlag
)

func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "Integer"
	case KindFloat:
		return "Float"
	case KindFlag:
		return "Flag"
	default:
		return "String"
	}
}

// missingInt marks a missing element in an integer list.
const missingInt = math.MinInt64

// Value is a tagged INFO or FORMAT value. Every value is a list of one or
// more elements; scalar fields are lists of length one. The textual form of
// each element is kept so unmodified values are written back byte for byte.
type Value struct {
	kind   Kind
	raw    []string
	ints   []int64
	floats []float64
}

// ParseValue parses text as a value of the given kind. Elements equal to
// "." are missing.
func ParseValue(text string, kind Kind) (Value, error) {
	if kind == KindFlag {
		return FlagValue(), nil
	}

	raw := strings.Split(text, ",")
	v := Value{kind: kind, raw: raw}

	switch kind {
	case KindInteger:
		v.ints = make([]int64, len(raw))
		for i, s := range raw {
			if s == "." {
				v.ints[i] = missingInt
				continue
			}
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return Value{}, err
			}
			v.ints[i] = n
		}
	case KindFloat:
		v.floats = make([]float64, len(raw))
		for i, s := range raw {
			if s == "." {
				v.floats[i] = math.NaN()
				continue
			}
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return Value{}, err
			}
			v.floats[i] = f
		}
	}

	return v, nil
}

// IntValue builds an integer list value.
func IntValue(vals ...int64) Value {
	v := Value{kind: KindInteger, ints: vals, raw: make([]string, len(vals))}
	for i, n := range vals {
		if n == missingInt {
			v.raw[i] = "."
		} else {
			v.raw[i] = strconv.FormatInt(n, 10)
		}
	}
	return v
}

// FloatValue builds a float list value. NaN elements are written as ".".
func FloatValue(vals ...float64) Value {
	v := Value{kind: KindFloat, floats: vals, raw: make([]string, len(vals))}
	for i, f := range vals {
		v.raw[i] = FormatFloat(f)
	}
	return v
}

// StringValue builds a string list value.
func StringValue(vals ...string) Value {
	raw := make([]string, len(vals))
	copy(raw, vals)
	return Value{kind: KindString, raw: raw}
}

// FlagValue builds a present flag.
func FlagValue() Value {
	return Value{kind: KindFlag}
}

// MissingValue returns a single missing element of the given kind.
func MissingValue(kind Kind) Value {
	switch kind {
	case KindInteger:
		return IntValue(missingInt)
	case KindFloat:
		return FloatValue(math.NaN())
	case KindFlag:
		return Value{kind: KindFlag}
	default:
		return StringValue(".")
	}
}

// MissingInt returns the sentinel used for a missing integer element.
func MissingInt() int64 { return missingInt }

// FormatFloat renders a float in the shortest form that parses back to the
// same value. NaN is rendered as ".".
func FormatFloat(f float64) string {
	if math.IsNaN(f) {
		return "."
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Kind returns the value's type tag.
func (v Value) Kind() Kind { return v.kind }

// Len returns the number of elements.
func (v Value) Len() int { return len(v.raw) }

// Text returns the value as written in a VCF line. Flags render as "".
func (v Value) Text() string {
	return strings.Join(v.raw, ",")
}

// String implements fmt.Stringer.
func (v Value) String() string { return v.Text() }

// IsMissing reports whether every element is missing. Flags are never
// missing.
func (v Value) IsMissing() bool {
	if v.kind == KindFlag {
		return false
	}
	for i := range v.raw {
		if !v.missingAt(i) {
			return false
		}
	}
	return true
}

func (v Value) missingAt(i int) bool {
	if i < 0 || i >= len(v.raw) {
		return true
	}
	switch v.kind {
	case KindInteger:
		return v.ints[i] == missingInt
	case KindFloat:
		return math.IsNaN(v.floats[i])
	default:
		return v.raw[i] == "."
	}
}

// Int returns element i as an integer. Floats are truncated.
func (v Value) Int(i int) (int64, bool) {
	if v.missingAt(i) {
		return 0, false
	}
	switch v.kind {
	case KindInteger:
		return v.ints[i], true
	case KindFloat:
		return int64(v.floats[i]), true
	case KindString:
		n, err := strconv.ParseInt(v.raw[i], 10, 64)
		return n, err == nil
	}
	return 0, false
}

// Float returns element i as a float. Integers are converted; strings are
// parsed so undeclared numeric fields can still be compared.
func (v Value) Float(i int) (float64, bool) {
	if v.missingAt(i) {
		return math.NaN(), false
	}
	switch v.kind {
	case KindInteger:
		return float64(v.ints[i]), true
	case KindFloat:
		return v.floats[i], true
	case KindString:
		f, err := strconv.ParseFloat(v.raw[i], 64)
		if err != nil {
			return math.NaN(), false
		}
		return f, true
	}
	return math.NaN(), false
}

// Str returns the text of element i.
func (v Value) Str(i int) (string, bool) {
	if v.missingAt(i) {
		return "", false
	}
	return v.raw[i], true
}

// Pick returns a new value made of the elements at the given indices.
// Indices out of range become missing elements.
func (v Value) Pick(idx ...int) Value {
	out := Value{kind: v.kind, raw: make([]string, len(idx))}
	switch v.kind {
	case KindInteger:
		out.ints = make([]int64, len(idx))
	case KindFloat:
		out.floats = make([]float64, len(idx))
	case KindFlag:
		return v
	}
	for j, i := range idx {
		inRange := i >= 0 && i < len(v.raw)
		switch {
		case inRange:
			out.raw[j] = v.raw[i]
		default:
			out.raw[j] = "."
		}
		switch v.kind {
		case KindInteger:
			if inRange {
				out.ints[j] = v.ints[i]
			} else {
				out.ints[j] = missingInt
			}
		case KindFloat:
			if inRange {
				out.floats[j] = v.floats[i]
			} else {
				out.floats[j] = math.NaN()
			}
		}
	}
	return out
}

// Info holds INFO key/value pairs in their original order.
type Info struct {
	keys []string
	vals map[string]Value
}

// NewInfo returns an empty INFO map.
func NewInfo() *Info {
	return &Info{vals: make(map[string]Value)}
}

// Get returns the value for key.
func (in *Info) Get(key string) (Value, bool) {
	v, ok := in.vals[key]
	return v, ok
}

// Set adds or replaces key. New keys are appended.
func (in *Info) Set(key string, v Value) {
	if _, ok := in.vals[key]; !ok {
		in.keys = append(in.keys, key)
	}
	in.vals[key] = v
}

// Delete removes key.
func (in *Info) Delete(key string) {
	if _, ok := in.vals[key]; !ok {
		return
	}
	delete(in.vals, key)
	for i, k := range in.keys {
		if k == key {
			in.keys = append(in.keys[:i], in.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in order.
func (in *Info) Keys() []string { return in.keys }

// Len returns the number of keys.
func (in *Info) Len() int { return len(in.keys) }

// Clone returns a deep copy. Values are immutable so they are shared.
func (in *Info) Clone() *Info {
	out := &Info{
		keys: make([]string, len(in.keys)),
		vals: make(map[string]Value, len(in.vals)),
	}
	copy(out.keys, in.keys)
	for k, v := range in.vals {
		out.vals[k] = v
	}
	return out
}
