// Package field holds the tagged value type stored in item fields.
package field

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/BobSilent/aggregator-cli/pkg/apperror"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindTime
	KindIdentity
)

var kindNames = [...]string{"null", "string", "int", "float", "bool", "time", "identity"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Identity references a person. The remote store only ever receives the
// display name (see patch.DefaultTranslate).
type Identity struct {
	DisplayName string `json:"displayName"`
	UniqueName  string `json:"uniqueName,omitempty"`
	ID          string `json:"id,omitempty"`
}

// Value is an immutable field value. The zero Value is Null.
type Value struct {
	kind  Kind
	s     string
	i     int64
	f     float64
	b     bool
	t     time.Time
	ident Identity
}

func Null() Value                  { return Value{} }
func String(s string) Value        { return Value{kind: KindString, s: s} }
func Int(i int64) Value            { return Value{kind: KindInt, i: i} }
func Float(f float64) Value        { return Value{kind: KindFloat, f: f} }
func Bool(b bool) Value            { return Value{kind: KindBool, b: b} }
func Time(t time.Time) Value       { return Value{kind: KindTime, t: t} }
func IdentityOf(id Identity) Value { return Value{kind: KindIdentity, ident: id} }

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// Of converts a plain Go value. Integer types become Int, floating types
// Float; nil becomes Null.
func Of(x any) (Value, error) {
	switch x := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case int:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint32:
		return Int(int64(x)), nil
	case float32:
		return Float(float64(x)), nil
	case float64:
		return Float(x), nil
	case time.Time:
		return Time(x), nil
	case Identity:
		return IdentityOf(x), nil
	case *Identity:
		if x == nil {
			return Null(), nil
		}
		return IdentityOf(*x), nil
	default:
		return Value{}, apperror.ErrTypeMismatch.WithMessagef("unsupported field value of type %T", x)
	}
}

// MustOf is Of for literals known to be convertible.
func MustOf(x any) Value {
	v, err := Of(x)
	if err != nil {
		panic(err)
	}
	return v
}

// Equal reports whether two values hold the same data. Int and Float
// compare numerically. Times compare as instants, also against their
// RFC 3339 string form as read back from a store.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		if n1, ok := v.number(); ok {
			if n2, ok := o.number(); ok {
				return n1 == n2
			}
		}
		if v.kind == KindTime || o.kind == KindTime {
			t1, err1 := v.AsTime()
			t2, err2 := o.AsTime()
			return err1 == nil && err2 == nil && t1.Equal(t2)
		}
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.s == o.s
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindBool:
		return v.b == o.b
	case KindTime:
		return v.t.Equal(o.t)
	case KindIdentity:
		return v.ident == o.ident
	}
	return false
}

func (v Value) number() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	}
	return 0, false
}

func (v Value) mismatch(want Kind) error {
	return apperror.ErrTypeMismatch.WithMessagef("cannot read %s value as %s", v.kind, want).
		WithDetails(map[string]any{"actual": v.kind.String(), "requested": want.String()})
}

// AsString returns the string payload.
func (v Value) AsString() (string, error) {
	if v.kind != KindString {
		return "", v.mismatch(KindString)
	}
	return v.s, nil
}

// AsInt accepts Int and integral Float values.
func (v Value) AsInt() (int64, error) {
	switch v.kind {
	case KindInt:
		return v.i, nil
	case KindFloat:
		if v.f == math.Trunc(v.f) && v.f >= math.MinInt64 && v.f <= math.MaxInt64 {
			return int64(v.f), nil
		}
	}
	return 0, v.mismatch(KindInt)
}

// AsFloat accepts Float and Int values.
func (v Value) AsFloat() (float64, error) {
	if n, ok := v.number(); ok {
		return n, nil
	}
	return 0, v.mismatch(KindFloat)
}

func (v Value) AsBool() (bool, error) {
	if v.kind != KindBool {
		return false, v.mismatch(KindBool)
	}
	return v.b, nil
}

// AsTime accepts Time values and RFC 3339 strings.
func (v Value) AsTime() (time.Time, error) {
	switch v.kind {
	case KindTime:
		return v.t, nil
	case KindString:
		if t, err := time.Parse(time.RFC3339Nano, v.s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, v.mismatch(KindTime)
}

func (v Value) AsIdentity() (Identity, error) {
	if v.kind != KindIdentity {
		return Identity{}, v.mismatch(KindIdentity)
	}
	return v.ident, nil
}

// Wire returns the JSON representation of the value.
func (v Value) Wire() any {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	case KindTime:
		return v.t.UTC().Format(time.RFC3339Nano)
	case KindIdentity:
		return v.ident
	default:
		return nil
	}
}

// FromWire converts a decoded JSON value back into a Value. Numbers should
// be decoded with UseNumber so integers survive; objects carrying a
// displayName become identities. Time values arrive as strings and stay
// strings, AsTime parses them on demand.
func FromWire(x any) (Value, error) {
	switch x := x.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := x.Float64()
		if err != nil {
			return Value{}, apperror.ErrTypeMismatch.WithMessagef("invalid number %q", x.String())
		}
		return Float(f), nil
	case map[string]any:
		name, ok := x["displayName"].(string)
		if !ok {
			return Value{}, apperror.ErrTypeMismatch.WithMessage("object field values must be identity references")
		}
		id := Identity{DisplayName: name}
		id.UniqueName, _ = x["uniqueName"].(string)
		id.ID, _ = x["id"].(string)
		return IdentityOf(id), nil
	default:
		return Of(x)
	}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Wire())
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := FromWire(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// String renders the value for humans.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindString:
		return v.s
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindTime:
		return v.t.Format(time.RFC3339)
	case KindIdentity:
		if v.ident.UniqueName != "" {
			return fmt.Sprintf("%s <%s>", v.ident.DisplayName, v.ident.UniqueName)
		}
		return v.ident.DisplayName
	}
	return ""
}
