// Package wire defines Variant, the tagged-union value type that crosses
// the transport boundary between a scope process and its clients, and the
// codec that serialises it. Variant preserves exactly the distinctions the
// component design requires: integers stay distinct from doubles, arrays
// stay ordered, and mappings reject duplicate keys rather than silently
// keeping the last one the way encoding/json's map decoding would.
package wire

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/arin-halvorsen/scoped/errs"
)

// Kind identifies which case of the Variant union is populated.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindDouble
	KindString
	KindArray
	KindMapping
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindDouble:
		return "double"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindMapping:
		return "mapping"
	default:
		return "unknown"
	}
}

// Variant is a tagged union over {null, bool, int, double, string,
// array<Variant>, mapping<string,Variant>}. The zero value is null.
type Variant struct {
	kind    Kind
	boolV   bool
	intV    int64
	doubleV float64
	strV    string
	arrV    []Variant
	mapV    map[string]Variant
	// mapOrder preserves insertion order for deterministic re-encoding;
	// encoding/json maps have no stable order otherwise.
	mapOrder []string
}

// Null returns the null Variant (also the zero value).
func Null() Variant { return Variant{kind: KindNull} }

// Bool wraps a bool.
func Bool(v bool) Variant { return Variant{kind: KindBool, boolV: v} }

// Int wraps an integer. Kept distinct from Double so a round trip through
// the wire never turns "3" into "3.0" or vice versa.
func Int(v int64) Variant { return Variant{kind: KindInt, intV: v} }

// Double wraps a floating point value.
func Double(v float64) Variant { return Variant{kind: KindDouble, doubleV: v} }

// String wraps a UTF-8 string.
func String(v string) Variant { return Variant{kind: KindString, strV: v} }

// Array wraps an ordered slice of Variants. The slice is copied.
func Array(v []Variant) Variant {
	cp := make([]Variant, len(v))
	copy(cp, v)
	return Variant{kind: KindArray, arrV: cp}
}

// Mapping wraps a mapping from string keys to Variants, built by supplying
// keys in the order they should serialise in.
func Mapping(keys []string, values map[string]Variant) Variant {
	order := make([]string, len(keys))
	copy(order, keys)
	m := make(map[string]Variant, len(values))
	for k, v := range values {
		m[k] = v
	}
	return Variant{kind: KindMapping, mapV: m, mapOrder: order}
}

// Kind reports which union case is populated.
func (v Variant) Kind() Kind { return v.kind }

func (v Variant) IsNull() bool { return v.kind == KindNull }

func (v Variant) Bool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.boolV, true
}

func (v Variant) Int() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.intV, true
}

func (v Variant) Double() (float64, bool) {
	if v.kind != KindDouble {
		return 0, false
	}
	return v.doubleV, true
}

func (v Variant) String() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.strV, true
}

func (v Variant) Array() ([]Variant, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	return v.arrV, true
}

// Mapping returns the map and its key insertion order.
func (v Variant) Mapping() (map[string]Variant, []string, bool) {
	if v.kind != KindMapping {
		return nil, nil, false
	}
	return v.mapV, v.mapOrder, true
}

// wireEnvelope is the on-disk/on-wire shape for a Variant: a type tag plus
// exactly one populated payload field.
type wireEnvelope struct {
	Type string            `json:"type"`
	B    *bool             `json:"b,omitempty"`
	I    *int64            `json:"i,omitempty"`
	D    *float64          `json:"d,omitempty"`
	S    *string           `json:"s,omitempty"`
	A    []Variant         `json:"a,omitempty"`
	MK   []string          `json:"mk,omitempty"` // mapping key order
	MV   map[string]Variant `json:"mv,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (v Variant) MarshalJSON() ([]byte, error) {
	env := wireEnvelope{Type: v.kind.String()}
	switch v.kind {
	case KindNull:
	case KindBool:
		b := v.boolV
		env.B = &b
	case KindInt:
		i := v.intV
		env.I = &i
	case KindDouble:
		d := v.doubleV
		env.D = &d
	case KindString:
		s := v.strV
		env.S = &s
	case KindArray:
		env.A = v.arrV
		if env.A == nil {
			env.A = []Variant{}
		}
	case KindMapping:
		env.MK = v.mapOrder
		env.MV = v.mapV
	default:
		return nil, fmt.Errorf("wire: marshal variant: %w: unknown kind %d", errs.ErrInvalidArgument, v.kind)
	}
	return json.Marshal(env)
}

// UnmarshalJSON implements json.Unmarshaler. It rejects mappings with
// duplicate keys instead of silently keeping the last value, matching the
// invariant that a Variant mapping never hides a collision.
func (v *Variant) UnmarshalJSON(data []byte) error {
	if err := rejectDuplicateKeys(data); err != nil {
		return err
	}
	var env wireEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("wire: unmarshal variant: %w", err)
	}
	switch env.Type {
	case "null", "":
		*v = Null()
	case "bool":
		if env.B == nil {
			return fmt.Errorf("wire: unmarshal variant: %w: missing bool payload", errs.ErrInvalidArgument)
		}
		*v = Bool(*env.B)
	case "int":
		if env.I == nil {
			return fmt.Errorf("wire: unmarshal variant: %w: missing int payload", errs.ErrInvalidArgument)
		}
		*v = Int(*env.I)
	case "double":
		if env.D == nil {
			return fmt.Errorf("wire: unmarshal variant: %w: missing double payload", errs.ErrInvalidArgument)
		}
		*v = Double(*env.D)
	case "string":
		if env.S == nil {
			return fmt.Errorf("wire: unmarshal variant: %w: missing string payload", errs.ErrInvalidArgument)
		}
		*v = String(*env.S)
	case "array":
		*v = Array(env.A)
	case "mapping":
		*v = Mapping(env.MK, env.MV)
	default:
		return fmt.Errorf("wire: unmarshal variant: %w: unknown type %q", errs.ErrInvalidArgument, env.Type)
	}
	return nil
}

// rejectDuplicateKeys walks the top-level "mv" object (if present) looking
// for a repeated key, the way spec.DecodeEnvironment guards against
// duplicate service/ingress names in the teacher codebase.
func rejectDuplicateKeys(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil
		}
		key, _ := keyTok.(string)
		if key != "mv" {
			var discard json.RawMessage
			if err := dec.Decode(&discard); err != nil {
				return nil
			}
			continue
		}
		return rejectDuplicateObjectKeys(dec)
	}
	return nil
}

func rejectDuplicateObjectKeys(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil
	}
	seen := make(map[string]bool)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil
		}
		if seen[key] {
			return fmt.Errorf("wire: unmarshal variant: %w: duplicate mapping key %q", errs.ErrInvalidArgument, key)
		}
		seen[key] = true
		var discard json.RawMessage
		if err := dec.Decode(&discard); err != nil {
			return nil
		}
	}
	return nil
}

// Encode serialises a Variant to bytes.
func Encode(v Variant) ([]byte, error) {
	return json.Marshal(v)
}

// Decode deserialises a Variant from bytes.
func Decode(data []byte) (Variant, error) {
	var v Variant
	if err := json.Unmarshal(data, &v); err != nil {
		return Variant{}, err
	}
	return v, nil
}
