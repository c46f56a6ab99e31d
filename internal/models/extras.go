package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// ExtraKind discriminates the variants an extras value can take
type ExtraKind int

const (
	ExtraNull ExtraKind = iota
	ExtraBool
	ExtraInt
	ExtraFloat
	ExtraString
	ExtraList
	ExtraMap
)

// ExtraValue is a tagged union over the JSON value kinds that can appear in a
// message's extras payload. Integers and floats are kept distinct so the
// payload round-trips without loss.
type ExtraValue struct {
	Kind  ExtraKind
	Bool  bool
	Int   int64
	Float float64
	Str   string
	List  []ExtraValue
	Map   map[string]ExtraValue
}

// Extras is the opaque structured payload attached to a message, stored
// verbatim
type Extras map[string]ExtraValue

// BoolValue wraps a boolean as an extras value
func BoolValue(v bool) ExtraValue { return ExtraValue{Kind: ExtraBool, Bool: v} }

// IntValue wraps an integer as an extras value
func IntValue(v int64) ExtraValue { return ExtraValue{Kind: ExtraInt, Int: v} }

// FloatValue wraps a float as an extras value
func FloatValue(v float64) ExtraValue { return ExtraValue{Kind: ExtraFloat, Float: v} }

// StringValue wraps a string as an extras value
func StringValue(v string) ExtraValue { return ExtraValue{Kind: ExtraString, Str: v} }

// ListValue wraps a list as an extras value
func ListValue(v ...ExtraValue) ExtraValue { return ExtraValue{Kind: ExtraList, List: v} }

// MapValue wraps a map as an extras value
func MapValue(v map[string]ExtraValue) ExtraValue { return ExtraValue{Kind: ExtraMap, Map: v} }

// MarshalJSON encodes the value as plain JSON
func (v ExtraValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case ExtraNull:
		return []byte("null"), nil
	case ExtraBool:
		return json.Marshal(v.Bool)
	case ExtraInt:
		return json.Marshal(v.Int)
	case ExtraFloat:
		return json.Marshal(v.Float)
	case ExtraString:
		return json.Marshal(v.Str)
	case ExtraList:
		if v.List == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.List)
	case ExtraMap:
		if v.Map == nil {
			return []byte("{}"), nil
		}
		// Deterministic key order for stable storage
		keys := make([]string, 0, len(v.Map))
		for k := range v.Map {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			vb, err := json.Marshal(v.Map[k])
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			buf.Write(vb)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown extras kind %d", v.Kind)
	}
}

// UnmarshalJSON decodes arbitrary JSON into the tagged union. Numbers are
// decoded via json.Number so integers are not widened to floats.
func (v *ExtraValue) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	parsed, err := extraFromInterface(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// extraFromInterface converts a decoded generic JSON value into the union
func extraFromInterface(raw interface{}) (ExtraValue, error) {
	switch val := raw.(type) {
	case nil:
		return ExtraValue{Kind: ExtraNull}, nil
	case bool:
		return BoolValue(val), nil
	case string:
		return StringValue(val), nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return IntValue(i), nil
		}
		f, err := val.Float64()
		if err != nil {
			return ExtraValue{}, fmt.Errorf("invalid number %q: %w", val.String(), err)
		}
		return FloatValue(f), nil
	case []interface{}:
		list := make([]ExtraValue, 0, len(val))
		for _, item := range val {
			parsed, err := extraFromInterface(item)
			if err != nil {
				return ExtraValue{}, err
			}
			list = append(list, parsed)
		}
		return ExtraValue{Kind: ExtraList, List: list}, nil
	case map[string]interface{}:
		m := make(map[string]ExtraValue, len(val))
		for k, item := range val {
			parsed, err := extraFromInterface(item)
			if err != nil {
				return ExtraValue{}, err
			}
			m[k] = parsed
		}
		return ExtraValue{Kind: ExtraMap, Map: m}, nil
	default:
		return ExtraValue{}, fmt.Errorf("unsupported extras value of type %T", raw)
	}
}
