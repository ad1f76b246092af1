package domain

import (
	"encoding/json"
	"fmt"
)

// MetaValueKind discriminates the payload of a MetaValue
type MetaValueKind string

const (
	MetaString MetaValueKind = "string"
	MetaNumber MetaValueKind = "number"
	MetaList   MetaValueKind = "list"
	MetaMap    MetaValueKind = "map"
)

// MetaValue is a tagged value stored in a product attribute map. Product
// meta in the wild mixes plain strings, numbers, lists of strings and
// nested string maps, so the revision payload keeps the shape explicit
// instead of round-tripping through interface{}.
type MetaValue struct {
	Kind   MetaValueKind
	Str    string
	Num    float64
	List   []string
	Fields map[string]string
}

func StringValue(s string) MetaValue {
	return MetaValue{Kind: MetaString, Str: s}
}

func NumberValue(n float64) MetaValue {
	return MetaValue{Kind: MetaNumber, Num: n}
}

func ListValue(items []string) MetaValue {
	return MetaValue{Kind: MetaList, List: items}
}

func MapValue(fields map[string]string) MetaValue {
	return MetaValue{Kind: MetaMap, Fields: fields}
}

// MarshalJSON encodes the value as its natural JSON shape
func (v MetaValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case MetaString:
		return json.Marshal(v.Str)
	case MetaNumber:
		return json.Marshal(v.Num)
	case MetaList:
		if v.List == nil {
			return json.Marshal([]string{})
		}
		return json.Marshal(v.List)
	case MetaMap:
		if v.Fields == nil {
			return json.Marshal(map[string]string{})
		}
		return json.Marshal(v.Fields)
	default:
		return nil, fmt.Errorf("meta value: unknown kind %q", v.Kind)
	}
}

// UnmarshalJSON infers the kind from the JSON shape
func (v *MetaValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = StringValue(s)
		return nil
	}

	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*v = NumberValue(n)
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*v = ListValue(list)
		return nil
	}

	var fields map[string]string
	if err := json.Unmarshal(data, &fields); err == nil {
		*v = MapValue(fields)
		return nil
	}

	return fmt.Errorf("meta value: unsupported JSON shape %s", string(data))
}

// Equal reports deep equality of two meta values
func (v MetaValue) Equal(o MetaValue) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case MetaString:
		return v.Str == o.Str
	case MetaNumber:
		return v.Num == o.Num
	case MetaList:
		if len(v.List) != len(o.List) {
			return false
		}
		for i := range v.List {
			if v.List[i] != o.List[i] {
				return false
			}
		}
		return true
	case MetaMap:
		if len(v.Fields) != len(o.Fields) {
			return false
		}
		for k, val := range v.Fields {
			if ov, ok := o.Fields[k]; !ok || ov != val {
				return false
			}
		}
		return true
	}
	return false
}

// MetaMapPayload is an attribute map keyed by meta key
type MetaMapPayload map[string]MetaValue

// Clone returns a deep copy
func (m MetaMapPayload) Clone() MetaMapPayload {
	if m == nil {
		return nil
	}
	out := make(MetaMapPayload, len(m))
	for k, v := range m {
		cv := v
		if v.List != nil {
			cv.List = append([]string(nil), v.List...)
		}
		if v.Fields != nil {
			cv.Fields = make(map[string]string, len(v.Fields))
			for fk, fv := range v.Fields {
				cv.Fields[fk] = fv
			}
		}
		out[k] = cv
	}
	return out
}
