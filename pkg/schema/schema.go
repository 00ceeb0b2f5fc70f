// Package schema checks decoded JSON values against declared shapes.
package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/mitchellh/mapstructure"
)

type Kind int

const (
	// zero value, a Schema{} never validates
	KindInvalid Kind = iota
	KindInteger
	KindNumber
	KindString
	KindBoolean
	KindArray
	KindRecord
)

func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBoolean:
		return "boolean"
	case KindArray:
		return "array"
	case KindRecord:
		return "object"
	}
	return "unknown"
}

// Schema is an immutable description of an expected value shape.
type Schema struct {
	kind   Kind
	fields []Field
	elem   *Schema
}

// Field is a named, required record field.
type Field struct {
	Name   string
	Schema Schema
}

func Integer() Schema { return Schema{kind: KindInteger} }
func Number() Schema  { return Schema{kind: KindNumber} }
func String() Schema  { return Schema{kind: KindString} }
func Boolean() Schema { return Schema{kind: KindBoolean} }

// ArrayOf describes an array whose every element satisfies elem.
func ArrayOf(elem Schema) Schema {
	return Schema{kind: KindArray, elem: &elem}
}

// Record describes an object with the given required fields.
// Fields are checked in declaration order.
func Record(fields ...Field) Schema {
	cp := make([]Field, len(fields))
	copy(cp, fields)
	return Schema{kind: KindRecord, fields: cp}
}

func Prop(name string, s Schema) Field {
	return Field{Name: name, Schema: s}
}

func (s Schema) Kind() Kind {
	return s.kind
}

// ValidationError describes the first mismatch found while validating.
type ValidationError struct {
	// Path to the offending value, e.g. `[0].id`.
	Path string
	// Name of the offending record field, empty if the mismatch is not on a field.
	Field    string
	Expected string
	Actual   string
}

func (e *ValidationError) Error() string {
	path := e.Path
	if path == "" {
		path = "(root)"
	}
	return fmt.Sprintf("%s: expected %s, received %s", path, e.Expected, e.Actual)
}

// Validate walks the schema depth-first and returns the normalized value,
// or a *ValidationError for the first offending value.
// Integers are returned as int64, numbers as float64, arrays as []any
// and records as map[string]any holding only the declared fields.
func (s Schema) Validate(raw any) (any, error) {
	return s.validate(raw, "", "")
}

func (s Schema) validate(raw any, path, field string) (any, error) {
	fail := func() error {
		return &ValidationError{
			Path:     path,
			Field:    field,
			Expected: s.kind.String(),
			Actual:   typeName(raw),
		}
	}
	switch s.kind {
	case KindInteger:
		if v, ok := asInteger(raw); ok {
			return v, nil
		}
		return nil, fail()
	case KindNumber:
		if v, ok := asNumber(raw); ok {
			return v, nil
		}
		return nil, fail()
	case KindString:
		if v, ok := raw.(string); ok {
			return v, nil
		}
		return nil, fail()
	case KindBoolean:
		if v, ok := raw.(bool); ok {
			return v, nil
		}
		return nil, fail()
	case KindArray:
		arr, ok := raw.([]any)
		if !ok {
			return nil, fail()
		}
		out := make([]any, len(arr))
		for i, el := range arr {
			v, err := s.elem.validate(el, path+"["+strconv.Itoa(i)+"]", "")
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case KindRecord:
		obj, ok := raw.(map[string]any)
		if !ok {
			return nil, fail()
		}
		out := make(map[string]any, len(s.fields))
		for _, f := range s.fields {
			fieldPath := f.Name
			if path != "" {
				fieldPath = path + "." + f.Name
			}
			val, present := obj[f.Name]
			if !present {
				return nil, &ValidationError{
					Path:     fieldPath,
					Field:    f.Name,
					Expected: f.Schema.kind.String(),
					Actual:   "missing",
				}
			}
			v, err := f.Schema.validate(val, fieldPath, f.Name)
			if err != nil {
				return nil, err
			}
			out[f.Name] = v
		}
		return out, nil
	}
	return nil, fail()
}

// Decode validates raw and decodes the normalized value into T,
// matching record fields to `json` struct tags.
func Decode[T any](s Schema, raw any) (T, error) {
	var out T
	valid, err := s.Validate(raw)
	if err != nil {
		return out, err
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  &out,
	})
	if err != nil {
		return out, err
	}
	if err := decoder.Decode(valid); err != nil {
		return out, fmt.Errorf("Could not decode validated value into %T: %w", out, err)
	}
	return out, nil
}

func asInteger(raw any) (int64, bool) {
	switch v := raw.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, true
		}
		if f, err := v.Float64(); err == nil {
			return floatToInteger(f)
		}
	case float64:
		return floatToInteger(v)
	case float32:
		return floatToInteger(float64(v))
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint:
		if uint64(v) <= math.MaxInt64 {
			return int64(v), true
		}
	case uint64:
		if v <= math.MaxInt64 {
			return int64(v), true
		}
	}
	return 0, false
}

func floatToInteger(f float64) (int64, bool) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.Abs(f) > 1<<53 {
		return 0, false
	}
	return int64(f), true
}

func asNumber(raw any) (float64, bool) {
	switch v := raw.(type) {
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case float64:
		return v, !math.IsNaN(v) && !math.IsInf(v, 0)
	case float32:
		return float64(v), true
	}
	if i, ok := asInteger(raw); ok {
		return float64(i), true
	}
	return 0, false
}

func typeName(raw any) string {
	switch v := raw.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	case json.Number:
		if _, ok := asInteger(v); ok {
			return "integer"
		}
		return "number"
	case float64, float32:
		if _, ok := asInteger(v); ok {
			return "integer"
		}
		return "number"
	}
	if _, ok := asInteger(raw); ok {
		return "integer"
	}
	return fmt.Sprintf("%T", raw)
}
