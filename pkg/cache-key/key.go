package cachekey

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	partSeparator = "\t"
	tagSeparator  = ":"
)

// Key identifies a logical query: the resource identifier first,
// then the filter parameters. Keys are immutable once constructed.
type Key struct {
	parts      []any
	normalized string
}

// New creates a key from the given parts.
// Only primitive values (strings, booleans, numbers and nil) are accepted.
func New(parts ...any) (Key, error) {
	if len(parts) == 0 {
		return Key{}, fmt.Errorf("Key needs at least a resource identifier")
	}
	if _, ok := parts[0].(string); !ok {
		return Key{}, fmt.Errorf("Resource identifier must be a string, got %T", parts[0])
	}
	encoded := make([]string, len(parts))
	for i, part := range parts {
		enc, err := encodePart(part)
		if err != nil {
			return Key{}, fmt.Errorf("Key part %d: %w", i, err)
		}
		encoded[i] = enc
	}
	cp := make([]any, len(parts))
	copy(cp, parts)
	return Key{
		parts:      cp,
		normalized: strings.Join(encoded, partSeparator),
	}, nil
}

// MustNew is like New but panics if a part is not a primitive value.
func MustNew(parts ...any) Key {
	k, err := New(parts...)
	if err != nil {
		panic(err)
	}
	return k
}

// String returns the normalized form of the key.
// Two keys are equal iff their normalized forms are equal.
func (k Key) String() string {
	return k.normalized
}

// Resource returns the resource identifier, i.e. the first key part.
func (k Key) Resource() string {
	if len(k.parts) == 0 {
		return ""
	}
	return k.parts[0].(string)
}

// Parts returns a copy of the key parts.
func (k Key) Parts() []any {
	cp := make([]any, len(k.parts))
	copy(cp, k.parts)
	return cp
}

func (k Key) Len() int {
	return len(k.parts)
}

func (k Key) IsZero() bool {
	return len(k.parts) == 0
}

func (k Key) Equal(other Key) bool {
	return k.normalized == other.normalized
}

// HasPrefix reports whether the leading parts of k equal all parts of prefix.
// E.g. ["albums"] is a prefix of ["albums", "quia"].
func (k Key) HasPrefix(prefix Key) bool {
	if prefix.IsZero() {
		return true
	}
	if !strings.HasPrefix(k.normalized, prefix.normalized) {
		return false
	}
	rest := k.normalized[len(prefix.normalized):]
	return rest == "" || strings.HasPrefix(rest, partSeparator)
}

func encodePart(part any) (string, error) {
	switch v := part.(type) {
	case nil:
		return "n" + tagSeparator, nil
	case string:
		return "s" + tagSeparator + strconv.Quote(v), nil
	case bool:
		return "b" + tagSeparator + strconv.FormatBool(v), nil
	case int:
		return encodeInt(int64(v)), nil
	case int8:
		return encodeInt(int64(v)), nil
	case int16:
		return encodeInt(int64(v)), nil
	case int32:
		return encodeInt(int64(v)), nil
	case int64:
		return encodeInt(v), nil
	case uint:
		return encodeUint(uint64(v)), nil
	case uint8:
		return encodeUint(uint64(v)), nil
	case uint16:
		return encodeUint(uint64(v)), nil
	case uint32:
		return encodeUint(uint64(v)), nil
	case uint64:
		return encodeUint(v), nil
	case float32:
		return encodeFloat(float64(v)), nil
	case float64:
		return encodeFloat(v), nil
	}
	return "", fmt.Errorf("Unsupported key part type %T", part)
}

func encodeInt(v int64) string {
	return "i" + tagSeparator + strconv.FormatInt(v, 10)
}

func encodeUint(v uint64) string {
	return "i" + tagSeparator + strconv.FormatUint(v, 10)
}

// integral floats share the integer encoding, so 1.0 and 1 are the same part
func encodeFloat(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
		return encodeInt(int64(v))
	}
	return "f" + tagSeparator + strconv.FormatFloat(v, 'g', -1, 64)
}
