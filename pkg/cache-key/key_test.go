package cachekey

import (
	"testing"
)

func TestStructuralEquality(t *testing.T) {
	a := MustNew("albums", "quia")
	b := MustNew("albums", "quia")
	if !a.Equal(b) {
		t.Fatalf("Keys %s and %s should be equal", a, b)
	}
	if a.Equal(MustNew("albums", "Quia")) {
		t.Fatal("Keys with different case should not be equal")
	}
	if a.Equal(MustNew("albums")) {
		t.Fatal("Keys with different length should not be equal")
	}
}

func TestNumericNormalization(t *testing.T) {
	a := MustNew("posts", 1)
	b := MustNew("posts", int64(1))
	c := MustNew("posts", 1.0)
	if !a.Equal(b) || !a.Equal(c) {
		t.Fatalf("Numeric parts not normalized: %s %s %s", a, b, c)
	}
	if a.Equal(MustNew("posts", "1")) {
		t.Fatal("String and number parts should differ")
	}
	if MustNew("posts", 1.5).Equal(a) {
		t.Fatal("Non-integral float should not equal integer")
	}
}

func TestSeparatorInsideString(t *testing.T) {
	a := MustNew("albums", "a\tb")
	b := MustNew("albums", "a", "b")
	if a.Equal(b) {
		t.Fatalf("Quoted strings must not collide: %s", a)
	}
}

func TestImmutable(t *testing.T) {
	parts := []any{"albums", "quia"}
	k := MustNew(parts...)
	parts[1] = "changed"
	if k.Parts()[1] != "quia" {
		t.Fatal("Key changed after mutating input")
	}
	out := k.Parts()
	out[1] = "changed"
	if k.Parts()[1] != "quia" {
		t.Fatal("Key changed after mutating Parts() result")
	}
}

func TestHasPrefix(t *testing.T) {
	albums := MustNew("albums")
	if !MustNew("albums", "quia").HasPrefix(albums) {
		t.Fatal("Expected prefix match")
	}
	if !albums.HasPrefix(albums) {
		t.Fatal("Key should be its own prefix")
	}
	if MustNew("albumsx").HasPrefix(albums) {
		t.Fatal("Prefix must match whole parts")
	}
	if MustNew("posts").HasPrefix(albums) {
		t.Fatal("Unexpected prefix match")
	}
}

func TestInvalidParts(t *testing.T) {
	if _, err := New(); err == nil {
		t.Fatal("Expected error for empty key")
	}
	if _, err := New(1, "x"); err == nil {
		t.Fatal("Expected error for non-string resource")
	}
	if _, err := New("albums", []string{"x"}); err == nil {
		t.Fatal("Expected error for slice part")
	}
}

func TestResource(t *testing.T) {
	if r := MustNew("albums", "quia").Resource(); r != "albums" {
		t.Fatalf("Resource is %s", r)
	}
}
