package memo

import (
	"strings"
	"testing"
)

func TestFingerprint_Deterministic(t *testing.T) {
	// Same content, different insertion order.
	fp1 := Fingerprint{Function: "f", Args: Args{"b": 2, "a": 1, "c": 3}}
	fp2 := Fingerprint{Function: "f", Args: Args{"c": 3, "b": 2, "a": 1}}

	key1, err := fp1.Key()
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}
	key2, err := fp2.Key()
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}

	if key1 != key2 {
		t.Errorf("keys should be equal for same content:\n  key1=%s\n  key2=%s", key1, key2)
	}
}

func TestFingerprint_KeyFormat(t *testing.T) {
	fp := Fingerprint{Function: "load_data", Args: Args{"path": "/data"}}

	key, err := fp.Key()
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}
	if !strings.HasPrefix(key, "memo:load_data:") {
		t.Errorf("Key() = %q, want memo:load_data: prefix", key)
	}
	hash := strings.TrimPrefix(key, "memo:load_data:")
	if len(hash) != 32 {
		t.Errorf("hash length = %d, want 32 hex characters", len(hash))
	}
}

func TestFingerprint_DifferentArgsDifferentKeys(t *testing.T) {
	key1, err := Fingerprint{Function: "f", Args: Args{"x": 1}}.Key()
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}
	key2, err := Fingerprint{Function: "f", Args: Args{"x": 2}}.Key()
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}
	if key1 == key2 {
		t.Error("different arguments should produce different keys")
	}
}

func TestFingerprint_DifferentFunctionsDifferentKeys(t *testing.T) {
	key1, err := Fingerprint{Function: "f", Args: Args{"x": 1}}.Key()
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}
	key2, err := Fingerprint{Function: "g", Args: Args{"x": 1}}.Key()
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}
	if key1 == key2 {
		t.Error("different functions should produce different keys")
	}
}

func TestFingerprint_NestedStructures(t *testing.T) {
	fp1 := Fingerprint{Function: "f", Args: Args{
		"opts":  map[string]any{"b": 2, "a": 1},
		"items": []any{1, 2, 3},
	}}
	fp2 := Fingerprint{Function: "f", Args: Args{
		"opts":  map[string]any{"a": 1, "b": 2},
		"items": []any{1, 2, 3},
	}}

	key1, err := fp1.Key()
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}
	key2, err := fp2.Key()
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}
	if key1 != key2 {
		t.Error("nested map order should not affect keys")
	}

	// Slice order is semantic and must affect keys.
	fp3 := Fingerprint{Function: "f", Args: Args{
		"opts":  map[string]any{"a": 1, "b": 2},
		"items": []any{3, 2, 1},
	}}
	key3, err := fp3.Key()
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}
	if key3 == key1 {
		t.Error("slice order should affect keys")
	}
}

func TestFingerprint_UnserializableArgs(t *testing.T) {
	fp := Fingerprint{Function: "f", Args: Args{"ch": make(chan int)}}

	if _, err := fp.Key(); err == nil {
		t.Error("Key() should fail for unserializable arguments")
	}
}

func TestCanonicalize_Nil(t *testing.T) {
	got, err := canonicalize(nil)
	if err != nil {
		t.Fatalf("canonicalize(nil) error = %v", err)
	}
	if string(got) != "null" {
		t.Errorf("canonicalize(nil) = %q, want null", got)
	}
}
