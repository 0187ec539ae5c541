package memo

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Fingerprint is the canonical representation of a call's semantically
// relevant arguments, used as the basis of the storage key.
//
// Contract:
// - Determinism: equal Function and Args content must produce equal keys,
//   regardless of map iteration order.
// - Concurrency: Fingerprint is a value type and safe for concurrent use.
type Fingerprint struct {
	Function string
	Args     Args
}

// Key generates the deterministic storage key.
// Format: memo:<function>:<hash>
// where hash is the first 16 bytes of SHA-256(canonical JSON of the call),
// hex encoded.
func (fp Fingerprint) Key() (string, error) {
	call := map[string]any{
		"func": fp.Function,
		"args": map[string]any(fp.Args),
	}
	canonical, err := canonicalize(call)
	if err != nil {
		return "", fmt.Errorf("memo: failed to canonicalize call: %w", err)
	}

	hash := sha256.Sum256(canonical)
	return fmt.Sprintf("memo:%s:%s", fp.Function, hex.EncodeToString(hash[:16])), nil
}

// canonicalize produces a deterministic JSON representation of the input.
// Maps are sorted by key to ensure consistent ordering.
func canonicalize(v any) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}

	switch val := v.(type) {
	case map[string]any:
		return canonicalizeMap(val)
	case Args:
		return canonicalizeMap(val)
	case []any:
		return canonicalizeSlice(val)
	default:
		// encoding/json already sorts map keys for concrete map types and
		// emits struct fields in declaration order.
		return json.Marshal(v)
	}
}

func canonicalizeMap(m map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := []byte("{")
	for i, k := range keys {
		if i > 0 {
			result = append(result, ',')
		}

		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		result = append(result, keyBytes...)
		result = append(result, ':')

		valBytes, err := canonicalize(m[k])
		if err != nil {
			return nil, err
		}
		result = append(result, valBytes...)
	}
	result = append(result, '}')

	return result, nil
}

func canonicalizeSlice(s []any) ([]byte, error) {
	result := []byte("[")
	for i, v := range s {
		if i > 0 {
			result = append(result, ',')
		}

		valBytes, err := canonicalize(v)
		if err != nil {
			return nil, err
		}
		result = append(result, valBytes...)
	}
	result = append(result, ']')

	return result, nil
}
