package graph

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// NodeKey creates a deterministic node key from an entity kind and natural
// key. The key format is: {kind}:{base64url(sha256(canonical)[:12])}
//
// The same kind and natural key always produce the same node key, which is
// what makes upserts idempotent across invocations and across workers.
//
// Key derivation:
//  1. Sort the natural key field names
//  2. Build canonical string: kind:field1=val1|field2=val2
//  3. Normalize values: strings lowercased/trimmed, ints as %d, complex
//     values as JSON
//  4. SHA-256 hash, base64url-encode the first 12 bytes (no padding)
func NodeKey(kind string, naturalKey map[string]any) (string, error) {
	if kind == "" {
		return "", fmt.Errorf("kind cannot be empty")
	}
	if len(naturalKey) == 0 {
		return "", fmt.Errorf("natural key cannot be empty")
	}

	fields := make([]string, 0, len(naturalKey))
	for field := range naturalKey {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	pairs := make([]string, 0, len(fields))
	for _, field := range fields {
		normalized, err := normalizeKeyValue(naturalKey[field])
		if err != nil {
			return "", fmt.Errorf("failed to normalize field %q: %w", field, err)
		}
		pairs = append(pairs, fmt.Sprintf("%s=%s", field, normalized))
	}

	canonical := fmt.Sprintf("%s:%s", kind, strings.Join(pairs, "|"))
	hash := sha256.Sum256([]byte(canonical))
	encoded := base64.RawURLEncoding.EncodeToString(hash[:12])

	return fmt.Sprintf("%s:%s", kind, encoded), nil
}

// normalizeKeyValue converts a natural-key value to its canonical string
// representation.
// Normalization rules:
//   - string: lowercase and trimmed
//   - integers: sprintf "%d"
//   - float64/float32: sprintf "%.6f"
//   - bool: "true" or "false"
//   - nil: "null"
//   - complex types (maps, slices): JSON marshal
func normalizeKeyValue(val any) (string, error) {
	if val == nil {
		return "null", nil
	}

	switch v := val.(type) {
	case string:
		return strings.ToLower(strings.TrimSpace(v)), nil

	case int:
		return fmt.Sprintf("%d", v), nil
	case int32:
		return fmt.Sprintf("%d", v), nil
	case int64:
		return fmt.Sprintf("%d", v), nil
	case uint:
		return fmt.Sprintf("%d", v), nil
	case uint32:
		return fmt.Sprintf("%d", v), nil
	case uint64:
		return fmt.Sprintf("%d", v), nil

	case float32:
		return fmt.Sprintf("%.6f", v), nil
	case float64:
		return fmt.Sprintf("%.6f", v), nil

	case bool:
		if v {
			return "true", nil
		}
		return "false", nil

	default:
		jsonBytes, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to marshal value to JSON: %w", err)
		}
		return string(jsonBytes), nil
	}
}
