package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/BaSui01/llmgateway/adapter"
)

// Fingerprint computes the cache key for req, hashing only the fields
// named in includeInKey rather than the teacher's llm/cache/hash_key.go
// whole-request hash, per SPEC_FULL.md §3: two requests that differ only
// in a field absent from includeInKey must fingerprint identically.
//
// The canonical form is a JSON object built from a fixed, sorted field
// list so that field order never affects the hash.
func Fingerprint(req *adapter.ChatRequest, includeInKey []string) string {
	selected := map[string]any{}
	fields := map[string]any{
		"model":       req.Model,
		"messages":    req.Messages,
		"temperature": req.Temperature,
		"max_tokens":  req.MaxTokens,
	}

	if len(includeInKey) == 0 {
		selected = fields
	} else {
		for _, name := range includeInKey {
			if v, ok := fields[name]; ok {
				selected[name] = v
			}
		}
	}

	canonical, err := canonicalJSON(selected)
	if err != nil {
		// Deterministic fallback: never panic on a marshal failure, just
		// degrade to a key that still varies with the input.
		canonical = []byte(req.Model)
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// canonicalJSON marshals v with map keys sorted, so the same logical
// value always produces the same byte sequence regardless of Go's map
// iteration order.
func canonicalJSON(v any) ([]byte, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return json.Marshal(v)
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([]byte, 0, 256)
	ordered = append(ordered, '{')
	for i, k := range keys {
		if i > 0 {
			ordered = append(ordered, ',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(m[k])
		if err != nil {
			return nil, err
		}
		ordered = append(ordered, kb...)
		ordered = append(ordered, ':')
		ordered = append(ordered, vb...)
	}
	ordered = append(ordered, '}')
	return ordered, nil
}
