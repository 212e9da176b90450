package docstore

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Snapshot is an immutable view of the value at one path.
type Snapshot struct {
	key   string
	value any
}

// NewSnapshot wraps an already normalized value.
func NewSnapshot(key string, value any) Snapshot {
	return Snapshot{key: key, value: value}
}

// Key is the last segment of the snapshot's path.
func (s Snapshot) Key() string { return s.key }

// Exists reports whether a value is present.
func (s Snapshot) Exists() bool { return s.value != nil }

// Value returns the raw JSON-compatible value.
func (s Snapshot) Value() any { return s.value }

// Decode unmarshals the value into v. A missing value leaves v untouched.
func (s Snapshot) Decode(v any) error {
	if s.value == nil {
		return nil
	}
	b, err := json.Marshal(s.value)
	if err != nil {
		return fmt.Errorf("decode %q: %w", s.key, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %q: %w", s.key, err)
	}
	return nil
}

// Child returns the snapshot at a relative path below s.
func (s Snapshot) Child(path string) Snapshot {
	segs := Split(path)
	if len(segs) == 0 {
		return s
	}
	key := segs[len(segs)-1]
	cur := s.value
	for _, seg := range segs {
		m, ok := cur.(map[string]any)
		if !ok {
			return Snapshot{key: key}
		}
		cur = m[seg]
	}
	return Snapshot{key: key, value: cur}
}

// Children returns the direct children in key order.
func (s Snapshot) Children() []Snapshot {
	m, ok := s.value.(map[string]any)
	if !ok {
		return nil
	}
	out := make([]Snapshot, 0, len(m))
	for k, v := range m {
		out = append(out, Snapshot{key: k, value: v})
	}
	sort.Slice(out, func(i, j int) bool { return compareKeys(out[i].key, out[j].key) < 0 })
	return out
}

// normalize converts v to its JSON-compatible tree and prunes empty nodes.
func normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	return prune(out), nil
}

func prune(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, c := range t {
			if p := prune(c); p == nil {
				delete(t, k)
			} else {
				t[k] = p
			}
		}
		if len(t) == 0 {
			return nil
		}
		return t
	case []any:
		if len(t) == 0 {
			return nil
		}
		for i, c := range t {
			t[i] = prune(c)
		}
		return t
	default:
		return v
	}
}

// deepCopy clones maps and slices of a normalized tree.
func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, c := range t {
			out[k] = deepCopy(c)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, c := range t {
			out[i] = deepCopy(c)
		}
		return out
	default:
		return v
	}
}
