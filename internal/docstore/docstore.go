// Package docstore abstracts the hierarchical document store the chat core is
// built on.
//
// The store is a tree of JSON-compatible values addressed by slash separated
// paths ("chatRooms/{roomId}/messages/{msgId}"). It offers point reads and
// writes, multi-path updates that are applied atomically, ordered child
// queries, push-style key generation and live change subscriptions.
//
// Three backends are provided:
//   - MemoryStore: in-process tree, used by tests and local runs
//   - RTDBStore: Firebase Realtime Database via the Admin SDK
//   - MongoStore: MongoDB, one collection per top-level path segment
//
// Values written to any backend are normalized through encoding/json, so
// struct tags control the stored shape. Empty objects and null values are
// pruned, the way the Realtime Database does it.
package docstore

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrUnavailable marks failures of the underlying store. Callers propagate
	// it; nothing in this module retries.
	ErrUnavailable = errors.New("document store unavailable")

	// ErrInvalidPath is returned for malformed paths and for multi-path
	// updates whose paths overlap.
	ErrInvalidPath = errors.New("invalid document path")
)

// Query selects and orders the children of a path.
type Query struct {
	// OrderBy names the child field used as sort key. Empty orders by key.
	OrderBy string
	// EqualTo keeps only children whose OrderBy value equals it. Ignored
	// when nil or when OrderBy is empty.
	EqualTo any
}

// Store is the set of primitives the chat core relies on.
type Store interface {
	// NewKey returns a unique, chronologically sortable child key.
	NewKey() string

	// Get reads the value at path. A missing node yields a snapshot whose
	// Exists method reports false; it is not an error.
	Get(ctx context.Context, path string) (Snapshot, error)

	// Set overwrites the value at path. A nil value deletes the node.
	Set(ctx context.Context, path string, value any) error

	// Update applies every path/value pair atomically. Paths are relative
	// to the root and must not overlap; nil values delete.
	Update(ctx context.Context, values map[string]any) error

	// Query returns the children of path filtered and ordered by q.
	Query(ctx context.Context, path string, q Query) ([]Snapshot, error)

	// Subscribe delivers the value at path once immediately and again
	// after every change under it, until the returned subscription is
	// closed.
	Subscribe(path string, fn func(Snapshot)) (*Subscription, error)

	// Close releases backend resources and stops all subscriptions it owns.
	Close() error
}

// Join builds a store path from segments, skipping empty ones.
func Join(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		s = strings.Trim(s, "/")
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "/")
}

// Split breaks a path into its segments. The root path has none.
func Split(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// validSegment rejects characters the Realtime Database refuses in keys.
func validSegment(s string) bool {
	return s != "" && !strings.ContainsAny(s, ".#$[]")
}

// ValidKey reports whether s can be used as a single path segment.
func ValidKey(s string) bool {
	return validSegment(s) && !strings.Contains(s, "/")
}

func cleanPath(path string) (string, error) {
	segs := Split(path)
	for _, s := range segs {
		if !validSegment(s) {
			return "", ErrInvalidPath
		}
	}
	return strings.Join(segs, "/"), nil
}

// overlaps reports whether one path is equal to or an ancestor of the other.
func overlaps(a, b string) bool {
	if a == "" || b == "" || a == b {
		return true
	}
	return strings.HasPrefix(a, b+"/") || strings.HasPrefix(b, a+"/")
}

// cleanUpdate normalizes the paths and values of a multi-path update and
// rejects overlapping paths.
func cleanUpdate(values map[string]any) (map[string]any, error) {
	if len(values) == 0 {
		return nil, ErrInvalidPath
	}
	out := make(map[string]any, len(values))
	for p, v := range values {
		cp, err := cleanPath(p)
		if err != nil || cp == "" {
			return nil, ErrInvalidPath
		}
		for seen := range out {
			if overlaps(seen, cp) {
				return nil, ErrInvalidPath
			}
		}
		nv, err := normalize(v)
		if err != nil {
			return nil, err
		}
		out[cp] = nv
	}
	return out, nil
}
