package docstore

import (
	"sort"
	"strconv"
	"strings"
)

// compareKeys orders keys the way the Realtime Database does: keys that parse
// as 32-bit integers first, numerically, then the rest lexicographically.
func compareKeys(a, b string) int {
	ai, aerr := strconv.ParseInt(a, 10, 32)
	bi, berr := strconv.ParseInt(b, 10, 32)
	switch {
	case aerr == nil && berr == nil:
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		}
		return 0
	case aerr == nil:
		return -1
	case berr == nil:
		return 1
	}
	return strings.Compare(a, b)
}

// rank groups values: null < false < true < numbers < strings < objects.
func rank(v any) int {
	switch t := v.(type) {
	case nil:
		return 0
	case bool:
		if t {
			return 2
		}
		return 1
	case float64:
		return 3
	case string:
		return 4
	default:
		return 5
	}
}

func compareValues(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch x := a.(type) {
	case float64:
		y := b.(float64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	case string:
		return strings.Compare(x, b.(string))
	}
	return 0
}

func equalValues(a, b any) bool {
	if rank(a) != rank(b) || rank(a) == 5 {
		return false
	}
	return a == b
}

// applyQuery filters and orders children client-side. Backends without a
// native ordered query use it directly; the others use it as a tie-breaker.
func applyQuery(children []Snapshot, q Query) ([]Snapshot, error) {
	if q.OrderBy == "" {
		out := append([]Snapshot(nil), children...)
		sort.SliceStable(out, func(i, j int) bool { return compareKeys(out[i].key, out[j].key) < 0 })
		return out, nil
	}
	var want any
	if q.EqualTo != nil {
		nv, err := normalize(q.EqualTo)
		if err != nil {
			return nil, err
		}
		want = nv
	}
	out := make([]Snapshot, 0, len(children))
	for _, c := range children {
		if want != nil && !equalValues(c.Child(q.OrderBy).value, want) {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if c := compareValues(out[i].Child(q.OrderBy).value, out[j].Child(q.OrderBy).value); c != 0 {
			return c < 0
		}
		return compareKeys(out[i].key, out[j].key) < 0
	})
	return out, nil
}
