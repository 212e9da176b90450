package docstore

import (
	"context"
	"sync"
)

// MemoryStore keeps the whole tree in process. Writes wake every
// subscription whose path overlaps a written path.
type MemoryStore struct {
	mu   sync.RWMutex
	root map[string]any
	subs map[*Subscription]struct{}
	keys *PushIDGenerator
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		root: map[string]any{},
		subs: map[*Subscription]struct{}{},
		keys: NewPushIDGenerator(),
	}
}

func (m *MemoryStore) NewKey() string { return m.keys.Next() }

func (m *MemoryStore) Get(ctx context.Context, path string) (Snapshot, error) {
	p, err := cleanPath(path)
	if err != nil {
		return Snapshot{}, err
	}
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read(p), nil
}

func (m *MemoryStore) read(p string) Snapshot {
	segs := Split(p)
	var cur any = m.root
	for _, s := range segs {
		node, ok := cur.(map[string]any)
		if !ok {
			return Snapshot{key: lastSegment(p)}
		}
		cur = node[s]
	}
	return Snapshot{key: lastSegment(p), value: prune(deepCopy(cur))}
}

func (m *MemoryStore) Set(ctx context.Context, path string, value any) error {
	p, err := cleanPath(path)
	if err != nil {
		return err
	}
	v, err := normalize(value)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.write(p, v)
	m.mu.Unlock()
	m.notify([]string{p})
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, values map[string]any) error {
	clean, err := cleanUpdate(values)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	paths := make([]string, 0, len(clean))
	m.mu.Lock()
	for p, v := range clean {
		m.write(p, v)
		paths = append(paths, p)
	}
	m.mu.Unlock()
	m.notify(paths)
	return nil
}

// write must be called with mu held.
func (m *MemoryStore) write(p string, v any) {
	segs := Split(p)
	if len(segs) == 0 {
		if node, ok := v.(map[string]any); ok {
			m.root = node
		} else {
			m.root = map[string]any{}
		}
		return
	}
	if v == nil {
		deleteAt(m.root, segs)
		return
	}
	node := m.root
	for _, s := range segs[:len(segs)-1] {
		child, ok := node[s].(map[string]any)
		if !ok {
			child = map[string]any{}
			node[s] = child
		}
		node = child
	}
	node[segs[len(segs)-1]] = v
}

// deleteAt removes the leaf and reports whether node became empty, so that
// empty ancestors are pruned too.
func deleteAt(node map[string]any, segs []string) bool {
	if len(segs) == 1 {
		delete(node, segs[0])
		return len(node) == 0
	}
	child, ok := node[segs[0]].(map[string]any)
	if !ok {
		return len(node) == 0
	}
	if deleteAt(child, segs[1:]) {
		delete(node, segs[0])
	}
	return len(node) == 0
}

func (m *MemoryStore) Query(ctx context.Context, path string, q Query) ([]Snapshot, error) {
	snap, err := m.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	return applyQuery(snap.Children(), q)
}

func (m *MemoryStore) Subscribe(path string, fn func(Snapshot)) (*Subscription, error) {
	p, err := cleanPath(path)
	if err != nil {
		return nil, err
	}
	sub := newSubscription(p)
	sub.release = func() {
		m.mu.Lock()
		delete(m.subs, sub)
		m.mu.Unlock()
	}
	m.mu.Lock()
	m.subs[sub] = struct{}{}
	m.mu.Unlock()
	sub.start(func(ctx context.Context) (Snapshot, error) { return m.Get(ctx, p) }, fn)
	return sub, nil
}

func (m *MemoryStore) notify(paths []string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for sub := range m.subs {
		for _, p := range paths {
			if overlaps(sub.path, p) {
				sub.signal()
				break
			}
		}
	}
}

// Close stops every open subscription.
func (m *MemoryStore) Close() error {
	m.mu.RLock()
	subs := make([]*Subscription, 0, len(m.subs))
	for s := range m.subs {
		subs = append(subs, s)
	}
	m.mu.RUnlock()
	for _, s := range subs {
		s.Close()
	}
	return nil
}
