package docstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"firebase.google.com/go/v4/db"
)

// DefaultPollInterval is used by RTDBStore subscriptions when none is set.
const DefaultPollInterval = 2 * time.Second

// RTDBStore maps the store primitives onto the Firebase Realtime Database
// REST client. The Admin SDK has no streaming listener, so subscriptions poll
// with ETag-conditional reads and only wake the callback on change.
type RTDBStore struct {
	client   *db.Client
	interval time.Duration
	keys     *PushIDGenerator

	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// NewRTDBStore wraps an initialized database client.
func NewRTDBStore(client *db.Client, pollInterval time.Duration) *RTDBStore {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &RTDBStore{
		client:   client,
		interval: pollInterval,
		keys:     NewPushIDGenerator(),
		subs:     map[*Subscription]struct{}{},
	}
}

func (r *RTDBStore) ref(p string) *db.Ref {
	return r.client.NewRef("/" + p)
}

func (r *RTDBStore) NewKey() string { return r.keys.Next() }

func (r *RTDBStore) Get(ctx context.Context, path string) (Snapshot, error) {
	p, err := cleanPath(path)
	if err != nil {
		return Snapshot{}, err
	}
	var v any
	if err := r.ref(p).Get(ctx, &v); err != nil {
		return Snapshot{}, fmt.Errorf("%w: get %s: %w", ErrUnavailable, p, err)
	}
	return Snapshot{key: lastSegment(p), value: prune(v)}, nil
}

func (r *RTDBStore) Set(ctx context.Context, path string, value any) error {
	p, err := cleanPath(path)
	if err != nil {
		return err
	}
	v, err := normalize(value)
	if err != nil {
		return err
	}
	if v == nil {
		err = r.ref(p).Delete(ctx)
	} else {
		err = r.ref(p).Set(ctx, v)
	}
	if err != nil {
		return fmt.Errorf("%w: set %s: %w", ErrUnavailable, p, err)
	}
	return nil
}

// Update sends one PATCH against the root, which the database applies
// atomically across all paths.
func (r *RTDBStore) Update(ctx context.Context, values map[string]any) error {
	clean, err := cleanUpdate(values)
	if err != nil {
		return err
	}
	if err := r.client.NewRef("/").Update(ctx, clean); err != nil {
		return fmt.Errorf("%w: update: %w", ErrUnavailable, err)
	}
	return nil
}

// Query pushes ordering and equality to the server. Ordering by a child
// requires a matching ".indexOn" rule in the database rules.
func (r *RTDBStore) Query(ctx context.Context, path string, q Query) ([]Snapshot, error) {
	p, err := cleanPath(path)
	if err != nil {
		return nil, err
	}
	var dq *db.Query
	if q.OrderBy == "" {
		dq = r.ref(p).OrderByKey()
	} else {
		dq = r.ref(p).OrderByChild(q.OrderBy)
		if q.EqualTo != nil {
			dq = dq.EqualTo(q.EqualTo)
		}
	}
	nodes, err := dq.GetOrdered(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %w", ErrUnavailable, p, err)
	}
	out := make([]Snapshot, 0, len(nodes))
	for _, n := range nodes {
		var v any
		if err := n.Unmarshal(&v); err != nil {
			return nil, fmt.Errorf("%w: query %s: %w", ErrUnavailable, p, err)
		}
		out = append(out, Snapshot{key: n.Key(), value: prune(v)})
	}
	// Server and client agree on ordering; this pins the key tie-break.
	return applyQuery(out, Query{OrderBy: q.OrderBy})
}

func (r *RTDBStore) Subscribe(path string, fn func(Snapshot)) (*Subscription, error) {
	p, err := cleanPath(path)
	if err != nil {
		return nil, err
	}
	sub := newSubscription(p)

	var (
		mu   sync.Mutex
		etag string
		last Snapshot
	)
	poll := func(ctx context.Context) (bool, error) {
		var v any
		mu.Lock()
		tag := etag
		mu.Unlock()
		changed, newTag, err := r.ref(p).GetIfChanged(ctx, tag, &v)
		if err != nil {
			return false, fmt.Errorf("%w: poll %s: %w", ErrUnavailable, p, err)
		}
		if !changed {
			return false, nil
		}
		mu.Lock()
		etag = newTag
		last = Snapshot{key: lastSegment(p), value: prune(v)}
		mu.Unlock()
		return true, nil
	}

	// The first delivery reads directly; later ones hand over the value the
	// poller already fetched.
	read := func(ctx context.Context) (Snapshot, error) {
		mu.Lock()
		primed := etag != ""
		snap := last
		mu.Unlock()
		if primed {
			return snap, nil
		}
		if _, err := poll(ctx); err != nil {
			return Snapshot{}, err
		}
		mu.Lock()
		defer mu.Unlock()
		return last, nil
	}

	pollerDone := make(chan struct{})
	go func() {
		defer close(pollerDone)
		t := time.NewTicker(r.interval)
		defer t.Stop()
		for {
			select {
			case <-sub.ctx.Done():
				return
			case <-t.C:
			}
			changed, err := poll(sub.ctx)
			if err != nil {
				if sub.ctx.Err() == nil {
					slog.Warn("docstore: rtdb poll failed",
						slog.String("subscription", sub.id),
						slog.String("error", err.Error()))
				}
				continue
			}
			if changed {
				sub.signal()
			}
		}
	}()

	sub.release = func() {
		<-pollerDone
		r.mu.Lock()
		delete(r.subs, sub)
		r.mu.Unlock()
	}
	r.mu.Lock()
	r.subs[sub] = struct{}{}
	r.mu.Unlock()
	sub.start(read, fn)
	return sub, nil
}

// Close stops every open subscription. The underlying client has nothing to
// release.
func (r *RTDBStore) Close() error {
	r.mu.Lock()
	subs := make([]*Subscription, 0, len(r.subs))
	for s := range r.subs {
		subs = append(subs, s)
	}
	r.mu.Unlock()
	for _, s := range subs {
		s.Close()
	}
	return nil
}

func lastSegment(p string) string {
	segs := Split(p)
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}
