package docstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SetGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Set(ctx, "users/alice", map[string]any{
		"firstName": "Alice",
		"friends":   map[string]any{},
		"status":    "online",
	}))

	snap, err := s.Get(ctx, "users/alice")
	require.NoError(t, err)
	assert.True(t, snap.Exists())
	assert.Equal(t, "alice", snap.Key())
	assert.Equal(t, map[string]any{"firstName": "Alice", "status": "online"}, snap.Value())

	status, err := s.Get(ctx, "/users/alice/status/")
	require.NoError(t, err)
	assert.Equal(t, "online", status.Value())

	missing, err := s.Get(ctx, "users/bob")
	require.NoError(t, err)
	assert.False(t, missing.Exists())

	below, err := s.Get(ctx, "users/alice/status/deeper")
	require.NoError(t, err)
	assert.False(t, below.Exists())
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Set(ctx, "a/b", map[string]any{"c": 1}))

	snap, err := s.Get(ctx, "a")
	require.NoError(t, err)
	snap.Value().(map[string]any)["b"].(map[string]any)["c"] = 2.0

	again, err := s.Get(ctx, "a/b/c")
	require.NoError(t, err)
	assert.Equal(t, 1.0, again.Value())
}

func TestMemoryStore_SetNilDeletesAndPrunes(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Set(ctx, "chatRooms/r1/messages/m1", map[string]any{"text": "hi"}))
	require.NoError(t, s.Set(ctx, "chatRooms/r1/messages/m1", nil))

	snap, err := s.Get(ctx, "chatRooms")
	require.NoError(t, err)
	assert.False(t, snap.Exists())
}

func TestMemoryStore_Update(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		seed    map[string]any
		update  map[string]any
		want    map[string]any
		wantErr error
	}{
		{
			name:   "writes every path",
			update: map[string]any{"a/x": 1, "b/y": "two"},
			want:   map[string]any{"a": map[string]any{"x": 1.0}, "b": map[string]any{"y": "two"}},
		},
		{
			name:   "nil deletes",
			seed:   map[string]any{"a/x": 1, "a/y": 2},
			update: map[string]any{"a/x": nil},
			want:   map[string]any{"a": map[string]any{"y": 2.0}},
		},
		{
			name:    "overlapping paths rejected",
			seed:    map[string]any{"a/x": 1},
			update:  map[string]any{"a": map[string]any{"z": 1}, "a/x": 2},
			want:    map[string]any{"a": map[string]any{"x": 1.0}},
			wantErr: ErrInvalidPath,
		},
		{
			name:    "invalid key rejected",
			update:  map[string]any{"a/x.y": 1},
			wantErr: ErrInvalidPath,
		},
		{
			name:    "empty update rejected",
			update:  map[string]any{},
			wantErr: ErrInvalidPath,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewMemoryStore()
			if tt.seed != nil {
				require.NoError(t, s.Update(ctx, tt.seed))
			}
			err := s.Update(ctx, tt.update)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			root, err := s.Get(ctx, "")
			require.NoError(t, err)
			if tt.want == nil {
				assert.False(t, root.Exists())
				return
			}
			assert.Equal(t, tt.want, root.Value())
		})
	}
}

func TestMemoryStore_UpdateUnencodableLeavesTreeUntouched(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Set(ctx, "a/x", 1))

	err := s.Update(ctx, map[string]any{"a/x": 2, "b": make(chan int)})
	require.Error(t, err)

	snap, err := s.Get(ctx, "a/x")
	require.NoError(t, err)
	assert.Equal(t, 1.0, snap.Value())
}

func TestMemoryStore_Query(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Set(ctx, "friendRequests", map[string]any{
		"r3": map[string]any{"status": "pending", "timestamp": 30},
		"r1": map[string]any{"status": "accepted", "timestamp": 10},
		"r2": map[string]any{"status": "pending", "timestamp": 30},
		"r4": map[string]any{"status": "pending", "timestamp": 5},
	}))

	tests := []struct {
		name string
		q    Query
		want []string
	}{
		{name: "by key", q: Query{}, want: []string{"r1", "r2", "r3", "r4"}},
		{name: "by child value then key", q: Query{OrderBy: "timestamp"}, want: []string{"r4", "r1", "r2", "r3"}},
		{name: "equal to", q: Query{OrderBy: "status", EqualTo: "pending"}, want: []string{"r2", "r3", "r4"}},
		{name: "equal to number", q: Query{OrderBy: "timestamp", EqualTo: 30}, want: []string{"r2", "r3"}},
		{name: "no match", q: Query{OrderBy: "status", EqualTo: "rejected"}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Query(ctx, "friendRequests", tt.q)
			require.NoError(t, err)
			keys := make([]string, 0, len(got))
			for _, c := range got {
				keys = append(keys, c.Key())
			}
			assert.Equal(t, tt.want, keys)
		})
	}
}

func TestMemoryStore_Subscribe(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Set(ctx, "chatRooms/r1/name", "first"))

	var (
		mu  sync.Mutex
		got []any
	)
	sub, err := s.Subscribe("chatRooms/r1/name", func(snap Snapshot) {
		mu.Lock()
		got = append(got, snap.Value())
		mu.Unlock()
	})
	require.NoError(t, err)
	defer sub.Close()

	last := func() any {
		mu.Lock()
		defer mu.Unlock()
		if len(got) == 0 {
			return nil
		}
		return got[len(got)-1]
	}

	require.Eventually(t, func() bool { return last() == "first" }, time.Second, 5*time.Millisecond)

	// Ancestor write reaches the subscription.
	require.NoError(t, s.Update(ctx, map[string]any{"chatRooms/r1": map[string]any{"name": "second"}}))
	require.Eventually(t, func() bool { return last() == "second" }, time.Second, 5*time.Millisecond)

	// Unrelated writes do not.
	mu.Lock()
	n := len(got)
	mu.Unlock()
	require.NoError(t, s.Set(ctx, "chatRooms/r2/name", "other"))
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, n, len(got))
	mu.Unlock()
}

func TestMemoryStore_SubscriptionCloseStopsDelivery(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var (
		mu    sync.Mutex
		calls int
	)
	sub, err := s.Subscribe("users", func(Snapshot) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 1
	}, time.Second, 5*time.Millisecond)

	sub.Close()
	sub.Close()

	select {
	case <-sub.Done():
	default:
		t.Fatal("delivery goroutine still running after Close")
	}

	require.NoError(t, s.Set(ctx, "users/u1/status", "online"))
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()

	s.mu.RLock()
	assert.Empty(t, s.subs)
	s.mu.RUnlock()
}

func TestMemoryStore_CloseStopsSubscriptions(t *testing.T) {
	s := NewMemoryStore()
	sub, err := s.Subscribe("a", func(Snapshot) {})
	require.NoError(t, err)

	require.NoError(t, s.Close())
	<-sub.Done()
}

func TestMemoryStore_SubscribeInvalidPath(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Subscribe("a/b#c", func(Snapshot) {})
	assert.ErrorIs(t, err, ErrInvalidPath)
}
