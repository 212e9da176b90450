package repositories

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Razee4315/panda-chat/internal/docstore"
	"github.com/Razee4315/panda-chat/internal/models"
)

// testClock hands out strictly increasing millisecond times unless pinned.
type testClock struct {
	mu  sync.Mutex
	cur time.Time
}

func newTestClock() *testClock {
	return &testClock{cur: time.UnixMilli(1_700_000_000_000)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(time.Millisecond)
	return c.cur
}

// Set makes the next Now return exactly ms.
func (c *testClock) Set(ms int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = time.UnixMilli(ms - 1)
}

func seedUser(t *testing.T, store docstore.Store, uid, first, last string) *models.User {
	t.Helper()
	users := NewStoreUserRepository(store)
	u, err := users.CreateUser(context.Background(), uid, models.RegisterRequest{
		Email:     uid + "@example.com",
		FirstName: first,
		LastName:  last,
	})
	require.NoError(t, err)
	return u
}

// failingStore answers every read and write with ErrUnavailable.
type failingStore struct {
	*docstore.MemoryStore
}

func newFailingStore() *failingStore {
	return &failingStore{MemoryStore: docstore.NewMemoryStore()}
}

func (f *failingStore) Get(context.Context, string) (docstore.Snapshot, error) {
	return docstore.Snapshot{}, docstore.ErrUnavailable
}

func (f *failingStore) Set(context.Context, string, any) error {
	return docstore.ErrUnavailable
}

func (f *failingStore) Update(context.Context, map[string]any) error {
	return docstore.ErrUnavailable
}

func (f *failingStore) Query(context.Context, string, docstore.Query) ([]docstore.Snapshot, error) {
	return nil, docstore.ErrUnavailable
}
