package repositories

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Razee4315/panda-chat/internal/docstore"
	"github.com/Razee4315/panda-chat/internal/models"
)

type friendFixture struct {
	store   *docstore.MemoryStore
	friends *StoreFriendshipRepository
	notes   *StoreNotificationRepository
	clock   *testClock
}

func newFriendFixture(t *testing.T, guard RequestGuard) *friendFixture {
	t.Helper()
	store := docstore.NewMemoryStore()
	seedUser(t, store, "alice", "Alice", "Smith")
	seedUser(t, store, "bob", "Bob", "Jones")
	seedUser(t, store, "carol", "Carol", "White")

	clock := newTestClock()
	friends := NewStoreFriendshipRepository(store, guard)
	friends.Now = clock.Now
	return &friendFixture{
		store:   store,
		friends: friends,
		notes:   NewStoreNotificationRepository(store),
		clock:   clock,
	}
}

func TestSendRequest(t *testing.T) {
	ctx := context.Background()
	f := newFriendFixture(t, nil)

	f.clock.Set(1000)
	id, err := f.friends.SendRequest(ctx, "alice", "bob")
	require.NoError(t, err)

	req, err := f.friends.GetRequest(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, req.ID)
	assert.Equal(t, "alice", req.From)
	assert.Equal(t, "bob", req.To)
	assert.Equal(t, models.RequestPending, req.Status)
	assert.Equal(t, int64(1000), req.Timestamp)
	assert.Equal(t, models.UserSnapshot{
		UID:         "alice",
		Email:       "alice@example.com",
		FirstName:   "Alice",
		LastName:    "Smith",
		DisplayName: "Alice Smith",
	}, req.FromUser)
	assert.Equal(t, "Bob Jones", req.ToUser.DisplayName)

	notes, err := f.notes.List(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, models.Notification{
		ID:        id,
		Type:      models.NotificationFriendRequest,
		From:      "alice",
		Timestamp: 1000,
		RequestID: id,
	}, notes[0])
}

func TestSendRequest_Rejects(t *testing.T) {
	ctx := context.Background()
	f := newFriendFixture(t, nil)

	_, err := f.friends.SendRequest(ctx, "alice", "bob")
	require.NoError(t, err)

	tests := []struct {
		name     string
		from, to string
		wantErr  error
	}{
		{name: "same direction", from: "alice", to: "bob", wantErr: ErrAlreadyRequested},
		{name: "reverse direction", from: "bob", to: "alice", wantErr: ErrAlreadyRequested},
		{name: "unknown recipient", from: "alice", to: "zed", wantErr: ErrNotFound},
		{name: "unknown sender", from: "zed", to: "carol", wantErr: ErrNotFound},
		{name: "malformed id", from: "alice", to: "", wantErr: ErrInvalidState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.friends.SendRequest(ctx, tt.from, tt.to)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	sent, err := f.friends.SentRequests(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, sent, 1)
}

func TestRespond_Accept(t *testing.T) {
	ctx := context.Background()
	f := newFriendFixture(t, nil)

	id, err := f.friends.SendRequest(ctx, "alice", "bob")
	require.NoError(t, err)

	f.clock.Set(5000)
	req, err := f.friends.Respond(ctx, id, models.ActionAccept)
	require.NoError(t, err)
	assert.Equal(t, models.RequestAccepted, req.Status)

	stored, err := f.friends.GetRequest(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.RequestAccepted, stored.Status)

	aliceFriends, err := f.friends.Friends(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, aliceFriends, 1)
	assert.Equal(t, "bob", aliceFriends[0].UID)
	assert.Equal(t, "Bob Jones", aliceFriends[0].DisplayName)
	assert.Equal(t, models.StatusOnline, aliceFriends[0].Status)

	bobFriends, err := f.friends.Friends(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, bobFriends, 1)
	assert.Equal(t, "alice", bobFriends[0].UID)

	notes, err := f.notes.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotificationFriendAccepted, notes[0].Type)
	assert.Equal(t, "bob", notes[0].From)
	assert.Equal(t, int64(5000), notes[0].Timestamp)

	pending, err := f.friends.PendingRequests(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRespond_Reject(t *testing.T) {
	ctx := context.Background()
	f := newFriendFixture(t, nil)

	id, err := f.friends.SendRequest(ctx, "alice", "bob")
	require.NoError(t, err)

	req, err := f.friends.Respond(ctx, id, models.ActionReject)
	require.NoError(t, err)
	assert.Equal(t, models.RequestRejected, req.Status)

	friends, err := f.friends.Friends(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, friends)
	notes, err := f.notes.List(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, notes)

	again, err := f.friends.SendRequest(ctx, "alice", "bob")
	require.NoError(t, err, "a rejected request does not block a new one")
	assert.NotEqual(t, id, again)
}

func TestRespond_Rejects(t *testing.T) {
	ctx := context.Background()
	f := newFriendFixture(t, nil)

	answered, err := f.friends.SendRequest(ctx, "alice", "bob")
	require.NoError(t, err)
	_, err = f.friends.Respond(ctx, answered, models.ActionAccept)
	require.NoError(t, err)
	open, err := f.friends.SendRequest(ctx, "carol", "bob")
	require.NoError(t, err)

	tests := []struct {
		name    string
		id      string
		action  models.FriendAction
		wantErr error
	}{
		{name: "accept twice", id: answered, action: models.ActionAccept, wantErr: ErrInvalidState},
		{name: "reject after accept", id: answered, action: models.ActionReject, wantErr: ErrInvalidState},
		{name: "unknown request", id: "missing", action: models.ActionAccept, wantErr: ErrNotFound},
		{name: "unknown action", id: open, action: "ignore", wantErr: ErrInvalidState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.friends.Respond(ctx, tt.id, tt.action)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	stored, err := f.friends.GetRequest(ctx, open)
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, stored.Status)
}

func TestRemoveFriend(t *testing.T) {
	ctx := context.Background()
	f := newFriendFixture(t, nil)

	id, err := f.friends.SendRequest(ctx, "alice", "bob")
	require.NoError(t, err)
	_, err = f.friends.Respond(ctx, id, models.ActionAccept)
	require.NoError(t, err)

	require.NoError(t, f.friends.RemoveFriend(ctx, "bob", "alice"))

	for _, uid := range []string{"alice", "bob"} {
		friends, err := f.friends.Friends(ctx, uid)
		require.NoError(t, err)
		assert.Empty(t, friends, uid)
	}
	req, err := f.friends.GetRequest(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.RequestAccepted, req.Status, "history is kept")
}

func TestPendingAndSentRequests(t *testing.T) {
	ctx := context.Background()
	f := newFriendFixture(t, nil)

	toBob, err := f.friends.SendRequest(ctx, "alice", "bob")
	require.NoError(t, err)
	carolToBob, err := f.friends.SendRequest(ctx, "carol", "bob")
	require.NoError(t, err)
	toCarol, err := f.friends.SendRequest(ctx, "alice", "carol")
	require.NoError(t, err)

	ids := func(reqs []models.FriendRequest) []string {
		out := []string{}
		for _, r := range reqs {
			out = append(out, r.ID)
		}
		return out
	}

	tests := []struct {
		name string
		list func(context.Context, string) ([]models.FriendRequest, error)
		uid  string
		want []string
	}{
		{name: "pending for bob", list: f.friends.PendingRequests, uid: "bob", want: []string{toBob, carolToBob}},
		{name: "pending for carol", list: f.friends.PendingRequests, uid: "carol", want: []string{toCarol}},
		{name: "pending for alice", list: f.friends.PendingRequests, uid: "alice", want: []string{}},
		{name: "sent by alice", list: f.friends.SentRequests, uid: "alice", want: []string{toBob, toCarol}},
		{name: "sent by bob", list: f.friends.SentRequests, uid: "bob", want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.list(ctx, tt.uid)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestSubscribeRequestsAndFriends(t *testing.T) {
	ctx := context.Background()
	f := newFriendFixture(t, nil)

	var (
		mu       sync.Mutex
		requests []models.FriendRequest
		friends  []models.Friend
	)
	reqSub, err := f.friends.SubscribeRequests("bob", func(reqs []models.FriendRequest) {
		mu.Lock()
		defer mu.Unlock()
		requests = reqs
	})
	require.NoError(t, err)
	defer reqSub.Close()
	friendSub, err := f.friends.SubscribeFriends("bob", func(list []models.Friend) {
		mu.Lock()
		defer mu.Unlock()
		friends = list
	})
	require.NoError(t, err)
	defer friendSub.Close()

	id, err := f.friends.SendRequest(ctx, "alice", "bob")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(requests) == 1 && requests[0].ID == id
	}, time.Second, 5*time.Millisecond)

	_, err = f.friends.Respond(ctx, id, models.ActionAccept)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(requests) == 0 && len(friends) == 1 && friends[0].UID == "alice"
	}, time.Second, 5*time.Millisecond)
}

func TestSendRequest_GuardSerializesOppositeRequests(t *testing.T) {
	ctx := context.Background()
	f := newFriendFixture(t, NewLocalRequestGuard())

	const rounds = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		dupes   int
	)
	for i := 0; i < rounds; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from, to := "alice", "bob"
			if i%2 == 1 {
				from, to = to, from
			}
			_, err := f.friends.SendRequest(ctx, from, to)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case assert.ErrorIs(t, err, ErrAlreadyRequested):
				dupes++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, rounds-1, dupes)

	report, err := NewAuditor(f.store).Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.DuplicatePendingRequests)
}

func TestFriendshipRepository_StoreUnavailable(t *testing.T) {
	ctx := context.Background()
	repo := NewStoreFriendshipRepository(newFailingStore(), nil)

	_, err := repo.SendRequest(ctx, "alice", "bob")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	_, err = repo.Respond(ctx, "r1", models.ActionAccept)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	_, err = repo.PendingRequests(ctx, "bob")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	_, err = repo.Friends(ctx, "bob")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}
