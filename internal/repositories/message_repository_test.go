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

type chatFixture struct {
	store    *docstore.MemoryStore
	rooms    *StoreRoomRepository
	messages *StoreMessageRepository
	clock    *testClock
	roomID   string
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	store := docstore.NewMemoryStore()
	clock := newTestClock()
	rooms := NewStoreRoomRepository(store, nil)
	rooms.Now = clock.Now
	messages := NewStoreMessageRepository(store)
	messages.Now = clock.Now

	roomID, _, err := rooms.CreateOrGetPrivateRoom(context.Background(), "alice", "bob")
	require.NoError(t, err)
	return &chatFixture{store: store, rooms: rooms, messages: messages, clock: clock, roomID: roomID}
}

func (f *chatFixture) sendAt(t *testing.T, ms int64, sender, text string) string {
	t.Helper()
	f.clock.Set(ms)
	id, err := f.messages.Append(context.Background(), f.roomID, sender, sender, text, models.MessageText)
	require.NoError(t, err)
	return id
}

func (f *chatFixture) lastMessage(t *testing.T) *models.MessageSummary {
	t.Helper()
	room, err := f.rooms.GetRoom(context.Background(), f.roomID)
	require.NoError(t, err)
	return room.LastMessage
}

func TestAppend_UpdatesLastMessage(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t)

	f.clock.Set(10_000)
	id, err := f.messages.Append(ctx, f.roomID, "alice", "Alice", "hello", "")
	require.NoError(t, err)

	last := f.lastMessage(t)
	require.NotNil(t, last)
	assert.Equal(t, &models.MessageSummary{
		ID:         id,
		SenderID:   "alice",
		SenderName: "Alice",
		Text:       "hello",
		Type:       models.MessageText,
		Timestamp:  10_000,
	}, last)

	room, err := f.rooms.GetRoom(ctx, f.roomID)
	require.NoError(t, err)
	assert.Equal(t, int64(10_000), room.UpdatedAt)

	emoji, err := f.messages.Append(ctx, f.roomID, "bob", "Bob", "🐼", models.MessageEmoji)
	require.NoError(t, err)
	assert.Equal(t, emoji, f.lastMessage(t).ID)
	assert.Equal(t, models.MessageEmoji, f.lastMessage(t).Type)
}

func TestAppend_Rejects(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t)

	tests := []struct {
		name    string
		roomID  string
		text    string
		typ     models.MessageType
		wantErr error
	}{
		{name: "unknown room", roomID: "missing", text: "hi", wantErr: ErrNotFound},
		{name: "blank text", roomID: f.roomID, text: "  ", wantErr: ErrInvalidState},
		{name: "unknown type", roomID: f.roomID, text: "hi", typ: "image", wantErr: ErrInvalidState},
		{name: "malformed room id", roomID: "a/b", text: "hi", wantErr: ErrInvalidState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.messages.Append(ctx, tt.roomID, "alice", "Alice", tt.text, tt.typ)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	msgs, err := f.messages.ListMessages(ctx, f.roomID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Nil(t, f.lastMessage(t))
}

func TestListMessages_OrderedByTimestamp(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t)

	m1 := f.sendAt(t, 300, "alice", "third")
	m2 := f.sendAt(t, 100, "bob", "first")
	m3 := f.sendAt(t, 200, "alice", "second")

	msgs, err := f.messages.ListMessages(ctx, f.roomID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{m2, m3, m1}, []string{msgs[0].ID, msgs[1].ID, msgs[2].ID})
	for _, m := range msgs {
		assert.Equal(t, f.roomID, m.RoomID)
	}
	assert.Equal(t, "bob", msgs[0].SenderID)
}

func TestDelete_RepairsLastMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("falls back to greatest remaining timestamp", func(t *testing.T) {
		f := newChatFixture(t)
		m1 := f.sendAt(t, 300, "alice", "one")
		f.sendAt(t, 100, "bob", "two")
		m3 := f.sendAt(t, 200, "alice", "three")
		require.Equal(t, m3, f.lastMessage(t).ID)

		require.NoError(t, f.messages.Delete(ctx, f.roomID, m3))

		last := f.lastMessage(t)
		require.NotNil(t, last)
		assert.Equal(t, m1, last.ID)
		assert.Equal(t, "one", last.Text)
		assert.Equal(t, int64(300), last.Timestamp)
	})

	t.Run("clears pointer when the log is empty", func(t *testing.T) {
		f := newChatFixture(t)
		only := f.sendAt(t, 100, "alice", "alone")

		require.NoError(t, f.messages.Delete(ctx, f.roomID, only))

		assert.Nil(t, f.lastMessage(t))
		msgs, err := f.messages.ListMessages(ctx, f.roomID)
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})

	t.Run("leaves pointer when another message is deleted", func(t *testing.T) {
		f := newChatFixture(t)
		first := f.sendAt(t, 100, "alice", "first")
		second := f.sendAt(t, 200, "bob", "second")

		require.NoError(t, f.messages.Delete(ctx, f.roomID, first))

		assert.Equal(t, second, f.lastMessage(t).ID)
	})

	t.Run("unknown message", func(t *testing.T) {
		f := newChatFixture(t)
		assert.ErrorIs(t, f.messages.Delete(ctx, f.roomID, "missing"), ErrNotFound)
	})
}

func TestMarkRead(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t)
	id := f.sendAt(t, 100, "alice", "hi")

	f.clock.Set(500)
	require.NoError(t, f.messages.MarkRead(ctx, f.roomID, id, "bob"))
	f.clock.Set(700)
	require.NoError(t, f.messages.MarkRead(ctx, f.roomID, id, "alice"))

	msgs, err := f.messages.ListMessages(ctx, f.roomID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, map[string]int64{"bob": 500, "alice": 700}, msgs[0].ReadBy)
	assert.Equal(t, "hi", msgs[0].Text)

	err = f.messages.MarkRead(ctx, f.roomID, "missing", "bob")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetMessage(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t)
	id := f.sendAt(t, 100, "alice", "hi")
	f.sendAt(t, 200, "bob", "hey")

	msg, err := f.messages.GetMessage(ctx, f.roomID, id)
	require.NoError(t, err)
	assert.Equal(t, id, msg.ID)
	assert.Equal(t, f.roomID, msg.RoomID)
	assert.Equal(t, "alice", msg.SenderID)
	assert.Equal(t, "hi", msg.Text)
	assert.Equal(t, int64(100), msg.Timestamp)

	tests := []struct {
		name    string
		roomID  string
		msgID   string
		wantErr error
	}{
		{name: "unknown message", roomID: f.roomID, msgID: "missing", wantErr: ErrNotFound},
		{name: "unknown room", roomID: "nope", msgID: id, wantErr: ErrNotFound},
		{name: "malformed id", roomID: f.roomID, msgID: "a.b", wantErr: ErrInvalidState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.messages.GetMessage(ctx, tt.roomID, tt.msgID)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSubscribeMessages(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t)

	var (
		mu   sync.Mutex
		seen []models.Message
	)
	sub, err := f.messages.SubscribeMessages(f.roomID, func(msgs []models.Message) {
		mu.Lock()
		defer mu.Unlock()
		seen = msgs
	})
	require.NoError(t, err)

	f.sendAt(t, 200, "alice", "later")
	f.sendAt(t, 100, "bob", "earlier")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2 && seen[0].Text == "earlier" && seen[1].Text == "later"
	}, time.Second, 5*time.Millisecond)

	sub.Close()
	_, err = f.messages.Append(ctx, f.roomID, "alice", "Alice", "after close", models.MessageText)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 2)
}

func TestMessageRepository_StoreUnavailable(t *testing.T) {
	ctx := context.Background()
	repo := NewStoreMessageRepository(newFailingStore())

	_, err := repo.Append(ctx, "r1", "alice", "Alice", "hi", models.MessageText)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, repo.Delete(ctx, "r1", "m1"), ErrStoreUnavailable)
	assert.ErrorIs(t, repo.MarkRead(ctx, "r1", "m1", "bob"), ErrStoreUnavailable)
	_, err = repo.ListMessages(ctx, "r1")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	_, err = repo.GetMessage(ctx, "r1", "m1")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}
