package repositories

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/Razee4315/panda-chat/internal/docstore"
	"github.com/Razee4315/panda-chat/internal/logger"
	"github.com/Razee4315/panda-chat/internal/models"
)

// MessageRepository appends to and edits a room's message log.
type MessageRepository interface {
	Append(ctx context.Context, roomID, senderID, senderName, text string, typ models.MessageType) (string, error)
	Delete(ctx context.Context, roomID, messageID string) error
	MarkRead(ctx context.Context, roomID, messageID, uid string) error
	GetMessage(ctx context.Context, roomID, messageID string) (*models.Message, error)
	ListMessages(ctx context.Context, roomID string) ([]models.Message, error)
	SubscribeMessages(roomID string, fn func([]models.Message)) (*docstore.Subscription, error)
}

// StoreMessageRepository implements MessageRepository on a document store.
//
// Delete decides whether the room's lastMessage must be repaired from a
// read taken before its write. A message appended in between can be
// overwritten by the repair, leaving lastMessage pointing at an older
// message until the next append.
type StoreMessageRepository struct {
	store docstore.Store

	Now func() time.Time
}

func NewStoreMessageRepository(store docstore.Store) *StoreMessageRepository {
	return &StoreMessageRepository{store: store, Now: time.Now}
}

// Append writes the message and the room's lastMessage summary in one
// multi-path update.
func (r *StoreMessageRepository) Append(ctx context.Context, roomID, senderID, senderName, text string, typ models.MessageType) (string, error) {
	if err := checkIDs(roomID, senderID); err != nil {
		return "", err
	}
	if typ == "" {
		typ = models.MessageText
	}
	if !typ.Valid() {
		return "", invalidState("unknown message type %q", typ)
	}
	if strings.TrimSpace(text) == "" {
		return "", invalidState("message text is empty")
	}

	snap, err := r.store.Get(ctx, docstore.Join(roomPath(roomID), "type"))
	if err != nil {
		return "", err
	}
	if !snap.Exists() {
		return "", notFound("room", roomID)
	}

	id := r.store.NewKey()
	now := r.Now().UnixMilli()
	msg := models.Message{
		SenderID:   senderID,
		SenderName: senderName,
		Text:       text,
		Type:       typ,
		Timestamp:  now,
	}
	summary := msg.Summary()
	summary.ID = id

	updates := map[string]any{
		messagePath(roomID, id): msg,
		lastMessagePath(roomID): summary,
	}
	updates[docstore.Join(roomPath(roomID), "updatedAt")] = now
	if err := r.store.Update(ctx, updates); err != nil {
		return "", err
	}
	return id, nil
}

// Delete removes a message. If it was the room's lastMessage, the pointer
// moves to the remaining message with the greatest timestamp, or is cleared
// when none remain.
func (r *StoreMessageRepository) Delete(ctx context.Context, roomID, messageID string) error {
	if err := checkIDs(roomID, messageID); err != nil {
		return err
	}
	snap, err := r.store.Get(ctx, messagePath(roomID, messageID))
	if err != nil {
		return err
	}
	if !snap.Exists() {
		return notFound("message", messageID)
	}

	updates := map[string]any{messagePath(roomID, messageID): nil}

	last, err := r.store.Get(ctx, docstore.Join(lastMessagePath(roomID), "id"))
	if err != nil {
		return err
	}
	if id, _ := last.Value().(string); id == messageID {
		remaining, err := r.ListMessages(ctx, roomID)
		if err != nil {
			return err
		}
		var latest *models.Message
		for i := range remaining {
			m := &remaining[i]
			if m.ID == messageID {
				continue
			}
			if latest == nil || m.Timestamp > latest.Timestamp ||
				(m.Timestamp == latest.Timestamp && m.ID > latest.ID) {
				latest = m
			}
		}
		if latest != nil {
			updates[lastMessagePath(roomID)] = latest.Summary()
		} else {
			updates[lastMessagePath(roomID)] = nil
		}
		logger.FromContext(ctx).Debug("repairing lastMessage",
			slog.String("room", roomID), slog.String("deleted", messageID))
	}

	return r.store.Update(ctx, updates)
}

// MarkRead records when uid read the message. Other readers are untouched.
func (r *StoreMessageRepository) MarkRead(ctx context.Context, roomID, messageID, uid string) error {
	if err := checkIDs(roomID, messageID, uid); err != nil {
		return err
	}
	snap, err := r.store.Get(ctx, docstore.Join(messagePath(roomID, messageID), "timestamp"))
	if err != nil {
		return err
	}
	if !snap.Exists() {
		return notFound("message", messageID)
	}
	return r.store.Update(ctx, map[string]any{
		docstore.Join(messagePath(roomID, messageID), "readBy", uid): r.Now().UnixMilli(),
	})
}

// GetMessage reads a single message.
func (r *StoreMessageRepository) GetMessage(ctx context.Context, roomID, messageID string) (*models.Message, error) {
	if err := checkIDs(roomID, messageID); err != nil {
		return nil, err
	}
	snap, err := r.store.Get(ctx, messagePath(roomID, messageID))
	if err != nil {
		return nil, err
	}
	if !snap.Exists() {
		return nil, notFound("message", messageID)
	}
	var m models.Message
	if err := snap.Decode(&m); err != nil {
		return nil, err
	}
	m.ID = messageID
	m.RoomID = roomID
	return &m, nil
}

// ListMessages returns the room's messages ordered by timestamp, then id.
func (r *StoreMessageRepository) ListMessages(ctx context.Context, roomID string) ([]models.Message, error) {
	if err := checkIDs(roomID); err != nil {
		return nil, err
	}
	children, err := r.store.Query(ctx, messagesPath(roomID), docstore.Query{OrderBy: "timestamp"})
	if err != nil {
		return nil, err
	}
	return decodeMessages(logger.FromContext(ctx), roomID, children), nil
}

// SubscribeMessages delivers the full ordered message list on every change
// under the room's messages.
func (r *StoreMessageRepository) SubscribeMessages(roomID string, fn func([]models.Message)) (*docstore.Subscription, error) {
	if err := checkIDs(roomID); err != nil {
		return nil, err
	}
	return r.store.Subscribe(messagesPath(roomID), func(snap docstore.Snapshot) {
		fn(decodeMessages(slog.Default(), roomID, snap.Children()))
	})
}

func decodeMessages(log *slog.Logger, roomID string, children []docstore.Snapshot) []models.Message {
	out := make([]models.Message, 0, len(children))
	for _, child := range children {
		var m models.Message
		if err := child.Decode(&m); err != nil {
			log.Warn("skipping undecodable message",
				slog.String("room", roomID), slog.String("message", child.Key()), slog.String("error", err.Error()))
			continue
		}
		m.ID = child.Key()
		m.RoomID = roomID
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].ID < out[j].ID
	})
	return out
}
