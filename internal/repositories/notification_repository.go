package repositories

import (
	"context"
	"log/slog"
	"sort"

	"github.com/Razee4315/panda-chat/internal/docstore"
	"github.com/Razee4315/panda-chat/internal/logger"
	"github.com/Razee4315/panda-chat/internal/models"
)

// NotificationRepository reads a user's notifications. They are written by
// the friend graph as part of its multi-path updates.
type NotificationRepository interface {
	List(ctx context.Context, uid string) ([]models.Notification, error)
	UnreadCount(ctx context.Context, uid string) (int, error)
	MarkRead(ctx context.Context, uid, id string) error
	MarkAllRead(ctx context.Context, uid string) error
	Subscribe(uid string, fn func([]models.Notification)) (*docstore.Subscription, error)
}

type StoreNotificationRepository struct {
	store docstore.Store
}

func NewStoreNotificationRepository(store docstore.Store) *StoreNotificationRepository {
	return &StoreNotificationRepository{store: store}
}

// List returns the user's notifications, newest first.
func (r *StoreNotificationRepository) List(ctx context.Context, uid string) ([]models.Notification, error) {
	if err := checkIDs(uid); err != nil {
		return nil, err
	}
	snap, err := r.store.Get(ctx, userNotificationsPath(uid))
	if err != nil {
		return nil, err
	}
	return decodeNotifications(logger.FromContext(ctx), snap), nil
}

func (r *StoreNotificationRepository) UnreadCount(ctx context.Context, uid string) (int, error) {
	list, err := r.List(ctx, uid)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, item := range list {
		if !item.Read {
			n++
		}
	}
	return n, nil
}

func (r *StoreNotificationRepository) MarkRead(ctx context.Context, uid, id string) error {
	if err := checkIDs(uid, id); err != nil {
		return err
	}
	snap, err := r.store.Get(ctx, docstore.Join(notificationPath(uid, id), "type"))
	if err != nil {
		return err
	}
	if !snap.Exists() {
		return notFound("notification", id)
	}
	return r.store.Update(ctx, map[string]any{docstore.Join(notificationPath(uid, id), "read"): true})
}

// MarkAllRead flips every unread notification of uid in one update.
func (r *StoreNotificationRepository) MarkAllRead(ctx context.Context, uid string) error {
	list, err := r.List(ctx, uid)
	if err != nil {
		return err
	}
	updates := map[string]any{}
	for _, item := range list {
		if !item.Read {
			updates[docstore.Join(notificationPath(uid, item.ID), "read")] = true
		}
	}
	if len(updates) == 0 {
		return nil
	}
	return r.store.Update(ctx, updates)
}

func (r *StoreNotificationRepository) Subscribe(uid string, fn func([]models.Notification)) (*docstore.Subscription, error) {
	if err := checkIDs(uid); err != nil {
		return nil, err
	}
	return r.store.Subscribe(userNotificationsPath(uid), func(snap docstore.Snapshot) {
		fn(decodeNotifications(slog.Default(), snap))
	})
}

func decodeNotifications(log *slog.Logger, snap docstore.Snapshot) []models.Notification {
	out := []models.Notification{}
	for _, child := range snap.Children() {
		var n models.Notification
		if err := child.Decode(&n); err != nil {
			log.Warn("skipping undecodable notification",
				slog.String("notification", child.Key()), slog.String("error", err.Error()))
			continue
		}
		n.ID = child.Key()
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp > out[j].Timestamp
		}
		return out[i].ID > out[j].ID
	})
	return out
}
