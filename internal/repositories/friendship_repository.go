package repositories

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/Razee4315/panda-chat/internal/docstore"
	"github.com/Razee4315/panda-chat/internal/logger"
	"github.com/Razee4315/panda-chat/internal/models"
)

// FriendshipRepository runs the friend request state machine and owns the
// symmetric friend edges.
type FriendshipRepository interface {
	SendRequest(ctx context.Context, from, to string) (string, error)
	Respond(ctx context.Context, requestID string, action models.FriendAction) (*models.FriendRequest, error)
	RemoveFriend(ctx context.Context, userA, userB string) error
	GetRequest(ctx context.Context, requestID string) (*models.FriendRequest, error)
	PendingRequests(ctx context.Context, uid string) ([]models.FriendRequest, error)
	SentRequests(ctx context.Context, uid string) ([]models.FriendRequest, error)
	Friends(ctx context.Context, uid string) ([]models.Friend, error)
	SubscribeRequests(uid string, fn func([]models.FriendRequest)) (*docstore.Subscription, error)
	SubscribeFriends(uid string, fn func([]models.Friend)) (*docstore.Subscription, error)
}

// StoreFriendshipRepository implements FriendshipRepository on a document
// store.
//
// The duplicate check in SendRequest and the status check in Respond are
// reads followed by separate writes. Two opposite requests sent at the same
// moment can both pass the check unless a RequestGuard is configured.
// Requests to oneself are not rejected here.
type StoreFriendshipRepository struct {
	store docstore.Store
	users *StoreUserRepository
	guard RequestGuard

	Now func() time.Time
}

// NewStoreFriendshipRepository creates the repository. guard may be nil.
func NewStoreFriendshipRepository(store docstore.Store, guard RequestGuard) *StoreFriendshipRepository {
	return &StoreFriendshipRepository{
		store: store,
		users: NewStoreUserRepository(store),
		guard: guard,
		Now:   time.Now,
	}
}

// SendRequest creates a pending request from one user to another together
// with the recipient's notification.
func (r *StoreFriendshipRepository) SendRequest(ctx context.Context, from, to string) (string, error) {
	if err := checkIDs(from, to); err != nil {
		return "", err
	}
	if r.guard != nil {
		unlock, err := r.guard.Lock(ctx, PairKey(from, to))
		if err != nil {
			return "", err
		}
		defer unlock()
	}

	pending, err := r.pending(ctx)
	if err != nil {
		return "", err
	}
	for _, req := range pending {
		if req.Involves(from, to) {
			return "", ErrAlreadyRequested
		}
	}

	fromUser, err := r.users.GetUser(ctx, from)
	if err != nil {
		return "", err
	}
	toUser, err := r.users.GetUser(ctx, to)
	if err != nil {
		return "", err
	}

	id := r.store.NewKey()
	now := r.Now().UnixMilli()
	req := models.FriendRequest{
		From:      from,
		To:        to,
		Status:    models.RequestPending,
		FromUser:  fromUser.Snapshot(),
		ToUser:    toUser.Snapshot(),
		Timestamp: now,
	}
	note := models.Notification{
		Type:      models.NotificationFriendRequest,
		From:      from,
		Timestamp: now,
		RequestID: id,
	}
	err = r.store.Update(ctx, map[string]any{
		requestPath(id):          req,
		notificationPath(to, id): note,
	})
	if err != nil {
		return "", err
	}
	logger.FromContext(ctx).Debug("friend request sent",
		slog.String("request", id), slog.String("from", from), slog.String("to", to))
	return id, nil
}

// Respond answers a pending request. Accepting writes the new status, both
// friend edges and the sender's notification in one multi-path update;
// rejecting only writes the status. Answered requests fail with
// ErrInvalidState.
func (r *StoreFriendshipRepository) Respond(ctx context.Context, requestID string, action models.FriendAction) (*models.FriendRequest, error) {
	req, err := r.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != models.RequestPending {
		return nil, invalidState("request %q is already %s", requestID, req.Status)
	}

	status := docstore.Join(requestPath(requestID), "status")
	switch action {
	case models.ActionAccept:
		fromUser, err := r.users.GetUser(ctx, req.From)
		if err != nil {
			return nil, err
		}
		toUser, err := r.users.GetUser(ctx, req.To)
		if err != nil {
			return nil, err
		}
		updates := map[string]any{
			status:                       models.RequestAccepted,
			friendPath(req.To, req.From): fromUser.Friend(),
			friendPath(req.From, req.To): toUser.Friend(),
		}
		updates[notificationPath(req.From, requestID)] = models.Notification{
			Type:      models.NotificationFriendAccepted,
			From:      req.To,
			Timestamp: r.Now().UnixMilli(),
		}
		if err := r.store.Update(ctx, updates); err != nil {
			return nil, err
		}
		req.Status = models.RequestAccepted
	case models.ActionReject:
		if err := r.store.Update(ctx, map[string]any{status: models.RequestRejected}); err != nil {
			return nil, err
		}
		req.Status = models.RequestRejected
	default:
		return nil, invalidState("unknown action %q", action)
	}
	return req, nil
}

// RemoveFriend deletes both edges in one update. Request history stays.
func (r *StoreFriendshipRepository) RemoveFriend(ctx context.Context, userA, userB string) error {
	if err := checkIDs(userA, userB); err != nil {
		return err
	}
	return r.store.Update(ctx, map[string]any{
		friendPath(userA, userB): nil,
		friendPath(userB, userA): nil,
	})
}

func (r *StoreFriendshipRepository) GetRequest(ctx context.Context, requestID string) (*models.FriendRequest, error) {
	if err := checkIDs(requestID); err != nil {
		return nil, err
	}
	snap, err := r.store.Get(ctx, requestPath(requestID))
	if err != nil {
		return nil, err
	}
	if !snap.Exists() {
		return nil, notFound("friend request", requestID)
	}
	var req models.FriendRequest
	if err := snap.Decode(&req); err != nil {
		return nil, err
	}
	req.ID = requestID
	return &req, nil
}

// pending queries every pending request, in key order.
func (r *StoreFriendshipRepository) pending(ctx context.Context) ([]models.FriendRequest, error) {
	children, err := r.store.Query(ctx, requestsPath, docstore.Query{OrderBy: "status", EqualTo: models.RequestPending})
	if err != nil {
		return nil, err
	}
	return decodeRequests(logger.FromContext(ctx), children, func(*models.FriendRequest) bool { return true }), nil
}

// PendingRequests returns the pending requests addressed to uid.
func (r *StoreFriendshipRepository) PendingRequests(ctx context.Context, uid string) ([]models.FriendRequest, error) {
	return r.filterPending(ctx, func(req *models.FriendRequest) bool { return req.To == uid })
}

// SentRequests returns the pending requests uid sent.
func (r *StoreFriendshipRepository) SentRequests(ctx context.Context, uid string) ([]models.FriendRequest, error) {
	return r.filterPending(ctx, func(req *models.FriendRequest) bool { return req.From == uid })
}

func (r *StoreFriendshipRepository) filterPending(ctx context.Context, keep func(*models.FriendRequest) bool) ([]models.FriendRequest, error) {
	all, err := r.pending(ctx)
	if err != nil {
		return nil, err
	}
	out := []models.FriendRequest{}
	for i := range all {
		if keep(&all[i]) {
			out = append(out, all[i])
		}
	}
	return out, nil
}

// SubscribeRequests delivers the pending requests addressed to uid on every
// change under friendRequests.
func (r *StoreFriendshipRepository) SubscribeRequests(uid string, fn func([]models.FriendRequest)) (*docstore.Subscription, error) {
	if err := checkIDs(uid); err != nil {
		return nil, err
	}
	return r.store.Subscribe(requestsPath, func(snap docstore.Snapshot) {
		fn(decodeRequests(slog.Default(), snap.Children(), func(req *models.FriendRequest) bool {
			return req.To == uid && req.Status == models.RequestPending
		}))
	})
}

func decodeRequests(log *slog.Logger, children []docstore.Snapshot, keep func(*models.FriendRequest) bool) []models.FriendRequest {
	out := []models.FriendRequest{}
	for _, child := range children {
		var req models.FriendRequest
		if err := child.Decode(&req); err != nil {
			log.Warn("skipping undecodable friend request",
				slog.String("request", child.Key()), slog.String("error", err.Error()))
			continue
		}
		req.ID = child.Key()
		if keep(&req) {
			out = append(out, req)
		}
	}
	return out
}

// Friends returns the denormalized friend records of uid.
func (r *StoreFriendshipRepository) Friends(ctx context.Context, uid string) ([]models.Friend, error) {
	if err := checkIDs(uid); err != nil {
		return nil, err
	}
	snap, err := r.store.Get(ctx, friendsPath(uid))
	if err != nil {
		return nil, err
	}
	return decodeFriends(logger.FromContext(ctx), snap), nil
}

func (r *StoreFriendshipRepository) SubscribeFriends(uid string, fn func([]models.Friend)) (*docstore.Subscription, error) {
	if err := checkIDs(uid); err != nil {
		return nil, err
	}
	return r.store.Subscribe(friendsPath(uid), func(snap docstore.Snapshot) {
		fn(decodeFriends(slog.Default(), snap))
	})
}

func decodeFriends(log *slog.Logger, snap docstore.Snapshot) []models.Friend {
	out := []models.Friend{}
	for _, child := range snap.Children() {
		var f models.Friend
		if err := child.Decode(&f); err != nil {
			log.Warn("skipping undecodable friend",
				slog.String("friend", child.Key()), slog.String("error", err.Error()))
			continue
		}
		f.UID = child.Key()
		out = append(out, f)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DisplayName != out[j].DisplayName {
			return out[i].DisplayName < out[j].DisplayName
		}
		return out[i].UID < out[j].UID
	})
	return out
}
