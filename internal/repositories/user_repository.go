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

// UserRepository manages user profiles and presence.
type UserRepository interface {
	CreateUser(ctx context.Context, uid string, req models.RegisterRequest) (*models.User, error)
	GetUser(ctx context.Context, uid string) (*models.User, error)
	UpdateProfile(ctx context.Context, uid string, req models.UpdateProfileRequest) (*models.User, error)
	SearchUsers(ctx context.Context, query string) ([]models.User, error)
	SetStatus(ctx context.Context, uid string, status models.UserStatus) error
	SubscribeStatuses(ids []string, fn func(map[string]models.Presence)) (*docstore.Subscription, error)
}

// StoreUserRepository implements UserRepository on a document store.
type StoreUserRepository struct {
	store docstore.Store

	Now func() time.Time
}

func NewStoreUserRepository(store docstore.Store) *StoreUserRepository {
	return &StoreUserRepository{store: store, Now: time.Now}
}

// CreateUser writes the signup record. New users start online.
func (r *StoreUserRepository) CreateUser(ctx context.Context, uid string, req models.RegisterRequest) (*models.User, error) {
	if err := checkIDs(uid); err != nil {
		return nil, err
	}
	snap, err := r.store.Get(ctx, docstore.Join(userPath(uid), "email"))
	if err != nil {
		return nil, err
	}
	if snap.Exists() {
		return nil, ErrAlreadyExists
	}

	user := models.User{
		Email:       req.Email,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		DisplayName: models.DisplayName(req.FirstName, req.LastName),
		DateOfBirth: req.DateOfBirth,
		Status:      models.StatusOnline,
		LastSeen:    r.Now().UnixMilli(),
	}
	if err := r.store.Set(ctx, userPath(uid), user); err != nil {
		return nil, err
	}
	user.UID = uid
	return &user, nil
}

func (r *StoreUserRepository) GetUser(ctx context.Context, uid string) (*models.User, error) {
	if err := checkIDs(uid); err != nil {
		return nil, err
	}
	snap, err := r.store.Get(ctx, userPath(uid))
	if err != nil {
		return nil, err
	}
	if !snap.Exists() {
		return nil, notFound("user", uid)
	}
	var user models.User
	if err := snap.Decode(&user); err != nil {
		return nil, err
	}
	user.UID = uid
	return &user, nil
}

// UpdateProfile changes the given fields only; friends and presence are
// left alone. The display name follows first and last name.
func (r *StoreUserRepository) UpdateProfile(ctx context.Context, uid string, req models.UpdateProfileRequest) (*models.User, error) {
	user, err := r.GetUser(ctx, uid)
	if err != nil {
		return nil, err
	}
	if req.FirstName != "" {
		user.FirstName = req.FirstName
	}
	if req.LastName != "" {
		user.LastName = req.LastName
	}
	if req.DateOfBirth != "" {
		user.DateOfBirth = req.DateOfBirth
	}
	if req.PhotoURL != "" {
		user.PhotoURL = req.PhotoURL
	}
	user.DisplayName = models.DisplayName(user.FirstName, user.LastName)

	field := func(name string) string { return docstore.Join(userPath(uid), name) }
	updates := map[string]any{
		field("firstName"):   user.FirstName,
		field("lastName"):    user.LastName,
		field("displayName"): user.DisplayName,
	}
	if user.DateOfBirth != "" {
		updates[field("dateOfBirth")] = user.DateOfBirth
	}
	if user.PhotoURL != "" {
		updates[field("photoURL")] = user.PhotoURL
	}
	if err := r.store.Update(ctx, updates); err != nil {
		return nil, err
	}
	return user, nil
}

// SearchUsers scans all users and returns the complete records whose email
// or names contain query, case-insensitively. An empty query matches all.
func (r *StoreUserRepository) SearchUsers(ctx context.Context, query string) ([]models.User, error) {
	snap, err := r.store.Get(ctx, usersPath)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	users := []models.User{}
	for _, child := range snap.Children() {
		var u models.User
		if err := child.Decode(&u); err != nil {
			logger.FromContext(ctx).Warn("skipping undecodable user",
				slog.String("uid", child.Key()), slog.String("error", err.Error()))
			continue
		}
		if !u.Complete() {
			continue
		}
		u.UID = child.Key()
		u.DisplayName = models.DisplayName(u.FirstName, u.LastName)
		if u.Status == "" {
			u.Status = models.StatusOffline
		}
		if q == "" || matchesUser(&u, q) {
			users = append(users, u)
		}
	}
	sort.SliceStable(users, func(i, j int) bool {
		if users[i].DisplayName != users[j].DisplayName {
			return users[i].DisplayName < users[j].DisplayName
		}
		return users[i].UID < users[j].UID
	})
	return users, nil
}

func matchesUser(u *models.User, q string) bool {
	for _, f := range []string{u.Email, u.FirstName, u.LastName, u.DisplayName} {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}

// SetStatus overwrites status and lastSeen unconditionally. Two sessions of
// one user overwrite each other; the last write wins.
func (r *StoreUserRepository) SetStatus(ctx context.Context, uid string, status models.UserStatus) error {
	if err := checkIDs(uid); err != nil {
		return err
	}
	if !status.Valid() {
		return invalidState("unknown status %q", status)
	}
	return r.store.Update(ctx, map[string]any{
		docstore.Join(userPath(uid), "status"):   status,
		docstore.Join(userPath(uid), "lastSeen"): r.Now().UnixMilli(),
	})
}

// SubscribeStatuses delivers the presence of the requested users on every
// change under users. Unknown ids are left out of the map.
func (r *StoreUserRepository) SubscribeStatuses(ids []string, fn func(map[string]models.Presence)) (*docstore.Subscription, error) {
	if err := checkIDs(ids...); err != nil {
		return nil, err
	}
	wanted := append([]string(nil), ids...)
	return r.store.Subscribe(usersPath, func(snap docstore.Snapshot) {
		out := make(map[string]models.Presence, len(wanted))
		for _, uid := range wanted {
			child := snap.Child(uid)
			if !child.Exists() {
				continue
			}
			var p models.Presence
			if err := child.Decode(&p); err != nil {
				slog.Warn("skipping undecodable presence",
					slog.String("uid", uid), slog.String("error", err.Error()))
				continue
			}
			p.UID = uid
			if p.Status == "" {
				p.Status = models.StatusOffline
			}
			out[uid] = p
		}
		fn(out)
	})
}
