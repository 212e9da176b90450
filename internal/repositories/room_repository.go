package repositories

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Razee4315/panda-chat/internal/docstore"
	"github.com/Razee4315/panda-chat/internal/logger"
	"github.com/Razee4315/panda-chat/internal/models"
)

// RoomRepository resolves, creates and lists chat rooms.
type RoomRepository interface {
	CreateOrGetPrivateRoom(ctx context.Context, userA, userB string) (id string, created bool, err error)
	CreateGroup(ctx context.Context, members []string, name, admin string) (string, error)
	AddMembers(ctx context.Context, roomID string, userIDs []string) error
	RemoveMember(ctx context.Context, roomID, userID string) error
	RenameGroup(ctx context.Context, roomID, name string) error
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	ListRoomsForUser(ctx context.Context, uid string) ([]models.Room, error)
	SubscribeRooms(uid string, fn func([]models.Room)) (*docstore.Subscription, error)
	SubscribeRoom(roomID string, fn func(*models.Room)) (*docstore.Subscription, error)
}

// roomRecord is the stored shape of chatRooms/{id}. Participants use
// presence-flag encoding: removed members stay in the map as false.
type roomRecord struct {
	Type         models.RoomType        `json:"type"`
	Participants map[string]bool        `json:"participants"`
	Name         string                 `json:"name,omitempty"`
	GroupAdmin   string                 `json:"groupAdmin,omitempty"`
	CreatedAt    int64                  `json:"createdAt"`
	UpdatedAt    int64                  `json:"updatedAt"`
	LastMessage  *models.MessageSummary `json:"lastMessage,omitempty"`
}

func (r *roomRecord) model(id string) *models.Room {
	return &models.Room{
		ID:           id,
		Type:         r.Type,
		Participants: liveMembers(r.Participants),
		Name:         r.Name,
		GroupAdmin:   r.GroupAdmin,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		LastMessage:  r.LastMessage,
	}
}

func liveMembers(flags map[string]bool) []string {
	out := make([]string, 0, len(flags))
	for uid, in := range flags {
		if in {
			out = append(out, uid)
		}
	}
	sort.Strings(out)
	return out
}

func decodeRoom(snap docstore.Snapshot) (*models.Room, error) {
	var rec roomRecord
	if err := snap.Decode(&rec); err != nil {
		return nil, err
	}
	return rec.model(snap.Key()), nil
}

// sortRooms orders rooms most recently active first.
func sortRooms(rooms []models.Room) {
	sort.SliceStable(rooms, func(i, j int) bool {
		ai, aj := rooms[i].ActivityAt(), rooms[j].ActivityAt()
		if ai != aj {
			return ai > aj
		}
		return rooms[i].ID < rooms[j].ID
	})
}

// StoreRoomRepository implements RoomRepository on a document store.
//
// Private room lookup is a linear scan of every room. Without a pair index
// two concurrent calls for the same pair can both miss and create two
// rooms; the audit command reports such duplicates.
type StoreRoomRepository struct {
	store docstore.Store
	pairs PairIndex

	Now func() time.Time
}

// NewStoreRoomRepository creates a room repository. pairs may be nil.
func NewStoreRoomRepository(store docstore.Store, pairs PairIndex) *StoreRoomRepository {
	return &StoreRoomRepository{store: store, pairs: pairs, Now: time.Now}
}

func (r *StoreRoomRepository) now() int64 { return r.Now().UnixMilli() }

// CreateOrGetPrivateRoom returns the private room of the unordered pair,
// creating it when none exists. created reports whether this call wrote it.
func (r *StoreRoomRepository) CreateOrGetPrivateRoom(ctx context.Context, userA, userB string) (string, bool, error) {
	if err := checkIDs(userA, userB); err != nil {
		return "", false, err
	}
	if userA == userB {
		return "", false, invalidState("private room needs two distinct users")
	}
	if r.pairs != nil {
		return r.createOrGetIndexed(ctx, userA, userB)
	}

	id, err := r.findPrivateRoom(ctx, userA, userB)
	if err != nil {
		return "", false, err
	}
	if id != "" {
		return id, false, nil
	}
	id = r.store.NewKey()
	if err := r.createPrivateRoom(ctx, id, userA, userB); err != nil {
		return "", false, err
	}
	logger.FromContext(ctx).Debug("private room created",
		slog.String("room", id), slog.String("userA", userA), slog.String("userB", userB))
	return id, true, nil
}

// createOrGetIndexed claims the pair key before creating, so concurrent
// callers converge on one room id. Rooms created before the index existed
// are found by the scan and claimed under their existing id. An indexed
// room that is not the private room of exactly this pair is refused.
func (r *StoreRoomRepository) createOrGetIndexed(ctx context.Context, userA, userB string) (string, bool, error) {
	key := PairKey(userA, userB)
	id, err := r.pairs.Lookup(ctx, key)
	if err != nil {
		return "", false, err
	}
	if id == "" {
		candidate, err := r.findPrivateRoom(ctx, userA, userB)
		if err != nil {
			return "", false, err
		}
		if candidate == "" {
			candidate = r.store.NewKey()
		}
		if id, err = r.pairs.Claim(ctx, key, candidate); err != nil {
			return "", false, err
		}
	}

	snap, err := r.store.Get(ctx, docstore.Join(roomPath(id), "type"))
	if err != nil {
		return "", false, err
	}
	if !snap.Exists() {
		if err := r.createPrivateRoom(ctx, id, userA, userB); err != nil {
			return "", false, err
		}
		logger.FromContext(ctx).Debug("private room created",
			slog.String("room", id), slog.String("pairKey", key))
		return id, true, nil
	}

	if typ, _ := snap.Value().(string); typ != string(models.RoomPrivate) {
		return "", false, invalidState("pair index names room %q, which is not a private room", id)
	}
	members, err := r.store.Get(ctx, docstore.Join(roomPath(id), "participants"))
	if err != nil {
		return "", false, err
	}
	var participants map[string]bool
	if err := members.Decode(&participants); err != nil {
		return "", false, fmt.Errorf("decode participants of room %q: %w", id, err)
	}
	live := liveMembers(participants)
	if len(live) != 2 || live[0] != min(userA, userB) || live[1] != max(userA, userB) {
		return "", false, invalidState("pair index names room %q, which belongs to another pair", id)
	}
	return id, false, nil
}

func (r *StoreRoomRepository) findPrivateRoom(ctx context.Context, userA, userB string) (string, error) {
	snap, err := r.store.Get(ctx, roomsPath)
	if err != nil {
		return "", err
	}
	for _, child := range snap.Children() {
		var rec roomRecord
		if err := child.Decode(&rec); err != nil {
			logger.FromContext(ctx).Warn("skipping undecodable room",
				slog.String("room", child.Key()), slog.String("error", err.Error()))
			continue
		}
		if rec.Type != models.RoomPrivate {
			continue
		}
		live := liveMembers(rec.Participants)
		if len(live) == 2 && live[0] == min(userA, userB) && live[1] == max(userA, userB) {
			return child.Key(), nil
		}
	}
	return "", nil
}

func (r *StoreRoomRepository) createPrivateRoom(ctx context.Context, id, userA, userB string) error {
	now := r.now()
	return r.store.Set(ctx, roomPath(id), roomRecord{
		Type:         models.RoomPrivate,
		Participants: map[string]bool{userA: true, userB: true},
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

// CreateGroup always creates a new room. The admin is a member.
func (r *StoreRoomRepository) CreateGroup(ctx context.Context, members []string, name, admin string) (string, error) {
	if err := checkIDs(admin); err != nil {
		return "", err
	}
	if err := checkIDs(members...); err != nil {
		return "", err
	}
	if name == "" {
		return "", invalidState("group name is empty")
	}
	flags := map[string]bool{admin: true}
	for _, uid := range members {
		flags[uid] = true
	}

	id := r.store.NewKey()
	now := r.now()
	err := r.store.Set(ctx, roomPath(id), roomRecord{
		Type:         models.RoomGroup,
		Participants: flags,
		Name:         name,
		GroupAdmin:   admin,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// groupOnly reads the room type and rejects unknown and private rooms.
func (r *StoreRoomRepository) groupOnly(ctx context.Context, roomID string) error {
	if err := checkIDs(roomID); err != nil {
		return err
	}
	snap, err := r.store.Get(ctx, docstore.Join(roomPath(roomID), "type"))
	if err != nil {
		return err
	}
	if !snap.Exists() {
		return notFound("room", roomID)
	}
	if t, _ := snap.Value().(string); models.RoomType(t) != models.RoomGroup {
		return invalidState("room %q is not a group", roomID)
	}
	return nil
}

// AddMembers sets the presence flag of every id to true.
func (r *StoreRoomRepository) AddMembers(ctx context.Context, roomID string, userIDs []string) error {
	if len(userIDs) == 0 {
		return invalidState("no members to add")
	}
	if err := checkIDs(userIDs...); err != nil {
		return err
	}
	if err := r.groupOnly(ctx, roomID); err != nil {
		return err
	}
	updates := make(map[string]any, len(userIDs))
	for _, uid := range userIDs {
		updates[participantPath(roomID, uid)] = true
	}
	return r.store.Update(ctx, updates)
}

// RemoveMember sets the member's flag to false instead of deleting it.
func (r *StoreRoomRepository) RemoveMember(ctx context.Context, roomID, userID string) error {
	if err := checkIDs(userID); err != nil {
		return err
	}
	if err := r.groupOnly(ctx, roomID); err != nil {
		return err
	}
	return r.store.Update(ctx, map[string]any{participantPath(roomID, userID): false})
}

func (r *StoreRoomRepository) RenameGroup(ctx context.Context, roomID, name string) error {
	if name == "" {
		return invalidState("group name is empty")
	}
	if err := r.groupOnly(ctx, roomID); err != nil {
		return err
	}
	return r.store.Update(ctx, map[string]any{docstore.Join(roomPath(roomID), "name"): name})
}

func (r *StoreRoomRepository) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	if err := checkIDs(roomID); err != nil {
		return nil, err
	}
	snap, err := r.store.Get(ctx, roomPath(roomID))
	if err != nil {
		return nil, err
	}
	if !snap.Exists() {
		return nil, notFound("room", roomID)
	}
	room, err := decodeRoom(snap)
	if err != nil {
		return nil, fmt.Errorf("room %q: %w", roomID, err)
	}
	return room, nil
}

// ListRoomsForUser scans every room and keeps those uid is a live member of.
func (r *StoreRoomRepository) ListRoomsForUser(ctx context.Context, uid string) ([]models.Room, error) {
	snap, err := r.store.Get(ctx, roomsPath)
	if err != nil {
		return nil, err
	}
	return roomsForUser(logger.FromContext(ctx), snap, uid), nil
}

func roomsForUser(log *slog.Logger, snap docstore.Snapshot, uid string) []models.Room {
	rooms := []models.Room{}
	for _, child := range snap.Children() {
		room, err := decodeRoom(child)
		if err != nil {
			log.Warn("skipping undecodable room",
				slog.String("room", child.Key()), slog.String("error", err.Error()))
			continue
		}
		if room.HasMember(uid) {
			rooms = append(rooms, *room)
		}
	}
	sortRooms(rooms)
	return rooms
}

// SubscribeRooms re-delivers the full sorted room list of uid on every
// change under chatRooms.
func (r *StoreRoomRepository) SubscribeRooms(uid string, fn func([]models.Room)) (*docstore.Subscription, error) {
	if err := checkIDs(uid); err != nil {
		return nil, err
	}
	return r.store.Subscribe(roomsPath, func(snap docstore.Snapshot) {
		fn(roomsForUser(slog.Default(), snap, uid))
	})
}

// SubscribeRoom delivers the room, or nil once it no longer exists.
func (r *StoreRoomRepository) SubscribeRoom(roomID string, fn func(*models.Room)) (*docstore.Subscription, error) {
	if err := checkIDs(roomID); err != nil {
		return nil, err
	}
	return r.store.Subscribe(roomPath(roomID), func(snap docstore.Snapshot) {
		if !snap.Exists() {
			fn(nil)
			return
		}
		room, err := decodeRoom(snap)
		if err != nil {
			slog.Warn("skipping undecodable room",
				slog.String("room", roomID), slog.String("error", err.Error()))
			return
		}
		fn(room)
	})
}
