package repositories

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/Razee4315/panda-chat/internal/docstore"
	"github.com/Razee4315/panda-chat/internal/logger"
	"github.com/Razee4315/panda-chat/internal/models"
)

// DuplicateRooms lists private rooms that share one user pair.
type DuplicateRooms struct {
	Users   [2]string `json:"users"`
	RoomIDs []string  `json:"roomIds"`
}

// DuplicateRequests lists pending requests that connect one user pair.
type DuplicateRequests struct {
	Users      [2]string `json:"users"`
	RequestIDs []string  `json:"requestIds"`
}

// Reasons a room's lastMessage is reported as stale.
const (
	StaleDangling   = "dangling"
	StaleMissing    = "missing"
	StaleSuperseded = "superseded"
)

// StaleLastMessage is a room whose lastMessage cannot be the result of the
// append and delete paths running one at a time. Empty ids mean "none".
type StaleLastMessage struct {
	RoomID  string `json:"roomId"`
	Pointer string `json:"pointer"`
	Latest  string `json:"latest"`
	Reason  string `json:"reason"`
}

// AuditReport collects the inconsistencies the non-transactional
// read-then-write paths can leave behind.
type AuditReport struct {
	DuplicatePrivateRooms    []DuplicateRooms    `json:"duplicatePrivateRooms"`
	DuplicatePendingRequests []DuplicateRequests `json:"duplicatePendingRequests"`
	StaleLastMessages        []StaleLastMessage  `json:"staleLastMessages"`
}

// Clean reports whether nothing was found.
func (r *AuditReport) Clean() bool {
	return len(r.DuplicatePrivateRooms) == 0 &&
		len(r.DuplicatePendingRequests) == 0 &&
		len(r.StaleLastMessages) == 0
}

// Auditor scans the store for the documented consistency gaps. It only
// reads; repairing is left to an operator.
type Auditor struct {
	store docstore.Store
}

func NewAuditor(store docstore.Store) *Auditor {
	return &Auditor{store: store}
}

func (a *Auditor) Run(ctx context.Context) (*AuditReport, error) {
	report := &AuditReport{
		DuplicatePrivateRooms:    []DuplicateRooms{},
		DuplicatePendingRequests: []DuplicateRequests{},
		StaleLastMessages:        []StaleLastMessage{},
	}
	log := logger.FromContext(ctx)

	rooms, err := a.store.Get(ctx, roomsPath)
	if err != nil {
		return nil, err
	}
	pairs := map[string][]string{}
	for _, child := range rooms.Children() {
		var rec roomRecord
		if err := child.Decode(&rec); err != nil {
			log.Warn("audit: skipping undecodable room",
				slog.String("room", child.Key()), slog.String("error", err.Error()))
			continue
		}
		if rec.Type == models.RoomPrivate {
			if live := liveMembers(rec.Participants); len(live) == 2 {
				key := PairKey(live[0], live[1])
				pairs[key] = append(pairs[key], child.Key())
			}
		}

		msgs := decodeMessages(log, child.Key(), child.Child("messages").Children())
		pointer := ""
		if rec.LastMessage != nil {
			pointer = rec.LastMessage.ID
		}
		if reason := staleReason(pointer, msgs); reason != "" {
			latest := ""
			if n := len(msgs); n > 0 {
				latest = msgs[n-1].ID
			}
			report.StaleLastMessages = append(report.StaleLastMessages, StaleLastMessage{
				RoomID:  child.Key(),
				Pointer: pointer,
				Latest:  latest,
				Reason:  reason,
			})
		}
	}
	for _, key := range sortedKeys(pairs) {
		if ids := pairs[key]; len(ids) > 1 {
			report.DuplicatePrivateRooms = append(report.DuplicatePrivateRooms, DuplicateRooms{
				Users:   splitPairKey(key),
				RoomIDs: ids,
			})
		}
	}

	children, err := a.store.Query(ctx, requestsPath, docstore.Query{OrderBy: "status", EqualTo: models.RequestPending})
	if err != nil {
		return nil, err
	}
	requests := map[string][]string{}
	for _, req := range decodeRequests(log, children, func(*models.FriendRequest) bool { return true }) {
		key := PairKey(req.From, req.To)
		requests[key] = append(requests[key], req.ID)
	}
	for _, key := range sortedKeys(requests) {
		if ids := requests[key]; len(ids) > 1 {
			report.DuplicatePendingRequests = append(report.DuplicatePendingRequests, DuplicateRequests{
				Users:      splitPairKey(key),
				RequestIDs: ids,
			})
		}
	}
	return report, nil
}

// staleReason judges a lastMessage pointer against the room's messages.
// Append always points at the newest key and a delete repair points at the
// greatest timestamp, so a later key that also carries a later timestamp
// means an append landed while a repair was reading the log. Timestamps
// alone are not enough: an append may legitimately carry an earlier clock.
func staleReason(pointer string, msgs []models.Message) string {
	if pointer == "" {
		if len(msgs) > 0 {
			return StaleMissing
		}
		return ""
	}
	var target *models.Message
	for i := range msgs {
		if msgs[i].ID == pointer {
			target = &msgs[i]
			break
		}
	}
	if target == nil {
		return StaleDangling
	}
	for _, m := range msgs {
		if m.ID > target.ID && m.Timestamp > target.Timestamp {
			return StaleSuperseded
		}
	}
	return ""
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func splitPairKey(key string) [2]string {
	a, b, _ := strings.Cut(key, pairSeparator)
	return [2]string{a, b}
}
