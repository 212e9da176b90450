package models

// FriendRequestStatus is the state of a friend request. Only pending
// requests move, and each moves exactly once.
type FriendRequestStatus string

const (
	RequestPending  FriendRequestStatus = "pending"
	RequestAccepted FriendRequestStatus = "accepted"
	RequestRejected FriendRequestStatus = "rejected"
)

// FriendAction is the recipient's answer to a request.
type FriendAction string

const (
	ActionAccept FriendAction = "accept"
	ActionReject FriendAction = "reject"
)

// UserSnapshot is the copy of a user embedded in a friend request when it
// is sent. It is not kept in sync with the user record.
type UserSnapshot struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	DisplayName string `json:"displayName"`
}

// FriendRequest is kept forever as history once answered.
type FriendRequest struct {
	ID        string              `json:"id,omitempty"`
	From      string              `json:"from"`
	To        string              `json:"to"`
	Status    FriendRequestStatus `json:"status"`
	FromUser  UserSnapshot        `json:"fromUser"`
	ToUser    UserSnapshot        `json:"toUser"`
	Timestamp int64               `json:"timestamp"`
}

// Involves reports whether the request connects a and b in either direction.
func (r *FriendRequest) Involves(a, b string) bool {
	return (r.From == a && r.To == b) || (r.From == b && r.To == a)
}

// Friend is the denormalized record stored at users/{uid}/friends/{other}.
type Friend struct {
	UID         string     `json:"uid"`
	Email       string     `json:"email"`
	FirstName   string     `json:"firstName"`
	LastName    string     `json:"lastName"`
	DisplayName string     `json:"displayName"`
	Status      UserStatus `json:"status"`
	LastSeen    int64      `json:"lastSeen"`
	PhotoURL    string     `json:"photoURL,omitempty"`
}

type SendFriendRequest struct {
	To string `json:"to" validate:"required"`
}

type RespondFriendRequest struct {
	Action FriendAction `json:"action" validate:"required,oneof=accept reject"`
}
