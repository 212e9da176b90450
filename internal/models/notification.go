package models

type NotificationType string

const (
	NotificationFriendRequest  NotificationType = "friendRequest"
	NotificationFriendAccepted NotificationType = "friendAccepted"
)

// Notification is keyed under its recipient by the id of the request that
// caused it.
type Notification struct {
	ID        string           `json:"id,omitempty"`
	Type      NotificationType `json:"type"`
	From      string           `json:"from"`
	Timestamp int64            `json:"timestamp"`
	Read      bool             `json:"read"`
	RequestID string           `json:"requestId,omitempty"`
}
