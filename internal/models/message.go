package models

// MessageType is the kind of message body.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageEmoji MessageType = "emoji"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	return t == MessageText || t == MessageEmoji
}

// Message is one entry of a room's log. ReadBy maps a user id to the time it
// marked the message read.
type Message struct {
	ID         string           `json:"id,omitempty"`
	RoomID     string           `json:"roomId,omitempty"`
	SenderID   string           `json:"uid"`
	SenderName string           `json:"senderName,omitempty"`
	Text       string           `json:"text"`
	Type       MessageType      `json:"type"`
	Timestamp  int64            `json:"timestamp"`
	ReadBy     map[string]int64 `json:"readBy,omitempty"`
}

// Summary is the copy kept in the room's lastMessage pointer.
func (m *Message) Summary() *MessageSummary {
	return &MessageSummary{
		ID:         m.ID,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Text:       m.Text,
		Type:       m.Type,
		Timestamp:  m.Timestamp,
	}
}

// MessageSummary is the denormalized latest message of a room.
type MessageSummary struct {
	ID         string      `json:"id"`
	SenderID   string      `json:"uid"`
	SenderName string      `json:"senderName,omitempty"`
	Text       string      `json:"text"`
	Type       MessageType `json:"type"`
	Timestamp  int64       `json:"timestamp"`
}

type SendMessageRequest struct {
	Text string      `json:"text" validate:"required,max=4000"`
	Type MessageType `json:"type" validate:"omitempty,oneof=text emoji"`
}
