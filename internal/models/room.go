package models

// RoomType distinguishes 1:1 rooms from group rooms.
type RoomType string

const (
	RoomPrivate RoomType = "private"
	RoomGroup   RoomType = "group"
)

// Room is the API view of a chat room. Participants lists only the members
// whose presence flag is currently true, sorted.
type Room struct {
	ID           string          `json:"id"`
	Type         RoomType        `json:"type"`
	Participants []string        `json:"participants"`
	Name         string          `json:"name,omitempty"`
	GroupAdmin   string          `json:"groupAdmin,omitempty"`
	CreatedAt    int64           `json:"createdAt"`
	UpdatedAt    int64           `json:"updatedAt"`
	LastMessage  *MessageSummary `json:"lastMessage,omitempty"`
}

// HasMember reports whether uid is a live participant.
func (r *Room) HasMember(uid string) bool {
	for _, p := range r.Participants {
		if p == uid {
			return true
		}
	}
	return false
}

// ActivityAt is the time used to order room lists.
func (r *Room) ActivityAt() int64 {
	if r.LastMessage != nil {
		return r.LastMessage.Timestamp
	}
	return r.CreatedAt
}

type CreatePrivateRoomRequest struct {
	UserID string `json:"userId" validate:"required"`
}

type CreateGroupRequest struct {
	Name    string   `json:"name" validate:"required,min=1,max=100"`
	Members []string `json:"members" validate:"required,min=1,dive,required"`
}

type RenameGroupRequest struct {
	Name string `json:"name" validate:"required,min=1,max=100"`
}

type AddMembersRequest struct {
	UserIDs []string `json:"userIds" validate:"required,min=1,dive,required"`
}
