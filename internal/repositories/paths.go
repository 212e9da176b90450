package repositories

import "github.com/Razee4315/panda-chat/internal/docstore"

const (
	usersPath         = "users"
	roomsPath         = "chatRooms"
	requestsPath      = "friendRequests"
	notificationsPath = "notifications"
)

func userPath(uid string) string { return docstore.Join(usersPath, uid) }

func friendsPath(uid string) string { return docstore.Join(usersPath, uid, "friends") }

func friendPath(uid, other string) string { return docstore.Join(usersPath, uid, "friends", other) }

func roomPath(roomID string) string { return docstore.Join(roomsPath, roomID) }

func participantPath(roomID, uid string) string {
	return docstore.Join(roomsPath, roomID, "participants", uid)
}

func messagesPath(roomID string) string { return docstore.Join(roomsPath, roomID, "messages") }

func messagePath(roomID, msgID string) string {
	return docstore.Join(roomsPath, roomID, "messages", msgID)
}

func lastMessagePath(roomID string) string { return docstore.Join(roomsPath, roomID, "lastMessage") }

func requestPath(reqID string) string { return docstore.Join(requestsPath, reqID) }

func userNotificationsPath(uid string) string { return docstore.Join(notificationsPath, uid) }

func notificationPath(uid, id string) string { return docstore.Join(notificationsPath, uid, id) }
