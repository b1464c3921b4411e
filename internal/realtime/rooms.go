package realtime

import "strings"

// BroadcastRoom is the operator scope. Membership is granted by the caller, never by the hub.
const BroadcastRoom = "operators"

const (
	userRoomPrefix         = "user:"
	conversationRoomPrefix = "conversation:"
)

// UserRoom returns the private room of a user identity.
func UserRoom(userID string) string {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ""
	}
	return userRoomPrefix + userID
}

// ConversationRoom returns the room shared by participants of a conversation.
func ConversationRoom(conversationID string) string {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return ""
	}
	return conversationRoomPrefix + conversationID
}

func normalizeRoom(room string) string {
	return strings.TrimSpace(room)
}
