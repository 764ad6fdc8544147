package domain

import "time"

// EventType chat.events 的事件種類
type EventType string

const (
	EventDirectCreated  EventType = "direct_created"
	EventGroupCreated   EventType = "group_created"
	EventMemberAdded    EventType = "member_added"
	EventMemberRemoved  EventType = "member_removed"
	EventMessageSent    EventType = "message_sent"
	EventChatCleared    EventType = "chat_cleared"
	EventFriendAccepted EventType = "friend_accepted"
	EventFriendRemoved  EventType = "friend_removed"
)

// SyncEvent 寫入 event log 給下游使用, 不影響同步本身
type SyncEvent struct {
	Type      EventType `json:"type"`
	ChatID    string    `json:"chat_id,omitempty"`
	ActorID   string    `json:"actor_id"`
	SubjectID string    `json:"subject_id,omitempty"`
	MessageID uint64    `json:"message_id,omitempty"`
	At        time.Time `json:"at"`
}

// Key partition key, 同一個 chat 的事件保持順序
func (e SyncEvent) Key() string {
	if e.ChatID != "" {
		return e.ChatID
	}
	return e.ActorID
}
