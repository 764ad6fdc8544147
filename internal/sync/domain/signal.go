package domain

import (
	"strings"
	"time"
)

// Table 被訂閱的 table 名稱
type Table string

const (
	TableProfiles       Table = "profiles"
	TableFriendRequests Table = "friend_requests"
	TableFriends        Table = "friends"
	TableChats          Table = "chats"
	TableMessages       Table = "messages"
	TableUnreadCounts   Table = "unread_counts"
	TableTyping         Table = "typing_status"
	TablePresence       Table = "user_presence"
)

// Topic "<table>:<filter>", 例如 "messages:chat:<id>"
type Topic string

// NewTopic build topic
func NewTopic(table Table, filter string) Topic {
	return Topic(string(table) + ":" + filter)
}

// Table 取出 table
func (t Topic) Table() Table {
	table, _, _ := strings.Cut(string(t), ":")
	return Table(table)
}

// Filter 取出 filter, 例如 "chat:<id>"
func (t Topic) Filter() string {
	_, filter, _ := strings.Cut(string(t), ":")
	return filter
}

// Subject filter 的最後一段 (user id 或 chat id)
func (t Topic) Subject() string {
	f := t.Filter()
	if i := strings.LastIndex(f, ":"); i >= 0 {
		return f[i+1:]
	}
	return f
}

// ProfileTopic profile of user changed
func ProfileTopic(userID string) Topic { return NewTopic(TableProfiles, "user:"+userID) }

// FriendRequestsTopic requests sent to or by user changed
func FriendRequestsTopic(userID string) Topic {
	return NewTopic(TableFriendRequests, "user:"+userID)
}

// FriendsTopic friend edges of user changed
func FriendsTopic(userID string) Topic { return NewTopic(TableFriends, "user:"+userID) }

// ChatsTopic chat list or summary of user changed
func ChatsTopic(userID string) Topic { return NewTopic(TableChats, "user:"+userID) }

// MessagesTopic messages of chat changed
func MessagesTopic(chatID string) Topic { return NewTopic(TableMessages, "chat:"+chatID) }

// UnreadTopic unread counters of user changed
func UnreadTopic(userID string) Topic { return NewTopic(TableUnreadCounts, "user:"+userID) }

// TypingTopic typing flags of chat changed
func TypingTopic(chatID string) Topic { return NewTopic(TableTyping, "chat:"+chatID) }

// PresenceTopic presence of user changed
func PresenceTopic(userID string) Topic { return NewTopic(TablePresence, "user:"+userID) }

// Signal invalidation token, 不攜帶資料, 收到後重新查詢
type Signal struct {
	Topic Topic     `json:"topic"`
	At    time.Time `json:"at"`
}
