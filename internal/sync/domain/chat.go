package domain

import (
	"sort"
	"strings"
	"time"
)

// ChatType definition chat type
type ChatType string

const (
	// ChatTypeDirect 1對1
	ChatTypeDirect ChatType = "dm"
	// ChatTypeGroup 群組
	ChatTypeGroup ChatType = "group"
)

// MinParticipants 任何 chat 至少兩人
const MinParticipants = 2

// Chat chats table
type Chat struct {
	ID              string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	Type            ChatType   `gorm:"type:varchar(8);not null;check:chk_chat_type,type IN ('dm','group')" json:"type"`
	Name            *string    `gorm:"type:varchar(128)" json:"name,omitempty"`
	DirectKey       *string    `gorm:"type:varchar(80);uniqueIndex" json:"-"`
	LastMessage     *string    `json:"last_message,omitempty"`
	LastMessageTime *time.Time `gorm:"index" json:"last_message_time,omitempty"`
	LastSenderID    *string    `gorm:"type:varchar(36)" json:"last_sender_id,omitempty"`
	LastMessageID   *uint64    `json:"-"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	Members        []ChatMember   `gorm:"foreignKey:ChatID;constraint:OnDelete:CASCADE" json:"-"`
	Messages       []Message      `gorm:"foreignKey:ChatID;constraint:OnDelete:CASCADE" json:"-"`
	UnreadCounts   []UnreadCount  `gorm:"foreignKey:ChatID;constraint:OnDelete:CASCADE" json:"-"`
	TypingStatuses []TypingStatus `gorm:"foreignKey:ChatID;constraint:OnDelete:CASCADE" json:"-"`

	Participants []string `gorm:"-" json:"participants"`
}

// ChatMember chat_members table, 取代 participants text[] 欄位
type ChatMember struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	ChatID    string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_chat_member"`
	UserID    string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_chat_member;index"`
	CreatedAt time.Time
}

// HasParticipant check user in participants
func (c *Chat) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// ActivityTime 排序用, 沒有訊息時用建立時間
func (c *Chat) ActivityTime() time.Time {
	if c.LastMessageTime != nil {
		return *c.LastMessageTime
	}
	return c.CreatedAt
}

// DirectKey 無序 pair 的唯一 key
func DirectKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, "|")
}
