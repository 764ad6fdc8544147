package domain

import "time"

// UnreadCount unread_counts table
type UnreadCount struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	ChatID    string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_unread_pair" json:"chat_id"`
	UserID    string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_unread_pair;index" json:"user_id"`
	Count     int       `gorm:"not null;default:0;check:chk_unread_non_negative,count >= 0" json:"count"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TypingStatus typing_status table
type TypingStatus struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	ChatID    string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_typing_pair" json:"chat_id"`
	UserID    string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_typing_pair" json:"user_id"`
	IsTyping  bool      `gorm:"not null;default:false" json:"is_typing"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName gorm table name
func (TypingStatus) TableName() string {
	return "typing_status"
}

// ActiveAt is_typing 且未超過 staleness
func (t TypingStatus) ActiveAt(now time.Time, staleness time.Duration) bool {
	return t.IsTyping && now.Sub(t.UpdatedAt) <= staleness
}

// UserPresence user_presence table
type UserPresence struct {
	ID       uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	UserID   string    `gorm:"type:varchar(36);not null;uniqueIndex" json:"user_id"`
	IsOnline bool      `gorm:"not null;default:false" json:"is_online"`
	LastSeen time.Time `gorm:"not null;index" json:"last_seen"`
}

// TableName gorm table name
func (UserPresence) TableName() string {
	return "user_presence"
}

// LiveAt is_online 且 heartbeat 未逾時
func (p *UserPresence) LiveAt(now time.Time, timeout time.Duration) bool {
	if p == nil {
		return false
	}
	return p.IsOnline && now.Sub(p.LastSeen) <= timeout
}
