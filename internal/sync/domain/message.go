package domain

import "time"

// Message messages table, ID 由 store 遞增產生, 同一 chat 內以 ID 排序
type Message struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ChatID     string    `gorm:"type:varchar(36);not null;index;uniqueIndex:idx_message_client_key" json:"chat_id"`
	SenderID   string    `gorm:"type:varchar(36);not null" json:"sender_id"`
	SenderName string    `gorm:"type:varchar(128)" json:"sender_name"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	ClientKey  *string   `gorm:"type:varchar(64);uniqueIndex:idx_message_client_key" json:"client_key,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
