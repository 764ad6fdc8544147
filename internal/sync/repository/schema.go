package repository

import (
	"chat_sync_service/internal/sync/domain"

	"gorm.io/gorm"
)

// AutoMigrate 建立同步相關 table (profiles 由 ProfileRepository.Migrate 負責)
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Chat{},
		&domain.ChatMember{},
		&domain.Message{},
		&domain.UnreadCount{},
		&domain.TypingStatus{},
		&domain.UserPresence{},
		&domain.FriendRequest{},
		&domain.FriendEdge{},
	)
}
