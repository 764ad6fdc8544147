package repository

import (
	"context"
	"errors"

	"chat_sync_service/internal/sync/domain"

	"gorm.io/gorm"
)

// MessageRepository definition message storage
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	FindByClientKey(ctx context.Context, chatID, clientKey string) (*domain.Message, error)
	ListRecent(ctx context.Context, chatID string, limit int) ([]domain.Message, error)
	DeleteByChat(ctx context.Context, chatID string) (int64, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository create a MessageRepository
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

// Create 同一個 (chat, client_key) 重複寫入時回傳 ErrDuplicate
func (r *messageRepository) Create(ctx context.Context, msg *domain.Message) error {
	return fromStore(r.db.WithContext(ctx).Create(msg).Error, "create message")
}

func (r *messageRepository) FindByClientKey(ctx context.Context, chatID, clientKey string) (*domain.Message, error) {
	var msg domain.Message
	err := r.db.WithContext(ctx).
		Where("chat_id = ? AND client_key = ?", chatID, clientKey).
		First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fromStore(err, "message by client key")
		}
		return nil, fromStore(err, "find message")
	}
	return &msg, nil
}

// ListRecent 取最新 limit 筆, 依建立順序由舊到新回傳
func (r *messageRepository) ListRecent(ctx context.Context, chatID string, limit int) ([]domain.Message, error) {
	var msgs []domain.Message
	err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("id DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, fromStore(err, "list messages")
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (r *messageRepository) DeleteByChat(ctx context.Context, chatID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("chat_id = ?", chatID).Delete(&domain.Message{})
	return res.RowsAffected, fromStore(res.Error, "clear messages")
}
