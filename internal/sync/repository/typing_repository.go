package repository

import (
	"context"
	"time"

	"chat_sync_service/internal/sync/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TypingRepository definition typing flag storage
type TypingRepository interface {
	Upsert(ctx context.Context, status *domain.TypingStatus) error
	ListActive(ctx context.Context, chatID, excludingUserID string, since time.Time) ([]string, error)
}

type typingRepository struct {
	db *gorm.DB
}

// NewTypingRepository create a TypingRepository
func NewTypingRepository(db *gorm.DB) TypingRepository {
	return &typingRepository{db: db}
}

func (r *typingRepository) Upsert(ctx context.Context, status *domain.TypingStatus) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chat_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_typing", "updated_at"}),
	}).Create(status).Error
	return fromStore(err, "upsert typing")
}

// ListActive updated_at 早於 since 的 flag 視為 false
func (r *typingRepository) ListActive(ctx context.Context, chatID, excludingUserID string, since time.Time) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&domain.TypingStatus{}).
		Where("chat_id = ? AND user_id <> ? AND is_typing = ? AND updated_at >= ?", chatID, excludingUserID, true, since).
		Order("user_id").
		Pluck("user_id", &ids).Error
	return ids, fromStore(err, "list typing")
}
