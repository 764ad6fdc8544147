package repository

import (
	"context"
	"errors"
	"time"

	"chat_sync_service/internal/sync/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UnreadRepository definition unread counter storage
type UnreadRepository interface {
	IncrementMany(ctx context.Context, chatID string, userIDs []string, now time.Time) error
	Reset(ctx context.Context, chatID, userID string, now time.Time) error
	Get(ctx context.Context, chatID, userID string) (int, error)
	ListForUser(ctx context.Context, userID string) ([]domain.UnreadCount, error)
}

type unreadRepository struct {
	db *gorm.DB
}

// NewUnreadRepository create a UnreadRepository
func NewUnreadRepository(db *gorm.DB) UnreadRepository {
	return &unreadRepository{db: db}
}

var unreadPair = []clause.Column{{Name: "chat_id"}, {Name: "user_id"}}

// IncrementMany count = count + 1 在 DB 端執行, 不會有 lost update
func (r *unreadRepository) IncrementMany(ctx context.Context, chatID string, userIDs []string, now time.Time) error {
	if len(userIDs) == 0 {
		return nil
	}

	rows := make([]domain.UnreadCount, 0, len(userIDs))
	for _, id := range userIDs {
		rows = append(rows, domain.UnreadCount{ChatID: chatID, UserID: id, Count: 1, UpdatedAt: now})
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: unreadPair,
		DoUpdates: clause.Assignments(map[string]interface{}{
			"count":      gorm.Expr("unread_counts.count + 1"),
			"updated_at": now,
		}),
	}).Create(&rows).Error
	return fromStore(err, "increment unread")
}

// Reset 不管原本的值一律設為 0
func (r *unreadRepository) Reset(ctx context.Context, chatID, userID string, now time.Time) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: unreadPair,
		DoUpdates: clause.Assignments(map[string]interface{}{
			"count":      0,
			"updated_at": now,
		}),
	}).Create(&domain.UnreadCount{ChatID: chatID, UserID: userID, Count: 0, UpdatedAt: now}).Error
	return fromStore(err, "reset unread")
}

func (r *unreadRepository) Get(ctx context.Context, chatID, userID string) (int, error) {
	var uc domain.UnreadCount
	err := r.db.WithContext(ctx).Where("chat_id = ? AND user_id = ?", chatID, userID).First(&uc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fromStore(err, "get unread")
	}
	return uc.Count, nil
}

func (r *unreadRepository) ListForUser(ctx context.Context, userID string) ([]domain.UnreadCount, error) {
	var counts []domain.UnreadCount
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("chat_id").Find(&counts).Error
	return counts, fromStore(err, "list unread")
}
