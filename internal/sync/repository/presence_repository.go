package repository

import (
	"context"
	"errors"
	"time"

	"chat_sync_service/internal/sync/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PresenceRepository definition presence storage
type PresenceRepository interface {
	Upsert(ctx context.Context, userID string, isOnline bool, lastSeen time.Time) error
	Find(ctx context.Context, userID string) (*domain.UserPresence, error)
	FindMany(ctx context.Context, userIDs []string) ([]domain.UserPresence, error)
	DemoteStale(ctx context.Context, before time.Time) ([]string, error)
}

type presenceRepository struct {
	db *gorm.DB
}

// NewPresenceRepository create a PresenceRepository
func NewPresenceRepository(db *gorm.DB) PresenceRepository {
	return &presenceRepository{db: db}
}

func (r *presenceRepository) Upsert(ctx context.Context, userID string, isOnline bool, lastSeen time.Time) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_online", "last_seen"}),
	}).Create(&domain.UserPresence{UserID: userID, IsOnline: isOnline, LastSeen: lastSeen}).Error
	return fromStore(err, "upsert presence")
}

// Find 沒有紀錄時回傳 nil, nil
func (r *presenceRepository) Find(ctx context.Context, userID string) (*domain.UserPresence, error) {
	var p domain.UserPresence
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fromStore(err, "find presence")
	}
	return &p, nil
}

func (r *presenceRepository) FindMany(ctx context.Context, userIDs []string) ([]domain.UserPresence, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var ps []domain.UserPresence
	err := r.db.WithContext(ctx).Where("user_id IN ?", userIDs).Find(&ps).Error
	return ps, fromStore(err, "find presences")
}

// DemoteStale last_seen 早於 before 的 online 紀錄改為 offline, 回傳被改的 user
func (r *presenceRepository) DemoteStale(ctx context.Context, before time.Time) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.UserPresence{}).
			Where("is_online = ? AND last_seen < ?", true, before).
			Pluck("user_id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		return tx.Model(&domain.UserPresence{}).
			Where("user_id IN ? AND is_online = ? AND last_seen < ?", ids, true, before).
			Update("is_online", false).Error
	})
	return ids, fromStore(err, "demote stale presence")
}
