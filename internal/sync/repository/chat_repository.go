package repository

import (
	"context"
	"errors"
	"time"

	"chat_sync_service/internal/sync/domain"
	errprocess "chat_sync_service/pkg/err"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChatRepository definition chat & membership storage
type ChatRepository interface {
	CreateChat(ctx context.Context, chat *domain.Chat, memberIDs []string) error
	FindByID(ctx context.Context, chatID string) (*domain.Chat, error)
	FindDirect(ctx context.Context, directKey string) (*domain.Chat, error)
	ListForUser(ctx context.Context, userID string) ([]domain.Chat, error)
	MemberIDs(ctx context.Context, chatID string) ([]string, error)
	IsMember(ctx context.Context, chatID, userID string) (bool, error)
	AddMember(ctx context.Context, chatID, userID string, now time.Time) error
	RemoveMember(ctx context.Context, chatID, userID string, minRemaining int) (bool, error)
	UpdateSummary(ctx context.Context, msg *domain.Message) error
	ClearSummary(ctx context.Context, chatID string) error
}

type chatRepository struct {
	db *gorm.DB
}

// NewChatRepository create a ChatRepository
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

// CreateChat chat 與成員在同一個 transaction 寫入
// direct chat 的 direct_key 衝突時回傳 ErrDuplicate
func (r *chatRepository) CreateChat(ctx context.Context, chat *domain.Chat, memberIDs []string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(chat).Error; err != nil {
			return err
		}

		members := make([]domain.ChatMember, 0, len(memberIDs))
		for _, id := range memberIDs {
			members = append(members, domain.ChatMember{ChatID: chat.ID, UserID: id, CreatedAt: chat.CreatedAt})
		}
		return tx.Create(&members).Error
	})
	if err != nil {
		return fromStore(err, "create chat")
	}
	chat.Participants = memberIDs
	return nil
}

func (r *chatRepository) FindByID(ctx context.Context, chatID string) (*domain.Chat, error) {
	return r.findOne(ctx, "id = ?", chatID)
}

func (r *chatRepository) FindDirect(ctx context.Context, directKey string) (*domain.Chat, error) {
	return r.findOne(ctx, "direct_key = ?", directKey)
}

func (r *chatRepository) findOne(ctx context.Context, query string, arg string) (*domain.Chat, error) {
	var chat domain.Chat
	err := r.db.WithContext(ctx).
		Preload("Members", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Where(query, arg).
		First(&chat).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrChatNotFound
		}
		return nil, fromStore(err, "find chat")
	}
	fillParticipants(&chat)
	return &chat, nil
}

// ListForUser 依最後訊息時間 (沒有則建立時間) 新到舊
func (r *chatRepository) ListForUser(ctx context.Context, userID string) ([]domain.Chat, error) {
	var chats []domain.Chat
	err := r.db.WithContext(ctx).
		Preload("Members", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Where("id IN (?)", r.db.Model(&domain.ChatMember{}).Select("chat_id").Where("user_id = ?", userID)).
		Order("COALESCE(last_message_time, created_at) DESC").
		Order("id").
		Find(&chats).Error
	if err != nil {
		return nil, fromStore(err, "list chats")
	}
	for i := range chats {
		fillParticipants(&chats[i])
	}
	return chats, nil
}

func fillParticipants(chat *domain.Chat) {
	chat.Participants = make([]string, 0, len(chat.Members))
	for _, m := range chat.Members {
		chat.Participants = append(chat.Participants, m.UserID)
	}
	chat.Members = nil
}

func (r *chatRepository) MemberIDs(ctx context.Context, chatID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&domain.ChatMember{}).
		Where("chat_id = ?", chatID).
		Order("id").
		Pluck("user_id", &ids).Error
	return ids, fromStore(err, "list chat members")
}

func (r *chatRepository) IsMember(ctx context.Context, chatID, userID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.ChatMember{}).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		Count(&count).Error
	return count > 0, fromStore(err, "check chat member")
}

// AddMember 已是成員時不做事
func (r *chatRepository) AddMember(ctx context.Context, chatID, userID string, now time.Time) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&domain.ChatMember{ChatID: chatID, UserID: userID, CreatedAt: now}).Error
	return fromStore(err, "add chat member")
}

// RemoveMember 移除後人數不得少於 minRemaining, postgres 會鎖住 chat row 避免同時移除
// 已不是成員時回傳 false, nil
func (r *chatRepository) RemoveMember(ctx context.Context, chatID, userID string, minRemaining int) (bool, error) {
	removed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lock := tx
		if tx.Dialector.Name() == "postgres" {
			lock = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var chat domain.Chat
		if err := lock.Where("id = ?", chatID).First(&chat).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrChatNotFound
			}
			return err
		}

		var count int64
		if err := tx.Model(&domain.ChatMember{}).Where("chat_id = ?", chatID).Count(&count).Error; err != nil {
			return err
		}

		res := tx.Where("chat_id = ? AND user_id = ?", chatID, userID).Delete(&domain.ChatMember{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		if int(count-res.RowsAffected) < minRemaining {
			return domain.ErrInvalidMembership
		}
		removed = true
		return nil
	})
	if err != nil {
		if errprocess.KindOf(err) != nil {
			return false, err
		}
		return false, fromStore(err, "remove chat member")
	}
	return removed, nil
}

// UpdateSummary 只會往前推進, 較舊的訊息不會覆蓋 summary
func (r *chatRepository) UpdateSummary(ctx context.Context, msg *domain.Message) error {
	err := r.db.WithContext(ctx).Model(&domain.Chat{}).
		Where("id = ? AND (last_message_id IS NULL OR last_message_id <= ?)", msg.ChatID, msg.ID).
		Updates(map[string]interface{}{
			"last_message":      msg.Content,
			"last_message_time": msg.CreatedAt,
			"last_sender_id":    msg.SenderID,
			"last_message_id":   msg.ID,
			"updated_at":        msg.CreatedAt,
		}).Error
	return fromStore(err, "update chat summary")
}

func (r *chatRepository) ClearSummary(ctx context.Context, chatID string) error {
	err := r.db.WithContext(ctx).Model(&domain.Chat{}).
		Where("id = ?", chatID).
		Updates(map[string]interface{}{
			"last_message":      nil,
			"last_message_time": nil,
			"last_sender_id":    nil,
			"last_message_id":   nil,
		}).Error
	return fromStore(err, "clear chat summary")
}
