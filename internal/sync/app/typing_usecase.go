package app

import (
	"context"
	"time"

	"chat_sync_service/internal/sync/domain"
	"chat_sync_service/internal/sync/repository"
)

// TypingUseCase TypingCoordinator
type TypingUseCase struct {
	typing    repository.TypingRepository
	chats     repository.ChatRepository
	notify    notifier
	staleness time.Duration
	now       func() time.Time
}

// NewTypingUseCase staleness 通常是 debounce 的兩倍
func NewTypingUseCase(typing repository.TypingRepository, chats repository.ChatRepository, pub repository.SignalPublisher, staleness time.Duration) *TypingUseCase {
	return &TypingUseCase{
		typing:    typing,
		chats:     chats,
		notify:    notifier{pub: pub},
		staleness: staleness,
		now:       time.Now,
	}
}

// SetTyping 每次呼叫都會更新 updated_at
func (uc *TypingUseCase) SetTyping(ctx context.Context, chatID, userID string, isTyping bool) error {
	ok, err := uc.chats.IsMember(ctx, chatID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotParticipant
	}

	status := &domain.TypingStatus{ChatID: chatID, UserID: userID, IsTyping: isTyping, UpdatedAt: uc.now()}
	if err := uc.typing.Upsert(ctx, status); err != nil {
		return err
	}
	uc.notify.signal(ctx, domain.TypingTopic(chatID))
	return nil
}

// ListTyping 超過 staleness 沒更新的 flag 視為 false
func (uc *TypingUseCase) ListTyping(ctx context.Context, chatID, excludingUserID string) ([]string, error) {
	return uc.typing.ListActive(ctx, chatID, excludingUserID, uc.now().Add(-uc.staleness))
}
