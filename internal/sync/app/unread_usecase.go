package app

import (
	"context"
	"time"

	"chat_sync_service/internal/sync/domain"
	"chat_sync_service/internal/sync/repository"
	errprocess "chat_sync_service/pkg/err"
)

// UnreadUseCase UnreadCounter
type UnreadUseCase struct {
	repo   repository.UnreadRepository
	notify notifier
	now    func() time.Time
}

// NewUnreadUseCase create UnreadUseCase
func NewUnreadUseCase(repo repository.UnreadRepository, pub repository.SignalPublisher) *UnreadUseCase {
	return &UnreadUseCase{repo: repo, notify: notifier{pub: pub}, now: time.Now}
}

// Increment +1
func (uc *UnreadUseCase) Increment(ctx context.Context, chatID, userID string) error {
	return uc.IncrementMany(ctx, chatID, []string{userID})
}

// IncrementMany 每個 user 各 +1, 在 DB 端原子執行
func (uc *UnreadUseCase) IncrementMany(ctx context.Context, chatID string, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	if err := uc.repo.IncrementMany(ctx, chatID, userIDs, uc.now()); err != nil {
		return err
	}
	uc.notify.signal(ctx, userTopics(domain.UnreadTopic, userIDs...)...)
	return nil
}

// Reset 只有本人可以歸零, 不論原本的值
func (uc *UnreadUseCase) Reset(ctx context.Context, chatID, actor, userID string) error {
	if actor != userID {
		return domain.ErrNotOwner
	}
	if err := errprocess.Retry(ctx, func() error { return uc.repo.Reset(ctx, chatID, userID, uc.now()) }); err != nil {
		return err
	}
	uc.notify.signal(ctx, domain.UnreadTopic(userID))
	return nil
}

// Get 沒有紀錄時為 0
func (uc *UnreadUseCase) Get(ctx context.Context, chatID, userID string) (int, error) {
	return uc.repo.Get(ctx, chatID, userID)
}

// ListForUser chat id -> count
func (uc *UnreadUseCase) ListForUser(ctx context.Context, userID string) (map[string]int, error) {
	counts, err := uc.repo.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(counts))
	for _, c := range counts {
		out[c.ChatID] = c.Count
	}
	return out, nil
}
