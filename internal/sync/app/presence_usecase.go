package app

import (
	"context"
	"time"

	"chat_sync_service/internal/sync/domain"
	"chat_sync_service/internal/sync/repository"
	errprocess "chat_sync_service/pkg/err"
	"chat_sync_service/pkg/logger"

	"go.uber.org/zap"
)

// OnlineChecker 批次查詢 online 狀態
type OnlineChecker interface {
	OnlineSet(ctx context.Context, userIDs []string) (map[string]bool, error)
}

// PresenceUseCase PresenceTracker
// online 的判斷: is_online 且 last_seen 未超過 timeout, 在讀取時計算
type PresenceUseCase struct {
	repo    repository.PresenceRepository
	sub     repository.SignalSubscriber
	notify  notifier
	timeout time.Duration
	now     func() time.Time
}

// NewPresenceUseCase create PresenceUseCase
func NewPresenceUseCase(repo repository.PresenceRepository, bus repository.SignalBus, timeout time.Duration) *PresenceUseCase {
	uc := &PresenceUseCase{repo: repo, timeout: timeout, now: time.Now}
	if bus != nil {
		uc.sub = bus
		uc.notify = notifier{pub: bus}
	}
	return uc
}

// MarkOnline 連線建立
func (uc *PresenceUseCase) MarkOnline(ctx context.Context, userID string) error {
	return uc.set(ctx, userID, true)
}

// MarkOffline 登出或斷線
func (uc *PresenceUseCase) MarkOffline(ctx context.Context, userID string) error {
	return uc.set(ctx, userID, false)
}

func (uc *PresenceUseCase) set(ctx context.Context, userID string, online bool) error {
	if err := uc.repo.Upsert(ctx, userID, online, uc.now()); err != nil {
		return err
	}
	uc.notify.signal(ctx, domain.PresenceTopic(userID))
	return nil
}

// Heartbeat 更新 last_seen, 只有從離線變上線時才發 signal
func (uc *PresenceUseCase) Heartbeat(ctx context.Context, userID string) error {
	now := uc.now()
	prev, err := uc.repo.Find(ctx, userID)
	if err != nil {
		return err
	}
	if err := uc.repo.Upsert(ctx, userID, true, now); err != nil {
		return err
	}
	if !prev.LiveAt(now, uc.timeout) {
		uc.notify.signal(ctx, domain.PresenceTopic(userID))
	}
	return nil
}

// IsOnline 沒有紀錄視為離線
func (uc *PresenceUseCase) IsOnline(ctx context.Context, userID string) (bool, error) {
	p, err := uc.repo.Find(ctx, userID)
	if err != nil {
		return false, err
	}
	return p.LiveAt(uc.now(), uc.timeout), nil
}

// OnlineSet 每個 id 都會出現在結果中
func (uc *PresenceUseCase) OnlineSet(ctx context.Context, userIDs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		out[id] = false
	}
	ps, err := uc.repo.FindMany(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	now := uc.now()
	for i := range ps {
		out[ps[i].UserID] = ps[i].LiveAt(now, uc.timeout)
	}
	return out, nil
}

// Subscribe 狀態改變時呼叫 callback, 回傳取消訂閱的 func
func (uc *PresenceUseCase) Subscribe(ctx context.Context, userID string, callback func(userID string, online bool)) (func(), error) {
	if uc.sub == nil {
		return nil, errprocess.Wrap(errprocess.ErrInvalidArgument, "presence subscription not configured")
	}
	ctx, cancel := context.WithCancel(ctx)
	sub, err := uc.sub.Subscribe(ctx, domain.PresenceTopic(userID))
	if err != nil {
		cancel()
		return nil, err
	}

	last, err := uc.IsOnline(ctx, userID)
	if err != nil {
		logger.Log.Warn("presence initial read", zap.String("user", userID), zap.Error(err))
	}

	go func() {
		defer sub.Close()
		for range sub.Signals() {
			online, err := uc.IsOnline(ctx, userID)
			if err != nil {
				logger.Log.Warn("presence refetch", zap.String("user", userID), zap.Error(err))
				continue
			}
			if online != last {
				last = online
				callback(userID, online)
			}
		}
	}()
	return cancel, nil
}

// PurgeStale heartbeat 逾時的 user 改為離線
func (uc *PresenceUseCase) PurgeStale(ctx context.Context) ([]string, error) {
	demoted, err := uc.repo.DemoteStale(ctx, uc.now().Add(-uc.timeout))
	if err != nil {
		return nil, err
	}
	uc.notify.signal(ctx, userTopics(domain.PresenceTopic, demoted...)...)
	return demoted, nil
}
