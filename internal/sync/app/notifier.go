package app

import (
	"context"

	"chat_sync_service/internal/sync/domain"
	"chat_sync_service/internal/sync/repository"
	"chat_sync_service/pkg/logger"

	"go.uber.org/zap"
)

// notifier 發送 invalidation signal 與 event log
// 寫入已成功, 發送失敗只記 log, 訂閱端下次 refetch 時會收斂
type notifier struct {
	pub    repository.SignalPublisher
	events repository.EventLog
}

func (n notifier) signal(ctx context.Context, topics ...domain.Topic) {
	if n.pub == nil || len(topics) == 0 {
		return
	}
	if err := n.pub.Publish(ctx, topics...); err != nil {
		logger.Log.Warn("publish signal failed", zap.Int("topics", len(topics)), zap.String("first", string(topics[0])), zap.Error(err))
	}
}

func (n notifier) event(ctx context.Context, events ...domain.SyncEvent) {
	if n.events == nil || len(events) == 0 {
		return
	}
	if err := n.events.Append(ctx, events...); err != nil {
		logger.Log.Warn("append event failed", zap.String("type", string(events[0].Type)), zap.Error(err))
	}
}

func userTopics(build func(string) domain.Topic, userIDs ...string) []domain.Topic {
	topics := make([]domain.Topic, 0, len(userIDs))
	for _, id := range userIDs {
		topics = append(topics, build(id))
	}
	return topics
}

func others(ids []string, except string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != except {
			out = append(out, id)
		}
	}
	return out
}
