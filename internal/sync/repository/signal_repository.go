package repository

import (
	"context"

	"chat_sync_service/internal/sync/domain"
)

// SignalPublisher 發布 invalidation signal
type SignalPublisher interface {
	Publish(ctx context.Context, topics ...domain.Topic) error
}

// Subscription 動態增減 topic 的訂閱
type Subscription interface {
	Signals() <-chan domain.Signal
	Add(ctx context.Context, topics ...domain.Topic) error
	Remove(ctx context.Context, topics ...domain.Topic) error
	Close() error
}

// SignalSubscriber 建立訂閱
type SignalSubscriber interface {
	Subscribe(ctx context.Context, topics ...domain.Topic) (Subscription, error)
}

// SignalBus publish + subscribe
type SignalBus interface {
	SignalPublisher
	SignalSubscriber
}

const signalBuffer = 256
