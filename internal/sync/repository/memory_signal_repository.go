package repository

import (
	"context"
	"sync"
	"time"

	"chat_sync_service/internal/sync/domain"
	"chat_sync_service/pkg/logger"

	"go.uber.org/zap"
)

// MemorySignalBus 單機使用的 signal bus (本機開發與測試)
type MemorySignalBus struct {
	mu   sync.RWMutex
	subs map[*memorySubscription]struct{}
	now  func() time.Time
}

// NewMemorySignalBus create MemorySignalBus
func NewMemorySignalBus() *MemorySignalBus {
	return &MemorySignalBus{subs: make(map[*memorySubscription]struct{}), now: time.Now}
}

func (b *MemorySignalBus) Publish(_ context.Context, topics ...domain.Topic) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, topic := range topics {
		sig := domain.Signal{Topic: topic, At: b.now()}
		for sub := range b.subs {
			sub.deliver(sig)
		}
	}
	return nil
}

func (b *MemorySignalBus) Subscribe(ctx context.Context, topics ...domain.Topic) (Subscription, error) {
	sub := &memorySubscription{
		bus:    b,
		topics: make(map[domain.Topic]struct{}),
		out:    make(chan domain.Signal, signalBuffer),
	}
	_ = sub.Add(ctx, topics...)

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		sub.Close()
	}()
	return sub, nil
}

type memorySubscription struct {
	bus    *MemorySignalBus
	mu     sync.Mutex
	topics map[domain.Topic]struct{}
	out    chan domain.Signal
	closed bool
}

func (s *memorySubscription) deliver(sig domain.Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if _, ok := s.topics[sig.Topic]; !ok {
		return
	}
	select {
	case s.out <- sig:
	default:
		logger.Log.Warn("signal dropped, subscriber too slow", zap.String("topic", string(sig.Topic)))
	}
}

func (s *memorySubscription) Signals() <-chan domain.Signal {
	return s.out
}

func (s *memorySubscription) Add(_ context.Context, topics ...domain.Topic) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range topics {
		s.topics[t] = struct{}{}
	}
	return nil
}

func (s *memorySubscription) Remove(_ context.Context, topics ...domain.Topic) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range topics {
		delete(s.topics, t)
	}
	return nil
}

func (s *memorySubscription) Close() error {
	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.out)
	}
	return nil
}
