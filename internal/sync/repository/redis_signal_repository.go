package repository

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"chat_sync_service/internal/sync/domain"
	"chat_sync_service/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const redisChannelPrefix = "sync:"

// RedisSignalBus definition redis pub/sub signal bus
type RedisSignalBus struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisSignalBus create RedisSignalBus
func NewRedisSignalBus(client *redis.Client) *RedisSignalBus {
	return &RedisSignalBus{client: client, now: time.Now}
}

func redisChannel(topic domain.Topic) string {
	return redisChannelPrefix + string(topic)
}

func redisChannels(topics []domain.Topic) []string {
	channels := make([]string, 0, len(topics))
	for _, t := range topics {
		channels = append(channels, redisChannel(t))
	}
	return channels
}

// Publish 每個 topic 發一個 signal, payload 只有 topic 與時間
func (r *RedisSignalBus) Publish(ctx context.Context, topics ...domain.Topic) error {
	pipe := r.client.Pipeline()
	for _, topic := range topics {
		data, err := json.Marshal(domain.Signal{Topic: topic, At: r.now()})
		if err != nil {
			return err
		}
		pipe.Publish(ctx, redisChannel(topic), data)
	}
	_, err := pipe.Exec(ctx)
	return fromStore(err, "publish signal")
}

// Subscribe 訂閱 topics, ctx 結束或 Close 時關閉
func (r *RedisSignalBus) Subscribe(ctx context.Context, topics ...domain.Topic) (Subscription, error) {
	ps := r.client.Subscribe(ctx, redisChannels(topics)...)
	// 等待 subscribe 確認
	if len(topics) > 0 {
		if _, err := ps.Receive(ctx); err != nil {
			ps.Close()
			return nil, fromStore(err, "subscribe signal")
		}
	}

	sub := &redisSubscription{
		ps:     ps,
		out:    make(chan domain.Signal, signalBuffer),
		closed: make(chan struct{}),
	}
	go sub.loop(ctx)
	return sub, nil
}

type redisSubscription struct {
	ps     *redis.PubSub
	out    chan domain.Signal
	closed chan struct{}
	once   sync.Once
}

func (s *redisSubscription) loop(ctx context.Context) {
	defer close(s.out)
	ch := s.ps.Channel()
	for {
		select {
		case m, ok := <-ch:
			if !ok {
				return
			}
			var sig domain.Signal
			if err := json.Unmarshal([]byte(m.Payload), &sig); err != nil {
				logger.Log.Warn("invalid signal payload", zap.String("channel", m.Channel), zap.Error(err))
				continue
			}
			select {
			case s.out <- sig:
			default:
				logger.Log.Warn("signal dropped, subscriber too slow", zap.String("topic", string(sig.Topic)))
			}
		case <-ctx.Done():
			s.Close()
			return
		case <-s.closed:
			return
		}
	}
}

func (s *redisSubscription) Signals() <-chan domain.Signal {
	return s.out
}

func (s *redisSubscription) Add(ctx context.Context, topics ...domain.Topic) error {
	if len(topics) == 0 {
		return nil
	}
	return fromStore(s.ps.Subscribe(ctx, redisChannels(topics)...), "add subscription")
}

func (s *redisSubscription) Remove(ctx context.Context, topics ...domain.Topic) error {
	if len(topics) == 0 {
		return nil
	}
	return fromStore(s.ps.Unsubscribe(ctx, redisChannels(topics)...), "remove subscription")
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.closed)
		err = s.ps.Close()
	})
	return err
}
