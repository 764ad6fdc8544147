package repository

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"chat_sync_service/internal/sync/domain"
	"chat_sync_service/pkg/logger"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// SignalExchange rabbitmq topic exchange name
const SignalExchange = "sync.invalidation"

// RabbitSignalBus definition rabbitmq signal bus
// 每個訂閱使用自己的 channel 與 exclusive queue
type RabbitSignalBus struct {
	conn *amqp.Connection
	pub  *amqp.Channel
	mu   sync.Mutex
	now  func() time.Time
}

// NewRabbitSignalBus create RabbitSignalBus and declare exchange
func NewRabbitSignalBus(conn *amqp.Connection, pub *amqp.Channel) (*RabbitSignalBus, error) {
	if err := pub.ExchangeDeclare(SignalExchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return nil, err
	}
	return &RabbitSignalBus{conn: conn, pub: pub, now: time.Now}, nil
}

// routingKey "messages:chat:<id>" -> "messages.chat.<id>"
func routingKey(topic domain.Topic) string {
	return strings.ReplaceAll(string(topic), ":", ".")
}

func (r *RabbitSignalBus) Publish(ctx context.Context, topics ...domain.Topic) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, topic := range topics {
		if err := ctx.Err(); err != nil {
			return fromStore(err, "publish signal")
		}
		body, err := json.Marshal(domain.Signal{Topic: topic, At: r.now()})
		if err != nil {
			return err
		}
		err = r.pub.Publish(SignalExchange, routingKey(topic), false, false, amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		})
		if err != nil {
			return fromStore(err, "publish signal")
		}
	}
	return nil
}

func (r *RabbitSignalBus) Subscribe(ctx context.Context, topics ...domain.Topic) (Subscription, error) {
	ch, err := r.conn.Channel()
	if err != nil {
		return nil, fromStore(err, "open subscription channel")
	}

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		ch.Close()
		return nil, fromStore(err, "declare subscription queue")
	}

	sub := &rabbitSubscription{
		ch:     ch,
		queue:  q.Name,
		out:    make(chan domain.Signal, signalBuffer),
		closed: make(chan struct{}),
	}
	if err := sub.Add(ctx, topics...); err != nil {
		ch.Close()
		return nil, err
	}

	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, fromStore(err, "consume subscription queue")
	}
	go sub.loop(ctx, deliveries)
	return sub, nil
}

type rabbitSubscription struct {
	ch     *amqp.Channel
	queue  string
	out    chan domain.Signal
	closed chan struct{}
	once   sync.Once
}

func (s *rabbitSubscription) loop(ctx context.Context, deliveries <-chan amqp.Delivery) {
	defer close(s.out)
	for {
		select {
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			var sig domain.Signal
			if err := json.Unmarshal(d.Body, &sig); err != nil {
				logger.Log.Warn("invalid signal payload", zap.String("routing_key", d.RoutingKey), zap.Error(err))
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

func (s *rabbitSubscription) Signals() <-chan domain.Signal {
	return s.out
}

func (s *rabbitSubscription) Add(_ context.Context, topics ...domain.Topic) error {
	for _, t := range topics {
		if err := s.ch.QueueBind(s.queue, routingKey(t), SignalExchange, false, nil); err != nil {
			return fromStore(err, "bind topic")
		}
	}
	return nil
}

func (s *rabbitSubscription) Remove(_ context.Context, topics ...domain.Topic) error {
	for _, t := range topics {
		if err := s.ch.QueueUnbind(s.queue, routingKey(t), SignalExchange, nil); err != nil {
			return fromStore(err, "unbind topic")
		}
	}
	return nil
}

func (s *rabbitSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.closed)
		err = s.ch.Close()
	})
	return err
}
