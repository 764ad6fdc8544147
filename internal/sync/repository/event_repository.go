package repository

import (
	"context"
	"encoding/json"

	"chat_sync_service/internal/sync/domain"

	"github.com/segmentio/kafka-go"
)

// EventLog append-only domain event stream
type EventLog interface {
	Append(ctx context.Context, events ...domain.SyncEvent) error
}

// KafkaWriter kafka.Writer 需要的部分, 方便測試替換
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaEventLog struct {
	writer KafkaWriter
}

// NewKafkaEventLog create EventLog backed by kafka
func NewKafkaEventLog(w KafkaWriter) EventLog {
	return &kafkaEventLog{writer: w}
}

func (k *kafkaEventLog) Append(ctx context.Context, events ...domain.SyncEvent) error {
	if len(events) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		value, err := json.Marshal(e)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(e.Key()),
			Value: value,
			Time:  e.At,
			Headers: []kafka.Header{
				{Key: "type", Value: []byte(e.Type)},
			},
		})
	}
	return fromStore(k.writer.WriteMessages(ctx, msgs...), "append events")
}
