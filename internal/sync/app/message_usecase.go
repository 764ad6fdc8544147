package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"chat_sync_service/internal/sync/domain"
	"chat_sync_service/internal/sync/repository"
	errprocess "chat_sync_service/pkg/err"
	"chat_sync_service/pkg/logger"

	"go.uber.org/zap"
)

// UnreadIncrementer 訊息送出後增加其他成員的未讀數
type UnreadIncrementer interface {
	IncrementMany(ctx context.Context, chatID string, userIDs []string) error
}

// MessageUseCase MessageStream
type MessageUseCase struct {
	chats        repository.ChatRepository
	messages     repository.MessageRepository
	profiles     ProfileLookup
	unread       UnreadIncrementer
	notify       notifier
	historyLimit int
	now          func() time.Time
}

// NewMessageUseCase create MessageUseCase
func NewMessageUseCase(
	chats repository.ChatRepository,
	messages repository.MessageRepository,
	profiles ProfileLookup,
	unread UnreadIncrementer,
	pub repository.SignalPublisher,
	events repository.EventLog,
	historyLimit int,
) *MessageUseCase {
	return &MessageUseCase{
		chats:        chats,
		messages:     messages,
		profiles:     profiles,
		unread:       unread,
		notify:       notifier{pub: pub, events: events},
		historyLimit: historyLimit,
		now:          time.Now,
	}
}

// Send 送出訊息
func (uc *MessageUseCase) Send(ctx context.Context, chatID, senderID, content string) (*domain.Message, error) {
	return uc.SendIdempotent(ctx, chatID, senderID, content, "")
}

// SendIdempotent 帶 clientKey 時重送只會留下一筆訊息
//
// 步驟: 寫入訊息 -> 更新 chat summary -> 其他成員未讀 +1
// 三步不在同一個 transaction, 中途失敗最多造成 summary 過期或未讀少算, 下一則訊息或開啟 chat 時修正
func (uc *MessageUseCase) SendIdempotent(ctx context.Context, chatID, senderID, content, clientKey string) (*domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, domain.ErrEmptyContent
	}

	chat, err := uc.chats.FindByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.HasParticipant(senderID) {
		return nil, domain.ErrNotParticipant
	}

	msg := &domain.Message{
		ChatID:    chatID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: uc.now(),
	}
	if sender, err := uc.profiles.Resolve(ctx, senderID); err == nil {
		msg.SenderName = sender.DisplayName()
	} else {
		logger.Log.Warn("resolve sender name", zap.String("sender", senderID), zap.Error(err))
	}
	if clientKey != "" {
		msg.ClientKey = &clientKey
	}

	replay := false
	if clientKey != "" {
		err = errprocess.Retry(ctx, func() error {
			err := uc.messages.Create(ctx, msg)
			if errors.Is(err, errprocess.ErrDuplicate) {
				existing, findErr := uc.messages.FindByClientKey(ctx, chatID, clientKey)
				if findErr != nil {
					return findErr
				}
				msg, replay = existing, true
				return nil
			}
			return err
		})
	} else {
		// 沒有 clientKey 時重試可能產生重複訊息
		err = uc.messages.Create(ctx, msg)
	}
	if err != nil {
		return nil, err
	}

	if err := errprocess.Retry(ctx, func() error { return uc.chats.UpdateSummary(ctx, msg) }); err != nil {
		logger.Log.Error("update chat summary", zap.String("chat", chatID), zap.Uint64("message", msg.ID), zap.Error(err))
	}

	recipients := others(chat.Participants, senderID)
	if !replay {
		// 不重試, 避免 timeout 但已寫入時多算
		if err := uc.unread.IncrementMany(ctx, chatID, recipients); err != nil {
			logger.Log.Error("increment unread", zap.String("chat", chatID), zap.Error(err))
		}
	}

	topics := append([]domain.Topic{domain.MessagesTopic(chatID)}, userTopics(domain.ChatsTopic, chat.Participants...)...)
	uc.notify.signal(ctx, topics...)
	if !replay {
		uc.notify.event(ctx, domain.SyncEvent{Type: domain.EventMessageSent, ChatID: chatID, ActorID: senderID, MessageID: msg.ID, At: msg.CreatedAt})
	}
	return msg, nil
}

// ListRecent 最新 limit 筆, 由舊到新
func (uc *MessageUseCase) ListRecent(ctx context.Context, chatID, actor string, limit int) ([]domain.Message, error) {
	if err := uc.requireMember(ctx, chatID, actor); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = uc.historyLimit
	}
	return uc.messages.ListRecent(ctx, chatID, limit)
}

// Clear 刪除所有訊息並清空 summary, 未讀數不變
func (uc *MessageUseCase) Clear(ctx context.Context, chatID, actor string) (int64, error) {
	chat, err := uc.chats.FindByID(ctx, chatID)
	if err != nil {
		return 0, err
	}
	if !chat.HasParticipant(actor) {
		return 0, domain.ErrNotParticipant
	}

	var deleted int64
	if err := errprocess.Retry(ctx, func() error {
		n, err := uc.messages.DeleteByChat(ctx, chatID)
		deleted += n
		return err
	}); err != nil {
		return 0, err
	}
	if err := errprocess.Retry(ctx, func() error { return uc.chats.ClearSummary(ctx, chatID) }); err != nil {
		return deleted, err
	}

	topics := append([]domain.Topic{domain.MessagesTopic(chatID)}, userTopics(domain.ChatsTopic, chat.Participants...)...)
	uc.notify.signal(ctx, topics...)
	uc.notify.event(ctx, domain.SyncEvent{Type: domain.EventChatCleared, ChatID: chatID, ActorID: actor, At: uc.now()})
	return deleted, nil
}

func (uc *MessageUseCase) requireMember(ctx context.Context, chatID, userID string) error {
	ok, err := uc.chats.IsMember(ctx, chatID, userID)
	if err != nil {
		return err
	}
	if !ok {
		if _, err := uc.chats.FindByID(ctx, chatID); err != nil {
			return err
		}
		return domain.ErrNotParticipant
	}
	return nil
}
