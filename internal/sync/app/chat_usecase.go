package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"chat_sync_service/internal/sync/domain"
	"chat_sync_service/internal/sync/repository"
	"chat_sync_service/pkg"
	errprocess "chat_sync_service/pkg/err"
	"chat_sync_service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DirectChats accept friend request 時建立 direct chat
type DirectChats interface {
	GetOrCreateDirect(ctx context.Context, userA, userB string) (*domain.Chat, error)
}

// ChatUseCase ChatRegistry
type ChatUseCase struct {
	chats    repository.ChatRepository
	profiles ProfileLookup
	notify   notifier
	now      func() time.Time
	newID    func() string
}

// NewChatUseCase create ChatUseCase
func NewChatUseCase(
	chats repository.ChatRepository,
	profiles ProfileLookup,
	pub repository.SignalPublisher,
	events repository.EventLog,
) *ChatUseCase {
	return &ChatUseCase{
		chats:    chats,
		profiles: profiles,
		notify:   notifier{pub: pub, events: events},
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// GetOrCreateDirect 每一對 user 只會有一個 direct chat
// 先查詢, 沒有再 insert; 同時建立時 unique index 擋下較慢的一方, 改讀勝出的那筆
func (uc *ChatUseCase) GetOrCreateDirect(ctx context.Context, userA, userB string) (*domain.Chat, error) {
	if userA == "" || userB == "" {
		return nil, errprocess.Wrap(errprocess.ErrInvalidArgument, "missing user")
	}
	if userA == userB {
		return nil, domain.ErrSelfTarget
	}
	if err := uc.profiles.Exists(ctx, userA, userB); err != nil {
		return nil, err
	}

	key := domain.DirectKey(userA, userB)
	var chat *domain.Chat
	created := false
	err := errprocess.Retry(ctx, func() error {
		existing, err := uc.chats.FindDirect(ctx, key)
		if err == nil {
			chat = existing
			return nil
		}
		if !errors.Is(err, errprocess.ErrNotFound) {
			return err
		}

		pair := strings.Split(key, "|")
		candidate := &domain.Chat{
			ID:        uc.newID(),
			Type:      domain.ChatTypeDirect,
			DirectKey: &key,
			CreatedAt: uc.now(),
			UpdatedAt: uc.now(),
		}
		err = uc.chats.CreateChat(ctx, candidate, pair)
		switch {
		case err == nil:
			chat, created = candidate, true
			return nil
		case errors.Is(err, errprocess.ErrDuplicate):
			logger.Log.Debug("direct chat race, reading winner", zap.String("key", key))
			chat, err = uc.chats.FindDirect(ctx, key)
			return err
		default:
			return err
		}
	})
	if err != nil {
		return nil, err
	}

	if created {
		uc.notify.signal(ctx, userTopics(domain.ChatsTopic, chat.Participants...)...)
		uc.notify.event(ctx, domain.SyncEvent{Type: domain.EventDirectCreated, ChatID: chat.ID, ActorID: userA, SubjectID: userB, At: chat.CreatedAt})
	}
	return chat, nil
}

// CreateGroup 成員去重後 (含 creator) 至少兩人
func (uc *ChatUseCase) CreateGroup(ctx context.Context, name, creatorID string, memberIDs []string) (*domain.Chat, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.ErrGroupNameRequired
	}
	members := pkg.Unique(append([]string{creatorID}, memberIDs...))
	if len(members) < domain.MinParticipants {
		return nil, domain.ErrInvalidMembership
	}
	if err := uc.profiles.Exists(ctx, members...); err != nil {
		return nil, err
	}

	chat := &domain.Chat{
		ID:        uc.newID(),
		Type:      domain.ChatTypeGroup,
		Name:      &name,
		CreatedAt: uc.now(),
		UpdatedAt: uc.now(),
	}
	if err := uc.chats.CreateChat(ctx, chat, members); err != nil {
		return nil, err
	}

	uc.notify.signal(ctx, userTopics(domain.ChatsTopic, members...)...)
	uc.notify.event(ctx, domain.SyncEvent{Type: domain.EventGroupCreated, ChatID: chat.ID, ActorID: creatorID, At: chat.CreatedAt})
	return chat, nil
}

// ListChats 依最後活動時間新到舊
func (uc *ChatUseCase) ListChats(ctx context.Context, userID string) ([]domain.Chat, error) {
	return uc.chats.ListForUser(ctx, userID)
}

// GetChat actor 必須是成員
func (uc *ChatUseCase) GetChat(ctx context.Context, chatID, actor string) (*domain.Chat, error) {
	chat, err := uc.chats.FindByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.HasParticipant(actor) {
		return nil, domain.ErrNotParticipant
	}
	return chat, nil
}

// AddMember 只有群組成員可以加人
func (uc *ChatUseCase) AddMember(ctx context.Context, chatID, actor, userID string) (*domain.Chat, error) {
	chat, err := uc.GetChat(ctx, chatID, actor)
	if err != nil {
		return nil, err
	}
	if chat.Type != domain.ChatTypeGroup {
		return nil, domain.ErrNotGroupChat
	}
	if chat.HasParticipant(userID) {
		return chat, nil
	}
	if err := uc.profiles.Exists(ctx, userID); err != nil {
		return nil, err
	}
	if err := uc.chats.AddMember(ctx, chatID, userID, uc.now()); err != nil {
		return nil, err
	}

	chat.Participants = append(chat.Participants, userID)
	uc.notify.signal(ctx, userTopics(domain.ChatsTopic, chat.Participants...)...)
	uc.notify.event(ctx, domain.SyncEvent{Type: domain.EventMemberAdded, ChatID: chatID, ActorID: actor, SubjectID: userID, At: uc.now()})
	return chat, nil
}

// RemoveMember actor 可以移除自己 (離開) 或其他成員, 群組不得少於兩人
// userID 已不在群組時視為成功, 不再發出通知
func (uc *ChatUseCase) RemoveMember(ctx context.Context, chatID, actor, userID string) (*domain.Chat, error) {
	chat, err := uc.chats.FindByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if chat.Type != domain.ChatTypeGroup {
		return nil, domain.ErrNotGroupChat
	}
	if !chat.HasParticipant(userID) {
		// 自己離開後重試, actor 已不是成員
		if actor == userID || chat.HasParticipant(actor) {
			return chat, nil
		}
		return nil, domain.ErrNotParticipant
	}
	if !chat.HasParticipant(actor) {
		return nil, domain.ErrNotParticipant
	}

	removed, err := uc.chats.RemoveMember(ctx, chatID, userID, domain.MinParticipants)
	if err != nil {
		return nil, err
	}
	members := chat.Participants
	chat.Participants = others(chat.Participants, userID)
	if !removed {
		return chat, nil
	}

	// 被移除的人也要收到通知
	uc.notify.signal(ctx, userTopics(domain.ChatsTopic, members...)...)
	uc.notify.event(ctx, domain.SyncEvent{Type: domain.EventMemberRemoved, ChatID: chatID, ActorID: actor, SubjectID: userID, At: uc.now()})
	return chat, nil
}
