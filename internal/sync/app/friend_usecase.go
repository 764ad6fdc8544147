package app

import (
	"context"
	"time"

	"chat_sync_service/internal/sync/domain"
	"chat_sync_service/internal/sync/repository"
	errprocess "chat_sync_service/pkg/err"

	"github.com/google/uuid"
)

// FriendUseCase FriendGraph
type FriendUseCase struct {
	friends  repository.FriendRepository
	profiles ProfileLookup
	chats    DirectChats
	presence OnlineChecker
	notify   notifier
	now      func() time.Time
	newID    func() string
}

// NewFriendUseCase create FriendUseCase
func NewFriendUseCase(
	friends repository.FriendRepository,
	profiles ProfileLookup,
	chats DirectChats,
	presence OnlineChecker,
	pub repository.SignalPublisher,
	events repository.EventLog,
) *FriendUseCase {
	return &FriendUseCase{
		friends:  friends,
		profiles: profiles,
		chats:    chats,
		presence: presence,
		notify:   notifier{pub: pub, events: events},
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Request 送出好友邀請
// 已是好友回 ErrAlreadyFriends, 任一方向已有 pending 回 ErrRequestPending
func (uc *FriendUseCase) Request(ctx context.Context, senderID, receiverID string) (*domain.FriendRequest, error) {
	if senderID == receiverID {
		return nil, domain.ErrSelfTarget
	}
	if err := uc.profiles.Exists(ctx, senderID, receiverID); err != nil {
		return nil, err
	}

	friends, err := uc.friends.AreFriends(ctx, senderID, receiverID)
	if err != nil {
		return nil, err
	}
	if friends {
		return nil, domain.ErrAlreadyFriends
	}

	reverse, err := uc.friends.FindPending(ctx, receiverID, senderID)
	if err != nil {
		return nil, err
	}
	if reverse != nil {
		return nil, domain.ErrRequestPending
	}

	req := &domain.FriendRequest{
		ID:         uc.newID(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     domain.RequestPending,
		CreatedAt:  uc.now(),
		UpdatedAt:  uc.now(),
	}
	if err := uc.friends.CreateRequest(ctx, req); err != nil {
		return nil, err
	}

	uc.notify.signal(ctx, domain.FriendRequestsTopic(senderID), domain.FriendRequestsTopic(receiverID))
	return req, nil
}

// Accept 建立雙向好友並確保 direct chat 存在, 重複呼叫回傳同一個 chat
func (uc *FriendUseCase) Accept(ctx context.Context, requestID, actor string) (*domain.Chat, error) {
	req, err := uc.friends.FindRequest(ctx, requestID, true)
	if err != nil {
		return nil, err
	}
	if req.ReceiverID != actor {
		return nil, domain.ErrNotReceiver
	}

	if err := errprocess.Retry(ctx, func() error {
		_, err := uc.friends.AcceptRequest(ctx, requestID, uc.now())
		return err
	}); err != nil {
		return nil, err
	}

	chat, err := uc.chats.GetOrCreateDirect(ctx, req.SenderID, req.ReceiverID)
	if err != nil {
		// edge 已建立, 重試 Accept 會補建 chat
		kind := errprocess.KindOf(err)
		if kind == nil {
			kind = errprocess.ErrTransient
		}
		return nil, errprocess.Set(kind, "create direct chat after accept "+requestID+": "+err.Error())
	}

	uc.notify.signal(ctx,
		domain.FriendRequestsTopic(req.SenderID), domain.FriendRequestsTopic(req.ReceiverID),
		domain.FriendsTopic(req.SenderID), domain.FriendsTopic(req.ReceiverID),
	)
	uc.notify.event(ctx, domain.SyncEvent{Type: domain.EventFriendAccepted, ChatID: chat.ID, ActorID: actor, SubjectID: req.SenderID, At: uc.now()})
	return chat, nil
}

// Reject 只刪除 request, 之後可以重新送出
func (uc *FriendUseCase) Reject(ctx context.Context, requestID, actor string) error {
	req, err := uc.friends.FindRequest(ctx, requestID, true)
	if err != nil {
		return err
	}
	if req.ReceiverID != actor {
		return domain.ErrNotReceiver
	}
	if err := errprocess.Retry(ctx, func() error {
		_, err := uc.friends.RejectRequest(ctx, requestID, uc.now())
		return err
	}); err != nil {
		return err
	}

	uc.notify.signal(ctx, domain.FriendRequestsTopic(req.SenderID), domain.FriendRequestsTopic(req.ReceiverID))
	return nil
}

// ListPending 收到與送出的 pending request
func (uc *FriendUseCase) ListPending(ctx context.Context, userID string) ([]domain.FriendRequest, error) {
	return uc.friends.ListPending(ctx, userID)
}

// FriendIDs friend id list
func (uc *FriendUseCase) FriendIDs(ctx context.Context, userID string) ([]string, error) {
	return uc.friends.ListFriendIDs(ctx, userID)
}

// ListFriends 好友與即時 profile / online 狀態
func (uc *FriendUseCase) ListFriends(ctx context.Context, userID string) ([]domain.FriendView, error) {
	ids, err := uc.friends.ListFriendIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []domain.FriendView{}, nil
	}

	profiles, err := uc.profiles.ResolveMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	online, err := uc.presence.OnlineSet(ctx, ids)
	if err != nil {
		return nil, err
	}

	views := make([]domain.FriendView, 0, len(ids))
	for _, id := range ids {
		views = append(views, domain.FriendView{FriendID: id, Profile: profiles[id], IsOnline: online[id]})
	}
	return views, nil
}

// Unfriend 刪除兩個方向的 edge, 不是好友時不做事
func (uc *FriendUseCase) Unfriend(ctx context.Context, userID, friendID string) error {
	if userID == friendID {
		return domain.ErrSelfTarget
	}
	var n int64
	if err := errprocess.Retry(ctx, func() error {
		var err error
		n, err = uc.friends.DeleteEdges(ctx, userID, friendID)
		return err
	}); err != nil {
		return err
	}
	if n == 0 {
		return nil
	}

	uc.notify.signal(ctx, domain.FriendsTopic(userID), domain.FriendsTopic(friendID))
	uc.notify.event(ctx, domain.SyncEvent{Type: domain.EventFriendRemoved, ActorID: userID, SubjectID: friendID, At: uc.now()})
	return nil
}
