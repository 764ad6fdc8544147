package app

import (
	"context"

	"chat_sync_service/internal/sync/bridge"
	"chat_sync_service/internal/sync/domain"
)

// sessionFetcher 讓 bridge 透過 use case 重新查詢
type sessionFetcher struct {
	chats    *ChatUseCase
	unread   *UnreadUseCase
	friends  *FriendUseCase
	presence *PresenceUseCase
	typing   *TypingUseCase
}

var _ bridge.Fetcher = (*sessionFetcher)(nil)

func (f *sessionFetcher) Chats(ctx context.Context, userID string) ([]domain.Chat, error) {
	return f.chats.ListChats(ctx, userID)
}

func (f *sessionFetcher) UnreadCounts(ctx context.Context, userID string) (map[string]int, error) {
	return f.unread.ListForUser(ctx, userID)
}

func (f *sessionFetcher) FriendIDs(ctx context.Context, userID string) ([]string, error) {
	return f.friends.FriendIDs(ctx, userID)
}

func (f *sessionFetcher) OnlineSet(ctx context.Context, userIDs []string) (map[string]bool, error) {
	return f.presence.OnlineSet(ctx, userIDs)
}

func (f *sessionFetcher) Typing(ctx context.Context, chatID, excludingUserID string) ([]string, error) {
	return f.typing.ListTyping(ctx, chatID, excludingUserID)
}

func (f *sessionFetcher) ResetUnread(ctx context.Context, chatID, userID string) error {
	return f.unread.Reset(ctx, chatID, userID, userID)
}
