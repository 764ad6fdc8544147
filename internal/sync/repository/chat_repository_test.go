package repository

import (
	"context"
	"testing"
	"time"

	"chat_sync_service/internal/sync/domain"
	errprocess "chat_sync_service/pkg/err"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatRepository_DirectKeyUnique(t *testing.T) {
	ctx := context.Background()
	repo := NewChatRepository(setupTestDB(t))

	key := domain.DirectKey("a", "b")
	first := &domain.Chat{ID: uuid.NewString(), Type: domain.ChatTypeDirect, DirectKey: &key, CreatedAt: baseTime}
	require.NoError(t, repo.CreateChat(ctx, first, []string{"a", "b"}))

	second := &domain.Chat{ID: uuid.NewString(), Type: domain.ChatTypeDirect, DirectKey: &key, CreatedAt: baseTime}
	err := repo.CreateChat(ctx, second, []string{"b", "a"})
	assert.ErrorIs(t, err, errprocess.ErrDuplicate)

	found, err := repo.FindDirect(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)
	assert.ElementsMatch(t, []string{"a", "b"}, found.Participants)

	// 失敗的 transaction 不應留下成員
	_, err = repo.FindByID(ctx, second.ID)
	assert.ErrorIs(t, err, domain.ErrChatNotFound)
}

func TestChatRepository_ListForUserOrder(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewChatRepository(db)

	older := newGroup(t, repo, "a", "b")
	newer := newGroup(t, repo, "a", "c")
	other := newGroup(t, repo, "b", "c")

	// older 有較新的訊息, 應排第一
	msg := &domain.Message{ID: 1, ChatID: older.ID, SenderID: "b", Content: "hi", CreatedAt: baseTime.Add(time.Hour)}
	require.NoError(t, repo.UpdateSummary(ctx, msg))

	chats, err := repo.ListForUser(ctx, "a")
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, older.ID, chats[0].ID)
	assert.Equal(t, newer.ID, chats[1].ID)
	assert.Equal(t, "hi", *chats[0].LastMessage)
	assert.NotContains(t, []string{chats[0].ID, chats[1].ID}, other.ID)
}

func TestChatRepository_UpdateSummaryMonotonic(t *testing.T) {
	ctx := context.Background()
	repo := NewChatRepository(setupTestDB(t))
	chat := newGroup(t, repo, "a", "b")

	require.NoError(t, repo.UpdateSummary(ctx, &domain.Message{ID: 5, ChatID: chat.ID, SenderID: "a", Content: "new", CreatedAt: baseTime}))
	require.NoError(t, repo.UpdateSummary(ctx, &domain.Message{ID: 3, ChatID: chat.ID, SenderID: "b", Content: "old", CreatedAt: baseTime}))

	found, err := repo.FindByID(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", *found.LastMessage)

	require.NoError(t, repo.ClearSummary(ctx, chat.ID))
	found, err = repo.FindByID(ctx, chat.ID)
	require.NoError(t, err)
	assert.Nil(t, found.LastMessage)
	assert.Nil(t, found.LastMessageTime)
}

func TestChatRepository_Membership(t *testing.T) {
	ctx := context.Background()
	repo := NewChatRepository(setupTestDB(t))
	chat := newGroup(t, repo, "a", "b", "c")

	t.Run("重複加入不報錯", func(t *testing.T) {
		require.NoError(t, repo.AddMember(ctx, chat.ID, "b", baseTime))
		ids, err := repo.MemberIDs(ctx, chat.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, ids)
	})

	t.Run("移除成員", func(t *testing.T) {
		removed, err := repo.RemoveMember(ctx, chat.ID, "b", domain.MinParticipants)
		require.NoError(t, err)
		assert.True(t, removed)
		ok, err := repo.IsMember(ctx, chat.ID, "b")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("不能少於兩人", func(t *testing.T) {
		_, err := repo.RemoveMember(ctx, chat.ID, "c", domain.MinParticipants)
		assert.ErrorIs(t, err, domain.ErrInvalidMembership)
		ids, _ := repo.MemberIDs(ctx, chat.ID)
		assert.Equal(t, []string{"a", "c"}, ids)
	})

	t.Run("重複移除不報錯", func(t *testing.T) {
		removed, err := repo.RemoveMember(ctx, chat.ID, "b", domain.MinParticipants)
		require.NoError(t, err)
		assert.False(t, removed)
		ids, _ := repo.MemberIDs(ctx, chat.ID)
		assert.Equal(t, []string{"a", "c"}, ids)
	})

	t.Run("chat 不存在", func(t *testing.T) {
		_, err := repo.RemoveMember(ctx, "missing", "a", domain.MinParticipants)
		assert.ErrorIs(t, err, domain.ErrChatNotFound)
	})
}
