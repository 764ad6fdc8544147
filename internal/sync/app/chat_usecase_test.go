package app

import (
	"context"
	"testing"

	"chat_sync_service/internal/sync/domain"
	errprocess "chat_sync_service/pkg/err"
	"chat_sync_service/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newChatUC(chats *MockChatRepository, profiles *MockProfileLookup, pub *MockSignalPublisher, events *MockEventLog) *ChatUseCase {
	logger.Log = logger.SetNewNop()
	uc := NewChatUseCase(chats, profiles, publisher(pub), eventLog(events))
	uc.now = fixedNow
	uc.newID = func() string { return "chat-1" }
	return uc
}

func TestChatUseCase_GetOrCreateDirect(t *testing.T) {
	ctx := context.Background()
	key := domain.DirectKey("b", "a")

	t.Run("不能跟自己", func(t *testing.T) {
		uc := newChatUC(new(MockChatRepository), new(MockProfileLookup), nil, nil)
		_, err := uc.GetOrCreateDirect(ctx, "a", "a")
		assert.ErrorIs(t, err, domain.ErrSelfTarget)
	})

	t.Run("user 不存在", func(t *testing.T) {
		profiles := new(MockProfileLookup)
		profiles.On("Exists", ctx, []string{"a", "ghost"}).Return(domain.ErrProfileNotFound)
		uc := newChatUC(new(MockChatRepository), profiles, nil, nil)
		_, err := uc.GetOrCreateDirect(ctx, "a", "ghost")
		assert.ErrorIs(t, err, errprocess.ErrNotFound)
	})

	t.Run("已存在直接回傳, 不發 signal", func(t *testing.T) {
		chats := new(MockChatRepository)
		profiles := new(MockProfileLookup)
		pub := new(MockSignalPublisher)
		existing := &domain.Chat{ID: "chat-0", Type: domain.ChatTypeDirect, Participants: []string{"a", "b"}}
		profiles.On("Exists", ctx, []string{"b", "a"}).Return(nil)
		chats.On("FindDirect", ctx, key).Return(existing, nil)

		uc := newChatUC(chats, profiles, pub, nil)
		chat, err := uc.GetOrCreateDirect(ctx, "b", "a")
		require.NoError(t, err)
		assert.Equal(t, "chat-0", chat.ID)
		chats.AssertNotCalled(t, "CreateChat", mock.Anything, mock.Anything, mock.Anything)
		pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	})

	t.Run("建立新的 chat", func(t *testing.T) {
		chats := new(MockChatRepository)
		profiles := new(MockProfileLookup)
		pub := new(MockSignalPublisher)
		events := new(MockEventLog)
		profiles.On("Exists", ctx, []string{"b", "a"}).Return(nil)
		chats.On("FindDirect", ctx, key).Return(nil, domain.ErrChatNotFound)
		chats.On("CreateChat", ctx, mock.MatchedBy(func(c *domain.Chat) bool {
			return c.ID == "chat-1" && c.Type == domain.ChatTypeDirect && *c.DirectKey == key
		}), []string{"a", "b"}).Return(nil)
		pub.On("Publish", ctx, []domain.Topic{domain.ChatsTopic("a"), domain.ChatsTopic("b")}).Return(nil)
		events.On("Append", ctx, mock.MatchedBy(func(es []domain.SyncEvent) bool {
			return len(es) == 1 && es[0].Type == domain.EventDirectCreated && es[0].ChatID == "chat-1"
		})).Return(nil)

		uc := newChatUC(chats, profiles, pub, events)
		chat, err := uc.GetOrCreateDirect(ctx, "b", "a")
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, chat.Participants)
		chats.AssertExpectations(t)
		pub.AssertExpectations(t)
		events.AssertExpectations(t)
	})

	t.Run("同時建立時讀取勝出的一筆", func(t *testing.T) {
		chats := new(MockChatRepository)
		profiles := new(MockProfileLookup)
		pub := new(MockSignalPublisher)
		winner := &domain.Chat{ID: "chat-0", Type: domain.ChatTypeDirect, Participants: []string{"a", "b"}}
		profiles.On("Exists", ctx, []string{"a", "b"}).Return(nil)
		chats.On("FindDirect", ctx, key).Return(nil, domain.ErrChatNotFound).Once()
		chats.On("CreateChat", ctx, mock.Anything, []string{"a", "b"}).Return(errprocess.Wrap(errprocess.ErrDuplicate, "create chat"))
		chats.On("FindDirect", ctx, key).Return(winner, nil).Once()

		uc := newChatUC(chats, profiles, pub, nil)
		chat, err := uc.GetOrCreateDirect(ctx, "a", "b")
		require.NoError(t, err)
		assert.Equal(t, "chat-0", chat.ID)
		pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	})
}

func TestChatUseCase_CreateGroup(t *testing.T) {
	ctx := context.Background()

	t.Run("沒有名稱", func(t *testing.T) {
		uc := newChatUC(new(MockChatRepository), new(MockProfileLookup), nil, nil)
		_, err := uc.CreateGroup(ctx, " ", "a", []string{"b"})
		assert.ErrorIs(t, err, domain.ErrGroupNameRequired)
	})

	t.Run("去重後少於兩人", func(t *testing.T) {
		uc := newChatUC(new(MockChatRepository), new(MockProfileLookup), nil, nil)
		_, err := uc.CreateGroup(ctx, "g", "a", []string{"a", "a"})
		assert.ErrorIs(t, err, domain.ErrInvalidMembership)
	})

	t.Run("creator 自動加入", func(t *testing.T) {
		chats := new(MockChatRepository)
		profiles := new(MockProfileLookup)
		pub := new(MockSignalPublisher)
		events := new(MockEventLog)
		profiles.On("Exists", ctx, []string{"a", "b", "c"}).Return(nil)
		chats.On("CreateChat", ctx, mock.Anything, []string{"a", "b", "c"}).Return(nil)
		pub.On("Publish", ctx, []domain.Topic{domain.ChatsTopic("a"), domain.ChatsTopic("b"), domain.ChatsTopic("c")}).Return(nil)
		events.On("Append", ctx, mock.Anything).Return(nil)

		uc := newChatUC(chats, profiles, pub, events)
		chat, err := uc.CreateGroup(ctx, "team", "a", []string{"b", "c", "b"})
		require.NoError(t, err)
		assert.Equal(t, domain.ChatTypeGroup, chat.Type)
		assert.Equal(t, "team", *chat.Name)
		pub.AssertExpectations(t)
	})
}

func TestChatUseCase_Membership(t *testing.T) {
	ctx := context.Background()
	name := "g"
	group := func() *domain.Chat {
		return &domain.Chat{ID: "g1", Type: domain.ChatTypeGroup, Name: &name, Participants: []string{"a", "b", "c"}}
	}

	t.Run("非成員不能讀取", func(t *testing.T) {
		chats := new(MockChatRepository)
		chats.On("FindByID", ctx, "g1").Return(group(), nil)
		uc := newChatUC(chats, new(MockProfileLookup), nil, nil)
		_, err := uc.GetChat(ctx, "g1", "x")
		assert.ErrorIs(t, err, domain.ErrNotParticipant)
	})

	t.Run("direct chat 不能加人", func(t *testing.T) {
		chats := new(MockChatRepository)
		chats.On("FindByID", ctx, "d1").Return(&domain.Chat{ID: "d1", Type: domain.ChatTypeDirect, Participants: []string{"a", "b"}}, nil)
		uc := newChatUC(chats, new(MockProfileLookup), nil, nil)
		_, err := uc.AddMember(ctx, "d1", "a", "c")
		assert.ErrorIs(t, err, domain.ErrNotGroupChat)
		_, err = uc.RemoveMember(ctx, "d1", "a", "b")
		assert.ErrorIs(t, err, domain.ErrNotGroupChat)
	})

	t.Run("已是成員不做事", func(t *testing.T) {
		chats := new(MockChatRepository)
		chats.On("FindByID", ctx, "g1").Return(group(), nil)
		uc := newChatUC(chats, new(MockProfileLookup), nil, nil)
		chat, err := uc.AddMember(ctx, "g1", "a", "b")
		require.NoError(t, err)
		assert.Len(t, chat.Participants, 3)
		chats.AssertNotCalled(t, "AddMember", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("加入成員通知所有人", func(t *testing.T) {
		chats := new(MockChatRepository)
		profiles := new(MockProfileLookup)
		pub := new(MockSignalPublisher)
		chats.On("FindByID", ctx, "g1").Return(group(), nil)
		profiles.On("Exists", ctx, []string{"d"}).Return(nil)
		chats.On("AddMember", ctx, "g1", "d", baseTime).Return(nil)
		pub.On("Publish", ctx, []domain.Topic{domain.ChatsTopic("a"), domain.ChatsTopic("b"), domain.ChatsTopic("c"), domain.ChatsTopic("d")}).Return(nil)

		uc := newChatUC(chats, profiles, pub, nil)
		chat, err := uc.AddMember(ctx, "g1", "a", "d")
		require.NoError(t, err)
		assert.Contains(t, chat.Participants, "d")
		pub.AssertExpectations(t)
	})

	t.Run("移除成員, 被移除的人也收到 signal", func(t *testing.T) {
		chats := new(MockChatRepository)
		pub := new(MockSignalPublisher)
		chats.On("FindByID", ctx, "g1").Return(group(), nil)
		chats.On("RemoveMember", ctx, "g1", "c", domain.MinParticipants).Return(true, nil)
		pub.On("Publish", ctx, []domain.Topic{domain.ChatsTopic("a"), domain.ChatsTopic("b"), domain.ChatsTopic("c")}).Return(nil)

		uc := newChatUC(chats, new(MockProfileLookup), pub, nil)
		chat, err := uc.RemoveMember(ctx, "g1", "a", "c")
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, chat.Participants)
		pub.AssertExpectations(t)
	})

	t.Run("少於兩人", func(t *testing.T) {
		chats := new(MockChatRepository)
		chats.On("FindByID", ctx, "g1").Return(group(), nil)
		chats.On("RemoveMember", ctx, "g1", "c", domain.MinParticipants).Return(false, domain.ErrInvalidMembership)

		uc := newChatUC(chats, new(MockProfileLookup), nil, nil)
		_, err := uc.RemoveMember(ctx, "g1", "a", "c")
		assert.ErrorIs(t, err, errprocess.ErrInvalidArgument)
	})

	t.Run("重試移除已不在群組的成員", func(t *testing.T) {
		chats := new(MockChatRepository)
		pub := new(MockSignalPublisher)
		chats.On("FindByID", ctx, "g1").Return(&domain.Chat{ID: "g1", Type: domain.ChatTypeGroup, Name: &name, Participants: []string{"a", "b"}}, nil)

		uc := newChatUC(chats, new(MockProfileLookup), pub, nil)
		chat, err := uc.RemoveMember(ctx, "g1", "a", "c")
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, chat.Participants)

		// 自己離開後重試
		_, err = uc.RemoveMember(ctx, "g1", "c", "c")
		require.NoError(t, err)

		chats.AssertNotCalled(t, "RemoveMember", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	})

	t.Run("非成員不能移除別人", func(t *testing.T) {
		chats := new(MockChatRepository)
		chats.On("FindByID", ctx, "g1").Return(group(), nil)
		uc := newChatUC(chats, new(MockProfileLookup), nil, nil)
		_, err := uc.RemoveMember(ctx, "g1", "x", "c")
		assert.ErrorIs(t, err, domain.ErrNotParticipant)
		_, err = uc.RemoveMember(ctx, "g1", "x", "y")
		assert.ErrorIs(t, err, domain.ErrNotParticipant)
	})
}
