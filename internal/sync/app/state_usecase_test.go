package app

import (
	"context"
	"testing"
	"time"

	"chat_sync_service/internal/sync/domain"
	"chat_sync_service/internal/sync/repository"
	errprocess "chat_sync_service/pkg/err"
	"chat_sync_service/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestUnreadUseCase(t *testing.T) {
	logger.Log = logger.SetNewNop()
	ctx := context.Background()

	t.Run("只有本人可以歸零", func(t *testing.T) {
		uc := NewUnreadUseCase(new(MockUnreadRepository), nil)
		assert.ErrorIs(t, uc.Reset(ctx, "c1", "a", "b"), domain.ErrNotOwner)
	})

	t.Run("歸零後發 signal", func(t *testing.T) {
		repo := new(MockUnreadRepository)
		pub := new(MockSignalPublisher)
		repo.On("Reset", ctx, "c1", "b", baseTime).Return(nil)
		pub.On("Publish", ctx, []domain.Topic{domain.UnreadTopic("b")}).Return(nil)

		uc := NewUnreadUseCase(repo, pub)
		uc.now = fixedNow
		require.NoError(t, uc.Reset(ctx, "c1", "b", "b"))
		pub.AssertExpectations(t)
	})

	t.Run("沒有收件人不做事", func(t *testing.T) {
		repo := new(MockUnreadRepository)
		uc := NewUnreadUseCase(repo, nil)
		require.NoError(t, uc.IncrementMany(ctx, "c1", nil))
		repo.AssertNotCalled(t, "IncrementMany", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Increment 通知收件人", func(t *testing.T) {
		repo := new(MockUnreadRepository)
		pub := new(MockSignalPublisher)
		repo.On("IncrementMany", ctx, "c1", []string{"b"}, baseTime).Return(nil)
		pub.On("Publish", ctx, []domain.Topic{domain.UnreadTopic("b")}).Return(nil)

		uc := NewUnreadUseCase(repo, pub)
		uc.now = fixedNow
		require.NoError(t, uc.Increment(ctx, "c1", "b"))
		pub.AssertExpectations(t)
	})

	t.Run("ListForUser 轉成 map", func(t *testing.T) {
		repo := new(MockUnreadRepository)
		repo.On("ListForUser", ctx, "b").Return([]domain.UnreadCount{{ChatID: "c1", Count: 2}, {ChatID: "c2", Count: 0}}, nil)

		uc := NewUnreadUseCase(repo, nil)
		counts, err := uc.ListForUser(ctx, "b")
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"c1": 2, "c2": 0}, counts)
	})
}

func TestTypingUseCase(t *testing.T) {
	logger.Log = logger.SetNewNop()
	ctx := context.Background()

	t.Run("非成員", func(t *testing.T) {
		chats := new(MockChatRepository)
		chats.On("IsMember", ctx, "c1", "x").Return(false, nil)
		uc := NewTypingUseCase(new(MockTypingRepository), chats, nil, 4*time.Second)
		assert.ErrorIs(t, uc.SetTyping(ctx, "c1", "x", true), errprocess.ErrUnauthorized)
	})

	t.Run("upsert 並發 signal", func(t *testing.T) {
		chats := new(MockChatRepository)
		typing := new(MockTypingRepository)
		pub := new(MockSignalPublisher)
		chats.On("IsMember", ctx, "c1", "a").Return(true, nil)
		typing.On("Upsert", ctx, &domain.TypingStatus{ChatID: "c1", UserID: "a", IsTyping: true, UpdatedAt: baseTime}).Return(nil)
		pub.On("Publish", ctx, []domain.Topic{domain.TypingTopic("c1")}).Return(nil)

		uc := NewTypingUseCase(typing, chats, pub, 4*time.Second)
		uc.now = fixedNow
		require.NoError(t, uc.SetTyping(ctx, "c1", "a", true))
		typing.AssertExpectations(t)
		pub.AssertExpectations(t)
	})

	t.Run("查詢用 staleness 當下限", func(t *testing.T) {
		typing := new(MockTypingRepository)
		typing.On("ListActive", ctx, "c1", "a", baseTime.Add(-4*time.Second)).Return([]string{"b"}, nil)

		uc := NewTypingUseCase(typing, new(MockChatRepository), nil, 4*time.Second)
		uc.now = fixedNow
		ids, err := uc.ListTyping(ctx, "c1", "a")
		require.NoError(t, err)
		assert.Equal(t, []string{"b"}, ids)
	})
}

func TestPresenceUseCase(t *testing.T) {
	logger.Log = logger.SetNewNop()
	ctx := context.Background()
	timeout := 30 * time.Second

	t.Run("沒有紀錄視為離線", func(t *testing.T) {
		repo := new(MockPresenceRepository)
		repo.On("Find", ctx, "a").Return(nil, nil)
		uc := NewPresenceUseCase(repo, nil, timeout)
		online, err := uc.IsOnline(ctx, "a")
		require.NoError(t, err)
		assert.False(t, online)
	})

	t.Run("heartbeat 逾時視為離線", func(t *testing.T) {
		repo := new(MockPresenceRepository)
		repo.On("FindMany", ctx, []string{"a", "b", "c"}).Return([]domain.UserPresence{
			{UserID: "a", IsOnline: true, LastSeen: baseTime.Add(-10 * time.Second)},
			{UserID: "b", IsOnline: true, LastSeen: baseTime.Add(-time.Minute)},
		}, nil)
		uc := NewPresenceUseCase(repo, nil, timeout)
		uc.now = fixedNow

		online, err := uc.OnlineSet(ctx, []string{"a", "b", "c"})
		require.NoError(t, err)
		assert.Equal(t, map[string]bool{"a": true, "b": false, "c": false}, online)
	})

	t.Run("heartbeat 只有恢復上線時發 signal", func(t *testing.T) {
		repo := new(MockPresenceRepository)
		bus := repository.NewMemorySignalBus()
		sub, err := bus.Subscribe(ctx, domain.PresenceTopic("a"))
		require.NoError(t, err)
		defer sub.Close()

		repo.On("Find", ctx, "a").Return(&domain.UserPresence{UserID: "a", IsOnline: true, LastSeen: baseTime.Add(-time.Minute)}, nil).Once()
		repo.On("Find", ctx, "a").Return(&domain.UserPresence{UserID: "a", IsOnline: true, LastSeen: baseTime}, nil).Once()
		repo.On("Upsert", ctx, "a", true, baseTime).Return(nil)

		uc := NewPresenceUseCase(repo, bus, timeout)
		uc.now = fixedNow
		require.NoError(t, uc.Heartbeat(ctx, "a"))
		require.NoError(t, uc.Heartbeat(ctx, "a"))

		select {
		case sig := <-sub.Signals():
			assert.Equal(t, domain.PresenceTopic("a"), sig.Topic)
		case <-time.After(time.Second):
			t.Fatal("expected presence signal")
		}
		select {
		case sig := <-sub.Signals():
			t.Fatalf("unexpected signal %s", sig.Topic)
		case <-time.After(100 * time.Millisecond):
		}
	})

	t.Run("PurgeStale", func(t *testing.T) {
		repo := new(MockPresenceRepository)
		repo.On("DemoteStale", ctx, baseTime.Add(-timeout)).Return([]string{"b"}, nil)
		uc := NewPresenceUseCase(repo, nil, timeout)
		uc.now = fixedNow

		demoted, err := uc.PurgeStale(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"b"}, demoted)
	})

	t.Run("沒有 bus 不能訂閱", func(t *testing.T) {
		uc := NewPresenceUseCase(new(MockPresenceRepository), nil, timeout)
		_, err := uc.Subscribe(ctx, "a", func(string, bool) {})
		assert.ErrorIs(t, err, errprocess.ErrInvalidArgument)
	})
}
