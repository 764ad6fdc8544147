package bridge

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"chat_sync_service/internal/sync/domain"
	"chat_sync_service/internal/sync/repository"
	"chat_sync_service/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const me = "me"

type fakeFetcher struct {
	mu      sync.Mutex
	chats   []domain.Chat
	unread  map[string]int
	friends []string
	online  map[string]bool
	typing  map[string][]string
	resets  []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		unread: map[string]int{},
		online: map[string]bool{},
		typing: map[string][]string{},
	}
}

func (f *fakeFetcher) Chats(_ context.Context, _ string) ([]domain.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Chat(nil), f.chats...), nil
}

func (f *fakeFetcher) UnreadCounts(_ context.Context, _ string) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int, len(f.unread))
	for k, v := range f.unread {
		out[k] = v
	}
	return out, nil
}

func (f *fakeFetcher) FriendIDs(_ context.Context, _ string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.friends...), nil
}

func (f *fakeFetcher) OnlineSet(_ context.Context, ids []string) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = f.online[id]
	}
	return out, nil
}

func (f *fakeFetcher) Typing(_ context.Context, chatID, _ string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.typing[chatID]...), nil
}

func (f *fakeFetcher) ResetUnread(_ context.Context, chatID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unread[chatID] = 0
	f.resets = append(f.resets, chatID)
	return nil
}

func (f *fakeFetcher) update(fn func(f *fakeFetcher)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func recorder() (Callbacks, chan string) {
	events := make(chan string, 64)
	return Callbacks{
		OnUnreadDelta: func(chatID string, previous, current int) {
			events <- fmt.Sprintf("delta %s %d %d", chatID, previous, current)
		},
		OnPresenceChange: func(userID string, online bool) {
			events <- fmt.Sprintf("presence %s %t", userID, online)
		},
		OnTypingChange: func(chatID string, ids []string) {
			events <- fmt.Sprintf("typing %s %v", chatID, ids)
		},
		OnNotify: func(n Notification) {
			events <- fmt.Sprintf("notify %s %d %s", n.ChatID, n.Unread, n.Preview)
		},
		OnDismiss: func(chatID string) {
			events <- "dismiss " + chatID
		},
		OnInvalidate: func(topic domain.Topic) {
			events <- "invalidate " + string(topic)
		},
	}, events
}

func expect(t *testing.T, events chan string, want string) {
	t.Helper()
	select {
	case got := <-events:
		assert.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for %q", want)
	}
}

func expectNone(t *testing.T, events chan string) {
	t.Helper()
	select {
	case got := <-events:
		t.Fatalf("unexpected event %q", got)
	case <-time.After(150 * time.Millisecond):
	}
}

func chat(id, preview string) domain.Chat {
	sender := "u2"
	return domain.Chat{ID: id, Type: domain.ChatTypeDirect, Participants: []string{me, "u2"}, LastMessage: &preview, LastSenderID: &sender}
}

// start 啟動 bridge, Close 一個不存在的 chat 當作初始載入完成的同步點
func start(t *testing.T, fetch *fakeFetcher, opts Options) (*Bridge, *repository.MemorySignalBus, chan string) {
	t.Helper()
	logger.Log = logger.SetNewNop()
	bus := repository.NewMemorySignalBus()
	cb, events := recorder()
	b := New(me, fetch, bus, cb, opts)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- b.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-errCh
	})

	require.NoError(t, b.Close(ctx, "barrier"))
	return b, bus, events
}

func TestBridge_NotifyAndAutoDismiss(t *testing.T) {
	ctx := context.Background()
	fetch := newFakeFetcher()
	fetch.chats = []domain.Chat{chat("c1", "hi")}
	_, bus, events := start(t, fetch, Options{NotificationDismiss: 50 * time.Millisecond})

	fetch.update(func(f *fakeFetcher) { f.unread["c1"] = 1 })
	require.NoError(t, bus.Publish(ctx, domain.UnreadTopic(me)))

	expect(t, events, "delta c1 0 1")
	expect(t, events, "notify c1 1 hi")
	expect(t, events, "dismiss c1")
}

func TestBridge_OpenChatResetsOnArrival(t *testing.T) {
	ctx := context.Background()
	fetch := newFakeFetcher()
	fetch.chats = []domain.Chat{chat("c1", "hi")}
	fetch.unread["c1"] = 2
	b, bus, events := start(t, fetch, Options{})

	require.NoError(t, b.Open(ctx, "c1"))
	expect(t, events, "delta c1 2 0")

	// 開啟中收到新訊息, 立即歸零且不通知
	fetch.update(func(f *fakeFetcher) { f.unread["c1"] = 1 })
	require.NoError(t, bus.Publish(ctx, domain.UnreadTopic(me)))
	expectNone(t, events)

	fetch.update(func(f *fakeFetcher) {
		assert.Equal(t, []string{"c1", "c1"}, f.resets)
		assert.Equal(t, 0, f.unread["c1"])
	})

	// 關閉後恢復通知
	require.NoError(t, b.Close(ctx, "c1"))
	fetch.update(func(f *fakeFetcher) { f.unread["c1"] = 1 })
	require.NoError(t, bus.Publish(ctx, domain.UnreadTopic(me)))
	expect(t, events, "delta c1 0 1")
	expect(t, events, "notify c1 1 hi")
}

func TestBridge_Presence(t *testing.T) {
	ctx := context.Background()
	fetch := newFakeFetcher()
	fetch.friends = []string{"u2"}
	_, bus, events := start(t, fetch, Options{})

	fetch.update(func(f *fakeFetcher) { f.online["u2"] = true })
	require.NoError(t, bus.Publish(ctx, domain.PresenceTopic("u2")))
	expect(t, events, "presence u2 true")

	// 非好友不會收到
	fetch.update(func(f *fakeFetcher) { f.online["u3"] = true })
	require.NoError(t, bus.Publish(ctx, domain.PresenceTopic("u3")))
	expectNone(t, events)

	// 新好友會加入訂閱
	fetch.update(func(f *fakeFetcher) { f.friends = []string{"u2", "u3"} })
	require.NoError(t, bus.Publish(ctx, domain.FriendsTopic(me)))
	expect(t, events, "presence u3 true")
	expect(t, events, "invalidate "+string(domain.FriendsTopic(me)))

	fetch.update(func(f *fakeFetcher) { f.online["u3"] = false })
	require.NoError(t, bus.Publish(ctx, domain.PresenceTopic("u3")))
	expect(t, events, "presence u3 false")
}

func TestBridge_TypingStalenessRecheck(t *testing.T) {
	ctx := context.Background()
	fetch := newFakeFetcher()
	fetch.chats = []domain.Chat{chat("c1", "hi")}
	fetch.typing["c1"] = []string{"u2"}
	_, bus, events := start(t, fetch, Options{TypingRecheck: 20 * time.Millisecond})

	// flag 過期, 沒有 signal 也要更新
	fetch.update(func(f *fakeFetcher) { delete(f.typing, "c1") })
	expect(t, events, "typing c1 []")

	fetch.update(func(f *fakeFetcher) { f.typing["c1"] = []string{"u3"} })
	require.NoError(t, bus.Publish(ctx, domain.TypingTopic("c1")))
	expect(t, events, "typing c1 [u3]")
}

func TestBridge_NewChatSubscribed(t *testing.T) {
	ctx := context.Background()
	fetch := newFakeFetcher()
	_, bus, events := start(t, fetch, Options{TypingRecheck: time.Hour})

	fetch.update(func(f *fakeFetcher) { f.chats = []domain.Chat{chat("c2", "yo")} })
	require.NoError(t, bus.Publish(ctx, domain.ChatsTopic(me)))
	expect(t, events, "invalidate "+string(domain.ChatsTopic(me)))

	require.NoError(t, bus.Publish(ctx, domain.MessagesTopic("c2")))
	expect(t, events, "invalidate "+string(domain.MessagesTopic("c2")))

	fetch.update(func(f *fakeFetcher) { f.typing["c2"] = []string{"u2"} })
	require.NoError(t, bus.Publish(ctx, domain.TypingTopic("c2")))
	expect(t, events, "typing c2 [u2]")
}

func TestBridge_StoppedAfterCancel(t *testing.T) {
	fetch := newFakeFetcher()
	bus := repository.NewMemorySignalBus()
	b := New(me, fetch, bus, Callbacks{}, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()
	require.NoError(t, b.Close(ctx, "barrier"))

	cancel()
	assert.NoError(t, <-done)
	assert.ErrorIs(t, b.Open(context.Background(), "c1"), ErrStopped)
}
