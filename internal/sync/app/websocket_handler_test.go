package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"chat_sync_service/internal/sync/bridge"
	"chat_sync_service/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncWebsocketHandler_ConnCount(t *testing.T) {
	h := &SyncWebsocketHandler{}

	h.attach("a")
	h.attach("a")
	h.attach("b")
	assert.False(t, h.detach("a"), "還有一條連線")
	assert.True(t, h.detach("a"))
	assert.True(t, h.detach("b"))

	// 重新連線後重新計算
	h.attach("a")
	assert.True(t, h.detach("a"))
}

type recordedWrites struct {
	mu     sync.Mutex
	values []bool
	err    error
}

func (r *recordedWrites) set(_ context.Context, isTyping bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, isTyping)
	return r.err
}

func (r *recordedWrites) get() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.values...)
}

func TestSession_ReleaseDebouncer(t *testing.T) {
	logger.Log = logger.SetNewNop()
	ctx := context.Background()

	t.Run("沒輸入過的 chat 不建立 debouncer", func(t *testing.T) {
		s := &session{typing: make(map[string]*bridge.TypingDebouncer)}
		s.releaseDebouncer(ctx, "c1")
		assert.Nil(t, s.lookupDebouncer("c1"))
		assert.Empty(t, s.typing)
	})

	t.Run("輸入中的 chat 關閉時寫 false 並移除", func(t *testing.T) {
		w := &recordedWrites{}
		d := bridge.NewTypingDebouncer(time.Minute, w.set)
		s := &session{typing: map[string]*bridge.TypingDebouncer{"c1": d}}

		require.NoError(t, d.Keystroke(ctx))
		s.releaseDebouncer(ctx, "c1")
		assert.Equal(t, []bool{true, false}, w.get())
		assert.Nil(t, s.lookupDebouncer("c1"))
	})

	t.Run("寫入失敗只記 log, 仍然移除", func(t *testing.T) {
		w := &recordedWrites{}
		d := bridge.NewTypingDebouncer(time.Minute, w.set)
		s := &session{typing: map[string]*bridge.TypingDebouncer{"c1": d}}

		require.NoError(t, d.Keystroke(ctx))
		w.mu.Lock()
		w.err = errors.New("db down")
		w.mu.Unlock()

		s.releaseDebouncer(ctx, "c1")
		assert.Equal(t, []bool{true, false}, w.get())
		assert.Nil(t, s.lookupDebouncer("c1"))
	})

	t.Run("drop 不寫入", func(t *testing.T) {
		w := &recordedWrites{}
		d := bridge.NewTypingDebouncer(time.Minute, w.set)
		s := &session{typing: map[string]*bridge.TypingDebouncer{"c1": d}}

		s.dropDebouncer("c1")
		assert.Empty(t, w.get())
		assert.Nil(t, s.lookupDebouncer("c1"))
	})
}
