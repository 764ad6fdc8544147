package bridge

import (
	"context"
	"sync"
	"time"

	"chat_sync_service/pkg/logger"

	"go.uber.org/zap"
)

// TypingSetter 寫入 typing flag
type TypingSetter func(ctx context.Context, isTyping bool) error

// TypingDebouncer 一個 chat 一個
//
// keystroke 時寫 true 並重新排程 quiet 後寫 false (debounce);
// 持續輸入時每隔 quiet 重寫一次 true, 讓 updated_at 不會超過 staleness
type TypingDebouncer struct {
	mu     sync.Mutex
	quiet  time.Duration
	set    TypingSetter
	typing bool
	last   time.Time
	timer  *time.Timer
	gen    uint64
	now    func() time.Time
}

// NewTypingDebouncer quiet 通常是 2000ms
func NewTypingDebouncer(quiet time.Duration, set TypingSetter) *TypingDebouncer {
	return &TypingDebouncer{quiet: quiet, set: set, now: time.Now}
}

// Keystroke 使用者輸入
func (d *TypingDebouncer) Keystroke(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var err error
	now := d.now()
	if !d.typing || now.Sub(d.last) >= d.quiet {
		if err = d.set(ctx, true); err == nil {
			d.typing, d.last = true, now
		}
	}

	d.stopLocked()
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.quiet, func() { d.expire(gen) })
	return err
}

// Sent 訊息送出時同步寫 false
func (d *TypingDebouncer) Sent(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopLocked()
	d.typing = false
	return d.set(ctx, false)
}

// Blur 離開輸入框
func (d *TypingDebouncer) Blur(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopLocked()
	if !d.typing {
		return nil
	}
	d.typing = false
	return d.set(ctx, false)
}

// Close 停止 timer, 不寫入
func (d *TypingDebouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
}

// Typing 目前是否為輸入中
func (d *TypingDebouncer) Typing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.typing
}

func (d *TypingDebouncer) stopLocked() {
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *TypingDebouncer) expire(gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.gen || !d.typing {
		return
	}
	d.timer = nil
	d.typing = false

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.set(ctx, false); err != nil {
		logger.Log.Warn("typing debounce clear", zap.Error(err))
	}
}
