package app

import (
	"context"
	"time"

	"chat_sync_service/pkg/logger"

	"go.uber.org/zap"
)

// PresenceReaper 定期把 heartbeat 逾時的 user 改為離線
// 讀取端本來就會用 last_seen 判斷, reaper 只是讓 DB 的值與訂閱者收斂
type PresenceReaper struct {
	presence *PresenceUseCase
	ticker   *time.Ticker
	done     chan bool
}

// NewPresenceReaper create PresenceReaper
func NewPresenceReaper(presence *PresenceUseCase, interval time.Duration) *PresenceReaper {
	return &PresenceReaper{
		presence: presence,
		ticker:   time.NewTicker(interval),
		done:     make(chan bool),
	}
}

// Start begins the reaper
func (j *PresenceReaper) Start() {
	logger.Log.Info("presence reaper started")

	go func() {
		j.reap()
		for {
			select {
			case <-j.ticker.C:
				j.reap()
			case <-j.done:
				logger.Log.Info("presence reaper stopped")
				return
			}
		}
	}()
}

// Stop stops the reaper
func (j *PresenceReaper) Stop() {
	j.ticker.Stop()
	j.done <- true
}

func (j *PresenceReaper) reap() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	demoted, err := j.presence.PurgeStale(ctx)
	if err != nil {
		logger.Log.Error("presence reaper", zap.Error(err))
		return
	}
	if len(demoted) > 0 {
		logger.Log.Info("presence reaper demoted users", zap.Int("count", len(demoted)))
	}
}
