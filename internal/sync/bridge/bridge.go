package bridge

import (
	"context"
	"errors"
	"reflect"
	"time"

	"chat_sync_service/internal/sync/domain"
	"chat_sync_service/internal/sync/repository"
	errprocess "chat_sync_service/pkg/err"
	"chat_sync_service/pkg/logger"

	"go.uber.org/zap"
)

// ErrStopped bridge 已結束
var ErrStopped = errors.New("bridge stopped")

// Fetcher bridge 收到 signal 後重新查詢用的 canonical query
type Fetcher interface {
	Chats(ctx context.Context, userID string) ([]domain.Chat, error)
	UnreadCounts(ctx context.Context, userID string) (map[string]int, error)
	FriendIDs(ctx context.Context, userID string) ([]string, error)
	OnlineSet(ctx context.Context, userIDs []string) (map[string]bool, error)
	Typing(ctx context.Context, chatID, excludingUserID string) ([]string, error)
	ResetUnread(ctx context.Context, chatID, userID string) error
}

// Notification 未讀數增加且 chat 沒開啟時的通知
type Notification struct {
	ChatID   string `json:"chat_id"`
	SenderID string `json:"sender_id,omitempty"`
	Preview  string `json:"preview,omitempty"`
	Unread   int    `json:"unread"`
}

// Callbacks 給 presentation layer 的 side effect, nil 表示不處理
type Callbacks struct {
	OnUnreadDelta    func(chatID string, previous, current int)
	OnPresenceChange func(userID string, online bool)
	OnTypingChange   func(chatID string, typingUserIDs []string)
	OnNotify         func(n Notification)
	OnDismiss        func(chatID string)
	OnInvalidate     func(topic domain.Topic)
}

// Options timers
type Options struct {
	NotificationDismiss time.Duration
	TypingRecheck       time.Duration
}

type command struct {
	open   bool
	chatID string
	reply  chan error
}

type dismissFire struct {
	chatID string
	gen    uint64
}

// Bridge NotificationBridge, 每個連線一個
//
// 所有狀態只在 Run 的 goroutine 內讀寫; 收到 signal 後重新查詢, 與上一個 snapshot 比較後決定 side effect
type Bridge struct {
	userID string
	fetch  Fetcher
	subs   repository.SignalSubscriber
	cb     Callbacks
	opts   Options

	cmds  chan command
	fired chan dismissFire
	done  chan struct{}

	sub     repository.Subscription
	chats   map[string]domain.Chat
	unread  map[string]int
	friends map[string]bool
	online  map[string]bool
	typing  map[string][]string
	open    map[string]bool
	notices map[string]uint64
	timers  map[string]*time.Timer
	gen     uint64
}

// New create Bridge
func New(userID string, fetch Fetcher, subs repository.SignalSubscriber, cb Callbacks, opts Options) *Bridge {
	if opts.NotificationDismiss <= 0 {
		opts.NotificationDismiss = 5 * time.Second
	}
	if opts.TypingRecheck <= 0 {
		opts.TypingRecheck = time.Second
	}
	return &Bridge{
		userID:  userID,
		fetch:   fetch,
		subs:    subs,
		cb:      cb,
		opts:    opts,
		cmds:    make(chan command),
		fired:   make(chan dismissFire, 16),
		done:    make(chan struct{}),
		chats:   make(map[string]domain.Chat),
		unread:  make(map[string]int),
		friends: make(map[string]bool),
		online:  make(map[string]bool),
		typing:  make(map[string][]string),
		open:    make(map[string]bool),
		notices: make(map[string]uint64),
		timers:  make(map[string]*time.Timer),
	}
}

// Run 訂閱並載入初始 snapshot, 直到 ctx 結束或 signal 來源關閉
func (b *Bridge) Run(ctx context.Context) error {
	defer close(b.done)
	defer b.stopTimers()

	sub, err := b.subs.Subscribe(ctx,
		domain.ChatsTopic(b.userID),
		domain.UnreadTopic(b.userID),
		domain.FriendsTopic(b.userID),
		domain.FriendRequestsTopic(b.userID),
		domain.ProfileTopic(b.userID),
	)
	if err != nil {
		return err
	}
	b.sub = sub
	defer sub.Close()

	// 初始 snapshot 不觸發 side effect
	b.refreshChats(ctx)
	if counts, err := b.fetch.UnreadCounts(ctx, b.userID); err == nil {
		b.unread = counts
	} else {
		logger.Log.Warn("bridge initial unread", zap.String("user", b.userID), zap.Error(err))
	}
	b.refreshFriends(ctx, false)
	for chatID := range b.chats {
		if ids, err := b.fetch.Typing(ctx, chatID, b.userID); err == nil && len(ids) > 0 {
			b.typing[chatID] = ids
		}
	}

	recheck := time.NewTicker(b.opts.TypingRecheck)
	defer recheck.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-sub.Signals():
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return ErrStopped
			}
			b.handle(ctx, sig)
		case cmd := <-b.cmds:
			cmd.reply <- b.command(ctx, cmd)
		case f := <-b.fired:
			if gen, ok := b.notices[f.chatID]; ok && gen == f.gen {
				b.dismiss(f.chatID)
			}
		case <-recheck.C:
			// staleness 在讀取時判斷, 沒有新 signal 也要重算
			for chatID := range b.typing {
				b.refreshTyping(ctx, chatID)
			}
		}
	}
}

// Open 開啟 chat: 未讀歸零, 開啟期間新訊息也會立即歸零
func (b *Bridge) Open(ctx context.Context, chatID string) error {
	return b.send(ctx, command{open: true, chatID: chatID})
}

// Close 關閉 chat
func (b *Bridge) Close(ctx context.Context, chatID string) error {
	return b.send(ctx, command{open: false, chatID: chatID})
}

func (b *Bridge) send(ctx context.Context, cmd command) error {
	cmd.reply = make(chan error, 1)
	select {
	case b.cmds <- cmd:
	case <-b.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bridge) command(ctx context.Context, cmd command) error {
	if !cmd.open {
		delete(b.open, cmd.chatID)
		return nil
	}
	b.open[cmd.chatID] = true
	if err := b.reset(ctx, cmd.chatID); err != nil {
		return err
	}
	b.dismiss(cmd.chatID)
	return nil
}

func (b *Bridge) handle(ctx context.Context, sig domain.Signal) {
	switch sig.Topic.Table() {
	case domain.TableChats:
		b.refreshChats(ctx)
	case domain.TableUnreadCounts:
		b.refreshUnread(ctx)
		return
	case domain.TableFriends:
		b.refreshFriends(ctx, true)
	case domain.TablePresence:
		b.refreshPresence(ctx, sig.Topic.Subject())
		return
	case domain.TableTyping:
		b.refreshTyping(ctx, sig.Topic.Subject())
		return
	}
	if b.cb.OnInvalidate != nil {
		b.cb.OnInvalidate(sig.Topic)
	}
}

// refreshChats 更新 chat snapshot 並同步每個 chat 的 messages / typing 訂閱
func (b *Bridge) refreshChats(ctx context.Context) {
	chats, err := b.fetch.Chats(ctx, b.userID)
	if err != nil {
		logger.Log.Warn("bridge refetch chats", zap.String("user", b.userID), zap.Error(err))
		return
	}

	next := make(map[string]domain.Chat, len(chats))
	var added, removed []domain.Topic
	for _, c := range chats {
		next[c.ID] = c
		if _, ok := b.chats[c.ID]; !ok {
			added = append(added, domain.MessagesTopic(c.ID), domain.TypingTopic(c.ID))
		}
	}
	for id := range b.chats {
		if _, ok := next[id]; !ok {
			removed = append(removed, domain.MessagesTopic(id), domain.TypingTopic(id))
			delete(b.typing, id)
			delete(b.open, id)
		}
	}
	b.chats = next
	b.resubscribe(ctx, added, removed)
}

// refreshUnread 比較新舊未讀數
// 增加時: chat 開啟中則立即歸零, 否則發通知
func (b *Bridge) refreshUnread(ctx context.Context) {
	counts, err := b.fetch.UnreadCounts(ctx, b.userID)
	if err != nil {
		logger.Log.Warn("bridge refetch unread", zap.String("user", b.userID), zap.Error(err))
		return
	}

	var increased []string
	for chatID, current := range counts {
		previous := b.unread[chatID]
		if current == previous {
			continue
		}
		if current > previous {
			increased = append(increased, chatID)
			continue
		}
		b.unread[chatID] = current
		b.delta(chatID, previous, current)
		if current == 0 {
			b.dismiss(chatID)
		}
	}
	for chatID, previous := range b.unread {
		if _, ok := counts[chatID]; !ok && previous != 0 {
			b.unread[chatID] = 0
			b.delta(chatID, previous, 0)
		}
	}
	if len(increased) == 0 {
		return
	}

	// 通知內容用最新的 summary
	b.refreshChats(ctx)
	for _, chatID := range increased {
		previous, current := b.unread[chatID], counts[chatID]
		if b.open[chatID] {
			if err := b.reset(ctx, chatID); err == nil {
				continue
			}
		}
		b.unread[chatID] = current
		b.delta(chatID, previous, current)
		b.notifyChat(chatID, current)
	}
}

// reset 未讀歸零, transient 錯誤會重試
func (b *Bridge) reset(ctx context.Context, chatID string) error {
	err := errprocess.Retry(ctx, func() error { return b.fetch.ResetUnread(ctx, chatID, b.userID) })
	if err != nil {
		logger.Log.Warn("bridge reset unread", zap.String("user", b.userID), zap.String("chat", chatID), zap.Error(err))
		return err
	}
	if previous := b.unread[chatID]; previous != 0 {
		b.unread[chatID] = 0
		b.delta(chatID, previous, 0)
	}
	return nil
}

func (b *Bridge) delta(chatID string, previous, current int) {
	if b.cb.OnUnreadDelta != nil {
		b.cb.OnUnreadDelta(chatID, previous, current)
	}
}

// notifyChat 顯示通知並排程自動關閉, 同一個 chat 新通知會取代舊的
func (b *Bridge) notifyChat(chatID string, unread int) {
	n := Notification{ChatID: chatID, Unread: unread}
	if c, ok := b.chats[chatID]; ok {
		if c.LastSenderID != nil {
			n.SenderID = *c.LastSenderID
		}
		if c.LastMessage != nil {
			n.Preview = *c.LastMessage
		}
	}
	if b.cb.OnNotify != nil {
		b.cb.OnNotify(n)
	}

	if t, ok := b.timers[chatID]; ok {
		t.Stop()
	}
	b.gen++
	gen := b.gen
	b.notices[chatID] = gen
	b.timers[chatID] = time.AfterFunc(b.opts.NotificationDismiss, func() {
		select {
		case b.fired <- dismissFire{chatID: chatID, gen: gen}:
		case <-b.done:
		}
	})
}

func (b *Bridge) dismiss(chatID string) {
	if _, ok := b.notices[chatID]; !ok {
		return
	}
	if t, ok := b.timers[chatID]; ok {
		t.Stop()
		delete(b.timers, chatID)
	}
	delete(b.notices, chatID)
	if b.cb.OnDismiss != nil {
		b.cb.OnDismiss(chatID)
	}
}

func (b *Bridge) stopTimers() {
	for _, t := range b.timers {
		t.Stop()
	}
}

// refreshFriends 同步好友的 presence 訂閱
func (b *Bridge) refreshFriends(ctx context.Context, emit bool) {
	ids, err := b.fetch.FriendIDs(ctx, b.userID)
	if err != nil {
		logger.Log.Warn("bridge refetch friends", zap.String("user", b.userID), zap.Error(err))
		return
	}

	next := make(map[string]bool, len(ids))
	var added, removed []domain.Topic
	var newIDs []string
	for _, id := range ids {
		next[id] = true
		if !b.friends[id] {
			added = append(added, domain.PresenceTopic(id))
			newIDs = append(newIDs, id)
		}
	}
	for id := range b.friends {
		if !next[id] {
			removed = append(removed, domain.PresenceTopic(id))
			delete(b.online, id)
		}
	}
	b.friends = next
	b.resubscribe(ctx, added, removed)

	if len(newIDs) == 0 {
		return
	}
	online, err := b.fetch.OnlineSet(ctx, newIDs)
	if err != nil {
		logger.Log.Warn("bridge refetch presence", zap.String("user", b.userID), zap.Error(err))
		return
	}
	for _, id := range newIDs {
		b.online[id] = online[id]
		if emit && b.cb.OnPresenceChange != nil {
			b.cb.OnPresenceChange(id, online[id])
		}
	}
}

func (b *Bridge) refreshPresence(ctx context.Context, userID string) {
	if !b.friends[userID] {
		return
	}
	online, err := b.fetch.OnlineSet(ctx, []string{userID})
	if err != nil {
		logger.Log.Warn("bridge refetch presence", zap.String("user", userID), zap.Error(err))
		return
	}
	if online[userID] == b.online[userID] {
		return
	}
	b.online[userID] = online[userID]
	if b.cb.OnPresenceChange != nil {
		b.cb.OnPresenceChange(userID, online[userID])
	}
}

func (b *Bridge) refreshTyping(ctx context.Context, chatID string) {
	if _, ok := b.chats[chatID]; !ok {
		return
	}
	ids, err := b.fetch.Typing(ctx, chatID, b.userID)
	if err != nil {
		logger.Log.Warn("bridge refetch typing", zap.String("chat", chatID), zap.Error(err))
		return
	}
	if len(ids) == 0 && len(b.typing[chatID]) == 0 {
		return
	}
	if reflect.DeepEqual(ids, b.typing[chatID]) {
		return
	}
	if len(ids) == 0 {
		delete(b.typing, chatID)
	} else {
		b.typing[chatID] = ids
	}
	if b.cb.OnTypingChange != nil {
		b.cb.OnTypingChange(chatID, ids)
	}
}

func (b *Bridge) resubscribe(ctx context.Context, added, removed []domain.Topic) {
	if b.sub == nil {
		return
	}
	if len(added) > 0 {
		if err := b.sub.Add(ctx, added...); err != nil {
			logger.Log.Warn("bridge subscribe", zap.String("user", b.userID), zap.Error(err))
		}
	}
	if len(removed) > 0 {
		if err := b.sub.Remove(ctx, removed...); err != nil {
			logger.Log.Warn("bridge unsubscribe", zap.String("user", b.userID), zap.Error(err))
		}
	}
}
