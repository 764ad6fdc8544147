package app

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"chat_sync_service/internal/sync/bridge"
	"chat_sync_service/internal/sync/domain"
	"chat_sync_service/internal/sync/repository"
	"chat_sync_service/pkg/config"
	errprocess "chat_sync_service/pkg/err"
	"chat_sync_service/pkg/logger"
	"chat_sync_service/pkg/middlewares"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

// SyncWebsocketHandler 包含所有需要的 UseCase
type SyncWebsocketHandler struct {
	profiles *ProfileUseCase
	friends  *FriendUseCase
	chats    *ChatUseCase
	messages *MessageUseCase
	unread   *UnreadUseCase
	presence *PresenceUseCase
	typing   *TypingUseCase
	bus      repository.SignalSubscriber
	engine   config.EngineConfig

	connMu sync.Mutex
	conns  map[string]int
}

// NewSyncWebsocketHandler create SyncWebsocketHandler
func NewSyncWebsocketHandler(
	profiles *ProfileUseCase,
	friends *FriendUseCase,
	chats *ChatUseCase,
	messages *MessageUseCase,
	unread *UnreadUseCase,
	presence *PresenceUseCase,
	typing *TypingUseCase,
	bus repository.SignalSubscriber,
	engine config.EngineConfig,
) *SyncWebsocketHandler {
	return &SyncWebsocketHandler{
		profiles: profiles,
		friends:  friends,
		chats:    chats,
		messages: messages,
		unread:   unread,
		presence: presence,
		typing:   typing,
		bus:      bus,
		engine:   engine.WithDefaults(),
		conns:    make(map[string]int),
	}
}

// attach 記錄 user 在本節點的連線數
func (h *SyncWebsocketHandler) attach(userID string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if h.conns == nil {
		h.conns = make(map[string]int)
	}
	h.conns[userID]++
}

// detach 回傳是否為最後一條連線
func (h *SyncWebsocketHandler) detach(userID string) bool {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.conns[userID]--
	if h.conns[userID] > 0 {
		return false
	}
	delete(h.conns, userID)
	return true
}

// session 一個連線的狀態
type session struct {
	conn    *websocket.Conn
	userID  string
	writeMu sync.Mutex
	bridge  *bridge.Bridge

	typingMu sync.Mutex
	typing   map[string]*bridge.TypingDebouncer
}

// HandleConnection 是 WebSocket 連線的進入點
func (h *SyncWebsocketHandler) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	externalKey, _ := conn.Locals(middlewares.TokenMemberID).(string)

	profile, err := h.profiles.EnsureProfile(ctx, externalKey)
	if err != nil {
		logger.Log.Error("websocket ensure profile", zap.Error(err))
		s := &session{conn: conn}
		s.push(domain.EventError, map[string]interface{}{"error": err.Error(), "code": string(errprocess.ToCode(err))})
		closeWebSocketConnection(conn, websocket.ClosePolicyViolation, "profile unavailable")
		return
	}

	s := &session{conn: conn, userID: profile.ID, typing: make(map[string]*bridge.TypingDebouncer)}
	logger.Log.Info("websocket open", zap.String("userID", s.userID))

	h.attach(s.userID)
	ctxSession, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		s.closeTyping()
		// 同一個 user 在本節點還有其他連線時保持 online
		if h.detach(s.userID) {
			offCtx, offCancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := h.presence.MarkOffline(offCtx, s.userID); err != nil {
				logger.Log.Warn("mark offline", zap.String("userID", s.userID), zap.Error(err))
			}
			offCancel()
		}
		logger.Log.Info("websocket close", zap.String("userID", s.userID))
		conn.Close()
	}()

	if err := h.presence.MarkOnline(ctx, s.userID); err != nil {
		logger.Log.Warn("mark online", zap.String("userID", s.userID), zap.Error(err))
	}

	// server 發出 ping, client 回 pong 視為 heartbeat
	_ = conn.SetReadDeadline(time.Now().Add(h.engine.PresenceTimeout))
	conn.SetPongHandler(func(string) error {
		if err := h.presence.Heartbeat(ctxSession, s.userID); err != nil {
			logger.Log.Warn("heartbeat", zap.String("userID", s.userID), zap.Error(err))
		}
		return conn.SetReadDeadline(time.Now().Add(h.engine.PresenceTimeout))
	})
	go h.pingLoop(ctxSession, s)

	s.bridge = bridge.New(s.userID, &sessionFetcher{
		chats:    h.chats,
		unread:   h.unread,
		friends:  h.friends,
		presence: h.presence,
		typing:   h.typing,
	}, h.bus, s.callbacks(), bridge.Options{
		NotificationDismiss: h.engine.NotificationDismiss,
		TypingRecheck:       h.engine.TypingStaleness / 2,
	})
	go func() {
		if err := s.bridge.Run(ctxSession); err != nil {
			logger.Log.Error("bridge stopped", zap.String("userID", s.userID), zap.Error(err))
			cancel()
			conn.Close()
		}
	}()

	s.push(domain.EventReady, map[string]interface{}{"profile": profile})

	for {
		mt, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Log.Info("connection closed", zap.String("userID", s.userID))
			} else {
				// 1006 或 heartbeat 逾時
				logger.Log.Warn("websocket read error", zap.String("userID", s.userID), zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(h.engine.PresenceTimeout))

		if mt != websocket.TextMessage {
			s.push(domain.EventError, map[string]interface{}{"error": "unsupported message type"})
			continue
		}
		h.textMessageAction(ctxSession, s, message)
	}
}

func (h *SyncWebsocketHandler) pingLoop(ctx context.Context, s *session) {
	ticker := time.NewTicker(h.engine.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(time.Second))
			s.writeMu.Unlock()
			if err != nil {
				logger.Log.Warn("ping error", zap.String("userID", s.userID), zap.Error(err))
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (h *SyncWebsocketHandler) textMessageAction(ctx context.Context, s *session, msg []byte) {
	var req domain.WSRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		s.push(domain.EventError, map[string]interface{}{"error": "invalid json"})
		return
	}

	resp := domain.WSResponse{RequestID: req.RequestID, Action: req.Action, Payload: map[string]interface{}{}}
	err := h.dispatch(ctx, s, req, resp.Payload)
	if err != nil {
		resp.Error = err.Error()
		resp.Code = string(errprocess.ToCode(err))
		logger.Log.Error("websocket err", zap.String("MemberID", s.userID), zap.String("Action", req.Action), zap.String("err", resp.Error))
	} else {
		resp.Success = true
	}
	s.send(resp)
}

func (h *SyncWebsocketHandler) dispatch(ctx context.Context, s *session, req domain.WSRequest, payload map[string]interface{}) error {
	switch domain.Action(req.Action) {
	// profile
	case domain.ClaimUsername:
		return h.profiles.ClaimUsername(ctx, s.userID, req.Username)

	case domain.UpdateProfile:
		target := req.UserID
		if target == "" {
			target = s.userID
		}
		return h.profiles.UpdateProfile(ctx, s.userID, target, req.Nickname)

	case domain.ResolveProfiles:
		profiles, err := h.profiles.ResolveMany(ctx, req.UserIDs)
		if err != nil {
			return err
		}
		payload["profiles"] = profiles

	case domain.SearchUsers:
		profiles, err := h.profiles.SearchByUsername(ctx, req.Query, req.Limit)
		if err != nil {
			return err
		}
		payload["profiles"] = profiles

	// friend
	case domain.FriendRequestAction:
		fr, err := h.friends.Request(ctx, s.userID, req.UserID)
		if err != nil {
			return err
		}
		payload["friend_request"] = fr

	case domain.FriendAccept:
		chat, err := h.friends.Accept(ctx, req.FriendReq, s.userID)
		if err != nil {
			return err
		}
		payload["chat_id"] = chat.ID

	case domain.FriendReject:
		return h.friends.Reject(ctx, req.FriendReq, s.userID)

	case domain.FriendList:
		friends, err := h.friends.ListFriends(ctx, s.userID)
		if err != nil {
			return err
		}
		payload["friends"] = friends

	case domain.FriendPending:
		reqs, err := h.friends.ListPending(ctx, s.userID)
		if err != nil {
			return err
		}
		payload["requests"] = reqs

	case domain.Unfriend:
		return h.friends.Unfriend(ctx, s.userID, req.UserID)

	// chat
	case domain.ChatDirect:
		chat, err := h.chats.GetOrCreateDirect(ctx, s.userID, req.UserID)
		if err != nil {
			return err
		}
		payload["chat"] = chat

	case domain.ChatGroupCreate:
		chat, err := h.chats.CreateGroup(ctx, req.Name, s.userID, req.UserIDs)
		if err != nil {
			return err
		}
		payload["chat"] = chat

	case domain.ChatList:
		chats, err := h.chats.ListChats(ctx, s.userID)
		if err != nil {
			return err
		}
		payload["chats"] = chats

	case domain.ChatGet:
		chat, err := h.chats.GetChat(ctx, req.ChatID, s.userID)
		if err != nil {
			return err
		}
		payload["chat"] = chat

	case domain.ChatAddMember:
		chat, err := h.chats.AddMember(ctx, req.ChatID, s.userID, req.UserID)
		if err != nil {
			return err
		}
		payload["chat"] = chat

	case domain.ChatRemoveMember:
		chat, err := h.chats.RemoveMember(ctx, req.ChatID, s.userID, req.UserID)
		if err != nil {
			return err
		}
		payload["chat"] = chat

	// 開啟 chat: 未讀歸零並回傳最近訊息
	case domain.ChatOpen:
		if _, err := h.chats.GetChat(ctx, req.ChatID, s.userID); err != nil {
			return err
		}
		if err := s.bridge.Open(ctx, req.ChatID); err != nil {
			return err
		}
		msgs, err := h.messages.ListRecent(ctx, req.ChatID, s.userID, req.Limit)
		if err != nil {
			return err
		}
		payload["messages"] = msgs

	case domain.ChatClose:
		s.releaseDebouncer(ctx, req.ChatID)
		return s.bridge.Close(ctx, req.ChatID)

	// message
	case domain.MessageSend:
		msg, err := h.messages.SendIdempotent(ctx, req.ChatID, s.userID, req.Content, req.ClientKey)
		if err != nil {
			return err
		}
		if err := s.debouncer(h, req.ChatID).Sent(ctx); err != nil {
			logger.Log.Warn("clear typing on send", zap.String("chat", req.ChatID), zap.Error(err))
		}
		payload["message"] = msg

	case domain.MessageList:
		msgs, err := h.messages.ListRecent(ctx, req.ChatID, s.userID, req.Limit)
		if err != nil {
			return err
		}
		payload["messages"] = msgs

	case domain.MessageClear:
		n, err := h.messages.Clear(ctx, req.ChatID, s.userID)
		if err != nil {
			return err
		}
		payload["deleted"] = n

	case domain.UnreadList:
		counts, err := h.unread.ListForUser(ctx, s.userID)
		if err != nil {
			return err
		}
		payload["unread"] = counts

	// typing
	case domain.TypingKeystroke:
		if err := s.debouncer(h, req.ChatID).Keystroke(ctx); err != nil {
			// 不是成員或 chat 不存在時不保留 debouncer
			if errprocess.KindOf(err) != nil && !errprocess.IsTransient(err) {
				s.dropDebouncer(req.ChatID)
			}
			return err
		}

	case domain.TypingBlur:
		if d := s.lookupDebouncer(req.ChatID); d != nil {
			return d.Blur(ctx)
		}

	case domain.TypingList:
		if _, err := h.chats.GetChat(ctx, req.ChatID, s.userID); err != nil {
			return err
		}
		ids, err := h.typing.ListTyping(ctx, req.ChatID, s.userID)
		if err != nil {
			return err
		}
		payload["typing"] = ids

	case domain.PresenceQuery:
		online, err := h.presence.OnlineSet(ctx, req.UserIDs)
		if err != nil {
			return err
		}
		payload["online"] = online

	default:
		return errprocess.Wrap(errprocess.ErrInvalidArgument, "unknown action "+req.Action)
	}
	return nil
}

// debouncer 每個 chat 一個
func (s *session) debouncer(h *SyncWebsocketHandler, chatID string) *bridge.TypingDebouncer {
	s.typingMu.Lock()
	defer s.typingMu.Unlock()
	d, ok := s.typing[chatID]
	if !ok {
		d = bridge.NewTypingDebouncer(h.engine.TypingDebounce, func(ctx context.Context, isTyping bool) error {
			return h.typing.SetTyping(ctx, chatID, s.userID, isTyping)
		})
		s.typing[chatID] = d
	}
	return d
}

func (s *session) lookupDebouncer(chatID string) *bridge.TypingDebouncer {
	s.typingMu.Lock()
	defer s.typingMu.Unlock()
	return s.typing[chatID]
}

// dropDebouncer 停止 timer 並移除, 不寫入
func (s *session) dropDebouncer(chatID string) {
	s.typingMu.Lock()
	d, ok := s.typing[chatID]
	delete(s.typing, chatID)
	s.typingMu.Unlock()
	if ok {
		d.Close()
	}
}

// releaseDebouncer 關閉 chat 時清掉 typing flag, 沒輸入過的 chat 不做事
func (s *session) releaseDebouncer(ctx context.Context, chatID string) {
	s.typingMu.Lock()
	d, ok := s.typing[chatID]
	delete(s.typing, chatID)
	s.typingMu.Unlock()
	if !ok {
		return
	}
	if err := d.Blur(ctx); err != nil {
		logger.Log.Warn("clear typing on chat close", zap.String("chat", chatID), zap.Error(err))
	}
	d.Close()
}

// closeTyping 斷線時清掉仍在輸入中的 flag
func (s *session) closeTyping() {
	s.typingMu.Lock()
	defer s.typingMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for chatID, d := range s.typing {
		if err := d.Blur(ctx); err != nil {
			logger.Log.Warn("clear typing on close", zap.String("chat", chatID), zap.Error(err))
		}
		d.Close()
	}
}

func (s *session) callbacks() bridge.Callbacks {
	return bridge.Callbacks{
		OnUnreadDelta: func(chatID string, previous, current int) {
			s.push(domain.EventUnreadDelta, map[string]interface{}{"chat_id": chatID, "previous": previous, "current": current})
		},
		OnPresenceChange: func(userID string, online bool) {
			s.push(domain.EventPresenceChange, map[string]interface{}{"user_id": userID, "is_online": online})
		},
		OnTypingChange: func(chatID string, ids []string) {
			if ids == nil {
				ids = []string{}
			}
			s.push(domain.EventTypingChange, map[string]interface{}{"chat_id": chatID, "typing": ids})
		},
		OnNotify: func(n bridge.Notification) {
			s.push(domain.EventNotify, map[string]interface{}{"notification": n})
		},
		OnDismiss: func(chatID string) {
			s.push(domain.EventDismiss, map[string]interface{}{"chat_id": chatID})
		},
		OnInvalidate: func(topic domain.Topic) {
			s.push(domain.EventInvalidate, map[string]interface{}{"table": string(topic.Table()), "filter": topic.Filter()})
		},
	}
}

func (s *session) push(event domain.Action, payload map[string]interface{}) {
	s.send(domain.WSResponse{Action: string(event), Success: true, Payload: payload})
}

// send - 發送 JSON 給前端, 同一連線的寫入需要互斥
func (s *session) send(resp domain.WSResponse) {
	b, _ := json.Marshal(resp)
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		logger.Log.Warn("write message error", zap.String("userID", s.userID), zap.Error(err))
	}
}

func closeWebSocketConnection(conn *websocket.Conn, code int, reason string) {
	if err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason)); err != nil {
		logger.Log.Warn("failed to send close message", zap.Error(err))
	}
	conn.Close()
}
