package domain

// Action websocket request action
type Action string

const (
	ClaimUsername   Action = "claim_username"
	UpdateProfile   Action = "update_profile"
	ResolveProfiles Action = "resolve_profiles"
	SearchUsers     Action = "search_users"

	FriendRequestAction Action = "friend_request"
	FriendAccept        Action = "friend_accept"
	FriendReject        Action = "friend_reject"
	FriendList          Action = "friend_list"
	FriendPending       Action = "friend_pending"
	Unfriend            Action = "unfriend"

	ChatDirect       Action = "chat_direct"
	ChatGroupCreate  Action = "chat_group_create"
	ChatList         Action = "chat_list"
	ChatGet          Action = "chat_get"
	ChatAddMember    Action = "chat_add_member"
	ChatRemoveMember Action = "chat_remove_member"
	ChatOpen         Action = "chat_open"
	ChatClose        Action = "chat_close"

	MessageSend  Action = "message_send"
	MessageList  Action = "message_list"
	MessageClear Action = "message_clear"

	UnreadList Action = "unread_list"

	TypingKeystroke Action = "typing_keystroke"
	TypingBlur      Action = "typing_blur"
	TypingList      Action = "typing_list"

	PresenceQuery Action = "presence_query"
)

// 推送給 client 的事件
const (
	EventUnreadDelta    Action = "unread_delta"
	EventPresenceChange Action = "presence_change"
	EventTypingChange   Action = "typing_change"
	EventNotify         Action = "notify"
	EventDismiss        Action = "dismiss"
	EventInvalidate     Action = "invalidate"
	EventReady          Action = "ready"
	EventError          Action = "error"
)

// WSRequest websocket Request
type WSRequest struct {
	RequestID string   `json:"request_id,omitempty"`
	Action    string   `json:"action"`
	ChatID    string   `json:"chat_id,omitempty"`
	UserID    string   `json:"user_id,omitempty"`
	UserIDs   []string `json:"user_ids,omitempty"`
	FriendReq string   `json:"friend_request_id,omitempty"`
	Name      string   `json:"name,omitempty"`
	Username  string   `json:"username,omitempty"`
	Nickname  string   `json:"nickname,omitempty"`
	Query     string   `json:"query,omitempty"`
	Content   string   `json:"content,omitempty"`
	ClientKey string   `json:"client_key,omitempty"`
	Limit     int      `json:"limit,omitempty"`
}

// WSResponse websocket Response
type WSResponse struct {
	RequestID string                 `json:"request_id,omitempty"`
	Action    string                 `json:"action"`
	Success   bool                   `json:"success"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Code      string                 `json:"code,omitempty"`
}
