package app

import (
	"context"
	"io"
	"time"

	"chat_sync_service/internal/sync/domain"

	"github.com/stretchr/testify/mock"
)

// MockProfileRepository Mock ProfileRepository
type MockProfileRepository struct {
	mock.Mock
}

// Migrate mock migrate
func (m *MockProfileRepository) Migrate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// EnsureByExternalKey mock ensure profile
func (m *MockProfileRepository) EnsureByExternalKey(ctx context.Context, externalKey, newID string, now time.Time) (*domain.Profile, error) {
	args := m.Called(ctx, externalKey, newID, now)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Profile), args.Error(1)
	}
	return nil, args.Error(1)
}

// FindByID mock find profile
func (m *MockProfileRepository) FindByID(ctx context.Context, id string) (*domain.Profile, error) {
	args := m.Called(ctx, id)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Profile), args.Error(1)
	}
	return nil, args.Error(1)
}

// FindByIDs mock find profiles
func (m *MockProfileRepository) FindByIDs(ctx context.Context, ids []string) ([]*domain.Profile, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) != nil {
		return args.Get(0).([]*domain.Profile), args.Error(1)
	}
	return nil, args.Error(1)
}

// ClaimUsername mock claim username
func (m *MockProfileRepository) ClaimUsername(ctx context.Context, id, username string, now time.Time) error {
	return m.Called(ctx, id, username, now).Error(0)
}

// UpdateNickname mock update nickname
func (m *MockProfileRepository) UpdateNickname(ctx context.Context, id, nickname string, now time.Time) error {
	return m.Called(ctx, id, nickname, now).Error(0)
}

// UpdateAvatar mock update avatar
func (m *MockProfileRepository) UpdateAvatar(ctx context.Context, id, avatar string, now time.Time) error {
	return m.Called(ctx, id, avatar, now).Error(0)
}

// SearchByUsername mock search
func (m *MockProfileRepository) SearchByUsername(ctx context.Context, prefix string, limit int) ([]*domain.Profile, error) {
	args := m.Called(ctx, prefix, limit)
	if args.Get(0) != nil {
		return args.Get(0).([]*domain.Profile), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockProfileCache Mock RedisRepository[domain.Profile]
type MockProfileCache struct {
	mock.Mock
}

// Set mock cache set
func (m *MockProfileCache) Set(ctx context.Context, key string, value domain.Profile, ttl time.Duration) error {
	return m.Called(ctx, key, value, ttl).Error(0)
}

// Get mock cache get
func (m *MockProfileCache) Get(ctx context.Context, key string) (domain.Profile, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(domain.Profile), args.Error(1)
}

// Del mock cache del
func (m *MockProfileCache) Del(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

// MockAvatarStore Mock AvatarStore
type MockAvatarStore struct {
	mock.Mock
}

// Put mock upload
func (m *MockAvatarStore) Put(ctx context.Context, userID string, r io.Reader, size int64, contentType string) (string, error) {
	args := m.Called(ctx, userID, r, size, contentType)
	return args.String(0), args.Error(1)
}

// URL mock presign
func (m *MockAvatarStore) URL(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

// MockChatRepository Mock ChatRepository
type MockChatRepository struct {
	mock.Mock
}

// CreateChat mock create chat
func (m *MockChatRepository) CreateChat(ctx context.Context, chat *domain.Chat, memberIDs []string) error {
	args := m.Called(ctx, chat, memberIDs)
	if args.Error(0) == nil {
		chat.Participants = memberIDs
	}
	return args.Error(0)
}

// FindByID mock find chat
func (m *MockChatRepository) FindByID(ctx context.Context, chatID string) (*domain.Chat, error) {
	args := m.Called(ctx, chatID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Chat), args.Error(1)
	}
	return nil, args.Error(1)
}

// FindDirect mock find direct chat
func (m *MockChatRepository) FindDirect(ctx context.Context, directKey string) (*domain.Chat, error) {
	args := m.Called(ctx, directKey)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Chat), args.Error(1)
	}
	return nil, args.Error(1)
}

// ListForUser mock list chats
func (m *MockChatRepository) ListForUser(ctx context.Context, userID string) ([]domain.Chat, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]domain.Chat), args.Error(1)
}

// MemberIDs mock member ids
func (m *MockChatRepository) MemberIDs(ctx context.Context, chatID string) ([]string, error) {
	args := m.Called(ctx, chatID)
	return args.Get(0).([]string), args.Error(1)
}

// IsMember mock membership check
func (m *MockChatRepository) IsMember(ctx context.Context, chatID, userID string) (bool, error) {
	args := m.Called(ctx, chatID, userID)
	return args.Bool(0), args.Error(1)
}

// AddMember mock add member
func (m *MockChatRepository) AddMember(ctx context.Context, chatID, userID string, now time.Time) error {
	return m.Called(ctx, chatID, userID, now).Error(0)
}

// RemoveMember mock remove member
func (m *MockChatRepository) RemoveMember(ctx context.Context, chatID, userID string, minRemaining int) (bool, error) {
	args := m.Called(ctx, chatID, userID, minRemaining)
	return args.Bool(0), args.Error(1)
}

// UpdateSummary mock update summary
func (m *MockChatRepository) UpdateSummary(ctx context.Context, msg *domain.Message) error {
	return m.Called(ctx, msg).Error(0)
}

// ClearSummary mock clear summary
func (m *MockChatRepository) ClearSummary(ctx context.Context, chatID string) error {
	return m.Called(ctx, chatID).Error(0)
}

// MockMessageRepository Mock MessageRepository
type MockMessageRepository struct {
	mock.Mock
}

// Create mock insert msg, 成功時給 id
func (m *MockMessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	args := m.Called(ctx, msg)
	if args.Error(0) == nil && msg.ID == 0 {
		msg.ID = 1
	}
	return args.Error(0)
}

// FindByClientKey mock find by client key
func (m *MockMessageRepository) FindByClientKey(ctx context.Context, chatID, clientKey string) (*domain.Message, error) {
	args := m.Called(ctx, chatID, clientKey)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// ListRecent mock list recent
func (m *MockMessageRepository) ListRecent(ctx context.Context, chatID string, limit int) ([]domain.Message, error) {
	args := m.Called(ctx, chatID, limit)
	return args.Get(0).([]domain.Message), args.Error(1)
}

// DeleteByChat mock delete
func (m *MockMessageRepository) DeleteByChat(ctx context.Context, chatID string) (int64, error) {
	args := m.Called(ctx, chatID)
	return args.Get(0).(int64), args.Error(1)
}

// MockUnreadRepository Mock UnreadRepository
type MockUnreadRepository struct {
	mock.Mock
}

// IncrementMany mock increment
func (m *MockUnreadRepository) IncrementMany(ctx context.Context, chatID string, userIDs []string, now time.Time) error {
	return m.Called(ctx, chatID, userIDs, now).Error(0)
}

// Reset mock reset
func (m *MockUnreadRepository) Reset(ctx context.Context, chatID, userID string, now time.Time) error {
	return m.Called(ctx, chatID, userID, now).Error(0)
}

// Get mock get
func (m *MockUnreadRepository) Get(ctx context.Context, chatID, userID string) (int, error) {
	args := m.Called(ctx, chatID, userID)
	return args.Int(0), args.Error(1)
}

// ListForUser mock list
func (m *MockUnreadRepository) ListForUser(ctx context.Context, userID string) ([]domain.UnreadCount, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]domain.UnreadCount), args.Error(1)
}

// MockTypingRepository Mock TypingRepository
type MockTypingRepository struct {
	mock.Mock
}

// Upsert mock upsert
func (m *MockTypingRepository) Upsert(ctx context.Context, status *domain.TypingStatus) error {
	return m.Called(ctx, status).Error(0)
}

// ListActive mock list active
func (m *MockTypingRepository) ListActive(ctx context.Context, chatID, excludingUserID string, since time.Time) ([]string, error) {
	args := m.Called(ctx, chatID, excludingUserID, since)
	return args.Get(0).([]string), args.Error(1)
}

// MockPresenceRepository Mock PresenceRepository
type MockPresenceRepository struct {
	mock.Mock
}

// Upsert mock upsert
func (m *MockPresenceRepository) Upsert(ctx context.Context, userID string, isOnline bool, lastSeen time.Time) error {
	return m.Called(ctx, userID, isOnline, lastSeen).Error(0)
}

// Find mock find
func (m *MockPresenceRepository) Find(ctx context.Context, userID string) (*domain.UserPresence, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.UserPresence), args.Error(1)
	}
	return nil, args.Error(1)
}

// FindMany mock find many
func (m *MockPresenceRepository) FindMany(ctx context.Context, userIDs []string) ([]domain.UserPresence, error) {
	args := m.Called(ctx, userIDs)
	return args.Get(0).([]domain.UserPresence), args.Error(1)
}

// DemoteStale mock demote
func (m *MockPresenceRepository) DemoteStale(ctx context.Context, before time.Time) ([]string, error) {
	args := m.Called(ctx, before)
	return args.Get(0).([]string), args.Error(1)
}

// MockFriendRepository Mock FriendRepository
type MockFriendRepository struct {
	mock.Mock
}

// CreateRequest mock create request
func (m *MockFriendRepository) CreateRequest(ctx context.Context, req *domain.FriendRequest) error {
	return m.Called(ctx, req).Error(0)
}

// FindRequest mock find request
func (m *MockFriendRepository) FindRequest(ctx context.Context, id string, includeClosed bool) (*domain.FriendRequest, error) {
	args := m.Called(ctx, id, includeClosed)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.FriendRequest), args.Error(1)
	}
	return nil, args.Error(1)
}

// FindPending mock find pending
func (m *MockFriendRepository) FindPending(ctx context.Context, senderID, receiverID string) (*domain.FriendRequest, error) {
	args := m.Called(ctx, senderID, receiverID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.FriendRequest), args.Error(1)
	}
	return nil, args.Error(1)
}

// ListPending mock list pending
func (m *MockFriendRepository) ListPending(ctx context.Context, userID string) ([]domain.FriendRequest, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]domain.FriendRequest), args.Error(1)
}

// AcceptRequest mock accept
func (m *MockFriendRepository) AcceptRequest(ctx context.Context, id string, now time.Time) (*domain.FriendRequest, error) {
	args := m.Called(ctx, id, now)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.FriendRequest), args.Error(1)
	}
	return nil, args.Error(1)
}

// RejectRequest mock reject
func (m *MockFriendRepository) RejectRequest(ctx context.Context, id string, now time.Time) (*domain.FriendRequest, error) {
	args := m.Called(ctx, id, now)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.FriendRequest), args.Error(1)
	}
	return nil, args.Error(1)
}

// AreFriends mock are friends
func (m *MockFriendRepository) AreFriends(ctx context.Context, a, b string) (bool, error) {
	args := m.Called(ctx, a, b)
	return args.Bool(0), args.Error(1)
}

// ListFriendIDs mock list friends
func (m *MockFriendRepository) ListFriendIDs(ctx context.Context, userID string) ([]string, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]string), args.Error(1)
}

// DeleteEdges mock delete edges
func (m *MockFriendRepository) DeleteEdges(ctx context.Context, a, b string) (int64, error) {
	args := m.Called(ctx, a, b)
	return args.Get(0).(int64), args.Error(1)
}

// MockSignalPublisher Mock SignalPublisher
type MockSignalPublisher struct {
	mock.Mock
}

// Publish mock publish
func (m *MockSignalPublisher) Publish(ctx context.Context, topics ...domain.Topic) error {
	args := m.Called(ctx, topics)
	return args.Error(0)
}

// MockEventLog Mock EventLog
type MockEventLog struct {
	mock.Mock
}

// Append mock append
func (m *MockEventLog) Append(ctx context.Context, events ...domain.SyncEvent) error {
	return m.Called(ctx, events).Error(0)
}

// MockProfileLookup Mock ProfileLookup
type MockProfileLookup struct {
	mock.Mock
}

// Resolve mock resolve
func (m *MockProfileLookup) Resolve(ctx context.Context, id string) (*domain.Profile, error) {
	args := m.Called(ctx, id)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Profile), args.Error(1)
	}
	return nil, args.Error(1)
}

// ResolveMany mock resolve many
func (m *MockProfileLookup) ResolveMany(ctx context.Context, ids []string) (map[string]*domain.Profile, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).(map[string]*domain.Profile), args.Error(1)
}

// Exists mock exists
func (m *MockProfileLookup) Exists(ctx context.Context, ids ...string) error {
	return m.Called(ctx, ids).Error(0)
}

// MockUnreadIncrementer Mock UnreadIncrementer
type MockUnreadIncrementer struct {
	mock.Mock
}

// IncrementMany mock increment
func (m *MockUnreadIncrementer) IncrementMany(ctx context.Context, chatID string, userIDs []string) error {
	return m.Called(ctx, chatID, userIDs).Error(0)
}

// MockDirectChats Mock DirectChats
type MockDirectChats struct {
	mock.Mock
}

// GetOrCreateDirect mock get or create
func (m *MockDirectChats) GetOrCreateDirect(ctx context.Context, userA, userB string) (*domain.Chat, error) {
	args := m.Called(ctx, userA, userB)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Chat), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockOnlineChecker Mock OnlineChecker
type MockOnlineChecker struct {
	mock.Mock
}

// OnlineSet mock online set
func (m *MockOnlineChecker) OnlineSet(ctx context.Context, userIDs []string) (map[string]bool, error) {
	args := m.Called(ctx, userIDs)
	return args.Get(0).(map[string]bool), args.Error(1)
}
