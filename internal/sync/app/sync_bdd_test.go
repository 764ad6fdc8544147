package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"chat_sync_service/internal/sync/bridge"
	"chat_sync_service/internal/sync/domain"

	"github.com/cucumber/godog"
)

var scenarioSeq atomic.Int64

type syncScenario struct {
	e       *testEngine
	ctx     context.Context
	cancel  context.CancelFunc
	chat    *domain.Chat
	request *domain.FriendRequest
	bridges map[string]*bridge.Bridge
	notices map[string]chan bridge.Notification
}

func (s *syncScenario) profilesExist(a, b, c string) error {
	for _, id := range []string{a, b, c} {
		if _, err := s.e.chats.profiles.Resolve(s.ctx, id); err != nil {
			return fmt.Errorf("profile %s: %w", id, err)
		}
	}
	return nil
}

func (s *syncScenario) sendDirect(sender, content, receiver string) error {
	chat, err := s.e.chats.GetOrCreateDirect(s.ctx, sender, receiver)
	if err != nil {
		return err
	}
	s.chat = chat
	_, err = s.e.messages.Send(s.ctx, chat.ID, sender, content)
	return err
}

func (s *syncScenario) directChatCount(a, b string, want int) error {
	key := domain.DirectKey(a, b)
	var n int64
	if err := s.e.db.Model(&domain.Chat{}).Where("direct_key = ?", key).Count(&n).Error; err != nil {
		return err
	}
	if int(n) != want {
		return fmt.Errorf("expected %d direct chat, got %d", want, n)
	}

	var chat domain.Chat
	if err := s.e.db.Where("direct_key = ?", key).First(&chat).Error; err != nil {
		return err
	}
	s.chat = &chat
	return nil
}

func (s *syncScenario) messageCount(want int) error {
	var n int64
	if err := s.e.db.Model(&domain.Message{}).Where("chat_id = ?", s.chat.ID).Count(&n).Error; err != nil {
		return err
	}
	if int(n) != want {
		return fmt.Errorf("expected %d messages, got %d", want, n)
	}
	return nil
}

func (s *syncScenario) unreadIs(userID string, want int) error {
	got, err := s.e.unread.Get(s.ctx, s.chat.ID, userID)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("expected unread %d for %s, got %d", want, userID, got)
	}
	return nil
}

func (s *syncScenario) sendRequest(sender, receiver string) error {
	req, err := s.e.friends.Request(s.ctx, sender, receiver)
	if err != nil {
		return err
	}
	s.request = req
	return nil
}

func (s *syncScenario) acceptRequest(receiver string) error {
	_, err := s.e.friends.Accept(s.ctx, s.request.ID, receiver)
	return err
}

func (s *syncScenario) requestClosed() error {
	var live, all int64
	if err := s.e.db.Model(&domain.FriendRequest{}).Where("id = ?", s.request.ID).Count(&live).Error; err != nil {
		return err
	}
	if err := s.e.db.Unscoped().Model(&domain.FriendRequest{}).Where("id = ?", s.request.ID).Count(&all).Error; err != nil {
		return err
	}
	if live != 0 || all != 1 {
		return fmt.Errorf("expected soft deleted request, live=%d all=%d", live, all)
	}
	return nil
}

func (s *syncScenario) areFriends(a, b string) error {
	var n int64
	err := s.e.db.Model(&domain.FriendEdge{}).
		Where("(user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)", a, b, b, a).
		Count(&n).Error
	if err != nil {
		return err
	}
	if n != 2 {
		return fmt.Errorf("expected 2 friend edges, got %d", n)
	}
	return nil
}

func (s *syncScenario) createGroup(creator, name, members string) error {
	chat, err := s.e.chats.CreateGroup(s.ctx, name, creator, strings.Split(members, ","))
	if err != nil {
		return err
	}
	s.chat = chat
	return nil
}

func (s *syncScenario) removeMember(actor, userID string) error {
	_, err := s.e.chats.RemoveMember(s.ctx, s.chat.ID, actor, userID)
	return err
}

func (s *syncScenario) groupMembers(members string) error {
	ids, err := s.e.chats.chats.MemberIDs(s.ctx, s.chat.ID)
	if err != nil {
		return err
	}
	want := strings.Split(members, ",")
	sort.Strings(ids)
	sort.Strings(want)
	if strings.Join(ids, ",") != strings.Join(want, ",") {
		return fmt.Errorf("expected members %v, got %v", want, ids)
	}
	return nil
}

func (s *syncScenario) sendRejected(userID string) error {
	_, err := s.e.messages.Send(s.ctx, s.chat.ID, userID, "still here?")
	if !errors.Is(err, domain.ErrNotParticipant) {
		return fmt.Errorf("expected ErrNotParticipant, got %v", err)
	}
	return nil
}

func (s *syncScenario) connect(userID string) error {
	notices := make(chan bridge.Notification, 8)
	b := bridge.New(userID, s.e.fetcher(), s.e.bus, bridge.Callbacks{
		OnNotify: func(n bridge.Notification) { notices <- n },
	}, bridge.Options{})
	go b.Run(s.ctx)

	// command 只會在初始 snapshot 載入後處理
	ctx, cancel := context.WithTimeout(s.ctx, 2*time.Second)
	defer cancel()
	if err := b.Close(ctx, "barrier"); err != nil {
		return err
	}
	s.bridges[userID] = b
	s.notices[userID] = notices
	return nil
}

func (s *syncScenario) notified(userID, sender, preview string) error {
	select {
	case n := <-s.notices[userID]:
		if n.SenderID != sender || n.Preview != preview || n.Unread != 1 {
			return fmt.Errorf("unexpected notification %+v", n)
		}
		return nil
	case <-time.After(2 * time.Second):
		return fmt.Errorf("%s did not receive a notification", userID)
	}
}

func (s *syncScenario) openDirect(userID, other string) error {
	if err := s.directChatCount(userID, other, 1); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(s.ctx, 2*time.Second)
	defer cancel()
	return s.bridges[userID].Open(ctx, s.chat.ID)
}

func InitializeSyncScenario(sc *godog.ScenarioContext) {
	s := &syncScenario{}

	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		db, err := openSQLite(fmt.Sprintf("bdd_%d", scenarioSeq.Add(1)))
		if err != nil {
			return ctx, err
		}
		s.e = newEngine(db, "A", "B", "C")
		s.ctx, s.cancel = context.WithCancel(context.Background())
		s.chat, s.request = nil, nil
		s.bridges = make(map[string]*bridge.Bridge)
		s.notices = make(map[string]chan bridge.Notification)
		return ctx, nil
	})
	sc.After(func(ctx context.Context, _ *godog.Scenario, err error) (context.Context, error) {
		s.cancel()
		if sqlDB, dbErr := s.e.db.DB(); dbErr == nil {
			sqlDB.Close()
		}
		return ctx, err
	})

	sc.Step(`^使用者 "([^"]*)" "([^"]*)" "([^"]*)" 都已建立 profile$`, s.profilesExist)
	sc.Step(`^"([^"]*)" 傳送訊息 "([^"]*)" 給 "([^"]*)"$`, s.sendDirect)
	sc.Step(`^"([^"]*)" 與 "([^"]*)" 之間只有 (\d+) 個 direct chat$`, s.directChatCount)
	sc.Step(`^該 chat 有 (\d+) 則訊息$`, s.messageCount)
	sc.Step(`^"([^"]*)" 的未讀數為 (\d+)$`, s.unreadIs)
	sc.Step(`^"([^"]*)" 送出好友邀請給 "([^"]*)"$`, s.sendRequest)
	sc.Step(`^"([^"]*)" 接受好友邀請$`, s.acceptRequest)
	sc.Step(`^好友邀請已經不存在$`, s.requestClosed)
	sc.Step(`^"([^"]*)" 與 "([^"]*)" 互為好友$`, s.areFriends)
	sc.Step(`^"([^"]*)" 建立群組 "([^"]*)" 成員為 "([^"]*)"$`, s.createGroup)
	sc.Step(`^"([^"]*)" 將 "([^"]*)" 移出群組$`, s.removeMember)
	sc.Step(`^群組成員為 "([^"]*)"$`, s.groupMembers)
	sc.Step(`^"([^"]*)" 在群組發送訊息會被拒絕$`, s.sendRejected)
	sc.Step(`^"([^"]*)" 已連線$`, s.connect)
	sc.Step(`^"([^"]*)" 收到 "([^"]*)" 的通知 "([^"]*)"$`, s.notified)
	sc.Step(`^"([^"]*)" 開啟與 "([^"]*)" 的 chat$`, s.openDirect)
}

func TestSyncFeatures(t *testing.T) {
	suite := godog.TestSuite{
		Name:                "chat_sync",
		ScenarioInitializer: InitializeSyncScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
