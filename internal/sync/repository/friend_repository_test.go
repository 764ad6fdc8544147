package repository

import (
	"context"
	"testing"

	"chat_sync_service/internal/sync/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRequest(sender, receiver string) *domain.FriendRequest {
	return &domain.FriendRequest{ID: uuid.NewString(), SenderID: sender, ReceiverID: receiver, Status: domain.RequestPending, CreatedAt: baseTime}
}

func TestFriendRepository_PendingUnique(t *testing.T) {
	ctx := context.Background()
	repo := NewFriendRepository(setupTestDB(t))

	first := newRequest("a", "b")
	require.NoError(t, repo.CreateRequest(ctx, first))
	assert.ErrorIs(t, repo.CreateRequest(ctx, newRequest("a", "b")), domain.ErrRequestPending)

	// reject 之後可以再送
	_, err := repo.RejectRequest(ctx, first.ID, baseTime)
	require.NoError(t, err)
	require.NoError(t, repo.CreateRequest(ctx, newRequest("a", "b")))

	_, err = repo.FindRequest(ctx, first.ID, false)
	assert.ErrorIs(t, err, domain.ErrRequestNotFound)

	closed, err := repo.FindRequest(ctx, first.ID, true)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestRejected, closed.Status)
}

func TestFriendRepository_AcceptIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewFriendRepository(setupTestDB(t))

	req := newRequest("a", "b")
	require.NoError(t, repo.CreateRequest(ctx, req))

	for i := 0; i < 2; i++ {
		accepted, err := repo.AcceptRequest(ctx, req.ID, baseTime)
		require.NoError(t, err)
		assert.Equal(t, domain.RequestAccepted, accepted.Status)
	}

	ab, err := repo.AreFriends(ctx, "a", "b")
	require.NoError(t, err)
	ba, err := repo.AreFriends(ctx, "b", "a")
	require.NoError(t, err)
	assert.True(t, ab && ba)

	ids, err := repo.ListFriendIDs(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids)

	pending, err := repo.ListPending(ctx, "b")
	require.NoError(t, err)
	assert.Empty(t, pending)

	// accepted 後不能 reject
	_, err = repo.RejectRequest(ctx, req.ID, baseTime)
	assert.ErrorIs(t, err, domain.ErrRequestNotPending)

	n, err := repo.DeleteEdges(ctx, "b", "a")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	// unfriend 之後舊的 request 不能再把兩人變回好友
	_, err = repo.AcceptRequest(ctx, req.ID, baseTime)
	assert.ErrorIs(t, err, domain.ErrRequestNotPending)
	ok, err := repo.AreFriends(ctx, "a", "b")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFriendRepository_AcceptRejected(t *testing.T) {
	ctx := context.Background()
	repo := NewFriendRepository(setupTestDB(t))

	req := newRequest("a", "b")
	require.NoError(t, repo.CreateRequest(ctx, req))
	_, err := repo.RejectRequest(ctx, req.ID, baseTime)
	require.NoError(t, err)

	_, err = repo.AcceptRequest(ctx, req.ID, baseTime)
	assert.ErrorIs(t, err, domain.ErrRequestNotPending)

	ok, err := repo.AreFriends(ctx, "a", "b")
	require.NoError(t, err)
	assert.False(t, ok)
}
