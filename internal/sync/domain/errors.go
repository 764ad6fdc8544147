package domain

import (
	"fmt"

	errprocess "chat_sync_service/pkg/err"
)

// 具體原因, 每個都 wrap 一個錯誤分類
var (
	ErrProfileNotFound = fmt.Errorf("profile not found: %w", errprocess.ErrNotFound)
	ErrChatNotFound    = fmt.Errorf("chat not found: %w", errprocess.ErrNotFound)
	ErrRequestNotFound = fmt.Errorf("friend request not found: %w", errprocess.ErrNotFound)

	ErrRequestPending = fmt.Errorf("friend request already pending: %w", errprocess.ErrDuplicate)
	ErrUsernameTaken  = fmt.Errorf("username already taken: %w", errprocess.ErrDuplicate)

	ErrAlreadyFriends    = fmt.Errorf("already friends: %w", errprocess.ErrConflict)
	ErrUsernameImmutable = fmt.Errorf("username already claimed: %w", errprocess.ErrConflict)
	ErrRequestNotPending = fmt.Errorf("friend request is no longer pending: %w", errprocess.ErrConflict)

	ErrEmptyContent       = fmt.Errorf("message content is empty: %w", errprocess.ErrInvalidArgument)
	ErrSelfTarget         = fmt.Errorf("cannot target yourself: %w", errprocess.ErrInvalidArgument)
	ErrInvalidMembership  = fmt.Errorf("invalid group membership: %w", errprocess.ErrInvalidArgument)
	ErrGroupNameRequired  = fmt.Errorf("group name required: %w", errprocess.ErrInvalidArgument)
	ErrNotGroupChat       = fmt.Errorf("membership of direct chat is fixed: %w", errprocess.ErrInvalidArgument)
	ErrInvalidUsername    = fmt.Errorf("invalid username: %w", errprocess.ErrInvalidArgument)
	ErrAvatarDisabled     = fmt.Errorf("avatar storage not configured: %w", errprocess.ErrInvalidArgument)
	ErrMissingIdentityKey = fmt.Errorf("missing identity key: %w", errprocess.ErrInvalidArgument)

	ErrNotParticipant = fmt.Errorf("not a participant of chat: %w", errprocess.ErrUnauthorized)
	ErrNotOwner       = fmt.Errorf("only the owner may do this: %w", errprocess.ErrUnauthorized)
	ErrNotReceiver    = fmt.Errorf("only the receiver may answer the request: %w", errprocess.ErrUnauthorized)
)
