package domain

import (
	"time"

	"gorm.io/gorm"
)

// RequestStatus friend request status
type RequestStatus string

const (
	// RequestPending waiting receiver
	RequestPending RequestStatus = "pending"
	// RequestAccepted accepted by receiver
	RequestAccepted RequestStatus = "accepted"
	// RequestRejected rejected by receiver
	RequestRejected RequestStatus = "rejected"
)

// FriendRequest friend_requests table
// accept / reject 先寫 status 再 soft delete, 讀取端看不到已結束的 request
type FriendRequest struct {
	ID         string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	SenderID   string         `gorm:"type:varchar(36);not null;index;uniqueIndex:idx_pending_pair,where:status = 'pending' AND deleted_at IS NULL" json:"sender_id"`
	ReceiverID string         `gorm:"type:varchar(36);not null;index;uniqueIndex:idx_pending_pair,where:status = 'pending' AND deleted_at IS NULL" json:"receiver_id"`
	Status     RequestStatus  `gorm:"type:varchar(16);not null;default:pending;check:chk_request_status,status IN ('pending','accepted','rejected')" json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

// FriendEdge friends table, 每段友誼存兩筆 (a,b) (b,a)
type FriendEdge struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	UserID    string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_friend_pair;check:chk_no_self_edge,user_id <> friend_id" json:"user_id"`
	FriendID  string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_friend_pair;index" json:"friend_id"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName gorm table name
func (FriendEdge) TableName() string {
	return "friends"
}

// FriendView friend with live profile and presence
type FriendView struct {
	FriendID string   `json:"friend_id"`
	Profile  *Profile `json:"profile,omitempty"`
	IsOnline bool     `json:"is_online"`
}
