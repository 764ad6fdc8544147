package repository

import (
	"context"
	"errors"
	"time"

	"chat_sync_service/internal/sync/domain"
	errprocess "chat_sync_service/pkg/err"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FriendRepository definition friend request & friend edge storage
type FriendRepository interface {
	CreateRequest(ctx context.Context, req *domain.FriendRequest) error
	FindRequest(ctx context.Context, id string, includeClosed bool) (*domain.FriendRequest, error)
	FindPending(ctx context.Context, senderID, receiverID string) (*domain.FriendRequest, error)
	ListPending(ctx context.Context, userID string) ([]domain.FriendRequest, error)
	AcceptRequest(ctx context.Context, id string, now time.Time) (*domain.FriendRequest, error)
	RejectRequest(ctx context.Context, id string, now time.Time) (*domain.FriendRequest, error)
	AreFriends(ctx context.Context, a, b string) (bool, error)
	ListFriendIDs(ctx context.Context, userID string) ([]string, error)
	DeleteEdges(ctx context.Context, a, b string) (int64, error)
}

type friendRepository struct {
	db *gorm.DB
}

// NewFriendRepository create a FriendRepository
func NewFriendRepository(db *gorm.DB) FriendRepository {
	return &friendRepository{db: db}
}

func (r *friendRepository) CreateRequest(ctx context.Context, req *domain.FriendRequest) error {
	err := fromStore(r.db.WithContext(ctx).Create(req).Error, "create friend request")
	if isDuplicate(err) {
		return domain.ErrRequestPending
	}
	return err
}

// FindRequest includeClosed 時包含已 accept / reject (soft deleted) 的 request
func (r *friendRepository) FindRequest(ctx context.Context, id string, includeClosed bool) (*domain.FriendRequest, error) {
	q := r.db.WithContext(ctx)
	if includeClosed {
		q = q.Unscoped()
	}

	var req domain.FriendRequest
	if err := q.Where("id = ?", id).First(&req).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRequestNotFound
		}
		return nil, fromStore(err, "find friend request")
	}
	return &req, nil
}

// FindPending 找不到時回傳 nil, nil
func (r *friendRepository) FindPending(ctx context.Context, senderID, receiverID string) (*domain.FriendRequest, error) {
	var req domain.FriendRequest
	err := r.db.WithContext(ctx).
		Where("sender_id = ? AND receiver_id = ? AND status = ?", senderID, receiverID, domain.RequestPending).
		First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fromStore(err, "find pending request")
	}
	return &req, nil
}

// ListPending 收到與送出的 pending request
func (r *friendRepository) ListPending(ctx context.Context, userID string) ([]domain.FriendRequest, error) {
	var reqs []domain.FriendRequest
	err := r.db.WithContext(ctx).
		Where("status = ? AND (receiver_id = ? OR sender_id = ?)", domain.RequestPending, userID, userID).
		Order("created_at DESC").
		Find(&reqs).Error
	return reqs, fromStore(err, "list pending requests")
}

// AcceptRequest 在同一個 transaction 內: 標記 accepted, 建立雙向 edge, soft delete request
// 已 accepted 的 request 只有在 edge 仍存在時視為成功, unfriend 之後舊 request 不能再建立 edge
func (r *friendRepository) AcceptRequest(ctx context.Context, id string, now time.Time) (*domain.FriendRequest, error) {
	var req domain.FriendRequest
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("id = ?", id).First(&req).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrRequestNotFound
			}
			return err
		}

		if req.Status == domain.RequestAccepted {
			var edges int64
			if err := tx.Model(&domain.FriendEdge{}).
				Where("(user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)",
					req.SenderID, req.ReceiverID, req.ReceiverID, req.SenderID).
				Count(&edges).Error; err != nil {
				return err
			}
			if edges < 2 {
				return domain.ErrRequestNotPending
			}
			return nil
		}

		res := tx.Unscoped().Model(&domain.FriendRequest{}).
			Where("id = ? AND status = ?", id, domain.RequestPending).
			Updates(map[string]interface{}{"status": domain.RequestAccepted, "updated_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrRequestNotPending
		}

		edges := []domain.FriendEdge{
			{UserID: req.SenderID, FriendID: req.ReceiverID, CreatedAt: now},
			{UserID: req.ReceiverID, FriendID: req.SenderID, CreatedAt: now},
		}
		// 兩人已經互為好友時略過
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&edges).Error; err != nil {
			return err
		}

		req.Status = domain.RequestAccepted
		return tx.Delete(&domain.FriendRequest{}, "id = ?", id).Error
	})
	if err != nil {
		if errors.Is(err, errprocess.ErrNotFound) || errors.Is(err, errprocess.ErrConflict) {
			return nil, err
		}
		return nil, fromStore(err, "accept friend request")
	}
	return &req, nil
}

// RejectRequest 標記 rejected 並 soft delete, 已 rejected 的視為成功
func (r *friendRepository) RejectRequest(ctx context.Context, id string, now time.Time) (*domain.FriendRequest, error) {
	var req domain.FriendRequest
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("id = ?", id).First(&req).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrRequestNotFound
			}
			return err
		}

		res := tx.Unscoped().Model(&domain.FriendRequest{}).
			Where("id = ? AND status IN ?", id, []domain.RequestStatus{domain.RequestPending, domain.RequestRejected}).
			Updates(map[string]interface{}{"status": domain.RequestRejected, "updated_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrRequestNotPending
		}

		req.Status = domain.RequestRejected
		return tx.Delete(&domain.FriendRequest{}, "id = ?", id).Error
	})
	if err != nil {
		if errors.Is(err, errprocess.ErrNotFound) || errors.Is(err, errprocess.ErrConflict) {
			return nil, err
		}
		return nil, fromStore(err, "reject friend request")
	}
	return &req, nil
}

func (r *friendRepository) AreFriends(ctx context.Context, a, b string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.FriendEdge{}).
		Where("user_id = ? AND friend_id = ?", a, b).
		Count(&count).Error
	return count > 0, fromStore(err, "check friend edge")
}

func (r *friendRepository) ListFriendIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&domain.FriendEdge{}).
		Where("user_id = ?", userID).
		Order("created_at").
		Pluck("friend_id", &ids).Error
	return ids, fromStore(err, "list friends")
}

// DeleteEdges 一次刪除 (a,b) 與 (b,a)
func (r *friendRepository) DeleteEdges(ctx context.Context, a, b string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("(user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)", a, b, b, a).
		Delete(&domain.FriendEdge{})
	return res.RowsAffected, fromStore(res.Error, "delete friend edges")
}
