package app

import (
	"context"
	"errors"
	"io"
	"regexp"
	"strings"
	"time"

	"chat_sync_service/internal/sync/domain"
	"chat_sync_service/internal/sync/repository"
	"chat_sync_service/pkg/database"
	errprocess "chat_sync_service/pkg/err"
	"chat_sync_service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.]{3,32}$`)

const profileCachePrefix = "profile:"

// ProfileLookup 其他 use case 需要的 profile 查詢
type ProfileLookup interface {
	Resolve(ctx context.Context, id string) (*domain.Profile, error)
	ResolveMany(ctx context.Context, ids []string) (map[string]*domain.Profile, error)
	Exists(ctx context.Context, ids ...string) error
}

// ProfileUseCase ProfileDirectory
type ProfileUseCase struct {
	repo     repository.ProfileRepository
	cache    database.RedisRepository[domain.Profile]
	avatars  repository.AvatarStore
	notify   notifier
	cacheTTL time.Duration
	now      func() time.Time
	newID    func() string
}

// NewProfileUseCase cache 與 avatars 可以是 nil
func NewProfileUseCase(
	repo repository.ProfileRepository,
	cache database.RedisRepository[domain.Profile],
	avatars repository.AvatarStore,
	pub repository.SignalPublisher,
	cacheTTL time.Duration,
) *ProfileUseCase {
	return &ProfileUseCase{
		repo:     repo,
		cache:    cache,
		avatars:  avatars,
		notify:   notifier{pub: pub},
		cacheTTL: cacheTTL,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// EnsureProfile 第一次登入時建立 profile
func (uc *ProfileUseCase) EnsureProfile(ctx context.Context, externalKey string) (*domain.Profile, error) {
	if strings.TrimSpace(externalKey) == "" {
		return nil, domain.ErrMissingIdentityKey
	}

	var p *domain.Profile
	err := errprocess.Retry(ctx, func() error {
		var err error
		p, err = uc.repo.EnsureByExternalKey(ctx, externalKey, uc.newID(), uc.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	uc.withAvatarURL(ctx, p)
	return p, nil
}

// Resolve 先查 cache, 再查 DB
func (uc *ProfileUseCase) Resolve(ctx context.Context, id string) (*domain.Profile, error) {
	if uc.cache != nil {
		cached, err := uc.cache.Get(ctx, profileCachePrefix+id)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, database.ErrCacheMiss) {
			logger.Log.Debug("profile cache get", zap.String("id", id), zap.Error(err))
		}
	}

	p, err := uc.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	uc.withAvatarURL(ctx, p)
	uc.store(ctx, p)
	return p, nil
}

// ResolveMany 找不到的 id 不會出現在結果中
func (uc *ProfileUseCase) ResolveMany(ctx context.Context, ids []string) (map[string]*domain.Profile, error) {
	out := make(map[string]*domain.Profile, len(ids))
	missing := make([]string, 0, len(ids))
	for _, id := range ids {
		if uc.cache != nil {
			if cached, err := uc.cache.Get(ctx, profileCachePrefix+id); err == nil {
				c := cached
				out[id] = &c
				continue
			}
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}

	profiles, err := uc.repo.FindByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, p := range profiles {
		uc.withAvatarURL(ctx, p)
		uc.store(ctx, p)
		out[p.ID] = p
	}
	return out, nil
}

// Exists 每個 id 都必須有 profile
func (uc *ProfileUseCase) Exists(ctx context.Context, ids ...string) error {
	found, err := uc.ResolveMany(ctx, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			return domain.ErrProfileNotFound
		}
	}
	return nil
}

// ClaimUsername username 設定後不可更改
func (uc *ProfileUseCase) ClaimUsername(ctx context.Context, actor, username string) error {
	if !usernamePattern.MatchString(username) {
		return domain.ErrInvalidUsername
	}
	if err := uc.repo.ClaimUsername(ctx, actor, username, uc.now()); err != nil {
		return err
	}
	uc.changed(ctx, actor)
	return nil
}

// UpdateProfile 只有本人可以修改
func (uc *ProfileUseCase) UpdateProfile(ctx context.Context, actor, userID, nickname string) error {
	if actor != userID {
		return domain.ErrNotOwner
	}
	nickname = strings.TrimSpace(nickname)
	if len(nickname) > 64 {
		return errprocess.Wrap(errprocess.ErrInvalidArgument, "nickname too long")
	}
	if err := uc.repo.UpdateNickname(ctx, userID, nickname, uc.now()); err != nil {
		return err
	}
	uc.changed(ctx, userID)
	return nil
}

// UploadAvatar 上傳到 object storage 後更新 avatar key
func (uc *ProfileUseCase) UploadAvatar(ctx context.Context, actor string, r io.Reader, size int64, contentType string) (*domain.Profile, error) {
	if uc.avatars == nil {
		return nil, domain.ErrAvatarDisabled
	}
	key, err := uc.avatars.Put(ctx, actor, r, size, contentType)
	if err != nil {
		return nil, err
	}
	if err := uc.repo.UpdateAvatar(ctx, actor, key, uc.now()); err != nil {
		return nil, err
	}
	uc.changed(ctx, actor)
	return uc.Resolve(ctx, actor)
}

// SearchByUsername prefix 搜尋
func (uc *ProfileUseCase) SearchByUsername(ctx context.Context, prefix string, limit int) ([]*domain.Profile, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil, errprocess.Wrap(errprocess.ErrInvalidArgument, "empty search")
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	profiles, err := uc.repo.SearchByUsername(ctx, prefix, limit)
	if err != nil {
		return nil, err
	}
	for _, p := range profiles {
		uc.withAvatarURL(ctx, p)
	}
	return profiles, nil
}

func (uc *ProfileUseCase) withAvatarURL(ctx context.Context, p *domain.Profile) {
	if uc.avatars == nil || p.Avatar == "" {
		return
	}
	url, err := uc.avatars.URL(ctx, p.Avatar)
	if err != nil {
		logger.Log.Warn("presign avatar", zap.String("id", p.ID), zap.Error(err))
		return
	}
	p.AvatarURL = url
}

func (uc *ProfileUseCase) store(ctx context.Context, p *domain.Profile) {
	if uc.cache == nil {
		return
	}
	if err := uc.cache.Set(ctx, profileCachePrefix+p.ID, *p, uc.cacheTTL); err != nil {
		logger.Log.Debug("profile cache set", zap.String("id", p.ID), zap.Error(err))
	}
}

// changed 清 cache 並通知訂閱者
func (uc *ProfileUseCase) changed(ctx context.Context, id string) {
	if uc.cache != nil {
		if err := uc.cache.Del(ctx, profileCachePrefix+id); err != nil {
			logger.Log.Warn("profile cache del", zap.String("id", id), zap.Error(err))
		}
	}
	uc.notify.signal(ctx, domain.ProfileTopic(id))
}
