package repository

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"chat_sync_service/pkg/database"
	errprocess "chat_sync_service/pkg/err"
)

// AvatarStore definition avatar object storage
type AvatarStore interface {
	Put(ctx context.Context, userID string, r io.Reader, size int64, contentType string) (string, error)
	URL(ctx context.Context, key string) (string, error)
}

type minioAvatarStore struct {
	client *database.MinIOClient
	expiry time.Duration
	now    func() time.Time
}

// NewMinIOAvatarStore create AvatarStore backed by minio
func NewMinIOAvatarStore(client *database.MinIOClient, expiry time.Duration) AvatarStore {
	return &minioAvatarStore{client: client, expiry: expiry, now: time.Now}
}

var avatarExt = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// Put 每次上傳使用新的 key, 舊 URL 不會被快取覆蓋
func (m *minioAvatarStore) Put(ctx context.Context, userID string, r io.Reader, size int64, contentType string) (string, error) {
	ext, ok := avatarExt[contentType]
	if !ok {
		return "", errprocess.Wrap(errprocess.ErrInvalidArgument, fmt.Sprintf("unsupported avatar type %q", contentType))
	}
	key := path.Join("avatars", userID, fmt.Sprintf("%d%s", m.now().UnixNano(), ext))
	if err := m.client.PutObject(ctx, key, r, size, contentType); err != nil {
		return "", fromStore(err, "upload avatar")
	}
	return key, nil
}

func (m *minioAvatarStore) URL(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", nil
	}
	return m.client.PresignGetURL(ctx, key, m.expiry)
}
