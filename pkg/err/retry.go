package errprocess

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryAttempts transient 錯誤最多重試次數
const RetryAttempts = 3

// Retry 只重試 transient 錯誤, 其他錯誤直接回傳
// op 必須可以安全地重複執行
func Retry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second

	return backoff.Retry(func() error {
		err := op()
		if err != nil && !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, RetryAttempts), ctx))
}
