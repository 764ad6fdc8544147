package repository

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	errprocess "chat_sync_service/pkg/err"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

// fromStore 把 driver 錯誤轉成錯誤分類
func fromStore(err error, what string) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, pgx.ErrNoRows):
		return errprocess.Wrap(errprocess.ErrNotFound, what)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return errprocess.Wrap(errprocess.ErrDuplicate, what)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return errprocess.Wrap(errprocess.ErrTransient, what+": "+err.Error())
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return errprocess.Wrap(errprocess.ErrDuplicate, what)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return errprocess.Wrap(errprocess.ErrTransient, what+": "+err.Error())
	}

	// sqlite 舊版 driver 沒有翻譯 unique 錯誤
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return errprocess.Wrap(errprocess.ErrDuplicate, what)
	}

	return fmt.Errorf("%s: %w", what, err)
}

// isDuplicate 是否為 unique 衝突
func isDuplicate(err error) bool {
	return errors.Is(err, errprocess.ErrDuplicate)
}
