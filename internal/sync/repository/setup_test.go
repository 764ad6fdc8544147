package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"chat_sync_service/internal/sync/domain"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var baseTime = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared&_busy_timeout=5000&_foreign_keys=on"

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Discard,
	})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}
	db.Exec("PRAGMA foreign_keys = ON")

	if err := AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	return db
}

func newGroup(t *testing.T, repo ChatRepository, members ...string) *domain.Chat {
	t.Helper()
	name := "group"
	chat := &domain.Chat{ID: uuid.NewString(), Type: domain.ChatTypeGroup, Name: &name, CreatedAt: baseTime}
	if err := repo.CreateChat(context.Background(), chat, members); err != nil {
		t.Fatalf("create group: %v", err)
	}
	return chat
}
