package repository

import (
	"context"
	"strings"
	"time"

	"chat_sync_service/internal/sync/domain"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ProfileRepository definition get profile info
type ProfileRepository interface {
	Migrate(ctx context.Context) error
	EnsureByExternalKey(ctx context.Context, externalKey, newID string, now time.Time) (*domain.Profile, error)
	FindByID(ctx context.Context, id string) (*domain.Profile, error)
	FindByIDs(ctx context.Context, ids []string) ([]*domain.Profile, error)
	ClaimUsername(ctx context.Context, id, username string, now time.Time) error
	UpdateNickname(ctx context.Context, id, nickname string, now time.Time) error
	UpdateAvatar(ctx context.Context, id, avatar string, now time.Time) error
	SearchByUsername(ctx context.Context, prefix string, limit int) ([]*domain.Profile, error)
}

type profileRepository struct {
	db *pgxpool.Pool
}

// NewProfileRepository create a ProfileRepository
func NewProfileRepository(db *pgxpool.Pool) ProfileRepository {
	return &profileRepository{db: db}
}

const profileColumns = "id, external_key, username::text, nickname, avatar, created_at, updated_at"

func (r *profileRepository) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS citext`,
		`CREATE TABLE IF NOT EXISTS profiles (
			id           VARCHAR(36) PRIMARY KEY,
			external_key TEXT NOT NULL UNIQUE,
			username     CITEXT UNIQUE,
			nickname     TEXT NOT NULL DEFAULT '',
			avatar       TEXT NOT NULL DEFAULT '',
			created_at   TIMESTAMPTZ NOT NULL,
			updated_at   TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return fromStore(err, "migrate profiles")
		}
	}
	return nil
}

func scanProfile(row pgx.Row) (*domain.Profile, error) {
	var p domain.Profile
	if err := row.Scan(&p.ID, &p.ExternalKey, &p.Username, &p.Nickname, &p.Avatar, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// EnsureByExternalKey 第一次登入建立 profile, 之後回傳同一筆
func (r *profileRepository) EnsureByExternalKey(ctx context.Context, externalKey, newID string, now time.Time) (*domain.Profile, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO profiles (id, external_key, created_at, updated_at) VALUES ($1, $2, $3, $3)
		 ON CONFLICT (external_key) DO UPDATE SET external_key = EXCLUDED.external_key
		 RETURNING `+profileColumns,
		newID, externalKey, now)
	p, err := scanProfile(row)
	if err != nil {
		return nil, fromStore(err, "ensure profile")
	}
	return p, nil
}

func (r *profileRepository) FindByID(ctx context.Context, id string) (*domain.Profile, error) {
	row := r.db.QueryRow(ctx, "SELECT "+profileColumns+" FROM profiles WHERE id = $1", id)
	p, err := scanProfile(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrProfileNotFound
		}
		return nil, fromStore(err, "find profile")
	}
	return p, nil
}

func (r *profileRepository) FindByIDs(ctx context.Context, ids []string) ([]*domain.Profile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, "SELECT "+profileColumns+" FROM profiles WHERE id = ANY($1)", ids)
	if err != nil {
		return nil, fromStore(err, "find profiles")
	}
	defer rows.Close()

	var profiles []*domain.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fromStore(err, "scan profile")
		}
		profiles = append(profiles, p)
	}
	return profiles, fromStore(rows.Err(), "iterate profiles")
}

// ClaimUsername username 只能設定一次, citext 比對不分大小寫
// 重複 claim 相同名字 (大小寫不同也算) 視為成功, 但保留第一次寫入的值
func (r *profileRepository) ClaimUsername(ctx context.Context, id, username string, now time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE profiles SET username = COALESCE(username, $1::citext), updated_at = $3
		 WHERE id = $2 AND (username IS NULL OR username = $1::citext)`,
		username, id, now)
	if err != nil {
		err = fromStore(err, "claim username")
		if isDuplicate(err) {
			return domain.ErrUsernameTaken
		}
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	if _, err := r.FindByID(ctx, id); err != nil {
		return err
	}
	return domain.ErrUsernameImmutable
}

func (r *profileRepository) UpdateNickname(ctx context.Context, id, nickname string, now time.Time) error {
	return r.updateColumn(ctx, "nickname", id, nickname, now)
}

func (r *profileRepository) UpdateAvatar(ctx context.Context, id, avatar string, now time.Time) error {
	return r.updateColumn(ctx, "avatar", id, avatar, now)
}

func (r *profileRepository) updateColumn(ctx context.Context, column, id, value string, now time.Time) error {
	tag, err := r.db.Exec(ctx, "UPDATE profiles SET "+column+" = $1, updated_at = $3 WHERE id = $2", value, id, now)
	if err != nil {
		return fromStore(err, "update profile "+column)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrProfileNotFound
	}
	return nil
}

func (r *profileRepository) SearchByUsername(ctx context.Context, prefix string, limit int) ([]*domain.Profile, error) {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	rows, err := r.db.Query(ctx,
		"SELECT "+profileColumns+" FROM profiles WHERE username LIKE $1 ORDER BY username LIMIT $2",
		escaped+"%", limit)
	if err != nil {
		return nil, fromStore(err, "search profiles")
	}
	defer rows.Close()

	var profiles []*domain.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fromStore(err, "scan profile")
		}
		profiles = append(profiles, p)
	}
	return profiles, fromStore(rows.Err(), "iterate profiles")
}
