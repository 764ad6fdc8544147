package domain

import "time"

// Profile definition user display profile, 由 pgx 讀寫
type Profile struct {
	ID          string    `json:"id"`
	ExternalKey string    `json:"-"`
	Username    *string   `json:"username,omitempty"`
	Nickname    string    `json:"nickname"`
	Avatar      string    `json:"avatar,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DisplayName nickname 優先, 其次 username
func (p *Profile) DisplayName() string {
	if p == nil {
		return ""
	}
	if p.Nickname != "" {
		return p.Nickname
	}
	if p.Username != nil {
		return *p.Username
	}
	return ""
}
