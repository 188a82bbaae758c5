package storage

import (
	"time"
)

type Link struct {
	ID         int64      `json:"id" db:"id"`
	OwnerID    int64      `json:"owner_id" db:"owner_id"`
	ShortCode  *string    `json:"short_code" db:"short_code"`
	LongURL    string     `json:"long_url" db:"long_url"`
	ClickCount int64      `json:"click_count" db:"click_count"`
	ExpireAt   *time.Time `json:"expire_at,omitempty" db:"expire_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

type VisitLog struct {
	ShortCode string    `json:"short_code" db:"short_code"`
	LongURL   string    `json:"long_url" db:"long_url"`
	IP        string    `json:"ip" db:"ip"`
	UserAgent string    `json:"user_agent" db:"user_agent"`
	Referer   string    `json:"referer" db:"referer"`
	VisitTime time.Time `json:"visit_time" db:"visit_time"`
}

type User struct {
	ID           int64   `json:"id" db:"id"`
	Email        string  `json:"email" db:"email"`
	Nickname     *string `json:"nickname,omitempty" db:"nickname"`
	PasswordHash string  `json:"-" db:"password_hash"`
	Status       int16   `json:"status" db:"status"`
}

// LinkFilter narrows a link listing. Zero values mean "no constraint",
// except OwnerID which is always applied.
type LinkFilter struct {
	OwnerID   int64
	ShortCode string
	LongURL   string
	DateFrom  *time.Time
	DateTo    *time.Time
}
