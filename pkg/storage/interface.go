package storage

import (
	"context"
	"errors"
	"time"
)

// ErrCodeTaken reports a short-code uniqueness violation on assignment.
var ErrCodeTaken = errors.New("short code already taken")

// LinkTx is the transactional create path: insert a record with a NULL code,
// then assign a code. AssignCode returns ErrCodeTaken on a uniqueness
// violation and leaves the transaction usable for another attempt.
type LinkTx interface {
	InsertLink(ctx context.Context, longURL string, ownerID int64, expireAt *time.Time) (int64, error)
	AssignCode(ctx context.Context, id int64, code string) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type LinkStore interface {
	Begin(ctx context.Context) (LinkTx, error)
	GetByCode(ctx context.Context, code string) (*Link, error)
	Find(ctx context.Context, f *LinkFilter, limit, offset int64) ([]Link, int64, error)
	// DeleteByIDs deletes the caller's links among ids and returns the short
	// codes of the deleted rows. Ids owned by someone else are skipped.
	DeleteByIDs(ctx context.Context, ids []int64, ownerID int64) ([]string, error)
	AddClicks(ctx context.Context, code string, n int64) error
	DeleteExpired(ctx context.Context) (int64, error)
	OwnsCode(ctx context.Context, code string, ownerID int64) (bool, error)
	DailyVisits(ctx context.Context, code string, since time.Time) (map[string]int64, error)
}

type VisitStore interface {
	InsertVisit(ctx context.Context, v *VisitLog) error
}

type UserStore interface {
	EmailExists(ctx context.Context, email string) (bool, error)
	CreateUser(ctx context.Context, nickname, email, passwordHash string) error
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id int64) (*User, error)
}
