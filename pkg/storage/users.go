package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresUserStore struct {
	pool *pgxpool.Pool
}

func NewPostgresUserStore(pool *pgxpool.Pool) *PostgresUserStore {
	return &PostgresUserStore{pool: pool}
}

func (s *PostgresUserStore) EmailExists(ctx context.Context, email string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM users WHERE email = $1 LIMIT 1`, email).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *PostgresUserStore) CreateUser(ctx context.Context, nickname, email, passwordHash string) error {
	query := `INSERT INTO users (nickname, email, password_hash) VALUES ($1, $2, $3)`
	if _, err := s.pool.Exec(ctx, query, nickname, email, passwordHash); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresUserStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT id, email, nickname, password_hash, status FROM users WHERE email = $1 LIMIT 1`
	return s.scanUser(s.pool.QueryRow(ctx, query, email))
}

func (s *PostgresUserStore) GetByID(ctx context.Context, id int64) (*User, error) {
	query := `SELECT id, email, nickname, password_hash, status FROM users WHERE id = $1 LIMIT 1`
	return s.scanUser(s.pool.QueryRow(ctx, query, id))
}

func (s *PostgresUserStore) scanUser(row pgx.Row) (*User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Email, &user.Nickname, &user.PasswordHash, &user.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}
