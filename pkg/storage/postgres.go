package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type PostgresLinkStore struct {
	pool *pgxpool.Pool
}

func NewPostgresLinkStore(pool *pgxpool.Pool) *PostgresLinkStore {
	return &PostgresLinkStore{pool: pool}
}

type pgLinkTx struct {
	tx pgx.Tx
}

func (s *PostgresLinkStore) Begin(ctx context.Context) (LinkTx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &pgLinkTx{tx: tx}, nil
}

func (t *pgLinkTx) InsertLink(ctx context.Context, longURL string, ownerID int64, expireAt *time.Time) (int64, error) {
	query := `INSERT INTO links (owner_id, long_url, expire_at) VALUES ($1, $2, $3) RETURNING id`
	var id int64
	if err := t.tx.QueryRow(ctx, query, ownerID, longURL, expireAt).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert link: %w", err)
	}
	return id, nil
}

// AssignCode runs inside a savepoint so a uniqueness violation does not
// poison the enclosing transaction and the caller can retry with another code.
func (t *pgLinkTx) AssignCode(ctx context.Context, id int64, code string) error {
	sp, err := t.tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin savepoint: %w", err)
	}
	query := `UPDATE links SET short_code = $2 WHERE id = $1`
	if _, err := sp.Exec(ctx, query, id, code); err != nil {
		_ = sp.Rollback(ctx)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrCodeTaken
		}
		return fmt.Errorf("assign code: %w", err)
	}
	return sp.Commit(ctx)
}

func (t *pgLinkTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *pgLinkTx) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}

func (s *PostgresLinkStore) GetByCode(ctx context.Context, code string) (*Link, error) {
	query := `SELECT id, owner_id, short_code, long_url, click_count, expire_at, created_at FROM links WHERE short_code = $1`
	row := s.pool.QueryRow(ctx, query, code)
	var link Link
	err := row.Scan(&link.ID, &link.OwnerID, &link.ShortCode, &link.LongURL, &link.ClickCount, &link.ExpireAt, &link.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &link, nil
}

func (s *PostgresLinkStore) Find(ctx context.Context, f *LinkFilter, limit, offset int64) ([]Link, int64, error) {
	var sb strings.Builder
	args := []any{f.OwnerID}
	sb.WriteString(" WHERE owner_id = $1")
	if f.ShortCode != "" {
		args = append(args, "%"+f.ShortCode+"%")
		sb.WriteString(" AND short_code LIKE $" + strconv.Itoa(len(args)))
	}
	if f.LongURL != "" {
		args = append(args, "%"+f.LongURL+"%")
		sb.WriteString(" AND long_url LIKE $" + strconv.Itoa(len(args)))
	}
	if f.DateFrom != nil {
		args = append(args, *f.DateFrom)
		sb.WriteString(" AND created_at >= $" + strconv.Itoa(len(args)))
	}
	if f.DateTo != nil {
		args = append(args, *f.DateTo)
		sb.WriteString(" AND created_at <= $" + strconv.Itoa(len(args)))
	}
	// Hide already-expired links from listings.
	sb.WriteString(" AND (expire_at IS NULL OR expire_at > now())")
	where := sb.String()

	var count int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM links"+where, args...).Scan(&count); err != nil {
		return nil, 0, fmt.Errorf("count links: %w", err)
	}

	args = append(args, limit, offset)
	query := "SELECT id, owner_id, short_code, long_url, click_count, expire_at, created_at FROM links" + where +
		" ORDER BY created_at DESC LIMIT $" + strconv.Itoa(len(args)-1) + " OFFSET $" + strconv.Itoa(len(args))
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("select links: %w", err)
	}
	defer rows.Close()

	var links []Link
	for rows.Next() {
		var link Link
		if err := rows.Scan(&link.ID, &link.OwnerID, &link.ShortCode, &link.LongURL, &link.ClickCount, &link.ExpireAt, &link.CreatedAt); err != nil {
			return nil, 0, err
		}
		links = append(links, link)
	}
	return links, count, rows.Err()
}

func (s *PostgresLinkStore) DeleteByIDs(ctx context.Context, ids []int64, ownerID int64) ([]string, error) {
	query := `SELECT short_code FROM links WHERE owner_id = $1 AND id = ANY($2) AND short_code IS NOT NULL`
	rows, err := s.pool.Query(ctx, query, ownerID, ids)
	if err != nil {
		return nil, fmt.Errorf("select codes: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Ownership filter in the query: ids not owned by the caller are a no-op.
	if _, err := s.pool.Exec(ctx, `DELETE FROM links WHERE owner_id = $1 AND id = ANY($2)`, ownerID, ids); err != nil {
		return nil, fmt.Errorf("delete links: %w", err)
	}
	return codes, nil
}

func (s *PostgresLinkStore) AddClicks(ctx context.Context, code string, n int64) error {
	query := `UPDATE links SET click_count = click_count + $2 WHERE short_code = $1`
	_, err := s.pool.Exec(ctx, query, code, n)
	return err
}

func (s *PostgresLinkStore) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM links WHERE expire_at < now()`)
	if err != nil {
		return 0, fmt.Errorf("delete expired links: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresLinkStore) OwnsCode(ctx context.Context, code string, ownerID int64) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM links WHERE short_code = $1 AND owner_id = $2 LIMIT 1`, code, ownerID).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *PostgresLinkStore) DailyVisits(ctx context.Context, code string, since time.Time) (map[string]int64, error) {
	query := `SELECT to_char(visit_time::date, 'YYYY-MM-DD') AS day, COUNT(*)
		FROM visit_logs WHERE short_code = $1 AND visit_time >= $2 GROUP BY 1`
	rows, err := s.pool.Query(ctx, query, code, since)
	if err != nil {
		return nil, fmt.Errorf("count daily visits: %w", err)
	}
	defer rows.Close()

	visits := make(map[string]int64)
	for rows.Next() {
		var day string
		var n int64
		if err := rows.Scan(&day, &n); err != nil {
			return nil, err
		}
		visits[day] = n
	}
	return visits, rows.Err()
}

func (s *PostgresLinkStore) InsertVisit(ctx context.Context, v *VisitLog) error {
	query := `INSERT INTO visit_logs (short_code, long_url, ip, user_agent, referer, visit_time) VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.pool.Exec(ctx, query, v.ShortCode, v.LongURL, v.IP, v.UserAgent, v.Referer, v.VisitTime)
	return err
}
