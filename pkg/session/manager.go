package session

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	flagPrefix = "session:"
	listPrefix = "sessions:"
)

// createScript sets the token's existence flag, appends it to the subject's
// session list and evicts the oldest token once the list exceeds the bound.
// Eviction is inline with creation; one atomic server-side step, so two
// concurrent logins for the same subject cannot race past the bound.
var createScript = redis.NewScript(`
redis.call('SET', KEYS[1], 1, 'EX', ARGV[1])
redis.call('RPUSH', KEYS[2], ARGV[2])
local len = redis.call('LLEN', KEYS[2])
if len > tonumber(ARGV[3]) then
    local old = redis.call('LPOP', KEYS[2])
    if old then
        redis.call('DEL', 'session:' .. old)
    end
end
return 1
`)

// Manager bounds the number of live tokens per subject.
type Manager struct {
	client *redis.Client
}

func NewManager(client *redis.Client) *Manager {
	return &Manager{client: client}
}

func listKey(subjectID int64) string {
	return listPrefix + strconv.FormatInt(subjectID, 10)
}

// Create registers tokenID for subjectID with the given ttl, evicting the
// oldest surviving token when the subject already holds maxTokens.
func (m *Manager) Create(ctx context.Context, subjectID int64, tokenID string, ttl time.Duration, maxTokens int) error {
	keys := []string{flagPrefix + tokenID, listKey(subjectID)}
	err := createScript.Run(ctx, m.client, keys, int64(ttl.Seconds()), tokenID, maxTokens).Err()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// IsValid reports whether tokenID still has a live existence flag. A token
// absent from the flag store is expired or revoked, whatever the caller holds.
func (m *Manager) IsValid(ctx context.Context, tokenID string) (bool, error) {
	n, err := m.client.Exists(ctx, flagPrefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("check session: %w", err)
	}
	return n > 0, nil
}

// RevokeAll drops every token the subject holds, flags and list both.
func (m *Manager) RevokeAll(ctx context.Context, subjectID int64) error {
	key := listKey(subjectID)
	ids, err := m.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	pipe := m.client.Pipeline()
	for _, id := range ids {
		pipe.Del(ctx, flagPrefix+id)
	}
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return nil
}
