package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	linkPrefix   = "link:"
	clicksPrefix = "clicks:"
	visitStream  = "visit_log"
)

// VisitEvent is one unreconciled visit, appended to the visit stream and
// drained into the durable visit_logs table later.
type VisitEvent struct {
	ShortCode string
	LongURL   string
	IP        string
	UserAgent string
	Referer   string
	VisitTime time.Time
}

// VisitEntry is a stream entry: the event plus the id needed to delete it
// after it has been made durable.
type VisitEntry struct {
	ID    string
	Event VisitEvent
}

type LinkCache struct {
	client *redis.Client
}

func NewLinkCache(client *redis.Client) *LinkCache {
	return &LinkCache{client: client}
}

// GetLongURL returns the cached long URL for code, or "" on a miss.
func (c *LinkCache) GetLongURL(ctx context.Context, code string) (string, error) {
	val, err := c.client.Get(ctx, linkPrefix+code).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (c *LinkCache) SetLink(ctx context.Context, code, longURL string, ttl time.Duration) error {
	return c.client.Set(ctx, linkPrefix+code, longURL, ttl).Err()
}

// Delete drops the cache entry and click counter for each code.
func (c *LinkCache) Delete(ctx context.Context, codes ...string) error {
	if len(codes) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	for _, code := range codes {
		pipe.Unlink(ctx, linkPrefix+code, clicksPrefix+code)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// InitClickCounter creates the counter at 0 with a TTL, only if absent.
// Concurrent increments are never clobbered.
func (c *LinkCache) InitClickCounter(ctx context.Context, code string, ttl time.Duration) error {
	return c.client.SetNX(ctx, clicksPrefix+code, 0, ttl).Err()
}

// IncrClick bumps the counter. The TTL is (re)armed only when the observed
// value is 1: a counter deleted concurrently gets a fresh window, an existing
// one keeps its own.
func (c *LinkCache) IncrClick(ctx context.Context, code string, ttl time.Duration) error {
	n, err := c.client.Incr(ctx, clicksPrefix+code).Result()
	if err != nil {
		return err
	}
	if n == 1 {
		return c.client.Expire(ctx, clicksPrefix+code, ttl).Err()
	}
	return nil
}

// ScanClickCounters walks click-counter keys with a cursor and returns the
// short codes of the batch. Never blocks the store the way a full listing would.
func (c *LinkCache) ScanClickCounters(ctx context.Context, cursor uint64, count int64) ([]string, uint64, error) {
	keys, next, err := c.client.Scan(ctx, cursor, clicksPrefix+"*", count).Result()
	if err != nil {
		return nil, 0, err
	}
	codes := make([]string, 0, len(keys))
	for _, key := range keys {
		codes = append(codes, key[len(clicksPrefix):])
	}
	return codes, next, nil
}

func (c *LinkCache) ClickCount(ctx context.Context, code string) (int64, error) {
	n, err := c.client.Get(ctx, clicksPrefix+code).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

// ResetClickCount sets the counter back to 0 rather than deleting it, so a
// concurrent increment cannot race a create-if-absent. The TTL is dropped;
// the next increment observes 1 and rearms it.
func (c *LinkCache) ResetClickCount(ctx context.Context, code string) error {
	return c.client.Set(ctx, clicksPrefix+code, 0, 0).Err()
}

func (c *LinkCache) AppendVisit(ctx context.Context, v *VisitEvent) error {
	return c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: visitStream,
		Values: map[string]interface{}{
			"short_code": v.ShortCode,
			"long_url":   v.LongURL,
			"ip":         v.IP,
			"user_agent": v.UserAgent,
			"referer":    v.Referer,
			"visit_time": v.VisitTime.UTC().Format(time.RFC3339Nano),
		},
	}).Err()
}

// ReadVisits returns up to count entries from the head of the visit stream,
// in arrival order. Entries stay in the stream until DeleteVisit.
func (c *LinkCache) ReadVisits(ctx context.Context, count int64) ([]VisitEntry, error) {
	msgs, err := c.client.XRangeN(ctx, visitStream, "-", "+", count).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]VisitEntry, 0, len(msgs))
	for _, msg := range msgs {
		entry := VisitEntry{ID: msg.ID}
		entry.Event.ShortCode = stringValue(msg.Values, "short_code")
		entry.Event.LongURL = stringValue(msg.Values, "long_url")
		entry.Event.IP = stringValue(msg.Values, "ip")
		entry.Event.UserAgent = stringValue(msg.Values, "user_agent")
		entry.Event.Referer = stringValue(msg.Values, "referer")
		if ts, err := time.Parse(time.RFC3339Nano, stringValue(msg.Values, "visit_time")); err == nil {
			entry.Event.VisitTime = ts
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (c *LinkCache) DeleteVisit(ctx context.Context, id string) error {
	return c.client.XDel(ctx, visitStream, id).Err()
}

func stringValue(values map[string]interface{}, key string) string {
	if s, ok := values[key].(string); ok {
		return s
	}
	return ""
}
