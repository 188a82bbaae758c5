package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"shortlink/pkg/cache"
	"shortlink/pkg/config"
	"shortlink/pkg/logging"
	"shortlink/pkg/storage"
	"shortlink/pkg/worker"
)

type LinkService struct {
	store      storage.LinkStore
	cache      *cache.LinkCache
	dispatcher *worker.Dispatcher
	cfg        *config.Store
	logger     *logging.Logger
}

func NewLinkService(store storage.LinkStore, linkCache *cache.LinkCache, dispatcher *worker.Dispatcher, cfg *config.Store, logger *logging.Logger) *LinkService {
	return &LinkService{
		store:      store,
		cache:      linkCache,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger,
	}
}

type CreateLinkRequest struct {
	LongURL    string  `json:"long_url"`
	TTLSeconds *int64  `json:"ttl,omitempty"`
	Code       *string `json:"short_code,omitempty"`
}

type CreateLinkResponse struct {
	Code     string `json:"code"`
	ShortURL string `json:"short_url"`
}

// Resolve maps a short code to its long URL: cache first, durable store on a
// miss. Every outcome that returns a URL schedules telemetry; the resolution
// itself never waits on it.
func (s *LinkService) Resolve(ctx context.Context, code string, visit *cache.VisitEvent) (string, error) {
	longURL, err := s.cache.GetLongURL(ctx, code)
	if err != nil {
		// A cache failure costs a store read, never the resolution.
		s.logger.Warn(ctx, "cache read failed", "code", code, "error", err)
	}
	if longURL != "" {
		s.scheduleVisit(ctx, code, longURL, visit)
		return longURL, nil
	}

	link, err := s.store.GetByCode(ctx, code)
	if err != nil {
		return "", fmt.Errorf("load link: %w", err)
	}
	if link == nil {
		return "", ErrNotFound
	}

	cfg := s.cfg.Snapshot()
	cacheTTL := cfg.CacheMaxTTL
	if link.ExpireAt != nil {
		remaining := time.Until(*link.ExpireAt)
		if remaining <= 0 {
			return "", ErrExpired
		}
		if remaining <= cfg.CacheMinTTL {
			// Soon-to-expire records are not worth caching.
			cacheTTL = 0
		} else if remaining < cacheTTL {
			cacheTTL = remaining
		}
	}
	if cacheTTL > 0 {
		if err := s.cache.SetLink(ctx, code, link.LongURL, cacheTTL); err != nil {
			s.logger.Warn(ctx, "cache write failed", "code", code, "error", err)
		}
	}

	s.scheduleVisit(ctx, code, link.LongURL, visit)
	return link.LongURL, nil
}

// scheduleVisit enqueues the click increment and visit event. A full queue
// drops the telemetry for this request; cached and durable state are
// untouched until the job runs, so the drop is silent and safe.
func (s *LinkService) scheduleVisit(ctx context.Context, code, longURL string, visit *cache.VisitEvent) {
	event := cache.VisitEvent{
		ShortCode: code,
		LongURL:   longURL,
		VisitTime: time.Now(),
	}
	if visit != nil {
		event.IP = visit.IP
		event.UserAgent = visit.UserAgent
		event.Referer = visit.Referer
	}
	job := worker.Job{
		Name: "record_visit",
		Run: func(ctx context.Context) error {
			counterTTL := s.cfg.Snapshot().CacheMaxTTL
			if err := s.cache.IncrClick(ctx, code, counterTTL); err != nil {
				return fmt.Errorf("increment click counter: %w", err)
			}
			if err := s.cache.AppendVisit(ctx, &event); err != nil {
				return fmt.Errorf("append visit event: %w", err)
			}
			return nil
		},
	}
	if err := s.dispatcher.Submit(job); err != nil {
		s.logger.Warn(ctx, "telemetry dropped", "code", code, "error", err)
	}
}

// Create inserts the record and assigns a code inside one transaction.
// A caller-supplied code gets a single attempt; a generated one retries
// successive base62 offsets of the record id until unique.
func (s *LinkService) Create(ctx context.Context, ownerID int64, req *CreateLinkRequest) (*CreateLinkResponse, error) {
	if err := validateLongURL(req.LongURL); err != nil {
		return nil, err
	}

	cfg := s.cfg.Snapshot()
	var expireAt *time.Time
	var ttl time.Duration
	if req.TTLSeconds != nil {
		ttl = time.Duration(*req.TTLSeconds) * time.Second
		if ttl < cfg.LinkMinTTL || ttl > cfg.LinkMaxTTL {
			return nil, fmt.Errorf("ttl must be between %d and %d seconds",
				int64(cfg.LinkMinTTL.Seconds()), int64(cfg.LinkMaxTTL.Seconds()))
		}
		at := time.Now().Add(ttl)
		expireAt = &at
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin create: %w", err)
	}
	defer tx.Rollback(ctx)

	id, err := tx.InsertLink(ctx, req.LongURL, ownerID, expireAt)
	if err != nil {
		return nil, err
	}

	var code string
	if req.Code != nil {
		if !ValidateCode(*req.Code) {
			return nil, errors.New("invalid short code")
		}
		if err := tx.AssignCode(ctx, id, *req.Code); err != nil {
			if errors.Is(err, storage.ErrCodeTaken) {
				return nil, ErrCodeTaken
			}
			return nil, err
		}
		code = *req.Code
	} else {
		for i := 0; i < maxCodeAttempts; i++ {
			candidate := encodeBase62(uint64(id) + uint64(i))
			err := tx.AssignCode(ctx, id, candidate)
			if errors.Is(err, storage.ErrCodeTaken) {
				continue
			}
			if err != nil {
				return nil, err
			}
			code = candidate
			break
		}
		if code == "" {
			return nil, ErrExhausted
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit create: %w", err)
	}
	s.logger.LogLinkOperation(ctx, "create", code, true)

	// Warm the cache and counter off the request path; the durable record
	// is authoritative if either write is lost.
	s.scheduleWarmCache(ctx, code, req.LongURL, ttl)

	return &CreateLinkResponse{
		Code:     code,
		ShortURL: strings.TrimRight(cfg.BaseURL, "/") + "/s/" + code,
	}, nil
}

func (s *LinkService) scheduleWarmCache(ctx context.Context, code, longURL string, ttl time.Duration) {
	job := worker.Job{
		Name: "warm_cache",
		Run: func(ctx context.Context) error {
			cfg := s.cfg.Snapshot()
			cacheTTL := cfg.CacheMaxTTL
			counterTTL := cfg.CacheMaxTTL
			if ttl > 0 {
				if ttl < cacheTTL {
					cacheTTL = ttl
				}
				counterTTL = ttl
			}
			if err := s.cache.SetLink(ctx, code, longURL, cacheTTL); err != nil {
				return fmt.Errorf("warm link cache: %w", err)
			}
			if err := s.cache.InitClickCounter(ctx, code, counterTTL); err != nil {
				return fmt.Errorf("init click counter: %w", err)
			}
			return nil
		},
	}
	if err := s.dispatcher.Submit(job); err != nil {
		s.logger.Warn(ctx, "cache warm dropped", "code", code, "error", err)
	}
}

func (s *LinkService) List(ctx context.Context, f *storage.LinkFilter, limit, offset int64) ([]storage.Link, int64, error) {
	return s.store.Find(ctx, f, limit, offset)
}

// Delete removes the caller's links among ids. Ids the caller does not own
// are silently skipped; the ownership filter lives in the delete query.
func (s *LinkService) Delete(ctx context.Context, ownerID int64, ids []int64) error {
	codes, err := s.store.DeleteByIDs(ctx, ids, ownerID)
	if err != nil {
		return fmt.Errorf("delete links: %w", err)
	}
	if err := s.cache.Delete(ctx, codes...); err != nil {
		s.logger.Warn(ctx, "cache invalidation failed", "error", err)
	}
	return nil
}

type DailyClicks struct {
	Day   string `json:"day"`
	Count int64  `json:"count"`
}

// Stats returns per-day visit counts for the caller's code over the last
// days days, gaps zero-filled.
func (s *LinkService) Stats(ctx context.Context, ownerID int64, code string, days int) ([]DailyClicks, error) {
	maxDays := s.cfg.Snapshot().MaxStatsDays
	if days < 1 || days > maxDays {
		return nil, fmt.Errorf("days must be between 1 and %d", maxDays)
	}
	owns, err := s.store.OwnsCode(ctx, code, ownerID)
	if err != nil {
		return nil, fmt.Errorf("check ownership: %w", err)
	}
	if !owns {
		return nil, ErrNotFound
	}

	start := time.Now().UTC().AddDate(0, 0, -(days - 1)).Truncate(24 * time.Hour)
	visits, err := s.store.DailyVisits(ctx, code, start)
	if err != nil {
		return nil, fmt.Errorf("daily visits: %w", err)
	}

	stats := make([]DailyClicks, 0, days)
	for i := 0; i < days; i++ {
		day := start.AddDate(0, 0, i).Format("2006-01-02")
		stats = append(stats, DailyClicks{Day: day, Count: visits[day]})
	}
	return stats, nil
}

func validateLongURL(raw string) error {
	parsed, err := url.ParseRequestURI(raw)
	if err != nil {
		return errors.New("invalid URL")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errors.New("invalid URL scheme: only http and https allowed")
	}
	host := strings.Split(parsed.Host, ":")[0]
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
			return errors.New("invalid URL: private or loopback addresses not allowed")
		}
	} else if strings.Contains(strings.ToLower(host), "localhost") {
		return errors.New("invalid URL: localhost not allowed")
	}
	return nil
}
