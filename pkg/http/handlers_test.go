package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"shortlink/pkg/cache"
	"shortlink/pkg/config"
	"shortlink/pkg/logging"
	"shortlink/pkg/service"
	"shortlink/pkg/storage"
	"shortlink/pkg/worker"
)

// staticLinkStore serves a fixed set of links; the write paths are unused by
// the handlers under test.
type staticLinkStore struct {
	links map[string]*storage.Link
}

func (s *staticLinkStore) Begin(ctx context.Context) (storage.LinkTx, error) {
	return nil, errors.New("not supported")
}

func (s *staticLinkStore) GetByCode(ctx context.Context, code string) (*storage.Link, error) {
	return s.links[code], nil
}

func (s *staticLinkStore) Find(ctx context.Context, f *storage.LinkFilter, limit, offset int64) ([]storage.Link, int64, error) {
	return nil, 0, nil
}

func (s *staticLinkStore) DeleteByIDs(ctx context.Context, ids []int64, ownerID int64) ([]string, error) {
	return nil, nil
}

func (s *staticLinkStore) AddClicks(ctx context.Context, code string, n int64) error { return nil }
func (s *staticLinkStore) DeleteExpired(ctx context.Context) (int64, error)          { return 0, nil }
func (s *staticLinkStore) OwnsCode(ctx context.Context, code string, ownerID int64) (bool, error) {
	return false, nil
}
func (s *staticLinkStore) DailyVisits(ctx context.Context, code string, since time.Time) (map[string]int64, error) {
	return nil, nil
}

func newRedirectRouter(t *testing.T, links map[string]*storage.Link) *chi.Mux {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := logging.NewLogger(logging.LevelError)
	cfg := config.New(config.Config{
		BaseURL:     "http://sho.rt",
		CacheMaxTTL: time.Hour,
		CacheMinTTL: time.Minute,
	})
	svc := service.NewLinkService(
		&staticLinkStore{links: links},
		cache.NewLinkCache(client),
		worker.NewDispatcher(16, 2, logger),
		cfg,
		logger,
	)
	handler := NewHandler(svc, nil)

	r := chi.NewRouter()
	r.Get("/health", handler.HealthCheck)
	r.Get("/s/{code}", handler.Redirect)
	return r
}

func TestRedirectFound(t *testing.T) {
	router := newRedirectRouter(t, map[string]*storage.Link{
		"abc": {ID: 1, LongURL: "https://example.com/target"},
	})

	req := httptest.NewRequest(http.MethodGet, "/s/abc", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://example.com/target", rec.Header().Get("Location"))
}

func TestRedirectUnknownCode(t *testing.T) {
	router := newRedirectRouter(t, map[string]*storage.Link{})

	req := httptest.NewRequest(http.MethodGet, "/s/missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRedirectExpiredCode(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	router := newRedirectRouter(t, map[string]*storage.Link{
		"gone": {ID: 1, LongURL: "https://example.com", ExpireAt: &past},
	})

	req := httptest.NewRequest(http.MethodGet, "/s/gone", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusGone, rec.Code)
}

func TestHealthCheck(t *testing.T) {
	router := newRedirectRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestWriteErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"not found", service.ErrNotFound, http.StatusNotFound},
		{"expired", service.ErrExpired, http.StatusGone},
		{"code taken", service.ErrCodeTaken, http.StatusBadRequest},
		{"rate limited", service.ErrRateLimited, http.StatusTooManyRequests},
		{"unauthorized", service.ErrUnauthorized, http.StatusUnauthorized},
		{"unavailable", service.ErrUnavailable, http.StatusServiceUnavailable},
		{"exhausted", service.ErrExhausted, http.StatusInternalServerError},
		{"wrapped sentinel", fmt.Errorf("load link: %w", service.ErrNotFound), http.StatusNotFound},
		{"validation error", errors.New("invalid URL"), http.StatusBadRequest},
		{"wrapped store error", fmt.Errorf("load link: %w", errors.New("conn refused")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tt.err)
			assert.Equal(t, tt.expected, rec.Code)
		})
	}
}

func TestWriteErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, fmt.Errorf("load link: %w", errors.New("password=hunter2")))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "hunter2")
}

func TestParseIntDefault(t *testing.T) {
	assert.Equal(t, int64(10), parseIntDefault("", 10))
	assert.Equal(t, int64(25), parseIntDefault("25", 10))
	assert.Equal(t, int64(10), parseIntDefault("abc", 10))
}
