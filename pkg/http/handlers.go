package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"shortlink/pkg/cache"
	"shortlink/pkg/middleware"
	"shortlink/pkg/service"
	"shortlink/pkg/storage"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	links *service.LinkService
	users *service.UserService
}

func NewHandler(links *service.LinkService, users *service.UserService) *Handler {
	return &Handler{links: links, users: users}
}

type registerRequest struct {
	Nickname string `json:"nickname"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if len(req.Nickname) < 2 || len(req.Password) < 8 || req.Email == "" {
		http.Error(w, "invalid registration payload", http.StatusBadRequest)
		return
	}
	err := h.users.Register(r.Context(), req.Nickname, req.Email, req.Password, middleware.ClientIP(r))
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	resp, err := h.users.Login(r.Context(), req.Email, req.Password, middleware.ClientIP(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, resp)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if err := h.users.Logout(r.Context(), user.ID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Shorten(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req service.CreateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	resp, err := h.links.Create(r.Context(), user.ID, &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, resp)
}

func (h *Handler) Redirect(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	visit := &cache.VisitEvent{
		IP:        middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
		Referer:   r.Referer(),
	}
	longURL, err := h.links.Resolve(r.Context(), code, visit)
	if err != nil {
		writeError(w, err)
		return
	}
	http.Redirect(w, r, longURL, http.StatusFound)
}

func (h *Handler) ListLinks(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	q := r.URL.Query()
	filter := &storage.LinkFilter{
		OwnerID:   user.ID,
		ShortCode: q.Get("short_code"),
		LongURL:   q.Get("long_url"),
	}
	if from := q.Get("date_from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			filter.DateFrom = &t
		}
	}
	if to := q.Get("date_to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			filter.DateTo = &t
		}
	}
	limit := parseIntDefault(q.Get("limit"), 10)
	if limit < 1 || limit > 100 {
		http.Error(w, "limit must be between 1 and 100", http.StatusBadRequest)
		return
	}
	offset := parseIntDefault(q.Get("offset"), 0)

	links, count, err := h.links.List(r.Context(), filter, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"links": links, "count": count})
}

type deleteLinksRequest struct {
	IDs []int64 `json:"ids"`
}

func (h *Handler) DeleteLinks(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req deleteLinksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if len(req.IDs) == 0 || len(req.IDs) > 50 {
		http.Error(w, "ids must contain between 1 and 50 entries", http.StatusBadRequest)
		return
	}
	if err := h.links.Delete(r.Context(), user.ID, req.IDs); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	code := r.URL.Query().Get("short_code")
	if code == "" {
		http.Error(w, "short_code is required", http.StatusBadRequest)
		return
	}
	days := int(parseIntDefault(r.URL.Query().Get("days"), 30))
	stats, err := h.links.Stats(r.Context(), user.ID, code, days)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, stats)
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func parseIntDefault(s string, def int64) int64 {
	if s == "" {
		return def
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, service.ErrExpired):
		http.Error(w, err.Error(), http.StatusGone)
	case errors.Is(err, service.ErrCodeTaken):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, service.ErrRateLimited):
		http.Error(w, err.Error(), http.StatusTooManyRequests)
	case errors.Is(err, service.ErrUnauthorized):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, service.ErrUnavailable):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, service.ErrExhausted):
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		// Validation failures are plain errors from the service layer;
		// anything wrapped is a store error.
		if isInternal(err) {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}

func isInternal(err error) bool {
	return errors.Unwrap(err) != nil
}
