package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"shortlink/pkg/config"
	"shortlink/pkg/logging"
	"shortlink/pkg/session"
	"shortlink/pkg/storage"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const userContextKey contextKey = "user"

// Auth validates bearer tokens against both the JWT signature and the
// server-side session flag, so an evicted or revoked token is rejected even
// while its signature is still valid.
type Auth struct {
	sessions *session.Manager
	users    storage.UserStore
	cfg      *config.Store
	logger   *logging.Logger
}

func NewAuth(sessions *session.Manager, users storage.UserStore, cfg *config.Store, logger *logging.Logger) *Auth {
	return &Auth{
		sessions: sessions,
		users:    users,
		cfg:      cfg,
		logger:   logger,
	}
}

func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		authHeader := r.Header.Get("Authorization")
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if authHeader == "" || tokenString == authHeader {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}

		secret := a.cfg.Snapshot().JWTSecret
		claims := &jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || !token.Valid {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		valid, err := a.sessions.IsValid(ctx, claims.ID)
		if err != nil {
			a.logger.Warn(ctx, "session check failed", "error", err)
			http.Error(w, "session store unavailable", http.StatusServiceUnavailable)
			return
		}
		if !valid {
			http.Error(w, "token expired", http.StatusUnauthorized)
			return
		}

		userID, err := strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		user, err := a.users.GetByID(ctx, userID)
		if err != nil {
			a.logger.Warn(ctx, "user lookup failed", "error", err)
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
		if user == nil || user.Status != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(ctx, user)))
	})
}

func WithUser(ctx context.Context, user *storage.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext returns the authenticated user, or nil outside the
// authenticated chain.
func UserFromContext(ctx context.Context) *storage.User {
	if user, ok := ctx.Value(userContextKey).(*storage.User); ok {
		return user
	}
	return nil
}
