package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"shortlink/pkg/config"
	"shortlink/pkg/limiter"
	"shortlink/pkg/logging"
	"shortlink/pkg/session"
	"shortlink/pkg/storage"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type UserService struct {
	users    storage.UserStore
	sessions *session.Manager
	limiter  *limiter.Limiter
	cfg      *config.Store
	logger   *logging.Logger
}

func NewUserService(users storage.UserStore, sessions *session.Manager, lim *limiter.Limiter, cfg *config.Store, logger *logging.Logger) *UserService {
	return &UserService{
		users:    users,
		sessions: sessions,
		limiter:  lim,
		cfg:      cfg,
		logger:   logger,
	}
}

type LoginResponse struct {
	Token    string  `json:"token"`
	Nickname *string `json:"nickname,omitempty"`
}

// Register creates an account, bounded per source IP over the registration
// window. The attempt is counted after validation so probing rejected input
// does not burn the quota.
func (s *UserService) Register(ctx context.Context, nickname, email, password, ip string) error {
	cfg := s.cfg.Snapshot()
	registerKey := limiter.RegisterKey(ip)

	count, err := s.limiter.Count(ctx, registerKey)
	if err != nil {
		return fmt.Errorf("registration counter: %w", err)
	}
	if count >= cfg.RegisterRate.Limit {
		return ErrRateLimited
	}

	exists, err := s.users.EmailExists(ctx, email)
	if err != nil {
		return fmt.Errorf("check email: %w", err)
	}
	if exists {
		return errors.New("email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.limiter.Record(ctx, registerKey, cfg.RegisterRate.Window); err != nil {
		return fmt.Errorf("record registration: %w", err)
	}
	if err := s.users.CreateUser(ctx, nickname, email, string(hash)); err != nil {
		return err
	}

	s.logger.LogAuthEvent(ctx, "register", email, true)
	return nil
}

// Login verifies credentials behind the login-failure counters: checked
// before verification, incremented only on a verification failure, cleared
// on success. On success it issues a token bounded by the session set.
func (s *UserService) Login(ctx context.Context, email, password, ip string) (*LoginResponse, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if user == nil {
		return nil, ErrNotFound
	}

	cfg := s.cfg.Snapshot()
	userFailKey := limiter.LoginFailUserKey(user.ID)
	ipUserFailKey := limiter.LoginFailIPUserKey(ip, user.ID)

	userFails, err := s.limiter.Count(ctx, userFailKey)
	if err != nil {
		return nil, fmt.Errorf("login failure counter: %w", err)
	}
	if userFails >= cfg.UserLoginFail.Limit {
		return nil, ErrRateLimited
	}
	ipUserFails, err := s.limiter.Count(ctx, ipUserFailKey)
	if err != nil {
		return nil, fmt.Errorf("login failure counter: %w", err)
	}
	if ipUserFails >= cfg.IPUserLoginFail.Limit {
		return nil, ErrRateLimited
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		if err := s.limiter.Record(ctx, userFailKey, cfg.UserLoginFail.TTL); err != nil {
			s.logger.Warn(ctx, "record login failure failed", "error", err)
		}
		if err := s.limiter.Record(ctx, ipUserFailKey, cfg.IPUserLoginFail.TTL); err != nil {
			s.logger.Warn(ctx, "record login failure failed", "error", err)
		}
		s.logger.LogAuthEvent(ctx, "login", email, false)
		return nil, ErrUnauthorized
	}

	jti := uuid.New().String()
	if err := s.sessions.Create(ctx, user.ID, jti, cfg.TokenTTL, cfg.MaxSessions); err != nil {
		return nil, err
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(user.ID, 10),
		ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TokenTTL)),
		IssuedAt:  jwt.NewNumericDate(now),
		ID:        jti,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	if err := s.limiter.Clear(ctx, userFailKey, ipUserFailKey); err != nil {
		s.logger.Warn(ctx, "clear login failure counters failed", "error", err)
	}
	s.logger.LogAuthEvent(ctx, "login", email, true)

	return &LoginResponse{Token: token, Nickname: user.Nickname}, nil
}

// Logout revokes every live session the subject holds.
func (s *UserService) Logout(ctx context.Context, userID int64) error {
	return s.sessions.RevokeAll(ctx, userID)
}
