package service

import "errors"

// Sentinel errors for the request path. Anything not in this taxonomy is an
// internal store error and reaches the caller wrapped.
var (
	ErrNotFound     = errors.New("short code not found")
	ErrExpired      = errors.New("link expired")
	ErrCodeTaken    = errors.New("short code already exists")
	ErrExhausted    = errors.New("unable to generate unique short code")
	ErrRateLimited  = errors.New("too many requests")
	ErrUnauthorized = errors.New("unauthorized")
	ErrUnavailable  = errors.New("store unavailable")
)
