package service

import "errors"

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidRating       = errors.New("invalid rating")
	ErrUnknownMessage      = errors.New("unknown message")
	ErrSessionNotFound     = errors.New("session not found")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrProviderTimeout     = errors.New("provider timeout")
	ErrPersistence         = errors.New("persistence failure")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrNoKnowledgeMatch    = errors.New("no knowledge match")
	ErrDuplicatePattern    = errors.New("duplicate knowledge pattern")
)
