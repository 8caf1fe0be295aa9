package interfaces

import "errors"

// Store-level errors shared across components.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrChapterNotFound = errors.New("chapter not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrRoundNotFound   = errors.New("round session not found")
)
