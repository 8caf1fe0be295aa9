package types

import "regexp"

// Compiled once at package initialization; validation runs on every
// inbound connection and event.
var userIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// IsValidUserID checks that a user id is 1-50 chars of [a-zA-Z0-9_-].
func IsValidUserID(userID string) bool {
	if len(userID) < 1 || len(userID) > 50 {
		return false
	}
	return userIDRegex.MatchString(userID)
}

// IsValidInboundEvent checks that an event name is one the dispatcher
// understands. Unknown names are rejected before they reach the hub.
func IsValidInboundEvent(event string) bool {
	switch event {
	case EventStartQuiz,
		EventAnswerQuiz,
		EventStartChapter,
		EventStartRound,
		EventStartMazeMove:
		return true
	default:
		return false
	}
}

// Validate rejects envelopes that could not be dispatched.
func (e *Envelope) Validate() error {
	if !IsValidInboundEvent(e.Event) {
		return ErrInvalidEvent
	}
	return nil
}
