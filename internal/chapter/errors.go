package chapter

import "errors"

// Domain errors surfaced verbatim to the requesting connection; the
// messages are pre-validated and user-facing.
var (
	ErrChapterNotUnlocked       = errors.New("this chapter will be unlocked when you finish all the previous chapters")
	ErrChapterAlreadyInProgress = errors.New("another chapter is in progress, please finish it first")
	ErrRoundOutOfSequence       = errors.New("you cannot start this round yet")
	ErrAccessDenied             = errors.New("you cannot access this chapter session")
)
