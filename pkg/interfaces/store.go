package interfaces

import (
	"context"
	"mazequiz/pkg/types"
)

// SessionStore handles all persistence for users, chapter definitions,
// chapter sessions, round sessions and the ranking query. Round
// sessions are owned by the maze; this core only creates references,
// reads status/score and ends them on disconnect.
type SessionStore interface {
	// EnsureUser creates the user row on first connect and returns the
	// stored projection either way.
	EnsureUser(ctx context.Context, userID, username string) (*types.User, error)

	// GetUser retrieves the user projection including the chapter
	// progress pointer. Returns ErrUserNotFound when absent.
	GetUser(ctx context.Context, userID string) (*types.User, error)

	// SetUserChapterLevel moves the user's progress pointer. Called
	// exactly once per newly unlocked chapter.
	SetUserChapterLevel(ctx context.Context, userID string, level int) error

	// GetChapter retrieves a chapter definition by id.
	GetChapter(ctx context.Context, chapterID string) (*types.Chapter, error)

	// GetChapterByLevel retrieves the chapter definition at a level.
	// Returns ErrChapterNotFound when no chapter exists at that level.
	GetChapterByLevel(ctx context.Context, level int) (*types.Chapter, error)

	// CreateChapterSession persists a new chapter session.
	CreateChapterSession(ctx context.Context, session *types.ChapterSession) error

	// GetChapterSession retrieves a chapter session by id. Returns
	// ErrSessionNotFound when absent.
	GetChapterSession(ctx context.Context, sessionID string) (*types.ChapterSession, error)

	// UpdateChapterSession persists rounds/current round/status changes
	// and bumps the session version.
	UpdateChapterSession(ctx context.Context, session *types.ChapterSession) error

	// GetActiveChapterSession finds the in-progress session for
	// (user, chapter). Returns ErrSessionNotFound when there is none.
	GetActiveChapterSession(ctx context.Context, userID, chapterID string) (*types.ChapterSession, error)

	// GetChapterSessionByChapter finds any session for (user, chapter)
	// regardless of status. Returns ErrSessionNotFound when absent.
	GetChapterSessionByChapter(ctx context.Context, userID, chapterID string) (*types.ChapterSession, error)

	// HasDoneChapterSession reports whether the user has completed any
	// chapter session; gates unlocking the next chapter.
	HasDoneChapterSession(ctx context.Context, userID string) (bool, error)

	// CreateRoundSession asks the maze boundary for a fresh round at
	// the given difficulty level.
	CreateRoundSession(ctx context.Context, userID, chapterSessionID string, level int) (*types.RoundSession, error)

	// GetRoundSession retrieves a round session reference. Returns
	// ErrRoundNotFound when absent.
	GetRoundSession(ctx context.Context, sessionID string) (*types.RoundSession, error)

	// EndRoundSession marks an open round session done; no-op if it
	// already is. Used for disconnect cleanup.
	EndRoundSession(ctx context.Context, sessionID string) error

	// AdvanceRoundLevel bumps the round's level and score after the
	// maze reports a cleared level.
	AdvanceRoundLevel(ctx context.Context, sessionID string) (*types.RoundSession, error)

	// RecordMove records a single maze move and returns the updated
	// round snapshot. Move legality is the maze's concern, not ours.
	RecordMove(ctx context.Context, sessionID, userID, move string) (*types.RoundSession, error)

	// FindTopRanking returns the top-N leaderboard by ledger balance.
	FindTopRanking(ctx context.Context, limit int) ([]*types.RankingEntry, error)

	// HealthCheck verifies connectivity and basic read access.
	HealthCheck(ctx context.Context) error

	// Close flushes pending writes and closes the store.
	Close() error
}
