package chapter

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"mazequiz/pkg/interfaces"
	"mazequiz/pkg/types"
)

// Engine enforces chapter/round sequencing over the session store:
// chapters unlock strictly in order, a user holds at most one
// in-progress session per chapter, and rounds are requested in order
// with idempotent resumption.
//
// Round read-modify-write is not transactional; the hub serializes
// events per process, and the store's version column is the hook for
// an optimistic check if chapter sessions ever get concurrent writers.
type Engine struct {
	store interfaces.SessionStore
}

// NewEngine creates a progression engine.
func NewEngine(store interfaces.SessionStore) *Engine {
	return &Engine{store: store}
}

// StartChapterSession validates the unlock rules and creates a new
// in-progress session at round 1. The user's progress pointer moves
// exactly once per newly unlocked chapter.
func (e *Engine) StartChapterSession(ctx context.Context, userID string, chapterLevel int) (*types.ChapterSession, error) {
	if chapterLevel <= 0 {
		return nil, ErrChapterNotUnlocked
	}

	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	newlyUnlocked := false
	switch {
	case user.CurrentChapterLevel == 0 && chapterLevel == 1:
		newlyUnlocked = true
	case user.CurrentChapterLevel == 0:
		return nil, ErrChapterNotUnlocked
	case chapterLevel > user.CurrentChapterLevel+1:
		return nil, ErrChapterNotUnlocked
	case chapterLevel == user.CurrentChapterLevel+1:
		done, err := e.store.HasDoneChapterSession(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to check completed chapters: %w", err)
		}
		if !done {
			return nil, ErrChapterNotUnlocked
		}
		newlyUnlocked = true
	}

	chapter, err := e.store.GetChapterByLevel(ctx, chapterLevel)
	if err != nil {
		return nil, err
	}

	_, err = e.store.GetActiveChapterSession(ctx, userID, chapter.ID)
	switch {
	case err == nil:
		return nil, ErrChapterAlreadyInProgress
	case !errors.Is(err, interfaces.ErrSessionNotFound):
		return nil, fmt.Errorf("failed to check active sessions: %w", err)
	}

	if newlyUnlocked {
		if err := e.store.SetUserChapterLevel(ctx, userID, chapterLevel); err != nil {
			return nil, fmt.Errorf("failed to advance chapter pointer: %w", err)
		}
	}

	session := &types.ChapterSession{
		ID:           uuid.New().String(),
		ChapterID:    chapter.ID,
		UserID:       userID,
		Status:       types.ChapterInProgress,
		CurrentRound: 1,
		Rounds:       []string{},
		CreatedAt:    time.Now().UTC(),
	}
	if err := e.store.CreateChapterSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create chapter session: %w", err)
	}

	log.Printf("Chapter session started: id=%s user=%s chapter=%d", session.ID, userID, chapterLevel)
	return session, nil
}

// CreateRoundSession starts (or resumes) the chapter session's current
// round. Two consecutive calls with the same arguments return the same
// round session as long as it is still open.
func (e *Engine) CreateRoundSession(ctx context.Context, chapterSessionID string, round int, userID string) (*types.RoundSession, error) {
	session, err := e.store.GetChapterSession(ctx, chapterSessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, ErrAccessDenied
	}
	if round != session.CurrentRound {
		return nil, ErrRoundOutOfSequence
	}

	chapter, err := e.store.GetChapter(ctx, session.ChapterID)
	if err != nil {
		return nil, err
	}

	// Idempotent resume: an open round session at this index is handed
	// back unchanged instead of creating a duplicate.
	if round <= len(session.Rounds) && session.Rounds[round-1] != "" {
		existing, err := e.store.GetRoundSession(ctx, session.Rounds[round-1])
		if err == nil && existing.Status == types.RoundInProgress {
			return existing, nil
		}
		if err != nil && !errors.Is(err, interfaces.ErrRoundNotFound) {
			return nil, fmt.Errorf("failed to load existing round: %w", err)
		}
	}

	level := 1
	if round <= len(chapter.RoundLevels) {
		level = chapter.RoundLevels[round-1]
	}

	created, err := e.store.CreateRoundSession(ctx, userID, session.ID, level)
	if err != nil {
		return nil, fmt.Errorf("failed to create round session: %w", err)
	}

	for len(session.Rounds) < round {
		session.Rounds = append(session.Rounds, "")
	}
	session.Rounds[round-1] = created.ID

	if err := e.store.UpdateChapterSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to persist round reference: %w", err)
	}

	return created, nil
}

// GetChapterSession returns an owner-checked chapter session.
func (e *Engine) GetChapterSession(ctx context.Context, userID, chapterSessionID string) (*types.ChapterSession, error) {
	session, err := e.store.GetChapterSession(ctx, chapterSessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, ErrAccessDenied
	}
	return session, nil
}

// GetChapterScore sums the score of every referenced round session.
// A session with no rounds scores 0.
func (e *Engine) GetChapterScore(ctx context.Context, chapterSessionID string) (int, error) {
	session, err := e.store.GetChapterSession(ctx, chapterSessionID)
	if err != nil {
		return 0, err
	}

	scores := make([]int, 0, len(session.Rounds))
	for _, roundID := range session.Rounds {
		if roundID == "" {
			continue
		}
		round, err := e.store.GetRoundSession(ctx, roundID)
		if err != nil {
			return 0, fmt.Errorf("failed to load round %s: %w", roundID, err)
		}
		scores = append(scores, round.Score)
	}

	return lo.Sum(scores), nil
}

// GetTotalScore walks every chapter from 1 up to the user's progress
// pointer and sums the chapter scores, skipping chapters the user never
// played.
func (e *Engine) GetTotalScore(ctx context.Context, userID string) (int, error) {
	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to load user: %w", err)
	}

	total := 0
	for level := 1; level <= user.CurrentChapterLevel; level++ {
		chapter, err := e.store.GetChapterByLevel(ctx, level)
		if errors.Is(err, interfaces.ErrChapterNotFound) {
			continue
		}
		if err != nil {
			return 0, err
		}

		session, err := e.store.GetChapterSessionByChapter(ctx, userID, chapter.ID)
		if errors.Is(err, interfaces.ErrSessionNotFound) {
			continue
		}
		if err != nil {
			return 0, err
		}

		score, err := e.GetChapterScore(ctx, session.ID)
		if err != nil {
			return 0, err
		}
		total += score
	}

	return total, nil
}
