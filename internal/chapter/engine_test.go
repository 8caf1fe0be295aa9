package chapter

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"mazequiz/pkg/interfaces"
	"mazequiz/pkg/types"
)

// mockStore is an in-memory SessionStore for engine tests.
type mockStore struct {
	users           map[string]*types.User
	chapters        map[string]*types.Chapter
	chapterSessions map[string]*types.ChapterSession
	roundSessions   map[string]*types.RoundSession
	roundSeq        int
}

func newMockStore() *mockStore {
	return &mockStore{
		users:           make(map[string]*types.User),
		chapters:        make(map[string]*types.Chapter),
		chapterSessions: make(map[string]*types.ChapterSession),
		roundSessions:   make(map[string]*types.RoundSession),
	}
}

func (m *mockStore) addUser(id string, level int) {
	m.users[id] = &types.User{ID: id, Username: id, CurrentChapterLevel: level}
}

func (m *mockStore) addChapter(id string, level int, roundLevels ...int) {
	m.chapters[id] = &types.Chapter{ID: id, Level: level, RoundLevels: roundLevels}
}

func (m *mockStore) EnsureUser(ctx context.Context, userID, username string) (*types.User, error) {
	if u, ok := m.users[userID]; ok {
		return u, nil
	}
	m.addUser(userID, 0)
	return m.users[userID], nil
}

func (m *mockStore) GetUser(ctx context.Context, userID string) (*types.User, error) {
	u, ok := m.users[userID]
	if !ok {
		return nil, interfaces.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *mockStore) SetUserChapterLevel(ctx context.Context, userID string, level int) error {
	u, ok := m.users[userID]
	if !ok {
		return interfaces.ErrUserNotFound
	}
	u.CurrentChapterLevel = level
	return nil
}

func (m *mockStore) GetChapter(ctx context.Context, chapterID string) (*types.Chapter, error) {
	c, ok := m.chapters[chapterID]
	if !ok {
		return nil, interfaces.ErrChapterNotFound
	}
	return c, nil
}

func (m *mockStore) GetChapterByLevel(ctx context.Context, level int) (*types.Chapter, error) {
	for _, c := range m.chapters {
		if c.Level == level {
			return c, nil
		}
	}
	return nil, interfaces.ErrChapterNotFound
}

func (m *mockStore) CreateChapterSession(ctx context.Context, session *types.ChapterSession) error {
	copied := *session
	copied.Rounds = append([]string(nil), session.Rounds...)
	m.chapterSessions[session.ID] = &copied
	return nil
}

func (m *mockStore) GetChapterSession(ctx context.Context, sessionID string) (*types.ChapterSession, error) {
	s, ok := m.chapterSessions[sessionID]
	if !ok {
		return nil, interfaces.ErrSessionNotFound
	}
	copied := *s
	copied.Rounds = append([]string(nil), s.Rounds...)
	return &copied, nil
}

func (m *mockStore) UpdateChapterSession(ctx context.Context, session *types.ChapterSession) error {
	if _, ok := m.chapterSessions[session.ID]; !ok {
		return interfaces.ErrSessionNotFound
	}
	copied := *session
	copied.Version++
	copied.Rounds = append([]string(nil), session.Rounds...)
	m.chapterSessions[session.ID] = &copied
	session.Version = copied.Version
	return nil
}

func (m *mockStore) GetActiveChapterSession(ctx context.Context, userID, chapterID string) (*types.ChapterSession, error) {
	for _, s := range m.chapterSessions {
		if s.UserID == userID && s.ChapterID == chapterID && s.Status == types.ChapterInProgress {
			return s, nil
		}
	}
	return nil, interfaces.ErrSessionNotFound
}

func (m *mockStore) GetChapterSessionByChapter(ctx context.Context, userID, chapterID string) (*types.ChapterSession, error) {
	for _, s := range m.chapterSessions {
		if s.UserID == userID && s.ChapterID == chapterID {
			return s, nil
		}
	}
	return nil, interfaces.ErrSessionNotFound
}

func (m *mockStore) HasDoneChapterSession(ctx context.Context, userID string) (bool, error) {
	for _, s := range m.chapterSessions {
		if s.UserID == userID && s.Status == types.ChapterDone {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockStore) CreateRoundSession(ctx context.Context, userID, chapterSessionID string, level int) (*types.RoundSession, error) {
	m.roundSeq++
	round := &types.RoundSession{
		ID:               fmt.Sprintf("round-%d", m.roundSeq),
		UserID:           userID,
		ChapterSessionID: chapterSessionID,
		Level:            level,
		Status:           types.RoundInProgress,
	}
	m.roundSessions[round.ID] = round
	return round, nil
}

func (m *mockStore) GetRoundSession(ctx context.Context, sessionID string) (*types.RoundSession, error) {
	r, ok := m.roundSessions[sessionID]
	if !ok {
		return nil, interfaces.ErrRoundNotFound
	}
	return r, nil
}

func (m *mockStore) EndRoundSession(ctx context.Context, sessionID string) error {
	r, ok := m.roundSessions[sessionID]
	if !ok {
		return interfaces.ErrRoundNotFound
	}
	r.Status = types.RoundDone
	return nil
}

func (m *mockStore) AdvanceRoundLevel(ctx context.Context, sessionID string) (*types.RoundSession, error) {
	r, ok := m.roundSessions[sessionID]
	if !ok {
		return nil, interfaces.ErrRoundNotFound
	}
	r.Level++
	r.Score += 10
	return r, nil
}

func (m *mockStore) RecordMove(ctx context.Context, sessionID, userID, move string) (*types.RoundSession, error) {
	r, ok := m.roundSessions[sessionID]
	if !ok || r.UserID != userID {
		return nil, interfaces.ErrRoundNotFound
	}
	r.Moves++
	return r, nil
}

func (m *mockStore) FindTopRanking(ctx context.Context, limit int) ([]*types.RankingEntry, error) {
	return nil, nil
}

func (m *mockStore) HealthCheck(ctx context.Context) error { return nil }
func (m *mockStore) Close() error                          { return nil }

func newTestEngine() (*Engine, *mockStore) {
	store := newMockStore()
	return NewEngine(store), store
}

func TestStartChapterSessionFirstChapter(t *testing.T) {
	engine, store := newTestEngine()
	store.addUser("u1", 0)
	store.addChapter("ch1", 1, 3, 5, 7)

	session, err := engine.StartChapterSession(context.Background(), "u1", 1)
	if err != nil {
		t.Fatalf("StartChapterSession failed: %v", err)
	}

	if session.Status != types.ChapterInProgress {
		t.Errorf("status = %s", session.Status)
	}
	if session.CurrentRound != 1 {
		t.Errorf("current round = %d, want 1", session.CurrentRound)
	}
	if store.users["u1"].CurrentChapterLevel != 1 {
		t.Errorf("progress pointer = %d, want 1", store.users["u1"].CurrentChapterLevel)
	}
}

func TestStartChapterSessionLockedWithoutFirstChapter(t *testing.T) {
	engine, store := newTestEngine()
	store.addUser("u1", 0)
	store.addChapter("ch2", 2, 3)

	_, err := engine.StartChapterSession(context.Background(), "u1", 2)
	if !errors.Is(err, ErrChapterNotUnlocked) {
		t.Fatalf("err = %v, want ErrChapterNotUnlocked", err)
	}
}

func TestStartChapterSessionNextRequiresDone(t *testing.T) {
	engine, store := newTestEngine()
	store.addUser("u1", 1)
	store.addChapter("ch1", 1, 3)
	store.addChapter("ch2", 2, 5)

	_, err := engine.StartChapterSession(context.Background(), "u1", 2)
	if !errors.Is(err, ErrChapterNotUnlocked) {
		t.Fatalf("err = %v, want ErrChapterNotUnlocked", err)
	}

	store.chapterSessions["done"] = &types.ChapterSession{
		ID: "done", ChapterID: "ch1", UserID: "u1", Status: types.ChapterDone,
	}

	session, err := engine.StartChapterSession(context.Background(), "u1", 2)
	if err != nil {
		t.Fatalf("StartChapterSession failed after done session: %v", err)
	}
	if session.ChapterID != "ch2" {
		t.Errorf("chapter = %s, want ch2", session.ChapterID)
	}
	if store.users["u1"].CurrentChapterLevel != 2 {
		t.Errorf("progress pointer = %d, want 2", store.users["u1"].CurrentChapterLevel)
	}
}

func TestStartChapterSessionSkippingLevelsRejected(t *testing.T) {
	engine, store := newTestEngine()
	store.addUser("u1", 1)
	store.addChapter("ch3", 3, 3)

	_, err := engine.StartChapterSession(context.Background(), "u1", 3)
	if !errors.Is(err, ErrChapterNotUnlocked) {
		t.Fatalf("err = %v, want ErrChapterNotUnlocked", err)
	}
}

func TestStartChapterSessionReplayUnlockedChapter(t *testing.T) {
	engine, store := newTestEngine()
	store.addUser("u1", 3)
	store.addChapter("ch2", 2, 3)

	session, err := engine.StartChapterSession(context.Background(), "u1", 2)
	if err != nil {
		t.Fatalf("replay of unlocked chapter failed: %v", err)
	}
	if store.users["u1"].CurrentChapterLevel != 3 {
		t.Errorf("replay moved the progress pointer to %d", store.users["u1"].CurrentChapterLevel)
	}
	if session.ChapterID != "ch2" {
		t.Errorf("chapter = %s", session.ChapterID)
	}
}

func TestStartChapterSessionDuplicateInProgress(t *testing.T) {
	engine, store := newTestEngine()
	store.addUser("u1", 0)
	store.addChapter("ch1", 1, 3)

	ctx := context.Background()
	if _, err := engine.StartChapterSession(ctx, "u1", 1); err != nil {
		t.Fatalf("first start failed: %v", err)
	}

	_, err := engine.StartChapterSession(ctx, "u1", 1)
	if !errors.Is(err, ErrChapterAlreadyInProgress) {
		t.Fatalf("err = %v, want ErrChapterAlreadyInProgress", err)
	}
}

func TestCreateRoundSessionSequencing(t *testing.T) {
	engine, store := newTestEngine()
	store.addUser("u1", 0)
	store.addChapter("ch1", 1, 3, 5, 7)

	ctx := context.Background()
	session, err := engine.StartChapterSession(ctx, "u1", 1)
	if err != nil {
		t.Fatalf("StartChapterSession failed: %v", err)
	}

	if _, err := engine.CreateRoundSession(ctx, session.ID, 2, "u1"); !errors.Is(err, ErrRoundOutOfSequence) {
		t.Fatalf("out-of-sequence round: err = %v", err)
	}

	round, err := engine.CreateRoundSession(ctx, session.ID, 1, "u1")
	if err != nil {
		t.Fatalf("CreateRoundSession failed: %v", err)
	}
	if round.Level != 3 {
		t.Errorf("round level = %d, want 3 from chapter definition", round.Level)
	}

	stored, _ := store.GetChapterSession(ctx, session.ID)
	if len(stored.Rounds) != 1 || stored.Rounds[0] != round.ID {
		t.Errorf("round reference not persisted: %+v", stored.Rounds)
	}
}

func TestCreateRoundSessionIdempotentResume(t *testing.T) {
	engine, store := newTestEngine()
	store.addUser("u1", 0)
	store.addChapter("ch1", 1, 3)

	ctx := context.Background()
	session, _ := engine.StartChapterSession(ctx, "u1", 1)

	first, err := engine.CreateRoundSession(ctx, session.ID, 1, "u1")
	if err != nil {
		t.Fatalf("first round failed: %v", err)
	}
	second, err := engine.CreateRoundSession(ctx, session.ID, 1, "u1")
	if err != nil {
		t.Fatalf("resumed round failed: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("resume created a new round: %s then %s", first.ID, second.ID)
	}

	// A finished round is replaced rather than resumed.
	if err := store.EndRoundSession(ctx, first.ID); err != nil {
		t.Fatalf("EndRoundSession failed: %v", err)
	}
	third, err := engine.CreateRoundSession(ctx, session.ID, 1, "u1")
	if err != nil {
		t.Fatalf("round after finish failed: %v", err)
	}
	if third.ID == first.ID {
		t.Error("finished round was resumed instead of replaced")
	}
}

func TestCreateRoundSessionAccessDenied(t *testing.T) {
	engine, store := newTestEngine()
	store.addUser("u1", 0)
	store.addUser("u2", 0)
	store.addChapter("ch1", 1, 3)

	ctx := context.Background()
	session, _ := engine.StartChapterSession(ctx, "u1", 1)

	if _, err := engine.CreateRoundSession(ctx, session.ID, 1, "u2"); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("err = %v, want ErrAccessDenied", err)
	}
	if _, err := engine.GetChapterSession(ctx, "u2", session.ID); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("GetChapterSession err = %v, want ErrAccessDenied", err)
	}
}

func TestGetChapterScoreSumsRounds(t *testing.T) {
	engine, store := newTestEngine()
	store.addUser("u1", 0)
	store.addChapter("ch1", 1, 3, 5)

	ctx := context.Background()
	session, _ := engine.StartChapterSession(ctx, "u1", 1)

	score, err := engine.GetChapterScore(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetChapterScore failed: %v", err)
	}
	if score != 0 {
		t.Errorf("empty chapter score = %d, want 0", score)
	}

	round, _ := engine.CreateRoundSession(ctx, session.ID, 1, "u1")
	store.roundSessions[round.ID].Score = 40

	stored, _ := store.GetChapterSession(ctx, session.ID)
	stored.CurrentRound = 2
	_ = store.UpdateChapterSession(ctx, stored)
	round2, err := engine.CreateRoundSession(ctx, stored.ID, 2, "u1")
	if err != nil {
		t.Fatalf("second round failed: %v", err)
	}
	store.roundSessions[round2.ID].Score = 25

	score, err = engine.GetChapterScore(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetChapterScore failed: %v", err)
	}
	if score != 65 {
		t.Errorf("chapter score = %d, want 65", score)
	}
}

func TestGetTotalScoreSkipsUnplayedChapters(t *testing.T) {
	engine, store := newTestEngine()
	store.addUser("u1", 3)
	store.addChapter("ch1", 1, 3)
	store.addChapter("ch2", 2, 5)
	store.addChapter("ch3", 3, 7)

	ctx := context.Background()

	store.chapterSessions["s1"] = &types.ChapterSession{
		ID: "s1", ChapterID: "ch1", UserID: "u1", Status: types.ChapterDone, Rounds: []string{"r1"},
	}
	store.roundSessions["r1"] = &types.RoundSession{ID: "r1", UserID: "u1", Score: 30, Status: types.RoundDone}

	store.chapterSessions["s3"] = &types.ChapterSession{
		ID: "s3", ChapterID: "ch3", UserID: "u1", Status: types.ChapterInProgress, Rounds: []string{"r3"},
	}
	store.roundSessions["r3"] = &types.RoundSession{ID: "r3", UserID: "u1", Score: 10, Status: types.RoundInProgress}

	total, err := engine.GetTotalScore(ctx, "u1")
	if err != nil {
		t.Fatalf("GetTotalScore failed: %v", err)
	}
	if total != 40 {
		t.Errorf("total score = %d, want 40", total)
	}
}
