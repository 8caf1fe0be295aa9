package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"mazequiz/internal/chapter"
	"mazequiz/pkg/interfaces"
	"mazequiz/pkg/types"
)

type stubStore struct {
	users     map[string]*types.User
	entries   []*types.RankingEntry
	healthErr error
}

func (s *stubStore) EnsureUser(ctx context.Context, userID, username string) (*types.User, error) {
	return &types.User{ID: userID, Username: username}, nil
}

func (s *stubStore) GetUser(ctx context.Context, userID string) (*types.User, error) {
	u, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, interfaces.ErrUserNotFound)
	}
	return u, nil
}

func (s *stubStore) SetUserChapterLevel(ctx context.Context, userID string, level int) error {
	return nil
}

func (s *stubStore) GetChapter(ctx context.Context, chapterID string) (*types.Chapter, error) {
	return nil, interfaces.ErrChapterNotFound
}

func (s *stubStore) GetChapterByLevel(ctx context.Context, level int) (*types.Chapter, error) {
	return nil, interfaces.ErrChapterNotFound
}

func (s *stubStore) CreateChapterSession(ctx context.Context, session *types.ChapterSession) error {
	return nil
}

func (s *stubStore) GetChapterSession(ctx context.Context, sessionID string) (*types.ChapterSession, error) {
	return nil, interfaces.ErrSessionNotFound
}

func (s *stubStore) UpdateChapterSession(ctx context.Context, session *types.ChapterSession) error {
	return nil
}

func (s *stubStore) GetActiveChapterSession(ctx context.Context, userID, chapterID string) (*types.ChapterSession, error) {
	return nil, interfaces.ErrSessionNotFound
}

func (s *stubStore) GetChapterSessionByChapter(ctx context.Context, userID, chapterID string) (*types.ChapterSession, error) {
	return nil, interfaces.ErrSessionNotFound
}

func (s *stubStore) HasDoneChapterSession(ctx context.Context, userID string) (bool, error) {
	return false, nil
}

func (s *stubStore) CreateRoundSession(ctx context.Context, userID, chapterSessionID string, level int) (*types.RoundSession, error) {
	return nil, interfaces.ErrRoundNotFound
}

func (s *stubStore) GetRoundSession(ctx context.Context, sessionID string) (*types.RoundSession, error) {
	return nil, interfaces.ErrRoundNotFound
}

func (s *stubStore) EndRoundSession(ctx context.Context, sessionID string) error { return nil }

func (s *stubStore) AdvanceRoundLevel(ctx context.Context, sessionID string) (*types.RoundSession, error) {
	return nil, interfaces.ErrRoundNotFound
}

func (s *stubStore) RecordMove(ctx context.Context, sessionID, userID, move string) (*types.RoundSession, error) {
	return nil, interfaces.ErrRoundNotFound
}

func (s *stubStore) FindTopRanking(ctx context.Context, limit int) ([]*types.RankingEntry, error) {
	return s.entries, nil
}

func (s *stubStore) HealthCheck(ctx context.Context) error { return s.healthErr }
func (s *stubStore) Close() error                          { return nil }

type stubRegistry struct{}

func (stubRegistry) Stats() map[string]int {
	return map[string]int{"total_connections": 3, "connected_users": 2}
}

func newTestServer(store *stubStore) *Server {
	return NewServer(store, chapter.NewEngine(store), stubRegistry{}, 10)
}

func doRequest(s *Server, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHealthCheck(t *testing.T) {
	store := &stubStore{}
	s := newTestServer(store)

	rec := doRequest(s, http.MethodGet, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var health HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&health); err != nil {
		t.Fatal(err)
	}
	if health.Status != "healthy" || health.Connections["total_connections"] != 3 {
		t.Errorf("health = %+v", health)
	}

	store.healthErr = fmt.Errorf("disk full")
	rec = doRequest(s, http.MethodGet, "/health")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestHandleRanking(t *testing.T) {
	store := &stubStore{entries: []*types.RankingEntry{
		{UserID: "u1", Username: "alice", Coins: 40},
		{UserID: "u2", Username: "bob", Coins: 25},
	}}
	s := newTestServer(store)

	rec := doRequest(s, http.MethodGet, "/api/ranking")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp RankingResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Ranking) != 2 || resp.Ranking[0].UserID != "u1" {
		t.Errorf("ranking = %+v", resp.Ranking)
	}
}

func TestUserScoreUnknownUserIs404(t *testing.T) {
	s := newTestServer(&stubStore{users: map[string]*types.User{}})

	rec := doRequest(s, http.MethodGet, "/api/users/ghost/score")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestUserScoreKnownUser(t *testing.T) {
	s := newTestServer(&stubStore{users: map[string]*types.User{
		"u1": {ID: "u1", Username: "alice", CurrentChapterLevel: 0},
	}})

	rec := doRequest(s, http.MethodGet, "/api/users/u1/score")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp ScoreResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.UserID != "u1" || resp.Score != 0 {
		t.Errorf("score = %+v", resp)
	}
}

func TestUserScoreBadRequests(t *testing.T) {
	s := newTestServer(&stubStore{})

	if rec := doRequest(s, http.MethodGet, "/api/users/u1"); rec.Code != http.StatusNotFound {
		t.Errorf("bare user path: status = %d, want 404", rec.Code)
	}
	if rec := doRequest(s, http.MethodGet, "/api/users/bad%20id/score"); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid id: status = %d, want 400", rec.Code)
	}
	if rec := doRequest(s, http.MethodPost, "/api/users/u1/score"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST: status = %d, want 405", rec.Code)
	}
}
