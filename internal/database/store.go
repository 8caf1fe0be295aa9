package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"

	dbconfig "mazequiz/pkg/database"
	"mazequiz/pkg/interfaces"
	"mazequiz/pkg/types"
)

// Store implements interfaces.SessionStore and the reward ledger over
// SQLite. Writes funnel through a single goroutine: WAL mode gives
// concurrent reads, but SQLite wants one writer.
type Store struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

// writeOperation represents a queued database write.
type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewStore opens the database, applies migrations and starts the
// single-writer loop.
func NewStore(config *dbconfig.Config) (*Store, error) {
	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.ApplySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	if err := dbconfig.NewMigrationManager(db).ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	validator := dbconfig.NewSchemaValidator(db)
	if err := validator.ValidateTablesExist(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}
	if err := validator.ValidateIndexes(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	store := &Store{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	store.wg.Add(1)
	go store.writeLoop()

	return store, nil
}

// writeLoop processes all write operations in a single goroutine,
// retrying a busy-database failure exactly once. Domain errors such as
// not-found guards pass straight through.
func (s *Store) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case op := <-s.writeChannel:
			err := op.operation(s.db)
			if isBusy(err) {
				log.Printf("Database busy, retrying in 5 seconds: %v", err)
				time.Sleep(5 * time.Second)
				err = op.operation(s.db)
				if err != nil {
					log.Printf("Database write failed after retry: %v", err)
				}
			}
			op.result <- err

		case <-s.shutdown:
			log.Println("Database write loop shutting down")
			return
		}
	}
}

// isBusy reports whether the error is a transient SQLite lock.
func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// executeWrite queues a write operation and waits for completion.
func (s *Store) executeWrite(operation func(*sql.DB) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	s.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case s.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return fmt.Errorf("write operation timeout")
	case <-s.shutdown:
		return fmt.Errorf("store is shutting down")
	}
}

// EnsureUser creates the user row on first connect.
func (s *Store) EnsureUser(ctx context.Context, userID, username string) (*types.User, error) {
	err := s.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO users (id, username) VALUES (?, ?)
			ON CONFLICT(id) DO UPDATE SET username = excluded.username
		`, userID, username)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure user: %w", err)
	}
	return s.GetUser(ctx, userID)
}

// GetUser retrieves the user projection.
func (s *Store) GetUser(ctx context.Context, userID string) (*types.User, error) {
	var user types.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, current_chapter_level FROM users WHERE id = ?
	`, userID).Scan(&user.ID, &user.Username, &user.CurrentChapterLevel)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

// SetUserChapterLevel moves the user's chapter progress pointer.
func (s *Store) SetUserChapterLevel(ctx context.Context, userID string, level int) error {
	return s.executeWrite(func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, `
			UPDATE users SET current_chapter_level = ? WHERE id = ?
		`, level, userID)
		if err != nil {
			return fmt.Errorf("failed to update chapter level: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return interfaces.ErrUserNotFound
		}
		return nil
	})
}

// GetChapter retrieves a chapter definition by id.
func (s *Store) GetChapter(ctx context.Context, chapterID string) (*types.Chapter, error) {
	return s.scanChapter(s.db.QueryRowContext(ctx, `
		SELECT id, level, round_levels FROM chapters WHERE id = ?
	`, chapterID))
}

// GetChapterByLevel retrieves the chapter definition at a level.
func (s *Store) GetChapterByLevel(ctx context.Context, level int) (*types.Chapter, error) {
	return s.scanChapter(s.db.QueryRowContext(ctx, `
		SELECT id, level, round_levels FROM chapters WHERE level = ?
	`, level))
}

func (s *Store) scanChapter(row *sql.Row) (*types.Chapter, error) {
	var chapter types.Chapter
	var roundLevelsJSON string
	err := row.Scan(&chapter.ID, &chapter.Level, &roundLevelsJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrChapterNotFound
		}
		return nil, fmt.Errorf("failed to query chapter: %w", err)
	}
	if err := json.Unmarshal([]byte(roundLevelsJSON), &chapter.RoundLevels); err != nil {
		return nil, fmt.Errorf("failed to unmarshal round levels: %w", err)
	}
	return &chapter, nil
}

// CreateChapter persists a chapter definition; used by seeding and tests.
func (s *Store) CreateChapter(ctx context.Context, chapter *types.Chapter) error {
	return s.executeWrite(func(db *sql.DB) error {
		roundLevelsJSON, err := json.Marshal(chapter.RoundLevels)
		if err != nil {
			return fmt.Errorf("failed to marshal round levels: %w", err)
		}
		_, err = db.ExecContext(ctx, `
			INSERT INTO chapters (id, level, round_levels) VALUES (?, ?, ?)
		`, chapter.ID, chapter.Level, string(roundLevelsJSON))
		if err != nil {
			return fmt.Errorf("failed to insert chapter: %w", err)
		}
		return nil
	})
}

// CreateChapterSession persists a new chapter session.
func (s *Store) CreateChapterSession(ctx context.Context, session *types.ChapterSession) error {
	return s.executeWrite(func(db *sql.DB) error {
		roundsJSON, err := json.Marshal(session.Rounds)
		if err != nil {
			return fmt.Errorf("failed to marshal rounds: %w", err)
		}
		_, err = db.ExecContext(ctx, `
			INSERT INTO chapter_sessions (id, chapter_id, user_id, status, current_round, rounds, version, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			session.ID,
			session.ChapterID,
			session.UserID,
			session.Status,
			session.CurrentRound,
			string(roundsJSON),
			session.Version,
			session.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert chapter session: %w", err)
		}
		return nil
	})
}

const chapterSessionColumns = `id, chapter_id, user_id, status, current_round, rounds, version, created_at`

// GetChapterSession retrieves a chapter session by id.
func (s *Store) GetChapterSession(ctx context.Context, sessionID string) (*types.ChapterSession, error) {
	return s.scanChapterSession(s.db.QueryRowContext(ctx, `
		SELECT `+chapterSessionColumns+` FROM chapter_sessions WHERE id = ?
	`, sessionID))
}

// GetActiveChapterSession finds the in-progress session for (user, chapter).
func (s *Store) GetActiveChapterSession(ctx context.Context, userID, chapterID string) (*types.ChapterSession, error) {
	return s.scanChapterSession(s.db.QueryRowContext(ctx, `
		SELECT `+chapterSessionColumns+` FROM chapter_sessions
		WHERE user_id = ? AND chapter_id = ? AND status = ?
	`, userID, chapterID, types.ChapterInProgress))
}

// GetChapterSessionByChapter finds any session for (user, chapter).
func (s *Store) GetChapterSessionByChapter(ctx context.Context, userID, chapterID string) (*types.ChapterSession, error) {
	return s.scanChapterSession(s.db.QueryRowContext(ctx, `
		SELECT `+chapterSessionColumns+` FROM chapter_sessions
		WHERE user_id = ? AND chapter_id = ?
		ORDER BY created_at DESC LIMIT 1
	`, userID, chapterID))
}

func (s *Store) scanChapterSession(row *sql.Row) (*types.ChapterSession, error) {
	var session types.ChapterSession
	var roundsJSON string
	err := row.Scan(
		&session.ID,
		&session.ChapterID,
		&session.UserID,
		&session.Status,
		&session.CurrentRound,
		&roundsJSON,
		&session.Version,
		&session.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to query chapter session: %w", err)
	}
	if err := json.Unmarshal([]byte(roundsJSON), &session.Rounds); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rounds: %w", err)
	}
	return &session, nil
}

// UpdateChapterSession persists session changes and bumps the version.
func (s *Store) UpdateChapterSession(ctx context.Context, session *types.ChapterSession) error {
	return s.executeWrite(func(db *sql.DB) error {
		roundsJSON, err := json.Marshal(session.Rounds)
		if err != nil {
			return fmt.Errorf("failed to marshal rounds: %w", err)
		}
		res, err := db.ExecContext(ctx, `
			UPDATE chapter_sessions
			SET status = ?, current_round = ?, rounds = ?, version = version + 1
			WHERE id = ?
		`,
			session.Status,
			session.CurrentRound,
			string(roundsJSON),
			session.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update chapter session: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return interfaces.ErrSessionNotFound
		}
		session.Version++
		return nil
	})
}

// HasDoneChapterSession reports whether the user completed any chapter.
func (s *Store) HasDoneChapterSession(ctx context.Context, userID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM chapter_sessions WHERE user_id = ? AND status = ?
	`, userID, types.ChapterDone).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to query done sessions: %w", err)
	}
	return count > 0, nil
}

// CreateRoundSession creates a fresh round session at the given level.
func (s *Store) CreateRoundSession(ctx context.Context, userID, chapterSessionID string, level int) (*types.RoundSession, error) {
	session := &types.RoundSession{
		ID:               uuid.New().String(),
		UserID:           userID,
		ChapterSessionID: chapterSessionID,
		Level:            level,
		Status:           types.RoundInProgress,
		CreatedAt:        time.Now().UTC(),
	}
	err := s.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO round_sessions (id, user_id, chapter_session_id, level, status, score, moves, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			session.ID,
			session.UserID,
			session.ChapterSessionID,
			session.Level,
			session.Status,
			session.Score,
			session.Moves,
			session.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert round session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

const roundSessionColumns = `id, user_id, chapter_session_id, level, status, score, moves, created_at`

// GetRoundSession retrieves a round session reference.
func (s *Store) GetRoundSession(ctx context.Context, sessionID string) (*types.RoundSession, error) {
	return s.scanRoundSession(s.db.QueryRowContext(ctx, `
		SELECT `+roundSessionColumns+` FROM round_sessions WHERE id = ?
	`, sessionID))
}

func (s *Store) scanRoundSession(row *sql.Row) (*types.RoundSession, error) {
	var session types.RoundSession
	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.ChapterSessionID,
		&session.Level,
		&session.Status,
		&session.Score,
		&session.Moves,
		&session.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrRoundNotFound
		}
		return nil, fmt.Errorf("failed to query round session: %w", err)
	}
	return &session, nil
}

// EndRoundSession marks an open round session done; already-done
// sessions are left untouched so disconnect cleanup is idempotent.
func (s *Store) EndRoundSession(ctx context.Context, sessionID string) error {
	return s.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			UPDATE round_sessions SET status = ? WHERE id = ? AND status = ?
		`, types.RoundDone, sessionID, types.RoundInProgress)
		if err != nil {
			return fmt.Errorf("failed to end round session: %w", err)
		}
		return nil
	})
}

// AdvanceRoundLevel bumps the round's level and score.
func (s *Store) AdvanceRoundLevel(ctx context.Context, sessionID string) (*types.RoundSession, error) {
	err := s.executeWrite(func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, `
			UPDATE round_sessions SET level = level + 1, score = score + 10
			WHERE id = ? AND status = ?
		`, sessionID, types.RoundInProgress)
		if err != nil {
			return fmt.Errorf("failed to advance round level: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return interfaces.ErrRoundNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetRoundSession(ctx, sessionID)
}

// RecordMove records a single maze move and returns the updated round.
func (s *Store) RecordMove(ctx context.Context, sessionID, userID, move string) (*types.RoundSession, error) {
	if move == "" {
		return nil, fmt.Errorf("empty move")
	}
	err := s.executeWrite(func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, `
			UPDATE round_sessions SET moves = moves + 1
			WHERE id = ? AND user_id = ? AND status = ?
		`, sessionID, userID, types.RoundInProgress)
		if err != nil {
			return fmt.Errorf("failed to record move: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return interfaces.ErrRoundNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetRoundSession(ctx, sessionID)
}

// FindTopRanking returns the top-N users by ledger balance.
func (s *Store) FindTopRanking(ctx context.Context, limit int) ([]*types.RankingEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.username, COALESCE(SUM(t.amount), 0) AS coins
		FROM users u
		JOIN transactions t ON t.to_user = u.id
		GROUP BY u.id, u.username
		ORDER BY coins DESC, u.id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query ranking: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*types.RankingEntry
	for rows.Next() {
		var entry types.RankingEntry
		if err := rows.Scan(&entry.UserID, &entry.Username, &entry.Coins); err != nil {
			return nil, fmt.Errorf("failed to scan ranking row: %w", err)
		}
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ranking rows: %w", err)
	}

	return entries, nil
}

// InsertTransaction appends a ledger entry.
func (s *Store) InsertTransaction(ctx context.Context, tx *types.Transaction) error {
	return s.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO transactions (id, from_user, to_user, amount, memo, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, tx.ID, tx.FromUser, tx.ToUser, tx.Amount, tx.Memo, tx.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert transaction: %w", err)
		}
		return nil
	})
}

// UpsertAchievement records an achievement, keeping the best value.
func (s *Store) UpsertAchievement(ctx context.Context, userID, name string, value int) error {
	return s.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO achievements (user_id, name, value) VALUES (?, ?, ?)
			ON CONFLICT(user_id, name) DO UPDATE SET value = MAX(value, excluded.value)
		`, userID, name, value)
		if err != nil {
			return fmt.Errorf("failed to upsert achievement: %w", err)
		}
		return nil
	})
}

// InsertItem stores an issued reward item.
func (s *Store) InsertItem(ctx context.Context, item *types.Item) error {
	return s.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO items (id, user_id, name, rarity, issued_at)
			VALUES (?, ?, ?, ?, ?)
		`, item.ID, item.UserID, item.Name, item.Rarity, item.IssuedAt)
		if err != nil {
			return fmt.Errorf("failed to insert item: %w", err)
		}
		return nil
	})
}

// HealthCheck validates database connectivity.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// DB returns the underlying connection for schema validation.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close shuts down the store.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.shutdown)
	s.wg.Wait()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}
