package types

import (
	"encoding/json"
	"time"
)

// Inbound event names delivered by the transport.
const (
	EventStartQuiz     = "START_QUIZ"
	EventAnswerQuiz    = "ANSWER_QUIZ"
	EventStartChapter  = "START_CHAPTER"
	EventStartRound    = "START_ROUND"
	EventStartMazeMove = "START_MAZE_MOVE"
)

// Outbound event names pushed back through a connection.
const (
	EventReceiveQuestionQuiz = "RECEIVE_QUESTION_QUIZ"
	EventEndQuiz             = "END_QUIZ"
	EventNotify              = "NOTIFY"
	EventMathQuizRanking     = "MATH_QUIZ_RANKING"
	EventRewardIssued        = "REWARD_ISSUED"
	EventStartChapterSuccess = "START_CHAPTER_SUCCESS"
	EventStartChapterFail    = "START_CHAPTER_FAIL"
	EventStartRoundSuccess   = "START_ROUND_SUCCESS"
	EventStartRoundFail      = "START_ROUND_FAIL"
	EventMoveSuccess         = "MOVE_SUCCESS"
	EventMoveFail            = "MOVE_FAIL"
)

// ChapterStatus is the lifecycle state of a chapter session.
type ChapterStatus string

const (
	ChapterInProgress ChapterStatus = "in_progress"
	ChapterDone       ChapterStatus = "done"
)

// RoundStatus is the lifecycle state of an externally owned round session.
type RoundStatus string

const (
	RoundInProgress RoundStatus = "in_progress"
	RoundDone       RoundStatus = "done"
)

// User is the projection of the user aggregate this core cares about.
// CurrentChapterLevel is the progress pointer: the highest unlocked
// chapter, 0 when the user has never started a chapter.
type User struct {
	ID                  string `json:"id" db:"id"`
	Username            string `json:"username" db:"username"`
	CurrentChapterLevel int    `json:"current_chapter_level" db:"current_chapter_level"`
}

// Chapter is a chapter definition: its position in the unlock order and
// the per-round difficulty levels handed to the maze when a round starts.
type Chapter struct {
	ID          string `json:"id" db:"id"`
	Level       int    `json:"level" db:"level"`
	RoundLevels []int  `json:"round_levels" db:"round_levels"`
}

// ChapterSession is one user's attempt at a chapter. Rounds is a sparse
// list of round-session ids indexed by round number - 1; an empty string
// marks a round that has not been started. Version is bumped on every
// update so concurrent-writer deployments can add an optimistic check.
type ChapterSession struct {
	ID           string        `json:"id" db:"id"`
	ChapterID    string        `json:"chapter_id" db:"chapter_id"`
	UserID       string        `json:"user_id" db:"user_id"`
	Status       ChapterStatus `json:"status" db:"status"`
	CurrentRound int           `json:"current_round" db:"current_round"`
	Rounds       []string      `json:"rounds" db:"rounds"`
	Version      int           `json:"version" db:"version"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
}

// RoundSession is the stored reference to one externally played round.
type RoundSession struct {
	ID               string      `json:"id" db:"id"`
	UserID           string      `json:"user_id" db:"user_id"`
	ChapterSessionID string      `json:"chapter_session_id" db:"chapter_session_id"`
	Level            int         `json:"level" db:"level"`
	Status           RoundStatus `json:"status" db:"status"`
	Score            int         `json:"score" db:"score"`
	Moves            int         `json:"moves" db:"moves"`
	CreatedAt        time.Time   `json:"created_at" db:"created_at"`
}

// Transaction is one ledger entry. Quiz rewards are system-to-user
// transactions whose amounts feed the global ranking.
type Transaction struct {
	ID        string    `json:"id" db:"id"`
	FromUser  string    `json:"from_user" db:"from_user"`
	ToUser    string    `json:"to_user" db:"to_user"`
	Amount    int       `json:"amount" db:"amount"`
	Memo      string    `json:"memo" db:"memo"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Item is a reward item issued for a high quiz score.
type Item struct {
	ID       string    `json:"id" db:"id"`
	UserID   string    `json:"user_id" db:"user_id"`
	Name     string    `json:"name" db:"name"`
	Rarity   string    `json:"rarity" db:"rarity"`
	IssuedAt time.Time `json:"issued_at" db:"issued_at"`
}

// RankingEntry is one row of the global quiz leaderboard.
type RankingEntry struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Coins    int    `json:"coins"`
}

// Envelope is the wire shape of an inbound event: a name plus a payload
// left raw until the dispatcher knows which struct to decode.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Event is the wire shape of an outbound event.
type Event struct {
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

// AnswerQuizPayload carries the player's truth-value judgement.
type AnswerQuizPayload struct {
	Value bool `json:"value"`
}

// StartChapterPayload requests a new chapter session.
type StartChapterPayload struct {
	ChapterLevel int `json:"chapter_level"`
}

// StartRoundPayload requests the next round of a chapter session.
type StartRoundPayload struct {
	ChapterSessionID string `json:"chapter_session_id"`
	Round            int    `json:"round"`
}

// MovePayload submits a single maze move for an open round session.
type MovePayload struct {
	SessionID string `json:"session_id"`
	Move      string `json:"move"`
}

// QuestionPayload is pushed for every quiz question. Question is the
// opaque rendered statement; QuestionTimeMs excludes the server grace.
type QuestionPayload struct {
	Level          int    `json:"level"`
	Question       string `json:"question"`
	Score          int    `json:"score"`
	QuestionTimeMs int    `json:"question_time_ms"`
}

// EndQuizPayload closes a quiz run with the current leaderboard.
type EndQuizPayload struct {
	Ranking []*RankingEntry `json:"ranking"`
}

// RankingPayload carries a refreshed leaderboard snapshot.
type RankingPayload struct {
	Ranking []*RankingEntry `json:"ranking"`
}

// NotifyPayload is a user-facing success or error notice.
type NotifyPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Notify types.
const (
	NotifySuccess = "success"
	NotifyError   = "error"
)
