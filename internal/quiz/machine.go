package quiz

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/samber/lo"

	"mazequiz/pkg/interfaces"
	"mazequiz/pkg/types"
)

const (
	// RewardDivisor converts quiz score to reward units.
	RewardDivisor = 10

	// ItemRewardThreshold is the minimum reward unit count that earns
	// an achievement and an item draw on top of the ledger transaction.
	ItemRewardThreshold = 15

	// MilestoneLevel is the level whose first crossing triggers the
	// milestone reward check (30 questions answered correctly).
	MilestoneLevel = 31
)

// Achievement names recorded through the reward delegate.
const (
	AchievementQuizScore = "math-quiz-score"
	AchievementMilestone = "math-quiz-milestone"
)

// RankingSource provides the leaderboard to attach to END_QUIZ events
// and is refreshed after every finalize.
type RankingSource interface {
	Refresh(ctx context.Context)
	Snapshot() []*types.RankingEntry
}

// QuestionSource produces the next question for a level.
type QuestionSource interface {
	Generate(level int, deceptive bool) Statement
}

// Config carries a machine's collaborators.
type Config struct {
	UserID   string
	Emitter  interfaces.Emitter
	Rewards  interfaces.RewardDelegate
	Renderer interfaces.ExpressionRenderer
	Ranking  RankingSource
	// Questions defaults to a time-seeded Generator when nil.
	Questions QuestionSource
}

// Machine is the per-connection timed quiz state machine. It cycles
// Idle -> Active -> Idle for the lifetime of its connection.
//
// An answer and a timer expiry for the same question can be in flight
// at once. The active flag and the timer generation token are checked
// together under the mutex, which is what makes finalize run exactly
// once per quiz lifecycle: whichever path enters first deactivates the
// machine and invalidates the token, and the loser no-ops.
type Machine struct {
	mu        sync.Mutex
	userID    string
	emitter   interfaces.Emitter
	rewards   interfaces.RewardDelegate
	renderer  interfaces.ExpressionRenderer
	ranking   RankingSource
	questions QuestionSource

	level    int
	score    int
	expected bool
	active   bool
	token    uint64
	timer    *time.Timer
}

// NewMachine creates an idle machine.
func NewMachine(cfg Config) *Machine {
	questions := cfg.Questions
	if questions == nil {
		questions = NewGenerator(nil)
	}
	return &Machine{
		userID:    cfg.UserID,
		emitter:   cfg.Emitter,
		rewards:   cfg.Rewards,
		renderer:  cfg.Renderer,
		ranking:   cfg.Ranking,
		questions: questions,
	}
}

// Active reports whether a quiz is currently running.
func (m *Machine) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Start begins a quiz run: level 1, score 0, first question armed.
// Starting while already active restarts the run, invalidating the
// outstanding question and timer.
func (m *Machine) Start(ctx context.Context) {
	m.mu.Lock()
	m.disarmLocked()
	m.level = 1
	m.score = 0
	m.active = true
	m.askLocked()
	m.mu.Unlock()

	m.notify(types.NotifySuccess, "Start quiz success")
}

// SubmitAnswer handles the player's truth-value judgement. Late or
// duplicate answers (machine already idle) are silent no-ops.
func (m *Machine) SubmitAnswer(ctx context.Context, value bool) {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return
	}
	m.disarmLocked()

	if value != m.expected {
		score := m.deactivateLocked()
		m.mu.Unlock()
		m.end(score)
		return
	}

	m.level++
	m.score += 10
	milestone := m.level == MilestoneLevel
	m.askLocked()
	m.mu.Unlock()

	if milestone {
		m.checkMilestone()
	}
}

// HandleTimerExpire fires after the armed duration plus grace. A stale
// token or an idle machine means an answer already settled this
// question; either way the expiry is a no-op.
func (m *Machine) HandleTimerExpire(ctx context.Context, token uint64) {
	m.mu.Lock()
	if !m.active || token != m.token {
		m.mu.Unlock()
		return
	}
	m.disarmLocked()
	score := m.deactivateLocked()
	m.mu.Unlock()

	m.end(score)
}

// Stop disarms the timer and deactivates without finalizing. Called on
// disconnect; an abandoned run pays out nothing.
func (m *Machine) Stop() {
	m.mu.Lock()
	m.disarmLocked()
	m.active = false
	m.score = 0
	m.level = 0
	m.mu.Unlock()
}

// askLocked generates the next question, arms its timer and emits it.
func (m *Machine) askLocked() {
	deceptive := lo.Sample([]bool{true, false})
	st := m.questions.Generate(m.level, deceptive)
	m.expected = st.Truthful()

	window := QuestionTime(m.level)
	m.armLocked(window + GracePeriod)

	m.emit(types.EventReceiveQuestionQuiz, types.QuestionPayload{
		Level:          m.level,
		Question:       m.renderer.Render(st.String()),
		Score:          m.score,
		QuestionTimeMs: int(window / time.Millisecond),
	})
}

// armLocked arms the deadline timer. Bumping the token first makes any
// previously scheduled fire stale even if its timer.Stop raced.
func (m *Machine) armLocked(d time.Duration) {
	m.token++
	token := m.token
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(d, func() {
		m.HandleTimerExpire(context.Background(), token)
	})
}

// disarmLocked invalidates the armed timer.
func (m *Machine) disarmLocked() {
	m.token++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// deactivateLocked transitions to Idle and returns the final score.
func (m *Machine) deactivateLocked() int {
	m.active = false
	score := m.score
	m.score = 0
	m.level = 0
	return score
}

// end emits the end-of-quiz event with the current leaderboard and
// settles rewards in the background.
func (m *Machine) end(score int) {
	var snapshot []*types.RankingEntry
	if m.ranking != nil {
		snapshot = m.ranking.Snapshot()
	}
	m.emit(types.EventEndQuiz, types.EndQuizPayload{Ranking: snapshot})

	go m.settle(score / RewardDivisor)
}

// settle performs the best-effort finalize side effects: the ledger
// transaction, the high-score achievement and item draw, and a global
// ranking refresh. Failures are logged and swallowed.
func (m *Machine) settle(units int) {
	ctx := context.Background()

	memo := fmt.Sprintf("You got %d coins from the math quiz", units)
	if err := m.rewards.RecordTransaction(ctx, m.userID, units, memo); err != nil {
		log.Printf("Quiz reward transaction failed for user %s: %v", m.userID, err)
	} else if units >= ItemRewardThreshold {
		if err := m.rewards.GrantAchievement(ctx, m.userID, AchievementQuizScore, units); err != nil {
			log.Printf("Quiz achievement grant failed for user %s: %v", m.userID, err)
		}
		if item, err := m.rewards.IssueItem(ctx, m.userID); err != nil {
			log.Printf("Quiz item issuance failed for user %s: %v", m.userID, err)
		} else {
			m.emit(types.EventRewardIssued, item)
		}
	}

	if m.ranking != nil {
		m.ranking.Refresh(ctx)
	}
}

// checkMilestone runs the milestone reward check in the background.
func (m *Machine) checkMilestone() {
	go func() {
		if err := m.rewards.GrantAchievement(context.Background(), m.userID, AchievementMilestone, MilestoneLevel-1); err != nil {
			log.Printf("Milestone check failed for user %s: %v", m.userID, err)
			return
		}
		m.notify(types.NotifySuccess, "You have passed the first 30 levels and claimed the milestone reward")
	}()
}

func (m *Machine) notify(kind, message string) {
	m.emit(types.EventNotify, types.NotifyPayload{Type: kind, Message: message})
}

func (m *Machine) emit(event string, payload any) {
	if err := m.emitter.Emit(event, payload); err != nil {
		log.Printf("Failed to emit %s to user %s: %v", event, m.userID, err)
	}
}
