package ranking

import (
	"context"
	"log"
	"sync"

	"mazequiz/pkg/types"
)

// Source answers the leaderboard query. The SQLite store implements it.
type Source interface {
	FindTopRanking(ctx context.Context, limit int) ([]*types.RankingEntry, error)
}

// Recipient is one connected client that can receive a ranking push.
type Recipient interface {
	ID() string
	Emit(event string, payload any) error
}

// Pool enumerates the currently connected recipients.
type Pool interface {
	Recipients() []Recipient
}

// Broadcaster maintains the coin leaderboard and pushes it to connected
// clients. A refresh only broadcasts when the computed standings differ
// from what each recipient last received, so repeated refreshes with an
// unchanged leaderboard are silent.
type Broadcaster struct {
	store Source
	pool  Pool
	limit int

	mu       sync.Mutex
	current  []*types.RankingEntry
	lastSent map[string][]*types.RankingEntry
}

// NewBroadcaster creates a broadcaster over the store's transaction
// ledger. limit caps the leaderboard length.
func NewBroadcaster(store Source, pool Pool, limit int) *Broadcaster {
	if limit <= 0 {
		limit = 10
	}
	return &Broadcaster{
		store:    store,
		pool:     pool,
		limit:    limit,
		lastSent: make(map[string][]*types.RankingEntry),
	}
}

// Refresh recomputes the leaderboard and pushes it to every recipient
// whose last delivered copy differs. Store failures keep the previous
// snapshot and are logged.
func (b *Broadcaster) Refresh(ctx context.Context) {
	entries, err := b.store.FindTopRanking(ctx, b.limit)
	if err != nil {
		log.Printf("Ranking refresh failed: %v", err)
		return
	}

	b.mu.Lock()
	b.current = entries
	recipients := b.pool.Recipients()

	stale := make([]Recipient, 0, len(recipients))
	for _, r := range recipients {
		if !rankingsEqual(b.lastSent[r.ID()], entries) {
			b.lastSent[r.ID()] = entries
			stale = append(stale, r)
		}
	}

	// Drop bookkeeping for recipients that have gone away.
	connected := make(map[string]struct{}, len(recipients))
	for _, r := range recipients {
		connected[r.ID()] = struct{}{}
	}
	for id := range b.lastSent {
		if _, ok := connected[id]; !ok {
			delete(b.lastSent, id)
		}
	}
	b.mu.Unlock()

	for _, r := range stale {
		if err := r.Emit(types.EventMathQuizRanking, types.RankingPayload{Ranking: entries}); err != nil {
			log.Printf("Ranking push to %s failed: %v", r.ID(), err)
		}
	}
}

// Snapshot returns the most recently computed leaderboard.
func (b *Broadcaster) Snapshot() []*types.RankingEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// SendTo pushes the current leaderboard to a single recipient,
// unconditionally. Used when a client first connects.
func (b *Broadcaster) SendTo(r Recipient) {
	b.mu.Lock()
	entries := b.current
	b.lastSent[r.ID()] = entries
	b.mu.Unlock()

	if err := r.Emit(types.EventMathQuizRanking, types.RankingPayload{Ranking: entries}); err != nil {
		log.Printf("Ranking push to %s failed: %v", r.ID(), err)
	}
}

// rankingsEqual compares standings by content: same users with the same
// coin totals in the same order.
func rankingsEqual(a, b []*types.RankingEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].UserID != b[i].UserID || a[i].Coins != b[i].Coins {
			return false
		}
	}
	return true
}
