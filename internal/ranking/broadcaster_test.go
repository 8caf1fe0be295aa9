package ranking

import (
	"context"
	"errors"
	"sync"
	"testing"

	"mazequiz/pkg/types"
)

type fakeSource struct {
	mu      sync.Mutex
	entries []*types.RankingEntry
	err     error
}

func (f *fakeSource) set(entries []*types.RankingEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = entries
}

func (f *fakeSource) FindTopRanking(ctx context.Context, limit int) ([]*types.RankingEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.entries, nil
}

type fakeRecipient struct {
	id     string
	mu     sync.Mutex
	pushes []types.RankingPayload
}

func (f *fakeRecipient) ID() string { return f.id }

func (f *fakeRecipient) Emit(event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes = append(f.pushes, payload.(types.RankingPayload))
	return nil
}

func (f *fakeRecipient) pushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pushes)
}

type fakePool struct {
	mu         sync.Mutex
	recipients []Recipient
}

func (f *fakePool) set(recipients ...Recipient) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recipients = recipients
}

func (f *fakePool) Recipients() []Recipient {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recipients
}

func entries(coins ...int) []*types.RankingEntry {
	out := make([]*types.RankingEntry, len(coins))
	for i, c := range coins {
		out[i] = &types.RankingEntry{UserID: string(rune('a' + i)), Username: string(rune('a' + i)), Coins: c}
	}
	return out
}

func TestRefreshPushesToAllRecipients(t *testing.T) {
	source := &fakeSource{entries: entries(30, 20, 10)}
	pool := &fakePool{}
	r1 := &fakeRecipient{id: "c1"}
	r2 := &fakeRecipient{id: "c2"}
	pool.set(r1, r2)

	b := NewBroadcaster(source, pool, 10)
	b.Refresh(context.Background())

	if r1.pushCount() != 1 || r2.pushCount() != 1 {
		t.Fatalf("pushes = %d/%d, want 1/1", r1.pushCount(), r2.pushCount())
	}
	if len(b.Snapshot()) != 3 {
		t.Errorf("snapshot length = %d, want 3", len(b.Snapshot()))
	}
}

func TestRefreshUnchangedStandingsAreSilent(t *testing.T) {
	source := &fakeSource{entries: entries(30, 20)}
	pool := &fakePool{}
	r1 := &fakeRecipient{id: "c1"}
	pool.set(r1)

	b := NewBroadcaster(source, pool, 10)
	ctx := context.Background()
	b.Refresh(ctx)
	b.Refresh(ctx)
	b.Refresh(ctx)

	if got := r1.pushCount(); got != 1 {
		t.Fatalf("pushes = %d, want 1 for unchanged standings", got)
	}
}

func TestRefreshChangedCoinsPushAgain(t *testing.T) {
	source := &fakeSource{entries: entries(30, 20)}
	pool := &fakePool{}
	r1 := &fakeRecipient{id: "c1"}
	pool.set(r1)

	b := NewBroadcaster(source, pool, 10)
	ctx := context.Background()
	b.Refresh(ctx)

	source.set(entries(40, 20))
	b.Refresh(ctx)

	if got := r1.pushCount(); got != 2 {
		t.Fatalf("pushes = %d, want 2 after coin change", got)
	}
}

func TestRefreshNewRecipientGetsCurrentStandings(t *testing.T) {
	source := &fakeSource{entries: entries(30)}
	pool := &fakePool{}
	r1 := &fakeRecipient{id: "c1"}
	pool.set(r1)

	b := NewBroadcaster(source, pool, 10)
	ctx := context.Background()
	b.Refresh(ctx)

	r2 := &fakeRecipient{id: "c2"}
	pool.set(r1, r2)
	b.Refresh(ctx)

	if got := r1.pushCount(); got != 1 {
		t.Errorf("existing recipient pushes = %d, want 1", got)
	}
	if got := r2.pushCount(); got != 1 {
		t.Errorf("new recipient pushes = %d, want 1", got)
	}
}

func TestRefreshFailureKeepsPreviousSnapshot(t *testing.T) {
	source := &fakeSource{entries: entries(30)}
	pool := &fakePool{}

	b := NewBroadcaster(source, pool, 10)
	ctx := context.Background()
	b.Refresh(ctx)

	source.mu.Lock()
	source.err = errors.New("db down")
	source.mu.Unlock()
	b.Refresh(ctx)

	if len(b.Snapshot()) != 1 {
		t.Fatalf("snapshot lost after failed refresh: %d entries", len(b.Snapshot()))
	}
}

func TestRefreshDropsDepartedRecipients(t *testing.T) {
	source := &fakeSource{entries: entries(30)}
	pool := &fakePool{}
	r1 := &fakeRecipient{id: "c1"}
	pool.set(r1)

	b := NewBroadcaster(source, pool, 10)
	ctx := context.Background()
	b.Refresh(ctx)

	pool.set()
	b.Refresh(ctx)

	b.mu.Lock()
	tracked := len(b.lastSent)
	b.mu.Unlock()
	if tracked != 0 {
		t.Errorf("lastSent still tracks %d departed recipients", tracked)
	}
}

func TestSendToIsUnconditional(t *testing.T) {
	source := &fakeSource{entries: entries(30)}
	pool := &fakePool{}
	r1 := &fakeRecipient{id: "c1"}
	pool.set(r1)

	b := NewBroadcaster(source, pool, 10)
	ctx := context.Background()
	b.Refresh(ctx)

	b.SendTo(r1)
	b.SendTo(r1)

	if got := r1.pushCount(); got != 3 {
		t.Fatalf("pushes = %d, want 3 (refresh + two direct sends)", got)
	}
}
