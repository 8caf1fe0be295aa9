package reward

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"mazequiz/pkg/types"
)

// SystemAccount is the ledger account quiz rewards are paid from.
const SystemAccount = "system"

// Ledger is the persistence surface the delegate writes through. The
// SQLite store implements it.
type Ledger interface {
	InsertTransaction(ctx context.Context, tx *types.Transaction) error
	UpsertAchievement(ctx context.Context, userID, name string, value int) error
	InsertItem(ctx context.Context, item *types.Item) error
}

// Rarity tiers for item draws, weighted toward common.
var rarityWeights = []lo.Entry[string, int]{
	{Key: "common", Value: 60},
	{Key: "rare", Value: 25},
	{Key: "epic", Value: 10},
	{Key: "legendary", Value: 5},
}

var itemNames = map[string][]string{
	"common":    {"wooden compass", "chalk stick", "rope coil"},
	"rare":      {"brass lantern", "silver key"},
	"epic":      {"enchanted map", "crystal lens"},
	"legendary": {"minotaur's horn"},
}

// Delegate records quiz payouts in the ledger. All methods are safe for
// concurrent use; the ledger serializes writes internally.
type Delegate struct {
	ledger Ledger
	rng    *rand.Rand
	total  int
}

// NewDelegate creates a reward delegate. A nil rng gets a time seed.
func NewDelegate(ledger Ledger, rng *rand.Rand) *Delegate {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	total := 0
	for _, e := range rarityWeights {
		total += e.Value
	}
	return &Delegate{ledger: ledger, rng: rng, total: total}
}

// RecordTransaction credits the user with coins from the system
// account. Zero-amount transactions are still recorded so every
// finished quiz leaves a ledger trace.
func (d *Delegate) RecordTransaction(ctx context.Context, userID string, amount int, memo string) error {
	tx := &types.Transaction{
		ID:        uuid.New().String(),
		FromUser:  SystemAccount,
		ToUser:    userID,
		Amount:    amount,
		Memo:      memo,
		CreatedAt: time.Now().UTC(),
	}
	if err := d.ledger.InsertTransaction(ctx, tx); err != nil {
		return fmt.Errorf("failed to record transaction: %w", err)
	}
	return nil
}

// GrantAchievement records a named achievement, keeping the highest
// value seen so repeat grants never lower a score.
func (d *Delegate) GrantAchievement(ctx context.Context, userID, name string, value int) error {
	if err := d.ledger.UpsertAchievement(ctx, userID, name, value); err != nil {
		return fmt.Errorf("failed to grant achievement %s: %w", name, err)
	}
	return nil
}

// IssueItem draws an item with rarity weighted toward common and
// records it for the user.
func (d *Delegate) IssueItem(ctx context.Context, userID string) (*types.Item, error) {
	rarity := d.drawRarity()
	names := itemNames[rarity]
	item := &types.Item{
		ID:       uuid.New().String(),
		UserID:   userID,
		Name:     names[d.rng.Intn(len(names))],
		Rarity:   rarity,
		IssuedAt: time.Now().UTC(),
	}
	if err := d.ledger.InsertItem(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to issue item: %w", err)
	}
	return item, nil
}

func (d *Delegate) drawRarity() string {
	roll := d.rng.Intn(d.total)
	for _, e := range rarityWeights {
		if roll < e.Value {
			return e.Key
		}
		roll -= e.Value
	}
	return rarityWeights[len(rarityWeights)-1].Key
}
