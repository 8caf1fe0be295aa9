package interfaces

import (
	"context"
	"mazequiz/pkg/types"
)

// RewardDelegate performs reward side effects. Every call is
// best-effort from the caller's perspective: failures are logged by the
// caller and never abort the triggering quiz or round flow.
type RewardDelegate interface {
	// RecordTransaction moves coins from the system account to the
	// user's ledger.
	RecordTransaction(ctx context.Context, userID string, amount int, memo string) error

	// GrantAchievement records a named achievement with a value such as
	// the score or level that earned it.
	GrantAchievement(ctx context.Context, userID, name string, value int) error

	// IssueItem draws a rarity-weighted reward item and stores it for
	// the user.
	IssueItem(ctx context.Context, userID string) (*types.Item, error)
}
