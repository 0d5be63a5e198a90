// Package elimination turns a ranked order into the advancing head and the
// eliminated tail, and persists the result.
package elimination

import (
	"context"
	"fmt"

	"github.com/showfloor/cybergenesis/internal/statestore"
)

// counts is the fixed per-stage elimination table. Stage 3 is the final:
// the champion is decided by rank, nobody leaves the roster.
var counts = map[int]int{
	1: 4,
	2: 3,
	3: 0,
}

// Count returns how many players leave after the given stage.
func Count(stage int) int {
	return counts[stage]
}

// Split divides a ranked (best-first) order into advancing and eliminated.
// The eliminated set is the tail of the order. When the configured count
// exceeds the roster (kicks can shrink it below the table value) the count
// is clamped, so every player is eliminated and advancing is empty rather
// than panicking on a bad slice bound.
func Split(stage int, ranked []string) (advancing, eliminated []string) {
	n := Count(stage)
	if n > len(ranked) {
		n = len(ranked)
	}

	cut := len(ranked) - n
	return ranked[:cut:cut], ranked[cut:]
}

// Apply persists the eliminated set: is_eliminated is set and
// eliminated_at_stage recorded once. Reapplying is a no-op for players
// already eliminated, so a retried or duplicated ceremony is safe, and an
// earlier stage number is never overwritten.
func Apply(ctx context.Context, store statestore.Store, stage int, eliminated []string) error {
	for _, id := range eliminated {
		p, err := store.GetPlayer(ctx, id)
		if err != nil {
			return fmt.Errorf("eliminate player %s: %w", id, err)
		}

		if p.IsEliminated {
			continue
		}

		st := stage
		p.IsEliminated = true
		p.EliminatedAtStage = &st
		if err := store.UpdatePlayer(ctx, p); err != nil {
			return fmt.Errorf("eliminate player %s: %w", id, err)
		}
	}
	return nil
}
