// Package ranking orders players best-to-worst for a completed (or forced)
// stage. It is pure: everything it reads arrives in the Snapshot, so the
// same inputs always produce the same order and the engine can be re-run
// on every redisplay or duplicated change event.
package ranking

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/showfloor/cybergenesis/internal/domain"
)

// Snapshot is the explicit input to the engine: the stage under judgment,
// the roster, and the per-stage score and progress records keyed by player.
type Snapshot struct {
	Stage    int
	Players  []domain.Player
	Scores   map[string]domain.StageScore
	Progress map[string]domain.PlayerProgress
}

// NewSnapshot builds a Snapshot from record lists as they come back from
// the state store.
func NewSnapshot(stage int, players []domain.Player, scores []domain.StageScore, progress []domain.PlayerProgress) Snapshot {
	s := Snapshot{
		Stage:    stage,
		Players:  players,
		Scores:   make(map[string]domain.StageScore, len(scores)),
		Progress: make(map[string]domain.PlayerProgress, len(progress)),
	}
	for _, sc := range scores {
		s.Scores[sc.PlayerID] = sc
	}
	for _, pr := range progress {
		s.Progress[pr.PlayerID] = pr
	}
	return s
}

// Rank returns player IDs best first.
//
// Finished players always rank above unfinished ones, whatever the scores
// say. Stages 1 and 3 sort ascending by score (elapsed / deviation),
// stage 2 descending by score with the lower time_taken winning ties.
// A player without a score record sorts after every scored player in the
// same partition. Remaining ties keep roster order (stable sort).
func Rank(s Snapshot) []string {
	players := eligible(s.Players)

	sort.SliceStable(players, func(i, j int) bool {
		return less(s, players[i].ID, players[j].ID)
	})

	out := make([]string, len(players))
	for i, p := range players {
		out[i] = p.ID
	}
	return out
}

// eligible drops spectators and kicked players. Elimination filtering is
// the caller's concern: the ceremony ranks the players who played the
// stage, and who played depends on which stage is being judged.
func eligible(players []domain.Player) []domain.Player {
	out := make([]domain.Player, 0, len(players))
	for _, p := range players {
		if !p.IsSpectator && !p.IsKicked {
			out = append(out, p)
		}
	}
	return out
}

func less(s Snapshot, a, b string) bool {
	af, bf := finished(s, a), finished(s, b)
	if af != bf {
		return af
	}

	if af {
		return lessFinished(s, a, b)
	}
	return lessUnfinished(s, a, b)
}

func finished(s Snapshot, id string) bool {
	pr, ok := s.Progress[id]
	return ok && pr.Status == domain.ProgressFinished
}

func lessFinished(s Snapshot, a, b string) bool {
	sa, aok := s.Scores[a]
	sb, bok := s.Scores[b]

	// An unscored player in a finished cohort always sorts last.
	if aok != bok {
		return aok
	}
	if !aok {
		return false
	}

	if s.Stage == 2 {
		switch sa.Score.Cmp(sb.Score) {
		case 1:
			return true
		case -1:
			return false
		}
		// Equal points: the faster player wins the tie.
		return sa.TimeTaken.Cmp(sb.TimeTaken) < 0
	}

	// Stages 1 and 3: lower elapsed / deviation is better.
	return sa.Score.Cmp(sb.Score) < 0
}

func lessUnfinished(s Snapshot, a, b string) bool {
	if s.Stage == 2 {
		// Higher live score first among players still going.
		return currentScore(s, a).Cmp(currentScore(s, b)) > 0
	}

	sa, aok := s.Scores[a]
	sb, bok := s.Scores[b]
	if aok && bok {
		return sa.Score.Cmp(sb.Score) < 0
	}
	if aok != bok {
		return aok
	}

	// No scores at all: progress percentage is the only remaining signal.
	return progressPct(s, a) > progressPct(s, b)
}

func currentScore(s Snapshot, id string) decimal.Decimal {
	if pr, ok := s.Progress[id]; ok {
		return pr.CurrentScore
	}
	return decimal.Zero
}

func progressPct(s Snapshot, id string) int {
	if pr, ok := s.Progress[id]; ok {
		return pr.Progress
	}
	return 0
}
