package ranking_test

import (
	"strconv"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/showfloor/cybergenesis/internal/domain"
	"github.com/showfloor/cybergenesis/internal/ranking"
)

func TestRank(t *testing.T) {
	type (
		inputs struct {
			snapshot ranking.Snapshot
		}

		outputs struct {
			order []string
		}
	)

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, out outputs)
	}{
		"stage 1: ten finished players sort ascending by elapsed time": {
			arrange: func() inputs {
				scores := []float64{9.1, 8.7, 10.2, 7.9, 11.0, 8.3, 9.9, 7.5, 10.8, 8.0}
				b := newBuilder(1)
				for i, s := range scores {
					b.finished(playerID(i+1), s)
				}
				return inputs{snapshot: b.snapshot()}
			},

			assert: func(t *testing.T, out outputs) {
				require.Equal(t, []string{"p8", "p4", "p10", "p6", "p2", "p1", "p7", "p3", "p9", "p5"}, out.order)
			},
		},

		"stage 1: finished players rank above unfinished regardless of scores": {
			arrange: func() inputs {
				b := newBuilder(1)
				b.finished("p1", 30.0)
				b.playing("p2", 80, 5.0)
				b.playing("p3", 95, 4.0)
				return inputs{snapshot: b.snapshot()}
			},

			assert: func(t *testing.T, out outputs) {
				require.Equal(t, "p1", out.order[0], "the finished player must rank first")
			},
		},

		"stage 1: unfinished players fall back to descending progress": {
			arrange: func() inputs {
				b := newBuilder(1)
				b.playing("p1", 40, 3.0)
				b.playing("p2", 90, 3.5)
				b.playing("p3", 10, 1.0)
				return inputs{snapshot: b.snapshot()}
			},

			assert: func(t *testing.T, out outputs) {
				require.Equal(t, []string{"p2", "p1", "p3"}, out.order)
			},
		},

		"stage 2: higher score wins, lower time_taken breaks the tie": {
			arrange: func() inputs {
				b := newBuilder(2)
				b.finishedPoints("p1", 9, 12.4)
				b.finishedPoints("p2", 9, 11.8)
				b.finishedPoints("p3", 11, 20.0)
				return inputs{snapshot: b.snapshot()}
			},

			assert: func(t *testing.T, out outputs) {
				require.Equal(t, []string{"p3", "p2", "p1"}, out.order)
			},
		},

		"stage 2: unfinished players order by live score": {
			arrange: func() inputs {
				b := newBuilder(2)
				b.finishedPoints("p1", 3, 15.0)
				b.playingPoints("p2", 7)
				b.playingPoints("p3", 9)
				return inputs{snapshot: b.snapshot()}
			},

			assert: func(t *testing.T, out outputs) {
				require.Equal(t, []string{"p1", "p3", "p2"}, out.order)
			},
		},

		"a finished player without a score record sorts last in the finished cohort": {
			arrange: func() inputs {
				b := newBuilder(1)
				b.finished("p1", 12.0)
				b.finishedNoScore("p2")
				b.finished("p3", 9.0)
				return inputs{snapshot: b.snapshot()}
			},

			assert: func(t *testing.T, out outputs) {
				require.Equal(t, []string{"p3", "p1", "p2"}, out.order)
			},
		},

		"spectators and kicked players never appear in the order": {
			arrange: func() inputs {
				b := newBuilder(1)
				b.finished("p1", 10.0)
				b.finished("p2", 8.0)
				b.players[1].IsKicked = true
				b.addPlayer(domain.Player{ID: "watcher", IsSpectator: true})
				return inputs{snapshot: b.snapshot()}
			},

			assert: func(t *testing.T, out outputs) {
				require.Equal(t, []string{"p1"}, out.order)
			},
		},

		"players with no records at all still rank, after everyone else": {
			arrange: func() inputs {
				b := newBuilder(3)
				b.finished("p1", 0.42)
				b.addPlayer(domain.Player{ID: "p2"})
				b.addPlayer(domain.Player{ID: "p3"})
				return inputs{snapshot: b.snapshot()}
			},

			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.order, 3)
				require.Equal(t, "p1", out.order[0])
				assert.ElementsMatch(t, []string{"p2", "p3"}, out.order[1:])
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in := tt.arrange()
			out := outputs{order: ranking.Rank(in.snapshot)}
			tt.assert(t, out)
		})
	}
}

func TestRank_Idempotent(t *testing.T) {
	b := newBuilder(1)
	b.finished("p1", 9.1)
	b.finished("p2", 9.1)
	b.finished("p3", 7.0)
	b.playing("p4", 50, 2.0)
	b.playing("p5", 50, 1.0)
	snap := b.snapshot()

	first := ranking.Rank(snap)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, ranking.Rank(snap), "same snapshot must always produce the same order")
	}
}

func TestRank_TiesKeepRosterOrder(t *testing.T) {
	b := newBuilder(1)
	b.finished("p1", 9.1)
	b.finished("p2", 9.1)
	b.finished("p3", 9.1)

	require.Equal(t, []string{"p1", "p2", "p3"}, ranking.Rank(b.snapshot()))
}

// builder assembles snapshots with less noise than literal structs.
type builder struct {
	stage    int
	players  []domain.Player
	scores   []domain.StageScore
	progress []domain.PlayerProgress
}

func newBuilder(stage int) *builder {
	return &builder{stage: stage}
}

func playerID(n int) string {
	return "p" + strconv.Itoa(n)
}

func (b *builder) addPlayer(p domain.Player) {
	b.players = append(b.players, p)
}

func (b *builder) finished(id string, score float64) {
	b.addPlayer(domain.Player{ID: id})
	b.scores = append(b.scores, domain.StageScore{
		PlayerID: id,
		Stage:    b.stage,
		Score:    decimal.NewFromFloat(score),
	})
	b.progress = append(b.progress, domain.PlayerProgress{
		PlayerID: id,
		Stage:    b.stage,
		Progress: 100,
		Status:   domain.ProgressFinished,
	})
}

func (b *builder) finishedNoScore(id string) {
	b.addPlayer(domain.Player{ID: id})
	b.progress = append(b.progress, domain.PlayerProgress{
		PlayerID: id,
		Stage:    b.stage,
		Progress: 100,
		Status:   domain.ProgressFinished,
	})
}

func (b *builder) finishedPoints(id string, points int, timeTaken float64) {
	b.addPlayer(domain.Player{ID: id})
	b.scores = append(b.scores, domain.StageScore{
		PlayerID:  id,
		Stage:     b.stage,
		Score:     decimal.NewFromInt(int64(points)),
		TimeTaken: decimal.NewFromFloat(timeTaken),
	})
	b.progress = append(b.progress, domain.PlayerProgress{
		PlayerID: id,
		Stage:    b.stage,
		Progress: 100,
		Status:   domain.ProgressFinished,
	})
}

func (b *builder) playing(id string, pct int, elapsed float64) {
	b.addPlayer(domain.Player{ID: id})
	b.progress = append(b.progress, domain.PlayerProgress{
		PlayerID:    id,
		Stage:       b.stage,
		Progress:    pct,
		ElapsedTime: decimal.NewFromFloat(elapsed),
		Status:      domain.ProgressPlaying,
	})
}

func (b *builder) playingPoints(id string, points int) {
	b.addPlayer(domain.Player{ID: id})
	b.progress = append(b.progress, domain.PlayerProgress{
		PlayerID:     id,
		Stage:        b.stage,
		Progress:     50,
		Status:       domain.ProgressPlaying,
		CurrentScore: decimal.NewFromInt(int64(points)),
	})
}

func (b *builder) snapshot() ranking.Snapshot {
	return ranking.NewSnapshot(b.stage, b.players, b.scores, b.progress)
}
