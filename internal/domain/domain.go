package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SessionStatus is the lifecycle status of a game session.
// The status string doubles as the phase the presentation layer renders.
type SessionStatus string

const (
	StatusLobby     SessionStatus = "lobby"
	StatusStage1    SessionStatus = "stage1"
	StatusStage2    SessionStatus = "stage2"
	StatusStage3    SessionStatus = "stage3"
	StatusCompleted SessionStatus = "completed"
)

// StageStatus returns the session status for an active stage number.
func StageStatus(stage int) SessionStatus {
	switch stage {
	case 1:
		return StatusStage1
	case 2:
		return StatusStage2
	case 3:
		return StatusStage3
	}
	return StatusLobby
}

// GameSession represents one live show instance.
// A session is never deleted; reset reverts its fields to initial values.
type GameSession struct {
	ID            string
	JoinCode      string
	Status        SessionStatus
	CurrentStage  int
	EnabledStages []int
	IsReady       bool
	StartsAt      *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// LastStage reports whether stage is the final entry of EnabledStages.
func (s *GameSession) LastStage(stage int) bool {
	n := len(s.EnabledStages)
	return n > 0 && s.EnabledStages[n-1] == stage
}

// NextStage returns the stage after the given one in EnabledStages,
// or 0 when the given stage is the last (or not enabled at all).
func (s *GameSession) NextStage(stage int) int {
	for i, st := range s.EnabledStages {
		if st == stage && i+1 < len(s.EnabledStages) {
			return s.EnabledStages[i+1]
		}
	}
	return 0
}

// StageEnabled reports whether stage is part of this session.
func (s *GameSession) StageEnabled(stage int) bool {
	for _, st := range s.EnabledStages {
		if st == stage {
			return true
		}
	}
	return false
}

// Player represents one participant.
// An eliminated player stays in the roster for the elimination ceremony
// and the final recap; a kicked player is excluded from every active view.
type Player struct {
	ID                string
	GameSessionID     string
	Name              string
	PhotoURL          string
	AvatarColor       string
	IsSpectator       bool
	IsEliminated      bool
	IsKicked          bool
	EliminatedAtStage *int
	JoinedAt          time.Time
}

// Active reports whether the player counts toward completion checks,
// rankings and eliminations.
func (p *Player) Active() bool {
	return !p.IsSpectator && !p.IsKicked && !p.IsEliminated
}

// ActivePlayers filters the roster down to active players, preserving order.
func ActivePlayers(players []Player) []Player {
	out := make([]Player, 0, len(players))
	for _, p := range players {
		if p.Active() {
			out = append(out, p)
		}
	}
	return out
}

// StageScore is the final outcome record of one player for one stage.
// Score semantics vary per stage: elapsed seconds for stages 1 and 3
// (lower is better), accumulated points for stage 2 (higher is better).
// TimeTaken is the secondary metric used as the stage 2 tiebreak.
type StageScore struct {
	PlayerID      string
	GameSessionID string
	Stage         int
	Score         decimal.Decimal
	TimeTaken     decimal.Decimal
	RecordedAt    time.Time
}

// ProgressStatus is the live status of a player within a stage.
type ProgressStatus string

const (
	ProgressWaiting  ProgressStatus = "waiting"
	ProgressPlaying  ProgressStatus = "playing"
	ProgressFinished ProgressStatus = "finished"
)

// PlayerProgress is the live per-stage status record, updated continuously
// while a trial runs. One row per (player, session, stage).
type PlayerProgress struct {
	PlayerID      string
	GameSessionID string
	Stage         int
	Progress      int
	ElapsedTime   decimal.Decimal
	Status        ProgressStatus
	CurrentScore  decimal.Decimal
	Extra         *StageExtra
	UpdatedAt     time.Time
}

// Ranking is a strict best-to-worst order of player IDs for one stage,
// split into the advancing head and the eliminated tail.
type Ranking struct {
	SessionID  string
	Stage      int
	Order      []string
	Advancing  []string
	Eliminated []string
}
