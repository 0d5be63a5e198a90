package domain

const (
	EventNameSessionUpdated   = "session.updated"
	EventNamePlayerJoined     = "player.joined"
	EventNamePlayerUpdated    = "player.updated"
	EventNameProgressUpdated  = "progress.updated"
	EventNameScoreSubmitted   = "score.submitted"
	EventNameStageAllFinished = "stage.all_finished"
	EventNameStageRanked      = "stage.ranked"
	EventNameCountdownTick    = "countdown.tick"
	EventNameStandingsUpdated = "standings.updated"
	EventNameSessionReset     = "session.reset"
)

type EventSessionUpdated struct {
	Session GameSession
}

func (EventSessionUpdated) Name() string { return EventNameSessionUpdated }

type EventPlayerJoined struct {
	Player Player
}

func (EventPlayerJoined) Name() string { return EventNamePlayerJoined }

type EventPlayerUpdated struct {
	Player Player
}

func (EventPlayerUpdated) Name() string { return EventNamePlayerUpdated }

type EventProgressUpdated struct {
	Progress PlayerProgress
}

func (EventProgressUpdated) Name() string { return EventNameProgressUpdated }

type EventScoreSubmitted struct {
	Score StageScore
}

func (EventScoreSubmitted) Name() string { return EventNameScoreSubmitted }

// EventStageAllFinished fires when every active player's progress for the
// current stage reached finished. Duplicate deliveries are expected.
type EventStageAllFinished struct {
	SessionID string
	Stage     int
}

func (EventStageAllFinished) Name() string { return EventNameStageAllFinished }

// EventStageRanked carries the authoritative order and the split computed
// when a stage completes.
type EventStageRanked struct {
	Ranking Ranking
}

func (EventStageRanked) Name() string { return EventNameStageRanked }

type EventCountdownTick struct {
	SessionID string
	Stage     int
	Remaining int
}

func (EventCountdownTick) Name() string { return EventNameCountdownTick }

type EventStandingsUpdated struct {
	Standings Standings
}

func (EventStandingsUpdated) Name() string { return EventNameStandingsUpdated }

type EventSessionReset struct {
	SessionID string
}

func (EventSessionReset) Name() string { return EventNameSessionReset }

// Standings is the live, approximate best-to-worst order shown while a
// trial is still running. The final order always comes from the ranking
// engine, never from here.
type Standings struct {
	SessionID string
	Stage     int
	Entries   []StandingsEntry
}

type StandingsEntry struct {
	PlayerID string
	Value    float64
}
