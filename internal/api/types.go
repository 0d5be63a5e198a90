package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/showfloor/cybergenesis/internal/domain"
	"github.com/showfloor/cybergenesis/internal/snapshot"
)

// Notification is the envelope pushed over the websocket feed and the
// Redis pubsub channel. Data always carries full state, never a delta.
type Notification struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type Session struct {
	ID            string     `json:"id"`
	JoinCode      string     `json:"join_code"`
	Status        string     `json:"status"`
	CurrentStage  int        `json:"current_stage"`
	EnabledStages []int      `json:"enabled_stages"`
	IsReady       bool       `json:"is_ready"`
	StartsAt      *time.Time `json:"starts_at,omitempty"`
}

type Player struct {
	ID                string `json:"id"`
	GameSessionID     string `json:"game_session_id"`
	Name              string `json:"name"`
	PhotoURL          string `json:"photo_url,omitempty"`
	AvatarColor       string `json:"avatar_color,omitempty"`
	IsSpectator       bool   `json:"is_spectator"`
	IsEliminated      bool   `json:"is_eliminated"`
	IsKicked          bool   `json:"is_kicked"`
	EliminatedAtStage *int   `json:"eliminated_at_stage,omitempty"`
}

type Progress struct {
	PlayerID     string             `json:"player_id"`
	Stage        int                `json:"stage"`
	Progress     int                `json:"progress"`
	ElapsedTime  decimal.Decimal    `json:"elapsed_time"`
	Status       string             `json:"status"`
	CurrentScore decimal.Decimal    `json:"current_score"`
	Extra        *domain.StageExtra `json:"extra,omitempty"`
}

type Score struct {
	PlayerID  string          `json:"player_id"`
	Stage     int             `json:"stage"`
	Score     decimal.Decimal `json:"score"`
	TimeTaken decimal.Decimal `json:"time_taken"`
}

type Standings struct {
	SessionID string           `json:"session_id"`
	Stage     int              `json:"stage"`
	Entries   []StandingsEntry `json:"entries"`
}

type StandingsEntry struct {
	PlayerID string  `json:"player_id"`
	Value    float64 `json:"value"`
}

type Ranking struct {
	SessionID  string   `json:"session_id"`
	Stage      int      `json:"stage"`
	Order      []string `json:"order"`
	Advancing  []string `json:"advancing"`
	Eliminated []string `json:"eliminated"`
}

type Snapshot struct {
	Session  Session    `json:"session"`
	Players  []Player   `json:"players"`
	Progress []Progress `json:"progress,omitempty"`
	Scores   []Score    `json:"scores,omitempty"`
}

type CountdownTick struct {
	SessionID string `json:"session_id"`
	Stage     int    `json:"stage"`
	Remaining int    `json:"remaining"`
}

type StageFinished struct {
	SessionID string `json:"session_id"`
	Stage     int    `json:"stage"`
}

func toSession(gs *domain.GameSession) Session {
	return Session{
		ID:            gs.ID,
		JoinCode:      gs.JoinCode,
		Status:        string(gs.Status),
		CurrentStage:  gs.CurrentStage,
		EnabledStages: gs.EnabledStages,
		IsReady:       gs.IsReady,
		StartsAt:      gs.StartsAt,
	}
}

func toPlayer(p domain.Player) Player {
	return Player{
		ID:                p.ID,
		GameSessionID:     p.GameSessionID,
		Name:              p.Name,
		PhotoURL:          p.PhotoURL,
		AvatarColor:       p.AvatarColor,
		IsSpectator:       p.IsSpectator,
		IsEliminated:      p.IsEliminated,
		IsKicked:          p.IsKicked,
		EliminatedAtStage: p.EliminatedAtStage,
	}
}

func toProgress(pr domain.PlayerProgress) Progress {
	return Progress{
		PlayerID:     pr.PlayerID,
		Stage:        pr.Stage,
		Progress:     pr.Progress,
		ElapsedTime:  pr.ElapsedTime,
		Status:       string(pr.Status),
		CurrentScore: pr.CurrentScore,
		Extra:        pr.Extra,
	}
}

func toScore(sc domain.StageScore) Score {
	return Score{
		PlayerID:  sc.PlayerID,
		Stage:     sc.Stage,
		Score:     sc.Score,
		TimeTaken: sc.TimeTaken,
	}
}

func toStandings(st domain.Standings) Standings {
	out := Standings{
		SessionID: st.SessionID,
		Stage:     st.Stage,
		Entries:   make([]StandingsEntry, 0, len(st.Entries)),
	}
	for _, e := range st.Entries {
		out.Entries = append(out.Entries, StandingsEntry{
			PlayerID: e.PlayerID,
			Value:    e.Value,
		})
	}
	return out
}

func toRanking(r domain.Ranking) Ranking {
	return Ranking{
		SessionID:  r.SessionID,
		Stage:      r.Stage,
		Order:      r.Order,
		Advancing:  r.Advancing,
		Eliminated: r.Eliminated,
	}
}

func toSnapshot(snap *snapshot.Snapshot) Snapshot {
	out := Snapshot{
		Session: toSession(&snap.Session),
		Players: make([]Player, 0, len(snap.Players)),
	}
	for _, p := range snap.Players {
		out.Players = append(out.Players, toPlayer(p))
	}
	for _, pr := range snap.Progress {
		out.Progress = append(out.Progress, toProgress(pr))
	}
	for _, sc := range snap.Scores {
		out.Scores = append(out.Scores, toScore(sc))
	}
	return out
}

// notification maps a domain event to the session channel it belongs on
// and the wire payload. Events with no client-facing payload return ok
// false.
func notification(name string, e any) (sessionID string, n Notification, ok bool) {
	switch ev := e.(type) {
	case domain.EventSessionUpdated:
		return ev.Session.ID, Notification{Event: name, Data: toSession(&ev.Session)}, true
	case domain.EventSessionReset:
		return ev.SessionID, Notification{Event: name, Data: Session{ID: ev.SessionID}}, true
	case domain.EventPlayerJoined:
		return ev.Player.GameSessionID, Notification{Event: name, Data: toPlayer(ev.Player)}, true
	case domain.EventPlayerUpdated:
		return ev.Player.GameSessionID, Notification{Event: name, Data: toPlayer(ev.Player)}, true
	case domain.EventProgressUpdated:
		return ev.Progress.GameSessionID, Notification{Event: name, Data: toProgress(ev.Progress)}, true
	case domain.EventScoreSubmitted:
		return ev.Score.GameSessionID, Notification{Event: name, Data: toScore(ev.Score)}, true
	case domain.EventStandingsUpdated:
		return ev.Standings.SessionID, Notification{Event: name, Data: toStandings(ev.Standings)}, true
	case domain.EventStageRanked:
		return ev.Ranking.SessionID, Notification{Event: name, Data: toRanking(ev.Ranking)}, true
	case domain.EventStageAllFinished:
		return ev.SessionID, Notification{Event: name, Data: StageFinished{SessionID: ev.SessionID, Stage: ev.Stage}}, true
	case domain.EventCountdownTick:
		return ev.SessionID, Notification{Event: name, Data: CountdownTick{SessionID: ev.SessionID, Stage: ev.Stage, Remaining: ev.Remaining}}, true
	}
	return "", Notification{}, false
}

// feedEvents are the event names mirrored to clients.
var feedEvents = []string{
	domain.EventNameSessionUpdated,
	domain.EventNameSessionReset,
	domain.EventNamePlayerJoined,
	domain.EventNamePlayerUpdated,
	domain.EventNameProgressUpdated,
	domain.EventNameScoreSubmitted,
	domain.EventNameStandingsUpdated,
	domain.EventNameStageRanked,
	domain.EventNameStageAllFinished,
	domain.EventNameCountdownTick,
}
