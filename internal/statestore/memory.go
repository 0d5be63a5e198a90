package statestore

import (
	"context"
	"sort"
	"sync"

	"github.com/showfloor/cybergenesis/internal/domain"
	"github.com/showfloor/cybergenesis/internal/errors"
)

type scoreKey struct {
	playerID  string
	sessionID string
	stage     int
}

// Memory is a mutex-guarded in-memory Store. It backs unit tests and
// local single-process runs where Postgres is not available.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]domain.GameSession
	players  map[string]domain.Player
	scores   map[scoreKey]domain.StageScore
	progress map[scoreKey]domain.PlayerProgress
}

func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]domain.GameSession),
		players:  make(map[string]domain.Player),
		scores:   make(map[scoreKey]domain.StageScore),
		progress: make(map[scoreKey]domain.PlayerProgress),
	}
}

func (m *Memory) CreateSession(_ context.Context, s *domain.GameSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[s.ID]; ok {
		return errors.New(errors.CodeAlreadyExists, errors.WithMessagef("session exists: %s", s.ID))
	}
	m.sessions[s.ID] = *s
	return nil
}

func (m *Memory) GetSession(_ context.Context, id string) (*domain.GameSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("session not found: %s", id))
	}
	return copySession(s), nil
}

func (m *Memory) GetSessionByJoinCode(_ context.Context, code string) (*domain.GameSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.sessions {
		if s.JoinCode == code {
			return copySession(s), nil
		}
	}
	return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("session not found: code=%s", code))
}

func (m *Memory) UpdateSession(_ context.Context, s *domain.GameSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[s.ID]; !ok {
		return errors.New(errors.CodeNotFound, errors.WithMessagef("session not found: %s", s.ID))
	}
	m.sessions[s.ID] = *s
	return nil
}

func (m *Memory) CreatePlayer(_ context.Context, p *domain.Player) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.players[p.ID]; ok {
		return errors.New(errors.CodeAlreadyExists, errors.WithMessagef("player exists: %s", p.ID))
	}
	m.players[p.ID] = *p
	return nil
}

func (m *Memory) GetPlayer(_ context.Context, id string) (*domain.Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.players[id]
	if !ok {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("player not found: %s", id))
	}
	return &p, nil
}

func (m *Memory) UpdatePlayer(_ context.Context, p *domain.Player) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.players[p.ID]; !ok {
		return errors.New(errors.CodeNotFound, errors.WithMessagef("player not found: %s", p.ID))
	}
	m.players[p.ID] = *p
	return nil
}

func (m *Memory) ListPlayers(_ context.Context, sessionID string) ([]domain.Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.Player
	for _, p := range m.players {
		if p.GameSessionID == sessionID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (m *Memory) UpsertScore(_ context.Context, sc *domain.StageScore) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.scores[scoreKey{sc.PlayerID, sc.GameSessionID, sc.Stage}] = *sc
	return nil
}

func (m *Memory) ListScores(_ context.Context, sessionID string, stage int) ([]domain.StageScore, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.StageScore
	for k, sc := range m.scores {
		if k.sessionID == sessionID && k.stage == stage {
			out = append(out, sc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })
	return out, nil
}

func (m *Memory) DeleteScores(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k := range m.scores {
		if k.sessionID == sessionID {
			delete(m.scores, k)
		}
	}
	return nil
}

func (m *Memory) UpsertProgress(_ context.Context, pr *domain.PlayerProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.progress[scoreKey{pr.PlayerID, pr.GameSessionID, pr.Stage}] = *pr
	return nil
}

func (m *Memory) ListProgress(_ context.Context, sessionID string, stage int) ([]domain.PlayerProgress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.PlayerProgress
	for k, pr := range m.progress {
		if k.sessionID == sessionID && k.stage == stage {
			out = append(out, pr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })
	return out, nil
}

func (m *Memory) DeleteProgress(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k := range m.progress {
		if k.sessionID == sessionID {
			delete(m.progress, k)
		}
	}
	return nil
}

func copySession(s domain.GameSession) *domain.GameSession {
	cp := s
	cp.EnabledStages = append([]int(nil), s.EnabledStages...)
	if s.StartsAt != nil {
		t := *s.StartsAt
		cp.StartsAt = &t
	}
	return &cp
}
