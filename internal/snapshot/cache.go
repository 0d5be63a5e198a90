// Package snapshot keeps a read-through cache of remote truth, keyed by
// session id and refreshed by change-feed events. Display clients read a
// coherent per-session snapshot from here instead of issuing four store
// queries per render, and the ranking engine receives its inputs as an
// explicit snapshot rather than ambient state.
package snapshot

import (
	"context"
	"sort"
	"sync"

	"github.com/showfloor/cybergenesis/internal/domain"
	"github.com/showfloor/cybergenesis/internal/event"
	"github.com/showfloor/cybergenesis/internal/statestore"
)

// Snapshot is one session's state as of the latest applied change event.
// Progress and Scores cover the session's current stage.
type Snapshot struct {
	Session  domain.GameSession
	Players  []domain.Player
	Progress []domain.PlayerProgress
	Scores   []domain.StageScore
}

type recordKey struct {
	playerID string
	stage    int
}

type entry struct {
	session  domain.GameSession
	players  map[string]domain.Player
	progress map[recordKey]domain.PlayerProgress
	scores   map[recordKey]domain.StageScore
}

type Cache struct {
	store statestore.Store

	mu      sync.RWMutex
	entries map[string]*entry
}

func NewCache(store statestore.Store) *Cache {
	return &Cache{
		store:   store,
		entries: make(map[string]*entry),
	}
}

// Watch wires the cache into the change feed. Events for sessions nobody
// has read yet are ignored; the first Get loads them from the store.
func (c *Cache) Watch(eb *event.Bus) {
	eb.Subscribe(domain.EventNameSessionUpdated, func(ctx context.Context, e event.Event) error {
		c.applySession(e.(domain.EventSessionUpdated).Session)
		return nil
	})
	eb.Subscribe(domain.EventNamePlayerJoined, func(ctx context.Context, e event.Event) error {
		c.applyPlayer(e.(domain.EventPlayerJoined).Player)
		return nil
	})
	eb.Subscribe(domain.EventNamePlayerUpdated, func(ctx context.Context, e event.Event) error {
		c.applyPlayer(e.(domain.EventPlayerUpdated).Player)
		return nil
	})
	eb.Subscribe(domain.EventNameProgressUpdated, func(ctx context.Context, e event.Event) error {
		c.applyProgress(e.(domain.EventProgressUpdated).Progress)
		return nil
	})
	eb.Subscribe(domain.EventNameScoreSubmitted, func(ctx context.Context, e event.Event) error {
		c.applyScore(e.(domain.EventScoreSubmitted).Score)
		return nil
	})
	eb.Subscribe(domain.EventNameSessionReset, func(ctx context.Context, e event.Event) error {
		// Reset drops remote rows wholesale; reload on next read.
		c.Invalidate(e.(domain.EventSessionReset).SessionID)
		return nil
	})
}

// Get returns the session snapshot, loading from the store on first read.
func (c *Cache) Get(ctx context.Context, sessionID string) (*Snapshot, error) {
	c.mu.RLock()
	en, ok := c.entries[sessionID]
	if ok {
		snap := en.snapshot()
		c.mu.RUnlock()
		return snap, nil
	}
	c.mu.RUnlock()

	return c.load(ctx, sessionID)
}

// Invalidate drops a session from the cache.
func (c *Cache) Invalidate(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, sessionID)
}

func (c *Cache) load(ctx context.Context, sessionID string) (*Snapshot, error) {
	gs, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	players, err := c.store.ListPlayers(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	en := &entry{
		session:  *gs,
		players:  make(map[string]domain.Player, len(players)),
		progress: make(map[recordKey]domain.PlayerProgress),
		scores:   make(map[recordKey]domain.StageScore),
	}
	for _, p := range players {
		en.players[p.ID] = p
	}

	if gs.CurrentStage > 0 {
		progress, err := c.store.ListProgress(ctx, sessionID, gs.CurrentStage)
		if err != nil {
			return nil, err
		}
		for _, pr := range progress {
			en.progress[recordKey{pr.PlayerID, pr.Stage}] = pr
		}

		scores, err := c.store.ListScores(ctx, sessionID, gs.CurrentStage)
		if err != nil {
			return nil, err
		}
		for _, sc := range scores {
			en.scores[recordKey{sc.PlayerID, sc.Stage}] = sc
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// A concurrent load may have won; keep the existing entry so applied
	// events are not lost.
	if cur, ok := c.entries[sessionID]; ok {
		return cur.snapshot(), nil
	}
	c.entries[sessionID] = en
	return en.snapshot(), nil
}

func (c *Cache) applySession(gs domain.GameSession) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if en, ok := c.entries[gs.ID]; ok {
		en.session = gs
	}
}

func (c *Cache) applyPlayer(p domain.Player) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if en, ok := c.entries[p.GameSessionID]; ok {
		en.players[p.ID] = p
	}
}

func (c *Cache) applyProgress(pr domain.PlayerProgress) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if en, ok := c.entries[pr.GameSessionID]; ok {
		en.progress[recordKey{pr.PlayerID, pr.Stage}] = pr
	}
}

func (c *Cache) applyScore(sc domain.StageScore) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if en, ok := c.entries[sc.GameSessionID]; ok {
		en.scores[recordKey{sc.PlayerID, sc.Stage}] = sc
	}
}

func (en *entry) snapshot() *Snapshot {
	snap := &Snapshot{
		Session: en.session,
		Players: make([]domain.Player, 0, len(en.players)),
	}
	snap.Session.EnabledStages = append([]int(nil), en.session.EnabledStages...)

	for _, p := range en.players {
		snap.Players = append(snap.Players, p)
	}
	sort.Slice(snap.Players, func(i, j int) bool {
		return snap.Players[i].JoinedAt.Before(snap.Players[j].JoinedAt)
	})

	stage := en.session.CurrentStage
	if stage == 0 {
		return snap
	}

	for k, pr := range en.progress {
		if k.stage == stage {
			snap.Progress = append(snap.Progress, pr)
		}
	}
	sort.Slice(snap.Progress, func(i, j int) bool {
		return snap.Progress[i].PlayerID < snap.Progress[j].PlayerID
	})

	for k, sc := range en.scores {
		if k.stage == stage {
			snap.Scores = append(snap.Scores, sc)
		}
	}
	sort.Slice(snap.Scores, func(i, j int) bool {
		return snap.Scores[i].PlayerID < snap.Scores[j].PlayerID
	})

	return snap
}
