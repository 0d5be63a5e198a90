// Package stage drives the ceremonial flow of a session: lobby, trial,
// standings, elimination, next stage or champion. One controller serves
// all sessions; per-session state lives in the shared store, so every
// operation is a read-decide-write sequence that stays safe under
// duplicated events and concurrent host actions.
package stage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/showfloor/cybergenesis/internal/domain"
	"github.com/showfloor/cybergenesis/internal/elimination"
	"github.com/showfloor/cybergenesis/internal/errors"
	"github.com/showfloor/cybergenesis/internal/event"
	"github.com/showfloor/cybergenesis/internal/ranking"
	"github.com/showfloor/cybergenesis/internal/statestore"
	"github.com/showfloor/cybergenesis/internal/telemetry"
)

const defaultCountdown = 5 * time.Second

type Config struct {
	Store         statestore.Store
	EventBus      *event.Bus
	Metrics       *telemetry.Metrics
	Countdown     time.Duration
	Now           func() time.Time
	NewTickerFunc func(d time.Duration) Ticker
}

type Controller struct {
	store     statestore.Store
	eb        *event.Bus
	metrics   *telemetry.Metrics
	countdown time.Duration
	now       func() time.Time
	newTicker func(d time.Duration) Ticker

	mu         sync.Mutex
	countdowns map[string]*Countdown
}

func NewController(c Config) *Controller {
	ctrl := &Controller{
		store:      c.Store,
		eb:         c.EventBus,
		metrics:    c.Metrics,
		countdown:  c.Countdown,
		now:        c.Now,
		newTicker:  c.NewTickerFunc,
		countdowns: make(map[string]*Countdown),
	}

	if ctrl.countdown <= 0 {
		ctrl.countdown = defaultCountdown
	}
	if ctrl.now == nil {
		ctrl.now = time.Now
	}
	if ctrl.newTicker == nil {
		ctrl.newTicker = NewTicker
	}

	// Completion is re-checked on every progress change rather than polled.
	ctrl.eb.Subscribe(domain.EventNameProgressUpdated, func(ctx context.Context, e event.Event) error {
		return ctrl.onProgressUpdated(ctx, e.(domain.EventProgressUpdated))
	})

	return ctrl
}

type BeginStageRequest struct {
	SessionID string
	// Stage selects which enabled stage to begin. Zero means the first
	// entry of the session's enabled stages.
	Stage int
}

// BeginStage moves a lobby session into its first trial: sets the stage
// status, schedules the activation countdown and seeds waiting progress
// rows for every active player.
func (c *Controller) BeginStage(ctx context.Context, req BeginStageRequest) (*domain.GameSession, error) {
	gs, err := c.store.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	if gs.Status != domain.StatusLobby {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("cannot begin stage: session %s is %s", gs.ID, gs.Status))
	}
	if len(gs.EnabledStages) == 0 {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("session %s has no enabled stages", gs.ID))
	}

	stage := req.Stage
	if stage == 0 {
		stage = gs.EnabledStages[0]
	}
	if !gs.StageEnabled(stage) {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("stage %d is not enabled for session %s", stage, gs.ID))
	}

	startsAt := c.now().Add(c.countdown)
	gs.Status = domain.StageStatus(stage)
	gs.CurrentStage = stage
	gs.IsReady = false
	gs.StartsAt = &startsAt

	if err := c.store.UpdateSession(ctx, gs); err != nil {
		c.metrics.WriteFailed("game_sessions")
		return nil, fmt.Errorf("begin stage: %w", err)
	}
	c.metrics.Transition(string(gs.Status))

	players, err := c.store.ListPlayers(ctx, gs.ID)
	if err != nil {
		return nil, fmt.Errorf("begin stage: list players: %w", err)
	}
	c.seedProgress(ctx, gs, domain.ActivePlayers(players))

	c.eb.Publish(ctx, domain.EventSessionUpdated{Session: *gs})
	c.startCountdown(gs.ID, stage, startsAt)

	return gs, nil
}

type CompleteStageRequest struct {
	SessionID string
	// Force completes the stage even when players are still unfinished;
	// they rank last and may land inside the eliminated tail.
	Force bool
}

// CompleteStage runs the end-of-stage ceremony: confirms (or forces)
// completion, ranks, persists eliminations, then advances the session to
// the next enabled stage or to completed.
func (c *Controller) CompleteStage(ctx context.Context, req CompleteStageRequest) (*domain.Ranking, error) {
	gs, err := c.store.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if err := inStage(gs); err != nil {
		return nil, err
	}

	players, scores, progress, err := c.loadStage(ctx, gs)
	if err != nil {
		return nil, err
	}

	active := domain.ActivePlayers(players)
	if !req.Force && !allFinished(active, progress) {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("stage %d not finished by all players in session %s", gs.CurrentStage, gs.ID))
	}

	ranked := ranking.Rank(ranking.NewSnapshot(gs.CurrentStage, active, scores, progress))
	advancing, eliminated := elimination.Split(gs.CurrentStage, ranked)

	if err := elimination.Apply(ctx, c.store, gs.CurrentStage, eliminated); err != nil {
		c.metrics.WriteFailed("players")
		return nil, fmt.Errorf("complete stage: %w", err)
	}

	r := &domain.Ranking{
		SessionID:  gs.ID,
		Stage:      gs.CurrentStage,
		Order:      ranked,
		Advancing:  advancing,
		Eliminated: eliminated,
	}
	c.eb.Publish(ctx, domain.EventStageRanked{Ranking: *r})

	if err := c.advance(ctx, gs); err != nil {
		return nil, err
	}

	return r, nil
}

// SkipStage advances past the current stage with no ranking and no
// elimination. Host escape hatch only.
func (c *Controller) SkipStage(ctx context.Context, sessionID string) (*domain.GameSession, error) {
	gs, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := inStage(gs); err != nil {
		return nil, err
	}

	c.cancelCountdown(gs.ID)
	if err := c.advance(ctx, gs); err != nil {
		return nil, err
	}
	return gs, nil
}

// advance moves the session to the next enabled stage, or to completed
// when the current stage was the last.
func (c *Controller) advance(ctx context.Context, gs *domain.GameSession) error {
	if gs.LastStage(gs.CurrentStage) {
		c.cancelCountdown(gs.ID)

		gs.Status = domain.StatusCompleted
		gs.StartsAt = nil
		gs.IsReady = false

		if err := c.store.UpdateSession(ctx, gs); err != nil {
			c.metrics.WriteFailed("game_sessions")
			return fmt.Errorf("complete session: %w", err)
		}
		c.metrics.Transition(string(domain.StatusCompleted))
		c.eb.Publish(ctx, domain.EventSessionUpdated{Session: *gs})
		return nil
	}

	next := gs.NextStage(gs.CurrentStage)
	startsAt := c.now().Add(c.countdown)
	gs.Status = domain.StageStatus(next)
	gs.CurrentStage = next
	gs.IsReady = false
	gs.StartsAt = &startsAt

	if err := c.store.UpdateSession(ctx, gs); err != nil {
		c.metrics.WriteFailed("game_sessions")
		return fmt.Errorf("advance to stage %d: %w", next, err)
	}
	c.metrics.Transition(string(gs.Status))

	players, err := c.store.ListPlayers(ctx, gs.ID)
	if err != nil {
		return fmt.Errorf("advance: list players: %w", err)
	}
	c.seedProgress(ctx, gs, domain.ActivePlayers(players))

	c.eb.Publish(ctx, domain.EventSessionUpdated{Session: *gs})
	c.startCountdown(gs.ID, next, startsAt)
	return nil
}

// Reset returns the session to its initial lobby state: score and progress
// rows removed, elimination flags cleared, countdowns cancelled. Running
// it twice leaves the same state as running it once.
func (c *Controller) Reset(ctx context.Context, sessionID string) (*domain.GameSession, error) {
	gs, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	c.cancelCountdown(gs.ID)

	if err := c.store.DeleteScores(ctx, gs.ID); err != nil {
		c.metrics.WriteFailed("stage_scores")
		return nil, fmt.Errorf("reset: %w", err)
	}
	if err := c.store.DeleteProgress(ctx, gs.ID); err != nil {
		c.metrics.WriteFailed("player_progress")
		return nil, fmt.Errorf("reset: %w", err)
	}

	players, err := c.store.ListPlayers(ctx, gs.ID)
	if err != nil {
		return nil, fmt.Errorf("reset: list players: %w", err)
	}
	for _, p := range players {
		p := p
		if !p.IsEliminated && p.EliminatedAtStage == nil {
			continue
		}
		p.IsEliminated = false
		p.EliminatedAtStage = nil
		if err := c.store.UpdatePlayer(ctx, &p); err != nil {
			c.metrics.WriteFailed("players")
			return nil, fmt.Errorf("reset player %s: %w", p.ID, err)
		}
		c.eb.Publish(ctx, domain.EventPlayerUpdated{Player: p})
	}

	gs.Status = domain.StatusLobby
	gs.CurrentStage = 0
	gs.IsReady = false
	gs.StartsAt = nil

	if err := c.store.UpdateSession(ctx, gs); err != nil {
		c.metrics.WriteFailed("game_sessions")
		return nil, fmt.Errorf("reset session: %w", err)
	}
	c.metrics.Transition(string(domain.StatusLobby))

	c.eb.Publish(ctx, domain.EventSessionReset{SessionID: gs.ID})
	c.eb.Publish(ctx, domain.EventSessionUpdated{Session: *gs})
	return gs, nil
}

// AllFinished reports whether every active player's progress for the
// current stage is finished. Safe to call at any time; a player without a
// progress row counts as unfinished.
func (c *Controller) AllFinished(ctx context.Context, sessionID string) (bool, error) {
	gs, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if err := inStage(gs); err != nil {
		return false, err
	}

	players, _, progress, err := c.loadStage(ctx, gs)
	if err != nil {
		return false, err
	}
	return allFinished(domain.ActivePlayers(players), progress), nil
}

func (c *Controller) onProgressUpdated(ctx context.Context, e domain.EventProgressUpdated) error {
	if e.Progress.Status != domain.ProgressFinished {
		return nil
	}

	gs, err := c.store.GetSession(ctx, e.Progress.GameSessionID)
	if err != nil {
		return err
	}
	if gs.CurrentStage != e.Progress.Stage || inStage(gs) != nil {
		// Stale or duplicated event from an earlier stage.
		return nil
	}

	players, _, progress, err := c.loadStage(ctx, gs)
	if err != nil {
		return err
	}

	if allFinished(domain.ActivePlayers(players), progress) {
		c.eb.Publish(ctx, domain.EventStageAllFinished{SessionID: gs.ID, Stage: gs.CurrentStage})
	}
	return nil
}

func (c *Controller) loadStage(ctx context.Context, gs *domain.GameSession) ([]domain.Player, []domain.StageScore, []domain.PlayerProgress, error) {
	players, err := c.store.ListPlayers(ctx, gs.ID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("list players: %w", err)
	}
	scores, err := c.store.ListScores(ctx, gs.ID, gs.CurrentStage)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("list scores: %w", err)
	}
	progress, err := c.store.ListProgress(ctx, gs.ID, gs.CurrentStage)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("list progress: %w", err)
	}
	return players, scores, progress, nil
}

// seedProgress creates waiting progress rows so displays can show the full
// roster before the first update arrives. Failures are logged and skipped:
// the row will be created by the player's first own write.
func (c *Controller) seedProgress(ctx context.Context, gs *domain.GameSession, players []domain.Player) {
	for _, p := range players {
		pr := &domain.PlayerProgress{
			PlayerID:      p.ID,
			GameSessionID: gs.ID,
			Stage:         gs.CurrentStage,
			Status:        domain.ProgressWaiting,
			UpdatedAt:     c.now(),
		}
		if err := c.store.UpsertProgress(ctx, pr); err != nil {
			c.metrics.WriteFailed("player_progress")
			slog.ErrorContext(ctx, "stage: seed progress failed",
				"session", gs.ID, "player", p.ID, "error", err)
		}
	}
}

func (c *Controller) startCountdown(sessionID string, stage int, target time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cd, ok := c.countdowns[sessionID]; ok {
		cd.Cancel()
	}

	c.countdowns[sessionID] = startCountdown(target, c.now, c.newTicker, func(remaining int) {
		c.eb.Publish(context.Background(), domain.EventCountdownTick{
			SessionID: sessionID,
			Stage:     stage,
			Remaining: remaining,
		})
	})
}

func (c *Controller) cancelCountdown(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cd, ok := c.countdowns[sessionID]; ok {
		cd.Cancel()
		delete(c.countdowns, sessionID)
	}
}

// Stop cancels every running countdown. Called on shutdown.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, cd := range c.countdowns {
		cd.Cancel()
		delete(c.countdowns, id)
	}
}

func inStage(gs *domain.GameSession) error {
	if gs.CurrentStage == 0 || gs.Status != domain.StageStatus(gs.CurrentStage) {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("session %s is not in an active stage: %s", gs.ID, gs.Status))
	}
	return nil
}

func allFinished(active []domain.Player, progress []domain.PlayerProgress) bool {
	byPlayer := make(map[string]domain.PlayerProgress, len(progress))
	for _, pr := range progress {
		byPlayer[pr.PlayerID] = pr
	}

	for _, p := range active {
		pr, ok := byPlayer[p.ID]
		if !ok || pr.Status != domain.ProgressFinished {
			return false
		}
	}
	return true
}
