package progress

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/showfloor/cybergenesis/internal/domain"
	"github.com/showfloor/cybergenesis/internal/errors"
	"github.com/showfloor/cybergenesis/internal/event"
	"github.com/showfloor/cybergenesis/internal/statestore"
)

type Config struct {
	Store    statestore.Store
	EventBus *event.Bus
}

// Service is the write path for the mini-games: live progress updates
// during a trial and the final score when a player finishes. Both writes
// are upserts on (player, session, stage), so replays land on the same
// row and the ranking engine only ever sees one record per player.
type Service struct {
	store statestore.Store
	eb    *event.Bus
}

func NewService(c Config) *Service {
	return &Service{
		store: c.Store,
		eb:    c.EventBus,
	}
}

type UpdateProgressRequest struct {
	PlayerID     string
	SessionID    string
	Stage        int
	Progress     int
	ElapsedTime  decimal.Decimal
	Status       domain.ProgressStatus
	CurrentScore decimal.Decimal
	Extra        *domain.StageExtra
}

// UpdateProgress overwrites the player's live status record for a stage.
func (s *Service) UpdateProgress(ctx context.Context, req UpdateProgressRequest) (*domain.PlayerProgress, error) {
	if err := validateStage(req.Stage); err != nil {
		return nil, err
	}
	switch req.Status {
	case domain.ProgressWaiting, domain.ProgressPlaying, domain.ProgressFinished:
	default:
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("invalid progress status: %q", req.Status))
	}
	if req.Progress < 0 || req.Progress > 100 {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("progress out of range: %d", req.Progress))
	}

	pr := &domain.PlayerProgress{
		PlayerID:      req.PlayerID,
		GameSessionID: req.SessionID,
		Stage:         req.Stage,
		Progress:      req.Progress,
		ElapsedTime:   req.ElapsedTime,
		Status:        req.Status,
		CurrentScore:  req.CurrentScore,
		Extra:         req.Extra,
		UpdatedAt:     time.Now(),
	}

	if err := s.store.UpsertProgress(ctx, pr); err != nil {
		return nil, err
	}

	s.eb.Publish(ctx, domain.EventProgressUpdated{Progress: *pr})
	return pr, nil
}

type SubmitScoreRequest struct {
	PlayerID  string
	SessionID string
	Stage     int
	Score     decimal.Decimal
	TimeTaken decimal.Decimal
}

// SubmitScore records the player's final outcome for a stage. A resubmit
// overwrites the previous record.
func (s *Service) SubmitScore(ctx context.Context, req SubmitScoreRequest) (*domain.StageScore, error) {
	if err := validateStage(req.Stage); err != nil {
		return nil, err
	}

	sc := &domain.StageScore{
		PlayerID:      req.PlayerID,
		GameSessionID: req.SessionID,
		Stage:         req.Stage,
		Score:         req.Score,
		TimeTaken:     req.TimeTaken,
		RecordedAt:    time.Now(),
	}

	if err := s.store.UpsertScore(ctx, sc); err != nil {
		return nil, err
	}

	s.eb.Publish(ctx, domain.EventScoreSubmitted{Score: *sc})
	return sc, nil
}

func (s *Service) ListProgress(ctx context.Context, sessionID string, stage int) ([]domain.PlayerProgress, error) {
	return s.store.ListProgress(ctx, sessionID, stage)
}

func (s *Service) ListScores(ctx context.Context, sessionID string, stage int) ([]domain.StageScore, error) {
	return s.store.ListScores(ctx, sessionID, stage)
}

func validateStage(stage int) error {
	if stage < 1 || stage > 3 {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("invalid stage number: %d", stage))
	}
	return nil
}
