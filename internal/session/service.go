package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/showfloor/cybergenesis/internal/domain"
	"github.com/showfloor/cybergenesis/internal/errors"
	"github.com/showfloor/cybergenesis/internal/event"
	"github.com/showfloor/cybergenesis/internal/statestore"
)

// Join codes are short enough to type from a phone and avoid ambiguous
// characters.
const (
	joinCodeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"
	joinCodeLength   = 6
)

var defaultStages = []int{1, 2, 3}

type Config struct {
	Store    statestore.Store
	EventBus *event.Bus
}

// Service owns session and roster lifecycle: creation, joins, kicks and
// the host-ready flag. Stage transitions belong to the stage controller.
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

type CreateSessionRequest struct {
	// EnabledStages restricts the session to a subset of stages, in play
	// order. Empty means the full show: stages 1, 2 and 3.
	EnabledStages []int
}

// CreateSession creates a new lobby session with a fresh join code.
func (s *Service) CreateSession(ctx context.Context, req CreateSessionRequest) (*domain.GameSession, error) {
	stages := req.EnabledStages
	if len(stages) == 0 {
		stages = append([]int(nil), defaultStages...)
	}
	for _, st := range stages {
		if st < 1 || st > 3 {
			return nil, errors.New(errors.CodeInvalidArgument,
				errors.WithMessagef("invalid stage number: %d", st))
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate session ID: %w", err)
	}

	code, err := gonanoid.Generate(joinCodeAlphabet, joinCodeLength)
	if err != nil {
		return nil, fmt.Errorf("generate join code: %w", err)
	}

	gs := &domain.GameSession{
		ID:            id.String(),
		JoinCode:      code,
		Status:        domain.StatusLobby,
		CurrentStage:  0,
		EnabledStages: stages,
		CreatedAt:     time.Now(),
	}
	gs.UpdatedAt = gs.CreatedAt

	if err := s.store.CreateSession(ctx, gs); err != nil {
		return nil, err
	}

	return gs, nil
}

func (s *Service) GetSession(ctx context.Context, id string) (*domain.GameSession, error) {
	return s.store.GetSession(ctx, id)
}

func (s *Service) GetSessionByJoinCode(ctx context.Context, code string) (*domain.GameSession, error) {
	return s.store.GetSessionByJoinCode(ctx, code)
}

type JoinRequest struct {
	SessionID   string
	Name        string
	PhotoURL    string
	AvatarColor string
	Spectator   bool
}

// Join adds a player (or spectator) to the lobby. Players can only join
// while the session is in the lobby; spectators can join at any time.
func (s *Service) Join(ctx context.Context, req JoinRequest) (*domain.Player, error) {
	if req.Name == "" {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("name is required"))
	}

	gs, err := s.store.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if !req.Spectator && gs.Status != domain.StatusLobby {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("session %s already started", gs.ID))
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate player ID: %w", err)
	}

	p := &domain.Player{
		ID:            id.String(),
		GameSessionID: gs.ID,
		Name:          req.Name,
		PhotoURL:      req.PhotoURL,
		AvatarColor:   req.AvatarColor,
		IsSpectator:   req.Spectator,
		JoinedAt:      time.Now(),
	}

	if err := s.store.CreatePlayer(ctx, p); err != nil {
		return nil, err
	}

	s.eb.Publish(ctx, domain.EventPlayerJoined{Player: *p})
	return p, nil
}

// Kick removes a player from all active views. The row stays for history.
// Kicking an already kicked player is a no-op.
func (s *Service) Kick(ctx context.Context, playerID string) (*domain.Player, error) {
	p, err := s.store.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}

	if !p.IsKicked {
		p.IsKicked = true
		if err := s.store.UpdatePlayer(ctx, p); err != nil {
			return nil, err
		}
		s.eb.Publish(ctx, domain.EventPlayerUpdated{Player: *p})
	}

	return p, nil
}

// SetReady records that the host has the upcoming stage's rules up on the
// main display.
func (s *Service) SetReady(ctx context.Context, sessionID string, ready bool) (*domain.GameSession, error) {
	gs, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if gs.IsReady != ready {
		gs.IsReady = ready
		if err := s.store.UpdateSession(ctx, gs); err != nil {
			return nil, err
		}
		s.eb.Publish(ctx, domain.EventSessionUpdated{Session: *gs})
	}

	return gs, nil
}

func (s *Service) ListPlayers(ctx context.Context, sessionID string) ([]domain.Player, error) {
	return s.store.ListPlayers(ctx, sessionID)
}
