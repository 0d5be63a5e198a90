package statestore

import (
	"context"

	"github.com/showfloor/cybergenesis/internal/domain"
)

// Store is the shared state service the whole show coordinates through.
//
// Stage scores and player progress upsert on the composite key
// (player_id, game_session_id, stage), so a replayed or duplicated write
// lands on the same row. Sessions and players update by id. No call spans
// more than one record; callers are expected to tolerate partially applied
// multi-record sequences by re-issuing idempotent writes.
type Store interface {
	CreateSession(ctx context.Context, s *domain.GameSession) error
	GetSession(ctx context.Context, id string) (*domain.GameSession, error)
	GetSessionByJoinCode(ctx context.Context, code string) (*domain.GameSession, error)
	UpdateSession(ctx context.Context, s *domain.GameSession) error

	CreatePlayer(ctx context.Context, p *domain.Player) error
	GetPlayer(ctx context.Context, id string) (*domain.Player, error)
	UpdatePlayer(ctx context.Context, p *domain.Player) error
	ListPlayers(ctx context.Context, sessionID string) ([]domain.Player, error)

	UpsertScore(ctx context.Context, sc *domain.StageScore) error
	ListScores(ctx context.Context, sessionID string, stage int) ([]domain.StageScore, error)
	DeleteScores(ctx context.Context, sessionID string) error

	UpsertProgress(ctx context.Context, pr *domain.PlayerProgress) error
	ListProgress(ctx context.Context, sessionID string, stage int) ([]domain.PlayerProgress, error)
	DeleteProgress(ctx context.Context, sessionID string) error
}
