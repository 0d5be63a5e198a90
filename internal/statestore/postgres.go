package statestore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/showfloor/cybergenesis/internal/domain"
	"github.com/showfloor/cybergenesis/internal/errors"
)

// Postgres is the production Store backed by a single pgx pool.
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS game_sessions (
		id UUID PRIMARY KEY,
		join_code TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL,
		current_stage INT NOT NULL DEFAULT 0,
		enabled_stages INT[] NOT NULL,
		is_ready BOOLEAN NOT NULL DEFAULT FALSE,
		starts_at TIMESTAMPTZ,
		create_time TIMESTAMPTZ NOT NULL,
		update_time TIMESTAMPTZ NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS players (
		id UUID PRIMARY KEY,
		game_session_id UUID NOT NULL REFERENCES game_sessions (id),
		name TEXT NOT NULL,
		photo_url TEXT NOT NULL DEFAULT '',
		avatar_color TEXT NOT NULL DEFAULT '',
		is_spectator BOOLEAN NOT NULL DEFAULT FALSE,
		is_eliminated BOOLEAN NOT NULL DEFAULT FALSE,
		is_kicked BOOLEAN NOT NULL DEFAULT FALSE,
		eliminated_at_stage INT,
		join_time TIMESTAMPTZ NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS stage_scores (
		player_id UUID NOT NULL,
		game_session_id UUID NOT NULL,
		stage INT NOT NULL,
		score NUMERIC NOT NULL,
		time_taken NUMERIC NOT NULL,
		record_time TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (player_id, game_session_id, stage)
	);`,
	`CREATE TABLE IF NOT EXISTS player_progress (
		player_id UUID NOT NULL,
		game_session_id UUID NOT NULL,
		stage INT NOT NULL,
		progress INT NOT NULL DEFAULT 0,
		elapsed_time NUMERIC NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		current_score NUMERIC NOT NULL DEFAULT 0,
		extra_data JSONB,
		update_time TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (player_id, game_session_id, stage)
	);`,
}

// EnsureSchema creates the four tables when they do not exist yet.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *Postgres) CreateSession(ctx context.Context, gs *domain.GameSession) error {
	const stmt = `
INSERT INTO game_sessions (id, join_code, status, current_stage, enabled_stages, is_ready, starts_at, create_time, update_time)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8);`

	_, err := s.db.Exec(ctx, stmt,
		gs.ID, gs.JoinCode, gs.Status, gs.CurrentStage, toInt32s(gs.EnabledStages), gs.IsReady, gs.StartsAt, gs.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *Postgres) GetSession(ctx context.Context, id string) (*domain.GameSession, error) {
	const stmt = `
SELECT id, join_code, status, current_stage, enabled_stages, is_ready, starts_at, create_time, update_time
FROM game_sessions WHERE id = $1;`

	return s.scanSession(s.db.QueryRow(ctx, stmt, id), id)
}

func (s *Postgres) GetSessionByJoinCode(ctx context.Context, code string) (*domain.GameSession, error) {
	const stmt = `
SELECT id, join_code, status, current_stage, enabled_stages, is_ready, starts_at, create_time, update_time
FROM game_sessions WHERE join_code = $1;`

	return s.scanSession(s.db.QueryRow(ctx, stmt, code), code)
}

func (s *Postgres) scanSession(row pgx.Row, key string) (*domain.GameSession, error) {
	var (
		gs     domain.GameSession
		stages []int32
	)
	err := row.Scan(&gs.ID, &gs.JoinCode, &gs.Status, &gs.CurrentStage, &stages, &gs.IsReady, &gs.StartsAt, &gs.CreatedAt, &gs.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("session not found: %s", key))
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}

	gs.EnabledStages = toInts(stages)
	return &gs, nil
}

func (s *Postgres) UpdateSession(ctx context.Context, gs *domain.GameSession) error {
	const stmt = `
UPDATE game_sessions
SET status = $2, current_stage = $3, enabled_stages = $4, is_ready = $5, starts_at = $6, update_time = $7
WHERE id = $1;`

	tag, err := s.db.Exec(ctx, stmt,
		gs.ID, gs.Status, gs.CurrentStage, toInt32s(gs.EnabledStages), gs.IsReady, gs.StartsAt, time.Now())
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.New(errors.CodeNotFound, errors.WithMessagef("session not found: %s", gs.ID))
	}
	return nil
}

func (s *Postgres) CreatePlayer(ctx context.Context, p *domain.Player) error {
	const stmt = `
INSERT INTO players (id, game_session_id, name, photo_url, avatar_color, is_spectator, is_eliminated, is_kicked, eliminated_at_stage, join_time)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);`

	_, err := s.db.Exec(ctx, stmt,
		p.ID, p.GameSessionID, p.Name, p.PhotoURL, p.AvatarColor, p.IsSpectator, p.IsEliminated, p.IsKicked, p.EliminatedAtStage, p.JoinedAt)
	if err != nil {
		return fmt.Errorf("insert player: %w", err)
	}
	return nil
}

func (s *Postgres) GetPlayer(ctx context.Context, id string) (*domain.Player, error) {
	const stmt = `
SELECT id, game_session_id, name, photo_url, avatar_color, is_spectator, is_eliminated, is_kicked, eliminated_at_stage, join_time
FROM players WHERE id = $1;`

	var p domain.Player
	err := s.db.QueryRow(ctx, stmt, id).Scan(
		&p.ID, &p.GameSessionID, &p.Name, &p.PhotoURL, &p.AvatarColor, &p.IsSpectator, &p.IsEliminated, &p.IsKicked, &p.EliminatedAtStage, &p.JoinedAt)
	if err == pgx.ErrNoRows {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("player not found: %s", id))
	}
	if err != nil {
		return nil, fmt.Errorf("scan player: %w", err)
	}
	return &p, nil
}

func (s *Postgres) UpdatePlayer(ctx context.Context, p *domain.Player) error {
	const stmt = `
UPDATE players
SET name = $2, photo_url = $3, avatar_color = $4, is_spectator = $5, is_eliminated = $6, is_kicked = $7, eliminated_at_stage = $8
WHERE id = $1;`

	tag, err := s.db.Exec(ctx, stmt,
		p.ID, p.Name, p.PhotoURL, p.AvatarColor, p.IsSpectator, p.IsEliminated, p.IsKicked, p.EliminatedAtStage)
	if err != nil {
		return fmt.Errorf("update player: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.New(errors.CodeNotFound, errors.WithMessagef("player not found: %s", p.ID))
	}
	return nil
}

func (s *Postgres) ListPlayers(ctx context.Context, sessionID string) ([]domain.Player, error) {
	const stmt = `
SELECT id, game_session_id, name, photo_url, avatar_color, is_spectator, is_eliminated, is_kicked, eliminated_at_stage, join_time
FROM players WHERE game_session_id = $1 ORDER BY join_time;`

	rows, err := s.db.Query(ctx, stmt, sessionID)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Player, error) {
		var p domain.Player
		err := r.Scan(&p.ID, &p.GameSessionID, &p.Name, &p.PhotoURL, &p.AvatarColor, &p.IsSpectator, &p.IsEliminated, &p.IsKicked, &p.EliminatedAtStage, &p.JoinedAt)
		return p, err
	})
}

func (s *Postgres) UpsertScore(ctx context.Context, sc *domain.StageScore) error {
	const stmt = `
INSERT INTO stage_scores (player_id, game_session_id, stage, score, time_taken, record_time)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (player_id, game_session_id, stage)
DO UPDATE SET score = EXCLUDED.score, time_taken = EXCLUDED.time_taken, record_time = EXCLUDED.record_time;`

	_, err := s.db.Exec(ctx, stmt,
		sc.PlayerID, sc.GameSessionID, sc.Stage, sc.Score, sc.TimeTaken, sc.RecordedAt)
	if err != nil {
		return fmt.Errorf("upsert score: %w", err)
	}
	return nil
}

func (s *Postgres) ListScores(ctx context.Context, sessionID string, stage int) ([]domain.StageScore, error) {
	const stmt = `
SELECT player_id, game_session_id, stage, score, time_taken, record_time
FROM stage_scores WHERE game_session_id = $1 AND stage = $2;`

	rows, err := s.db.Query(ctx, stmt, sessionID, stage)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.StageScore, error) {
		var sc domain.StageScore
		err := r.Scan(&sc.PlayerID, &sc.GameSessionID, &sc.Stage, &sc.Score, &sc.TimeTaken, &sc.RecordedAt)
		return sc, err
	})
}

func (s *Postgres) DeleteScores(ctx context.Context, sessionID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM stage_scores WHERE game_session_id = $1;`, sessionID)
	if err != nil {
		return fmt.Errorf("delete scores: %w", err)
	}
	return nil
}

func (s *Postgres) UpsertProgress(ctx context.Context, pr *domain.PlayerProgress) error {
	const stmt = `
INSERT INTO player_progress (player_id, game_session_id, stage, progress, elapsed_time, status, current_score, extra_data, update_time)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (player_id, game_session_id, stage)
DO UPDATE SET progress = EXCLUDED.progress, elapsed_time = EXCLUDED.elapsed_time, status = EXCLUDED.status,
	current_score = EXCLUDED.current_score, extra_data = EXCLUDED.extra_data, update_time = EXCLUDED.update_time;`

	var extra []byte
	if pr.Extra != nil {
		b, err := json.Marshal(pr.Extra)
		if err != nil {
			return fmt.Errorf("marshal extra data: %w", err)
		}
		extra = b
	}

	_, err := s.db.Exec(ctx, stmt,
		pr.PlayerID, pr.GameSessionID, pr.Stage, pr.Progress, pr.ElapsedTime, pr.Status, pr.CurrentScore, extra, pr.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert progress: %w", err)
	}
	return nil
}

func (s *Postgres) ListProgress(ctx context.Context, sessionID string, stage int) ([]domain.PlayerProgress, error) {
	const stmt = `
SELECT player_id, game_session_id, stage, progress, elapsed_time, status, current_score, extra_data, update_time
FROM player_progress WHERE game_session_id = $1 AND stage = $2;`

	rows, err := s.db.Query(ctx, stmt, sessionID, stage)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.PlayerProgress, error) {
		var (
			pr    domain.PlayerProgress
			extra []byte
		)
		err := r.Scan(&pr.PlayerID, &pr.GameSessionID, &pr.Stage, &pr.Progress, &pr.ElapsedTime, &pr.Status, &pr.CurrentScore, &extra, &pr.UpdatedAt)
		if err != nil {
			return domain.PlayerProgress{}, err
		}
		if len(extra) > 0 {
			pr.Extra = new(domain.StageExtra)
			if err := json.Unmarshal(extra, pr.Extra); err != nil {
				return domain.PlayerProgress{}, fmt.Errorf("unmarshal extra data: %w", err)
			}
		}
		return pr, nil
	})
}

func (s *Postgres) DeleteProgress(ctx context.Context, sessionID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM player_progress WHERE game_session_id = $1;`, sessionID)
	if err != nil {
		return fmt.Errorf("delete progress: %w", err)
	}
	return nil
}

func toInt32s(in []int) []int32 {
	out := make([]int32, len(in))
	for i, v := range in {
		out[i] = int32(v)
	}
	return out
}

func toInts(in []int32) []int {
	out := make([]int, len(in))
	for i, v := range in {
		out[i] = int(v)
	}
	return out
}
