package standings

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/showfloor/cybergenesis/internal/domain"
	"github.com/showfloor/cybergenesis/internal/errors"
	"github.com/showfloor/cybergenesis/internal/event"
)

const (
	publishInterval = 200 * time.Millisecond
)

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string
}

// Service keeps the live finish board shown on the main display while a
// trial runs: a Redis sorted set per (session, stage), fed from score
// submissions. It is approximate by design; the authoritative end-of-stage
// order comes from the ranking engine.
type Service struct {
	eb     *event.Bus
	redis  redis.UniversalClient
	prefix string
}

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		redis:  c.Redis,
		prefix: c.Prefix,
	}

	s.eb.Subscribe(domain.EventNameScoreSubmitted, func(ctx context.Context, e event.Event) error {
		return s.UpdateStandings(ctx, e.(domain.EventScoreSubmitted))
	})
	s.eb.Subscribe(domain.EventNameSessionReset, func(ctx context.Context, e event.Event) error {
		return s.ClearStandings(ctx, e.(domain.EventSessionReset).SessionID)
	})

	return s
}

type GetStandingsRequest struct {
	SessionID string
	Stage     int
}

// GetStandings returns the board best-first: ascending score for the timed
// stages 1 and 3, descending for the points stage 2.
func (s *Service) GetStandings(ctx context.Context, req GetStandingsRequest) (*domain.Standings, error) {
	key := s.boardKey(req.SessionID, req.Stage)

	var (
		res []redis.Z
		err error
	)
	if req.Stage == 2 {
		res, err = s.redis.ZRevRangeWithScores(ctx, key, 0, -1).Result()
	} else {
		res, err = s.redis.ZRangeWithScores(ctx, key, 0, -1).Result()
	}
	if err != nil {
		return nil, fmt.Errorf("get standings: %w", err)
	}

	if len(res) == 0 {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("standings not found: session=%s stage=%d", req.SessionID, req.Stage))
	}

	entries := make([]domain.StandingsEntry, 0, len(res))
	for _, z := range res {
		entries = append(entries, domain.StandingsEntry{
			PlayerID: z.Member.(string),
			Value:    z.Score,
		})
	}

	return &domain.Standings{
		SessionID: req.SessionID,
		Stage:     req.Stage,
		Entries:   entries,
	}, nil
}

// UpdateStandings overwrites the player's entry on the board.
func (s *Service) UpdateStandings(ctx context.Context, e domain.EventScoreSubmitted) error {
	sc := e.Score

	if err := s.redis.ZAdd(ctx, s.boardKey(sc.GameSessionID, sc.Stage), redis.Z{
		Score:  sc.Score.InexactFloat64(),
		Member: sc.PlayerID,
	}).Err(); err != nil {
		return fmt.Errorf("update standings: %w", err)
	}

	return s.schedulePublishStandings(ctx, sc)
}

// ClearStandings drops every board of a session. Used on session reset.
func (s *Service) ClearStandings(ctx context.Context, sessionID string) error {
	for stage := 1; stage <= 3; stage++ {
		if err := s.redis.Del(ctx, s.boardKey(sessionID, stage), s.timeKey(sessionID, stage)).Err(); err != nil {
			return fmt.Errorf("clear standings: %w", err)
		}
	}
	return nil
}

// schedulePublishStandings publishes board changes at most once per
// interval. Score submissions cluster at the end of a trial, so batching
// keeps the event volume down.
func (s *Service) schedulePublishStandings(ctx context.Context, sc domain.StageScore) error {
	ok, err := s.redis.SetNX(ctx, s.timeKey(sc.GameSessionID, sc.Stage), sc.RecordedAt.UnixMilli(), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if !ok {
		return nil
	}

	return s.publishStandings(ctx, sc)
}

func (s *Service) publishStandings(ctx context.Context, sc domain.StageScore) error {
	st, err := s.GetStandings(ctx, GetStandingsRequest{
		SessionID: sc.GameSessionID,
		Stage:     sc.Stage,
	})
	if err != nil {
		return fmt.Errorf("get standings failed: session=%s stage=%d: %w", sc.GameSessionID, sc.Stage, err)
	}

	s.eb.Publish(ctx, domain.EventStandingsUpdated{
		Standings: *st,
	})

	return s.redis.Set(ctx, s.timeKey(sc.GameSessionID, sc.Stage), sc.RecordedAt.UnixMilli(), publishInterval).Err()
}

func (s *Service) boardKey(session string, stage int) string {
	return fmt.Sprintf("%s:%s:stage%d:board", s.prefix, session, stage)
}

func (s *Service) timeKey(session string, stage int) string {
	return fmt.Sprintf("%s:%s:stage%d:time", s.prefix, session, stage)
}
