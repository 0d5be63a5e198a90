package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/showfloor/cybergenesis/internal/api"
	"github.com/showfloor/cybergenesis/internal/event"
	"github.com/showfloor/cybergenesis/internal/progress"
	"github.com/showfloor/cybergenesis/internal/session"
	"github.com/showfloor/cybergenesis/internal/snapshot"
	"github.com/showfloor/cybergenesis/internal/stage"
	"github.com/showfloor/cybergenesis/internal/standings"
	"github.com/showfloor/cybergenesis/internal/statestore"
	"github.com/showfloor/cybergenesis/internal/telemetry"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	Redis struct {
		Standings struct {
			Addrs  []string
			Pass   string
			Prefix string
		}

		Pubsub struct {
			Addrs  []string
			Pass   string
			Prefix string
		}
	}

	Postgres struct {
		Addr string
		User string
		Pass string
		Name string
	}

	Game struct {
		CountdownSeconds int
		JoinBaseURL      string
	}
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			standings redis.UniversalClient
			pubsub    redis.UniversalClient
		}

		postgres *pgxpool.Pool
	}

	service struct {
		session    *session.Service
		progress   *progress.Service
		standings  *standings.Service
		controller *stage.Controller
		cache      *snapshot.Cache
	}

	metrics *telemetry.Metrics

	http *http.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()
	s.metrics = telemetry.NewMetrics(prometheus.DefaultRegisterer)

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initPostgres(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	connect := func(addrs []string, pass string) (redis.UniversalClient, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    addrs,
			Password: pass,
		})

		if err := telemetry.MonitorRedis(r); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.standings, err = connect(s.c.Redis.Standings.Addrs, s.c.Redis.Standings.Pass)
	if err != nil {
		return fmt.Errorf("standings: %w", err)
	}

	s.infra.redis.pubsub, err = connect(s.c.Redis.Pubsub.Addrs, s.c.Redis.Pubsub.Pass)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	return nil
}

func (s *Server) initPostgres() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s",
		s.c.Postgres.User, s.c.Postgres.Pass, s.c.Postgres.Addr, s.c.Postgres.Name))
	if err != nil {
		return err
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return err
	}

	if err := db.Ping(ctx); err != nil {
		return err
	}

	s.infra.postgres = db
	return nil
}

func (s *Server) initService() {
	store := statestore.NewPostgres(s.infra.postgres)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.EnsureSchema(ctx); err != nil {
		slog.ErrorContext(ctx, "server: ensure schema failed", "error", err)
	}

	s.service.session = session.NewService(session.Config{
		Store:    store,
		EventBus: s.eb,
	})

	s.service.progress = progress.NewService(progress.Config{
		Store:    store,
		EventBus: s.eb,
	})

	s.service.standings = standings.NewService(standings.Config{
		EventBus: s.eb,
		Redis:    s.infra.redis.standings,
		Prefix:   s.c.Redis.Standings.Prefix,
	})

	s.service.controller = stage.NewController(stage.Config{
		Store:     store,
		EventBus:  s.eb,
		Metrics:   s.metrics,
		Countdown: time.Duration(s.c.Game.CountdownSeconds) * time.Second,
	})

	s.service.cache = snapshot.NewCache(store)
	s.service.cache.Watch(s.eb)
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	api.New(api.Config{
		Router:       e,
		EventBus:     s.eb,
		Session:      s.service.session,
		Progress:     s.service.progress,
		Standings:    s.service.standings,
		Controller:   s.service.controller,
		Cache:        s.service.cache,
		Redis:        s.infra.redis.pubsub,
		PubsubPrefix: s.c.Redis.Pubsub.Prefix,
		JoinBaseURL:  s.c.Game.JoinBaseURL,
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.service.controller.Stop()
	s.eb.Stop()

	slog.InfoContext(ctx, "server: shutdown completed")
}
