package session_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/showfloor/cybergenesis/internal/domain"
	"github.com/showfloor/cybergenesis/internal/errors"
	"github.com/showfloor/cybergenesis/internal/event"
	"github.com/showfloor/cybergenesis/internal/session"
	"github.com/showfloor/cybergenesis/internal/statestore"
)

func TestCreateSession(t *testing.T) {
	type (
		inputs struct {
			req session.CreateSessionRequest
		}

		outputs struct {
			session *domain.GameSession
			err     error
		}
	)

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, out outputs)
	}{
		"defaults to the full show": {
			arrange: func() inputs {
				return inputs{req: session.CreateSessionRequest{}}
			},

			assert: func(t *testing.T, out outputs) {
				require.NoError(t, out.err)
				require.Equal(t, domain.StatusLobby, out.session.Status)
				require.Equal(t, 0, out.session.CurrentStage)
				require.Equal(t, []int{1, 2, 3}, out.session.EnabledStages)
				require.NotEmpty(t, out.session.ID)
				require.Len(t, out.session.JoinCode, 6)
			},
		},

		"keeps an explicit stage subset": {
			arrange: func() inputs {
				return inputs{req: session.CreateSessionRequest{EnabledStages: []int{2, 3}}}
			},

			assert: func(t *testing.T, out outputs) {
				require.NoError(t, out.err)
				require.Equal(t, []int{2, 3}, out.session.EnabledStages)
			},
		},

		"rejects unknown stage numbers": {
			arrange: func() inputs {
				return inputs{req: session.CreateSessionRequest{EnabledStages: []int{1, 4}}}
			},

			assert: func(t *testing.T, out outputs) {
				require.Error(t, out.err)
				require.Equal(t, errors.CodeInvalidArgument, errors.Convert(out.err).Code)
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			s := session.NewService(session.Config{
				Store:    statestore.NewMemory(),
				EventBus: event.NewBus(),
			})

			in := tt.arrange()
			gs, err := s.CreateSession(context.Background(), in.req)
			tt.assert(t, outputs{session: gs, err: err})
		})
	}
}

func TestCreateSession_JoinCodeLookup(t *testing.T) {
	ctx := context.Background()
	s := session.NewService(session.Config{
		Store:    statestore.NewMemory(),
		EventBus: event.NewBus(),
	})

	gs, err := s.CreateSession(ctx, session.CreateSessionRequest{})
	require.NoError(t, err)

	got, err := s.GetSessionByJoinCode(ctx, gs.JoinCode)
	require.NoError(t, err)
	require.Equal(t, gs.ID, got.ID)

	_, err = s.GetSessionByJoinCode(ctx, "NOSUCH")
	require.Equal(t, errors.CodeNotFound, errors.Convert(err).Code)
}

func TestJoin(t *testing.T) {
	ctx := context.Background()
	store := statestore.NewMemory()
	s := session.NewService(session.Config{Store: store, EventBus: event.NewBus()})

	gs, err := s.CreateSession(ctx, session.CreateSessionRequest{})
	require.NoError(t, err)

	p, err := s.Join(ctx, session.JoinRequest{
		SessionID:   gs.ID,
		Name:        "neo",
		AvatarColor: "#00ff41",
	})
	require.NoError(t, err)
	require.Equal(t, gs.ID, p.GameSessionID)
	require.False(t, p.IsSpectator)
	require.NotEmpty(t, p.ID)

	_, err = s.Join(ctx, session.JoinRequest{SessionID: gs.ID})
	require.Equal(t, errors.CodeInvalidArgument, errors.Convert(err).Code, "name is required")
}

func TestJoin_AfterLobbyClosed(t *testing.T) {
	ctx := context.Background()
	store := statestore.NewMemory()
	s := session.NewService(session.Config{Store: store, EventBus: event.NewBus()})

	gs, err := s.CreateSession(ctx, session.CreateSessionRequest{})
	require.NoError(t, err)

	gs.Status = domain.StatusStage1
	gs.CurrentStage = 1
	require.NoError(t, store.UpdateSession(ctx, gs))

	_, err = s.Join(ctx, session.JoinRequest{SessionID: gs.ID, Name: "late"})
	require.Equal(t, errors.CodeFailedPrecondition, errors.Convert(err).Code,
		"players cannot join a started session")

	watcher, err := s.Join(ctx, session.JoinRequest{SessionID: gs.ID, Name: "watcher", Spectator: true})
	require.NoError(t, err, "spectators join at any time")
	require.True(t, watcher.IsSpectator)
}

func TestKick_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := session.NewService(session.Config{
		Store:    statestore.NewMemory(),
		EventBus: event.NewBus(),
	})

	gs, err := s.CreateSession(ctx, session.CreateSessionRequest{})
	require.NoError(t, err)

	p, err := s.Join(ctx, session.JoinRequest{SessionID: gs.ID, Name: "troll"})
	require.NoError(t, err)

	kicked, err := s.Kick(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, kicked.IsKicked)

	again, err := s.Kick(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, again.IsKicked)
}

func TestSetReady(t *testing.T) {
	ctx := context.Background()
	s := session.NewService(session.Config{
		Store:    statestore.NewMemory(),
		EventBus: event.NewBus(),
	})

	gs, err := s.CreateSession(ctx, session.CreateSessionRequest{})
	require.NoError(t, err)
	require.False(t, gs.IsReady)

	gs, err = s.SetReady(ctx, gs.ID, true)
	require.NoError(t, err)
	require.True(t, gs.IsReady)

	gs, err = s.SetReady(ctx, gs.ID, true)
	require.NoError(t, err)
	require.True(t, gs.IsReady)

	gs, err = s.SetReady(ctx, gs.ID, false)
	require.NoError(t, err)
	require.False(t, gs.IsReady)
}
