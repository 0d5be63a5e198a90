//go:build integration_test

package demo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// Demo drives a full show against a running server: lobby, three stages,
// eliminations, champion. Requires the server on localhost:8080 and its
// pubsub Redis on localhost:6379.
const (
	baseURL   = "http://localhost:8080/api/v1"
	redisAddr = "localhost:6379"
	prefix    = "cybergenesis"
)

func TestShow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	wg := new(sync.WaitGroup)

	// Create new session
	var session struct {
		ID       string `json:"id"`
		JoinCode string `json:"join_code"`
	}
	post(t, "/sessions", map[string]any{}, &session)
	t.Logf("Session %q created, join code %q", session.ID, session.JoinCode)

	subscribe(t, makeRedis(t), wg, session.ID)

	// Ten players join the lobby
	names := []string{"ava", "ben", "chi", "dax", "eli", "fae", "gus", "hana", "ivo", "jun"}
	players := make([]string, 0, len(names))
	for _, n := range names {
		var p struct {
			ID string `json:"id"`
		}
		post(t, "/sessions/"+session.ID+"/players", map[string]any{"name": n}, &p)
		players = append(players, p.ID)
	}

	// Begin is a lobby-only action: completing a stage advances the session
	// to the next enabled stage on its own.
	put(t, "/sessions/"+session.ID+"/ready", map[string]any{"ready": true}, nil)
	post(t, "/sessions/"+session.ID+"/stage/begin", map[string]any{}, nil)

	for stage := 1; stage <= 3; stage++ {
		t.Logf("Starting stage %d with %d players", stage, len(players))

		// All remaining players play concurrently
		var eg errgroup.Group
		for i, p := range players {
			i, p := i, p
			eg.Go(func() error {
				score := 10.0 + float64(i)
				if err := submit(ctx, session.ID, p, stage, score); err != nil {
					return fmt.Errorf("player %q: %w", p, err)
				}
				t.Logf("Player %q finished stage %d with score %.1f", p, stage, score)
				return nil
			})
		}
		require.NoError(t, eg.Wait())

		var ranking struct {
			Order      []string `json:"order"`
			Advancing  []string `json:"advancing"`
			Eliminated []string `json:"eliminated"`
		}
		post(t, "/sessions/"+session.ID+"/stage/complete", map[string]any{}, &ranking)
		t.Logf("Stage %d complete: advancing=%v eliminated=%v", stage, ranking.Advancing, ranking.Eliminated)

		players = ranking.Advancing
		if stage == 3 {
			players = ranking.Order
		}
	}

	require.Len(t, players, 3, "three players reach the final standings")
	t.Logf("Champion: %q", players[0])

	wg.Wait()
}

func submit(ctx context.Context, sessionID, playerID string, stage int, score float64) error {
	for _, pct := range []int{30, 70} {
		if err := request(ctx, http.MethodPut, "/sessions/"+sessionID+"/progress", map[string]any{
			"player_id": playerID,
			"stage":     stage,
			"progress":  pct,
			"status":    "playing",
		}, nil); err != nil {
			return err
		}
	}

	if err := request(ctx, http.MethodPut, "/sessions/"+sessionID+"/scores", map[string]any{
		"player_id":  playerID,
		"stage":      stage,
		"score":      score,
		"time_taken": score * 2,
	}, nil); err != nil {
		return err
	}

	return request(ctx, http.MethodPut, "/sessions/"+sessionID+"/progress", map[string]any{
		"player_id": playerID,
		"stage":     stage,
		"progress":  100,
		"status":    "finished",
	}, nil)
}

func post(t *testing.T, path string, body, out any) {
	t.Helper()
	require.NoError(t, request(context.Background(), http.MethodPost, path, body, out))
}

func put(t *testing.T, path string, body, out any) {
	t.Helper()
	require.NoError(t, request(context.Background(), http.MethodPut, path, body, out))
}

func request(ctx context.Context, method, path string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func makeRedis(t *testing.T) redis.UniversalClient {
	t.Helper()

	r := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{redisAddr}})
	t.Cleanup(func() { _ = r.Close() })
	require.NoError(t, r.Ping(context.Background()).Err())
	return r
}

// subscribe tails the session's pubsub channel for the duration of the
// demo, logging what a display client would receive.
func subscribe(t *testing.T, r redis.UniversalClient, wg *sync.WaitGroup, sessionID string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Second)
	sub := r.Subscribe(ctx, prefix+":session:"+sessionID)
	t.Cleanup(func() {
		cancel()
		_ = sub.Close()
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			m, err := sub.ReceiveMessage(ctx)
			if err != nil {
				return
			}

			var n struct {
				Event string `json:"event"`
			}
			if err := json.Unmarshal([]byte(m.Payload), &n); err != nil {
				continue
			}
			t.Logf("Feed: %s", n.Event)

			if n.Event == "session.updated" {
				var full struct {
					Data struct {
						Status string `json:"status"`
					} `json:"data"`
				}
				if json.Unmarshal([]byte(m.Payload), &full) == nil && full.Data.Status == "completed" {
					return
				}
			}
		}
	}()
}
