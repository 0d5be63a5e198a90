package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/showfloor/cybergenesis/internal/domain"
	"github.com/showfloor/cybergenesis/internal/elimination"
	"github.com/showfloor/cybergenesis/internal/errors"
	"github.com/showfloor/cybergenesis/internal/event"
	"github.com/showfloor/cybergenesis/internal/progress"
	"github.com/showfloor/cybergenesis/internal/ranking"
	"github.com/showfloor/cybergenesis/internal/session"
	"github.com/showfloor/cybergenesis/internal/snapshot"
	"github.com/showfloor/cybergenesis/internal/stage"
	"github.com/showfloor/cybergenesis/internal/standings"
)

type Config struct {
	Router       *gin.Engine
	EventBus     *event.Bus
	Session      *session.Service
	Progress     *progress.Service
	Standings    *standings.Service
	Controller   *stage.Controller
	Cache        *snapshot.Cache
	Redis        Redis
	PubsubPrefix string
	// JoinBaseURL is the public player-client URL; the join QR encodes
	// JoinBaseURL + "/join/" + join code.
	JoinBaseURL string
}

type API struct {
	ss  *session.Service
	ps  *progress.Service
	sts *standings.Service
	ctl *stage.Controller
	cch *snapshot.Cache
	hub *Hub

	joinBaseURL string
}

func New(c Config) *API {
	a := &API{
		ss:          c.Session,
		ps:          c.Progress,
		sts:         c.Standings,
		ctl:         c.Controller,
		cch:         c.Cache,
		hub:         NewHub(c.EventBus),
		joinBaseURL: c.JoinBaseURL,
	}

	NewNotifier(NotifierConfig{
		EventBus: c.EventBus,
		Redis:    c.Redis,
		Prefix:   c.PubsubPrefix,
	})

	v1 := c.Router.Group("/api/v1")
	{
		v1.POST("/sessions", a.createSession)
		v1.GET("/sessions/:id", a.getSession)
		v1.GET("/sessions/code/:code", a.getSessionByCode)
		v1.GET("/sessions/:id/qr.png", a.joinQR)
		v1.GET("/sessions/:id/ws", a.hub.Handle)

		v1.POST("/sessions/:id/players", a.join)
		v1.POST("/players/:id/kick", a.kick)
		v1.PUT("/sessions/:id/ready", a.setReady)

		v1.POST("/sessions/:id/stage/begin", a.beginStage)
		v1.POST("/sessions/:id/stage/complete", a.completeStage)
		v1.POST("/sessions/:id/stage/skip", a.skipStage)
		v1.POST("/sessions/:id/reset", a.reset)

		v1.PUT("/sessions/:id/progress", a.updateProgress)
		v1.PUT("/sessions/:id/scores", a.submitScore)

		v1.GET("/sessions/:id/standings", a.getStandings)
		v1.GET("/sessions/:id/rankings", a.getRankings)
	}

	return a
}

func (a *API) createSession(c *gin.Context) {
	var req struct {
		EnabledStages []int `json:"enabled_stages"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		abortErr(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	gs, err := a.ss.CreateSession(c.Request.Context(), session.CreateSessionRequest{
		EnabledStages: req.EnabledStages,
	})
	if err != nil {
		abortErr(c, err)
		return
	}

	c.JSON(http.StatusCreated, toSession(gs))
}

func (a *API) getSession(c *gin.Context) {
	snap, err := a.cch.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortErr(c, err)
		return
	}

	c.JSON(http.StatusOK, toSnapshot(snap))
}

func (a *API) getSessionByCode(c *gin.Context) {
	gs, err := a.ss.GetSessionByJoinCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		abortErr(c, err)
		return
	}

	c.JSON(http.StatusOK, toSession(gs))
}

func (a *API) joinQR(c *gin.Context) {
	gs, err := a.ss.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortErr(c, err)
		return
	}

	png, err := qrcode.Encode(a.joinBaseURL+"/join/"+gs.JoinCode, qrcode.Medium, 512)
	if err != nil {
		abortErr(c, err)
		return
	}

	c.Data(http.StatusOK, "image/png", png)
}

func (a *API) join(c *gin.Context) {
	var req struct {
		Name        string `json:"name"`
		PhotoURL    string `json:"photo_url"`
		AvatarColor string `json:"avatar_color"`
		Spectator   bool   `json:"spectator"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortErr(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	p, err := a.ss.Join(c.Request.Context(), session.JoinRequest{
		SessionID:   c.Param("id"),
		Name:        req.Name,
		PhotoURL:    req.PhotoURL,
		AvatarColor: req.AvatarColor,
		Spectator:   req.Spectator,
	})
	if err != nil {
		abortErr(c, err)
		return
	}

	c.JSON(http.StatusCreated, toPlayer(*p))
}

func (a *API) kick(c *gin.Context) {
	p, err := a.ss.Kick(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortErr(c, err)
		return
	}

	c.JSON(http.StatusOK, toPlayer(*p))
}

func (a *API) setReady(c *gin.Context) {
	var req struct {
		Ready bool `json:"ready"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortErr(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	gs, err := a.ss.SetReady(c.Request.Context(), c.Param("id"), req.Ready)
	if err != nil {
		abortErr(c, err)
		return
	}

	c.JSON(http.StatusOK, toSession(gs))
}

func (a *API) beginStage(c *gin.Context) {
	var req struct {
		Stage int `json:"stage"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		abortErr(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	gs, err := a.ctl.BeginStage(c.Request.Context(), stage.BeginStageRequest{
		SessionID: c.Param("id"),
		Stage:     req.Stage,
	})
	if err != nil {
		abortErr(c, err)
		return
	}

	c.JSON(http.StatusOK, toSession(gs))
}

func (a *API) completeStage(c *gin.Context) {
	var req struct {
		Force bool `json:"force"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		abortErr(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	r, err := a.ctl.CompleteStage(c.Request.Context(), stage.CompleteStageRequest{
		SessionID: c.Param("id"),
		Force:     req.Force,
	})
	if err != nil {
		abortErr(c, err)
		return
	}

	c.JSON(http.StatusOK, toRanking(*r))
}

func (a *API) skipStage(c *gin.Context) {
	gs, err := a.ctl.SkipStage(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortErr(c, err)
		return
	}

	c.JSON(http.StatusOK, toSession(gs))
}

func (a *API) reset(c *gin.Context) {
	gs, err := a.ctl.Reset(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortErr(c, err)
		return
	}

	c.JSON(http.StatusOK, toSession(gs))
}

func (a *API) updateProgress(c *gin.Context) {
	var req struct {
		PlayerID     string             `json:"player_id"`
		Stage        int                `json:"stage"`
		Progress     int                `json:"progress"`
		ElapsedTime  decimal.Decimal    `json:"elapsed_time"`
		Status       string             `json:"status"`
		CurrentScore decimal.Decimal    `json:"current_score"`
		Extra        *domain.StageExtra `json:"extra,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortErr(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	pr, err := a.ps.UpdateProgress(c.Request.Context(), progress.UpdateProgressRequest{
		PlayerID:     req.PlayerID,
		SessionID:    c.Param("id"),
		Stage:        req.Stage,
		Progress:     req.Progress,
		ElapsedTime:  req.ElapsedTime,
		Status:       domain.ProgressStatus(req.Status),
		CurrentScore: req.CurrentScore,
		Extra:        req.Extra,
	})
	if err != nil {
		abortErr(c, err)
		return
	}

	c.JSON(http.StatusOK, toProgress(*pr))
}

func (a *API) submitScore(c *gin.Context) {
	var req struct {
		PlayerID  string          `json:"player_id"`
		Stage     int             `json:"stage"`
		Score     decimal.Decimal `json:"score"`
		TimeTaken decimal.Decimal `json:"time_taken"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortErr(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	sc, err := a.ps.SubmitScore(c.Request.Context(), progress.SubmitScoreRequest{
		PlayerID:  req.PlayerID,
		SessionID: c.Param("id"),
		Stage:     req.Stage,
		Score:     req.Score,
		TimeTaken: req.TimeTaken,
	})
	if err != nil {
		abortErr(c, err)
		return
	}

	c.JSON(http.StatusOK, toScore(*sc))
}

func (a *API) getStandings(c *gin.Context) {
	st, err := a.sts.GetStandings(c.Request.Context(), standings.GetStandingsRequest{
		SessionID: c.Param("id"),
		Stage:     queryStage(c),
	})
	if err != nil {
		abortErr(c, err)
		return
	}

	c.JSON(http.StatusOK, toStandings(*st))
}

// getRankings computes a preview of the current order and split without
// applying eliminations. The host dashboard polls this before confirming
// the ceremony.
func (a *API) getRankings(c *gin.Context) {
	sessionID := c.Param("id")

	snap, err := a.cch.Get(c.Request.Context(), sessionID)
	if err != nil {
		abortErr(c, err)
		return
	}

	st := queryStage(c)
	if st == 0 {
		st = snap.Session.CurrentStage
	}
	if st == 0 {
		abortErr(c, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("session %s has no active stage", sessionID)))
		return
	}

	ranked := ranking.Rank(ranking.NewSnapshot(st, domain.ActivePlayers(snap.Players), snap.Scores, snap.Progress))
	advancing, eliminated := elimination.Split(st, ranked)

	c.JSON(http.StatusOK, toRanking(domain.Ranking{
		SessionID:  sessionID,
		Stage:      st,
		Order:      ranked,
		Advancing:  advancing,
		Eliminated: eliminated,
	}))
}

func queryStage(c *gin.Context) int {
	n, _ := strconv.Atoi(c.Query("stage"))
	return n
}

func abortErr(c *gin.Context, err error) {
	e := errors.Convert(err)
	c.AbortWithStatusJSON(e.HTTPStatusCode(), e)
}
