package game

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pitchside/pitchside/internal/auth"
	"github.com/pitchside/pitchside/internal/room"
	"github.com/pitchside/pitchside/internal/server"
	"github.com/pitchside/pitchside/internal/store"
)

const (
	tickRate      = time.Second / 60
	timerInterval = time.Second
	storeTimeout  = 5 * time.Second
)

// StatsRecorder records a completed match for one registered user.
type StatsRecorder interface {
	UpdateStats(ctx context.Context, userID int64, goalsScored, goalsConceded int, result store.MatchResult) error
}

// TokenVerifier resolves a bearer token to a durable identity.
type TokenVerifier interface {
	VerifyToken(token string) (*auth.Identity, error)
}

// Notifier is the hub surface the engine drives.
type Notifier interface {
	JoinRoom(clientID, roomID string)
	SendTo(clientID string, msg server.WSMessage)
	BroadcastRoom(roomID string, msg server.WSMessage)
	Kick(clientID string, msg server.WSMessage, reason string)
}

// Engine is the per-connection protocol plus the per-room tick driver. All
// mutations of one room are either serialized by its runner goroutine or go
// through the room's locking methods.
type Engine struct {
	rooms   *room.Manager
	hub     Notifier
	ranking StatsRecorder
	verify  TokenVerifier
	latency *LatencyTracker
	metrics *server.Metrics
	logger  *slog.Logger

	mu       sync.Mutex
	sessions map[int64]string // durable user id -> owning connection id
	running  map[string]context.CancelFunc
}

func NewEngine(rooms *room.Manager, rank StatsRecorder, verify TokenVerifier, metrics *server.Metrics, logger *slog.Logger) *Engine {
	return &Engine{
		rooms:    rooms,
		ranking:  rank,
		verify:   verify,
		latency:  NewLatencyTracker(),
		metrics:  metrics,
		logger:   logger,
		sessions: make(map[int64]string),
		running:  make(map[string]context.CancelFunc),
	}
}

// SetHub wires the WebSocket hub (set once at startup, breaks the
// hub/engine construction cycle).
func (e *Engine) SetHub(hub Notifier) {
	e.hub = hub
}

// HandleConnect implements server.SessionHandler: the admission sequence.
func (e *Engine) HandleConnect(ctx context.Context, c *server.Client) error {
	e.resolveIdentity(c)
	e.takeOverSession(c)

	alloc := e.rooms.Allocate(ctx, c.RequestedRoom)
	if alloc.Err != nil {
		e.hub.SendTo(c.ID, message(evtRoomFull, roomFullPayload{RoomID: alloc.RoomID, Capacity: room.MaxPlayers}))
		e.releaseSession(c)
		return fmt.Errorf("room %s full", alloc.RoomID)
	}
	r := alloc.Room

	p, err := r.AddPlayer(c.ID, c.UserID, c.Username)
	if err != nil {
		e.hub.SendTo(c.ID, message(evtRoomFull, roomFullPayload{RoomID: r.ID, Capacity: room.MaxPlayers}))
		e.releaseSession(c)
		return fmt.Errorf("room %s full", r.ID)
	}

	e.hub.JoinRoom(c.ID, r.ID)
	e.persist(r)
	e.metrics.IncrWSConn()

	e.hub.SendTo(c.ID, message(evtRoomAssigned, roomAssignedPayload{
		RoomID:   r.ID,
		Capacity: room.MaxPlayers,
		Players:  r.PlayerCount(),
	}))
	e.hub.SendTo(c.ID, message(evtInit, initPayload{
		Team:      p.Team,
		GameState: r.Snapshot(),
		CanMove:   r.CanMove(),
		RoomID:    r.ID,
	}))

	e.applyStartCheck(r, r.CheckStartConditions(c.ID))
	e.ensureRunner(r)

	e.logger.Info("player joined",
		"room", r.ID, "conn", c.ID, "name", p.Username, "team", p.Team)
	return nil
}

// HandleMessage implements server.SessionHandler. Malformed payloads are
// dropped.
func (e *Engine) HandleMessage(ctx context.Context, c *server.Client, msg server.WSMessage) {
	switch msg.Type {
	case evtInput:
		var input room.PlayerInput
		if err := json.Unmarshal(msg.Payload, &input); err != nil {
			return
		}
		if r, ok := e.rooms.Get(c.RoomID); ok {
			r.SetInput(c.ID, input)
		}

	case evtRequestRestart:
		r, ok := e.rooms.Get(c.RoomID)
		if !ok {
			return
		}
		vote := r.MarkReady(c.ID)
		if !vote.Accepted {
			return
		}
		e.persist(r)

		if vote.Started {
			e.hub.BroadcastRoom(r.ID, message(evtMatchStart, matchStartPayload{GameState: r.Snapshot(), CanMove: true}))
		} else if vote.OpponentMissing {
			e.hub.BroadcastRoom(r.ID, message(evtWaitingForOpponent, waitingForPlayersPayload{
				RedCount:  len(r.Snapshot().Teams.Red),
				BlueCount: len(r.Snapshot().Teams.Blue),
			}))
		}
		e.hub.BroadcastRoom(r.ID, message(evtPlayerReadyUpdate, playerReadyUpdatePayload{
			Players:      r.Snapshot().Players,
			ReadyCount:   vote.ReadyCount,
			TotalPlayers: vote.TotalPlayers,
			CanMove:      false,
		}))

	case evtPong:
		var sentAt int64
		if err := json.Unmarshal(msg.Payload, &sentAt); err != nil {
			return
		}
		rtt := time.Since(time.UnixMilli(sentAt))
		if rtt > 0 && rtt < 10*time.Second {
			e.latency.RecordRTT(c.ID, rtt)
		}
	}
}

// HandleDisconnect implements server.SessionHandler: probe teardown, session
// release, player removal, room re-evaluation and retirement.
func (e *Engine) HandleDisconnect(c *server.Client) {
	rtt := e.latency.Average(c.ID)
	e.latency.Cleanup(c.ID)
	e.releaseSession(c)
	e.metrics.DecrWSConn()

	r, ok := e.rooms.Get(c.RoomID)
	if !ok {
		return
	}

	if r.RemovePlayer(c.ID) {
		e.persist(r)
		e.hub.BroadcastRoom(r.ID, message(evtPlayerDisconnected, playerDisconnectedPayload{
			PlayerID:  c.ID,
			GameState: r.Snapshot(),
		}))
		e.applyStartCheck(r, r.CheckStartConditions(""))
		e.logger.Info("player left", "room", r.ID, "conn", c.ID, "avg_rtt_ms", rtt.Milliseconds())
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if e.rooms.CleanupIfEmpty(ctx, r) {
		e.stopRunner(r.ID)
	}
}

// resolveIdentity fills the durable identity: a valid token wins, otherwise
// the raw query parameters stand and an invalid token demotes to guest.
func (e *Engine) resolveIdentity(c *server.Client) {
	if c.Token == "" || e.verify == nil {
		return
	}
	ident, err := e.verify.VerifyToken(c.Token)
	if err != nil {
		e.logger.Warn("invalid token on connect, treating as guest", "conn", c.ID)
		c.UserID, c.Username = 0, ""
		return
	}
	c.UserID, c.Username = ident.UserID, ident.Username
}

// takeOverSession enforces at most one live connection per durable identity:
// the previous holder is notified and force-closed. Guests are exempt.
func (e *Engine) takeOverSession(c *server.Client) {
	if c.UserID == 0 {
		return
	}
	e.mu.Lock()
	prev := e.sessions[c.UserID]
	e.sessions[c.UserID] = c.ID
	e.mu.Unlock()

	if prev != "" && prev != c.ID {
		e.hub.Kick(prev, message(evtSessionTaken, sessionTakenPayload{
			Message: "your account connected from another device or tab",
		}), "session taken")
		e.logger.Info("session taken over", "user", c.UserID, "old", prev, "new", c.ID)
	}
}

func (e *Engine) releaseSession(c *server.Client) {
	if c.UserID == 0 {
		return
	}
	e.mu.Lock()
	if e.sessions[c.UserID] == c.ID {
		delete(e.sessions, c.UserID)
	}
	e.mu.Unlock()
}

// applyStartCheck turns a start-condition result into broadcasts and a
// persist when the room changed.
func (e *Engine) applyStartCheck(r *room.Room, check room.StartCheck) {
	if check.Moved != nil {
		e.hub.SendTo(check.Moved.ConnID, message(evtTeamChanged, teamChangedPayload{
			NewTeam:   check.Moved.NewTeam,
			GameState: r.Snapshot(),
		}))
	}

	switch check.Action {
	case room.ActionStarted, room.ActionResumed:
		e.hub.BroadcastRoom(r.ID, message(evtMatchStart, matchStartPayload{GameState: r.Snapshot(), CanMove: true}))
	case room.ActionWaiting:
		e.hub.BroadcastRoom(r.ID, message(evtWaitingForPlayers, waitingForPlayersPayload{
			RedCount:  check.RedCount,
			BlueCount: check.BlueCount,
		}))
	case room.ActionNone:
		if check.Moved == nil {
			return
		}
	}
	e.persist(r)
}

// ensureRunner starts the room's tick goroutine if it is not already
// running.
func (e *Engine) ensureRunner(r *room.Room) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.running[r.ID]; ok {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.running[r.ID] = cancel
	e.metrics.IncrRooms()
	go e.run(ctx, r)
}

func (e *Engine) stopRunner(roomID string) {
	e.mu.Lock()
	cancel, ok := e.running[roomID]
	if ok {
		delete(e.running, roomID)
	}
	e.mu.Unlock()
	if ok {
		cancel()
		e.metrics.DecrRooms()
	}
}

// run is the authoritative loop for one room: physics at 60 Hz, the match
// clock at 1 Hz. It exits when the room is retired.
func (e *Engine) run(ctx context.Context, r *room.Room) {
	physics := time.NewTicker(tickRate)
	defer physics.Stop()
	timer := time.NewTicker(timerInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-physics.C:
			res := Step(r)
			switch {
			case res.GoalTeam != "":
				e.handleGoal(r, res.GoalTeam)
			case res.BallOutReset:
				e.resetBall(r)
			}
			if snap := r.Snapshot(); snap.IsPlaying {
				e.hub.BroadcastRoom(r.ID, message(evtUpdate, snap))
			}

		case <-timer.C:
			end := r.TickTimer()
			snap := r.Snapshot()
			if snap.IsPlaying || end.Ended {
				e.hub.BroadcastRoom(r.ID, message(evtTimerUpdate, timerUpdatePayload{MatchTime: snap.MatchTime}))
			}
			if end.Ended {
				e.hub.BroadcastRoom(r.ID, message(evtMatchEnd, matchEndPayload{Winner: end.Winner, GameState: snap}))
				e.metrics.IncrMatches()
				e.persist(r)
				go e.recordMatchStats(snap, end.Winner)
				e.logger.Info("match ended", "room", r.ID, "winner", end.Winner,
					"red", snap.Score.Red, "blue", snap.Score.Blue)
			}
		}
	}
}

// handleGoal applies the cooldown-guarded score change and schedules the
// delayed ball reset.
func (e *Engine) handleGoal(r *room.Room, team room.Team) {
	ev, ok := r.RecordGoal(team)
	if !ok {
		return
	}
	e.metrics.IncrGoals()
	e.hub.BroadcastRoom(r.ID, message(evtGoalScored, goalScoredPayload{Team: team, ScorerID: ev.ScorerID}))
	e.persist(r)

	time.AfterFunc(time.Duration(r.GoalCooldown)*time.Millisecond, func() {
		e.resetBall(r)
	})
}

func (e *Engine) resetBall(r *room.Room) {
	ball := ResetBall(r.Width, r.Height)
	r.ResetBall(ball)
	e.hub.BroadcastRoom(r.ID, message(evtBallReset, ballResetPayload{Ball: ball}))
}

// recordMatchStats attributes the finished match to every registered player.
// A failed update loses that player's match; it is never partially recorded.
func (e *Engine) recordMatchStats(snap room.GameState, winner string) {
	if e.ranking == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	for _, p := range snap.Players {
		if p.UserID == 0 {
			continue
		}
		scored, conceded := snap.Score.Red, snap.Score.Blue
		if p.Team == room.TeamBlue {
			scored, conceded = conceded, scored
		}
		result := store.ResultDraw
		if winner == string(p.Team) {
			result = store.ResultWin
		} else if winner != "draw" {
			result = store.ResultLoss
		}
		if err := e.ranking.UpdateStats(ctx, p.UserID, scored, conceded, result); err != nil {
			e.logger.Error("match result not recorded", "user", p.UserID, "err", err)
		}
	}
}

func (e *Engine) persist(r *room.Room) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	e.rooms.Persist(ctx, r)
}
