package room

import (
	"errors"
	"strconv"
	"sync"
	"time"
)

var ErrRoomFull = errors.New("room full")

// Room holds the full mutable state for a single match. Protocol handlers
// mutate it through locking methods; the tick driver takes the lock for the
// whole physics step via Lock/Unlock.
type Room struct {
	mu sync.Mutex

	ID     string
	Width  float64
	Height float64

	Players map[string]*Player
	Teams   Teams
	Ball    Ball
	Score   Score

	MatchTime int // remaining seconds
	IsPlaying bool

	WaitingForRestart bool
	PlayersReady      map[string]struct{}

	LastGoalTime        int64 // unix ms
	GoalCooldown        int64 // ms
	BallResetInProgress bool
}

func New(id string) *Room {
	return &Room{
		ID:           id,
		Width:        FieldWidth,
		Height:       FieldHeight,
		Players:      make(map[string]*Player),
		Ball:         DefaultBall(),
		MatchTime:    MatchDuration,
		GoalCooldown: GoalCooldownMS,
		PlayersReady: make(map[string]struct{}),
	}
}

func DefaultBall() Ball {
	return Ball{
		X:      FieldWidth / 2,
		Y:      FieldHeight / 2,
		Radius: BallRadius,
	}
}

func (r *Room) Lock()   { r.mu.Lock() }
func (r *Room) Unlock() { r.mu.Unlock() }

// AddPlayer admits a connection, assigns it to the smaller team (ties go to
// red) and spawns it at the team's side of the field. Guests get a display
// name numbered within the room only.
func (r *Room) AddPlayer(connID string, userID int64, username string) (*Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.Players) >= MaxPlayers {
		return nil, ErrRoomFull
	}
	if p, exists := r.Players[connID]; exists {
		return p, nil
	}

	team := TeamBlue
	if len(r.Teams.Red) <= len(r.Teams.Blue) {
		team = TeamRed
	}
	if team == TeamRed {
		r.Teams.Red = append(r.Teams.Red, connID)
	} else {
		r.Teams.Blue = append(r.Teams.Blue, connID)
	}

	displayName := username
	if userID == 0 || username == "" {
		displayName = r.nextGuestNameLocked()
	}

	x, y := r.spawnPoint(team)
	p := &Player{
		X:        x,
		Y:        y,
		Team:     team,
		UserID:   userID,
		Username: displayName,
	}
	r.Players[connID] = p
	return p, nil
}

// RemovePlayer drops a connection from its team, the players map and the
// ready set. Returns false when the connection was not in the room.
func (r *Room) RemovePlayer(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.Players[connID]
	if !ok {
		return false
	}
	if p.Team == TeamRed {
		r.Teams.Red = remove(r.Teams.Red, connID)
	} else {
		r.Teams.Blue = remove(r.Teams.Blue, connID)
	}
	delete(r.Players, connID)
	delete(r.PlayersReady, connID)
	return true
}

// SetInput overwrites a player's input wholesale. Inputs received while the
// match is not playing are dropped.
func (r *Room) SetInput(connID string, input PlayerInput) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.Players[connID]
	if !ok || !r.IsPlaying {
		return false
	}
	p.Input = input
	return true
}

func (r *Room) PlayerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Players)
}

// CanMove reports whether clients may move: match running and both teams
// non-empty.
func (r *Room) CanMove() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.IsPlaying && len(r.Teams.Red) > 0 && len(r.Teams.Blue) > 0
}

// Snapshot builds the client-safe game state projection.
func (r *Room) Snapshot() GameState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Room) snapshotLocked() GameState {
	players := make(map[string]*Player, len(r.Players))
	for id, p := range r.Players {
		cp := *p
		players[id] = &cp
	}
	teams := Teams{
		Red:  append([]string(nil), r.Teams.Red...),
		Blue: append([]string(nil), r.Teams.Blue...),
	}
	return GameState{
		Width:     r.Width,
		Height:    r.Height,
		Players:   players,
		Ball:      r.Ball,
		Score:     r.Score,
		Teams:     teams,
		MatchTime: r.MatchTime,
		IsPlaying: r.IsPlaying,
		RoomID:    r.ID,
	}
}

// nextGuestNameLocked picks the lowest free guest number, so names stay
// unique within the room even after earlier guests leave.
func (r *Room) nextGuestNameLocked() string {
	taken := make(map[string]struct{}, len(r.Players))
	for _, p := range r.Players {
		taken[p.Username] = struct{}{}
	}
	for n := 1; ; n++ {
		name := "Guest " + strconv.Itoa(n)
		if _, ok := taken[name]; !ok {
			return name
		}
	}
}

func (r *Room) spawnPoint(team Team) (float64, float64) {
	if team == TeamRed {
		return 100, r.Height / 2
	}
	return r.Width - 100, r.Height / 2
}

func remove(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// nowMillis is replaceable in tests that exercise the goal cooldown.
var nowMillis = func() int64 { return time.Now().UnixMilli() }
