package room

import "sort"

// Record is the shared-store serialization of a room. The ready set travels
// as a sorted sequence and is rebuilt into a set on read.
type Record struct {
	ID                  string             `json:"id"`
	Width               float64            `json:"width"`
	Height              float64            `json:"height"`
	Players             map[string]*Player `json:"players"`
	Ball                Ball               `json:"ball"`
	Score               Score              `json:"score"`
	Teams               Teams              `json:"teams"`
	MatchTime           int                `json:"matchTime"`
	IsPlaying           bool               `json:"isPlaying"`
	WaitingForRestart   bool               `json:"waitingForRestart"`
	PlayersReady        []string           `json:"playersReady"`
	LastGoalTime        int64              `json:"lastGoalTime"`
	GoalCooldown        int64              `json:"goalCooldown"`
	BallResetInProgress bool               `json:"ballResetInProgress"`
}

// ToRecord snapshots the room into its persistable form.
func (r *Room) ToRecord() Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	players := make(map[string]*Player, len(r.Players))
	for id, p := range r.Players {
		cp := *p
		players[id] = &cp
	}
	ready := make([]string, 0, len(r.PlayersReady))
	for id := range r.PlayersReady {
		ready = append(ready, id)
	}
	sort.Strings(ready)

	return Record{
		ID:                  r.ID,
		Width:               r.Width,
		Height:              r.Height,
		Players:             players,
		Ball:                r.Ball,
		Score:               r.Score,
		Teams:               Teams{Red: append([]string(nil), r.Teams.Red...), Blue: append([]string(nil), r.Teams.Blue...)},
		MatchTime:           r.MatchTime,
		IsPlaying:           r.IsPlaying,
		WaitingForRestart:   r.WaitingForRestart,
		PlayersReady:        ready,
		LastGoalTime:        r.LastGoalTime,
		GoalCooldown:        r.GoalCooldown,
		BallResetInProgress: r.BallResetInProgress,
	}
}

// FromRecord rebuilds a room adopted from the shared store.
func FromRecord(rec Record) *Room {
	r := New(rec.ID)
	if rec.Width > 0 {
		r.Width = rec.Width
	}
	if rec.Height > 0 {
		r.Height = rec.Height
	}
	if rec.Players != nil {
		r.Players = rec.Players
	}
	r.Teams = rec.Teams
	r.Ball = rec.Ball
	r.Score = rec.Score
	r.MatchTime = rec.MatchTime
	r.IsPlaying = rec.IsPlaying
	r.WaitingForRestart = rec.WaitingForRestart
	for _, id := range rec.PlayersReady {
		r.PlayersReady[id] = struct{}{}
	}
	r.LastGoalTime = rec.LastGoalTime
	if rec.GoalCooldown > 0 {
		r.GoalCooldown = rec.GoalCooldown
	}
	r.BallResetInProgress = rec.BallResetInProgress
	return r
}
