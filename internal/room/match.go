package room

// StartAction is the outcome of a start-condition check.
type StartAction int

const (
	ActionNone StartAction = iota
	// ActionStarted: a fresh match began, score, timer and ball were reset.
	ActionStarted
	// ActionResumed: play continued from the waiting state. Positions reset,
	// score and timer kept.
	ActionResumed
	// ActionWaiting: a team is empty, the room sits idle.
	ActionWaiting
)

// TeamChange records a player moved between teams while rebalancing.
type TeamChange struct {
	ConnID  string
	NewTeam Team
}

// StartCheck is the result of CheckStartConditions, consumed by the
// broadcast layer.
type StartCheck struct {
	Action    StartAction
	RedCount  int
	BlueCount int
	Moved     *TeamChange
}

// ReadyVote is the result of a restart request.
type ReadyVote struct {
	Accepted        bool
	Started         bool // all present players ready, both teams manned
	OpponentMissing bool // all ready but one team empty
	ReadyCount      int
	TotalPlayers    int
}

// MatchEnd reports a finished match.
type MatchEnd struct {
	Ended  bool
	Winner string // "red", "blue" or "draw"
}

// GoalEvent reports an accepted goal.
type GoalEvent struct {
	Team     Team
	ScorerID string // connection id of the last toucher, if on the scoring team
}

// CheckStartConditions re-evaluates the match state machine after a join or
// leave. It rebalances teams, prunes departed players from the ready set and
// decides between starting, resuming and idling. joinedConn is the connection
// that just joined, or "" on a leave: a join during the restart vote forces a
// full restart, a leave only restarts once the remaining votes are unanimous.
func (r *Room) CheckStartConditions(joinedConn string) StartCheck {
	r.mu.Lock()
	defer r.mu.Unlock()

	check := StartCheck{Action: ActionNone}
	check.Moved = r.balanceTeamsLocked()

	present := r.presentIDsLocked()
	for id := range r.PlayersReady {
		if _, ok := present[id]; !ok {
			delete(r.PlayersReady, id)
		}
	}

	hasRed := len(r.Teams.Red) > 0
	hasBlue := len(r.Teams.Blue) > 0

	switch {
	case hasRed && hasBlue:
		if r.WaitingForRestart {
			allReady := len(r.PlayersReady) > 0 && len(r.PlayersReady) == len(present)
			if joinedConn != "" || allReady {
				r.startNewMatchLocked()
				check.Action = ActionStarted
			}
		} else if !r.IsPlaying {
			r.resumeMatchLocked()
			check.Action = ActionResumed
		}
	default:
		r.IsPlaying = false
		check.Action = ActionWaiting
	}

	check.RedCount = len(r.Teams.Red)
	check.BlueCount = len(r.Teams.Blue)
	return check
}

// MarkReady registers a restart vote. Votes are only accepted while the room
// is collecting them; a vote also returns the player to its spawn point. The
// match restarts once every present player has voted, unless a team emptied
// out during voting.
func (r *Room) MarkReady(connID string) ReadyVote {
	r.mu.Lock()
	defer r.mu.Unlock()

	vote := ReadyVote{}
	if !r.WaitingForRestart {
		return vote
	}
	p, ok := r.Players[connID]
	if !ok {
		return vote
	}
	vote.Accepted = true

	r.PlayersReady[connID] = struct{}{}
	p.X, p.Y = r.spawnPoint(p.Team)

	present := r.presentIDsLocked()
	vote.TotalPlayers = len(present)
	vote.ReadyCount = len(r.PlayersReady)

	allReady := len(present) > 0
	for id := range present {
		if _, ok := r.PlayersReady[id]; !ok {
			allReady = false
			break
		}
	}
	if !allReady {
		return vote
	}

	if len(r.Teams.Red) > 0 && len(r.Teams.Blue) > 0 {
		r.startNewMatchLocked()
		vote.Started = true
	} else {
		vote.OpponentMissing = true
	}
	return vote
}

// TickTimer advances the match clock by one second. At zero the match ends:
// play stops, the ready vote opens, players are parked off-field and the
// winner is decided by score.
func (r *Room) TickTimer() MatchEnd {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.IsPlaying {
		return MatchEnd{}
	}
	r.MatchTime--
	if r.MatchTime > 0 {
		return MatchEnd{}
	}

	r.MatchTime = 0
	r.IsPlaying = false
	r.WaitingForRestart = true

	for _, p := range r.Players {
		p.X, p.Y = -100, -100
	}

	winner := "draw"
	if r.Score.Red > r.Score.Blue {
		winner = "red"
	} else if r.Score.Blue > r.Score.Red {
		winner = "blue"
	}
	return MatchEnd{Ended: true, Winner: winner}
}

// RecordGoal applies a goal reported by the simulation, subject to the goal
// cooldown: a second report within GoalCooldown ms of the last accepted one
// is dropped.
func (r *Room) RecordGoal(team Team) (GoalEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := nowMillis()
	if r.BallResetInProgress || now-r.LastGoalTime <= r.GoalCooldown {
		return GoalEvent{}, false
	}

	if team == TeamRed {
		r.Score.Red++
	} else {
		r.Score.Blue++
	}
	r.LastGoalTime = now
	r.BallResetInProgress = true

	ev := GoalEvent{Team: team}
	if r.Ball.LastTouchTeam == team && r.Ball.LastTouchPlayer != "" {
		if p, ok := r.Players[r.Ball.LastTouchPlayer]; ok && p.Team == team {
			p.Goals++
			p.LastGoalTime = now
			ev.ScorerID = r.Ball.LastTouchPlayer
		}
	}
	return ev, true
}

// ResetBall puts the ball back at a random spot in the center third and
// reopens goal detection.
func (r *Room) ResetBall(ball Ball) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Ball = ball
	r.BallResetInProgress = false
}

func (r *Room) startNewMatchLocked() {
	r.IsPlaying = true
	r.WaitingForRestart = false
	r.PlayersReady = make(map[string]struct{})
	r.Score = Score{}
	r.MatchTime = MatchDuration
	r.Ball = DefaultBall()
	for _, p := range r.Players {
		p.X, p.Y = r.spawnPoint(p.Team)
	}
}

func (r *Room) resumeMatchLocked() {
	r.IsPlaying = true
	for _, p := range r.Players {
		p.X, p.Y = r.spawnPoint(p.Team)
	}
}

// balanceTeamsLocked moves the most recent joiner of the larger team across
// when the sides differ by more than one.
func (r *Room) balanceTeamsLocked() *TeamChange {
	redCount := len(r.Teams.Red)
	blueCount := len(r.Teams.Blue)
	if abs(redCount-blueCount) <= 1 {
		return nil
	}

	var from, to *[]string
	var newTeam Team
	if redCount > blueCount {
		from, to, newTeam = &r.Teams.Red, &r.Teams.Blue, TeamBlue
	} else {
		from, to, newTeam = &r.Teams.Blue, &r.Teams.Red, TeamRed
	}
	if len(*from) == 0 {
		return nil
	}

	moved := (*from)[len(*from)-1]
	*from = (*from)[:len(*from)-1]
	*to = append(*to, moved)

	if p, ok := r.Players[moved]; ok {
		p.Team = newTeam
		p.X, p.Y = r.spawnPoint(newTeam)
	}
	return &TeamChange{ConnID: moved, NewTeam: newTeam}
}

func (r *Room) presentIDsLocked() map[string]struct{} {
	present := make(map[string]struct{}, len(r.Teams.Red)+len(r.Teams.Blue))
	for _, id := range r.Teams.Red {
		present[id] = struct{}{}
	}
	for _, id := range r.Teams.Blue {
		present[id] = struct{}{}
	}
	return present
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
