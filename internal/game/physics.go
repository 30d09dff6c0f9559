package game

import (
	"math"
	"math/rand"

	"github.com/pitchside/pitchside/internal/room"
)

const (
	playerSpeed       = 5.0
	ballFriction      = 0.89
	wallBounceDamping = 0.7
	ballKickSpeed     = 12.0
)

// StepResult reports side effects of one physics tick that need follow-up
// outside the room lock.
type StepResult struct {
	GoalTeam     room.Team // non-empty when the ball crossed a goal line
	BallOutReset bool      // ball escaped the field, reset immediately
}

// Step advances every player and the ball by one tick. It mutates the room
// under its lock; goal bookkeeping (cooldown, score) is applied by the
// caller through Room.RecordGoal so the decision and the broadcast stay
// outside the hot section.
func Step(r *room.Room) StepResult {
	r.Lock()
	defer r.Unlock()

	if !r.IsPlaying {
		return StepResult{}
	}

	// Player movement with field clamp.
	for _, p := range r.Players {
		dx := boolSpeed(p.Input.Right) - boolSpeed(p.Input.Left)
		dy := boolSpeed(p.Input.Down) - boolSpeed(p.Input.Up)
		p.X = clamp(p.X+dx, room.PlayerRadius, r.Width-room.PlayerRadius)
		p.Y = clamp(p.Y+dy, room.PlayerRadius, r.Height-room.PlayerRadius)
	}

	ball := &r.Ball

	// Player-ball collision: push the ball out and kick it along the
	// contact angle, inheriting the player's velocity.
	for id, p := range r.Players {
		dx := ball.X - p.X
		dy := ball.Y - p.Y
		dist := math.Hypot(dx, dy)
		if dist >= room.PlayerRadius+ball.Radius {
			continue
		}
		angle := math.Atan2(dy, dx)
		overlap := room.PlayerRadius + ball.Radius - dist
		ball.X += math.Cos(angle) * overlap * 1.1
		ball.Y += math.Sin(angle) * overlap * 1.1

		vx := boolSpeed(p.Input.Right) - boolSpeed(p.Input.Left)
		vy := boolSpeed(p.Input.Down) - boolSpeed(p.Input.Up)
		ball.SpeedX = math.Cos(angle)*ballKickSpeed + vx
		ball.SpeedY = math.Sin(angle)*ballKickSpeed + vy

		ball.LastTouchPlayer = id
		ball.LastTouchTeam = p.Team
	}

	ball.X += ball.SpeedX
	ball.Y += ball.SpeedY
	ball.SpeedX *= ballFriction
	ball.SpeedY *= ballFriction

	// Wall bounce. The side walls are open across the goal mouth so the
	// ball can cross the line.
	goalTop := r.Height/2 - room.GoalHeight/2
	goalBottom := r.Height/2 + room.GoalHeight/2
	inMouth := ball.Y > goalTop && ball.Y < goalBottom

	if !inMouth && (ball.X < ball.Radius || ball.X > r.Width-ball.Radius) {
		ball.SpeedX *= -wallBounceDamping
		ball.X = clamp(ball.X, ball.Radius, r.Width-ball.Radius)
	}
	if ball.Y < ball.Radius || ball.Y > r.Height-ball.Radius {
		ball.SpeedY *= -wallBounceDamping
		ball.Y = clamp(ball.Y, ball.Radius, r.Height-ball.Radius)
	}

	res := StepResult{}

	if !r.BallResetInProgress {
		switch {
		case ball.X < room.GoalWidth && inMouth:
			res.GoalTeam = room.TeamBlue
		case ball.X > r.Width-room.GoalWidth && inMouth:
			res.GoalTeam = room.TeamRed
		case ball.X < -ball.Radius || ball.X > r.Width+ball.Radius:
			// Escaped through an open mouth and past the field entirely.
			res.BallOutReset = true
		}
	}

	return res
}

// ResetBall places the ball at a random point in the center third of the
// field with zero velocity.
func ResetBall(width, height float64) room.Ball {
	thirdW := width / 3
	thirdH := height / 3
	return room.Ball{
		X:      width/2 - thirdW/2 + rand.Float64()*thirdW,
		Y:      height/2 - thirdH/2 + rand.Float64()*thirdH,
		Radius: room.BallRadius,
	}
}

func boolSpeed(on bool) float64 {
	if on {
		return playerSpeed
	}
	return 0
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
