package room

const (
	// Field geometry is the authoritative coordinate space for every room.
	FieldWidth  = 800.0
	FieldHeight = 600.0

	PlayerRadius = 20.0
	BallRadius   = 10.0

	// Goal box, centered vertically on each side of the field.
	GoalHeight = 200.0
	GoalWidth  = 50.0

	MaxPlayers    = 6
	MatchDuration = 60 // seconds

	// GoalCooldownMS guards against the same goal-line crossing being
	// reported on consecutive physics ticks.
	GoalCooldownMS = 500
)

type Team string

const (
	TeamRed  Team = "red"
	TeamBlue Team = "blue"
)

// PlayerInput is the most recent movement/action state reported by a client.
// It is overwritten wholesale on every input event, never merged.
type PlayerInput struct {
	Left  bool `json:"left"`
	Right bool `json:"right"`
	Up    bool `json:"up"`
	Down  bool `json:"down"`
}

// Player is the room-scoped state of one connection.
type Player struct {
	X            float64     `json:"x"`
	Y            float64     `json:"y"`
	Team         Team        `json:"team"`
	Input        PlayerInput `json:"input"`
	Goals        int         `json:"goals"`
	LastGoalTime int64       `json:"lastGoalTime"`
	UserID       int64       `json:"userId,omitempty"` // 0 for guests
	Username     string      `json:"username"`
}

type Ball struct {
	X               float64 `json:"x"`
	Y               float64 `json:"y"`
	Radius          float64 `json:"radius"`
	SpeedX          float64 `json:"speedX"`
	SpeedY          float64 `json:"speedY"`
	LastTouchPlayer string  `json:"lastTouchPlayerId,omitempty"`
	LastTouchTeam   Team    `json:"lastTouchTeam,omitempty"`
}

type Score struct {
	Red  int `json:"red"`
	Blue int `json:"blue"`
}

// Teams holds the join-ordered connection ids per side. A connection id
// appears in at most one of the two slices.
type Teams struct {
	Red  []string `json:"red"`
	Blue []string `json:"blue"`
}

// GameState is the client-safe projection of a room. Server-only fields
// (goal cooldown bookkeeping, the ready set) are excluded.
type GameState struct {
	Width     float64            `json:"width"`
	Height    float64            `json:"height"`
	Players   map[string]*Player `json:"players"`
	Ball      Ball               `json:"ball"`
	Score     Score              `json:"score"`
	Teams     Teams              `json:"teams"`
	MatchTime int                `json:"matchTime"`
	IsPlaying bool               `json:"isPlaying"`
	RoomID    string             `json:"roomId"`
}
