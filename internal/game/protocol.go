package game

import (
	"encoding/json"

	"github.com/pitchside/pitchside/internal/room"
	"github.com/pitchside/pitchside/internal/server"
)

// Event names, server to client.
const (
	evtRoomAssigned       = "roomAssigned"
	evtInit               = "init"
	evtUpdate             = "update"
	evtMatchStart         = "matchStart"
	evtMatchEnd           = "matchEnd"
	evtGoalScored         = "goalScored"
	evtBallReset          = "ballReset"
	evtTimerUpdate        = "timerUpdate"
	evtPlayerDisconnected = "playerDisconnected"
	evtPlayerReadyUpdate  = "playerReadyUpdate"
	evtWaitingForPlayers  = "waitingForPlayers"
	evtWaitingForOpponent = "waitingForOpponent"
	evtRoomFull           = "roomFull"
	evtSessionTaken       = "sessionTaken"
	evtTeamChanged        = "teamChanged"
)

// Event names, client to server.
const (
	evtInput          = "input"
	evtRequestRestart = "requestRestart"
	evtPong           = "pong"
)

type roomAssignedPayload struct {
	RoomID   string `json:"roomId"`
	Capacity int    `json:"capacity"`
	Players  int    `json:"players"`
}

type initPayload struct {
	Team      room.Team      `json:"team"`
	GameState room.GameState `json:"gameState"`
	CanMove   bool           `json:"canMove"`
	RoomID    string         `json:"roomId"`
}

type matchStartPayload struct {
	GameState room.GameState `json:"gameState"`
	CanMove   bool           `json:"canMove"`
}

type matchEndPayload struct {
	Winner    string         `json:"winner"`
	GameState room.GameState `json:"gameState"`
}

type goalScoredPayload struct {
	Team     room.Team `json:"team"`
	ScorerID string    `json:"scorerId,omitempty"`
}

type ballResetPayload struct {
	Ball room.Ball `json:"ball"`
}

type timerUpdatePayload struct {
	MatchTime int `json:"matchTime"`
}

type playerDisconnectedPayload struct {
	PlayerID  string         `json:"playerId"`
	GameState room.GameState `json:"gameState"`
}

type playerReadyUpdatePayload struct {
	Players      map[string]*room.Player `json:"players"`
	ReadyCount   int                     `json:"readyCount"`
	TotalPlayers int                     `json:"totalPlayers"`
	CanMove      bool                    `json:"canMove"`
}

type waitingForPlayersPayload struct {
	RedCount  int `json:"redCount"`
	BlueCount int `json:"blueCount"`
}

type roomFullPayload struct {
	RoomID   string `json:"roomId"`
	Capacity int    `json:"capacity"`
}

type sessionTakenPayload struct {
	Message string `json:"message"`
}

type teamChangedPayload struct {
	NewTeam   room.Team      `json:"newTeam"`
	GameState room.GameState `json:"gameState"`
}

func message(eventType string, payload any) server.WSMessage {
	data, _ := json.Marshal(payload)
	return server.WSMessage{Type: eventType, Payload: data}
}
