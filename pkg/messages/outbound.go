package messages

import "github.com/tecu23/minesweeper-server/pkg/minefield"

// Outbound event names
const (
	EventGameState = "gameState"
	EventError     = "error"
)

// OutboundMessage is how we wrap responses before sending
// them to the client
type OutboundMessage struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

// GameStatePayload is the full snapshot of a player's game
type GameStatePayload struct {
	Grid           minefield.Grid `json:"grid"`
	GameOver       bool           `json:"gameOver"`
	GameWon        bool           `json:"gameWon"`
	RemainingFlags int            `json:"remainingFlags"`
	UserID         string         `json:"userId"`
	GameStarted    bool           `json:"gameStarted"`
	StartTime      *int64         `json:"startTime"` // unix milliseconds
	FlagsPlaced    int            `json:"flagsPlaced"`
	BombsExploded  int            `json:"bombsExploded"`
	NoFlagUse      bool           `json:"noFlagUse"`
	GameTime       *int64         `json:"gameTime"`
	Time           *int64         `json:"time"`
	CellsRevealed  int            `json:"cellsRevealed"`
	GameRestarts   int            `json:"gameRestarts"`
	WinTime        *int64         `json:"winTime,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
