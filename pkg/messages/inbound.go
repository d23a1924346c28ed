// Package messages defines the websocket wire format
package messages

import (
	"encoding/json"

	"github.com/tecu23/minesweeper-server/pkg/minefield"
)

// Inbound event names
const (
	EventAuth        = "auth"
	EventRevealCell  = "revealCell"
	EventChordAction = "chordAction"
	EventToggleFlag  = "toggleFlag"
	EventRestartGame = "restartGame"
)

// InboundMessage is the generic wrapper for messages coming from the client.
// The "event" field tells us the action; "payload" is the data we parse further.
type InboundMessage struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// AuthPayload identifies the player behind a connection
type AuthPayload struct {
	SessionID string `json:"sessionId"`
	UserName  string `json:"userName"`
	UserImage string `json:"userImage"`
}

// CellPayload addresses a single cell for revealCell and toggleFlag
type CellPayload struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// ChordPayload is the payload of a chordAction
type ChordPayload struct {
	Row           int             `json:"row"`
	Col           int             `json:"col"`
	CellsToReveal []minefield.Pos `json:"cellsToReveal"`
}
