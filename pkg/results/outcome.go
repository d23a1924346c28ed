// Package results reports finished or interrupted games to the stats backend
package results

import (
	"context"
	"encoding/json"
)

// Status is the kind of outcome being reported
type Status string

// Outcome statuses understood by the stats backend
const (
	StatusSuccess   Status = "success"
	StatusDefeat    Status = "defeat"
	StatusRestarted Status = "restarted"
	StatusAbandoned Status = "abandoned"
)

// Outcome is the JSON body posted to the stats backend. Which of the optional
// fields are set depends on the status.
type Outcome struct {
	UserID        string  `json:"userId"`
	UserName      string  `json:"userName"`
	UserImage     *string `json:"userImage"`
	Status        Status  `json:"status"`
	Time          *int64  `json:"time,omitempty"`
	SuccessTime   *int64  `json:"successTime,omitempty"`
	UsedFlags     int     `json:"usedFlags"`
	NoFlagWin     *bool   `json:"noFlagWin,omitempty"`
	BombsExploded int     `json:"bombsExploded"`
	TimePlayed    int64   `json:"timePlayed"`
	CellsRevealed int     `json:"cellsRevealed"`
	GameRestarts  *int    `json:"gameRestarts,omitempty"`
}

// MarshalJSON writes the outcome body. Abandoned games carry an explicit
// null successTime, which the stats backend reads as "never finished".
func (o Outcome) MarshalJSON() ([]byte, error) {
	type body Outcome
	if o.Status != StatusAbandoned || o.SuccessTime != nil {
		return json.Marshal(body(o))
	}
	return json.Marshal(struct {
		body
		SuccessTime *int64 `json:"successTime"`
	}{body: body(o)})
}

// Reporter delivers an outcome somewhere
type Reporter interface {
	Report(ctx context.Context, outcome Outcome) error
}
