package domain

import "time"

// PlayRecord is the play a channel holds while it waits for a challenger.
type PlayRecord struct {
	Player string    `json:"player"`
	Score  int       `json:"score"`
	When   time.Time `json:"when"`
}

// Pairing is the outcome of comparing two consecutive plays.
type Pairing struct {
	Tie    bool
	Winner string // empty on a tie
}

// Resolve compares a pending play against a challenger's score.
func Resolve(prev PlayRecord, player string, score int) Pairing {
	switch {
	case score > prev.Score:
		return Pairing{Winner: player}
	case score == prev.Score:
		return Pairing{Tie: true}
	default:
		return Pairing{Winner: prev.Player}
	}
}
