package game

import "strings"

// Move is a single rock/paper/scissors choice. The empty Move means no submission.
type Move string

const (
	Rock     Move = "rock"
	Paper    Move = "paper"
	Scissors Move = "scissors"
	NoMove   Move = ""
)

// beats maps each move to the move it defeats.
var beats = map[Move]Move{
	Rock:     Scissors,
	Scissors: Paper,
	Paper:    Rock,
}

// ParseMove normalizes client input. Unknown values report false.
func ParseMove(s string) (Move, bool) {
	m := Move(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := beats[m]; !ok {
		return NoMove, false
	}
	return m, true
}

// Valid reports whether m is one of the three playable moves.
func (m Move) Valid() bool {
	_, ok := beats[m]
	return ok
}

// Ptr returns nil for NoMove so persisted rounds store NULL for a missing submission.
func (m Move) Ptr() *string {
	if m == NoMove {
		return nil
	}
	s := string(m)
	return &s
}

// MoveFrom is the inverse of Ptr.
func MoveFrom(s *string) Move {
	if s == nil {
		return NoMove
	}
	m, _ := ParseMove(*s)
	return m
}
