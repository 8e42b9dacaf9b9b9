package game

import (
	"errors"
	"time"

	"rps-arena/models"
)

var (
	ErrRoundClosed      = errors.New("round is not open")
	ErrAlreadySubmitted = errors.New("already submitted for this round")
	ErrAlreadySent      = errors.New("one message per round")
	ErrNotParticipant   = errors.New("not a player in this match")
)

// State is the in-memory view of a playing match. At most one round is open
// at a time; it closes when both moves are in or the deadline is handled.
type State struct {
	MatchID  string
	Agent1ID string
	Agent2ID string

	Agent1Wins int
	Agent2Wins int

	Round          int
	RoundStartedAt time.Time
	RoundEndsAt    time.Time

	Move1 Move
	Move2 Move

	ChatSent1 bool
	ChatSent2 bool

	open bool

	// LastByTimeout is set when the most recent round was closed by the deadline policy.
	LastByTimeout bool
}

func NewState(matchID, agent1ID, agent2ID string) *State {
	return &State{MatchID: matchID, Agent1ID: agent1ID, Agent2ID: agent2ID}
}

// Reconstruct rebuilds the state of a playing match from its durable record and
// round history. Win counts come from the rounds, and the returned state has
// no open round: the next round to play is Round.
func Reconstruct(m models.Match, rounds []models.Round) *State {
	s := NewState(m.ID, m.Agent1ID, m.Agent2ID)
	last := 0
	for _, r := range rounds {
		if r.RoundIndex > last {
			last = r.RoundIndex
		}
		if r.WinnerAgentID == nil {
			continue
		}
		switch *r.WinnerAgentID {
		case m.Agent1ID:
			s.Agent1Wins++
		case m.Agent2ID:
			s.Agent2Wins++
		}
	}
	s.Round = last + 1
	return s
}

// SideOf maps an agent to its side, or SideNone for outsiders.
func (s *State) SideOf(agentID string) Side {
	switch agentID {
	case "":
		return SideNone
	case s.Agent1ID:
		return Side1
	case s.Agent2ID:
		return Side2
	}
	return SideNone
}

// AgentOf is the inverse of SideOf. SideNone yields "".
func (s *State) AgentOf(side Side) string {
	switch side {
	case Side1:
		return s.Agent1ID
	case Side2:
		return s.Agent2ID
	}
	return ""
}

func (s *State) Open() bool { return s.open }

// OpenRound starts round index with a fresh deadline and clears per-round data.
func (s *State) OpenRound(index int, now time.Time, timeout time.Duration) {
	s.Round = index
	s.RoundStartedAt = now
	s.RoundEndsAt = now.Add(timeout)
	s.Move1, s.Move2 = NoMove, NoMove
	s.ChatSent1, s.ChatSent2 = false, false
	s.open = true
}

// Expired reports whether the open round's deadline has passed.
func (s *State) Expired(now time.Time) bool {
	return s.open && now.After(s.RoundEndsAt)
}

// Submit records a move for side in the open round.
func (s *State) Submit(side Side, m Move) error {
	if !s.open {
		return ErrRoundClosed
	}
	switch side {
	case Side1:
		if s.Move1 != NoMove {
			return ErrAlreadySubmitted
		}
		s.Move1 = m
	case Side2:
		if s.Move2 != NoMove {
			return ErrAlreadySubmitted
		}
		s.Move2 = m
	default:
		return ErrNotParticipant
	}
	return nil
}

// MoveOf returns side's move in the open (or last closed) round.
func (s *State) MoveOf(side Side) Move {
	switch side {
	case Side1:
		return s.Move1
	case Side2:
		return s.Move2
	}
	return NoMove
}

// NoSubmissions reports that neither side has moved this round.
func (s *State) NoSubmissions() bool {
	return s.Move1 == NoMove && s.Move2 == NoMove
}

func (s *State) BothSubmitted() bool {
	return s.Move1 != NoMove && s.Move2 != NoMove
}

// Outcome computes the open round's winner without closing it.
func (s *State) Outcome(byTimeout bool) Side {
	if byTimeout {
		return TimeoutWinner(s.Move1, s.Move2)
	}
	return Resolve(s.Move1, s.Move2)
}

// Close ends the open round with winner. Closing a closed round is a no-op
// and reports false.
func (s *State) Close(winner Side, byTimeout bool) bool {
	if !s.open {
		return false
	}
	s.open = false
	s.LastByTimeout = byTimeout
	switch winner {
	case Side1:
		s.Agent1Wins++
	case Side2:
		s.Agent2Wins++
	}
	return true
}

// Winner is the side that reached WinsToWin, if any.
func (s *State) Winner() Side {
	switch {
	case s.Agent1Wins >= WinsToWin:
		return Side1
	case s.Agent2Wins >= WinsToWin:
		return Side2
	}
	return SideNone
}

// MarkChat consumes side's one message for the current round.
func (s *State) MarkChat(side Side) error {
	switch side {
	case Side1:
		if s.ChatSent1 {
			return ErrAlreadySent
		}
		s.ChatSent1 = true
	case Side2:
		if s.ChatSent2 {
			return ErrAlreadySent
		}
		s.ChatSent2 = true
	default:
		return ErrNotParticipant
	}
	return nil
}
