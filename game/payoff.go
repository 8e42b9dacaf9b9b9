package game

// Side identifies one participant of a match. SideNone is a draw or "no winner".
type Side int

const (
	SideNone Side = 0
	Side1    Side = 1
	Side2    Side = 2
)

// Other returns the opposing side.
func (s Side) Other() Side {
	switch s {
	case Side1:
		return Side2
	case Side2:
		return Side1
	}
	return SideNone
}

// Resolve applies the fixed payoff table. Identical, absent or unknown moves
// yield SideNone.
func Resolve(m1, m2 Move) Side {
	if !m1.Valid() || !m2.Valid() || m1 == m2 {
		return SideNone
	}
	if beats[m1] == m2 {
		return Side1
	}
	return Side2
}

// TimeoutWinner is the round policy applied when the deadline passes: a lone
// submitter wins by default, otherwise nobody does.
func TimeoutWinner(m1, m2 Move) Side {
	switch {
	case m1.Valid() && !m2.Valid():
		return Side1
	case !m1.Valid() && m2.Valid():
		return Side2
	case m1.Valid() && m2.Valid():
		return Resolve(m1, m2)
	}
	return SideNone
}
