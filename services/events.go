package services

import "time"

// Event is one message on the realtime socket.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data,omitempty"`
}

const (
	EventAuthenticated      = "authenticated"
	EventQueued             = "queued"
	EventMatched            = "matched"
	EventDepositSaved       = "deposit_tx_saved"
	EventWaitingForDeposits = "waiting_for_deposits"
	EventGameState          = "game_state"
	EventRoundStarted       = "round_started"
	EventRoundResolved      = "round_resolved"
	EventMatchEnded         = "match_ended"
	EventMatchCancelled     = "match_cancelled"
	EventMessage            = "message"
	EventError              = "error"
)

type Opponent struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type MatchedPayload struct {
	MatchID        string   `json:"match_id"`
	Opponent       Opponent `json:"opponent"`
	WagerTier      int      `json:"wager_tier"`
	WagerAmount    string   `json:"wager_amount"`
	BestOf         int      `json:"best_of"`
	EscrowAddress  string   `json:"escrow_address,omitempty"`
	DepositMatchID string   `json:"deposit_match_id_hex,omitempty"`
	WagerBaseUnits string   `json:"wager_wei,omitempty"`
}

type WaitingForDepositsPayload struct {
	MatchID string `json:"match_id"`
	Message string `json:"message"`
}

type GameStatePayload struct {
	MatchID      string    `json:"match_id"`
	Status       string    `json:"status"`
	CurrentRound int       `json:"current_round"`
	Agent1Wins   int       `json:"agent1_wins"`
	Agent2Wins   int       `json:"agent2_wins"`
	EndsAt       time.Time `json:"ends_at,omitempty"`
}

type RoundStartedPayload struct {
	MatchID string    `json:"match_id"`
	Round   int       `json:"round"`
	EndsAt  time.Time `json:"ends_at"`
}

type RoundResolvedPayload struct {
	MatchID       string  `json:"match_id"`
	Round         int     `json:"round"`
	Choice1       *string `json:"choice1"`
	Choice2       *string `json:"choice2"`
	WinnerAgentID *string `json:"winner_agent_id"`
	ByTimeout     bool    `json:"by_timeout"`
	Agent1Wins    int     `json:"agent1_wins"`
	Agent2Wins    int     `json:"agent2_wins"`
}

type Score struct {
	Agent1 int `json:"agent1"`
	Agent2 int `json:"agent2"`
}

type MatchEndedPayload struct {
	MatchID      string  `json:"match_id"`
	Winner       string  `json:"winner"`
	Score        Score   `json:"score"`
	PayoutTxHash *string `json:"tx_hash_payout"`
}

type MatchCancelledPayload struct {
	MatchID      string  `json:"match_id"`
	Reason       string  `json:"reason"`
	RefundTxHash *string `json:"tx_hash,omitempty"`
}

type MessagePayload struct {
	AgentID   string `json:"agent_id"`
	AgentName string `json:"agent_name"`
	Side      int    `json:"side"`
	Round     int    `json:"round"`
	Body      string `json:"body"`
}

type DepositSavedPayload struct {
	MatchID string `json:"match_id"`
	TxHash  string `json:"tx_hash"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}

// ErrorEvent wraps a rejection for the originating session.
func ErrorEvent(err error) Event {
	return Event{Name: EventError, Data: ErrorPayload{Error: err.Error()}}
}

type AuthenticatedPayload struct {
	AgentID string `json:"agent_id"`
	Name    string `json:"name"`
}

type QueuedPayload struct {
	WagerTier int `json:"wager_tier"`
	Waiting   int `json:"waiting"`
}
