package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type MatchStatus string

const (
	MatchWaitingDeposits MatchStatus = "waiting_deposits"
	MatchPlaying         MatchStatus = "playing"
	MatchSettled         MatchStatus = "settled"
	MatchCancelled       MatchStatus = "cancelled"
)

// Terminal statuses are never left once reached.
func (s MatchStatus) Terminal() bool {
	return s == MatchSettled || s == MatchCancelled
}

const (
	CancelAbandoned      = "abandoned"
	CancelDepositTimeout = "deposit_timeout"
)

// Match is the durable record of a best-of-N contest between two agents.
type Match struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	Agent1ID string `gorm:"type:uuid;index;not null" json:"agent1_id"`
	Agent2ID string `gorm:"type:uuid;index;not null" json:"agent2_id"`

	WagerTier   int             `gorm:"not null" json:"wager_tier"`
	WagerAmount decimal.Decimal `gorm:"type:numeric(38,18);not null" json:"wager_amount"`
	BestOf      int             `gorm:"not null;default:5" json:"best_of"`

	Status     MatchStatus `gorm:"type:varchar(32);index;not null" json:"status"`
	Agent1Wins int         `gorm:"not null;default:0" json:"agent1_wins"`
	Agent2Wins int         `gorm:"not null;default:0" json:"agent2_wins"`

	WinnerAgentID  *string `gorm:"type:uuid" json:"winner_agent_id"`
	ForfeitAgentID *string `gorm:"type:uuid" json:"forfeit_agent_id"`
	CancelReason   *string `gorm:"type:varchar(32)" json:"cancel_reason,omitempty"`

	// EscrowKey is the on-chain match key, set only when the contract accepted createMatch.
	EscrowKey           *string `gorm:"type:varchar(66)" json:"escrow_key,omitempty"`
	Agent1DepositTxHash *string `gorm:"type:varchar(66)" json:"agent1_deposit_tx_hash"`
	Agent2DepositTxHash *string `gorm:"type:varchar(66)" json:"agent2_deposit_tx_hash"`
	PayoutTxHash        *string `gorm:"type:varchar(66)" json:"payout_tx_hash"`
	RefundTxHash        *string `gorm:"type:varchar(66)" json:"refund_tx_hash,omitempty"`
	RefundPending       bool    `gorm:"not null;default:false;index" json:"-"`

	DepositTimeoutAt time.Time  `gorm:"index;not null" json:"deposit_timeout_at"`
	CurrentRound     int        `gorm:"not null;default:0" json:"current_round"`
	RoundEndsAt      *time.Time `gorm:"index" json:"round_ends_at"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (m *Match) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// HasEscrow reports whether the match was registered with the settlement contract.
func (m *Match) HasEscrow() bool {
	return m.EscrowKey != nil && *m.EscrowKey != ""
}

// Participant reports which side agentID plays: 1, 2, or 0 for neither.
func (m *Match) Participant(agentID string) int {
	switch {
	case agentID == "":
		return 0
	case agentID == m.Agent1ID:
		return 1
	case agentID == m.Agent2ID:
		return 2
	}
	return 0
}

// Opponent returns the other participant's id.
func (m *Match) Opponent(agentID string) string {
	if agentID == m.Agent1ID {
		return m.Agent2ID
	}
	return m.Agent1ID
}

func trimmed(s string) string { return strings.TrimSpace(s) }
