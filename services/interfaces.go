package services

import (
	"context"
	"math/big"
	"time"

	"rps-arena/escrow"
	"rps-arena/models"
)

// Store is the durable record the arena services read and write.
type Store interface {
	GetAgent(ctx context.Context, id string) (*models.Agent, error)
	AgentByAPIKeyHash(ctx context.Context, hash string) (*models.Agent, error)
	SaveAgents(ctx context.Context, agents ...*models.Agent) error

	CreateMatch(ctx context.Context, m *models.Match) error
	GetMatch(ctx context.Context, id string) (*models.Match, error)
	UpdateMatch(ctx context.Context, m *models.Match) error
	TransitionMatch(ctx context.Context, m *models.Match, from models.MatchStatus) (bool, error)
	SetDepositTx(ctx context.Context, matchID string, side int, txHash string) (bool, error)

	CreateRound(ctx context.Context, r *models.Round) error
	ListRounds(ctx context.Context, matchID string) ([]models.Round, error)

	ExpiredDepositMatches(ctx context.Context, now time.Time) ([]models.Match, error)
	OverdueRoundMatches(ctx context.Context, now time.Time) ([]models.Match, error)
	PendingRefundMatches(ctx context.Context) ([]models.Match, error)
}

// Escrow is the settlement contract as seen by the arena.
type Escrow interface {
	Configured() bool
	CreateMatch(ctx context.Context, matchID, agent1, agent2 string, amount *big.Int) (string, error)
	Deposits(ctx context.Context, matchID string) (escrow.Deposits, error)
	Resolve(ctx context.Context, matchID, winner string) (string, error)
	CancelAndRefund(ctx context.Context, matchID string) (string, error)
}

// Broadcaster delivers events to match rooms and single sessions.
type Broadcaster interface {
	Broadcast(matchID string, ev Event)
	SendSession(sessionID string, ev Event)
	RoomSize(matchID string) int
	InRoom(matchID, agentID string) bool
}

// Archiver keeps a copy of finished matches.
type Archiver interface {
	ArchiveMatch(ctx context.Context, m *models.Match, rounds []models.Round) error
}
