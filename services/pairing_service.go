package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"rps-arena/escrow"
	"rps-arena/game"
	"rps-arena/models"
)

var ErrNoPair = errors.New("no pair available")

// QueueEntry is one agent waiting for an opponent.
type QueueEntry struct {
	AgentID   string
	AgentName string
	SessionID string
	Tier      game.Tier
	JoinedAt  time.Time
}

// EscrowTerms tells both players where and how much to deposit.
type EscrowTerms struct {
	Contract       string
	MatchKey       string
	StakeBaseUnits string
}

// Pair is the outcome of a successful pairing. Escrow is nil when the match
// was not registered on-chain.
type Pair struct {
	Match  *models.Match
	First  QueueEntry
	Second QueueEntry
	Escrow *EscrowTerms
}

// MatchedEvent builds the notification for one of the paired entries.
func (p *Pair) MatchedEvent(forAgent string) Event {
	opp := p.Second
	if forAgent == p.Second.AgentID {
		opp = p.First
	}
	payload := MatchedPayload{
		MatchID:     p.Match.ID,
		Opponent:    Opponent{ID: opp.AgentID, Name: opp.AgentName},
		WagerTier:   p.Match.WagerTier,
		WagerAmount: p.Match.WagerAmount.String(),
		BestOf:      p.Match.BestOf,
	}
	if p.Escrow != nil {
		payload.EscrowAddress = p.Escrow.Contract
		payload.DepositMatchID = p.Escrow.MatchKey
		payload.WagerBaseUnits = p.Escrow.StakeBaseUnits
	}
	return Event{Name: EventMatched, Data: payload}
}

// PairingService keeps one FIFO queue per stake tier and provisions matches
// for the two longest-waiting agents of a tier.
type PairingService struct {
	store          Store
	escrow         Escrow
	clock          clockwork.Clock
	depositTimeout time.Duration
	contract       string

	mu     sync.Mutex
	queues map[game.Tier][]QueueEntry
}

func NewPairingService(store Store, esc Escrow, clock clockwork.Clock, depositTimeout time.Duration, contract string) *PairingService {
	return &PairingService{
		store:          store,
		escrow:         esc,
		clock:          clock,
		depositTimeout: depositTimeout,
		contract:       contract,
		queues:         make(map[game.Tier][]QueueEntry),
	}
}

// Enqueue adds the agent to its tier. It is idempotent within a tier, and an
// agent queued in another tier is moved so it never waits in two queues.
func (ps *PairingService) Enqueue(e QueueEntry) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	for tier, q := range ps.queues {
		for i, existing := range q {
			if existing.AgentID != e.AgentID {
				continue
			}
			if tier == e.Tier {
				return false
			}
			ps.queues[tier] = append(q[:i:i], q[i+1:]...)
			break
		}
	}
	if e.JoinedAt.IsZero() {
		e.JoinedAt = ps.clock.Now()
	}
	ps.queues[e.Tier] = append(ps.queues[e.Tier], e)
	log.Printf("[MATCHMAKING] %s queued for tier %d (%d waiting)", e.AgentID, e.Tier, len(ps.queues[e.Tier]))
	return true
}

// Dequeue removes the agent from every tier.
func (ps *PairingService) Dequeue(agentID string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	for tier, q := range ps.queues {
		kept := q[:0]
		for _, e := range q {
			if e.AgentID != agentID {
				kept = append(kept, e)
			}
		}
		ps.queues[tier] = kept
	}
}

// Waiting returns how many agents wait in tier.
func (ps *PairingService) Waiting(tier game.Tier) int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return len(ps.queues[tier])
}

func (ps *PairingService) pop(tier game.Tier) (QueueEntry, QueueEntry, bool) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	q := ps.queues[tier]
	if len(q) < 2 {
		return QueueEntry{}, QueueEntry{}, false
	}
	first, second := q[0], q[1]
	ps.queues[tier] = append(q[:0:0], q[2:]...)
	return first, second, true
}

// requeue puts entries back at the head of their tier after a failed pairing.
func (ps *PairingService) requeue(entries ...QueueEntry) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if len(entries) == 0 {
		return
	}
	tier := entries[0].Tier
	ps.queues[tier] = append(append([]QueueEntry{}, entries...), ps.queues[tier]...)
}

// TryPair pops the two longest-waiting agents of tier and creates their match
// in waiting_deposits. When escrow is configured and both agents have a
// wallet, the match is also created on-chain; a failure there leaves a valid
// match without escrow terms.
func (ps *PairingService) TryPair(ctx context.Context, tier game.Tier) (*Pair, error) {
	first, second, ok := ps.pop(tier)
	if !ok {
		return nil, ErrNoPair
	}

	now := ps.clock.Now()
	m := &models.Match{
		Agent1ID:         first.AgentID,
		Agent2ID:         second.AgentID,
		WagerTier:        int(tier),
		WagerAmount:      tier.Stake(),
		BestOf:           game.BestOf,
		Status:           models.MatchWaitingDeposits,
		DepositTimeoutAt: now.Add(ps.depositTimeout).UTC(),
	}
	if err := ps.store.CreateMatch(ctx, m); err != nil {
		ps.requeue(first, second)
		return nil, fmt.Errorf("create match: %w", err)
	}
	log.Printf("[MATCHMAKING] Match %s created: %s vs %s (tier %d)", m.ID, first.AgentID, second.AgentID, tier)

	pair := &Pair{Match: m, First: first, Second: second}
	if ps.escrow != nil && ps.escrow.Configured() {
		pair.Escrow = ps.registerEscrow(ctx, m)
	}
	return pair, nil
}

func (ps *PairingService) registerEscrow(ctx context.Context, m *models.Match) *EscrowTerms {
	a1, err := ps.store.GetAgent(ctx, m.Agent1ID)
	if err != nil {
		log.Printf("[MATCHMAKING] Match %s: load agent %s: %v", m.ID, m.Agent1ID, err)
		return nil
	}
	a2, err := ps.store.GetAgent(ctx, m.Agent2ID)
	if err != nil {
		log.Printf("[MATCHMAKING] Match %s: load agent %s: %v", m.ID, m.Agent2ID, err)
		return nil
	}
	if a1.Wallet() == "" || a2.Wallet() == "" {
		log.Printf("[MATCHMAKING] Match %s: wallet missing, playing without escrow", m.ID)
		return nil
	}

	stake := game.BaseUnits(m.WagerAmount)
	txHash, err := ps.escrow.CreateMatch(ctx, m.ID, a1.Wallet(), a2.Wallet(), stake)
	if err != nil {
		log.Printf("[ESCROW] createMatch failed for match %s: %v", m.ID, err)
		return nil
	}

	key := escrow.MatchKey(m.ID).Hex()
	m.EscrowKey = &key
	if err := ps.store.UpdateMatch(ctx, m); err != nil {
		log.Printf("[MATCHMAKING] Match %s: save escrow key: %v", m.ID, err)
	}
	log.Printf("[ESCROW] Match %s created on-chain (tx %s)", m.ID, txHash)
	return &EscrowTerms{
		Contract:       ps.contract,
		MatchKey:       key,
		StakeBaseUnits: stake.String(),
	}
}
