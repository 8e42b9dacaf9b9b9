package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	"rps-arena/config"
	"rps-arena/escrow"
	"rps-arena/game"
	"rps-arena/models"
	"rps-arena/store"
)

var decimalTwo = decimal.NewFromInt(2)

// liveMatch is the in-memory side of a playing match. Every mutation happens
// with mu held, so a match never has two operations in flight.
type liveMatch struct {
	mu    sync.Mutex
	match *models.Match
	state *game.State
	done  bool
}

// MatchService drives playing matches: it starts them once both players are
// present and funded, applies moves, closes rounds and settles or cancels.
// The durable record is written before anything is broadcast.
type MatchService struct {
	store   Store
	escrow  Escrow
	hub     Broadcaster
	archive Archiver
	clock   clockwork.Clock
	cfg     config.Game

	ctx  context.Context
	stop context.CancelFunc

	mu         sync.Mutex
	live       map[string]*liveMatch
	emptySince map[string]time.Time
	starting   map[string]bool
}

func NewMatchService(store Store, esc Escrow, hub Broadcaster, clock clockwork.Clock, cfg config.Game) *MatchService {
	ctx, stop := context.WithCancel(context.Background())
	return &MatchService{
		store:      store,
		escrow:     esc,
		hub:        hub,
		clock:      clock,
		cfg:        cfg,
		ctx:        ctx,
		stop:       stop,
		live:       make(map[string]*liveMatch),
		emptySince: make(map[string]time.Time),
		starting:   make(map[string]bool),
	}
}

// SetArchiver enables copying finished matches to the archive.
func (s *MatchService) SetArchiver(a Archiver) {
	s.archive = a
}

// Close stops background deposit polls and pending round timers.
func (s *MatchService) Close() {
	s.stop()
}

func (s *MatchService) escrowEnabled() bool {
	return s.escrow != nil && s.escrow.Configured()
}

func (s *MatchService) get(matchID string) *liveMatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live[matchID]
}

func (s *MatchService) putIfAbsent(matchID string, lm *liveMatch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.live[matchID]; ok {
		return false
	}
	s.live[matchID] = lm
	delete(s.emptySince, matchID)
	return true
}

func (s *MatchService) remove(matchID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.live, matchID)
	delete(s.emptySince, matchID)
}

func (s *MatchService) liveIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.live))
	for id := range s.live {
		ids = append(ids, id)
	}
	return ids
}

// LiveMatches returns the number of matches currently playing in memory.
func (s *MatchService) LiveMatches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Details returns the durable record of a match and its rounds.
func (s *MatchService) Details(ctx context.Context, matchID string) (*models.Match, []models.Round, error) {
	m, err := s.store.GetMatch(ctx, matchID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, ErrMatchNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	rounds, err := s.store.ListRounds(ctx, matchID)
	if err != nil {
		return nil, nil, err
	}
	return m, rounds, nil
}

func snapshotOf(lm *liveMatch) *GameStatePayload {
	st := lm.state
	return &GameStatePayload{
		MatchID:      st.MatchID,
		Status:       string(models.MatchPlaying),
		CurrentRound: st.Round,
		Agent1Wins:   st.Agent1Wins,
		Agent2Wins:   st.Agent2Wins,
		EndsAt:       st.RoundEndsAt,
	}
}

func snapshotOfRecord(m *models.Match) *GameStatePayload {
	p := &GameStatePayload{
		MatchID:      m.ID,
		Status:       string(m.Status),
		CurrentRound: m.CurrentRound,
		Agent1Wins:   m.Agent1Wins,
		Agent2Wins:   m.Agent2Wins,
	}
	if m.RoundEndsAt != nil {
		p.EndsAt = *m.RoundEndsAt
	}
	return p
}

// JoinMatch is called after the caller's session joined the match room. When
// both participants are in the room the match is started, subject to deposit
// confirmation. It returns the state the joiner should be shown.
func (s *MatchService) JoinMatch(ctx context.Context, agentID, matchID string) (*GameStatePayload, error) {
	if lm := s.get(matchID); lm != nil {
		lm.mu.Lock()
		defer lm.mu.Unlock()
		return snapshotOf(lm), nil
	}

	m, err := s.store.GetMatch(ctx, matchID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrMatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load match: %w", err)
	}

	if m.Status == models.MatchWaitingDeposits &&
		s.hub.InRoom(m.ID, m.Agent1ID) && s.hub.InRoom(m.ID, m.Agent2ID) {
		s.startMatch(m)
		if lm := s.get(matchID); lm != nil {
			lm.mu.Lock()
			defer lm.mu.Unlock()
			return snapshotOf(lm), nil
		}
	}
	return snapshotOfRecord(m), nil
}

func (s *MatchService) claimStart(matchID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.starting[matchID] || s.live[matchID] != nil {
		return false
	}
	s.starting[matchID] = true
	return true
}

func (s *MatchService) releaseStart(matchID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.starting, matchID)
}

// startMatch checks deposits once inline. If they are not in yet the
// remaining checks run in the background so the caller is not held up.
func (s *MatchService) startMatch(m *models.Match) {
	if !s.claimStart(m.ID) {
		return
	}
	if s.depositsReady(s.ctx, m) {
		s.beginPlay(s.ctx, m.ID)
		s.releaseStart(m.ID)
		return
	}
	go s.awaitDeposits(m)
}

// awaitDeposits re-checks deposits a bounded number of times with backoff.
// If they are still missing the room is told so and polling continues until
// the deposit deadline.
func (s *MatchService) awaitDeposits(m *models.Match) {
	defer s.releaseStart(m.ID)

	for i := 0; i < s.cfg.DepositCheckRetries; i++ {
		select {
		case <-s.ctx.Done():
			return
		case <-s.clock.After(s.cfg.DepositCheckBackoff):
		}
		if s.depositsReady(s.ctx, m) {
			s.beginPlay(s.ctx, m.ID)
			return
		}
	}

	s.hub.Broadcast(m.ID, Event{Name: EventWaitingForDeposits, Data: WaitingForDepositsPayload{
		MatchID: m.ID,
		Message: "Deposit the stake to the escrow contract; the match starts once both deposits are confirmed.",
	}})
	s.pollDeposits(m.ID, m.DepositTimeoutAt)
}

// depositsReady is true when no on-chain stake is involved, or both deposits are confirmed.
func (s *MatchService) depositsReady(ctx context.Context, m *models.Match) bool {
	if !s.escrowEnabled() || !m.HasEscrow() {
		return true
	}
	d, err := s.escrow.Deposits(ctx, m.ID)
	if err != nil {
		log.Printf("[ESCROW] Deposits for match %s: %v", m.ID, err)
		return false
	}
	if !d.Funded() {
		log.Printf("[ESCROW] Match %s deposits not ready (agent1=%t agent2=%t cancelled=%t)", m.ID, d.Agent1, d.Agent2, d.Cancelled)
		return false
	}
	return true
}

func (s *MatchService) pollDeposits(matchID string, deadline time.Time) {
	ticker := s.clock.NewTicker(s.cfg.DepositPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.Chan():
		}
		if s.get(matchID) != nil {
			return
		}
		if s.clock.Now().After(deadline) {
			log.Printf("[ORCHESTRATOR] Match %s deposit deadline passed, poll stopped", matchID)
			return
		}
		m, err := s.store.GetMatch(s.ctx, matchID)
		if err != nil {
			log.Printf("[ORCHESTRATOR] Deposit poll for match %s: %v", matchID, err)
			continue
		}
		if m.Status != models.MatchWaitingDeposits {
			return
		}
		if s.depositsReady(s.ctx, m) {
			s.beginPlay(s.ctx, matchID)
			return
		}
	}
}

// beginPlay moves a waiting match to playing and opens round 1.
func (s *MatchService) beginPlay(ctx context.Context, matchID string) {
	m, err := s.store.GetMatch(ctx, matchID)
	if err != nil {
		log.Printf("[ORCHESTRATOR] Start match %s: %v", matchID, err)
		return
	}
	if m.Status != models.MatchWaitingDeposits {
		return
	}

	st := game.NewState(m.ID, m.Agent1ID, m.Agent2ID)
	st.OpenRound(1, s.clock.Now(), s.cfg.RoundTimeout)
	lm := &liveMatch{match: m, state: st}
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if !s.putIfAbsent(m.ID, lm) {
		return
	}

	ends := st.RoundEndsAt.UTC()
	m.Status = models.MatchPlaying
	m.CurrentRound = 1
	m.RoundEndsAt = &ends
	ok, err := s.store.TransitionMatch(ctx, m, models.MatchWaitingDeposits)
	if err != nil || !ok {
		lm.done = true
		s.remove(m.ID)
		if err != nil {
			log.Printf("[ORCHESTRATOR] Failed to set match %s to playing: %v", m.ID, err)
			s.hub.Broadcast(m.ID, ErrorEvent(errors.New("failed to start match")))
		}
		return
	}

	log.Printf("[ORCHESTRATOR] Match %s started", m.ID)
	s.hub.Broadcast(m.ID, Event{Name: EventGameState, Data: snapshotOf(lm)})
	s.hub.Broadcast(m.ID, Event{Name: EventRoundStarted, Data: RoundStartedPayload{
		MatchID: m.ID,
		Round:   st.Round,
		EndsAt:  st.RoundEndsAt,
	}})
}

// SubmitMove records agentID's move for the open round and closes the round
// once both sides have moved.
func (s *MatchService) SubmitMove(ctx context.Context, agentID, matchID, choice string) error {
	move, ok := game.ParseMove(choice)
	if !ok {
		return ErrInvalidMove
	}
	lm := s.get(matchID)
	if lm == nil {
		return ErrNotPlaying
	}

	closed, err := func() (bool, error) {
		lm.mu.Lock()
		defer lm.mu.Unlock()

		if lm.done {
			return false, ErrNotPlaying
		}
		st := lm.state
		if !st.Open() || st.Expired(s.clock.Now()) {
			return false, ErrRoundClosed
		}
		side := st.SideOf(agentID)
		if side == game.SideNone {
			return false, ErrNotParticipant
		}
		if s.clock.Now().Before(st.RoundStartedAt.Add(s.cfg.RoundMinDelay)) {
			return false, fmt.Errorf("%w (%s)", ErrTooEarly, s.cfg.RoundMinDelay)
		}
		if err := st.Submit(side, move); err != nil {
			return false, err
		}
		if !st.BothSubmitted() {
			return false, nil
		}
		return s.closeRound(ctx, lm, false), nil
	}()
	if err != nil {
		return err
	}
	if closed {
		s.scheduleAdvance(matchID)
	}
	return nil
}

// closeRound persists and announces the open round's result. It is a no-op
// when the round is already closed. The caller holds lm.mu.
func (s *MatchService) closeRound(ctx context.Context, lm *liveMatch, byTimeout bool) bool {
	st, m := lm.state, lm.match
	if lm.done || !st.Open() {
		return false
	}

	winner := st.Outcome(byTimeout)
	round := &models.Round{
		MatchID:      m.ID,
		RoundIndex:   st.Round,
		ChoiceAgent1: st.Move1.Ptr(),
		ChoiceAgent2: st.Move2.Ptr(),
	}
	if winner != game.SideNone {
		id := st.AgentOf(winner)
		round.WinnerAgentID = &id
	}
	if err := s.store.CreateRound(ctx, round); err != nil {
		log.Printf("[ORCHESTRATOR] Persist round %d of match %s: %v", st.Round, m.ID, err)
		return false
	}
	st.Close(winner, byTimeout)
	s.clearEmpty(m.ID)

	resume := s.clock.Now().Add(s.cfg.RoundCooldown).UTC()
	m.Agent1Wins = st.Agent1Wins
	m.Agent2Wins = st.Agent2Wins
	m.CurrentRound = st.Round
	m.RoundEndsAt = &resume
	if err := s.store.UpdateMatch(ctx, m); err != nil {
		log.Printf("[ORCHESTRATOR] Update score of match %s: %v", m.ID, err)
	}

	s.hub.Broadcast(m.ID, Event{Name: EventRoundResolved, Data: RoundResolvedPayload{
		MatchID:       m.ID,
		Round:         round.RoundIndex,
		Choice1:       round.ChoiceAgent1,
		Choice2:       round.ChoiceAgent2,
		WinnerAgentID: round.WinnerAgentID,
		ByTimeout:     byTimeout,
		Agent1Wins:    st.Agent1Wins,
		Agent2Wins:    st.Agent2Wins,
	}})
	return true
}

// scheduleAdvance runs advance after the post-result cooldown.
func (s *MatchService) scheduleAdvance(matchID string) {
	if s.cfg.RoundCooldown <= 0 {
		s.advance(matchID)
		return
	}
	s.clock.AfterFunc(s.cfg.RoundCooldown, func() {
		if s.ctx.Err() != nil {
			return
		}
		s.advance(matchID)
	})
}

// advance settles the match if a side reached the winning count, otherwise
// opens the next round.
func (s *MatchService) advance(matchID string) {
	lm := s.get(matchID)
	if lm == nil {
		return
	}
	lm.mu.Lock()
	defer lm.mu.Unlock()

	st, m := lm.state, lm.match
	if lm.done || st.Open() {
		return
	}
	if w := st.Winner(); w != game.SideNone {
		s.settle(s.ctx, lm, w)
		return
	}

	st.OpenRound(st.Round+1, s.clock.Now(), s.cfg.RoundTimeout)
	ends := st.RoundEndsAt.UTC()
	m.CurrentRound = st.Round
	m.RoundEndsAt = &ends
	if err := s.store.UpdateMatch(s.ctx, m); err != nil {
		log.Printf("[ORCHESTRATOR] Persist round %d start of match %s: %v", st.Round, m.ID, err)
	}
	s.hub.Broadcast(m.ID, Event{Name: EventRoundStarted, Data: RoundStartedPayload{
		MatchID: m.ID,
		Round:   st.Round,
		EndsAt:  st.RoundEndsAt,
	}})
}

// settle ends the match with winner. An on-chain payout failure leaves the
// payout hash empty and does not block settlement. The caller holds lm.mu.
func (s *MatchService) settle(ctx context.Context, lm *liveMatch, winner game.Side) {
	st, m := lm.state, lm.match
	lm.done = true
	s.remove(m.ID)

	winnerID := st.AgentOf(winner)
	loserID := st.AgentOf(winner.Other())
	m.Status = models.MatchSettled
	m.WinnerAgentID = &winnerID
	m.Agent1Wins = st.Agent1Wins
	m.Agent2Wins = st.Agent2Wins
	m.RoundEndsAt = nil
	if st.LastByTimeout && st.MoveOf(winner.Other()) == game.NoMove {
		m.ForfeitAgentID = &loserID
	}
	ok, err := s.store.TransitionMatch(ctx, m, models.MatchPlaying)
	if err != nil {
		log.Printf("[ORCHESTRATOR] Settle match %s: %v", m.ID, err)
		return
	}
	if !ok {
		return
	}

	winnerAgent, err := s.store.GetAgent(ctx, winnerID)
	if err != nil {
		log.Printf("[ORCHESTRATOR] Load winner %s of match %s: %v", winnerID, m.ID, err)
	}
	loserAgent, err := s.store.GetAgent(ctx, loserID)
	if err != nil {
		log.Printf("[ORCHESTRATOR] Load loser %s of match %s: %v", loserID, m.ID, err)
	}

	if s.escrowEnabled() && m.HasEscrow() && winnerAgent.Wallet() != "" {
		hash, err := s.escrow.Resolve(ctx, m.ID, winnerAgent.Wallet())
		if err != nil {
			log.Printf("[ESCROW] Resolve match %s failed: %v", m.ID, err)
		} else {
			m.PayoutTxHash = &hash
			if err := s.store.UpdateMatch(ctx, m); err != nil {
				log.Printf("[ORCHESTRATOR] Save payout of match %s: %v", m.ID, err)
			}
		}
	}

	if winnerAgent != nil && loserAgent != nil {
		s.recordResult(ctx, m, winnerAgent, loserAgent)
	}

	log.Printf("[ORCHESTRATOR] Match %s settled: winner %s (%d-%d)", m.ID, winnerID, m.Agent1Wins, m.Agent2Wins)
	s.hub.Broadcast(m.ID, Event{Name: EventMatchEnded, Data: MatchEndedPayload{
		MatchID:      m.ID,
		Winner:       winnerID,
		Score:        Score{Agent1: m.Agent1Wins, Agent2: m.Agent2Wins},
		PayoutTxHash: m.PayoutTxHash,
	}})
	s.archiveMatch(ctx, m)
}

func (s *MatchService) recordResult(ctx context.Context, m *models.Match, winner, loser *models.Agent) {
	if winner.Elo == 0 && winner.Wins+winner.Losses == 0 {
		winner.Elo = game.DefaultRating
	}
	if loser.Elo == 0 && loser.Wins+loser.Losses == 0 {
		loser.Elo = game.DefaultRating
	}
	winner.Elo, loser.Elo = game.UpdateRatings(winner.Elo, loser.Elo, s.cfg.RatingK)
	winner.Wins++
	loser.Losses++
	if m.HasEscrow() {
		winner.TotalWagered = winner.TotalWagered.Add(m.WagerAmount)
		loser.TotalWagered = loser.TotalWagered.Add(m.WagerAmount)
		if m.PayoutTxHash != nil {
			winner.TotalWon = winner.TotalWon.Add(m.WagerAmount.Mul(decimalTwo))
		}
	}
	if err := s.store.SaveAgents(ctx, winner, loser); err != nil {
		log.Printf("[ORCHESTRATOR] Record result of match %s: %v", m.ID, err)
	}
}

// cancel moves m from status from to cancelled, attempts a refund and
// announces it. It reports false when another path already ended the match.
func (s *MatchService) cancel(ctx context.Context, m *models.Match, from models.MatchStatus, reason string) bool {
	m.Status = models.MatchCancelled
	m.CancelReason = &reason
	m.RoundEndsAt = nil
	m.RefundPending = s.escrowEnabled() && m.HasEscrow()
	ok, err := s.store.TransitionMatch(ctx, m, from)
	if err != nil {
		log.Printf("[ORCHESTRATOR] Cancel match %s (%s): %v", m.ID, reason, err)
		return false
	}
	if !ok {
		return false
	}

	s.refund(ctx, m)
	log.Printf("[ORCHESTRATOR] Match %s cancelled: %s", m.ID, reason)
	s.hub.Broadcast(m.ID, Event{Name: EventMatchCancelled, Data: MatchCancelledPayload{
		MatchID:      m.ID,
		Reason:       reason,
		RefundTxHash: m.RefundTxHash,
	}})
	s.archiveMatch(ctx, m)
	return true
}

// refund attempts cancelAndRefund for a cancelled match. A failure keeps the
// match pending unless the contract shows nothing left to refund.
func (s *MatchService) refund(ctx context.Context, m *models.Match) {
	if !m.RefundPending || !s.escrowEnabled() {
		return
	}
	hash, err := s.escrow.CancelAndRefund(ctx, m.ID)
	if err == nil {
		m.RefundTxHash = &hash
		m.RefundPending = false
	} else {
		log.Printf("[ESCROW] cancelAndRefund failed for match %s: %v", m.ID, err)
		d, derr := s.escrow.Deposits(ctx, m.ID)
		if errors.Is(derr, escrow.ErrMatchNotFound) || (derr == nil && d.Closed()) {
			m.RefundPending = false
		}
	}
	if err := s.store.UpdateMatch(ctx, m); err != nil {
		log.Printf("[ORCHESTRATOR] Save refund state of match %s: %v", m.ID, err)
	}
}

type abandonAction int

const (
	abandonAdvance abandonAction = iota
	abandonWait
	abandonCancel
)

func (s *MatchService) clearEmpty(matchID string) {
	s.mu.Lock()
	delete(s.emptySince, matchID)
	s.mu.Unlock()
}

// checkAbandoned tracks how long a match room has been empty.
func (s *MatchService) checkAbandoned(matchID string, now time.Time) abandonAction {
	populated := s.hub.RoomSize(matchID) > 0

	s.mu.Lock()
	defer s.mu.Unlock()
	if populated {
		delete(s.emptySince, matchID)
		return abandonAdvance
	}
	first, ok := s.emptySince[matchID]
	if !ok {
		s.emptySince[matchID] = now
		return abandonWait
	}
	if now.Sub(first) < s.cfg.AbandonGrace {
		return abandonWait
	}
	delete(s.emptySince, matchID)
	return abandonCancel
}

// SweepRounds closes rounds past their deadline and recovers playing matches
// that have no in-memory state.
func (s *MatchService) SweepRounds(ctx context.Context) {
	now := s.clock.Now()
	for _, id := range s.liveIDs() {
		lm := s.get(id)
		if lm == nil {
			continue
		}
		if s.sweepLive(ctx, lm, now) {
			s.scheduleAdvance(id)
		}
	}
	s.recoverOverdue(ctx, now)
}

func (s *MatchService) sweepLive(ctx context.Context, lm *liveMatch, now time.Time) bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if lm.done || !lm.state.Expired(now) {
		return false
	}
	if lm.state.NoSubmissions() {
		switch s.checkAbandoned(lm.match.ID, now) {
		case abandonWait:
			return false
		case abandonCancel:
			lm.done = true
			s.remove(lm.match.ID)
			s.cancel(ctx, lm.match, models.MatchPlaying, models.CancelAbandoned)
			return false
		}
	}
	return s.closeRound(ctx, lm, true)
}

func (s *MatchService) recoverOverdue(ctx context.Context, now time.Time) {
	stuck, err := s.store.OverdueRoundMatches(ctx, now)
	if err != nil {
		log.Printf("[SWEEP] Load overdue matches: %v", err)
		return
	}
	for i := range stuck {
		m := &stuck[i]
		if s.get(m.ID) != nil {
			continue
		}
		switch s.checkAbandoned(m.ID, now) {
		case abandonWait:
			continue
		case abandonCancel:
			s.cancel(ctx, m, models.MatchPlaying, models.CancelAbandoned)
			continue
		}
		s.resume(ctx, m)
	}
}

// resume rebuilds the in-memory state of a playing match from its record and
// rounds and reopens its next round.
func (s *MatchService) resume(ctx context.Context, m *models.Match) {
	rounds, err := s.store.ListRounds(ctx, m.ID)
	if err != nil {
		log.Printf("[SWEEP] Load rounds of match %s: %v", m.ID, err)
		return
	}
	st := game.Reconstruct(*m, rounds)
	lm := &liveMatch{match: m, state: st}
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if !s.putIfAbsent(m.ID, lm) {
		return
	}
	log.Printf("[SWEEP] Recovered match %s at round %d (%d-%d)", m.ID, st.Round, st.Agent1Wins, st.Agent2Wins)

	m.Agent1Wins = st.Agent1Wins
	m.Agent2Wins = st.Agent2Wins
	if w := st.Winner(); w != game.SideNone {
		s.settle(ctx, lm, w)
		return
	}

	st.OpenRound(st.Round, s.clock.Now(), s.cfg.RoundTimeout)
	ends := st.RoundEndsAt.UTC()
	m.CurrentRound = st.Round
	m.RoundEndsAt = &ends
	if err := s.store.UpdateMatch(ctx, m); err != nil {
		log.Printf("[SWEEP] Persist resumed match %s: %v", m.ID, err)
	}
	s.hub.Broadcast(m.ID, Event{Name: EventGameState, Data: snapshotOf(lm)})
	s.hub.Broadcast(m.ID, Event{Name: EventRoundStarted, Data: RoundStartedPayload{
		MatchID: m.ID,
		Round:   st.Round,
		EndsAt:  st.RoundEndsAt,
	}})
}

// SweepDeposits cancels matches whose deposit deadline passed and retries
// refunds that did not go through earlier.
func (s *MatchService) SweepDeposits(ctx context.Context) {
	pending, err := s.store.PendingRefundMatches(ctx)
	if err != nil {
		log.Printf("[SWEEP] Load pending refunds: %v", err)
	}
	for i := range pending {
		s.refund(ctx, &pending[i])
	}

	expired, err := s.store.ExpiredDepositMatches(ctx, s.clock.Now())
	if err != nil {
		log.Printf("[SWEEP] Load expired deposit matches: %v", err)
		return
	}
	for i := range expired {
		s.cancel(ctx, &expired[i], models.MatchWaitingDeposits, models.CancelDepositTimeout)
	}
}

// RecordDeposit stores the deposit transaction an agent reports for a match.
func (s *MatchService) RecordDeposit(ctx context.Context, agentID, matchID, txHash string) error {
	matchID = strings.TrimSpace(matchID)
	txHash = strings.TrimSpace(txHash)
	if matchID == "" || txHash == "" {
		return ErrInvalidInput
	}

	if lm := s.get(matchID); lm != nil {
		lm.mu.Lock()
		defer lm.mu.Unlock()
		if !lm.done {
			return s.applyDeposit(ctx, lm.match, agentID, txHash)
		}
	}

	m, err := s.store.GetMatch(ctx, matchID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrMatchNotFound
	}
	if err != nil {
		return fmt.Errorf("load match: %w", err)
	}
	if !depositOpen(m.Status) {
		return ErrMatchNotOpen
	}
	return s.applyDeposit(ctx, m, agentID, txHash)
}

func depositOpen(status models.MatchStatus) bool {
	return status == models.MatchWaitingDeposits || status == models.MatchPlaying
}

// applyDeposit writes only the caller's deposit column, and only while the
// stored match is still open and the column is empty. m is updated on success.
func (s *MatchService) applyDeposit(ctx context.Context, m *models.Match, agentID, txHash string) error {
	side := m.Participant(agentID)
	var slot **string
	switch side {
	case 1:
		slot = &m.Agent1DepositTxHash
	case 2:
		slot = &m.Agent2DepositTxHash
	default:
		return ErrNotParticipant
	}
	if *slot != nil {
		return ErrDepositRecorded
	}

	ok, err := s.store.SetDepositTx(ctx, m.ID, side, txHash)
	if err != nil {
		return fmt.Errorf("save deposit tx: %w", err)
	}
	if !ok {
		current, err := s.store.GetMatch(ctx, m.ID)
		if err != nil {
			return fmt.Errorf("load match: %w", err)
		}
		if !depositOpen(current.Status) {
			return ErrMatchNotOpen
		}
		return ErrDepositRecorded
	}
	*slot = &txHash
	return nil
}

// SendMessage relays one chat line per side per round to the match room.
func (s *MatchService) SendMessage(ctx context.Context, agentID, agentName, matchID, body string) error {
	body = strings.TrimSpace(body)
	if body == "" {
		return ErrEmptyMessage
	}
	if utf8.RuneCountInString(body) > s.cfg.ChatMaxLength {
		return fmt.Errorf("%w (max %d characters)", ErrMessageTooLong, s.cfg.ChatMaxLength)
	}
	lm := s.get(matchID)
	if lm == nil {
		return ErrNotPlaying
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()
	if lm.done {
		return ErrNotPlaying
	}
	side := lm.state.SideOf(agentID)
	if side == game.SideNone {
		return ErrNotParticipant
	}
	if err := lm.state.MarkChat(side); err != nil {
		return err
	}
	s.hub.Broadcast(matchID, Event{Name: EventMessage, Data: MessagePayload{
		AgentID:   agentID,
		AgentName: agentName,
		Side:      int(side),
		Round:     lm.state.Round,
		Body:      body,
	}})
	return nil
}

func (s *MatchService) archiveMatch(ctx context.Context, m *models.Match) {
	if s.archive == nil {
		return
	}
	rounds, err := s.store.ListRounds(ctx, m.ID)
	if err != nil {
		log.Printf("[ARCHIVE] Load rounds of match %s: %v", m.ID, err)
		return
	}
	if err := s.archive.ArchiveMatch(ctx, m, rounds); err != nil {
		log.Printf("[ARCHIVE] Match %s: %v", m.ID, err)
	}
}
