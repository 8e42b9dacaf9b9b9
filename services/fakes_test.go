package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"rps-arena/escrow"
	"rps-arena/models"
	"rps-arena/store"
)

// memStore is an in-memory Store. It hands out copies so callers only see
// what was written back.
type memStore struct {
	mu      sync.Mutex
	agents  map[string]models.Agent
	matches map[string]models.Match
	rounds  map[string][]models.Round

	failCreateMatch error
	failCreateRound error
}

func newMemStore() *memStore {
	return &memStore{
		agents:  make(map[string]models.Agent),
		matches: make(map[string]models.Match),
		rounds:  make(map[string][]models.Round),
	}
}

func (s *memStore) addAgent(a models.Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[a.ID] = a
}

func (s *memStore) agent(id string) models.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agents[id]
}

func (s *memStore) match(id string) models.Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matches[id]
}

func (s *memStore) putMatch(m models.Match) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches[m.ID] = m
}

func (s *memStore) roundsOf(id string) []models.Round {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Round(nil), s.rounds[id]...)
}

func (s *memStore) GetAgent(_ context.Context, id string) (*models.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &a, nil
}

func (s *memStore) AgentByAPIKeyHash(_ context.Context, hash string) (*models.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.agents {
		if a.APIKeyHash == hash {
			return &a, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *memStore) SaveAgents(_ context.Context, agents ...*models.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range agents {
		s.agents[a.ID] = *a
	}
	return nil
}

func (s *memStore) CreateMatch(_ context.Context, m *models.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreateMatch != nil {
		return s.failCreateMatch
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	s.matches[m.ID] = *m
	return nil
}

func (s *memStore) GetMatch(_ context.Context, id string) (*models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &m, nil
}

func (s *memStore) UpdateMatch(_ context.Context, m *models.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.matches[m.ID]; !ok {
		return store.ErrNotFound
	}
	s.matches[m.ID] = keepOwned(*m, s.matches[m.ID], true)
	return nil
}

// keepOwned carries over the columns a plain update must not overwrite.
func keepOwned(next, cur models.Match, status bool) models.Match {
	if status {
		next.Status = cur.Status
	}
	next.Agent1DepositTxHash = cur.Agent1DepositTxHash
	next.Agent2DepositTxHash = cur.Agent2DepositTxHash
	return next
}

func (s *memStore) TransitionMatch(_ context.Context, m *models.Match, from models.MatchStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.matches[m.ID]
	if !ok || cur.Status != from {
		return false, nil
	}
	s.matches[m.ID] = keepOwned(*m, cur, false)
	return true, nil
}

func (s *memStore) SetDepositTx(_ context.Context, matchID string, side int, txHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[matchID]
	if !ok || (m.Status != models.MatchWaitingDeposits && m.Status != models.MatchPlaying) {
		return false, nil
	}
	slot := &m.Agent1DepositTxHash
	if side == 2 {
		slot = &m.Agent2DepositTxHash
	}
	if *slot != nil {
		return false, nil
	}
	*slot = &txHash
	s.matches[matchID] = m
	return true, nil
}

func (s *memStore) CreateRound(_ context.Context, r *models.Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreateRound != nil {
		return s.failCreateRound
	}
	for _, existing := range s.rounds[r.MatchID] {
		if existing.RoundIndex == r.RoundIndex {
			return fmt.Errorf("round %d of match %s exists", r.RoundIndex, r.MatchID)
		}
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	s.rounds[r.MatchID] = append(s.rounds[r.MatchID], *r)
	return nil
}

func (s *memStore) ListRounds(_ context.Context, matchID string) ([]models.Round, error) {
	return s.roundsOf(matchID), nil
}

func (s *memStore) filter(keep func(models.Match) bool) []models.Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Match
	for _, m := range s.matches {
		if keep(m) {
			out = append(out, m)
		}
	}
	return out
}

func (s *memStore) ExpiredDepositMatches(_ context.Context, now time.Time) ([]models.Match, error) {
	return s.filter(func(m models.Match) bool {
		return m.Status == models.MatchWaitingDeposits && m.DepositTimeoutAt.Before(now)
	}), nil
}

func (s *memStore) OverdueRoundMatches(_ context.Context, now time.Time) ([]models.Match, error) {
	return s.filter(func(m models.Match) bool {
		return m.Status == models.MatchPlaying && m.RoundEndsAt != nil && m.RoundEndsAt.Before(now)
	}), nil
}

func (s *memStore) PendingRefundMatches(_ context.Context) ([]models.Match, error) {
	return s.filter(func(m models.Match) bool {
		return m.Status == models.MatchCancelled && m.RefundPending
	}), nil
}

// fakeEscrow records contract calls.
type fakeEscrow struct {
	mu         sync.Mutex
	configured bool
	deposits   map[string]escrow.Deposits

	createErr  error
	resolveErr error
	refundErr  error

	created  []string
	resolved map[string]string
	refunds  []string
}

func newFakeEscrow(configured bool) *fakeEscrow {
	return &fakeEscrow{
		configured: configured,
		deposits:   make(map[string]escrow.Deposits),
		resolved:   make(map[string]string),
	}
}

func (f *fakeEscrow) setDeposits(matchID string, d escrow.Deposits) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deposits[matchID] = d
}

func (f *fakeEscrow) setRefundErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refundErr = err
}

func (f *fakeEscrow) refundCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.refunds)
}

func (f *fakeEscrow) Configured() bool { return f.configured }

func (f *fakeEscrow) CreateMatch(_ context.Context, matchID, _, _ string, _ *big.Int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, matchID)
	return "0xcreate-" + matchID, nil
}

func (f *fakeEscrow) Deposits(_ context.Context, matchID string) (escrow.Deposits, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deposits[matchID]
	if !ok {
		return escrow.Deposits{}, escrow.ErrMatchNotFound
	}
	return d, nil
}

func (f *fakeEscrow) Resolve(_ context.Context, matchID, winner string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolveErr != nil {
		return "", f.resolveErr
	}
	f.resolved[matchID] = winner
	return "0xpayout-" + matchID, nil
}

func (f *fakeEscrow) CancelAndRefund(_ context.Context, matchID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refunds = append(f.refunds, matchID)
	if f.refundErr != nil {
		return "", f.refundErr
	}
	return "0xrefund-" + matchID, nil
}

type sentEvent struct {
	target string
	event  Event
}

// fakeHub tracks room membership by agent id and records every event.
type fakeHub struct {
	mu     sync.Mutex
	rooms  map[string]map[string]bool
	events []sentEvent
}

func newFakeHub() *fakeHub {
	return &fakeHub{rooms: make(map[string]map[string]bool)}
}

func (h *fakeHub) join(matchID string, agentIDs ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[matchID] == nil {
		h.rooms[matchID] = make(map[string]bool)
	}
	for _, id := range agentIDs {
		h.rooms[matchID][id] = true
	}
}

func (h *fakeHub) leaveAll(matchID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms, matchID)
}

func (h *fakeHub) Broadcast(matchID string, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, sentEvent{target: matchID, event: ev})
}

func (h *fakeHub) SendSession(sessionID string, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, sentEvent{target: sessionID, event: ev})
}

func (h *fakeHub) RoomSize(matchID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[matchID])
}

func (h *fakeHub) InRoom(matchID, agentID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rooms[matchID][agentID]
}

func (h *fakeHub) count(target, name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, e := range h.events {
		if e.target == target && e.event.Name == name {
			n++
		}
	}
	return n
}

func (h *fakeHub) last(target, name string) (Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.events) - 1; i >= 0; i-- {
		if h.events[i].target == target && h.events[i].event.Name == name {
			return h.events[i].event, true
		}
	}
	return Event{}, false
}

type fakeArchiver struct {
	mu       sync.Mutex
	archived map[string]int
}

func (a *fakeArchiver) ArchiveMatch(_ context.Context, m *models.Match, rounds []models.Round) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.archived == nil {
		a.archived = make(map[string]int)
	}
	a.archived[m.ID] = len(rounds)
	return nil
}

var errChain = errors.New("rpc unavailable")
