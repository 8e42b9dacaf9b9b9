// Package store is the durable record of agents, matches and rounds.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"rps-arena/models"
)

var ErrNotFound = errors.New("record not found")

// GormStore persists the arena records with gorm.
type GormStore struct {
	DB *gorm.DB
}

func New(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

// Migrate creates or updates the tables this service owns.
func (s *GormStore) Migrate() error {
	return s.DB.AutoMigrate(&models.Agent{}, &models.Match{}, &models.Round{})
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *GormStore) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	var a models.Agent
	if err := s.DB.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (s *GormStore) AgentByAPIKeyHash(ctx context.Context, hash string) (*models.Agent, error) {
	var a models.Agent
	if err := s.DB.WithContext(ctx).Where("api_key_hash = ?", hash).First(&a).Error; err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

// SaveAgents writes the given agents in one transaction.
func (s *GormStore) SaveAgents(ctx context.Context, agents ...*models.Agent) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, a := range agents {
			if err := tx.Save(a).Error; err != nil {
				return fmt.Errorf("save agent %s: %w", a.ID, err)
			}
		}
		return nil
	})
}

func (s *GormStore) CreateMatch(ctx context.Context, m *models.Match) error {
	return s.DB.WithContext(ctx).Create(m).Error
}

func (s *GormStore) GetMatch(ctx context.Context, id string) (*models.Match, error) {
	var m models.Match
	if err := s.DB.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// depositColumns are written only by SetDepositTx.
var depositColumns = []string{"agent1_deposit_tx_hash", "agent2_deposit_tx_hash"}

// UpdateMatch writes the score, deadline and settlement columns of m. Status
// changes go through TransitionMatch and deposit hashes through SetDepositTx,
// so a stale copy cannot revert either.
func (s *GormStore) UpdateMatch(ctx context.Context, m *models.Match) error {
	return s.DB.WithContext(ctx).
		Model(m).
		Select("*").
		Omit(append([]string{"id", "created_at", "status"}, depositColumns...)...).
		Updates(m).Error
}

// TransitionMatch writes m only if the stored status still equals from. It
// reports whether the row was updated, which makes status changes exactly-once.
func (s *GormStore) TransitionMatch(ctx context.Context, m *models.Match, from models.MatchStatus) (bool, error) {
	res := s.DB.WithContext(ctx).
		Model(m).
		Where("status = ?", from).
		Select("*").
		Omit(append([]string{"id", "created_at"}, depositColumns...)...).
		Updates(m)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SetDepositTx stores the deposit hash for side 1 or 2 while the match is
// still open and no hash is recorded for that side yet.
func (s *GormStore) SetDepositTx(ctx context.Context, matchID string, side int, txHash string) (bool, error) {
	if side != 1 && side != 2 {
		return false, fmt.Errorf("invalid side %d", side)
	}
	col := depositColumns[side-1]
	res := s.DB.WithContext(ctx).
		Model(&models.Match{}).
		Where("id = ? AND status IN ? AND "+col+" IS NULL", matchID,
			[]models.MatchStatus{models.MatchWaitingDeposits, models.MatchPlaying}).
		Update(col, txHash)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// CreateRound inserts a resolved round. The (match_id, round_index) unique
// index rejects a second resolution of the same round.
func (s *GormStore) CreateRound(ctx context.Context, r *models.Round) error {
	return s.DB.WithContext(ctx).Create(r).Error
}

func (s *GormStore) ListRounds(ctx context.Context, matchID string) ([]models.Round, error) {
	var rounds []models.Round
	err := s.DB.WithContext(ctx).
		Where("match_id = ?", matchID).
		Order("round_index ASC").
		Find(&rounds).Error
	return rounds, err
}

// ExpiredDepositMatches lists matches still waiting for deposits past their deadline.
func (s *GormStore) ExpiredDepositMatches(ctx context.Context, now time.Time) ([]models.Match, error) {
	var matches []models.Match
	err := s.DB.WithContext(ctx).
		Where("status = ? AND deposit_timeout_at < ?", models.MatchWaitingDeposits, now).
		Order("deposit_timeout_at ASC").
		Find(&matches).Error
	return matches, err
}

// OverdueRoundMatches lists playing matches whose round deadline has passed.
func (s *GormStore) OverdueRoundMatches(ctx context.Context, now time.Time) ([]models.Match, error) {
	var matches []models.Match
	err := s.DB.WithContext(ctx).
		Where("status = ? AND round_ends_at IS NOT NULL AND round_ends_at < ?", models.MatchPlaying, now).
		Find(&matches).Error
	return matches, err
}

// PendingRefundMatches lists cancelled matches whose on-chain refund has not gone through.
func (s *GormStore) PendingRefundMatches(ctx context.Context) ([]models.Match, error) {
	var matches []models.Match
	err := s.DB.WithContext(ctx).
		Where("status = ? AND refund_pending = ?", models.MatchCancelled, true).
		Find(&matches).Error
	return matches, err
}
