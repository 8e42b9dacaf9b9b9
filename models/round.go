package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Round is written once, when a round resolves. A nil choice means that side
// never submitted; a nil winner is a draw.
type Round struct {
	ID            string    `gorm:"primaryKey;type:uuid" json:"id"`
	MatchID       string    `gorm:"type:uuid;not null;uniqueIndex:idx_round_match_index" json:"match_id"`
	RoundIndex    int       `gorm:"not null;uniqueIndex:idx_round_match_index" json:"round_index"`
	ChoiceAgent1  *string   `gorm:"type:varchar(16)" json:"choice_agent1"`
	ChoiceAgent2  *string   `gorm:"type:varchar(16)" json:"choice_agent2"`
	WinnerAgentID *string   `gorm:"type:uuid" json:"winner_agent_id"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (r *Round) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
