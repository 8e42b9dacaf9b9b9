package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Agent is a registered player. Registration happens elsewhere; this service
// only reads agents and updates their results at settlement.
type Agent struct {
	ID            string  `gorm:"primaryKey;type:uuid" json:"id"`
	Name          string  `gorm:"not null" json:"name"`
	APIKeyHash    string  `gorm:"uniqueIndex;not null" json:"-"`
	WalletAddress *string `gorm:"type:varchar(64)" json:"wallet_address,omitempty"`

	Wins   int `gorm:"not null;default:0" json:"wins"`
	Losses int `gorm:"not null;default:0" json:"losses"`
	Elo    int `gorm:"not null;default:1000" json:"elo"`

	TotalWagered decimal.Decimal `gorm:"type:numeric(38,18);not null;default:0" json:"total_wagered"`
	TotalWon     decimal.Decimal `gorm:"type:numeric(38,18);not null;default:0" json:"total_won"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (a *Agent) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// Wallet returns the trimmed wallet address, or "" when none is on file.
func (a *Agent) Wallet() string {
	if a == nil || a.WalletAddress == nil {
		return ""
	}
	return trimmed(*a.WalletAddress)
}
