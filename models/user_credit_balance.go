package models

import "time"

// UserCreditBalance caches the four ledger aggregates per user. Rebuilt after
// every ledger mutation for that user; a stale or missing row is recomputed
// from credit_records on read.
type UserCreditBalance struct {
	UserID           string    `gorm:"primaryKey;not null" json:"user_id"`
	TotalEarned      int64     `gorm:"not null;default:0" json:"total_earned"`
	TotalUsed        int64     `gorm:"not null;default:0" json:"total_used"`
	TotalExpired     int64     `gorm:"not null;default:0" json:"total_expired"`
	AvailableCredits int64     `gorm:"not null;default:0" json:"available_credits"`
	ExpiringCredits  int64     `gorm:"not null;default:0" json:"expiring_credits"` // expiring within 30d
	LastUpdated      time.Time `gorm:"not null" json:"last_updated"`
}

func (UserCreditBalance) TableName() string { return "user_credit_balances" }
