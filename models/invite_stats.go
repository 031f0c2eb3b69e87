package models

import "time"

// InviteStats caches per-user referral counters (denormalized for performance).
// Always rederivable from invite_codes / invite_registrations / credit_records,
// so refresh failures are logged and swallowed, never escalated.
type InviteStats struct {
	UserID                  string    `gorm:"primaryKey;not null" json:"user_id"`
	TotalInvites            int64     `gorm:"not null;default:0" json:"total_invites"`
	SuccessfulRegistrations int64     `gorm:"not null;default:0" json:"successful_registrations"`
	ActiveInvitees          int64     `gorm:"not null;default:0" json:"active_invitees"`
	TotalRewardsEarned      int64     `gorm:"not null;default:0" json:"total_rewards_earned"`
	LastUpdated             time.Time `gorm:"not null" json:"last_updated"`
}

func (InviteStats) TableName() string { return "invite_stats" }

// ShareStats tracks invite-link share/click counters per platform.
type ShareStats struct {
	ID           string     `gorm:"primaryKey;type:uuid;not null" json:"id"`
	UserID       string     `gorm:"index:idx_share_user_platform,unique;not null" json:"user_id"`
	Platform     string     `gorm:"index:idx_share_user_platform,unique;type:varchar(32);not null" json:"platform"`
	ShareCount   int64      `gorm:"not null;default:0" json:"share_count"`
	ClickCount   int64      `gorm:"not null;default:0" json:"click_count"`
	LastSharedAt *time.Time `json:"last_shared_at,omitempty"`

	Timestamps
}

func (ShareStats) TableName() string { return "share_stats" }
