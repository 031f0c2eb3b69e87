package models

import "time"

// InviteRegistration binds an invitee to the inviter whose code they used.
// The uniqueIndex on InviteeID enforces at-most-once binding at the store
// layer, closing the read-then-write race between concurrent registrations.
type InviteRegistration struct {
	ID           string `gorm:"primaryKey;type:uuid;not null" json:"id"`
	InviteCodeID string `gorm:"index;not null" json:"invite_code_id"`
	InviterID    string `gorm:"index;not null" json:"inviter_id"`
	InviteeID    string `gorm:"uniqueIndex;not null" json:"invitee_id"`

	RegisteredAt   time.Time  `gorm:"not null" json:"registered_at"`
	IsActivated    bool       `gorm:"not null;default:false" json:"is_activated"`
	ActivatedAt    *time.Time `json:"activated_at,omitempty"`
	RewardsClaimed bool       `gorm:"not null;default:false" json:"rewards_claimed"`

	Timestamps
}

func (InviteRegistration) TableName() string { return "invite_registrations" }
