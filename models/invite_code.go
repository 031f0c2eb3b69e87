package models

import (
	"time"

	"gorm.io/gorm"
)

// InviteCode is a shareable registration token issued by an inviter.
// Codes are never deleted; they expire, hit their usage cap, or get deactivated.
type InviteCode struct {
	ID        string `gorm:"primaryKey;type:uuid;not null" json:"id"`
	Code      string `gorm:"type:varchar(8);uniqueIndex;not null" json:"code"` // 8 chars, [A-Z0-9]
	InviterID string `gorm:"index;not null" json:"inviter_id"`                 // ExternalUserID

	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
	// no DB default: a default:true tag would make GORM drop an explicit
	// false from the INSERT; Generate always sets the value
	IsActive   bool `gorm:"not null" json:"is_active"`
	UsageCount int       `gorm:"not null;default:0" json:"usage_count"`
	MaxUsage   int       `gorm:"not null;default:100" json:"max_usage"`

	Timestamps
}

func (InviteCode) TableName() string { return "invite_codes" }

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
