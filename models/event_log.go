package models

import "time"

// InviteEventLog is the best-effort audit trail for registration-flow events.
// Rows also feed the anti-abuse scorer (same-IP counts, registration cadence),
// so IP/user-agent/device metadata is denormalized into indexed columns.
type InviteEventLog struct {
	ID        string    `gorm:"primaryKey;type:uuid;not null" json:"id"`
	UserID    string    `gorm:"index;not null" json:"user_id"`
	EventType string    `gorm:"type:varchar(32);index;not null" json:"event_type"` // registered | activated | code_generated | share
	IPAddress string    `gorm:"type:varchar(45);index" json:"ip_address,omitempty"`
	UserAgent string    `gorm:"type:text" json:"user_agent,omitempty"`
	DeviceID  string    `gorm:"type:varchar(128)" json:"device_id,omitempty"`
	RiskScore float64   `json:"risk_score"`
	Context   string    `gorm:"type:text" json:"context,omitempty"` // JSON blob
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (InviteEventLog) TableName() string { return "invite_event_logs" }
