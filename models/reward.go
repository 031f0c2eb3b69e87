package models

import "time"

// RewardEventType is the domain event category a rule listens for
type RewardEventType string

const (
	RewardEventRegistration RewardEventType = "registration"
	RewardEventActivation   RewardEventType = "activation"
	RewardEventMilestone    RewardEventType = "milestone"
)

// RewardKind indicates what a matched rule grants
type RewardKind string

const (
	RewardKindCredits RewardKind = "credits"
)

// RewardRule is one condition→action mapping. Rules are evaluated in Priority
// descending order; all condition clauses must match (AND semantics).
// Conditions is a JSON document parsed by the engine on load.
type RewardRule struct {
	ID           string          `gorm:"primaryKey;type:uuid;not null" json:"id"`
	Name         string          `gorm:"not null" json:"name"`
	EventType    RewardEventType `gorm:"type:varchar(32);index;not null" json:"event_type"`
	RewardType   RewardKind      `gorm:"type:varchar(16);not null" json:"reward_type"`
	RewardAmount int64           `gorm:"not null" json:"reward_amount"`
	Conditions   string          `gorm:"type:text" json:"conditions"` // JSON: category, priority_tag, keywords, predicate
	ThrottleSecs int             `gorm:"not null;default:0" json:"throttle_secs"`
	DelaySecs    int             `gorm:"not null;default:0" json:"delay_secs"`
	Priority     int             `gorm:"index;not null;default:0" json:"priority"`
	// no DB default: default:true would override an explicit false on insert
	IsActive bool `gorm:"not null" json:"is_active"`

	Timestamps
}

func (RewardRule) TableName() string { return "reward_rules" }

// RewardActivity records every dispatched (or approval-routed) rule firing.
type RewardActivity struct {
	ID        string    `gorm:"primaryKey;type:uuid;not null" json:"id"`
	RuleID    string    `gorm:"index;not null" json:"rule_id"`
	RuleKey   string    `gorm:"type:varchar(128);index" json:"rule_key"` // slugified rule name
	UserID    string    `gorm:"index;not null" json:"user_id"`
	EventType string    `gorm:"type:varchar(32);not null" json:"event_type"`
	Amount    int64     `gorm:"not null" json:"amount"`
	Outcome   string    `gorm:"type:varchar(32);not null" json:"outcome"` // credited | pending_approval
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (RewardActivity) TableName() string { return "reward_activities" }

// ApprovalStatus is the workflow state of a routed reward
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
)

// RewardApproval holds a reward awaiting admin review. approved/rejected are
// terminal; approval and the matching CreditRecord are written in one
// transaction so a reward is never granted without an approval record.
type RewardApproval struct {
	ID           string         `gorm:"primaryKey;type:uuid;not null" json:"id"`
	UserID       string         `gorm:"index;not null" json:"user_id"`
	RuleID       string         `gorm:"index" json:"rule_id,omitempty"`
	RewardType   RewardKind     `gorm:"type:varchar(16);not null" json:"reward_type"`
	RewardAmount int64          `gorm:"not null" json:"reward_amount"`
	Status       ApprovalStatus `gorm:"type:varchar(16);index;not null;default:'pending'" json:"status"`
	AdminID      *string        `json:"admin_id,omitempty"`
	Notes        string         `gorm:"type:text" json:"notes,omitempty"`
	DecidedAt    *time.Time     `json:"decided_at,omitempty"`

	Timestamps
}

func (RewardApproval) TableName() string { return "reward_approvals" }
