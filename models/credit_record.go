package models

import "time"

// CreditType classifies a ledger entry by the sign convention it carries
type CreditType string

const (
	CreditTypeEarned   CreditType = "earned"   // positive
	CreditTypeUsed     CreditType = "used"     // negative mirror of consumed earned rows
	CreditTypeExpired  CreditType = "expired"  // negative mirror written by the sweep
	CreditTypeRefunded CreditType = "refunded" // positive
)

// CreditSource identifies what produced an earned entry
type CreditSource string

const (
	CreditSourceInvite    CreditSource = "invite"
	CreditSourceActivity  CreditSource = "activity"
	CreditSourceMilestone CreditSource = "milestone"
	CreditSourceAdmin     CreditSource = "admin"
	CreditSourceRefund    CreditSource = "refund"
)

// CreditRecord is one signed entry in the append-only credit ledger.
// Available balance is always derived (sum of unused, unexpired earned rows),
// never stored as a single mutable field. The only in-place mutation allowed
// on an earned row is shrinking Amount when it is partially consumed.
type CreditRecord struct {
	ID          string       `gorm:"primaryKey;type:uuid;not null" json:"id"`
	UserID      string       `gorm:"index;not null" json:"user_id"`
	Amount      int64        `gorm:"not null" json:"amount"` // signed
	Type        CreditType   `gorm:"type:varchar(16);index;not null" json:"type"`
	Source      CreditSource `gorm:"type:varchar(32);not null" json:"source"`
	SourceID    string       `gorm:"index" json:"source_id,omitempty"` // registration / approval / rule id
	Description string       `gorm:"type:text" json:"description"`
	ExpiresAt   *time.Time   `gorm:"index" json:"expires_at,omitempty"`
	CreatedAt   time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UsedAt      *time.Time   `json:"used_at,omitempty"`
}

func (CreditRecord) TableName() string { return "credit_records" }

// CreditUsage is the audit row written once per debit, covering the whole
// amount regardless of how many earned rows the debit was split across.
type CreditUsage struct {
	ID        string    `gorm:"primaryKey;type:uuid;not null" json:"id"`
	UserID    string    `gorm:"index;not null" json:"user_id"`
	Amount    int64     `gorm:"not null" json:"amount"`
	Purpose   string    `gorm:"type:varchar(64);not null" json:"purpose"`
	Metadata  string    `gorm:"type:text" json:"metadata,omitempty"` // JSON blob
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (CreditUsage) TableName() string { return "credit_usage" }
