// services/invite_code_service.go
package services

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"regexp"
	"time"

	"referral-ledger-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	codeAlphabet        = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength          = 8
	maxGenerateAttempts = 10
	defaultMaxUsage     = 100
)

// defaultCodeValidity is how long a fresh code accepts registrations.
const defaultCodeValidityMonths = 6

var codePattern = regexp.MustCompile(`^[A-Z0-9]{8}$`)

type InviteCodeService struct {
	DB *gorm.DB
}

func NewInviteCodeService(db *gorm.DB) *InviteCodeService {
	return &InviteCodeService{DB: db}
}

// CodeValidation is the typed result of Validate. Failures are values, not
// errors, so callers can branch on ErrorCode and render Message directly.
type CodeValidation struct {
	Valid     bool               `json:"valid"`
	ErrorCode ErrKind            `json:"error_code,omitempty"`
	Message   string             `json:"message,omitempty"`
	Code      *models.InviteCode `json:"code,omitempty"`
}

func invalidCode(kind ErrKind, format string, args ...interface{}) *CodeValidation {
	return &CodeValidation{Valid: false, ErrorCode: kind, Message: fmt.Sprintf(format, args...)}
}

func randomCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, codeLength)
	for i, b := range buf {
		out[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(out), nil
}

// Generate issues a new invite code for inviterID. Uniqueness is pre-checked
// with a lookup and still backed by the unique index on invite_codes.code; a
// collision or duplicate-key insert just burns one of the bounded attempts.
// At 36^8 codes, running out of attempts signals store contention, not
// codespace exhaustion, so the failure is surfaced as transient.
func (s *InviteCodeService) Generate(inviterID string) (*models.InviteCode, error) {
	for attempt := 1; attempt <= maxGenerateAttempts; attempt++ {
		code, err := randomCode()
		if err != nil {
			return nil, err
		}

		var count int64
		if err := s.DB.Model(&models.InviteCode{}).Where("code = ?", code).Count(&count).Error; err != nil {
			return nil, err
		}
		if count > 0 {
			log.Printf("[InviteCodes] code collision on attempt %d/%d for inviter %s", attempt, maxGenerateAttempts, inviterID)
			continue
		}

		ic := &models.InviteCode{
			ID:         uuid.NewString(),
			Code:       code,
			InviterID:  inviterID,
			ExpiresAt:  time.Now().AddDate(0, defaultCodeValidityMonths, 0),
			IsActive:   true,
			UsageCount: 0,
			MaxUsage:   defaultMaxUsage,
		}
		if err := s.DB.Create(ic).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				// lost the race to a concurrent Generate; retry
				log.Printf("[InviteCodes] duplicate-key insert on attempt %d/%d for inviter %s", attempt, maxGenerateAttempts, inviterID)
				continue
			}
			return nil, err
		}
		return ic, nil
	}

	log.Printf("[InviteCodes] generation exhausted after %d attempts for inviter %s", maxGenerateAttempts, inviterID)
	return nil, domainErr(ErrCodeGenerationExhausted, "could not generate a unique invite code, please retry")
}

// Validate runs the ordered checks: format, not-found, expired, inactive,
// usage limit. Only full success returns the hydrated code.
func (s *InviteCodeService) Validate(code string) (*CodeValidation, error) {
	if !codePattern.MatchString(code) {
		return invalidCode(ErrInvalidFormat, "invite code must be 8 characters A-Z or 0-9"), nil
	}

	var ic models.InviteCode
	if err := s.DB.Where("code = ?", code).First(&ic).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return invalidCode(ErrNotFound, "invite code %s does not exist", code), nil
		}
		return nil, err
	}

	if time.Now().After(ic.ExpiresAt) {
		return invalidCode(ErrExpired, "invite code %s expired on %s", code, ic.ExpiresAt.Format("2006-01-02")), nil
	}
	if !ic.IsActive {
		return invalidCode(ErrInactive, "invite code %s has been deactivated", code), nil
	}
	if ic.UsageCount >= ic.MaxUsage {
		return invalidCode(ErrUsageLimitExceeded, "invite code %s reached its usage limit of %d", code, ic.MaxUsage), nil
	}

	return &CodeValidation{Valid: true, Code: &ic}, nil
}

// Deactivate turns a code off. The conditional WHERE doubles as the ownership
// check, and the is_active guard makes a repeat call report false instead of
// erroring.
func (s *InviteCodeService) Deactivate(codeID, ownerID string) (bool, error) {
	res := s.DB.Model(&models.InviteCode{}).
		Where("id = ? AND inviter_id = ? AND is_active = ?", codeID, ownerID, true).
		Update("is_active", false)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListCodes returns the inviter's codes, newest first.
func (s *InviteCodeService) ListCodes(inviterID string) ([]models.InviteCode, error) {
	var codes []models.InviteCode
	err := s.DB.Where("inviter_id = ?", inviterID).
		Order("created_at DESC").
		Find(&codes).Error
	return codes, err
}
