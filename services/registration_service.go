// services/registration_service.go
package services

import (
	"errors"
	"log"
	"time"

	"referral-ledger-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RegistrationMeta carries the request-level signals persisted to the event
// log and fed to the anti-abuse scorer.
type RegistrationMeta struct {
	IPAddress string
	UserAgent string
	DeviceID  string
}

// Advisory reports the best-effort side work that ran after the registration
// transaction committed. Failures here never undo the registration; tests can
// assert the primary outcome independently of advisory outcomes.
type Advisory struct {
	StatsRefreshed   bool `json:"stats_refreshed"`
	RewardsEvaluated bool `json:"rewards_evaluated"`
	EventLogged      bool `json:"event_logged"`
}

// RegisterResult splits the primary outcome (the bound registration) from the
// advisory refresh outcomes.
type RegisterResult struct {
	Registration *models.InviteRegistration `json:"registration"`
	RiskScore    float64                    `json:"risk_score"`
	Advisory     Advisory                   `json:"advisory"`
}

// RegistrationService drives the none → validated → bound → activated state
// machine. Everything after validation happens in one store transaction; the
// stats/reward side work runs after commit and is never allowed to fail the
// registration.
type RegistrationService struct {
	DB      *gorm.DB
	Codes   *InviteCodeService
	Stats   *StatsService
	Rewards *RewardService

	// statsQueue, when set, hands refreshes to the background worker instead
	// of recomputing inline.
	statsQueue chan<- string
}

func NewRegistrationService(db *gorm.DB, codes *InviteCodeService, stats *StatsService, rewards *RewardService) *RegistrationService {
	return &RegistrationService{DB: db, Codes: codes, Stats: stats, Rewards: rewards}
}

// SetStatsQueue routes stats refreshes through the given channel.
func (s *RegistrationService) SetStatsQueue(ch chan<- string) {
	s.statsQueue = ch
}

// Register binds inviteeID to the inviter behind code, exactly once.
// Steps 1-4 of the flow are atomic; a duplicate invitee or exhausted code
// rolls the whole transaction back so a half-bound registration never
// persists.
func (s *RegistrationService) Register(code, inviteeID string, meta RegistrationMeta) (*RegisterResult, error) {
	validation, err := s.Codes.Validate(code)
	if err != nil {
		return nil, err
	}
	if !validation.Valid {
		return nil, domainErr(validation.ErrorCode, "%s", validation.Message)
	}
	ic := validation.Code

	if ic.InviterID == inviteeID {
		return nil, domainErr(ErrSelfInviteAttempt, "you cannot register with your own invite code")
	}

	var existing int64
	if err := s.DB.Model(&models.InviteRegistration{}).
		Where("invitee_id = ?", inviteeID).
		Count(&existing).Error; err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, domainErr(ErrAlreadyRegistered, "user %s is already bound to an inviter", inviteeID)
	}

	reg := &models.InviteRegistration{
		ID:           uuid.NewString(),
		InviteCodeID: ic.ID,
		InviterID:    ic.InviterID,
		InviteeID:    inviteeID,
		RegisteredAt: time.Now(),
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(reg).Error; err != nil {
			return err
		}

		// relative increment, guarded so a concurrent burst cannot push the
		// code past its cap between our validate and this write
		res := tx.Model(&models.InviteCode{}).
			Where("id = ? AND usage_count < max_usage", ic.ID).
			UpdateColumn("usage_count", gorm.Expr("usage_count + ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domainErr(ErrUsageLimitExceeded, "invite code %s reached its usage limit of %d", ic.Code, ic.MaxUsage)
		}
		return nil
	})
	if err != nil {
		// the unique index on invitee_id closes the pre-check race
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, domainErr(ErrAlreadyRegistered, "user %s is already bound to an inviter", inviteeID)
		}
		return nil, err
	}

	result := &RegisterResult{Registration: reg}
	s.afterRegistration(result, meta)
	return result, nil
}

// afterRegistration runs the best-effort side work: risk scoring, event
// logging, stats refresh, reward evaluation. Errors are logged and swallowed.
func (s *RegistrationService) afterRegistration(result *RegisterResult, meta RegistrationMeta) {
	reg := result.Registration
	result.RiskScore = RiskScore(CollectRiskFactors(s.DB, meta))

	result.Advisory.EventLogged = s.Stats.LogEvent(reg.InviteeID, "registered", meta, result.RiskScore, map[string]interface{}{
		"inviter_id":     reg.InviterID,
		"invite_code_id": reg.InviteCodeID,
	})

	result.Advisory.StatsRefreshed = s.refreshStats(reg.InviterID)

	if _, err := s.Rewards.Evaluate(RewardEvent{
		Type:      models.RewardEventRegistration,
		Category:  "referral",
		UserID:    reg.InviterID,
		SourceID:  reg.ID,
		Payload:   "invitee registered via invite code",
		RiskScore: result.RiskScore,
	}); err != nil {
		log.Printf("[Registration] reward evaluation failed for inviter %s: %v", reg.InviterID, err)
	} else {
		result.Advisory.RewardsEvaluated = true
	}
}

// Activate stamps the first pending registration for userID. Returns false
// when nothing is pending, which makes duplicate activation triggers a no-op.
func (s *RegistrationService) Activate(userID string) (bool, error) {
	var reg models.InviteRegistration
	err := s.DB.Where("invitee_id = ? AND is_activated = ?", userID, false).
		Order("registered_at ASC").
		First(&reg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}

	now := time.Now()
	res := s.DB.Model(&models.InviteRegistration{}).
		Where("id = ? AND is_activated = ?", reg.ID, false).
		Updates(map[string]interface{}{
			"is_activated": true,
			"activated_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		// a concurrent trigger got there first
		return false, nil
	}

	s.refreshStats(reg.InviterID)
	s.Stats.LogEvent(userID, "activated", RegistrationMeta{}, 0, map[string]interface{}{
		"inviter_id": reg.InviterID,
	})
	if _, err := s.Rewards.Evaluate(RewardEvent{
		Type:     models.RewardEventActivation,
		Category: "referral",
		UserID:   reg.InviterID,
		SourceID: reg.ID,
		Payload:  "invitee became active",
	}); err != nil {
		log.Printf("[Registration] reward evaluation failed on activation for inviter %s: %v", reg.InviterID, err)
	}

	return true, nil
}

// GetRegistration returns the lifetime binding for an invitee, if any.
func (s *RegistrationService) GetRegistration(inviteeID string) (*models.InviteRegistration, error) {
	var reg models.InviteRegistration
	if err := s.DB.Where("invitee_id = ?", inviteeID).First(&reg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErr(ErrNotFound, "no registration found for user %s", inviteeID)
		}
		return nil, err
	}
	return &reg, nil
}

func (s *RegistrationService) refreshStats(userID string) bool {
	if s.statsQueue != nil {
		select {
		case s.statsQueue <- userID:
			return true
		default:
			log.Printf("[Registration] stats queue full, dropping refresh for %s", userID)
			return false
		}
	}
	if _, err := s.Stats.RefreshInviteStats(userID); err != nil {
		log.Printf("[Registration] stats refresh failed for %s: %v", userID, err)
		return false
	}
	return true
}
