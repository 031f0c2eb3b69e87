// services/stats_service.go
package services

import (
	"encoding/json"
	"errors"
	"log"
	"time"

	"referral-ledger-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StatsService maintains the denormalized per-user invite counters and the
// share/click tallies. Everything here is derived state: callers treat every
// method as best-effort and the registration flow never blocks on it.
type StatsService struct {
	DB *gorm.DB
}

func NewStatsService(db *gorm.DB) *StatsService {
	return &StatsService{DB: db}
}

// RefreshInviteStats recomputes the invite_stats row for userID from the
// source tables and upserts it.
func (s *StatsService) RefreshInviteStats(userID string) (*models.InviteStats, error) {
	var totalInvites int64
	if err := s.DB.Model(&models.InviteCode{}).
		Select("COALESCE(SUM(usage_count), 0)").
		Where("inviter_id = ?", userID).
		Scan(&totalInvites).Error; err != nil {
		return nil, err
	}

	var successful int64
	if err := s.DB.Model(&models.InviteRegistration{}).
		Where("inviter_id = ?", userID).
		Count(&successful).Error; err != nil {
		return nil, err
	}

	var active int64
	if err := s.DB.Model(&models.InviteRegistration{}).
		Where("inviter_id = ? AND is_activated = ?", userID, true).
		Count(&active).Error; err != nil {
		return nil, err
	}

	var rewards int64
	if err := s.DB.Model(&models.CreditRecord{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("user_id = ? AND type = ? AND source = ?",
			userID, models.CreditTypeEarned, models.CreditSourceInvite).
		Scan(&rewards).Error; err != nil {
		return nil, err
	}

	stats := &models.InviteStats{
		UserID:                  userID,
		TotalInvites:            totalInvites,
		SuccessfulRegistrations: successful,
		ActiveInvitees:          active,
		TotalRewardsEarned:      rewards,
		LastUpdated:             time.Now(),
	}

	if err := s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		UpdateAll: true,
	}).Create(stats).Error; err != nil {
		return nil, err
	}
	return stats, nil
}

// GetInviteStats reads the cached counters, recomputing on miss.
func (s *StatsService) GetInviteStats(userID string) (*models.InviteStats, error) {
	var stats models.InviteStats
	err := s.DB.Where("user_id = ?", userID).First(&stats).Error
	if err == nil {
		return &stats, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return s.RefreshInviteStats(userID)
}

// RecordShare bumps the per-platform share counter.
func (s *StatsService) RecordShare(userID, platform string) error {
	now := time.Now()
	res := s.DB.Model(&models.ShareStats{}).
		Where("user_id = ? AND platform = ?", userID, platform).
		Updates(map[string]interface{}{
			"share_count":    gorm.Expr("share_count + 1"),
			"last_shared_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return s.DB.Create(&models.ShareStats{
			ID:           uuid.NewString(),
			UserID:       userID,
			Platform:     platform,
			ShareCount:   1,
			LastSharedAt: &now,
		}).Error
	}
	return nil
}

// RecordClick bumps the per-platform click counter.
func (s *StatsService) RecordClick(userID, platform string) error {
	res := s.DB.Model(&models.ShareStats{}).
		Where("user_id = ? AND platform = ?", userID, platform).
		Update("click_count", gorm.Expr("click_count + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return s.DB.Create(&models.ShareStats{
			ID:         uuid.NewString(),
			UserID:     userID,
			Platform:   platform,
			ClickCount: 1,
		}).Error
	}
	return nil
}

// LogEvent appends an audit row. Best-effort: failures are logged, never
// returned as errors, so the primary operation's result is unaffected. The
// bool reports whether the row was actually written.
func (s *StatsService) LogEvent(userID, eventType string, meta RegistrationMeta, riskScore float64, context map[string]interface{}) bool {
	ctxJSON := ""
	if context != nil {
		if b, err := json.Marshal(context); err == nil {
			ctxJSON = string(b)
		}
	}
	entry := &models.InviteEventLog{
		ID:        uuid.NewString(),
		UserID:    userID,
		EventType: eventType,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		DeviceID:  meta.DeviceID,
		RiskScore: riskScore,
		Context:   ctxJSON,
	}
	if err := s.DB.Create(entry).Error; err != nil {
		log.Printf("[Stats] event log write failed (%s for %s): %v", eventType, userID, err)
		return false
	}
	return true
}
