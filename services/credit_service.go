// services/credit_service.go
package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"referral-ledger-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultCreditValidityMonths = 6
	expiringWindowDays          = 30
)

// CreditService owns the append-only credit ledger. Balance is always derived
// from the ledger; user_credit_balances is only a cache rebuilt after every
// mutation and on read miss.
type CreditService struct {
	DB *gorm.DB
}

func NewCreditService(db *gorm.DB) *CreditService {
	return &CreditService{DB: db}
}

// Credit appends one earned row. Expiry defaults to six months out when the
// caller does not pin one.
func (s *CreditService) Credit(userID string, amount int64, source models.CreditSource, sourceID, description string, expiresAt *time.Time) (*models.CreditRecord, error) {
	rec, err := creditTx(s.DB, userID, amount, source, sourceID, description, expiresAt)
	if err != nil {
		return nil, err
	}
	s.refreshBalanceCache(userID)
	return rec, nil
}

// creditTx writes the earned row on the given handle so the approval workflow
// can pair it with a status flip inside one transaction.
func creditTx(tx *gorm.DB, userID string, amount int64, source models.CreditSource, sourceID, description string, expiresAt *time.Time) (*models.CreditRecord, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("credit amount must be positive, got %d", amount)
	}
	if expiresAt == nil {
		exp := time.Now().AddDate(0, defaultCreditValidityMonths, 0)
		expiresAt = &exp
	}

	rec := &models.CreditRecord{
		ID:          uuid.NewString(),
		UserID:      userID,
		Amount:      amount,
		Type:        models.CreditTypeEarned,
		Source:      source,
		SourceID:    sourceID,
		Description: description,
		ExpiresAt:   expiresAt,
	}
	if err := tx.Create(rec).Error; err != nil {
		return nil, err
	}
	return rec, nil
}

// errInsufficient is internal to Debit; callers see (false, nil).
var errInsufficient = domainErr(ErrInsufficientCredits, "available credits below requested amount")

// Debit consumes credits FIFO by expiry: the soonest-expiring unused earned
// rows go first, which minimizes what the sweep will later force-expire.
// Partial consumption shrinks the source row in place; every consumed slice
// gets a negative used mirror, and one credit_usage audit row covers the whole
// debit. Returns false without touching anything when the balance is short.
func (s *CreditService) Debit(userID string, amount int64, purpose string, metadata map[string]interface{}) (bool, error) {
	if amount <= 0 {
		return false, fmt.Errorf("debit amount must be positive, got %d", amount)
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		now := time.Now()

		var rows []models.CreditRecord
		if err := lockForUpdate(tx).
			Where("user_id = ? AND type = ? AND used_at IS NULL AND expires_at > ?",
				userID, models.CreditTypeEarned, now).
			Order("expires_at ASC").
			Find(&rows).Error; err != nil {
			return err
		}

		var available int64
		for _, r := range rows {
			available += r.Amount
		}
		if available < amount {
			return errInsufficient
		}

		remaining := amount
		for _, row := range rows {
			if remaining <= 0 {
				break
			}
			consume := row.Amount
			if consume > remaining {
				consume = remaining
			}

			mirror := &models.CreditRecord{
				ID:          uuid.NewString(),
				UserID:      userID,
				Amount:      -consume,
				Type:        models.CreditTypeUsed,
				Source:      row.Source,
				SourceID:    row.ID,
				Description: purpose,
				UsedAt:      &now,
			}
			if err := tx.Create(mirror).Error; err != nil {
				return err
			}

			if consume == row.Amount {
				if err := tx.Model(&models.CreditRecord{}).
					Where("id = ?", row.ID).
					Update("used_at", now).Error; err != nil {
					return err
				}
			} else {
				// partial use never drives an earned row negative
				if err := tx.Model(&models.CreditRecord{}).
					Where("id = ?", row.ID).
					Update("amount", gorm.Expr("amount - ?", consume)).Error; err != nil {
					return err
				}
			}
			remaining -= consume
		}

		metaJSON := ""
		if metadata != nil {
			if b, err := json.Marshal(metadata); err == nil {
				metaJSON = string(b)
			}
		}
		usage := &models.CreditUsage{
			ID:       uuid.NewString(),
			UserID:   userID,
			Amount:   amount,
			Purpose:  purpose,
			Metadata: metaJSON,
		}
		return tx.Create(usage).Error
	})

	if err != nil {
		if KindOf(err) == ErrInsufficientCredits {
			return false, nil
		}
		return false, err
	}

	s.refreshBalanceCache(userID)
	return true, nil
}

// SweepExpired writes an expired mirror for every unused earned row past its
// expiry and marks the original used. Re-running is a no-op once rows are
// marked. Returns the number of rows expired.
func (s *CreditService) SweepExpired() (int, error) {
	now := time.Now()
	swept := 0
	users := map[string]struct{}{}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var rows []models.CreditRecord
		if err := lockForUpdate(tx).
			Where("type = ? AND used_at IS NULL AND expires_at <= ?", models.CreditTypeEarned, now).
			Find(&rows).Error; err != nil {
			return err
		}

		for _, row := range rows {
			mirror := &models.CreditRecord{
				ID:          uuid.NewString(),
				UserID:      row.UserID,
				Amount:      -row.Amount,
				Type:        models.CreditTypeExpired,
				Source:      row.Source,
				SourceID:    row.ID,
				Description: "credit expired",
				UsedAt:      &now,
			}
			if err := tx.Create(mirror).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.CreditRecord{}).
				Where("id = ?", row.ID).
				Update("used_at", now).Error; err != nil {
				return err
			}
			swept++
			users[row.UserID] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for userID := range users {
		s.refreshBalanceCache(userID)
	}
	if swept > 0 {
		log.Printf("[CreditLedger] expired %d credit rows across %d users", swept, len(users))
	}
	return swept, nil
}

// Balance is a cache-first read; a missing cache row triggers a full rebuild
// from the ledger.
func (s *CreditService) Balance(userID string) (*models.UserCreditBalance, error) {
	var bal models.UserCreditBalance
	err := s.DB.Where("user_id = ?", userID).First(&bal).Error
	if err == nil {
		return &bal, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return s.RebuildBalance(userID)
}

// RebuildBalance recomputes all four aggregates from credit_records and
// upserts the cache row.
func (s *CreditService) RebuildBalance(userID string) (*models.UserCreditBalance, error) {
	now := time.Now()

	var available, totalUsed, totalExpired, expiring int64

	err := s.DB.Model(&models.CreditRecord{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("user_id = ? AND type = ? AND used_at IS NULL AND expires_at > ?",
			userID, models.CreditTypeEarned, now).
		Scan(&available).Error
	if err != nil {
		return nil, err
	}

	if err := s.DB.Model(&models.CreditRecord{}).
		Select("COALESCE(-SUM(amount), 0)").
		Where("user_id = ? AND type = ?", userID, models.CreditTypeUsed).
		Scan(&totalUsed).Error; err != nil {
		return nil, err
	}

	if err := s.DB.Model(&models.CreditRecord{}).
		Select("COALESCE(-SUM(amount), 0)").
		Where("user_id = ? AND type = ?", userID, models.CreditTypeExpired).
		Scan(&totalExpired).Error; err != nil {
		return nil, err
	}

	if err := s.DB.Model(&models.CreditRecord{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("user_id = ? AND type = ? AND used_at IS NULL AND expires_at > ? AND expires_at <= ?",
			userID, models.CreditTypeEarned, now, now.AddDate(0, 0, expiringWindowDays)).
		Scan(&expiring).Error; err != nil {
		return nil, err
	}

	bal := &models.UserCreditBalance{
		UserID:           userID,
		TotalEarned:      available + totalUsed + totalExpired,
		TotalUsed:        totalUsed,
		TotalExpired:     totalExpired,
		AvailableCredits: available,
		ExpiringCredits:  expiring,
		LastUpdated:      now,
	}

	if err := s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		UpdateAll: true,
	}).Create(bal).Error; err != nil {
		return nil, err
	}
	return bal, nil
}

// refreshBalanceCache is the best-effort variant used after mutations: the
// cache is derived state, so a failed rebuild is logged and swallowed.
func (s *CreditService) refreshBalanceCache(userID string) {
	if _, err := s.RebuildBalance(userID); err != nil {
		log.Printf("[CreditLedger] balance cache rebuild failed for %s: %v", userID, err)
	}
}
