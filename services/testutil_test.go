package services

import (
	"path/filepath"
	"testing"

	"referral-ledger-system/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB opens a throwaway sqlite database with the full schema.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.InviteCode{},
		&models.InviteRegistration{},
		&models.InviteStats{},
		&models.ShareStats{},
		&models.CreditRecord{},
		&models.CreditUsage{},
		&models.UserCreditBalance{},
		&models.RewardRule{},
		&models.RewardActivity{},
		&models.RewardApproval{},
		&models.InviteEventLog{},
	); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return db
}

// setupServices wires the full service graph over one test database, with
// default reward rules seeded and loaded.
func setupServices(t *testing.T) (*gorm.DB, *InviteCodeService, *RegistrationService, *CreditService, *RewardService, *StatsService) {
	t.Helper()

	db := setupTestDB(t)
	credits := NewCreditService(db)
	rewards := NewRewardService(db, credits)
	codes := NewInviteCodeService(db)
	stats := NewStatsService(db)
	registrations := NewRegistrationService(db, codes, stats, rewards)

	if err := rewards.EnsureDefaultRules(); err != nil {
		t.Fatalf("Failed to seed reward rules: %v", err)
	}
	if err := rewards.ReloadRules(); err != nil {
		t.Fatalf("Failed to load reward rules: %v", err)
	}
	return db, codes, registrations, credits, rewards, stats
}

// cleanMeta is a registration request that scores zero risk.
var cleanMeta = RegistrationMeta{
	IPAddress: "203.0.113.10",
	UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36",
	DeviceID:  "f84a0bc2917d44e1",
}
