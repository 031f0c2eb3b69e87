// services/risk.go
package services

import (
	"errors"
	"log"
	"strings"
	"time"

	"referral-ledger-system/models"

	"gorm.io/gorm"
)

// RiskFactors are the raw registration signals the scorer weighs. Collecting
// them is separated from scoring so the scorer stays a pure function.
type RiskFactors struct {
	SameIPRegistrations24h int           // registrations from this IP in the last 24h
	SinceLastRegistration  time.Duration // 0 means no prior registration observed
	HasPriorRegistration   bool
	DeviceFingerprint      string
	UserAgent              string
}

var botUAFragments = []string{"bot", "crawler", "spider", "curl", "wget", "python-requests", "headless"}

// RiskScore computes a heuristic abuse likelihood in [0, 1]. The scorer never
// blocks anything itself; callers pick their own action threshold.
func RiskScore(f RiskFactors) float64 {
	score := 0.0

	switch {
	case f.SameIPRegistrations24h > 5:
		score += 0.4
	case f.SameIPRegistrations24h > 3:
		score += 0.2
	}

	if f.HasPriorRegistration {
		switch {
		case f.SinceLastRegistration < time.Minute:
			score += 0.3
		case f.SinceLastRegistration < 5*time.Minute:
			score += 0.1
		}
	}

	if lowEntropyFingerprint(f.DeviceFingerprint) {
		score += 0.2
	}
	if botLikeUserAgent(f.UserAgent) {
		score += 0.1
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

// lowEntropyFingerprint flags fingerprints that are short or dominated by a
// handful of distinct characters (spoofed or stubbed device IDs).
func lowEntropyFingerprint(fp string) bool {
	if fp == "" {
		return true
	}
	if len(fp) < 8 {
		return true
	}
	distinct := map[rune]struct{}{}
	for _, r := range fp {
		distinct[r] = struct{}{}
	}
	return len(distinct) <= 3
}

func botLikeUserAgent(ua string) bool {
	if ua == "" {
		return true
	}
	lower := strings.ToLower(ua)
	for _, frag := range botUAFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

// CollectRiskFactors derives IP-reuse and cadence signals from the event log.
// Both lookups are scoped to the requesting IP: global cadence would flag
// every registration on a busy deployment. Failures degrade to zeroed
// factors; scoring stays advisory either way.
func CollectRiskFactors(db *gorm.DB, meta RegistrationMeta) RiskFactors {
	f := RiskFactors{
		DeviceFingerprint: meta.DeviceID,
		UserAgent:         meta.UserAgent,
	}
	if meta.IPAddress == "" {
		return f
	}

	var sameIP int64
	err := db.Model(&models.InviteEventLog{}).
		Where("event_type = ? AND ip_address = ? AND created_at >= ?",
			"registered", meta.IPAddress, time.Now().Add(-24*time.Hour)).
		Count(&sameIP).Error
	if err != nil {
		log.Printf("[Risk] same-IP lookup failed for %s: %v", meta.IPAddress, err)
	} else {
		f.SameIPRegistrations24h = int(sameIP)
	}

	var last models.InviteEventLog
	err = db.Where("event_type = ? AND ip_address = ?", "registered", meta.IPAddress).
		Order("created_at DESC").
		First(&last).Error
	if err == nil {
		f.HasPriorRegistration = true
		f.SinceLastRegistration = time.Since(last.CreatedAt)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("[Risk] cadence lookup failed for %s: %v", meta.IPAddress, err)
	}

	return f
}
