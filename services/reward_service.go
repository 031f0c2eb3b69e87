// services/reward_service.go
package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"referral-ledger-system/models"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// Defaults for routing rewards into the approval workflow. Tunable per
// deployment via SetThresholds.
const (
	defaultApprovalAmountThreshold = 500
	defaultApprovalRiskThreshold   = 0.7
)

// RewardEvent is a domain event fed to the rule engine.
type RewardEvent struct {
	Type        models.RewardEventType
	Category    string
	PriorityTag string
	UserID      string // the user who would receive the reward
	SourceID    string // registration / activation row behind the event
	Payload     string // free text the keyword clauses match against
	RiskScore   float64

	// AmountOverride lets a transform replace the rule's amount. Zero means
	// "use the rule's amount".
	AmountOverride int64
}

// ruleConditions is the parsed form of reward_rules.conditions. Every clause
// that is set must match (AND semantics).
type ruleConditions struct {
	Category    string   `json:"category,omitempty"`
	PriorityTag string   `json:"priority_tag,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	Predicate   string   `json:"predicate,omitempty"` // name registered via RegisterPredicate
	Transform   string   `json:"transform,omitempty"` // name registered via RegisterTransform
}

type compiledRule struct {
	models.RewardRule
	cond ruleConditions
	key  string // slugified name, used in throttle keys and activity rows
}

// RewardService evaluates prioritized condition→action rules against domain
// events. Rules live in reward_rules and are reloaded periodically; dispatch
// happens synchronously in priority order over an explicit slice, so there is
// no hidden listener ordering and throttle state is a plain map.
type RewardService struct {
	DB      *gorm.DB
	Credits *CreditService

	approvalAmountThreshold int64
	approvalRiskThreshold   float64

	mu         sync.Mutex
	rules      []compiledRule
	lastFired  map[string]time.Time // "<ruleID>|<category>" → last dispatch decision
	predicates map[string]func(RewardEvent) bool
	transforms map[string]func(*RewardEvent)
}

func NewRewardService(db *gorm.DB, credits *CreditService) *RewardService {
	return &RewardService{
		DB:                      db,
		Credits:                 credits,
		approvalAmountThreshold: defaultApprovalAmountThreshold,
		approvalRiskThreshold:   defaultApprovalRiskThreshold,
		lastFired:               make(map[string]time.Time),
		predicates:              make(map[string]func(RewardEvent) bool),
		transforms:              make(map[string]func(*RewardEvent)),
	}
}

// SetThresholds overrides the approval routing thresholds.
func (s *RewardService) SetThresholds(amount int64, risk float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.approvalAmountThreshold = amount
	s.approvalRiskThreshold = risk
}

// RegisterPredicate wires a named custom predicate rules can reference in
// their conditions. A rule naming an unregistered predicate never matches.
func (s *RewardService) RegisterPredicate(name string, fn func(RewardEvent) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.predicates[name] = fn
}

// RegisterTransform wires a named payload transform.
func (s *RewardService) RegisterTransform(name string, fn func(*RewardEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transforms[name] = fn
}

// ReloadRules refreshes the in-memory rule list from reward_rules.
func (s *RewardService) ReloadRules() error {
	var rows []models.RewardRule
	if err := s.DB.Where("is_active = ?", true).
		Order("priority DESC").
		Find(&rows).Error; err != nil {
		return err
	}

	compiled := make([]compiledRule, 0, len(rows))
	for _, r := range rows {
		var cond ruleConditions
		if r.Conditions != "" {
			if err := json.Unmarshal([]byte(r.Conditions), &cond); err != nil {
				log.Printf("[Rewards] rule %s (%s) has unparseable conditions, skipping: %v", r.Name, r.ID, err)
				continue
			}
		}
		compiled = append(compiled, compiledRule{RewardRule: r, cond: cond, key: slug.Make(r.Name)})
	}

	s.mu.Lock()
	s.rules = compiled
	s.mu.Unlock()
	return nil
}

// Evaluate runs every active rule against the event, highest priority first.
// Each matching, unthrottled rule dispatches independently. Returns how many
// dispatches happened (deferred ones count).
func (s *RewardService) Evaluate(event RewardEvent) (int, error) {
	s.mu.Lock()
	rules := s.rules
	s.mu.Unlock()

	dispatched := 0
	for _, rule := range rules {
		if rule.EventType != event.Type {
			continue
		}
		if !s.matches(rule, event) {
			continue
		}
		if s.throttled(rule, event.Category) {
			log.Printf("[Rewards] rule %s throttled for category %q", rule.key, event.Category)
			continue
		}

		ev := event
		if rule.cond.Transform != "" {
			s.mu.Lock()
			fn := s.transforms[rule.cond.Transform]
			s.mu.Unlock()
			if fn != nil {
				fn(&ev)
			}
		}

		if rule.DelaySecs > 0 {
			r := rule
			time.AfterFunc(time.Duration(rule.DelaySecs)*time.Second, func() {
				if err := s.dispatch(r, ev); err != nil {
					log.Printf("[Rewards] deferred dispatch of rule %s failed: %v", r.key, err)
				}
			})
			dispatched++
			continue
		}

		if err := s.dispatch(rule, ev); err != nil {
			return dispatched, err
		}
		dispatched++
	}
	return dispatched, nil
}

func (s *RewardService) matches(rule compiledRule, event RewardEvent) bool {
	c := rule.cond
	if c.Category != "" && c.Category != event.Category {
		return false
	}
	if c.PriorityTag != "" && c.PriorityTag != event.PriorityTag {
		return false
	}
	for _, kw := range c.Keywords {
		if !strings.Contains(strings.ToLower(event.Payload), strings.ToLower(kw)) {
			return false
		}
	}
	if c.Predicate != "" {
		s.mu.Lock()
		fn := s.predicates[c.Predicate]
		s.mu.Unlock()
		if fn == nil {
			log.Printf("[Rewards] rule %s names unregistered predicate %q", rule.key, c.Predicate)
			return false
		}
		if !fn(event) {
			return false
		}
	}
	return true
}

// throttled checks and, when the window is clear, stamps the last-fired time
// for the (rule, category) pair. Keyed by rule ID, not name: two rules that
// happen to share a name keep independent windows. Tracked by timestamp, not
// a counter.
func (s *RewardService) throttled(rule compiledRule, category string) bool {
	if rule.ThrottleSecs <= 0 {
		return false
	}
	key := rule.ID + "|" + category
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.lastFired[key]; ok && now.Sub(last) < time.Duration(rule.ThrottleSecs)*time.Second {
		return true
	}
	s.lastFired[key] = now
	return false
}

// dispatch either credits the user directly or routes to the approval queue.
// High-value amounts and high-risk events always go through approval.
func (s *RewardService) dispatch(rule compiledRule, event RewardEvent) error {
	amount := rule.RewardAmount
	if event.AmountOverride > 0 {
		amount = event.AmountOverride
	}

	s.mu.Lock()
	amountThreshold := s.approvalAmountThreshold
	riskThreshold := s.approvalRiskThreshold
	s.mu.Unlock()

	needsApproval := amount >= amountThreshold || event.RiskScore >= riskThreshold

	outcome := "credited"
	if needsApproval {
		outcome = "pending_approval"
		approval := &models.RewardApproval{
			ID:           uuid.NewString(),
			UserID:       event.UserID,
			RuleID:       rule.ID,
			RewardType:   rule.RewardType,
			RewardAmount: amount,
			Status:       models.ApprovalStatusPending,
			Notes:        fmt.Sprintf("rule %s on %s event (risk %.2f)", rule.Name, event.Type, event.RiskScore),
		}
		if err := s.DB.Create(approval).Error; err != nil {
			return err
		}
	} else {
		desc := fmt.Sprintf("reward: %s", rule.Name)
		if _, err := s.Credits.Credit(event.UserID, amount, models.CreditSourceInvite, event.SourceID, desc, nil); err != nil {
			return err
		}
	}

	activity := &models.RewardActivity{
		ID:        uuid.NewString(),
		RuleID:    rule.ID,
		RuleKey:   rule.key,
		UserID:    event.UserID,
		EventType: string(event.Type),
		Amount:    amount,
		Outcome:   outcome,
	}
	if err := s.DB.Create(activity).Error; err != nil {
		// activity rows are audit trail, not source of truth
		log.Printf("[Rewards] failed to record activity for rule %s: %v", rule.key, err)
	}

	log.Printf("[Rewards] rule %s → %s %d credits for user %s", rule.key, outcome, amount, event.UserID)
	return nil
}

// Approve flips a pending approval to approved and writes the matching earned
// CreditRecord in the same transaction: the reward is never granted without an
// approval record and never approved without being granted.
func (s *RewardService) Approve(approvalID, adminID, notes string) (*models.RewardApproval, error) {
	var approval models.RewardApproval
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).Where("id = ?", approvalID).First(&approval).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domainErr(ErrApprovalNotFound, "approval %s does not exist", approvalID)
			}
			return err
		}
		if approval.Status != models.ApprovalStatusPending {
			return fmt.Errorf("approval %s already decided (%s)", approvalID, approval.Status)
		}

		now := time.Now()
		approval.Status = models.ApprovalStatusApproved
		approval.AdminID = &adminID
		approval.DecidedAt = &now
		if notes != "" {
			approval.Notes = notes
		}
		if err := tx.Save(&approval).Error; err != nil {
			return err
		}

		desc := fmt.Sprintf("approved reward %s", approval.ID)
		_, err := creditTx(tx, approval.UserID, approval.RewardAmount, models.CreditSourceInvite, approval.ID, desc, nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.Credits.refreshBalanceCache(approval.UserID)
	return &approval, nil
}

// Reject records the decision and reason; no ledger write. Terminal states
// are immutable, so only pending rows can be rejected.
func (s *RewardService) Reject(approvalID, adminID, reason string) (*models.RewardApproval, error) {
	var approval models.RewardApproval
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).Where("id = ?", approvalID).First(&approval).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domainErr(ErrApprovalNotFound, "approval %s does not exist", approvalID)
			}
			return err
		}
		if approval.Status != models.ApprovalStatusPending {
			return fmt.Errorf("approval %s already decided (%s)", approvalID, approval.Status)
		}

		now := time.Now()
		approval.Status = models.ApprovalStatusRejected
		approval.AdminID = &adminID
		approval.Notes = reason
		approval.DecidedAt = &now
		return tx.Save(&approval).Error
	})
	if err != nil {
		return nil, err
	}
	return &approval, nil
}

// ListPendingApprovals returns the review queue, oldest first.
func (s *RewardService) ListPendingApprovals() ([]models.RewardApproval, error) {
	var rows []models.RewardApproval
	err := s.DB.Where("status = ?", models.ApprovalStatusPending).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

// EnsureDefaultRules seeds the baseline registration/activation rules when the
// table is empty, so a fresh deployment rewards out of the box.
func (s *RewardService) EnsureDefaultRules() error {
	var count int64
	if err := s.DB.Model(&models.RewardRule{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	defaults := []models.RewardRule{
		{
			ID:           uuid.NewString(),
			Name:         "Referral Registration Bonus",
			EventType:    models.RewardEventRegistration,
			RewardType:   models.RewardKindCredits,
			RewardAmount: 50,
			Priority:     100,
			IsActive:     true,
		},
		{
			ID:           uuid.NewString(),
			Name:         "Invitee Activation Bonus",
			EventType:    models.RewardEventActivation,
			RewardType:   models.RewardKindCredits,
			RewardAmount: 100,
			Priority:     90,
			IsActive:     true,
		},
	}
	for i := range defaults {
		if err := s.DB.Create(&defaults[i]).Error; err != nil {
			return err
		}
	}
	log.Printf("[Rewards] seeded %d default reward rules", len(defaults))
	return nil
}
