package services

import (
	"testing"

	"referral-ledger-system/models"

	"github.com/google/uuid"
)

func addRule(t *testing.T, svc *RewardService, rule models.RewardRule) {
	t.Helper()
	rule.ID = uuid.NewString()
	rule.RewardType = models.RewardKindCredits
	rule.IsActive = true
	if err := svc.DB.Create(&rule).Error; err != nil {
		t.Fatalf("seeding rule: %v", err)
	}
	if err := svc.ReloadRules(); err != nil {
		t.Fatalf("ReloadRules failed: %v", err)
	}
}

func clearRules(t *testing.T, svc *RewardService) {
	t.Helper()
	if err := svc.DB.Where("1 = 1").Delete(&models.RewardRule{}).Error; err != nil {
		t.Fatalf("clearing rules: %v", err)
	}
	if err := svc.ReloadRules(); err != nil {
		t.Fatalf("ReloadRules failed: %v", err)
	}
}

func TestEvaluate_ConditionsAreANDed(t *testing.T) {
	db, _, _, credits, rewards, _ := setupServices(t)
	clearRules(t, rewards)
	addRule(t, rewards, models.RewardRule{
		Name:         "Campaign Milestone",
		EventType:    models.RewardEventMilestone,
		RewardAmount: 30,
		Priority:     10,
		Conditions:   `{"category":"campaign","keywords":["milestone","invite"]}`,
	})

	// category matches but one keyword is missing
	n, err := rewards.Evaluate(RewardEvent{
		Type: models.RewardEventMilestone, Category: "campaign",
		UserID: "U1", Payload: "reached invite target",
	})
	if err != nil || n != 0 {
		t.Errorf("partial match dispatched %d (err %v), want 0", n, err)
	}

	// wrong category
	n, err = rewards.Evaluate(RewardEvent{
		Type: models.RewardEventMilestone, Category: "other",
		UserID: "U1", Payload: "invite milestone reached",
	})
	if err != nil || n != 0 {
		t.Errorf("wrong category dispatched %d (err %v), want 0", n, err)
	}

	// all clauses satisfied
	n, err = rewards.Evaluate(RewardEvent{
		Type: models.RewardEventMilestone, Category: "campaign",
		UserID: "U1", Payload: "Invite MILESTONE reached",
	})
	if err != nil || n != 1 {
		t.Fatalf("full match dispatched %d (err %v), want 1", n, err)
	}

	bal, _ := credits.Balance("U1")
	if bal.AvailableCredits != 30 {
		t.Errorf("available = %d, want 30", bal.AvailableCredits)
	}

	var activity models.RewardActivity
	if err := db.First(&activity, "user_id = ?", "U1").Error; err != nil {
		t.Fatalf("activity row missing: %v", err)
	}
	if activity.Outcome != "credited" || activity.RuleKey != "campaign-milestone" {
		t.Errorf("activity = %+v", activity)
	}
}

func TestEvaluate_PriorityOrderAndIndependentDispatch(t *testing.T) {
	db, _, _, _, rewards, _ := setupServices(t)
	clearRules(t, rewards)
	addRule(t, rewards, models.RewardRule{
		Name: "Low Bonus", EventType: models.RewardEventMilestone, RewardAmount: 5, Priority: 1,
	})
	addRule(t, rewards, models.RewardRule{
		Name: "High Bonus", EventType: models.RewardEventMilestone, RewardAmount: 10, Priority: 50,
	})

	n, err := rewards.Evaluate(RewardEvent{Type: models.RewardEventMilestone, UserID: "U1"})
	if err != nil || n != 2 {
		t.Fatalf("dispatched %d (err %v), want both rules", n, err)
	}

	var activities []models.RewardActivity
	db.Order("created_at ASC").Find(&activities)
	if len(activities) != 2 {
		t.Fatalf("expected 2 activities, got %d", len(activities))
	}
	// higher priority evaluated (and recorded) first
	if activities[0].RuleKey != "high-bonus" || activities[1].RuleKey != "low-bonus" {
		t.Errorf("dispatch order = %s, %s", activities[0].RuleKey, activities[1].RuleKey)
	}
}

func TestEvaluate_ThrottleWindow(t *testing.T) {
	db, _, _, _, rewards, _ := setupServices(t)
	clearRules(t, rewards)
	addRule(t, rewards, models.RewardRule{
		Name: "Throttled Bonus", EventType: models.RewardEventMilestone,
		RewardAmount: 10, Priority: 1, ThrottleSecs: 3600,
	})

	event := RewardEvent{Type: models.RewardEventMilestone, Category: "campaign", UserID: "U1"}
	if n, _ := rewards.Evaluate(event); n != 1 {
		t.Fatalf("first evaluation dispatched %d, want 1", n)
	}
	if n, _ := rewards.Evaluate(event); n != 0 {
		t.Errorf("second evaluation inside window dispatched, want suppressed")
	}

	// throttle is keyed per (rule, category): another category still fires
	other := event
	other.Category = "different"
	if n, _ := rewards.Evaluate(other); n != 1 {
		t.Errorf("different category should not share the throttle window")
	}

	var count int64
	db.Model(&models.RewardActivity{}).Count(&count)
	if count != 2 {
		t.Errorf("activities = %d, want 2", count)
	}
}

func TestEvaluate_ThrottleWindowsAreIndependentPerRule(t *testing.T) {
	db, _, _, _, rewards, _ := setupServices(t)
	clearRules(t, rewards)
	// two distinct rules sharing a display name must not share a window
	addRule(t, rewards, models.RewardRule{
		Name: "Shared Name", EventType: models.RewardEventMilestone,
		RewardAmount: 10, Priority: 2, ThrottleSecs: 3600,
	})
	addRule(t, rewards, models.RewardRule{
		Name: "Shared Name", EventType: models.RewardEventMilestone,
		RewardAmount: 20, Priority: 1, ThrottleSecs: 3600,
	})

	n, err := rewards.Evaluate(RewardEvent{
		Type: models.RewardEventMilestone, Category: "c", UserID: "U1",
	})
	if err != nil || n != 2 {
		t.Fatalf("dispatched %d (err %v), want both same-named rules", n, err)
	}

	var count int64
	db.Model(&models.RewardActivity{}).Count(&count)
	if count != 2 {
		t.Errorf("activities = %d, want 2", count)
	}
}

func TestEvaluate_CustomPredicate(t *testing.T) {
	_, _, _, _, rewards, _ := setupServices(t)
	clearRules(t, rewards)
	addRule(t, rewards, models.RewardRule{
		Name: "Predicated Bonus", EventType: models.RewardEventMilestone,
		RewardAmount: 10, Priority: 1,
		Conditions: `{"predicate":"big_inviter"}`,
	})

	// unregistered predicate never matches
	if n, _ := rewards.Evaluate(RewardEvent{Type: models.RewardEventMilestone, UserID: "U1"}); n != 0 {
		t.Error("rule with unknown predicate must not dispatch")
	}

	rewards.RegisterPredicate("big_inviter", func(e RewardEvent) bool {
		return e.UserID == "U1"
	})
	if n, _ := rewards.Evaluate(RewardEvent{Type: models.RewardEventMilestone, UserID: "U2"}); n != 0 {
		t.Error("predicate returning false must not dispatch")
	}
	if n, _ := rewards.Evaluate(RewardEvent{Type: models.RewardEventMilestone, UserID: "U1"}); n != 1 {
		t.Error("predicate returning true should dispatch")
	}
}

func TestEvaluate_TransformOverridesAmount(t *testing.T) {
	_, _, _, credits, rewards, _ := setupServices(t)
	clearRules(t, rewards)
	addRule(t, rewards, models.RewardRule{
		Name: "Doubling Bonus", EventType: models.RewardEventMilestone,
		RewardAmount: 20, Priority: 1,
		Conditions: `{"transform":"double_up"}`,
	})
	rewards.RegisterTransform("double_up", func(e *RewardEvent) {
		e.AmountOverride = 40
	})

	if n, err := rewards.Evaluate(RewardEvent{Type: models.RewardEventMilestone, UserID: "U1"}); err != nil || n != 1 {
		t.Fatalf("dispatched %d (err %v), want 1", n, err)
	}
	bal, _ := credits.Balance("U1")
	if bal.AvailableCredits != 40 {
		t.Errorf("available = %d, want transformed 40", bal.AvailableCredits)
	}
}

func TestEvaluate_HighValueRoutesToApproval(t *testing.T) {
	db, _, _, credits, rewards, _ := setupServices(t)
	clearRules(t, rewards)
	addRule(t, rewards, models.RewardRule{
		Name: "Big Payout", EventType: models.RewardEventMilestone,
		RewardAmount: 1000, Priority: 1,
	})

	if n, err := rewards.Evaluate(RewardEvent{Type: models.RewardEventMilestone, UserID: "U1"}); err != nil || n != 1 {
		t.Fatalf("dispatched %d (err %v), want 1", n, err)
	}

	// routed, not credited
	bal, _ := credits.Balance("U1")
	if bal.AvailableCredits != 0 {
		t.Errorf("available = %d before approval, want 0", bal.AvailableCredits)
	}

	pending, err := rewards.ListPendingApprovals()
	if err != nil || len(pending) != 1 {
		t.Fatalf("pending approvals = %d (err %v), want 1", len(pending), err)
	}
	if pending[0].RewardAmount != 1000 || pending[0].UserID != "U1" {
		t.Errorf("approval = %+v", pending[0])
	}

	var activity models.RewardActivity
	db.First(&activity, "user_id = ?", "U1")
	if activity.Outcome != "pending_approval" {
		t.Errorf("activity outcome = %s, want pending_approval", activity.Outcome)
	}
}

func TestEvaluate_HighRiskRoutesToApproval(t *testing.T) {
	_, _, _, _, rewards, _ := setupServices(t)
	clearRules(t, rewards)
	addRule(t, rewards, models.RewardRule{
		Name: "Small Bonus", EventType: models.RewardEventRegistration,
		RewardAmount: 10, Priority: 1,
	})

	if n, err := rewards.Evaluate(RewardEvent{
		Type: models.RewardEventRegistration, UserID: "U1", RiskScore: 0.9,
	}); err != nil || n != 1 {
		t.Fatalf("dispatched %d (err %v), want 1", n, err)
	}

	pending, _ := rewards.ListPendingApprovals()
	if len(pending) != 1 {
		t.Fatalf("high-risk reward should wait for approval, pending = %d", len(pending))
	}
}

func TestApprove_PairsStatusFlipWithCredit(t *testing.T) {
	db, _, _, credits, rewards, _ := setupServices(t)
	clearRules(t, rewards)
	addRule(t, rewards, models.RewardRule{
		Name: "Big Payout", EventType: models.RewardEventMilestone,
		RewardAmount: 800, Priority: 1,
	})
	if _, err := rewards.Evaluate(RewardEvent{Type: models.RewardEventMilestone, UserID: "U1"}); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	pending, _ := rewards.ListPendingApprovals()
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending approval")
	}

	approved, err := rewards.Approve(pending[0].ID, "admin-1", "looks legit")
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if approved.Status != models.ApprovalStatusApproved || approved.AdminID == nil || *approved.AdminID != "admin-1" {
		t.Errorf("approval = %+v", approved)
	}

	// the paired ledger row exists and funds the balance
	var rec models.CreditRecord
	if err := db.First(&rec, "source_id = ?", approved.ID).Error; err != nil {
		t.Fatalf("paired credit record missing: %v", err)
	}
	if rec.Amount != 800 || rec.Type != models.CreditTypeEarned {
		t.Errorf("credit record = %+v", rec)
	}
	bal, _ := credits.Balance("U1")
	if bal.AvailableCredits != 800 {
		t.Errorf("available = %d, want 800", bal.AvailableCredits)
	}

	// terminal states are immutable
	if _, err := rewards.Approve(approved.ID, "admin-2", ""); err == nil {
		t.Error("approving a decided approval must fail")
	}
	if _, err := rewards.Reject(approved.ID, "admin-2", "changed my mind"); err == nil {
		t.Error("rejecting a decided approval must fail")
	}

	var credited int64
	db.Model(&models.CreditRecord{}).Where("source_id = ?", approved.ID).Count(&credited)
	if credited != 1 {
		t.Errorf("credit rows for approval = %d, want exactly 1", credited)
	}
}

func TestReject_NoLedgerWrite(t *testing.T) {
	db, _, _, _, rewards, _ := setupServices(t)
	clearRules(t, rewards)
	addRule(t, rewards, models.RewardRule{
		Name: "Big Payout", EventType: models.RewardEventMilestone,
		RewardAmount: 900, Priority: 1,
	})
	if _, err := rewards.Evaluate(RewardEvent{Type: models.RewardEventMilestone, UserID: "U1"}); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	pending, _ := rewards.ListPendingApprovals()

	rejected, err := rewards.Reject(pending[0].ID, "admin-1", "suspected fraud ring")
	if err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	if rejected.Status != models.ApprovalStatusRejected || rejected.Notes != "suspected fraud ring" {
		t.Errorf("approval = %+v", rejected)
	}

	var ledger int64
	db.Model(&models.CreditRecord{}).Where("user_id = ?", "U1").Count(&ledger)
	if ledger != 0 {
		t.Error("rejection must not touch the ledger")
	}
}

func TestApprove_MissingApproval(t *testing.T) {
	_, _, _, _, rewards, _ := setupServices(t)

	_, err := rewards.Approve(uuid.NewString(), "admin-1", "")
	if KindOf(err) != ErrApprovalNotFound {
		t.Errorf("got %v, want kind %s", err, ErrApprovalNotFound)
	}
}

func TestReloadRules_SkipsUnparseableConditions(t *testing.T) {
	_, _, _, _, rewards, _ := setupServices(t)
	clearRules(t, rewards)
	addRule(t, rewards, models.RewardRule{
		Name: "Broken Rule", EventType: models.RewardEventMilestone,
		RewardAmount: 10, Priority: 1, Conditions: `{not json`,
	})

	if n, _ := rewards.Evaluate(RewardEvent{Type: models.RewardEventMilestone, UserID: "U1"}); n != 0 {
		t.Error("a rule with unparseable conditions must not dispatch")
	}
}
