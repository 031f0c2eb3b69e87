package services

import (
	"testing"
	"time"

	"referral-ledger-system/models"

	"github.com/google/uuid"
)

func TestGenerate_UniqueWellFormedCodes(t *testing.T) {
	db := setupTestDB(t)
	svc := NewInviteCodeService(db)

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		ic, err := svc.Generate("inviter-1")
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		if !codePattern.MatchString(ic.Code) {
			t.Errorf("code %q does not match [A-Z0-9]{8}", ic.Code)
		}
		if seen[ic.Code] {
			t.Errorf("duplicate code generated: %s", ic.Code)
		}
		seen[ic.Code] = true

		if ic.UsageCount != 0 || ic.MaxUsage != defaultMaxUsage || !ic.IsActive {
			t.Errorf("unexpected defaults: usage=%d max=%d active=%t", ic.UsageCount, ic.MaxUsage, ic.IsActive)
		}
		if !ic.ExpiresAt.After(time.Now().AddDate(0, 5, 0)) {
			t.Errorf("expiry %s is sooner than the default validity window", ic.ExpiresAt)
		}
	}

	var count int64
	db.Model(&models.InviteCode{}).Count(&count)
	if count != 20 {
		t.Errorf("expected 20 persisted codes, got %d", count)
	}
}

func TestValidate_OrderedFailures(t *testing.T) {
	db := setupTestDB(t)
	svc := NewInviteCodeService(db)

	cases := []struct {
		name string
		code models.InviteCode
		in   string
		want ErrKind
	}{
		{
			name: "bad format",
			in:   "abc",
			want: ErrInvalidFormat,
		},
		{
			name: "not found",
			in:   "ZZZZ9999",
			want: ErrNotFound,
		},
		{
			name: "expired wins over inactive",
			code: models.InviteCode{
				ID: uuid.NewString(), Code: "EXPIRED1", InviterID: "u1",
				ExpiresAt: time.Now().Add(-time.Hour), IsActive: false, MaxUsage: 100,
			},
			in:   "EXPIRED1",
			want: ErrExpired,
		},
		{
			name: "inactive",
			code: models.InviteCode{
				ID: uuid.NewString(), Code: "INACTIV1", InviterID: "u1",
				ExpiresAt: time.Now().Add(time.Hour), IsActive: false, MaxUsage: 100,
			},
			in:   "INACTIV1",
			want: ErrInactive,
		},
		{
			name: "usage limit",
			code: models.InviteCode{
				ID: uuid.NewString(), Code: "MAXEDOU1", InviterID: "u1",
				ExpiresAt: time.Now().Add(time.Hour), IsActive: true, UsageCount: 5, MaxUsage: 5,
			},
			in:   "MAXEDOU1",
			want: ErrUsageLimitExceeded,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.code.ID != "" {
				if err := db.Create(&tc.code).Error; err != nil {
					t.Fatalf("seeding code: %v", err)
				}
			}
			v, err := svc.Validate(tc.in)
			if err != nil {
				t.Fatalf("Validate returned a store error: %v", err)
			}
			if v.Valid {
				t.Fatal("expected validation failure")
			}
			if v.ErrorCode != tc.want {
				t.Errorf("expected %s, got %s (%s)", tc.want, v.ErrorCode, v.Message)
			}
			if v.Message == "" {
				t.Error("validation failure should carry a displayable message")
			}
		})
	}
}

func TestValidate_Success(t *testing.T) {
	db := setupTestDB(t)
	svc := NewInviteCodeService(db)

	ic, err := svc.Generate("inviter-1")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	v, err := svc.Validate(ic.Code)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if !v.Valid {
		t.Fatalf("expected valid, got %s: %s", v.ErrorCode, v.Message)
	}
	if v.Code == nil || v.Code.ID != ic.ID {
		t.Error("success should return the hydrated code")
	}
	if v.Code.UsageCount != 0 {
		t.Errorf("fresh code usage = %d, want 0", v.Code.UsageCount)
	}
}

func TestDeactivate_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	svc := NewInviteCodeService(db)

	ic, err := svc.Generate("inviter-1")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if ok, err := svc.Deactivate(ic.ID, "someone-else"); err != nil || ok {
		t.Errorf("deactivate by non-owner: got (%t, %v), want (false, nil)", ok, err)
	}

	ok, err := svc.Deactivate(ic.ID, "inviter-1")
	if err != nil || !ok {
		t.Fatalf("first deactivate: got (%t, %v), want (true, nil)", ok, err)
	}

	ok, err = svc.Deactivate(ic.ID, "inviter-1")
	if err != nil || ok {
		t.Errorf("second deactivate: got (%t, %v), want (false, nil)", ok, err)
	}

	v, err := svc.Validate(ic.Code)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if v.Valid || v.ErrorCode != ErrInactive {
		t.Errorf("deactivated code should validate as %s, got valid=%t code=%s", ErrInactive, v.Valid, v.ErrorCode)
	}
}
