package services

import (
	"context"
	"errors"
	"testing"

	"gamesync/models"
	"gamesync/store"
)

func TestCanAccess(t *testing.T) {
	st := store.New(store.NewMemoryBackend())
	defer st.Close()
	access := NewAccessService(st)
	ctx := context.Background()

	if err := access.SetPlan(ctx, "student-1", models.PlanStudent); err != nil {
		t.Fatal(err)
	}
	if err := access.SetPlan(ctx, "premium-1", models.PlanPremium); err != nil {
		t.Fatal(err)
	}
	if err := access.SetPlan(ctx, "free-1", models.PlanFree); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		uid     string
		feature string
		want    bool
	}{
		{"student-1", "ai-calling", true},
		{"premium-1", "visual-practice", true},
		{"free-1", "learning-path", false},
		{"nobody", "vc-person", false},
		{"nobody", "word-game", true},
		{"free-1", "chat", true},
	}
	for _, tt := range tests {
		t.Run(tt.uid+"/"+tt.feature, func(t *testing.T) {
			got, err := access.CanAccess(ctx, tt.uid, tt.feature)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("CanAccess(%q, %q) = %v, want %v", tt.uid, tt.feature, got, tt.want)
			}
		})
	}

	if plan, _ := access.Plan(ctx, "nobody"); plan != models.PlanFree {
		t.Errorf("Plan(nobody) = %q, want %q", plan, models.PlanFree)
	}
	if err := access.SetPlan(ctx, "x", "gold"); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("SetPlan(gold) error = %v, want %v", err, ErrInvalidRequest)
	}
}

func TestChangePlanRequiresAdmin(t *testing.T) {
	st := store.New(store.NewMemoryBackend())
	defer st.Close()
	access := NewAccessService(st)
	access.UseAdmins([]string{" Admin@Example.com "})
	ctx := context.Background()

	admin := models.Identity{UID: "u-admin", Email: "admin@example.com"}
	if err := access.ChangePlan(ctx, alice, alice.UID, &SetPlanRequest{Plan: models.PlanPremium}); !errors.Is(err, ErrNotAdmin) {
		t.Errorf("ChangePlan(self) error = %v, want %v", err, ErrNotAdmin)
	}
	if err := access.ChangePlan(ctx, models.Identity{UID: "u-anon"}, alice.UID, &SetPlanRequest{Plan: models.PlanPremium}); !errors.Is(err, ErrNotAdmin) {
		t.Errorf("ChangePlan(no email) error = %v, want %v", err, ErrNotAdmin)
	}
	if plan, _ := access.Plan(ctx, alice.UID); plan != models.PlanFree {
		t.Errorf("Plan after rejected change = %q, want %q", plan, models.PlanFree)
	}

	if err := access.ChangePlan(ctx, admin, alice.UID, &SetPlanRequest{Plan: models.PlanStudent}); err != nil {
		t.Fatalf("ChangePlan(admin) error: %v", err)
	}
	if plan, _ := access.Plan(ctx, alice.UID); plan != models.PlanStudent {
		t.Errorf("Plan = %q, want %q", plan, models.PlanStudent)
	}
}
