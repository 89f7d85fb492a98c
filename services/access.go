package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"gamesync/models"
	"gamesync/store"
)

var premiumFeatures = map[string]bool{
	"ai-calling":      true,
	"vc-person":       true,
	"learning-path":   true,
	"visual-practice": true,
}

type AccessService struct {
	store  *store.Store
	admins map[string]bool
}

func NewAccessService(st *store.Store) *AccessService {
	return &AccessService{store: st}
}

// UseAdmins lets the accounts with these emails change anyone's plan.
func (a *AccessService) UseAdmins(emails []string) {
	a.admins = make(map[string]bool, len(emails))
	for _, email := range emails {
		a.admins[strings.ToLower(strings.TrimSpace(email))] = true
	}
}

func (a *AccessService) IsAdmin(caller models.Identity) bool {
	return caller.Email != "" && a.admins[strings.ToLower(caller.Email)]
}

type SetPlanRequest struct {
	Plan string `json:"plan" binding:"required,oneof=free student premium"`
}

// Plan returns the user's subscription plan, free when none is stored.
func (a *AccessService) Plan(ctx context.Context, uid string) (string, error) {
	snap, err := a.store.Get(ctx, store.JoinPath(usersPath, uid, "subscription"))
	if err != nil {
		return "", err
	}
	var sub models.Subscription
	if err := snap.Decode(&sub); err != nil {
		return "", err
	}
	if sub.Plan == "" {
		return models.PlanFree, nil
	}
	return sub.Plan, nil
}

// CanAccess reports whether uid may use feature. Features outside the paid
// set are open to everyone.
func (a *AccessService) CanAccess(ctx context.Context, uid, feature string) (bool, error) {
	if !premiumFeatures[feature] {
		return true, nil
	}
	plan, err := a.Plan(ctx, uid)
	if err != nil {
		return false, err
	}
	return plan == models.PlanStudent || plan == models.PlanPremium, nil
}

func (a *AccessService) SetPlan(ctx context.Context, uid, plan string) error {
	switch plan {
	case models.PlanFree, models.PlanStudent, models.PlanPremium:
	default:
		return fmt.Errorf("%w: unknown plan %q", ErrInvalidRequest, plan)
	}
	return a.store.Set(ctx, store.JoinPath(usersPath, uid, "subscription"), models.Subscription{Plan: plan})
}

// ChangePlan sets uid's plan on an administrator's request.
func (a *AccessService) ChangePlan(ctx context.Context, caller models.Identity, uid string, req *SetPlanRequest) error {
	if !a.IsAdmin(caller) {
		return ErrNotAdmin
	}
	if err := a.SetPlan(ctx, uid, req.Plan); err != nil {
		return err
	}
	log.Printf("Plan of %s set to %s by %s", uid, req.Plan, caller.UID)
	return nil
}
