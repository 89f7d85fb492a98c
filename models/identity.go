package models

// Identity is what the identity provider vouches for.
type Identity struct {
	UID           string `json:"uid"`
	DisplayName   string `json:"displayName"`
	Email         string `json:"email"`
	PhotoURL      string `json:"photoURL,omitempty"`
	EmailVerified bool   `json:"emailVerified"`
}

// Account is a development identity-provider record at accounts/{emailKey}.
type Account struct {
	UID           string `json:"uid"`
	Email         string `json:"email"`
	DisplayName   string `json:"displayName"`
	PhotoURL      string `json:"photoURL,omitempty"`
	PasswordHash  string `json:"passwordHash"`
	EmailVerified bool   `json:"emailVerified"`
	CreatedAt     int64  `json:"createdAt"`
}

func (a *Account) Identity() Identity {
	return Identity{
		UID:           a.UID,
		DisplayName:   a.DisplayName,
		Email:         a.Email,
		PhotoURL:      a.PhotoURL,
		EmailVerified: a.EmailVerified,
	}
}

// Subscription is read from users/{uid}/subscription.
type Subscription struct {
	Plan string `json:"plan"`
}

const (
	PlanFree    = "free"
	PlanStudent = "student"
	PlanPremium = "premium"
)
