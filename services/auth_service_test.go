package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"gamesync/store"
)

func newTestAuth(t *testing.T) (*AuthService, *fakeClock) {
	t.Helper()
	st := store.New(store.NewMemoryBackend())
	t.Cleanup(func() { st.Close() })
	clock := &fakeClock{t: time.Now()}
	auth := NewAuthService(st, "test-secret")
	auth.now = clock.Now
	return auth, clock
}

func TestRegisterAndLogin(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	reg, err := auth.Register(ctx, &RegisterRequest{Email: "Ada@Example.com", Password: "secret1", DisplayName: "Ada"})
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if reg.User.Email != "ada@example.com" || reg.User.UID == "" {
		t.Errorf("User = %+v, want lower-cased email and a uid", reg.User)
	}

	if _, err := auth.Register(ctx, &RegisterRequest{Email: "ada@example.com", Password: "other12"}); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("duplicate Register() error = %v, want %v", err, ErrEmailTaken)
	}

	tests := []struct {
		name     string
		email    string
		password string
		want     error
	}{
		{"valid", "ADA@example.com", "secret1", nil},
		{"wrong password", "ada@example.com", "nope", ErrInvalidCredentials},
		{"unknown email", "bob@example.com", "secret1", ErrInvalidCredentials},
		{"illegal key", "a[b]@example.com", "secret1", ErrInvalidCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := auth.Login(ctx, &LoginRequest{Email: tt.email, Password: tt.password})
			if !errors.Is(err, tt.want) {
				t.Fatalf("Login() error = %v, want %v", err, tt.want)
			}
			if err == nil && resp.User.UID != reg.User.UID {
				t.Errorf("UID = %q, want %q", resp.User.UID, reg.User.UID)
			}
		})
	}

	identity, err := auth.ValidateToken(reg.Token)
	if err != nil {
		t.Fatalf("ValidateToken() error: %v", err)
	}
	if identity != reg.User {
		t.Errorf("ValidateToken() = %+v, want %+v", identity, reg.User)
	}
}

func TestValidateTokenRejects(t *testing.T) {
	auth, clock := newTestAuth(t)
	token, err := auth.GenerateToken(alice)
	if err != nil {
		t.Fatal(err)
	}

	other, _ := newTestAuth(t)
	other.jwtSecret = []byte("different")
	forged, _ := other.GenerateToken(alice)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"tampered", token + "x"},
		{"wrong secret", forged},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := auth.ValidateToken(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("ValidateToken() error = %v, want %v", err, ErrInvalidToken)
			}
		})
	}

	clock.Advance(tokenTTL + time.Minute)
	if _, err := auth.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("ValidateToken(expired) error = %v, want %v", err, ErrInvalidToken)
	}
}
