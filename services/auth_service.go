package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gamesync/models"
	"gamesync/store"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const tokenTTL = 24 * time.Hour

// AuthService issues and verifies identity tokens. Register and Login are a
// development identity provider backed by the store.
type AuthService struct {
	store     *store.Store
	jwtSecret []byte
	now       func() time.Time
}

func NewAuthService(st *store.Store, jwtSecret string) *AuthService {
	return &AuthService{store: st, jwtSecret: []byte(jwtSecret), now: time.Now}
}

type RegisterRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=6"`
	DisplayName string `json:"displayName" binding:"max=50"`
	PhotoURL    string `json:"photoURL" binding:"omitempty,url"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	Token string          `json:"token"`
	User  models.Identity `json:"user"`
}

type identityClaims struct {
	UID           string `json:"uid"`
	Name          string `json:"name,omitempty"`
	Email         string `json:"email,omitempty"`
	Picture       string `json:"picture,omitempty"`
	EmailVerified bool   `json:"email_verified"`
	jwt.RegisteredClaims
}

func (s *AuthService) Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	account := models.Account{
		UID:          uuid.NewString(),
		Email:        email,
		DisplayName:  strings.TrimSpace(req.DisplayName),
		PhotoURL:     req.PhotoURL,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UnixMilli(),
	}
	_, err = s.store.Transact(ctx, store.JoinPath(accountsPath, emailKey(email)), func(cur store.Snapshot) (any, error) {
		if cur.Exists {
			return nil, ErrEmailTaken
		}
		return account, nil
	})
	if errors.Is(err, store.ErrInvalidPath) {
		return nil, fmt.Errorf("%w: email contains unsupported characters", ErrInvalidRequest)
	}
	if err != nil {
		return nil, err
	}
	return s.respond(account.Identity())
}

func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	snap, err := s.store.Get(ctx, store.JoinPath(accountsPath, emailKey(req.Email)))
	if errors.Is(err, store.ErrInvalidPath) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !snap.Exists {
		return nil, ErrInvalidCredentials
	}
	var account models.Account
	if err := snap.Decode(&account); err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.respond(account.Identity())
}

func (s *AuthService) respond(id models.Identity) (*AuthResponse, error) {
	token, err := s.GenerateToken(id)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{Token: token, User: id}, nil
}

func (s *AuthService) GenerateToken(id models.Identity) (string, error) {
	now := s.now()
	claims := identityClaims{
		UID:           id.UID,
		Name:          id.DisplayName,
		Email:         id.Email,
		Picture:       id.PhotoURL,
		EmailVerified: id.EmailVerified,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *AuthService) ValidateToken(tokenString string) (models.Identity, error) {
	var claims identityClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return models.Identity{}, ErrInvalidToken
	}

	uid := claims.UID
	if uid == "" {
		uid = claims.Subject
	}
	if uid == "" {
		return models.Identity{}, ErrInvalidToken
	}
	return models.Identity{
		UID:           uid,
		DisplayName:   claims.Name,
		Email:         claims.Email,
		PhotoURL:      claims.Picture,
		EmailVerified: claims.EmailVerified,
	}, nil
}
