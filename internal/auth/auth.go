// Package auth issues and verifies credentials for registered players.
// Guests play without any of this; a durable identity only matters for
// session takeover and stats attribution.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/golang-jwt/jwt/v5"

	"github.com/pitchside/pitchside/internal/store"
)

const tokenTTL = 30 * 24 * time.Hour

type Identity struct {
	UserID   int64
	Username string
}

type Service struct {
	users  *store.UserStore
	secret []byte
}

func NewService(users *store.UserStore, secret string) *Service {
	return &Service{users: users, secret: []byte(secret)}
}

// Register creates a user with a hashed password and returns a signed token.
func (s *Service) Register(ctx context.Context, username, password string) (string, *Identity, error) {
	if username == "" || password == "" {
		return "", nil, fmt.Errorf("username and password are required")
	}

	existing, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return "", nil, fmt.Errorf("lookup user: %w", err)
	}
	if existing != nil {
		return "", nil, fmt.Errorf("username already taken")
	}

	hash, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		return "", nil, fmt.Errorf("hash password: %w", err)
	}

	u, err := s.users.Create(ctx, username, hash)
	if err != nil {
		return "", nil, fmt.Errorf("create user: %w", err)
	}
	return s.issue(u)
}

// Login verifies the password and returns a signed token.
func (s *Service) Login(ctx context.Context, username, password string) (string, *Identity, error) {
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return "", nil, fmt.Errorf("lookup user: %w", err)
	}
	if u == nil {
		return "", nil, fmt.Errorf("invalid credentials")
	}

	match, err := argon2id.ComparePasswordAndHash(password, u.PasswordHash)
	if err != nil {
		return "", nil, fmt.Errorf("verify password: %w", err)
	}
	if !match {
		return "", nil, fmt.Errorf("invalid credentials")
	}
	return s.issue(u)
}

// VerifyToken parses and validates a token, returning the identity it names.
func (s *Service) VerifyToken(token string) (*Identity, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid claims")
	}
	userID, _ := claims["userId"].(float64)
	username, _ := claims["username"].(string)
	if userID == 0 || username == "" {
		return nil, fmt.Errorf("invalid claims")
	}
	return &Identity{UserID: int64(userID), Username: username}, nil
}

func (s *Service) issue(u *store.User) (string, *Identity, error) {
	claims := jwt.MapClaims{
		"userId":   u.ID,
		"username": u.Username,
		"exp":      time.Now().Add(tokenTTL).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return token, &Identity{UserID: u.ID, Username: u.Username}, nil
}
