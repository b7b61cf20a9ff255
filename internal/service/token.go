package service

import (
	"errors"
	"fmt"
	"time"

	"helpdesk-backend/internal/model"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid or expired token")

const guestTokenDuration = 24 * time.Hour

// TokenService validates the JWTs the external auth system issues for
// accounts, and mints short-lived guest tokens for anonymous widget
// visitors so they can hold a stable guest identity.
type TokenService struct {
	secret []byte
}

func NewTokenService(secret string) *TokenService {
	return &TokenService{secret: []byte(secret)}
}

// IssueGuestToken mints a signed guest identity for the chat widget.
func (s *TokenService) IssueGuestToken(name string) (string, string, error) {
	guestID := uuid.NewString()
	if name == "" {
		name = "Guest-" + guestID[:8]
	}

	claims := jwt.MapClaims{
		"sub":   guestID,
		"name":  name,
		"guest": true,
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(guestTokenDuration).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", "", fmt.Errorf("sign guest token: %w", err)
	}
	return token, guestID, nil
}

// Parse validates a token of either kind and returns the resolved
// identity. Guest tokens resolve to a guest identity with the user
// role (guests are always on the user side of a conversation).
func (s *TokenService) Parse(tokenString string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Identity{}, ErrInvalidToken
	}
	name, _ := claims["name"].(string)
	if name == "" {
		name, _ = claims["username"].(string)
	}

	if isGuest, _ := claims["guest"].(bool); isGuest {
		return Identity{GuestID: sub, Name: name, Role: model.RoleUser}, nil
	}

	role, _ := claims["role"].(string)
	if role != model.RoleAdmin {
		role = model.RoleUser
	}
	return Identity{UserID: sub, Name: name, Role: role}, nil
}
