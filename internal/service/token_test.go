package service

import (
	"testing"
	"time"

	"helpdesk-backend/internal/model"

	"github.com/golang-jwt/jwt/v5"
)

func signAccountToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func TestGuestTokenRoundtrip(t *testing.T) {
	svc := NewTokenService("test-secret")

	token, guestID, err := svc.IssueGuestToken("visitor")
	if err != nil {
		t.Fatalf("IssueGuestToken: %v", err)
	}
	if guestID == "" {
		t.Fatal("empty guest id")
	}

	ident, err := svc.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if ident.GuestID != guestID {
		t.Fatalf("GuestID = %s, want %s", ident.GuestID, guestID)
	}
	if ident.UserID != "" {
		t.Fatalf("UserID = %s, want empty for a guest", ident.UserID)
	}
	if ident.Name != "visitor" {
		t.Fatalf("Name = %s, want visitor", ident.Name)
	}
	if ident.Role != model.RoleUser {
		t.Fatalf("Role = %s, want %s", ident.Role, model.RoleUser)
	}
}

func TestGuestTokenGetsFallbackName(t *testing.T) {
	svc := NewTokenService("test-secret")

	token, guestID, err := svc.IssueGuestToken("")
	if err != nil {
		t.Fatalf("IssueGuestToken: %v", err)
	}
	ident, err := svc.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := "Guest-" + guestID[:8]
	if ident.Name != want {
		t.Fatalf("Name = %s, want %s", ident.Name, want)
	}
}

func TestParseAccountToken(t *testing.T) {
	svc := NewTokenService("test-secret")

	for _, tc := range []struct {
		name     string
		role     string
		wantRole string
	}{
		{"admin stays admin", "admin", model.RoleAdmin},
		{"user stays user", "user", model.RoleUser},
		{"unknown role downgrades", "superuser", model.RoleUser},
		{"missing role downgrades", "", model.RoleUser},
	} {
		t.Run(tc.name, func(t *testing.T) {
			claims := jwt.MapClaims{
				"sub":      "u1",
				"username": "alice",
				"exp":      time.Now().Add(time.Hour).Unix(),
			}
			if tc.role != "" {
				claims["role"] = tc.role
			}
			ident, err := svc.Parse(signAccountToken(t, "test-secret", claims))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if ident.UserID != "u1" || ident.GuestID != "" {
				t.Fatalf("identity = %+v, want account u1", ident)
			}
			if ident.Name != "alice" {
				t.Fatalf("Name = %s, want alice", ident.Name)
			}
			if ident.Role != tc.wantRole {
				t.Fatalf("Role = %s, want %s", ident.Role, tc.wantRole)
			}
		})
	}
}

func TestParseRejectsBadTokens(t *testing.T) {
	svc := NewTokenService("test-secret")

	expired := signAccountToken(t, "test-secret", jwt.MapClaims{
		"sub": "u1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	wrongKey := signAccountToken(t, "other-secret", jwt.MapClaims{
		"sub": "u1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	noSubject := signAccountToken(t, "test-secret", jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	for _, tc := range []struct {
		name  string
		token string
	}{
		{"garbage", "not.a.token"},
		{"expired", expired},
		{"wrong key", wrongKey},
		{"no subject", noSubject},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Parse(tc.token); err != ErrInvalidToken {
				t.Fatalf("err = %v, want ErrInvalidToken", err)
			}
		})
	}
}
