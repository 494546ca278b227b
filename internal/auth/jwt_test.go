package auth

import (
	"testing"

	"github.com/google/uuid"

	"github.com/yourorg/stock-trader/internal/domain"
)

func TestJWTRoundTrip(t *testing.T) {
	svc := NewJWTService("test-secret")
	userID := uuid.New()

	token, err := svc.Sign(userID, domain.RoleAdmin)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	claims, err := svc.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.UserID != userID {
		t.Errorf("UserID = %s, want %s", claims.UserID, userID)
	}
	if claims.Role != domain.RoleAdmin {
		t.Errorf("Role = %s, want admin", claims.Role)
	}
}

func TestJWTWrongSecret(t *testing.T) {
	token, err := NewJWTService("secret-a").Sign(uuid.New(), domain.RoleCustomer)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := NewJWTService("secret-b").Parse(token); err == nil {
		t.Error("Parse accepted a token signed with a different secret")
	}
}

func TestJWTGarbage(t *testing.T) {
	if _, err := NewJWTService("secret").Parse("not-a-token"); err == nil {
		t.Error("Parse accepted garbage input")
	}
}
