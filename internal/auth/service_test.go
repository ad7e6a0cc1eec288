package auth

import (
	"context"
	"testing"
	"time"
)

func TestIssueAndValidateRoundTrip(t *testing.T) {
	svc := NewService()
	ctx := context.Background()

	token, err := svc.IssueToken(ctx, 42)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	userID, err := svc.ValidateToken(ctx, token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if userID != 42 {
		t.Errorf("userID = %d, want 42", userID)
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	svc := NewService()

	if _, err := svc.ValidateToken(context.Background(), "not-a-token"); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestValidateRejectsForeignSignature(t *testing.T) {
	ctx := context.Background()
	a := &service{secret: []byte("secret-a"), ttl: 24 * time.Hour}
	b := &service{secret: []byte("secret-b"), ttl: 24 * time.Hour}

	token, err := a.IssueToken(ctx, 1)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := b.ValidateToken(ctx, token); err != ErrInvalidToken {
		t.Errorf("token signed with another secret must be rejected, got %v", err)
	}
}
