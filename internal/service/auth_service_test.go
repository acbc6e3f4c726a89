package service

import (
	"context"
	"errors"
	"testing"

	"github.com/blogpulse/internal/db"
)

func TestAuthenticate(t *testing.T) {
	gdb := setupServiceTestDB(t)
	ctx := context.Background()

	if err := db.EnsureUser(gdb, "admin", "s3cret"); err != nil {
		t.Fatalf("ensure user failed: %v", err)
	}

	svc := NewAuthService(gdb)
	user, err := svc.Authenticate(ctx, " admin ", "s3cret")
	if err != nil {
		t.Fatalf("expected valid credentials to pass: %v", err)
	}
	if user.Username != "admin" {
		t.Fatalf("unexpected user: %+v", user)
	}

	cases := []struct{ username, password string }{
		{"admin", "wrong"},
		{"nobody", "s3cret"},
		{"", ""},
	}
	for _, tc := range cases {
		if _, err := svc.Authenticate(ctx, tc.username, tc.password); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized for %q, got %v", tc.username, err)
		}
	}
}
