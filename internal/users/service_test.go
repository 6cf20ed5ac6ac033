package users

import (
	"context"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"place-registry/internal/auth"
	testutil "place-registry/internal/testing"
	errs "place-registry/pkg/errors"
)

func newTestService(t *testing.T) (*Service, *testutil.Store) {
	t.Helper()
	store := testutil.NewStore()
	s := NewService(store.Users(), auth.NewTokens("secret", 0), nil)
	s.cost = bcrypt.MinCost
	return s, store
}

func TestSignupAndLogin(t *testing.T) {
	s, store := newTestService(t)
	ctx := context.Background()

	sess, err := s.Signup(ctx, SignupInput{Name: "Max", Email: " Max@Test.com ", Password: "secret1", Image: "uploads/images/max.png"})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if sess.Token == "" || sess.User.Email != "max@test.com" {
		t.Fatalf("unexpected session: %+v", sess)
	}
	stored, ok := store.User(sess.User.ID)
	if !ok || stored.PasswordHash == "secret1" || len(stored.Places) != 0 {
		t.Fatalf("stored user not hashed or not empty: %+v", stored)
	}

	if _, err := s.Signup(ctx, SignupInput{Name: "Max", Email: "max@test.com", Password: "secret1"}); !errs.Is(err, errs.ErrValidation) {
		t.Fatalf("duplicate signup: want validation error, got %v", err)
	}

	login, err := s.Login(ctx, "MAX@test.com", "secret1")
	if err != nil || login.User.ID != sess.User.ID {
		t.Fatalf("login: %+v %v", login, err)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	if _, err := s.Signup(ctx, SignupInput{Name: "Max", Email: "max@test.com", Password: "secret1"}); err != nil {
		t.Fatalf("signup: %v", err)
	}

	tests := []struct{ name, email, password string }{
		{"wrong password", "max@test.com", "secret2"},
		{"unknown email", "ann@test.com", "secret1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Login(ctx, tt.email, tt.password); !errs.Is(err, errs.ErrAuthorization) {
				t.Fatalf("want authorization error, got %v", err)
			}
		})
	}
}

func TestList(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	for _, e := range []string{"a@test.com", "b@test.com"} {
		if _, err := s.Signup(ctx, SignupInput{Name: "x", Email: e, Password: "secret1"}); err != nil {
			t.Fatalf("signup: %v", err)
		}
	}
	list, err := s.List(ctx)
	if err != nil || len(list) != 2 {
		t.Fatalf("list: %d %v", len(list), err)
	}
}
