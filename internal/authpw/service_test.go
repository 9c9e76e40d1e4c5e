package authpw

import (
	"context"
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"notebook/api/internal/store"
)

type fakeAccountStore struct {
	byEmail   map[string]store.Account
	lookupErr error
}

func newFakeAccountStore() *fakeAccountStore {
	return &fakeAccountStore{byEmail: map[string]store.Account{}}
}

func (f *fakeAccountStore) GetAccountByEmail(_ context.Context, email string) (store.Account, error) {
	if f.lookupErr != nil {
		return store.Account{}, f.lookupErr
	}
	account, ok := f.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return store.Account{}, store.ErrNotFound
	}
	return account, nil
}

func (f *fakeAccountStore) CreateAccount(_ context.Context, account store.Account) (store.Account, error) {
	if _, ok := f.byEmail[account.Email]; ok {
		return store.Account{}, store.ErrDuplicate
	}
	f.byEmail[account.Email] = account
	return account, nil
}

func newTestService(accounts AccountStore) *Service {
	svc := NewService(accounts)
	svc.cost = bcrypt.MinCost
	return svc
}

func TestSignUpThenSignIn(t *testing.T) {
	accounts := newFakeAccountStore()
	svc := newTestService(accounts)
	ctx := context.Background()

	created, err := svc.SignUp(ctx, SignUpRequest{Email: " Ada@Example.com ", Password: "correct horse", DisplayName: "Ada"})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if !strings.HasPrefix(created.ID, "acc_") {
		t.Errorf("expected acc_ prefix, got %s", created.ID)
	}
	if created.Email != "ada@example.com" {
		t.Errorf("expected normalized email, got %s", created.Email)
	}
	if created.PasswordHash == "correct horse" {
		t.Error("password stored in plain text")
	}

	signedIn, err := svc.SignIn(ctx, "ada@example.com", "correct horse")
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if signedIn.ID != created.ID {
		t.Errorf("expected %s, got %s", created.ID, signedIn.ID)
	}
}

func TestSignUpValidation(t *testing.T) {
	svc := newTestService(newFakeAccountStore())
	tests := []struct {
		name string
		req  SignUpRequest
	}{
		{"missing email", SignUpRequest{Password: "longenough", DisplayName: "A"}},
		{"missing name", SignUpRequest{Email: "a@example.com", Password: "longenough"}},
		{"bad email", SignUpRequest{Email: "nope", Password: "longenough", DisplayName: "A"}},
		{"short password", SignUpRequest{Email: "a@example.com", Password: "short", DisplayName: "A"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.SignUp(context.Background(), tt.req); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestSignUpDuplicateEmail(t *testing.T) {
	svc := newTestService(newFakeAccountStore())
	req := SignUpRequest{Email: "a@example.com", Password: "longenough", DisplayName: "A"}
	if _, err := svc.SignUp(context.Background(), req); err != nil {
		t.Fatalf("first SignUp failed: %v", err)
	}
	if _, err := svc.SignUp(context.Background(), req); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestSignUpSurfacesStorageErrors(t *testing.T) {
	accounts := newFakeAccountStore()
	accounts.lookupErr = errors.New("db down")
	svc := newTestService(accounts)

	_, err := svc.SignUp(context.Background(), SignUpRequest{Email: "a@example.com", Password: "longenough", DisplayName: "A"})
	if err == nil || errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected wrapped storage error, got %v", err)
	}
}

func TestSignInRejectsBadCredentials(t *testing.T) {
	svc := newTestService(newFakeAccountStore())
	ctx := context.Background()
	if _, err := svc.SignUp(ctx, SignUpRequest{Email: "a@example.com", Password: "longenough", DisplayName: "A"}); err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}

	for _, tc := range []struct{ email, password string }{
		{"a@example.com", "wrong-password"},
		{"missing@example.com", "longenough"},
		{"", ""},
	} {
		if _, err := svc.SignIn(ctx, tc.email, tc.password); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("SignIn(%q) expected ErrInvalidCredentials, got %v", tc.email, err)
		}
	}
}
