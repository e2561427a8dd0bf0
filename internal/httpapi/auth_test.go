package httpapi

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"possync/backend/internal/domain"
	"possync/backend/internal/store"
)

type userStoreStub struct {
	mu    sync.Mutex
	users map[string]domain.UserAccount
}

func (s *userStoreStub) GetUser(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	if _, exists := s.users[user.Username]; exists {
		return store.ErrInvalidInput
	}
	s.users[user.Username] = user
	return nil
}

// mustHashPassword generates a bcrypt hash of the given password or fails the test.
func mustHashPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

func TestLoginCarriesTenantAndStoreInToken(t *testing.T) {
	users := &userStoreStub{users: map[string]domain.UserAccount{
		"kasir1": {
			Username: "kasir1",
			Password: mustHashPassword(t, "pass1234"),
			Role:     domain.RoleCashier,
			TenantID: "tenant-a",
			StoreID:  "store-a1",
			Active:   true,
		},
	}}
	manager := NewAuthManager("test-secret", time.Hour, users)

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: " Kasir1 ", Password: "pass1234"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.TenantID != "tenant-a" {
		t.Fatalf("expected tenant-a, got %q", resp.TenantID)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Username != "kasir1" || actor.TenantID != "tenant-a" || actor.StoreID != "store-a1" || actor.Role != domain.RoleCashier {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestLoginRejectsPlainTextAndInactiveAccounts(t *testing.T) {
	users := &userStoreStub{users: map[string]domain.UserAccount{
		"legacy": {Username: "legacy", Password: "admin123", Role: domain.RoleAdmin, TenantID: "t", Active: true},
		"gone":   {Username: "gone", Password: mustHashPassword(t, "pass1234"), Role: domain.RoleCashier, TenantID: "t", Active: false},
	}}
	manager := NewAuthManager("test-secret", time.Hour, users)

	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "legacy", Password: "admin123"}); err == nil {
		t.Fatalf("expected plain-text stored password to be refused")
	}
	_, err := manager.Login(context.Background(), domain.LoginRequest{Username: "gone", Password: "pass1234"})
	if err == nil || !strings.Contains(err.Error(), "inactive") {
		t.Fatalf("expected inactive account error, got %v", err)
	}
	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "nobody", Password: "pass1234"}); err != errInvalidCredentials {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestCreateUserStoresPasswordHash(t *testing.T) {
	users := &userStoreStub{}
	manager := NewAuthManager("test-secret", time.Hour, users)

	created, err := manager.CreateUser(context.Background(), domain.UserAccount{
		Username: "KasirBaru",
		Role:     domain.RoleCashier,
		TenantID: "tenant-a",
	}, "pass1234")
	if err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	if created.Username != "kasirbaru" {
		t.Fatalf("unexpected username %s", created.Username)
	}
	if created.Password != "" {
		t.Fatalf("expected password hash to stay out of the returned account")
	}

	stored := users.users["kasirbaru"]
	if !strings.HasPrefix(stored.Password, "$2") {
		t.Fatalf("expected bcrypt hash prefix, got %s", stored.Password)
	}

	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "kasirbaru", Password: "pass1234"}); err != nil {
		t.Fatalf("login with created user failed: %v", err)
	}

	if _, err := manager.CreateUser(context.Background(), domain.UserAccount{Username: "abcd", Role: "owner", TenantID: "tenant-a"}, "pass1234"); err == nil {
		t.Fatalf("expected unknown role to be rejected")
	}
}

func TestParseTokenRejectsForeignSignatureAndAlgorithm(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, nil)
	other := NewAuthManager("another-secret", time.Hour, nil)

	token, _, err := other.IssueToken(domain.Actor{Username: "t1", Role: domain.RoleTerminal, TenantID: "tenant-a"}, time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if _, err := manager.ParseToken(token); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}

	none := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, posCustomClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{Subject: "t1", ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour))},
		Role:             domain.RoleAdmin,
		TenantID:         "tenant-a",
	})
	unsigned, err := none.SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none token: %v", err)
	}
	if _, err := manager.ParseToken(unsigned); err == nil {
		t.Fatalf("expected alg=none token to be rejected")
	}
}

func TestIssueTokenRequiresTenant(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, nil)

	if _, _, err := manager.IssueToken(domain.Actor{Username: "t1", Role: domain.RoleTerminal}, time.Minute); err == nil {
		t.Fatalf("expected token without tenant to be refused")
	}

	fallback, _, err := manager.IssueToken(domain.Actor{Username: "t1", Role: domain.RoleTerminal, TenantID: "tenant-a"}, -time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if _, err := manager.ParseToken(fallback); err != nil {
		t.Fatalf("non-positive ttl falls back to the default ttl, got %v", err)
	}
}
