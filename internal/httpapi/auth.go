package httpapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"possync/backend/internal/domain"
	"possync/backend/internal/store"
)

var errInvalidCredentials = errors.New("invalid credentials")

type AuthManager struct {
	secret    []byte
	tokenTTL  time.Duration
	userStore UserStore
}

type UserStore interface {
	GetUser(ctx context.Context, username string) (*domain.UserAccount, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
}

type posCustomClaims struct {
	jwtlib.RegisteredClaims
	Role     string `json:"role"`
	TenantID string `json:"tenant_id"`
	StoreID  string `json:"store_id,omitempty"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, userStore UserStore) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	return &AuthManager{
		secret:    []byte(secret),
		tokenTTL:  tokenTTL,
		userStore: userStore,
	}
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	if a.userStore == nil {
		return domain.LoginResponse{}, errInvalidCredentials
	}
	username := strings.ToLower(strings.TrimSpace(req.Username))
	user, err := a.userStore.GetUser(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.LoginResponse{}, errInvalidCredentials
		}
		return domain.LoginResponse{}, err
	}
	if !verifyPassword(user.Password, req.Password) {
		return domain.LoginResponse{}, errInvalidCredentials
	}
	if !user.Active {
		return domain.LoginResponse{}, errors.New("account is inactive")
	}

	actor := domain.Actor{
		Username: user.Username,
		Role:     user.Role,
		TenantID: user.TenantID,
		StoreID:  user.StoreID,
	}
	token, expiresAt, err := a.IssueToken(actor, a.tokenTTL)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		Role:        user.Role,
		TenantID:    user.TenantID,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

// IssueToken signs a token for an actor without a password check. Terminals get their
// long-lived tokens this way.
func (a *AuthManager) IssueToken(actor domain.Actor, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(actor.Username) == "" {
		return "", time.Time{}, errors.New("token subject is required")
	}
	if strings.TrimSpace(actor.TenantID) == "" {
		return "", time.Time{}, errors.New("token tenant is required")
	}
	if !isKnownRole(actor.Role) {
		return "", time.Time{}, fmt.Errorf("unknown role %q", actor.Role)
	}
	if ttl <= 0 {
		ttl = a.tokenTTL
	}

	now := time.Now().UTC()
	expiresAt := now.Add(ttl)
	claims := posCustomClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   actor.Username,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "possync",
		},
		Role:     actor.Role,
		TenantID: actor.TenantID,
		StoreID:  actor.StoreID,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &posCustomClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	if claims.TenantID == "" {
		return domain.Actor{}, errors.New("token carries no tenant")
	}
	return domain.Actor{
		Username: sub,
		Role:     claims.Role,
		TenantID: claims.TenantID,
		StoreID:  claims.StoreID,
	}, nil
}

// CreateUser stores a new account with a bcrypt hash of password.
func (a *AuthManager) CreateUser(ctx context.Context, account domain.UserAccount, password string) (domain.UserAccount, error) {
	if a.userStore == nil {
		return domain.UserAccount{}, errors.New("user store is not configured")
	}
	account.Username = strings.ToLower(strings.TrimSpace(account.Username))
	if len(account.Username) < 4 {
		return domain.UserAccount{}, fmt.Errorf("username must be at least 4 characters")
	}
	if strings.ContainsAny(account.Username, " \t\r\n") {
		return domain.UserAccount{}, fmt.Errorf("username must not contain spaces")
	}
	if len(password) < 6 {
		return domain.UserAccount{}, fmt.Errorf("password must be at least 6 characters")
	}
	if strings.TrimSpace(account.TenantID) == "" {
		return domain.UserAccount{}, fmt.Errorf("tenant is required")
	}
	if !isKnownRole(account.Role) {
		return domain.UserAccount{}, fmt.Errorf("unknown role %q", account.Role)
	}

	hash, err := hashPassword(password)
	if err != nil {
		return domain.UserAccount{}, fmt.Errorf("failed to hash password")
	}
	account.Password = hash
	account.Active = true
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	if err := a.userStore.CreateUser(ctx, account); err != nil {
		return domain.UserAccount{}, err
	}
	account.Password = ""
	return account, nil
}

func isKnownRole(role string) bool {
	switch role {
	case domain.RoleAdmin, domain.RoleCashier, domain.RoleTerminal:
		return true
	}
	return false
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
