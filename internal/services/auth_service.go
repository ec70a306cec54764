package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"phonestore/internal/domain"
	"phonestore/internal/repos"
	"phonestore/internal/validate"
)

type AuthService struct {
	Users      *repos.UserRepo
	Carts      *repos.CartRepo
	Secret     []byte
	SessionTTL time.Duration
	// MaxLineQty caps merged cart lines at login; 0 means no cap.
	MaxLineQty int
	Now        func() time.Time
}

// Session is the outcome of a successful login.
type Session struct {
	Account *domain.Account
	// SID is the session id minted for this login; the caller's previous
	// token is never reused.
	SID     string
	Token   string
	Expires time.Time
	// MergedLines is how many anonymous cart lines moved to the account.
	MergedLines int64
	// ClampedLines is how many merged lines were cut back to MaxLineQty.
	ClampedLines int64
}

type sessionClaims struct {
	SID  string      `json:"sid"`
	Role domain.Role `json:"role"`
	jwt.RegisteredClaims
}

func (s *AuthService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *AuthService) ttl() time.Duration {
	if s.SessionTTL > 0 {
		return s.SessionTTL
	}
	return 24 * time.Hour
}

func (s *AuthService) Register(ctx context.Context, name, email, password string) (*domain.Account, error) {
	name, email = strings.TrimSpace(name), strings.TrimSpace(email)
	if name == "" || email == "" || password == "" {
		return nil, fmt.Errorf("%w: name, email and password are required", domain.ErrValidation)
	}
	email, ok := validate.Email(email)
	if !ok {
		return nil, fmt.Errorf("%w: invalid email address", domain.ErrValidation)
	}
	if _, ok := validate.Name(name); !ok {
		return nil, fmt.Errorf("%w: name is too long", domain.ErrValidation)
	}
	if !validate.Password(password) {
		return nil, fmt.Errorf("%w: password must be at most 72 bytes", domain.ErrValidation)
	}
	if _, err := s.Users.ByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("%w: email already registered", domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	a := &domain.Account{
		ID:        uuid.NewString(),
		Email:     email,
		Name:      name,
		Hash:      string(hash),
		Role:      domain.RoleUser,
		CreatedAt: s.now().Unix(),
	}
	if err := s.Users.Create(ctx, a); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("%w: email already registered", domain.ErrConflict)
		}
		return nil, err
	}
	return a, nil
}

// Login verifies credentials, moves the anonymous cart of anonSID onto the
// account and binds a new session id to it.
func (s *AuthService) Login(ctx context.Context, anonSID, email, password string) (*Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}
	u, err := s.Users.ByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Hash), []byte(password)) != nil {
		return nil, domain.ErrInvalidCredentials
	}

	now := s.now()
	expires := now.Add(s.ttl())
	sid := uuid.NewString()
	merged, err := s.Carts.MergeForLogin(ctx, u.ID, anonSID, sid, now.Unix(), expires.Unix(), s.MaxLineQty)
	if err != nil {
		return nil, fmt.Errorf("bind session: %w", err)
	}
	if err := s.Users.TouchLogin(ctx, u.ID, now.Unix()); err != nil {
		return nil, err
	}
	tok, err := s.issue(u, sid, now, expires)
	if err != nil {
		return nil, err
	}
	return &Session{
		Account:      u,
		SID:          sid,
		Token:        tok,
		Expires:      expires,
		MergedLines:  merged.Moved,
		ClampedLines: merged.Clamped,
	}, nil
}

func (s *AuthService) Logout(ctx context.Context, sid string) error {
	if sid == "" {
		return nil
	}
	return s.Users.UnbindSession(ctx, sid)
}

// CurrentUser returns the account bound to sid, or domain.ErrNotFound.
func (s *AuthService) CurrentUser(ctx context.Context, sid string) (*domain.Account, error) {
	if sid == "" {
		return nil, domain.ErrNotFound
	}
	return s.Users.SessionUser(ctx, sid, s.now().Unix())
}

func (s *AuthService) issue(u *domain.Account, sid string, now, expires time.Time) (string, error) {
	claims := sessionClaims{
		SID:  sid,
		Role: u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Secret)
}

// TokenUser resolves a bearer token. The token's session must still be
// bound to its subject, so logging out revokes it.
func (s *AuthService) TokenUser(ctx context.Context, token string) (*domain.Account, string, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) { return s.Secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", domain.ErrUnauthenticated, err)
	}
	u, err := s.Users.SessionUser(ctx, claims.SID, s.now().Unix())
	if err != nil || u.ID != claims.Subject {
		return nil, "", domain.ErrUnauthenticated
	}
	return u, claims.SID, nil
}

func (s *AuthService) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	return s.Users.List(ctx)
}

func (s *AuthService) SetRole(ctx context.Context, id string, role domain.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: role must be user or admin", domain.ErrValidation)
	}
	return s.Users.SetRole(ctx, id, role)
}

// EnsureAdmin creates an admin account or promotes and re-keys an
// existing one. It reports whether a new account was created.
func (s *AuthService) EnsureAdmin(ctx context.Context, name, email, password string) (bool, error) {
	u, err := s.Users.ByEmail(ctx, email)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a, err := s.Register(ctx, name, email, password)
		if err != nil {
			return false, err
		}
		return true, s.Users.SetRole(ctx, a.ID, domain.RoleAdmin)
	case err != nil:
		return false, err
	}
	if !validate.Password(password) {
		return false, fmt.Errorf("%w: password must be 1..72 bytes", domain.ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return false, err
	}
	if err := s.Users.SetPassword(ctx, u.ID, string(hash)); err != nil {
		return false, err
	}
	return false, s.Users.SetRole(ctx, u.ID, domain.RoleAdmin)
}
