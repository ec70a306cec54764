package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"phonestore/internal/domain"
	applog "phonestore/internal/log"
	"phonestore/internal/mail"
	"phonestore/internal/repos"
	"phonestore/internal/validate"
)

// RecoveryService runs the password reset flow:
// NORMAL -> RESET_PENDING (code issued) -> NORMAL (code consumed),
// with RESET_EXPIRED once the code outlives its TTL.
type RecoveryService struct {
	Users   *repos.UserRepo
	Mail    mail.Sender
	CodeTTL time.Duration
	Now     func() time.Time
	// NewCode is swapped in tests; defaults to a random six digit code.
	NewCode func() (string, error)
}

func (s *RecoveryService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *RecoveryService) codeTTL() time.Duration {
	if s.CodeTTL > 0 {
		return s.CodeTTL
	}
	return 15 * time.Minute
}

// RandomCode returns a uniformly random code in 100000..999999.
func RandomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// RequestReset never reveals whether email is registered. It only fails
// when the store itself fails.
func (s *RecoveryService) RequestReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil
	}
	u, err := s.Users.ByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		applog.Info(nil, "auth.reset.unknown_email", nil)
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrUnavailable, err)
	}

	gen := s.NewCode
	if gen == nil {
		gen = RandomCode
	}
	code, err := gen()
	if err != nil {
		return err
	}
	expires := s.now().Add(s.codeTTL())
	if err := s.Users.SetResetCode(ctx, u.ID, code, expires.Unix()); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrUnavailable, err)
	}
	applog.Audit(nil, "auth.reset.issued", map[string]any{"user_id": u.ID, "expires": expires.Unix()})

	s.notify(ctx, u.Email, "Your password reset code",
		fmt.Sprintf("Hello %s,\n\nYour password reset code is: %s\n\nThis code expires in %d minutes. If you did not request a reset you can ignore this email.",
			u.Name, code, int(s.codeTTL().Minutes())))
	return nil
}

// check loads the account and validates code against its pending reset.
func (s *RecoveryService) check(ctx context.Context, email, code string) (*domain.Account, error) {
	code, ok := validate.Code(code)
	if !ok {
		return nil, domain.ErrInvalidCode
	}
	u, err := s.Users.ByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrInvalidCode
	}
	if err != nil {
		return nil, err
	}
	if u.RecoveryState(s.now()) != domain.RecoveryPending {
		return nil, domain.ErrInvalidCode
	}
	if subtle.ConstantTimeCompare([]byte(*u.ResetCode), []byte(code)) != 1 {
		return nil, domain.ErrInvalidCode
	}
	return u, nil
}

func (s *RecoveryService) VerifyCode(ctx context.Context, email, code string) error {
	if strings.TrimSpace(email) == "" || strings.TrimSpace(code) == "" {
		return fmt.Errorf("%w: email and code are required", domain.ErrValidation)
	}
	_, err := s.check(ctx, email, code)
	return err
}

// ResetPassword consumes the code. The swap is conditional on the code
// still being pending, so a code can be used once even under races.
func (s *RecoveryService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if strings.TrimSpace(email) == "" || strings.TrimSpace(code) == "" || newPassword == "" {
		return fmt.Errorf("%w: email, code and new password are required", domain.ErrValidation)
	}
	if !validate.Password(newPassword) {
		return fmt.Errorf("%w: password must be at most 72 bytes", domain.ErrValidation)
	}
	u, err := s.check(ctx, email, code)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	ok, err := s.Users.ConsumeResetCode(ctx, u.ID, strings.TrimSpace(code), s.now().Unix(), string(hash))
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrInvalidCode
	}
	applog.Audit(nil, "auth.reset.completed", map[string]any{"user_id": u.ID})

	s.notify(ctx, u.Email, "Your password was changed",
		fmt.Sprintf("Hello %s,\n\nThe password for your account was just reset. If this was not you, contact support immediately.", u.Name))
	return nil
}

func (s *RecoveryService) notify(ctx context.Context, to, subject, body string) {
	if s.Mail == nil || !s.Mail.Enabled() {
		applog.Info(nil, "mail.skipped", map[string]any{"subject": subject})
		return
	}
	if err := s.Mail.Send(ctx, to, subject, body); err != nil {
		applog.Error(nil, "mail.send.fail", err, map[string]any{"subject": subject})
	}
}
