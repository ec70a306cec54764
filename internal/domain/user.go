package domain

import "time"

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool { return r == RoleUser || r == RoleAdmin }

// RecoveryState is derived from the reset-code columns of an account.
type RecoveryState string

const (
	RecoveryNormal  RecoveryState = "NORMAL"
	RecoveryPending RecoveryState = "RESET_PENDING"
	RecoveryExpired RecoveryState = "RESET_EXPIRED"
)

type Account struct {
	ID               string  `db:"id" json:"id"`
	Email            string  `db:"email" json:"email"`
	Name             string  `db:"name" json:"name"`
	Hash             string  `db:"password_hash" json:"-"`
	Role             Role    `db:"role" json:"role"`
	ResetCode        *string `db:"reset_code" json:"-"`
	ResetCodeExpires *int64  `db:"reset_code_expires" json:"-"`
	CreatedAt        int64   `db:"created_at" json:"created_at"`
	LastLoginAt      *int64  `db:"last_login_at" json:"last_login_at,omitempty"`
}

func (a *Account) IsAdmin() bool { return a != nil && a.Role == RoleAdmin }

func (a *Account) RecoveryState(now time.Time) RecoveryState {
	if a.ResetCode == nil || a.ResetCodeExpires == nil {
		return RecoveryNormal
	}
	if now.Unix() > *a.ResetCodeExpires {
		return RecoveryExpired
	}
	return RecoveryPending
}
