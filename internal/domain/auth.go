package domain

import (
	"time"
)

type Role string

const (
	RoleAdmin      Role = "admin"
	RoleConsultant Role = "consultant"
	RoleViewer     Role = "viewer"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleConsultant, RoleViewer:
		return true
	}
	return false
}

type User struct {
	ID            string
	TenantID      string
	Email         string // always lower-cased
	Name          string
	PasswordHash  string `json:"-"`
	EmailVerified bool
	Role          Role
	DeactivatedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (u *User) Active() bool {
	return u.DeactivatedAt == nil
}

type TokenPurpose string

const (
	PurposeSession           TokenPurpose = "session"
	PurposeEmailVerification TokenPurpose = "email_verification"
	PurposePasswordReset     TokenPurpose = "password_reset"
)

// SingleUse reports whether a token of this purpose is invalidated on first use.
func (p TokenPurpose) SingleUse() bool {
	return p == PurposeEmailVerification || p == PurposePasswordReset
}

type TokenState string

const (
	TokenIssued   TokenState = "issued"
	TokenConsumed TokenState = "consumed"
	TokenExpired  TokenState = "expired"
	TokenRevoked  TokenState = "revoked"
)

// Token is a persisted credential. Only the fingerprint of the bearer value is stored.
type Token struct {
	ID         string
	UserID     string
	TokenHash  string
	Purpose    TokenPurpose
	IssuedAt   time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time
	RevokedAt  *time.Time
}

// State derives the lifecycle state at now. Consumed and revoked take
// precedence over expiry: once terminal, a token never changes state.
func (t *Token) State(now time.Time) TokenState {
	switch {
	case t.ConsumedAt != nil:
		return TokenConsumed
	case t.RevokedAt != nil:
		return TokenRevoked
	case !now.Before(t.ExpiresAt):
		return TokenExpired
	default:
		return TokenIssued
	}
}

// Principal is the authenticated caller of an operation.
type Principal struct {
	UserID   string
	TenantID string
	Role     Role
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }
