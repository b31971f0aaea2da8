package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/blackbelt-platform/core/internal/cryptox"
	"github.com/blackbelt-platform/core/internal/domain"
	"github.com/blackbelt-platform/core/internal/metrics"
	"github.com/blackbelt-platform/core/internal/notify"
	"github.com/blackbelt-platform/core/internal/repository"
	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultSessionTTL = 24 * time.Hour
	verifyEmailTTL    = 48 * time.Hour
	passwordResetTTL  = 1 * time.Hour

	minPasswordLength = 8
)

var validate = validator.New()

// sessionClaims is the payload of a session bearer. The bearer is also stored
// by fingerprint, and the store decides whether it is still live.
type sessionClaims struct {
	TenantID string `json:"tid"`
	jwt.RegisteredClaims
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	User      *domain.User
	Token     string
	ExpiresAt time.Time
}

// TokenInfo is what ValidateToken resolves a bearer to.
type TokenInfo struct {
	User    *domain.User
	Purpose domain.TokenPurpose
}

type AuthUsecase struct {
	users      repository.UserRepository
	tokens     repository.TokenRepository
	sender     notify.Sender
	jwtKey     []byte
	sessionTTL time.Duration
	appBaseURL string
	logger     *slog.Logger
	now        func() time.Time

	// dummyHash is verified against when the email is unknown so both paths
	// cost one argon2 derivation.
	dummyHash string
}

func NewAuthUsecase(
	users repository.UserRepository,
	tokens repository.TokenRepository,
	sender notify.Sender,
	jwtKey []byte,
	sessionTTL time.Duration,
	appBaseURL string,
	logger *slog.Logger,
) *AuthUsecase {
	if sessionTTL <= 0 {
		sessionTTL = defaultSessionTTL
	}
	u := &AuthUsecase{
		users:      users,
		tokens:     tokens,
		sender:     sender,
		jwtKey:     jwtKey,
		sessionTTL: sessionTTL,
		appBaseURL: appBaseURL,
		logger:     logger.With("component", "auth"),
		now:        time.Now,
	}
	if h, err := cryptox.HashPassword(uuid.NewString()); err == nil {
		u.dummyHash = h
	}
	return u
}

// WithClock replaces the time source used for issuing and validating tokens.
func (u *AuthUsecase) WithClock(now func() time.Time) *AuthUsecase {
	u.now = now
	return u
}

// Register creates the user in a new tenant as its admin, emails a
// verification link and returns a login session.
func (u *AuthUsecase) Register(ctx context.Context, email, password, name string) (*AuthResult, error) {
	email = normalizeEmail(email)
	if err := validate.Var(email, "required,email,max=254"); err != nil {
		return nil, domain.Validationf("email is malformed")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.Validationf("name is required")
	}
	if len(password) < minPasswordLength {
		return nil, domain.ErrWeakPassword
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := u.users.Create(ctx, &domain.User{
		TenantID:     uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         domain.RoleAdmin,
	})
	if err != nil {
		if errors.Is(err, domain.ErrEmailTaken) {
			metrics.AuthEventsTotal.WithLabelValues("register", "rejected").Inc()
			return nil, err
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	if err := u.sendVerification(ctx, user); err != nil {
		u.logger.WarnContext(ctx, "verification email not sent", "user_id", user.ID, "error", err)
	}

	result, err := u.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}
	metrics.AuthEventsTotal.WithLabelValues("register", "success").Inc()
	return result, nil
}

// Login never reveals whether the email exists: unknown, wrong password and
// deactivated all return ErrInvalidCredentials after the same hashing work.
func (u *AuthUsecase) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := u.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			_ = cryptox.VerifyPassword(password, u.dummyHash)
			metrics.AuthEventsTotal.WithLabelValues("login", "rejected").Inc()
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	if err := cryptox.VerifyPassword(password, user.PasswordHash); err != nil {
		if !errors.Is(err, cryptox.ErrPasswordMismatch) {
			u.logger.ErrorContext(ctx, "stored password hash unreadable", "user_id", user.ID, "error", err)
		}
		metrics.AuthEventsTotal.WithLabelValues("login", "rejected").Inc()
		return nil, domain.ErrInvalidCredentials
	}
	if !user.Active() {
		metrics.AuthEventsTotal.WithLabelValues("login", "rejected").Inc()
		return nil, domain.ErrInvalidCredentials
	}

	result, err := u.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}
	metrics.AuthEventsTotal.WithLabelValues("login", "success").Inc()
	return result, nil
}

// ValidateToken resolves a bearer of any purpose. The store is authoritative
// for expiry and revocation; session bearers must also carry a valid signature.
func (u *AuthUsecase) ValidateToken(ctx context.Context, raw string) (*TokenInfo, error) {
	if raw == "" {
		return nil, domain.ErrTokenNotFound
	}

	tok, err := u.tokens.FindByHash(ctx, cryptox.Fingerprint(raw))
	if err != nil {
		if errors.Is(err, domain.ErrTokenNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("find token: %w", err)
	}

	switch tok.State(u.now()) {
	case domain.TokenIssued:
	case domain.TokenExpired:
		return nil, domain.ErrTokenExpired
	default:
		return nil, domain.ErrTokenNotFound
	}

	if tok.Purpose == domain.PurposeSession {
		if err := u.verifySignature(raw, tok.UserID); err != nil {
			u.logger.WarnContext(ctx, "session bearer failed signature check", "token_id", tok.ID, "error", err)
			return nil, domain.ErrTokenNotFound
		}
	}

	user, err := u.users.FindByID(ctx, tok.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrTokenNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	if !user.Active() {
		return nil, domain.ErrTokenNotFound
	}

	return &TokenInfo{User: user, Purpose: tok.Purpose}, nil
}

// RequestPasswordReset returns nil for unknown and deactivated accounts and
// for dispatch failures, so the caller cannot tell them apart.
func (u *AuthUsecase) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := u.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil
		}
		return fmt.Errorf("find user: %w", err)
	}
	if !user.Active() {
		return nil
	}

	raw, err := u.issueSingleUse(ctx, user.ID, domain.PurposePasswordReset, passwordResetTTL)
	if err != nil {
		u.logger.ErrorContext(ctx, "issue password reset token", "user_id", user.ID, "error", err)
		return nil
	}

	msg := notify.PasswordReset(u.appBaseURL, user.Name, raw)
	if err := u.sender.Send(ctx, user.Email, msg.Subject, msg.Body); err != nil {
		u.logger.WarnContext(ctx, "password reset email not sent", "user_id", user.ID, "error", err)
	}
	metrics.AuthEventsTotal.WithLabelValues("password_reset_request", "success").Inc()
	return nil
}

// ResetPassword consumes the reset token, replaces the hash and signs the
// user out of every session.
func (u *AuthUsecase) ResetPassword(ctx context.Context, raw, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return domain.ErrWeakPassword
	}

	now := u.now()
	tok, err := u.tokens.Consume(ctx, cryptox.Fingerprint(raw), domain.PurposePasswordReset, now)
	if err != nil {
		metrics.AuthEventsTotal.WithLabelValues("password_reset", "rejected").Inc()
		return err
	}

	user, err := u.users.FindByID(ctx, tok.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.ErrTokenNotFound
		}
		return fmt.Errorf("find user: %w", err)
	}
	if !user.Active() {
		return domain.ErrTokenNotFound
	}

	hash, err := cryptox.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := u.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	revoked, err := u.tokens.RevokeAllForUser(ctx, user.ID, domain.PurposeSession, now)
	if err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}

	u.logger.InfoContext(ctx, "password reset", "user_id", user.ID, "sessions_revoked", revoked)
	metrics.AuthEventsTotal.WithLabelValues("password_reset", "success").Inc()
	return nil
}

func (u *AuthUsecase) VerifyEmail(ctx context.Context, raw string) error {
	tok, err := u.tokens.Consume(ctx, cryptox.Fingerprint(raw), domain.PurposeEmailVerification, u.now())
	if err != nil {
		return err
	}
	if err := u.users.MarkEmailVerified(ctx, tok.UserID); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.ErrTokenNotFound
		}
		return fmt.Errorf("mark email verified: %w", err)
	}
	metrics.AuthEventsTotal.WithLabelValues("verify_email", "success").Inc()
	return nil
}

// Logout revokes exactly the presented session bearer.
func (u *AuthUsecase) Logout(ctx context.Context, raw string) error {
	hash := cryptox.Fingerprint(raw)
	tok, err := u.tokens.FindByHash(ctx, hash)
	if err != nil {
		return err
	}
	if tok.Purpose != domain.PurposeSession {
		return domain.ErrTokenNotFound
	}
	if err := u.tokens.Revoke(ctx, hash, u.now()); err != nil {
		return err
	}
	metrics.AuthEventsTotal.WithLabelValues("logout", "success").Inc()
	return nil
}

// ResendVerification replaces any outstanding verification link.
func (u *AuthUsecase) ResendVerification(ctx context.Context, userID string) error {
	user, err := u.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.EmailVerified {
		return fmt.Errorf("%w: email already verified", domain.ErrInvalidState)
	}
	return u.sendVerification(ctx, user)
}

// ChangeRole lets a tenant admin set the role of a user in the same tenant.
func (u *AuthUsecase) ChangeRole(ctx context.Context, actor domain.Principal, userID string, role domain.Role) (*domain.User, error) {
	if !role.Valid() {
		return nil, domain.Validationf("unknown role %q", role)
	}
	target, err := u.manageable(ctx, actor, userID)
	if err != nil {
		return nil, err
	}
	if target.ID == actor.UserID && role != domain.RoleAdmin {
		return nil, fmt.Errorf("%w: admins cannot demote themselves", domain.ErrInvalidState)
	}

	if err := u.users.SetRole(ctx, target.ID, role); err != nil {
		return nil, fmt.Errorf("set role: %w", err)
	}
	target.Role = role
	u.logger.InfoContext(ctx, "role changed", "actor_id", actor.UserID, "user_id", target.ID, "role", role)
	return target, nil
}

// Deactivate soft-deletes a user of the actor's tenant and revokes their sessions.
func (u *AuthUsecase) Deactivate(ctx context.Context, actor domain.Principal, userID string) error {
	target, err := u.manageable(ctx, actor, userID)
	if err != nil {
		return err
	}
	if target.ID == actor.UserID {
		return fmt.Errorf("%w: admins cannot deactivate themselves", domain.ErrInvalidState)
	}

	now := u.now()
	if err := u.users.Deactivate(ctx, target.ID, now); err != nil {
		return fmt.Errorf("deactivate user: %w", err)
	}
	if _, err := u.tokens.RevokeAllForUser(ctx, target.ID, domain.PurposeSession, now); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	u.logger.InfoContext(ctx, "user deactivated", "actor_id", actor.UserID, "user_id", target.ID)
	return nil
}

// manageable loads a user the actor may administer. Users of other tenants
// are reported as not found.
func (u *AuthUsecase) manageable(ctx context.Context, actor domain.Principal, userID string) (*domain.User, error) {
	if !actor.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	target, err := u.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if target.TenantID != actor.TenantID {
		return nil, domain.ErrUserNotFound
	}
	return target, nil
}

func (u *AuthUsecase) sendVerification(ctx context.Context, user *domain.User) error {
	raw, err := u.issueSingleUse(ctx, user.ID, domain.PurposeEmailVerification, verifyEmailTTL)
	if err != nil {
		return err
	}
	msg := notify.VerifyEmail(u.appBaseURL, user.Name, raw)
	if err := u.sender.Send(ctx, user.Email, msg.Subject, msg.Body); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDispatchFailed, err)
	}
	return nil
}

func (u *AuthUsecase) issueSingleUse(ctx context.Context, userID string, purpose domain.TokenPurpose, ttl time.Duration) (string, error) {
	raw, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", err
	}
	now := u.now()
	if _, err := u.tokens.Create(ctx, &domain.Token{
		UserID:    userID,
		TokenHash: cryptox.Fingerprint(raw),
		Purpose:   purpose,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}); err != nil {
		return "", fmt.Errorf("store %s token: %w", purpose, err)
	}
	return raw, nil
}

func (u *AuthUsecase) issueSession(ctx context.Context, user *domain.User) (*AuthResult, error) {
	now := u.now()
	expiresAt := now.Add(u.sessionTTL)

	claims := sessionClaims{
		TenantID: user.TenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(u.jwtKey)
	if err != nil {
		return nil, fmt.Errorf("sign session: %w", err)
	}

	if _, err := u.tokens.Create(ctx, &domain.Token{
		UserID:    user.ID,
		TokenHash: cryptox.Fingerprint(signed),
		Purpose:   domain.PurposeSession,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}

	return &AuthResult{User: user, Token: signed, ExpiresAt: expiresAt}, nil
}

// verifySignature checks the HMAC and subject only. Time-based claims are
// left to the store, which uses the injected clock.
func (u *AuthUsecase) verifySignature(raw, userID string) error {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(_ *jwt.Token) (any, error) {
		return u.jwtKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation())
	if err != nil {
		return err
	}
	if claims.Subject != userID {
		return errors.New("subject mismatch")
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
