package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/blackbelt-platform/core/internal/domain"
	"github.com/blackbelt-platform/core/internal/transport/http/handler"
	"github.com/blackbelt-platform/core/internal/transport/http/middleware"
	"github.com/blackbelt-platform/core/internal/usecase"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeAuthUsecase implements the unexported authUsecaser interface via method matching.
type fakeAuthUsecase struct {
	register             func(ctx context.Context, email, password, name string) (*usecase.AuthResult, error)
	login                func(ctx context.Context, email, password string) (*usecase.AuthResult, error)
	requestPasswordReset func(ctx context.Context, email string) error
	resetPassword        func(ctx context.Context, raw, newPassword string) error
	verifyEmail          func(ctx context.Context, raw string) error
	logout               func(ctx context.Context, raw string) error
	resendVerification   func(ctx context.Context, userID string) error
	validateToken        func(ctx context.Context, raw string) (*usecase.TokenInfo, error)
}

func (f *fakeAuthUsecase) Register(ctx context.Context, email, password, name string) (*usecase.AuthResult, error) {
	return f.register(ctx, email, password, name)
}

func (f *fakeAuthUsecase) Login(ctx context.Context, email, password string) (*usecase.AuthResult, error) {
	return f.login(ctx, email, password)
}

func (f *fakeAuthUsecase) RequestPasswordReset(ctx context.Context, email string) error {
	return f.requestPasswordReset(ctx, email)
}

func (f *fakeAuthUsecase) ResetPassword(ctx context.Context, raw, newPassword string) error {
	return f.resetPassword(ctx, raw, newPassword)
}

func (f *fakeAuthUsecase) VerifyEmail(ctx context.Context, raw string) error {
	return f.verifyEmail(ctx, raw)
}

func (f *fakeAuthUsecase) Logout(ctx context.Context, raw string) error {
	return f.logout(ctx, raw)
}

func (f *fakeAuthUsecase) ResendVerification(ctx context.Context, userID string) error {
	return f.resendVerification(ctx, userID)
}

func (f *fakeAuthUsecase) ValidateToken(ctx context.Context, raw string) (*usecase.TokenInfo, error) {
	return f.validateToken(ctx, raw)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testUser = &domain.User{
	ID:       "user-1",
	TenantID: "tenant-1",
	Email:    "ana@example.com",
	Name:     "Ana",
	Role:     domain.RoleAdmin,
}

// withSession stands in for middleware.Auth on session routes.
func withSession(user *domain.User, token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.KeyUserID, user.ID)
		c.Set(middleware.KeyTenantID, user.TenantID)
		c.Set(middleware.KeyRole, string(user.Role))
		c.Set(middleware.KeyToken, token)
		c.Next()
	}
}

func newTestEngine(uc *fakeAuthUsecase) *gin.Engine {
	h := handler.NewAuthHandler(uc, discardLogger())

	r := gin.New()
	r.POST("/auth/register", h.Register)
	r.POST("/auth/login", h.Login)
	r.POST("/auth/password/forgot", h.ForgotPassword)
	r.POST("/auth/password/reset", h.ResetPassword)
	r.POST("/auth/email/verify", h.VerifyEmail)

	s := r.Group("/auth", withSession(testUser, "session-token"))
	s.POST("/logout", h.Logout)
	s.GET("/me", h.Me)
	s.POST("/email/resend", h.ResendVerification)
	return r
}

func postJSON(r http.Handler, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	msg, _ := body["error"].(string)
	return msg
}

func session() *usecase.AuthResult {
	return &usecase.AuthResult{User: testUser, Token: "jwt-token", ExpiresAt: time.Now().Add(time.Hour)}
}

// ---- Register ----

func TestRegister_InvalidJSON_Returns400(t *testing.T) {
	w := postJSON(newTestEngine(&fakeAuthUsecase{}), "/auth/register", `{bad json}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestRegister_MissingName_Returns400(t *testing.T) {
	w := postJSON(newTestEngine(&fakeAuthUsecase{}), "/auth/register",
		`{"email":"ana@example.com","password":"longenough"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestRegister_Success_Returns201WithSession(t *testing.T) {
	uc := &fakeAuthUsecase{
		register: func(_ context.Context, email, password, name string) (*usecase.AuthResult, error) {
			if email != "ana@example.com" || password != "longenough" || name != "Ana" {
				t.Errorf("register(%q, %q, %q)", email, password, name)
			}
			return session(), nil
		},
	}
	w := postJSON(newTestEngine(uc), "/auth/register",
		`{"email":"ana@example.com","password":"longenough","name":"Ana"}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}
	var body struct {
		Token string `json:"token"`
		User  struct {
			ID       string `json:"id"`
			TenantID string `json:"tenant_id"`
		} `json:"user"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Token != "jwt-token" || body.User.ID != testUser.ID || body.User.TenantID != testUser.TenantID {
		t.Errorf("body = %s", w.Body.String())
	}
	if strings.Contains(w.Body.String(), "password") {
		t.Errorf("response leaks password field: %s", w.Body.String())
	}
}

func TestRegister_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrEmailTaken, http.StatusConflict},
		{domain.ErrWeakPassword, http.StatusBadRequest},
		{domain.Validationf("invalid email"), http.StatusBadRequest},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		uc := &fakeAuthUsecase{
			register: func(context.Context, string, string, string) (*usecase.AuthResult, error) {
				return nil, tc.err
			},
		}
		w := postJSON(newTestEngine(uc), "/auth/register",
			`{"email":"ana@example.com","password":"x","name":"Ana"}`)
		if w.Code != tc.want {
			t.Errorf("%v: status = %d, want %d", tc.err, w.Code, tc.want)
		}
	}
}

// ---- Login ----

func TestLogin_InvalidCredentials_Uniform401(t *testing.T) {
	uc := &fakeAuthUsecase{
		login: func(context.Context, string, string) (*usecase.AuthResult, error) {
			return nil, domain.ErrInvalidCredentials
		},
	}
	w := postJSON(newTestEngine(uc), "/auth/login", `{"email":"ana@example.com","password":"wrong"}`)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if got := errorBody(t, w); got != "Invalid or expired credentials" {
		t.Errorf("error = %q", got)
	}
}

func TestLogin_Success_Returns200(t *testing.T) {
	uc := &fakeAuthUsecase{
		login: func(context.Context, string, string) (*usecase.AuthResult, error) { return session(), nil },
	}
	w := postJSON(newTestEngine(uc), "/auth/login", `{"email":"ana@example.com","password":"longenough"}`)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

// ---- Password reset ----

func TestForgotPassword_AlwaysReturns202(t *testing.T) {
	for _, ucErr := range []error{nil, errors.New("internal failure")} {
		uc := &fakeAuthUsecase{
			requestPasswordReset: func(context.Context, string) error { return ucErr },
		}
		w := postJSON(newTestEngine(uc), "/auth/password/forgot", `{"email":"who@example.com"}`)
		if w.Code != http.StatusAccepted {
			t.Errorf("err=%v: status = %d, want 202", ucErr, w.Code)
		}
	}
}

func TestResetPassword_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusNoContent},
		{domain.ErrWeakPassword, http.StatusBadRequest},
		{domain.ErrTokenNotFound, http.StatusUnauthorized},
		{domain.ErrTokenExpired, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		uc := &fakeAuthUsecase{
			resetPassword: func(context.Context, string, string) error { return tc.err },
		}
		w := postJSON(newTestEngine(uc), "/auth/password/reset", `{"token":"t","password":"newpassword"}`)
		if w.Code != tc.want {
			t.Errorf("%v: status = %d, want %d", tc.err, w.Code, tc.want)
		}
	}
}

func TestVerifyEmail_MissingToken_Returns400(t *testing.T) {
	w := postJSON(newTestEngine(&fakeAuthUsecase{}), "/auth/email/verify", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestVerifyEmail_ReusedToken_Returns401(t *testing.T) {
	uc := &fakeAuthUsecase{
		verifyEmail: func(context.Context, string) error { return domain.ErrTokenNotFound },
	}
	w := postJSON(newTestEngine(uc), "/auth/email/verify", `{"token":"used"}`)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

// ---- Session routes ----

func TestLogout_RevokesPresentedToken(t *testing.T) {
	var revoked string
	uc := &fakeAuthUsecase{
		logout: func(_ context.Context, raw string) error { revoked = raw; return nil },
	}
	w := postJSON(newTestEngine(uc), "/auth/logout", ``)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if revoked != "session-token" {
		t.Errorf("revoked = %q, want session-token", revoked)
	}
}

func TestMe_ReturnsUser(t *testing.T) {
	uc := &fakeAuthUsecase{
		validateToken: func(context.Context, string) (*usecase.TokenInfo, error) {
			return &usecase.TokenInfo{User: testUser, Purpose: domain.PurposeSession}, nil
		},
	}
	w := httptest.NewRecorder()
	newTestEngine(uc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/me", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), fmt.Sprintf(`"email":%q`, testUser.Email)) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestResendVerification_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusAccepted},
		{fmt.Errorf("%w: already verified", domain.ErrInvalidState), http.StatusConflict},
		{fmt.Errorf("%w: resend 503", domain.ErrDispatchFailed), http.StatusBadGateway},
	}
	for _, tc := range cases {
		var gotUser string
		uc := &fakeAuthUsecase{
			resendVerification: func(_ context.Context, userID string) error { gotUser = userID; return tc.err },
		}
		w := postJSON(newTestEngine(uc), "/auth/email/resend", ``)
		if w.Code != tc.want {
			t.Errorf("%v: status = %d, want %d", tc.err, w.Code, tc.want)
		}
		if gotUser != testUser.ID {
			t.Errorf("user = %q, want %q", gotUser, testUser.ID)
		}
	}
}
