package client

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"order-sync/internal/domain"
)

// Token is an issued session. Claims are decoded without verifying the
// signature; the backend verifies, the caller only needs the role and expiry.
type Token struct {
	Access    string
	Refresh   string
	Subject   string
	StudentID string
	IsAdmin   bool
	ExpiresAt time.Time
}

func (t Token) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// RequireAdmin checks the role claim and expiry.
func (t Token) RequireAdmin(now time.Time) error {
	if t.Expired(now) {
		return domain.ErrTokenExpired
	}
	if !t.IsAdmin {
		return domain.ErrNotAdmin
	}
	return nil
}

type claims struct {
	StudentID string `json:"student_id"`
	IsAdmin   bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// ParseToken decodes the claims of an access token.
func ParseToken(access string) (Token, error) {
	var c claims
	if _, _, err := jwt.NewParser().ParseUnverified(access, &c); err != nil {
		return Token{}, err
	}
	t := Token{Access: access, Subject: c.Subject, StudentID: c.StudentID, IsAdmin: c.IsAdmin}
	if c.ExpiresAt != nil {
		t.ExpiresAt = c.ExpiresAt.Time
	}
	return t, nil
}

type AuthClient struct {
	q   requester
	now func() time.Time
}

func NewAuthClient(baseURL string, hc *http.Client) *AuthClient {
	return &AuthClient{q: newRequester(baseURL, hc), now: time.Now}
}

// Login exchanges credentials for a token. Failures are *domain.AuthError.
func (c *AuthClient) Login(ctx context.Context, studentID, password string) (Token, error) {
	resp, err := c.q.do(ctx, http.MethodPost, "/auth/login",
		domain.LoginRequest{StudentID: studentID, Password: password}, nil)
	if err != nil {
		return Token{}, &domain.AuthError{Kind: domain.ErrInvalidCredential, Detail: "identity service unreachable: " + err.Error()}
	}

	switch {
	case resp.Status == http.StatusTooManyRequests:
		msg, secs := resp.detail()
		if secs == 0 {
			secs, _ = strconv.Atoi(resp.Header.Get("Retry-After"))
		}
		return Token{}, &domain.AuthError{
			Kind: domain.ErrRateLimited, Detail: msg, RetryAfter: time.Duration(secs) * time.Second,
		}
	case !resp.ok():
		msg, _ := resp.detail()
		return Token{}, &domain.AuthError{Kind: domain.ErrInvalidCredential, Detail: msg}
	}

	var lr domain.LoginResponse
	if err := resp.decode(&lr); err != nil {
		return Token{}, &domain.AuthError{Kind: domain.ErrInvalidCredential, Detail: err.Error()}
	}
	tok, err := ParseToken(lr.AccessToken)
	if err != nil {
		return Token{}, &domain.AuthError{Kind: domain.ErrInvalidCredential, Detail: "malformed access token"}
	}
	tok.Refresh = lr.RefreshToken
	if tok.ExpiresAt.IsZero() && lr.ExpiresIn > 0 {
		tok.ExpiresAt = c.now().Add(time.Duration(lr.ExpiresIn) * time.Second)
	}
	return tok, nil
}
