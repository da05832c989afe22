package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-session"
)

var _ session.IdentityClient = (*Client)(nil)

// Client talks to a GoTrue compatible identity API. It holds the session
// issued by the provider, announces lifecycle changes through the
// auth-change channel, and optionally keeps the access token fresh with a
// background refresh.
type Client struct {
	config  Config
	http    *http.Client
	logger  session.Logger
	emitter session.Emitter

	mu      sync.Mutex
	current *session.Session
	refresh *time.Timer
}

// Option configures the client.
type Option func(*Client)

// WithLogger overrides the default logger.
func WithLogger(logger session.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a GoTrue backed identity client.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	c := &Client{
		config: cfg,
		http:   cfg.httpClient(),
		logger: defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c, nil
}

// SignUp registers a new identity. Profile traits travel in the metadata
// payload. When the provider requires email confirmation the result carries
// a user but no session.
func (c *Client) SignUp(ctx context.Context, payload session.SignupPayload) (*session.SignupResult, error) {
	body := map[string]any{
		"email":    payload.Email,
		"password": payload.Password,
		"data":     payload.Traits(),
	}

	var resp sessionPayload
	if err := c.do(ctx, http.MethodPost, "/signup", nil, body, "", &resp); err != nil {
		return nil, err
	}

	result := &session.SignupResult{}
	if resp.AccessToken != "" {
		sess := resp.toSession()
		result.Session = sess
		result.User = sess.User
		c.setSession(sess)
		c.emitter.Emit(session.EventSignedIn, sess)
	} else {
		result.User = resp.toUser()
	}

	return result, nil
}

// SignInWithPassword exchanges credentials for a session. The provider's
// error copy is preserved verbatim so callers can classify failures.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*session.LoginResult, error) {
	body := map[string]any{
		"email":    email,
		"password": password,
	}

	var resp sessionPayload
	query := url.Values{"grant_type": []string{"password"}}
	if err := c.do(ctx, http.MethodPost, "/token", query, body, "", &resp); err != nil {
		return nil, err
	}

	sess := resp.toSession()
	c.setSession(sess)
	c.emitter.Emit(session.EventSignedIn, sess)

	return &session.LoginResult{User: sess.User, Session: sess}, nil
}

// SignInWithOAuth builds the provider authorize URL. No request is made;
// the session materializes through the auth-change channel once the
// redirect completes.
func (c *Client) SignInWithOAuth(provider string, opts ...session.OAuthOption) (*session.OAuthRedirect, error) {
	provider = strings.TrimSpace(provider)
	if provider == "" {
		return nil, goerrors.New("oauth provider is required", goerrors.CategoryBadInput).
			WithTextCode("OAUTH_PROVIDER_REQUIRED")
	}

	cfg := session.ApplyOAuthOptions(opts...)

	query := url.Values{}
	query.Set("provider", provider)

	redirectTo := cfg.RedirectTo
	if redirectTo == "" && c.config.SiteURL != "" {
		redirectTo = c.config.SiteURL + session.OAuthCallbackPath
	}
	if redirectTo != "" {
		query.Set("redirect_to", redirectTo)
	}
	if len(cfg.Scopes) > 0 {
		query.Set("scopes", strings.Join(cfg.Scopes, " "))
	}

	return &session.OAuthRedirect{
		Provider: provider,
		URL:      fmt.Sprintf("%s/authorize?%s", c.config.baseURL(), query.Encode()),
	}, nil
}

// SignOut revokes the session with the provider. Local state is cleared and
// SIGNED_OUT announced even when the remote call fails, so subscribers never
// hold a session the client already dropped.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	sess := c.current
	c.mu.Unlock()

	if sess == nil {
		return session.ErrSessionMissing
	}

	err := c.do(ctx, http.MethodPost, "/logout", nil, nil, sess.AccessToken, nil)

	c.setSession(nil)
	c.emitter.Emit(session.EventSignedOut, nil)

	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryAuth, "remote sign out failed")
	}
	return nil
}

// ResetPasswordForEmail asks the provider to send a recovery link.
func (c *Client) ResetPasswordForEmail(ctx context.Context, email string) error {
	body := map[string]any{"email": email}

	var query url.Values
	if c.config.SiteURL != "" {
		query = url.Values{"redirect_to": []string{c.config.SiteURL + session.ResetPasswordPath}}
	}

	return c.do(ctx, http.MethodPost, "/recover", query, body, "", nil)
}

// UpdatePassword sets a new password on the authenticated user.
func (c *Client) UpdatePassword(ctx context.Context, newPassword string) error {
	c.mu.Lock()
	sess := c.current
	c.mu.Unlock()

	if sess == nil {
		return session.ErrSessionMissing
	}

	var resp sessionPayload
	body := map[string]any{"password": newPassword}
	if err := c.do(ctx, http.MethodPut, "/user", nil, body, sess.AccessToken, &resp); err != nil {
		return err
	}

	c.mu.Lock()
	if c.current != nil {
		c.current.User = resp.toUser()
		sess = c.current
	}
	c.mu.Unlock()

	c.emitter.Emit(session.EventUserUpdated, sess)

	return nil
}

// GetSession returns the held session, refreshing it first when it is at or
// past expiry and a refresh token is available. A nil session with a nil
// error means no identity is established.
func (c *Client) GetSession(ctx context.Context) (*session.Session, error) {
	c.mu.Lock()
	sess := c.current
	c.mu.Unlock()

	if sess == nil {
		return nil, nil
	}

	if sess.Expired(c.config.refreshMargin()) && sess.RefreshToken != "" {
		refreshed, err := c.refreshSession(ctx, sess.RefreshToken)
		if err != nil {
			return nil, err
		}
		return refreshed, nil
	}

	return sess, nil
}

// GetUser fetches the authenticated user from the provider.
func (c *Client) GetUser(ctx context.Context) (*session.User, error) {
	c.mu.Lock()
	sess := c.current
	c.mu.Unlock()

	if sess == nil {
		return nil, session.ErrSessionMissing
	}

	var resp sessionPayload
	if err := c.do(ctx, http.MethodGet, "/user", nil, nil, sess.AccessToken, &resp); err != nil {
		return nil, err
	}

	return resp.toUser(), nil
}

// ResendVerificationEmail re-sends the signup confirmation email.
func (c *Client) ResendVerificationEmail(ctx context.Context, email string) error {
	body := map[string]any{
		"type":  "signup",
		"email": email,
	}
	return c.do(ctx, http.MethodPost, "/resend", nil, body, "", nil)
}

// OnAuthStateChange subscribes to session lifecycle events. The handler is
// invoked synchronously with INITIAL_SESSION before this returns.
func (c *Client) OnAuthStateChange(handler session.AuthChangeHandler) session.Subscription {
	sub := c.emitter.Subscribe(handler)

	c.mu.Lock()
	sess := c.current
	c.mu.Unlock()

	if handler != nil {
		handler(session.EventInitialSession, sess)
	}

	return sub
}

// Close stops the background refresh.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopRefreshLocked()
}

func (c *Client) refreshSession(ctx context.Context, refreshToken string) (*session.Session, error) {
	body := map[string]any{"refresh_token": refreshToken}

	var resp sessionPayload
	query := url.Values{"grant_type": []string{"refresh_token"}}
	if err := c.do(ctx, http.MethodPost, "/token", query, body, "", &resp); err != nil {
		return nil, err
	}

	sess := resp.toSession()
	c.setSession(sess)
	c.emitter.Emit(session.EventTokenRefreshed, sess)

	return sess, nil
}

func (c *Client) setSession(sess *session.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = sess
	c.stopRefreshLocked()

	if sess == nil || !c.config.AutoRefreshToken || sess.RefreshToken == "" {
		return
	}

	exp := sess.ExpiresAtTime()
	if exp.IsZero() {
		return
	}

	wait := time.Until(exp) - c.config.refreshMargin()
	if wait < time.Second {
		wait = time.Second
	}

	refreshToken := sess.RefreshToken
	c.refresh = time.AfterFunc(wait, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := c.refreshSession(ctx, refreshToken); err != nil {
			c.logger.Error("background token refresh failed: %v", err)
		}
	})
}

func (c *Client) stopRefreshLocked() {
	if c.refresh != nil {
		c.refresh.Stop()
		c.refresh = nil
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, bearer string, out any) error {
	endpoint := c.config.baseURL() + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode request")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to build request")
	}

	req.Header.Set("apikey", c.config.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "identity provider unreachable")
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read response")
	}

	if res.StatusCode >= 400 {
		return normalizeAPIError(res.StatusCode, raw)
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to decode response")
		}
	}

	return nil
}

// sessionPayload is the GoTrue response shape for both session and user
// endpoints. Session fields are empty on user-only responses.
type sessionPayload struct {
	AccessToken   string `json:"access_token"`
	TokenType     string `json:"token_type"`
	RefreshToken  string `json:"refresh_token"`
	ExpiresIn     int64  `json:"expires_in"`
	ExpiresAt     int64  `json:"expires_at"`
	ProviderToken string `json:"provider_token"`

	User *session.User `json:"user"`

	// user-only responses inline the user fields at the top level
	ID               string         `json:"id"`
	Aud              string         `json:"aud"`
	Email            string         `json:"email"`
	Phone            string         `json:"phone"`
	Role             string         `json:"role"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at"`
	LastSignInAt     *time.Time     `json:"last_sign_in_at"`
	AppMetadata      map[string]any `json:"app_metadata"`
	UserMetadata     map[string]any `json:"user_metadata"`
	CreatedAt        *time.Time     `json:"created_at"`
	UpdatedAt        *time.Time     `json:"updated_at"`
}

func (p sessionPayload) toSession() *session.Session {
	expiresAt := p.ExpiresAt
	if expiresAt == 0 && p.ExpiresIn > 0 {
		expiresAt = time.Now().Unix() + p.ExpiresIn
	}

	return &session.Session{
		AccessToken:   p.AccessToken,
		TokenType:     p.TokenType,
		RefreshToken:  p.RefreshToken,
		ExpiresIn:     p.ExpiresIn,
		ExpiresAt:     expiresAt,
		ProviderToken: p.ProviderToken,
		User:          p.toUser(),
	}
}

func (p sessionPayload) toUser() *session.User {
	if p.User != nil {
		return p.User
	}

	if p.ID == "" && p.Email == "" {
		return nil
	}

	return &session.User{
		ID:               p.ID,
		Aud:              p.Aud,
		Email:            p.Email,
		Phone:            p.Phone,
		Role:             p.Role,
		EmailConfirmedAt: p.EmailConfirmedAt,
		LastSignInAt:     p.LastSignInAt,
		AppMetadata:      p.AppMetadata,
		UserMetadata:     p.UserMetadata,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

type apiError struct {
	Code             int    `json:"code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	ErrorCode        string `json:"error_code"`
	ErrorText        string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (e apiError) text() string {
	for _, candidate := range []string{e.Msg, e.Message, e.ErrorDescription, e.ErrorText} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}

// normalizeAPIError maps provider failures onto the package sentinels,
// keeping the provider's message verbatim so substring classification works
// on both sides of the wire.
func normalizeAPIError(status int, raw []byte) error {
	parsed := apiError{}
	_ = json.Unmarshal(raw, &parsed)

	msg := parsed.text()

	switch {
	case strings.Contains(msg, "Invalid login credentials"):
		return session.ErrInvalidCredentials
	case strings.Contains(msg, "Email not confirmed"):
		return session.ErrEmailNotConfirmed
	case strings.Contains(msg, "already registered"):
		return session.ErrUserExists
	case status == http.StatusTooManyRequests:
		return session.ErrTooManyLoginAttempts
	}

	if msg == "" {
		msg = fmt.Sprintf("identity provider returned status %d", status)
	}

	category := goerrors.CategoryInternal
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		category = goerrors.CategoryAuth
	case status >= 400 && status < 500:
		category = goerrors.CategoryBadInput
	}

	return goerrors.New(msg, category).
		WithCode(status).
		WithMetadata(map[string]any{
			"status":     status,
			"error_code": parsed.ErrorCode,
		})
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] GOTRUE "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] GOTRUE "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] GOTRUE "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] GOTRUE "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
