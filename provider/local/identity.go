package local

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-session"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var _ session.IdentityClient = (*Provider)(nil)

// Provider is a database backed identity client for development and tests.
// It emulates the remote provider's contract, including error copy, token
// refresh, and confirmation emails printed to stdout instead of sent.
type Provider struct {
	config Config
	logger session.Logger

	emitter session.Emitter

	mu            sync.Mutex
	current       *session.Session
	refreshTokens map[string]uuid.UUID
	resetTokens   map[string]uuid.UUID
}

// Option configures the provider.
type Option func(*Provider)

// WithLogger overrides the default logger.
func WithLogger(logger session.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewProvider creates a local identity provider.
func NewProvider(cfg Config, opts ...Option) (*Provider, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	p := &Provider{
		config:        cfg,
		logger:        defLogger{},
		refreshTokens: map[string]uuid.UUID{},
		resetTokens:   map[string]uuid.UUID{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	return p, nil
}

// SignUp creates a local account. Unless AutoConfirm is set the account
// starts unconfirmed and a confirmation notification is printed.
func (p *Provider) SignUp(ctx context.Context, payload session.SignupPayload) (*session.SignupResult, error) {
	email := normalizeEmail(payload.Email)

	existing, err := p.getByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, session.ErrUserExists
	}

	hash, err := hashPassword(payload.Password)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	now := time.Now()
	account := &Account{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		Metadata:     payload.Traits(),
		CreatedAt:    &now,
		UpdatedAt:    &now,
	}

	if p.config.AutoConfirm {
		account.EmailConfirmedAt = &now
	} else {
		account.ConfirmationSentAt = &now
	}

	if _, err := p.config.DB.NewInsert().Model(account).Exec(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create account")
	}

	if p.config.AutoConfirm {
		sess, err := p.establishSession(account)
		if err != nil {
			return nil, err
		}
		p.emitter.Emit(session.EventSignedIn, sess)
		return &session.SignupResult{User: sess.User, Session: sess}, nil
	}

	printEmailNotification(email, "confirm your account", p.config.SiteURL+session.VerifyEmailPath)

	return &session.SignupResult{User: account.toUser()}, nil
}

// SignInWithPassword verifies credentials against the accounts table. Failed
// attempts are counted and throttled within the cooldown window.
func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (*session.LoginResult, error) {
	account, err := p.getByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, session.ErrInvalidCredentials
	}

	if account.LoginAttemptAt != nil && time.Since(*account.LoginAttemptAt) > CoolDownPeriod {
		account.LoginAttempts = 0
	}

	//if we have too many attempts in the given window, cool off!
	if account.LoginAttempts > MaxLoginAttempts {
		return nil, session.ErrTooManyLoginAttempts
	}

	if err := comparePasswordAndHash(password, account.PasswordHash); err != nil {
		if err2 := p.trackAttemptedLogin(ctx, account); err2 != nil {
			return nil, goerrors.Wrap(err2, goerrors.CategoryInternal, "failed to track login attempt")
		}
		return nil, session.ErrInvalidCredentials
	}

	if !account.Confirmed() {
		return nil, session.ErrEmailNotConfirmed
	}

	if err := p.trackSuccessfulLogin(ctx, account); err != nil {
		p.logger.Error("failed to track successful login: %v", err)
	}

	sess, err := p.establishSession(account)
	if err != nil {
		return nil, err
	}

	p.emitter.Emit(session.EventSignedIn, sess)

	return &session.LoginResult{User: sess.User, Session: sess}, nil
}

// SignInWithOAuth is not supported locally. OAuth flows need the real
// provider's consent screens.
func (p *Provider) SignInWithOAuth(provider string, opts ...session.OAuthOption) (*session.OAuthRedirect, error) {
	return nil, goerrors.New(
		fmt.Sprintf("oauth provider %q is not supported by the local identity provider", provider),
		goerrors.CategoryOperation,
	).WithTextCode("OAUTH_NOT_SUPPORTED")
}

// SignOut drops the held session and announces SIGNED_OUT.
func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	sess := p.current
	if sess != nil {
		p.current = nil
		delete(p.refreshTokens, sess.RefreshToken)
	}
	p.mu.Unlock()

	if sess == nil {
		return session.ErrSessionMissing
	}

	p.emitter.Emit(session.EventSignedOut, nil)
	return nil
}

// ResetPasswordForEmail prints a recovery notification. Unknown emails are
// not reported to the caller.
func (p *Provider) ResetPasswordForEmail(ctx context.Context, email string) error {
	account, err := p.getByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return err
	}

	if account == nil {
		p.logger.Debug("password reset requested for unknown email")
		return nil
	}

	token := uuid.NewString()

	p.mu.Lock()
	p.resetTokens[token] = account.ID
	p.mu.Unlock()

	printEmailNotification(account.Email, "reset your password", fmt.Sprintf("%s%s?token=%s", p.config.SiteURL, session.ResetPasswordPath, token))

	return nil
}

// FinalizePasswordReset redeems a token issued by ResetPasswordForEmail and
// sets the new password. Tokens are single use; outstanding refresh tokens
// for the account are revoked.
func (p *Provider) FinalizePasswordReset(ctx context.Context, token, newPassword string) error {
	p.mu.Lock()
	accountID, ok := p.resetTokens[token]
	delete(p.resetTokens, token)
	p.mu.Unlock()

	if !ok {
		return goerrors.New("invalid or expired password reset token", goerrors.CategoryNotFound).
			WithTextCode("INVALID_RESET_TOKEN")
	}

	hash, err := hashPassword(newPassword)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid new password provided")
	}

	now := time.Now()
	res, err := p.config.DB.NewUpdate().
		Model((*Account)(nil)).
		Set("password_hash = ?", hash).
		Set("login_attempts = 0").
		Set("login_attempt_at = NULL").
		Set("updated_at = ?", now).
		Where("id = ?", accountID).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update password")
	}

	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return goerrors.New("account not found", goerrors.CategoryNotFound).
			WithTextCode("ACCOUNT_NOT_FOUND")
	}

	p.revokeRefreshTokens(accountID)

	return nil
}

// revokeRefreshTokens drops every refresh token minted for the account, so an
// expired session cannot re-mint after a password reset.
func (p *Provider) revokeRefreshTokens(accountID uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for token, id := range p.refreshTokens {
		if id == accountID {
			delete(p.refreshTokens, token)
		}
	}
}

// UpdatePassword sets a new password on the authenticated account.
func (p *Provider) UpdatePassword(ctx context.Context, newPassword string) error {
	p.mu.Lock()
	sess := p.current
	p.mu.Unlock()

	if sess == nil {
		return session.ErrSessionMissing
	}

	accountID, err := uuid.Parse(sess.GetUserID())
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "session holds an invalid account id")
	}

	hash, err := hashPassword(newPassword)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	now := time.Now()
	res, err := p.config.DB.NewUpdate().
		Model((*Account)(nil)).
		Set("password_hash = ?", hash).
		Set("updated_at = ?", now).
		Where("id = ?", accountID).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update password")
	}

	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return session.ErrSessionMissing
	}

	p.emitter.Emit(session.EventUserUpdated, sess)

	return nil
}

// GetSession returns the held session, minting a fresh one when the current
// token is at or past expiry.
func (p *Provider) GetSession(ctx context.Context) (*session.Session, error) {
	p.mu.Lock()
	sess := p.current
	p.mu.Unlock()

	if sess == nil {
		return nil, nil
	}

	if !sess.Expired(30 * time.Second) {
		return sess, nil
	}

	p.mu.Lock()
	_, live := p.refreshTokens[sess.RefreshToken]
	p.mu.Unlock()
	if !live {
		return nil, session.ErrSessionMissing
	}

	account, err := p.getByID(ctx, sess.GetUserID())
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, session.ErrSessionMissing
	}

	refreshed, err := p.establishSession(account)
	if err != nil {
		return nil, err
	}

	p.emitter.Emit(session.EventTokenRefreshed, refreshed)

	return refreshed, nil
}

// GetUser loads the authenticated account from the database.
func (p *Provider) GetUser(ctx context.Context) (*session.User, error) {
	p.mu.Lock()
	sess := p.current
	p.mu.Unlock()

	if sess == nil {
		return nil, session.ErrSessionMissing
	}

	account, err := p.getByID(ctx, sess.GetUserID())
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, session.ErrSessionMissing
	}

	return account.toUser(), nil
}

// ResendVerificationEmail re-prints the confirmation notification.
func (p *Provider) ResendVerificationEmail(ctx context.Context, email string) error {
	account, err := p.getByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return err
	}

	if account == nil || account.Confirmed() {
		return nil
	}

	now := time.Now()
	if _, err := p.config.DB.NewUpdate().
		Model((*Account)(nil)).
		Set("confirmation_sent_at = ?", now).
		Where("id = ?", account.ID).
		Exec(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to record confirmation email")
	}

	printEmailNotification(account.Email, "confirm your account", p.config.SiteURL+session.VerifyEmailPath)

	return nil
}

// OnAuthStateChange subscribes to session lifecycle events. The handler is
// invoked synchronously with INITIAL_SESSION before this returns.
func (p *Provider) OnAuthStateChange(handler session.AuthChangeHandler) session.Subscription {
	sub := p.emitter.Subscribe(handler)

	p.mu.Lock()
	sess := p.current
	p.mu.Unlock()

	if handler != nil {
		handler(session.EventInitialSession, sess)
	}

	return sub
}

// ConfirmEmail marks an account as confirmed. Stands in for clicking the
// emailed link.
func (p *Provider) ConfirmEmail(ctx context.Context, email string) error {
	now := time.Now()
	res, err := p.config.DB.NewUpdate().
		Model((*Account)(nil)).
		Set("email_confirmed_at = ?", now).
		Where("email = ?", normalizeEmail(email)).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to confirm email")
	}

	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return goerrors.New("account not found", goerrors.CategoryNotFound).
			WithTextCode("ACCOUNT_NOT_FOUND")
	}

	return nil
}

func (p *Provider) establishSession(account *Account) (*session.Session, error) {
	now := time.Now()
	ttl := p.config.tokenTTL()
	expiresAt := now.Add(ttl)

	claims := jwt.MapClaims{
		"iss":   p.config.issuer(),
		"sub":   account.ID.String(),
		"aud":   "authenticated",
		"email": account.Email,
		"role":  "authenticated",
		"iat":   now.Unix(),
		"exp":   expiresAt.Unix(),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(p.config.JWTSecret))
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign access token")
	}

	refreshToken := uuid.NewString()

	sess := &session.Session{
		AccessToken:  token,
		TokenType:    "bearer",
		RefreshToken: refreshToken,
		ExpiresIn:    int64(ttl.Seconds()),
		ExpiresAt:    expiresAt.Unix(),
		User:         account.toUser(),
	}

	p.mu.Lock()
	if p.current != nil {
		delete(p.refreshTokens, p.current.RefreshToken)
	}
	p.current = sess
	p.refreshTokens[refreshToken] = account.ID
	p.mu.Unlock()

	return sess, nil
}

func (p *Provider) getByEmail(ctx context.Context, email string) (*Account, error) {
	account := &Account{}
	err := p.config.DB.NewSelect().
		Model(account).
		Where("email = ?", email).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account")
	}
	return account, nil
}

func (p *Provider) getByID(ctx context.Context, id string) (*Account, error) {
	accountID, err := uuid.Parse(id)
	if err != nil {
		return nil, nil
	}

	account := &Account{}
	err = p.config.DB.NewSelect().
		Model(account).
		Where("id = ?", accountID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account")
	}
	return account, nil
}

func (p *Provider) trackAttemptedLogin(ctx context.Context, account *Account) error {
	now := time.Now()
	_, err := p.config.DB.NewUpdate().
		Model((*Account)(nil)).
		Set("login_attempts = ?", account.LoginAttempts+1).
		Set("login_attempt_at = ?", now).
		Where("id = ?", account.ID).
		Exec(ctx)
	return err
}

func (p *Provider) trackSuccessfulLogin(ctx context.Context, account *Account) error {
	now := time.Now()
	_, err := p.config.DB.NewUpdate().
		Model((*Account)(nil)).
		Set("login_attempts = 0").
		Set("login_attempt_at = NULL").
		Set("last_sign_in_at = ?", now).
		Where("id = ?", account.ID).
		Exec(ctx)
	return err
}

func hashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password must not be empty")
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), 14)
	return string(h), err
}

func comparePasswordAndHash(password, hash string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func printEmailNotification(email, subject, link string) {
	fmt.Println("====== SENDING EMAIL NOTIFICATION =======")
	fmt.Printf("to: %s\n", email)
	fmt.Printf("subject: %s\n", subject)
	fmt.Printf("link: %s\n", link)
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] LOCAL "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] LOCAL "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] LOCAL "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] LOCAL "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
