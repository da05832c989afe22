package local_test

import (
	"context"
	"database/sql"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-session"
	"github.com/goliatone/go-session/provider/local"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const sqliteCreateAccounts = `
CREATE TABLE accounts (
    id VARCHAR(36) PRIMARY KEY,
    email VARCHAR(254) NOT NULL UNIQUE,
    password_hash VARCHAR(255) NOT NULL,
    metadata TEXT,
    email_confirmed_at TIMESTAMP,
    confirmation_sent_at TIMESTAMP,
    login_attempts INTEGER DEFAULT 0,
    login_attempt_at TIMESTAMP,
    last_sign_in_at TIMESTAMP,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`

func setupProvider(t *testing.T, autoConfirm bool) (*local.Provider, *bun.DB) {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(sqliteCreateAccounts)
	require.NoError(t, err)

	provider, err := local.NewProvider(local.Config{
		DB:          db,
		JWTSecret:   "test-signing-secret",
		SiteURL:     "http://localhost:3000",
		AutoConfirm: autoConfirm,
	})
	require.NoError(t, err)

	return provider, db
}

func signupPayload(email string) session.SignupPayload {
	return session.SignupPayload{
		Email:     email,
		Password:  "long-enough-password",
		FirstName: "First",
		LastName:  "Last",
	}
}

func TestProviderSignUpAutoConfirmAuthenticates(t *testing.T) {
	provider, _ := setupProvider(t, true)
	ctx := context.Background()

	var events []session.AuthEvent
	provider.OnAuthStateChange(func(event session.AuthEvent, sess *session.Session) {
		events = append(events, event)
	})

	result, err := provider.SignUp(ctx, signupPayload("person@example.com"))
	require.NoError(t, err)
	require.NotNil(t, result.Session)
	require.NotNil(t, result.User)

	assert.Equal(t, "person@example.com", result.User.Email)
	assert.Equal(t, "bearer", result.Session.TokenType)
	assert.NotEmpty(t, result.Session.AccessToken)
	assert.True(t, result.User.Confirmed())

	require.Len(t, events, 2)
	assert.Equal(t, session.EventInitialSession, events[0])
	assert.Equal(t, session.EventSignedIn, events[1])
}

func TestProviderSignUpRequiresConfirmation(t *testing.T) {
	provider, _ := setupProvider(t, false)
	ctx := context.Background()

	result, err := provider.SignUp(ctx, signupPayload("person@example.com"))
	require.NoError(t, err)
	require.NotNil(t, result.User)
	assert.Nil(t, result.Session)
	assert.False(t, result.User.Confirmed())

	// logging in before the email is confirmed is refused
	_, err = provider.SignInWithPassword(ctx, "person@example.com", "long-enough-password")
	require.Error(t, err)
	assert.True(t, session.IsEmailNotConfirmedError(err))

	require.NoError(t, provider.ConfirmEmail(ctx, "person@example.com"))

	login, err := provider.SignInWithPassword(ctx, "person@example.com", "long-enough-password")
	require.NoError(t, err)
	require.NotNil(t, login.Session)
	assert.Equal(t, result.User.ID, login.User.ID)
}

func TestProviderSignUpDuplicateEmail(t *testing.T) {
	provider, _ := setupProvider(t, true)
	ctx := context.Background()

	_, err := provider.SignUp(ctx, signupPayload("person@example.com"))
	require.NoError(t, err)

	_, err = provider.SignUp(ctx, signupPayload("Person@Example.com"))
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrUserExists)
}

func TestProviderSignInWrongPassword(t *testing.T) {
	provider, _ := setupProvider(t, true)
	ctx := context.Background()

	_, err := provider.SignUp(ctx, signupPayload("person@example.com"))
	require.NoError(t, err)

	_, err = provider.SignInWithPassword(ctx, "person@example.com", "not-the-password")
	require.Error(t, err)
	assert.True(t, session.IsInvalidCredentialsError(err))
	assert.Contains(t, err.Error(), "Invalid login credentials")
}

func TestProviderSignInUnknownEmail(t *testing.T) {
	provider, _ := setupProvider(t, true)
	ctx := context.Background()

	_, err := provider.SignInWithPassword(ctx, "nobody@example.com", "whatever")
	require.Error(t, err)
	assert.True(t, session.IsInvalidCredentialsError(err))
}

func TestProviderSignInCoolDownAfterTooManyAttempts(t *testing.T) {
	provider, db := setupProvider(t, true)
	ctx := context.Background()

	_, err := provider.SignUp(ctx, signupPayload("person@example.com"))
	require.NoError(t, err)

	// push the attempt counter past the limit directly
	_, err = db.NewUpdate().
		Table("accounts").
		Set("login_attempts = ?", local.MaxLoginAttempts+1).
		Set("login_attempt_at = CURRENT_TIMESTAMP").
		Where("email = ?", "person@example.com").
		Exec(ctx)
	require.NoError(t, err)

	_, err = provider.SignInWithPassword(ctx, "person@example.com", "long-enough-password")
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrTooManyLoginAttempts)
}

func TestProviderSignInResetsAttemptCounter(t *testing.T) {
	provider, db := setupProvider(t, true)
	ctx := context.Background()

	_, err := provider.SignUp(ctx, signupPayload("person@example.com"))
	require.NoError(t, err)

	_, err = provider.SignInWithPassword(ctx, "person@example.com", "not-the-password")
	require.Error(t, err)

	var attempts int
	err = db.NewSelect().
		Table("accounts").
		Column("login_attempts").
		Where("email = ?", "person@example.com").
		Scan(ctx, &attempts)
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)

	_, err = provider.SignInWithPassword(ctx, "person@example.com", "long-enough-password")
	require.NoError(t, err)

	err = db.NewSelect().
		Table("accounts").
		Column("login_attempts").
		Where("email = ?", "person@example.com").
		Scan(ctx, &attempts)
	require.NoError(t, err)
	assert.Equal(t, 0, attempts)
}

func TestProviderSignOut(t *testing.T) {
	provider, _ := setupProvider(t, true)
	ctx := context.Background()

	_, err := provider.SignUp(ctx, signupPayload("person@example.com"))
	require.NoError(t, err)

	var signedOut bool
	provider.OnAuthStateChange(func(event session.AuthEvent, sess *session.Session) {
		if event == session.EventSignedOut {
			signedOut = true
		}
	})

	require.NoError(t, provider.SignOut(ctx))
	assert.True(t, signedOut)

	sess, err := provider.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, sess)

	err = provider.SignOut(ctx)
	require.Error(t, err)
	assert.True(t, session.IsSessionMissingError(err))
}

func TestProviderGetSessionMintsFreshTokenWhenExpired(t *testing.T) {
	provider, _ := setupProvider(t, true)
	ctx := context.Background()

	result, err := provider.SignUp(ctx, signupPayload("person@example.com"))
	require.NoError(t, err)

	var refreshed bool
	provider.OnAuthStateChange(func(event session.AuthEvent, sess *session.Session) {
		if event == session.EventTokenRefreshed {
			refreshed = true
		}
	})

	// force the held session past expiry
	result.Session.ExpiresAt = 1

	sess, err := provider.GetSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.True(t, refreshed)
	assert.NotEqual(t, result.Session.RefreshToken, sess.RefreshToken)
	assert.Equal(t, result.User.ID, sess.GetUserID())
}

func TestProviderGetUser(t *testing.T) {
	provider, _ := setupProvider(t, true)
	ctx := context.Background()

	_, err := provider.GetUser(ctx)
	require.Error(t, err)
	assert.True(t, session.IsSessionMissingError(err))

	result, err := provider.SignUp(ctx, signupPayload("person@example.com"))
	require.NoError(t, err)

	user, err := provider.GetUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, user.ID)
	assert.Equal(t, "person@example.com", user.Email)
}

func TestProviderUpdatePassword(t *testing.T) {
	provider, _ := setupProvider(t, true)
	ctx := context.Background()

	err := provider.UpdatePassword(ctx, "another-long-password")
	require.Error(t, err)
	assert.True(t, session.IsSessionMissingError(err))

	_, err = provider.SignUp(ctx, signupPayload("person@example.com"))
	require.NoError(t, err)

	var updated bool
	provider.OnAuthStateChange(func(event session.AuthEvent, sess *session.Session) {
		if event == session.EventUserUpdated {
			updated = true
		}
	})

	require.NoError(t, provider.UpdatePassword(ctx, "another-long-password"))
	assert.True(t, updated)

	_, err = provider.SignInWithPassword(ctx, "person@example.com", "long-enough-password")
	require.Error(t, err)
	assert.True(t, session.IsInvalidCredentialsError(err))

	_, err = provider.SignInWithPassword(ctx, "person@example.com", "another-long-password")
	require.NoError(t, err)
}

func TestProviderResetPasswordForEmailUnknownEmailSilent(t *testing.T) {
	provider, _ := setupProvider(t, true)

	// unknown emails must not be reported to the caller
	err := provider.ResetPasswordForEmail(context.Background(), "nobody@example.com")
	require.NoError(t, err)
}

// captureStdout collects everything fn prints, i.e. the emails the provider
// "sends".
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	orig := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = orig

	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(out)
}

// resetToken requests a password reset and pulls the token out of the
// notification link.
func resetToken(t *testing.T, provider *local.Provider, email string) string {
	t.Helper()

	out := captureStdout(t, func() {
		require.NoError(t, provider.ResetPasswordForEmail(context.Background(), email))
	})

	idx := strings.Index(out, "token=")
	require.NotEqual(t, -1, idx, "reset notification carries no token")
	token := out[idx+len("token="):]
	if nl := strings.IndexByte(token, '\n'); nl != -1 {
		token = token[:nl]
	}
	return strings.TrimSpace(token)
}

func TestProviderFinalizePasswordReset(t *testing.T) {
	provider, _ := setupProvider(t, true)
	ctx := context.Background()

	_, err := provider.SignUp(ctx, signupPayload("person@example.com"))
	require.NoError(t, err)

	token := resetToken(t, provider, "person@example.com")

	require.NoError(t, provider.FinalizePasswordReset(ctx, token, "brand-new-password"))

	_, err = provider.SignInWithPassword(ctx, "person@example.com", "long-enough-password")
	require.Error(t, err)
	assert.True(t, session.IsInvalidCredentialsError(err))

	login, err := provider.SignInWithPassword(ctx, "person@example.com", "brand-new-password")
	require.NoError(t, err)
	require.NotNil(t, login.Session)
}

func TestProviderFinalizePasswordResetTokenIsSingleUse(t *testing.T) {
	provider, _ := setupProvider(t, true)
	ctx := context.Background()

	_, err := provider.SignUp(ctx, signupPayload("person@example.com"))
	require.NoError(t, err)

	token := resetToken(t, provider, "person@example.com")

	require.NoError(t, provider.FinalizePasswordReset(ctx, token, "brand-new-password"))

	err = provider.FinalizePasswordReset(ctx, token, "yet-another-password")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid or expired")
}

func TestProviderFinalizePasswordResetUnknownToken(t *testing.T) {
	provider, _ := setupProvider(t, true)

	err := provider.FinalizePasswordReset(context.Background(), "bogus-token", "brand-new-password")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid or expired")
}

func TestProviderFinalizePasswordResetClearsAttemptCounter(t *testing.T) {
	provider, db := setupProvider(t, true)
	ctx := context.Background()

	_, err := provider.SignUp(ctx, signupPayload("person@example.com"))
	require.NoError(t, err)

	_, err = db.NewUpdate().
		Table("accounts").
		Set("login_attempts = ?", local.MaxLoginAttempts+1).
		Set("login_attempt_at = CURRENT_TIMESTAMP").
		Where("email = ?", "person@example.com").
		Exec(ctx)
	require.NoError(t, err)

	token := resetToken(t, provider, "person@example.com")
	require.NoError(t, provider.FinalizePasswordReset(ctx, token, "brand-new-password"))

	login, err := provider.SignInWithPassword(ctx, "person@example.com", "brand-new-password")
	require.NoError(t, err)
	require.NotNil(t, login.Session)
}

func TestProviderPasswordResetRevokesRefreshTokens(t *testing.T) {
	provider, _ := setupProvider(t, true)
	ctx := context.Background()

	result, err := provider.SignUp(ctx, signupPayload("person@example.com"))
	require.NoError(t, err)

	token := resetToken(t, provider, "person@example.com")
	require.NoError(t, provider.FinalizePasswordReset(ctx, token, "brand-new-password"))

	// an expired session can no longer re-mint once its refresh token is gone
	result.Session.ExpiresAt = 1

	_, err = provider.GetSession(ctx)
	require.Error(t, err)
	assert.True(t, session.IsSessionMissingError(err))
}

func TestProviderResendVerificationEmail(t *testing.T) {
	provider, db := setupProvider(t, false)
	ctx := context.Background()

	_, err := provider.SignUp(ctx, signupPayload("person@example.com"))
	require.NoError(t, err)

	require.NoError(t, provider.ResendVerificationEmail(ctx, "person@example.com"))

	var count int
	err = db.NewSelect().
		Table("accounts").
		ColumnExpr("count(*)").
		Where("confirmation_sent_at IS NOT NULL").
		Scan(ctx, &count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// already confirmed accounts are a no-op
	require.NoError(t, provider.ConfirmEmail(ctx, "person@example.com"))
	require.NoError(t, provider.ResendVerificationEmail(ctx, "person@example.com"))
}

func TestProviderConfirmEmailUnknownAccount(t *testing.T) {
	provider, _ := setupProvider(t, true)

	err := provider.ConfirmEmail(context.Background(), "nobody@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "account not found")
}

func TestProviderSignInWithOAuthNotSupported(t *testing.T) {
	provider, _ := setupProvider(t, true)

	_, err := provider.SignInWithOAuth("google")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not supported")
}

func TestNewProviderValidatesConfig(t *testing.T) {
	_, err := local.NewProvider(local.Config{})
	require.Error(t, err)
}

func TestConfigFromSessionConfig(t *testing.T) {
	_, db := setupProvider(t, true)

	cfg := local.ConfigFrom(db, &session.EnvConfig{
		JWTSecret:       "signing-secret",
		SiteURL:         "https://dashboard.example.com",
		TokenExpiration: 2,
	})

	assert.Equal(t, "signing-secret", cfg.JWTSecret)
	assert.Equal(t, "https://dashboard.example.com", cfg.SiteURL)
	assert.Equal(t, 2*time.Hour, cfg.TokenTTL)

	_, err := local.NewProvider(cfg)
	require.NoError(t, err)
}
