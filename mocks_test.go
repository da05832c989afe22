package session_test

import (
	"context"
	"database/sql"

	"github.com/goliatone/go-router"
	"github.com/goliatone/go-session"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"
)

// MockIdentityClient implements session.IdentityClient. Auth-change fanout
// uses a real emitter so tests can fire provider events.
type MockIdentityClient struct {
	mock.Mock
	Emitter session.Emitter

	// InitialSession is handed to new subscribers as INITIAL_SESSION.
	InitialSession *session.Session
}

func (m *MockIdentityClient) SignUp(ctx context.Context, payload session.SignupPayload) (*session.SignupResult, error) {
	args := m.Called(ctx, payload)
	result, _ := args.Get(0).(*session.SignupResult)
	return result, args.Error(1)
}

func (m *MockIdentityClient) SignInWithPassword(ctx context.Context, email, password string) (*session.LoginResult, error) {
	args := m.Called(ctx, email, password)
	result, _ := args.Get(0).(*session.LoginResult)
	return result, args.Error(1)
}

func (m *MockIdentityClient) SignInWithOAuth(provider string, opts ...session.OAuthOption) (*session.OAuthRedirect, error) {
	args := m.Called(provider, opts)
	redirect, _ := args.Get(0).(*session.OAuthRedirect)
	return redirect, args.Error(1)
}

func (m *MockIdentityClient) SignOut(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockIdentityClient) ResetPasswordForEmail(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

func (m *MockIdentityClient) UpdatePassword(ctx context.Context, newPassword string) error {
	args := m.Called(ctx, newPassword)
	return args.Error(0)
}

func (m *MockIdentityClient) GetSession(ctx context.Context) (*session.Session, error) {
	args := m.Called(ctx)
	sess, _ := args.Get(0).(*session.Session)
	return sess, args.Error(1)
}

func (m *MockIdentityClient) GetUser(ctx context.Context) (*session.User, error) {
	args := m.Called(ctx)
	user, _ := args.Get(0).(*session.User)
	return user, args.Error(1)
}

func (m *MockIdentityClient) ResendVerificationEmail(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

func (m *MockIdentityClient) OnAuthStateChange(handler session.AuthChangeHandler) session.Subscription {
	sub := m.Emitter.Subscribe(handler)
	if handler != nil {
		handler(session.EventInitialSession, m.InitialSession)
	}
	return sub
}

// MockProfiles implements the session.Profiles surface the store touches.
// Repository methods the store never calls panic if reached.
type MockProfiles struct {
	mock.Mock
	session.Profiles
}

func (m *MockProfiles) GetByUserID(ctx context.Context, userID string) (*session.Profile, error) {
	args := m.Called(ctx, userID)
	profile, _ := args.Get(0).(*session.Profile)
	return profile, args.Error(1)
}

func (m *MockProfiles) GetByUserIDTx(ctx context.Context, tx bun.IDB, userID string) (*session.Profile, error) {
	args := m.Called(ctx, tx, userID)
	profile, _ := args.Get(0).(*session.Profile)
	return profile, args.Error(1)
}

func (m *MockProfiles) CreateProfile(ctx context.Context, record *session.Profile) (*session.Profile, error) {
	args := m.Called(ctx, record)
	profile, _ := args.Get(0).(*session.Profile)
	return profile, args.Error(1)
}

func (m *MockProfiles) CreateProfileTx(ctx context.Context, tx bun.IDB, record *session.Profile) (*session.Profile, error) {
	args := m.Called(ctx, tx, record)
	profile, _ := args.Get(0).(*session.Profile)
	return profile, args.Error(1)
}

func (m *MockProfiles) UpdateFields(ctx context.Context, userID string, updates session.ProfileUpdates) (*session.Profile, error) {
	args := m.Called(ctx, userID, updates)
	profile, _ := args.Get(0).(*session.Profile)
	return profile, args.Error(1)
}

func (m *MockProfiles) UpdateFieldsTx(ctx context.Context, tx bun.IDB, userID string, updates session.ProfileUpdates) (*session.Profile, error) {
	args := m.Called(ctx, tx, userID, updates)
	profile, _ := args.Get(0).(*session.Profile)
	return profile, args.Error(1)
}

// MockProfileManager implements session.ProfileManager around MockProfiles.
type MockProfileManager struct {
	ProfilesRepo *MockProfiles
}

func (m *MockProfileManager) Validate() error { return nil }

func (m *MockProfileManager) MustValidate() {}

func (m *MockProfileManager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	return f(ctx, bun.Tx{})
}

func (m *MockProfileManager) Profiles() session.Profiles {
	return m.ProfilesRepo
}

// mockRouterContext hand-implements the router.Context surface the
// controller touches. Anything else falls through to the embedded nil
// interface and panics if reached.
type embeddedRouterContext struct {
	router.Context
}

type mockRouterContext struct {
	mock.Mock
	embeddedRouterContext

	params map[string]string
	query  map[string]string
}

func newMockRouterContext() *mockRouterContext {
	return &mockRouterContext{
		params: map[string]string{},
		query:  map[string]string{},
	}
}

func (m *mockRouterContext) Context() context.Context {
	return context.Background()
}

func (m *mockRouterContext) Bind(v any) error {
	args := m.Called(v)
	return args.Error(0)
}

func (m *mockRouterContext) JSON(status int, v any) error {
	args := m.Called(status, v)
	return args.Error(0)
}

func (m *mockRouterContext) Param(name string, defaultValue ...string) string {
	return m.params[name]
}

func (m *mockRouterContext) Query(name, def string) string {
	if v, ok := m.query[name]; ok {
		return v
	}
	return def
}

func (m *mockRouterContext) Redirect(location string, status ...int) error {
	args := m.Called(location, status)
	return args.Error(0)
}

// recordingSink buffers activity events for assertions.
type recordingSink struct {
	events []session.ActivityEvent
}

func (r *recordingSink) Record(ctx context.Context, event session.ActivityEvent) error {
	r.events = append(r.events, event)
	return nil
}
