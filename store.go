package session

import (
	"context"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// AuthState is a point-in-time snapshot of the store. User is non-nil if and
// only if Session is non-nil; Profile may be nil while User is non-nil.
type AuthState struct {
	Session       *Session
	User          *User
	Profile       *Profile
	ProfileStatus ProfileStatus
	Loading       bool
	Phase         Phase
}

// Store is the single authoritative in-memory holder of auth state and its
// sole writer. All mutation funnels through named operations or the
// provider notification handler.
type Store struct {
	client IdentityClient
	repo   ProfileManager
	logger Logger
	sink   ActivitySink

	mu            sync.RWMutex
	session       *Session
	user          *User
	profile       *Profile
	profileStatus ProfileStatus
	loading       bool
	phase         Phase
	closed        bool

	sub Subscription
}

// StoreOption customizes store construction.
type StoreOption func(*Store)

// WithProfileManager wires the application-owned profile store.
func WithProfileManager(repo ProfileManager) StoreOption {
	return func(s *Store) {
		s.repo = repo
	}
}

// WithStoreLogger overrides the default logger.
func WithStoreLogger(logger Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStoreActivitySink configures an ActivitySink for auth lifecycle events.
func WithStoreActivitySink(sink ActivitySink) StoreOption {
	return func(s *Store) {
		s.sink = normalizeActivitySink(sink)
	}
}

// NewStore returns a store in the uninitialized phase: loading, all fields
// nil. Call Start to fetch any existing session and begin observing the
// provider's auth-change channel.
func NewStore(client IdentityClient, opts ...StoreOption) *Store {
	s := &Store{
		client:        client,
		logger:        defLogger{},
		sink:          noopActivitySink{},
		loading:       true,
		phase:         PhaseUninitialized,
		profileStatus: ProfileNone,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// Start acquires the auth-change subscription and runs the one-time
// initialization: fetch any existing session, hydrate the profile, and leave
// the store in a terminal "ready" phase. Initialization errors are logged,
// never re-thrown, so the application always reaches ready.
func (s *Store) Start(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	subscribe := s.sub == nil
	s.mu.Unlock()

	if subscribe {
		// the provider replays the current session synchronously inside this
		// call and the handler re-enters the store, so the state lock must
		// not be held across it
		sub := s.client.OnAuthStateChange(s.handleAuthChange)

		s.mu.Lock()
		if s.closed || s.sub != nil {
			s.mu.Unlock()
			sub.Unsubscribe()
			return
		}
		s.sub = sub
		s.mu.Unlock()
	}

	s.initialize(ctx)
}

// Close releases the auth-change subscription. The store refuses operations
// afterwards.
func (s *Store) Close() {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.closed = true
	s.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
}

func (s *Store) initialize(ctx context.Context) {
	defer s.setLoading(false)

	sess, err := s.client.GetSession(ctx)
	if err != nil {
		s.logger.Error("initialize session fetch error: %v", err)
		s.applyAnonymous()
		return
	}

	if sess == nil || sess.User == nil {
		s.applyAnonymous()
		return
	}

	profile, status := s.fetchProfile(ctx, sess.User.ID)
	s.applyAuthenticated(sess, profile, status)
}

// Login exchanges credentials for a session, hydrates the profile, and
// stores the result. On failure state is left unchanged except for the
// loading flag, and the provider error is re-thrown for the caller to render.
func (s *Store) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	s.setLoading(true)
	defer s.setLoading(false)

	result, err := s.client.SignInWithPassword(ctx, email, password)
	if err != nil {
		s.logger.Error("login error: %v", err)
		s.recordActivity(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"email": email,
			"error": err.Error(),
		})
		return nil, err
	}

	if result == nil || result.Session == nil || result.Session.User == nil {
		s.logger.Error("login result has no session")
		return nil, ErrSessionMissing
	}

	if result.User == nil {
		result.User = result.Session.User
	}

	// providers that announce SIGNED_IN synchronously during the exchange
	// already hydrated the profile through the notification path
	profile, status := s.CurrentProfile()
	if current := s.CurrentUser(); current == nil || current.ID != result.User.ID {
		profile, status = s.fetchProfile(ctx, result.User.ID)
	}
	s.applyAuthenticated(result.Session, profile, status)

	s.recordActivity(ctx, ActivityEventLoginSuccess, ActorRef{ID: result.Session.GetUserID(), Type: "user"}, result.Session.GetUserID(), map[string]any{
		"email": email,
	})

	return result, nil
}

// Signup registers a new identity and best-effort creates the matching
// profile row; profile-creation failure is logged, never propagated. The
// store does not authenticate here: when the provider issues a session it is
// observed through the notification channel.
func (s *Store) Signup(ctx context.Context, payload SignupPayload) (*SignupResult, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	s.setLoading(true)
	defer s.setLoading(false)

	if err := payload.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid signup payload")
	}

	result, err := s.client.SignUp(ctx, payload)
	if err != nil {
		s.logger.Error("signup error: %v", err)
		return nil, err
	}

	if result.User != nil && s.repo != nil {
		create := &CreateProfileHandler{Repo: s.repo, Logger: s.logger}
		msg := CreateProfileMessage{
			UserID:      result.User.ID,
			Email:       payload.Email,
			FirstName:   payload.FirstName,
			LastName:    payload.LastName,
			CompanyName: payload.CompanyName,
			Phone:       payload.Phone,
		}
		if err := create.Execute(ctx, msg); err != nil {
			// the profile table might not exist yet; signup still succeeds
			s.logger.Error("profile creation error: %v", err)
		}
	}

	userID := ""
	if result.User != nil {
		userID = result.User.ID
	}
	s.recordActivity(ctx, ActivityEventSignup, ActorRef{ID: userID, Type: "user"}, userID, map[string]any{
		"email": payload.Email,
	})

	return result, nil
}

// LoginWithOAuth starts a redirect-based OAuth flow and returns the provider
// handle. Session establishment happens asynchronously after the redirect
// completes and reaches the store through the notification channel.
func (s *Store) LoginWithOAuth(provider string, opts ...OAuthOption) (*OAuthRedirect, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	s.setLoading(true)
	defer s.setLoading(false)

	redirect, err := s.client.SignInWithOAuth(provider, opts...)
	if err != nil {
		s.logger.Error("oauth login error: %v", err)
		return nil, err
	}

	s.recordActivity(context.Background(), ActivityEventOAuthStarted, ActorRef{Type: "unknown"}, "", map[string]any{
		"provider": provider,
	})

	return redirect, nil
}

// Logout invalidates the session with the provider and clears local state.
// Local state is cleared regardless of the remote outcome so a dead backend
// cannot pin a stale session; the remote error is still re-thrown.
func (s *Store) Logout(ctx context.Context) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}

	s.setLoading(true)
	defer s.setLoading(false)

	userID := ""
	if u := s.CurrentUser(); u != nil {
		userID = u.ID
	}

	err := s.client.SignOut(ctx)
	s.applyAnonymous()

	metadata := map[string]any{}
	if err != nil {
		metadata["error"] = err.Error()
	}
	s.recordActivity(ctx, ActivityEventLogout, ActorRef{ID: userID, Type: "user"}, userID, metadata)

	return err
}

// ResetPassword triggers the password-reset email. State is not altered.
func (s *Store) ResetPassword(ctx context.Context, email string) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}

	if err := s.client.ResetPasswordForEmail(ctx, email); err != nil {
		return err
	}

	s.recordActivity(ctx, ActivityEventPasswordReset, ActorRef{Type: "unknown"}, "", map[string]any{
		"email": email,
	})

	return nil
}

// UpdatePassword changes the password of the current identity. State is not
// altered.
func (s *Store) UpdatePassword(ctx context.Context, newPassword string) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	return s.client.UpdatePassword(ctx, newPassword)
}

// ResendVerificationEmail re-triggers the signup-confirmation email.
func (s *Store) ResendVerificationEmail(ctx context.Context, email string) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	return s.client.ResendVerificationEmail(ctx, email)
}

// UpdateProfile updates the profile row of the current user and replaces the
// stored copy. With no authenticated user it is a no-op and must not reach
// the backend.
func (s *Store) UpdateProfile(ctx context.Context, updates ProfileUpdates) (*Profile, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	user := s.CurrentUser()
	if user == nil {
		return nil, nil
	}

	if s.repo == nil {
		return nil, goerrors.New("profile store not configured", goerrors.CategoryOperation).
			WithTextCode("PROFILES_UNCONFIGURED")
	}

	profile, err := s.repo.Profiles().UpdateFields(ctx, user.ID, updates)
	if err != nil {
		return nil, err
	}

	s.setProfile(profile, ProfileLoaded)

	s.recordActivity(ctx, ActivityEventProfileUpdated, ActorRef{ID: user.ID, Type: "user"}, user.ID, nil)

	return profile, nil
}

// handleAuthChange bridges provider notifications into the store's update
// path. Each notification is applied synchronously with respect to that
// single event.
func (s *Store) handleAuthChange(event AuthEvent, sess *Session) {
	s.logger.Debug("auth state changed: %s", event)

	defer s.setLoading(false)

	if event == EventSignedOut || sess == nil || sess.User == nil {
		wasAuthenticated := s.CurrentUser() != nil
		s.applyAnonymous()
		if event == EventSignedOut && wasAuthenticated {
			s.recordActivity(context.Background(), ActivityEventSignedOut, ActorRef{Type: "provider"}, "", nil)
		}
		return
	}

	switch event {
	case EventSignedIn:
		// a sign-in for the user we already hold keeps the loaded profile,
		// so the login path performs exactly one profile fetch
		if current := s.CurrentUser(); current != nil && current.ID == sess.User.ID {
			s.refreshSession(sess)
			return
		}
		profile, status := s.fetchProfile(context.Background(), sess.User.ID)
		s.applyAuthenticated(sess, profile, status)
	case EventTokenRefreshed:
		s.refreshSession(sess)
		s.recordActivity(context.Background(), ActivityEventTokenRefreshed, ActorRef{ID: sess.GetUserID(), Type: "provider"}, sess.GetUserID(), nil)
	default:
		s.refreshSession(sess)
	}
}

// fetchProfile reads the profile row for the given user id, mapping the
// documented outcomes: row found, row absent (not an error), and backend
// failure (swallowed here, tagged unavailable).
func (s *Store) fetchProfile(ctx context.Context, userID string) (*Profile, ProfileStatus) {
	if s.repo == nil {
		return nil, ProfileNone
	}

	profile, err := s.repo.Profiles().GetByUserID(ctx, userID)
	if err != nil {
		s.logger.Error("profile fetch error: %v", err)
		return nil, ProfileUnavailable
	}

	if profile == nil {
		return nil, ProfileAbsent
	}

	return profile, ProfileLoaded
}

func (s *Store) applyAuthenticated(sess *Session, profile *Profile, status ProfileStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ValidateTransition(s.phase, PhaseAuthenticated); err != nil {
		s.logger.Error("phase transition rejected: %v", err)
		return
	}

	s.session = sess
	s.user = sess.User
	s.profile = profile
	s.profileStatus = status
	s.phase = PhaseAuthenticated
}

func (s *Store) applyAnonymous() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ValidateTransition(s.phase, PhaseAnonymous); err != nil {
		s.logger.Error("phase transition rejected: %v", err)
		return
	}

	s.session = nil
	s.user = nil
	s.profile = nil
	s.profileStatus = ProfileNone
	s.phase = PhaseAnonymous
}

// refreshSession replaces session and user in place, keeping the profile.
func (s *Store) refreshSession(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ValidateTransition(s.phase, PhaseAuthenticated); err != nil {
		s.logger.Error("phase transition rejected: %v", err)
		return
	}

	s.session = sess
	s.user = sess.User
	s.phase = PhaseAuthenticated
}

func (s *Store) setProfile(profile *Profile, status ProfileStatus) {
	s.mu.Lock()
	s.profile = profile
	s.profileStatus = status
	s.mu.Unlock()
}

func (s *Store) setLoading(loading bool) {
	s.mu.Lock()
	s.loading = loading
	s.mu.Unlock()
}

func (s *Store) ensureOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// CurrentSession returns the held session, nil when anonymous.
func (s *Store) CurrentSession() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// CurrentUser returns the held user, nil when anonymous.
func (s *Store) CurrentUser() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// CurrentProfile returns the held profile and its tagged fetch outcome.
func (s *Store) CurrentProfile() (*Profile, ProfileStatus) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile, s.profileStatus
}

// Loading reports whether an auth operation or initialization is in flight.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// IsAuthenticated reports whether a user is held.
func (s *Store) IsAuthenticated() bool {
	return s.CurrentUser() != nil
}

// CurrentPhase returns the lifecycle phase.
func (s *Store) CurrentPhase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// State returns a snapshot of the full auth state.
func (s *Store) State() AuthState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return AuthState{
		Session:       s.session,
		User:          s.user,
		Profile:       s.profile,
		ProfileStatus: s.profileStatus,
		Loading:       s.loading,
		Phase:         s.phase,
	}
}

func (s *Store) recordActivity(ctx context.Context, eventType ActivityEventType, actor ActorRef, userID string, metadata map[string]any) {
	sink := normalizeActivitySink(s.sink)
	event := ActivityEvent{
		EventType: eventType,
		Actor:     actor,
		UserID:    userID,
		Metadata:  metadata,
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	if err := sink.Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error: %v", err)
	}
}
