// Package session manages the client-side authentication session lifecycle
// for applications backed by a hosted identity provider plus an
// application-owned profile table.
//
// Session lifecycle:
//   - Store is the single authoritative holder of auth state (session, user,
//     profile, loading flag). Every mutation goes through a named operation
//     (Login, Signup, Logout, UpdateProfile, ...) or the provider
//     notification handler, so state changes stay observable and testable.
//   - The store subscribes to the provider's auth-change channel on Start and
//     releases the subscription on Close. Notifications (SIGNED_IN,
//     SIGNED_OUT, TOKEN_REFRESHED) drive the same state transitions as the
//     imperative operations, which is how OAuth redirect completion and
//     background token refresh reach the application.
//
// Profiles:
//   - Profiles are application-owned rows keyed 1:1 by the provider user id,
//     persisted via Bun. Profile creation at signup is best-effort: a missing
//     or misconfigured profile table never fails signup. The store records a
//     tagged ProfileStatus so callers can tell "no profile yet" apart from
//     "lookup failed and was ignored".
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by the store to
//     describe login, logout, signup, refresh, and profile events. Sinks run
//     best-effort (errors are logged) so you can forward to a database or
//     queue without blocking authentication.
package session
